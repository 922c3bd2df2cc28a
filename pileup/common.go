// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package pileup

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Common pileup components shared by the filtering and calling stages.

const (
	// BaseA represents an A base.
	BaseA byte = iota
	// BaseC represents an C base.
	BaseC
	// BaseG represents an G base.
	BaseG
	// BaseT represents an T base.
	BaseT
)

// NBase is the number of regular base types.
const NBase = 4

// EnumToASCIITable is the A/C/G/T enum -> ASCII mapping.
var EnumToASCIITable = [...]byte{'A', 'C', 'G', 'T'}

// ASCIIToEnum returns the A/C/G/T enum value of an ASCII base, or NBase if
// the character isn't one of ACGTacgt.
func ASCIIToEnum(c byte) byte {
	switch c {
	case 'A', 'a':
		return BaseA
	case 'C', 'c':
		return BaseC
	case 'G', 'g':
		return BaseG
	case 'T', 't':
		return BaseT
	}
	return NBase
}

// BaseCount holds the number of reads supporting each of A, C, G and T for a
// single cell (or cell group) at a single position.
type BaseCount [NBase]uint16

// Total returns the number of reads in c.
func (c BaseCount) Total() uint32 {
	return uint32(c[0]) + uint32(c[1]) + uint32(c[2]) + uint32(c[3])
}

// BaseTotals holds pooled base counts.  Pooling many cells can exceed the
// 16-bit per-cell ceiling, so the counters are wider than BaseCount's.
type BaseTotals [NBase]uint32

// Add accumulates c into t.
func (t *BaseTotals) Add(c BaseCount) {
	t[0] += uint32(c[0])
	t[1] += uint32(c[1])
	t[2] += uint32(c[2])
	t[3] += uint32(c[3])
}

// Total returns the number of reads in t.
func (t BaseTotals) Total() uint32 {
	return t[0] + t[1] + t[2] + t[3]
}

// Totals widens c to a BaseTotals.
func (c BaseCount) Totals() BaseTotals {
	return BaseTotals{uint32(c[0]), uint32(c[1]), uint32(c[2]), uint32(c[3])}
}

// RankOrder returns the base indices sorted by increasing count, so that
// order[NBase-1] is the most frequent base.  Ties keep the lower base index
// first.
func (t BaseTotals) RankOrder() (order [NBase]int) {
	for i := range order {
		order[i] = i
	}
	// Insertion sort; four elements.
	for i := 1; i < NBase; i++ {
		for j := i; j > 0 && t[order[j-1]] > t[order[j]]; j-- {
			order[j-1], order[j] = order[j], order[j-1]
		}
	}
	return
}

// CellData is the base count of one cell at one position.
type CellData struct {
	CellID uint16
	Counts BaseCount
}

// PosData is a single pileup row: a position plus the base counts of every
// cell with coverage there.
type PosData struct {
	Pos   uint32
	Cells []CellData
}

// Pileup is indexed by chromosome ID; each entry lists rows in increasing
// position order.
type Pileup [][]PosData

// NumRows returns the total number of rows across all chromosomes.
func (p Pileup) NumRows() (n int) {
	for _, rows := range p {
		n += len(rows)
	}
	return
}

const (
	// ChrX is the chromosome ID of chrX.
	ChrX = 22
	// ChrY is the chromosome ID of chrY.
	ChrY = 23
	// NChromosome is the number of chromosome IDs.
	NChromosome = 24
)

// ChromosomeName returns the canonical name ("1".."22", "X", "Y") of a
// chromosome ID.
func ChromosomeName(id int) string {
	switch id {
	case ChrX:
		return "X"
	case ChrY:
		return "Y"
	}
	return strconv.Itoa(id + 1)
}

// ChromosomeID parses a contig name into a chromosome ID.  An optional "chr"
// prefix and the Varsim "_maternal"/"_paternal" suffixes are accepted, so
// "chr7", "7" and "7_maternal" all map to 6.
func ChromosomeID(name string) (int, error) {
	s := strings.TrimPrefix(name, "chr")
	if i := strings.IndexByte(s, '_'); i >= 0 {
		s = s[:i]
	}
	switch s {
	case "X":
		return ChrX, nil
	case "Y":
		return ChrY, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 22 {
		return -1, errors.Errorf("pileup.ChromosomeID: unrecognized chromosome %q", name)
	}
	return n - 1, nil
}

// NumCells returns one more than the largest cell ID in p, i.e. the length a
// table indexed by cell ID must have.
func (p Pileup) NumCells() int {
	n := 0
	for _, rows := range p {
		for i := range rows {
			for _, cd := range rows[i].Cells {
				if int(cd.CellID) >= n {
					n = int(cd.CellID) + 1
				}
			}
		}
	}
	return n
}
