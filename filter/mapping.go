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

// Package filter removes pileup positions that cannot help distinguish
// genotypes within a subcluster of cells, and drives that filter over a
// hierarchy of subclusters.
package filter

import (
	"github.com/grailbio/scgeno/pileup"
	"github.com/pkg/errors"
)

// NoPos is the IDToPos value of a group outside the active subcluster.
// Callers should use Mapping.ExcludeGroup and Mapping.Column rather than
// comparing against it.
const NoPos = ^uint32(0)

// Mapping describes which cells take part in a subcluster.
//
// IDToGroup maps each cell ID to a cell group; data from cells in the same
// group is pooled as if it came from one cell (used to raise coverage in
// small test clusters).  IDToPos maps each group to its column in the
// subcluster's similarity matrix, or NoPos when the group is excluded.
type Mapping struct {
	IDToGroup []uint16
	IDToPos   []uint32
}

// Identity returns the mapping in which every one of nCells cells is its own
// group, and every group is active with column == group.
func Identity(nCells int) *Mapping {
	m := &Mapping{
		IDToGroup: make([]uint16, nCells),
		IDToPos:   make([]uint32, nCells),
	}
	for i := 0; i < nCells; i++ {
		m.IDToGroup[i] = uint16(i)
		m.IDToPos[i] = uint32(i)
	}
	return m
}

// Clone returns a deep copy of m.
func (m *Mapping) Clone() *Mapping {
	return &Mapping{
		IDToGroup: append([]uint16(nil), m.IDToGroup...),
		IDToPos:   append([]uint32(nil), m.IDToPos...),
	}
}

// Column returns the similarity-matrix column of group, and false if the
// group is not in the subcluster.
func (m *Mapping) Column(group uint16) (uint32, bool) {
	if int(group) >= len(m.IDToPos) {
		return 0, false
	}
	col := m.IDToPos[group]
	return col, col != NoPos
}

// ExcludeGroup removes group from the subcluster.
func (m *Mapping) ExcludeGroup(group uint16) {
	m.IDToPos[group] = NoPos
}

// SetColumn places group in the subcluster at column col.
func (m *Mapping) SetColumn(group uint16, col uint32) {
	m.IDToPos[group] = col
}

// NumActive returns the number of groups in the subcluster.
func (m *Mapping) NumActive() int {
	n := 0
	for _, col := range m.IDToPos {
		if col != NoPos {
			n++
		}
	}
	return n
}

// Validate checks that every group referenced by IDToGroup has an IDToPos
// entry.
func (m *Mapping) Validate() error {
	for cellID, group := range m.IDToGroup {
		if int(group) >= len(m.IDToPos) {
			return errors.Errorf("filter.Mapping: cell %d maps to group %d, but only %d groups have positions", cellID, group, len(m.IDToPos))
		}
	}
	return nil
}

// pool sums the base counts of the row's cells that belong to the
// subcluster.
func (m *Mapping) pool(row *pileup.PosData) (pooled pileup.BaseTotals, err error) {
	for _, cd := range row.Cells {
		if int(cd.CellID) >= len(m.IDToGroup) {
			err = errors.Errorf("filter.Mapping: position %d has cell %d, but only %d cells have groups", row.Pos, cd.CellID, len(m.IDToGroup))
			return
		}
		group := m.IDToGroup[cd.CellID]
		if int(group) >= len(m.IDToPos) {
			err = errors.Errorf("filter.Mapping: position %d has cell %d in group %d, but only %d groups have positions", row.Pos, cd.CellID, group, len(m.IDToPos))
			return
		}
		if m.IDToPos[group] == NoPos {
			continue
		}
		pooled.Add(cd.Counts)
	}
	return
}
