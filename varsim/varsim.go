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

// Package varsim reads Varsim map files, which relate a synthetic diploid
// genome (with "<n>_maternal"/"<n>_paternal" contigs) to the haploid
// reference it was generated from.
package varsim

import (
	"bufio"
	"context"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

const (
	// Insertion marks positions present in the synthetic genome only.
	Insertion = 'I'
	// Deletion marks reference positions missing from the synthetic genome.
	Deletion = 'D'
)

// Event is one insertion or deletion of a synthetic contig.
//
// For an Insertion, synthetic positions [Start, Start+Len) have no reference
// counterpart.  For a Deletion, Len reference positions are missing
// immediately before synthetic position Start.  Positions are 0-based.
type Event struct {
	Start uint32
	Len   uint32
	Kind  byte
}

// segment is a maximal run of synthetic positions sharing the same offset
// to reference coordinates.
type segment struct {
	start       uint32
	offset      int64
	inInsertion bool
}

func (s *segment) Compare(b llrb.Comparable) int {
	bs := b.(*segment)
	switch {
	case s.start < bs.start:
		return -1
	case s.start > bs.start:
		return 1
	}
	return 0
}

// Map holds the events of every synthetic contig.
type Map struct {
	events   map[string][]Event
	segments map[string]*llrb.Tree
}

// Events returns the events of the named contig, sorted by Start.
func (m *Map) Events(contig string) []Event {
	return m.events[contig]
}

// Translate converts a synthetic-genome position on the named contig to the
// reference coordinate system.  It returns false for positions inside an
// insertion.  Contigs without events translate to themselves.
func (m *Map) Translate(contig string, pos uint32) (uint32, bool) {
	tree := m.segments[contig]
	if tree == nil {
		return pos, true
	}
	c := tree.Floor(&segment{start: pos})
	if c == nil {
		return pos, true
	}
	seg := c.(*segment)
	if seg.inInsertion {
		return 0, false
	}
	return uint32(int64(pos) + seg.offset), true
}

func buildSegments(events []Event) *llrb.Tree {
	tree := &llrb.Tree{}
	offset := int64(0)
	for _, e := range events {
		switch e.Kind {
		case Deletion:
			offset += int64(e.Len)
			tree.Insert(&segment{start: e.Start, offset: offset})
		case Insertion:
			tree.Insert(&segment{start: e.Start, offset: offset, inInsertion: true})
			offset -= int64(e.Len)
			tree.Insert(&segment{start: e.Start + e.Len, offset: offset})
		}
	}
	return tree
}

// Parse reads a Varsim map file.  Each line has the whitespace-separated
// fields
//   <block size> <host chr> <host loc> <ref chr> <ref loc> <direction> <feature> [<variant id>]
// with 1-based locations.  Only insertion (I) and deletion (D) features are
// retained.
func Parse(r io.Reader) (*Map, error) {
	m := &Map{
		events:   map[string][]Event{},
		segments: map[string]*llrb.Tree{},
	}
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 7 {
			return nil, errors.Errorf("varsim.Parse: line %d: expected at least 7 fields, got %d", lineNum, len(fields))
		}
		if len(fields[6]) != 1 || (fields[6][0] != Insertion && fields[6][0] != Deletion) {
			continue
		}
		size, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "varsim.Parse: line %d: block size", lineNum)
		}
		loc, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil || loc == 0 {
			return nil, errors.Errorf("varsim.Parse: line %d: invalid host location %q", lineNum, fields[2])
		}
		contig := fields[1]
		m.events[contig] = append(m.events[contig], Event{
			Start: uint32(loc - 1),
			Len:   uint32(size),
			Kind:  fields[6][0],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "varsim.Parse")
	}
	for contig, events := range m.events {
		sort.SliceStable(events, func(i, j int) bool { return events[i].Start < events[j].Start })
		m.segments[contig] = buildSegments(events)
	}
	return m, nil
}

// ReadMap loads a (possibly compressed) Varsim map file.
func ReadMap(ctx context.Context, path string) (m *Map, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if m, err = Parse(reader); err != nil {
		err = errors.Wrap(err, path)
		return
	}
	log.Printf("varsim.ReadMap: %d contigs with events in %s", len(m.events), path)
	return
}

// ApplyMap projects a synthetic contig onto reference coordinates: inserted
// positions are dropped, deleted reference positions are filled with 'N'.
// events must be sorted by Start.
func ApplyMap(events []Event, seq []byte) []byte {
	out := make([]byte, 0, len(seq))
	evIdx := 0
	inInsertionUntil := uint32(0)
	for pos := uint32(0); pos <= uint32(len(seq)); pos++ {
		for evIdx < len(events) && events[evIdx].Start == pos {
			e := events[evIdx]
			evIdx++
			switch e.Kind {
			case Deletion:
				for i := uint32(0); i < e.Len; i++ {
					out = append(out, 'N')
				}
			case Insertion:
				inInsertionUntil = e.Start + e.Len
			}
		}
		if pos == uint32(len(seq)) {
			break
		}
		if pos < inInsertionUntil {
			continue
		}
		out = append(out, seq[pos])
	}
	return out
}
