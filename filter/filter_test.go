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
package filter

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/grailbio/scgeno/pileup"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/pkg/errors"
)

func newTestFilter(t *testing.T, opts Opts) *Filter {
	f, err := New(opts)
	assert.NoError(t, err)
	return f
}

func TestIsSignificant(t *testing.T) {
	f := newTestFilter(t, DefaultOpts)
	tests := []struct {
		counts pileup.BaseTotals
		theta  float64
		want   bool
	}{
		{pileup.BaseTotals{1000, 5, 3, 2}, 0.01, false},
		{pileup.BaseTotals{500, 480, 5, 5}, 0.01, true},
		{pileup.BaseTotals{900, 100, 0, 0}, 0.01, true},
		{pileup.BaseTotals{900, 150, 0, 0}, 0.01, true},
		{pileup.BaseTotals{1000, 8, 8, 8}, 0.01, true},
		{pileup.BaseTotals{}, 0.01, false},
		{pileup.BaseTotals{0, 0, 7, 0}, 0, false},
		{pileup.BaseTotals{0, 1, 7, 0}, 0, true},
		{pileup.BaseTotals{500, 480, 5, 5}, -0.01, false},
		{pileup.BaseTotals{500, 480, 5, 5}, 1.5, false},
		{pileup.BaseTotals{500, 480, 5, 5}, math.NaN(), false},
	}
	for _, tt := range tests {
		expect.EQ(t, f.IsSignificant(tt.counts, tt.theta), tt.want, "counts=%v theta=%v", tt.counts, tt.theta)
	}
	_, err := New(Opts{Alpha: 0})
	expect.True(t, err != nil)
}

func TestIsSignificantMonotone(t *testing.T) {
	f := newTestFilter(t, Opts{Alpha: 1e-6})
	for _, theta := range []float64{0.001, 0.01, 0.05} {
		const coverage = 1000
		wasSignificant := false
		for minor := uint32(0); minor <= coverage/2; minor++ {
			sig := f.IsSignificant(pileup.BaseTotals{coverage - minor, minor, 0, 0}, theta)
			if wasSignificant && !sig {
				t.Fatalf("theta=%v: minor count %d not significant after smaller count was", theta, minor)
			}
			wasSignificant = sig
		}
		expect.True(t, wasSignificant, "theta=%v", theta)
	}
}

// fourCellPileup returns a pileup where cells 0 and 1 carry A and cells 2
// and 3 carry C at informative rows, interleaved with noise-only rows.
func fourCellPileup() pileup.Pileup {
	informative := func(pos uint32) pileup.PosData {
		return pileup.PosData{Pos: pos, Cells: []pileup.CellData{
			{CellID: 0, Counts: pileup.BaseCount{30, 0, 0, 0}},
			{CellID: 1, Counts: pileup.BaseCount{30, 0, 0, 0}},
			{CellID: 2, Counts: pileup.BaseCount{0, 30, 0, 0}},
			{CellID: 3, Counts: pileup.BaseCount{0, 30, 0, 0}},
		}}
	}
	noise := func(pos uint32) pileup.PosData {
		return pileup.PosData{Pos: pos, Cells: []pileup.CellData{
			{CellID: 0, Counts: pileup.BaseCount{30, 0, 0, 0}},
			{CellID: 1, Counts: pileup.BaseCount{29, 1, 0, 0}},
			{CellID: 3, Counts: pileup.BaseCount{30, 0, 0, 0}},
		}}
	}
	p := make(pileup.Pileup, pileup.NChromosome)
	p[0] = []pileup.PosData{noise(5), informative(9), noise(12), informative(40)}
	p[pileup.ChrX] = []pileup.PosData{informative(7), noise(8)}
	return p
}

func TestFilter(t *testing.T) {
	f := newTestFilter(t, DefaultOpts)
	p := fourCellPileup()
	result, err := f.Filter(p, Identity(4), "", 0.01, 2)
	assert.NoError(t, err)
	expect.EQ(t, result.NumTested, 6)
	expect.EQ(t, result.NumKept, 3)
	assert.EQ(t, len(result.Pileup), pileup.NChromosome)
	expect.EQ(t, result.Pileup[0], []pileup.PosData{p[0][1], p[0][3]})
	expect.EQ(t, result.Pileup[pileup.ChrX], []pileup.PosData{p[pileup.ChrX][0]})
	expect.EQ(t, result.CoverageSum, uint64(360))
	expect.EQ(t, result.AvgCoverage, 30.0)

	// Input is untouched.
	expect.EQ(t, p, fourCellPileup())
}

func TestFilterGroups(t *testing.T) {
	f := newTestFilter(t, DefaultOpts)
	p := fourCellPileup()
	m := &Mapping{
		IDToGroup: []uint16{0, 0, 1, 1},
		IDToPos:   []uint32{0, 1},
	}
	result, err := f.Filter(p, m, "", 0.01, 1)
	assert.NoError(t, err)
	expect.EQ(t, result.NumKept, 3)
	expect.EQ(t, result.AvgCoverage, 60.0)

	// Without the C-carrying group, nothing distinguishes the cells.
	m.ExcludeGroup(1)
	_, ok := m.Column(1)
	expect.False(t, ok)
	col, ok := m.Column(0)
	expect.True(t, ok)
	expect.EQ(t, col, uint32(0))
	result, err = f.Filter(p, m, "A", 0.01, 1)
	assert.NoError(t, err)
	expect.EQ(t, result.NumKept, 0)
	expect.EQ(t, result.AvgCoverage, 0.0)
}

func TestFilterAllExcluded(t *testing.T) {
	f := newTestFilter(t, DefaultOpts)
	m := Identity(4)
	for g := uint16(0); g < 4; g++ {
		m.ExcludeGroup(g)
	}
	expect.EQ(t, m.NumActive(), 0)
	result, err := f.Filter(fourCellPileup(), m, "AB", 0.01, 3)
	assert.NoError(t, err)
	expect.EQ(t, result.NumKept, 0)
	expect.EQ(t, result.Pileup.NumRows(), 0)
	expect.EQ(t, result.AvgCoverage, 0.0)
	expect.False(t, math.IsNaN(result.AvgCoverage))
}

func TestFilterEmpty(t *testing.T) {
	f := newTestFilter(t, DefaultOpts)
	result, err := f.Filter(make(pileup.Pileup, pileup.NChromosome), Identity(2), "", 0.01, 4)
	assert.NoError(t, err)
	expect.EQ(t, result.NumTested, 0)
	expect.EQ(t, result.AvgCoverage, 0.0)
}

func TestFilterBonferroni(t *testing.T) {
	p := make(pileup.Pileup, 1)
	for i := 0; i < 10; i++ {
		p[0] = append(p[0], pileup.PosData{Pos: uint32(i), Cells: []pileup.CellData{
			{CellID: 0, Counts: pileup.BaseCount{1000, 8, 8, 8}},
		}})
	}
	result, err := newTestFilter(t, Opts{Alpha: 0.05}).Filter(p, Identity(1), "", 0.01, 1)
	assert.NoError(t, err)
	expect.EQ(t, result.NumKept, 10)
	result, err = newTestFilter(t, Opts{Alpha: 0.05, Bonferroni: true}).Filter(p, Identity(1), "", 0.01, 1)
	assert.NoError(t, err)
	expect.EQ(t, result.NumKept, 0)
}

func TestFilterInvalidInput(t *testing.T) {
	f := newTestFilter(t, DefaultOpts)
	p := fourCellPileup()

	// Group 2 has no position.
	_, err := f.Filter(p, &Mapping{IDToGroup: []uint16{0, 1, 2, 2}, IDToPos: []uint32{0, 1}}, "", 0.01, 2)
	expect.True(t, err != nil)

	// Cell 3 has no group; the whole call fails even though other jobs
	// succeed.
	result, err := f.Filter(p, Identity(3), "", 0.01, 4)
	expect.True(t, err != nil)
	expect.EQ(t, result.NumKept, 0)
	expect.EQ(t, len(result.Pileup), 0)

	_, err = f.Filter(p, Identity(4), "", 1.5, 2)
	expect.True(t, err != nil)
	_, err = f.Filter(p, Identity(4), "", 0.01, 0)
	expect.True(t, err != nil)

	row := &pileup.PosData{Pos: 7, Cells: []pileup.CellData{
		{CellID: 0, Counts: pileup.BaseCount{5, 5, 0, 0}},
		{CellID: 1, Counts: pileup.BaseCount{5, 5, 0, 0}},
	}}
	// Cell 1 is in group 1, which has no position.
	_, _, err = f.IsSignificantRow(row, &Mapping{IDToGroup: []uint16{0, 1}, IDToPos: []uint32{0}}, 0.01)
	expect.True(t, err != nil)
	// Cell 1 has no group.
	_, _, err = f.IsSignificantRow(row, Identity(1), 0.01)
	expect.True(t, err != nil)
	_, _, err = f.IsSignificantRow(row, Identity(2), -0.5)
	expect.True(t, err != nil)
	_, coverage, err := f.IsSignificantRow(row, Identity(2), 0.01)
	assert.NoError(t, err)
	expect.EQ(t, coverage, uint32(20))
}

func randomPileup(r *rand.Rand, nCell int) pileup.Pileup {
	p := make(pileup.Pileup, pileup.NChromosome)
	for chrID := range p {
		if chrID%5 == 3 {
			// Leave some chromosomes empty.
			continue
		}
		nRow := r.Intn(300)
		pos := uint32(0)
		for i := 0; i < nRow; i++ {
			pos += 1 + uint32(r.Intn(100))
			row := pileup.PosData{Pos: pos}
			alt := byte(r.Intn(pileup.NBase))
			for cellID := 0; cellID < nCell; cellID++ {
				if r.Intn(4) == 0 {
					continue
				}
				var c pileup.BaseCount
				depth := r.Intn(40)
				for j := 0; j < depth; j++ {
					switch {
					case r.Intn(100) == 0:
						c[r.Intn(pileup.NBase)]++
					case cellID%2 == 0 && r.Intn(3) == 0:
						c[alt]++
					default:
						c[pileup.BaseA]++
					}
				}
				row.Cells = append(row.Cells, pileup.CellData{CellID: uint16(cellID), Counts: c})
			}
			p[chrID] = append(p[chrID], row)
		}
	}
	return p
}

func TestFilterParallelismInvariant(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	const nCell = 12
	p := randomPileup(r, nCell)
	m := Identity(nCell)
	m.ExcludeGroup(5)
	m.ExcludeGroup(8)
	f := newTestFilter(t, DefaultOpts)
	want, err := f.Filter(p, m, "", 0.01, 1)
	assert.NoError(t, err)
	expect.True(t, want.NumKept > 0)
	expect.True(t, want.NumKept < want.NumTested)
	for _, parallelism := range []int{2, 3, 8, 64, 100000} {
		got, err := f.Filter(p, m, "", 0.01, parallelism)
		assert.NoError(t, err)
		expect.EQ(t, got, want, "parallelism=%d", parallelism)
		expect.EQ(t, got.Fingerprint(), want.Fingerprint(), "parallelism=%d", parallelism)
		expect.EQ(t, math.Float64bits(got.AvgCoverage), math.Float64bits(want.AvgCoverage))
	}
}

// halvingSplitter splits a subcluster's active groups into two halves.
type halvingSplitter struct {
	fail string
}

func (s halvingSplitter) Split(ctx context.Context, node *Node) ([]*Mapping, error) {
	if node.Marker == s.fail {
		return nil, errors.New("split failed")
	}
	var active []uint16
	for g := range node.Mapping.IDToPos {
		if _, ok := node.Mapping.Column(uint16(g)); ok {
			active = append(active, uint16(g))
		}
	}
	if len(active) < 2 {
		return nil, nil
	}
	halves := [][]uint16{active[:len(active)/2], active[len(active)/2:]}
	var out []*Mapping
	for _, half := range halves {
		m := node.Mapping.Clone()
		for g := range m.IDToPos {
			m.ExcludeGroup(uint16(g))
		}
		for col, g := range half {
			m.SetColumn(g, uint32(col))
		}
		out = append(out, m)
	}
	return out, nil
}

func TestHierarchy(t *testing.T) {
	h := Hierarchy{
		Filter:       newTestFilter(t, DefaultOpts),
		SeqErrorRate: 0.01,
		Parallelism:  2,
	}
	ctx := context.Background()
	root, err := h.Run(ctx, fourCellPileup(), Identity(4), halvingSplitter{fail: "-"})
	assert.NoError(t, err)
	var markers []string
	root.Walk(func(n *Node) { markers = append(markers, n.Marker) })
	expect.EQ(t, markers, []string{"", "A", "B"})
	expect.EQ(t, root.Result.NumKept, 3)
	expect.EQ(t, root.Children[0].Result.NumKept, 0)
	expect.True(t, root.Children[1].Parent == root)
	expect.EQ(t, root.Children[1].Depth, 1)

	h.MaxDepth = 0
	h.MinCoverage = 1000
	root, err = h.Run(ctx, fourCellPileup(), Identity(4), halvingSplitter{fail: "-"})
	assert.NoError(t, err)
	expect.EQ(t, len(root.Children), 0)

	h.MinCoverage = 0
	_, err = h.Run(ctx, fourCellPileup(), Identity(4), halvingSplitter{fail: ""})
	expect.True(t, err != nil)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = h.Run(cancelled, fourCellPileup(), Identity(4), halvingSplitter{fail: "-"})
	expect.True(t, err != nil)
}

func TestChildMarker(t *testing.T) {
	expect.EQ(t, ChildMarker("", 0), "A")
	expect.EQ(t, ChildMarker("A", 1), "AB")
	expect.EQ(t, ChildMarker("BA", 0), "BAA")
	expect.EQ(t, ChildMarker("A", 30), "A[30]")
}
