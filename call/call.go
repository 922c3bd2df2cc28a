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

// Package call genotypes every cluster of cells at every pileup position and
// hands the calls to an output sink.
package call

import (
	"context"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/scgeno/genotype"
	"github.com/grailbio/scgeno/pileup"
	"github.com/grailbio/scgeno/vcf"
	"github.com/pkg/errors"
)

// Sink receives one record per (position, cluster) pair.
type Sink interface {
	Write(rec *Record) error
}

// CoordMapper translates synthetic-genome positions to haploid-reference
// positions; *varsim.Map implements it.
type CoordMapper interface {
	Translate(contig string, pos uint32) (uint32, bool)
}

// Reference supplies reference bases; *reference.Reference implements it.
type Reference interface {
	// Base returns the ASCII base at a pileup position.
	Base(chrID int, pos uint32) byte
	// Contig returns the contig name used for coordinate translation.
	Contig(chrID int) string
	// Truth returns the synthetic genome's genotype at a reference position.
	Truth(chrID int, refPos uint32) (genotype.Genotype, bool)
}

// Record is one emitted genotype call.
type Record = vcf.Record

// Stats summarizes a VariantCalling run.
type Stats struct {
	NumPositions int
	NumRecords   int
	NumNoCall    int
	// Untranslatable counts positions inside synthetic-only insertions,
	// which have no reference coordinate and produce no records.
	Untranslatable int
}

// clusterIndex maps cluster IDs to dense indices.
type clusterIndex struct {
	ids    []uint16 // sorted distinct cluster IDs
	ofCell []int    // cell ID -> index into ids
}

func newClusterIndex(clusters []uint16) clusterIndex {
	seen := map[uint16]bool{}
	var ci clusterIndex
	for _, c := range clusters {
		if !seen[c] {
			seen[c] = true
			ci.ids = append(ci.ids, c)
		}
	}
	sort.Slice(ci.ids, func(i, j int) bool { return ci.ids[i] < ci.ids[j] })
	pos := map[uint16]int{}
	for i, c := range ci.ids {
		pos[c] = i
	}
	ci.ofCell = make([]int, len(clusters))
	for cellID, c := range clusters {
		ci.ofCell[cellID] = pos[c]
	}
	return ci
}

// ClusterIDs returns the sorted distinct values of clusters.
func ClusterIDs(clusters []uint16) []uint16 {
	return newClusterIndex(clusters).ids
}

// VariantCalling calls the most likely genotype of each cluster at each
// position of p.  clusters[cellID] is the cluster of each cell.  When
// opts.Diploid is set, positions are translated through cm (nil means
// identity) before being written.  Only HeteroPrior, Theta and Diploid are
// read from opts.
func VariantCalling(ctx context.Context, p pileup.Pileup, clusters []uint16, ref Reference, cm CoordMapper, sink Sink, opts *Opts) (stats Stats, err error) {
	caller, err := genotype.NewCaller(opts.HeteroPrior, opts.Theta)
	if err != nil {
		return
	}
	ci := newClusterIndex(clusters)
	local := make([]pileup.BaseTotals, len(ci.ids))
	for chrID, rows := range p {
		if len(rows) == 0 {
			continue
		}
		if err = ctx.Err(); err != nil {
			return
		}
		contig := ref.Contig(chrID)
		log.Debug.Printf("VariantCalling: chromosome %s (%d positions)", contig, len(rows))
		for i := range rows {
			row := &rows[i]
			stats.NumPositions++
			refPos := row.Pos
			if opts.Diploid && cm != nil {
				var ok bool
				if refPos, ok = cm.Translate(contig, row.Pos); !ok {
					stats.Untranslatable++
					continue
				}
			}
			for j := range local {
				local[j] = pileup.BaseTotals{}
			}
			var pooled pileup.BaseTotals
			for _, cd := range row.Cells {
				if int(cd.CellID) >= len(ci.ofCell) {
					err = errors.Errorf("VariantCalling: chromosome %s position %d has cell %d, but only %d cells have clusters", contig, row.Pos, cd.CellID, len(ci.ofCell))
					return
				}
				pooled.Add(cd.Counts)
				local[ci.ofCell[cd.CellID]].Add(cd.Counts)
			}
			site := caller.NewSite(pooled)
			truth, ok := ref.Truth(chrID, refPos)
			if !ok {
				truth = genotype.NoGenotype
			}
			rec := Record{
				ChrID: chrID,
				Pos:   refPos,
				Ref:   ref.Base(chrID, row.Pos),
				Truth: truth,
			}
			for j, cluster := range ci.ids {
				g, coverage, ok := site.Call(local[j])
				if !ok {
					stats.NumNoCall++
				}
				rec.Cluster = cluster
				rec.Genotype = g
				rec.Coverage = coverage
				if err = sink.Write(&rec); err != nil {
					return
				}
				stats.NumRecords++
			}
		}
	}
	log.Printf("VariantCalling: %d positions, %d records (%d without a call), %d untranslatable", stats.NumPositions, stats.NumRecords, stats.NumNoCall, stats.Untranslatable)
	return
}
