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
	"encoding/binary"
	"sort"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/scgeno/pileup"
	"github.com/pkg/errors"
)

// Result is the outcome of one Filter call.
type Result struct {
	// Pileup holds the kept rows, with the same chromosome indexing and row
	// order as the input.  Rows share their Cells slices with the input.
	Pileup pileup.Pileup
	// AvgCoverage is the kept-row coverage averaged over kept rows and active
	// groups; 0 if either is 0.
	AvgCoverage float64
	// CoverageSum is the total pooled coverage of the kept rows.
	CoverageSum uint64
	NumTested   int
	NumKept     int
}

// Fingerprint returns a checksum over the kept (chromosome, position) pairs
// and the coverage sum.  Two results with the same fingerprint kept the same
// rows in the same order.
func (r *Result) Fingerprint() uint64 {
	h := seahash.New()
	var buf [8]byte
	for chrID, rows := range r.Pileup {
		binary.LittleEndian.PutUint32(buf[:4], uint32(chrID))
		for i := range rows {
			binary.LittleEndian.PutUint32(buf[4:], rows[i].Pos)
			_, _ = h.Write(buf[:])
		}
	}
	binary.LittleEndian.PutUint64(buf[:], r.CoverageSum)
	_, _ = h.Write(buf[:])
	return h.Sum64()
}

// keptRow identifies a row of the input pileup.
type keptRow struct {
	chrID int
	idx   int
}

// jobResult is the private output buffer of one filter job.
type jobResult struct {
	kept        []keptRow
	coverageSum uint64
}

// Filter keeps the rows of p that are significant for the subcluster
// described by m, testing at sequencing error rate seqErrorRate.
//
// The rows are split into parallelism contiguous ranges, each processed by
// an independent job; results are concatenated in range order, so the
// output does not depend on parallelism.  Any job error fails the whole call.
// marker labels the subcluster in log messages.
func (f *Filter) Filter(p pileup.Pileup, m *Mapping, marker string, seqErrorRate float64, parallelism int) (Result, error) {
	if !validRate(seqErrorRate) {
		return Result{}, errors.Errorf("Filter(%q): sequencing error rate %v outside [0, 1]", marker, seqErrorRate)
	}
	if parallelism < 1 {
		return Result{}, errors.Errorf("Filter(%q): parallelism must be positive, got %d", marker, parallelism)
	}
	if err := m.Validate(); err != nil {
		return Result{}, errors.Wrapf(err, "Filter(%q)", marker)
	}

	// rowStarts[c] is the flattened index of the first row of chromosome c.
	rowStarts := make([]int, len(p)+1)
	for chrID, rows := range p {
		rowStarts[chrID+1] = rowStarts[chrID] + len(rows)
	}
	nRow := rowStarts[len(p)]
	result := Result{
		Pileup:    make(pileup.Pileup, len(p)),
		NumTested: nRow,
	}
	if nRow == 0 {
		return result, nil
	}
	threshold := f.opts.Alpha
	if f.opts.Bonferroni {
		threshold /= float64(nRow)
	}
	if parallelism > nRow {
		parallelism = nRow
	}

	jobResults := make([]jobResult, parallelism)
	err := traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * nRow) / parallelism
		endIdx := ((jobIdx + 1) * nRow) / parallelism
		// Chromosome containing row startIdx.
		chrID := sort.Search(len(p), func(c int) bool { return rowStarts[c+1] > startIdx })
		jr := &jobResults[jobIdx]
		for flatIdx := startIdx; flatIdx < endIdx; flatIdx++ {
			for flatIdx >= rowStarts[chrID+1] {
				chrID++
			}
			idx := flatIdx - rowStarts[chrID]
			pooled, err := m.pool(&p[chrID][idx])
			if err != nil {
				return errors.Wrapf(err, "chromosome %s", pileup.ChromosomeName(chrID))
			}
			if isSignificant(pooled, seqErrorRate, threshold) {
				jr.kept = append(jr.kept, keptRow{chrID: chrID, idx: idx})
				jr.coverageSum += uint64(pooled.Total())
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, errors.Wrapf(err, "Filter(%q)", marker)
	}

	// Ordered merge.
	for i := range jobResults {
		jr := &jobResults[i]
		for _, k := range jr.kept {
			result.Pileup[k.chrID] = append(result.Pileup[k.chrID], p[k.chrID][k.idx])
		}
		result.NumKept += len(jr.kept)
		result.CoverageSum += jr.coverageSum
	}
	if nActive := m.NumActive(); result.NumKept > 0 && nActive > 0 {
		result.AvgCoverage = float64(result.CoverageSum) / (float64(result.NumKept) * float64(nActive))
	}
	log.Printf("Filter(%q): kept %d of %d positions, average coverage %.3f", marker, result.NumKept, nRow, result.AvgCoverage)
	log.Debug.Printf("Filter(%q): %d jobs, fingerprint %016x", marker, parallelism, result.Fingerprint())
	return result, nil
}
