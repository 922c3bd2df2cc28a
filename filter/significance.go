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
	"math"

	"github.com/grailbio/scgeno/genotype"
	"github.com/grailbio/scgeno/pileup"
	"github.com/grailbio/scgeno/stats"
	"github.com/pkg/errors"
)

// Opts controls the significance threshold.
type Opts struct {
	// Alpha is the rejection level of the "all cells share one genotype"
	// null hypothesis.
	Alpha float64
	// Bonferroni divides Alpha by the number of positions tested in each
	// Filter call.
	Bonferroni bool
}

// DefaultOpts is the default filter configuration.
var DefaultOpts = Opts{
	Alpha:      0.05,
	Bonferroni: true,
}

// Filter decides which positions are informative for splitting a subcluster.
type Filter struct {
	opts Opts
}

// New returns a Filter with the given options.
func New(opts Opts) (*Filter, error) {
	if !(opts.Alpha > 0 && opts.Alpha <= 1) {
		return nil, errors.Errorf("filter.New: alpha %v outside (0, 1]", opts.Alpha)
	}
	return &Filter{opts: opts}, nil
}

// minorLogPValue returns ln P[X >= k], where k is the second-highest count
// in counts and X ~ Binomial(coverage, theta/3) is the number of times
// sequencing errors alone would produce one particular wrong base.
func minorLogPValue(counts pileup.BaseTotals, theta float64) float64 {
	order := counts.RankOrder()
	minor := counts[order[pileup.NBase-2]]
	return stats.LogBinomUpperTail(minor, counts.Total(), theta/3)
}

func validRate(theta float64) bool {
	return theta >= 0 && theta <= 1
}

// isSignificant implements IsSignificant with an explicit rejection
// threshold.
func isSignificant(counts pileup.BaseTotals, theta, threshold float64) bool {
	if counts.Total() == 0 || !validRate(theta) {
		return false
	}
	// Pooled data consistent with one genotype plus noise carry no
	// information for subdividing.
	if _, ok := genotype.LikelyHomozygous(counts, theta); ok {
		return false
	}
	return minorLogPValue(counts, theta) < math.Log(threshold)
}

// IsSignificant returns whether the pooled base counts reject the null
// hypothesis that all cells share a single genotype and every deviation is a
// sequencing error at rate theta, at level Opts.Alpha (no multiple-testing
// correction).  A theta outside [0, 1] (or NaN) is never significant.
func (f *Filter) IsSignificant(counts pileup.BaseTotals, theta float64) bool {
	return isSignificant(counts, theta, f.opts.Alpha)
}

// IsSignificantRow pools the counts of the row's cells that belong to the
// subcluster described by m, and tests them as IsSignificant does.  It also
// returns the pooled coverage.
func (f *Filter) IsSignificantRow(row *pileup.PosData, m *Mapping, theta float64) (bool, uint32, error) {
	if !validRate(theta) {
		return false, 0, errors.Errorf("IsSignificantRow: sequencing error rate %v outside [0, 1]", theta)
	}
	pooled, err := m.pool(row)
	if err != nil {
		return false, 0, err
	}
	return isSignificant(pooled, theta, f.opts.Alpha), pooled.Total(), nil
}
