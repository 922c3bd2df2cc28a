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
package genotype

import (
	"math"

	"github.com/grailbio/scgeno/pileup"
	"github.com/grailbio/scgeno/stats"
	"github.com/pkg/errors"
)

// logLikelihood returns the multinomial log-likelihood of counts when each
// read shows base b with probability probs[b].
func logLikelihood(counts pileup.BaseTotals, coverage uint32, probs *[pileup.NBase]float64) float64 {
	ll := stats.LogFact(coverage)
	for b, c := range counts {
		ll += stats.XLogY(c, probs[b]) - stats.LogFact(c)
	}
	return ll
}

// MostLikely returns the most likely genotype of a cluster with base counts
// local at a locus whose pooled (all-cluster) counts are pooled, along with
// the cluster's coverage.
//
// pooledOrder must be pooled.RankOrder().  Only the two most frequent pooled
// bases are allele candidates, which leaves three hypotheses: homozygous
// major, heterozygous, homozygous minor.  The heterozygous one gets prior
// heteroPrior, each homozygous one (1-heteroPrior)/2.  Ties go to the
// earlier hypothesis in that list.  When pooledIsHomozygous is set the call
// is homozygous major without evaluating likelihoods.
//
// ok is false iff local has no reads.
func MostLikely(local, pooled pileup.BaseTotals, pooledOrder [pileup.NBase]int, pooledIsHomozygous bool, heteroPrior, theta float64) (g Genotype, coverage uint32, ok bool) {
	coverage = local.Total()
	if coverage == 0 {
		return NoGenotype, 0, false
	}
	major := byte(pooledOrder[pileup.NBase-1])
	minor := byte(pooledOrder[pileup.NBase-2])
	homMajor := New(major, major)
	if pooledIsHomozygous {
		return homMajor, coverage, true
	}

	errP := theta / 3
	var homMajorP, homMinorP, hetP [pileup.NBase]float64
	for b := range homMajorP {
		homMajorP[b], homMinorP[b], hetP[b] = errP, errP, errP
	}
	homMajorP[major] = 1 - theta
	homMinorP[minor] = 1 - theta
	hetP[major] = 0.5 - errP
	hetP[minor] = 0.5 - errP

	logHomPrior := math.Log((1 - heteroPrior) / 2)
	logHetPrior := math.Log(heteroPrior)
	candidates := [3]struct {
		g     Genotype
		score float64
	}{
		{homMajor, logHomPrior + logLikelihood(local, coverage, &homMajorP)},
		{New(major, minor), logHetPrior + logLikelihood(local, coverage, &hetP)},
		{New(minor, minor), logHomPrior + logLikelihood(local, coverage, &homMinorP)},
	}
	best := 0
	for i := 1; i < len(candidates); i++ {
		if candidates[i].score > candidates[best].score {
			best = i
		}
	}
	return candidates[best].g, coverage, true
}

// Caller holds the calling parameters shared by every locus of a run.
type Caller struct {
	// HeteroPrior is the prior probability that a locus is heterozygous.
	HeteroPrior float64
	// Theta is the sequencing error rate.
	Theta float64
}

// NewCaller validates the calling parameters.
func NewCaller(heteroPrior, theta float64) (*Caller, error) {
	if !(heteroPrior >= 0 && heteroPrior <= 1) {
		return nil, errors.Errorf("genotype.NewCaller: hetero prior %v outside [0, 1]", heteroPrior)
	}
	if !(theta >= 0 && theta <= 1) {
		return nil, errors.Errorf("genotype.NewCaller: error rate %v outside [0, 1]", theta)
	}
	return &Caller{HeteroPrior: heteroPrior, Theta: theta}, nil
}

// Site caches the pooled-count summary of one locus so that it is computed
// once per position rather than once per cluster.
type Site struct {
	caller       *Caller
	Pooled       pileup.BaseTotals
	Order        [pileup.NBase]int
	IsHomozygous bool
}

// NewSite summarizes the pooled counts of a locus.
func (c *Caller) NewSite(pooled pileup.BaseTotals) Site {
	_, homozygous := LikelyHomozygous(pooled, c.Theta)
	return Site{
		caller:       c,
		Pooled:       pooled,
		Order:        pooled.RankOrder(),
		IsHomozygous: homozygous,
	}
}

// Call returns the most likely genotype of a cluster with counts local at
// this site; see MostLikely.
func (s *Site) Call(local pileup.BaseTotals) (Genotype, uint32, bool) {
	return MostLikely(local, s.Pooled, s.Order, s.IsHomozygous, s.caller.HeteroPrior, s.caller.Theta)
}
