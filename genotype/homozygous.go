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
)

// dominantBase returns the base with the highest count, preferring the lower
// base index on ties.
func dominantBase(counts pileup.BaseTotals) byte {
	d := byte(0)
	for b := byte(1); b < pileup.NBase; b++ {
		if counts[b] > counts[d] {
			d = b
		}
	}
	return d
}

// LikelyHomozygous checks whether counts are explained by a single
// homozygous genotype plus sequencing errors at rate theta, and returns that
// genotype if so.
//
// All reads other than the dominant base are treated as errors.  Their
// number must not exceed the binomial expectation coverage*theta by more than
// one standard deviation.  Zero coverage is never homozygous.
func LikelyHomozygous(counts pileup.BaseTotals, theta float64) (Genotype, bool) {
	coverage := counts.Total()
	if coverage == 0 {
		return NoGenotype, false
	}
	d := dominantBase(counts)
	nErr := coverage - counts[d]
	if theta <= 0 {
		if nErr == 0 {
			return New(d, d), true
		}
		return NoGenotype, false
	}
	cov := float64(coverage)
	expected := cov * theta
	sd := math.Sqrt(cov * theta * (1 - theta))
	if float64(nErr) <= expected+sd {
		return New(d, d), true
	}
	return NoGenotype, false
}
