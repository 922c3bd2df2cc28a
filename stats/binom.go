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
package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// tailCutoff is how far (in nats) a binomial term must fall below the
// largest term seen before the upper-tail summation stops.
const tailCutoff = 40

// LogBinomPMF returns ln P[X == k] for X ~ Binomial(n, p).
func LogBinomPMF(k, n uint32, p float64) float64 {
	if k > n {
		return math.Inf(-1)
	}
	return LogChoose(n, k) + XLogY(k, p) + XLogY(n-k, 1-p)
}

// LogBinomUpperTail returns ln P[X >= k] for X ~ Binomial(n, p).
//
// Terms are summed upward from k in log space; past the mode they decrease
// geometrically, so summation stops once they are negligible.
func LogBinomUpperTail(k, n uint32, p float64) float64 {
	switch {
	case k == 0:
		return 0
	case k > n:
		return math.Inf(-1)
	case p <= 0:
		return math.Inf(-1)
	case p >= 1:
		return 0
	}
	logP := math.Log(p)
	log1mP := math.Log1p(-p)
	mode := math.Floor(float64(n+1) * p)
	logFactN := LogFact(n)
	terms := make([]float64, 0, 64)
	maxTerm := math.Inf(-1)
	for i := k; ; i++ {
		term := logFactN - LogFact(i) - LogFact(n-i) + float64(i)*logP + float64(n-i)*log1mP
		terms = append(terms, term)
		if term > maxTerm {
			maxTerm = term
		}
		if i == n || (float64(i) > mode && term < maxTerm-tailCutoff) {
			break
		}
	}
	if tail := floats.LogSumExp(terms); tail < 0 {
		return tail
	}
	return 0
}
