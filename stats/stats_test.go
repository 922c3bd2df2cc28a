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
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestLogFact(t *testing.T) {
	expect.EQ(t, LogFact(0), 0.0)
	expect.EQ(t, LogFact(1), 0.0)
	prev := 0.0
	for n := uint32(0); n < 20000; n++ {
		cur := LogFact(n)
		if cur < prev {
			t.Fatalf("LogFact(%d) = %v < LogFact(%d) = %v", n, cur, n-1, prev)
		}
		prev = cur
		want, _ := math.Lgamma(float64(n) + 1)
		if n > 1 {
			assert.InEpsilon(t, want, cur, 1e-10, "n=%d", n)
		}
	}
}

func TestLogFactBoundary(t *testing.T) {
	// Table and series must agree on both sides of the switch-over point.
	for _, n := range []uint32{logFactTableSize - 2, logFactTableSize - 1} {
		table := LogFact(n)
		series := stirling(float64(n))
		if rel := math.Abs(table-series) / table; rel >= 1e-6 {
			t.Errorf("n=%d: table %v vs series %v, relative error %v", n, table, series, rel)
		}
	}
	below := LogFact(logFactTableSize - 1)
	above := LogFact(logFactTableSize)
	assert.InEpsilon(t, below+math.Log(logFactTableSize), above, 1e-12)
}

func TestLogChoose(t *testing.T) {
	assert.InDelta(t, math.Log(10), LogChoose(5, 2), 1e-12)
	assert.InDelta(t, 0, LogChoose(1000, 0), 1e-9)
	assert.InDelta(t, 0, LogChoose(1000, 1000), 1e-9)
	assert.InEpsilon(t, LogChoose(3000, 1), math.Log(3000), 1e-9)
}

func TestLogBinomPMF(t *testing.T) {
	for _, tt := range []struct {
		n uint32
		p float64
	}{{10, 0.5}, {100, 0.01}, {990, 0.01 / 3}, {5000, 0.2}} {
		b := distuv.Binomial{N: float64(tt.n), P: tt.p}
		for k := uint32(0); k <= tt.n; k += 1 + tt.n/50 {
			assert.InDelta(t, b.LogProb(float64(k)), LogBinomPMF(k, tt.n, tt.p), 1e-6, "k=%d n=%d p=%v", k, tt.n, tt.p)
		}
	}
	expect.True(t, math.IsInf(LogBinomPMF(11, 10, 0.5), -1))
	expect.EQ(t, LogBinomPMF(0, 10, 0), 0.0)
	expect.True(t, math.IsInf(LogBinomPMF(1, 10, 0), -1))
}

func TestLogBinomUpperTail(t *testing.T) {
	for _, tt := range []struct {
		n uint32
		p float64
	}{{20, 0.5}, {100, 0.1}, {1000, 0.01 / 3}, {3000, 0.05}} {
		b := distuv.Binomial{N: float64(tt.n), P: tt.p}
		for k := uint32(1); k <= tt.n; k++ {
			want := b.Survival(float64(k) - 1)
			if want < 1e-8 {
				break
			}
			got := math.Exp(LogBinomUpperTail(k, tt.n, tt.p))
			assert.InEpsilon(t, want, got, 1e-6, "k=%d n=%d p=%v", k, tt.n, tt.p)
		}
	}
}

func TestLogBinomUpperTailEdges(t *testing.T) {
	expect.EQ(t, LogBinomUpperTail(0, 10, 0.3), 0.0)
	expect.EQ(t, LogBinomUpperTail(0, 0, 0.3), 0.0)
	expect.True(t, math.IsInf(LogBinomUpperTail(11, 10, 0.3), -1))
	expect.True(t, math.IsInf(LogBinomUpperTail(1, 10, 0), -1))
	expect.EQ(t, LogBinomUpperTail(10, 10, 1), 0.0)
	assert.InDelta(t, 10*math.Log(0.5), LogBinomUpperTail(10, 10, 0.5), 1e-9)
}

func TestLogBinomUpperTailMonotone(t *testing.T) {
	const n = 1000
	prev := 0.0
	for k := uint32(1); k <= n; k++ {
		cur := LogBinomUpperTail(k, n, 0.01/3)
		if cur > prev {
			t.Fatalf("tail increased from k=%d (%v) to k=%d (%v)", k-1, prev, k, cur)
		}
		prev = cur
	}
}
