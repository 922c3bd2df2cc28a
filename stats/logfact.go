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

// Package stats provides the log-space combinatorics used by the
// significance filter and genotype caller.
package stats

import "math"

// logFactTableSize is the first n for which LogFact switches from the table
// to Stirling's series.  At this size the truncated series is accurate to
// well below 1e-12 relative error.
const logFactTableSize = 256

var logFactTable [logFactTableSize]float64

func init() {
	for i := 2; i < logFactTableSize; i++ {
		logFactTable[i] = logFactTable[i-1] + math.Log(float64(i))
	}
}

// halfLog2Pi is 0.5 * ln(2*pi).
var halfLog2Pi = 0.5 * math.Log(2*math.Pi)

// LogFact returns ln(n!).
func LogFact(n uint32) float64 {
	if n < logFactTableSize {
		return logFactTable[n]
	}
	return stirling(float64(n))
}

// stirling evaluates ln(x!) with the first three correction terms of the
// Stirling series.
func stirling(x float64) float64 {
	inv := 1 / x
	inv2 := inv * inv
	return x*math.Log(x) - x + halfLog2Pi + 0.5*math.Log(x) +
		inv*(1.0/12-inv2*(1.0/360-inv2*(1.0/1260)))
}

// LogChoose returns ln(n choose k).  k must not exceed n.
func LogChoose(n, k uint32) float64 {
	return LogFact(n) - LogFact(k) - LogFact(n-k)
}

// XLogY returns x*ln(y), with the convention 0*ln(0) == 0.
func XLogY(x uint32, y float64) float64 {
	if x == 0 {
		return 0
	}
	return float64(x) * math.Log(y)
}
