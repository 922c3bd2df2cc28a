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

// Package genotype implements the error-aware homozygosity test and the
// per-cluster most-likely-genotype caller.
package genotype

import (
	"github.com/grailbio/scgeno/pileup"
)

// Genotype is an unordered pair of A/C/G/T alleles, encoded as its index in
// AA, AC, AG, AT, CC, CG, CT, GG, GT, TT order.
type Genotype uint8

// NGenotype is the number of distinct diploid genotypes.
const NGenotype = 10

// NoGenotype marks the absence of a confident call where a Genotype value
// must be stored.  Functions in this package report absence through a
// separate bool instead.
const NoGenotype Genotype = 0xff

// New returns the genotype with alleles a1 and a2 (pileup.BaseA ..
// pileup.BaseT, in either order).
func New(a1, a2 byte) Genotype {
	if a1 > a2 {
		a1, a2 = a2, a1
	}
	return Genotype(a1*pileup.NBase - a1*(a1-1)/2 + (a2 - a1))
}

var alleleTable = func() (t [NGenotype][2]byte) {
	for a1 := byte(0); a1 < pileup.NBase; a1++ {
		for a2 := a1; a2 < pileup.NBase; a2++ {
			t[New(a1, a2)] = [2]byte{a1, a2}
		}
	}
	return
}()

// Alleles returns the two alleles of g, lower base first.  It returns
// (pileup.NBase, pileup.NBase) for NoGenotype and other out-of-range values.
func (g Genotype) Alleles() (byte, byte) {
	if g >= NGenotype {
		return pileup.NBase, pileup.NBase
	}
	a := alleleTable[g]
	return a[0], a[1]
}

// IsHomozygous returns whether both alleles of g are the same base.
func (g Genotype) IsHomozygous() bool {
	if g >= NGenotype {
		return false
	}
	a1, a2 := g.Alleles()
	return a1 == a2
}

// String renders g as e.g. "A/C", or "./." for NoGenotype.
func (g Genotype) String() string {
	if g >= NGenotype {
		return "./."
	}
	a1, a2 := g.Alleles()
	return string([]byte{pileup.EnumToASCIITable[a1], '/', pileup.EnumToASCIITable[a2]})
}
