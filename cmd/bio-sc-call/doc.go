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

/*
Given a per-cell base-count pileup and an assignment of cells to clusters,
bio-sc-call writes one VCF per cluster holding the most likely genotype of
that cluster at every informative position.

A position is informative when the reads pooled over all cells cannot be
explained by a single genotype plus sequencing error (see -alpha,
-bonferroni and -seq-error-rate).  Each cluster is then called among the two
most frequent pooled alleles, weighting the heterozygous hypothesis by
-hetero-prior.

When the reference is a synthetic diploid genome (contigs named
<chr>_maternal and <chr>_paternal), positions are translated to the haploid
reference through the Varsim map given by -map, and the true genotype is
reported in the TRUTH INFO field.

Sample usage:
bio-sc-call \
    -pileup cells.pileup \
    -clusters clusters.txt \
    -reference ref.fa \
    -out calls
*/
package main
