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
package main

/*
bio-sc-call genotypes clusters of single cells from a per-cell pileup.
*/

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/scgeno/call"
)

var (
	pileupPath    = flag.String("pileup", call.DefaultOpts.PileupPath, "Input per-cell pileup path (recordio)")
	clustersPath  = flag.String("clusters", call.DefaultOpts.ClustersPath, "Cluster assignment path; line i holds the cluster ID of cell i")
	referencePath = flag.String("reference", call.DefaultOpts.ReferencePath, "Reference FASTA path; a diploid layout (<chr>_maternal/<chr>_paternal) is detected automatically")
	mapPath       = flag.String("map", call.DefaultOpts.MapPath, "Varsim coordinate map path, used with a diploid reference")
	outDir        = flag.String("out", ".", "Output directory; one cluster_<id>.vcf per cluster is written there")
	heteroPrior   = flag.Float64("hetero-prior", call.DefaultOpts.HeteroPrior, "Prior probability that a locus is heterozygous")
	theta         = flag.Float64("theta", call.DefaultOpts.Theta, "Per-read sequencing error rate assumed by the genotype caller")
	seqErrorRate  = flag.Float64("seq-error-rate", call.DefaultOpts.SeqErrorRate, "Sequencing error rate assumed by the significance filter")
	alpha         = flag.Float64("alpha", call.DefaultOpts.Alpha, "Significance level for keeping a position")
	bonferroni    = flag.Bool("bonferroni", call.DefaultOpts.Bonferroni, "Divide -alpha by the number of positions tested")
	parallelism   = flag.Int("parallelism", call.DefaultOpts.Parallelism, "Maximum number of simultaneous filter and compression jobs; 0 = runtime.NumCPU()")
	bgzip         = flag.Bool("bgzip", call.DefaultOpts.Bgzip, "Write BGZF-compressed .vcf.gz files")
	skipFilter    = flag.Bool("skip-filter", call.DefaultOpts.SkipFilter, "Call every position, not only those that distinguish cells")
)

func bioSCCallUsage() {
	fmt.Printf("Usage: %s [OPTIONS] -pileup path -clusters path -reference path\n", os.Args[0])
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = bioSCCallUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() > 0 {
		log.Fatalf("Unexpected positional arguments; please check flag syntax: '%s'", strings.Join(flag.Args(), " "))
	}
	ctx := vcontext.Background()
	opts := call.Opts{
		PileupPath:    *pileupPath,
		ClustersPath:  *clustersPath,
		ReferencePath: *referencePath,
		MapPath:       *mapPath,
		OutDir:        *outDir,
		HeteroPrior:   *heteroPrior,
		Theta:         *theta,
		SeqErrorRate:  *seqErrorRate,
		Alpha:         *alpha,
		Bonferroni:    *bonferroni,
		Parallelism:   *parallelism,
		Bgzip:         *bgzip,
		SkipFilter:    *skipFilter,
	}
	if _, err := call.Run(ctx, &opts); err != nil {
		log.Panicf("%v", err)
	}
	log.Debug.Printf("exiting")
}
