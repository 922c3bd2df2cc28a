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

package call

import (
	"bufio"
	"context"
	"io"
	"runtime"
	"strconv"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/scgeno/filter"
	"github.com/grailbio/scgeno/pileup"
	"github.com/grailbio/scgeno/reference"
	"github.com/grailbio/scgeno/varsim"
	"github.com/grailbio/scgeno/vcf"
	"github.com/pkg/errors"
)

// Opts configures Run and VariantCalling.
type Opts struct {
	// Commandline options.
	PileupPath    string
	ClustersPath  string
	ReferencePath string
	MapPath       string
	OutDir        string
	HeteroPrior   float64
	Theta         float64
	SeqErrorRate  float64
	Alpha         float64
	Bonferroni    bool
	Parallelism   int
	Bgzip         bool
	SkipFilter    bool

	// Diploid is set by Run from the reference layout.
	Diploid bool
}

var DefaultOpts = Opts{
	HeteroPrior:  0.001,
	Theta:        0.001,
	SeqErrorRate: 0.001,
	Alpha:        filter.DefaultOpts.Alpha,
	Bonferroni:   filter.DefaultOpts.Bonferroni,
	Parallelism:  0,
	Bgzip:        false,
	SkipFilter:   false,
}

// ParseClusters reads a cluster assignment: line i holds the cluster ID of
// cell i.  Blank lines are not allowed except at the end.
func ParseClusters(r io.Reader) ([]uint16, error) {
	var clusters []uint16
	scanner := bufio.NewScanner(r)
	lineNum := 0
	blank := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			blank++
			continue
		}
		if blank > 0 {
			return nil, errors.Errorf("ParseClusters: blank line before line %d", lineNum)
		}
		c, err := strconv.ParseUint(line, 10, 16)
		if err != nil {
			return nil, errors.Wrapf(err, "ParseClusters: line %d", lineNum)
		}
		clusters = append(clusters, uint16(c))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return clusters, nil
}

// ReadClusters loads a (possibly compressed) cluster assignment file.
func ReadClusters(ctx context.Context, path string) (clusters []uint16, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	if clusters, err = ParseClusters(reader); err != nil {
		err = errors.Wrap(err, path)
	}
	return
}

// Run loads the pileup, cluster assignment, reference and coordinate map named
// in opts, drops positions that do not distinguish cells, calls a genotype for
// every cluster at every remaining position, and writes one VCF per cluster
// under opts.OutDir.
func Run(ctx context.Context, opts *Opts) (stats Stats, err error) {
	if opts.PileupPath == "" || opts.ClustersPath == "" || opts.ReferencePath == "" || opts.OutDir == "" {
		err = errors.New("call.Run: pileup, clusters, reference and output paths are required")
		return
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	var f *filter.Filter
	if !opts.SkipFilter {
		if f, err = filter.New(filter.Opts{Alpha: opts.Alpha, Bonferroni: opts.Bonferroni}); err != nil {
			return
		}
	}

	var clusters []uint16
	if clusters, err = ReadClusters(ctx, opts.ClustersPath); err != nil {
		return
	}
	var p pileup.Pileup
	if p, err = pileup.ReadFile(ctx, opts.PileupPath); err != nil {
		return
	}
	if nCells := p.NumCells(); nCells > len(clusters) {
		err = errors.Errorf("call.Run: pileup has %d cells, but %s assigns only %d", nCells, opts.ClustersPath, len(clusters))
		return
	}
	var m *varsim.Map
	if opts.MapPath != "" {
		if m, err = varsim.ReadMap(ctx, opts.MapPath); err != nil {
			return
		}
	}
	var ref *reference.Reference
	if ref, err = reference.Load(ctx, opts.ReferencePath, m); err != nil {
		return
	}
	callOpts := *opts
	callOpts.Diploid = ref.Diploid
	var cm CoordMapper
	if m != nil {
		cm = m
	} else if ref.Diploid {
		log.Printf("call.Run: diploid reference %s without a coordinate map; positions are not translated", opts.ReferencePath)
	}

	if f != nil {
		var res filter.Result
		if res, err = f.Filter(p, filter.Identity(len(clusters)), "", opts.SeqErrorRate, parallelism); err != nil {
			return
		}
		p = res.Pileup
	}

	var w *vcf.Writer
	if w, err = vcf.NewWriter(ctx, opts.OutDir, ClusterIDs(clusters), vcf.Opts{
		Bgzip:       opts.Bgzip,
		Parallelism: parallelism,
		Source:      vcf.DefaultOpts.Source,
	}); err != nil {
		return
	}
	defer func() {
		if e := w.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return VariantCalling(ctx, p, clusters, ref, cm, w, &callOpts)
}
