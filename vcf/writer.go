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

// Package vcf writes per-cluster genotype calls as VCF files.
package vcf

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/scgeno/genotype"
	"github.com/grailbio/scgeno/pileup"
	"github.com/pkg/errors"
)

// Record is one genotype call of one cluster at one position.
type Record struct {
	ChrID int
	// Pos is the 0-based position in output (haploid reference) coordinates.
	Pos uint32
	// Ref is the ASCII reference base, 'N' if unknown.
	Ref      byte
	Cluster  uint16
	Genotype genotype.Genotype
	Coverage uint32
	// Truth is the genotype of the synthetic genome, or NoGenotype.
	Truth genotype.Genotype
}

// Opts configures a Writer.
type Opts struct {
	// Bgzip selects BGZF-compressed .vcf.gz output.
	Bgzip bool
	// Parallelism is the number of BGZF compression goroutines.
	Parallelism int
	// Source is written to the ##source header line.
	Source string
}

// DefaultOpts is the default Writer configuration.
var DefaultOpts = Opts{
	Parallelism: 1,
	Source:      "bio-sc-call",
}

type clusterFile struct {
	path string
	f    file.File
	bgzw *bgzf.Writer
	tsvw *tsv.Writer
}

// Writer fans records out to one VCF file per cluster.
type Writer struct {
	ctx   context.Context
	files map[uint16]*clusterFile
}

// Path returns the path of the VCF file of a cluster.
func Path(outDir string, cluster uint16, bgzip bool) string {
	name := fmt.Sprintf("cluster_%d.vcf", cluster)
	if bgzip {
		name += ".gz"
	}
	return filepath.Join(outDir, name)
}

// NewWriter creates the VCF files of the given clusters under outDir and
// writes their headers.
func NewWriter(ctx context.Context, outDir string, clusters []uint16, opts Opts) (w *Writer, err error) {
	w = &Writer{ctx: ctx, files: map[uint16]*clusterFile{}}
	defer func() {
		if err != nil {
			_ = w.Close()
			w = nil
		}
	}()
	for _, cluster := range clusters {
		if _, ok := w.files[cluster]; ok {
			continue
		}
		cf := &clusterFile{path: Path(outDir, cluster, opts.Bgzip)}
		if cf.f, err = file.Create(ctx, cf.path); err != nil {
			return
		}
		w.files[cluster] = cf
		var dst io.Writer = cf.f.Writer(ctx)
		if opts.Bgzip {
			parallelism := opts.Parallelism
			if parallelism < 1 {
				parallelism = 1
			}
			cf.bgzw = bgzf.NewWriter(dst, parallelism)
			dst = cf.bgzw
		}
		cf.tsvw = tsv.NewWriter(dst)
		if err = writeHeader(cf.tsvw, opts.Source, cluster); err != nil {
			return
		}
	}
	return
}

func writeHeader(tsvw *tsv.Writer, source string, cluster uint16) error {
	lines := []string{
		"##fileformat=VCFv4.2",
		"##source=" + source,
		`##INFO=<ID=DP,Number=1,Type=Integer,Description="Read depth of the cluster">`,
		`##INFO=<ID=TRUTH,Number=1,Type=String,Description="Genotype of the synthetic genome">`,
		`##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">`,
		`##FORMAT=<ID=DP,Number=1,Type=Integer,Description="Read depth">`,
	}
	for id := 0; id < pileup.NChromosome; id++ {
		lines = append(lines, "##contig=<ID="+pileup.ChromosomeName(id)+">")
	}
	for _, line := range lines {
		tsvw.WriteString(line)
		if err := tsvw.EndLine(); err != nil {
			return err
		}
	}
	tsvw.WriteString("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT")
	tsvw.WriteString(fmt.Sprintf("cluster_%d", cluster))
	return tsvw.EndLine()
}

// alleleFields renders the ALT column and the GT value of a call against the
// reference base ref.
func alleleFields(g genotype.Genotype, ref byte) (alt, gt string) {
	if g >= genotype.NGenotype {
		return ".", "./."
	}
	a1, a2 := g.Alleles()
	alleles := [2]byte{pileup.EnumToASCIITable[a1], pileup.EnumToASCIITable[a2]}
	var alts []byte
	var idx [2]int
	for i, a := range alleles {
		if a == ref {
			continue
		}
		j := 0
		for j < len(alts) && alts[j] != a {
			j++
		}
		if j == len(alts) {
			alts = append(alts, a)
		}
		idx[i] = j + 1
	}
	if len(alts) == 0 {
		alt = "."
	} else {
		parts := make([]string, len(alts))
		for i, a := range alts {
			parts[i] = string(a)
		}
		alt = strings.Join(parts, ",")
	}
	if idx[0] > idx[1] {
		idx[0], idx[1] = idx[1], idx[0]
	}
	return alt, fmt.Sprintf("%d/%d", idx[0], idx[1])
}

// Write appends rec to its cluster's file.
func (w *Writer) Write(rec *Record) error {
	cf, ok := w.files[rec.Cluster]
	if !ok {
		return errors.Errorf("vcf.Writer: no output file for cluster %d", rec.Cluster)
	}
	alt, gt := alleleFields(rec.Genotype, rec.Ref)
	tsvw := cf.tsvw
	tsvw.WriteString(pileup.ChromosomeName(rec.ChrID)) // CHROM
	tsvw.WriteUint32(rec.Pos + 1)                      // POS (1-based in VCF text)
	tsvw.WriteByte('.')                                // ID
	tsvw.WriteByte(rec.Ref)
	tsvw.WriteString(alt)
	tsvw.WriteByte('.') // QUAL
	tsvw.WriteString("PASS")
	info := fmt.Sprintf("DP=%d", rec.Coverage)
	if rec.Truth != genotype.NoGenotype {
		info += ";TRUTH=" + rec.Truth.String()
	}
	tsvw.WriteString(info)
	tsvw.WriteString("GT:DP")
	tsvw.WriteString(fmt.Sprintf("%s:%d", gt, rec.Coverage))
	return tsvw.EndLine()
}

// Close flushes and closes every file.
func (w *Writer) Close() (err error) {
	clusters := make([]int, 0, len(w.files))
	for c := range w.files {
		clusters = append(clusters, int(c))
	}
	sort.Ints(clusters)
	for _, c := range clusters {
		cf := w.files[uint16(c)]
		if cf.tsvw != nil {
			if e := cf.tsvw.Flush(); e != nil && err == nil {
				err = e
			}
		}
		if cf.bgzw != nil {
			if e := cf.bgzw.Close(); e != nil && err == nil {
				err = e
			}
		}
		if e := cf.f.Close(w.ctx); e != nil && err == nil {
			err = e
		}
		delete(w.files, uint16(c))
	}
	if err == nil {
		log.Printf("vcf.Writer: wrote %d cluster files", len(clusters))
	}
	return
}
