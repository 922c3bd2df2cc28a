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

// Package reference loads the genome that variants are called against.  Two
// layouts are supported: an ordinary haploid FASTA, and a Varsim synthetic
// diploid FASTA whose contigs come in "<n>_maternal"/"<n>_paternal" pairs.
package reference

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/scgeno/genotype"
	"github.com/grailbio/scgeno/pileup"
	"github.com/grailbio/scgeno/varsim"
	"github.com/pkg/errors"
)

const (
	bufferInitSize = 1024 * 1024 * 300 // 300 MB

	maternalSuffix = "_maternal"
	paternalSuffix = "_paternal"
)

// IsDiploid reports whether the FASTA data in r uses the Varsim diploid
// layout, i.e. whether its first contig name contains "maternal" (Varsim
// calls the first contig ">1_maternal").
func IsDiploid(r io.Reader) (bool, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] != '>' {
			return false, errors.Errorf("reference.IsDiploid: FASTA data doesn't start with a '>' header")
		}
		return bytes.Contains(line, []byte("maternal")), nil
	}
	if err := scanner.Err(); err != nil {
		return false, errors.Wrap(err, "reference.IsDiploid")
	}
	return false, errors.Errorf("reference.IsDiploid: empty FASTA data")
}

// Chromosome is one chromosome of the reference.
type Chromosome struct {
	// Contig is the FASTA contig name the pileup positions refer to, and the
	// key for coordinate-map lookups.
	Contig string
	// Seq is the contig's sequence in pileup coordinates.
	Seq []byte
	// Truth holds the maternal and paternal contigs projected onto
	// haploid-reference coordinates.  Only set for diploid references.
	Truth [2][]byte
}

// Reference is a loaded genome, indexed by chromosome ID.
type Reference struct {
	Diploid     bool
	Chromosomes [pileup.NChromosome]*Chromosome
}

// Base returns the ASCII reference base at a pileup position, or 'N' if the
// chromosome or position is unknown.
func (r *Reference) Base(chrID int, pos uint32) byte {
	if chrID < 0 || chrID >= pileup.NChromosome {
		return 'N'
	}
	c := r.Chromosomes[chrID]
	if c == nil || int(pos) >= len(c.Seq) {
		return 'N'
	}
	return c.Seq[pos]
}

// Contig returns the contig name of a chromosome, falling back to its
// canonical name.
func (r *Reference) Contig(chrID int) string {
	if c := r.Chromosomes[chrID]; c != nil {
		return c.Contig
	}
	return pileup.ChromosomeName(chrID)
}

// Truth returns the genotype the synthetic genome carries at a
// haploid-reference position.  It returns false for haploid references and
// positions where either haplotype has no A/C/G/T base.
func (r *Reference) Truth(chrID int, refPos uint32) (genotype.Genotype, bool) {
	if !r.Diploid {
		return genotype.NoGenotype, false
	}
	c := r.Chromosomes[chrID]
	if c == nil || int(refPos) >= len(c.Truth[0]) || int(refPos) >= len(c.Truth[1]) {
		return genotype.NoGenotype, false
	}
	a1 := pileup.ASCIIToEnum(c.Truth[0][refPos])
	a2 := pileup.ASCIIToEnum(c.Truth[1][refPos])
	if a1 == pileup.NBase || a2 == pileup.NBase {
		return genotype.NoGenotype, false
	}
	return genotype.New(a1, a2), true
}

// readContigs calls fn with the name and (upper-cased) sequence of every
// FASTA record in r, in file order.
func readContigs(r io.Reader, fn func(name string, seq []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)
	var name string
	var seq []byte
	started := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' { // Start a new sequence.
			if started {
				if err := fn(name, seq); err != nil {
					return err
				}
			}
			name = strings.Split(string(line[1:]), " ")[0]
			seq = nil
			started = true
			continue
		}
		if !started {
			return errors.Errorf("malformed FASTA file")
		}
		seq = append(seq, bytes.ToUpper(line)...)
	}
	if scanner.Err() != nil {
		return errors.Wrap(scanner.Err(), "couldn't read FASTA data")
	}
	if started {
		return fn(name, seq)
	}
	return nil
}

// New builds a Reference from FASTA data.  With a diploid layout, pileup
// positions are taken to refer to the maternal contigs, and m (which may be
// nil) is used to project both haplotypes onto reference coordinates.
func New(r io.Reader, diploid bool, m *varsim.Map) (*Reference, error) {
	ref := &Reference{Diploid: diploid}
	var paternal [pileup.NChromosome][]byte
	err := readContigs(r, func(name string, seq []byte) error {
		chrID, err := pileup.ChromosomeID(name)
		if err != nil {
			log.Debug.Printf("reference.New: skipping contig %s", name)
			return nil
		}
		isPaternal := strings.HasSuffix(name, paternalSuffix)
		if diploid && isPaternal {
			paternal[chrID] = seq
			return nil
		}
		if diploid && !strings.HasSuffix(name, maternalSuffix) {
			return errors.Errorf("reference.New: contig %s is neither maternal nor paternal", name)
		}
		if ref.Chromosomes[chrID] != nil {
			return errors.Errorf("reference.New: duplicate contig %s", name)
		}
		ref.Chromosomes[chrID] = &Chromosome{Contig: name, Seq: seq}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !diploid {
		return ref, nil
	}
	for chrID, c := range ref.Chromosomes {
		if c == nil {
			continue
		}
		pat := paternal[chrID]
		if pat == nil {
			// chrX/chrY of a male genome have no paternal/maternal partner.
			log.Debug.Printf("reference.New: no paternal contig for %s", c.Contig)
			pat = c.Seq
		}
		patContig := strings.TrimSuffix(c.Contig, maternalSuffix) + paternalSuffix
		if m != nil {
			c.Truth[0] = varsim.ApplyMap(m.Events(c.Contig), c.Seq)
			c.Truth[1] = varsim.ApplyMap(m.Events(patContig), pat)
		} else {
			c.Truth[0], c.Truth[1] = c.Seq, pat
		}
	}
	return ref, nil
}

// Load reads a (possibly compressed) FASTA file, detecting its layout with
// IsDiploid.
func Load(ctx context.Context, path string, m *varsim.Map) (ref *Reference, err error) {
	var diploid bool
	if err = withReader(ctx, path, func(r io.Reader) (e error) {
		diploid, e = IsDiploid(r)
		return
	}); err != nil {
		return
	}
	if err = withReader(ctx, path, func(r io.Reader) (e error) {
		ref, e = New(r, diploid, m)
		return
	}); err != nil {
		return
	}
	log.Printf("reference.Load: loaded %s (diploid=%v)", path, diploid)
	return
}

func withReader(ctx context.Context, path string, fn func(io.Reader) error) (err error) {
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
	if err = fn(reader); err != nil {
		err = errors.Wrap(err, path)
	}
	return
}
