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
package pileup

import (
	"context"
	"encoding/binary"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/pkg/errors"
)

func init() {
	recordiozstd.Init()
}

// fileRow is the unit stored in a pileup file: a PosData tagged with its
// chromosome.
type fileRow struct {
	chrID uint32
	row   *PosData
}

// cutAndAdvance() returns s[offset:offset+pieceLen], and increments offset by
// pieceLen.
func cutAndAdvance(offset *int, s []byte, pieceLen int) []byte {
	tmpSlice := s[(*offset):]
	*offset += pieceLen
	return tmpSlice[:pieceLen]
}

// Serialized format:
//   [0..4): chromosome ID
//   [4..8): pos
//   [8..12): number of cells n
//   then n 10-byte entries: cell ID (2 bytes) followed by the A/C/G/T counts
//   (2 bytes each).
// All integers are little-endian.  The file-level "zstd" transformer takes
// care of the redundancy in the mostly-zero counts.
func marshalFileRow(scratch []byte, p interface{}) ([]byte, error) {
	fr := p.(*fileRow)
	bytesReq := 12 + 10*len(fr.row.Cells)
	t := scratch
	if len(t) < bytesReq {
		t = make([]byte, bytesReq)
	}
	t = t[:bytesReq]
	offset := 0
	tStart := cutAndAdvance(&offset, t, 12)
	binary.LittleEndian.PutUint32(tStart[0:4], fr.chrID)
	binary.LittleEndian.PutUint32(tStart[4:8], fr.row.Pos)
	binary.LittleEndian.PutUint32(tStart[8:12], uint32(len(fr.row.Cells)))
	for _, cd := range fr.row.Cells {
		dst := cutAndAdvance(&offset, t, 10)
		binary.LittleEndian.PutUint16(dst[0:2], cd.CellID)
		binary.LittleEndian.PutUint16(dst[2:4], cd.Counts[BaseA])
		binary.LittleEndian.PutUint16(dst[4:6], cd.Counts[BaseC])
		binary.LittleEndian.PutUint16(dst[6:8], cd.Counts[BaseG])
		binary.LittleEndian.PutUint16(dst[8:10], cd.Counts[BaseT])
	}
	return t, nil
}

func unmarshalFileRow(in []byte) (out interface{}, err error) {
	if len(in) < 12 {
		return nil, errors.Errorf("pileup: truncated record (%d bytes)", len(in))
	}
	offset := 0
	inStart := cutAndAdvance(&offset, in, 12)
	fr := &fileRow{
		chrID: binary.LittleEndian.Uint32(inStart[0:4]),
		row: &PosData{
			Pos: binary.LittleEndian.Uint32(inStart[4:8]),
		},
	}
	nCell := int(binary.LittleEndian.Uint32(inStart[8:12]))
	if len(in) != 12+10*nCell {
		return nil, errors.Errorf("pileup: record length %d inconsistent with %d cells", len(in), nCell)
	}
	fr.row.Cells = make([]CellData, nCell)
	for i := range fr.row.Cells {
		src := cutAndAdvance(&offset, in, 10)
		cd := &fr.row.Cells[i]
		cd.CellID = binary.LittleEndian.Uint16(src[0:2])
		cd.Counts[BaseA] = binary.LittleEndian.Uint16(src[2:4])
		cd.Counts[BaseC] = binary.LittleEndian.Uint16(src[4:6])
		cd.Counts[BaseG] = binary.LittleEndian.Uint16(src[6:8])
		cd.Counts[BaseT] = binary.LittleEndian.Uint16(src[8:10])
	}
	return fr, nil
}

// WriteFile saves p to path as a zstd-compressed recordio file.
func WriteFile(ctx context.Context, p Pileup, path string) (err error) {
	var out file.File
	if out, err = file.Create(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Marshal:      marshalFileRow,
		Transformers: []string{recordiozstd.Name},
	})
	for chrID := range p {
		rows := p[chrID]
		for i := range rows {
			w.Append(&fileRow{chrID: uint32(chrID), row: &rows[i]})
		}
	}
	return w.Finish()
}

// ReadFile loads a pileup written by WriteFile.  Rows must appear in
// (chromosome, position) order within each chromosome.
func ReadFile(ctx context.Context, path string) (p Pileup, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, in, &err)
	scanner := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{
		Unmarshal: unmarshalFileRow,
	})
	defer func() {
		if e := scanner.Finish(); e != nil && err == nil {
			err = errors.Wrapf(e, "pileup.ReadFile: %s", path)
		}
	}()
	p = make(Pileup, NChromosome)
	nRow := 0
	for scanner.Scan() {
		fr := scanner.Get().(*fileRow)
		if fr.chrID >= NChromosome {
			err = errors.Errorf("pileup.ReadFile: %s: invalid chromosome ID %d", path, fr.chrID)
			return
		}
		rows := p[fr.chrID]
		if n := len(rows); n != 0 && rows[n-1].Pos >= fr.row.Pos {
			err = errors.Errorf("pileup.ReadFile: %s: chromosome %s position %d follows %d", path, ChromosomeName(int(fr.chrID)), fr.row.Pos, rows[n-1].Pos)
			return
		}
		p[fr.chrID] = append(rows, *fr.row)
		nRow++
	}
	if err = scanner.Err(); err != nil {
		err = errors.Wrapf(err, "pileup.ReadFile: %s", path)
		return
	}
	log.Debug.Printf("pileup.ReadFile: read %d rows from %s", nRow, path)
	return
}
