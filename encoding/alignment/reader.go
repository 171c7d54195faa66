// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package alignment decodes coordinate-sorted SAM and BAM files into
// record.Records.
package alignment

import (
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/biosweep/interval"
	"github.com/grailbio/biosweep/record"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"github.com/klauspost/compress/gzip"
)

// UnmappedSeqid is the seqid given to records without a reference.
const UnmappedSeqid = "*"

// FromSAM converts a sam.Record.  Mapped records get the 0-based half-open
// interval [Pos, End()); unplaced records get UnmappedSeqid and an empty
// interval.
func FromSAM(r *sam.Record, rec *record.Record) {
	*rec = record.Record{
		Name:     r.Name,
		MapQ:     uint32(r.MapQ),
		Unmapped: r.Flags&sam.Unmapped != 0,
	}
	rec.Coords = interval.ZeroBasedHalfOpen
	if r.Ref == nil || r.Pos < 0 {
		rec.Seqid = UnmappedSeqid
		rec.Unmapped = true
		return
	}
	rec.Seqid = r.Ref.Name()
	rec.Start = uint64(r.Pos)
	end := r.End()
	if end < r.Pos {
		end = r.Pos
	}
	rec.End = uint64(end)
}

type samReader interface {
	Read() (*sam.Record, error)
}

// Reader yields alignments from a SAM or BAM stream.
type Reader struct {
	header *sam.Header
	in     samReader
	bamr   *bam.Reader
}

// NewSAMReader reads SAM text from r.
func NewSAMReader(r io.Reader) (*Reader, error) {
	sr, err := sam.NewReader(r)
	if err != nil {
		return nil, errors.E(err, "alignment.NewSAMReader")
	}
	return &Reader{header: sr.Header(), in: sr}, nil
}

// NewBAMReader reads BAM from r.
func NewBAMReader(r io.Reader) (*Reader, error) {
	br, err := bam.NewReader(r, 1)
	if err != nil {
		return nil, errors.E(err, "alignment.NewBAMReader")
	}
	return &Reader{header: br.Header(), in: br, bamr: br}, nil
}

// Header returns the SAM header.
func (r *Reader) Header() *sam.Header { return r.header }

// Read decodes the next alignment into rec.  It returns io.EOF at the end of
// the stream.
func (r *Reader) Read(rec *record.Record) error {
	sr, err := r.in.Read()
	if err != nil {
		if err == io.EOF {
			return err
		}
		return errors.E(err, "alignment.Reader.Read")
	}
	FromSAM(sr, rec)
	sam.PutInFreePool(sr)
	return nil
}

// Close releases the BAM decompressor, if any.
func (r *Reader) Close() error {
	if r.bamr != nil {
		return r.bamr.Close()
	}
	return nil
}

// File is a Reader over a file opened by path.
type File struct {
	*Reader
	f file.File
}

// Open opens a SAM, gzipped SAM, or BAM file.  BAM is recognized by the
// ".bam" extension.
func Open(ctx context.Context, path string) (*File, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "alignment.Open", path)
	}
	var (
		in io.Reader = f.Reader(ctx)
		r  *Reader
	)
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".bam"):
		r, err = NewBAMReader(in)
	default:
		if fileio.DetermineType(path) == fileio.Gzip {
			var gz *gzip.Reader
			if gz, err = gzip.NewReader(in); err != nil {
				break
			}
			in = gz
		}
		if err == nil {
			r, err = NewSAMReader(in)
		}
	}
	if err != nil {
		_ = f.Close(ctx)
		return nil, errors.E(err, "alignment.Open", path)
	}
	return &File{Reader: r, f: f}, nil
}

// Close closes the decoder and the underlying file.
func (f *File) Close(ctx context.Context) error {
	err := f.Reader.Close()
	if cerr := f.f.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
