// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package feature decodes sorted BED and GFF3 annotation files into
// record.Records, keeping track of the byte offset of every record so that
// the stream can be repositioned by a featureindex.Index.
package feature

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/biosweep/interval"
	"github.com/grailbio/biosweep/record"
)

// Format is an annotation file format.
type Format int

const (
	// UnknownFormat is returned by FormatFromPath for unrecognized names.
	UnknownFormat Format = iota
	// BED files carry 0-based half-open intervals.
	BED
	// GFF3 files carry 1-based inclusive intervals.
	GFF3
)

func (f Format) String() string {
	switch f {
	case BED:
		return "BED"
	case GFF3:
		return "GFF3"
	}
	return "unknown"
}

// FormatFromPath guesses the format from the file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bed":
		return BED
	case ".gff", ".gff3":
		return GFF3
	}
	return UnknownFormat
}

// Reader reads features from a seekable stream.  It is not safe for
// concurrent use, and Seek must not be called while a Read is in progress.
type Reader struct {
	format Format
	in     io.ReadSeeker
	br     *bufio.Reader
	// off is the stream offset of the next unread byte.
	off uint64
	// recOff is the offset of the line holding the last returned record.
	recOff uint64
	// done is set once a GFF3 ##FASTA section is reached.
	done   bool
	tokens [6][]byte
}

// NewReader returns a Reader positioned at the current offset of in, which is
// assumed to be 0.
func NewReader(in io.ReadSeeker, format Format) *Reader {
	return &Reader{
		format: format,
		in:     in,
		br:     bufio.NewReader(in),
	}
}

// Tell returns the offset of the next unread byte.
func (r *Reader) Tell() uint64 { return r.off }

// Offset returns the offset of the line holding the record most recently
// returned by Read.
func (r *Reader) Offset() uint64 { return r.recOff }

// Seek implements io.Seeker.  Only io.SeekStart and io.SeekCurrent are
// supported.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		if offset == 0 {
			return int64(r.off), nil
		}
		offset += int64(r.off)
	default:
		return 0, errors.E(errors.NotSupported, fmt.Sprintf("feature.Reader.Seek: whence %d", whence))
	}
	if offset < 0 {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("feature.Reader.Seek: negative offset %d", offset))
	}
	if _, err := r.in.Seek(offset, io.SeekStart); err != nil {
		return 0, errors.E(err, "feature.Reader.Seek")
	}
	r.br.Reset(r.in)
	r.off = uint64(offset)
	r.done = false
	return offset, nil
}

// Read returns the next feature, or io.EOF.
func (r *Reader) Read() (*record.Record, error) {
	for !r.done {
		lineOff := r.off
		line, err := r.br.ReadBytes('\n')
		r.off += uint64(len(line))
		if err != nil && err != io.EOF {
			return nil, errors.E(err, "feature.Reader.Read")
		}
		if len(line) == 0 && err == io.EOF {
			return nil, io.EOF
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}
		if line[0] == '#' {
			if r.format == GFF3 && bytes.HasPrefix(line, []byte("##FASTA")) {
				r.done = true
			}
			continue
		}
		if r.format == BED && (isBEDHeader(line, "track") || isBEDHeader(line, "browser")) {
			continue
		}
		var rec *record.Record
		switch r.format {
		case BED:
			rec, err = r.parseBED(line)
		case GFF3:
			rec, err = parseGFF3(line)
		default:
			err = errors.E(errors.NotSupported, fmt.Sprintf("feature.Reader: format %v", r.format))
		}
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("feature.Reader: offset %d", lineOff))
		}
		r.recOff = lineOff
		return rec, nil
	}
	return nil, io.EOF
}

// isBEDHeader reports whether line is a BED header line of the given kind,
// e.g. "track name=genes".
func isBEDHeader(line []byte, kind string) bool {
	if !bytes.HasPrefix(line, []byte(kind)) {
		return false
	}
	return len(line) == len(kind) || line[len(kind)] == ' ' || line[len(kind)] == '\t'
}

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

func parsePos(field []byte, what string) (uint64, error) {
	v, err := strconv.ParseUint(string(field), 10, 63)
	if err != nil {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("bad %s coordinate %q", what, field))
	}
	return v, nil
}

func (r *Reader) parseBED(line []byte) (*record.Record, error) {
	nToken := getTokens(r.tokens[:], line)
	if nToken < 3 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("BED line has %d tokens, at least 3 expected", nToken))
	}
	start, err := parsePos(r.tokens[1], "start")
	if err != nil {
		return nil, err
	}
	end, err := parsePos(r.tokens[2], "end")
	if err != nil {
		return nil, err
	}
	rec := &record.Record{
		GenomicInterval: interval.GenomicInterval{
			Seqid:  string(r.tokens[0]),
			Start:  start,
			End:    end,
			Coords: interval.ZeroBasedHalfOpen,
		},
	}
	if nToken > 3 {
		rec.Name = string(r.tokens[3])
	}
	if nToken > 5 {
		rec.Attributes = "strand=" + string(r.tokens[5])
	}
	if err := rec.Validate(); err != nil {
		return nil, errors.E(errors.Invalid, err)
	}
	return rec, nil
}

const nGFF3Column = 9

func parseGFF3(line []byte) (*record.Record, error) {
	cols := strings.Split(string(line), "\t")
	if len(cols) != nGFF3Column {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("GFF3 line has %d columns, %d expected", len(cols), nGFF3Column))
	}
	start, err := parsePos([]byte(cols[3]), "start")
	if err != nil {
		return nil, err
	}
	end, err := parsePos([]byte(cols[4]), "end")
	if err != nil {
		return nil, err
	}
	rec := &record.Record{
		GenomicInterval: interval.GenomicInterval{
			Seqid:  cols[0],
			Start:  start,
			End:    end,
			Coords: interval.OneBasedInclusive,
		},
		Type:       cols[2],
		Attributes: cols[8],
		Name:       gff3Name(cols[8]),
	}
	if err := rec.Validate(); err != nil {
		return nil, errors.E(errors.Invalid, err)
	}
	return rec, nil
}

// gff3Name returns the Name attribute, falling back to ID.
func gff3Name(attrs string) string {
	var id string
	for _, kv := range strings.Split(attrs, ";") {
		kv = strings.TrimSpace(kv)
		switch {
		case strings.HasPrefix(kv, "Name="):
			return kv[len("Name="):]
		case strings.HasPrefix(kv, "ID="):
			id = kv[len("ID="):]
		}
	}
	return id
}

// File is a Reader over a file opened by path.
type File struct {
	*Reader
	f file.File
}

// Open opens a BED or GFF3 file.  If format is UnknownFormat it is derived
// from the path.  Compressed files are rejected since they cannot be
// repositioned by byte offset.
func Open(ctx context.Context, path string, format Format) (*File, error) {
	if fileio.DetermineType(path) != fileio.Other {
		return nil, errors.E(errors.NotSupported, "feature.Open: compressed feature files are not seekable:", path)
	}
	if format == UnknownFormat {
		if format = FormatFromPath(path); format == UnknownFormat {
			return nil, errors.E(errors.Invalid, "feature.Open: cannot determine format of", path)
		}
	}
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "feature.Open", path)
	}
	return &File{Reader: NewReader(f.Reader(ctx), format), f: f}, nil
}

// Close closes the underlying file.
func (f *File) Close(ctx context.Context) error {
	return f.f.Close(ctx)
}
