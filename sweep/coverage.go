// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package sweep

import (
	"context"
	"io"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/biosweep/interval"
	"github.com/grailbio/biosweep/record"
	"github.com/grailbio/biosweep/window"
	"github.com/pkg/errors"
)

// FeatureReader yields coordinate-sorted features.  Coverage never rewinds,
// so a FeatureSource is not required.
type FeatureReader interface {
	Read() (*record.Record, error)
}

type coverer struct {
	alnSrc AlignmentSource
	win    *window.Window
	// pending is the next alignment, read but not yet added to win because
	// it lies downstream of the current feature.
	pending    record.Record
	hasPending bool
	alnsDone   bool
	stats      Stats
}

func writeCoverageHeader(w *tsv.Writer) error {
	for _, col := range []string{"#CHROM", "START", "END", "FEATURE", "TYPE", "N_ALIGNMENTS", "OVERLAP_BASES"} {
		w.WriteString(col)
	}
	return w.EndLine()
}

// Coverage writes one TSV row to w per feature, with the number of accepted
// alignments overlapping it and the total number of overlapping bases.
// Coordinates are 1-based inclusive.  Both inputs must be sorted.
func Coverage(ctx context.Context, features FeatureReader, alns AlignmentSource, w io.Writer, opts Opts) (Stats, error) {
	c := &coverer{
		alnSrc: alns,
		win:    newWindow(&opts),
	}
	out := tsv.NewWriter(w)
	featureOrder := window.New(0)
	region, err := parseRegion(&opts)
	if err != nil {
		return c.stats, err
	}
	if err = writeCoverageHeader(out); err != nil {
		return c.stats, err
	}
	for {
		if err = ctx.Err(); err != nil {
			break
		}
		var f *record.Record
		if f, err = features.Read(); err != nil {
			if err == io.EOF {
				err = nil
			}
			break
		}
		c.stats.Features++
		c.stats.FeatureReads++
		if err = featureOrder.CheckOrder(f); err != nil {
			err = errors.Wrap(err, "feature input")
			break
		}
		var ok bool
		if ok, err = inRegion(region, f.GenomicInterval); err != nil {
			break
		}
		if !ok {
			continue
		}
		if err = c.evictUpstream(f); err != nil {
			break
		}
		if err = c.fill(f); err != nil {
			break
		}
		var (
			n     uint64
			bases uint64
		)
		for i := 0; i < c.win.Len(); i++ {
			r := c.win.At(i)
			if !r.Accepted {
				continue
			}
			cmp, overlap, cerr := interval.Compare(r.GenomicInterval, f.GenomicInterval)
			if cerr != nil {
				err = cerr
				break
			}
			if cmp == 0 {
				n++
				bases += overlap.Len
			}
		}
		if err != nil {
			break
		}
		fn := f.Normalize()
		out.WriteString(fn.Seqid)
		writeUint64(out, fn.Start)
		writeUint64(out, fn.End)
		writeName(out, f.Name)
		writeName(out, f.Type)
		writeUint64(out, n)
		writeUint64(out, bases)
		if err = out.EndLine(); err != nil {
			break
		}
		c.stats.Rows++
	}
	if err == nil {
		// Order-check and count the alignments past the last feature.
		err = c.drain(ctx)
	}
	if ferr := out.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	c.stats.Window = c.win.Stats()
	return c.stats, err
}

// evictUpstream evicts the leading run of buffered alignments that end
// before f.  Features arrive in start order, so those alignments cannot
// overlap f or any later feature.
func (c *coverer) evictUpstream(f *record.Record) error {
	n := 0
	for ; n < c.win.Len(); n++ {
		cmp, _, err := interval.Compare(c.win.At(n).GenomicInterval, f.GenomicInterval)
		if err != nil {
			return err
		}
		if cmp >= 0 {
			break
		}
	}
	c.win.Evict(n)
	return nil
}

// next makes the next placed alignment pending.  It returns false at the end
// of the alignment stream.
func (c *coverer) next() (bool, error) {
	if c.hasPending {
		return true, nil
	}
	for !c.alnsDone {
		if err := c.alnSrc.Read(&c.pending); err != nil {
			if err == io.EOF {
				c.alnsDone = true
				return false, nil
			}
			return false, err
		}
		c.stats.Alignments++
		if isUnplaced(&c.pending) {
			c.win.IsAcceptable(&c.pending)
			continue
		}
		c.hasPending = true
		return true, nil
	}
	return false, nil
}

// add moves the pending alignment into the window.
func (c *coverer) add() error {
	c.hasPending = false
	if err := c.win.Add(&c.pending); err != nil {
		return err
	}
	r := c.win.At(c.win.Len() - 1)
	r.Accepted = c.win.IsAcceptable(r)
	if c.win.Len() > c.stats.MaxBuffered {
		c.stats.MaxBuffered = c.win.Len()
	}
	return nil
}

// fill adds every alignment that is not downstream of f to the window.
func (c *coverer) fill(f *record.Record) error {
	for {
		ok, err := c.next()
		if err != nil || !ok {
			return err
		}
		cmp, _, err := interval.Compare(c.pending.GenomicInterval, f.GenomicInterval)
		if err != nil {
			return err
		}
		if cmp > 0 {
			return nil
		}
		if err := c.add(); err != nil {
			return err
		}
		if cmp < 0 {
			if err := c.evictUpstream(f); err != nil {
				return err
			}
		}
	}
}

func (c *coverer) drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := c.next()
		if err != nil || !ok {
			return err
		}
		if err := c.add(); err != nil {
			return err
		}
		c.win.Evict(c.win.Len())
	}
}
