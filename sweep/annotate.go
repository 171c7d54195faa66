// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package sweep

import (
	"context"
	"io"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/biosweep/featureindex"
	"github.com/grailbio/biosweep/interval"
	"github.com/grailbio/biosweep/record"
	"github.com/grailbio/biosweep/window"
	"github.com/pkg/errors"
)

// annotator holds the state of one Annotate run.
type annotator struct {
	opts     *Opts
	features FeatureSource
	out      *tsv.Writer
	region   *interval.GenomicInterval

	// alns order-checks and filters alignments.  Features are rewound for
	// every alignment, so it holds at most the current one and MaxBuffered
	// never exceeds 1.
	alns *window.Window
	// featureOrder only order-checks features; nothing is stored in it.
	featureOrder *window.Window
	index        featureindex.Index
	// maxLen is the length of the longest feature indexed so far, per seqid.
	maxLen map[string]uint64

	stats Stats
}

func writeAnnotateHeader(w *tsv.Writer) error {
	for _, col := range []string{"#READ", "CHROM", "START", "END", "MAPQ", "FEATURE", "TYPE",
		"FEATURE_START", "FEATURE_END", "OVERLAP_START", "OVERLAP_END", "OVERLAP_LEN"} {
		w.WriteString(col)
	}
	return w.EndLine()
}

// Annotate writes one TSV row to w for every (accepted alignment,
// overlapping feature) pair.  All coordinates in the output are 1-based
// inclusive.  Both inputs must be sorted by chromosome (in chromorder) and
// start position; a violation aborts the run with a *window.OrderError.
func Annotate(ctx context.Context, features FeatureSource, alns AlignmentSource, w io.Writer, opts Opts) (Stats, error) {
	a := &annotator{
		opts:         &opts,
		features:     features,
		out:          tsv.NewWriter(w),
		alns:         newWindow(&opts),
		featureOrder: window.New(0),
		maxLen:       map[string]uint64{},
	}
	var err error
	if a.region, err = parseRegion(&opts); err != nil {
		return a.stats, err
	}
	if err = writeAnnotateHeader(a.out); err != nil {
		return a.stats, err
	}
	var aln record.Record
	for {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = alns.Read(&aln); err != nil {
			if err == io.EOF {
				err = nil
			}
			break
		}
		a.stats.Alignments++
		if isUnplaced(&aln) {
			a.alns.IsAcceptable(&aln)
			continue
		}
		if err = a.alns.Add(&aln); err != nil {
			break
		}
		cur := a.alns.At(a.alns.Len() - 1)
		cur.Accepted = a.alns.IsAcceptable(cur)
		if a.alns.Len() > a.stats.MaxBuffered {
			a.stats.MaxBuffered = a.alns.Len()
		}
		if cur.Accepted {
			var ok bool
			if ok, err = inRegion(a.region, cur.GenomicInterval); err == nil && ok {
				err = a.annotate(cur)
			}
		}
		// Features are rewound per alignment, so nothing needs to stay
		// buffered.
		a.alns.Evict(a.alns.Len())
		if err != nil {
			break
		}
	}
	if ferr := a.out.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	a.stats.Window = a.alns.Stats()
	return a.stats, err
}

// readFeature reads the next feature, indexing and order-checking it if it
// has not been seen before.
func (a *annotator) readFeature() (*record.Record, error) {
	f, err := a.features.Read()
	if err != nil {
		return nil, err
	}
	a.stats.FeatureReads++
	off := a.features.Offset()
	if last, ok := a.index.LastOffset(); !ok || off > last {
		if err := a.featureOrder.CheckOrder(f); err != nil {
			return nil, errors.Wrap(err, "feature input")
		}
		if err := a.index.Add(f, off); err != nil {
			return nil, err
		}
		if n := f.Len(); n > a.maxLen[f.Seqid] {
			a.maxLen[f.Seqid] = n
		}
		a.stats.Features++
	}
	return f, nil
}

func (a *annotator) annotate(aln *record.Record) error {
	var (
		// stop is the first feature downstream of aln; nil at EOF.
		stop *record.Record
		// lastOnSeq is the last feature read on aln's sequence.
		lastOnSeq *record.Record
		matched   bool
	)
	for {
		f, err := a.readFeature()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		c, overlap, err := interval.Compare(f.GenomicInterval, aln.GenomicInterval)
		if err != nil {
			return err
		}
		if c > 0 {
			stop = f
			break
		}
		if f.Seqid == aln.Seqid {
			lastOnSeq = f
		}
		if c == 0 {
			matched = true
			if err := a.writeRow(aln, f, overlap); err != nil {
				return err
			}
		}
	}
	if !matched && a.opts.ReportUnmatched {
		if err := a.writeRow(aln, nil, nil); err != nil {
			return err
		}
	}
	return a.rewind(aln, stop, lastOnSeq)
}

// rewind repositions the feature stream so that the next read returns the
// earliest feature that may overlap an alignment at or after aln.
func (a *annotator) rewind(aln, stop, lastOnSeq *record.Record) error {
	ref := stop
	if (ref == nil || ref.Seqid != aln.Seqid) && lastOnSeq != nil {
		ref = lastOnSeq
	}
	if ref == nil {
		// Everything left is on earlier sequences, or the stream is exhausted.
		return nil
	}
	featureCount, maxNT := a.opts.MaxLookback, uint64(0)
	if ref.Seqid == aln.Seqid {
		// ReverseSeek stops at the first entry ending at or before
		// ref.start - maxNT.  Placing that bound maxLen below aln's start
		// guarantees every entry behind the stop point also ends before aln,
		// since it starts no later than the stop entry and is at most maxLen
		// long.
		refStart, alnStart := ref.Normalize().Start, aln.Normalize().Start
		maxNT = 1
		if reach := refStart + a.maxLen[ref.Seqid] + 1; reach > alnStart+1 {
			maxNT = reach - alnStart
		}
	} else {
		featureCount = 0
	}
	off, err := a.index.ReverseSeek(a.features, ref, featureCount, maxNT)
	if err != nil {
		return err
	}
	a.stats.ReverseSeeks++
	if log.At(log.Debug) {
		log.Debug.Printf("sweep: %v rewound features to offset %d (%v)", aln, off, ref)
	}
	return nil
}

func (a *annotator) writeRow(aln, f *record.Record, overlap *interval.OverlapResult) error {
	w := a.out
	n := aln.Normalize()
	writeName(w, aln.Name)
	w.WriteString(n.Seqid)
	writeUint64(w, n.Start)
	writeUint64(w, n.End)
	w.WriteUint32(aln.MapQ)
	if f == nil {
		for i := 0; i < 6; i++ {
			w.WriteString(".")
		}
		writeUint64(w, 0)
	} else {
		fn := f.Normalize()
		writeName(w, f.Name)
		writeName(w, f.Type)
		writeUint64(w, fn.Start)
		writeUint64(w, fn.End)
		writeUint64(w, overlap.Start)
		writeUint64(w, overlap.End)
		writeUint64(w, overlap.Len)
	}
	a.stats.Rows++
	return w.EndLine()
}
