// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package sweep cross-references a coordinate-sorted alignment stream with a
// coordinate-sorted feature stream in a single pass over each.
//
// Annotate is alignment-centric: for every alignment it reports the features
// it overlaps.  Since a feature may overlap many alignments, the feature
// stream is rewound after each alignment, using a featureindex.Index built
// while the features are read, to the earliest feature that can still
// overlap the next alignment.
//
// Coverage is feature-centric: alignments are held in a window.Window until
// the features have moved past them, and every feature is reported with the
// number of accepted alignments overlapping it.
//
// Both drivers are single-threaded.  They check ctx between records; there
// is no finer-grained cancellation.
package sweep

import (
	"io"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/biosweep/encoding/alignment"
	"github.com/grailbio/biosweep/interval"
	"github.com/grailbio/biosweep/record"
	"github.com/grailbio/biosweep/window"
)

// Opts controls both drivers.
type Opts struct {
	// MinMapQ is the lowest mapping quality of an alignment that is matched
	// against features.
	MinMapQ uint32
	// MaxLookback bounds the number of features the feature stream is rewound
	// by after each alignment.  Negative means no limit.  With a limit,
	// Annotate misses overlaps with features further back than that.
	MaxLookback int
	// Region, if nonempty, restricts the sweep to alignments (Annotate) or
	// features (Coverage) overlapping it.  See interval.ParseRegion for the
	// syntax.
	Region string
	// ReportUnmatched makes Annotate emit a row for accepted alignments that
	// overlap no feature.
	ReportUnmatched bool
	// InitialCapacity and HardCap configure the alignment window; zero
	// selects the window package defaults.
	InitialCapacity int
	HardCap         int
}

// DefaultOpts holds the commandline defaults.
var DefaultOpts = Opts{
	MinMapQ:     20,
	MaxLookback: -1,
}

// AlignmentSource yields coordinate-sorted alignments.  Read returns io.EOF
// at the end of the stream.
type AlignmentSource interface {
	Read(rec *record.Record) error
}

// FeatureSource yields coordinate-sorted features.  Offset returns the stream
// offset of the record most recently returned by Read, and Seek repositions
// the stream to such an offset.
type FeatureSource interface {
	io.Seeker
	Read() (*record.Record, error)
	Offset() uint64
}

// Stats summarizes a sweep.
type Stats struct {
	// Alignments is the number of alignment records read.
	Alignments uint64
	// Features is the number of distinct features read; FeatureReads also
	// counts re-reads after a reverse seek.
	Features     uint64
	FeatureReads uint64
	ReverseSeeks uint64
	// Rows is the number of report rows written, excluding the header.
	Rows uint64
	// MaxBuffered is the high-water mark of the alignment window.  Annotate
	// buffers one alignment at a time.
	MaxBuffered int
	// Window holds the alignment quality-filter statistics.
	Window window.Stats
}

func newWindow(opts *Opts) *window.Window {
	return window.NewWithOpts(window.Opts{
		MinQuality:      opts.MinMapQ,
		InitialCapacity: opts.InitialCapacity,
		HardCap:         opts.HardCap,
	})
}

func parseRegion(opts *Opts) (*interval.GenomicInterval, error) {
	if opts.Region == "" {
		return nil, nil
	}
	region, err := interval.ParseRegion(opts.Region)
	if err != nil {
		return nil, err
	}
	return &region, nil
}

// inRegion reports whether iv overlaps region.  A nil region contains
// everything.
func inRegion(region *interval.GenomicInterval, iv interval.GenomicInterval) (bool, error) {
	if region == nil {
		return true, nil
	}
	return interval.Overlaps(iv, *region)
}

// isUnplaced reports whether rec has no reference position at all.  Such
// records sort after every placed record and are only counted.
func isUnplaced(rec *record.Record) bool {
	return rec.Unmapped && rec.Seqid == alignment.UnmappedSeqid
}

func writeUint64(w *tsv.Writer, v uint64) {
	w.WriteInt64(int64(v))
}

func writeName(w *tsv.Writer, s string) {
	if s == "" {
		s = "."
	}
	w.WriteString(s)
}
