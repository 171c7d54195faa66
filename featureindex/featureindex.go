// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package featureindex records the stream offset of each feature read from a
// sorted annotation file, so that a sweep can reposition the stream to
// re-read features that lie within a bounded window behind the current one.
//
// The index lives in memory only, and is append-only from a single writer.
package featureindex

import (
	"io"
	"math"

	"github.com/grailbio/biosweep/record"
	"github.com/pkg/errors"
)

// GrowIncrement is the number of slots added to the index each time it fills
// up.
const GrowIncrement = 65536

// MaxEntries bounds the index size.
const MaxEntries = math.MaxInt32

var (
	// ErrNotFound is returned by ReverseSeek when the index is empty or does
	// not contain the reference feature.
	ErrNotFound = errors.New("feature not found in index")
	// ErrAllocation is returned by Add when the index cannot grow.
	ErrAllocation = errors.New("feature index allocation failed")
)

// Entry is one indexed feature.  Start and End are 1-based inclusive,
// whatever the coordinate system of the record that was added.
type Entry struct {
	Seqid  string
	Start  uint64
	End    uint64
	Offset uint64
}

// Index is a parallel-array index of (seqid, start, end, offset), in the
// order features were added.
type Index struct {
	seqids  []string
	starts  []uint64
	ends    []uint64
	offsets []uint64
}

// Len returns the number of indexed features.
func (x *Index) Len() int { return len(x.offsets) }

// Entry returns the i'th indexed feature.
func (x *Index) Entry(i int) Entry {
	return Entry{
		Seqid:  x.seqids[i],
		Start:  x.starts[i],
		End:    x.ends[i],
		Offset: x.offsets[i],
	}
}

// LastOffset returns the offset of the most recently added feature, and
// false if the index is empty.
func (x *Index) LastOffset() (uint64, bool) {
	n := len(x.offsets)
	if n == 0 {
		return 0, false
	}
	return x.offsets[n-1], true
}

func (x *Index) grow() error {
	newCap := cap(x.offsets) + GrowIncrement
	if newCap > MaxEntries {
		newCap = MaxEntries
	}
	if newCap <= len(x.offsets) {
		return errors.Wrapf(ErrAllocation, "featureindex.Add: %d entries", len(x.offsets))
	}
	n := len(x.offsets)
	seqids := make([]string, n, newCap)
	copy(seqids, x.seqids)
	starts := make([]uint64, n, newCap)
	copy(starts, x.starts)
	ends := make([]uint64, n, newCap)
	copy(ends, x.ends)
	offsets := make([]uint64, n, newCap)
	copy(offsets, x.offsets)
	x.seqids, x.starts, x.ends, x.offsets = seqids, starts, ends, offsets
	return nil
}

// Add appends feature f, which starts at the given stream offset.
func (x *Index) Add(f *record.Record, offset uint64) error {
	if len(x.offsets) == cap(x.offsets) {
		if err := x.grow(); err != nil {
			return err
		}
	}
	n := f.Normalize()
	x.seqids = append(x.seqids, n.Seqid)
	x.starts = append(x.starts, n.Start)
	x.ends = append(x.ends, n.End)
	x.offsets = append(x.offsets, offset)
	return nil
}

// find returns the position of the most recent entry with ref's seqid and
// start, or -1.
func (x *Index) find(ref *record.Record) int {
	n := ref.Normalize()
	for i := len(x.offsets) - 1; i >= 0; i-- {
		if x.starts[i] == n.Start && x.seqids[i] == n.Seqid {
			return i
		}
	}
	return -1
}

// ReverseSeek repositions stream to an earlier feature and returns its
// offset.
//
// It locates ref in the index, then steps backward one entry at a time.  The
// walk stops at whichever comes first:
//   - featureCount entries have been walked (featureCount < 0 means no
//     limit; 0 returns ref's own offset),
//   - the previous entry is on a different sequence, or is the start of the
//     index,
//   - maxNT > 0 and the previous entry ends at or before ref.start - maxNT
//     (saturating at 0).  maxNT == 0 disables the distance limit.
// The entry the walk stops on is always within both limits.
func (x *Index) ReverseSeek(stream io.Seeker, ref *record.Record, featureCount int, maxNT uint64) (uint64, error) {
	if len(x.offsets) == 0 {
		return 0, errors.Wrap(ErrNotFound, "featureindex.ReverseSeek: empty index")
	}
	i := x.find(ref)
	if i < 0 {
		return 0, errors.Wrapf(ErrNotFound, "featureindex.ReverseSeek: %v", ref)
	}
	seqid := x.seqids[i]
	var bound uint64
	if start := x.starts[i]; maxNT > 0 && start > maxNT {
		bound = start - maxNT
	}
	for walked := 0; featureCount < 0 || walked < featureCount; walked++ {
		if i == 0 {
			break
		}
		prev := i - 1
		if x.seqids[prev] != seqid {
			break
		}
		if maxNT > 0 && x.ends[prev] <= bound {
			break
		}
		i = prev
	}
	offset := x.offsets[i]
	if _, err := stream.Seek(int64(offset), io.SeekStart); err != nil {
		return 0, errors.Wrapf(err, "featureindex.ReverseSeek: seek to %d", offset)
	}
	return offset, nil
}
