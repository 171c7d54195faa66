// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package interval

import (
	"fmt"
	"math"

	"github.com/grailbio/biosweep/chromorder"
	"github.com/pkg/errors"
)

// CoordSystem identifies the coordinate convention of a GenomicInterval.
type CoordSystem uint8

const (
	// ZeroBasedHalfOpen is the BED/BAM convention: [start, end).
	ZeroBasedHalfOpen CoordSystem = iota
	// OneBasedInclusive is the GFF/SAM-text convention: [start, end].
	OneBasedInclusive
)

func (c CoordSystem) String() string {
	switch c {
	case ZeroBasedHalfOpen:
		return "0-based"
	case OneBasedInclusive:
		return "1-based"
	}
	return fmt.Sprintf("CoordSystem(%d)", uint8(c))
}

// MaxPos is the largest end coordinate accepted by this package.  It leaves
// headroom for the +1 applied during normalization.
const MaxPos = math.MaxInt64

// ErrInvalidInterval is returned (possibly wrapped) by Validate.
var ErrInvalidInterval = errors.New("invalid genomic interval")

// GenomicInterval is a stretch of a single reference sequence.
type GenomicInterval struct {
	Seqid  string
	Start  uint64
	End    uint64
	Coords CoordSystem
}

// Validate checks that the interval is well formed under its own coordinate
// system.
func (iv GenomicInterval) Validate() error {
	if iv.Seqid == "" {
		return errors.Wrap(ErrInvalidInterval, "empty seqid")
	}
	if iv.End < iv.Start || iv.End > MaxPos {
		return errors.Wrapf(ErrInvalidInterval, "%s:[%d, %d] (%v)", iv.Seqid, iv.Start, iv.End, iv.Coords)
	}
	if iv.Coords == OneBasedInclusive && iv.Start == 0 {
		return errors.Wrapf(ErrInvalidInterval, "%s: zero start in 1-based interval", iv.Seqid)
	}
	return nil
}

// Normalize returns the interval in 1-based inclusive coordinates.  An empty
// 0-based interval [s, s) becomes [s+1, s].
func (iv GenomicInterval) Normalize() GenomicInterval {
	if iv.Coords == ZeroBasedHalfOpen {
		iv.Start++
		iv.Coords = OneBasedInclusive
	}
	return iv
}

// Len returns the number of bases covered by the interval.
func (iv GenomicInterval) Len() uint64 {
	n := iv.Normalize()
	return n.End + 1 - n.Start
}

// String formats the interval as a 1-based region string, e.g. "chr1:1-5".
func (iv GenomicInterval) String() string {
	n := iv.Normalize()
	return fmt.Sprintf("%s:%d-%d", n.Seqid, n.Start, n.End)
}

// OverlapResult describes the intersection of two intervals.  All fields are
// 1-based inclusive, independent of the inputs' coordinate systems.
type OverlapResult struct {
	// Len1 and Len2 are the lengths of the two compared intervals.
	Len1, Len2 uint64
	// Start and End bound the shared bases.
	Start, End uint64
	// Len is End - Start + 1.
	Len uint64
}

// Compare returns (-1, nil) if a lies entirely upstream of b, (+1, nil) if a
// lies entirely downstream of b, and (0, overlap) if the two intervals share
// at least one position.  Seqids are ordered with chromorder.Compare;
// intervals on different sequences never overlap.
func Compare(a, b GenomicInterval) (int, *OverlapResult, error) {
	c, err := chromorder.Compare(a.Seqid, b.Seqid)
	if err != nil {
		return 0, nil, err
	}
	if c != 0 {
		return c, nil, nil
	}
	a, b = a.Normalize(), b.Normalize()
	if a.End < b.Start {
		return -1, nil, nil
	}
	if a.Start > b.End {
		return 1, nil, nil
	}
	r := &OverlapResult{
		Len1:  a.End + 1 - a.Start,
		Len2:  b.End + 1 - b.Start,
		Start: a.Start,
		End:   a.End,
	}
	if b.Start > r.Start {
		r.Start = b.Start
	}
	if b.End < r.End {
		r.End = b.End
	}
	r.Len = r.End + 1 - r.Start
	return 0, r, nil
}

// Overlaps reports whether a and b share at least one position.
func Overlaps(a, b GenomicInterval) (bool, error) {
	c, _, err := Compare(a, b)
	return err == nil && c == 0, err
}
