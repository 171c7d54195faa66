// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package window

import (
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/biosweep/chromorder"
	"github.com/grailbio/biosweep/record"
	"github.com/pkg/errors"
)

const (
	// DefaultInitialCapacity is the number of slots allocated by New.
	DefaultInitialCapacity = 4096
	// DefaultHardCap is the largest capacity a Window will grow to.  Needing
	// more than this almost always means the input is not sorted, or that the
	// caller never evicts.
	DefaultHardCap = 524288
)

// ErrCapacityExceeded is returned by Add when the window is full and already
// at its hard cap.
var ErrCapacityExceeded = errors.New("window buffer capacity exceeded")

// OrderError reports a record that sorts before its predecessor.
type OrderError struct {
	Seqid     string
	Pos       uint64
	PrevSeqid string
	PrevPos   uint64
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("out-of-order record %s:%d follows %s:%d; input must be sorted by chromosome and position",
		e.Seqid, e.Pos, e.PrevSeqid, e.PrevPos)
}

// Opts configures a Window.
type Opts struct {
	// MinQuality is the lowest mapping quality IsAcceptable lets through.
	MinQuality uint32
	// InitialCapacity defaults to DefaultInitialCapacity.
	InitialCapacity int
	// HardCap defaults to DefaultHardCap.  It is raised to InitialCapacity if
	// smaller.
	HardCap int
}

// Stats accumulates the outcome of IsAcceptable calls.
type Stats struct {
	UnmappedCount uint64

	AcceptedCount      uint64
	AcceptedQualitySum uint64
	MinAcceptedQuality uint32
	MaxAcceptedQuality uint32

	DiscardedCount      uint64
	DiscardedQualitySum uint64
	MinDiscardedQuality uint32
	MaxDiscardedQuality uint32
}

// MeanAcceptedQuality returns the average quality of accepted records, or 0
// if none were accepted.
func (s Stats) MeanAcceptedQuality() float64 {
	if s.AcceptedCount == 0 {
		return 0
	}
	return float64(s.AcceptedQualitySum) / float64(s.AcceptedCount)
}

// MeanDiscardedQuality returns the average quality of records discarded for
// low quality, or 0 if there were none.
func (s Stats) MeanDiscardedQuality() float64 {
	if s.DiscardedCount == 0 {
		return 0
	}
	return float64(s.DiscardedQualitySum) / float64(s.DiscardedCount)
}

// State is a snapshot of a Window's bookkeeping.
type State struct {
	Capacity   int
	Count      int
	PrevSeqid  string
	PrevPos    uint64
	MinQuality uint32
	Stats      Stats
}

// Window is a growable, order-checked record buffer.  The zero value is not
// usable; call New or NewWithOpts.
type Window struct {
	// recs holds the buffered records in arrival order; cap(recs) is the
	// current capacity.
	recs    []record.Record
	hardCap int

	minQuality uint32

	// prevSeqid/prevPos is the key of the last record that passed CheckOrder.
	// started is false until the first such record.
	prevSeqid string
	prevPos   uint64
	started   bool

	stats Stats
}

// New returns a Window with the default capacities.
func New(minQuality uint32) *Window {
	return NewWithOpts(Opts{MinQuality: minQuality})
}

// NewWithOpts returns a Window configured by opts.
func NewWithOpts(opts Opts) *Window {
	if opts.InitialCapacity <= 0 {
		opts.InitialCapacity = DefaultInitialCapacity
	}
	if opts.HardCap <= 0 {
		opts.HardCap = DefaultHardCap
	}
	if opts.HardCap < opts.InitialCapacity {
		opts.HardCap = opts.InitialCapacity
	}
	return &Window{
		recs:       make([]record.Record, 0, opts.InitialCapacity),
		hardCap:    opts.HardCap,
		minQuality: opts.MinQuality,
	}
}

// CheckOrder verifies that rec does not sort before the previously checked
// record, and makes rec the new reference point.  It returns an *OrderError
// on a chromosome or position regression, and chromorder.ErrInvalidName
// (wrapped) for malformed seqids.
func (w *Window) CheckOrder(rec *record.Record) error {
	if !w.started {
		if rec.Seqid == "" {
			return errors.Wrap(chromorder.ErrInvalidName, "window.CheckOrder: empty seqid")
		}
		w.started = true
		w.prevSeqid = rec.Seqid
		w.prevPos = rec.Pos()
		return nil
	}
	c, err := chromorder.Compare(rec.Seqid, w.prevSeqid)
	if err != nil {
		return err
	}
	if c < 0 || (c == 0 && rec.Pos() < w.prevPos) {
		return &OrderError{
			Seqid:     rec.Seqid,
			Pos:       rec.Pos(),
			PrevSeqid: w.prevSeqid,
			PrevPos:   w.prevPos,
		}
	}
	if c != 0 {
		w.prevSeqid = rec.Seqid
	}
	w.prevPos = rec.Pos()
	return nil
}

// IsAcceptable applies the unmapped and minimum-quality filters to rec and
// updates the statistics accordingly.
func (w *Window) IsAcceptable(rec *record.Record) bool {
	s := &w.stats
	if rec.Unmapped {
		s.UnmappedCount++
		return false
	}
	q := rec.MapQ
	if q < w.minQuality {
		if s.DiscardedCount == 0 || q < s.MinDiscardedQuality {
			s.MinDiscardedQuality = q
		}
		if q > s.MaxDiscardedQuality {
			s.MaxDiscardedQuality = q
		}
		s.DiscardedCount++
		s.DiscardedQualitySum += uint64(q)
		return false
	}
	if s.AcceptedCount == 0 || q < s.MinAcceptedQuality {
		s.MinAcceptedQuality = q
	}
	if q > s.MaxAcceptedQuality {
		s.MaxAcceptedQuality = q
	}
	s.AcceptedCount++
	s.AcceptedQualitySum += uint64(q)
	return true
}

// Add order-checks rec and copies it into the next free slot, growing the
// buffer if necessary.  Storage does not depend on IsAcceptable; callers
// that filter mark the record (see record.Record.Accepted) before adding it.
// When the buffer is at its hard cap, rec is rejected and the order state is
// left as it was before the call.
func (w *Window) Add(rec *record.Record) error {
	started, prevSeqid, prevPos := w.started, w.prevSeqid, w.prevPos
	if err := w.CheckOrder(rec); err != nil {
		return err
	}
	if len(w.recs) == cap(w.recs) {
		if err := w.grow(); err != nil {
			w.started, w.prevSeqid, w.prevPos = started, prevSeqid, prevPos
			return err
		}
	}
	w.recs = append(w.recs, *rec)
	return nil
}

func (w *Window) grow() error {
	oldCap := cap(w.recs)
	if oldCap >= w.hardCap {
		return errors.Wrapf(ErrCapacityExceeded, "window.Add: %d records buffered at %s:%d",
			len(w.recs), w.prevSeqid, w.prevPos)
	}
	newCap := oldCap * 2
	if newCap > w.hardCap {
		newCap = w.hardCap
	}
	if log.At(log.Debug) {
		log.Debug.Printf("window: growing capacity %d -> %d at %s:%d", oldCap, newCap, w.prevSeqid, w.prevPos)
	}
	grown := make([]record.Record, len(w.recs), newCap)
	copy(grown, w.recs)
	w.recs = grown
	return nil
}

// Evict drops the n oldest records and moves the remainder to the front of
// the buffer.  Vacated slots are cleared.  It panics if n is out of range.
func (w *Window) Evict(n int) {
	if n < 0 || n > len(w.recs) {
		panic(fmt.Sprintf("window.Evict: n=%d out of range [0, %d]", n, len(w.recs)))
	}
	if n == 0 {
		return
	}
	remaining := copy(w.recs, w.recs[n:])
	tail := w.recs[remaining:]
	for i := range tail {
		tail[i] = record.Record{}
	}
	w.recs = w.recs[:remaining]
}

// Len returns the number of buffered records.
func (w *Window) Len() int { return len(w.recs) }

// Cap returns the current capacity.
func (w *Window) Cap() int { return cap(w.recs) }

// At returns the i'th buffered record, oldest first.  The pointer is valid
// until the next Add or Evict.
func (w *Window) At(i int) *record.Record { return &w.recs[i] }

// Stats returns the filter statistics accumulated so far.
func (w *Window) Stats() Stats { return w.stats }

// State returns a snapshot of the window's bookkeeping.
func (w *Window) State() State {
	return State{
		Capacity:   cap(w.recs),
		Count:      len(w.recs),
		PrevSeqid:  w.prevSeqid,
		PrevPos:    w.prevPos,
		MinQuality: w.minQuality,
		Stats:      w.stats,
	}
}
