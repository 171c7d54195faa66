// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package record defines the decoded alignment and feature records that flow
// through a sorted-stream sweep.
package record

import (
	"fmt"

	"github.com/grailbio/biosweep/interval"
)

// Record is a GenomicInterval plus the format-specific payload of an
// alignment (SAM/BAM) or an annotation feature (BED/GFF).  Fields that do not
// apply to a record's format are left zero.
type Record struct {
	interval.GenomicInterval

	// Name is the read name for alignments, the BED name column or the GFF
	// ID/Name attribute for features.
	Name string

	// Alignment payload.
	MapQ     uint32
	Unmapped bool

	// Feature payload.
	Type       string
	Attributes string

	// Accepted is set by the sweep driver once the record has passed the
	// window's quality filter.
	Accepted bool
}

// Pos is the record's leftmost position in its own coordinate system.  It is
// the key used for order checking.
func (r *Record) Pos() uint64 {
	return r.Start
}

func (r *Record) String() string {
	if r.Name == "" {
		return r.GenomicInterval.String()
	}
	return fmt.Sprintf("%s(%s)", r.Name, r.GenomicInterval.String())
}
