// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package chromorder implements the natural ordering of chromosome and
// contig names used by sorted BED, GFF and SAM files: numeric labels compare
// numerically ("chr2" < "chr10"), and non-numeric labels compare bytewise
// after the numeric ones ("chr22" < "chrX").
package chromorder

import (
	"strconv"

	"github.com/pkg/errors"
)

// ErrInvalidName is returned (possibly wrapped) when a name is empty or
// contains a digit run that does not fit in a uint64.
var ErrInvalidName = errors.New("invalid chromosome name")

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// digitRunEnd returns the end of the digit run starting at s[pos].
func digitRunEnd(s string, pos int) int {
	for ; pos < len(s); pos++ {
		if !isDigit(s[pos]) {
			break
		}
	}
	return pos
}

func compareStrings(s1, s2 string) int {
	switch {
	case s1 < s2:
		return -1
	case s1 > s2:
		return 1
	}
	return 0
}

// Compare returns (-1, 0, +1) if name1 sorts (before, equal to, after) name2.
//
// The longest common prefix is skipped first.  If the next character of
// either name is not a digit, the remaining suffixes are compared bytewise;
// a name that has ended sorts before any character.  Otherwise the maximal
// digit runs at that point are compared numerically, and on a numeric tie
// the remaining suffixes are compared bytewise ("10p" < "10q").  A common
// prefix that ends inside a digit run is backed up to the start of the run,
// so "chr19" < "chr100".
func Compare(name1, name2 string) (int, error) {
	if name1 == "" || name2 == "" {
		return 0, errors.Wrapf(ErrInvalidName, "chromorder.Compare: empty name (%q, %q)", name1, name2)
	}
	i := 0
	for i < len(name1) && i < len(name2) && name1[i] == name2[i] {
		i++
	}
	if i == len(name1) && i == len(name2) {
		return 0, nil
	}
	if i == len(name1) || i == len(name2) || !isDigit(name1[i]) || !isDigit(name2[i]) {
		// Back up into a shared digit run only when both sides continue with
		// digits; otherwise the bytewise comparison already decides.
		if !(i > 0 && isDigit(name1[i-1]) && ((i < len(name1) && isDigit(name1[i])) || (i < len(name2) && isDigit(name2[i])))) {
			return compareStrings(name1[i:], name2[i:]), nil
		}
	}
	for i > 0 && isDigit(name1[i-1]) {
		i--
	}
	end1 := digitRunEnd(name1, i)
	end2 := digitRunEnd(name2, i)
	val1, err := strconv.ParseUint(name1[i:end1], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidName, "chromorder.Compare: %q", name1)
	}
	val2, err := strconv.ParseUint(name2[i:end2], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalidName, "chromorder.Compare: %q", name2)
	}
	switch {
	case val1 < val2:
		return -1, nil
	case val1 > val2:
		return 1, nil
	}
	// Same value, possibly spelled with different leading zeros.
	if c := compareStrings(name1[i:end1], name2[i:end2]); c != 0 {
		return c, nil
	}
	return compareStrings(name1[end1:], name2[end2:]), nil
}

// Less reports whether name1 sorts strictly before name2.  Invalid names
// are reported through the error.
func Less(name1, name2 string) (bool, error) {
	c, err := Compare(name1, name2)
	return c < 0, err
}
