// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package interval

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRegion parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// returning a 1-based inclusive interval.  The interval [1, MaxPos] is
// returned if there is no positional restriction.
func ParseRegion(region string) (result GenomicInterval, err error) {
	result.Coords = OneBasedInclusive
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegion: empty region string")
		return
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		result.Seqid = region
		result.Start = 1
		result.End = MaxPos
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegion: empty contig ID")
		return
	}
	result.Seqid = region[0:colonPos]
	rangeStr := strings.Replace(region[colonPos+1:], ",", "", -1)
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 uint64
		if pos1, err = strconv.ParseUint(rangeStr, 10, 63); err != nil {
			return
		}
		if pos1 == 0 {
			err = fmt.Errorf("interval.ParseRegion: position %v in region string out of range", rangeStr)
			return
		}
		result.Start = pos1
		result.End = pos1
		return
	}
	start1Str := rangeStr[:dashPos]
	endStr := rangeStr[dashPos+1:]
	if result.Start, err = strconv.ParseUint(start1Str, 10, 63); err != nil {
		return
	}
	if result.Start == 0 {
		err = fmt.Errorf("interval.ParseRegion: position %v in region string out of range", start1Str)
		return
	}
	if result.End, err = strconv.ParseUint(endStr, 10, 63); err != nil {
		return
	}
	if result.End < result.Start {
		err = fmt.Errorf("interval.ParseRegion: invalid range string %v", rangeStr)
		return
	}
	return
}
