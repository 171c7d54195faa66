// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

/*
bio-sweep cross-references a coordinate-sorted annotation file (BED or GFF3)
with a coordinate-sorted alignment file (SAM, gzipped SAM, or BAM) in a single
pass over each.

Both files must be sorted by chromosome, in natural order (chr2 before chr10,
chr22 before chrX), and then by start position.  Unsorted input is rejected,
with the offending record and its predecessor reported.

  bio-sweep annotate genes.gff3 reads.bam
reports every (alignment, feature) overlap, one row each.

  bio-sweep coverage genes.gff3 reads.bam
reports every feature with the number of overlapping alignments and the
number of overlapping bases.

Alignments that are unmapped or have a MAPQ below -mapq are not matched
against features.  All output coordinates are 1-based inclusive.
*/
package main
