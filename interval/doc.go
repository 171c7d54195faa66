// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

/*Package interval represents genomic intervals in either of the two
  coordinate conventions found in sorted annotation and alignment files
  (0-based half-open for BED and BAM, 1-based inclusive for GFF and SAM
  text), and computes the overlap relationship between two such intervals.

  All comparisons normalize both sides to 1-based inclusive coordinates
  first, so a BED interval [0, 5) and a GFF interval [1, 5] describe the
  same five bases.
*/
package interval
