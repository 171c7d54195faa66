// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

// See doc.go for documentation.

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/biosweep/encoding/alignment"
	"github.com/grailbio/biosweep/encoding/feature"
	"github.com/grailbio/biosweep/sweep"
)

var (
	mapq            = flag.Int("mapq", int(sweep.DefaultOpts.MinMapQ), "Alignments with MAPQ below this level are not matched")
	maxLookback     = flag.Int("max-lookback", sweep.DefaultOpts.MaxLookback, "Maximum number of features to rewind after each alignment (annotate); negative = unlimited")
	region          = flag.String("region", "", "Restrict the sweep to <contig ID>:<1-based first pos>-<last pos>, <contig ID>:<1-based pos>, or just <contig ID>")
	reportUnmatched = flag.Bool("report-unmatched", false, "Also report accepted alignments that overlap no feature (annotate)")
	featureFormat   = flag.String("feature-format", "", "Feature file format, 'bed' or 'gff3'; derived from the file extension by default")
	outPath         = flag.String("out", "-", "Output path; '-' for stdout")
)

func bioSweepUsage() {
	fmt.Printf("Usage: %s [OPTIONS] {annotate,coverage} features.{bed,gff3} alignments.{sam,sam.gz,bam}\n", os.Args[0])
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func parseFeatureFormat(s string) (feature.Format, error) {
	switch strings.ToLower(s) {
	case "":
		return feature.UnknownFormat, nil
	case "bed":
		return feature.BED, nil
	case "gff", "gff3":
		return feature.GFF3, nil
	}
	return feature.UnknownFormat, errors.E(errors.Invalid, "unknown feature format", s)
}

// run executes one sweep and returns its statistics.
func run(ctx context.Context, mode, featurePath, alignmentPath, outPath string, format feature.Format, opts sweep.Opts) (stats sweep.Stats, err error) {
	if mode != "annotate" && mode != "coverage" {
		return stats, errors.E(errors.Invalid, "unknown mode", mode)
	}
	features, err := feature.Open(ctx, featurePath, format)
	if err != nil {
		return stats, err
	}
	defer func() {
		if cerr := features.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	alns, err := alignment.Open(ctx, alignmentPath)
	if err != nil {
		return stats, err
	}
	defer func() {
		if cerr := alns.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var w io.Writer = os.Stdout
	if outPath != "-" {
		out, oerr := file.Create(ctx, outPath)
		if oerr != nil {
			return stats, errors.E(oerr, "create", outPath)
		}
		defer func() {
			if cerr := out.Close(ctx); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = out.Writer(ctx)
	}

	switch mode {
	case "annotate":
		stats, err = sweep.Annotate(ctx, features, alns, w, opts)
	case "coverage":
		stats, err = sweep.Coverage(ctx, features, alns, w, opts)
	}
	return stats, err
}

func main() {
	flag.Usage = bioSweepUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 3 {
		log.Fatalf("Expected 3 positional arguments (mode, feature path, alignment path), got %d: '%s'",
			flag.NArg(), strings.Join(flag.Args(), " "))
	}
	if *mapq < 0 {
		log.Fatalf("-mapq must be nonnegative, got %d", *mapq)
	}
	format, err := parseFeatureFormat(*featureFormat)
	if err != nil {
		log.Fatalf("%v", err)
	}
	opts := sweep.DefaultOpts
	opts.MinMapQ = uint32(*mapq)
	opts.MaxLookback = *maxLookback
	opts.Region = *region
	opts.ReportUnmatched = *reportUnmatched

	ctx := vcontext.Background()
	stats, err := run(ctx, flag.Arg(0), flag.Arg(1), flag.Arg(2), *outPath, format, opts)
	if err != nil {
		log.Fatalf("%v", err)
	}
	ws := stats.Window
	log.Printf("%d alignment(s) read: %d accepted (mean MAPQ %.2f), %d below MAPQ %d, %d unmapped",
		stats.Alignments, ws.AcceptedCount, ws.MeanAcceptedQuality(), ws.DiscardedCount, opts.MinMapQ, ws.UnmappedCount)
	log.Printf("%d feature(s), %d feature read(s), %d reverse seek(s), %d row(s) written, peak window %d",
		stats.Features, stats.FeatureReads, stats.ReverseSeeks, stats.Rows, stats.MaxBuffered)
	log.Debug.Printf("exiting")
}
