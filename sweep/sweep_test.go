// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package sweep

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/grailbio/biosweep/encoding/alignment"
	"github.com/grailbio/biosweep/encoding/feature"
	"github.com/grailbio/biosweep/interval"
	"github.com/grailbio/biosweep/record"
	"github.com/grailbio/biosweep/window"
	"github.com/grailbio/testutil/expect"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	recs []record.Record
	i    int
}

func (s *sliceSource) Read(rec *record.Record) error {
	if s.i == len(s.recs) {
		return io.EOF
	}
	*rec = s.recs[s.i]
	s.i++
	return nil
}

func aln(name, seqid string, start, end uint64, mapq uint32) record.Record {
	return record.Record{
		GenomicInterval: interval.GenomicInterval{
			Seqid: seqid, Start: start, End: end, Coords: interval.ZeroBasedHalfOpen,
		},
		Name: name,
		MapQ: mapq,
	}
}

const testFeatures = "chr1\t0\t100\tA\n" +
	"chr1\t50\t60\tB\n" +
	"chr1\t200\t300\tC\n" +
	"chr2\t10\t20\tD\n"

func testAlignments() *sliceSource {
	return &sliceSource{recs: []record.Record{
		aln("r1", "chr1", 40, 55, 60),
		aln("r2", "chr1", 58, 70, 60),
		aln("r3", "chr1", 150, 160, 5),
		aln("r4", "chr1", 250, 260, 60),
		aln("r5", "chr2", 0, 5, 60),
		aln("r6", "chr2", 15, 30, 60),
		{GenomicInterval: interval.GenomicInterval{Seqid: alignment.UnmappedSeqid}, Name: "r7", Unmapped: true},
	}}
}

func newFeatures(data string) *feature.Reader {
	return feature.NewReader(strings.NewReader(data), feature.BED)
}

func TestAnnotate(t *testing.T) {
	var out bytes.Buffer
	opts := DefaultOpts
	opts.ReportUnmatched = true
	stats, err := Annotate(context.Background(), newFeatures(testFeatures), testAlignments(), &out, opts)
	require.NoError(t, err)
	expect.EQ(t, out.String(),
		"#READ\tCHROM\tSTART\tEND\tMAPQ\tFEATURE\tTYPE\tFEATURE_START\tFEATURE_END\tOVERLAP_START\tOVERLAP_END\tOVERLAP_LEN\n"+
			"r1\tchr1\t41\t55\t60\tA\t.\t1\t100\t41\t55\t15\n"+
			"r1\tchr1\t41\t55\t60\tB\t.\t51\t60\t51\t55\t5\n"+
			"r2\tchr1\t59\t70\t60\tA\t.\t1\t100\t59\t70\t12\n"+
			"r2\tchr1\t59\t70\t60\tB\t.\t51\t60\t59\t60\t2\n"+
			"r4\tchr1\t251\t260\t60\tC\t.\t201\t300\t251\t260\t10\n"+
			"r5\tchr2\t1\t5\t60\t.\t.\t.\t.\t.\t.\t0\n"+
			"r6\tchr2\t16\t30\t60\tD\t.\t11\t20\t16\t20\t5\n")
	expect.EQ(t, stats.Alignments, uint64(7))
	expect.EQ(t, stats.Features, uint64(4))
	expect.EQ(t, stats.FeatureReads, uint64(13))
	expect.EQ(t, stats.ReverseSeeks, uint64(5))
	expect.EQ(t, stats.Rows, uint64(7))
	expect.EQ(t, stats.MaxBuffered, 1)
	expect.EQ(t, stats.Window.AcceptedCount, uint64(5))
	expect.EQ(t, stats.Window.DiscardedCount, uint64(1))
	expect.EQ(t, stats.Window.UnmappedCount, uint64(1))
}

func TestAnnotateNestedFeatures(t *testing.T) {
	// A gene followed by the short features it contains.
	const features = "chr1\t0\t1000\tA\n" +
		"chr1\t10\t20\tB\n" +
		"chr1\t30\t40\tC\n" +
		"chr1\t2000\t2100\tD\n"
	alns := func() *sliceSource {
		return &sliceSource{recs: []record.Record{
			aln("a1", "chr1", 15, 18, 60),
			aln("a2", "chr1", 25, 28, 60),
			aln("a3", "chr1", 50, 60, 60),
		}}
	}
	var out bytes.Buffer
	_, err := Annotate(context.Background(), newFeatures(features), alns(), &out, DefaultOpts)
	require.NoError(t, err)
	expect.EQ(t, out.String(),
		"#READ\tCHROM\tSTART\tEND\tMAPQ\tFEATURE\tTYPE\tFEATURE_START\tFEATURE_END\tOVERLAP_START\tOVERLAP_END\tOVERLAP_LEN\n"+
			"a1\tchr1\t16\t18\t60\tA\t.\t1\t1000\t16\t18\t3\n"+
			"a1\tchr1\t16\t18\t60\tB\t.\t11\t20\t16\t18\t3\n"+
			"a2\tchr1\t26\t28\t60\tA\t.\t1\t1000\t26\t28\t3\n"+
			"a3\tchr1\t51\t60\t60\tA\t.\t1\t1000\t51\t60\t10\n")

	// Annotate rows per feature agree with Coverage's alignment counts.
	annotated := map[string]int{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n")[1:] {
		annotated[strings.Split(line, "\t")[5]]++
	}
	out.Reset()
	_, err = Coverage(context.Background(), newFeatures(features), alns(), &out, DefaultOpts)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")[1:]
	require.Len(t, lines, 4)
	for _, line := range lines {
		fields := strings.Split(line, "\t")
		expect.EQ(t, fields[5], strconv.Itoa(annotated[fields[3]]), "feature %s", fields[3])
	}
	expect.EQ(t, lines[0], "chr1\t1\t1000\tA\t.\t3\t16")
}

func TestAnnotateLookbackLimit(t *testing.T) {
	var out bytes.Buffer
	opts := DefaultOpts
	opts.MaxLookback = 0
	stats, err := Annotate(context.Background(), newFeatures(testFeatures), testAlignments(), &out, opts)
	require.NoError(t, err)
	// With no lookback, r2 no longer sees A and B.
	expect.EQ(t, stats.Rows, uint64(4))
	assert.NotContains(t, out.String(), "r2\t")
}

func TestAnnotateRegion(t *testing.T) {
	var out bytes.Buffer
	opts := DefaultOpts
	opts.Region = "chr1:201-1000"
	stats, err := Annotate(context.Background(), newFeatures(testFeatures), testAlignments(), &out, opts)
	require.NoError(t, err)
	expect.EQ(t, stats.Rows, uint64(1))
	assert.Contains(t, out.String(), "r4\tchr1\t251\t260")

	opts.Region = "chr1:0"
	_, err = Annotate(context.Background(), newFeatures(testFeatures), testAlignments(), &out, opts)
	expect.True(t, err != nil)
}

func TestAnnotateUnsortedAlignments(t *testing.T) {
	alns := &sliceSource{recs: []record.Record{
		aln("r1", "chr2", 10, 20, 60),
		aln("r2", "chr1", 999, 1010, 60),
	}}
	var out bytes.Buffer
	_, err := Annotate(context.Background(), newFeatures(testFeatures), alns, &out, DefaultOpts)
	require.Error(t, err)
	oerr, ok := errors.Cause(err).(*window.OrderError)
	require.True(t, ok, "%v", err)
	expect.EQ(t, *oerr, window.OrderError{Seqid: "chr1", Pos: 999, PrevSeqid: "chr2", PrevPos: 10})
}

func TestAnnotateUnsortedFeatures(t *testing.T) {
	features := "chr1\t100\t200\tA\nchr1\t50\t60\tB\n"
	alns := &sliceSource{recs: []record.Record{aln("r1", "chr1", 500, 510, 60)}}
	var out bytes.Buffer
	_, err := Annotate(context.Background(), newFeatures(features), alns, &out, DefaultOpts)
	require.Error(t, err)
	_, ok := errors.Cause(err).(*window.OrderError)
	expect.True(t, ok, "%v", err)
}

func TestAnnotateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	stats, err := Annotate(ctx, newFeatures(testFeatures), testAlignments(), &out, DefaultOpts)
	expect.EQ(t, err, context.Canceled)
	expect.EQ(t, stats.Alignments, uint64(0))
}

func TestAnnotateSAM(t *testing.T) {
	const sam = "@SQ\tSN:chr1\tLN:1000\n" +
		"@SQ\tSN:chr2\tLN:1000\n" +
		"q1\t0\tchr1\t95\t60\t10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\n" +
		"q2\t0\tchr2\t12\t30\t4M\t*\t0\t0\tACGT\tIIII\n"
	gff := "##gff-version 3\n" +
		"chr1\tsrc\tgene\t90\t96\t.\t+\t.\tID=g1\n" +
		"chr2\tsrc\texon\t1\t12\t.\t+\t.\tID=e1;Name=EXON1\n"
	alns, err := alignment.NewSAMReader(strings.NewReader(sam))
	require.NoError(t, err)
	features := feature.NewReader(strings.NewReader(gff), feature.GFF3)
	var out bytes.Buffer
	_, err = Annotate(context.Background(), features, alns, &out, DefaultOpts)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	expect.EQ(t, lines[1], "q1\tchr1\t95\t104\t60\tg1\tgene\t90\t96\t95\t96\t2")
	expect.EQ(t, lines[2], "q2\tchr2\t12\t15\t30\tEXON1\texon\t1\t12\t12\t12\t1")
}

func TestCoverage(t *testing.T) {
	var out bytes.Buffer
	stats, err := Coverage(context.Background(), newFeatures(testFeatures), testAlignments(), &out, DefaultOpts)
	require.NoError(t, err)
	expect.EQ(t, out.String(),
		"#CHROM\tSTART\tEND\tFEATURE\tTYPE\tN_ALIGNMENTS\tOVERLAP_BASES\n"+
			"chr1\t1\t100\tA\t.\t2\t27\n"+
			"chr1\t51\t60\tB\t.\t2\t7\n"+
			"chr1\t201\t300\tC\t.\t1\t10\n"+
			"chr2\t11\t20\tD\t.\t1\t5\n")
	expect.EQ(t, stats.Alignments, uint64(7))
	expect.EQ(t, stats.Features, uint64(4))
	expect.EQ(t, stats.Rows, uint64(4))
	expect.EQ(t, stats.MaxBuffered, 2)
	expect.EQ(t, stats.Window.AcceptedCount, uint64(5))
	expect.EQ(t, stats.Window.DiscardedCount, uint64(1))
	expect.EQ(t, stats.Window.UnmappedCount, uint64(1))
}

func TestCoverageDrainsAlignments(t *testing.T) {
	alns := &sliceSource{recs: []record.Record{
		aln("r1", "chr1", 10, 20, 60),
		aln("r2", "chr3", 10, 20, 60),
		aln("r3", "chr2", 10, 20, 60),
	}}
	var out bytes.Buffer
	stats, err := Coverage(context.Background(), newFeatures("chr1\t0\t5\tA\n"), alns, &out, DefaultOpts)
	require.Error(t, err)
	_, ok := errors.Cause(err).(*window.OrderError)
	expect.True(t, ok, "%v", err)
	expect.EQ(t, stats.Alignments, uint64(3))
}

func TestCoverageCapacity(t *testing.T) {
	// Every alignment overlaps the single long feature, so none can be
	// evicted.
	var recs []record.Record
	for i := uint64(0); i < 9; i++ {
		recs = append(recs, aln("r", "chr1", i, i+10, 60))
	}
	opts := DefaultOpts
	opts.InitialCapacity = 4
	opts.HardCap = 8
	var out bytes.Buffer
	_, err := Coverage(context.Background(), newFeatures("chr1\t0\t1000\tA\n"), &sliceSource{recs: recs}, &out, opts)
	require.Error(t, err)
	expect.EQ(t, errors.Cause(err), window.ErrCapacityExceeded)

	// The same input fits once the cap allows it.
	opts.HardCap = 16
	out.Reset()
	stats, err := Coverage(context.Background(), newFeatures("chr1\t0\t1000\tA\n"), &sliceSource{recs: recs}, &out, opts)
	require.NoError(t, err)
	expect.EQ(t, stats.MaxBuffered, 9)
	assert.Contains(t, out.String(), "chr1\t1\t1000\tA\t.\t9\t90\n")
}
