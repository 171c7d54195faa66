// Copyright 2018 GRAIL, Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/biosweep/encoding/feature"
	"github.com/grailbio/biosweep/sweep"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const (
	testBED = "chr1\t0\t100\tA\nchr1\t200\t300\tB\nchr2\t0\t50\tC\n"
	testSAM = "@SQ\tSN:chr1\tLN:1000\n" +
		"@SQ\tSN:chr2\tLN:1000\n" +
		"q1\t0\tchr1\t91\t60\t20M\t*\t0\t0\tACGTACGTACGTACGTACGT\tIIIIIIIIIIIIIIIIIIII\n" +
		"q2\t0\tchr1\t95\t10\t10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\n" +
		"q3\t0\tchr2\t1\t60\t10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\n"
)

func writeInputs(t *testing.T, dir string) (bedPath, samPath string) {
	bedPath = filepath.Join(dir, "features.bed")
	samPath = filepath.Join(dir, "reads.sam")
	assert.NoError(t, ioutil.WriteFile(bedPath, []byte(testBED), 0644))
	assert.NoError(t, ioutil.WriteFile(samPath, []byte(testSAM), 0644))
	return
}

func TestRunAnnotate(t *testing.T) {
	ctx := context.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bedPath, samPath := writeInputs(t, tempDir)
	outPath := filepath.Join(tempDir, "out.tsv")

	stats, err := run(ctx, "annotate", bedPath, samPath, outPath, feature.UnknownFormat, sweep.DefaultOpts)
	assert.NoError(t, err)
	expect.EQ(t, stats.Alignments, uint64(3))
	expect.EQ(t, stats.Window.DiscardedCount, uint64(1))
	got, err := ioutil.ReadFile(outPath)
	assert.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(got)), "\n")
	expect.EQ(t, len(lines), 3)
	expect.EQ(t, lines[1], "q1\tchr1\t91\t110\t60\tA\t.\t1\t100\t91\t100\t10")
	expect.EQ(t, lines[2], "q3\tchr2\t1\t10\t60\tC\t.\t1\t50\t1\t10\t10")
}

func TestRunCoverage(t *testing.T) {
	ctx := context.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bedPath, samPath := writeInputs(t, tempDir)
	outPath := filepath.Join(tempDir, "out.tsv")

	opts := sweep.DefaultOpts
	opts.MinMapQ = 0
	stats, err := run(ctx, "coverage", bedPath, samPath, outPath, feature.BED, opts)
	assert.NoError(t, err)
	expect.EQ(t, stats.Rows, uint64(3))
	got, err := ioutil.ReadFile(outPath)
	assert.NoError(t, err)
	expect.EQ(t, string(got),
		"#CHROM\tSTART\tEND\tFEATURE\tTYPE\tN_ALIGNMENTS\tOVERLAP_BASES\n"+
			"chr1\t1\t100\tA\t.\t2\t16\n"+
			"chr1\t201\t300\tB\t.\t0\t0\n"+
			"chr2\t1\t50\tC\t.\t1\t10\n")
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bedPath, samPath := writeInputs(t, tempDir)
	outPath := filepath.Join(tempDir, "out.tsv")

	_, err := run(ctx, "intersect", bedPath, samPath, outPath, feature.UnknownFormat, sweep.DefaultOpts)
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = run(ctx, "annotate", filepath.Join(tempDir, "missing.bed"), samPath, outPath, feature.UnknownFormat, sweep.DefaultOpts)
	expect.True(t, err != nil)

	_, err = parseFeatureFormat("vcf")
	expect.True(t, errors.Is(errors.Invalid, err))
	format, err := parseFeatureFormat("GFF3")
	assert.NoError(t, err)
	expect.EQ(t, format, feature.GFF3)
}
