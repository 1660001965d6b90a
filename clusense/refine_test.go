package clusense

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/bnbowman/PhasingTools/aligngraph"
	"github.com/bnbowman/PhasingTools/encoding/fasta"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func refineConfig(t *testing.T, dir string, reads []fasta.Record, seed string) *Config {
	ctx := vcontext.Background()
	opts := setup(t, dir, reads)
	assert.NoError(t, fasta.WriteFile(ctx, opts.RefPath, fasta.Record{Name: "seed", Seq: seed}))
	cfg, err := NewConfig(ctx, opts, testEngine(t))
	assert.NoError(t, err)
	return cfg
}

func TestRefineConverges(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	seed := hapA[:100] + "T" + hapA[101:] // C -> T
	cfg := refineConfig(t, tmpdir, records("a", hapA, 20), seed)
	out := filepath.Join(tmpdir, "cns.fa")
	for _, hp := range []bool{false, true} {
		ro := cfg.Refine
		ro.HPCorrection = hp
		cns, err := Refine(ctx, cfg, ro, cfg.ReadsPath, cfg.RefPath, out, "cns")
		assert.NoError(t, err)
		expect.EQ(t, cns.Seq, hapA)
		expect.False(t, cns.Degenerate)
		expect.True(t, cns.Graph != nil)
		assert.EQ(t, len(cns.Coverage), len(hapA))
		expect.EQ(t, cns.Coverage[100], aligngraph.Coverage{Match: 20, Total: 20})

		written, err := fasta.ReadFirst(ctx, out)
		assert.NoError(t, err)
		expect.EQ(t, written, fasta.Record{Name: "cns", Seq: hapA})
	}
}

func TestRefineLowerCase(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	reads := append(records("a", hapA, 12), records("b", hapB(), 8)...)
	cfg := refineConfig(t, tmpdir, reads, hapA)
	ro := cfg.Refine
	ro.MarkLowerCase = true
	cns, err := Refine(ctx, cfg, ro, cfg.ReadsPath, cfg.RefPath, filepath.Join(tmpdir, "cns.fa"), "cns")
	assert.NoError(t, err)

	want := []byte(hapA)
	for pos := range hapSNPs {
		want[pos] = strings.ToLower(hapA[pos : pos+1])[0]
	}
	expect.EQ(t, cns.Seq, string(want))
	expect.EQ(t, len(cns.Coverage), len(hapA))
}

func TestRefineDegenerate(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	short := hapA[:60]
	cfg := refineConfig(t, tmpdir, records("a", short, 20), hapA)
	out := filepath.Join(tmpdir, "cns.fa")
	for _, iterations := range []int{1, 4} {
		ro := cfg.Refine
		ro.MinIterations = iterations
		cns, err := Refine(ctx, cfg, ro, cfg.ReadsPath, cfg.RefPath, out, "cns")
		assert.NoError(t, err)
		expect.EQ(t, cns, Consensus{Seq: short, Coverage: []aligngraph.Coverage{}, Degenerate: true})

		written, err := fasta.ReadFirst(ctx, out)
		assert.NoError(t, err)
		expect.EQ(t, written.Seq, short)
	}
}

func TestRefineMissingInput(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	cfg := refineConfig(t, tmpdir, records("a", hapA, 20), hapA)
	_, err := Refine(ctx, cfg, cfg.Refine, filepath.Join(tmpdir, "missing.fa"), cfg.RefPath, filepath.Join(tmpdir, "cns.fa"), "cns")
	expect.True(t, err != nil)
}
