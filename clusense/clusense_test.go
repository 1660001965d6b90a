package clusense

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bnbowman/PhasingTools/aligngraph"
	"github.com/bnbowman/PhasingTools/encoding/fasta"
	"github.com/bnbowman/PhasingTools/pileup"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hapA has no homopolymers and no repeated 5-mers.
const hapA = "GATCGCAGTCGCTCTATAGACTCTCGATATCGAGCGTGATCTGCATACTCATCGTGTGACTACATCACGTCAGTGTATCATGATGCTAGAGACGCACTAGCATGTGCAGCGCTGAGTAGTGCGACTGACGAGTCACACTCGCGTAGATACACAGCACATATACGTGCTCAGATCAGCTGTGTCATAGTATATGTCTGTCG"

// hapSNPs are the substitutions of hapB relative to hapA. Every alternate
// base sorts after the hapA base and differs from both neighbours.
var hapSNPs = map[int]byte{40: 'G', 82: 'C', 121: 'T', 161: 'G'}

func hapB() string {
	b := []byte(hapA)
	for pos, base := range hapSNPs {
		b[pos] = base
	}
	return string(b)
}

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	status := m.Run()
	shutdown()
	os.Exit(status)
}

func records(prefix, seq string, n int) []fasta.Record {
	recs := make([]fasta.Record, n)
	for i := range recs {
		recs[i] = fasta.Record{Name: fmt.Sprintf("%s%02d", prefix, i), Seq: seq}
	}
	return recs
}

func recordNames(recs []fasta.Record) []string {
	names := make([]string, len(recs))
	for i, r := range recs {
		names[i] = r.Name
	}
	return names
}

func testEngine(t *testing.T) aligngraph.Engine {
	e, err := aligngraph.Lookup(pileup.EngineName)
	require.NoError(t, err)
	return e
}

// setup writes reads.fa and ref.fa to dir and returns options that run on
// them with MinGroup 10.
func setup(t *testing.T, dir string, reads []fasta.Record) Opts {
	ctx := vcontext.Background()
	opts := DefaultOpts
	opts.ReadsPath = filepath.Join(dir, "reads.fa")
	opts.RefPath = filepath.Join(dir, "ref.fa")
	opts.OutDir = filepath.Join(dir, "out")
	opts.MinGroup = 10
	opts.Parallelism = 2
	opts.Prefix = "Test"
	require.NoError(t, fasta.WriteFile(ctx, opts.ReadsPath, reads...))
	require.NoError(t, fasta.WriteFile(ctx, opts.RefPath, fasta.Record{Name: "ref", Seq: hapA}))
	return opts
}

func twoHaplotypes() []fasta.Record {
	return append(records("a", hapA, 20), records("b", hapB(), 20)...)
}

func countBAMRecords(t *testing.T, path string) int {
	ctx := vcontext.Background()
	in, err := file.Open(ctx, path)
	require.NoError(t, err)
	defer func() { require.NoError(t, in.Close(ctx)) }()
	r, err := bam.NewReader(in.Reader(ctx), 1)
	require.NoError(t, err)
	n := 0
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		n++
	}
	require.NoError(t, r.Close())
	return n
}

func TestRun(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	opts := setup(t, tmpdir, twoHaplotypes())
	opts.WriteBAM = true
	c, err := New(ctx, opts, testEngine(t))
	require.NoError(t, err)
	s, err := c.Run(ctx)
	require.NoError(t, err)

	require.Len(t, s.Groups, 2)
	assert.Equal(t, GroupSummary{Name: "group_01", Count: 20, Status: StatusUnsplit, Depth: 1}, s.Groups[0])
	assert.Equal(t, GroupSummary{Name: "group_02", Count: 20, Status: StatusUnsplit, Depth: 1}, s.Groups[1])
	assert.Equal(t, 40, s.Total)

	persisted, err := ReadSummary(ctx, opts.OutDir)
	require.NoError(t, err)
	assert.Equal(t, []GroupSummary{{Name: "group_01", Count: 20}, {Name: "group_02", Count: 20}}, persisted.Groups)
	assert.Equal(t, 40, persisted.Total)

	root, err := fasta.ReadFirst(ctx, c.Config().Path("group_root_cns.fa"))
	require.NoError(t, err)
	assert.Equal(t, fasta.Record{Name: "group_root_cns", Seq: hapA}, root)

	for i, want := range []struct {
		prefix, seq string
	}{{"b", hapB()}, {"a", hapA}} {
		name := fmt.Sprintf("group_%02d", i+1)
		reads, err := fasta.ReadFile(ctx, c.Config().Path(name+".fa"))
		require.NoError(t, err)
		assert.Equal(t, records(want.prefix, want.seq, 20), reads)

		cns, err := fasta.ReadFirst(ctx, c.Config().Path(name+"_cns.fa"))
		require.NoError(t, err)
		assert.Equal(t, fasta.Record{Name: "Test_" + name + "_cns", Seq: want.seq}, cns)

		data, err := ioutil.ReadFile(c.Config().Path(name + ".score"))
		require.NoError(t, err)
		score := string(data)
		assert.Contains(t, score, "0\tG\t20\t0\t0\t20\t0.9524\n")
		assert.Equal(t, len(want.seq), strings.Count(score, "\n"))

		assert.Equal(t, 20, countBAMRecords(t, c.Config().Path(name+".bam")))
	}

	tmp, err := filepath.Glob(c.Config().Path("tmp_*"))
	require.NoError(t, err)
	assert.Empty(t, tmp)
}

func TestRunParallelBranches(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	opts := setup(t, tmpdir, twoHaplotypes())
	opts.ParallelBranches = true
	opts.KeepTemp = true
	c, err := New(ctx, opts, testEngine(t))
	require.NoError(t, err)
	s, err := c.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, s.Total)
	require.Len(t, s.Groups, 2)
	assert.Equal(t, 20, s.Groups[0].Count)
	assert.Equal(t, 20, s.Groups[1].Count)

	_, err = os.Stat(c.Config().Path("tmp_cns.fa"))
	assert.NoError(t, err)
	children, err := filepath.Glob(c.Config().Path("tmp_reads_*.fa"))
	require.NoError(t, err)
	assert.Len(t, children, 2)
	_, err = os.Stat(c.Config().Path("group_01.bam"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunNoEngine(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	opts := setup(t, tmpdir, twoHaplotypes())
	_, err := New(ctx, opts, nil)
	require.Error(t, err)
	_, err = os.Stat(opts.OutDir)
	assert.True(t, os.IsNotExist(err), "no output before the configuration is valid")
}
