package clusense

import (
	"testing"

	"github.com/bnbowman/PhasingTools/aligngraph"
	"github.com/bnbowman/PhasingTools/encoding/fasta"
	"github.com/grailbio/base/vcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, reads []fasta.Record, ref string) aligngraph.Graph {
	g, err := testEngine(t).Build(vcontext.Background(), reads, ref, aligngraph.BuildOpts{RemoveIndels: true})
	require.NoError(t, err)
	return g
}

func TestDetectSubstitution(t *testing.T) {
	ref := hapA[:130]
	full := ref[10:110]
	snp := ref[10:50] + "C" + ref[51:110] // A -> C
	reads := append(records("a", full, 6), records("b", snp, 4)...)
	reads = append(reads, fasta.Record{Name: "p", Seq: ref[10:40]})

	vectors, cols, err := DetectColumns(buildGraph(t, reads, ref), testEntropy)
	require.NoError(t, err)
	require.Len(t, cols, 2)
	for i, base := range []byte("AC") {
		assert.Equal(t, 50, cols[i].Pos)
		assert.Equal(t, base, cols[i].Base)
		assert.InDelta(t, CalculateEntropy(0.4), cols[i].Entropy, 1e-12)
	}

	require.Len(t, vectors, 11)
	for _, v := range vectors {
		switch v.ID[0] {
		case 'a':
			assert.Equal(t, "A*", string(v.Alleles), v.ID)
		case 'b':
			assert.Equal(t, "*C", string(v.Alleles), v.ID)
		default:
			// p ends before the variant column.
			assert.Equal(t, "  ", string(v.Alleles), v.ID)
		}
	}
}

func TestDetectDeletion(t *testing.T) {
	ref := hapA[:130]
	full := ref[10:110]
	del := ref[10:60] + ref[61:110]
	reads := append(records("a", full, 4), records("d", del, 6)...)

	vectors, cols, err := DetectColumns(buildGraph(t, reads, ref), testEntropy)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, 60, cols[0].Pos)
	assert.Equal(t, ref[60], cols[0].Base)
	for _, v := range vectors {
		if v.ID[0] == 'a' {
			assert.Equal(t, []byte{ref[60]}, v.Alleles)
		} else {
			assert.Equal(t, []byte{AlleleAbsent}, v.Alleles)
		}
	}
}

func TestDetectHomopolymer(t *testing.T) {
	// The same deletion inside a run of five As is an indel artifact.
	ref := hapA[:60] + "AAAAA" + hapA[60:130]
	full := ref[10:115]
	del := ref[10:62] + ref[63:115]
	reads := append(records("a", full, 4), records("d", del, 6)...)
	g := buildGraph(t, reads, ref)

	nodes := g.HighEntropyNodes(0, testEntropy)
	require.Len(t, nodes, 1)
	back, fwd := homopolymerRun(g, nodes[0].Node)
	assert.Equal(t, 0, back)
	assert.Equal(t, 4, fwd)

	_, cols, err := DetectColumns(g, testEntropy)
	assert.Equal(t, ErrNoVariantSignal, err)
	assert.Empty(t, cols)
}

func TestHomopolymerRunCap(t *testing.T) {
	ref := hapA[:60] + "AAAAAAAA" + hapA[60:130]
	full := ref[10:118]
	del := ref[10:62] + ref[63:118]
	reads := append(records("a", full, 4), records("d", del, 6)...)
	g := buildGraph(t, reads, ref)

	nodes := g.HighEntropyNodes(0, testEntropy)
	require.Len(t, nodes, 1)
	back, fwd := homopolymerRun(g, nodes[0].Node)
	assert.Equal(t, 0, back)
	assert.Equal(t, maxHomopolymerScan, fwd)
}

func TestDetectNoSignal(t *testing.T) {
	ref := hapA[:130]
	_, _, err := DetectColumns(buildGraph(t, records("a", ref[10:110], 10), ref), testEntropy)
	assert.Equal(t, ErrNoVariantSignal, err)

	_, _, err = DetectColumns(buildGraph(t, nil, ref), testEntropy)
	assert.Equal(t, ErrNoVariantSignal, err)
}
