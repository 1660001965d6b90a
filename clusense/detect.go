package clusense

import (
	"github.com/bnbowman/PhasingTools/aligngraph"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Allele symbols. A read carrying the column's base is encoded by the base
// itself.
const (
	AlleleAbsent = '*' // read spans the column without carrying its base
	AlleleBlank  = ' ' // column lies outside the read's aligned range
)

// ErrNoVariantSignal reports that no column can discriminate between reads.
// It ends splitting for a group; it is not a failure.
var ErrNoVariantSignal = errors.E("no discriminating variant columns")

// maxHomopolymerScan bounds each direction of the homopolymer scan.
const maxHomopolymerScan = 5

// VariantColumn is a high-entropy graph node used as one allele column.
type VariantColumn struct {
	Node aligngraph.NodeID
	// Pos is the backbone position of Node.
	Pos     int
	Base    byte
	Entropy float64
}

// AlleleVector holds the allele symbols of one read, one per column.
type AlleleVector struct {
	ID      string
	Alleles []byte
}

// homopolymerRun counts the nodes carrying n's base along the best-supported
// chain before and after n, up to maxHomopolymerScan each way.
func homopolymerRun(g aligngraph.Graph, n aligngraph.NodeID) (back, fwd int) {
	b := g.Base(n)
	for p := g.BestIn(n); p != aligngraph.NoNode && g.Base(p) == b && back < maxHomopolymerScan; p = g.BestIn(p) {
		back++
	}
	for p := g.BestOut(n); p != aligngraph.NoNode && g.Base(p) == b && fwd < maxHomopolymerScan; p = g.BestOut(p) {
		fwd++
	}
	return
}

func isHomopolymer(g aligngraph.Graph, n aligngraph.NodeID) bool {
	back, fwd := homopolymerRun(g, n)
	return back+fwd >= 3
}

// DetectColumns selects the nodes of g whose entropy exceeds entropyTh and
// that are not part of a homopolymer run, and encodes every read of g over
// them. Vectors are returned in g.ReadIDs order. ErrNoVariantSignal is
// returned when no column survives or g holds no reads.
func DetectColumns(g aligngraph.Graph, entropyTh float64) ([]AlleleVector, []VariantColumn, error) {
	var cols []VariantColumn
	nHomopolymer := 0
	for _, ne := range g.HighEntropyNodes(0, entropyTh) {
		if isHomopolymer(g, ne.Node) {
			nHomopolymer++
			continue
		}
		cols = append(cols, VariantColumn{Node: ne.Node, Pos: ne.Pos, Base: g.Base(ne.Node), Entropy: ne.Entropy})
	}
	ids := g.ReadIDs()
	log.Debug.Printf("detect: %d columns kept, %d homopolymer columns dropped, %d reads", len(cols), nHomopolymer, len(ids))
	if len(cols) == 0 || len(ids) == 0 {
		return nil, cols, ErrNoVariantSignal
	}

	vectors := make([]AlleleVector, len(ids))
	for i, id := range ids {
		alleles := make([]byte, len(cols))
		for j := range alleles {
			alleles[j] = AlleleBlank
		}
		vectors[i] = AlleleVector{ID: id, Alleles: alleles}
	}
	for j, c := range cols {
		carriers := make(map[string]bool)
		for _, id := range g.NodeReads(c.Node) {
			carriers[id] = true
		}
		for i, id := range ids {
			if carriers[id] {
				vectors[i].Alleles[j] = c.Base
			} else if start, end, ok := g.ReadRange(id); ok && c.Pos >= start && c.Pos < end {
				vectors[i].Alleles[j] = AlleleAbsent
			}
		}
	}
	return vectors, cols, nil
}
