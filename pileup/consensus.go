package pileup

import (
	"math"

	"github.com/bnbowman/PhasingTools/aligngraph"
)

// binaryEntropy returns -p ln p - (1-p) ln(1-p), and 0 outside (0, 1).
func binaryEntropy(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return -p*math.Log(p) - (1-p)*math.Log(1-p)
}

// call is one emitted consensus base.
type call struct {
	base byte // ASCII
	node aligngraph.NodeID
	cov  aligngraph.Coverage
}

// span returns the backbone interval [start, end) between the first and the
// last position spanned by at least minCov reads (and at least one).
func (g *Graph) span(minCov int) (start, end int) {
	if minCov < 1 {
		minCov = 1
	}
	start = -1
	for pos, n := range g.spanning {
		if n >= minCov {
			if start < 0 {
				start = pos
			}
			end = pos + 1
		}
	}
	if start < 0 {
		return 0, 0
	}
	return start, end
}

// bestBase returns the best-supported base at pos, or 0.
func (g *Graph) bestBase(pos int) byte {
	if pos < 0 || pos >= len(g.cols) {
		return 0
	}
	id, _ := g.best(g.cols[pos], ASCIIToEnumTable[g.ref[pos]])
	if id == aligngraph.NoNode {
		return 0
	}
	return g.nodes[id].base
}

// calls walks the covered span and emits the consensus bases. A backbone base
// outvoted by deletions is dropped unless indels were removed, or restoreTh
// is non-negative and the base sits next to the same base with ambiguous
// support.
func (g *Graph) calls(minCov int, restoreTh float64) []call {
	start, end := g.span(minCov)
	calls := make([]call, 0, end-start)
	for pos := start; pos < end; pos++ {
		depth := g.spanning[pos]
		id, total := g.best(g.cols[pos], ASCIIToEnumTable[g.ref[pos]])
		n := g.count(id)
		del := depth - total
		cov := aligngraph.Coverage{Match: n, Mismatch: total - n, Deletion: del, Total: depth}
		switch {
		case id == aligngraph.NoNode:
			if g.removeIndels {
				calls = append(calls, call{base: g.ref[pos], node: id, cov: cov})
			}
		case g.removeIndels || n >= del:
			calls = append(calls, call{base: g.Base(id), node: id, cov: cov})
		case restoreTh >= 0 && depth > 0 && binaryEntropy(float64(n)/float64(depth)) > restoreTh:
			b := g.nodes[id].base
			if g.bestBase(pos-1) == b || g.bestBase(pos+1) == b {
				calls = append(calls, call{base: g.Base(id), node: id, cov: cov})
			}
		}
		if g.removeIndels || pos+1 >= end {
			continue
		}
		for _, slot := range g.ins[pos] {
			id, total := g.best(slot, BaseX)
			n := g.count(id)
			if 2*n <= depth {
				break
			}
			calls = append(calls, call{
				base: g.Base(id),
				node: id,
				cov:  aligngraph.Coverage{Match: n, Mismatch: total - n, Deletion: depth - total, Total: depth},
			})
		}
	}
	return calls
}

// Consensus implements aligngraph.Graph.
func (g *Graph) Consensus(minCov int, wantQV bool) (string, []aligngraph.Coverage) {
	calls := g.calls(minCov, -1)
	seq := make([]byte, len(calls))
	var cov []aligngraph.Coverage
	if wantQV {
		cov = make([]aligngraph.Coverage, len(calls))
	}
	for i, c := range calls {
		seq[i] = c.base
		if wantQV {
			cov[i] = c.cov
		}
	}
	return string(seq), cov
}

// HighEntropyNodes implements aligngraph.Graph.
func (g *Graph) HighEntropyNodes(minCov int, entropyTh float64) []aligngraph.NodeEntropy {
	var out []aligngraph.NodeEntropy
	add := func(pos int, ids []aligngraph.NodeID) {
		depth := float64(g.spanning[pos])
		for _, id := range ids {
			if e := binaryEntropy(float64(g.count(id)) / depth); e > entropyTh {
				out = append(out, aligngraph.NodeEntropy{Node: id, Pos: pos, Entropy: e})
			}
		}
	}
	for pos, depth := range g.spanning {
		if depth == 0 || depth < minCov {
			continue
		}
		add(pos, g.cols[pos])
		for _, slot := range g.ins[pos] {
			add(pos, slot)
		}
	}
	return out
}

// DetectMissing implements aligngraph.Graph.
func (g *Graph) DetectMissing(entropyTh float64) string {
	calls := g.calls(0, entropyTh)
	seq := make([]byte, len(calls))
	for i, c := range calls {
		seq[i] = c.base
	}
	return string(seq)
}

// MarkLowerCase implements aligngraph.Graph. A base is lowered when the split
// between reads carrying it and reads carrying another base is ambiguous;
// deletions do not count against it.
func (g *Graph) MarkLowerCase(entropyTh float64) string {
	calls := g.calls(0, -1)
	seq := make([]byte, len(calls))
	for i, c := range calls {
		seq[i] = c.base
		called := c.cov.Match + c.cov.Mismatch
		if called > 0 && binaryEntropy(float64(c.cov.Match)/float64(called)) > entropyTh {
			seq[i] |= 0x20
		}
	}
	return string(seq)
}
