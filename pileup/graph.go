package pileup

import (
	"sort"

	"github.com/bnbowman/PhasingTools/aligngraph"
	"github.com/grailbio/hts/sam"
)

// nodeKey locates a node: a base at a backbone position, or a base in the
// k-th insertion slot after a backbone position.
type nodeKey struct {
	pos  int
	ins  int // 0 for backbone nodes
	base byte
}

type node struct {
	nodeKey
	// reads holds indices into Graph.aligned.
	reads []int32
	// in and out count read transitions from/to neighbouring nodes.
	in, out map[aligngraph.NodeID]int
}

// Graph is a reference-anchored pileup of aligned reads. Every backbone
// position owns one node per observed base; when indels are retained,
// inserted bases get nodes in ordered insertion slots between backbone
// positions. Graph implements aligngraph.Graph and is read-only once built.
type Graph struct {
	ref          string
	removeIndels bool

	nodes []node
	index map[nodeKey]aligngraph.NodeID
	// cols[pos] lists the backbone nodes at pos in base order.
	cols [][]aligngraph.NodeID
	// ins[pos][k-1] lists the nodes in the k-th insertion slot after pos.
	ins [][][]aligngraph.NodeID
	// spanning[pos] counts the reads whose aligned range covers pos.
	spanning []int

	aligned []aligngraph.ReadAlignment
	ranges  map[string][2]int
}

func newGraph(ref string, removeIndels bool) *Graph {
	return &Graph{
		ref:          ref,
		removeIndels: removeIndels,
		index:        make(map[nodeKey]aligngraph.NodeID),
		cols:         make([][]aligngraph.NodeID, len(ref)),
		ins:          make([][][]aligngraph.NodeID, len(ref)),
		spanning:     make([]int, len(ref)),
		ranges:       make(map[string][2]int),
	}
}

func (g *Graph) node(k nodeKey) aligngraph.NodeID {
	if id, ok := g.index[k]; ok {
		return id
	}
	id := aligngraph.NodeID(len(g.nodes))
	g.nodes = append(g.nodes, node{
		nodeKey: k,
		in:      make(map[aligngraph.NodeID]int),
		out:     make(map[aligngraph.NodeID]int),
	})
	g.index[k] = id
	if k.ins == 0 {
		g.cols[k.pos] = append(g.cols[k.pos], id)
	} else {
		for len(g.ins[k.pos]) < k.ins {
			g.ins[k.pos] = append(g.ins[k.pos], nil)
		}
		g.ins[k.pos][k.ins-1] = append(g.ins[k.pos][k.ins-1], id)
	}
	return id
}

func (g *Graph) link(prev, id aligngraph.NodeID, read int32) {
	g.nodes[id].reads = append(g.nodes[id].reads, read)
	if prev != aligngraph.NoNode {
		g.nodes[prev].out[id]++
		g.nodes[id].in[prev]++
	}
}

// addRead threads one aligned read through the graph. Bases that are not
// A/C/G/T are treated as no-calls. Insertions before the first placed base
// are clipped.
func (g *Graph) addRead(ra aligngraph.ReadAlignment) {
	idx := int32(len(g.aligned))
	a := ra.Alignment
	prev := aligngraph.NoNode
	refPos, readPos, slot := a.RefStart, 0, 0
	for _, op := range a.Cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch:
			for k := 0; k < n; k++ {
				if b := ASCIIToEnumTable[ra.Seq[readPos+k]]; b != BaseX {
					id := g.node(nodeKey{pos: refPos + k, base: b})
					g.link(prev, id, idx)
					prev = id
				}
			}
			refPos += n
			readPos += n
			slot = 0
		case sam.CigarInsertion:
			if !g.removeIndels && prev != aligngraph.NoNode {
				for k := 0; k < n; k++ {
					if b := ASCIIToEnumTable[ra.Seq[readPos+k]]; b != BaseX {
						slot++
						id := g.node(nodeKey{pos: refPos - 1, ins: slot, base: b})
						g.link(prev, id, idx)
						prev = id
					}
				}
			}
			readPos += n
		case sam.CigarDeletion:
			refPos += n
			slot = 0
		}
	}
	for p := a.RefStart; p < a.RefEnd; p++ {
		g.spanning[p]++
	}
	g.ranges[ra.Name] = [2]int{a.RefStart, a.RefEnd}
	g.aligned = append(g.aligned, ra)
}

// finalize orders every column and insertion slot by base.
func (g *Graph) finalize() {
	byBase := func(ids []aligngraph.NodeID) {
		sort.Slice(ids, func(i, j int) bool { return g.nodes[ids[i]].base < g.nodes[ids[j]].base })
	}
	for pos := range g.cols {
		byBase(g.cols[pos])
		for _, slot := range g.ins[pos] {
			byBase(slot)
		}
	}
}

// count returns the number of reads carrying node id.
func (g *Graph) count(id aligngraph.NodeID) int {
	if id == aligngraph.NoNode {
		return 0
	}
	return len(g.nodes[id].reads)
}

// best returns the best-supported node among ids and the total support of
// all of them. Ties go to prefer, then to the lower base.
func (g *Graph) best(ids []aligngraph.NodeID, prefer byte) (aligngraph.NodeID, int) {
	bestID, bestN, total := aligngraph.NoNode, 0, 0
	for _, id := range ids {
		n := g.count(id)
		total += n
		if n > bestN || (n == bestN && n > 0 && g.nodes[id].base == prefer) {
			bestID, bestN = id, n
		}
	}
	return bestID, total
}

func heaviest(edges map[aligngraph.NodeID]int) aligngraph.NodeID {
	bestID, bestW := aligngraph.NoNode, 0
	for id, w := range edges {
		if w > bestW || (w == bestW && id < bestID) {
			bestID, bestW = id, w
		}
	}
	return bestID
}

// Base implements aligngraph.Graph.
func (g *Graph) Base(n aligngraph.NodeID) byte { return EnumToASCIITable[g.nodes[n].base] }

// BestIn implements aligngraph.Graph.
func (g *Graph) BestIn(n aligngraph.NodeID) aligngraph.NodeID { return heaviest(g.nodes[n].in) }

// BestOut implements aligngraph.Graph.
func (g *Graph) BestOut(n aligngraph.NodeID) aligngraph.NodeID { return heaviest(g.nodes[n].out) }

// BackbonePos implements aligngraph.Graph.
func (g *Graph) BackbonePos(n aligngraph.NodeID) int { return g.nodes[n].pos }

// NodeReads implements aligngraph.Graph.
func (g *Graph) NodeReads(n aligngraph.NodeID) []string {
	names := make([]string, len(g.nodes[n].reads))
	for i, r := range g.nodes[n].reads {
		names[i] = g.aligned[r].Name
	}
	return names
}

// ReadIDs implements aligngraph.Graph.
func (g *Graph) ReadIDs() []string {
	names := make([]string, len(g.aligned))
	for i, ra := range g.aligned {
		names[i] = ra.Name
	}
	return names
}

// ReadRange implements aligngraph.Graph.
func (g *Graph) ReadRange(id string) (start, end int, ok bool) {
	r, ok := g.ranges[id]
	return r[0], r[1], ok
}

// Alignments implements aligngraph.Graph.
func (g *Graph) Alignments() []aligngraph.ReadAlignment { return g.aligned }

// Depth returns the number of reads spanning backbone position pos.
func (g *Graph) Depth(pos int) int { return g.spanning[pos] }
