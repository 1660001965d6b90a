// Package aligngraph defines the alignment-graph capability that the read
// partitioner is built on: an engine aligns a pool of reads to a reference
// and exposes the resulting multiple alignment as a graph of base nodes
// anchored to backbone (reference) positions.
//
// Engines register themselves by name; callers resolve one with Lookup so
// that partitioning logic never depends on a particular backend.
package aligngraph

import (
	"context"
	"sort"
	"sync"

	"github.com/bnbowman/PhasingTools/align"
	"github.com/bnbowman/PhasingTools/encoding/fasta"
	"github.com/grailbio/base/errors"
)

// NodeID identifies a node within one Graph.
type NodeID int

// NoNode is returned by navigation methods when no neighbour exists.
const NoNode NodeID = -1

// Coverage is the per-position support of a consensus base.
type Coverage struct {
	// Match is the number of reads that carry the consensus base.
	Match int
	// Mismatch is the number of reads that carry a different base.
	Mismatch int
	// Deletion is the number of spanning reads with no base at the position.
	Deletion int
	// Total is the number of reads spanning the position.
	Total int
}

// NodeEntropy is a node whose base-call entropy passed a threshold.
type NodeEntropy struct {
	Node NodeID
	// Pos is the backbone position the node is anchored to.
	Pos     int
	Entropy float64
}

// ReadAlignment records how one read was placed on the reference.
type ReadAlignment struct {
	Name string
	// Seq is the read sequence in the orientation that was aligned.
	Seq       string
	Alignment align.Alignment
}

// BuildOpts controls graph construction.
type BuildOpts struct {
	// MaxReads caps the number of reads used. Zero means no cap.
	MaxReads int
	// MaxCoverage caps the number of reads that may start at any one
	// backbone position. Zero means no cap.
	MaxCoverage int
	// RemoveIndels discards inserted bases so that every consensus position
	// maps to exactly one backbone position.
	RemoveIndels bool
	// Parallelism is the number of concurrent read alignments.
	Parallelism int
}

// Engine builds alignment graphs.
type Engine interface {
	Build(ctx context.Context, reads []fasta.Record, ref string, opts BuildOpts) (Graph, error)
}

// Graph is an immutable multiple alignment of reads against a reference.
type Graph interface {
	// Consensus returns the best-supported sequence over the backbone range
	// covered by at least minCov reads. When wantQV is set the per-position
	// coverage is returned as well; otherwise the slice is nil.
	Consensus(minCov int, wantQV bool) (string, []Coverage)
	// HighEntropyNodes returns the nodes whose backbone position is covered
	// by at least minCov reads and whose base-call entropy exceeds
	// entropyTh, in backbone order.
	HighEntropyNodes(minCov int, entropyTh float64) []NodeEntropy
	// DetectMissing returns a consensus in which homopolymer bases that were
	// outvoted by deletions, but whose support is ambiguous, are restored.
	DetectMissing(entropyTh float64) string
	// MarkLowerCase returns the consensus with low-confidence bases in lower
	// case.
	MarkLowerCase(entropyTh float64) string

	// Base returns the base of node n.
	Base(n NodeID) byte
	// BestIn returns the predecessor of n with the most read support, or
	// NoNode.
	BestIn(n NodeID) NodeID
	// BestOut returns the successor of n with the most read support, or
	// NoNode.
	BestOut(n NodeID) NodeID
	// NodeReads returns the names of the reads that carry node n.
	NodeReads(n NodeID) []string
	// BackbonePos returns the backbone position node n is anchored to.
	BackbonePos(n NodeID) int

	// ReadIDs returns the names of all reads placed in the graph, in input
	// order.
	ReadIDs() []string
	// ReadRange returns the backbone interval [start, end) covered by a
	// read.
	ReadRange(id string) (start, end int, ok bool)
	// Alignments returns the placement of every read.
	Alignments() []ReadAlignment
}

var (
	mu      sync.RWMutex
	engines = map[string]Engine{}
)

// Register makes an engine available under name. It panics if name is
// already taken or e is nil.
func Register(name string, e Engine) {
	if e == nil {
		panic("aligngraph: nil engine for " + name)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := engines[name]; ok {
		panic("aligngraph: engine " + name + " registered twice")
	}
	engines[name] = e
}

// Lookup returns the engine registered under name.
func Lookup(name string) (Engine, error) {
	mu.RLock()
	e, ok := engines[name]
	mu.RUnlock()
	if !ok {
		return nil, errors.E(errors.Unavailable, "no alignment graph engine named", name)
	}
	return e, nil
}

// Engines returns the sorted names of the registered engines.
func Engines() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
