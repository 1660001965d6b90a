package clusense

import (
	"context"
	"fmt"

	"github.com/bnbowman/PhasingTools/align"
	"github.com/bnbowman/PhasingTools/aligngraph"
	"github.com/bnbowman/PhasingTools/encoding/fasta"
	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/willf/bitset"
)

// Status tells why a ReadGroup was not split further.
type Status string

const (
	// StatusTooSmall marks a group with fewer than MinGroup reads.
	StatusTooSmall Status = "-"
	// StatusUnsplit marks a group in which no split was found.
	StatusUnsplit Status = "+"
)

// ReadGroup is a leaf of the bisection: a set of reads presumed to come from
// one haplotype.
type ReadGroup struct {
	IDs []string
	// Seq is the consensus of the group's reads, indels removed. It is empty
	// when no consensus could be called.
	Seq      string
	Coverage []aligngraph.Coverage
	Status   Status
	// Depth is the number of driver levels above the group.
	Depth int
}

// Driver alternates consensus refinement and partitioning: every group a
// partition produces gets its own consensus and is partitioned again.
type Driver struct {
	cfg *Config
}

// NewDriver returns a Driver for cfg.
func NewDriver(cfg *Config) *Driver {
	return &Driver{cfg: cfg}
}

// branchName returns a working-file name unique to the i-th child of the
// branch reading readsPath.
func branchName(kind, readsPath string, i int) string {
	h := farm.Fingerprint64([]byte(fmt.Sprintf("%s_%d", readsPath, i)))
	return fmt.Sprintf("tmp_%s_%016x.fa", kind, h)
}

// Run separates readIDs, which must be the records of readsPath. The first
// record of refPath seeds the consensus. Every id is returned in exactly one
// group.
func (d *Driver) Run(ctx context.Context, readIDs []string, readsPath, refPath string) ([]ReadGroup, error) {
	return d.run(ctx, readIDs, readsPath, refPath, 0)
}

func (d *Driver) run(ctx context.Context, readIDs []string, readsPath, refPath string, depth int) ([]ReadGroup, error) {
	cfg := d.cfg
	leaf := func(status Status, seq string, cov []aligngraph.Coverage) []ReadGroup {
		log.Printf("level %d: %d reads in %s form a %q group", depth, len(readIDs), readsPath, status)
		return []ReadGroup{{IDs: readIDs, Seq: seq, Coverage: cov, Status: status, Depth: depth}}
	}

	ro := cfg.Refine
	ro.HPCorrection, ro.MarkLowerCase = false, false
	refined, err := Refine(ctx, cfg, ro, readsPath, refPath, cfg.Path(branchName("level", readsPath, -1)), "tmp_cns")
	if err != nil {
		return nil, err
	}
	if refined.Seq == "" {
		log.Error.Printf("level %d: no consensus for %d reads in %s", depth, len(readIDs), readsPath)
		if len(readIDs) < cfg.MinGroup {
			return leaf(StatusTooSmall, "", nil), nil
		}
		return leaf(StatusUnsplit, "", nil), nil
	}
	if log.At(log.Debug) {
		if seed, err := fasta.ReadFirst(ctx, refPath); err == nil {
			log.Debug.Printf("level %d: consensus of %d bp, %d edits from its seed", depth, len(refined.Seq), align.EditDistance(seed.Seq, refined.Seq))
		}
	}

	reads, err := fasta.ReadFile(ctx, readsPath)
	if err != nil {
		return nil, err
	}
	g, err := cfg.Engine.Build(ctx, reads, refined.Seq, cfg.buildOpts(cfg.MaxCoverage, cfg.MaxCoverage, true))
	if err != nil {
		return nil, err
	}
	seq, cov := g.Consensus(0, true)
	if len(readIDs) < cfg.MinGroup {
		return leaf(StatusTooSmall, seq, cov), nil
	}
	vectors, cols, err := DetectColumns(g, cfg.Entropy)
	if err == ErrNoVariantSignal {
		return leaf(StatusUnsplit, seq, cov), nil
	}
	if err != nil {
		return nil, err
	}
	vectors = padVectors(vectors, readIDs, len(cols))

	groups := Partitioner{MinGroup: cfg.MinGroup, Entropy: cfg.Entropy}.Partition(vectors, 0)
	if len(groups) == 1 {
		return leaf(StatusUnsplit, seq, cov), nil
	}
	children := make([][]string, len(groups))
	for i, grp := range groups {
		for _, v := range grp.Vectors {
			children[i] = append(children[i], v.ID)
		}
	}
	if err := checkCover(readIDs, children); err != nil {
		return nil, err
	}
	log.Printf("level %d: %d reads in %s split into %d groups over %d columns", depth, len(readIDs), readsPath, len(groups), len(cols))

	results := make([][]ReadGroup, len(children))
	branch := func(i int) error {
		ids := make(map[string]bool, len(children[i]))
		for _, id := range children[i] {
			ids[id] = true
		}
		childReads := cfg.Path(branchName("reads", readsPath, i))
		if _, err := fasta.Fetch(ctx, readsPath, childReads, ids); err != nil {
			return err
		}
		childRef := cfg.Path(branchName("cns", readsPath, i))
		if err := fasta.WriteFile(ctx, childRef, fasta.Record{Name: "tmp_cns", Seq: seq}); err != nil {
			return err
		}
		var err error
		results[i], err = d.run(ctx, children[i], childReads, childRef, depth+1)
		return err
	}
	if cfg.ParallelBranches {
		err = traverse.Each(len(children), branch)
	} else {
		for i := range children {
			if err = branch(i); err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}
	var out []ReadGroup
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// padVectors returns vectors extended by an all-blank vector for every id in
// readIDs that the graph did not place.
func padVectors(vectors []AlleleVector, readIDs []string, width int) []AlleleVector {
	placed := make(map[string]bool, len(vectors))
	for _, v := range vectors {
		placed[v.ID] = true
	}
	for _, id := range readIDs {
		if placed[id] {
			continue
		}
		alleles := make([]byte, width)
		for j := range alleles {
			alleles[j] = AlleleBlank
		}
		vectors = append(vectors, AlleleVector{ID: id, Alleles: alleles})
	}
	return vectors
}

// checkCover verifies that children partition parent: every parent id
// appears in exactly one child and no child holds a foreign id.
func checkCover(parent []string, children [][]string) error {
	index := make(map[string]uint, len(parent))
	for i, id := range parent {
		index[id] = uint(i)
	}
	seen := bitset.New(uint(len(parent)))
	for _, child := range children {
		for _, id := range child {
			i, ok := index[id]
			if !ok {
				return errors.E(errors.Integrity, "read", id, "is not part of the parent group")
			}
			if seen.Test(i) {
				return errors.E(errors.Integrity, "read", id, "assigned to more than one group")
			}
			seen.Set(i)
		}
	}
	if n := seen.Count(); n != uint(len(index)) {
		return errors.E(errors.Integrity, fmt.Sprintf("%d of %d reads were not assigned to any group", uint(len(index))-n, len(index)))
	}
	return nil
}
