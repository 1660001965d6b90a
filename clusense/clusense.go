// Package clusense separates reads from a mixed sample into per-haplotype
// groups. Starting from one consensus of all reads, it looks for graph
// columns whose base calls split the reads into two populations, bisects the
// reads along the most consistent of those columns, and repeats on each side
// with a fresh consensus until no group can be split further.
//
// The alignment graph itself comes from an aligngraph.Engine.
package clusense

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bnbowman/PhasingTools/aligngraph"
	"github.com/bnbowman/PhasingTools/encoding/fasta"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// Clusense runs a full read separation.
type Clusense struct {
	cfg *Config
}

// New validates opts and returns a Clusense that builds its graphs with
// engine. Configuration problems are reported here.
func New(ctx context.Context, opts Opts, engine aligngraph.Engine) (*Clusense, error) {
	cfg, err := NewConfig(ctx, opts, engine)
	if err != nil {
		return nil, err
	}
	return &Clusense{cfg: cfg}, nil
}

// Config returns the resolved configuration.
func (c *Clusense) Config() *Config { return c.cfg }

// Run separates the reads and writes, in the output directory:
//
//   group_root_cns.fa, group_root.score   consensus of all reads
//   group_NN.fa                           reads of group NN
//   group_NN_cns.fa, group_NN.score       consensus of group NN
//   group_NN.bam                          read placements, if WriteBAM
//   summary.txt                           read count per group
//
// Working files named tmp_* are removed unless KeepTemp is set.
func (c *Clusense) Run(ctx context.Context) (Summary, error) {
	cfg := c.cfg
	tmpCns := cfg.Path("tmp_cns.fa")

	log.Printf("generating initial consensus of %s", cfg.ReadsPath)
	ro := cfg.Refine
	ro.HPCorrection = true
	refined, err := Refine(ctx, cfg, ro, cfg.ReadsPath, cfg.RefPath, tmpCns, "tmp_cns")
	if err != nil {
		return Summary{}, err
	}
	if refined.Seq == "" {
		return Summary{}, errors.E(errors.Invalid, "no consensus could be called from", cfg.ReadsPath)
	}

	reads, err := fasta.ReadFile(ctx, cfg.ReadsPath)
	if err != nil {
		return Summary{}, err
	}
	log.Printf("building alignment graph of %d reads", len(reads))
	g, err := cfg.Engine.Build(ctx, reads, refined.Seq, cfg.buildOpts(cfg.MaxCoverage, cfg.MaxCoverage, false))
	if err != nil {
		return Summary{}, err
	}
	rootSeq, rootCov := g.Consensus(0, true)
	if err = fasta.WriteFile(ctx, cfg.Path("group_root_cns.fa"), fasta.Record{Name: "group_root_cns", Seq: rootSeq}); err != nil {
		return Summary{}, err
	}
	if err = writeScore(ctx, cfg.Path("group_root.score"), rootSeq, rootCov); err != nil {
		return Summary{}, err
	}

	ids := make([]string, len(reads))
	for i, r := range reads {
		ids[i] = r.Name
	}
	leaves, err := NewDriver(cfg).Run(ctx, ids, cfg.ReadsPath, cfg.RefPath)
	if err != nil {
		return Summary{}, err
	}

	var s Summary
	for i, leaf := range leaves {
		name := fmt.Sprintf("group_%02d", i+1)
		seed := leaf.Seq
		if seed == "" {
			seed = rootSeq
		}
		if err = c.writeGroup(ctx, name, leaf.IDs, seed); err != nil {
			return s, err
		}
		log.Printf("%s: %d reads (%s, level %d)", name, len(leaf.IDs), leaf.Status, leaf.Depth)
		s.Groups = append(s.Groups, GroupSummary{Name: name, Count: len(leaf.IDs), Status: leaf.Status, Depth: leaf.Depth})
		s.Total += len(leaf.IDs)
	}
	if err = writeSummary(ctx, cfg.Path(SummaryFile), s); err != nil {
		return s, err
	}
	if !cfg.KeepTemp {
		if err = c.removeTemp(ctx); err != nil {
			return s, err
		}
	}
	log.Printf("%d reads separated into %d groups", s.Total, len(s.Groups))
	return s, nil
}

// writeGroup extracts the reads of one group and calls its final consensus,
// indels retained, starting from seed.
func (c *Clusense) writeGroup(ctx context.Context, name string, ids []string, seed string) error {
	cfg := c.cfg
	readsPath := cfg.Path(name + ".fa")
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	if _, err := fasta.Fetch(ctx, cfg.ReadsPath, readsPath, set); err != nil {
		return err
	}
	cnsPath := cfg.Path(name + "_cns.fa")
	if err := fasta.WriteFile(ctx, cnsPath, fasta.Record{Name: name + "_cns", Seq: seed}); err != nil {
		return err
	}
	reads, err := fasta.ReadFile(ctx, readsPath)
	if err != nil {
		return err
	}
	g, err := cfg.Engine.Build(ctx, reads, seed, cfg.buildOpts(cfg.MaxCoverage, cfg.MaxCoverage, false))
	if err != nil {
		return err
	}
	seq, cov := g.Consensus(0, true)
	if err = fasta.WriteFile(ctx, cnsPath, fasta.Record{Name: fmt.Sprintf("%s_%s_cns", cfg.Prefix, name), Seq: seq}); err != nil {
		return err
	}
	if err = writeScore(ctx, cfg.Path(name+".score"), seq, cov); err != nil {
		return err
	}
	if cfg.WriteBAM {
		return writeBAM(ctx, cfg.Path(name+".bam"), name+"_seed", seed, g.Alignments())
	}
	return nil
}

func (c *Clusense) removeTemp(ctx context.Context) error {
	paths, err := filepath.Glob(c.cfg.Path("tmp_*"))
	if err != nil {
		return err
	}
	for _, path := range paths {
		if err := file.Remove(ctx, path); err != nil {
			return errors.E(err, "remove", path)
		}
	}
	log.Debug.Printf("removed %d working files", len(paths))
	return nil
}
