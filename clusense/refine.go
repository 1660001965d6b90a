package clusense

import (
	"context"
	"strings"

	"github.com/bnbowman/PhasingTools/aligngraph"
	"github.com/bnbowman/PhasingTools/encoding/fasta"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// MinConsensusLen is the shortest consensus worth refining further.
const MinConsensusLen = 100

// Consensus is the result of a refinement.
type Consensus struct {
	Seq string
	// Coverage holds per-position support for Seq. It is empty for
	// degenerate sequences, and nil when it could not be kept aligned to Seq.
	Coverage []aligngraph.Coverage
	// Graph is the alignment graph Seq was called from; nil when Degenerate.
	Graph aligngraph.Graph
	// Degenerate is set when refinement stopped because a pass produced a
	// sequence shorter than MinConsensusLen.
	Degenerate bool
}

func degenerate(seq string) Consensus {
	return Consensus{Seq: seq, Coverage: []aligngraph.Coverage{}, Degenerate: true}
}

// Refine iteratively builds a consensus of the reads in readsPath. The first
// pass aligns the reads to the first record of seedPath; every later pass
// aligns them to the consensus of the previous pass, read back from outPath.
// The schedule is:
//
//   1 initial pass
//   MinIterations-2 re-alignment passes
//   1 homopolymer restoration pass, if HPCorrection is set
//   1 final pass with indels removed (and lower-case marking, if set)
//
// With MinIterations == 1 only the initial pass runs. The consensus is
// written to outPath as record seqName after every pass. A pass producing
// fewer than MinConsensusLen bases ends refinement with a degenerate result.
func Refine(ctx context.Context, cfg *Config, ro RefineOpts, readsPath, seedPath, outPath, seqName string) (Consensus, error) {
	reads, err := fasta.ReadFile(ctx, readsPath)
	if err != nil {
		return Consensus{}, err
	}
	seed, err := fasta.ReadFirst(ctx, seedPath)
	if err != nil {
		return Consensus{}, err
	}
	build := func(ref string, removeIndels bool) (aligngraph.Graph, error) {
		return cfg.Engine.Build(ctx, reads, ref, cfg.buildOpts(ro.MaxReads, ro.MaxCoverage, removeIndels))
	}
	write := func(seq string) error {
		return fasta.WriteFile(ctx, outPath, fasta.Record{Name: seqName, Seq: seq})
	}
	// next re-reads the last written consensus; the file is the hand-off
	// between passes.
	next := func(removeIndels bool) (aligngraph.Graph, error) {
		if _, err := file.Stat(ctx, outPath); err != nil {
			return nil, errors.E(errors.NotExist, err, "consensus was not written:", outPath)
		}
		rec, err := fasta.ReadFirst(ctx, outPath)
		if err != nil {
			return nil, err
		}
		return build(rec.Seq, removeIndels)
	}

	g, err := build(seed.Seq, false)
	if err != nil {
		return Consensus{}, err
	}
	seq, cov := g.Consensus(ro.MinCoverage, true)
	if err = write(strings.ToUpper(seq)); err != nil {
		return Consensus{}, err
	}
	if ro.MinIterations <= 1 {
		if len(seq) < MinConsensusLen {
			return degenerate(seq), nil
		}
		return Consensus{Seq: seq, Coverage: cov, Graph: g}, nil
	}
	for i := 0; i < ro.MinIterations-2; i++ {
		if len(seq) < MinConsensusLen {
			log.Printf("refine %s: consensus shrank to %d bases after pass %d", readsPath, len(seq), i+1)
			return degenerate(seq), nil
		}
		if g, err = next(false); err != nil {
			return Consensus{}, err
		}
		seq, cov = g.Consensus(ro.MinCoverage, true)
		if err = write(strings.ToUpper(seq)); err != nil {
			return Consensus{}, err
		}
	}
	if ro.HPCorrection {
		if len(seq) < MinConsensusLen {
			return degenerate(seq), nil
		}
		if g, err = next(false); err != nil {
			return Consensus{}, err
		}
		seq, cov = g.DetectMissing(cfg.Entropy), nil
		if err = write(strings.ToUpper(seq)); err != nil {
			return Consensus{}, err
		}
	}
	if len(seq) < MinConsensusLen {
		return degenerate(seq), nil
	}
	if g, err = next(true); err != nil {
		return Consensus{}, err
	}
	seq, cov = g.Consensus(ro.MinCoverage, true)
	if ro.MarkLowerCase {
		seq = g.MarkLowerCase(cfg.Entropy)
		if len(seq) != len(cov) {
			cov = nil
		}
	}
	if err = write(seq); err != nil {
		return Consensus{}, err
	}
	if len(seq) < MinConsensusLen {
		return degenerate(seq), nil
	}
	return Consensus{Seq: seq, Coverage: cov, Graph: g}, nil
}
