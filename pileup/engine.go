package pileup

import (
	"context"
	"sort"

	"blainsmith.com/go/seahash"
	"github.com/bnbowman/PhasingTools/align"
	"github.com/bnbowman/PhasingTools/aligngraph"
	"github.com/bnbowman/PhasingTools/encoding/fasta"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
)

// EngineName is the name the pileup engine is registered under.
const EngineName = "pileup"

func init() {
	aligngraph.Register(EngineName, Engine{Scoring: align.DefaultScoring})
}

// Engine builds Graphs in process by aligning every read to the reference
// on both strands.
type Engine struct {
	Scoring align.Scoring
}

// Build implements aligngraph.Engine.
func (e Engine) Build(ctx context.Context, reads []fasta.Record, ref string, opts aligngraph.BuildOpts) (aligngraph.Graph, error) {
	if len(ref) == 0 {
		return nil, errors.E(errors.Invalid, "pileup.Build: empty reference")
	}
	ref = Normalize(ref)
	reads = subsample(reads, opts.MaxReads)

	aligned := make([]aligngraph.ReadAlignment, len(reads))
	parallelism := opts.Parallelism
	if parallelism > len(reads) {
		parallelism = len(reads)
	}
	if parallelism < 1 {
		parallelism = 1
	}
	err := traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * len(reads)) / parallelism
		endIdx := ((jobIdx + 1) * len(reads)) / parallelism
		for i := startIdx; i < endIdx; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, seq := align.AlignBest(Normalize(reads[i].Seq), ref, e.Scoring)
			aligned[i] = aligngraph.ReadAlignment{Name: reads[i].Name, Seq: seq, Alignment: a}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g := newGraph(ref, opts.RemoveIndels)
	starts := make([]int, len(ref))
	nSkipped := 0
	for _, ra := range aligned {
		a := ra.Alignment
		if a.RefEnd <= a.RefStart || a.Score <= 0 {
			nSkipped++
			continue
		}
		if opts.MaxCoverage > 0 && starts[a.RefStart] >= opts.MaxCoverage {
			nSkipped++
			continue
		}
		starts[a.RefStart]++
		g.addRead(ra)
	}
	g.finalize()
	log.Debug.Printf("pileup.Build: %d reads placed, %d skipped, %d nodes over %d bp (removeIndels=%v)",
		len(g.aligned), nSkipped, len(g.nodes), len(ref), opts.RemoveIndels)
	return g, nil
}

// subsample keeps the maxReads reads whose names hash lowest, in input order.
func subsample(reads []fasta.Record, maxReads int) []fasta.Record {
	if maxReads <= 0 || len(reads) <= maxReads {
		return reads
	}
	type keyed struct {
		h   uint64
		idx int
	}
	keys := make([]keyed, len(reads))
	for i, r := range reads {
		keys[i] = keyed{seahash.Sum64([]byte(r.Name)), i}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].h != keys[j].h {
			return keys[i].h < keys[j].h
		}
		return keys[i].idx < keys[j].idx
	})
	keys = keys[:maxReads]
	sort.Slice(keys, func(i, j int) bool { return keys[i].idx < keys[j].idx })
	out := make([]fasta.Record, maxReads)
	for i, k := range keys {
		out[i] = reads[k.idx]
	}
	return out
}
