package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"

	"github.com/bnbowman/PhasingTools/aligngraph"
	"github.com/bnbowman/PhasingTools/clusense"
	_ "github.com/bnbowman/PhasingTools/pileup"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

// runFlags holds the flag values of the run subcommand. They override the
// options file only when given on the command line.
type runFlags struct {
	outDir           *string
	minGroup         *int
	maxCoverage      *int
	parallelism      *int
	threshold        *float64
	entropy          *float64
	prefix           *string
	engine           *string
	config           *string
	bam              *bool
	keepTemp         *bool
	parallelBranches *bool
}

func (f runFlags) apply(fs *flag.FlagSet, opts *clusense.Opts) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "o":
			opts.OutDir = *f.outDir
		case "g":
			opts.MinGroup = *f.minGroup
		case "m":
			opts.MaxCoverage = *f.maxCoverage
		case "n":
			opts.Parallelism = *f.parallelism
		case "t":
			opts.Threshold = *f.threshold
		case "e":
			opts.Entropy = *f.entropy
		case "p":
			opts.Prefix = *f.prefix
		case "engine":
			opts.EngineName = *f.engine
		case "bam":
			opts.WriteBAM = *f.bam
		case "keep-temp":
			opts.KeepTemp = *f.keepTemp
		case "parallel-branches":
			opts.ParallelBranches = *f.parallelBranches
		}
	})
}

func loadOpts(ctx context.Context, path string) (clusense.Opts, error) {
	if path == "" {
		return clusense.DefaultOpts, nil
	}
	return clusense.ReadOpts(ctx, path)
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "run",
		Short:    "Separate reads into haplotype groups",
		ArgsName: "reads.fa reference.fa",
		Long: `
Run bisects the reads recursively until no group can be split further, and
writes one group_NN.fa, group_NN_cns.fa and group_NN.score per final group,
plus summary.txt, to the output directory. The first record of reference.fa
seeds the root consensus.`,
	}
	d := clusense.DefaultOpts
	flags := runFlags{
		outDir:           cmd.Flags.String("o", "", "Output directory. Defaults to <reads stem>_wd next to the reads"),
		minGroup:         cmd.Flags.Int("g", d.MinGroup, "Minimum group size; 0 means max(25, 5% of the reads)"),
		maxCoverage:      cmd.Flags.Int("m", d.MaxCoverage, "Maximum number of reads in a full alignment graph"),
		parallelism:      cmd.Flags.Int("n", d.Parallelism, "Number of concurrent read alignments"),
		threshold:        cmd.Flags.Float64("t", d.Threshold, "Minor allele fraction for a variant column"),
		entropy:          cmd.Flags.Float64("e", d.Entropy, "Entropy threshold; overrides -t when positive"),
		prefix:           cmd.Flags.String("p", d.Prefix, "Name prefix of the final consensus records"),
		engine:           cmd.Flags.String("engine", d.EngineName, fmt.Sprintf("Alignment graph engine, one of %v", aligngraph.Engines())),
		config:           cmd.Flags.String("config", "", "YAML options file; flags given on the command line take precedence"),
		bam:              cmd.Flags.Bool("bam", d.WriteBAM, "Write a BAM of the read alignments per group"),
		keepTemp:         cmd.Flags.Bool("keep-temp", d.KeepTemp, "Keep the tmp_* working files"),
		parallelBranches: cmd.Flags.Bool("parallel-branches", d.ParallelBranches, "Process sibling branches concurrently"),
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("run takes reads and reference paths, but got %v", argv)
		}
		ctx := vcontext.Background()
		opts, err := loadOpts(ctx, *flags.config)
		if err != nil {
			return err
		}
		opts.ReadsPath, opts.RefPath = argv[0], argv[1]
		flags.apply(&cmd.Flags, &opts)
		engine, err := aligngraph.Lookup(opts.EngineName)
		if err != nil {
			return err
		}
		c, err := clusense.New(ctx, opts, engine)
		if err != nil {
			return err
		}
		summary, err := c.Run(ctx)
		if err != nil {
			return err
		}
		printSummary(env, summary)
		return nil
	})
	return cmd
}

func newCmdConsensus() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "consensus",
		Short:    "Refine a consensus of the reads starting from a seed sequence",
		ArgsName: "reads.fa seed.fa out.fa",
	}
	d := clusense.DefaultOpts.Refine
	hp := cmd.Flags.Bool("hp", d.HPCorrection, "Restore homopolymer lengths after indel removal")
	lowerCase := cmd.Flags.Bool("lower-case", d.MarkLowerCase, "Lower-case ambiguous consensus bases")
	minIterations := cmd.Flags.Int("min-iterations", d.MinIterations, "Number of graph builds")
	name := cmd.Flags.String("name", "cns", "Name of the consensus record")
	engineName := cmd.Flags.String("engine", clusense.DefaultOpts.EngineName, "Alignment graph engine")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 3 {
			return fmt.Errorf("consensus takes reads, seed and output paths, but got %v", argv)
		}
		ctx := vcontext.Background()
		engine, err := aligngraph.Lookup(*engineName)
		if err != nil {
			return err
		}
		opts := clusense.DefaultOpts
		opts.ReadsPath, opts.RefPath = argv[0], argv[1]
		opts.OutDir = filepath.Dir(argv[2])
		opts.MinGroup = clusense.DefaultMinGroup
		opts.Refine.HPCorrection = *hp
		opts.Refine.MarkLowerCase = *lowerCase
		opts.Refine.MinIterations = *minIterations
		cfg, err := clusense.NewConfig(ctx, opts, engine)
		if err != nil {
			return err
		}
		cns, err := clusense.Refine(ctx, cfg, cfg.Refine, cfg.ReadsPath, cfg.RefPath, argv[2], *name)
		if err != nil {
			return err
		}
		if cns.Degenerate {
			log.Printf("consensus did not stabilize; wrote the last sequence (%d bp)", len(cns.Seq))
		}
		fmt.Fprintf(env.Stdout, "%s\t%d\n", *name, len(cns.Seq))
		return nil
	})
	return cmd
}

func newCmdGroups() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "groups",
		Short:    "Print the groups of a finished run",
		ArgsName: "outdir",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("groups takes one directory argument, but got %v", argv)
		}
		summary, err := clusense.ReadSummary(vcontext.Background(), argv[0])
		if err != nil {
			return err
		}
		printSummary(env, summary)
		return nil
	})
	return cmd
}

func printSummary(env *cmdline.Env, s clusense.Summary) {
	for _, g := range s.Groups {
		fmt.Fprintf(env.Stdout, "%s\t%d\n", g.Name, g.Count)
	}
	fmt.Fprintf(env.Stdout, "total\t%d\n", s.Total)
}

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-clusense",
		Short:    "Separate long reads of a mixed sample by haplotype",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdRun(),
			newCmdConsensus(),
			newCmdGroups(),
		},
	}
}

func main() {
	shutdown := grail.Init()
	defer shutdown()
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newCmdRoot())
}
