package clusense

import (
	"context"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/bnbowman/PhasingTools/aligngraph"
	"github.com/bnbowman/PhasingTools/encoding/fasta"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"gopkg.in/yaml.v3"
)

// Opts configures a run. The yaml tags name the keys of an options file,
// see ReadOpts.
type Opts struct {
	// ReadsPath is the FASTA file of reads to separate.
	ReadsPath string `yaml:"reads"`
	// RefPath is the FASTA file whose first record seeds the root consensus.
	RefPath string `yaml:"reference"`
	// OutDir receives every output and working file. Defaults to
	// "<reads stem>_wd" next to the reads.
	OutDir string `yaml:"output_dir"`

	// Threshold is the minor allele fraction a column must reach to be
	// considered a variant. It is converted to an entropy once per run.
	Threshold float64 `yaml:"threshold"`
	// Entropy overrides the entropy derived from Threshold when positive.
	Entropy float64 `yaml:"entropy"`
	// MinGroup is the smallest group that will be split or emitted from a
	// split. Zero means max(25, 5% of the input reads).
	MinGroup int `yaml:"min_group"`
	// MaxCoverage caps the reads used for the full alignment graphs.
	MaxCoverage int `yaml:"max_coverage"`
	// Parallelism is the number of concurrent read alignments per graph.
	Parallelism int `yaml:"nproc"`
	// Prefix names the final per-group consensus records.
	Prefix string `yaml:"prefix"`
	// EngineName names the registered alignment graph engine.
	EngineName string `yaml:"engine"`

	Refine RefineOpts `yaml:"refine"`

	// ParallelBranches processes sibling branches of the bisection tree
	// concurrently.
	ParallelBranches bool `yaml:"parallel_branches"`
	// WriteBAM writes a group_NN.bam of the final read alignments per group.
	WriteBAM bool `yaml:"write_bam"`
	// KeepTemp keeps the tmp_* working files.
	KeepTemp bool `yaml:"keep_temp"`
}

// RefineOpts configures iterative consensus refinement.
type RefineOpts struct {
	// MinIterations is the number of graph builds, counting the first pass
	// and the final indel-removal pass.
	MinIterations int `yaml:"min_iterations"`
	MaxReads      int `yaml:"max_reads"`
	// MinCoverage trims consensus ends covered by fewer reads.
	MinCoverage int `yaml:"min_coverage"`
	MaxCoverage int `yaml:"max_coverage"`
	// HPCorrection adds a homopolymer restoration pass.
	HPCorrection bool `yaml:"hp_correction"`
	// MarkLowerCase lowers ambiguous bases of the final consensus.
	MarkLowerCase bool `yaml:"mark_lower_case"`
}

// DefaultMinGroup is the floor of the automatic minimum group size.
const DefaultMinGroup = 25

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	Threshold:   0.1,
	MaxCoverage: 5000,
	Parallelism: 4,
	Prefix:      "Unknown",
	EngineName:  "pileup",
	Refine: RefineOpts{
		MinIterations: 4,
		MaxReads:      150,
		MinCoverage:   8,
		MaxCoverage:   200,
	},
}

// ReadOpts loads an options file on top of DefaultOpts. Keys missing from
// the file keep their default values.
func ReadOpts(ctx context.Context, path string) (opts Opts, err error) {
	opts = DefaultOpts
	in, err := file.Open(ctx, path)
	if err != nil {
		return opts, errors.E(errors.Invalid, err, "couldn't open options file")
	}
	defer file.CloseAndReport(ctx, in, &err)
	data, err := ioutil.ReadAll(in.Reader(ctx))
	if err != nil {
		return opts, err
	}
	if err = yaml.Unmarshal(data, &opts); err != nil {
		return opts, errors.E(errors.Invalid, err, "malformed options file", path)
	}
	return opts, nil
}

// Config is the resolved, validated configuration of one run. It is passed
// explicitly to every component; nothing is read from process state.
type Config struct {
	Opts
	Engine aligngraph.Engine
}

// Path returns the location of a named file in the output directory.
func (c *Config) Path(name string) string {
	return filepath.Join(c.OutDir, name)
}

func (c *Config) buildOpts(maxReads, maxCoverage int, removeIndels bool) aligngraph.BuildOpts {
	return aligngraph.BuildOpts{
		MaxReads:     maxReads,
		MaxCoverage:  maxCoverage,
		RemoveIndels: removeIndels,
		Parallelism:  c.Parallelism,
	}
}

// defaultOutDir returns "<dir>/<stem>_wd" where stem is the reads file name
// up to its first dot.
func defaultOutDir(readsPath string) string {
	base := filepath.Base(readsPath)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return filepath.Join(filepath.Dir(readsPath), base+"_wd")
}

// resolveMinGroup returns max(DefaultMinGroup, ceil(0.05 n)).
func resolveMinGroup(n int) int {
	m := int(math.Ceil(0.05 * float64(n)))
	if m < DefaultMinGroup {
		m = DefaultMinGroup
	}
	return m
}

// NewConfig validates opts and resolves the derived settings: output
// directory, entropy threshold and minimum group size. All problems are
// reported here, before any work starts.
func NewConfig(ctx context.Context, opts Opts, engine aligngraph.Engine) (*Config, error) {
	if engine == nil {
		return nil, errors.E(errors.Unavailable, "no alignment graph engine configured")
	}
	if opts.ReadsPath == "" || opts.RefPath == "" {
		return nil, errors.E(errors.Invalid, "both reads and reference files are required")
	}
	for _, path := range []string{opts.ReadsPath, opts.RefPath} {
		if _, err := file.Stat(ctx, path); err != nil {
			return nil, errors.E(errors.Invalid, err, "input file", path)
		}
	}
	if opts.Entropy <= 0 && (opts.Threshold <= 0 || opts.Threshold >= 1) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("threshold must be in (0, 1), got %v", opts.Threshold))
	}
	switch {
	case opts.MinGroup < 0:
		return nil, errors.E(errors.Invalid, "negative minimum group size")
	case opts.MaxCoverage <= 0:
		return nil, errors.E(errors.Invalid, "max coverage must be positive")
	case opts.Refine.MinIterations < 1:
		return nil, errors.E(errors.Invalid, "refinement needs at least one iteration")
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.OutDir == "" {
		opts.OutDir = defaultOutDir(opts.ReadsPath)
	}
	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return nil, errors.E(errors.Invalid, err, "couldn't create output directory")
	}
	if opts.Entropy <= 0 {
		opts.Entropy = CalculateEntropy(opts.Threshold)
	}
	if opts.MinGroup == 0 {
		n, err := fasta.Count(ctx, opts.ReadsPath)
		if err != nil {
			return nil, errors.E(errors.Invalid, err, "couldn't count reads")
		}
		opts.MinGroup = resolveMinGroup(n)
	}
	log.Debug.Printf("Running Clusense with the following settings:")
	log.Debug.Printf("\tReads: %s", filepath.Base(opts.ReadsPath))
	log.Debug.Printf("\tReference: %s", filepath.Base(opts.RefPath))
	log.Debug.Printf("\tThreshold: %v", opts.Threshold)
	log.Debug.Printf("\tEntropy: %v", opts.Entropy)
	log.Debug.Printf("\tMin Size: %d", opts.MinGroup)
	return &Config{Opts: opts, Engine: engine}, nil
}
