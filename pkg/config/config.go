package config

import (
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/yumyai/bgcnet/internal/util"
	"github.com/yumyai/bgcnet/pkg/model"
)

// Run modes. The engine modes come from the model package, "both" runs the
// domain content networks and the sequence identity networks in one go.
const (
	ModeBoth = "both"
)

type InvalidArgumentError struct {
	Flag   string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid --%s: %s", e.Flag, e.Reason)
}

// Options holds one run's settings.
type Options struct {
	// Input / output
	InputDir      string
	OutputDir     string
	DomainsFolder string
	LogFile       string
	DBFile        string

	// External tools
	PfamDB     string
	HmmscanBin string
	MafftBin   string

	// Scoring
	Mode          string
	OverlapCutoff float64
	JaccardWeight float64
	DDSWeight     float64
	GKWeight      float64
	Nbhood        int
	RawCutoffs    string
	Cutoffs       []float64

	// Alignment
	AlMethod     string
	MaxIterate   int
	MafftThreads int
	MafftPars    string
	UsePercID    bool

	// Behaviour
	Cores       int
	SkipHmmscan bool
	Strict      bool
	Verbose     bool
}

// NewFlagSet returns a configured FlagSet with custom usage.
func NewFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			`%s: pairwise gene cluster similarity networks from antiSMASH output

Usage of %s:
`, name, name)
		fs.PrintDefaults()
	}
	return fs
}

// ParseArgs registers and parses all flags into an Options struct. Tool
// locations fall back to BGCNET_PFAM, BGCNET_HMMSCAN and BGCNET_MAFFT, so
// an .env file can carry them per deployment.
func ParseArgs(fs *flag.FlagSet, argv []string) (*Options, error) {
	opts := &Options{}

	// Input / output
	fs.StringVar(&opts.InputDir, "inputdir", ".", "folder with cluster gbk files, one subfolder per sample [.]")
	fs.StringVar(&opts.OutputDir, "outputdir", "", "output folder for the run [*]")
	fs.StringVar(&opts.DomainsFolder, "domainsout", "domains", "subfolder for per-family fastas and alignments [domains]")
	fs.StringVar(&opts.LogFile, "log", "", "log file (default: timestamped file inside the output folder)")
	fs.StringVar(&opts.DBFile, "db", "", "results database (default: data.db inside the output folder)")

	// External tools
	fs.StringVar(&opts.PfamDB, "pfam", envOr("BGCNET_PFAM", "Pfam-A.hmm"), "pressed Pfam-A profile database")
	fs.StringVar(&opts.HmmscanBin, "hmmscan_bin", envOr("BGCNET_HMMSCAN", "hmmscan"), "hmmscan executable")
	fs.StringVar(&opts.MafftBin, "mafft_bin", envOr("BGCNET_MAFFT", "mafft"), "mafft executable")

	// Scoring
	fs.StringVar(&opts.Mode, "mode", ModeBoth, "distance mode: domain_dist | seqdist | both [both]")
	fs.Float64Var(&opts.OverlapCutoff, "domain_overlap_cutoff", model.DefaultOverlapCutoff, "overlap fraction above which competing domain hits are resolved [0.1]")
	fs.Float64Var(&opts.JaccardWeight, "jaccardw", model.DefaultJaccardWeight, "domain_dist weight of the Jaccard index [0.4]")
	fs.Float64Var(&opts.DDSWeight, "ddsw", model.DefaultDDSWeight, "domain_dist weight of the duplication score [0.2]")
	fs.Float64Var(&opts.GKWeight, "gkw", model.DefaultGKWeight, "domain_dist weight of the synteny score [0.4]")
	fs.IntVar(&opts.Nbhood, "nbhood", model.DefaultNbhood, "synteny window size [4]")
	fs.StringVar(&opts.RawCutoffs, "sim_cutoffs", "0", "comma separated squared similarity cutoffs, one network file each [0]")

	// Alignment
	fs.StringVar(&opts.AlMethod, "al_method", "--retree 1", "mafft guide tree method [--retree 1]")
	fs.IntVar(&opts.MaxIterate, "maxiterate", 0, "mafft refinement iterations (0 = off) [0]")
	fs.IntVar(&opts.MafftThreads, "mafft_threads", 1, "threads per mafft process, families already align in parallel (-1 = mafft decides) [1]")
	fs.StringVar(&opts.MafftPars, "mafft_pars", "", "extra mafft parameters, passed through verbatim")
	fs.BoolVar(&opts.UsePercID, "use_perc_id", false, "score domain pairs by alignment identity instead of the mafft distance matrix [false]")

	// Behaviour
	fs.IntVar(&opts.Cores, "cores", 8, "worker count for hmmscan, alignments and pair scoring [8]")
	fs.BoolVar(&opts.SkipHmmscan, "skip_hmmscan", false, "reuse existing domain tables in the output folder [false]")
	fs.BoolVar(&opts.Strict, "strict", false, "abort the whole run on the first bad input file [false]")
	fs.BoolVar(&opts.Verbose, "verbose", false, "debug logging [false]")

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}

	cutoffs, err := ParseCutoffs(opts.RawCutoffs)
	if err != nil {
		return nil, err
	}
	opts.Cutoffs = cutoffs

	return opts, nil
}

// Validate checks ranges and folders. It does not create anything.
func (o *Options) Validate() error {
	if o.OutputDir == "" {
		return &InvalidArgumentError{Flag: "outputdir", Reason: "output folder is required"}
	}
	if !util.DirExists(o.InputDir) {
		return &InvalidArgumentError{Flag: "inputdir", Reason: fmt.Sprintf("%s is not a folder", o.InputDir)}
	}

	switch o.Mode {
	case model.ModeDomainDist, model.ModeSeqDist, ModeBoth:
	default:
		return &InvalidArgumentError{Flag: "mode", Reason: fmt.Sprintf("unknown mode %q", o.Mode)}
	}

	if o.OverlapCutoff < 0 || o.OverlapCutoff > 1 {
		return &InvalidArgumentError{Flag: "domain_overlap_cutoff", Reason: "must be within [0,1]"}
	}
	for _, w := range []struct {
		flag  string
		value float64
	}{
		{"jaccardw", o.JaccardWeight},
		{"ddsw", o.DDSWeight},
		{"gkw", o.GKWeight},
	} {
		if math.IsNaN(w.value) || math.IsInf(w.value, 0) {
			return &InvalidArgumentError{Flag: w.flag, Reason: "must be finite"}
		}
	}
	if o.Nbhood < 1 {
		return &InvalidArgumentError{Flag: "nbhood", Reason: "must be at least 1"}
	}
	if o.Cores < 1 {
		return &InvalidArgumentError{Flag: "cores", Reason: "must be at least 1"}
	}
	return nil
}

// WeightsSumToOne reports whether the domain_dist weights follow the usual
// convention. Other sums are allowed, callers may want to warn about them.
func (o *Options) WeightsSumToOne() bool {
	return math.Abs(o.JaccardWeight+o.DDSWeight+o.GKWeight-1) < 1e-9
}

// EngineModes lists the engine modes this run executes.
func (o *Options) EngineModes() []string {
	switch o.Mode {
	case ModeBoth:
		return []string{model.ModeDomainDist, model.ModeSeqDist}
	default:
		return []string{o.Mode}
	}
}

// DistanceConfig bundles the scoring knobs for the engine.
func (o *Options) DistanceConfig() model.DistanceConfig {
	return model.DistanceConfig{
		JaccardWeight: o.JaccardWeight,
		DDSWeight:     o.DDSWeight,
		GKWeight:      o.GKWeight,
		Nbhood:        o.Nbhood,
	}
}

// ParseCutoffs reads a comma separated cutoff list. Blank entries are
// skipped, duplicates kept.
func ParseCutoffs(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, &InvalidArgumentError{Flag: "sim_cutoffs", Reason: fmt.Sprintf("bad cutoff %q", p)}
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, &InvalidArgumentError{Flag: "sim_cutoffs", Reason: "no cutoffs given"}
	}
	return out, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
