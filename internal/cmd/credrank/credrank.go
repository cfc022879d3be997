// Package credrank parses credrank command configuration and runs one batch.
package credrank

import (
	"context"
	"flag"
	"io"
	"strings"

	entrypoint "github.com/louisbranch/credrank/internal/platform/cmd"
	"github.com/louisbranch/credrank/internal/services/cred/app"
	"github.com/louisbranch/credrank/internal/services/cred/domain/credrank"
	"github.com/louisbranch/credrank/internal/services/cred/domain/graph"
	"github.com/louisbranch/credrank/internal/services/cred/domain/markov"
)

// Config holds credrank command configuration. Variable names are read with
// the CREDRANK_ prefix.
type Config struct {
	Graphs               []string `env:"GRAPHS" envSeparator:","`
	OutputDir            string   `env:"OUTPUT_DIR" envDefault:"output"`
	DBPath               string   `env:"DB_PATH" envDefault:"data/ledger.db"`
	ScoringPrefixes      []string `env:"SCORING_PREFIXES" envSeparator:","`
	Alpha                float64  `env:"ALPHA" envDefault:"0.1"`
	Beta                 float64  `env:"BETA" envDefault:"0.4"`
	GammaForward         float64  `env:"GAMMA_FORWARD" envDefault:"0.1"`
	GammaBackward        float64  `env:"GAMMA_BACKWARD" envDefault:"0.1"`
	MaxIterations        int      `env:"MAX_ITERATIONS" envDefault:"255"`
	ConvergenceThreshold float64  `env:"CONVERGENCE_THRESHOLD" envDefault:"1e-7"`
	Workers              int      `env:"WORKERS" envDefault:"1"`
	Policies             string   `env:"POLICIES"`
	CreateIdentities     bool     `env:"CREATE_IDENTITIES" envDefault:"true"`
	MetricsTextfile      string   `env:"METRICS_TEXTFILE"`
	SummaryLimit         int      `env:"SUMMARY_LIMIT" envDefault:"10"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.Func("graphs", "Comma-separated weighted graph files", func(v string) error {
		cfg.Graphs = splitList(v)
		return nil
	})
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "Directory for credGraph.json")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Ledger SQLite path; empty skips the ledger")
	fs.Func("scoring-prefixes", "Comma-separated node prefixes, parts separated by /", func(v string) error {
		cfg.ScoringPrefixes = splitList(v)
		return nil
	})
	fs.Float64Var(&cfg.Alpha, "alpha", cfg.Alpha, "Seed teleportation probability")
	fs.Float64Var(&cfg.Beta, "beta", cfg.Beta, "Extra teleportation of participant epochs")
	fs.Float64Var(&cfg.GammaForward, "gamma-forward", cfg.GammaForward, "Probability of moving to the next epoch")
	fs.Float64Var(&cfg.GammaBackward, "gamma-backward", cfg.GammaBackward, "Probability of moving to the previous epoch")
	fs.IntVar(&cfg.MaxIterations, "max-iterations", cfg.MaxIterations, "Power iteration cap")
	fs.Float64Var(&cfg.ConvergenceThreshold, "threshold", cfg.ConvergenceThreshold, "L1 convergence threshold")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Goroutines per iteration")
	fs.StringVar(&cfg.Policies, "policies", cfg.Policies, "Allocation policies JSON file")
	fs.BoolVar(&cfg.CreateIdentities, "create-identities", cfg.CreateIdentities, "Create ledger identities for new participants")
	fs.IntVar(&cfg.SummaryLimit, "summary-limit", cfg.SummaryLimit, "Participants listed in the summary; 0 lists all")
	fs.StringVar(&cfg.MetricsTextfile, "metrics-textfile", cfg.MetricsTextfile, "Write Prometheus metrics to this file")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RuntimeConfig converts cfg into pipeline settings.
func (cfg Config) RuntimeConfig() (app.RuntimeConfig, error) {
	prefixes := make([]graph.NodeAddress, 0, len(cfg.ScoringPrefixes))
	for _, raw := range cfg.ScoringPrefixes {
		prefix, err := graph.ParseNodeAddress(raw)
		if err != nil {
			return app.RuntimeConfig{}, err
		}
		prefixes = append(prefixes, prefix)
	}
	return app.RuntimeConfig{
		GraphPaths:      cfg.Graphs,
		OutputDir:       cfg.OutputDir,
		DBPath:          cfg.DBPath,
		ScoringPrefixes: prefixes,
		Fibration: markov.FibrationOptions{
			Beta:          cfg.Beta,
			GammaForward:  cfg.GammaForward,
			GammaBackward: cfg.GammaBackward,
		},
		Seed: markov.SeedOptions{Alpha: cfg.Alpha},
		Engine: credrank.Options{
			MaxIterations:        cfg.MaxIterations,
			ConvergenceThreshold: cfg.ConvergenceThreshold,
			Workers:              cfg.Workers,
		},
		PoliciesPath:     cfg.Policies,
		CreateIdentities: cfg.CreateIdentities,
		MetricsTextfile:  cfg.MetricsTextfile,
	}, nil
}

// Run executes one batch and writes the summary to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	runtimeCfg, err := cfg.RuntimeConfig()
	if err != nil {
		return err
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceCredrank, func(ctx context.Context) error {
		result, err := app.Run(ctx, runtimeCfg)
		if err != nil {
			return err
		}
		return WriteSummary(out, result, cfg.SummaryLimit)
	})
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
