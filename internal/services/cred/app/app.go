// Package app runs one credrank batch: load and merge graphs, compute cred,
// and optionally distribute grain through the ledger.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
	"github.com/louisbranch/credrank/internal/platform/id"
	"github.com/louisbranch/credrank/internal/platform/telemetry/metrics"
	"github.com/louisbranch/credrank/internal/services/cred/domain/credrank"
	"github.com/louisbranch/credrank/internal/services/cred/domain/grain"
	"github.com/louisbranch/credrank/internal/services/cred/domain/graph"
	"github.com/louisbranch/credrank/internal/services/cred/domain/ledger"
	"github.com/louisbranch/credrank/internal/services/cred/domain/markov"
	"github.com/louisbranch/credrank/internal/services/cred/domain/participant"
	"github.com/louisbranch/credrank/internal/services/cred/domain/policy"
	"github.com/louisbranch/credrank/internal/services/cred/storage/sqlite"
)

// CredGraphFile is the name of the cred output written to the output directory.
const CredGraphFile = "credGraph.json"

// RuntimeConfig is everything one run needs.
type RuntimeConfig struct {
	GraphPaths      []string
	OutputDir       string
	DBPath          string
	ScoringPrefixes []graph.NodeAddress
	Fibration       markov.FibrationOptions
	Seed            markov.SeedOptions
	Engine          credrank.Options
	// PoliciesPath names a JSON array of allocation policies. Empty skips
	// the distribution stages.
	PoliciesPath string
	// CreateIdentities registers ledger identities for unknown participants.
	CreateIdentities bool
	MetricsTextfile  string

	Now   func() time.Time
	NewID func() (string, error)
}

// Result is the outcome of a run.
type Result struct {
	CredGraph     *credrank.CredGraph
	CredGraphPath string
	Ledger        *ledger.Ledger
	// Distribution is nil when no policies were configured.
	Distribution *policy.Distribution
	// Warning carries soft conditions such as non-convergence.
	Warning error
}

// Run executes the pipeline.
func Run(ctx context.Context, cfg RuntimeConfig) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(cfg.GraphPaths) == 0 {
		return Result{}, errors.New("at least one graph path is required")
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return Result{}, errors.New("output dir is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.NewID
	}

	var result Result
	recorder := metrics.NewRecorder()
	if cfg.MetricsTextfile != "" {
		defer func() {
			recorder.MarkFinished(cfg.Now())
			if writeErr := recorder.WriteTextfile(cfg.MetricsTextfile); writeErr != nil {
				log.Printf("metrics: %v", writeErr)
			}
		}()
	}

	var graphs []graph.WeightedGraph
	if err := runStage(ctx, recorder, StageLoad, func(ctx context.Context, span trace.Span) error {
		var err error
		graphs, err = loadGraphs(ctx, cfg.GraphPaths)
		span.SetAttributes(attribute.Int("credrank.graphs", len(cfg.GraphPaths)))
		return err
	}); err != nil {
		return Result{}, err
	}

	var merged graph.WeightedGraph
	if err := runStage(ctx, recorder, StageMerge, func(ctx context.Context, span trace.Span) error {
		var err error
		merged, err = graph.Merge(graphs...)
		if err == nil {
			span.SetAttributes(
				attribute.Int("credrank.nodes", merged.Graph.NodeCount()),
				attribute.Int("credrank.edges", merged.Graph.EdgeCount()),
			)
		}
		return err
	}); err != nil {
		return Result{}, err
	}

	var participants []participant.Participant
	if err := runStage(ctx, recorder, StageParticipants, func(ctx context.Context, span trace.Span) error {
		participants = participant.Find(merged.Graph, cfg.ScoringPrefixes)
		span.SetAttributes(attribute.Int("credrank.participants", len(participants)))
		return nil
	}); err != nil {
		return Result{}, err
	}

	var mpg *markov.MarkovProcessGraph
	if err := runStage(ctx, recorder, StageBuild, func(ctx context.Context, span trace.Span) error {
		var err error
		mpg, err = markov.Build(merged, participants, cfg.Fibration, cfg.Seed)
		if err == nil {
			span.SetAttributes(
				attribute.Int("credrank.markov_nodes", mpg.NodeCount()),
				attribute.Int("credrank.epochs", len(mpg.EpochStarts())),
			)
		}
		return err
	}); err != nil {
		return Result{}, err
	}

	if err := runStage(ctx, recorder, StageCompute, func(ctx context.Context, span trace.Span) error {
		var err error
		result.CredGraph, err = credrank.Run(ctx, mpg, cfg.Engine)
		if err != nil {
			return err
		}
		conv := result.CredGraph.Convergence()
		recorder.ObserveCredRun(mpg.NodeCount(), len(participants), conv.Iterations, conv.Converged)
		span.SetAttributes(
			attribute.Int("credrank.iterations", conv.Iterations),
			attribute.Bool("credrank.converged", conv.Converged),
		)
		if warning := result.CredGraph.Warning(); warning != nil {
			result.Warning = warning
			log.Printf("warning: %v", warning)
		}
		return nil
	}); err != nil {
		return Result{}, err
	}

	if err := runStage(ctx, recorder, StageWrite, func(ctx context.Context, span trace.Span) error {
		var err error
		result.CredGraphPath, err = writeCredGraph(cfg.OutputDir, result.CredGraph)
		return err
	}); err != nil {
		return Result{}, err
	}

	if strings.TrimSpace(cfg.DBPath) == "" {
		return result, nil
	}
	store, err := openStore(cfg.DBPath)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close ledger store: %v", closeErr)
		}
	}()

	var loadedSeq uint64
	if err := runStage(ctx, recorder, StageLedger, func(ctx context.Context, span trace.Span) error {
		var err error
		result.Ledger, err = store.LoadLedger(ctx, ledger.WithClock(cfg.Now), ledger.WithIDGenerator(cfg.NewID))
		if err != nil {
			return err
		}
		loadedSeq = result.Ledger.LastSeq()
		created := 0
		if cfg.CreateIdentities {
			created, err = ensureIdentities(result.Ledger, result.CredGraph)
		}
		span.SetAttributes(
			attribute.Int64("credrank.ledger_seq", int64(loadedSeq)),
			attribute.Int("credrank.identities_created", created),
		)
		return err
	}); err != nil {
		return Result{}, err
	}

	if cfg.PoliciesPath != "" {
		if err := runStage(ctx, recorder, StageDistribute, func(ctx context.Context, span trace.Span) error {
			dist, err := distribute(cfg, result.Ledger, result.CredGraph)
			if err != nil {
				return err
			}
			if err := result.Ledger.RecordDistribution(dist); err != nil {
				return err
			}
			for _, allocation := range dist.Allocations {
				recorder.AddGrain(string(allocation.Policy.PolicyType()), grain.ToWholeFloat(allocation.Total()))
			}
			result.Distribution = &dist
			span.SetAttributes(
				attribute.String("credrank.distribution_id", dist.ID),
				attribute.Int("credrank.allocations", len(dist.Allocations)),
			)
			return nil
		}); err != nil {
			return Result{}, err
		}
	}

	if err := runStage(ctx, recorder, StageRecord, func(ctx context.Context, span trace.Span) error {
		pending := result.Ledger.EventsAfter(loadedSeq)
		span.SetAttributes(attribute.Int("credrank.events", len(pending)))
		return store.Append(ctx, pending...)
	}); err != nil {
		return Result{}, err
	}
	return result, nil
}

func loadGraphs(ctx context.Context, paths []string) ([]graph.WeightedGraph, error) {
	graphs := make([]graph.WeightedGraph, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read graph %s: %w", path, err)
			}
			wg, err := graph.UnmarshalWeightedGraph(data)
			if err != nil {
				return fmt.Errorf("decode graph %s: %w", path, err)
			}
			graphs[i] = wg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return graphs, nil
}

func writeCredGraph(dir string, cg *credrank.CredGraph) (string, error) {
	data, err := credrank.MarshalCredGraph(cg)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, CredGraphFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write cred graph: %w", err)
	}
	return path, nil
}

func openStore(path string) (*sqlite.Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}
	return sqlite.Open(path)
}

func distribute(cfg RuntimeConfig, l *ledger.Ledger, cg *credrank.CredGraph) (policy.Distribution, error) {
	data, err := os.ReadFile(cfg.PoliciesPath)
	if err != nil {
		return policy.Distribution{}, fmt.Errorf("read policies: %w", err)
	}
	policies, err := policy.ParsePolicies(data)
	if err != nil {
		return policy.Distribution{}, err
	}
	identities := l.ProcessIdentities(cg)
	if len(identities) == 0 {
		return policy.Distribution{}, apperrors.New(apperrors.CodeInvalidParameter, "no ledger identity has cred to distribute to")
	}
	return policy.ComputeDistribution(policies, identities, cfg.Now().UnixMilli(), cfg.NewID)
}
