package credrank

import (
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/louisbranch/credrank/internal/services/cred/domain/graph"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("credrank", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.OutputDir != "output" {
		t.Fatalf("output dir = %q, want output", cfg.OutputDir)
	}
	if cfg.DBPath != "data/ledger.db" {
		t.Fatalf("db path = %q, want data/ledger.db", cfg.DBPath)
	}
	if cfg.Alpha != 0.1 || cfg.Beta != 0.4 || cfg.GammaForward != 0.1 || cfg.GammaBackward != 0.1 {
		t.Fatalf("parameters = %v %v %v %v", cfg.Alpha, cfg.Beta, cfg.GammaForward, cfg.GammaBackward)
	}
	if cfg.MaxIterations != 255 || cfg.ConvergenceThreshold != 1e-7 || cfg.Workers != 1 {
		t.Fatalf("engine = %d %v %d", cfg.MaxIterations, cfg.ConvergenceThreshold, cfg.Workers)
	}
	if !cfg.CreateIdentities {
		t.Fatal("create identities should default to true")
	}
	if cfg.SummaryLimit != 10 {
		t.Fatalf("summary limit = %d, want 10", cfg.SummaryLimit)
	}
}

func TestParseConfigEnvAndFlags(t *testing.T) {
	t.Setenv("CREDRANK_GRAPHS", "a.json,b.json")
	t.Setenv("CREDRANK_ALPHA", "0.2")
	t.Setenv("CREDRANK_DB_PATH", "env.db")

	fs := flag.NewFlagSet("credrank", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{
		"-db", "flag.db",
		"-scoring-prefixes", "github/user, discord/user",
		"-workers", "4",
		"-create-identities=false",
	})
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if len(cfg.Graphs) != 2 || cfg.Graphs[1] != "b.json" {
		t.Fatalf("graphs = %v", cfg.Graphs)
	}
	if cfg.Alpha != 0.2 {
		t.Fatalf("alpha = %v, want 0.2", cfg.Alpha)
	}
	if cfg.DBPath != "flag.db" {
		t.Fatalf("db path = %q, want flag.db", cfg.DBPath)
	}
	if len(cfg.ScoringPrefixes) != 2 || cfg.ScoringPrefixes[1] != "discord/user" {
		t.Fatalf("scoring prefixes = %v", cfg.ScoringPrefixes)
	}
	if cfg.Workers != 4 {
		t.Fatalf("workers = %d, want 4", cfg.Workers)
	}
	if cfg.CreateIdentities {
		t.Fatal("create identities should be disabled")
	}
}

func TestParseConfigRejectsBadEnv(t *testing.T) {
	t.Setenv("CREDRANK_ALPHA", "lots")
	fs := flag.NewFlagSet("credrank", flag.ContinueOnError)
	if _, err := ParseConfig(fs, nil); err == nil {
		t.Fatal("expected env parse error")
	}
}

func TestRuntimeConfigParsesPrefixes(t *testing.T) {
	cfg := Config{OutputDir: "out", ScoringPrefixes: []string{"github/user"}, Beta: 0.3}
	runtimeCfg, err := cfg.RuntimeConfig()
	if err != nil {
		t.Fatalf("RuntimeConfig: %v", err)
	}
	want := graph.NewNodeAddress("github", "user")
	if len(runtimeCfg.ScoringPrefixes) != 1 || runtimeCfg.ScoringPrefixes[0] != want {
		t.Fatalf("prefixes = %v, want %v", runtimeCfg.ScoringPrefixes, want)
	}
	if runtimeCfg.Fibration.Beta != 0.3 {
		t.Fatalf("beta = %v, want 0.3", runtimeCfg.Fibration.Beta)
	}
}

func TestRunPrintsSummary(t *testing.T) {
	dir := t.TempDir()
	ada := graph.NewNodeAddress("github", "user", "ada")
	pull := graph.NewNodeAddress("github", "pull", "1")
	wg := graph.NewWeightedGraph()
	if err := wg.Graph.AddNode(graph.Node{Address: ada, Description: "ada"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := wg.Graph.AddNode(graph.Node{Address: pull, Description: "pull 1"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := wg.Graph.AddEdge(graph.Edge{Address: graph.NewEdgeAddress("github", "authors", "1"), Src: ada, Dst: pull, TimestampMs: 1}); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	data, err := graph.MarshalWeightedGraph(wg)
	if err != nil {
		t.Fatalf("MarshalWeightedGraph: %v", err)
	}
	graphPath := filepath.Join(dir, "github.json")
	if err := os.WriteFile(graphPath, data, 0o644); err != nil {
		t.Fatalf("write graph: %v", err)
	}
	policiesPath := filepath.Join(dir, "policies.json")
	if err := os.WriteFile(policiesPath, []byte(`[{"policyType":"BALANCED","budget":"1000000000000000000000"}]`), 0o644); err != nil {
		t.Fatalf("write policies: %v", err)
	}

	fs := flag.NewFlagSet("credrank", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{
		"-graphs", graphPath,
		"-output-dir", filepath.Join(dir, "output"),
		"-db", filepath.Join(dir, "ledger.db"),
		"-scoring-prefixes", "github/user",
		"-policies", policiesPath,
	})
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	var out bytes.Buffer
	if err := Run(context.Background(), cfg, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{"1 participants", "| ada", "100.00%", "distributed 1,000g", "BALANCED: 1,000g"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("summary missing %q:\n%s", want, out.String())
		}
	}
}
