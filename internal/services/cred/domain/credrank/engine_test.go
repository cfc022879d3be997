package credrank

import (
	"context"
	"errors"
	"math"
	"testing"

	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
	"github.com/louisbranch/credrank/internal/services/cred/domain/graph"
	"github.com/louisbranch/credrank/internal/services/cred/domain/markov"
	"github.com/louisbranch/credrank/internal/services/cred/domain/participant"
)

const week = markov.EpochLengthMs

var (
	ada   = graph.NewNodeAddress("user", "ada")
	grace = graph.NewNodeAddress("user", "grace")
	pull1 = graph.NewNodeAddress("pull", "1")
	pull2 = graph.NewNodeAddress("pull", "2")
	issue = graph.NewNodeAddress("issue", "1")
)

func processGraph(t *testing.T) *markov.MarkovProcessGraph {
	t.Helper()
	wg := graph.NewWeightedGraph()
	for _, n := range []graph.Node{
		{Address: ada, Description: "ada"},
		{Address: grace, Description: "grace"},
		{Address: pull1, Description: "pull 1"},
		{Address: pull2, Description: "pull 2"},
		{Address: issue, Description: "issue 1"},
	} {
		if err := wg.Graph.AddNode(n); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
	}
	for _, e := range []graph.Edge{
		{Address: graph.NewEdgeAddress("authors", "1"), Src: ada, Dst: pull1, TimestampMs: 1},
		{Address: graph.NewEdgeAddress("authors", "2"), Src: grace, Dst: pull2, TimestampMs: week + 1},
		{Address: graph.NewEdgeAddress("authors", "3"), Src: ada, Dst: pull2, TimestampMs: 2*week + 1},
		{Address: graph.NewEdgeAddress("references", "1"), Src: pull2, Dst: issue, TimestampMs: week},
	} {
		if err := wg.Graph.AddEdge(e); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	wg.Weights.NodeWeights[graph.NewNodeAddress("pull")] = 4
	wg.Weights.NodeWeights[graph.NewNodeAddress("user")] = 0
	wg.Weights.EdgeWeights[graph.NewEdgeAddress("authors")] = graph.EdgeWeight{Forwards: 0.5, Backwards: 1}

	participants := []participant.Participant{
		{Address: grace, Description: "grace"},
		{Address: ada, Description: "ada"},
	}
	mpg, err := markov.Build(wg, participants,
		markov.FibrationOptions{Beta: 0.4, GammaForward: 0.1, GammaBackward: 0.1},
		markov.SeedOptions{Alpha: 0.1})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return mpg
}

func mustRun(t *testing.T, mpg *markov.MarkovProcessGraph, opts Options) *CredGraph {
	t.Helper()
	cg, err := Run(context.Background(), mpg, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return cg
}

func TestRunConvergesFromAnyInitialVector(t *testing.T) {
	t.Parallel()

	mpg := processGraph(t)
	concentrated := make([]float64, mpg.NodeCount())
	concentrated[0] = 7

	opts := Options{MaxIterations: 5000, ConvergenceThreshold: 1e-13}
	uniform := mustRun(t, mpg, opts)
	opts.Initial = concentrated
	skewed := mustRun(t, mpg, opts)

	if !uniform.Convergence().Converged || !skewed.Convergence().Converged {
		t.Fatalf("expected convergence: %+v, %+v", uniform.Convergence(), skewed.Convergence())
	}
	for _, address := range []graph.NodeAddress{ada, grace, pull1, pull2, issue} {
		a, _ := uniform.NodeCred(address)
		b, _ := skewed.NodeCred(address)
		if math.Abs(a-b) > 1e-9 {
			t.Fatalf("cred of %s = %v vs %v", address, a, b)
		}
	}
}

func TestRunReachesFixedPoint(t *testing.T) {
	t.Parallel()

	mpg := processGraph(t)
	c := newChain(mpg)
	pi, err := initialDistribution(mpg.NodeCount(), nil)
	if err != nil {
		t.Fatalf("initialDistribution: %v", err)
	}
	next := make([]float64, len(pi))
	for i := 0; i < 2000; i++ {
		c.step(pi, next, 0, len(pi))
		pi, next = next, pi
	}
	var mass float64
	for _, v := range pi {
		mass += v
	}
	if math.Abs(mass-1) > 1e-12 {
		t.Fatalf("probability mass = %v, want 1", mass)
	}
	c.step(pi, next, 0, len(pi))
	for v := range pi {
		if math.Abs(next[v]-pi[v]) > 1e-12 {
			t.Fatalf("node %d moved from %v to %v", v, pi[v], next[v])
		}
	}
}

func TestRunIndependentOfWorkers(t *testing.T) {
	t.Parallel()

	mpg := processGraph(t)
	serial := mustRun(t, mpg, Options{Workers: 1})
	for _, workers := range []int{2, 3, 16} {
		parallel := mustRun(t, mpg, Options{Workers: workers})
		if parallel.Convergence() != serial.Convergence() {
			t.Fatalf("workers=%d convergence = %+v, want %+v", workers, parallel.Convergence(), serial.Convergence())
		}
		sp, pp := serial.Participants(), parallel.Participants()
		for i := range sp {
			for k := range sp[i].CredPerEpoch {
				if sp[i].CredPerEpoch[k] != pp[i].CredPerEpoch[k] {
					t.Fatalf("workers=%d: %s epoch %d = %v, want %v", workers, sp[i].Address, k, pp[i].CredPerEpoch[k], sp[i].CredPerEpoch[k])
				}
			}
		}
	}
}

func TestRunScalesToTotalNodeWeight(t *testing.T) {
	t.Parallel()

	mpg := processGraph(t)
	cg := mustRun(t, mpg, Options{})
	// pull 4 + pull 4 + issue 1 + users 0
	if got := cg.TotalCred(); math.Abs(got-9) > 1e-9 {
		t.Fatalf("TotalCred() = %v, want 9", got)
	}
}

func TestRunParticipantCred(t *testing.T) {
	t.Parallel()

	mpg := processGraph(t)
	cg := mustRun(t, mpg, Options{})

	ps := cg.Participants()
	if len(ps) != 2 || ps[0].Address != grace || ps[1].Address != ada {
		t.Fatalf("Participants() order = %+v, want grace, ada", ps)
	}
	if got := len(cg.Epochs()); got != 3 {
		t.Fatalf("len(Epochs()) = %d, want 3", got)
	}
	for _, p := range ps {
		if len(p.CredPerEpoch) != 3 {
			t.Fatalf("%s has %d epochs, want 3", p.Address, len(p.CredPerEpoch))
		}
		var sum float64
		for _, c := range p.CredPerEpoch {
			if c <= 0 {
				t.Fatalf("%s epoch cred %v, want positive", p.Address, c)
			}
			sum += c
		}
		if math.Abs(sum-p.Cred) > 1e-12 {
			t.Fatalf("%s cred %v != sum of epochs %v", p.Address, p.Cred, sum)
		}
	}
	// grace authored in the middle epoch; the first epoch only gets webbing.
	if ps[0].CredPerEpoch[1] <= ps[0].CredPerEpoch[0] {
		t.Fatalf("grace epochs = %v, want the authoring epoch highest", ps[0].CredPerEpoch)
	}
	if _, ok := cg.Participant(ada); !ok {
		t.Fatal("Participant(ada) not found")
	}
	if _, ok := cg.NodeCred(markov.SeedAddress); ok {
		t.Fatal("seed should not carry cred")
	}
}

func TestRunNonConvergenceIsSoft(t *testing.T) {
	t.Parallel()

	mpg := processGraph(t)
	var progress []Progress
	cg, err := Run(context.Background(), mpg, Options{
		MaxIterations:        2,
		ConvergenceThreshold: 1e-15,
		OnProgress:           func(p Progress) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	conv := cg.Convergence()
	if conv.Converged || conv.Iterations != 2 {
		t.Fatalf("Convergence() = %+v, want 2 iterations unconverged", conv)
	}
	if len(progress) != 2 || progress[1].Iteration != 2 {
		t.Fatalf("progress = %+v", progress)
	}
	warning := cg.Warning()
	if !errors.Is(warning, ErrNonConvergence) {
		t.Fatalf("Warning() = %v, want ErrNonConvergence", warning)
	}
	if !apperrors.IsWarning(warning) {
		t.Fatal("non-convergence should be a warning")
	}
	if got := cg.TotalCred(); math.Abs(got-9) > 1e-9 {
		t.Fatalf("TotalCred() = %v, want 9", got)
	}
}

func TestRunConvergedHasNoWarning(t *testing.T) {
	t.Parallel()

	cg := mustRun(t, processGraph(t), Options{})
	if err := cg.Warning(); err != nil {
		t.Fatalf("Warning() = %v, want nil", err)
	}
}

func TestRunRejectsInvalidOptions(t *testing.T) {
	t.Parallel()

	mpg := processGraph(t)
	n := mpg.NodeCount()
	negative := make([]float64, n)
	negative[0] = -1
	negative[1] = 2

	tests := []struct {
		name string
		opts Options
	}{
		{name: "short initial", opts: Options{Initial: []float64{1}}},
		{name: "zero initial", opts: Options{Initial: make([]float64, n)}},
		{name: "negative initial", opts: Options{Initial: negative}},
		{name: "negative cap", opts: Options{MaxIterations: -1}},
		{name: "NaN threshold", opts: Options{ConvergenceThreshold: math.NaN()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Run(context.Background(), mpg, tt.opts); !errors.Is(err, ErrInvalidParameters) {
				t.Fatalf("Run = %v, want ErrInvalidParameters", err)
			}
		})
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, processGraph(t), Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestCredGraphJSONRoundTrip(t *testing.T) {
	t.Parallel()

	cg := mustRun(t, processGraph(t), Options{})
	data, err := MarshalCredGraph(cg)
	if err != nil {
		t.Fatalf("MarshalCredGraph: %v", err)
	}
	got, err := UnmarshalCredGraph(data)
	if err != nil {
		t.Fatalf("UnmarshalCredGraph: %v", err)
	}
	if got.Convergence() != cg.Convergence() {
		t.Fatalf("Convergence() = %+v, want %+v", got.Convergence(), cg.Convergence())
	}
	want := cg.Participants()
	for i, p := range got.Participants() {
		if p.Address != want[i].Address || p.Cred != want[i].Cred {
			t.Fatalf("participant %d = %+v, want %+v", i, p, want[i])
		}
	}
	a, _ := got.NodeCred(pull2)
	b, _ := cg.NodeCred(pull2)
	if a != b {
		t.Fatalf("NodeCred(pull2) = %v, want %v", a, b)
	}

	if _, err := UnmarshalCredGraph([]byte(`[{"type":"credrank/credGraph","version":"2.0.0"},{}]`)); apperrors.GetCode(err) != apperrors.CodeIncompatibleFormat {
		t.Fatalf("UnmarshalCredGraph future version = %v, want IncompatibleFormat", err)
	}
}

func TestTotalCredIsReproducible(t *testing.T) {
	t.Parallel()

	cg := mustRun(t, processGraph(t), Options{})
	first := cg.TotalCred()
	for i := 0; i < 50; i++ {
		if got := cg.TotalCred(); got != first {
			t.Fatalf("TotalCred() = %v on call %d, want %v", got, i, first)
		}
	}

	data, err := MarshalCredGraph(cg)
	if err != nil {
		t.Fatalf("MarshalCredGraph: %v", err)
	}
	decoded, err := UnmarshalCredGraph(data)
	if err != nil {
		t.Fatalf("UnmarshalCredGraph: %v", err)
	}
	if got := decoded.TotalCred(); got != first {
		t.Fatalf("decoded TotalCred() = %v, want %v", got, first)
	}
}

func TestParticipantTotal(t *testing.T) {
	t.Parallel()

	cg := mustRun(t, processGraph(t), Options{})
	var want float64
	for _, p := range cg.Participants() {
		want += p.Cred
	}
	if got := cg.ParticipantTotal(); got != want {
		t.Fatalf("ParticipantTotal() = %v, want %v", got, want)
	}
	if cg.ParticipantTotal() >= cg.TotalCred() {
		t.Fatalf("ParticipantTotal() = %v, want below TotalCred() %v", cg.ParticipantTotal(), cg.TotalCred())
	}
}
