package markov

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/louisbranch/credrank/internal/services/cred/domain/graph"
	"github.com/louisbranch/credrank/internal/services/cred/domain/participant"
)

var (
	ada   = graph.NewNodeAddress("user", "ada")
	pull1 = graph.NewNodeAddress("pull", "1")
	pull2 = graph.NewNodeAddress("pull", "2")
	lone  = graph.NewNodeAddress("issue", "lonely")
)

func fixture(t *testing.T) (graph.WeightedGraph, []participant.Participant) {
	t.Helper()
	wg := graph.NewWeightedGraph()
	for _, n := range []graph.Node{
		{Address: ada, Description: "ada"},
		{Address: pull1, Description: "pull 1"},
		{Address: pull2, Description: "pull 2"},
		{Address: lone, Description: "lonely issue"},
	} {
		if err := wg.Graph.AddNode(n); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
	}
	for _, e := range []graph.Edge{
		{Address: graph.NewEdgeAddress("authors", "1"), Src: ada, Dst: pull1, TimestampMs: 10},
		{Address: graph.NewEdgeAddress("authors", "2"), Src: ada, Dst: pull2, TimestampMs: 2*EpochLengthMs + 5},
		{Address: graph.NewEdgeAddress("references", "1"), Src: pull2, Dst: pull1, TimestampMs: 0},
	} {
		if err := wg.Graph.AddEdge(e); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	wg.Weights.NodeWeights[graph.NewNodeAddress("pull")] = 2
	wg.Weights.NodeWeights[graph.NewNodeAddress("user")] = 3
	wg.Weights.EdgeWeights[graph.NewEdgeAddress("references")] = graph.EdgeWeight{Forwards: 1, Backwards: 0}
	return wg, []participant.Participant{{Address: ada, Description: "ada"}}
}

func defaultOptions() (FibrationOptions, SeedOptions) {
	return FibrationOptions{Beta: 0.4, GammaForward: 0.1, GammaBackward: 0.1}, SeedOptions{Alpha: 0.1}
}

func mustBuild(t *testing.T, wg graph.WeightedGraph, ps []participant.Participant, fib FibrationOptions, seed SeedOptions) *MarkovProcessGraph {
	t.Helper()
	m, err := Build(wg, ps, fib, seed)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return m
}

func TestBuildOutProbabilitiesSumToOne(t *testing.T) {
	t.Parallel()

	wg, ps := fixture(t)
	params := []Parameters{
		{Alpha: 0.1, Beta: 0.4, GammaForward: 0.1, GammaBackward: 0.1},
		{Alpha: 0.5},
		{Alpha: 0.01, Beta: 0, GammaForward: 0.5, GammaBackward: 0.25},
		{Alpha: 0.25, Beta: 0.75},
		{Alpha: 0.999},
	}
	for _, p := range params {
		m := mustBuild(t, wg, ps, FibrationOptions{Beta: p.Beta, GammaForward: p.GammaForward, GammaBackward: p.GammaBackward}, SeedOptions{Alpha: p.Alpha})
		for _, n := range m.Nodes() {
			var sum float64
			for _, e := range m.OutEdges(n.Address) {
				if e.Probability <= 0 {
					t.Fatalf("%+v: edge %s->%s has probability %v", p, e.Src, e.Dst, e.Probability)
				}
				sum += e.Probability
			}
			if math.Abs(sum-1) > 1e-12 {
				t.Fatalf("%+v: out-probability of %s = %v, want 1", p, n.Address, sum)
			}
		}
	}
}

func TestBuildRejectsInvalidParameters(t *testing.T) {
	t.Parallel()

	wg, ps := fixture(t)
	tests := []struct {
		name string
		fib  FibrationOptions
		seed SeedOptions
	}{
		{name: "alpha zero", seed: SeedOptions{Alpha: 0}},
		{name: "alpha one", seed: SeedOptions{Alpha: 1}},
		{name: "alpha negative", seed: SeedOptions{Alpha: -0.1}},
		{name: "alpha NaN", seed: SeedOptions{Alpha: math.NaN()}},
		{name: "beta negative", fib: FibrationOptions{Beta: -0.1}, seed: SeedOptions{Alpha: 0.1}},
		{name: "gamma negative", fib: FibrationOptions{GammaBackward: -0.1}, seed: SeedOptions{Alpha: 0.1}},
		{name: "sum above one", fib: FibrationOptions{Beta: 0.5, GammaForward: 0.3, GammaBackward: 0.3}, seed: SeedOptions{Alpha: 0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Build(wg, ps, tt.fib, tt.seed)
			if !errors.Is(err, ErrInvalidParameters) {
				t.Fatalf("Build = %v, want ErrInvalidParameters", err)
			}
		})
	}
}

func TestBuildExplainsSharedMass(t *testing.T) {
	t.Parallel()

	wg, ps := fixture(t)
	_, err := Build(wg, ps, FibrationOptions{Beta: 0.5, GammaForward: 0.25, GammaBackward: 0.25}, SeedOptions{Alpha: 0.125})
	if !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("Build = %v, want ErrInvalidParameters", err)
	}
	for _, want := range []string{"outgoing mass", "sum=1.125", "beta=0.5"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %q", err, want)
		}
	}
}

func TestBuildRejectsUnknownParticipant(t *testing.T) {
	t.Parallel()

	wg, _ := fixture(t)
	fib, seed := defaultOptions()
	ghost := []participant.Participant{{Address: graph.NewNodeAddress("user", "ghost")}}
	if _, err := Build(wg, ghost, fib, seed); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("Build = %v, want ErrInvalidParameters", err)
	}
}

func TestBuildRejectsReservedAddress(t *testing.T) {
	t.Parallel()

	wg, ps := fixture(t)
	if err := wg.Graph.AddNode(graph.Node{Address: SeedAddress, Description: "impostor"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	fib, seed := defaultOptions()
	if _, err := Build(wg, ps, fib, seed); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("Build = %v, want ErrInvalidParameters", err)
	}
}

func TestBuildSplitsParticipantsIntoEpochs(t *testing.T) {
	t.Parallel()

	wg, ps := fixture(t)
	fib, seed := defaultOptions()
	m := mustBuild(t, wg, ps, fib, seed)

	starts := m.EpochStarts()
	want := []int64{0, EpochLengthMs, 2 * EpochLengthMs}
	if len(starts) != len(want) {
		t.Fatalf("EpochStarts() = %v, want %v", starts, want)
	}
	for i := range want {
		if starts[i] != want[i] {
			t.Fatalf("EpochStarts() = %v, want %v", starts, want)
		}
	}

	if _, ok := m.Node(ada); ok {
		t.Fatal("participant node should be replaced by epoch nodes")
	}
	for _, start := range want {
		n, ok := m.Node(EpochAddress(ada, start))
		if !ok {
			t.Fatalf("missing epoch node at %d", start)
		}
		if n.Kind != NodeKindEpoch || n.Participant != ada || n.EpochStart != start {
			t.Fatalf("epoch node = %+v", n)
		}
		if n.Weight != 1 {
			t.Fatalf("epoch node weight = %v, want 1 (3 split over 3 epochs)", n.Weight)
		}
	}
	// 3 base nodes, 3 epoch nodes, the seed.
	if got := m.NodeCount(); got != 7 {
		t.Fatalf("NodeCount() = %d, want 7", got)
	}
}

func TestBuildReattachesEdgesToEpochOfTimestamp(t *testing.T) {
	t.Parallel()

	wg, ps := fixture(t)
	fib, seed := defaultOptions()
	m := mustBuild(t, wg, ps, fib, seed)

	hasGraphEdge := func(src, dst graph.NodeAddress) bool {
		for _, e := range m.OutEdges(src) {
			if e.Kind == EdgeKindGraph && e.Dst == dst {
				return true
			}
		}
		return false
	}
	if !hasGraphEdge(EpochAddress(ada, 0), pull1) {
		t.Fatal("missing ada@0 -> pull1")
	}
	if !hasGraphEdge(EpochAddress(ada, 2*EpochLengthMs), pull2) {
		t.Fatal("missing ada@2 -> pull2")
	}
	if !hasGraphEdge(pull2, EpochAddress(ada, 2*EpochLengthMs)) {
		t.Fatal("missing backward pull2 -> ada@2")
	}
	if hasGraphEdge(EpochAddress(ada, EpochLengthMs), pull1) {
		t.Fatal("middle epoch should have no graph edges")
	}
	// a zero backward weight drops the transition
	if hasGraphEdge(pull1, pull2) {
		t.Fatal("zero-weight backward transition should be absent")
	}
}

func TestBuildWebbing(t *testing.T) {
	t.Parallel()

	wg, ps := fixture(t)
	fib, seed := defaultOptions()
	m := mustBuild(t, wg, ps, fib, seed)

	first, middle, last := EpochAddress(ada, 0), EpochAddress(ada, EpochLengthMs), EpochAddress(ada, 2*EpochLengthMs)
	probability := func(src, dst graph.NodeAddress, kind EdgeKind) float64 {
		for _, e := range m.OutEdges(src) {
			if e.Dst == dst && e.Kind == kind {
				return e.Probability
			}
		}
		return 0
	}

	if got := probability(first, middle, EdgeKindWebbingForward); math.Abs(got-0.1) > 1e-12 {
		t.Fatalf("first -> middle = %v, want 0.1", got)
	}
	if got := probability(middle, first, EdgeKindWebbingBackward); math.Abs(got-0.1) > 1e-12 {
		t.Fatalf("middle -> first = %v, want 0.1", got)
	}
	if got := probability(middle, last, EdgeKindWebbingForward); math.Abs(got-0.1) > 1e-12 {
		t.Fatalf("middle -> last = %v, want 0.1", got)
	}
	for _, e := range m.OutEdges(first) {
		if e.Kind == EdgeKindWebbingBackward {
			t.Fatal("first epoch has no previous epoch")
		}
	}
	for _, e := range m.OutEdges(last) {
		if e.Kind == EdgeKindWebbingForward {
			t.Fatal("last epoch has no next epoch")
		}
	}

	// The middle epoch has no graph edges, so its graph share goes to the seed.
	if got := probability(middle, SeedAddress, EdgeKindRadiation); math.Abs(got-0.8) > 1e-12 {
		t.Fatalf("middle -> seed = %v, want 0.8", got)
	}
	// The first epoch folds the missing backward share into its graph edges.
	if got := probability(first, pull1, EdgeKindGraph); math.Abs(got-0.4) > 1e-12 {
		t.Fatalf("first -> pull1 = %v, want 0.4", got)
	}
	if got := probability(first, SeedAddress, EdgeKindRadiation); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("first -> seed = %v, want 0.5", got)
	}
}

func TestBuildSeed(t *testing.T) {
	t.Parallel()

	wg, ps := fixture(t)
	fib, seed := defaultOptions()
	m := mustBuild(t, wg, ps, fib, seed)

	out := m.OutEdges(SeedAddress)
	byDst := make(map[graph.NodeAddress]Edge, len(out))
	for _, e := range out {
		byDst[e.Dst] = e
	}
	if self := byDst[SeedAddress]; self.Kind != EdgeKindRadiation || math.Abs(self.Probability-0.1) > 1e-12 {
		t.Fatalf("seed self-loop = %+v, want radiation 0.1", self)
	}
	// weights: pull 2 each, lonely 1, ada epochs 1 each; total 8.
	if got := byDst[pull1].Probability; math.Abs(got-0.9*2/8) > 1e-12 {
		t.Fatalf("mint to pull1 = %v, want %v", got, 0.9*2/8)
	}
	if got := byDst[lone].Probability; math.Abs(got-0.9/8) > 1e-12 {
		t.Fatalf("mint to lone = %v, want %v", got, 0.9/8)
	}

	// A node without transitions sends everything to the seed.
	loneOut := m.OutEdges(lone)
	if len(loneOut) != 1 || loneOut[0].Dst != SeedAddress || loneOut[0].Probability != 1 {
		t.Fatalf("OutEdges(lone) = %+v, want a single edge to the seed", loneOut)
	}
}

func TestBuildUniformMintWhenWeightsAreZero(t *testing.T) {
	t.Parallel()

	wg, ps := fixture(t)
	wg.Weights.NodeWeights[graph.NewNodeAddress()] = 0
	fib, seed := defaultOptions()
	m := mustBuild(t, wg, ps, fib, seed)

	for _, e := range m.OutEdges(SeedAddress) {
		if e.Kind != EdgeKindMint {
			continue
		}
		if math.Abs(e.Probability-0.9/6) > 1e-12 {
			t.Fatalf("mint to %s = %v, want %v", e.Dst, e.Probability, 0.9/6)
		}
	}
}

func TestBuildWithoutParticipantEdgesHasOneEpoch(t *testing.T) {
	t.Parallel()

	wg := graph.NewWeightedGraph()
	if err := wg.Graph.AddNode(graph.Node{Address: ada, Description: "ada"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	fib, seed := defaultOptions()
	m := mustBuild(t, wg, []participant.Participant{{Address: ada}}, fib, seed)
	if starts := m.EpochStarts(); len(starts) != 1 || starts[0] != 0 {
		t.Fatalf("EpochStarts() = %v, want [0]", starts)
	}
}

func TestEpochStart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ts, want int64
	}{
		{ts: 0, want: 0},
		{ts: EpochLengthMs - 1, want: 0},
		{ts: EpochLengthMs, want: EpochLengthMs},
		{ts: -1, want: -EpochLengthMs},
	}
	for _, tt := range tests {
		if got := EpochStart(tt.ts); got != tt.want {
			t.Fatalf("EpochStart(%d) = %d, want %d", tt.ts, got, tt.want)
		}
	}
}

func TestKindStrings(t *testing.T) {
	t.Parallel()

	if NodeKindEpoch.String() != "EPOCH" || EdgeKindMint.String() != "MINT" {
		t.Fatal("unexpected kind names")
	}
	if got := NodeKind(42).String(); got != "NodeKind(42)" {
		t.Fatalf("String() = %s", got)
	}
}
