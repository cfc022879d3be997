// Package markov turns a weighted contribution graph into a normalized
// Markov process graph: participants are split into weekly epoch nodes, a
// seed node teleports probability back into the graph, and every node's
// outgoing transitions sum to one.
package markov

import (
	"math"
	"sort"
	"strconv"

	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
	"github.com/louisbranch/credrank/internal/services/cred/domain/graph"
	"github.com/louisbranch/credrank/internal/services/cred/domain/participant"
)

var (
	// ErrInvalidParameters indicates unusable chain parameters or participants.
	ErrInvalidParameters = apperrors.New(apperrors.CodeInvalidParameters, "invalid process graph parameters")
	// ErrDegenerateGraph indicates a node whose outgoing probability cannot be normalized.
	ErrDegenerateGraph = apperrors.New(apperrors.CodeDegenerateGraph, "degenerate process graph")
)

// EpochLengthMs is the length of one epoch. Epochs are aligned to the Unix epoch.
const EpochLengthMs int64 = 7 * 24 * 60 * 60 * 1000

var (
	// CorePrefix is reserved for synthetic process graph nodes.
	CorePrefix = graph.NewNodeAddress("credrank", "core")
	// SeedAddress is the address of the seed node.
	SeedAddress = CorePrefix.Append("SEED")

	epochPrefix = CorePrefix.Append("PARTICIPANT_EPOCH")
)

// EpochAddress returns the address of a participant's epoch node starting at epochStart.
func EpochAddress(address graph.NodeAddress, epochStart int64) graph.NodeAddress {
	parts := append(address.Parts(), strconv.FormatInt(epochStart, 10))
	return epochPrefix.Append(parts...)
}

// EpochStart returns the start of the epoch containing timestampMs.
func EpochStart(timestampMs int64) int64 {
	mod := timestampMs % EpochLengthMs
	if mod < 0 {
		mod += EpochLengthMs
	}
	return timestampMs - mod
}

// FibrationOptions configures how participants are split over time.
type FibrationOptions struct {
	// Beta is the extra teleportation of participant epoch nodes.
	Beta float64
	// GammaForward is the probability of moving to the next epoch.
	GammaForward float64
	// GammaBackward is the probability of moving to the previous epoch.
	GammaBackward float64
}

// SeedOptions configures the seed node.
type SeedOptions struct {
	// Alpha is the probability every node returns to the seed.
	Alpha float64
}

// Parameters are the combined chain parameters.
type Parameters struct {
	Alpha         float64
	Beta          float64
	GammaForward  float64
	GammaBackward float64
}

// Validate checks 0 < α < 1, β, γ ≥ 0 and α+β+γF+γB ≤ 1.
func (p Parameters) Validate() error {
	values := map[string]float64{
		"alpha":         p.Alpha,
		"beta":          p.Beta,
		"gammaForward":  p.GammaForward,
		"gammaBackward": p.GammaBackward,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalidParameters(name+" must be finite", map[string]string{name: formatFloat(v)})
		}
	}
	if p.Alpha <= 0 || p.Alpha >= 1 {
		return invalidParameters("alpha must be in (0, 1): it is the probability of teleporting to the seed, and the seed keeps 1-alpha to mint", map[string]string{"alpha": formatFloat(p.Alpha)})
	}
	if p.Beta < 0 {
		return invalidParameters("beta must be non-negative", map[string]string{"beta": formatFloat(p.Beta)})
	}
	if p.GammaForward < 0 || p.GammaBackward < 0 {
		return invalidParameters("gamma must be non-negative", map[string]string{
			"gammaForward":  formatFloat(p.GammaForward),
			"gammaBackward": formatFloat(p.GammaBackward),
		})
	}
	if sum := p.Alpha + p.Beta + p.GammaForward + p.GammaBackward; sum > 1 {
		return invalidParameters("alpha+beta+gammaForward+gammaBackward must not exceed 1: they are probabilities sharing one epoch node's outgoing mass", map[string]string{
			"sum":           formatFloat(sum),
			"alpha":         formatFloat(p.Alpha),
			"beta":          formatFloat(p.Beta),
			"gammaForward":  formatFloat(p.GammaForward),
			"gammaBackward": formatFloat(p.GammaBackward),
		})
	}
	return nil
}

func invalidParameters(message string, metadata map[string]string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidParameters, message, metadata)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Node is a process graph node.
type Node struct {
	Address     graph.NodeAddress
	Description string
	Kind        NodeKind
	// Weight is the node's share of the seed's mint.
	Weight float64
	// Participant and EpochStart are set on epoch nodes only.
	Participant graph.NodeAddress
	EpochStart  int64
}

// Edge is a transition with its probability.
type Edge struct {
	Src         graph.NodeAddress
	Dst         graph.NodeAddress
	Kind        EdgeKind
	Probability float64
}

// MarkovProcessGraph is an immutable, normalized Markov chain.
type MarkovProcessGraph struct {
	nodes        []Node
	index        map[graph.NodeAddress]int
	out          [][]Edge
	participants []participant.Participant
	epochStarts  []int64
	params       Parameters
}

// Nodes returns every node in address order.
func (m *MarkovProcessGraph) Nodes() []Node {
	return append([]Node(nil), m.nodes...)
}

// Edges returns every edge grouped by source in address order.
func (m *MarkovProcessGraph) Edges() []Edge {
	var out []Edge
	for _, edges := range m.out {
		out = append(out, edges...)
	}
	return out
}

// Node returns the node at address.
func (m *MarkovProcessGraph) Node(address graph.NodeAddress) (Node, bool) {
	i, ok := m.index[address]
	if !ok {
		return Node{}, false
	}
	return m.nodes[i], true
}

// NodeIndex returns the position of address in Nodes.
func (m *MarkovProcessGraph) NodeIndex(address graph.NodeAddress) (int, bool) {
	i, ok := m.index[address]
	return i, ok
}

// OutEdges returns the transitions leaving address.
func (m *MarkovProcessGraph) OutEdges(address graph.NodeAddress) []Edge {
	i, ok := m.index[address]
	if !ok {
		return nil
	}
	return append([]Edge(nil), m.out[i]...)
}

// NodeCount returns the number of nodes, seed included.
func (m *MarkovProcessGraph) NodeCount() int { return len(m.nodes) }

// Participants returns the participants in the order given to Build.
func (m *MarkovProcessGraph) Participants() []participant.Participant {
	return append([]participant.Participant(nil), m.participants...)
}

// EpochStarts returns the epoch start timestamps in ascending order.
func (m *MarkovProcessGraph) EpochStarts() []int64 {
	return append([]int64(nil), m.epochStarts...)
}

// Parameters returns the parameters the graph was built with.
func (m *MarkovProcessGraph) Parameters() Parameters { return m.params }

// Build constructs the process graph for wg and participants.
func Build(wg graph.WeightedGraph, participants []participant.Participant, fib FibrationOptions, seed SeedOptions) (*MarkovProcessGraph, error) {
	params := Parameters{
		Alpha:         seed.Alpha,
		Beta:          fib.Beta,
		GammaForward:  fib.GammaForward,
		GammaBackward: fib.GammaBackward,
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	g := wg.Graph
	if g == nil {
		g = graph.New()
	}
	if err := wg.Weights.Validate(); err != nil {
		return nil, err
	}

	isParticipant := make(map[graph.NodeAddress]bool, len(participants))
	for _, p := range participants {
		if !g.HasNode(p.Address) {
			return nil, invalidParameters("participant is not a graph node", map[string]string{"participant": p.Address.String()})
		}
		if isParticipant[p.Address] {
			return nil, invalidParameters("duplicate participant", map[string]string{"participant": p.Address.String()})
		}
		isParticipant[p.Address] = true
	}
	for _, n := range g.Nodes() {
		if n.Address.HasPrefix(CorePrefix) {
			return nil, invalidParameters("node address uses the reserved prefix", map[string]string{"node": n.Address.String()})
		}
	}

	epochStarts := epochRange(g, isParticipant)
	m := &MarkovProcessGraph{
		participants: append([]participant.Participant(nil), participants...),
		epochStarts:  epochStarts,
		params:       params,
	}
	m.addNodes(g, wg.Weights, isParticipant)
	transitions := m.graphTransitions(g, wg.Weights, isParticipant)
	if err := m.addEdges(transitions); err != nil {
		return nil, err
	}
	return m, nil
}

// epochRange spans the timestamps of edges touching a participant.
func epochRange(g *graph.Graph, isParticipant map[graph.NodeAddress]bool) []int64 {
	var (
		first, last int64
		found       bool
	)
	for _, e := range g.Edges() {
		if !isParticipant[e.Src] && !isParticipant[e.Dst] {
			continue
		}
		start := EpochStart(e.TimestampMs)
		if !found || start < first {
			first = start
		}
		if !found || start > last {
			last = start
		}
		found = true
	}
	if !found {
		return []int64{0}
	}
	starts := make([]int64, 0, (last-first)/EpochLengthMs+1)
	for start := first; start <= last; start += EpochLengthMs {
		starts = append(starts, start)
	}
	return starts
}

func (m *MarkovProcessGraph) addNodes(g *graph.Graph, weights graph.Weights, isParticipant map[graph.NodeAddress]bool) {
	for _, n := range g.Nodes() {
		weight := weights.NodeWeight(n.Address)
		if !isParticipant[n.Address] {
			m.nodes = append(m.nodes, Node{Address: n.Address, Description: n.Description, Kind: NodeKindBase, Weight: weight})
			continue
		}
		share := weight / float64(len(m.epochStarts))
		for _, start := range m.epochStarts {
			m.nodes = append(m.nodes, Node{
				Address:     EpochAddress(n.Address, start),
				Description: n.Description,
				Kind:        NodeKindEpoch,
				Weight:      share,
				Participant: n.Address,
				EpochStart:  start,
			})
		}
	}
	m.nodes = append(m.nodes, Node{Address: SeedAddress, Description: "seed", Kind: NodeKindSeed})
	sort.Slice(m.nodes, func(i, j int) bool { return m.nodes[i].Address < m.nodes[j].Address })

	m.index = make(map[graph.NodeAddress]int, len(m.nodes))
	for i, n := range m.nodes {
		m.index[n.Address] = i
	}
}

// graphTransitions resolves every contribution edge onto process graph nodes
// and sums parallel transitions per (src, dst).
func (m *MarkovProcessGraph) graphTransitions(g *graph.Graph, weights graph.Weights, isParticipant map[graph.NodeAddress]bool) []map[int]float64 {
	resolve := func(address graph.NodeAddress, timestampMs int64) int {
		if isParticipant[address] {
			return m.index[EpochAddress(address, EpochStart(timestampMs))]
		}
		return m.index[address]
	}

	transitions := make([]map[int]float64, len(m.nodes))
	add := func(src, dst int, weight float64) {
		if weight <= 0 {
			return
		}
		if transitions[src] == nil {
			transitions[src] = make(map[int]float64)
		}
		transitions[src][dst] += weight
	}
	for _, e := range g.Edges() {
		w := weights.EdgeWeight(e.Address)
		src := resolve(e.Src, e.TimestampMs)
		dst := resolve(e.Dst, e.TimestampMs)
		add(src, dst, w.Forwards)
		add(dst, src, w.Backwards)
	}
	return transitions
}

func (m *MarkovProcessGraph) addEdges(transitions []map[int]float64) error {
	p := m.params
	m.out = make([][]Edge, len(m.nodes))
	for i, n := range m.nodes {
		var (
			edges      []Edge
			seedShare  float64
			graphShare float64
		)
		switch n.Kind {
		case NodeKindSeed:
			seedShare = p.Alpha
			edges = m.mint(n.Address, 1-p.Alpha)
		case NodeKindBase:
			seedShare = p.Alpha
			graphShare = 1 - p.Alpha
		case NodeKindEpoch:
			seedShare = p.Alpha + p.Beta
			graphShare = 1 - p.Alpha - p.Beta
			position := int((n.EpochStart - m.epochStarts[0]) / EpochLengthMs)
			if position+1 < len(m.epochStarts) {
				next := EpochAddress(n.Participant, m.epochStarts[position+1])
				edges = appendEdge(edges, Edge{Src: n.Address, Dst: next, Kind: EdgeKindWebbingForward, Probability: p.GammaForward})
				graphShare -= p.GammaForward
			}
			if position > 0 {
				prev := EpochAddress(n.Participant, m.epochStarts[position-1])
				edges = appendEdge(edges, Edge{Src: n.Address, Dst: prev, Kind: EdgeKindWebbingBackward, Probability: p.GammaBackward})
				graphShare -= p.GammaBackward
			}
		default:
			return apperrors.WithMetadata(apperrors.CodeDegenerateGraph, "unknown node kind", map[string]string{
				"node": n.Address.String(),
				"kind": n.Kind.String(),
			})
		}

		if graphShare > 0 {
			graphEdges := m.distribute(n.Address, graphShare, transitions[i])
			if len(graphEdges) == 0 {
				seedShare += graphShare
			}
			edges = append(edges, graphEdges...)
		}
		edges = appendEdge(edges, Edge{Src: n.Address, Dst: SeedAddress, Kind: EdgeKindRadiation, Probability: seedShare})

		if err := normalize(n.Address, edges); err != nil {
			return err
		}
		sort.SliceStable(edges, func(a, b int) bool {
			if edges[a].Dst != edges[b].Dst {
				return edges[a].Dst < edges[b].Dst
			}
			return edges[a].Kind < edges[b].Kind
		})
		m.out[i] = edges
	}
	return nil
}

// distribute splits share over a node's transitions by weight.
func (m *MarkovProcessGraph) distribute(src graph.NodeAddress, share float64, transitions map[int]float64) []Edge {
	if len(transitions) == 0 {
		return nil
	}
	dsts := make([]int, 0, len(transitions))
	var total float64
	for dst := range transitions {
		dsts = append(dsts, dst)
	}
	sort.Ints(dsts)
	for _, dst := range dsts {
		total += transitions[dst]
	}
	if total <= 0 {
		return nil
	}
	edges := make([]Edge, 0, len(dsts))
	for _, dst := range dsts {
		edges = append(edges, Edge{
			Src:         src,
			Dst:         m.nodes[dst].Address,
			Kind:        EdgeKindGraph,
			Probability: share * transitions[dst] / total,
		})
	}
	return edges
}

// mint spreads share from the seed to every other node by weight, or
// uniformly when all weights are zero.
func (m *MarkovProcessGraph) mint(seed graph.NodeAddress, share float64) []Edge {
	var total float64
	targets := 0
	for _, n := range m.nodes {
		if n.Kind == NodeKindSeed {
			continue
		}
		total += n.Weight
		targets++
	}
	if targets == 0 {
		return nil
	}
	var edges []Edge
	for _, n := range m.nodes {
		if n.Kind == NodeKindSeed {
			continue
		}
		probability := share / float64(targets)
		if total > 0 {
			probability = share * n.Weight / total
		}
		edges = appendEdge(edges, Edge{Src: seed, Dst: n.Address, Kind: EdgeKindMint, Probability: probability})
	}
	return edges
}

func appendEdge(edges []Edge, e Edge) []Edge {
	if e.Probability <= 0 {
		return edges
	}
	return append(edges, e)
}

func normalize(src graph.NodeAddress, edges []Edge) error {
	var sum float64
	for _, e := range edges {
		sum += e.Probability
	}
	if !(sum > 0) || math.IsInf(sum, 0) {
		return apperrors.WithMetadata(apperrors.CodeDegenerateGraph, ErrDegenerateGraph.Message, map[string]string{
			"node": src.String(),
			"sum":  formatFloat(sum),
		})
	}
	for i := range edges {
		edges[i].Probability /= sum
	}
	return nil
}
