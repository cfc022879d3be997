package graph

import (
	"sort"
)

// WeightedGraph is a graph together with the weights that apply to it.
type WeightedGraph struct {
	Graph   *Graph
	Weights Weights
}

// NewWeightedGraph returns an empty weighted graph.
func NewWeightedGraph() WeightedGraph {
	return WeightedGraph{Graph: New(), Weights: NewWeights()}
}

// Merge combines graphs from independent sources.
//
// Nodes sharing an address must agree on description; edges sharing an
// address must agree on endpoints and timestamp. Weights declared for the same
// prefix by several graphs are summed. The result does not depend on the order
// of graphs. Merge never mutates its inputs.
func Merge(graphs ...WeightedGraph) (WeightedGraph, error) {
	merged := NewWeightedGraph()

	for _, wg := range graphs {
		if wg.Graph == nil {
			continue
		}
		for _, n := range wg.Graph.Nodes() {
			if err := merged.Graph.AddNode(n); err != nil {
				return WeightedGraph{}, err
			}
		}
	}
	for _, wg := range graphs {
		if wg.Graph == nil {
			continue
		}
		for _, e := range wg.Graph.Edges() {
			if err := merged.Graph.AddEdge(e); err != nil {
				return WeightedGraph{}, err
			}
		}
	}

	nodeParts := make(map[NodeAddress][]float64)
	edgeParts := make(map[EdgeAddress][]EdgeWeight)
	for _, wg := range graphs {
		if err := wg.Weights.Validate(); err != nil {
			return WeightedGraph{}, err
		}
		for prefix, v := range wg.Weights.NodeWeights {
			nodeParts[prefix] = append(nodeParts[prefix], wg.Weights.nodeContributions(prefix, v)...)
		}
		for prefix, v := range wg.Weights.EdgeWeights {
			edgeParts[prefix] = append(edgeParts[prefix], wg.Weights.edgeContributions(prefix, v)...)
		}
	}
	for prefix, parts := range nodeParts {
		merged.Weights.NodeWeights[prefix] = exactSum(parts)
	}
	for prefix, parts := range edgeParts {
		merged.Weights.EdgeWeights[prefix] = exactEdgeSum(parts)
	}
	merged.Weights.nodeParts = nodeParts
	merged.Weights.edgeParts = edgeParts
	return merged, nil
}

// Equal reports whether wg and other hold the same graph and weights.
func (wg WeightedGraph) Equal(other WeightedGraph) bool {
	if !wg.Graph.Equal(other.Graph) {
		return false
	}
	if len(wg.Weights.NodeWeights) != len(other.Weights.NodeWeights) ||
		len(wg.Weights.EdgeWeights) != len(other.Weights.EdgeWeights) {
		return false
	}
	for prefix, v := range wg.Weights.NodeWeights {
		if o, ok := other.Weights.NodeWeights[prefix]; !ok || o != v {
			return false
		}
	}
	for prefix, v := range wg.Weights.EdgeWeights {
		if o, ok := other.Weights.EdgeWeights[prefix]; !ok || o != v {
			return false
		}
	}
	return true
}

func sortedNodePrefixes(weights map[NodeAddress]float64) []NodeAddress {
	out := make([]NodeAddress, 0, len(weights))
	for prefix := range weights {
		out = append(out, prefix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedEdgePrefixes(weights map[EdgeAddress]EdgeWeight) []EdgeAddress {
	out := make([]EdgeAddress, 0, len(weights))
	for prefix := range weights {
		out = append(out, prefix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
