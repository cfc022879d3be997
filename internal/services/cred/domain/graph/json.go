package graph

import (
	"fmt"

	"github.com/louisbranch/credrank/internal/services/cred/domain/compat"
)

// WeightedGraphFormat identifies serialized weighted graphs.
var WeightedGraphFormat = compat.Header{Type: "credrank/weightedGraph", Version: "0.1.0"}

// weightedGraphConstraint lists the weighted graph versions this reader accepts.
const weightedGraphConstraint = "^0.1"

type nodeJSON struct {
	Address     []string `json:"address"`
	Description string   `json:"description"`
}

type edgeJSON struct {
	Address     []string `json:"address"`
	Src         []string `json:"src"`
	Dst         []string `json:"dst"`
	TimestampMs int64    `json:"timestampMs"`
}

type nodeWeightJSON struct {
	Prefix []string `json:"prefix"`
	Weight float64  `json:"weight"`
}

type edgeWeightJSON struct {
	Prefix    []string `json:"prefix"`
	Forwards  float64  `json:"forwards"`
	Backwards float64  `json:"backwards"`
}

type weightedGraphJSON struct {
	Nodes       []nodeJSON       `json:"nodes"`
	Edges       []edgeJSON       `json:"edges"`
	NodeWeights []nodeWeightJSON `json:"nodeWeights"`
	EdgeWeights []edgeWeightJSON `json:"edgeWeights"`
}

// MarshalWeightedGraph serializes wg behind the weighted graph header.
// Nodes, edges and weight prefixes are written in address order.
func MarshalWeightedGraph(wg WeightedGraph) ([]byte, error) {
	payload := weightedGraphJSON{
		Nodes:       []nodeJSON{},
		Edges:       []edgeJSON{},
		NodeWeights: []nodeWeightJSON{},
		EdgeWeights: []edgeWeightJSON{},
	}
	if wg.Graph != nil {
		for _, n := range wg.Graph.Nodes() {
			payload.Nodes = append(payload.Nodes, nodeJSON{Address: n.Address.Parts(), Description: n.Description})
		}
		for _, e := range wg.Graph.Edges() {
			payload.Edges = append(payload.Edges, edgeJSON{
				Address:     e.Address.Parts(),
				Src:         e.Src.Parts(),
				Dst:         e.Dst.Parts(),
				TimestampMs: e.TimestampMs,
			})
		}
	}
	for _, prefix := range sortedNodePrefixes(wg.Weights.NodeWeights) {
		payload.NodeWeights = append(payload.NodeWeights, nodeWeightJSON{
			Prefix: prefix.Parts(),
			Weight: wg.Weights.NodeWeights[prefix],
		})
	}
	for _, prefix := range sortedEdgePrefixes(wg.Weights.EdgeWeights) {
		w := wg.Weights.EdgeWeights[prefix]
		payload.EdgeWeights = append(payload.EdgeWeights, edgeWeightJSON{
			Prefix:    prefix.Parts(),
			Forwards:  w.Forwards,
			Backwards: w.Backwards,
		})
	}
	return compat.Marshal(WeightedGraphFormat, payload)
}

// UnmarshalWeightedGraph decodes a serialized weighted graph, rejecting
// incompatible headers, dangling edges and invalid weights.
func UnmarshalWeightedGraph(data []byte) (WeightedGraph, error) {
	var payload weightedGraphJSON
	if err := compat.Unmarshal(data, WeightedGraphFormat.Type, weightedGraphConstraint, &payload); err != nil {
		return WeightedGraph{}, err
	}

	wg := NewWeightedGraph()
	for i, n := range payload.Nodes {
		address, err := NodeAddressFromParts(n.Address)
		if err != nil {
			return WeightedGraph{}, fmt.Errorf("node %d: %w", i, err)
		}
		if err := wg.Graph.AddNode(Node{Address: address, Description: n.Description}); err != nil {
			return WeightedGraph{}, err
		}
	}
	for i, e := range payload.Edges {
		address, err := EdgeAddressFromParts(e.Address)
		if err != nil {
			return WeightedGraph{}, fmt.Errorf("edge %d: %w", i, err)
		}
		src, err := NodeAddressFromParts(e.Src)
		if err != nil {
			return WeightedGraph{}, fmt.Errorf("edge %d src: %w", i, err)
		}
		dst, err := NodeAddressFromParts(e.Dst)
		if err != nil {
			return WeightedGraph{}, fmt.Errorf("edge %d dst: %w", i, err)
		}
		if err := wg.Graph.AddEdge(Edge{Address: address, Src: src, Dst: dst, TimestampMs: e.TimestampMs}); err != nil {
			return WeightedGraph{}, err
		}
	}
	for i, w := range payload.NodeWeights {
		prefix, err := NodeAddressFromParts(w.Prefix)
		if err != nil {
			return WeightedGraph{}, fmt.Errorf("node weight %d: %w", i, err)
		}
		wg.Weights.NodeWeights[prefix] = w.Weight
	}
	for i, w := range payload.EdgeWeights {
		prefix, err := EdgeAddressFromParts(w.Prefix)
		if err != nil {
			return WeightedGraph{}, fmt.Errorf("edge weight %d: %w", i, err)
		}
		wg.Weights.EdgeWeights[prefix] = EdgeWeight{Forwards: w.Forwards, Backwards: w.Backwards}
	}
	if err := wg.Weights.Validate(); err != nil {
		return WeightedGraph{}, err
	}
	return wg, nil
}
