package graph

import (
	"math"
	"math/big"
	"sort"
	"strconv"

	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
)

// ErrInvalidWeight indicates a negative or non-finite weight.
var ErrInvalidWeight = apperrors.New(apperrors.CodeInvalidWeights, "weights must be finite and non-negative")

// EdgeWeight holds the multipliers for the two directions of an edge.
type EdgeWeight struct {
	Forwards  float64
	Backwards float64
}

// Weights maps address prefixes to node base weights and edge multipliers.
//
// A node's weight is the product of the weights of every prefix of its
// address present in NodeWeights; prefixes that are absent count as 1. Edge
// weights combine the same way, per direction.
//
// Merged weights also remember the individual values summed into each
// prefix, so merging merged graphs again rounds once over all of them.
type Weights struct {
	NodeWeights map[NodeAddress]float64
	EdgeWeights map[EdgeAddress]EdgeWeight

	nodeParts map[NodeAddress][]float64
	edgeParts map[EdgeAddress][]EdgeWeight
}

// NewWeights returns empty weights, which weigh everything at 1.
func NewWeights() Weights {
	return Weights{
		NodeWeights: make(map[NodeAddress]float64),
		EdgeWeights: make(map[EdgeAddress]EdgeWeight),
	}
}

// NodeWeight resolves the base weight of the node at address.
func (w Weights) NodeWeight(address NodeAddress) float64 {
	weight := 1.0
	for _, prefix := range prefixes(nodeMarker, address.Parts()) {
		if v, ok := w.NodeWeights[NodeAddress(prefix)]; ok {
			weight *= v
		}
	}
	return weight
}

// EdgeWeight resolves the forward and backward weights of the edge at address.
func (w Weights) EdgeWeight(address EdgeAddress) EdgeWeight {
	weight := EdgeWeight{Forwards: 1, Backwards: 1}
	for _, prefix := range prefixes(edgeMarker, address.Parts()) {
		if v, ok := w.EdgeWeights[EdgeAddress(prefix)]; ok {
			weight.Forwards *= v.Forwards
			weight.Backwards *= v.Backwards
		}
	}
	return weight
}

// Validate rejects negative, NaN and infinite weights.
func (w Weights) Validate() error {
	for prefix, v := range w.NodeWeights {
		if !validWeight(v) {
			return invalidWeight(prefix.String(), v)
		}
	}
	for prefix, v := range w.EdgeWeights {
		if !validWeight(v.Forwards) {
			return invalidWeight(prefix.String()+" forwards", v.Forwards)
		}
		if !validWeight(v.Backwards) {
			return invalidWeight(prefix.String()+" backwards", v.Backwards)
		}
	}
	return nil
}

func validWeight(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func invalidWeight(prefix string, v float64) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidWeights, ErrInvalidWeight.Message, map[string]string{
		"prefix": prefix,
		"weight": strconv.FormatFloat(v, 'g', -1, 64),
	})
}

// nodeContributions returns the values summed into prefix. Parts are
// ignored once NodeWeights no longer holds their sum.
func (w Weights) nodeContributions(prefix NodeAddress, v float64) []float64 {
	if parts, ok := w.nodeParts[prefix]; ok && exactSum(parts) == v {
		return parts
	}
	return []float64{v}
}

func (w Weights) edgeContributions(prefix EdgeAddress, v EdgeWeight) []EdgeWeight {
	if parts, ok := w.edgeParts[prefix]; ok && exactEdgeSum(parts) == v {
		return parts
	}
	return []EdgeWeight{v}
}

func exactEdgeSum(parts []EdgeWeight) EdgeWeight {
	forwards := make([]float64, len(parts))
	backwards := make([]float64, len(parts))
	for i, p := range parts {
		forwards[i] = p.Forwards
		backwards[i] = p.Backwards
	}
	return EdgeWeight{Forwards: exactSum(forwards), Backwards: exactSum(backwards)}
}

// exactSum adds values with exact rational arithmetic and rounds once, so the
// result does not depend on the order of values.
func exactSum(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	total := new(big.Rat)
	for _, v := range sorted {
		total.Add(total, new(big.Rat).SetFloat64(v))
	}
	f, _ := total.Float64()
	return f
}
