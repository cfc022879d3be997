package graph

import (
	"strconv"

	"github.com/emirpasic/gods/maps/treemap"
	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
)

var (
	// ErrConflictingNode indicates two nodes share an address but not a description.
	ErrConflictingNode = apperrors.New(apperrors.CodeConflictingNode, "conflicting node")
	// ErrConflictingEdge indicates two edges share an address but not endpoints or timestamp.
	ErrConflictingEdge = apperrors.New(apperrors.CodeConflictingEdge, "conflicting edge")
	// ErrDanglingEdge indicates an edge endpoint missing from the node set.
	ErrDanglingEdge = apperrors.New(apperrors.CodeDanglingEdge, "edge endpoint is not a node")
)

// Node is a contribution or a participant.
type Node struct {
	Address     NodeAddress
	Description string
}

// Edge is a directed relationship between two nodes. Self-loops are allowed.
type Edge struct {
	Address     EdgeAddress
	Src         NodeAddress
	Dst         NodeAddress
	TimestampMs int64
}

// Graph is a node set plus an edge set, both iterated in ascending address
// order. Every edge's endpoints are nodes of the graph.
type Graph struct {
	nodes *treemap.Map
	edges *treemap.Map
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: treemap.NewWithStringComparator(),
		edges: treemap.NewWithStringComparator(),
	}
}

// AddNode inserts n. Re-adding an identical node is a no-op.
func (g *Graph) AddNode(n Node) error {
	if existing, ok := g.Node(n.Address); ok {
		if existing.Description != n.Description {
			return apperrors.WithMetadata(apperrors.CodeConflictingNode, ErrConflictingNode.Message, map[string]string{
				"address":  n.Address.String(),
				"existing": existing.Description,
				"incoming": n.Description,
			})
		}
		return nil
	}
	g.nodes.Put(string(n.Address), n)
	return nil
}

// AddEdge inserts e. Both endpoints must already be nodes. Re-adding an
// identical edge is a no-op.
func (g *Graph) AddEdge(e Edge) error {
	for _, endpoint := range []NodeAddress{e.Src, e.Dst} {
		if !g.HasNode(endpoint) {
			return apperrors.WithMetadata(apperrors.CodeDanglingEdge, ErrDanglingEdge.Message, map[string]string{
				"edge": e.Address.String(),
				"node": endpoint.String(),
			})
		}
	}
	if existing, ok := g.Edge(e.Address); ok {
		if existing != e {
			return apperrors.WithMetadata(apperrors.CodeConflictingEdge, ErrConflictingEdge.Message, map[string]string{
				"address":  e.Address.String(),
				"existing": describeEdge(existing),
				"incoming": describeEdge(e),
			})
		}
		return nil
	}
	g.edges.Put(string(e.Address), e)
	return nil
}

func describeEdge(e Edge) string {
	return e.Src.String() + "->" + e.Dst.String() + "@" + strconv.FormatInt(e.TimestampMs, 10)
}

// Node returns the node at address.
func (g *Graph) Node(address NodeAddress) (Node, bool) {
	value, ok := g.nodes.Get(string(address))
	if !ok {
		return Node{}, false
	}
	return value.(Node), true
}

// HasNode reports whether address is a node of g.
func (g *Graph) HasNode(address NodeAddress) bool {
	_, ok := g.nodes.Get(string(address))
	return ok
}

// Edge returns the edge at address.
func (g *Graph) Edge(address EdgeAddress) (Edge, bool) {
	value, ok := g.edges.Get(string(address))
	if !ok {
		return Edge{}, false
	}
	return value.(Edge), true
}

// Nodes returns every node in address order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, g.nodes.Size())
	it := g.nodes.Iterator()
	for it.Next() {
		out = append(out, it.Value().(Node))
	}
	return out
}

// Edges returns every edge in address order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, g.edges.Size())
	it := g.edges.Iterator()
	for it.Next() {
		out = append(out, it.Value().(Edge))
	}
	return out
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return g.nodes.Size() }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return g.edges.Size() }

// Equal reports whether g and other hold the same nodes and edges.
func (g *Graph) Equal(other *Graph) bool {
	if g.NodeCount() != other.NodeCount() || g.EdgeCount() != other.EdgeCount() {
		return false
	}
	for _, n := range g.Nodes() {
		if o, ok := other.Node(n.Address); !ok || o != n {
			return false
		}
	}
	for _, e := range g.Edges() {
		if o, ok := other.Edge(e.Address); !ok || o != e {
			return false
		}
	}
	return true
}
