// Package participant selects the graph nodes that receive cred.
package participant

import "github.com/louisbranch/credrank/internal/services/cred/domain/graph"

// Participant is a scoring node.
type Participant struct {
	Address     graph.NodeAddress
	Description string
}

// Find returns the nodes of g whose address matches any scoring prefix, in
// address order.
func Find(g *graph.Graph, scoringPrefixes []graph.NodeAddress) []Participant {
	var out []Participant
	if g == nil {
		return out
	}
	for _, n := range g.Nodes() {
		for _, prefix := range scoringPrefixes {
			if n.Address.HasPrefix(prefix) {
				out = append(out, Participant{Address: n.Address, Description: n.Description})
				break
			}
		}
	}
	return out
}
