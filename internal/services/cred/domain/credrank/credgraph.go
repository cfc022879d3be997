package credrank

import (
	"sort"
	"strconv"

	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
	"github.com/louisbranch/credrank/internal/services/cred/domain/graph"
	"github.com/louisbranch/credrank/internal/services/cred/domain/markov"
)

// ParticipantCred is one participant's cred, in total and per epoch.
type ParticipantCred struct {
	Address      graph.NodeAddress
	Description  string
	Cred         float64
	CredPerEpoch []float64
}

// CredGraph is the result of a cred computation.
type CredGraph struct {
	participants []ParticipantCred
	byAddress    map[graph.NodeAddress]int
	nodeCred     map[graph.NodeAddress]float64
	// nodes lists nodeCred keys in address order; sums run in this order.
	nodes        []graph.NodeAddress
	epochs       []int64
	convergence  Convergence
}

func newCredGraph(mpg *markov.MarkovProcessGraph, pi []float64, convergence Convergence) *CredGraph {
	nodes := mpg.Nodes()

	var totalWeight, mass float64
	for i, n := range nodes {
		switch n.Kind {
		case markov.NodeKindSeed:
			continue
		case markov.NodeKindBase, markov.NodeKindEpoch:
			totalWeight += n.Weight
			mass += pi[i]
		}
	}
	if totalWeight == 0 {
		totalWeight = 1
	}
	scale := 0.0
	if mass > 0 {
		scale = totalWeight / mass
	}

	cg := &CredGraph{
		byAddress:   make(map[graph.NodeAddress]int),
		nodeCred:    make(map[graph.NodeAddress]float64),
		epochs:      mpg.EpochStarts(),
		convergence: convergence,
	}
	for i, n := range nodes {
		if n.Kind == markov.NodeKindBase {
			cg.nodeCred[n.Address] = pi[i] * scale
		}
	}
	cg.indexNodes()
	for _, p := range mpg.Participants() {
		pc := ParticipantCred{
			Address:      p.Address,
			Description:  p.Description,
			CredPerEpoch: make([]float64, len(cg.epochs)),
		}
		for k, start := range cg.epochs {
			i, _ := mpg.NodeIndex(markov.EpochAddress(p.Address, start))
			pc.CredPerEpoch[k] = pi[i] * scale
			pc.Cred += pc.CredPerEpoch[k]
		}
		cg.byAddress[p.Address] = len(cg.participants)
		cg.participants = append(cg.participants, pc)
	}
	return cg
}

func (cg *CredGraph) indexNodes() {
	cg.nodes = make([]graph.NodeAddress, 0, len(cg.nodeCred))
	for address := range cg.nodeCred {
		cg.nodes = append(cg.nodes, address)
	}
	sort.Slice(cg.nodes, func(i, j int) bool { return cg.nodes[i] < cg.nodes[j] })
}

// Participants returns participant cred in the order participants were given.
func (cg *CredGraph) Participants() []ParticipantCred {
	out := make([]ParticipantCred, len(cg.participants))
	for i, p := range cg.participants {
		p.CredPerEpoch = append([]float64(nil), p.CredPerEpoch...)
		out[i] = p
	}
	return out
}

// Participant returns the cred of the participant at address.
func (cg *CredGraph) Participant(address graph.NodeAddress) (ParticipantCred, bool) {
	i, ok := cg.byAddress[address]
	if !ok {
		return ParticipantCred{}, false
	}
	p := cg.participants[i]
	p.CredPerEpoch = append([]float64(nil), p.CredPerEpoch...)
	return p, true
}

// NodeCred returns the cred of a contribution node, or a participant's total.
func (cg *CredGraph) NodeCred(address graph.NodeAddress) (float64, bool) {
	if cred, ok := cg.nodeCred[address]; ok {
		return cred, true
	}
	if i, ok := cg.byAddress[address]; ok {
		return cg.participants[i].Cred, true
	}
	return 0, false
}

// Epochs returns the epoch start timestamps.
func (cg *CredGraph) Epochs() []int64 { return append([]int64(nil), cg.epochs...) }

// TotalCred sums cred over contribution nodes and participants.
func (cg *CredGraph) TotalCred() float64 {
	var total float64
	for _, address := range cg.nodes {
		total += cg.nodeCred[address]
	}
	return total + cg.ParticipantTotal()
}

// ParticipantTotal sums the cred of every participant, in participant order.
func (cg *CredGraph) ParticipantTotal() float64 {
	var total float64
	for _, p := range cg.participants {
		total += p.Cred
	}
	return total
}

// Convergence reports how the computation finished.
func (cg *CredGraph) Convergence() Convergence { return cg.convergence }

// Warning returns a NonConvergence error when iteration stopped at the cap.
func (cg *CredGraph) Warning() error {
	if cg.convergence.Converged {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeNonConvergence, ErrNonConvergence.Message, map[string]string{
		"iterations": strconv.Itoa(cg.convergence.Iterations),
		"delta":      strconv.FormatFloat(cg.convergence.Delta, 'g', -1, 64),
	})
}
