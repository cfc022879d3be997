package credrank

import (
	"fmt"

	"github.com/louisbranch/credrank/internal/services/cred/domain/compat"
	"github.com/louisbranch/credrank/internal/services/cred/domain/graph"
)

// CredGraphFormat identifies serialized cred graphs.
var CredGraphFormat = compat.Header{Type: "credrank/credGraph", Version: "0.1.0"}

const credGraphConstraint = "^0.1"

type participantJSON struct {
	Address      []string  `json:"address"`
	Description  string    `json:"description"`
	Cred         float64   `json:"cred"`
	CredPerEpoch []float64 `json:"credPerEpoch"`
}

type nodeCredJSON struct {
	Address []string `json:"address"`
	Cred    float64  `json:"cred"`
}

type credGraphJSON struct {
	Epochs       []int64           `json:"epochs"`
	Participants []participantJSON `json:"participants"`
	Nodes        []nodeCredJSON    `json:"nodes"`
	Convergence  Convergence       `json:"convergence"`
}

// MarshalCredGraph serializes cg behind the cred graph header.
func MarshalCredGraph(cg *CredGraph) ([]byte, error) {
	payload := credGraphJSON{
		Epochs:       cg.Epochs(),
		Participants: make([]participantJSON, 0, len(cg.participants)),
		Nodes:        make([]nodeCredJSON, 0, len(cg.nodeCred)),
		Convergence:  cg.convergence,
	}
	for _, p := range cg.participants {
		payload.Participants = append(payload.Participants, participantJSON{
			Address:      p.Address.Parts(),
			Description:  p.Description,
			Cred:         p.Cred,
			CredPerEpoch: p.CredPerEpoch,
		})
	}
	for _, address := range cg.nodes {
		payload.Nodes = append(payload.Nodes, nodeCredJSON{Address: address.Parts(), Cred: cg.nodeCred[address]})
	}
	return compat.Marshal(CredGraphFormat, payload)
}

// UnmarshalCredGraph decodes a serialized cred graph.
func UnmarshalCredGraph(data []byte) (*CredGraph, error) {
	var payload credGraphJSON
	if err := compat.Unmarshal(data, CredGraphFormat.Type, credGraphConstraint, &payload); err != nil {
		return nil, err
	}
	cg := &CredGraph{
		byAddress:   make(map[graph.NodeAddress]int, len(payload.Participants)),
		nodeCred:    make(map[graph.NodeAddress]float64, len(payload.Nodes)),
		epochs:      payload.Epochs,
		convergence: payload.Convergence,
	}
	for i, p := range payload.Participants {
		address, err := graph.NodeAddressFromParts(p.Address)
		if err != nil {
			return nil, fmt.Errorf("participant %d: %w", i, err)
		}
		if len(p.CredPerEpoch) != len(cg.epochs) {
			return nil, fmt.Errorf("participant %d: %d epoch values for %d epochs", i, len(p.CredPerEpoch), len(cg.epochs))
		}
		cg.byAddress[address] = len(cg.participants)
		cg.participants = append(cg.participants, ParticipantCred{
			Address:      address,
			Description:  p.Description,
			Cred:         p.Cred,
			CredPerEpoch: p.CredPerEpoch,
		})
	}
	for i, n := range payload.Nodes {
		address, err := graph.NodeAddressFromParts(n.Address)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		cg.nodeCred[address] = n.Cred
	}
	cg.indexNodes()
	return cg, nil
}
