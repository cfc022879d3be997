package ledger

import (
	"encoding/json"

	"github.com/louisbranch/credrank/internal/services/cred/domain/graph"
	"github.com/louisbranch/credrank/internal/services/cred/domain/policy"
)

// EventType names a ledger event.
type EventType string

const (
	EventIdentityCreated      EventType = "IDENTITY_CREATED"
	EventIdentityRenamed      EventType = "IDENTITY_RENAMED"
	EventDistributionRecorded EventType = "DISTRIBUTION_RECORDED"
)

// Event is one entry of the append-only ledger log. Seq starts at 1 and has
// no gaps.
type Event struct {
	Seq         uint64          `json:"seq"`
	Type        EventType       `json:"type"`
	TimestampMs int64           `json:"timestampMs"`
	Payload     json.RawMessage `json:"payload"`
}

type identityJSON struct {
	ID      policy.IdentityID `json:"id"`
	Name    string            `json:"name"`
	Address []string          `json:"address,omitempty"`
}

type identityCreated struct {
	Identity identityJSON `json:"identity"`
}

type identityRenamed struct {
	ID   policy.IdentityID `json:"id"`
	Name string            `json:"name"`
}

type distributionRecorded struct {
	Distribution policy.Distribution `json:"distribution"`
}

func encodeIdentity(identity Identity) identityJSON {
	out := identityJSON{ID: identity.ID, Name: identity.Name}
	if identity.Address != "" {
		out.Address = identity.Address.Parts()
	}
	return out
}

func decodeIdentity(in identityJSON) (Identity, error) {
	identity := Identity{ID: in.ID, Name: in.Name}
	if in.Address == nil {
		return identity, nil
	}
	address, err := graph.NodeAddressFromParts(in.Address)
	if err != nil {
		return Identity{}, err
	}
	identity.Address = address
	return identity, nil
}
