package markov

import "fmt"

// NodeKind tags the variants of process graph nodes.
type NodeKind int

const (
	// NodeKindBase is a contribution node copied from the weighted graph.
	NodeKindBase NodeKind = iota
	// NodeKindEpoch is one time slice of a participant.
	NodeKindEpoch
	// NodeKindSeed is the teleportation node.
	NodeKindSeed
)

func (k NodeKind) String() string {
	switch k {
	case NodeKindBase:
		return "BASE"
	case NodeKindEpoch:
		return "EPOCH"
	case NodeKindSeed:
		return "SEED"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// EdgeKind tags the variants of process graph edges.
type EdgeKind int

const (
	// EdgeKindGraph carries a contribution edge in either direction.
	EdgeKindGraph EdgeKind = iota
	// EdgeKindRadiation returns probability to the seed.
	EdgeKindRadiation
	// EdgeKindMint distributes the seed's probability by node weight.
	EdgeKindMint
	// EdgeKindWebbingForward links an epoch node to the next epoch.
	EdgeKindWebbingForward
	// EdgeKindWebbingBackward links an epoch node to the previous epoch.
	EdgeKindWebbingBackward
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeKindGraph:
		return "GRAPH"
	case EdgeKindRadiation:
		return "RADIATION"
	case EdgeKindMint:
		return "MINT"
	case EdgeKindWebbingForward:
		return "WEBBING_FORWARD"
	case EdgeKindWebbingBackward:
		return "WEBBING_BACKWARD"
	default:
		return fmt.Sprintf("EdgeKind(%d)", int(k))
	}
}
