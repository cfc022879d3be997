package policy

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
	"github.com/louisbranch/credrank/internal/services/cred/domain/grain"
)

// IDGenerator mints allocation and distribution ids.
type IDGenerator func() (string, error)

// Allocation records the receipts produced by one policy.
type Allocation struct {
	ID       string
	Policy   AllocationPolicy
	Receipts []GrainReceipt
}

type allocationJSON struct {
	ID       string          `json:"id"`
	Policy   json.RawMessage `json:"policy"`
	Receipts []GrainReceipt  `json:"receipts"`
}

// MarshalJSON writes the policy in its discriminated form.
func (a Allocation) MarshalJSON() ([]byte, error) {
	policy, err := MarshalPolicy(a.Policy)
	if err != nil {
		return nil, err
	}
	receipts := a.Receipts
	if receipts == nil {
		receipts = []GrainReceipt{}
	}
	return json.Marshal(allocationJSON{ID: a.ID, Policy: policy, Receipts: receipts})
}

// UnmarshalJSON reads an allocation written by MarshalJSON.
func (a *Allocation) UnmarshalJSON(data []byte) error {
	var raw allocationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p, err := ParsePolicy(raw.Policy)
	if err != nil {
		return fmt.Errorf("allocation %s: %w", raw.ID, err)
	}
	*a = Allocation{ID: raw.ID, Policy: p, Receipts: raw.Receipts}
	return nil
}

// Total sums the allocation's receipts.
func (a Allocation) Total() grain.Grain {
	total := grain.Zero
	for _, r := range a.Receipts {
		total = total.Add(r.Amount)
	}
	return total
}

// Distribution is a set of allocations computed from one cred snapshot.
type Distribution struct {
	ID              string       `json:"id"`
	CredTimestampMs int64        `json:"credTimestampMs"`
	Allocations     []Allocation `json:"allocations"`
}

// ComputeAllocation runs p and checks that its receipts pay out the budget
// exactly.
func ComputeAllocation(p AllocationPolicy, identities []ProcessedIdentity, newID IDGenerator) (Allocation, error) {
	receipts, err := Receipts(p, identities)
	if err != nil {
		return Allocation{}, err
	}
	allocation := Allocation{Policy: p, Receipts: receipts}
	if total := allocation.Total(); !total.Eq(p.PolicyBudget()) {
		return Allocation{}, apperrors.WithMetadata(apperrors.CodeBudgetMismatch, ErrBudgetMismatch.Message, map[string]string{
			"policyType": string(p.PolicyType()),
			"budget":     p.PolicyBudget().String(),
			"receipts":   total.String(),
		})
	}
	id, err := newID()
	if err != nil {
		return Allocation{}, fmt.Errorf("allocation id: %w", err)
	}
	allocation.ID = id
	return allocation, nil
}

// ComputeDistribution computes one allocation per policy.
func ComputeDistribution(policies []AllocationPolicy, identities []ProcessedIdentity, credTimestampMs int64, newID IDGenerator) (Distribution, error) {
	allocations := make([]Allocation, 0, len(policies))
	for i, p := range policies {
		allocation, err := ComputeAllocation(p, identities, newID)
		if err != nil {
			return Distribution{}, fmt.Errorf("policy %d: %w", i, err)
		}
		allocations = append(allocations, allocation)
	}
	id, err := newID()
	if err != nil {
		return Distribution{}, fmt.Errorf("distribution id: %w", err)
	}
	return Distribution{ID: id, CredTimestampMs: credTimestampMs, Allocations: allocations}, nil
}

// Balances totals each identity's receipts across every allocation.
func (d Distribution) Balances() map[IdentityID]grain.Grain {
	balances := make(map[IdentityID]grain.Grain)
	for _, allocation := range d.Allocations {
		for _, r := range allocation.Receipts {
			balances[r.ID] = balances[r.ID].Add(r.Amount)
		}
	}
	return balances
}

// TotalDistributed sums every receipt of the distribution.
func (d Distribution) TotalDistributed() grain.Grain {
	total := grain.Zero
	for _, allocation := range d.Allocations {
		total = total.Add(allocation.Total())
	}
	return total
}
