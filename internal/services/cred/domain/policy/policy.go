// Package policy splits grain budgets across identities according to their
// cred history.
//
// AllocationPolicy is a closed set of variants. Adding a variant means
// extending the type switches in Receipts and MarshalPolicy.
package policy

import (
	"math"
	"strconv"

	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
	"github.com/louisbranch/credrank/internal/services/cred/domain/grain"
)

var (
	// ErrInvalidParameter indicates a policy or identity list the policy cannot use.
	ErrInvalidParameter = apperrors.New(apperrors.CodeInvalidParameter, "invalid policy parameter")
	// ErrUnknownPolicyType indicates an unrecognized policyType.
	ErrUnknownPolicyType = apperrors.New(apperrors.CodeUnknownPolicyType, "unknown policy type")
	// ErrBudgetMismatch indicates receipts that do not sum to the budget.
	ErrBudgetMismatch = apperrors.New(apperrors.CodeBudgetMismatch, "receipts do not sum to the budget")
)

// IdentityID identifies a ledger identity.
type IdentityID string

// ProcessedIdentity is an identity with its cred per epoch.
type ProcessedIdentity struct {
	ID   IdentityID
	Cred []float64
}

// GrainReceipt is the amount paid to one identity.
type GrainReceipt struct {
	ID     IdentityID  `json:"id"`
	Amount grain.Grain `json:"amount"`
}

// Type is the discriminator of a serialized policy.
type Type string

const (
	TypeBalanced  Type = "BALANCED"
	TypeImmediate Type = "IMMEDIATE"
	TypeRecent    Type = "RECENT"
	TypeSpecial   Type = "SPECIAL"
)

// AllocationPolicy is one of Balanced, Immediate, Recent or Special.
type AllocationPolicy interface {
	PolicyType() Type
	PolicyBudget() grain.Grain
	isPolicy()
}

// Balanced pays in proportion to lifetime cred.
type Balanced struct {
	Budget grain.Grain
}

// Immediate pays in proportion to cred over the most recent epochs.
type Immediate struct {
	Budget grain.Grain
	// NumPeriodsLookback is the number of trailing epochs; nil means 1.
	NumPeriodsLookback *float64
}

// Recent pays in proportion to cred discounted by age: the epoch k steps
// before the latest weighs (1-Discount)^k.
type Recent struct {
	Budget   grain.Grain
	Discount float64
}

// Grant is an explicit payment under a Special policy.
type Grant struct {
	ID     IdentityID  `json:"id"`
	Amount grain.Grain `json:"amount"`
}

// Special pays fixed grants, independent of cred.
type Special struct {
	Budget grain.Grain
	Memo   string
	Grants []Grant
}

func (Balanced) PolicyType() Type  { return TypeBalanced }
func (Immediate) PolicyType() Type { return TypeImmediate }
func (Recent) PolicyType() Type    { return TypeRecent }
func (Special) PolicyType() Type   { return TypeSpecial }

func (p Balanced) PolicyBudget() grain.Grain  { return p.Budget }
func (p Immediate) PolicyBudget() grain.Grain { return p.Budget }
func (p Recent) PolicyBudget() grain.Grain    { return p.Budget }
func (p Special) PolicyBudget() grain.Grain   { return p.Budget }

func (Balanced) isPolicy()  {}
func (Immediate) isPolicy() {}
func (Recent) isPolicy()    {}
func (Special) isPolicy()   {}

// Receipts computes the payments p makes to identities.
//
// Proportional policies return one receipt per identity in input order.
// Special returns one receipt per grant in grant order.
func Receipts(p AllocationPolicy, identities []ProcessedIdentity) ([]GrainReceipt, error) {
	if p == nil {
		return nil, ErrUnknownPolicyType
	}
	if p.PolicyBudget().IsNegative() {
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidBudget, grain.ErrInvalidBudget.Message, map[string]string{
			"policyType": string(p.PolicyType()),
			"budget":     p.PolicyBudget().String(),
		})
	}
	intervals, err := intervalCount(identities)
	if err != nil {
		return nil, err
	}

	switch p := p.(type) {
	case Balanced:
		return proportional(p.Budget, identities, func(cred []float64) float64 {
			return sum(cred)
		})
	case Immediate:
		lookback, err := immediateLookback(p)
		if err != nil {
			return nil, err
		}
		n := min(lookback, intervals)
		return proportional(p.Budget, identities, func(cred []float64) float64 {
			return sum(cred[len(cred)-n:])
		})
	case Recent:
		if math.IsNaN(p.Discount) || p.Discount < 0 || p.Discount > 1 {
			return nil, invalidParameter("discount must be between 0 and 1", map[string]string{
				"discount": strconv.FormatFloat(p.Discount, 'g', -1, 64),
			})
		}
		return proportional(p.Budget, identities, func(cred []float64) float64 {
			var total float64
			factor := 1.0
			for k := len(cred) - 1; k >= 0; k-- {
				total += cred[k] * factor
				factor *= 1 - p.Discount
			}
			return total
		})
	case Special:
		return specialReceipts(p, identities)
	default:
		return nil, apperrors.WithMetadata(apperrors.CodeUnknownPolicyType, ErrUnknownPolicyType.Message, map[string]string{
			"policyType": string(p.PolicyType()),
		})
	}
}

func immediateLookback(p Immediate) (int, error) {
	if p.NumPeriodsLookback == nil {
		return 1, nil
	}
	v := *p.NumPeriodsLookback
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 1 || v != math.Trunc(v) {
		return 0, invalidParameter("numPeriodsLookback must be a positive integer", map[string]string{
			"numPeriodsLookback": strconv.FormatFloat(v, 'g', -1, 64),
		})
	}
	if v > math.MaxInt32 {
		return math.MaxInt32, nil
	}
	return int(v), nil
}

func specialReceipts(p Special, identities []ProcessedIdentity) ([]GrainReceipt, error) {
	known := make(map[IdentityID]bool, len(identities))
	for _, identity := range identities {
		known[identity.ID] = true
	}
	receipts := make([]GrainReceipt, 0, len(p.Grants))
	total := grain.Zero
	for _, g := range p.Grants {
		if g.Amount.IsNegative() {
			return nil, invalidParameter("grant amount must be non-negative", map[string]string{
				"id":     string(g.ID),
				"amount": g.Amount.String(),
			})
		}
		if !known[g.ID] {
			return nil, invalidParameter("grant recipient is not an identity", map[string]string{"id": string(g.ID)})
		}
		total = total.Add(g.Amount)
		receipts = append(receipts, GrainReceipt{ID: g.ID, Amount: g.Amount})
	}
	if !total.Eq(p.Budget) {
		return nil, invalidParameter("grants must sum to the budget", map[string]string{
			"budget": p.Budget.String(),
			"grants": total.String(),
		})
	}
	return receipts, nil
}

func proportional(budget grain.Grain, identities []ProcessedIdentity, weigh func(cred []float64) float64) ([]GrainReceipt, error) {
	weights := make([]float64, len(identities))
	for i, identity := range identities {
		weights[i] = weigh(identity.Cred)
	}
	amounts, err := grain.SplitBudget(budget, weights)
	if err != nil {
		return nil, err
	}
	receipts := make([]GrainReceipt, len(identities))
	for i, identity := range identities {
		receipts[i] = GrainReceipt{ID: identity.ID, Amount: amounts[i]}
	}
	return receipts, nil
}

// intervalCount returns the shared cred length of identities.
func intervalCount(identities []ProcessedIdentity) (int, error) {
	if len(identities) == 0 {
		return 0, nil
	}
	n := len(identities[0].Cred)
	for _, identity := range identities[1:] {
		if len(identity.Cred) != n {
			return 0, invalidParameter("identities have different cred lengths", map[string]string{
				"id":   string(identity.ID),
				"got":  strconv.Itoa(len(identity.Cred)),
				"want": strconv.Itoa(n),
			})
		}
	}
	return n, nil
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func invalidParameter(message string, metadata map[string]string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidParameter, message, metadata)
}
