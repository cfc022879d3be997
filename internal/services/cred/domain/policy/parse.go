package policy

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
	"github.com/louisbranch/credrank/internal/services/cred/domain/grain"
)

var knownTypes = map[Type]bool{
	TypeBalanced:  true,
	TypeImmediate: true,
	TypeRecent:    true,
	TypeSpecial:   true,
}

type policyJSON struct {
	PolicyType         Type         `json:"policyType"`
	Budget             *grain.Grain `json:"budget"`
	NumPeriodsLookback *float64     `json:"numPeriodsLookback,omitempty"`
	Discount           *float64     `json:"discount,omitempty"`
	Memo               string       `json:"memo,omitempty"`
	Grants             []Grant      `json:"grants,omitempty"`
}

// ParsePolicy decodes one policy, selecting the variant by policyType.
func ParsePolicy(data []byte) (AllocationPolicy, error) {
	var raw policyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidParameter, "decode policy", err)
	}
	if !knownTypes[raw.PolicyType] {
		return nil, apperrors.WithMetadata(apperrors.CodeUnknownPolicyType, ErrUnknownPolicyType.Message, map[string]string{
			"policyType": string(raw.PolicyType),
		})
	}
	if raw.Budget == nil {
		return nil, invalidParameter("policy budget is required", map[string]string{"policyType": string(raw.PolicyType)})
	}

	switch raw.PolicyType {
	case TypeBalanced:
		return Balanced{Budget: *raw.Budget}, nil
	case TypeImmediate:
		return Immediate{Budget: *raw.Budget, NumPeriodsLookback: raw.NumPeriodsLookback}, nil
	case TypeRecent:
		if raw.Discount == nil {
			return nil, invalidParameter("recent policy requires a discount", nil)
		}
		return Recent{Budget: *raw.Budget, Discount: *raw.Discount}, nil
	case TypeSpecial:
		return Special{Budget: *raw.Budget, Memo: raw.Memo, Grants: raw.Grants}, nil
	default:
		return nil, apperrors.WithMetadata(apperrors.CodeUnknownPolicyType, ErrUnknownPolicyType.Message, map[string]string{
			"policyType": string(raw.PolicyType),
		})
	}
}

// ParsePolicies decodes a JSON array of policies.
func ParsePolicies(data []byte) ([]AllocationPolicy, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidParameter, "decode policies", err)
	}
	policies := make([]AllocationPolicy, 0, len(raws))
	for i, raw := range raws {
		p, err := ParsePolicy(raw)
		if err != nil {
			return nil, fmt.Errorf("policy %d: %w", i, err)
		}
		policies = append(policies, p)
	}
	return policies, nil
}

// MarshalPolicy encodes p with its policyType discriminator.
func MarshalPolicy(p AllocationPolicy) ([]byte, error) {
	budget := p.PolicyBudget()
	raw := policyJSON{PolicyType: p.PolicyType(), Budget: &budget}
	switch p := p.(type) {
	case Balanced:
	case Immediate:
		raw.NumPeriodsLookback = p.NumPeriodsLookback
	case Recent:
		discount := p.Discount
		raw.Discount = &discount
	case Special:
		raw.Memo = p.Memo
		raw.Grants = p.Grants
	default:
		return nil, apperrors.WithMetadata(apperrors.CodeUnknownPolicyType, ErrUnknownPolicyType.Message, map[string]string{
			"policyType": string(p.PolicyType()),
		})
	}
	return json.Marshal(raw)
}
