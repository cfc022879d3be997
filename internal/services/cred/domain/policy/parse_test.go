package policy

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louisbranch/credrank/internal/services/cred/domain/grain"
)

func TestParsePolicyDispatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want Type
	}{
		{name: "balanced", data: `{"policyType":"BALANCED","budget":"100"}`, want: TypeBalanced},
		{name: "immediate", data: `{"policyType":"IMMEDIATE","budget":"100","numPeriodsLookback":2}`, want: TypeImmediate},
		{name: "recent", data: `{"policyType":"RECENT","budget":"100","discount":0.25}`, want: TypeRecent},
		{name: "special", data: `{"policyType":"SPECIAL","budget":"7","memo":"bounty","grants":[{"id":"a","amount":"7"}]}`, want: TypeSpecial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := ParsePolicy([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.PolicyType())
		})
	}
}

func TestParsePolicyFields(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy([]byte(`{"policyType":"IMMEDIATE","budget":"100","numPeriodsLookback":3}`))
	require.NoError(t, err)
	immediate, ok := p.(Immediate)
	require.True(t, ok)
	require.NotNil(t, immediate.NumPeriodsLookback)
	assert.Equal(t, 3.0, *immediate.NumPeriodsLookback)
	assert.Equal(t, "100", immediate.Budget.String())

	p, err = ParsePolicy([]byte(`{"policyType":"IMMEDIATE","budget":"100"}`))
	require.NoError(t, err)
	assert.Nil(t, p.(Immediate).NumPeriodsLookback)

	p, err = ParsePolicy([]byte(`{"policyType":"SPECIAL","budget":"7","memo":"bounty","grants":[{"id":"a","amount":"7"}]}`))
	require.NoError(t, err)
	special := p.(Special)
	assert.Equal(t, "bounty", special.Memo)
	require.Len(t, special.Grants, 1)
	assert.Equal(t, IdentityID("a"), special.Grants[0].ID)
}

func TestParsePolicyErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want error
	}{
		{name: "unknown type", data: `{"policyType":"LOTTERY","budget":"1"}`, want: ErrUnknownPolicyType},
		{name: "unknown type without budget", data: `{"policyType":"LOTTERY"}`, want: ErrUnknownPolicyType},
		{name: "missing type", data: `{"budget":"1"}`, want: ErrUnknownPolicyType},
		{name: "missing budget", data: `{"policyType":"BALANCED"}`, want: ErrInvalidParameter},
		{name: "recent without discount", data: `{"policyType":"RECENT","budget":"1"}`, want: ErrInvalidParameter},
		{name: "not json", data: `policy`, want: ErrInvalidParameter},
		{name: "numeric budget", data: `{"policyType":"BALANCED","budget":1}`, want: ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParsePolicy([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestParsePolicies(t *testing.T) {
	t.Parallel()

	policies, err := ParsePolicies([]byte(`[
		{"policyType":"BALANCED","budget":"100"},
		{"policyType":"RECENT","budget":"50","discount":0.1}
	]`))
	require.NoError(t, err)
	require.Len(t, policies, 2)
	assert.Equal(t, TypeRecent, policies[1].PolicyType())

	_, err = ParsePolicies([]byte(`[{"policyType":"BALANCED","budget":"100"},{"policyType":"NOPE","budget":"1"}]`))
	assert.True(t, errors.Is(err, ErrUnknownPolicyType), "got %v", err)
}

func TestMarshalPolicyRoundTrip(t *testing.T) {
	t.Parallel()

	policies := []AllocationPolicy{
		Balanced{Budget: grain.FromInt(10)},
		Immediate{Budget: grain.FromInt(20), NumPeriodsLookback: lookback(4)},
		Recent{Budget: grain.FromInt(30), Discount: 0.5},
		Special{Budget: grain.FromInt(3), Memo: "m", Grants: []Grant{{ID: "x", Amount: grain.FromInt(3)}}},
	}
	for _, p := range policies {
		data, err := MarshalPolicy(p)
		require.NoError(t, err)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(data, &fields))
		assert.Equal(t, string(p.PolicyType()), fields["policyType"])

		back, err := ParsePolicy(data)
		require.NoError(t, err)
		again, err := MarshalPolicy(back)
		require.NoError(t, err)
		assert.JSONEq(t, string(data), string(again))
	}
}

func TestAllocationJSON(t *testing.T) {
	t.Parallel()

	allocation := Allocation{
		ID:       "alloc",
		Policy:   Balanced{Budget: grain.FromInt(9)},
		Receipts: []GrainReceipt{{ID: "a", Amount: grain.FromInt(9)}},
	}
	data, err := json.Marshal(allocation)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"alloc","policy":{"policyType":"BALANCED","budget":"9"},"receipts":[{"id":"a","amount":"9"}]}`, string(data))

	var back Allocation
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, TypeBalanced, back.Policy.PolicyType())
	assert.Equal(t, "9", back.Total().String())
}
