// Package grain implements the exact fixed-point currency distributed in
// proportion to cred.
//
// A Grain is an arbitrary-precision count of attograin; one whole grain is
// 10^18 attograin. Values are immutable: every operation returns a new Grain.
package grain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
)

// Decimals is the number of fractional digits of one whole grain.
const Decimals = 18

var (
	// ErrInvalidBudget indicates a negative budget.
	ErrInvalidBudget = apperrors.New(apperrors.CodeInvalidBudget, "budget must be non-negative")
	// ErrInvalidWeights indicates a negative or non-finite split weight.
	ErrInvalidWeights = apperrors.New(apperrors.CodeInvalidWeights, "weights must be finite and non-negative")
	// ErrInvalidLiteral indicates a grain literal that is not an integer.
	ErrInvalidLiteral = apperrors.New(apperrors.CodeInvalidParameter, "grain literal must be an integer count of attograin")
)

var unitsPerGrain = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Grain is an exact amount of currency. The zero value is Zero.
type Grain struct {
	v *big.Int
}

// Zero is the additive identity.
var Zero = Grain{}

// One is one whole grain.
var One = Grain{v: new(big.Int).Set(unitsPerGrain)}

// FromInt returns n attograin.
func FromInt(n int64) Grain {
	return Grain{v: big.NewInt(n)}
}

// FromBigInt returns a copy of n as attograin.
func FromBigInt(n *big.Int) Grain {
	if n == nil {
		return Zero
	}
	return Grain{v: new(big.Int).Set(n)}
}

// FromWhole returns n whole grain.
func FromWhole(n int64) Grain {
	return Grain{v: new(big.Int).Mul(big.NewInt(n), unitsPerGrain)}
}

func (g Grain) int() *big.Int {
	if g.v == nil {
		return new(big.Int)
	}
	return g.v
}

// BigInt returns a copy of the attograin count.
func (g Grain) BigInt() *big.Int {
	return new(big.Int).Set(g.int())
}

// Add returns g + other.
func (g Grain) Add(other Grain) Grain {
	return Grain{v: new(big.Int).Add(g.int(), other.int())}
}

// Sub returns g - other.
func (g Grain) Sub(other Grain) Grain {
	return Grain{v: new(big.Int).Sub(g.int(), other.int())}
}

// Cmp compares g and other and returns -1, 0 or +1.
func (g Grain) Cmp(other Grain) int {
	return g.int().Cmp(other.int())
}

// Eq reports whether g == other.
func (g Grain) Eq(other Grain) bool { return g.Cmp(other) == 0 }

// Gt reports whether g > other.
func (g Grain) Gt(other Grain) bool { return g.Cmp(other) > 0 }

// Lt reports whether g < other.
func (g Grain) Lt(other Grain) bool { return g.Cmp(other) < 0 }

// IsZero reports whether g is Zero.
func (g Grain) IsZero() bool { return g.int().Sign() == 0 }

// IsNegative reports whether g < 0.
func (g Grain) IsNegative() bool { return g.int().Sign() < 0 }

// String returns the attograin count in base 10.
func (g Grain) String() string {
	return g.int().String()
}

// Sum adds up amounts.
func Sum(amounts []Grain) Grain {
	total := new(big.Int)
	for _, amount := range amounts {
		total.Add(total, amount.int())
	}
	return Grain{v: total}
}

// Parse reads an integer attograin literal such as "1000000000000000000".
func Parse(literal string) (Grain, error) {
	trimmed := strings.TrimSpace(literal)
	if trimmed == "" {
		return Zero, apperrors.Wrap(apperrors.CodeInvalidParameter, "parse grain", ErrInvalidLiteral)
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return Zero, apperrors.WithMetadata(apperrors.CodeInvalidParameter, ErrInvalidLiteral.Message, map[string]string{
			"literal": literal,
		})
	}
	return Grain{v: v}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(literal string) Grain {
	g, err := Parse(literal)
	if err != nil {
		panic(err)
	}
	return g
}

// MarshalJSON encodes g as a decimal string so no precision is lost.
func (g Grain) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

// UnmarshalJSON decodes a decimal string produced by MarshalJSON.
func (g *Grain) UnmarshalJSON(data []byte) error {
	var literal string
	if err := json.Unmarshal(data, &literal); err != nil {
		return fmt.Errorf("grain must be a JSON string: %w", err)
	}
	parsed, err := Parse(literal)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// ToFloatRatio returns a/b as a float for display, or 0 when b is Zero.
func ToFloatRatio(a, b Grain) float64 {
	if b.IsZero() {
		return 0
	}
	ratio, _ := new(big.Rat).SetFrac(a.int(), b.int()).Float64()
	return ratio
}

// ToWholeFloat approximates g in whole grain for metrics and display.
func ToWholeFloat(g Grain) float64 {
	whole, _ := new(big.Rat).SetFrac(g.int(), unitsPerGrain).Float64()
	return whole
}

// Format renders g in whole grain with comma grouping, truncated to
// decimals fractional digits, followed by suffix. Format(FromWhole(1234), 2, "g")
// is "1,234.00g".
func Format(amount Grain, decimals int, suffix string) string {
	if decimals < 0 {
		decimals = 0
	}
	if decimals > Decimals {
		decimals = Decimals
	}
	abs := new(big.Int).Abs(amount.int())
	whole, frac := new(big.Int).QuoRem(abs, unitsPerGrain, new(big.Int))

	var b strings.Builder
	if amount.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString(groupThousands(whole.String()))
	if decimals > 0 {
		fracDigits := frac.String()
		fracDigits = strings.Repeat("0", Decimals-len(fracDigits)) + fracDigits
		b.WriteByte('.')
		b.WriteString(fracDigits[:decimals])
	}
	b.WriteString(suffix)
	return b.String()
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
