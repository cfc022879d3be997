package grain

import (
	"math"
	"math/big"
	"sort"
	"strconv"

	apperrors "github.com/louisbranch/credrank/internal/platform/errors"
)

// SplitBudget divides budget into one amount per weight, each proportional to
// weight / sum(weights), with the amounts summing to exactly budget.
//
// Each share is floored with exact rational arithmetic. The units left over by
// flooring are handed out one at a time in order of largest fractional
// remainder, ties going to the lower index, so the result is reproducible.
// When every weight is zero every amount is Zero.
func SplitBudget(budget Grain, weights []float64) ([]Grain, error) {
	if budget.IsNegative() {
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidBudget, ErrInvalidBudget.Message, map[string]string{
			"budget": budget.String(),
		})
	}
	exact := make([]*big.Rat, len(weights))
	total := new(big.Rat)
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return nil, apperrors.WithMetadata(apperrors.CodeInvalidWeights, ErrInvalidWeights.Message, map[string]string{
				"index":  strconv.Itoa(i),
				"weight": strconv.FormatFloat(w, 'g', -1, 64),
			})
		}
		exact[i] = new(big.Rat).SetFloat64(w)
		total.Add(total, exact[i])
	}

	amounts := make([]Grain, len(weights))
	if total.Sign() == 0 {
		for i := range amounts {
			amounts[i] = Zero
		}
		return amounts, nil
	}

	budgetRat := new(big.Rat).SetInt(budget.int())
	floors := make([]*big.Int, len(weights))
	remainders := make([]*big.Rat, len(weights))
	allocated := new(big.Int)
	for i := range weights {
		share := new(big.Rat).Mul(budgetRat, exact[i])
		share.Quo(share, total)
		floors[i] = new(big.Int).Quo(share.Num(), share.Denom())
		remainders[i] = new(big.Rat).Sub(share, new(big.Rat).SetInt(floors[i]))
		allocated.Add(allocated, floors[i])
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].Cmp(remainders[order[b]]) > 0
	})

	// The leftover equals the sum of the remainders, so it is below len(weights).
	leftover := new(big.Int).Sub(budget.int(), allocated).Int64()
	for k := int64(0); k < leftover; k++ {
		floors[order[k]].Add(floors[order[k]], big.NewInt(1))
	}

	for i := range amounts {
		amounts[i] = Grain{v: floors[i]}
	}
	return amounts, nil
}
