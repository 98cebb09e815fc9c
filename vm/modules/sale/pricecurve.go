package sale

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
)

// Quote returns how many whole INT tokens a payment of `value` wei buys when
// totalSold tokens have already been sold across the step ladder.
//
// Steps are walked from the start; fully-sold ones are skipped. Within the
// first under-sold step the buyer takes min(remaining capacity, value/price)
// tokens, then spills into the next step. Division truncates: wei left over
// below the current step price buys nothing and is not refunded. Once the
// ladder is exhausted the quote is capped at the remaining supply.
func Quote(steps []core.PricingStep, totalSold uint64, value *uint256.Int) uint64 {
	if value == nil || value.IsZero() {
		return 0
	}
	remaining := value.Clone()
	var tokens, cumulative uint64
	sold := totalSold
	for _, step := range steps {
		if remaining.IsZero() {
			break
		}
		cumulative += step.Size
		if cumulative <= sold || step.Price == nil || step.Price.IsZero() {
			continue
		}
		available := cumulative - sold
		full := new(uint256.Int).Mul(uint256.NewInt(available), step.Price)
		if remaining.Cmp(full) >= 0 {
			tokens += available
			sold += available
			remaining.Sub(remaining, full)
			continue
		}
		q := new(uint256.Int).Div(remaining, step.Price)
		tokens += q.Uint64()
		remaining.Clear()
	}
	return tokens
}

// Phase returns the 1-based index of the step the next token sells from.
// A sold-out ladder reports the last phase.
func Phase(steps []core.PricingStep, totalSold uint64) uint64 {
	var cumulative uint64
	for i, step := range steps {
		cumulative += step.Size
		if totalSold < cumulative {
			return uint64(i) + 1
		}
	}
	return uint64(len(steps))
}

// ValidateSteps checks a ladder: non-empty, positive sizes and prices, and
// strictly increasing prices.
func ValidateSteps(steps []core.PricingStep) error {
	if len(steps) == 0 {
		return errors.New("at least one pricing step required")
	}
	var prev *uint256.Int
	for _, step := range steps {
		if step.Size == 0 {
			return errors.New("step size must be > 0")
		}
		if step.Price == nil || step.Price.IsZero() {
			return errors.New("step price must be > 0")
		}
		if prev != nil && step.Price.Cmp(prev) <= 0 {
			return errors.New("step prices must strictly increase")
		}
		prev = step.Price
	}
	return nil
}
