// Package earnings distributes the accumulated CRO pool to stakers in
// proportion to their blended gem/crystal share. Distribution is lazy: each
// position carries a pool marker, and the delta since that marker times the
// user's current share is what a claim pays out.
//
// Because a user's share depends on the global aggregates, every operation
// that changes staking power must first settle all users at the pre-change
// shares (Settle). Otherwise later stake changes would retroactively
// re-price pool growth that already happened.
package earnings

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
)

// Precision scales share fractions to integers. With 10^12 the truncation
// shortfall over a full distribution stays below 3 ppm of the pool delta.
const Precision = 1_000_000_000_000

// ErrDistributionActive rejects platform mutations while a batch
// distribution round is underway.
var ErrDistributionActive = errors.New("earnings distribution round in progress")

// GuardRound returns ErrDistributionActive while a batch round is active.
// Every handler that mutates positions, powers or the pool calls this first.
func GuardRound(p *core.Platform) error {
	if p.Cursor.Active {
		return ErrDistributionActive
	}
	return nil
}

// Share returns the user's blended distribution share scaled by Precision.
//
//	gemPortion     = IntInGems × gemPower × Precision /
//	                 (TotalGemPower × (IntInGems + IntInCrystals))
//	crystalPortion = IntInCrystals × crystalPower × Precision /
//	                 (TotalCrystalPower × (IntInGems + IntInCrystals))
//
// A side with zero total power contributes nothing (no division by zero).
func Share(p *core.Platform, pos *core.Position) *uint256.Int {
	share := uint256.NewInt(0)
	totalInt := uint256.NewInt(p.TotalIntInGems + p.TotalIntInCrystals)
	precision := uint256.NewInt(Precision)

	if p.TotalGemPower > 0 && pos.GemPower > 0 {
		num := uint256.NewInt(p.TotalIntInGems)
		num.Mul(num, uint256.NewInt(pos.GemPower))
		num.Mul(num, precision)
		den := new(uint256.Int).Mul(uint256.NewInt(p.TotalGemPower), totalInt)
		share.Add(share, num.Div(num, den))
	}
	if p.TotalCrystalPower > 0 && pos.CrystalPower > 0 {
		num := uint256.NewInt(p.TotalIntInCrystals)
		num.Mul(num, uint256.NewInt(pos.CrystalPower))
		num.Mul(num, precision)
		den := new(uint256.Int).Mul(uint256.NewInt(p.TotalCrystalPower), totalInt)
		share.Add(share, num.Div(num, den))
	}
	return share
}

// Pending returns the unsettled earnings (wei) the user has accrued since
// their last marker. Nil positions pend nothing.
func Pending(p *core.Platform, pos *core.Position) *uint256.Int {
	if pos == nil {
		return uint256.NewInt(0)
	}
	if p.AccumulatedCro.Cmp(pos.LastClaimedAccumulation) <= 0 {
		return uint256.NewInt(0)
	}
	delta := new(uint256.Int).Sub(p.AccumulatedCro, pos.LastClaimedAccumulation)
	share := Share(p, pos)
	if share.IsZero() {
		return uint256.NewInt(0)
	}
	delta.Mul(delta, share)
	return delta.Div(delta, uint256.NewInt(Precision))
}

// Settle folds every user's pending earnings into their unclaimed balance
// and advances their markers to the current pool accumulation. Callers
// mutating staking power or the Int aggregates must run this first.
func Settle(st core.State, p *core.Platform) error {
	for _, addr := range p.Users {
		pos, err := st.GetPosition(addr)
		if err != nil {
			return err
		}
		if pos == nil {
			continue
		}
		if pend := Pending(p, pos); !pend.IsZero() {
			pos.UnclaimedEarnings.Add(pos.UnclaimedEarnings, pend)
		}
		pos.LastClaimedAccumulation.Set(p.AccumulatedCro)
		if err := st.SetPosition(pos); err != nil {
			return err
		}
	}
	return nil
}
