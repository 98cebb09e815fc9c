package earnings

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/events"
	"github.com/interlude-gg/interlude-chain/vm"
	"github.com/interlude-gg/interlude-chain/vm/modules/token"
)

func init() {
	vm.Register(core.TxClaimEarnings, handleClaim)
	vm.Register(core.TxClaimReferralBonus, handleClaimBonus)
}

// payFromVault moves amount wei from the platform vault to addr.
func payFromVault(st core.State, addr string, amount *uint256.Int) error {
	vault, err := st.GetAccount(core.VaultAddress)
	if err != nil {
		return err
	}
	if vault.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("vault underfunded: have %s, need %s", vault.Balance, amount)
	}
	vault.Balance.Sub(vault.Balance, amount)
	if err := st.SetAccount(vault); err != nil {
		return err
	}
	acc, err := st.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance.Add(acc.Balance, amount)
	return st.SetAccount(acc)
}

// handleClaim pays out the sender's pending plus previously settled earnings
// in CRO. Claiming with nothing accrued succeeds as a no-op, so an immediate
// second claim transfers nothing.
func handleClaim(ctx *vm.Context, _ json.RawMessage) error {
	p, err := ctx.State.GetPlatform()
	if err != nil {
		return err
	}
	if err := GuardRound(p); err != nil {
		return err
	}
	pos, err := ctx.State.GetPosition(ctx.Tx.From)
	if err != nil {
		return err
	}
	if pos == nil {
		return nil
	}

	amount := Pending(p, pos)
	amount.Add(amount, pos.UnclaimedEarnings)
	if amount.IsZero() {
		return nil
	}

	if err := payFromVault(ctx.State, ctx.Tx.From, amount); err != nil {
		return err
	}
	pos.UnclaimedEarnings.Clear()
	pos.LastClaimedAccumulation.Set(p.AccumulatedCro)
	pos.TotalClaimed.Add(pos.TotalClaimed, amount)
	if err := ctx.State.SetPosition(pos); err != nil {
		return err
	}

	ctx.Emit(events.EventEarningsClaim, map[string]any{
		"user":   ctx.Tx.From,
		"amount": amount.String(),
	})
	return nil
}

// handleClaimBonus pays out the sender's accrued referral rewards: the CRO
// part from the vault, the INT part minted into both the token ledger and
// the spendable balance.
func handleClaimBonus(ctx *vm.Context, _ json.RawMessage) error {
	p, err := ctx.State.GetPlatform()
	if err != nil {
		return err
	}
	if err := GuardRound(p); err != nil {
		return err
	}
	pos, err := ctx.State.GetPosition(ctx.Tx.From)
	if err != nil {
		return err
	}
	if pos == nil {
		return nil
	}

	cro := new(uint256.Int).Set(pos.UnclaimedCroBonus)
	tokens := pos.UnclaimedIntBonus
	if cro.IsZero() && tokens == 0 {
		return nil
	}

	if !cro.IsZero() {
		if err := payFromVault(ctx.State, ctx.Tx.From, cro); err != nil {
			return err
		}
		pos.UnclaimedCroBonus.Clear()
	}
	if tokens > 0 {
		if err := token.Mint(ctx.State, ctx.Tx.From, token.Units(tokens)); err != nil {
			return err
		}
		pos.SpendableTokens += tokens
		pos.UnclaimedIntBonus = 0
	}
	if err := ctx.State.SetPosition(pos); err != nil {
		return err
	}

	ctx.Emit(events.EventBonusClaim, map[string]any{
		"user":   ctx.Tx.From,
		"cro":    cro.String(),
		"tokens": tokens,
	})
	return nil
}
