// Package sale implements the INT token sale: the step price ladder, the
// earnings pool funding split, and the referral program applied on purchase.
package sale

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/events"
	"github.com/interlude-gg/interlude-chain/vm"
	"github.com/interlude-gg/interlude-chain/vm/modules/earnings"
	"github.com/interlude-gg/interlude-chain/vm/modules/token"
)

func init() {
	vm.Register(core.TxBuyToken, handleBuyToken)
}

// pct returns value × numerator / 100 (floor).
func pct(value *uint256.Int, numerator uint64) *uint256.Int {
	out := new(uint256.Int).Mul(value, uint256.NewInt(numerator))
	return out.Div(out, uint256.NewInt(core.PercentDenominator))
}

// EligibleReferrer reports whether addr may earn referral rewards. With the
// program unrestricted any known address qualifies; restricted, the referrer
// must have invested before or sit on the partner whitelist.
func EligibleReferrer(st core.State, p *core.Platform, addr string) (bool, error) {
	if addr == "" {
		return false, nil
	}
	if !p.ReferralRestricted {
		return true, nil
	}
	if p.Whitelisted(core.TierPartner, addr) {
		return true, nil
	}
	pos, err := st.GetPosition(addr)
	if err != nil {
		return false, err
	}
	return pos != nil && !pos.TotalInvested.IsZero(), nil
}

func handleBuyToken(ctx *vm.Context, payload json.RawMessage) error {
	var pl core.BuyTokenPayload
	if err := json.Unmarshal(payload, &pl); err != nil {
		return fmt.Errorf("decode buy_token payload: %w", err)
	}

	p, err := ctx.State.GetPlatform()
	if err != nil {
		return err
	}
	if err := earnings.GuardRound(p); err != nil {
		return err
	}
	blockTime := ctx.Block.Header.Timestamp / int64(time.Second)
	if p.StartDate == 0 || blockTime < p.StartDate {
		return errors.New("token sale not open")
	}
	if p.OnlyWhitelisted &&
		!p.Whitelisted(core.TierGeneral, ctx.Tx.From) &&
		!p.Whitelisted(core.TierPartner, ctx.Tx.From) {
		return errors.New("buyer not whitelisted")
	}

	value := ctx.Tx.AttachedValue()
	if value.IsZero() {
		return errors.New("no payment attached")
	}
	tokens := Quote(p.Steps, p.TotalSold, value)
	if tokens == 0 {
		return errors.New("payment below current token price")
	}

	// Payment moves whole into the vault; half of it funds the earnings pool.
	buyer, err := ctx.State.GetAccount(ctx.Tx.From)
	if err != nil {
		return err
	}
	if buyer.Balance.Cmp(value) < 0 {
		return fmt.Errorf("insufficient balance: have %s, need %s", buyer.Balance, value)
	}
	buyer.Balance.Sub(buyer.Balance, value)
	if err := ctx.State.SetAccount(buyer); err != nil {
		return err
	}
	vault, err := ctx.State.GetAccount(core.VaultAddress)
	if err != nil {
		return err
	}
	vault.Balance.Add(vault.Balance, value)
	if err := ctx.State.SetAccount(vault); err != nil {
		return err
	}
	p.AccumulatedCro.Add(p.AccumulatedCro, pct(value, core.PoolPercent))
	p.TotalSold += tokens

	pos, err := core.EnsurePosition(ctx.State, p, ctx.Tx.From)
	if err != nil {
		return err
	}
	pos.TotalInvested.Add(pos.TotalInvested, value)
	pos.SpendableTokens += tokens
	granted := tokens

	// Referral rewards: CRO and INT for the referrer, extra INT for the buyer.
	if pl.Referrer != "" && pl.Referrer != ctx.Tx.From {
		eligible, err := EligibleReferrer(ctx.State, p, pl.Referrer)
		if err != nil {
			return err
		}
		if eligible {
			refPos, err := core.EnsurePosition(ctx.State, p, pl.Referrer)
			if err != nil {
				return err
			}
			refPos.UnclaimedCroBonus.Add(refPos.UnclaimedCroBonus, pct(value, p.ReferrerCroPct))
			refPos.UnclaimedIntBonus += tokens * p.ReferrerIntPct / core.PercentDenominator
			if err := ctx.State.SetPosition(refPos); err != nil {
				return err
			}
			extra := tokens * p.ReferredIntPct / core.PercentDenominator
			pos.SpendableTokens += extra
			granted += extra
			if pos.Referrer == "" {
				pos.Referrer = pl.Referrer
			}
			ctx.Emit(events.EventReferralBonus, map[string]any{
				"referrer": pl.Referrer,
				"referred": ctx.Tx.From,
			})
		}
	}

	if err := token.Mint(ctx.State, ctx.Tx.From, token.Units(granted)); err != nil {
		return err
	}
	if err := ctx.State.SetPosition(pos); err != nil {
		return err
	}
	if err := ctx.State.SetPlatform(p); err != nil {
		return err
	}

	ctx.Emit(events.EventTokenPurchase, map[string]any{
		"buyer":  ctx.Tx.From,
		"value":  value.String(),
		"tokens": tokens,
		"phase":  Phase(p.Steps, p.TotalSold),
	})
	return nil
}
