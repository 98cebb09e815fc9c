package sale

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/vm"
	"github.com/interlude-gg/interlude-chain/vm/modules/earnings"
	"github.com/interlude-gg/interlude-chain/vm/modules/token"
)

func init() {
	vm.Register(core.TxSetSteps, handleSetSteps)
	vm.Register(core.TxSetStartDate, handleSetStartDate)
	vm.Register(core.TxSetTotalSold, handleSetTotalSold)
	vm.Register(core.TxRestrictReferral, handleRestrictReferral)
	vm.Register(core.TxSetOnlyWhitelisted, handleSetOnlyWhitelisted)
	vm.Register(core.TxSetWhitelist, handleSetWhitelist)
	vm.Register(core.TxGiveUnclaimedEarnings, handleGiveUnclaimedEarnings)
	vm.Register(core.TxGiveTokens, handleGiveTokens)
}

// adminPlatform loads the platform and rejects non-owners before anything
// else is read.
func adminPlatform(ctx *vm.Context) (*core.Platform, error) {
	p, err := ctx.State.GetPlatform()
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin(ctx.Tx.From) {
		return nil, errors.New("owner only")
	}
	return p, nil
}

func handleSetSteps(ctx *vm.Context, payload json.RawMessage) error {
	var pl core.SetStepsPayload
	if err := json.Unmarshal(payload, &pl); err != nil {
		return fmt.Errorf("decode set_steps payload: %w", err)
	}
	p, err := adminPlatform(ctx)
	if err != nil {
		return err
	}
	if len(p.Steps) > 0 {
		return errors.New("pricing steps already set")
	}
	if err := ValidateSteps(pl.Steps); err != nil {
		return err
	}
	p.Steps = pl.Steps
	return ctx.State.SetPlatform(p)
}

func handleSetStartDate(ctx *vm.Context, payload json.RawMessage) error {
	var pl core.SetStartDatePayload
	if err := json.Unmarshal(payload, &pl); err != nil {
		return fmt.Errorf("decode set_start_date payload: %w", err)
	}
	p, err := adminPlatform(ctx)
	if err != nil {
		return err
	}
	p.StartDate = pl.StartDate
	return ctx.State.SetPlatform(p)
}

func handleSetTotalSold(ctx *vm.Context, payload json.RawMessage) error {
	var pl core.SetTotalSoldPayload
	if err := json.Unmarshal(payload, &pl); err != nil {
		return fmt.Errorf("decode set_total_sold payload: %w", err)
	}
	p, err := adminPlatform(ctx)
	if err != nil {
		return err
	}
	p.TotalSold = pl.TotalSold
	return ctx.State.SetPlatform(p)
}

func handleRestrictReferral(ctx *vm.Context, payload json.RawMessage) error {
	var pl core.RestrictReferralPayload
	if err := json.Unmarshal(payload, &pl); err != nil {
		return fmt.Errorf("decode restrict_referral payload: %w", err)
	}
	p, err := adminPlatform(ctx)
	if err != nil {
		return err
	}
	p.ReferralRestricted = pl.Restricted
	return ctx.State.SetPlatform(p)
}

func handleSetOnlyWhitelisted(ctx *vm.Context, payload json.RawMessage) error {
	var pl core.SetOnlyWhitelistedPayload
	if err := json.Unmarshal(payload, &pl); err != nil {
		return fmt.Errorf("decode set_only_whitelisted payload: %w", err)
	}
	p, err := adminPlatform(ctx)
	if err != nil {
		return err
	}
	p.OnlyWhitelisted = pl.On
	return ctx.State.SetPlatform(p)
}

func handleSetWhitelist(ctx *vm.Context, payload json.RawMessage) error {
	var pl core.SetWhitelistPayload
	if err := json.Unmarshal(payload, &pl); err != nil {
		return fmt.Errorf("decode set_whitelist payload: %w", err)
	}
	switch pl.Tier {
	case core.TierPartner, core.TierGeneral, core.TierAdmin:
	default:
		return fmt.Errorf("unknown whitelist tier %q", pl.Tier)
	}
	if pl.Address == "" {
		return errors.New("address required")
	}
	p, err := adminPlatform(ctx)
	if err != nil {
		return err
	}
	p.SetWhitelisted(pl.Tier, pl.Address, pl.Allowed)
	return ctx.State.SetPlatform(p)
}

// handleGiveUnclaimedEarnings credits settled earnings directly. Migration
// hook for importing balances from a previous deployment.
func handleGiveUnclaimedEarnings(ctx *vm.Context, payload json.RawMessage) error {
	var pl core.GiveUnclaimedEarningsPayload
	if err := json.Unmarshal(payload, &pl); err != nil {
		return fmt.Errorf("decode give_unclaimed_earnings payload: %w", err)
	}
	if pl.User == "" || pl.Amount == nil || pl.Amount.IsZero() {
		return errors.New("user and amount required")
	}
	p, err := adminPlatform(ctx)
	if err != nil {
		return err
	}
	if err := earnings.GuardRound(p); err != nil {
		return err
	}
	pos, err := core.EnsurePosition(ctx.State, p, pl.User)
	if err != nil {
		return err
	}
	pos.UnclaimedEarnings.Add(pos.UnclaimedEarnings, pl.Amount)
	if err := ctx.State.SetPosition(pos); err != nil {
		return err
	}
	return ctx.State.SetPlatform(p)
}

// handleGiveTokens grants spendable INT without payment. Migration hook.
func handleGiveTokens(ctx *vm.Context, payload json.RawMessage) error {
	var pl core.GiveTokensPayload
	if err := json.Unmarshal(payload, &pl); err != nil {
		return fmt.Errorf("decode give_tokens payload: %w", err)
	}
	if pl.User == "" || pl.Amount == 0 {
		return errors.New("user and amount required")
	}
	p, err := adminPlatform(ctx)
	if err != nil {
		return err
	}
	if err := earnings.GuardRound(p); err != nil {
		return err
	}
	pos, err := core.EnsurePosition(ctx.State, p, pl.User)
	if err != nil {
		return err
	}
	pos.SpendableTokens += pl.Amount
	if err := token.Mint(ctx.State, pl.User, token.Units(pl.Amount)); err != nil {
		return err
	}
	if err := ctx.State.SetPosition(pos); err != nil {
		return err
	}
	return ctx.State.SetPlatform(p)
}
