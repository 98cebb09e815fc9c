// Package token implements the INT ledger: 18-decimal balances, a pause
// switch with a single exempt address, and platform-internal minting.
package token

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/events"
	"github.com/interlude-gg/interlude-chain/vm"
)

// Decimals is the INT token's decimal count.
const Decimals = 18

// unitsPerToken is 10^Decimals.
var unitsPerToken = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(Decimals))

// Units converts whole INT tokens to ledger units.
func Units(tokens uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(tokens), unitsPerToken)
}

func init() {
	vm.Register(core.TxTokenTransfer, handleTransfer)
	vm.Register(core.TxTokenPause, handlePause)
	vm.Register(core.TxTokenSetSpecial, handleSetSpecial)
}

// Mint credits amount ledger units to addr and raises the total supply.
// Only transaction handlers call this; it bypasses the pause switch.
func Mint(st core.State, addr string, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	acc, err := st.GetTokenAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance.Add(acc.Balance, amount)
	if err := st.SetTokenAccount(acc); err != nil {
		return err
	}
	meta, err := st.GetTokenMeta()
	if err != nil {
		return err
	}
	meta.TotalSupply.Add(meta.TotalSupply, amount)
	return st.SetTokenMeta(meta)
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TokenTransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode token_transfer payload: %w", err)
	}
	if p.Amount == nil || p.Amount.IsZero() {
		return errors.New("token transfer amount must be > 0")
	}
	if p.To == "" {
		return errors.New("token transfer to address required")
	}

	meta, err := ctx.State.GetTokenMeta()
	if err != nil {
		return err
	}
	if meta.Paused && ctx.Tx.From != meta.SpecialAddress && ctx.Tx.From != meta.Owner {
		return errors.New("token transfers are paused")
	}

	sender, err := ctx.State.GetTokenAccount(ctx.Tx.From)
	if err != nil {
		return err
	}
	if sender.Balance.Cmp(p.Amount) < 0 {
		return fmt.Errorf("insufficient token balance: have %s, need %s", sender.Balance, p.Amount)
	}
	sender.Balance.Sub(sender.Balance, p.Amount)
	if err := ctx.State.SetTokenAccount(sender); err != nil {
		return err
	}

	recipient, err := ctx.State.GetTokenAccount(p.To)
	if err != nil {
		return err
	}
	recipient.Balance.Add(recipient.Balance, p.Amount)
	if err := ctx.State.SetTokenAccount(recipient); err != nil {
		return err
	}

	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"from":   ctx.Tx.From,
		"to":     p.To,
		"amount": p.Amount.String(),
	})
	return nil
}

func handlePause(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TokenPausePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode token_pause payload: %w", err)
	}
	meta, err := ctx.State.GetTokenMeta()
	if err != nil {
		return err
	}
	if ctx.Tx.From != meta.Owner {
		return errors.New("only the token owner can pause")
	}
	meta.Paused = p.Paused
	return ctx.State.SetTokenMeta(meta)
}

func handleSetSpecial(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TokenSetSpecialPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode token_set_special payload: %w", err)
	}
	meta, err := ctx.State.GetTokenMeta()
	if err != nil {
		return err
	}
	if ctx.Tx.From != meta.Owner {
		return errors.New("only the token owner can set the special address")
	}
	meta.SpecialAddress = p.Address
	return ctx.State.SetTokenMeta(meta)
}
