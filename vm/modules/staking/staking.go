// Package staking converts spendable INT into gem and crystal power and back.
// Gems trade at their fixed catalog price. Crystals trade at a scaled price
//
//	scaled = TotalIntInCrystals × rawCost / TotalCrystalPriceUnits
//
// so that admin-minted crystal power (which raises TotalCrystalPriceUnits
// without adding INT) dilutes the price of every later crystal trade.
//
// Every handler settles all users' earnings before touching powers or the
// Int aggregates; shares must be evaluated at pre-change values.
package staking

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/events"
	"github.com/interlude-gg/interlude-chain/vm"
	"github.com/interlude-gg/interlude-chain/vm/modules/earnings"
)

func init() {
	vm.Register(core.TxBuyGem, handleBuyGem)
	vm.Register(core.TxSellGem, handleSellGem)
	vm.Register(core.TxBuyCrystal, handleBuyCrystal)
	vm.Register(core.TxSellCrystal, handleSellCrystal)
	vm.Register(core.TxMintCrystal, handleMintCrystal)
}

// mulQty returns a × qty, rejecting uint64 overflow.
func mulQty(a, qty uint64) (uint64, error) {
	out := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(qty))
	if !out.IsUint64() {
		return 0, fmt.Errorf("overflow: %d × %d", a, qty)
	}
	return out.Uint64(), nil
}

// scaledCrystalCost applies the dilution ratio to a raw crystal cost (floor).
func scaledCrystalCost(p *core.Platform, raw uint64) (uint64, error) {
	cost := uint256.NewInt(p.TotalIntInCrystals)
	cost.Mul(cost, uint256.NewInt(raw))
	cost.Div(cost, uint256.NewInt(p.TotalCrystalPriceUnits))
	if !cost.IsUint64() {
		return 0, fmt.Errorf("scaled cost overflow for raw cost %d", raw)
	}
	return cost.Uint64(), nil
}

// op bundles the state every staking handler needs. Loading it settles all
// users first, so the returned position carries fresh earnings markers.
type op struct {
	p     *core.Platform
	pos   *core.Position
	asset core.Asset
	index int
	qty   uint64
	raw   uint64
	power uint64
}

func loadOp(ctx *vm.Context, payload json.RawMessage, isCrystal bool) (*op, error) {
	var pl core.AssetOpPayload
	if err := json.Unmarshal(payload, &pl); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if pl.Quantity == 0 {
		return nil, errors.New("quantity must be > 0")
	}

	p, err := ctx.State.GetPlatform()
	if err != nil {
		return nil, err
	}
	if err := earnings.GuardRound(p); err != nil {
		return nil, err
	}
	asset, ok := p.AssetAt(isCrystal, pl.Index)
	if !ok {
		return nil, fmt.Errorf("no asset at index %d", pl.Index)
	}
	raw, err := mulQty(asset.UnscaledPrice, pl.Quantity)
	if err != nil {
		return nil, err
	}
	power, err := mulQty(asset.Power, pl.Quantity)
	if err != nil {
		return nil, err
	}

	if err := earnings.Settle(ctx.State, p); err != nil {
		return nil, err
	}
	pos, err := ctx.State.GetPosition(ctx.Tx.From)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, errors.New("no platform account: buy tokens first")
	}
	return &op{p: p, pos: pos, asset: asset, index: pl.Index, qty: pl.Quantity, raw: raw, power: power}, nil
}

func (o *op) persist(ctx *vm.Context) error {
	if err := ctx.State.SetPosition(o.pos); err != nil {
		return err
	}
	return ctx.State.SetPlatform(o.p)
}

func (o *op) emit(ctx *vm.Context, typ events.EventType, cost uint64) {
	ctx.Emit(typ, map[string]any{
		"user":     ctx.Tx.From,
		"asset":    o.asset.Name,
		"crystal":  o.asset.IsCrystal,
		"index":    o.index,
		"quantity": o.qty,
		"cost":     cost,
	})
}

func handleBuyGem(ctx *vm.Context, payload json.RawMessage) error {
	o, err := loadOp(ctx, payload, false)
	if err != nil {
		return err
	}
	if o.pos.SpendableTokens < o.raw {
		return fmt.Errorf("insufficient spendable tokens: have %d, need %d", o.pos.SpendableTokens, o.raw)
	}

	o.pos.SpendableTokens -= o.raw
	o.pos.Gems = core.Grow(o.pos.Gems, o.index)
	o.pos.Gems[o.index] += o.qty
	o.pos.GemPower += o.power
	o.p.TotalGemPower += o.power
	o.p.TotalIntInGems += o.raw

	if err := o.persist(ctx); err != nil {
		return err
	}
	o.emit(ctx, events.EventAssetBought, o.raw)
	return nil
}

func handleSellGem(ctx *vm.Context, payload json.RawMessage) error {
	o, err := loadOp(ctx, payload, false)
	if err != nil {
		return err
	}
	if core.HoldingAt(o.pos.Gems, o.index) < o.qty {
		return fmt.Errorf("insufficient gems: have %d, selling %d", core.HoldingAt(o.pos.Gems, o.index), o.qty)
	}
	if o.p.TotalIntInGems < o.raw || o.p.TotalGemPower < o.power {
		return errors.New("gem ledger underflow")
	}

	o.pos.Gems[o.index] -= o.qty
	o.pos.GemPower -= o.power
	o.pos.SpendableTokens += o.raw
	o.p.TotalGemPower -= o.power
	o.p.TotalIntInGems -= o.raw

	if err := o.persist(ctx); err != nil {
		return err
	}
	o.emit(ctx, events.EventAssetSold, o.raw)
	return nil
}

func handleBuyCrystal(ctx *vm.Context, payload json.RawMessage) error {
	o, err := loadOp(ctx, payload, true)
	if err != nil {
		return err
	}
	scaled, err := scaledCrystalCost(o.p, o.raw)
	if err != nil {
		return err
	}
	if o.pos.SpendableTokens < scaled {
		return fmt.Errorf("insufficient spendable tokens: have %d, need %d", o.pos.SpendableTokens, scaled)
	}

	o.pos.SpendableTokens -= scaled
	o.pos.Crystals = core.Grow(o.pos.Crystals, o.index)
	o.pos.Crystals[o.index] += o.qty
	o.pos.CrystalPower += o.power
	o.p.TotalCrystalPower += o.power
	o.p.TotalIntInCrystals += scaled
	o.p.TotalCrystalPriceUnits += o.raw

	if err := o.persist(ctx); err != nil {
		return err
	}
	o.emit(ctx, events.EventAssetBought, scaled)
	return nil
}

func handleSellCrystal(ctx *vm.Context, payload json.RawMessage) error {
	o, err := loadOp(ctx, payload, true)
	if err != nil {
		return err
	}
	if core.HoldingAt(o.pos.Crystals, o.index) < o.qty {
		return fmt.Errorf("insufficient crystals: have %d, selling %d", core.HoldingAt(o.pos.Crystals, o.index), o.qty)
	}
	scaled, err := scaledCrystalCost(o.p, o.raw)
	if err != nil {
		return err
	}
	if o.p.TotalIntInCrystals < scaled || o.p.TotalCrystalPriceUnits < o.raw || o.p.TotalCrystalPower < o.power {
		return errors.New("crystal ledger underflow")
	}

	o.pos.Crystals[o.index] -= o.qty
	o.pos.CrystalPower -= o.power
	o.pos.SpendableTokens += scaled
	o.p.TotalCrystalPower -= o.power
	o.p.TotalIntInCrystals -= scaled
	o.p.TotalCrystalPriceUnits -= o.raw

	if err := o.persist(ctx); err != nil {
		return err
	}
	o.emit(ctx, events.EventAssetSold, scaled)
	return nil
}

// handleMintCrystal grants crystal power without payment: power and the raw
// cost enter the aggregates, but TotalIntInCrystals and the user's spendable
// balance stay put. That is the dilution lever.
func handleMintCrystal(ctx *vm.Context, payload json.RawMessage) error {
	var pl core.MintCrystalPayload
	if err := json.Unmarshal(payload, &pl); err != nil {
		return fmt.Errorf("decode mint_crystal payload: %w", err)
	}
	if pl.Quantity == 0 {
		return errors.New("quantity must be > 0")
	}
	if pl.User == "" {
		return errors.New("user required")
	}

	p, err := ctx.State.GetPlatform()
	if err != nil {
		return err
	}
	if !p.IsAdmin(ctx.Tx.From) {
		return errors.New("only the owner can mint crystals")
	}
	if err := earnings.GuardRound(p); err != nil {
		return err
	}
	asset, ok := p.AssetAt(true, pl.Index)
	if !ok {
		return fmt.Errorf("no crystal at index %d", pl.Index)
	}
	raw, err := mulQty(asset.UnscaledPrice, pl.Quantity)
	if err != nil {
		return err
	}
	power, err := mulQty(asset.Power, pl.Quantity)
	if err != nil {
		return err
	}

	if err := earnings.Settle(ctx.State, p); err != nil {
		return err
	}
	pos, err := core.EnsurePosition(ctx.State, p, pl.User)
	if err != nil {
		return err
	}

	pos.Crystals = core.Grow(pos.Crystals, pl.Index)
	pos.Crystals[pl.Index] += pl.Quantity
	pos.CrystalPower += power
	p.TotalCrystalPower += power
	p.TotalCrystalPriceUnits += raw

	if err := ctx.State.SetPosition(pos); err != nil {
		return err
	}
	if err := ctx.State.SetPlatform(p); err != nil {
		return err
	}
	ctx.Emit(events.EventCrystalMinted, map[string]any{
		"user":     pl.User,
		"asset":    asset.Name,
		"index":    pl.Index,
		"quantity": pl.Quantity,
	})
	return nil
}
