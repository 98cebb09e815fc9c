// Package catalog manages the gem and crystal product lists. Entries are
// append-only: once added, an asset's name, power and price never change, so
// positions can address holdings by catalog index forever.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/vm"
)

func init() {
	vm.Register(core.TxAddAsset, handleAddAsset)
}

func handleAddAsset(ctx *vm.Context, payload json.RawMessage) error {
	var p core.AddAssetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode add_asset payload: %w", err)
	}
	if p.Name == "" {
		return errors.New("asset name required")
	}
	if p.Power == 0 {
		return errors.New("asset power must be > 0")
	}
	if p.Price == 0 {
		return errors.New("asset price must be > 0")
	}

	platform, err := ctx.State.GetPlatform()
	if err != nil {
		return err
	}
	if !platform.IsAdmin(ctx.Tx.From) {
		return errors.New("only the owner can add assets")
	}

	asset := core.Asset{
		Name:          p.Name,
		Power:         p.Power,
		UnscaledPrice: p.Price,
		IsCrystal:     p.IsCrystal,
	}
	if p.IsCrystal {
		platform.Crystals = append(platform.Crystals, asset)
	} else {
		platform.Gems = append(platform.Gems, asset)
	}
	return ctx.State.SetPlatform(platform)
}
