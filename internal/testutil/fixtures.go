package testutil

import (
	"encoding/json"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/vm"
)

// ChainID is the network identifier used by fixtures.
const ChainID = "interlude-test"

// Wei converts a whole-CRO count to wei.
func Wei(cro uint64) *uint256.Int {
	w := uint256.NewInt(cro)
	return w.Mul(w, uint256.NewInt(1_000_000_000_000_000_000))
}

// DevPlatform returns a small platform fixture: two gem kinds, two crystal
// kinds, a two-step price ladder, and the sale open since t=1.
func DevPlatform(owner string) *core.Platform {
	p := core.NewPlatform(owner)
	p.StartDate = 1
	p.Gems = []core.Asset{
		{Name: "Obsidian", Power: 100, UnscaledPrice: 5_000},
		{Name: "Carnelian", Power: 200, UnscaledPrice: 10_000},
	}
	p.Crystals = []core.Asset{
		{Name: "Rhodonite", Power: 100, UnscaledPrice: 5_000, IsCrystal: true},
		{Name: "Azurite", Power: 200, UnscaledPrice: 10_000, IsCrystal: true},
	}
	p.Steps = []core.PricingStep{
		{Size: 40_000_000, Price: uint256.NewInt(2_500_000_000_000_000)},
		{Size: 40_000_000, Price: uint256.NewInt(5_000_000_000_000_000)},
	}
	p.ReferrerCroPct = 5
	p.ReferrerIntPct = 5
	p.ReferredIntPct = 5
	return p
}

// SeedPlatform writes the platform singleton, the token ledger meta, and an
// empty vault account into st.
func SeedPlatform(st core.State, p *core.Platform) error {
	if err := st.SetPlatform(p); err != nil {
		return err
	}
	if err := st.SetTokenMeta(&core.TokenMeta{
		Owner:          p.Owner,
		SpecialAddress: core.VaultAddress,
		TotalSupply:    uint256.NewInt(0),
	}); err != nil {
		return err
	}
	vault, err := st.GetAccount(core.VaultAddress)
	if err != nil {
		return err
	}
	return st.SetAccount(vault)
}

// Fund credits addr with wei of native CRO.
func Fund(st core.State, addr string, wei *uint256.Int) error {
	acc, err := st.GetAccount(addr)
	if err != nil {
		return err
	}
	acc.Balance.Add(acc.Balance, wei)
	return st.SetAccount(acc)
}

// TxContext builds a handler context around a synthetic block and an unsigned
// transaction, for driving handlers directly in tests.
func TxContext(st core.State, typ core.TxType, from string, value *uint256.Int, payload any) (*vm.Context, json.RawMessage, error) {
	tx, err := core.NewTransaction(typ, from, ChainID, 0, 0, payload)
	if err != nil {
		return nil, nil, err
	}
	tx.Value = value
	tx.ID = tx.Hash()
	block := core.NewBlock(ChainID, 1, "", "", nil)
	ctx := &vm.Context{State: st, Block: block, Tx: tx}
	return ctx, tx.Payload, nil
}
