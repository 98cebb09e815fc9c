package config

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/crypto"
)

// GenesisHash is a canonical all-zeros previous hash for the genesis block.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// DefaultGems is the platform's standard gem catalog.
func DefaultGems() []GenesisAsset {
	return []GenesisAsset{
		{Name: "Obsidian", Power: 100, Price: 5000},
		{Name: "Carnelian", Power: 200, Price: 10000},
		{Name: "Amethyst", Power: 420, Price: 20000},
		{Name: "Sapphire", Power: 1050, Price: 50000},
		{Name: "Emerald", Power: 2200, Price: 100000},
		{Name: "Ruby", Power: 4400, Price: 200000},
		{Name: "Dragonstone", Power: 11500, Price: 500000},
		{Name: "Moonstone", Power: 24000, Price: 1000000},
	}
}

// DefaultCrystals is the platform's standard crystal catalog. Powers and
// prices mirror the gem tiers.
func DefaultCrystals() []GenesisAsset {
	return []GenesisAsset{
		{Name: "Rhodonite", Power: 100, Price: 5000},
		{Name: "Azurite", Power: 200, Price: 10000},
		{Name: "Chlorophyte", Power: 420, Price: 20000},
		{Name: "Selenite", Power: 1050, Price: 50000},
		{Name: "Stormite", Power: 2200, Price: 100000},
		{Name: "Ember", Power: 4400, Price: 200000},
		{Name: "Zephyrite", Power: 11500, Price: 500000},
		{Name: "Pyraxite", Power: 24000, Price: 1000000},
	}
}

// DefaultSteps is the standard sale ladder: ten steps of 40,000,000 tokens,
// starting at 1/400 CRO per token and doubling each step.
func DefaultSteps() []GenesisStep {
	steps := make([]GenesisStep, 0, 10)
	price := uint256.NewInt(2_500_000_000_000_000) // 0.0025 CRO in wei
	for i := 0; i < 10; i++ {
		steps = append(steps, GenesisStep{Size: 40_000_000, Price: price.String()})
		price = new(uint256.Int).Mul(price, uint256.NewInt(2))
	}
	return steps
}

func parseWei(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid wei amount %q: %w", s, err)
	}
	return v, nil
}

// BuildPlatform converts the genesis parameters into the platform singleton.
func (g *GenesisConfig) BuildPlatform() (*core.Platform, error) {
	p := core.NewPlatform(g.Owner)
	p.StartDate = g.StartDate
	p.ReferrerCroPct = g.ReferrerCroPct
	p.ReferrerIntPct = g.ReferrerIntPct
	p.ReferredIntPct = g.ReferredIntPct
	for _, a := range g.Gems {
		p.Gems = append(p.Gems, core.Asset{Name: a.Name, Power: a.Power, UnscaledPrice: a.Price})
	}
	for _, a := range g.Crystals {
		p.Crystals = append(p.Crystals, core.Asset{Name: a.Name, Power: a.Power, UnscaledPrice: a.Price, IsCrystal: true})
	}
	for _, s := range g.Steps {
		price, err := parseWei(s.Price)
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, core.PricingStep{Size: s.Size, Price: price})
	}
	return p, nil
}

// CreateGenesisBlock builds and signs block #0: alloc balances, the platform
// singleton, and the token ledger's ownership record, committed as the
// initial state.
func CreateGenesisBlock(cfg *Config, state core.State, proposerPriv crypto.PrivateKey) (*core.Block, error) {
	proposerPub := proposerPriv.Public()

	for pubkeyHex, amount := range cfg.Genesis.Alloc {
		balance, err := parseWei(amount)
		if err != nil {
			return nil, err
		}
		acc := &core.Account{Address: pubkeyHex, Balance: balance}
		if err := state.SetAccount(acc); err != nil {
			return nil, err
		}
	}

	platform, err := cfg.Genesis.BuildPlatform()
	if err != nil {
		return nil, err
	}
	if err := state.SetPlatform(platform); err != nil {
		return nil, err
	}

	meta, err := state.GetTokenMeta()
	if err != nil {
		return nil, err
	}
	meta.Owner = cfg.Genesis.Owner
	meta.SpecialAddress = core.VaultAddress
	if err := state.SetTokenMeta(meta); err != nil {
		return nil, err
	}

	stateRoot := state.ComputeRoot()
	if err := state.Commit(); err != nil {
		return nil, err
	}

	block := core.NewBlock(cfg.Genesis.ChainID, 0, GenesisHash, proposerPub.Hex(), nil)
	block.Header.StateRoot = stateRoot
	block.Header.TxRoot = crypto.Hash([]byte(cfg.Genesis.ChainID))
	block.Sign(proposerPriv)
	return block, nil
}

// IsGenesisHash returns true if the hash is the canonical genesis prev-hash.
func IsGenesisHash(h string) bool {
	return strings.Count(h, "0") == len(h) && len(h) == 64
}
