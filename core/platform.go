package core

import "github.com/holiman/uint256"

// Whitelist tiers. Partner entries double as always-eligible referrers;
// general entries satisfy the OnlyWhitelisted purchase gate; admin entries
// may issue owner-level operations.
const (
	TierPartner = "partner"
	TierGeneral = "general"
	TierAdmin   = "admin"
)

// PercentDenominator is the base for every percentage parameter.
const PercentDenominator = 100

// PoolPercent of each token purchase is credited to the earnings pool.
const PoolPercent = 50

// EarningsBatchChunk is how many users one update_all_earnings call settles.
const EarningsBatchChunk = 50

// DistributionCursor tracks a batch earnings round over Platform.Users.
type DistributionCursor struct {
	Active bool `json:"active"`
	Index  int  `json:"index"`
}

// Platform is the singleton economic state: asset catalogs, the sale price
// ladder, the staking aggregates, the earnings pool, and the referral and
// access-control parameters.
//
// TotalIntInGems, TotalIntInCrystals and TotalCrystalPriceUnits start at 1 so
// the share and scaled-cost denominators are never zero. The 1-wei-equivalent
// skew this introduces is negligible at catalog scale.
type Platform struct {
	Owner     string          `json:"owner"`
	StartDate int64           `json:"start_date"` // unix seconds; 0 = closed
	Gems      []Asset         `json:"gems"`
	Crystals  []Asset         `json:"crystals"`
	Steps     []PricingStep   `json:"steps"`
	Users     []string        `json:"users"` // insertion order, no duplicates
	userIndex map[string]bool `json:"-"`

	TotalSold      uint64       `json:"total_sold"`      // whole INT
	AccumulatedCro *uint256.Int `json:"accumulated_cro"` // wei, monotone

	TotalGemPower          uint64 `json:"total_gem_power"`
	TotalCrystalPower      uint64 `json:"total_crystal_power"`
	TotalIntInGems         uint64 `json:"total_int_in_gems"`
	TotalIntInCrystals     uint64 `json:"total_int_in_crystals"`
	TotalCrystalPriceUnits uint64 `json:"total_crystal_price_units"`

	ReferrerCroPct uint64 `json:"referrer_cro_pct"`
	ReferrerIntPct uint64 `json:"referrer_int_pct"`
	ReferredIntPct uint64 `json:"referred_int_pct"`

	ReferralRestricted bool                       `json:"referral_restricted"`
	OnlyWhitelisted    bool                       `json:"only_whitelisted"`
	Whitelist          map[string]map[string]bool `json:"whitelist"` // tier -> addr -> allowed

	Cursor DistributionCursor `json:"cursor"`
}

// NewPlatform returns a platform owned by owner with the denominators seeded
// to 1 and the referral program unrestricted.
func NewPlatform(owner string) *Platform {
	return &Platform{
		Owner:                  owner,
		AccumulatedCro:         uint256.NewInt(0),
		TotalIntInGems:         1,
		TotalIntInCrystals:     1,
		TotalCrystalPriceUnits: 1,
		Whitelist:              map[string]map[string]bool{},
	}
}

// IsAdmin reports whether addr may issue owner-level operations.
func (p *Platform) IsAdmin(addr string) bool {
	return addr != "" && (addr == p.Owner || p.Whitelisted(TierAdmin, addr))
}

// Whitelisted reports whether addr is on the given tier.
func (p *Platform) Whitelisted(tier, addr string) bool {
	m, ok := p.Whitelist[tier]
	return ok && m[addr]
}

// SetWhitelisted adds or removes addr on the given tier.
func (p *Platform) SetWhitelisted(tier, addr string, allowed bool) {
	if p.Whitelist == nil {
		p.Whitelist = map[string]map[string]bool{}
	}
	m, ok := p.Whitelist[tier]
	if !ok {
		m = map[string]bool{}
		p.Whitelist[tier] = m
	}
	if allowed {
		m[addr] = true
	} else {
		delete(m, addr)
	}
}

// RegisterUser appends addr to Users once; later calls are no-ops.
func (p *Platform) RegisterUser(addr string) {
	if p.userIndex == nil {
		p.userIndex = make(map[string]bool, len(p.Users))
		for _, u := range p.Users {
			p.userIndex[u] = true
		}
	}
	if p.userIndex[addr] {
		return
	}
	p.userIndex[addr] = true
	p.Users = append(p.Users, addr)
}

// AssetAt resolves a catalog entry.
func (p *Platform) AssetAt(isCrystal bool, index int) (Asset, bool) {
	catalog := p.Gems
	if isCrystal {
		catalog = p.Crystals
	}
	if index < 0 || index >= len(catalog) {
		return Asset{}, false
	}
	return catalog[index], true
}
