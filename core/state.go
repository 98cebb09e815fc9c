package core

import "github.com/holiman/uint256"

// Account holds a participant's native CRO balance (wei, 18 decimals) and
// replay-protection nonce. Address is the hex-encoded ed25519 public key,
// except for the reserved platform vault.
type Account struct {
	Address string       `json:"address"`
	Balance *uint256.Int `json:"balance"`
	Nonce   uint64       `json:"nonce"`
}

// VaultAddress is the reserved account that holds CRO received by the token
// sale and the INT sale inventory. It has no private key; only transaction
// handlers move funds out of it.
const VaultAddress = "interlude:vault"

// Asset describes one purchasable gem or crystal kind. Catalog entries are
// append-only and immutable once added; they are addressed by index.
type Asset struct {
	Name          string `json:"name"`
	Power         uint64 `json:"power"`
	UnscaledPrice uint64 `json:"unscaled_price"` // whole INT per unit
	IsCrystal     bool   `json:"is_crystal"`
}

// PricingStep is one rung of the token-sale price ladder: Size whole INT
// tokens offered at Price wei each.
type PricingStep struct {
	Size  uint64       `json:"size"`
	Price *uint256.Int `json:"price"`
}

// Position is a user's platform account: asset holdings, staking power, and
// the earnings/referral bookkeeping attached to them. Created on the user's
// first contact with the platform and never deleted, even when every balance
// returns to zero.
//
// GemPower must always equal the power-weighted sum of Gems quantities
// (likewise CrystalPower); the staking handlers maintain both incrementally.
type Position struct {
	Address         string   `json:"address"`
	Gems            []uint64 `json:"gems"`     // quantity per catalog index
	Crystals        []uint64 `json:"crystals"` // quantity per catalog index
	GemPower        uint64   `json:"gem_power"`
	CrystalPower    uint64   `json:"crystal_power"`
	SpendableTokens uint64   `json:"spendable_tokens"` // whole INT

	UnclaimedEarnings       *uint256.Int `json:"unclaimed_earnings"`        // wei
	LastClaimedAccumulation *uint256.Int `json:"last_claimed_accumulation"` // AccumulatedCro marker
	TotalInvested           *uint256.Int `json:"total_invested"`            // wei paid into the sale
	TotalClaimed            *uint256.Int `json:"total_claimed"`             // wei paid out

	UnclaimedCroBonus *uint256.Int `json:"unclaimed_cro_bonus"` // referral, wei
	UnclaimedIntBonus uint64       `json:"unclaimed_int_bonus"` // referral, whole INT
	Referrer          string       `json:"referrer,omitempty"`
}

// NewPosition creates an empty position whose earnings marker starts at the
// current pool accumulation, so it owes nothing for pool growth that happened
// before the user existed.
func NewPosition(address string, accumulated *uint256.Int) *Position {
	marker := uint256.NewInt(0)
	if accumulated != nil {
		marker.Set(accumulated)
	}
	return &Position{
		Address:                 address,
		UnclaimedEarnings:       uint256.NewInt(0),
		LastClaimedAccumulation: marker,
		TotalInvested:           uint256.NewInt(0),
		TotalClaimed:            uint256.NewInt(0),
		UnclaimedCroBonus:       uint256.NewInt(0),
	}
}

// EnsurePosition loads the user's position, creating and registering a fresh
// one on first contact. The caller must persist both the position and the
// platform afterwards.
func EnsurePosition(st State, p *Platform, addr string) (*Position, error) {
	pos, err := st.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = NewPosition(addr, p.AccumulatedCro)
		p.RegisterUser(addr)
	}
	return pos, nil
}

// HoldingAt returns the held quantity at index, treating a short slice as zero.
func HoldingAt(holdings []uint64, index int) uint64 {
	if index < 0 || index >= len(holdings) {
		return 0
	}
	return holdings[index]
}

// Grow pads holdings with zeros until index is addressable.
func Grow(holdings []uint64, index int) []uint64 {
	for len(holdings) <= index {
		holdings = append(holdings, 0)
	}
	return holdings
}

// TokenAccount is one INT token ledger entry (18-decimal balance).
type TokenAccount struct {
	Address string       `json:"address"`
	Balance *uint256.Int `json:"balance"`
}

// TokenMeta is the INT ledger's global record: the pause switch, the one
// address exempt from it, and the issued supply.
type TokenMeta struct {
	Owner          string       `json:"owner"`
	Paused         bool         `json:"paused"`
	SpecialAddress string       `json:"special_address"`
	TotalSupply    *uint256.Int `json:"total_supply"`
}

// State is the full chain state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Native CRO accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Platform singleton (catalogs, steps, pools, users, distribution cursor)
	GetPlatform() (*Platform, error)
	SetPlatform(p *Platform) error

	// Per-user staking positions
	GetPosition(address string) (*Position, error)
	SetPosition(pos *Position) error

	// INT token ledger
	GetTokenAccount(address string) (*TokenAccount, error)
	SetTokenAccount(acc *TokenAccount) error
	GetTokenMeta() (*TokenMeta, error)
	SetTokenMeta(m *TokenMeta) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	// Always call ComputeRoot() first to obtain the root for the block header.
	Commit() error
}
