package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	// Native currency
	TxTransfer TxType = "transfer"

	// Token sale
	TxBuyToken TxType = "buy_token"

	// Staking
	TxBuyGem      TxType = "buy_gem"
	TxSellGem     TxType = "sell_gem"
	TxBuyCrystal  TxType = "buy_crystal"
	TxSellCrystal TxType = "sell_crystal"
	TxMintCrystal TxType = "mint_crystal"

	// Earnings
	TxClaimEarnings      TxType = "claim_earnings"
	TxClaimReferralBonus TxType = "claim_referral_bonus"
	TxInitEarningsUpdate TxType = "init_earnings_update"
	TxUpdateAllEarnings  TxType = "update_all_earnings"

	// Catalog & platform administration
	TxAddAsset              TxType = "add_asset"
	TxSetSteps              TxType = "set_steps"
	TxSetStartDate          TxType = "set_start_date"
	TxSetTotalSold          TxType = "set_total_sold"
	TxRestrictReferral      TxType = "restrict_referral"
	TxSetOnlyWhitelisted    TxType = "set_only_whitelisted"
	TxSetWhitelist          TxType = "set_whitelist"
	TxGiveUnclaimedEarnings TxType = "give_unclaimed_earnings"
	TxGiveTokens            TxType = "give_tokens"

	// INT token ledger
	TxTokenTransfer   TxType = "token_transfer"
	TxTokenPause      TxType = "token_pause"
	TxTokenSetSpecial TxType = "token_set_special"
)

// Transaction is the atomic unit of work on the chain.
// From holds the sender's full hex-encoded ed25519 public key (64 chars).
// Value is the CRO (wei) attached to payable operations; nil means zero.
// Signature covers all fields except Signature itself.
type Transaction struct {
	ID        string          `json:"id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	ChainID   string          `json:"chain_id"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Value     *uint256.Int    `json:"value,omitempty"` // wei
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	ChainID   string          `json:"chain_id"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Value     *uint256.Int    `json:"value,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		Type:      tx.Type,
		From:      tx.From,
		ChainID:   tx.ChainID,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Value:     tx.Value,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// AttachedValue returns the CRO attached to the transaction, never nil.
func (tx *Transaction) AttachedValue() *uint256.Int {
	if tx.Value == nil {
		return uint256.NewInt(0)
	}
	return tx.Value
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(typ TxType, from, chainID string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		Type:      typ,
		From:      from,
		ChainID:   chainID,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload moves native CRO between accounts.
type TransferPayload struct {
	To     string       `json:"to"`
	Amount *uint256.Int `json:"amount"` // wei
}

// BuyTokenPayload purchases INT at the current step price with the
// transaction's attached value. Referrer is optional.
type BuyTokenPayload struct {
	Referrer string `json:"referrer,omitempty"`
}

// AssetOpPayload buys or sells catalog assets by index.
type AssetOpPayload struct {
	Index    int    `json:"index"`
	Quantity uint64 `json:"quantity"`
}

// MintCrystalPayload grants crystal power to a user without payment.
type MintCrystalPayload struct {
	User     string `json:"user"`
	Index    int    `json:"index"`
	Quantity uint64 `json:"quantity"`
}

// AddAssetPayload appends a catalog entry.
type AddAssetPayload struct {
	Name      string `json:"name"`
	Power     uint64 `json:"power"`
	Price     uint64 `json:"price"` // whole INT
	IsCrystal bool   `json:"is_crystal"`
}

// SetStepsPayload sets the sale price ladder. Accepted once.
type SetStepsPayload struct {
	Steps []PricingStep `json:"steps"`
}

// SetStartDatePayload opens the sale at the given unix time.
type SetStartDatePayload struct {
	StartDate int64 `json:"start_date"`
}

// SetTotalSoldPayload seeds the sold counter (migration hook).
type SetTotalSoldPayload struct {
	TotalSold uint64 `json:"total_sold"`
}

// RestrictReferralPayload toggles referrer eligibility checks.
type RestrictReferralPayload struct {
	Restricted bool `json:"restricted"`
}

// SetOnlyWhitelistedPayload gates purchases on the general whitelist.
type SetOnlyWhitelistedPayload struct {
	On bool `json:"on"`
}

// SetWhitelistPayload adds or removes an address on a whitelist tier.
type SetWhitelistPayload struct {
	Tier    string `json:"tier"`
	Address string `json:"address"`
	Allowed bool   `json:"allowed"`
}

// GiveUnclaimedEarningsPayload credits earnings directly (migration hook).
type GiveUnclaimedEarningsPayload struct {
	User   string       `json:"user"`
	Amount *uint256.Int `json:"amount"` // wei
}

// GiveTokensPayload grants spendable INT directly (migration hook).
type GiveTokensPayload struct {
	User   string `json:"user"`
	Amount uint64 `json:"amount"` // whole INT
}

// TokenTransferPayload moves INT on the token ledger.
type TokenTransferPayload struct {
	To     string       `json:"to"`
	Amount *uint256.Int `json:"amount"` // 18 decimals
}

// TokenPausePayload pauses or unpauses the token ledger.
type TokenPausePayload struct {
	Paused bool `json:"paused"`
}

// TokenSetSpecialPayload sets the pause-exempt address.
type TokenSetSpecialPayload struct {
	Address string `json:"address"`
}
