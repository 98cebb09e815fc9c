package wallet

import (
	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/crypto"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// Address returns the hex-encoded ed25519 public key, which doubles as the
// account address.
func (w *Wallet) Address() string {
	return w.pub.Hex()
}

// NewTx creates a signed transaction. chainID must match the target network
// and nonce must match the account's current nonce.
func (w *Wallet) NewTx(chainID string, typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(typ, w.pub.Hex(), chainID, nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// NewPayableTx creates a signed transaction carrying value wei of CRO.
func (w *Wallet) NewPayableTx(chainID string, typ core.TxType, nonce, fee uint64, value *uint256.Int, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(typ, w.pub.Hex(), chainID, nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Value = value
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed native CRO transfer.
func (w *Wallet) Transfer(chainID, to string, amount *uint256.Int, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTransfer, nonce, fee, core.TransferPayload{
		To:     to,
		Amount: amount,
	})
}

// BuyToken creates a signed token purchase carrying value wei of CRO.
// referrer may be empty.
func (w *Wallet) BuyToken(chainID, referrer string, value *uint256.Int, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewPayableTx(chainID, core.TxBuyToken, nonce, fee, value, core.BuyTokenPayload{
		Referrer: referrer,
	})
}

// BuyGem creates a signed gem purchase.
func (w *Wallet) BuyGem(chainID string, index int, quantity, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxBuyGem, nonce, fee, core.AssetOpPayload{Index: index, Quantity: quantity})
}

// SellGem creates a signed gem sale.
func (w *Wallet) SellGem(chainID string, index int, quantity, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxSellGem, nonce, fee, core.AssetOpPayload{Index: index, Quantity: quantity})
}

// BuyCrystal creates a signed crystal purchase.
func (w *Wallet) BuyCrystal(chainID string, index int, quantity, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxBuyCrystal, nonce, fee, core.AssetOpPayload{Index: index, Quantity: quantity})
}

// SellCrystal creates a signed crystal sale.
func (w *Wallet) SellCrystal(chainID string, index int, quantity, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxSellCrystal, nonce, fee, core.AssetOpPayload{Index: index, Quantity: quantity})
}

// ClaimEarnings creates a signed earnings claim.
func (w *Wallet) ClaimEarnings(chainID string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxClaimEarnings, nonce, fee, struct{}{})
}

// ClaimReferralBonus creates a signed referral bonus claim.
func (w *Wallet) ClaimReferralBonus(chainID string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxClaimReferralBonus, nonce, fee, struct{}{})
}

// TokenTransfer creates a signed INT transfer on the token ledger.
// amount uses 18 decimals.
func (w *Wallet) TokenTransfer(chainID, to string, amount *uint256.Int, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTokenTransfer, nonce, fee, core.TokenTransferPayload{
		To:     to,
		Amount: amount,
	})
}
