package core_test

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/wallet"
)

const chainID = "interlude-test"

func TestTransactionSignVerify(t *testing.T) {
	w, err := wallet.Generate()
	if err != nil {
		t.Fatal(err)
	}
	tx, err := w.Transfer(chainID, "recipient", uint256.NewInt(100), 0, 1)
	if err != nil {
		t.Fatal(err)
	}

	if tx.ID == "" || tx.ID != tx.Hash() {
		t.Error("ID not set to the body hash")
	}
	if err := tx.Verify(); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
}

func TestTransactionTamperDetected(t *testing.T) {
	w, _ := wallet.Generate()
	tx, _ := w.Transfer(chainID, "recipient", uint256.NewInt(100), 0, 1)

	tx.Fee = 0
	if err := tx.Verify(); err == nil {
		t.Error("fee tamper passed verification")
	}
}

func TestTransactionValueIsSigned(t *testing.T) {
	w, _ := wallet.Generate()
	tx, err := w.BuyToken(chainID, "", uint256.NewInt(1_000), 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Verify(); err != nil {
		t.Fatalf("valid payable tx rejected: %v", err)
	}

	tx.Value = uint256.NewInt(1)
	if err := tx.Verify(); err == nil {
		t.Error("value tamper passed verification")
	}
}

func TestTransactionChainIDIsSigned(t *testing.T) {
	w, _ := wallet.Generate()
	tx, _ := w.Transfer(chainID, "recipient", uint256.NewInt(1), 0, 1)

	tx.ChainID = "other-chain"
	if err := tx.Verify(); err == nil {
		t.Error("chain ID tamper passed verification")
	}
}

func TestAttachedValueNeverNil(t *testing.T) {
	tx := &core.Transaction{}
	if v := tx.AttachedValue(); v == nil || !v.IsZero() {
		t.Errorf("AttachedValue on bare tx: %v", v)
	}
}

func TestTransactionWrongKeyRejected(t *testing.T) {
	w1, _ := wallet.Generate()
	w2, _ := wallet.Generate()
	tx, _ := w1.Transfer(chainID, "recipient", uint256.NewInt(1), 0, 1)

	// Claiming someone else's address invalidates the signature.
	tx.From = w2.Address()
	if err := tx.Verify(); err == nil {
		t.Error("stolen from-address passed verification")
	}
}
