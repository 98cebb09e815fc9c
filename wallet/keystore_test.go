package wallet

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
)

func TestKeystoreRoundTrip(t *testing.T) {
	w, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "validator.key")

	if err := SaveKey(path, "hunter2", w.PrivKey()); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadKey(path, "hunter2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(loaded, w.PrivKey()) {
		t.Error("loaded key differs from saved key")
	}
	if loaded.Public().Hex() != w.Address() {
		t.Error("loaded key derives a different address")
	}
}

func TestKeystoreWrongPassword(t *testing.T) {
	w, _ := Generate()
	path := filepath.Join(t.TempDir(), "validator.key")
	if err := SaveKey(path, "correct", w.PrivKey()); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadKey(path, "wrong"); err == nil {
		t.Error("wrong password accepted")
	}
}

func TestKeystoreMissingFile(t *testing.T) {
	if _, err := LoadKey(filepath.Join(t.TempDir(), "absent.key"), "pw"); err == nil {
		t.Error("missing keystore loaded")
	}
}

func TestWalletSignsUsableTransactions(t *testing.T) {
	w, err := Generate()
	if err != nil {
		t.Fatal(err)
	}

	tx, err := w.BuyGem("interlude-test", 2, 3, 7, 1)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Type != core.TxBuyGem || tx.From != w.Address() || tx.Nonce != 7 {
		t.Errorf("tx fields: %+v", tx)
	}
	if err := tx.Verify(); err != nil {
		t.Errorf("verify: %v", err)
	}

	payable, err := w.BuyToken("interlude-test", "friend", uint256.NewInt(42), 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if payable.AttachedValue().Uint64() != 42 {
		t.Errorf("attached value: %s", payable.AttachedValue())
	}
	if err := payable.Verify(); err != nil {
		t.Errorf("verify payable: %v", err)
	}
}
