package staking

import (
	"testing"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/internal/testutil"
	"github.com/interlude-gg/interlude-chain/vm/modules/earnings"
)

const (
	owner = "owner-pubkey"
	alice = "alice-pubkey"
	bob   = "bob-pubkey"
)

// newStakingState seeds the platform and gives each named user a position
// with spendable INT, as if they had bought into the sale.
func newStakingState(t *testing.T, tokens uint64, users ...string) core.State {
	t.Helper()
	st := testutil.NewStateDB()
	p := testutil.DevPlatform(owner)
	for _, u := range users {
		pos := core.NewPosition(u, p.AccumulatedCro)
		pos.SpendableTokens = tokens
		p.RegisterUser(u)
		if err := st.SetPosition(pos); err != nil {
			t.Fatal(err)
		}
	}
	if err := testutil.SeedPlatform(st, p); err != nil {
		t.Fatal(err)
	}
	return st
}

func assetOp(t *testing.T, st core.State, typ core.TxType, from string, index int, qty uint64) error {
	t.Helper()
	ctx, payload, err := testutil.TxContext(st, typ, from, nil, core.AssetOpPayload{Index: index, Quantity: qty})
	if err != nil {
		t.Fatal(err)
	}
	switch typ {
	case core.TxBuyGem:
		return handleBuyGem(ctx, payload)
	case core.TxSellGem:
		return handleSellGem(ctx, payload)
	case core.TxBuyCrystal:
		return handleBuyCrystal(ctx, payload)
	case core.TxSellCrystal:
		return handleSellCrystal(ctx, payload)
	}
	t.Fatalf("unexpected tx type %s", typ)
	return nil
}

func TestBuyGem(t *testing.T) {
	st := newStakingState(t, 20_000, alice)

	// Obsidian: power 100, price 5000 INT. Two of them.
	if err := assetOp(t, st, core.TxBuyGem, alice, 0, 2); err != nil {
		t.Fatalf("buy gem: %v", err)
	}

	pos, _ := st.GetPosition(alice)
	if pos.SpendableTokens != 10_000 {
		t.Errorf("spendable: got %d want 10000", pos.SpendableTokens)
	}
	if pos.Gems[0] != 2 || pos.GemPower != 200 {
		t.Errorf("holdings: gems=%v power=%d", pos.Gems, pos.GemPower)
	}

	p, _ := st.GetPlatform()
	if p.TotalGemPower != 200 {
		t.Errorf("total gem power: got %d want 200", p.TotalGemPower)
	}
	if p.TotalIntInGems != 10_001 { // denominator seeded at 1
		t.Errorf("total INT in gems: got %d want 10001", p.TotalIntInGems)
	}
}

func TestBuyGemInsufficientTokens(t *testing.T) {
	st := newStakingState(t, 4_999, alice)
	if err := assetOp(t, st, core.TxBuyGem, alice, 0, 1); err == nil {
		t.Error("purchase above balance accepted")
	}
}

func TestSellGemRoundTrip(t *testing.T) {
	st := newStakingState(t, 10_000, alice)
	if err := assetOp(t, st, core.TxBuyGem, alice, 0, 2); err != nil {
		t.Fatal(err)
	}
	if err := assetOp(t, st, core.TxSellGem, alice, 0, 2); err != nil {
		t.Fatalf("sell gem: %v", err)
	}

	pos, _ := st.GetPosition(alice)
	if pos.SpendableTokens != 10_000 || pos.GemPower != 0 || pos.Gems[0] != 0 {
		t.Errorf("round trip left spendable=%d power=%d gems=%v", pos.SpendableTokens, pos.GemPower, pos.Gems)
	}
	p, _ := st.GetPlatform()
	if p.TotalGemPower != 0 || p.TotalIntInGems != 1 {
		t.Errorf("aggregates not restored: power=%d int=%d", p.TotalGemPower, p.TotalIntInGems)
	}
}

func TestSellGemWithoutHolding(t *testing.T) {
	st := newStakingState(t, 10_000, alice)
	if err := assetOp(t, st, core.TxSellGem, alice, 0, 1); err == nil {
		t.Error("sale of unheld gem accepted")
	}
}

func TestBuyCrystalScaledCost(t *testing.T) {
	st := newStakingState(t, 20_000, alice)

	// Fresh pools (1/1): scaled cost equals the raw 5000.
	if err := assetOp(t, st, core.TxBuyCrystal, alice, 0, 1); err != nil {
		t.Fatalf("buy crystal: %v", err)
	}
	pos, _ := st.GetPosition(alice)
	if pos.SpendableTokens != 15_000 {
		t.Errorf("spendable: got %d want 15000", pos.SpendableTokens)
	}
	p, _ := st.GetPlatform()
	if p.TotalIntInCrystals != 5_001 || p.TotalCrystalPriceUnits != 5_001 {
		t.Errorf("crystal pools: int=%d units=%d", p.TotalIntInCrystals, p.TotalCrystalPriceUnits)
	}
	if p.TotalCrystalPower != 100 {
		t.Errorf("crystal power: got %d want 100", p.TotalCrystalPower)
	}

	// Pools still at parity: the next purchase costs the raw price again.
	if err := assetOp(t, st, core.TxBuyCrystal, alice, 0, 1); err != nil {
		t.Fatal(err)
	}
	pos, _ = st.GetPosition(alice)
	if pos.SpendableTokens != 10_000 {
		t.Errorf("spendable after second buy: got %d want 10000", pos.SpendableTokens)
	}
}

func TestMintCrystalDilutesPrice(t *testing.T) {
	st := newStakingState(t, 20_000, alice)

	// Owner mints bob a Rhodonite: power and price units enter the pools but
	// no INT does.
	ctx, payload, err := testutil.TxContext(st, core.TxMintCrystal, owner, nil, core.MintCrystalPayload{
		User: bob, Index: 0, Quantity: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := handleMintCrystal(ctx, payload); err != nil {
		t.Fatalf("mint: %v", err)
	}

	p, _ := st.GetPlatform()
	if p.TotalIntInCrystals != 1 {
		t.Errorf("mint added INT to the pool: %d", p.TotalIntInCrystals)
	}
	if p.TotalCrystalPriceUnits != 5_001 || p.TotalCrystalPower != 100 {
		t.Errorf("mint pools: units=%d power=%d", p.TotalCrystalPriceUnits, p.TotalCrystalPower)
	}
	bobPos, _ := st.GetPosition(bob)
	if bobPos == nil || bobPos.Crystals[0] != 1 || bobPos.CrystalPower != 100 {
		t.Fatalf("minted position wrong: %+v", bobPos)
	}
	if bobPos.SpendableTokens != 0 {
		t.Errorf("mint granted spendable tokens: %d", bobPos.SpendableTokens)
	}

	// Alice now buys at the diluted price: 1 × 5000 / 5001 = 0 INT.
	if err := assetOp(t, st, core.TxBuyCrystal, alice, 0, 1); err != nil {
		t.Fatal(err)
	}
	alicePos, _ := st.GetPosition(alice)
	if alicePos.SpendableTokens != 20_000 {
		t.Errorf("diluted purchase should cost 0, spendable=%d", alicePos.SpendableTokens)
	}
}

func TestMintCrystalOwnerOnly(t *testing.T) {
	st := newStakingState(t, 0, alice)
	ctx, payload, err := testutil.TxContext(st, core.TxMintCrystal, alice, nil, core.MintCrystalPayload{
		User: alice, Index: 0, Quantity: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := handleMintCrystal(ctx, payload); err == nil {
		t.Error("non-owner mint accepted")
	}
}

func TestSellCrystalUnderflowGuards(t *testing.T) {
	st := newStakingState(t, 20_000, alice)
	if err := assetOp(t, st, core.TxSellCrystal, alice, 0, 1); err == nil {
		t.Error("sale of unheld crystal accepted")
	}

	if err := assetOp(t, st, core.TxBuyCrystal, alice, 0, 1); err != nil {
		t.Fatal(err)
	}
	if err := assetOp(t, st, core.TxSellCrystal, alice, 0, 1); err != nil {
		t.Fatalf("sell crystal: %v", err)
	}
	pos, _ := st.GetPosition(alice)
	if pos.SpendableTokens != 20_000 || pos.CrystalPower != 0 {
		t.Errorf("round trip left spendable=%d power=%d", pos.SpendableTokens, pos.CrystalPower)
	}
}

func TestStakingRequiresPosition(t *testing.T) {
	st := newStakingState(t, 10_000, alice)
	if err := assetOp(t, st, core.TxBuyGem, bob, 0, 1); err == nil {
		t.Error("stranger allowed to stake")
	}
}

func TestStakingRejectedDuringDistribution(t *testing.T) {
	st := newStakingState(t, 10_000, alice)
	p, _ := st.GetPlatform()
	p.Cursor = core.DistributionCursor{Active: true}
	_ = st.SetPlatform(p)

	if err := assetOp(t, st, core.TxBuyGem, alice, 0, 1); err != earnings.ErrDistributionActive {
		t.Errorf("got %v want ErrDistributionActive", err)
	}
}

// TestSettleBeforePowerChange pins the distribution invariant: pool growth is
// priced at the shares in force while it happened, so a later stake change by
// someone else cannot re-price it.
func TestSettleBeforePowerChange(t *testing.T) {
	st := newStakingState(t, 20_000, alice, bob)
	if err := assetOp(t, st, core.TxBuyGem, alice, 0, 1); err != nil {
		t.Fatal(err)
	}

	// The pool grows while alice is the only staker.
	p, _ := st.GetPlatform()
	p.AccumulatedCro.Add(p.AccumulatedCro, testutil.Wei(10))
	_ = st.SetPlatform(p)

	alicePos, _ := st.GetPosition(alice)
	expected := earnings.Pending(p, alicePos)
	if expected.IsZero() {
		t.Fatal("expected nonzero pending for the lone staker")
	}

	// Bob stakes: the handler must settle alice at her pre-change share.
	if err := assetOp(t, st, core.TxBuyGem, bob, 0, 1); err != nil {
		t.Fatal(err)
	}

	alicePos, _ = st.GetPosition(alice)
	if alicePos.UnclaimedEarnings.Cmp(expected) != 0 {
		t.Errorf("settled earnings: got %s want %s", alicePos.UnclaimedEarnings, expected)
	}
	p, _ = st.GetPlatform()
	if alicePos.LastClaimedAccumulation.Cmp(p.AccumulatedCro) != 0 {
		t.Error("marker not advanced to current pool")
	}
	// Nothing further pends at the new share until the pool grows again.
	if pend := earnings.Pending(p, alicePos); !pend.IsZero() {
		t.Errorf("residual pending after settle: %s", pend)
	}
}
