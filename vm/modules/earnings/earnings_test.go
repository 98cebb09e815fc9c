package earnings

import (
	"fmt"
	"testing"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/internal/testutil"
)

const owner = "owner-pubkey"

// stakedState seeds n users each holding the same gem stake, so every user
// carries an equal share of the pool.
func stakedState(t *testing.T, n int) (core.State, []string) {
	t.Helper()
	st := testutil.NewStateDB()
	p := testutil.DevPlatform(owner)

	users := make([]string, n)
	for i := range users {
		users[i] = fmt.Sprintf("user-%03d", i)
		pos := core.NewPosition(users[i], p.AccumulatedCro)
		pos.GemPower = 100
		pos.Gems = []uint64{1_000}
		p.RegisterUser(users[i])
		if err := st.SetPosition(pos); err != nil {
			t.Fatal(err)
		}
		p.TotalGemPower += 100
		p.TotalIntInGems += 5_000_000
	}
	if err := testutil.SeedPlatform(st, p); err != nil {
		t.Fatal(err)
	}
	return st, users
}

func growPool(t *testing.T, st core.State, wei *uint256.Int) *core.Platform {
	t.Helper()
	p, err := st.GetPlatform()
	if err != nil {
		t.Fatal(err)
	}
	p.AccumulatedCro.Add(p.AccumulatedCro, wei)
	if err := st.SetPlatform(p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestShareZeroPower(t *testing.T) {
	p := testutil.DevPlatform(owner)
	pos := core.NewPosition("nobody", p.AccumulatedCro)
	if s := Share(p, pos); !s.IsZero() {
		t.Errorf("powerless share: got %s want 0", s)
	}
}

func TestShareBlended(t *testing.T) {
	p := testutil.DevPlatform(owner)
	p.TotalGemPower = 200
	p.TotalIntInGems = 10_001
	p.TotalCrystalPower = 100
	p.TotalIntInCrystals = 5_001

	pos := core.NewPosition("staker", p.AccumulatedCro)
	pos.GemPower = 100
	pos.CrystalPower = 100

	//	gem:     10001 × 100 × P / (200 × 15002)
	//	crystal:  5001 × 100 × P / (100 × 15002)
	want := uint256.NewInt(0)
	gem := uint256.NewInt(10_001 * 100)
	gem.Mul(gem, uint256.NewInt(Precision))
	gem.Div(gem, uint256.NewInt(200*15_002))
	crystal := uint256.NewInt(5_001 * 100)
	crystal.Mul(crystal, uint256.NewInt(Precision))
	crystal.Div(crystal, uint256.NewInt(100*15_002))
	want.Add(gem, crystal)

	if got := Share(p, pos); got.Cmp(want) != 0 {
		t.Errorf("share: got %s want %s", got, want)
	}
}

func TestPendingEdgeCases(t *testing.T) {
	st, users := stakedState(t, 1)
	p, _ := st.GetPlatform()

	if pend := Pending(p, nil); !pend.IsZero() {
		t.Error("nil position pends")
	}
	pos, _ := st.GetPosition(users[0])
	if pend := Pending(p, pos); !pend.IsZero() {
		t.Error("pending before any pool growth")
	}

	// A marker ahead of the pool (possible after give_unclaimed_earnings
	// imports) clamps to zero rather than underflowing.
	pos.LastClaimedAccumulation = testutil.Wei(1_000_000)
	if pend := Pending(p, pos); !pend.IsZero() {
		t.Error("marker ahead of pool pends")
	}
}

func TestEqualStakersSplitPool(t *testing.T) {
	st, users := stakedState(t, 4)
	delta := testutil.Wei(10)
	p := growPool(t, st, delta)

	total := uint256.NewInt(0)
	var first *uint256.Int
	for _, u := range users {
		pos, _ := st.GetPosition(u)
		pend := Pending(p, pos)
		if first == nil {
			first = pend.Clone()
		} else if pend.Cmp(first) != 0 {
			t.Errorf("unequal pending for equal stakes: %s vs %s", pend, first)
		}
		total.Add(total, pend)
	}

	if total.Cmp(delta) > 0 {
		t.Fatalf("distributed %s exceeds pool delta %s", total, delta)
	}
	// Truncation shortfall stays under 3 ppm of the delta.
	shortfall := new(uint256.Int).Sub(delta, total)
	limit := new(uint256.Int).Mul(delta, uint256.NewInt(3))
	limit.Div(limit, uint256.NewInt(1_000_000))
	if shortfall.Cmp(limit) > 0 {
		t.Errorf("shortfall %s above 3ppm limit %s", shortfall, limit)
	}
}

func TestSettle(t *testing.T) {
	st, users := stakedState(t, 3)
	p := growPool(t, st, testutil.Wei(9))

	want := make(map[string]*uint256.Int)
	for _, u := range users {
		pos, _ := st.GetPosition(u)
		want[u] = Pending(p, pos)
	}

	if err := Settle(st, p); err != nil {
		t.Fatal(err)
	}
	for _, u := range users {
		pos, _ := st.GetPosition(u)
		if pos.UnclaimedEarnings.Cmp(want[u]) != 0 {
			t.Errorf("%s settled %s want %s", u, pos.UnclaimedEarnings, want[u])
		}
		if pos.LastClaimedAccumulation.Cmp(p.AccumulatedCro) != 0 {
			t.Errorf("%s marker not advanced", u)
		}
		if pend := Pending(p, pos); !pend.IsZero() {
			t.Errorf("%s still pending %s after settle", u, pend)
		}
	}
}

func TestClaim(t *testing.T) {
	st, users := stakedState(t, 1)
	p := growPool(t, st, testutil.Wei(10))
	if err := testutil.Fund(st, core.VaultAddress, testutil.Wei(10)); err != nil {
		t.Fatal(err)
	}

	pos, _ := st.GetPosition(users[0])
	want := Pending(p, pos)

	ctx, payload, err := testutil.TxContext(st, core.TxClaimEarnings, users[0], nil, struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if err := handleClaim(ctx, payload); err != nil {
		t.Fatalf("claim: %v", err)
	}

	acc, _ := st.GetAccount(users[0])
	if acc.Balance.Cmp(want) != 0 {
		t.Errorf("claimed: got %s want %s", acc.Balance, want)
	}
	pos, _ = st.GetPosition(users[0])
	if !pos.UnclaimedEarnings.IsZero() {
		t.Error("unclaimed not cleared")
	}
	if pos.TotalClaimed.Cmp(want) != 0 {
		t.Errorf("total claimed: got %s want %s", pos.TotalClaimed, want)
	}

	// A second claim with no new pool growth transfers nothing.
	if err := handleClaim(ctx, payload); err != nil {
		t.Fatalf("second claim: %v", err)
	}
	acc, _ = st.GetAccount(users[0])
	if acc.Balance.Cmp(want) != 0 {
		t.Error("idle claim moved funds")
	}
}

func TestClaimWithoutPosition(t *testing.T) {
	st, _ := stakedState(t, 1)
	ctx, payload, err := testutil.TxContext(st, core.TxClaimEarnings, "stranger", nil, struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if err := handleClaim(ctx, payload); err != nil {
		t.Errorf("claim by stranger should no-op, got %v", err)
	}
	acc, _ := st.GetAccount("stranger")
	if !acc.Balance.IsZero() {
		t.Error("stranger claim moved funds")
	}
}

func TestClaimBonus(t *testing.T) {
	st, users := stakedState(t, 1)
	if err := testutil.Fund(st, core.VaultAddress, testutil.Wei(5)); err != nil {
		t.Fatal(err)
	}
	pos, _ := st.GetPosition(users[0])
	pos.UnclaimedCroBonus = testutil.Wei(2)
	pos.UnclaimedIntBonus = 50
	_ = st.SetPosition(pos)

	ctx, payload, err := testutil.TxContext(st, core.TxClaimReferralBonus, users[0], nil, struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if err := handleClaimBonus(ctx, payload); err != nil {
		t.Fatalf("claim bonus: %v", err)
	}

	acc, _ := st.GetAccount(users[0])
	if acc.Balance.Cmp(testutil.Wei(2)) != 0 {
		t.Errorf("CRO bonus: got %s want %s", acc.Balance, testutil.Wei(2))
	}
	pos, _ = st.GetPosition(users[0])
	if pos.SpendableTokens != 50 || pos.UnclaimedIntBonus != 0 || !pos.UnclaimedCroBonus.IsZero() {
		t.Errorf("bonus bookkeeping: spendable=%d int=%d cro=%s",
			pos.SpendableTokens, pos.UnclaimedIntBonus, pos.UnclaimedCroBonus)
	}
	tok, _ := st.GetTokenAccount(users[0])
	if want := new(uint256.Int).Mul(uint256.NewInt(50), uint256.NewInt(1_000_000_000_000_000_000)); tok.Balance.Cmp(want) != 0 {
		t.Errorf("minted bonus: got %s want %s", tok.Balance, want)
	}
}

func TestBatchRound(t *testing.T) {
	st, users := stakedState(t, 120)
	p := growPool(t, st, testutil.Wei(120))

	want := make(map[string]*uint256.Int)
	for _, u := range users {
		pos, _ := st.GetPosition(u)
		want[u] = Pending(p, pos)
	}

	initCtx, initPayload, err := testutil.TxContext(st, core.TxInitEarningsUpdate, owner, nil, struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if err := handleInitUpdate(initCtx, initPayload); err != nil {
		t.Fatalf("init round: %v", err)
	}
	if err := handleInitUpdate(initCtx, initPayload); err == nil {
		t.Error("double init accepted")
	}

	// 120 users at a chunk of 50 need three sweeps.
	for i := 0; i < 3; i++ {
		ctx, payload, err := testutil.TxContext(st, core.TxUpdateAllEarnings, owner, nil, struct{}{})
		if err != nil {
			t.Fatal(err)
		}
		if err := handleUpdateAll(ctx, payload); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
		p, _ = st.GetPlatform()
		wantIdx := (i + 1) * core.EarningsBatchChunk
		if wantIdx >= len(users) {
			if p.Cursor.Active {
				t.Errorf("round still active after final sweep")
			}
		} else if !p.Cursor.Active || p.Cursor.Index != wantIdx {
			t.Errorf("sweep %d cursor: %+v", i, p.Cursor)
		}
	}

	// The batch sweep settles exactly what continuous settlement would.
	for _, u := range users {
		pos, _ := st.GetPosition(u)
		if pos.UnclaimedEarnings.Cmp(want[u]) != 0 {
			t.Errorf("%s batch settled %s want %s", u, pos.UnclaimedEarnings, want[u])
		}
	}

	ctx, payload, err := testutil.TxContext(st, core.TxUpdateAllEarnings, owner, nil, struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if err := handleUpdateAll(ctx, payload); err == nil {
		t.Error("sweep accepted with no round in progress")
	}
}

func TestBatchRoundAdminOnly(t *testing.T) {
	st, users := stakedState(t, 1)
	ctx, payload, err := testutil.TxContext(st, core.TxInitEarningsUpdate, users[0], nil, struct{}{})
	if err != nil {
		t.Fatal(err)
	}
	if err := handleInitUpdate(ctx, payload); err == nil {
		t.Error("non-admin started a round")
	}
}

func TestGuardRound(t *testing.T) {
	p := testutil.DevPlatform(owner)
	if err := GuardRound(p); err != nil {
		t.Errorf("idle guard: %v", err)
	}
	p.Cursor.Active = true
	if err := GuardRound(p); err != ErrDistributionActive {
		t.Errorf("active guard: got %v", err)
	}
}
