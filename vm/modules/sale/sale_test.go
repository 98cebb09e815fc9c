package sale

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
	"github.com/interlude-gg/interlude-chain/internal/testutil"
)

const (
	owner  = "owner-pubkey"
	buyer  = "buyer-pubkey"
	friend = "friend-pubkey"
)

func newSaleState(t *testing.T) core.State {
	t.Helper()
	st := testutil.NewStateDB()
	if err := testutil.SeedPlatform(st, testutil.DevPlatform(owner)); err != nil {
		t.Fatal(err)
	}
	if err := testutil.Fund(st, buyer, testutil.Wei(1_000)); err != nil {
		t.Fatal(err)
	}
	return st
}

func buy(t *testing.T, st core.State, from string, value *uint256.Int, referrer string) error {
	t.Helper()
	ctx, payload, err := testutil.TxContext(st, core.TxBuyToken, from, value, core.BuyTokenPayload{Referrer: referrer})
	if err != nil {
		t.Fatal(err)
	}
	return handleBuyToken(ctx, payload)
}

func TestBuyToken(t *testing.T) {
	st := newSaleState(t)

	// 1 CRO at 0.0025 CRO/token buys 400 tokens.
	if err := buy(t, st, buyer, testutil.Wei(1), ""); err != nil {
		t.Fatalf("buy: %v", err)
	}

	acc, _ := st.GetAccount(buyer)
	if want := testutil.Wei(999); acc.Balance.Cmp(want) != 0 {
		t.Errorf("buyer balance: got %s want %s", acc.Balance, want)
	}
	vault, _ := st.GetAccount(core.VaultAddress)
	if want := testutil.Wei(1); vault.Balance.Cmp(want) != 0 {
		t.Errorf("vault balance: got %s want %s", vault.Balance, want)
	}

	p, _ := st.GetPlatform()
	if p.TotalSold != 400 {
		t.Errorf("total sold: got %d want 400", p.TotalSold)
	}
	// Half of the payment funds the earnings pool.
	halfWei := uint256.NewInt(500_000_000_000_000_000)
	if p.AccumulatedCro.Cmp(halfWei) != 0 {
		t.Errorf("accumulated pool: got %s want %s", p.AccumulatedCro, halfWei)
	}
	if len(p.Users) != 1 || p.Users[0] != buyer {
		t.Errorf("users: got %v want [%s]", p.Users, buyer)
	}

	pos, _ := st.GetPosition(buyer)
	if pos.SpendableTokens != 400 {
		t.Errorf("spendable tokens: got %d want 400", pos.SpendableTokens)
	}
	if pos.TotalInvested.Cmp(testutil.Wei(1)) != 0 {
		t.Errorf("total invested: got %s", pos.TotalInvested)
	}

	tok, _ := st.GetTokenAccount(buyer)
	if want := new(uint256.Int).Mul(uint256.NewInt(400), uint256.NewInt(1_000_000_000_000_000_000)); tok.Balance.Cmp(want) != 0 {
		t.Errorf("token balance: got %s want %s", tok.Balance, want)
	}
}

func TestBuyTokenSaleClosed(t *testing.T) {
	st := newSaleState(t)
	p, _ := st.GetPlatform()
	p.StartDate = 0
	_ = st.SetPlatform(p)

	if err := buy(t, st, buyer, testutil.Wei(1), ""); err == nil {
		t.Error("purchase accepted while sale closed")
	}
}

func TestBuyTokenNotYetOpen(t *testing.T) {
	st := newSaleState(t)
	p, _ := st.GetPlatform()
	p.StartDate = 1 << 40 // far future
	_ = st.SetPlatform(p)

	if err := buy(t, st, buyer, testutil.Wei(1), ""); err == nil {
		t.Error("purchase accepted before start date")
	}
}

func TestBuyTokenWhitelistGate(t *testing.T) {
	st := newSaleState(t)
	p, _ := st.GetPlatform()
	p.OnlyWhitelisted = true
	_ = st.SetPlatform(p)

	if err := buy(t, st, buyer, testutil.Wei(1), ""); err == nil {
		t.Fatal("unlisted buyer accepted")
	}

	p, _ = st.GetPlatform()
	p.SetWhitelisted(core.TierGeneral, buyer, true)
	_ = st.SetPlatform(p)
	if err := buy(t, st, buyer, testutil.Wei(1), ""); err != nil {
		t.Errorf("whitelisted buyer rejected: %v", err)
	}

	// Partner listing satisfies the gate too.
	p, _ = st.GetPlatform()
	p.SetWhitelisted(core.TierGeneral, buyer, false)
	p.SetWhitelisted(core.TierPartner, buyer, true)
	_ = st.SetPlatform(p)
	if err := buy(t, st, buyer, testutil.Wei(1), ""); err != nil {
		t.Errorf("partner buyer rejected: %v", err)
	}
}

func TestBuyTokenDustRejected(t *testing.T) {
	st := newSaleState(t)
	// One wei is below any step price, so the quote is zero.
	if err := buy(t, st, buyer, uint256.NewInt(1), ""); err == nil {
		t.Error("dust purchase accepted")
	}
	if err := buy(t, st, buyer, nil, ""); err == nil {
		t.Error("payment-less purchase accepted")
	}
}

func TestBuyTokenReferral(t *testing.T) {
	st := newSaleState(t)

	// 100 CRO buys 40,000 tokens; 5% each way.
	if err := buy(t, st, buyer, testutil.Wei(100), friend); err != nil {
		t.Fatalf("buy: %v", err)
	}

	refPos, _ := st.GetPosition(friend)
	if refPos == nil {
		t.Fatal("referrer position not created")
	}
	if want := testutil.Wei(5); refPos.UnclaimedCroBonus.Cmp(want) != 0 {
		t.Errorf("referrer CRO bonus: got %s want %s", refPos.UnclaimedCroBonus, want)
	}
	if refPos.UnclaimedIntBonus != 2_000 {
		t.Errorf("referrer INT bonus: got %d want 2000", refPos.UnclaimedIntBonus)
	}

	pos, _ := st.GetPosition(buyer)
	if pos.SpendableTokens != 42_000 {
		t.Errorf("buyer tokens with referral extra: got %d want 42000", pos.SpendableTokens)
	}
	if pos.Referrer != friend {
		t.Errorf("referrer not recorded: got %q", pos.Referrer)
	}

	// A later purchase with a different referrer keeps the first one.
	if err := buy(t, st, buyer, testutil.Wei(100), "someone-else"); err != nil {
		t.Fatalf("second buy: %v", err)
	}
	pos, _ = st.GetPosition(buyer)
	if pos.Referrer != friend {
		t.Errorf("referrer overwritten: got %q", pos.Referrer)
	}
}

func TestBuyTokenSelfReferralIgnored(t *testing.T) {
	st := newSaleState(t)
	if err := buy(t, st, buyer, testutil.Wei(100), buyer); err != nil {
		t.Fatalf("buy: %v", err)
	}
	pos, _ := st.GetPosition(buyer)
	if pos.SpendableTokens != 40_000 {
		t.Errorf("self-referral granted extra tokens: got %d want 40000", pos.SpendableTokens)
	}
	if pos.Referrer != "" {
		t.Errorf("self recorded as referrer: %q", pos.Referrer)
	}
}

func TestBuyTokenRestrictedReferral(t *testing.T) {
	st := newSaleState(t)
	p, _ := st.GetPlatform()
	p.ReferralRestricted = true
	_ = st.SetPlatform(p)

	// friend never invested and is not a partner: no bonus.
	if err := buy(t, st, buyer, testutil.Wei(100), friend); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if refPos, _ := st.GetPosition(friend); refPos != nil {
		t.Error("ineligible referrer position created")
	}
	pos, _ := st.GetPosition(buyer)
	if pos.SpendableTokens != 40_000 {
		t.Errorf("buyer got referral extra from ineligible referrer: %d", pos.SpendableTokens)
	}

	// Partner-whitelisted referrers stay eligible under restriction.
	p, _ = st.GetPlatform()
	p.SetWhitelisted(core.TierPartner, friend, true)
	_ = st.SetPlatform(p)
	if err := buy(t, st, buyer, testutil.Wei(100), friend); err != nil {
		t.Fatalf("second buy: %v", err)
	}
	refPos, _ := st.GetPosition(friend)
	if refPos == nil || refPos.UnclaimedCroBonus.IsZero() {
		t.Error("partner referrer earned no bonus")
	}
}

func TestEligibleReferrer(t *testing.T) {
	st := newSaleState(t)
	p, _ := st.GetPlatform()

	if ok, _ := EligibleReferrer(st, p, ""); ok {
		t.Error("empty address eligible")
	}
	if ok, _ := EligibleReferrer(st, p, friend); !ok {
		t.Error("unrestricted program should accept anyone")
	}

	p.ReferralRestricted = true
	if ok, _ := EligibleReferrer(st, p, friend); ok {
		t.Error("uninvested referrer eligible under restriction")
	}

	// An invested referrer qualifies.
	if err := buy(t, st, buyer, testutil.Wei(1), ""); err != nil {
		t.Fatal(err)
	}
	if ok, _ := EligibleReferrer(st, p, buyer); !ok {
		t.Error("invested referrer not eligible")
	}
}
