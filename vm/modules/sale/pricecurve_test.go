package sale

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/interlude-gg/interlude-chain/core"
)

func ladder() []core.PricingStep {
	return []core.PricingStep{
		{Size: 40_000_000, Price: uint256.NewInt(2_500_000_000_000_000)},
		{Size: 40_000_000, Price: uint256.NewInt(5_000_000_000_000_000)},
		{Size: 40_000_000, Price: uint256.NewInt(10_000_000_000_000_000)},
	}
}

func cro(n uint64) *uint256.Int {
	w := uint256.NewInt(n)
	return w.Mul(w, uint256.NewInt(1_000_000_000_000_000_000))
}

func TestQuoteFirstStep(t *testing.T) {
	// 50,000 CRO at 0.0025 CRO/token buys 20,000,000 tokens.
	got := Quote(ladder(), 0, cro(50_000))
	if got != 20_000_000 {
		t.Errorf("Quote: got %d want 20000000", got)
	}
}

func TestQuoteSpillsIntoNextStep(t *testing.T) {
	// 150,000 CRO: the first step's 40M tokens cost 100,000 CRO, and the
	// remaining 50,000 buys 10M more at the doubled price.
	got := Quote(ladder(), 0, cro(150_000))
	if got != 50_000_000 {
		t.Errorf("Quote: got %d want 50000000", got)
	}
}

func TestQuoteSkipsSoldSteps(t *testing.T) {
	// With the first step sold out the same payment buys at the second price.
	got := Quote(ladder(), 40_000_000, cro(50_000))
	if got != 10_000_000 {
		t.Errorf("Quote: got %d want 10000000", got)
	}
}

func TestQuoteStraddlesPartiallySoldStep(t *testing.T) {
	// 30M already sold leaves 10M in step one (25,000 CRO); the remaining
	// 25,000 CRO buys 5M at step two.
	got := Quote(ladder(), 30_000_000, cro(50_000))
	if got != 15_000_000 {
		t.Errorf("Quote: got %d want 15000000", got)
	}
}

func TestQuoteTruncatesWithoutRefund(t *testing.T) {
	steps := []core.PricingStep{{Size: 100, Price: uint256.NewInt(10)}}
	// 15 wei buys exactly 1 token; the 5-wei remainder is forfeit.
	if got := Quote(steps, 0, uint256.NewInt(15)); got != 1 {
		t.Errorf("Quote: got %d want 1", got)
	}
	// Below one token's price buys nothing.
	if got := Quote(steps, 0, uint256.NewInt(9)); got != 0 {
		t.Errorf("Quote: got %d want 0", got)
	}
}

func TestQuoteCapsAtLadder(t *testing.T) {
	steps := []core.PricingStep{
		{Size: 100, Price: uint256.NewInt(10)},
		{Size: 100, Price: uint256.NewInt(20)},
	}
	// Far more wei than the ladder holds: only the 200-token supply is sold.
	if got := Quote(steps, 0, uint256.NewInt(1_000_000)); got != 200 {
		t.Errorf("Quote: got %d want 200", got)
	}
	// Sold out entirely.
	if got := Quote(steps, 200, uint256.NewInt(1_000_000)); got != 0 {
		t.Errorf("Quote on sold-out ladder: got %d want 0", got)
	}
}

func TestQuoteZeroValue(t *testing.T) {
	if got := Quote(ladder(), 0, uint256.NewInt(0)); got != 0 {
		t.Errorf("Quote: got %d want 0", got)
	}
	if got := Quote(ladder(), 0, nil); got != 0 {
		t.Errorf("Quote(nil): got %d want 0", got)
	}
}

func TestQuoteMonotonicInValue(t *testing.T) {
	steps := ladder()
	prev := uint64(0)
	for v := uint64(1); v <= 200_000; v += 7_919 {
		got := Quote(steps, 0, cro(v))
		if got < prev {
			t.Fatalf("Quote not monotone: %d CRO bought %d, less than %d", v, got, prev)
		}
		prev = got
	}
}

func TestPhase(t *testing.T) {
	steps := ladder()
	cases := []struct {
		sold uint64
		want uint64
	}{
		{0, 1},
		{39_999_999, 1},
		{40_000_000, 2},
		{79_999_999, 2},
		{80_000_000, 3},
		{120_000_000, 3}, // sold out reports the last phase
	}
	for _, c := range cases {
		if got := Phase(steps, c.sold); got != c.want {
			t.Errorf("Phase(sold=%d): got %d want %d", c.sold, got, c.want)
		}
	}
}

func TestValidateSteps(t *testing.T) {
	if err := ValidateSteps(ladder()); err != nil {
		t.Errorf("valid ladder rejected: %v", err)
	}
	if err := ValidateSteps(nil); err == nil {
		t.Error("empty ladder accepted")
	}
	if err := ValidateSteps([]core.PricingStep{{Size: 0, Price: uint256.NewInt(1)}}); err == nil {
		t.Error("zero-size step accepted")
	}
	if err := ValidateSteps([]core.PricingStep{{Size: 1, Price: uint256.NewInt(0)}}); err == nil {
		t.Error("zero-price step accepted")
	}
	if err := ValidateSteps([]core.PricingStep{
		{Size: 1, Price: uint256.NewInt(20)},
		{Size: 1, Price: uint256.NewInt(10)},
	}); err == nil {
		t.Error("decreasing prices accepted")
	}
}
