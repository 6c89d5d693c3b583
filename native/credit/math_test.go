package credit

import (
	"math/big"
	"testing"
)

func TestMulDivRounding(t *testing.T) {
	if got := mulDivDown(big.NewInt(10), big.NewInt(3), big.NewInt(4)); got.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("mulDivDown = %s, want 7", got)
	}
	if got := mulDivUp(big.NewInt(10), big.NewInt(3), big.NewInt(4)); got.Cmp(big.NewInt(8)) != 0 {
		t.Fatalf("mulDivUp = %s, want 8", got)
	}
	// Exact division rounds identically in both directions.
	if got := mulDivUp(big.NewInt(10), big.NewInt(2), big.NewInt(4)); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("mulDivUp exact = %s, want 5", got)
	}
	if got := mulDivDown(big.NewInt(10), big.NewInt(3), big.NewInt(0)); got.Sign() != 0 {
		t.Fatalf("zero denominator = %s, want 0", got)
	}
	if got := mulDivUp(nil, big.NewInt(3), big.NewInt(4)); got.Sign() != 0 {
		t.Fatalf("nil operand = %s, want 0", got)
	}
}

func TestSupplyShareConversionOnEmptyPool(t *testing.T) {
	shares := toSupplySharesDown(big.NewInt(1000), big.NewInt(0), big.NewInt(0))
	want := new(big.Int).Mul(big.NewInt(1000), virtualShares)
	if shares.Cmp(want) != 0 {
		t.Fatalf("shares %s, want %s", shares, want)
	}
	back := toSupplyAssetsDown(shares, big.NewInt(0), big.NewInt(0))
	if back.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("round trip %s, want 1000", back)
	}
}

func TestSupplyConversionRoundsAgainstSupplier(t *testing.T) {
	// A pool that has accrued interest: 1500 assets across 1000 supplied.
	totalAssets := big.NewInt(1500)
	totalShares := new(big.Int).Mul(big.NewInt(1000), virtualShares)

	shares := toSupplySharesDown(big.NewInt(100), totalAssets, totalShares)
	back := toSupplyAssetsDown(shares, totalAssets, totalShares)
	if back.Cmp(big.NewInt(100)) > 0 {
		t.Fatalf("round trip %s exceeds deposit", back)
	}
}

func TestBorrowShareConversionOnEmptyPool(t *testing.T) {
	shares := toBorrowSharesUp(big.NewInt(400), big.NewInt(0), big.NewInt(0))
	want := new(big.Int).Mul(big.NewInt(400), virtualShares)
	if shares.Cmp(want) != 0 {
		t.Fatalf("shares %s, want %s", shares, want)
	}
	debt := toBorrowAssetsUp(shares, big.NewInt(0), big.NewInt(0))
	if debt.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("debt %s, want 400", debt)
	}
}

func TestBorrowConversionRoundsAgainstBorrower(t *testing.T) {
	// An uneven exchange rate so every conversion actually rounds.
	totalAssets := big.NewInt(1003)
	totalShares := new(big.Int).Mul(big.NewInt(900), virtualShares)

	up := toBorrowSharesUp(big.NewInt(100), totalAssets, totalShares)
	down := toBorrowSharesDown(big.NewInt(100), totalAssets, totalShares)
	if up.Cmp(down) < 0 {
		t.Fatalf("sharesUp %s below sharesDown %s", up, down)
	}

	// The debt read back from the rounded-up shares covers the draw.
	debt := toBorrowAssetsUp(up, totalAssets, totalShares)
	if debt.Cmp(big.NewInt(100)) < 0 {
		t.Fatalf("debt %s below drawn 100", debt)
	}

	assetsDown := toBorrowAssetsDown(down, totalAssets, totalShares)
	if assetsDown.Cmp(big.NewInt(100)) > 0 {
		t.Fatalf("assetsDown %s exceeds 100", assetsDown)
	}
}

func TestBpsShare(t *testing.T) {
	if got := bpsShare(big.NewInt(1001), 2500); got.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("bpsShare = %s, want 250", got)
	}
	if got := bpsShare(big.NewInt(1000), 10_000); got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("full bps = %s, want 1000", got)
	}
	if got := bpsShare(big.NewInt(1000), 0); got.Sign() != 0 {
		t.Fatalf("zero bps = %s, want 0", got)
	}
	if got := bpsShare(nil, 5000); got.Sign() != 0 {
		t.Fatalf("nil amount = %s, want 0", got)
	}
}

func TestCompoundFactorSmallRate(t *testing.T) {
	// rate*elapsed = 1e16, i.e. x = 1% at wad scale. The three Taylor terms
	// are 1e16, 5e13 and 166_666_666_666.
	got := compoundFactor(big.NewInt(100_000_000), 100_000_000)
	want := mustBigInt("10050166666666666")
	if got.Cmp(want) != 0 {
		t.Fatalf("compound factor %s, want %s", got, want)
	}
}

func TestCompoundFactorDegenerateInputs(t *testing.T) {
	if compoundFactor(nil, 100).Sign() != 0 {
		t.Fatal("nil rate must yield zero growth")
	}
	if compoundFactor(big.NewInt(0), 100).Sign() != 0 {
		t.Fatal("zero rate must yield zero growth")
	}
	if compoundFactor(big.NewInt(100), 0).Sign() != 0 {
		t.Fatal("zero elapsed must yield zero growth")
	}
	if compoundFactor(big.NewInt(100), -5).Sign() != 0 {
		t.Fatal("negative elapsed must yield zero growth")
	}
}

func TestCompoundFactorMonotoneInElapsed(t *testing.T) {
	rate := big.NewInt(31_709_791_983)
	previous := big.NewInt(-1)
	for _, elapsed := range []int64{1, 3600, 86_400, 30 * 86_400, secondsPerYear} {
		factor := compoundFactor(rate, elapsed)
		if factor.Cmp(previous) <= 0 {
			t.Fatalf("factor at %ds is %s, not above %s", elapsed, factor, previous)
		}
		previous = factor
	}
}

func TestCompoundFactorExceedsSimpleInterest(t *testing.T) {
	rate := big.NewInt(31_709_791_983)
	elapsed := int64(secondsPerYear)
	linear := new(big.Int).Mul(rate, big.NewInt(elapsed))
	factor := compoundFactor(rate, elapsed)
	if factor.Cmp(linear) <= 0 {
		t.Fatalf("compound factor %s not above linear %s", factor, linear)
	}
}
