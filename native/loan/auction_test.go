package loan

import (
	"errors"
	"math/big"
	"testing"

	"creditnet/core/types"
	"creditnet/native/credit"
)

func TestDiscountCurveMonotoneAndCapped(t *testing.T) {
	engine := &Engine{params: DefaultParams()}
	graceEnd := uint64(1_000_000)

	if got := engine.discountBps(graceEnd, graceEnd); got != 0 {
		t.Fatalf("discount at open = %d, want 0", got)
	}
	// Half the window yields half the cap.
	if got := engine.discountBps(graceEnd, graceEnd+3*3_600); got != 1_000 {
		t.Fatalf("discount at half window = %d, want 1000", got)
	}
	if got := engine.discountBps(graceEnd, graceEnd+6*3_600); got != 2_000 {
		t.Fatalf("discount at window end = %d, want 2000", got)
	}
	if got := engine.discountBps(graceEnd, graceEnd+48*3_600); got != 2_000 {
		t.Fatalf("discount past window = %d, want cap 2000", got)
	}

	prev := uint64(0)
	for elapsed := uint64(0); elapsed <= 8*3_600; elapsed += 600 {
		d := engine.discountBps(graceEnd, graceEnd+elapsed)
		if d < prev {
			t.Fatalf("discount decreased at %ds: %d < %d", elapsed, d, prev)
		}
		prev = d
	}
}

// breakdown without interest so auction arithmetic stays exact.
func zeroAprBreakdown() credit.ScoreBreakdown {
	b := defaultBreakdown()
	b.AprBps = 0
	return b
}

func TestLiquidatePreconditions(t *testing.T) {
	env := newTestEnv(t, zeroAprBreakdown(), Params{})
	borrower := testAddr(20)
	liquidator := testAddr(21)
	env.seed(t, borrower, "ETH", oneEth)
	env.seed(t, liquidator, types.SettlementSymbol, big.NewInt(5_000))

	loan, err := env.engine.Borrow(borrower, "ETH", oneEth, big.NewInt(1_500))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}

	if _, err := env.engine.Liquidate(borrower, loan.ID); !errors.Is(err, ErrSelfLiquidation) {
		t.Fatalf("self liquidation error = %v, want ErrSelfLiquidation", err)
	}
	// Healthy position: no grace window, nothing to liquidate.
	if _, err := env.engine.Liquidate(liquidator, loan.ID); !errors.Is(err, ErrGraceActive) {
		t.Fatalf("healthy liquidation error = %v, want ErrGraceActive", err)
	}

	env.setPrice("ETH", 1_400)
	if _, err := env.engine.PokeHealth(loan.ID); err != nil {
		t.Fatalf("poke: %v", err)
	}
	// Grace window still running.
	env.advance(1_800)
	if _, err := env.engine.Liquidate(liquidator, loan.ID); !errors.Is(err, ErrGraceActive) {
		t.Fatalf("mid-grace liquidation error = %v, want ErrGraceActive", err)
	}

	// Recovery before expiry cancels the grace window entirely.
	env.setPrice("ETH", 2_000)
	env.advance(900)
	if _, err := env.engine.Liquidate(liquidator, loan.ID); !errors.Is(err, ErrGraceActive) {
		t.Fatalf("recovered liquidation error = %v, want ErrGraceActive", err)
	}
	stored, err := env.engine.Loan(loan.ID)
	if err != nil {
		t.Fatalf("load loan: %v", err)
	}
	if stored.GraceStartedAt != 0 {
		t.Fatal("grace window survived recovery")
	}
}

func TestLiquidateUnderwaterUsesInsurance(t *testing.T) {
	env := newTestEnv(t, zeroAprBreakdown(), Params{})
	borrower := testAddr(22)
	liquidator := testAddr(23)
	env.seed(t, borrower, "ETH", oneEth)
	env.seed(t, liquidator, types.SettlementSymbol, big.NewInt(5_000))
	if _, err := env.fund.Deposit(big.NewInt(1_000)); err != nil {
		t.Fatalf("seed fund: %v", err)
	}

	loan, err := env.engine.Borrow(borrower, "ETH", oneEth, big.NewInt(1_500))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}

	env.setPrice("ETH", 1_400)
	if _, err := env.engine.PokeHealth(loan.ID); err != nil {
		t.Fatalf("poke: %v", err)
	}
	env.advance(3_600)

	result, err := env.engine.Liquidate(liquidator, loan.ID)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	// Discount is zero right at the auction open: the liquidator pays the
	// full 1400 market value for all collateral, leaving a 100 gap.
	if result.DiscountBps != 0 {
		t.Fatalf("discount = %d, want 0", result.DiscountBps)
	}
	if result.PaidUsd.Cmp(big.NewInt(1_400)) != 0 {
		t.Fatalf("paid = %s, want 1400", result.PaidUsd)
	}
	if result.SeizedUnits.Cmp(oneEth) != 0 {
		t.Fatalf("seized = %s, want all collateral", result.SeizedUnits)
	}
	if result.CoveredUsd.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("covered = %s, want 100", result.CoveredUsd)
	}
	if result.ShortfallUsd.Sign() != 0 {
		t.Fatalf("residual shortfall = %s, want 0", result.ShortfallUsd)
	}

	if got := env.balance(t, liquidator, "ETH"); got.Cmp(oneEth) != 0 {
		t.Fatalf("liquidator collateral = %s, want 1 ETH", got)
	}
	if got := env.balance(t, liquidator, types.SettlementSymbol); got.Cmp(big.NewInt(3_600)) != 0 {
		t.Fatalf("liquidator settlement = %s, want 3600", got)
	}

	fund, err := env.fund.Fund()
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if fund.BalanceUsd.Cmp(big.NewInt(900)) != 0 {
		t.Fatalf("fund balance = %s, want 900", fund.BalanceUsd)
	}

	stored, err := env.engine.Loan(loan.ID)
	if err != nil {
		t.Fatalf("load loan: %v", err)
	}
	if stored.Status != StatusLiquidated {
		t.Fatalf("status = %s, want liquidated", stored.Status)
	}
	agg, err := env.ledger.Aggregate(borrower)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if agg.LiquidatedLoans != 1 {
		t.Fatalf("liquidated counter = %d, want 1", agg.LiquidatedLoans)
	}
}

func TestLiquidateSolventSplitsExcess(t *testing.T) {
	env := newTestEnv(t, zeroAprBreakdown(), Params{})
	borrower := testAddr(24)
	liquidator := testAddr(25)
	env.seed(t, borrower, "ETH", oneEth)
	env.seed(t, liquidator, types.SettlementSymbol, big.NewInt(5_000))

	loan, err := env.engine.Borrow(borrower, "ETH", oneEth, big.NewInt(1_500))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}

	env.setPrice("ETH", 1_400)
	if _, err := env.engine.PokeHealth(loan.ID); err != nil {
		t.Fatalf("poke: %v", err)
	}
	// Let the grace window expire, then let the price recover during the
	// auction. The expired window keeps the position liquidatable.
	env.advance(3_600)
	env.setPrice("ETH", 1_800)
	env.advance(3 * 3_600)

	result, err := env.engine.Liquidate(liquidator, loan.ID)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if result.DiscountBps != 1_000 {
		t.Fatalf("discount = %d, want 1000", result.DiscountBps)
	}
	if result.PaidUsd.Cmp(big.NewInt(1_500)) != 0 {
		t.Fatalf("paid = %s, want full debt", result.PaidUsd)
	}
	if result.SeizedUnits.Cmp(oneEth) >= 0 {
		t.Fatalf("seized all collateral on a solvent auction: %s", result.SeizedUnits)
	}
	if result.RewardUnits.Sign() <= 0 || result.FeeUnits.Sign() <= 0 || result.ReturnedUnits.Sign() <= 0 {
		t.Fatalf("excess split missing: %+v", result)
	}

	sum := new(big.Int).Add(result.SeizedUnits, result.RewardUnits)
	sum.Add(sum, result.FeeUnits)
	sum.Add(sum, result.ReturnedUnits)
	if sum.Cmp(oneEth) != 0 {
		t.Fatalf("split does not conserve collateral: %s of %s", sum, oneEth)
	}

	wantLiq := new(big.Int).Add(result.SeizedUnits, result.RewardUnits)
	if got := env.balance(t, liquidator, "ETH"); got.Cmp(wantLiq) != 0 {
		t.Fatalf("liquidator units = %s, want %s", got, wantLiq)
	}
	if got := env.balance(t, borrower, "ETH"); got.Cmp(result.ReturnedUnits) != 0 {
		t.Fatalf("borrower units = %s, want %s", got, result.ReturnedUnits)
	}

	// The insurance share was booked into the fund at market value.
	fund, err := env.fund.Fund()
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if fund.BalanceUsd.Sign() <= 0 {
		t.Fatalf("fund balance = %s, want positive", fund.BalanceUsd)
	}
	if result.ShortfallUsd.Sign() != 0 || result.CoveredUsd.Sign() != 0 {
		t.Fatalf("solvent auction touched coverage: %+v", result)
	}
}

func TestLiquidateRequiresLiquidatorFunds(t *testing.T) {
	env := newTestEnv(t, zeroAprBreakdown(), Params{})
	borrower := testAddr(26)
	liquidator := testAddr(27)
	env.seed(t, borrower, "ETH", oneEth)

	loan, err := env.engine.Borrow(borrower, "ETH", oneEth, big.NewInt(1_500))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	env.setPrice("ETH", 1_400)
	if _, err := env.engine.PokeHealth(loan.ID); err != nil {
		t.Fatalf("poke: %v", err)
	}
	env.advance(3_600)

	if _, err := env.engine.Liquidate(liquidator, loan.ID); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("broke liquidator error = %v, want ErrInsufficientFunds", err)
	}
	// The failed attempt leaves the loan untouched.
	stored, err := env.engine.Loan(loan.ID)
	if err != nil {
		t.Fatalf("load loan: %v", err)
	}
	if stored.Status != StatusActive {
		t.Fatalf("status = %s, want active", stored.Status)
	}
}
