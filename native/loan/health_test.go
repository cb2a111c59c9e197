package loan

import (
	"math/big"
	"testing"
)

func TestHealthFactorBps(t *testing.T) {
	if got := healthFactorBps(big.NewInt(2_000), big.NewInt(1_500)); got != 13_333 {
		t.Fatalf("health = %d, want 13333", got)
	}
	if got := healthFactorBps(big.NewInt(1_400), big.NewInt(1_500)); got != 9_333 {
		t.Fatalf("health = %d, want 9333", got)
	}
	if got := healthFactorBps(big.NewInt(2_000), big.NewInt(0)); got != HealthUnbounded {
		t.Fatalf("zero-debt health = %d, want unbounded", got)
	}
	if got := healthFactorBps(nil, big.NewInt(100)); got != 0 {
		t.Fatalf("nil-collateral health = %d, want 0", got)
	}
}

func TestRiskLevels(t *testing.T) {
	engine := &Engine{params: DefaultParams()}
	cases := []struct {
		hf   uint64
		want RiskLevel
	}{
		{13_000, RiskSafe},
		{10_000, RiskSafe},
		{9_999, RiskWarning},
		{9_750, RiskWarning},
		{9_749, RiskDanger},
		{9_500, RiskDanger},
		{9_499, RiskCritical},
		{0, RiskCritical},
	}
	for _, tc := range cases {
		if got := engine.riskFor(tc.hf); got != tc.want {
			t.Fatalf("riskFor(%d) = %s, want %s", tc.hf, got, tc.want)
		}
	}
}

func TestPokeHealthGraceLifecycle(t *testing.T) {
	env := newTestEnv(t, zeroAprBreakdown(), Params{})
	borrower := testAddr(30)
	env.seed(t, borrower, "ETH", oneEth)

	loan, err := env.engine.Borrow(borrower, "ETH", oneEth, big.NewInt(1_500))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}

	status, err := env.engine.PokeHealth(loan.ID)
	if err != nil {
		t.Fatalf("poke healthy: %v", err)
	}
	if status.Risk != RiskSafe || status.GraceStartedAt != 0 {
		t.Fatalf("safe status = %+v", status)
	}

	env.setPrice("ETH", 1_400)
	status, err = env.engine.PokeHealth(loan.ID)
	if err != nil {
		t.Fatalf("poke unhealthy: %v", err)
	}
	if status.Risk != RiskCritical {
		t.Fatalf("risk = %s, want critical", status.Risk)
	}
	if status.GraceStartedAt != env.now {
		t.Fatalf("grace start = %d, want %d", status.GraceStartedAt, env.now)
	}
	if status.LiquidatableAt != env.now+3_600 {
		t.Fatalf("liquidatable at = %d, want grace start + window", status.LiquidatableAt)
	}

	// Repeated pokes do not restart the running window.
	env.advance(600)
	again, err := env.engine.PokeHealth(loan.ID)
	if err != nil {
		t.Fatalf("poke again: %v", err)
	}
	if again.GraceStartedAt != status.GraceStartedAt {
		t.Fatalf("grace restarted: %d vs %d", again.GraceStartedAt, status.GraceStartedAt)
	}

	// Recovery before expiry cancels the window.
	env.setPrice("ETH", 2_000)
	recovered, err := env.engine.PokeHealth(loan.ID)
	if err != nil {
		t.Fatalf("poke recovered: %v", err)
	}
	if recovered.GraceStartedAt != 0 {
		t.Fatal("grace not cancelled on recovery")
	}
}

func TestPartialRepayRestoresHealth(t *testing.T) {
	env := newTestEnv(t, zeroAprBreakdown(), Params{})
	borrower := testAddr(31)
	env.seed(t, borrower, "ETH", oneEth)

	loan, err := env.engine.Borrow(borrower, "ETH", oneEth, big.NewInt(1_500))
	if err != nil {
		t.Fatalf("borrow: %v", err)
	}
	env.setPrice("ETH", 1_400)
	if _, err := env.engine.PokeHealth(loan.ID); err != nil {
		t.Fatalf("poke: %v", err)
	}

	// Paying debt down to 1100 lifts the ratio above the threshold and
	// cancels the grace window.
	if _, _, err := env.engine.Repay(borrower, loan.ID, big.NewInt(400)); err != nil {
		t.Fatalf("repay: %v", err)
	}
	stored, err := env.engine.Loan(loan.ID)
	if err != nil {
		t.Fatalf("load loan: %v", err)
	}
	if stored.GraceStartedAt != 0 {
		t.Fatal("grace survived partial repayment")
	}
}
