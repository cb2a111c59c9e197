package loan

import (
	"math/big"
	"testing"
)

func TestAccruedInterestSimple(t *testing.T) {
	principal := big.NewInt(10_000)
	// One full year at 10% APR.
	if got := accruedInterest(principal, 1_000, 0, secondsPerYear); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("interest = %s, want 1000", got)
	}
	// A quarter year at 8% APR on 50000 accrues 1000.
	if got := accruedInterest(big.NewInt(50_000), 800, 0, secondsPerYear/4); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("interest = %s, want 1000", got)
	}
	if got := accruedInterest(principal, 0, 0, secondsPerYear); got.Sign() != 0 {
		t.Fatalf("zero-rate interest = %s, want 0", got)
	}
	if got := accruedInterest(principal, 1_000, 100, 100); got.Sign() != 0 {
		t.Fatalf("zero-elapsed interest = %s, want 0", got)
	}
}

func TestDebtOwedFloorsAtZero(t *testing.T) {
	loan := &Loan{
		PrincipalUsd:    big.NewInt(1_000),
		InterestRateBps: 1_000,
		OriginationTime: 0,
		RepaidUsd:       big.NewInt(5_000),
	}
	if got := debtOwed(loan, secondsPerYear); got.Sign() != 0 {
		t.Fatalf("overpaid debt = %s, want 0", got)
	}
}

func TestDebtOwedAccrues(t *testing.T) {
	loan := &Loan{
		PrincipalUsd:    big.NewInt(1_500),
		InterestRateBps: 1_000,
		OriginationTime: 1_000,
		RepaidUsd:       big.NewInt(500),
	}
	// Half a year: 1500 + 75 - 500.
	if got := debtOwed(loan, 1_000+secondsPerYear/2); got.Cmp(big.NewInt(1_075)) != 0 {
		t.Fatalf("debt = %s, want 1075", got)
	}
}
