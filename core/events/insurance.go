package events

import (
	"math/big"

	"creditnet/core/types"
)

const (
	TypeInsuranceAllocated = "insurance.allocated"
	TypeInsurancePayout    = "insurance.payout"
	TypeInsuranceBadDebt   = "insurance.badDebt"
)

// InsuranceAllocated records a protocol-revenue skim added to the fund.
type InsuranceAllocated struct {
	RevenueUsd *big.Int
	AddedUsd   *big.Int
	BalanceUsd *big.Int
}

func (InsuranceAllocated) EventType() string { return TypeInsuranceAllocated }

func (e InsuranceAllocated) Event() *types.Event {
	return &types.Event{
		Type: TypeInsuranceAllocated,
		Attributes: map[string]string{
			"revenueUsd": formatAmount(e.RevenueUsd),
			"addedUsd":   formatAmount(e.AddedUsd),
			"balanceUsd": formatAmount(e.BalanceUsd),
		},
	}
}

// InsurancePayout records coverage paid toward a liquidation shortfall.
type InsurancePayout struct {
	LoanID     uint64
	PaidUsd    *big.Int
	BalanceUsd *big.Int
}

func (InsurancePayout) EventType() string { return TypeInsurancePayout }

func (e InsurancePayout) Event() *types.Event {
	return &types.Event{
		Type: TypeInsurancePayout,
		Attributes: map[string]string{
			"loanId":     uintToString(e.LoanID),
			"paidUsd":    formatAmount(e.PaidUsd),
			"balanceUsd": formatAmount(e.BalanceUsd),
		},
	}
}

// InsuranceBadDebt records the residual shortfall the fund could not cover.
// Bad debt is an accepted terminal outcome, not an error.
type InsuranceBadDebt struct {
	LoanID      uint64
	ResidualUsd *big.Int
}

func (InsuranceBadDebt) EventType() string { return TypeInsuranceBadDebt }

func (e InsuranceBadDebt) Event() *types.Event {
	return &types.Event{
		Type: TypeInsuranceBadDebt,
		Attributes: map[string]string{
			"loanId":      uintToString(e.LoanID),
			"residualUsd": formatAmount(e.ResidualUsd),
		},
	}
}
