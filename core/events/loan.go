package events

import (
	"math/big"

	"creditnet/core/types"
)

const (
	TypeLoanCreated          = "loan.created"
	TypeLoanRepaid           = "loan.repaid"
	TypeLoanClosed           = "loan.closed"
	TypeLoanLiquidated       = "loan.liquidated"
	TypeCollateralDeposited  = "loan.collateralDeposited"
	TypeCollateralWithdrawn  = "loan.collateralWithdrawn"
	TypeGracePeriodStarted   = "loan.graceStarted"
	TypeGracePeriodCancelled = "loan.graceCancelled"
)

// LoanCreated is emitted when a borrow succeeds and the loan enters Active.
type LoanCreated struct {
	ID               uint64
	Borrower         [20]byte
	CollateralAsset  string
	CollateralAmount *big.Int
	PrincipalUsd     *big.Int
	CollateralUsd    *big.Int
	InterestRateBps  uint64
	Tier             string
	GraceSeconds     uint64
}

func (LoanCreated) EventType() string { return TypeLoanCreated }

func (e LoanCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanCreated,
		Attributes: map[string]string{
			"id":               uintToString(e.ID),
			"borrower":         addrString(e.Borrower),
			"collateralAsset":  e.CollateralAsset,
			"collateralAmount": formatAmount(e.CollateralAmount),
			"principalUsd":     formatAmount(e.PrincipalUsd),
			"collateralUsd":    formatAmount(e.CollateralUsd),
			"interestRateBps":  uintToString(e.InterestRateBps),
			"tier":             e.Tier,
			"graceSeconds":     uintToString(e.GraceSeconds),
		},
	}
}

// LoanRepaid is emitted for every repayment, partial or final.
type LoanRepaid struct {
	ID           uint64
	Borrower     [20]byte
	AmountUsd    *big.Int
	RemainingUsd *big.Int
	Final        bool
}

func (LoanRepaid) EventType() string { return TypeLoanRepaid }

func (e LoanRepaid) Event() *types.Event {
	final := "false"
	if e.Final {
		final = "true"
	}
	return &types.Event{
		Type: TypeLoanRepaid,
		Attributes: map[string]string{
			"id":           uintToString(e.ID),
			"borrower":     addrString(e.Borrower),
			"amountUsd":    formatAmount(e.AmountUsd),
			"remainingUsd": formatAmount(e.RemainingUsd),
			"final":        final,
		},
	}
}

// LoanLiquidated is emitted once a loan transitions to Liquidated.
type LoanLiquidated struct {
	ID           uint64
	Borrower     [20]byte
	Liquidator   [20]byte
	DebtUsd      *big.Int
	RecoveredUsd *big.Int
	ShortfallUsd *big.Int
	DiscountBps  uint64
}

func (LoanLiquidated) EventType() string { return TypeLoanLiquidated }

func (e LoanLiquidated) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanLiquidated,
		Attributes: map[string]string{
			"id":           uintToString(e.ID),
			"borrower":     addrString(e.Borrower),
			"liquidator":   addrString(e.Liquidator),
			"debtUsd":      formatAmount(e.DebtUsd),
			"recoveredUsd": formatAmount(e.RecoveredUsd),
			"shortfallUsd": formatAmount(e.ShortfallUsd),
			"discountBps":  uintToString(e.DiscountBps),
		},
	}
}

// CollateralDeposited marks additional collateral locked against a loan.
type CollateralDeposited struct {
	ID     uint64
	Owner  [20]byte
	Asset  string
	Amount *big.Int
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

func (e CollateralDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralDeposited,
		Attributes: map[string]string{
			"id":     uintToString(e.ID),
			"owner":  addrString(e.Owner),
			"asset":  e.Asset,
			"amount": formatAmount(e.Amount),
		},
	}
}

// CollateralWithdrawn marks collateral released back to the borrower.
type CollateralWithdrawn struct {
	ID     uint64
	Owner  [20]byte
	Asset  string
	Amount *big.Int
}

func (CollateralWithdrawn) EventType() string { return TypeCollateralWithdrawn }

func (e CollateralWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralWithdrawn,
		Attributes: map[string]string{
			"id":     uintToString(e.ID),
			"owner":  addrString(e.Owner),
			"asset":  e.Asset,
			"amount": formatAmount(e.Amount),
		},
	}
}

// GracePeriodStarted is emitted when a loan's health first crosses the
// liquidation threshold.
type GracePeriodStarted struct {
	ID              uint64
	Borrower        [20]byte
	HealthFactorBps uint64
	StartedAt       uint64
	GraceSeconds    uint64
}

func (GracePeriodStarted) EventType() string { return TypeGracePeriodStarted }

func (e GracePeriodStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeGracePeriodStarted,
		Attributes: map[string]string{
			"id":              uintToString(e.ID),
			"borrower":        addrString(e.Borrower),
			"healthFactorBps": uintToString(e.HealthFactorBps),
			"startedAt":       uintToString(e.StartedAt),
			"graceSeconds":    uintToString(e.GraceSeconds),
		},
	}
}

// GracePeriodCancelled is emitted when health recovers above the liquidation
// threshold before the grace window elapses.
type GracePeriodCancelled struct {
	ID              uint64
	Borrower        [20]byte
	HealthFactorBps uint64
}

func (GracePeriodCancelled) EventType() string { return TypeGracePeriodCancelled }

func (e GracePeriodCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeGracePeriodCancelled,
		Attributes: map[string]string{
			"id":              uintToString(e.ID),
			"borrower":        addrString(e.Borrower),
			"healthFactorBps": uintToString(e.HealthFactorBps),
		},
	}
}
