package loan

import (
	"math/big"

	"creditnet/core/events"
)

// HealthUnbounded is reported when a loan carries no outstanding debt.
const HealthUnbounded = ^uint64(0)

// RiskLevel buckets a health factor for display and alerting.
type RiskLevel uint8

const (
	RiskSafe RiskLevel = iota
	RiskWarning
	RiskDanger
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskSafe:
		return "safe"
	case RiskWarning:
		return "warning"
	case RiskDanger:
		return "danger"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// HealthStatus is the point-in-time view returned by PokeHealth.
type HealthStatus struct {
	LoanID          uint64
	HealthFactorBps uint64
	Risk            RiskLevel
	DebtUsd         *big.Int
	CollateralUsd   *big.Int
	GraceStartedAt  uint64
	LiquidatableAt  uint64
}

// healthFactorBps computes collateral/debt in basis points, truncating toward
// zero. Zero debt yields the unbounded sentinel.
func healthFactorBps(collateralUsd, debtUsd *big.Int) uint64 {
	if debtUsd == nil || debtUsd.Sign() <= 0 {
		return HealthUnbounded
	}
	if collateralUsd == nil || collateralUsd.Sign() <= 0 {
		return 0
	}
	hf := new(big.Int).Mul(collateralUsd, big.NewInt(maxBps))
	hf.Quo(hf, debtUsd)
	if !hf.IsUint64() {
		return HealthUnbounded
	}
	return hf.Uint64()
}

func (e *Engine) riskFor(hf uint64) RiskLevel {
	switch {
	case hf < e.params.LiquidationThresholdBps:
		return RiskCritical
	case hf < e.params.DangerThresholdBps:
		return RiskDanger
	case hf < e.params.SafeThresholdBps:
		return RiskWarning
	default:
		return RiskSafe
	}
}

// PokeHealth re-prices a loan's collateral and applies the grace-period state
// machine. There are no background timers: health transitions happen when
// someone interacts with the position, and liquidation itself pokes first.
func (e *Engine) PokeHealth(loanID uint64) (*HealthStatus, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loan, err := e.loadActiveLoan(loanID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if err := e.pokeLocked(loan, now); err != nil {
		return nil, err
	}
	return e.statusLocked(loan, now)
}

// pokeLocked applies grace transitions for an active loan and persists the
// record when the grace marker changes. Callers hold the engine lock.
func (e *Engine) pokeLocked(loan *Loan, now uint64) error {
	if loan.Status != StatusActive {
		return nil
	}
	collateralUsd, err := e.collateralValue(loan.CollateralAsset, loan.CollateralAmount)
	if err != nil {
		return err
	}
	debt := debtOwed(loan, now)
	hf := healthFactorBps(collateralUsd, debt)

	switch {
	case hf < e.params.LiquidationThresholdBps && loan.GraceStartedAt == 0:
		loan.GraceStartedAt = now
		if err := e.state.PutLoan(loan); err != nil {
			return err
		}
		e.emit(events.GracePeriodStarted{
			ID:              loan.ID,
			Borrower:        loan.Borrower,
			HealthFactorBps: hf,
			StartedAt:       now,
			GraceSeconds:    loan.GraceSeconds,
		})
	// Recovery cancels the grace window only before it expires. Once the
	// window has elapsed the position stays liquidatable, so price swings
	// cannot stall an auction indefinitely.
	case hf >= e.params.LiquidationThresholdBps && loan.GraceStartedAt != 0 &&
		now < loan.GraceStartedAt+loan.GraceSeconds:
		loan.GraceStartedAt = 0
		if err := e.state.PutLoan(loan); err != nil {
			return err
		}
		e.emit(events.GracePeriodCancelled{
			ID:              loan.ID,
			Borrower:        loan.Borrower,
			HealthFactorBps: hf,
		})
	}
	return nil
}

func (e *Engine) statusLocked(loan *Loan, now uint64) (*HealthStatus, error) {
	collateralUsd, err := e.collateralValue(loan.CollateralAsset, loan.CollateralAmount)
	if err != nil {
		return nil, err
	}
	debt := debtOwed(loan, now)
	hf := healthFactorBps(collateralUsd, debt)
	status := &HealthStatus{
		LoanID:          loan.ID,
		HealthFactorBps: hf,
		Risk:            e.riskFor(hf),
		DebtUsd:         debt,
		CollateralUsd:   collateralUsd,
		GraceStartedAt:  loan.GraceStartedAt,
	}
	if loan.GraceStartedAt != 0 {
		status.LiquidatableAt = loan.GraceStartedAt + loan.GraceSeconds
	}
	return status, nil
}
