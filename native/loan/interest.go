package loan

import "math/big"

const (
	maxBps         = 10_000
	secondsPerYear = 31_536_000
)

// accruedInterest computes simple interest on the principal at the snapshotted
// APR, truncating toward zero.
func accruedInterest(principal *big.Int, aprBps, originated, now uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || aprBps == 0 || now <= originated {
		return big.NewInt(0)
	}
	elapsed := now - originated
	interest := new(big.Int).Mul(principal, new(big.Int).SetUint64(aprBps))
	interest.Mul(interest, new(big.Int).SetUint64(elapsed))
	interest.Quo(interest, big.NewInt(maxBps*secondsPerYear))
	return interest
}

// debtOwed returns the outstanding balance at the given time: principal plus
// accrued interest minus what has been repaid, floored at zero.
func debtOwed(l *Loan, now uint64) *big.Int {
	if l == nil {
		return big.NewInt(0)
	}
	l.EnsureDefaults()
	debt := new(big.Int).Add(l.PrincipalUsd, accruedInterest(l.PrincipalUsd, l.InterestRateBps, l.OriginationTime, now))
	debt.Sub(debt, l.RepaidUsd)
	if debt.Sign() < 0 {
		return big.NewInt(0)
	}
	return debt
}
