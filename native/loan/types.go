package loan

import "math/big"

// Status is the loan lifecycle state. Active is the only non-terminal state;
// Repaid and Liquidated are terminal and mutually exclusive.
type Status uint8

const (
	StatusActive Status = iota
	StatusRepaid
	StatusLiquidated
)

// String renders the canonical status name.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRepaid:
		return "repaid"
	case StatusLiquidated:
		return "liquidated"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusRepaid || s == StatusLiquidated
}

// Loan is the persisted record of a single borrow position. Interest rate,
// grace window and LTV ceiling are snapshots taken at origination; a later
// score change never rewrites the terms of an open loan.
type Loan struct {
	ID                         uint64
	Borrower                   [20]byte
	CollateralAsset            string
	CollateralAmount           *big.Int
	PrincipalUsd               *big.Int
	CollateralUsdAtOrigination *big.Int
	RepaidUsd                  *big.Int
	InterestRateBps            uint64
	MaxLtvBps                  uint64
	GraceSeconds               uint64
	TierAtOrigination          uint64
	OriginationTime            uint64
	GraceStartedAt             uint64
	ClosedAt                   uint64
	Status                     Status
}

// EnsureDefaults replaces nil amounts with zero so RLP round trips stay clean.
func (l *Loan) EnsureDefaults() {
	if l == nil {
		return
	}
	if l.CollateralAmount == nil {
		l.CollateralAmount = big.NewInt(0)
	}
	if l.PrincipalUsd == nil {
		l.PrincipalUsd = big.NewInt(0)
	}
	if l.CollateralUsdAtOrigination == nil {
		l.CollateralUsdAtOrigination = big.NewInt(0)
	}
	if l.RepaidUsd == nil {
		l.RepaidUsd = big.NewInt(0)
	}
}

// Clone returns a deep copy of the loan record.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	if l.CollateralAmount != nil {
		clone.CollateralAmount = new(big.Int).Set(l.CollateralAmount)
	}
	if l.PrincipalUsd != nil {
		clone.PrincipalUsd = new(big.Int).Set(l.PrincipalUsd)
	}
	if l.CollateralUsdAtOrigination != nil {
		clone.CollateralUsdAtOrigination = new(big.Int).Set(l.CollateralUsdAtOrigination)
	}
	if l.RepaidUsd != nil {
		clone.RepaidUsd = new(big.Int).Set(l.RepaidUsd)
	}
	clone.EnsureDefaults()
	return &clone
}

// AssetConfig describes one allow-listed collateral asset.
type AssetConfig struct {
	Symbol   string
	Decimals uint8
}
