package credit

import (
	"math/big"
	"strings"
)

// ChainScore is a cross-chain reputation report for a single source chain.
// Reports follow last-write-wins semantics per chain identifier; staleness and
// quorum policy belong to the reporting collaborator, not the score engine.
type ChainScore struct {
	ChainID    string
	Score      uint64
	ReportedAt uint64
}

// UserProfile holds the slow-moving identity and activity signals consumed by
// the sybil-resistance, cross-chain and governance sub-scores. The profile is
// mutated only by explicit stake/KYC/governance/report operations and by the
// loan ledger; the score engine never writes it.
type UserProfile struct {
	// FirstSeen is the unix timestamp of the address's first interaction.
	FirstSeen uint64
	// StakedAmount is the reputation stake bonded by the user.
	StakedAmount *big.Int
	KycVerified  bool
	KycExpiry    uint64
	KycIssuer    [20]byte
	// TxActivityCount counts protocol interactions, maintained incrementally.
	TxActivityCount uint64
	// CollateralAssets is the set of distinct collateral symbols the user has
	// ever pledged. Bounded by the allow-list size, never by loan count.
	CollateralAssets []string
	ChainScores      []ChainScore
	GovernanceVotes  uint64
	GovernanceProps  uint64
	// DelegatedPowerBps is the user's delegated voting power in basis points
	// of total supply, as reported by the governance collaborator.
	DelegatedPowerBps uint64
}

// EnsureDefaults populates nil big.Int fields so RLP handling is safe.
func (p *UserProfile) EnsureDefaults() {
	if p == nil {
		return
	}
	if p.StakedAmount == nil {
		p.StakedAmount = big.NewInt(0)
	}
}

// Clone returns a deep copy of the profile.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	clone := *p
	if p.StakedAmount != nil {
		clone.StakedAmount = new(big.Int).Set(p.StakedAmount)
	}
	clone.CollateralAssets = append([]string(nil), p.CollateralAssets...)
	clone.ChainScores = append([]ChainScore(nil), p.ChainScores...)
	return &clone
}

// HasCollateralAsset reports whether the symbol is already part of the set.
func (p *UserProfile) HasCollateralAsset(symbol string) bool {
	needle := strings.ToUpper(strings.TrimSpace(symbol))
	for _, asset := range p.CollateralAssets {
		if asset == needle {
			return true
		}
	}
	return false
}

// AggregateCreditData keeps the per-user running totals behind the repayment
// and utilization sub-scores. Every field is updated in constant time at the
// moment a loan transitions; nothing here is ever recomputed by scanning loan
// history.
type AggregateCreditData struct {
	TotalLoans      uint64
	RepaidLoans     uint64
	LiquidatedLoans uint64
	// HighLtvLoans counts loans originated at or near the maximum LTV allowed
	// for the borrower's score at origination. Feeds the utilization penalty.
	HighLtvLoans       uint64
	TotalBorrowedUsd   *big.Int
	TotalRepaidUsd     *big.Int
	TotalCollateralUsd *big.Int
}

// EnsureDefaults populates nil big.Int fields so RLP handling is safe.
func (a *AggregateCreditData) EnsureDefaults() {
	if a == nil {
		return
	}
	if a.TotalBorrowedUsd == nil {
		a.TotalBorrowedUsd = big.NewInt(0)
	}
	if a.TotalRepaidUsd == nil {
		a.TotalRepaidUsd = big.NewInt(0)
	}
	if a.TotalCollateralUsd == nil {
		a.TotalCollateralUsd = big.NewInt(0)
	}
}

// Clone returns a deep copy of the aggregate record.
func (a *AggregateCreditData) Clone() *AggregateCreditData {
	if a == nil {
		return nil
	}
	clone := *a
	if a.TotalBorrowedUsd != nil {
		clone.TotalBorrowedUsd = new(big.Int).Set(a.TotalBorrowedUsd)
	}
	if a.TotalRepaidUsd != nil {
		clone.TotalRepaidUsd = new(big.Int).Set(a.TotalRepaidUsd)
	}
	if a.TotalCollateralUsd != nil {
		clone.TotalCollateralUsd = new(big.Int).Set(a.TotalCollateralUsd)
	}
	return &clone
}
