package events

import (
	"math/big"

	"creditnet/core/types"
)

const (
	TypeStakeBonded         = "credit.stakeBonded"
	TypeStakeUnbonded       = "credit.stakeUnbonded"
	TypeKycVerified         = "credit.kycVerified"
	TypeChainScoreReported  = "credit.chainScoreReported"
	TypeGovernanceReported  = "credit.governanceReported"
	TypeAggregateLoanOpened = "credit.aggregate.loanOpened"
	TypeAggregateRepayment  = "credit.aggregate.repayment"
	TypeAggregateLiquidated = "credit.aggregate.liquidated"
)

// StakeBonded is emitted when a user increases their reputation stake.
type StakeBonded struct {
	User   [20]byte
	Amount *big.Int
	Total  *big.Int
}

func (StakeBonded) EventType() string { return TypeStakeBonded }

func (e StakeBonded) Event() *types.Event {
	return &types.Event{
		Type: TypeStakeBonded,
		Attributes: map[string]string{
			"user":   addrString(e.User),
			"amount": formatAmount(e.Amount),
			"total":  formatAmount(e.Total),
		},
	}
}

// StakeUnbonded is emitted when a user withdraws part of their stake.
type StakeUnbonded struct {
	User   [20]byte
	Amount *big.Int
	Total  *big.Int
}

func (StakeUnbonded) EventType() string { return TypeStakeUnbonded }

func (e StakeUnbonded) Event() *types.Event {
	return &types.Event{
		Type: TypeStakeUnbonded,
		Attributes: map[string]string{
			"user":   addrString(e.User),
			"amount": formatAmount(e.Amount),
			"total":  formatAmount(e.Total),
		},
	}
}

// KycVerified is emitted after a KYC credential proof passes issuer
// verification.
type KycVerified struct {
	User   [20]byte
	Issuer [20]byte
	Expiry uint64
}

func (KycVerified) EventType() string { return TypeKycVerified }

func (e KycVerified) Event() *types.Event {
	return &types.Event{
		Type: TypeKycVerified,
		Attributes: map[string]string{
			"user":   addrString(e.User),
			"issuer": addrString(e.Issuer),
			"expiry": uintToString(e.Expiry),
		},
	}
}

// ChainScoreReported records a cross-chain reputation report (last write wins).
type ChainScoreReported struct {
	User       [20]byte
	ChainID    string
	Score      uint64
	ReportedAt uint64
}

func (ChainScoreReported) EventType() string { return TypeChainScoreReported }

func (e ChainScoreReported) Event() *types.Event {
	return &types.Event{
		Type: TypeChainScoreReported,
		Attributes: map[string]string{
			"user":       addrString(e.User),
			"chainId":    e.ChainID,
			"score":      uintToString(e.Score),
			"reportedAt": uintToString(e.ReportedAt),
		},
	}
}

// GovernanceReported records trusted governance activity counters for a user.
type GovernanceReported struct {
	User      [20]byte
	Votes     uint64
	Proposals uint64
	PowerBps  uint64
}

func (GovernanceReported) EventType() string { return TypeGovernanceReported }

func (e GovernanceReported) Event() *types.Event {
	return &types.Event{
		Type: TypeGovernanceReported,
		Attributes: map[string]string{
			"user":      addrString(e.User),
			"votes":     uintToString(e.Votes),
			"proposals": uintToString(e.Proposals),
			"powerBps":  uintToString(e.PowerBps),
		},
	}
}

// AggregateMutated is emitted for every constant-time aggregate counter update
// so off-chain observers can mirror the ledger without scanning loans.
type AggregateMutated struct {
	Kind       string
	User       [20]byte
	TotalLoans uint64
}

func (e AggregateMutated) EventType() string { return e.Kind }

func (e AggregateMutated) Event() *types.Event {
	return &types.Event{
		Type: e.Kind,
		Attributes: map[string]string{
			"user":       addrString(e.User),
			"totalLoans": uintToString(e.TotalLoans),
		},
	}
}
