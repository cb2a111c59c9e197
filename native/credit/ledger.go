package credit

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"creditnet/core/events"
)

// storage abstracts the subset of state manager functionality required by the
// credit ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	profilePrefix   = []byte("credit/profile/")
	aggregatePrefix = []byte("credit/aggregate/")
)

func profileKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", profilePrefix, addr))
}

func aggregateKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", aggregatePrefix, addr))
}

var (
	errLedgerNotInitialised = errors.New("credit: ledger not initialised")
	errStorageUnavailable   = errors.New("credit: storage unavailable")
	// ErrInvalidAmount marks zero or negative amounts on mutating operations.
	ErrInvalidAmount = errors.New("credit: amount must be positive")
	// ErrInsufficientStake is returned when unbonding exceeds the bonded stake.
	ErrInsufficientStake = errors.New("credit: insufficient staked amount")
	// ErrInvalidChainScore marks cross-chain reports outside the 0-100 range.
	ErrInvalidChainScore = errors.New("credit: chain score out of range")
	// ErrStaleChainReport rejects reports older than the stored one for the
	// same chain (last write wins, by report timestamp).
	ErrStaleChainReport = errors.New("credit: chain report older than stored")
)

// Ledger owns the per-user profiles and aggregate counters. Every mutation is
// constant time with respect to the user's loan history; this is the central
// invariant that keeps score reads O(1) no matter how many loans a borrower
// has cycled through.
type Ledger struct {
	store   storage
	emitter events.Emitter
	nowFn   func() uint64
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{
		store:   store,
		emitter: events.NoopEmitter{},
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetNowFunc overrides the wall clock used for first-seen stamps and KYC
// expiry checks. Primarily leveraged in tests.
func (l *Ledger) SetNowFunc(now func() uint64) {
	if l == nil {
		return
	}
	if now == nil {
		l.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	l.nowFn = now
}

func (l *Ledger) now() uint64 {
	if l == nil || l.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return l.nowFn()
}

func (l *Ledger) ready() error {
	if l == nil {
		return errLedgerNotInitialised
	}
	if l.store == nil {
		return errStorageUnavailable
	}
	return nil
}

func (l *Ledger) emit(event events.Event) {
	if l == nil || l.emitter == nil {
		return
	}
	l.emitter.Emit(event)
}

// Profile returns the stored profile for addr, creating a first-seen stamp for
// addresses the ledger has never observed. The returned value is a copy.
func (l *Ledger) Profile(addr [20]byte) (*UserProfile, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	profile := &UserProfile{}
	ok, err := l.store.KVGet(profileKey(addr), profile)
	if err != nil {
		return nil, err
	}
	if !ok {
		profile = &UserProfile{FirstSeen: l.now()}
	}
	profile.EnsureDefaults()
	return profile, nil
}

// Aggregate returns the aggregate counters for addr. The returned value is a
// copy; missing users materialise as zeroed aggregates.
func (l *Ledger) Aggregate(addr [20]byte) (*AggregateCreditData, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	agg := &AggregateCreditData{}
	if _, err := l.store.KVGet(aggregateKey(addr), agg); err != nil {
		return nil, err
	}
	agg.EnsureDefaults()
	return agg, nil
}

// Snapshot loads both halves of the credit view in one call. The loan engine
// uses it to gate borrowing on the live score.
func (l *Ledger) Snapshot(addr [20]byte) (*UserProfile, *AggregateCreditData, error) {
	profile, err := l.Profile(addr)
	if err != nil {
		return nil, nil, err
	}
	agg, err := l.Aggregate(addr)
	if err != nil {
		return nil, nil, err
	}
	return profile, agg, nil
}

func (l *Ledger) putProfile(addr [20]byte, profile *UserProfile) error {
	profile.EnsureDefaults()
	return l.store.KVPut(profileKey(addr), profile)
}

func (l *Ledger) putAggregate(addr [20]byte, agg *AggregateCreditData) error {
	agg.EnsureDefaults()
	return l.store.KVPut(aggregateKey(addr), agg)
}

// RecordLoanCreated applies the constant-time counter updates for a freshly
// originated loan and folds the collateral symbol into the user's asset set.
func (l *Ledger) RecordLoanCreated(addr [20]byte, principalUsd, collateralUsd *big.Int, asset string, highLtv bool) error {
	if err := l.ready(); err != nil {
		return err
	}
	if principalUsd == nil || principalUsd.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if collateralUsd == nil || collateralUsd.Sign() <= 0 {
		return ErrInvalidAmount
	}

	profile, err := l.Profile(addr)
	if err != nil {
		return err
	}
	agg, err := l.Aggregate(addr)
	if err != nil {
		return err
	}

	agg.TotalLoans++
	agg.TotalBorrowedUsd = new(big.Int).Add(agg.TotalBorrowedUsd, principalUsd)
	agg.TotalCollateralUsd = new(big.Int).Add(agg.TotalCollateralUsd, collateralUsd)
	if highLtv {
		agg.HighLtvLoans++
	}

	symbol := strings.ToUpper(strings.TrimSpace(asset))
	if symbol != "" && !profile.HasCollateralAsset(symbol) {
		profile.CollateralAssets = append(profile.CollateralAssets, symbol)
	}
	profile.TxActivityCount++

	if err := l.putProfile(addr, profile); err != nil {
		return err
	}
	if err := l.putAggregate(addr, agg); err != nil {
		return err
	}
	l.emit(events.AggregateMutated{Kind: events.TypeAggregateLoanOpened, User: addr, TotalLoans: agg.TotalLoans})
	return nil
}

// RecordRepayment accumulates a repayment; final marks the transition to the
// Repaid terminal state and bumps the repaid-loan counter exactly once.
func (l *Ledger) RecordRepayment(addr [20]byte, amountUsd *big.Int, final bool) error {
	if err := l.ready(); err != nil {
		return err
	}
	if amountUsd == nil || amountUsd.Sign() <= 0 {
		return ErrInvalidAmount
	}

	profile, err := l.Profile(addr)
	if err != nil {
		return err
	}
	agg, err := l.Aggregate(addr)
	if err != nil {
		return err
	}

	agg.TotalRepaidUsd = new(big.Int).Add(agg.TotalRepaidUsd, amountUsd)
	if final {
		agg.RepaidLoans++
	}
	profile.TxActivityCount++

	if err := l.putProfile(addr, profile); err != nil {
		return err
	}
	if err := l.putAggregate(addr, agg); err != nil {
		return err
	}
	l.emit(events.AggregateMutated{Kind: events.TypeAggregateRepayment, User: addr, TotalLoans: agg.TotalLoans})
	return nil
}

// RecordLiquidation bumps the liquidation counter for the borrower.
func (l *Ledger) RecordLiquidation(addr [20]byte) error {
	if err := l.ready(); err != nil {
		return err
	}
	agg, err := l.Aggregate(addr)
	if err != nil {
		return err
	}
	agg.LiquidatedLoans++
	if err := l.putAggregate(addr, agg); err != nil {
		return err
	}
	l.emit(events.AggregateMutated{Kind: events.TypeAggregateLiquidated, User: addr, TotalLoans: agg.TotalLoans})
	return nil
}

// BondStake increases the user's reputation stake.
func (l *Ledger) BondStake(addr [20]byte, amount *big.Int) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	profile, err := l.Profile(addr)
	if err != nil {
		return nil, err
	}
	profile.StakedAmount = new(big.Int).Add(profile.StakedAmount, amount)
	profile.TxActivityCount++
	if err := l.putProfile(addr, profile); err != nil {
		return nil, err
	}
	l.emit(events.StakeBonded{User: addr, Amount: amount, Total: profile.StakedAmount})
	return new(big.Int).Set(profile.StakedAmount), nil
}

// UnbondStake releases part of the user's reputation stake.
func (l *Ledger) UnbondStake(addr [20]byte, amount *big.Int) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	profile, err := l.Profile(addr)
	if err != nil {
		return nil, err
	}
	if profile.StakedAmount.Cmp(amount) < 0 {
		return nil, ErrInsufficientStake
	}
	profile.StakedAmount = new(big.Int).Sub(profile.StakedAmount, amount)
	profile.TxActivityCount++
	if err := l.putProfile(addr, profile); err != nil {
		return nil, err
	}
	l.emit(events.StakeUnbonded{User: addr, Amount: amount, Total: profile.StakedAmount})
	return new(big.Int).Set(profile.StakedAmount), nil
}

// ReportChainScore stores a cross-chain reputation report with last-write-wins
// semantics per chain identifier.
func (l *Ledger) ReportChainScore(addr [20]byte, chainID string, score, reportedAt uint64) error {
	if err := l.ready(); err != nil {
		return err
	}
	trimmed := strings.TrimSpace(chainID)
	if trimmed == "" {
		return fmt.Errorf("credit: chain id required")
	}
	if score > 100 {
		return ErrInvalidChainScore
	}
	profile, err := l.Profile(addr)
	if err != nil {
		return err
	}
	replaced := false
	for i := range profile.ChainScores {
		if profile.ChainScores[i].ChainID != trimmed {
			continue
		}
		if reportedAt < profile.ChainScores[i].ReportedAt {
			return ErrStaleChainReport
		}
		profile.ChainScores[i] = ChainScore{ChainID: trimmed, Score: score, ReportedAt: reportedAt}
		replaced = true
		break
	}
	if !replaced {
		profile.ChainScores = append(profile.ChainScores, ChainScore{ChainID: trimmed, Score: score, ReportedAt: reportedAt})
	}
	if err := l.putProfile(addr, profile); err != nil {
		return err
	}
	l.emit(events.ChainScoreReported{User: addr, ChainID: trimmed, Score: score, ReportedAt: reportedAt})
	return nil
}

// ReportGovernance records the trusted governance activity counters for a
// user. The values are absolute snapshots provided by the governance
// collaborator, not deltas.
func (l *Ledger) ReportGovernance(addr [20]byte, votes, proposals, powerBps uint64) error {
	if err := l.ready(); err != nil {
		return err
	}
	profile, err := l.Profile(addr)
	if err != nil {
		return err
	}
	profile.GovernanceVotes = votes
	profile.GovernanceProps = proposals
	profile.DelegatedPowerBps = powerBps
	if err := l.putProfile(addr, profile); err != nil {
		return err
	}
	l.emit(events.GovernanceReported{User: addr, Votes: votes, Proposals: proposals, PowerBps: powerBps})
	return nil
}

// NoteActivity bumps the interaction counter without any other side effect.
func (l *Ledger) NoteActivity(addr [20]byte, count uint64) error {
	if err := l.ready(); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	profile, err := l.Profile(addr)
	if err != nil {
		return err
	}
	profile.TxActivityCount += count
	return l.putProfile(addr, profile)
}
