package insurance

import (
	"errors"
	"math/big"

	"creditnet/core/events"
)

// storage abstracts the subset of state manager functionality required by the
// insurance fund.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var fundKey = []byte("insurance/fund")

var (
	errFundNotInitialised = errors.New("insurance: fund not initialised")
	errStorageUnavailable = errors.New("insurance: storage unavailable")
	// ErrInvalidAmount marks zero or negative amounts on mutating operations.
	ErrInvalidAmount = errors.New("insurance: amount must be positive")
)

const (
	defaultAllocationBps  = 1_000
	defaultMaxCoverageBps = 5_000
	maxBps                = 10_000
)

// Fund is the persisted insurance fund state.
type Fund struct {
	BalanceUsd        *big.Int
	TotalAllocatedUsd *big.Int
	TotalPaidOutUsd   *big.Int
}

// EnsureDefaults replaces nil amounts with zero so RLP round trips stay clean.
func (f *Fund) EnsureDefaults() {
	if f == nil {
		return
	}
	if f.BalanceUsd == nil {
		f.BalanceUsd = big.NewInt(0)
	}
	if f.TotalAllocatedUsd == nil {
		f.TotalAllocatedUsd = big.NewInt(0)
	}
	if f.TotalPaidOutUsd == nil {
		f.TotalPaidOutUsd = big.NewInt(0)
	}
}

// Clone returns a deep copy of the fund state.
func (f *Fund) Clone() *Fund {
	if f == nil {
		return nil
	}
	clone := &Fund{}
	if f.BalanceUsd != nil {
		clone.BalanceUsd = new(big.Int).Set(f.BalanceUsd)
	}
	if f.TotalAllocatedUsd != nil {
		clone.TotalAllocatedUsd = new(big.Int).Set(f.TotalAllocatedUsd)
	}
	if f.TotalPaidOutUsd != nil {
		clone.TotalPaidOutUsd = new(big.Int).Set(f.TotalPaidOutUsd)
	}
	clone.EnsureDefaults()
	return clone
}

// Params configures the fund's revenue skim and coverage ceiling.
type Params struct {
	// AllocationBps is the share of protocol revenue diverted into the fund.
	AllocationBps uint64
	// MaxCoverageBps caps a single payout relative to the loan principal.
	MaxCoverageBps uint64
}

// DefaultParams mirrors the genesis parameterisation: a 10% revenue skim and
// coverage of up to half the principal per loan.
func DefaultParams() Params {
	return Params{AllocationBps: defaultAllocationBps, MaxCoverageBps: defaultMaxCoverageBps}
}

// Engine manages the shared insurance fund that absorbs liquidation
// shortfalls. Coverage is best effort: whatever the fund cannot pay is
// recorded as bad debt, never as an error.
type Engine struct {
	store   storage
	emitter events.Emitter
	params  Params
}

// NewEngine constructs an insurance engine. Zero params fall back to defaults.
func NewEngine(store storage, params Params) *Engine {
	defaults := DefaultParams()
	if params.AllocationBps == 0 || params.AllocationBps > maxBps {
		params.AllocationBps = defaults.AllocationBps
	}
	if params.MaxCoverageBps == 0 || params.MaxCoverageBps > maxBps {
		params.MaxCoverageBps = defaults.MaxCoverageBps
	}
	return &Engine{store: store, emitter: events.NoopEmitter{}, params: params}
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) ready() error {
	if e == nil {
		return errFundNotInitialised
	}
	if e.store == nil {
		return errStorageUnavailable
	}
	return nil
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

// Fund returns a copy of the current fund state.
func (e *Engine) Fund() (*Fund, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	fund := &Fund{}
	if _, err := e.store.KVGet(fundKey, fund); err != nil {
		return nil, err
	}
	fund.EnsureDefaults()
	return fund, nil
}

func (e *Engine) putFund(fund *Fund) error {
	fund.EnsureDefaults()
	return e.store.KVPut(fundKey, fund)
}

// Allocate skims the configured share of a protocol revenue amount into the
// fund and returns the amount actually added.
func (e *Engine) Allocate(revenueUsd *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if revenueUsd == nil || revenueUsd.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	fund, err := e.Fund()
	if err != nil {
		return nil, err
	}
	added := new(big.Int).Mul(revenueUsd, new(big.Int).SetUint64(e.params.AllocationBps))
	added.Quo(added, big.NewInt(maxBps))
	fund.BalanceUsd = new(big.Int).Add(fund.BalanceUsd, added)
	fund.TotalAllocatedUsd = new(big.Int).Add(fund.TotalAllocatedUsd, added)
	if err := e.putFund(fund); err != nil {
		return nil, err
	}
	e.emit(events.InsuranceAllocated{
		RevenueUsd: new(big.Int).Set(revenueUsd),
		AddedUsd:   new(big.Int).Set(added),
		BalanceUsd: new(big.Int).Set(fund.BalanceUsd),
	})
	return added, nil
}

// Deposit adds an externally funded amount to the fund in full, bypassing the
// revenue skim. Used for seeding and governance top-ups.
func (e *Engine) Deposit(amountUsd *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if amountUsd == nil || amountUsd.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	fund, err := e.Fund()
	if err != nil {
		return nil, err
	}
	fund.BalanceUsd = new(big.Int).Add(fund.BalanceUsd, amountUsd)
	fund.TotalAllocatedUsd = new(big.Int).Add(fund.TotalAllocatedUsd, amountUsd)
	if err := e.putFund(fund); err != nil {
		return nil, err
	}
	e.emit(events.InsuranceAllocated{
		RevenueUsd: new(big.Int).Set(amountUsd),
		AddedUsd:   new(big.Int).Set(amountUsd),
		BalanceUsd: new(big.Int).Set(fund.BalanceUsd),
	})
	return new(big.Int).Set(fund.BalanceUsd), nil
}

// CoverLoss pays out toward a liquidation shortfall. The payout is the
// smallest of the shortfall itself, the per-loan coverage cap derived from the
// principal, and the fund balance. The residual, if any, is emitted as bad
// debt and returned to the caller.
func (e *Engine) CoverLoss(loanID uint64, principalUsd, shortfallUsd *big.Int) (paid, residual *big.Int, err error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	if shortfallUsd == nil || shortfallUsd.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if principalUsd == nil || principalUsd.Sign() < 0 {
		return nil, nil, ErrInvalidAmount
	}
	fund, err := e.Fund()
	if err != nil {
		return nil, nil, err
	}

	cap_ := new(big.Int).Mul(principalUsd, new(big.Int).SetUint64(e.params.MaxCoverageBps))
	cap_.Quo(cap_, big.NewInt(maxBps))

	paid = new(big.Int).Set(shortfallUsd)
	if paid.Cmp(cap_) > 0 {
		paid.Set(cap_)
	}
	if paid.Cmp(fund.BalanceUsd) > 0 {
		paid.Set(fund.BalanceUsd)
	}

	if paid.Sign() > 0 {
		fund.BalanceUsd = new(big.Int).Sub(fund.BalanceUsd, paid)
		fund.TotalPaidOutUsd = new(big.Int).Add(fund.TotalPaidOutUsd, paid)
		if err := e.putFund(fund); err != nil {
			return nil, nil, err
		}
		e.emit(events.InsurancePayout{
			LoanID:     loanID,
			PaidUsd:    new(big.Int).Set(paid),
			BalanceUsd: new(big.Int).Set(fund.BalanceUsd),
		})
	}

	residual = new(big.Int).Sub(shortfallUsd, paid)
	if residual.Sign() > 0 {
		e.emit(events.InsuranceBadDebt{LoanID: loanID, ResidualUsd: new(big.Int).Set(residual)})
	}
	return paid, residual, nil
}
