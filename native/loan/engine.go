package loan

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"creditnet/core/events"
	"creditnet/core/types"
	"creditnet/native/common"
	"creditnet/native/credit"
	"creditnet/native/oracle"
)

// moduleName is the pause-guard identifier for the loan engine.
const moduleName = "loan"

var (
	errEngineNotInitialised = errors.New("loan: engine not initialised")
	errStateUnavailable     = errors.New("loan: state unavailable")
	// ErrInvalidAmount marks zero or negative amounts on mutating operations.
	ErrInvalidAmount = errors.New("loan: amount must be positive")
	// ErrLoanNotFound is returned for unknown loan identifiers.
	ErrLoanNotFound = errors.New("loan: not found")
	// ErrNotBorrower rejects lifecycle operations from anyone but the
	// position owner.
	ErrNotBorrower = errors.New("loan: caller is not the borrower")
	// ErrLoanNotActive rejects mutations of loans in a terminal state.
	ErrLoanNotActive = errors.New("loan: not active")
	// ErrAssetNotAllowed rejects collateral outside the allow-list.
	ErrAssetNotAllowed = errors.New("loan: collateral asset not allowed")
	// ErrPrincipalTooSmall enforces the configured minimum borrow size.
	ErrPrincipalTooSmall = errors.New("loan: principal below minimum")
	// ErrLtvExceeded marks borrow requests above the score-derived ceiling.
	ErrLtvExceeded = errors.New("loan: loan-to-value above tier ceiling")
	// ErrInsufficientCollateral means the borrower's account cannot cover the
	// requested collateral lock.
	ErrInsufficientCollateral = errors.New("loan: insufficient collateral balance")
	// ErrInsufficientFunds means the payer's settlement balance cannot cover
	// the requested amount.
	ErrInsufficientFunds = errors.New("loan: insufficient settlement balance")
	// ErrHealthTooLow rejects collateral withdrawals that would leave the
	// position at or near the liquidation threshold.
	ErrHealthTooLow = errors.New("loan: withdrawal would endanger position")
)

var quotaPrefix = []byte("loan/quota/")

// engineState is the narrow view of the state manager the loan engine needs.
type engineState interface {
	LoanByID(id uint64) (*Loan, bool, error)
	PutLoan(loan *Loan) error
	NextLoanID() (uint64, error)
	IndexBorrowerLoan(addr [20]byte, id uint64) error
	LoanIDsByBorrower(addr [20]byte) ([]uint64, error)
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, account *types.Account) error
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// creditLedger is the slice of the credit module consumed here: the score
// inputs plus the constant-time counter mutations fired on lifecycle events.
type creditLedger interface {
	Snapshot(addr [20]byte) (*credit.UserProfile, *credit.AggregateCreditData, error)
	RecordLoanCreated(addr [20]byte, principalUsd, collateralUsd *big.Int, asset string, highLtv bool) error
	RecordRepayment(addr [20]byte, amountUsd *big.Int, final bool) error
	RecordLiquidation(addr [20]byte) error
}

type scorer interface {
	Compute(profile *credit.UserProfile, agg *credit.AggregateCreditData, now uint64) credit.ScoreBreakdown
}

type priceSource interface {
	GetPrice(symbol string) (oracle.PriceQuote, error)
}

// insurer is the slice of the insurance module consumed here.
type insurer interface {
	Allocate(revenueUsd *big.Int) (*big.Int, error)
	Deposit(amountUsd *big.Int) (*big.Int, error)
	CoverLoss(loanID uint64, principalUsd, shortfallUsd *big.Int) (paid, residual *big.Int, err error)
}

// Params carries the engine's risk and auction configuration.
type Params struct {
	LiquidationThresholdBps uint64
	DangerThresholdBps      uint64
	SafeThresholdBps        uint64
	AuctionWindowSeconds    uint64
	MaxDiscountBps          uint64
	LiquidatorRewardBps     uint64
	InsuranceShareBps       uint64
	MinPrincipalUsd         *big.Int
	InsuranceCollector      [20]byte
	Assets                  []AssetConfig
	BorrowQuota             common.Quota
}

// DefaultParams mirrors the genesis parameterisation.
func DefaultParams() Params {
	return Params{
		LiquidationThresholdBps: 9_500,
		DangerThresholdBps:      9_750,
		SafeThresholdBps:        10_000,
		AuctionWindowSeconds:    6 * 3_600,
		MaxDiscountBps:          2_000,
		LiquidatorRewardBps:     500,
		InsuranceShareBps:       500,
		MinPrincipalUsd:         big.NewInt(100),
		Assets: []AssetConfig{
			{Symbol: "ETH", Decimals: 18},
			{Symbol: "WBTC", Decimals: 8},
			{Symbol: "ATOM", Decimals: 6},
		},
	}
}

// Engine runs the loan lifecycle: origination against the live credit score,
// repayment, collateral management, lazy health monitoring and Dutch-auction
// liquidation. All mutations hold the engine lock.
type Engine struct {
	mu      sync.Mutex
	state   engineState
	ledger  creditLedger
	scorer  scorer
	oracle  priceSource
	fund    insurer
	emitter events.Emitter
	pauses  common.PauseView
	params  Params
	nowFn   func() uint64
}

// NewEngine constructs a loan engine. Zero params fall back to defaults.
func NewEngine(state engineState, ledger creditLedger, scorer scorer, prices priceSource, fund insurer, params Params) *Engine {
	defaults := DefaultParams()
	if params.LiquidationThresholdBps == 0 || params.LiquidationThresholdBps > maxBps {
		params.LiquidationThresholdBps = defaults.LiquidationThresholdBps
	}
	if params.DangerThresholdBps < params.LiquidationThresholdBps {
		params.DangerThresholdBps = defaults.DangerThresholdBps
	}
	if params.SafeThresholdBps < params.DangerThresholdBps {
		params.SafeThresholdBps = defaults.SafeThresholdBps
	}
	if params.AuctionWindowSeconds == 0 {
		params.AuctionWindowSeconds = defaults.AuctionWindowSeconds
	}
	if params.MaxDiscountBps == 0 || params.MaxDiscountBps >= maxBps {
		params.MaxDiscountBps = defaults.MaxDiscountBps
	}
	if params.LiquidatorRewardBps > maxBps {
		params.LiquidatorRewardBps = defaults.LiquidatorRewardBps
	}
	if params.InsuranceShareBps > maxBps {
		params.InsuranceShareBps = defaults.InsuranceShareBps
	}
	if params.MinPrincipalUsd == nil || params.MinPrincipalUsd.Sign() < 0 {
		params.MinPrincipalUsd = defaults.MinPrincipalUsd
	}
	if len(params.Assets) == 0 {
		params.Assets = defaults.Assets
	}
	return &Engine{
		state:   state,
		ledger:  ledger,
		scorer:  scorer,
		oracle:  prices,
		fund:    fund,
		emitter: events.NoopEmitter{},
		params:  params,
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
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

// SetPauses wires the governance pause view.
func (e *Engine) SetPauses(pauses common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = pauses
}

// SetNowFunc overrides the engine clock. Primarily leveraged in tests.
func (e *Engine) SetNowFunc(now func() uint64) {
	if e == nil {
		return
	}
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil {
		return errEngineNotInitialised
	}
	if e.state == nil {
		return errStateUnavailable
	}
	if e.ledger == nil || e.scorer == nil || e.oracle == nil || e.fund == nil {
		return errEngineNotInitialised
	}
	return nil
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) assetConfig(symbol string) (AssetConfig, bool) {
	needle := oracle.NormalizeSymbol(symbol)
	for _, cfg := range e.params.Assets {
		if oracle.NormalizeSymbol(cfg.Symbol) == needle {
			return cfg, true
		}
	}
	return AssetConfig{}, false
}

// collateralValue prices the loan's collateral at the current market rate.
func (e *Engine) collateralValue(asset string, amount *big.Int) (*big.Int, error) {
	cfg, ok := e.assetConfig(asset)
	if !ok {
		return nil, ErrAssetNotAllowed
	}
	quote, err := e.oracle.GetPrice(cfg.Symbol)
	if err != nil {
		return nil, err
	}
	return oracle.ValueUsd(amount, cfg.Decimals, quote)
}

func quotaKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", quotaPrefix, addr))
}

// consumeQuota charges a borrow request against the per-address throttle.
func (e *Engine) consumeQuota(addr [20]byte, principalUsd *big.Int, now uint64) error {
	quota := e.params.BorrowQuota
	if !quota.Enabled() {
		return nil
	}
	epochSeconds := uint64(quota.EpochSeconds)
	if epochSeconds == 0 {
		epochSeconds = 3_600
	}
	prev := common.QuotaNow{}
	if _, err := e.state.KVGet(quotaKey(addr), &prev); err != nil {
		return err
	}
	next, err := common.CheckQuota(quota, now/epochSeconds, prev, 1, principalUsd)
	if err != nil {
		return err
	}
	return e.state.KVPut(quotaKey(addr), &next)
}

func (e *Engine) loadActiveLoan(id uint64) (*Loan, error) {
	loan, ok, err := e.state.LoanByID(id)
	if err != nil {
		return nil, err
	}
	if !ok || loan == nil {
		return nil, ErrLoanNotFound
	}
	loan.EnsureDefaults()
	if loan.Status != StatusActive {
		return nil, ErrLoanNotActive
	}
	return loan, nil
}

// Borrow originates a loan. The LTV gate uses the live score at call time;
// APR, grace window and LTV ceiling are then frozen into the loan record.
func (e *Engine) Borrow(borrower [20]byte, asset string, collateralAmount, principalUsd *big.Int) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if collateralAmount == nil || collateralAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if principalUsd == nil || principalUsd.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if principalUsd.Cmp(e.params.MinPrincipalUsd) < 0 {
		return nil, ErrPrincipalTooSmall
	}
	cfg, ok := e.assetConfig(asset)
	if !ok {
		return nil, ErrAssetNotAllowed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if err := e.consumeQuota(borrower, principalUsd, now); err != nil {
		return nil, err
	}

	quote, err := e.oracle.GetPrice(cfg.Symbol)
	if err != nil {
		return nil, err
	}
	collateralUsd, err := oracle.ValueUsd(collateralAmount, cfg.Decimals, quote)
	if err != nil {
		return nil, err
	}

	profile, agg, err := e.ledger.Snapshot(borrower)
	if err != nil {
		return nil, err
	}
	breakdown := e.scorer.Compute(profile, agg, now)

	// principal/collateral <= maxLtv, in integer arithmetic.
	lhs := new(big.Int).Mul(principalUsd, big.NewInt(maxBps))
	rhs := new(big.Int).Mul(collateralUsd, new(big.Int).SetUint64(breakdown.MaxLtvBps))
	if lhs.Cmp(rhs) > 0 {
		return nil, ErrLtvExceeded
	}
	// Borrowing within 10% of the ceiling counts against the utilization
	// sub-score.
	highLtvEdge := new(big.Int).Mul(collateralUsd, new(big.Int).SetUint64(breakdown.MaxLtvBps*9/10))
	highLtv := lhs.Cmp(highLtvEdge) >= 0

	account, err := e.state.GetAccount(borrower)
	if err != nil {
		return nil, err
	}
	if !account.Debit(cfg.Symbol, collateralAmount) {
		return nil, ErrInsufficientCollateral
	}
	account.Credit(types.SettlementSymbol, principalUsd)
	if err := e.state.PutAccount(borrower, account); err != nil {
		return nil, err
	}

	id, err := e.state.NextLoanID()
	if err != nil {
		return nil, err
	}
	loan := &Loan{
		ID:                         id,
		Borrower:                   borrower,
		CollateralAsset:            oracle.NormalizeSymbol(cfg.Symbol),
		CollateralAmount:           new(big.Int).Set(collateralAmount),
		PrincipalUsd:               new(big.Int).Set(principalUsd),
		CollateralUsdAtOrigination: collateralUsd,
		RepaidUsd:                  big.NewInt(0),
		InterestRateBps:            breakdown.AprBps,
		MaxLtvBps:                  breakdown.MaxLtvBps,
		GraceSeconds:               breakdown.GraceSecs,
		TierAtOrigination:          uint64(breakdown.Tier),
		OriginationTime:            now,
		Status:                     StatusActive,
	}
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	if err := e.state.IndexBorrowerLoan(borrower, id); err != nil {
		return nil, err
	}
	if err := e.ledger.RecordLoanCreated(borrower, principalUsd, collateralUsd, loan.CollateralAsset, highLtv); err != nil {
		return nil, err
	}

	e.emit(events.LoanCreated{
		ID:               id,
		Borrower:         borrower,
		CollateralAsset:  loan.CollateralAsset,
		CollateralAmount: new(big.Int).Set(collateralAmount),
		PrincipalUsd:     new(big.Int).Set(principalUsd),
		CollateralUsd:    new(big.Int).Set(collateralUsd),
		InterestRateBps:  loan.InterestRateBps,
		Tier:             credit.Tier(loan.TierAtOrigination).String(),
		GraceSeconds:     loan.GraceSeconds,
	})
	return loan.Clone(), nil
}

// Repay pays down a loan. Amounts above the outstanding debt are clamped; a
// payment that clears the debt closes the loan, releases the collateral and
// skims the interest revenue into the insurance fund.
func (e *Engine) Repay(borrower [20]byte, loanID uint64, amountUsd *big.Int) (remaining *big.Int, final bool, err error) {
	if err := e.ready(); err != nil {
		return nil, false, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, false, err
	}
	if amountUsd == nil || amountUsd.Sign() <= 0 {
		return nil, false, ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loan, err := e.loadActiveLoan(loanID)
	if err != nil {
		return nil, false, err
	}
	if loan.Borrower != borrower {
		return nil, false, ErrNotBorrower
	}

	now := e.now()
	debt := debtOwed(loan, now)
	pay := new(big.Int).Set(amountUsd)
	if pay.Cmp(debt) > 0 {
		pay.Set(debt)
	}
	account, err := e.state.GetAccount(borrower)
	if err != nil {
		return nil, false, err
	}
	// Debt on an active loan is strictly positive, so pay is too.
	if !account.Debit(types.SettlementSymbol, pay) {
		return nil, false, ErrInsufficientFunds
	}

	loan.RepaidUsd = new(big.Int).Add(loan.RepaidUsd, pay)
	remaining = new(big.Int).Sub(debt, pay)
	final = remaining.Sign() == 0

	if final {
		loan.Status = StatusRepaid
		loan.ClosedAt = now
		loan.GraceStartedAt = 0
		account.Credit(loan.CollateralAsset, loan.CollateralAmount)
	}
	if err := e.state.PutAccount(borrower, account); err != nil {
		return nil, false, err
	}
	if err := e.state.PutLoan(loan); err != nil {
		return nil, false, err
	}

	if err := e.ledger.RecordRepayment(borrower, pay, final); err != nil {
		return nil, false, err
	}

	if final {
		if revenue := new(big.Int).Sub(loan.RepaidUsd, loan.PrincipalUsd); revenue.Sign() > 0 {
			if _, err := e.fund.Allocate(revenue); err != nil {
				return nil, false, err
			}
		}
	} else {
		// A partial repayment can restore health and cancel a running grace
		// window. The repayment is already committed, so a stale quote must
		// not surface as failure; the next interaction re-prices the position.
		if err := e.pokeLocked(loan, now); err != nil && !errors.Is(err, oracle.ErrStaleQuote) {
			return nil, false, err
		}
	}

	e.emit(events.LoanRepaid{
		ID:           loanID,
		Borrower:     borrower,
		AmountUsd:    new(big.Int).Set(pay),
		RemainingUsd: new(big.Int).Set(remaining),
		Final:        final,
	})
	return remaining, final, nil
}

// DepositCollateral locks additional collateral of the loan's asset against
// an active position.
func (e *Engine) DepositCollateral(owner [20]byte, loanID uint64, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loan, err := e.loadActiveLoan(loanID)
	if err != nil {
		return err
	}
	if loan.Borrower != owner {
		return ErrNotBorrower
	}

	account, err := e.state.GetAccount(owner)
	if err != nil {
		return err
	}
	if !account.Debit(loan.CollateralAsset, amount) {
		return ErrInsufficientCollateral
	}
	loan.CollateralAmount = new(big.Int).Add(loan.CollateralAmount, amount)
	if err := e.state.PutAccount(owner, account); err != nil {
		return err
	}
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	e.emit(events.CollateralDeposited{
		ID:     loanID,
		Owner:  owner,
		Asset:  loan.CollateralAsset,
		Amount: new(big.Int).Set(amount),
	})
	// Topping up may lift the position back above the threshold. The deposit
	// is already committed, so a stale quote must not surface as failure.
	if err := e.pokeLocked(loan, e.now()); err != nil && !errors.Is(err, oracle.ErrStaleQuote) {
		return err
	}
	return nil
}

// WithdrawCollateral releases collateral from an active position, provided
// the remaining cushion keeps the health factor at or above the safe line.
func (e *Engine) WithdrawCollateral(owner [20]byte, loanID uint64, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loan, err := e.loadActiveLoan(loanID)
	if err != nil {
		return err
	}
	if loan.Borrower != owner {
		return ErrNotBorrower
	}
	if loan.GraceStartedAt != 0 {
		return ErrHealthTooLow
	}
	if loan.CollateralAmount.Cmp(amount) < 0 {
		return ErrInvalidAmount
	}

	now := e.now()
	remainingUnits := new(big.Int).Sub(loan.CollateralAmount, amount)
	remainingValue, err := e.collateralValue(loan.CollateralAsset, remainingUnits)
	if err != nil {
		return err
	}
	debt := debtOwed(loan, now)
	if healthFactorBps(remainingValue, debt) < e.params.SafeThresholdBps {
		return ErrHealthTooLow
	}

	loan.CollateralAmount = remainingUnits
	account, err := e.state.GetAccount(owner)
	if err != nil {
		return err
	}
	account.Credit(loan.CollateralAsset, amount)
	if err := e.state.PutAccount(owner, account); err != nil {
		return err
	}
	if err := e.state.PutLoan(loan); err != nil {
		return err
	}
	e.emit(events.CollateralWithdrawn{
		ID:     loanID,
		Owner:  owner,
		Asset:  loan.CollateralAsset,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// Loan returns a copy of the stored loan record.
func (e *Engine) Loan(id uint64) (*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	loan, ok, err := e.state.LoanByID(id)
	if err != nil {
		return nil, err
	}
	if !ok || loan == nil {
		return nil, ErrLoanNotFound
	}
	loan.EnsureDefaults()
	return loan.Clone(), nil
}

// LoansByBorrower returns copies of every loan the address has originated,
// oldest first.
func (e *Engine) LoansByBorrower(addr [20]byte) ([]*Loan, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ids, err := e.state.LoanIDsByBorrower(addr)
	if err != nil {
		return nil, err
	}
	out := make([]*Loan, 0, len(ids))
	for _, id := range ids {
		loan, ok, err := e.state.LoanByID(id)
		if err != nil {
			return nil, err
		}
		if !ok || loan == nil {
			return nil, fmt.Errorf("loan: index references missing loan %d", id)
		}
		loan.EnsureDefaults()
		out = append(out, loan.Clone())
	}
	return out, nil
}

// DebtOwed reports the outstanding balance of a loan at the current time.
func (e *Engine) DebtOwed(id uint64) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	loan, ok, err := e.state.LoanByID(id)
	if err != nil {
		return nil, err
	}
	if !ok || loan == nil {
		return nil, ErrLoanNotFound
	}
	return debtOwed(loan, e.now()), nil
}

// SortedAssetSymbols lists the allow-listed collateral symbols in a stable
// order for display surfaces.
func SortedAssetSymbols(params Params) []string {
	out := make([]string, 0, len(params.Assets))
	for _, cfg := range params.Assets {
		out = append(out, oracle.NormalizeSymbol(cfg.Symbol))
	}
	sort.Strings(out)
	return out
}
