package loan

import (
	"errors"
	"math/big"

	"creditnet/core/events"
	"creditnet/core/types"
	"creditnet/native/common"
	"creditnet/native/oracle"
)

var (
	// ErrGraceActive rejects liquidation attempts before the grace window has
	// elapsed, or while the position is still healthy.
	ErrGraceActive = errors.New("loan: grace period not elapsed")
	// ErrSelfLiquidation rejects borrowers bidding on their own position.
	ErrSelfLiquidation = errors.New("loan: borrower cannot liquidate own loan")
)

// LiquidationResult summarises the settled auction.
type LiquidationResult struct {
	LoanID        uint64
	Liquidator    [20]byte
	DebtUsd       *big.Int
	PaidUsd       *big.Int
	SeizedUnits   *big.Int
	RewardUnits   *big.Int
	FeeUnits      *big.Int
	ReturnedUnits *big.Int
	CoveredUsd    *big.Int
	ShortfallUsd  *big.Int
	DiscountBps   uint64
}

// discountBps walks the Dutch auction: the discount grows linearly from zero
// at the moment the grace window elapses up to MaxDiscountBps at the end of
// the auction window, then stays pinned there.
func (e *Engine) discountBps(graceEndedAt, now uint64) uint64 {
	if now <= graceEndedAt {
		return 0
	}
	elapsed := now - graceEndedAt
	window := e.params.AuctionWindowSeconds
	if elapsed >= window {
		return e.params.MaxDiscountBps
	}
	return e.params.MaxDiscountBps * elapsed / window
}

// unitsForValue inverts the oracle conversion: how many smallest units of the
// asset are worth valueUsd at the quoted rate, truncating toward zero.
func unitsForValue(valueUsd *big.Int, decimals uint8, quote oracle.PriceQuote) *big.Int {
	if valueUsd == nil || valueUsd.Sign() <= 0 || quote.RateUsd == nil || quote.RateUsd.Sign() <= 0 {
		return big.NewInt(0)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	units := new(big.Int).Mul(valueUsd, scale)
	units.Mul(units, quote.RateUsd.Denom())
	units.Quo(units, quote.RateUsd.Num())
	return units
}

// Liquidate settles an expired position. The call re-prices the collateral
// first, so a recovered position cancels its grace window and the attempt
// fails instead of seizing a healthy loan.
//
// When the discounted collateral covers the debt, the liquidator pays the
// debt and receives collateral worth debt at the discounted price; the excess
// is split between a liquidator reward, a protocol fee and the borrower.
// Otherwise the liquidator pays the discounted value of all collateral, takes
// it whole, and the insurance fund covers what it can of the gap.
func (e *Engine) Liquidate(liquidator [20]byte, loanID uint64) (*LiquidationResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loan, err := e.loadActiveLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Borrower == liquidator {
		return nil, ErrSelfLiquidation
	}

	now := e.now()
	if err := e.pokeLocked(loan, now); err != nil {
		return nil, err
	}
	if loan.GraceStartedAt == 0 {
		return nil, ErrGraceActive
	}
	graceEnd := loan.GraceStartedAt + loan.GraceSeconds
	if now < graceEnd {
		return nil, ErrGraceActive
	}

	cfg, ok := e.assetConfig(loan.CollateralAsset)
	if !ok {
		return nil, ErrAssetNotAllowed
	}
	quote, err := e.oracle.GetPrice(cfg.Symbol)
	if err != nil {
		return nil, err
	}
	collateralUsd, err := oracle.ValueUsd(loan.CollateralAmount, cfg.Decimals, quote)
	if err != nil {
		return nil, err
	}

	debt := debtOwed(loan, now)
	discount := e.discountBps(graceEnd, now)
	priceFactor := new(big.Rat).SetFrac64(int64(maxBps-discount), maxBps)
	discountedRat := new(big.Rat).SetInt(collateralUsd)
	discountedRat.Mul(discountedRat, priceFactor)
	discountedUsd := new(big.Int).Quo(discountedRat.Num(), discountedRat.Denom())

	result := &LiquidationResult{
		LoanID:        loanID,
		Liquidator:    liquidator,
		DebtUsd:       debt,
		SeizedUnits:   big.NewInt(0),
		RewardUnits:   big.NewInt(0),
		FeeUnits:      big.NewInt(0),
		ReturnedUnits: big.NewInt(0),
		CoveredUsd:    big.NewInt(0),
		ShortfallUsd:  big.NewInt(0),
		DiscountBps:   discount,
	}

	liqAccount, err := e.state.GetAccount(liquidator)
	if err != nil {
		return nil, err
	}
	borrowerAccount, err := e.state.GetAccount(loan.Borrower)
	if err != nil {
		return nil, err
	}

	if discountedUsd.Cmp(debt) >= 0 {
		// Solvent auction: seize only what the debt commands at the
		// discounted price.
		result.PaidUsd = new(big.Int).Set(debt)
		discountedQuote := oracle.PriceQuote{RateUsd: new(big.Rat).Mul(quote.RateUsd, priceFactor), Timestamp: quote.Timestamp, Source: quote.Source}
		seized := unitsForValue(debt, cfg.Decimals, discountedQuote)
		if seized.Cmp(loan.CollateralAmount) > 0 {
			seized.Set(loan.CollateralAmount)
		}
		result.SeizedUnits = seized

		excess := new(big.Int).Sub(loan.CollateralAmount, seized)
		reward := new(big.Int).Mul(excess, new(big.Int).SetUint64(e.params.LiquidatorRewardBps))
		reward.Quo(reward, big.NewInt(maxBps))
		fee := new(big.Int).Mul(excess, new(big.Int).SetUint64(e.params.InsuranceShareBps))
		fee.Quo(fee, big.NewInt(maxBps))
		returned := new(big.Int).Sub(excess, new(big.Int).Add(reward, fee))
		result.RewardUnits = reward
		result.FeeUnits = fee
		result.ReturnedUnits = returned

		if !liqAccount.Debit(types.SettlementSymbol, debt) {
			return nil, ErrInsufficientFunds
		}
		liqAccount.Credit(loan.CollateralAsset, new(big.Int).Add(seized, reward))
		borrowerAccount.Credit(loan.CollateralAsset, returned)
		if fee.Sign() > 0 {
			// The insurance share is held as collateral units in the fund's
			// module account and booked into the fund at its market value.
			feeAccount, err := e.state.GetAccount(e.params.InsuranceCollector)
			if err != nil {
				return nil, err
			}
			feeAccount.Credit(loan.CollateralAsset, fee)
			if err := e.state.PutAccount(e.params.InsuranceCollector, feeAccount); err != nil {
				return nil, err
			}
			feeUsd, err := oracle.ValueUsd(fee, cfg.Decimals, quote)
			if err != nil {
				return nil, err
			}
			if feeUsd.Sign() > 0 {
				if _, err := e.fund.Deposit(feeUsd); err != nil {
					return nil, err
				}
			}
		}
	} else {
		// Underwater auction: all collateral goes to the liquidator at the
		// discounted price and insurance absorbs what it can.
		result.PaidUsd = new(big.Int).Set(discountedUsd)
		result.SeizedUnits = new(big.Int).Set(loan.CollateralAmount)
		if discountedUsd.Sign() > 0 {
			if !liqAccount.Debit(types.SettlementSymbol, discountedUsd) {
				return nil, ErrInsufficientFunds
			}
		}
		liqAccount.Credit(loan.CollateralAsset, loan.CollateralAmount)

		shortfall := new(big.Int).Sub(debt, discountedUsd)
		covered, residual, err := e.fund.CoverLoss(loanID, loan.PrincipalUsd, shortfall)
		if err != nil {
			return nil, err
		}
		result.CoveredUsd = covered
		result.ShortfallUsd = residual
	}

	if err := e.state.PutAccount(liquidator, liqAccount); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(loan.Borrower, borrowerAccount); err != nil {
		return nil, err
	}

	loan.Status = StatusLiquidated
	loan.ClosedAt = now
	loan.CollateralAmount = big.NewInt(0)
	if err := e.state.PutLoan(loan); err != nil {
		return nil, err
	}
	if err := e.ledger.RecordLiquidation(loan.Borrower); err != nil {
		return nil, err
	}

	recovered := new(big.Int).Add(result.PaidUsd, result.CoveredUsd)
	e.emit(events.LoanLiquidated{
		ID:           loanID,
		Borrower:     loan.Borrower,
		Liquidator:   liquidator,
		DebtUsd:      new(big.Int).Set(debt),
		RecoveredUsd: recovered,
		ShortfallUsd: new(big.Int).Set(result.ShortfallUsd),
		DiscountBps:  discount,
	})
	return result, nil
}
