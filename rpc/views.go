package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"creditnet/crypto"
	"creditnet/native/common"
	"creditnet/native/credit"
	"creditnet/native/insurance"
	"creditnet/native/loan"
	"creditnet/native/oracle"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// writeEngineError maps the engine error taxonomy onto HTTP status codes:
// rejected input 400, unknown records 404, precondition failures 409, quota
// 429, staleness and pauses 503.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, loan.ErrInvalidAmount),
		errors.Is(err, loan.ErrAssetNotAllowed),
		errors.Is(err, loan.ErrPrincipalTooSmall),
		errors.Is(err, loan.ErrLtvExceeded),
		errors.Is(err, credit.ErrInvalidAmount),
		errors.Is(err, credit.ErrInvalidChainScore),
		errors.Is(err, credit.ErrKycBadSignature),
		errors.Is(err, credit.ErrKycExpired),
		errors.Is(err, insurance.ErrInvalidAmount):
		status = http.StatusBadRequest
	case errors.Is(err, loan.ErrLoanNotFound):
		status = http.StatusNotFound
	case errors.Is(err, loan.ErrLoanNotActive),
		errors.Is(err, loan.ErrNotBorrower),
		errors.Is(err, loan.ErrGraceActive),
		errors.Is(err, loan.ErrSelfLiquidation),
		errors.Is(err, loan.ErrHealthTooLow),
		errors.Is(err, loan.ErrInsufficientCollateral),
		errors.Is(err, loan.ErrInsufficientFunds),
		errors.Is(err, credit.ErrInsufficientStake),
		errors.Is(err, credit.ErrStaleChainReport),
		errors.Is(err, credit.ErrKycUnknownIssuer),
		errors.Is(err, credit.ErrKycNoIssuers):
		status = http.StatusConflict
	case errors.Is(err, common.ErrQuotaRequestsExceeded),
		errors.Is(err, common.ErrQuotaUsdCapExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, oracle.ErrStaleQuote),
		errors.Is(err, common.ErrModulePaused):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

func decodeRequest(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, requestLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parseAddress(raw string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return addr.Raw(), nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.AccountPrefix, addr[:]).String()
}

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

type loanView struct {
	ID                 uint64 `json:"id"`
	Borrower           string `json:"borrower"`
	CollateralAsset    string `json:"collateralAsset"`
	CollateralAmount   string `json:"collateralAmount"`
	PrincipalUsd       string `json:"principalUsd"`
	CollateralUsdAtOrg string `json:"collateralUsdAtOrigination"`
	RepaidUsd          string `json:"repaidUsd"`
	InterestRateBps    uint64 `json:"interestRateBps"`
	MaxLtvBps          uint64 `json:"maxLtvBps"`
	GraceSeconds       uint64 `json:"graceSeconds"`
	Tier               string `json:"tier"`
	OriginationTime    uint64 `json:"originationTime"`
	GraceStartedAt     uint64 `json:"graceStartedAt,omitempty"`
	ClosedAt           uint64 `json:"closedAt,omitempty"`
	Status             string `json:"status"`
}

func newLoanView(l *loan.Loan) loanView {
	return loanView{
		ID:                 l.ID,
		Borrower:           formatAddress(l.Borrower),
		CollateralAsset:    l.CollateralAsset,
		CollateralAmount:   formatAmount(l.CollateralAmount),
		PrincipalUsd:       formatAmount(l.PrincipalUsd),
		CollateralUsdAtOrg: formatAmount(l.CollateralUsdAtOrigination),
		RepaidUsd:          formatAmount(l.RepaidUsd),
		InterestRateBps:    l.InterestRateBps,
		MaxLtvBps:          l.MaxLtvBps,
		GraceSeconds:       l.GraceSeconds,
		Tier:               credit.Tier(l.TierAtOrigination).String(),
		OriginationTime:    l.OriginationTime,
		GraceStartedAt:     l.GraceStartedAt,
		ClosedAt:           l.ClosedAt,
		Status:             l.Status.String(),
	}
}

type scoreView struct {
	Address     string `json:"address"`
	Repayment   uint64 `json:"s1Repayment"`
	Utilization uint64 `json:"s2Utilization"`
	Sybil       uint64 `json:"s3Sybil"`
	CrossChain  uint64 `json:"s4CrossChain"`
	Governance  uint64 `json:"s5Governance"`
	Overall     uint64 `json:"overall"`
	Tier        string `json:"tier"`
	AprBps      uint64 `json:"aprBps"`
	MaxLtvBps   uint64 `json:"maxLtvBps"`
	GraceSecs   uint64 `json:"graceSeconds"`
}

func newScoreView(addr [20]byte, b credit.ScoreBreakdown) scoreView {
	return scoreView{
		Address:     formatAddress(addr),
		Repayment:   b.Repayment,
		Utilization: b.Utilization,
		Sybil:       b.Sybil,
		CrossChain:  b.CrossChain,
		Governance:  b.Governance,
		Overall:     b.Overall,
		Tier:        b.Tier.String(),
		AprBps:      b.AprBps,
		MaxLtvBps:   b.MaxLtvBps,
		GraceSecs:   b.GraceSecs,
	}
}

type aggregateView struct {
	Address            string `json:"address"`
	TotalLoans         uint64 `json:"totalLoans"`
	RepaidLoans        uint64 `json:"repaidLoans"`
	LiquidatedLoans    uint64 `json:"liquidatedLoans"`
	HighLtvLoans       uint64 `json:"highLtvLoans"`
	TotalBorrowedUsd   string `json:"totalBorrowedUsd"`
	TotalRepaidUsd     string `json:"totalRepaidUsd"`
	TotalCollateralUsd string `json:"totalCollateralUsd"`
}

type healthView struct {
	LoanID          uint64 `json:"loanId"`
	HealthFactorBps uint64 `json:"healthFactorBps"`
	Unbounded       bool   `json:"unbounded,omitempty"`
	Risk            string `json:"risk"`
	DebtUsd         string `json:"debtUsd"`
	CollateralUsd   string `json:"collateralUsd"`
	GraceStartedAt  uint64 `json:"graceStartedAt,omitempty"`
	LiquidatableAt  uint64 `json:"liquidatableAt,omitempty"`
}

type liquidationView struct {
	LoanID        uint64 `json:"loanId"`
	Liquidator    string `json:"liquidator"`
	DebtUsd       string `json:"debtUsd"`
	PaidUsd       string `json:"paidUsd"`
	SeizedUnits   string `json:"seizedUnits"`
	RewardUnits   string `json:"rewardUnits"`
	FeeUnits      string `json:"feeUnits"`
	ReturnedUnits string `json:"returnedUnits"`
	CoveredUsd    string `json:"coveredUsd"`
	ShortfallUsd  string `json:"shortfallUsd"`
	DiscountBps   uint64 `json:"discountBps"`
}

type fundView struct {
	BalanceUsd        string `json:"balanceUsd"`
	TotalAllocatedUsd string `json:"totalAllocatedUsd"`
	TotalPaidOutUsd   string `json:"totalPaidOutUsd"`
}
