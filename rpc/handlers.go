package rpc

import (
	"encoding/hex"
	"math/big"
	"net/http"
	"strings"

	"creditnet/native/loan"
)

func (s *Server) handleComputeScore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	profile, agg, err := s.ledger.Snapshot(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	breakdown := s.scores.Compute(profile, agg, s.nowFn())
	s.engine.ObserveScore(breakdown.Overall)
	writeJSON(w, http.StatusOK, newScoreView(addr, breakdown))
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	agg, err := s.ledger.Aggregate(addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, aggregateView{
		Address:            req.Address,
		TotalLoans:         agg.TotalLoans,
		RepaidLoans:        agg.RepaidLoans,
		LiquidatedLoans:    agg.LiquidatedLoans,
		HighLtvLoans:       agg.HighLtvLoans,
		TotalBorrowedUsd:   formatAmount(agg.TotalBorrowedUsd),
		TotalRepaidUsd:     formatAmount(agg.TotalRepaidUsd),
		TotalCollateralUsd: formatAmount(agg.TotalCollateralUsd),
	})
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Borrower         string `json:"borrower"`
		Asset            string `json:"asset"`
		CollateralAmount string `json:"collateralAmount"`
		PrincipalUsd     string `json:"principalUsd"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	collateral, err := parseAmount(req.CollateralAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	principal, err := parseAmount(req.PrincipalUsd)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.loans.Borrow(borrower, req.Asset, collateral, principal)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanView(created))
}

func (s *Server) handleRepay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Borrower  string `json:"borrower"`
		LoanID    uint64 `json:"loanId"`
		AmountUsd string `json:"amountUsd"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.AmountUsd)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	remaining, final, err := s.loans.Repay(borrower, req.LoanID, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"loanId":       req.LoanID,
		"remainingUsd": formatAmount(remaining),
		"final":        final,
	})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Liquidator string `json:"liquidator"`
		LoanID     uint64 `json:"loanId"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	liquidator, err := parseAddress(req.Liquidator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := s.loans.Liquidate(liquidator, req.LoanID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidationView{
		LoanID:        result.LoanID,
		Liquidator:    req.Liquidator,
		DebtUsd:       formatAmount(result.DebtUsd),
		PaidUsd:       formatAmount(result.PaidUsd),
		SeizedUnits:   formatAmount(result.SeizedUnits),
		RewardUnits:   formatAmount(result.RewardUnits),
		FeeUnits:      formatAmount(result.FeeUnits),
		ReturnedUnits: formatAmount(result.ReturnedUnits),
		CoveredUsd:    formatAmount(result.CoveredUsd),
		ShortfallUsd:  formatAmount(result.ShortfallUsd),
		DiscountBps:   result.DiscountBps,
	})
}

func (s *Server) handleGetLoans(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoanID   uint64 `json:"loanId,omitempty"`
		Borrower string `json:"borrower,omitempty"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.LoanID != 0 {
		record, err := s.loans.Loan(req.LoanID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newLoanView(record))
		return
	}
	if strings.TrimSpace(req.Borrower) == "" {
		writeError(w, http.StatusBadRequest, "loanId or borrower required")
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, err := s.loans.LoansByBorrower(borrower)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	views := make([]loanView, 0, len(records))
	for _, record := range records {
		views = append(views, newLoanView(record))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loans": views})
}

func (s *Server) handleLoanHealth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoanID uint64 `json:"loanId"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := s.loans.PokeHealth(req.LoanID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	view := healthView{
		LoanID:          status.LoanID,
		HealthFactorBps: status.HealthFactorBps,
		Risk:            status.Risk.String(),
		DebtUsd:         formatAmount(status.DebtUsd),
		CollateralUsd:   formatAmount(status.CollateralUsd),
		GraceStartedAt:  status.GraceStartedAt,
		LiquidatableAt:  status.LiquidatableAt,
	}
	if status.HealthFactorBps == loan.HealthUnbounded {
		view.HealthFactorBps = 0
		view.Unbounded = true
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCollateralDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleCollateralOp(w, r, s.loans.DepositCollateral)
}

func (s *Server) handleCollateralWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleCollateralOp(w, r, s.loans.WithdrawCollateral)
}

func (s *Server) handleCollateralOp(w http.ResponseWriter, r *http.Request, op func([20]byte, uint64, *big.Int) error) {
	var req struct {
		Owner  string `json:"owner"`
		LoanID uint64 `json:"loanId"`
		Amount string `json:"amount"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := op(owner, req.LoanID, amount); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCrossChainReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address    string `json:"address"`
		ChainID    string `json:"chainId"`
		Score      uint64 `json:"score"`
		ReportedAt uint64 `json:"reportedAt"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ledger.ReportChainScore(addr, req.ChainID, req.Score, req.ReportedAt); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGovernanceReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address   string `json:"address"`
		Votes     uint64 `json:"votes"`
		Proposals uint64 `json:"proposals"`
		PowerBps  uint64 `json:"powerBps"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.ledger.ReportGovernance(addr, req.Votes, req.Proposals, req.PowerBps); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleKycSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address         string `json:"address"`
		CredentialHash  string `json:"credentialHash"`
		Expiry          uint64 `json:"expiry"`
		IssuerSignature string `json:"issuerSignature"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hashBytes, err := hex.DecodeString(strings.TrimPrefix(req.CredentialHash, "0x"))
	if err != nil || len(hashBytes) != 32 {
		writeError(w, http.StatusBadRequest, "credentialHash must be 32 hex bytes")
		return
	}
	var hash [32]byte
	copy(hash[:], hashBytes)
	sig, err := hex.DecodeString(strings.TrimPrefix(req.IssuerSignature, "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "issuerSignature must be hex encoded")
		return
	}
	if err := s.kyc.SubmitProof(addr, hash, req.Expiry, sig); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (s *Server) handleStakeBond(w http.ResponseWriter, r *http.Request) {
	s.handleStakeOp(w, r, s.ledger.BondStake)
}

func (s *Server) handleStakeUnbond(w http.ResponseWriter, r *http.Request) {
	s.handleStakeOp(w, r, s.ledger.UnbondStake)
}

func (s *Server) handleStakeOp(w http.ResponseWriter, r *http.Request, op func([20]byte, *big.Int) (*big.Int, error)) {
	var req struct {
		Address string `json:"address"`
		Amount  string `json:"amount"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	total, err := op(addr, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"totalStaked": formatAmount(total)})
}

func (s *Server) handleInsuranceFund(w http.ResponseWriter, _ *http.Request) {
	fund, err := s.fund.Fund()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fundView{
		BalanceUsd:        formatAmount(fund.BalanceUsd),
		TotalAllocatedUsd: formatAmount(fund.TotalAllocatedUsd),
		TotalPaidOutUsd:   formatAmount(fund.TotalPaidOutUsd),
	})
}

func (s *Server) handleInsuranceAllocate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RevenueUsd string `json:"revenueUsd"`
	}
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	revenue, err := parseAmount(req.RevenueUsd)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	added, err := s.fund.Allocate(revenue)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"addedUsd": formatAmount(added)})
}
