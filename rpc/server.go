package rpc

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"creditnet/native/credit"
	"creditnet/native/insurance"
	"creditnet/native/loan"
	"creditnet/observability"
)

// requestLimit bounds request bodies accepted by the JSON endpoints.
const requestLimit = 1 << 20 // 1 MiB

// Config throttles the public surface.
type Config struct {
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Server exposes the credit engine over HTTP/JSON.
type Server struct {
	loans   *loan.Engine
	ledger  *credit.Ledger
	scores  *credit.ScoreEngine
	kyc     *credit.KycRegistry
	fund    *insurance.Engine
	logger  *slog.Logger
	limiter *clientLimiter
	metrics *observability.HTTPMetrics
	engine  *observability.EngineMetrics
	nowFn   func() uint64
}

// NewServer wires the HTTP surface over the engine components.
func NewServer(loans *loan.Engine, ledger *credit.Ledger, scores *credit.ScoreEngine, kyc *credit.KycRegistry, fund *insurance.Engine, logger *slog.Logger, cfg Config) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		loans:   loans,
		ledger:  ledger,
		scores:  scores,
		kyc:     kyc,
		fund:    fund,
		logger:  logger,
		limiter: newClientLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		metrics: observability.HTTP(),
		engine:  observability.Engine(),
		nowFn:   func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetNowFunc overrides the clock used for score computations.
func (s *Server) SetNowFunc(now func() uint64) {
	if s == nil || now == nil {
		return
	}
	s.nowFn = now
}

// Router builds the chi router with all endpoints mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	r.Use(s.throttle)

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/score", func(r chi.Router) {
		r.Post("/compute", s.handleComputeScore)
	})
	r.Route("/credit", func(r chi.Router) {
		r.Post("/aggregate", s.handleAggregate)
		r.Post("/crosschain/report", s.handleCrossChainReport)
		r.Post("/governance/report", s.handleGovernanceReport)
		r.Post("/kyc/submit", s.handleKycSubmit)
		r.Post("/stake/bond", s.handleStakeBond)
		r.Post("/stake/unbond", s.handleStakeUnbond)
	})
	r.Route("/loans", func(r chi.Router) {
		r.Post("/borrow", s.handleBorrow)
		r.Post("/repay", s.handleRepay)
		r.Post("/liquidate", s.handleLiquidate)
		r.Post("/get", s.handleGetLoans)
		r.Post("/health", s.handleLoanHealth)
		r.Route("/collateral", func(r chi.Router) {
			r.Post("/deposit", s.handleCollateralDeposit)
			r.Post("/withdraw", s.handleCollateralWithdraw)
		})
	})
	r.Route("/insurance", func(r chi.Router) {
		r.Get("/fund", s.handleInsuranceFund)
		r.Post("/allocate", s.handleInsuranceAllocate)
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
