package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"creditnet/config"
	"creditnet/crypto"
	"creditnet/native/common"
	"creditnet/native/credit"
	"creditnet/native/insurance"
	"creditnet/native/loan"
	"creditnet/native/oracle"
	"creditnet/observability"
	"creditnet/observability/logging"
	"creditnet/rpc"
	"creditnet/state"
	"creditnet/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	listenFlag := flag.String("listen", "", "HTTP listen address (overrides config)")
	memoryFlag := flag.Bool("memory", false, "Use an in-memory database instead of LevelDB")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *listenFlag != "" {
		cfg.ListenAddress = *listenFlag
	}

	logger := logging.Setup("credd", cfg.LogLevel, cfg.LogFormat)

	var db storage.Database
	if *memoryFlag {
		db = storage.NewMemDB()
	} else {
		leveldb, err := storage.NewLevelDB(cfg.DataDir)
		if err != nil {
			logger.Error("failed to open database", "path", cfg.DataDir, "err", err)
			os.Exit(1)
		}
		defer leveldb.Close()
		db = leveldb
	}

	manager := state.NewManager(db)

	prices := oracle.NewAggregator(cfg.Oracle.Priority, time.Duration(cfg.Oracle.MaxAgeSeconds)*time.Second)
	prices.Register("manual", oracle.NewManualOracle())
	prices.Register("coingecko", oracle.NewCoinGeckoOracle(nil, "", parseIDMap(cfg.Oracle.CoinGeckoIDs)))

	emitter := observability.NewMetricsEmitter(logger, nil)

	ledger := credit.NewLedger(manager)
	ledger.SetEmitter(emitter)

	scores := credit.NewScoreEngine(scoreParams(cfg.Score))

	kyc := credit.NewKycRegistry(ledger)
	issuers, err := parseIssuers(cfg.KYC.Issuers)
	if err != nil {
		logger.Error("invalid kyc issuer", "err", err)
		os.Exit(1)
	}
	kyc.SetIssuers(issuers)

	fund := insurance.NewEngine(manager, insurance.Params{
		AllocationBps:  cfg.Insurance.AllocationBps,
		MaxCoverageBps: cfg.Insurance.MaxCoverageBps,
	})
	fund.SetEmitter(emitter)

	loanParams, err := loanParams(cfg.Loan)
	if err != nil {
		logger.Error("invalid loan configuration", "err", err)
		os.Exit(1)
	}
	engine := loan.NewEngine(manager, ledger, scores, prices, fund, loanParams)
	engine.SetEmitter(emitter)

	server := rpc.NewServer(engine, ledger, scores, kyc, fund, logger, rpc.Config{
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
	})

	apiSrv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddress)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("metrics server listening", "addr", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server failed", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(ctx); err != nil {
		logger.Error("api shutdown", "err", err)
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		logger.Error("metrics shutdown", "err", err)
	}
}

func scoreParams(cfg config.ScoreConfig) credit.ScoreParams {
	params := credit.ScoreParams{}
	if cfg.StakeTier1 > 0 {
		params.StakeTier1 = bigInt(cfg.StakeTier1)
	}
	if cfg.StakeTier2 > 0 {
		params.StakeTier2 = bigInt(cfg.StakeTier2)
	}
	if cfg.StakeTier3 > 0 {
		params.StakeTier3 = bigInt(cfg.StakeTier3)
	}
	return params
}

func loanParams(cfg config.LoanConfig) (loan.Params, error) {
	params := loan.Params{
		LiquidationThresholdBps: cfg.LiquidationThresholdBps,
		DangerThresholdBps:      cfg.DangerThresholdBps,
		SafeThresholdBps:        cfg.SafeThresholdBps,
		AuctionWindowSeconds:    cfg.AuctionWindowSeconds,
		MaxDiscountBps:          cfg.MaxDiscountBps,
		LiquidatorRewardBps:     cfg.LiquidatorRewardBps,
		InsuranceShareBps:       cfg.InsuranceShareBps,
		BorrowQuota: common.Quota{
			MaxRequestsPerEpoch: cfg.QuotaRequestsPerEpoch,
			EpochSeconds:        cfg.QuotaEpochSeconds,
		},
	}
	if cfg.MinPrincipalUsd > 0 {
		params.MinPrincipalUsd = bigInt(cfg.MinPrincipalUsd)
	}
	if cfg.QuotaUsdPerEpoch > 0 {
		params.BorrowQuota.MaxUsdPerEpoch = bigInt(cfg.QuotaUsdPerEpoch)
	}
	if collector := strings.TrimSpace(cfg.InsuranceCollector); collector != "" {
		addr, err := crypto.DecodeAddress(collector)
		if err != nil {
			return loan.Params{}, fmt.Errorf("insurance collector: %w", err)
		}
		params.InsuranceCollector = addr.Raw()
	}
	for _, asset := range cfg.Assets {
		params.Assets = append(params.Assets, loan.AssetConfig{
			Symbol:   asset.Symbol,
			Decimals: asset.Decimals,
		})
	}
	return params, nil
}

func parseIssuers(encoded []string) ([][20]byte, error) {
	issuers := make([][20]byte, 0, len(encoded))
	for _, entry := range encoded {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(entry))
		if err != nil {
			return nil, fmt.Errorf("issuer %q: %w", entry, err)
		}
		issuers = append(issuers, addr.Raw())
	}
	return issuers, nil
}

func bigInt(v int64) *big.Int {
	return big.NewInt(v)
}

// parseIDMap converts "SYMBOL=coingecko-id" entries into a lookup map.
func parseIDMap(entries []string) map[string]string {
	idMap := make(map[string]string, len(entries))
	for _, entry := range entries {
		symbol, id, ok := strings.Cut(entry, "=")
		if !ok {
			slog.Warn("ignoring malformed coingecko mapping", "entry", entry)
			continue
		}
		idMap[strings.TrimSpace(symbol)] = strings.TrimSpace(id)
	}
	return idMap
}
