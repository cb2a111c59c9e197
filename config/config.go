package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the top-level node configuration, loaded from TOML.
type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	LogLevel       string `toml:"LogLevel"`
	LogFormat      string `toml:"LogFormat"`

	Oracle    OracleConfig    `toml:"Oracle"`
	Score     ScoreConfig     `toml:"Score"`
	Loan      LoanConfig      `toml:"Loan"`
	Insurance InsuranceConfig `toml:"Insurance"`
	KYC       KYCConfig       `toml:"KYC"`
	RPC       RPCConfig       `toml:"RPC"`
}

// OracleConfig wires the price-feed aggregator.
type OracleConfig struct {
	Priority      []string `toml:"Priority"`
	MaxAgeSeconds uint64   `toml:"MaxAgeSeconds"`
	CoinGeckoIDs  []string `toml:"CoinGeckoIDs"`
}

// ScoreConfig carries the stake thresholds of the sybil sub-score.
type ScoreConfig struct {
	StakeTier1 int64 `toml:"StakeTier1"`
	StakeTier2 int64 `toml:"StakeTier2"`
	StakeTier3 int64 `toml:"StakeTier3"`
}

// AssetConfig is one allow-listed collateral asset.
type AssetConfig struct {
	Symbol   string `toml:"Symbol"`
	Decimals uint8  `toml:"Decimals"`
}

// LoanConfig carries the loan engine's risk and auction parameters.
type LoanConfig struct {
	LiquidationThresholdBps uint64        `toml:"LiquidationThresholdBps"`
	DangerThresholdBps      uint64        `toml:"DangerThresholdBps"`
	SafeThresholdBps        uint64        `toml:"SafeThresholdBps"`
	AuctionWindowSeconds    uint64        `toml:"AuctionWindowSeconds"`
	MaxDiscountBps          uint64        `toml:"MaxDiscountBps"`
	LiquidatorRewardBps     uint64        `toml:"LiquidatorRewardBps"`
	InsuranceShareBps       uint64        `toml:"InsuranceShareBps"`
	MinPrincipalUsd         int64         `toml:"MinPrincipalUsd"`
	InsuranceCollector      string        `toml:"InsuranceCollector"`
	Assets                  []AssetConfig `toml:"Assets"`
	QuotaRequestsPerEpoch   uint32        `toml:"QuotaRequestsPerEpoch"`
	QuotaUsdPerEpoch        int64         `toml:"QuotaUsdPerEpoch"`
	QuotaEpochSeconds       uint32        `toml:"QuotaEpochSeconds"`
}

// InsuranceConfig carries the fund's skim and coverage limits.
type InsuranceConfig struct {
	AllocationBps  uint64 `toml:"AllocationBps"`
	MaxCoverageBps uint64 `toml:"MaxCoverageBps"`
}

// KYCConfig lists the bech32 addresses of authorized credential issuers.
type KYCConfig struct {
	Issuers []string `toml:"Issuers"`
}

// RPCConfig throttles the public HTTP surface.
type RPCConfig struct {
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
}

// Default returns the configuration used when no file exists yet.
func Default() *Config {
	return &Config{
		ListenAddress:  ":8646",
		MetricsAddress: ":9090",
		DataDir:        "./data",
		LogLevel:       "info",
		LogFormat:      "json",
		Oracle: OracleConfig{
			Priority:      []string{"manual", "coingecko"},
			MaxAgeSeconds: 300,
		},
		Score: ScoreConfig{
			StakeTier1: 100,
			StakeTier2: 1_000,
			StakeTier3: 10_000,
		},
		Loan: LoanConfig{
			LiquidationThresholdBps: 9_500,
			DangerThresholdBps:      9_750,
			SafeThresholdBps:        10_000,
			AuctionWindowSeconds:    6 * 3_600,
			MaxDiscountBps:          2_000,
			LiquidatorRewardBps:     500,
			InsuranceShareBps:       500,
			MinPrincipalUsd:         100,
			Assets: []AssetConfig{
				{Symbol: "ETH", Decimals: 18},
				{Symbol: "WBTC", Decimals: 8},
				{Symbol: "ATOM", Decimals: 6},
			},
			QuotaEpochSeconds: 3_600,
		},
		Insurance: InsuranceConfig{
			AllocationBps:  1_000,
			MaxCoverageBps: 5_000,
		},
		RPC: RPCConfig{
			RateLimitPerSecond: 50,
			RateLimitBurst:     100,
		},
	}
}

// Load reads the configuration at path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
