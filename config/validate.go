package config

import (
	"fmt"
	"strings"

	"creditnet/crypto"
)

const maxBps = 10_000

// Validate rejects configurations that would put the engine into an unsafe or
// self-contradictory state.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "json", "text":
	default:
		return fmt.Errorf("config: LogFormat must be json or text, got %q", c.LogFormat)
	}

	if c.Oracle.MaxAgeSeconds == 0 {
		return fmt.Errorf("config: Oracle.MaxAgeSeconds must be positive, the valuation path fails closed on stale quotes")
	}

	loan := c.Loan
	if loan.LiquidationThresholdBps == 0 || loan.LiquidationThresholdBps > maxBps {
		return fmt.Errorf("config: Loan.LiquidationThresholdBps out of range")
	}
	if loan.DangerThresholdBps < loan.LiquidationThresholdBps {
		return fmt.Errorf("config: Loan.DangerThresholdBps below the liquidation threshold")
	}
	if loan.SafeThresholdBps < loan.DangerThresholdBps {
		return fmt.Errorf("config: Loan.SafeThresholdBps below the danger threshold")
	}
	if loan.MaxDiscountBps >= maxBps {
		return fmt.Errorf("config: Loan.MaxDiscountBps must stay below 100%%")
	}
	if loan.AuctionWindowSeconds == 0 {
		return fmt.Errorf("config: Loan.AuctionWindowSeconds must be positive")
	}
	if loan.LiquidatorRewardBps+loan.InsuranceShareBps > maxBps {
		return fmt.Errorf("config: excess split exceeds 100%%")
	}
	if len(loan.Assets) == 0 {
		return fmt.Errorf("config: at least one collateral asset must be allow-listed")
	}
	seen := map[string]bool{}
	for _, asset := range loan.Assets {
		symbol := strings.ToUpper(strings.TrimSpace(asset.Symbol))
		if symbol == "" {
			return fmt.Errorf("config: collateral asset with empty symbol")
		}
		if seen[symbol] {
			return fmt.Errorf("config: collateral asset %s listed twice", symbol)
		}
		seen[symbol] = true
	}
	if loan.InsuranceCollector != "" {
		if _, err := crypto.DecodeAddress(loan.InsuranceCollector); err != nil {
			return fmt.Errorf("config: Loan.InsuranceCollector: %w", err)
		}
	}

	if c.Insurance.AllocationBps > maxBps {
		return fmt.Errorf("config: Insurance.AllocationBps out of range")
	}
	if c.Insurance.MaxCoverageBps > maxBps {
		return fmt.Errorf("config: Insurance.MaxCoverageBps out of range")
	}

	for _, issuer := range c.KYC.Issuers {
		if _, err := crypto.DecodeAddress(issuer); err != nil {
			return fmt.Errorf("config: KYC issuer %q: %w", issuer, err)
		}
	}
	return nil
}
