package oracle

import (
	"fmt"
	"math/big"
	"strings"
)

func parseRate(raw string) (*big.Rat, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok || rat.Sign() <= 0 {
		return nil, false
	}
	return rat, true
}

// ValueUsd converts an asset amount in its smallest unit into a USD value,
// truncating toward zero: value = amount * rate / 10^decimals.
func ValueUsd(amount *big.Int, decimals uint8, quote PriceQuote) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("oracle: amount must be non-negative")
	}
	if quote.RateUsd == nil || quote.RateUsd.Sign() <= 0 {
		return nil, fmt.Errorf("oracle: rate must be positive")
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	value := new(big.Rat).SetInt(amount)
	value.Mul(value, quote.RateUsd)
	value.Quo(value, new(big.Rat).SetInt(scale))
	return new(big.Int).Quo(value.Num(), value.Denom()), nil
}
