package events

import (
	"math/big"
	"strconv"

	"creditnet/crypto"
)

func formatAmount(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.String()
}

func uintToString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func addrString(addr [20]byte) string {
	return crypto.NewAddress(crypto.AccountPrefix, append([]byte(nil), addr[:]...)).String()
}
