package common

import (
	"errors"
	"math"
	"math/big"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaUsdCapExceeded   = errors.New("quota usd cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an address within an
// epoch.
type QuotaNow struct {
	ReqCount uint32
	UsdUsed  *big.Int
	EpochID  uint64
}

// Quota defines the borrow throttles enforced per address: a request count per
// epoch and a cap on freshly borrowed USD per epoch. Zero values disable the
// respective limit.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxUsdPerEpoch      *big.Int
	EpochSeconds        uint32
}

// Enabled reports whether any throttle is configured.
func (q Quota) Enabled() bool {
	return q.MaxRequestsPerEpoch > 0 || (q.MaxUsdPerEpoch != nil && q.MaxUsdPerEpoch.Sign() > 0)
}

// CheckQuota verifies whether the additional request and USD usage fit within
// the configured quota. The returned QuotaNow reflects the updated counters
// when the quota is not exceeded; on denial the previous counters are returned
// unchanged.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addUsd *big.Int) (QuotaNow, error) {
	next := QuotaNow{ReqCount: prev.ReqCount, EpochID: prev.EpochID}
	if prev.UsdUsed != nil {
		next.UsdUsed = new(big.Int).Set(prev.UsdUsed)
	} else {
		next.UsdUsed = big.NewInt(0)
	}
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch, UsdUsed: big.NewInt(0)}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addUsd != nil && addUsd.Sign() > 0 {
		next.UsdUsed = new(big.Int).Add(next.UsdUsed, addUsd)
	}
	if q.MaxUsdPerEpoch != nil && q.MaxUsdPerEpoch.Sign() > 0 && next.UsdUsed.Cmp(q.MaxUsdPerEpoch) > 0 {
		return prev, ErrQuotaUsdCapExceeded
	}

	return next, nil
}
