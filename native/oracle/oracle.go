package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// PriceQuote captures the USD value of one whole unit of an asset along with
// the timestamp reported by the upstream feed and the feed identifier.
type PriceQuote struct {
	RateUsd   *big.Rat
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Timestamp: q.Timestamp, Source: q.Source}
	if q.RateUsd != nil {
		clone.RateUsd = new(big.Rat).Set(q.RateUsd)
	}
	return clone
}

// PriceOracle resolves the current USD rate for one unit of the given asset.
type PriceOracle interface {
	GetPrice(symbol string) (PriceQuote, error)
}

// ErrStaleQuote indicates that no feed produced a quote within the configured
// heartbeat. Valuation callers must treat this as a hard failure: liquidation
// and borrowing decisions never fall back to an aged price.
var ErrStaleQuote = errors.New("oracle: no fresh quote available")

// Aggregator consults registered feeds in priority order until a fresh quote
// is obtained.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	feeds    map[string]PriceOracle
	maxAge   time.Duration
	nowFn    func() time.Time
}

// NewAggregator constructs an aggregator with the provided feed priority and
// heartbeat. A zero heartbeat disables the staleness bound, which is only
// acceptable for tests.
func NewAggregator(priority []string, maxAge time.Duration) *Aggregator {
	return &Aggregator{
		priority: append([]string{}, priority...),
		feeds:    make(map[string]PriceOracle),
		maxAge:   maxAge,
		nowFn:    time.Now,
	}
}

// SetMaxAge updates the heartbeat used when filtering quotes.
func (a *Aggregator) SetMaxAge(maxAge time.Duration) {
	if a == nil {
		return
	}
	a.mu.Lock()
	a.maxAge = maxAge
	a.mu.Unlock()
}

// SetNowFunc overrides the wall clock, primarily for deterministic tests.
func (a *Aggregator) SetNowFunc(now func() time.Time) {
	if a == nil {
		return
	}
	if now == nil {
		now = time.Now
	}
	a.mu.Lock()
	a.nowFn = now
	a.mu.Unlock()
}

// Register adds or replaces a feed under the supplied identifier. Identifiers
// are stored in lowercase so lookups remain consistent regardless of
// configuration casing.
func (a *Aggregator) Register(name string, feed PriceOracle) {
	if a == nil {
		return
	}
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if trimmed == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.feeds[trimmed] = feed
	for _, entry := range a.priority {
		if strings.EqualFold(entry, trimmed) {
			return
		}
	}
	a.priority = append(a.priority, trimmed)
}

// GetPrice fetches a USD rate respecting the feed priority. Quotes older than
// the heartbeat are rejected rather than returned; when every feed fails the
// last error (or ErrStaleQuote) surfaces to the caller.
func (a *Aggregator) GetPrice(symbol string) (PriceQuote, error) {
	if a == nil {
		return PriceQuote{}, fmt.Errorf("oracle aggregator not configured")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	now := a.nowFn
	a.mu.RUnlock()

	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return PriceQuote{}, fmt.Errorf("oracle: asset symbol required")
	}

	var cutoff time.Time
	if maxAge > 0 {
		cutoff = now().Add(-maxAge)
	}

	var lastErr error
	for _, name := range priority {
		a.mu.RLock()
		feed := a.feeds[strings.ToLower(name)]
		a.mu.RUnlock()
		if feed == nil {
			continue
		}
		quote, err := feed.GetPrice(sym)
		if err != nil {
			lastErr = err
			continue
		}
		if quote.RateUsd == nil || quote.RateUsd.Sign() <= 0 {
			lastErr = fmt.Errorf("oracle %s returned invalid rate", name)
			continue
		}
		if maxAge > 0 && quote.Timestamp.Before(cutoff) {
			lastErr = ErrStaleQuote
			continue
		}
		result := quote.Clone()
		if strings.TrimSpace(result.Source) == "" {
			result.Source = strings.ToLower(name)
		}
		return result, nil
	}

	if lastErr == nil {
		lastErr = ErrStaleQuote
	} else if !errors.Is(lastErr, ErrStaleQuote) {
		// Any terminal feed failure means no fresh quote; valuation callers
		// classify on the sentinel.
		lastErr = fmt.Errorf("%w: %v", ErrStaleQuote, lastErr)
	}
	return PriceQuote{}, lastErr
}

// ManualOracle provides an in-memory feed used for tests and manual overrides
// during incident response.
type ManualOracle struct {
	mu     sync.RWMutex
	quotes map[string]PriceQuote
}

// NewManualOracle constructs an empty manual feed.
func NewManualOracle() *ManualOracle {
	return &ManualOracle{quotes: make(map[string]PriceQuote)}
}

// Set stores the provided rational USD rate for the asset.
func (m *ManualOracle) Set(symbol string, rate *big.Rat, ts time.Time) {
	if m == nil || rate == nil {
		return
	}
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return
	}
	m.mu.Lock()
	m.quotes[sym] = PriceQuote{RateUsd: new(big.Rat).Set(rate), Timestamp: ts, Source: "manual"}
	m.mu.Unlock()
}

// SetDecimal records a decimal USD rate for the asset.
func (m *ManualOracle) SetDecimal(symbol, rate string, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("manual oracle not configured")
	}
	trimmed := strings.TrimSpace(rate)
	if trimmed == "" {
		return fmt.Errorf("manual oracle: rate required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return fmt.Errorf("manual oracle: invalid rate %q", rate)
	}
	if rat.Sign() <= 0 {
		return fmt.Errorf("manual oracle: rate must be positive")
	}
	m.Set(symbol, rat, ts)
	return nil
}

// GetPrice retrieves the stored rate for the asset.
func (m *ManualOracle) GetPrice(symbol string) (PriceQuote, error) {
	if m == nil {
		return PriceQuote{}, fmt.Errorf("manual oracle not configured")
	}
	sym := NormalizeSymbol(symbol)
	m.mu.RLock()
	stored, ok := m.quotes[sym]
	m.mu.RUnlock()
	if !ok {
		return PriceQuote{}, fmt.Errorf("manual oracle: quote for %s not found", sym)
	}
	return stored.Clone(), nil
}

// NormalizeSymbol canonicalises an asset symbol for lookups.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
