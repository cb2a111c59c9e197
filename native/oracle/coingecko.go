package oracle

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CoinGeckoOracle adapts the public CoinGecko simple price API as a USD feed.
type CoinGeckoOracle struct {
	client   HTTPDoer
	endpoint string
	idMap    map[string]string
}

const defaultCoinGeckoEndpoint = "https://api.coingecko.com/api/v3/simple/price"

// NewCoinGeckoOracle constructs a new adapter. idMap allows the caller to map
// on-chain token symbols to CoinGecko asset identifiers.
func NewCoinGeckoOracle(client HTTPDoer, endpoint string, idMap map[string]string) *CoinGeckoOracle {
	ep := strings.TrimSpace(endpoint)
	if ep == "" {
		ep = defaultCoinGeckoEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	mapped := make(map[string]string, len(idMap))
	for k, v := range idMap {
		mapped[NormalizeSymbol(k)] = strings.TrimSpace(v)
	}
	return &CoinGeckoOracle{client: client, endpoint: ep, idMap: mapped}
}

func (o *CoinGeckoOracle) assetID(symbol string) string {
	if o == nil {
		return ""
	}
	if id, ok := o.idMap[NormalizeSymbol(symbol)]; ok && id != "" {
		return id
	}
	return strings.ToLower(strings.TrimSpace(symbol))
}

func (o *CoinGeckoOracle) GetPrice(symbol string) (PriceQuote, error) {
	if o == nil {
		return PriceQuote{}, fmt.Errorf("coingecko oracle not configured")
	}
	id := o.assetID(symbol)
	if id == "" {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: unmapped asset %s", symbol)
	}
	req, err := http.NewRequest(http.MethodGet, o.endpoint, nil)
	if err != nil {
		return PriceQuote{}, err
	}
	values := url.Values{}
	values.Set("ids", id)
	values.Set("vs_currencies", "usd")
	values.Set("include_last_updated_at", "true")
	req.URL.RawQuery = values.Encode()
	resp, err := o.client.Do(req)
	if err != nil {
		return PriceQuote{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PriceQuote{}, fmt.Errorf("coingecko oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var payload map[string]map[string]json.Number
	if err := decoder.Decode(&payload); err != nil {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: decode: %w", err)
	}
	entry, ok := payload[id]
	if !ok {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: quote missing for %s", symbol)
	}
	raw, ok := entry["usd"]
	if !ok || strings.TrimSpace(raw.String()) == "" {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: empty price")
	}
	rate, ok := parseRate(raw.String())
	if !ok {
		return PriceQuote{}, fmt.Errorf("coingecko oracle: invalid rate %q", raw.String())
	}
	ts := time.Now().UTC()
	if rawTs, ok := entry["last_updated_at"]; ok {
		if parsed, err := strconv.ParseInt(rawTs.String(), 10, 64); err == nil && parsed > 0 {
			ts = time.Unix(parsed, 0)
		}
	}
	return PriceQuote{RateUsd: rate, Timestamp: ts, Source: "coingecko"}, nil
}
