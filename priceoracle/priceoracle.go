// Package priceoracle queries the external price-quote service used to
// convert a non-lovelace token differential into its ADA equivalent.
package priceoracle

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cardano-dex/batcher-monitor/cardano/value"
	"github.com/cardano-dex/batcher-monitor/metrics"
)

// Client queries a single price-quote HTTP endpoint. Quotes are fetched as
// opaque numbers; price discovery itself is out of scope.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client pointed at baseURL (e.g. "https://api.muesliswap.com/price").
func New(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

type priceResponse struct {
	Price float64 `json:"price"`
}

// PriceInAda returns the current ADA price of one unit of t. The oracle's
// params are base/quote-flipped relative to the obvious reading, matching
// the quirk in the original's get_price_in_ada.
func (c *Client) PriceInAda(t value.Token) (float64, error) {
	q := url.Values{}
	q.Set("quote-policy-id", t.PolicyID)
	q.Set("quote-tokenname", t.AssetName)
	q.Set("base-policy-id", "")
	q.Set("base-tokenname", "")

	resp, err := c.http.Get(c.baseURL + "?" + q.Encode())
	if err != nil {
		metrics.OracleQueriesTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("priceoracle: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.OracleQueriesTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("priceoracle: unexpected status %d", resp.StatusCode)
	}
	var out priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.OracleQueriesTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("priceoracle: decode response: %w", err)
	}
	metrics.OracleQueriesTotal.WithLabelValues("success").Inc()
	return out.Price, nil
}

// Cache refreshes its prices for every token priced so far no more often
// than every refreshEvery, matching the block parser's "refresh if >=180s
// since last refresh" behavior.
type Cache struct {
	client         *Client
	refreshEvery   time.Duration
	lastRefresh    time.Time
	prices         map[value.Token]float64
}

// NewCache wraps a Client with a time-gated refresh cache.
func NewCache(client *Client, refreshEvery time.Duration) *Cache {
	return &Cache{client: client, refreshEvery: refreshEvery, prices: map[value.Token]float64{}}
}

// Price returns the cached ADA price for t, querying the oracle directly if
// t has never been priced. RefreshIfDue should be called once per block to
// keep prices for already-seen tokens current.
func (c *Cache) Price(t value.Token) (float64, error) {
	if p, ok := c.prices[t]; ok {
		return p, nil
	}
	p, err := c.client.PriceInAda(t)
	if err != nil {
		return 0, err
	}
	c.prices[t] = p
	return p, nil
}

// RefreshIfDue re-queries every previously priced token if refreshEvery has
// elapsed since the last refresh. A token whose re-query fails keeps its
// stale cached price; the failure is not reported to the caller.
func (c *Cache) RefreshIfDue(now time.Time) {
	if now.Sub(c.lastRefresh) < c.refreshEvery {
		return
	}
	for t := range c.prices {
		if p, err := c.client.PriceInAda(t); err == nil {
			c.prices[t] = p
		}
	}
	c.lastRefresh = now
}
