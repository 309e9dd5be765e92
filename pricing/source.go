// Package pricing resolves asset prices in USD through a CoinGecko-style
// index, with caching, request collapsing, and a static fallback table for
// when the index is down or throttling.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrThrottled is returned when the index answers 429. It is the only
// upstream error worth retrying.
var ErrThrottled = errors.New("price index throttled the request")

// ErrNoPrice is returned when the index answered but did not quote the
// asset (unknown id, unlisted contract).
var ErrNoPrice = errors.New("price index has no quote for asset")

// DefaultBaseURL is the public CoinGecko API root.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// Source fetches spot prices. Implementations return raw upstream errors;
// caching and fallbacks live in the Oracle.
type Source interface {
	// NativePrice quotes a native coin by index id ("ethereum").
	NativePrice(ctx context.Context, id string) (decimal.Decimal, error)
	// TokenPrice quotes a token by platform id and contract address.
	TokenPrice(ctx context.Context, platform, contract string) (decimal.Decimal, error)
}

// HTTPSource is the CoinGecko-compatible implementation of Source.
type HTTPSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSource builds a source against baseURL (DefaultBaseURL when
// empty). apiKey, when set, is sent as the x-cg-demo-api-key header.
func NewHTTPSource(baseURL, apiKey string, client *http.Client) *HTTPSource {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

// NativePrice implements Source via GET /simple/price.
func (s *HTTPSource) NativePrice(ctx context.Context, id string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")

	body, err := s.get(ctx, "/simple/price", q)
	if err != nil {
		return decimal.Zero, err
	}
	return extractUSD(body, id)
}

// TokenPrice implements Source via GET /simple/token_price/{platform}.
// The index keys its answer by the contract address in unspecified case,
// so the match is case-insensitive.
func (s *HTTPSource) TokenPrice(ctx context.Context, platform, contract string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("contract_addresses", contract)
	q.Set("vs_currencies", "usd")

	body, err := s.get(ctx, "/simple/token_price/"+url.PathEscape(platform), q)
	if err != nil {
		return decimal.Zero, err
	}
	return extractUSD(body, contract)
}

func (s *HTTPSource) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price index request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrThrottled
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("price index returned status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// extractUSD pulls payload[key]["usd"] out of a simple/price response,
// matching key case-insensitively.
func extractUSD(body []byte, key string) (decimal.Decimal, error) {
	var payload map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &payload); err != nil {
		return decimal.Zero, fmt.Errorf("malformed price index response: %w", err)
	}

	for k, quotes := range payload {
		if !strings.EqualFold(k, key) {
			continue
		}
		usd, ok := quotes["usd"]
		if !ok || usd.Sign() <= 0 {
			return decimal.Zero, ErrNoPrice
		}
		return usd, nil
	}
	return decimal.Zero, ErrNoPrice
}
