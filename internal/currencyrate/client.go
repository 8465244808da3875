// Package currencyrate implements the external currency-price service
// contract (spec §6.4), the Fiat Rate Resolver's last-resort fallback.
package currencyrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"marketmanager/pkg/retry"
	"marketmanager/pkg/utils"
)

// currencyResponse mirrors GET <url>/internal/currencies/.
type currencyResponse struct {
	Count   int `json:"count"`
	Results []struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	} `json:"results"`
}

// fiatResponse mirrors GET <url>/internal/fiat/.
type fiatResponse struct {
	Count   int `json:"count"`
	Results []struct {
		Symbol string  `json:"symbol"`
		Rate   float64 `json:"rate"`
	} `json:"results"`
}

// Client talks to the external currency-rate service.
type Client struct {
	baseURL string
	http    *http.Client
	retry   retry.Config
}

// New builds a Client. An empty baseURL disables the client; callers get
// ErrNotConfigured from every method.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		retry:   retry.NetworkConfig(),
	}
}

// ErrNotConfigured is returned when no currency-service URL was configured.
var ErrNotConfigured = fmt.Errorf("currency-rate service not configured")

// FetchCurrencyPrices implements fiatrate.CurrencyService, returning
// symbol -> price for every currency the service knows about. Non-2xx or
// count==0 is treated as "no data" (the fiatrate Resolver falls back to an
// empty map and skips summarisation for the run, per spec §4.2 step 4).
func (c *Client) FetchCurrencyPrices(ctx context.Context) (map[string]float64, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	u, err := url.JoinPath(c.baseURL, "internal", "currencies")
	if err != nil {
		return nil, err
	}

	var resp currencyResponse
	if err := retry.Do(ctx, func() error {
		return c.getJSON(ctx, u+"/", &resp)
	}, c.retry); err != nil {
		return nil, fmt.Errorf("fetch currency prices: %w", err)
	}

	if resp.Count == 0 {
		return map[string]float64{}, nil
	}

	out := make(map[string]float64, len(resp.Results))
	for _, r := range resp.Results {
		out[r.Symbol] = r.Price
	}
	return out, nil
}

// FetchFiatRates returns the service's fiat->fiat conversion rates, used
// when a secondary fiat symbol needs converting to the canonical unit.
func (c *Client) FetchFiatRates(ctx context.Context) (map[string]float64, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	u, err := url.JoinPath(c.baseURL, "internal", "fiat")
	if err != nil {
		return nil, err
	}

	var resp fiatResponse
	if err := retry.Do(ctx, func() error {
		return c.getJSON(ctx, u+"/", &resp)
	}, c.retry); err != nil {
		return nil, fmt.Errorf("fetch fiat rates: %w", err)
	}

	if resp.Count == 0 {
		return map[string]float64{}, nil
	}

	out := make(map[string]float64, len(resp.Results))
	for _, r := range resp.Results {
		out[r.Symbol] = r.Rate
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, url string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Permanent(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		utils.L().Warn("currency-rate service request failed", utils.Err(err), utils.String("url", url))
		return retry.Temporary(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("currency-rate service returned %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(dst)
}
