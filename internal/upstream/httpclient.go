package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"

	"marketmanager/pkg/ratelimit"
)

// httpClient is a small rate-limited JSON GET client shared by every
// adapter, grounded on the teacher's internal/exchange/httpclient.go
// connection-pool setup and bybit.go's doRequest, stripped of signing
// (read-only ticker endpoints need no credentials).
type httpClient struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.RateLimiter
}

func newHTTPClient(baseURL string, timeout time.Duration, rate, burst float64) *httpClient {
	transport := &http.Transport{
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Transport: transport, Timeout: timeout},
		limiter: ratelimit.NewRateLimiter(rate, burst),
	}
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// getJSON performs a rate-limited GET against path, decoding the response
// body into dst. Non-2xx and timeout/rate-limit failures are classified per
// spec §4.8/§9's upstream error taxonomy.
func (c *httpClient) getJSON(ctx context.Context, path string, query url.Values, dst interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return RateLimitOrTimeout(err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return RateLimitOrTimeout(err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418 {
		return RateLimitOrTimeout(fmt.Errorf("%s responded %d", c.baseURL, resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s%s: unexpected status %d: %s", c.baseURL, path, resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := jsonAPI.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode response from %s%s: %w", c.baseURL, path, err)
	}
	return nil
}

func urlValues(kv ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}

func parseFloat(s string) float64 {
	var v float64
	if s == "" {
		return 0
	}
	if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
		return 0
	}
	return v
}
