package timeseries

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// HTTPBackend writes line-protocol points over HTTP, the shape of a
// write-API timeseries database. No timeseries client library is present
// in the corpus (see DESIGN.md), so this adapts
// internal/exchange/httpclient.go's connection-pool config directly onto
// net/http rather than introducing one.
type HTTPBackend struct {
	writeURL string
	client   *http.Client
}

// NewHTTPBackend builds a backend posting to baseURL's write endpoint for
// database name db.
func NewHTTPBackend(baseURL, db string) *HTTPBackend {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &HTTPBackend{
		writeURL: strings.TrimRight(baseURL, "/") + "/write?db=" + db,
		client:   &http.Client{Transport: transport},
	}
}

// WriteLine POSTs a single line-protocol point. Non-2xx is reported as an
// error; the caller (Writer) logs and discards it.
func (b *HTTPBackend) WriteLine(ctx context.Context, line string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.writeURL, strings.NewReader(line))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("timeseries write returned %d", resp.StatusCode)
	}
	return nil
}

var _ LineWriter = (*HTTPBackend)(nil)
