// Package provider contains the concrete vendor adapters. Each adapter is
// pure translation plus an HTTP call; resilience is layered on by the
// orchestrating services.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/amirasaad/marketdata/pkg/domain"
)

// classifyStatus maps a non-2xx vendor status into the shared error taxonomy:
// 429 is RATE_LIMITED so the orchestrator can tell throttling from breakage;
// auth failures, 5xx and everything else are PROVIDER_FAILED.
func classifyStatus(providerName string, status int, body []byte) *domain.ProviderError {
	code := domain.ErrProviderFailed
	if status == http.StatusTooManyRequests {
		code = domain.ErrRateLimited
	}
	return domain.NewProviderError(code, providerName,
		"vendor returned status %d: %s", status, truncate(body, 256))
}

// getJSON performs a GET and decodes the 2xx response into dest using
// json.Number so numeric fields survive as exact decimal strings. Non-2xx
// statuses and transport errors come back classified.
func getJSON(ctx context.Context, client *http.Client, providerName, url string, header http.Header, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.NewProviderError(domain.ErrProviderFailed, providerName, "build request: %v", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return &domain.ProviderError{
			Code:     domain.ErrProviderFailed,
			Provider: providerName,
			Message:  "request failed",
			Err:      err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return classifyStatus(providerName, resp.StatusCode, body)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return domain.NewProviderError(domain.ErrInvalidResponse, providerName, "decode response: %v", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s... (%d bytes)", b[:n], len(b))
}
