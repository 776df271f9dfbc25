package health

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// AppServerChecker implements health checking for the application server
// that fronts the payment processor.
type AppServerChecker struct {
	url    string
	client *http.Client
}

// NewAppServerChecker creates a new application server health checker.
// The url should be the server's health endpoint (e.g., "https://api.gatherly.app/health").
func NewAppServerChecker(url string) *AppServerChecker {
	return &AppServerChecker{
		url: url,
		client: &http.Client{
			Timeout: 3 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// HealthCheck performs a health check by making an HTTP request to the
// server's health endpoint.
func (a *AppServerChecker) HealthCheck(ctx context.Context) error {
	if a.url == "" {
		return fmt.Errorf("app server url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("app server unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("app server returned status %d", resp.StatusCode)
	}
	return nil
}
