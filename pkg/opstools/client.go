package opstools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultRequestTimeout bounds calls to collaborator services.
const DefaultRequestTimeout = 10 * time.Second

// maxErrorBodyBytes limits how much of a failed response body is
// carried into the error message.
const maxErrorBodyBytes = 512

// MetricsClient talks to the metrics query service.
type MetricsClient struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewMetricsClient creates a client for the metrics query service.
func NewMetricsClient(baseURL string, timeout time.Duration) *MetricsClient {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &MetricsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  log.With().Str("component", "metrics_client").Logger(),
	}
}

// Query fetches a metric series. Window is a duration expression like
// "15m"; service narrows the query to one service when non-empty.
func (c *MetricsClient) Query(ctx context.Context, metric, service, window string) (string, error) {
	params := url.Values{}
	params.Set("metric", metric)
	if service != "" {
		params.Set("service", service)
	}
	if window != "" {
		params.Set("window", window)
	}

	endpoint := fmt.Sprintf("%s/api/v1/query?%s", c.baseURL, params.Encode())
	return c.get(ctx, endpoint)
}

// ServiceHealth fetches the current health summary for a service.
func (c *MetricsClient) ServiceHealth(ctx context.Context, service string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/health/%s", c.baseURL, url.PathEscape(service))
	return c.get(ctx, endpoint)
}

func (c *MetricsClient) get(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("metrics service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics service response: %w", err)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Metrics service call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("metrics service returned %d: %s", resp.StatusCode, truncateBody(body))
	}
	return string(body), nil
}

// DashboardClient talks to the dashboard service.
type DashboardClient struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewDashboardClient creates a client for the dashboard service.
func NewDashboardClient(baseURL string, timeout time.Duration) *DashboardClient {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &DashboardClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  log.With().Str("component", "dashboard_client").Logger(),
	}
}

// Create submits a dashboard definition and returns the service's
// response, which includes the dashboard location.
func (c *DashboardClient) Create(ctx context.Context, definition []byte) (string, error) {
	endpoint := c.baseURL + "/api/v1/dashboards"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(definition))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("dashboard service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read dashboard service response: %w", err)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Dashboard service call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("dashboard service returned %d: %s", resp.StatusCode, truncateBody(body))
	}
	return string(body), nil
}

func truncateBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodyBytes {
		return s[:maxErrorBodyBytes] + "..."
	}
	return s
}
