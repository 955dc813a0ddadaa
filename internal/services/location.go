package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// defaultLocationEndpoint resolves the machine's approximate location
// from its public address.
const defaultLocationEndpoint = "http://ip-api.com/json/"

// Locator answers "where am I" with a bounded external lookup. This
// is the only call in the pipeline with its own timeout.
type Locator struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// NewLocator creates a locator; timeout <= 0 means 10 seconds.
func NewLocator(timeout time.Duration) *Locator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Locator{
		endpoint: defaultLocationEndpoint,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

type locationResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	City    string `json:"city"`
	Region  string `json:"regionName"`
	Country string `json:"country"`
}

// Lookup returns "City, Region, Country". The wait is bounded; after
// the timeout the lookup is treated as failed, never retried.
func (l *Locator) Lookup(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build location request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("location lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("location lookup: status %d", resp.StatusCode)
	}

	var loc locationResponse
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return "", fmt.Errorf("decode location response: %w", err)
	}
	if loc.Status != "success" {
		return "", fmt.Errorf("location lookup failed: %s", loc.Message)
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{loc.City, loc.Region, loc.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("location lookup returned no place names")
	}
	return strings.Join(parts, ", "), nil
}
