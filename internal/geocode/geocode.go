// Package geocode resolves coordinates to addresses using the
// OpenStreetMap Nominatim API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultEndpoint = "https://nominatim.openstreetmap.org/reverse"

// Nominatim requires a identifying User-Agent on every request.
const userAgent = "pagebot/1.0"

// Client is a reverse-geocoding client.
type Client struct {
	endpoint string
	http     *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithEndpoint overrides the API endpoint (tests).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a Nominatim client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		endpoint: defaultEndpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReverseGeocode resolves coordinates to a display address. An empty
// string with nil error means the service had no answer.
func (c *Client) ReverseGeocode(ctx context.Context, lat, long float64) (string, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", long))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nominatim status %d", resp.StatusCode)
	}

	var result struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("nominatim response: %w", err)
	}
	return result.DisplayName, nil
}
