package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const semaphoreEndpoint = "https://api.semaphore.co/api/v4/messages"

// DefaultSenderName is the Semaphore sender name used when none is set.
const DefaultSenderName = "KIARA"

// SemaphoreOpts holds configuration for the Semaphore gateway.
type SemaphoreOpts struct {
	APIKey     string
	SenderName string
	Endpoint   string
	HTTPClient *http.Client
}

// SemaphoreOption configures the Semaphore client.
type SemaphoreOption func(*SemaphoreOpts)

// WithAPIKey sets the Semaphore API key.
func WithAPIKey(key string) SemaphoreOption {
	return func(o *SemaphoreOpts) { o.APIKey = key }
}

// WithSenderName sets the registered sender name.
func WithSenderName(name string) SemaphoreOption {
	return func(o *SemaphoreOpts) { o.SenderName = name }
}

// WithEndpoint overrides the API endpoint (tests).
func WithEndpoint(endpoint string) SemaphoreOption {
	return func(o *SemaphoreOpts) { o.Endpoint = endpoint }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) SemaphoreOption {
	return func(o *SemaphoreOpts) { o.HTTPClient = c }
}

// Semaphore sends SMS through the Semaphore bulk messaging API.
type Semaphore struct {
	apiKey     string
	senderName string
	endpoint   string
	http       *http.Client
}

// NewSemaphore creates a Semaphore gateway client.
func NewSemaphore(opts ...SemaphoreOption) (*Semaphore, error) {
	cfg := SemaphoreOpts{
		SenderName: DefaultSenderName,
		Endpoint:   semaphoreEndpoint,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("semaphore API key must be provided")
	}
	return &Semaphore{apiKey: cfg.APIKey, senderName: cfg.SenderName, endpoint: cfg.Endpoint, http: cfg.HTTPClient}, nil
}

// SendSMS posts one message. Semaphore reports acceptance through a
// message_id in the response body; anything else is a failure.
func (s *Semaphore) SendSMS(ctx context.Context, number, text string) error {
	form := url.Values{}
	form.Set("apikey", s.apiKey)
	form.Set("number", number)
	form.Set("message", text)
	form.Set("sendername", s.senderName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("semaphore request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if !semaphoreAccepted(body) {
		slog.Error("semaphore rejected message", "to", number, "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("semaphore rejected message to %s (status %d)", number, resp.StatusCode)
	}

	slog.Debug("semaphore message sent", "to", number)
	return nil
}

// semaphoreAccepted checks for a message_id either at the top level or in
// the first element of a response array.
func semaphoreAccepted(body []byte) bool {
	var single struct {
		MessageID any `json:"message_id"`
	}
	if err := json.Unmarshal(body, &single); err == nil && single.MessageID != nil {
		return true
	}
	var many []struct {
		MessageID any `json:"message_id"`
	}
	if err := json.Unmarshal(body, &many); err == nil && len(many) > 0 && many[0].MessageID != nil {
		return true
	}
	return false
}
