package sms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds configuration for the Twilio gateway.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioOption configures the Twilio client.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromNumber sets the sending number.
func WithFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromNumber = from }
}

// Twilio sends SMS through the Twilio REST API.
type Twilio struct {
	client *twilio.RestClient
	from   string
}

// NewTwilio creates a Twilio gateway client.
func NewTwilio(opts ...TwilioOption) (*Twilio, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Twilio{client: client, from: cfg.FromNumber}, nil
}

// SendSMS delivers one message through Twilio.
func (t *Twilio) SendSMS(ctx context.Context, number, text string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(number)
	params.SetFrom(t.from)
	params.SetBody(text)

	if _, err := t.client.Api.CreateMessage(params); err != nil {
		slog.Error("twilio SendSMS failed", "to", number, "error", err)
		return fmt.Errorf("failed to send SMS to %s: %w", number, err)
	}
	slog.Debug("twilio message sent", "to", number)
	return nil
}
