// Package sms provides the notification gateway used for booking
// confirmations and emergency alerts. Two providers are supported:
// Semaphore (the reference deployment's gateway) and Twilio.
package sms

import "context"

// Sender delivers one SMS to a mobile number.
type Sender interface {
	SendSMS(ctx context.Context, number, text string) error
}
