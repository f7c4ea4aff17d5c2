// Package testutil provides shared fakes and helpers for pagebot tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rodge1109/pagebot/internal/models"
)

// Sent records one outbound transport action.
type Sent struct {
	Kind      string // "text", "buttons", "carousel", "media", "typing", "comment"
	Recipient string
	Text      string
	Buttons   []models.Button
	Carousel  []models.CarouselElement
	URL       string
	MediaKind models.MediaKind
	CommentID string
}

// FakeTransport captures every outbound send for assertions.
type FakeTransport struct {
	mu   sync.Mutex
	sent []Sent

	// Err, when set, is returned from every send.
	Err error
}

func (f *FakeTransport) record(s Sent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.sent = append(f.sent, s)
	return nil
}

func (f *FakeTransport) SendText(_ context.Context, _, recipient, text string) error {
	return f.record(Sent{Kind: "text", Recipient: recipient, Text: text})
}

func (f *FakeTransport) SendButtons(_ context.Context, _, recipient, text string, buttons []models.Button) error {
	return f.record(Sent{Kind: "buttons", Recipient: recipient, Text: text, Buttons: buttons})
}

func (f *FakeTransport) SendCarousel(_ context.Context, _, recipient string, elements []models.CarouselElement) error {
	return f.record(Sent{Kind: "carousel", Recipient: recipient, Carousel: elements})
}

func (f *FakeTransport) SendMedia(_ context.Context, _, recipient, url string, kind models.MediaKind) error {
	return f.record(Sent{Kind: "media", Recipient: recipient, URL: url, MediaKind: kind})
}

func (f *FakeTransport) SendTyping(_ context.Context, _, recipient string) error {
	return f.record(Sent{Kind: "typing", Recipient: recipient})
}

func (f *FakeTransport) ReplyToComment(_ context.Context, _, commentID, message string) error {
	return f.record(Sent{Kind: "comment", CommentID: commentID, Text: message})
}

// Sent returns a copy of everything recorded so far.
func (f *FakeTransport) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Sent, len(f.sent))
	copy(out, f.sent)
	return out
}

// Messages returns the recorded sends excluding typing indicators.
func (f *FakeTransport) Messages() []Sent {
	var out []Sent
	for _, s := range f.Sent() {
		if s.Kind != "typing" {
			out = append(out, s)
		}
	}
	return out
}

// Reset clears the recorded sends.
func (f *FakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// FakeConfig serves fixed routing and rule tables.
type FakeConfig struct {
	Page      *models.PageConfig
	PageErr   error
	Rules     []models.KeywordRule
	Steps     []models.StepDefinition
	Lines     []models.Hotline
	Bill      *models.BillRecord
	BillErr   error
	Refreshes int
}

func (f *FakeConfig) PageConfig(_ context.Context, pageID string) (*models.PageConfig, error) {
	if f.PageErr != nil {
		return nil, f.PageErr
	}
	if f.Page != nil && f.Page.PageID == pageID {
		return f.Page, nil
	}
	return nil, nil
}

func (f *FakeConfig) Keywords(_ context.Context, _ string, forceRefresh bool) ([]models.KeywordRule, error) {
	if forceRefresh {
		f.Refreshes++
	}
	return f.Rules, nil
}

func (f *FakeConfig) BookingSteps(_ context.Context, _ string) ([]models.StepDefinition, error) {
	return f.Steps, nil
}

func (f *FakeConfig) Hotlines(_ context.Context, _, hotlineType string) ([]models.Hotline, error) {
	var out []models.Hotline
	for _, h := range f.Lines {
		if h.Type == hotlineType {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *FakeConfig) LookupBill(_ context.Context, conscode string) (*models.BillRecord, error) {
	if f.BillErr != nil {
		return nil, f.BillErr
	}
	if f.Bill != nil && f.Bill.Conscode == conscode {
		return f.Bill, nil
	}
	return nil, nil
}

// FakePersister accumulates records in memory.
type FakePersister struct {
	mu      sync.Mutex
	Orders  []models.OrderRecord
	Helps   []models.HelpRequest
	Senders map[string]time.Time
}

func (f *FakePersister) SaveOrder(_ context.Context, rec models.OrderRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Orders = append(f.Orders, rec)
	return nil
}

func (f *FakePersister) LogHelpRequest(_ context.Context, req models.HelpRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Helps = append(f.Helps, req)
	return nil
}

func (f *FakePersister) LogSender(_ context.Context, senderID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Senders == nil {
		f.Senders = make(map[string]time.Time)
	}
	f.Senders[senderID] = at
	return nil
}

// FakeSMS records texts per number. Fail lists numbers whose sends error.
type FakeSMS struct {
	mu    sync.Mutex
	Texts map[string][]string
	Fail  map[string]error
}

func (f *FakeSMS) SendSMS(_ context.Context, number, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.Fail[number]; ok {
		return err
	}
	if f.Texts == nil {
		f.Texts = make(map[string][]string)
	}
	f.Texts[number] = append(f.Texts[number], text)
	return nil
}

// FakeGeocoder returns a canned address.
type FakeGeocoder struct {
	Address string
	Err     error
}

func (f *FakeGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (string, error) {
	return f.Address, f.Err
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response body and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with an optional JSON body.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	if body == nil {
		return httptest.NewRequest(method, url, nil)
	}
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	return httptest.NewRequest(method, url, bytes.NewReader(data))
}
