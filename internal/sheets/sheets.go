// Package sheets backs the configuration source and the append-only
// record sink with Google Spreadsheets, matching the operator-managed
// layout: a root routing sheet plus per-page keyword and booking sheets.
package sheets

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/rodge1109/pagebot/internal/models"
)

// Sheet tab ranges, fixed by the operator-facing spreadsheet layout.
const (
	rangeWebhookConfig  = "WebhookConfig!A:D"
	rangeKeywords       = "KeywordsDM!A:C"
	rangeBookingConfig  = "BookingConfig!A:D"
	rangeHotlines       = "Hotlines!A:C"
	rangeBill           = "UD!A:Z"
	rangeSenders        = "PSIDs!A:B"
	rangeOrders         = "ConfirmedOrders!A:Z"
	rangeHelpRequests   = "HelpRequests!A:G"
	rangeScheduledPosts = "ScheduledPosts!A:E"
)

// Opts holds configuration for the sheets client.
type Opts struct {
	RootSheetID       string
	BillSheetID       string
	CredentialsJSON   []byte
	CredentialsBase64 string
}

// Option configures the sheets client.
type Option func(*Opts)

// WithRootSheetID sets the spreadsheet holding WebhookConfig and PSIDs.
func WithRootSheetID(id string) Option {
	return func(o *Opts) { o.RootSheetID = id }
}

// WithBillSheetID sets the spreadsheet holding the billing table.
func WithBillSheetID(id string) Option {
	return func(o *Opts) { o.BillSheetID = id }
}

// WithCredentialsJSON sets service-account credentials directly.
func WithCredentialsJSON(raw []byte) Option {
	return func(o *Opts) { o.CredentialsJSON = raw }
}

// WithCredentialsBase64 sets base64-wrapped service-account credentials,
// the form they take in the deployment environment.
func WithCredentialsBase64(encoded string) Option {
	return func(o *Opts) { o.CredentialsBase64 = encoded }
}

// Client reads configuration tables and appends records. Keyword tables
// are cached per sheet until explicitly refreshed.
type Client struct {
	svc         *sheets.Service
	rootSheetID string
	billSheetID string

	mu            sync.RWMutex
	keywordsCache map[string][]models.KeywordRule
}

// NewClient authenticates against the Sheets API and returns a client.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.RootSheetID == "" {
		return nil, fmt.Errorf("root sheet ID must be provided")
	}

	creds := cfg.CredentialsJSON
	if len(creds) == 0 && cfg.CredentialsBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(cfg.CredentialsBase64)
		if err != nil {
			return nil, fmt.Errorf("decode credentials: %w", err)
		}
		creds = decoded
	}

	var clientOpts []option.ClientOption
	if len(creds) > 0 {
		clientOpts = append(clientOpts, option.WithCredentialsJSON(creds))
	}
	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	slog.Info("sheets client initialized", "rootSheetID", cfg.RootSheetID)
	return &Client{
		svc:           svc,
		rootSheetID:   cfg.RootSheetID,
		billSheetID:   cfg.BillSheetID,
		keywordsCache: make(map[string][]models.KeywordRule),
	}, nil
}

// Ping verifies the root spreadsheet is reachable, for health checks.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.svc.Spreadsheets.Get(c.rootSheetID).Context(ctx).Do()
	return err
}

// PageConfig finds the routing row for a page. The booking sheet defaults
// to the keywords sheet when the column is blank.
func (c *Client) PageConfig(ctx context.Context, pageID string) (*models.PageConfig, error) {
	rows, err := c.values(ctx, c.rootSheetID, rangeWebhookConfig)
	if err != nil {
		return nil, fmt.Errorf("fetch page config: %w", err)
	}
	for _, row := range rows {
		if cell(row, 0) != pageID {
			continue
		}
		cfg := &models.PageConfig{
			PageID:          pageID,
			PageToken:       cell(row, 1),
			KeywordsSheetID: cell(row, 2),
			BookingSheetID:  cell(row, 3),
		}
		if cfg.BookingSheetID == "" {
			cfg.BookingSheetID = cfg.KeywordsSheetID
		}
		return cfg, nil
	}
	return nil, nil
}

// Pages returns every configured routing row. Rows missing a page ID or
// token are skipped.
func (c *Client) Pages(ctx context.Context) ([]models.PageConfig, error) {
	rows, err := c.values(ctx, c.rootSheetID, rangeWebhookConfig)
	if err != nil {
		return nil, fmt.Errorf("fetch page configs: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	pages := make([]models.PageConfig, 0, len(rows)-1)
	for _, row := range rows[1:] {
		cfg := models.PageConfig{
			PageID:          cell(row, 0),
			PageToken:       cell(row, 1),
			KeywordsSheetID: cell(row, 2),
			BookingSheetID:  cell(row, 3),
		}
		if cfg.PageID == "" || cfg.PageToken == "" {
			continue
		}
		if cfg.BookingSheetID == "" {
			cfg.BookingSheetID = cfg.KeywordsSheetID
		}
		pages = append(pages, cfg)
	}
	return pages, nil
}

// InvalidateKeywords drops every cached keyword table so the next lookup
// rereads the spreadsheet.
func (c *Client) InvalidateKeywords() {
	c.mu.Lock()
	c.keywordsCache = make(map[string][]models.KeywordRule)
	c.mu.Unlock()
}

// Keywords returns the keyword table for a sheet, from cache unless
// forceRefresh invalidates it. When a refresh fails, the stale cache is
// served rather than nothing.
func (c *Client) Keywords(ctx context.Context, sheetID string, forceRefresh bool) ([]models.KeywordRule, error) {
	if !forceRefresh {
		c.mu.RLock()
		cached, ok := c.keywordsCache[sheetID]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
	}

	rows, err := c.values(ctx, sheetID, rangeKeywords)
	if err != nil {
		c.mu.RLock()
		cached, ok := c.keywordsCache[sheetID]
		c.mu.RUnlock()
		if ok {
			slog.Warn("keyword refresh failed, serving stale cache", "sheetID", sheetID, "error", err)
			return cached, nil
		}
		return nil, fmt.Errorf("fetch keywords: %w", err)
	}

	rules := make([]models.KeywordRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, models.KeywordRule{
			Keywords: cell(row, 0),
			Replies:  cell(row, 1),
			Extra:    cell(row, 2),
		})
	}

	c.mu.Lock()
	c.keywordsCache[sheetID] = rules
	c.mu.Unlock()
	slog.Info("keywords refreshed", "sheetID", sheetID, "rules", len(rules))
	return rules, nil
}

// BookingSteps loads the interview definition, skipping the header row.
func (c *Client) BookingSteps(ctx context.Context, sheetID string) ([]models.StepDefinition, error) {
	rows, err := c.values(ctx, sheetID, rangeBookingConfig)
	if err != nil {
		return nil, fmt.Errorf("fetch booking config: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	steps := make([]models.StepDefinition, 0, len(rows)-1)
	for _, row := range rows[1:] {
		fieldKey := cell(row, 0)
		if fieldKey == "" {
			continue
		}
		steps = append(steps, models.StepDefinition{
			FieldKey: fieldKey,
			Prompt:   cell(row, 1),
			Type:     models.ParseStepType(cell(row, 2)),
			Choices:  models.ParseChoices(cell(row, 3)),
		})
	}
	return steps, nil
}

// Hotlines filters the contact table by type, skipping the header row.
func (c *Client) Hotlines(ctx context.Context, sheetID, hotlineType string) ([]models.Hotline, error) {
	rows, err := c.values(ctx, sheetID, rangeHotlines)
	if err != nil {
		return nil, fmt.Errorf("fetch hotlines: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	var hotlines []models.Hotline
	for _, row := range rows[1:] {
		typ, name, number := cell(row, 0), cell(row, 1), cell(row, 2)
		if !strings.EqualFold(typ, hotlineType) || number == "" {
			continue
		}
		if name == "" {
			name = "Hotline"
		}
		hotlines = append(hotlines, models.Hotline{Type: typ, Name: name, Number: number})
	}
	return hotlines, nil
}

func (c *Client) values(ctx context.Context, sheetID, readRange string) ([][]any, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(sheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *Client) append(ctx context.Context, sheetID, writeRange string, row []any) error {
	_, err := c.svc.Spreadsheets.Values.
		Append(sheetID, writeRange, &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// cell returns the trimmed string at index i, or "" outside the row.
func cell(row []any, i int) string {
	if i < 0 || i >= len(row) || row[i] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[i]))
}
