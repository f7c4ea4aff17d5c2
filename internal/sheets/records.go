package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/sheets/v4"

	"github.com/rodge1109/pagebot/internal/models"
)

var digitsOnly = regexp.MustCompile(`[^0-9]`)

// LookupBill resolves an account code against the billing table. Codes
// compare digits-first, falling back to a case-insensitive exact match,
// because the sheet mixes formatted and raw codes.
func (c *Client) LookupBill(ctx context.Context, conscode string) (*models.BillRecord, error) {
	if c.billSheetID == "" {
		return nil, fmt.Errorf("bill sheet not configured")
	}
	rows, err := c.values(ctx, c.billSheetID, rangeBill)
	if err != nil {
		return nil, fmt.Errorf("fetch billing table: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	headers := make([]string, len(rows[0]))
	for i := range rows[0] {
		headers[i] = strings.ToLower(cell(rows[0], i))
	}
	col := func(name string) int {
		for i, h := range headers {
			if strings.Contains(h, name) {
				return i
			}
		}
		return -1
	}

	idxConscode := col("conscode")
	if idxConscode == -1 {
		return nil, fmt.Errorf("billing table has no conscode column")
	}

	userDigits := digitsOnly.ReplaceAllString(conscode, "")
	for _, row := range rows[1:] {
		sheetVal := cell(row, idxConscode)
		if sheetVal == "" {
			continue
		}
		if digitsOnly.ReplaceAllString(sheetVal, "") != userDigits &&
			!strings.EqualFold(sheetVal, strings.TrimSpace(conscode)) {
			continue
		}

		total := parseAmount(cell(row, col("water fee"))) +
			parseAmount(cell(row, col("installation fee"))) +
			parseAmount(cell(row, col("meter maintenance")))

		rec := &models.BillRecord{
			Conscode:    sheetVal,
			Consumption: orDefault(cell(row, col("consumption")), "0"),
			TotalAmount: strconv.FormatFloat(total, 'f', 2, 64),
			DueDate:     orDefault(cell(row, col("due date")), "N/A"),
			DisconDate:  orDefault(cell(row, col("disconnection date")), "N/A"),
		}
		slog.Debug("bill matched", "conscode", conscode)
		return rec, nil
	}
	return nil, nil
}

// SaveOrder appends a completed booking's answers, one column per field
// in sorted key order so columns stay stable across rows.
func (c *Client) SaveOrder(ctx context.Context, rec models.OrderRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	keys := make([]string, 0, len(rec.Answers))
	for k := range rec.Answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	row := []any{rec.SenderID}
	for _, k := range keys {
		row = append(row, rec.Answers[k])
	}
	row = append(row, rec.SavedAt.Format(time.RFC3339), rec.ID)

	if err := c.append(ctx, c.orderSheetID(), rangeOrders, row); err != nil {
		return fmt.Errorf("append order: %w", err)
	}
	slog.Info("order saved", "senderID", rec.SenderID, "orderID", rec.ID)
	return nil
}

// LogHelpRequest appends a fired alert's audit row.
func (c *Client) LogHelpRequest(ctx context.Context, req models.HelpRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	var lat, long any = "", ""
	if req.Coords != nil {
		lat, long = req.Coords.Lat, req.Coords.Long
	}
	row := []any{req.SenderID, req.SenderName, req.Address, lat, long, req.MapsLink, req.LoggedAt.Format(time.RFC3339)}
	if err := c.append(ctx, c.orderSheetID(), rangeHelpRequests, row); err != nil {
		return fmt.Errorf("append help request: %w", err)
	}
	slog.Info("help request logged", "senderID", req.SenderID, "address", req.Address)
	return nil
}

// LogSender appends a sender sighting to the audit tab.
func (c *Client) LogSender(ctx context.Context, senderID string, at time.Time) error {
	if err := c.append(ctx, c.rootSheetID, rangeSenders, []any{senderID, at.Format(time.RFC3339)}); err != nil {
		return fmt.Errorf("append sender log: %w", err)
	}
	return nil
}

// orderSheetID is where order and help-request records land. Records
// share the root sheet unless a dedicated booking sheet is configured.
func (c *Client) orderSheetID() string {
	return c.rootSheetID
}

// ScheduledPosts loads a page's pending feed posts, skipping the header.
func (c *Client) ScheduledPosts(ctx context.Context, sheetID string) ([]models.ScheduledPost, error) {
	rows, err := c.values(ctx, sheetID, rangeScheduledPosts)
	if err != nil {
		return nil, fmt.Errorf("fetch scheduled posts: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	posts := make([]models.ScheduledPost, 0, len(rows)-1)
	for i, row := range rows[1:] {
		post := models.ScheduledPost{
			Row:     i + 2, // 1-based sheet row, past the header
			At:      cell(row, 0),
			Type:    models.ScheduledPostType(strings.ToLower(cell(row, 1))),
			Message: cell(row, 2),
			Posted:  strings.EqualFold(cell(row, 4), "yes"),
		}
		if urls := cell(row, 3); urls != "" {
			for _, u := range strings.Split(urls, "|") {
				if u = strings.TrimSpace(u); u != "" {
					post.ImageURLs = append(post.ImageURLs, u)
				}
			}
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// MarkPosted flags a scheduled post's row as published.
func (c *Client) MarkPosted(ctx context.Context, sheetID string, row int) error {
	writeRange := fmt.Sprintf("ScheduledPosts!E%d", row)
	_, err := c.svc.Spreadsheets.Values.
		Update(sheetID, writeRange, &sheets.ValueRange{Values: [][]any{{"YES"}}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("mark posted: %w", err)
	}
	return nil
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
