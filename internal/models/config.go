package models

import "strings"

// PageConfig is the per-platform-page routing row: which token to send
// with and which sheets hold that page's keyword and booking tables.
type PageConfig struct {
	PageID          string `json:"page_id"`
	PageToken       string `json:"page_token"`
	KeywordsSheetID string `json:"keywords_sheet_id"`
	BookingSheetID  string `json:"booking_sheet_id"`
}

// Valid reports whether the row carries enough to route events for a page.
func (c *PageConfig) Valid() bool {
	return c != nil && c.PageID != "" && c.PageToken != "" && c.KeywordsSheetID != "" && c.BookingSheetID != ""
}

// KeywordRule is one row of the auto-reply table. Keywords holds
// comma-separated trigger words; Replies holds pipe-separated reply
// alternatives; Extra is URLs, a special-action token, or secondary text.
type KeywordRule struct {
	Keywords string `json:"keywords"`
	Replies  string `json:"replies"`
	Extra    string `json:"extra,omitempty"`
}

// Matches reports whether any of the rule's comma-separated keywords is a
// substring of the given lowercased input.
func (r KeywordRule) Matches(input string) bool {
	if r.Keywords == "" {
		return false
	}
	for _, kw := range strings.Split(strings.ToLower(r.Keywords), ",") {
		kw = strings.TrimSpace(kw)
		if kw != "" && strings.Contains(input, kw) {
			return true
		}
	}
	return false
}

// HasKeyword reports whether the rule lists the given keyword exactly,
// used to find the reserved "welcome" row.
func (r KeywordRule) HasKeyword(keyword string) bool {
	for _, kw := range strings.Split(strings.ToLower(r.Keywords), ",") {
		if strings.TrimSpace(kw) == keyword {
			return true
		}
	}
	return false
}

// ReplyAlternatives splits the pipe-separated reply cell.
func (r KeywordRule) ReplyAlternatives() []string {
	if r.Replies == "" {
		return nil
	}
	parts := strings.Split(r.Replies, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Hotline is one configured notification contact.
type Hotline struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

// HotlineEmergency is the hotline type alerts are delivered to.
const HotlineEmergency = "emergency"

// BillRecord is one resolved billing row for a consumer account code.
type BillRecord struct {
	Conscode    string `json:"conscode"`
	Consumption string `json:"consumption"`
	TotalAmount string `json:"total_amount"`
	DueDate     string `json:"due_date"`
	DisconDate  string `json:"discon_date"`
}

// ScheduledPostType is the closed set of feed post shapes.
type ScheduledPostType string

const (
	PostText  ScheduledPostType = "text"
	PostImage ScheduledPostType = "image"
	PostAlbum ScheduledPostType = "album"
)

// ScheduledPost is one row of a page's scheduled-post table. Row is the
// 1-based sheet row used to mark the post published.
type ScheduledPost struct {
	Row       int               `json:"row"`
	At        string            `json:"at"`
	Type      ScheduledPostType `json:"type"`
	Message   string            `json:"message"`
	ImageURLs []string          `json:"image_urls,omitempty"`
	Posted    bool              `json:"posted"`
}
