package dispatch

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/rodge1109/pagebot/internal/models"
)

// actionRequestLocation is the recognized special-action token in a
// keyword rule's extra column.
const actionRequestLocation = "request_location"

func defaultRandIntN(n int) int { return rand.IntN(n) }

// composeRuleReply turns a matched keyword rule into a deliverable reply:
// one alternative picked at random, the extra column interpreted as URLs,
// a special action, or secondary text, and bracket tokens lifted into
// buttons.
func (d *Dispatcher) composeRuleReply(ctx context.Context, cfg *models.PageConfig, senderID string, rule models.KeywordRule) *models.Reply {
	reply := &models.Reply{}

	if alts := rule.ReplyAlternatives(); len(alts) > 0 {
		reply.Text = alts[d.randIntN(len(alts))]
	}

	if extra := strings.TrimSpace(rule.Extra); extra != "" {
		switch {
		case isURLLike(extra):
			reply.Media = splitMediaURLs(extra)
		case strings.ToLower(extra) == actionRequestLocation:
			// The rule wants a location: acknowledge, then ask.
			reply.Text = ""
			ack := d.emergency.PendingText()
			ack.Secondary = d.emergency.RequestLocation(senderID)
			return ack
		default:
			reply.Secondary = models.TextReply(extra)
		}
	}

	applyButtonTokens(reply)
	if reply.Secondary != nil {
		applyButtonTokens(reply.Secondary)
	}
	return reply
}

// applyButtonTokens lifts [Label] / [Label](url) tokens out of the reply
// text into a choice template. Image sends suppress the conversion; file
// attachments ride after the button template and keep it.
func applyButtonTokens(r *models.Reply) {
	if r.Text == "" || hasImageMedia(r.Media) {
		return
	}
	clean, buttons := ExtractButtons(r.Text)
	if len(buttons) == 0 {
		return
	}
	r.Text = clean
	r.Buttons = buttons
}

func hasImageMedia(media []models.Media) bool {
	for _, m := range media {
		if m.Kind == models.MediaImage {
			return true
		}
	}
	return false
}

// isURLLike mirrors the config convention: the extra column is media when
// it starts with a scheme or points into Drive.
func isURLLike(text string) bool {
	return strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") ||
		strings.Contains(text, "drive.google.com")
}

var fileExtensions = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx"}

// splitMediaURLs splits a pipe-separated URL cell and classifies each URL
// as file or image by extension heuristic.
func splitMediaURLs(cell string) []models.Media {
	var media []models.Media
	for _, raw := range strings.Split(cell, "|") {
		url := strings.TrimSpace(raw)
		if url == "" {
			continue
		}
		media = append(media, models.Media{URL: url, Kind: classifyURL(url)})
	}
	return media
}

func classifyURL(url string) models.MediaKind {
	lowered := strings.ToLower(url)
	for _, ext := range fileExtensions {
		if strings.HasSuffix(lowered, ext) {
			return models.MediaFile
		}
	}
	if strings.Contains(lowered, "export=download") {
		return models.MediaFile
	}
	return models.MediaImage
}

// handleComment answers a page-feed comment with its keyword match, via a
// private reply falling back to a public one. Comments are deduplicated
// by ID and page-authored comments are skipped.
func (d *Dispatcher) handleComment(ctx context.Context, ev models.Event) {
	if ev.SenderID == ev.PageID {
		slog.Debug("skipping comment from page itself", "commentID", ev.CommentID)
		return
	}

	d.commentMu.Lock()
	if _, seen := d.processedComments[ev.CommentID]; seen {
		d.commentMu.Unlock()
		slog.Debug("comment already processed", "commentID", ev.CommentID)
		return
	}
	d.processedComments[ev.CommentID] = struct{}{}
	d.commentMu.Unlock()

	cfg, err := d.config.PageConfig(ctx, ev.PageID)
	if err != nil || cfg == nil || cfg.KeywordsSheetID == "" {
		slog.Error("no keywords sheet configured for page", "pageID", ev.PageID, "error", err)
		return
	}

	rules, err := d.config.Keywords(ctx, cfg.KeywordsSheetID, false)
	if err != nil {
		slog.Error("keyword load failed", "sheetID", cfg.KeywordsSheetID, "error", err)
	}

	reply := commentThanksText
	lowered := strings.ToLower(strings.TrimSpace(ev.Text))
	for _, rule := range rules {
		if rule.Matches(lowered) {
			if alts := rule.ReplyAlternatives(); len(alts) > 0 {
				reply = alts[d.randIntN(len(alts))]
			}
			break
		}
	}

	if err := d.transport.ReplyToComment(ctx, cfg.PageToken, ev.CommentID, reply); err != nil {
		slog.Error("comment reply failed", "commentID", ev.CommentID, "error", err)
	}
}
