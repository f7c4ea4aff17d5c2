// Package scheduler provides cron-based background jobs for pagebot.
//
// This file implements the scheduled feed post poller.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/rodge1109/pagebot/internal/models"
)

// DueWindow is how far past its scheduled time a post may still be
// published. Posts older than this are left alone so a long outage does
// not flood the feed with stale content.
const DueWindow = 10 * time.Minute

// PollInterval is the cron cadence of the poster.
const PollInterval = "*/5 * * * *"

// postTimeLayouts are the accepted spreadsheet datetime formats, tried
// in order.
var postTimeLayouts = []string{
	"2006-01-02 15:04",
	"1/2/2006 15:04",
	"1/2/2006 3:04 PM",
	"January 2, 2006 3:04 PM",
	time.RFC3339,
}

// PostSource lists the pages and their pending feed posts.
type PostSource interface {
	Pages(ctx context.Context) ([]models.PageConfig, error)
	ScheduledPosts(ctx context.Context, sheetID string) ([]models.ScheduledPost, error)
	MarkPosted(ctx context.Context, sheetID string, row int) error
}

// Publisher pushes content to a page's feed.
type Publisher interface {
	PostText(ctx context.Context, pageToken, pageID, message string) error
	PostImage(ctx context.Context, pageToken, pageID, imageURL, caption string) error
	PostAlbum(ctx context.Context, pageToken, pageID string, imageURLs []string, message string) error
}

// Poster publishes spreadsheet-scheduled feed posts when their time
// comes due.
type Poster struct {
	source    PostSource
	publisher Publisher
	tz        *time.Location
	clock     func() time.Time
}

// NewPoster creates a poster interpreting schedule times in tz.
func NewPoster(source PostSource, publisher Publisher, tz *time.Location, clock func() time.Time) *Poster {
	if tz == nil {
		tz = time.UTC
	}
	if clock == nil {
		clock = time.Now
	}
	return &Poster{source: source, publisher: publisher, tz: tz, clock: clock}
}

// Register schedules the poller on s.
func (p *Poster) Register(s *Scheduler) error {
	return s.AddJob(PollInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		p.Run(ctx)
	})
}

// Run performs one polling pass over every configured page.
func (p *Poster) Run(ctx context.Context) {
	pages, err := p.source.Pages(ctx)
	if err != nil {
		slog.Error("Scheduled post poll failed to list pages", "error", err)
		return
	}
	for _, page := range pages {
		p.runPage(ctx, page)
	}
}

func (p *Poster) runPage(ctx context.Context, page models.PageConfig) {
	posts, err := p.source.ScheduledPosts(ctx, page.KeywordsSheetID)
	if err != nil {
		slog.Error("Scheduled post poll failed", "error", err, "page", page.PageID)
		return
	}
	now := p.clock()
	for _, post := range posts {
		if post.Posted {
			continue
		}
		at, ok := p.parseAt(post.At)
		if !ok {
			slog.Warn("Scheduled post has unparseable time", "page", page.PageID, "row", post.Row, "at", post.At)
			continue
		}
		if at.After(now) || now.Sub(at) > DueWindow {
			continue
		}
		if err := p.publish(ctx, page, post); err != nil {
			slog.Error("Scheduled post publish failed", "error", err, "page", page.PageID, "row", post.Row)
			continue
		}
		if err := p.source.MarkPosted(ctx, page.KeywordsSheetID, post.Row); err != nil {
			slog.Error("Failed to mark scheduled post published", "error", err, "page", page.PageID, "row", post.Row)
			continue
		}
		slog.Info("Published scheduled post", "page", page.PageID, "row", post.Row, "type", post.Type)
	}
}

func (p *Poster) publish(ctx context.Context, page models.PageConfig, post models.ScheduledPost) error {
	switch post.Type {
	case models.PostImage:
		if len(post.ImageURLs) > 0 {
			return p.publisher.PostImage(ctx, page.PageToken, page.PageID, post.ImageURLs[0], post.Message)
		}
	case models.PostAlbum:
		if len(post.ImageURLs) > 1 {
			return p.publisher.PostAlbum(ctx, page.PageToken, page.PageID, post.ImageURLs, post.Message)
		}
		if len(post.ImageURLs) == 1 {
			return p.publisher.PostImage(ctx, page.PageToken, page.PageID, post.ImageURLs[0], post.Message)
		}
	}
	// Text posts, and image rows missing their URLs, fall back to text.
	return p.publisher.PostText(ctx, page.PageToken, page.PageID, post.Message)
}

func (p *Poster) parseAt(raw string) (time.Time, bool) {
	for _, layout := range postTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, p.tz); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
