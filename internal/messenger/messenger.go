// Package messenger wraps the Messenger Graph API: the Send API for
// outbound messages, the profile endpoint, comment replies and page feed
// publishing. Tokens are supplied per call because each page routes with
// its own token.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rodge1109/pagebot/internal/models"
)

// DefaultGraphVersion is used when no version is configured.
const DefaultGraphVersion = "v21.0"

const defaultBaseURL = "https://graph.facebook.com"

// Opts holds configuration options for the Graph API client.
type Opts struct {
	BaseURL      string
	GraphVersion string
	HTTPClient   *http.Client
}

// Option configures the client.
type Option func(*Opts)

// WithBaseURL overrides the Graph API origin (tests).
func WithBaseURL(base string) Option {
	return func(o *Opts) { o.BaseURL = base }
}

// WithGraphVersion sets the Graph API version segment.
func WithGraphVersion(version string) Option {
	return func(o *Opts) { o.GraphVersion = version }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client is a Messenger Graph API client.
type Client struct {
	base    string
	version string
	http    *http.Client
}

// NewClient creates a Graph API client.
func NewClient(opts ...Option) *Client {
	cfg := Opts{
		BaseURL:      defaultBaseURL,
		GraphVersion: DefaultGraphVersion,
		HTTPClient:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{base: cfg.BaseURL, version: cfg.GraphVersion, http: cfg.HTTPClient}
}

type recipient struct {
	ID string `json:"id"`
}

type sendRequest struct {
	Recipient    recipient       `json:"recipient"`
	Message      json.RawMessage `json:"message,omitempty"`
	SenderAction string          `json:"sender_action,omitempty"`
}

// SendText delivers a plain text message.
func (c *Client) SendText(ctx context.Context, pageToken, psid, text string) error {
	msg, _ := json.Marshal(map[string]string{"text": text})
	return c.sendMessage(ctx, pageToken, psid, msg)
}

// SendButtons delivers a button template with up to three buttons.
func (c *Client) SendButtons(ctx context.Context, pageToken, psid, text string, buttons []models.Button) error {
	msg, _ := json.Marshal(map[string]any{
		"attachment": map[string]any{
			"type": "template",
			"payload": map[string]any{
				"template_type": "button",
				"text":          text,
				"buttons":       buttons,
			},
		},
	})
	return c.sendMessage(ctx, pageToken, psid, msg)
}

// SendCarousel delivers a generic template with one card per element.
func (c *Client) SendCarousel(ctx context.Context, pageToken, psid string, elements []models.CarouselElement) error {
	msg, _ := json.Marshal(map[string]any{
		"attachment": map[string]any{
			"type": "template",
			"payload": map[string]any{
				"template_type": "generic",
				"elements":      elements,
			},
		},
	})
	return c.sendMessage(ctx, pageToken, psid, msg)
}

// SendMedia delivers an image or file attachment by URL.
func (c *Client) SendMedia(ctx context.Context, pageToken, psid, mediaURL string, kind models.MediaKind) error {
	msg, _ := json.Marshal(map[string]any{
		"attachment": map[string]any{
			"type": string(kind),
			"payload": map[string]any{
				"url":         mediaURL,
				"is_reusable": true,
			},
		},
	})
	return c.sendMessage(ctx, pageToken, psid, msg)
}

// SendTyping flips the typing indicator on.
func (c *Client) SendTyping(ctx context.Context, pageToken, psid string) error {
	body, _ := json.Marshal(sendRequest{Recipient: recipient{ID: psid}, SenderAction: "typing_on"})
	return c.post(ctx, pageToken, "me/messages", body)
}

func (c *Client) sendMessage(ctx context.Context, pageToken, psid string, message json.RawMessage) error {
	body, _ := json.Marshal(sendRequest{Recipient: recipient{ID: psid}, Message: message})
	return c.post(ctx, pageToken, "me/messages", body)
}

// Profile resolves a sender to display identity via the profile endpoint.
// Any failure resolves to the unknown-profile fallback.
func (c *Client) Profile(ctx context.Context, pageToken, psid string) models.Profile {
	endpoint := fmt.Sprintf("%s/%s/%s?fields=first_name,last_name&access_token=%s",
		c.base, c.version, url.PathEscape(psid), url.QueryEscape(pageToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.UnknownProfile()
	}
	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("profile lookup failed", "psid", psid, "error", err)
		return models.UnknownProfile()
	}
	defer resp.Body.Close()

	var data struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil || data.FirstName == "" {
		slog.Warn("profile lookup returned no name", "psid", psid, "error", err)
		return models.UnknownProfile()
	}

	full := data.FirstName
	if data.LastName != "" {
		full += " " + data.LastName
	}
	return models.Profile{FirstName: data.FirstName, LastName: data.LastName, FullName: full}
}

// ReplyToComment answers a feed comment privately, falling back to a
// public reply when private replies are rejected.
func (c *Client) ReplyToComment(ctx context.Context, pageToken, commentID, message string) error {
	body, _ := json.Marshal(map[string]string{"message": message})

	if err := c.post(ctx, pageToken, commentID+"/private_replies", body); err == nil {
		return nil
	}
	slog.Debug("private reply failed, trying public reply", "commentID", commentID)
	if err := c.post(ctx, pageToken, commentID+"/comments", body); err != nil {
		return fmt.Errorf("both reply methods failed for comment %s: %w", commentID, err)
	}
	return nil
}

// PostText publishes a text post to the page feed.
func (c *Client) PostText(ctx context.Context, pageToken, pageID, message string) error {
	body, _ := json.Marshal(map[string]string{"message": message})
	return c.post(ctx, pageToken, pageID+"/feed", body)
}

// PostImage publishes a single captioned image to the page feed.
func (c *Client) PostImage(ctx context.Context, pageToken, pageID, imageURL, caption string) error {
	body, _ := json.Marshal(map[string]string{"url": imageURL, "caption": caption})
	return c.post(ctx, pageToken, pageID+"/photos", body)
}

// PostAlbum uploads each image unpublished, then publishes one feed post
// attaching all of them.
func (c *Client) PostAlbum(ctx context.Context, pageToken, pageID string, imageURLs []string, message string) error {
	type mediaRef struct {
		MediaFBID string `json:"media_fbid"`
	}
	refs := make([]mediaRef, 0, len(imageURLs))
	for _, imageURL := range imageURLs {
		body, _ := json.Marshal(map[string]any{"url": imageURL, "published": false})
		id, err := c.postForID(ctx, pageToken, pageID+"/photos", body)
		if err != nil {
			return fmt.Errorf("album photo upload: %w", err)
		}
		refs = append(refs, mediaRef{MediaFBID: id})
	}

	body, _ := json.Marshal(map[string]any{"message": message, "attached_media": refs})
	return c.post(ctx, pageToken, pageID+"/feed", body)
}

func (c *Client) post(ctx context.Context, pageToken, path string, body []byte) error {
	_, err := c.postForID(ctx, pageToken, path, body)
	return err
}

// postForID issues a Graph API POST and returns the created object ID.
func (c *Client) postForID(ctx context.Context, pageToken, path string, body []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s?access_token=%s", c.base, c.version, path, url.QueryEscape(pageToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("graph API request: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var result struct {
		ID    string `json:"id"`
		Error *struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &result); err != nil && resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("graph API status %d", resp.StatusCode)
	}
	if result.Error != nil {
		return "", fmt.Errorf("graph API error %d: %s", result.Error.Code, result.Error.Message)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("graph API status %d", resp.StatusCode)
	}
	return result.ID, nil
}
