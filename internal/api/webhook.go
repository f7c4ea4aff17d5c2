// Package api provides the HTTP surface of pagebot.
//
// This file parses platform webhook deliveries into events.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rodge1109/pagebot/internal/models"
	"github.com/rodge1109/pagebot/internal/util"
)

// webhookPayload mirrors the Graph API delivery envelope, down to the
// few fields the dispatcher needs.
type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID        string              `json:"id"` // page ID
	Messaging []messagingEnvelope `json:"messaging"`
	Changes   []feedChange        `json:"changes"`
}

type messagingEnvelope struct {
	Sender    actorRef         `json:"sender"`
	Recipient actorRef         `json:"recipient"`
	Message   *inboundMessage  `json:"message"`
	Postback  *inboundPostback `json:"postback"`
}

type actorRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type inboundMessage struct {
	Text       string `json:"text"`
	IsEcho     bool   `json:"is_echo"`
	QuickReply *struct {
		Payload string `json:"payload"`
	} `json:"quick_reply"`
	Attachments []struct {
		Type    string `json:"type"`
		Payload struct {
			Coordinates *struct {
				Lat  float64 `json:"lat"`
				Long float64 `json:"long"`
			} `json:"coordinates"`
		} `json:"payload"`
	} `json:"attachments"`
}

type inboundPostback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

type feedChange struct {
	Field string `json:"field"`
	Value struct {
		Item      string   `json:"item"`
		Verb      string   `json:"verb"`
		CommentID string   `json:"comment_id"`
		PostID    string   `json:"post_id"`
		Message   string   `json:"message"`
		From      actorRef `json:"from"`
	} `json:"value"`
}

func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.verifyWebhook(w, r)
	case http.MethodPost:
		s.receiveWebhook(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// verifyWebhook answers the platform's subscription handshake: echo the
// challenge when the verify token matches, 403 otherwise.
func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && token == s.verifyToken {
		slog.Info("Webhook verified")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(challenge)); err != nil {
			slog.Error("Failed to write webhook challenge", "error", err)
		}
		return
	}
	slog.Warn("Webhook verification rejected", "mode", mode)
	w.WriteHeader(http.StatusForbidden)
}

// receiveWebhook acknowledges the delivery immediately and processes the
// events in the background. The platform retries deliveries that do not
// get a fast 200.
func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Warn("Webhook payload decode failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if payload.Object != "page" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("EVENT_RECEIVED")); err != nil {
		slog.Error("Failed to acknowledge webhook", "error", err)
	}

	events := parseEvents(payload)
	if len(events) == 0 {
		return
	}
	requestID := util.GenerateRequestID()
	slog.Debug("Webhook delivery parsed", "requestID", requestID, "events", len(events))
	// The request context dies when the handler returns; processing
	// outlives the acknowledgement.
	ctx := context.WithoutCancel(r.Context())
	go func() {
		for _, ev := range events {
			s.dispatcher.Dispatch(ctx, ev)
		}
	}()
}

// parseEvents flattens a delivery envelope into dispatchable events.
// Echoes of the page's own messages are dropped here.
func parseEvents(payload webhookPayload) []models.Event {
	var events []models.Event
	for _, entry := range payload.Entry {
		for _, msg := range entry.Messaging {
			if ev, ok := parseMessaging(entry.ID, msg); ok {
				events = append(events, ev)
			}
		}
		for _, change := range entry.Changes {
			if ev, ok := parseFeedChange(entry.ID, change); ok {
				events = append(events, ev)
			}
		}
	}
	return events
}

func parseMessaging(pageID string, msg messagingEnvelope) (models.Event, bool) {
	ev := models.Event{PageID: pageID, SenderID: msg.Sender.ID}

	switch {
	case msg.Postback != nil:
		ev.Kind = models.EventPostback
		ev.Text = msg.Postback.Title
		ev.Payload = msg.Postback.Payload
		return ev, true

	case msg.Message != nil:
		if msg.Message.IsEcho {
			return ev, false
		}
		// Quick replies carry the payload of the button they answer.
		if msg.Message.QuickReply != nil {
			ev.Kind = models.EventPostback
			ev.Text = msg.Message.Text
			ev.Payload = msg.Message.QuickReply.Payload
			return ev, true
		}
		for _, att := range msg.Message.Attachments {
			if att.Type == "location" && att.Payload.Coordinates != nil {
				ev.Kind = models.EventLocation
				ev.Coords = &models.Coordinates{
					Lat:  att.Payload.Coordinates.Lat,
					Long: att.Payload.Coordinates.Long,
				}
				return ev, true
			}
		}
		if msg.Message.Text != "" {
			ev.Kind = models.EventText
			ev.Text = msg.Message.Text
			return ev, true
		}
	}
	return ev, false
}

func parseFeedChange(pageID string, change feedChange) (models.Event, bool) {
	if change.Field != "feed" {
		return models.Event{}, false
	}
	v := change.Value
	if v.Item != "comment" || v.Verb != "add" || v.CommentID == "" {
		return models.Event{}, false
	}
	return models.Event{
		PageID:    pageID,
		SenderID:  v.From.ID,
		Kind:      models.EventComment,
		Text:      v.Message,
		CommentID: v.CommentID,
		PostID:    v.PostID,
	}, true
}
