package models

// MediaKind distinguishes file attachments from inline images.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaFile  MediaKind = "file"
)

// ButtonType identifies how a reply button behaves when pressed.
type ButtonType string

const (
	// ButtonPostback sends its payload back through the webhook.
	ButtonPostback ButtonType = "postback"
	// ButtonURL opens a link.
	ButtonURL ButtonType = "web_url"
)

// MaxReplyButtons is the platform limit on buttons per template.
const MaxReplyButtons = 3

// Button is one selectable option attached to a reply.
type Button struct {
	Type    ButtonType `json:"type"`
	Title   string     `json:"title"`
	Payload string     `json:"payload,omitempty"`
	URL     string     `json:"url,omitempty"`
}

// CarouselElement is one card of a generic template, used when a choice
// set is too large for a button template.
type CarouselElement struct {
	Title   string   `json:"title"`
	Buttons []Button `json:"buttons"`
}

// Media is one image or file URL to deliver after the reply text.
type Media struct {
	URL  string    `json:"url"`
	Kind MediaKind `json:"kind"`
}

// Reply is everything a flow step or keyword match wants delivered to the
// sender. Text, Buttons and Carousel are mutually exclusive primary
// payloads; Secondary and Media ride along after the primary send.
type Reply struct {
	Text     string            `json:"text,omitempty"`
	Buttons  []Button          `json:"buttons,omitempty"`
	Carousel []CarouselElement `json:"carousel,omitempty"`

	Secondary *Reply  `json:"secondary,omitempty"`
	Media     []Media `json:"media,omitempty"`
}

// TextReply builds a plain text reply.
func TextReply(text string) *Reply {
	return &Reply{Text: text}
}

// IsEmpty reports whether the reply carries nothing to send. The dispatcher
// uses this for the silent-mode path where no outbound action is produced.
func (r *Reply) IsEmpty() bool {
	return r == nil || (r.Text == "" && len(r.Buttons) == 0 && len(r.Carousel) == 0 && len(r.Media) == 0 && r.Secondary == nil)
}
