// Package transport defines the boundary between the deal engine and the
// group-messaging client that actually delivers/receives WhatsApp-like
// messages. Nothing in this module core depends on a concrete transport
// implementation — only on these two interfaces (§6.1).
package transport

import (
	"context"
	"encoding/json"
	"time"
)

// InboundMessage is one event off the group-messaging stream. Raw stays
// opaque to everything downstream of the dispatcher.
type InboundMessage struct {
	MessageID   string          `json:"messageId"`
	GroupID     string          `json:"groupId"`
	GroupName   string          `json:"groupName"`
	SenderID    string          `json:"senderId"`
	SenderName  string          `json:"senderName,omitempty"`
	Text        string          `json:"text"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	TimestampMs int64           `json:"timestampMs"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// Attachment describes a media item attached to an inbound message. The
// core never inspects attachment bytes; OCR/blob handling is external.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// ReceivedAt converts TimestampMs to a time.Time in UTC.
func (m InboundMessage) ReceivedAt() time.Time {
	return time.UnixMilli(m.TimestampMs).UTC()
}

// SendOptions controls an outbound send.
type SendOptions struct {
	// Mentions is a list of participant ids to @-mention.
	Mentions []string
	// TypingFlash requests a best-effort "typing" presence flash before
	// the send, used to make automated replies look less mechanical.
	TypingFlash bool
}

// SendResult reports the outcome of an outbound send.
type SendResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// Inbound is implemented by whatever delivers group messages to the
// dispatcher. A real client pushes to the returned channel as events
// arrive; Close stops delivery and closes the channel.
type Inbound interface {
	Messages() <-chan InboundMessage
	Close() error
}

// Outbound is implemented by whatever actually sends messages back to a
// group. Implementations must support optional mentions and a
// best-effort typing-presence flash.
type Outbound interface {
	Send(ctx context.Context, groupID, text string, opts SendOptions) (SendResult, error)
}
