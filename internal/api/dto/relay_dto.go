package dto

import "github.com/spec-kit/escalation-relay/internal/domain"

// MessageView is the wire shape of one log entry.
type MessageView struct {
	ID       int64   `json:"id"`
	TicketID string  `json:"ticket_id"`
	UserID   string  `json:"user_id"`
	Date     float64 `json:"date"`
	Message  string  `json:"message"`
}

// SendMessageRequest is the body of POST /:token/message.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// SendMessageResponse acknowledges an appended message.
type SendMessageResponse struct {
	Status string `json:"status"`
	Seq    int64  `json:"seq"`
}

// TicketStateResponse is the payload of GET /:token.
type TicketStateResponse struct {
	TicketID string        `json:"ticket_id"`
	Status   string        `json:"status"`
	Messages []MessageView `json:"messages"`
}

// PollResponse is the payload of GET /:token/poll/:watermark.
type PollResponse struct {
	Timestamp float64       `json:"timestamp"`
	TicketID  string        `json:"ticket_id"`
	Messages  []MessageView `json:"messages"`
}

// TimestampResponse bootstraps a client's watermark.
type TimestampResponse struct {
	Timestamp float64 `json:"timestamp"`
}

// NewMessageView converts a domain message.
func NewMessageView(msg domain.Message) MessageView {
	return MessageView{
		ID:       msg.Seq,
		TicketID: msg.TicketID,
		UserID:   msg.AuthorID,
		Date:     msg.Timestamp,
		Message:  msg.Body,
	}
}

// NewMessageViews converts a slice, never returning nil so the JSON
// encodes as an empty array on timeout.
func NewMessageViews(msgs []domain.Message) []MessageView {
	views := make([]MessageView, 0, len(msgs))
	for _, msg := range msgs {
		views = append(views, NewMessageView(msg))
	}
	return views
}
