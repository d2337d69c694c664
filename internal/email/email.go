// Package email renders outbound notifications, sends them through a
// Postmark-compatible API and defines the inbound reply webhook payload.
package email

import (
	"context"
	"net/mail"
	"strings"
)

// Message is one outbound email. Tag labels the template for metrics and
// provider-side filtering.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Tag     string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// InboundAddress is a parsed address of the inbound webhook.
type InboundAddress struct {
	Email string `json:"Email"`
	Name  string `json:"Name"`
}

// InboundEmail is the inbound webhook payload (Postmark inbound format).
type InboundEmail struct {
	From              string         `json:"From"`
	FromName          string         `json:"FromName"`
	FromFull          InboundAddress `json:"FromFull"`
	To                string         `json:"To"`
	Subject           string         `json:"Subject"`
	MessageID         string         `json:"MessageID"`
	TextBody          string         `json:"TextBody"`
	HtmlBody          string         `json:"HtmlBody"`
	StrippedTextReply string         `json:"StrippedTextReply"`
}

// SenderAddress returns the lowercased sender address, preferring the parsed
// FromFull field and falling back to parsing From.
func (in InboundEmail) SenderAddress() string {
	if addr := strings.TrimSpace(in.FromFull.Email); addr != "" {
		return strings.ToLower(addr)
	}
	from := strings.TrimSpace(in.From)
	if from == "" {
		return ""
	}
	if a, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(a.Address)
	}
	return strings.ToLower(from)
}

// Body is the stripped reply when the provider produced one, else the full
// text body.
func (in InboundEmail) Body() string {
	if strings.TrimSpace(in.StrippedTextReply) != "" {
		return in.StrippedTextReply
	}
	return in.TextBody
}
