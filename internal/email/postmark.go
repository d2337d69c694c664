package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"governance-agent/internal/metrics"
	"governance-agent/internal/retry"

	"github.com/mrz1836/postmark"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// Postmark sends mail through the Postmark server API.
type Postmark struct {
	client  *postmark.Client
	from    string
	replyTo string
	policy  retry.Policy
	log     *zap.SugaredLogger
}

var _ Sender = (*Postmark)(nil)

func NewPostmark(baseURL, token, from, replyTo string, timeout time.Duration, log *zap.SugaredLogger) *Postmark {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := postmark.NewClient(token, "")
	if baseURL != "" {
		client.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &Postmark{
		client:  client,
		from:    from,
		replyTo: replyTo,
		policy:  retry.Default,
		log:     log.Named("postmark"),
	}
}

// APIError is a rejection Postmark reported with an error code.
type APIError struct {
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("postmark error %d: %s", e.Code, e.Message)
}

func (p *Postmark) Send(ctx context.Context, msg Message) error {
	err := p.send(ctx, msg)
	metrics.EmailsSent.WithLabelValues(tagOrDefault(msg.Tag), metrics.Result(err)).Inc()
	return err
}

func (p *Postmark) send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return xerrors.Errorf("email %q has no recipient", msg.Subject)
	}
	out := postmark.Email{
		From:     p.from,
		To:       msg.To,
		ReplyTo:  p.replyTo,
		Subject:  msg.Subject,
		HTMLBody: msg.HTML,
		TextBody: msg.Text,
		Tag:      msg.Tag,
	}

	var res postmark.EmailResponse
	err := retry.Do(ctx, p.policy, func() error {
		var err error
		res, err = p.client.SendEmail(ctx, out)
		return classifySendError(res, err)
	})
	if err != nil {
		p.log.Warnw("email not sent", "to", msg.To, "tag", msg.Tag, "err", err)
		return xerrors.Errorf("send %q to %s: %w", msg.Tag, msg.To, err)
	}
	p.log.Debugw("email sent", "to", msg.To, "tag", msg.Tag, "message_id", res.MessageID)
	return nil
}

// classifySendError makes coded rejections permanent. Anything else, such
// as a transport failure or an undecodable 5xx body, is retried.
func classifySendError(res postmark.EmailResponse, err error) error {
	if res.ErrorCode != 0 {
		return retry.Permanent(&APIError{Code: res.ErrorCode, Message: res.Message})
	}
	var apiErr postmark.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode != 0 {
		return retry.Permanent(&APIError{Code: apiErr.ErrorCode, Message: apiErr.Message})
	}
	return err
}

func tagOrDefault(tag string) string {
	if tag == "" {
		return "other"
	}
	return tag
}
