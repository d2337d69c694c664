// Package retry wraps exponential backoff for idempotent outbound calls.
// Vote submission must never go through here.
package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retry loop.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// Default is used by the aggregator, LLM and email clients.
var Default = Policy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	MaxRetries:      3,
}

// Do runs op until it succeeds, returns a Permanent error, the retries are
// exhausted or ctx is done.
func Do(ctx context.Context, p Policy, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = 1.5
	b.MaxElapsedTime = 0
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx))
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// StatusError is a non-2xx HTTP answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return http.StatusText(e.Code)
	}
	return http.StatusText(e.Code) + ": " + e.Body
}

// CheckStatus classifies an HTTP status: nil for 2xx, a retryable error for
// 429 and 5xx, a permanent error otherwise.
func CheckStatus(code int, body string) error {
	if code >= 200 && code <= 299 {
		return nil
	}
	err := &StatusError{Code: code, Body: body}
	if code == http.StatusTooManyRequests || code >= 500 {
		return err
	}
	return Permanent(err)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
