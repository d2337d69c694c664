package governance

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProposalNotFound   = errors.New("proposal not found")
	ErrInvalidChoice      = errors.New("invalid choice")
	ErrRetryable          = errors.New("temporary failure, retry later")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrOrphanedSubmission = errors.New("vote submitted but not recorded")
)

// VoteError is a typed failure of a vote attempt. Kind is one of the
// sentinel errors above; Message is safe to show to the user.
type VoteError struct {
	Kind    error
	Message string
	Err     error
}

func (e *VoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *VoteError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Code returns a stable machine-readable code for the error kind.
func (e *VoteError) Code() string {
	switch {
	case errors.Is(e.Kind, ErrProposalNotFound):
		return "ERR_PROPOSAL_NOT_FOUND"
	case errors.Is(e.Kind, ErrInvalidChoice):
		return "ERR_INVALID_CHOICE"
	case errors.Is(e.Kind, ErrRetryable):
		return "ERR_TEMPORARY_FAILURE"
	case errors.Is(e.Kind, ErrUserNotFound):
		return "ERR_USER_NOT_FOUND"
	case errors.Is(e.Kind, ErrInvalidRequest):
		return "ERR_INVALID_INPUT"
	case errors.Is(e.Kind, ErrOrphanedSubmission):
		return "ERR_VOTE_NOT_RECORDED"
	default:
		return "ERR_INTERNAL"
	}
}

func newVoteError(kind error, err error, format string, args ...interface{}) *VoteError {
	return &VoteError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Describe turns any vote failure into text suitable for an email or an API
// response body. Unclassified errors never leak their internals.
func Describe(err error) string {
	var ve *VoteError
	if errors.As(err, &ve) {
		switch {
		case errors.Is(ve.Kind, ErrRetryable):
			return ve.Message + ". Nothing was submitted on-chain; please try again in a few minutes."
		case errors.Is(ve.Kind, ErrOrphanedSubmission):
			return ve.Message + ". Our team has been notified; please do not resend this vote."
		}
		return ve.Message
	}
	return "We could not process your vote because of an internal error."
}

func joinChoices(choices []string) string {
	quoted := make([]string, len(choices))
	for i, c := range choices {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return strings.Join(quoted, ", ")
}
