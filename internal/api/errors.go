package api

import (
	"errors"
	"net/http"

	"governance-agent/internal/governance"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

const (
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeNotFound     = "ERR_NOT_FOUND"
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeInternal     = "ERR_INTERNAL"
)

// HttpError is a handler failure with the status and body to return.
type HttpError struct {
	Code    int
	Message string
	Details string
}

func (he HttpError) Error() string {
	if he.Details == "" {
		return he.Message
	}
	return he.Message + ": " + he.Details
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// errorHandler renders every handler error as {"success":false,...}. Vote
// failures keep their machine code; unclassified errors never leak.
func errorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := classify(err)
		if status >= 500 {
			log.Errorw("handler error", "method", c.Request().Method, "path", c.Path(), "err", err)
		} else {
			log.Debugw("request rejected", "path", c.Path(), "status", status, "err", err)
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, body)
	}
}

func classify(err error) (int, errorBody) {
	var herr *HttpError
	if xerrors.As(err, &herr) {
		return herr.Code, errorBody{Error: herr.Message, Details: herr.Details}
	}

	var verr *governance.VoteError
	if errors.As(err, &verr) {
		return voteStatus(verr), errorBody{Error: verr.Code(), Details: governance.Describe(verr)}
	}

	switch {
	case errors.Is(err, governance.ErrUserNotFound):
		return http.StatusNotFound, errorBody{Error: "ERR_USER_NOT_FOUND", Details: "user not found"}
	case errors.Is(err, governance.ErrProposalNotFound):
		return http.StatusNotFound, errorBody{Error: "ERR_PROPOSAL_NOT_FOUND", Details: "proposal not found"}
	}

	var echoErr *echo.HTTPError
	if xerrors.As(err, &echoErr) {
		code := ErrCodeInternal
		switch {
		case echoErr.Code == http.StatusNotFound:
			code = ErrCodeNotFound
		case echoErr.Code == http.StatusUnauthorized:
			code = ErrCodeUnauthorized
		case echoErr.Code < 500:
			code = ErrCodeInvalidInput
		}
		msg, _ := echoErr.Message.(string)
		return echoErr.Code, errorBody{Error: code, Details: msg}
	}

	return http.StatusInternalServerError, errorBody{Error: ErrCodeInternal, Details: "internal server error"}
}

func voteStatus(verr *governance.VoteError) int {
	switch {
	case errors.Is(verr.Kind, governance.ErrProposalNotFound), errors.Is(verr.Kind, governance.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(verr.Kind, governance.ErrInvalidChoice):
		return http.StatusUnprocessableEntity
	case errors.Is(verr.Kind, governance.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(verr.Kind, governance.ErrRetryable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
