package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"governance-agent/internal/email"
	"governance-agent/internal/governance"
	"governance-agent/internal/store"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
)

type createUserBody struct {
	Email              string `json:"email"`
	Name               string `json:"name"`
	WalletAddress      string `json:"walletAddress"`
	SmartWalletAddress string `json:"smartWalletAddress"`
}

func (s *Server) handleCreateUser(c echo.Context) error {
	var body createUserBody
	if err := c.Bind(&body); err != nil {
		return &HttpError{Code: http.StatusBadRequest, Message: ErrCodeInvalidInput, Details: "malformed JSON body"}
	}
	if _, err := mail.ParseAddress(body.Email); err != nil {
		return &HttpError{Code: http.StatusBadRequest, Message: ErrCodeInvalidInput, Details: "a valid email is required"}
	}
	if !common.IsHexAddress(body.WalletAddress) {
		return &HttpError{Code: http.StatusBadRequest, Message: ErrCodeInvalidInput, Details: "a valid walletAddress is required"}
	}
	if body.SmartWalletAddress != "" && !common.IsHexAddress(body.SmartWalletAddress) {
		return &HttpError{Code: http.StatusBadRequest, Message: ErrCodeInvalidInput, Details: "smartWalletAddress is not a valid address"}
	}

	user, err := s.deps.Users.Upsert(c.Request().Context(), body.Email, body.WalletAddress, body.SmartWalletAddress, body.Name)
	if err != nil {
		return err
	}
	return ok(c, http.StatusCreated, user)
}

func (s *Server) handleGetUser(c echo.Context) error {
	user, err := s.deps.Users.GetByEmail(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, user)
}

func (s *Server) handleListProposals(c echo.Context) error {
	wallet := strings.TrimSpace(c.QueryParam("walletAddress"))
	if wallet == "" {
		return &HttpError{Code: http.StatusBadRequest, Message: ErrCodeInvalidInput, Details: "walletAddress is required"}
	}
	ctx := c.Request().Context()
	proposals, err := s.deps.Proposals.ListByWallet(ctx, wallet)
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, governance.Rank(ctx, proposals, nil, nil, s.log))
}

type submitVoteBody struct {
	UserID     string `json:"userId"`
	ProposalID string `json:"proposalId"`
	Choice     string `json:"choice"`
}

func (s *Server) handleSubmitVote(c echo.Context) error {
	var body submitVoteBody
	if err := c.Bind(&body); err != nil {
		return &HttpError{Code: http.StatusBadRequest, Message: ErrCodeInvalidInput, Details: "malformed JSON body"}
	}
	if body.UserID == "" {
		return &HttpError{Code: http.StatusBadRequest, Message: ErrCodeInvalidInput, Details: "userId is required"}
	}
	ctx := c.Request().Context()
	user, err := s.deps.Users.GetByID(ctx, body.UserID)
	if err != nil {
		return err
	}
	wallet := user.SmartWalletAddress
	if wallet == "" {
		wallet = user.WalletAddress
	}

	receipt, err := s.deps.Executor.SubmitVote(ctx, governance.VoteRequest{
		UserID:             user.ID,
		SmartWalletAddress: wallet,
		ProposalID:         body.ProposalID,
		Choice:             body.Choice,
	})
	if err != nil {
		return err
	}
	if !receipt.Duplicate {
		s.deps.Proposals.Invalidate(user.WalletAddress)
	}
	return ok(c, http.StatusAccepted, receipt)
}

func (s *Server) handleGetVote(c echo.Context) error {
	vote, err := s.deps.Votes.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrVoteNotFound) {
		return &HttpError{Code: http.StatusNotFound, Message: ErrCodeNotFound, Details: "vote not found"}
	}
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, vote)
}

// handleEmailReply answers 200 for every well-formed webhook, including
// unknown senders, since inbound providers redeliver on any other status.
func (s *Server) handleEmailReply(c echo.Context) error {
	var in email.InboundEmail
	if err := c.Bind(&in); err != nil {
		return &HttpError{Code: http.StatusBadRequest, Message: ErrCodeInvalidInput, Details: "malformed JSON body"}
	}
	err := s.deps.Replies.HandleReply(c.Request().Context(), in)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "Email reply processed successfully"})
	case errors.Is(err, governance.ErrUserNotFound), errors.Is(err, governance.ErrInvalidRequest):
		s.log.Infow("email reply ignored", "from", in.SenderAddress(), "err", err)
		return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "Email reply ignored"})
	default:
		return err
	}
}

func (s *Server) handleCheckPendingVotes(c echo.Context) error {
	res, err := s.deps.Reconciler.ReconcilePendingVotes(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, res)
}

func (s *Server) handleSendDigest(c echo.Context) error {
	res, err := s.deps.Digest.Run(c.Request().Context())
	if err != nil {
		return err
	}
	return ok(c, http.StatusOK, res)
}
