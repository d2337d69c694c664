package governance

import (
	"context"
	"errors"
	"strings"
	"time"

	"governance-agent/internal/crosschain"
	"governance-agent/internal/metrics"
	"governance-agent/internal/models"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProposalStore is the read side of the proposal cache.
type ProposalStore interface {
	// Get returns ErrProposalNotFound when the proposal does not exist.
	Get(ctx context.Context, proposalID string) (*models.Proposal, error)
	ListByWallet(ctx context.Context, address string) ([]models.Proposal, error)
}

// VoteStore persists votes. There is intentionally no delete.
type VoteStore interface {
	Insert(ctx context.Context, vote *models.Vote) error
	UpdateStatus(ctx context.Context, voteID string, status models.VoteStatus, destinationTxHash string) error
	ListPending(ctx context.Context) ([]models.Vote, error)
	// FindByIdempotencyKey returns nil, nil when no vote carries key.
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Vote, error)
}

// VoteRequest is one logical vote from a user.
type VoteRequest struct {
	UserID             string
	SmartWalletAddress string
	ProposalID         string
	Choice             string
	// IdempotencyKey identifies the logical vote. Requests repeating the key
	// of a recorded vote return that vote without submitting again. A fresh
	// key is generated when empty.
	IdempotencyKey string
}

// VoteReceipt is returned for a vote accepted by the relayer.
type VoteReceipt struct {
	VoteID           string
	ProposalTitle    string
	Choice           string
	ChoiceIndex      int
	DestinationChain string
	MessageID        string
	TxHash           string
	// Duplicate is set when the receipt describes an earlier submission.
	Duplicate bool
}

type ExecutorConfig struct {
	SourceChain string
	// Selectors maps chain names to bridge chain selectors.
	Selectors map[string]uint64
	// Timeout bounds each external call.
	Timeout time.Duration
}

// Executor resolves a vote request and relays it cross-chain.
type Executor struct {
	proposals ProposalStore
	votes     VoteStore
	transport crosschain.Transport
	router    *ChainRouter
	cfg       ExecutorConfig
	log       *zap.SugaredLogger

	newID func() string
	now   func() time.Time
}

func NewExecutor(proposals ProposalStore, votes VoteStore, transport crosschain.Transport, router *ChainRouter, cfg ExecutorConfig, log *zap.SugaredLogger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Executor{
		proposals: proposals,
		votes:     votes,
		transport: transport,
		router:    router,
		cfg:       cfg,
		log:       log.Named("executor"),
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// SubmitVote runs fetch, resolve, route, submit and persist strictly in that
// order. At most one message is submitted per call and the submission is
// never retried here. A request whose IdempotencyKey is already recorded
// returns that vote without a new submission; relayers honoring the key drop
// repeats whose first attempt never got recorded.
func (e *Executor) SubmitVote(ctx context.Context, req VoteRequest) (*VoteReceipt, error) {
	receipt, err := e.submitVote(ctx, req)
	metrics.VotesSubmitted.WithLabelValues(submitResult(err)).Inc()
	return receipt, err
}

func (e *Executor) submitVote(ctx context.Context, req VoteRequest) (*VoteReceipt, error) {
	req.ProposalID = strings.TrimSpace(req.ProposalID)
	if req.ProposalID == "" || strings.TrimSpace(req.Choice) == "" {
		return nil, newVoteError(ErrInvalidRequest, nil, "a vote needs both a proposal id and a choice")
	}
	if !common.IsHexAddress(req.SmartWalletAddress) {
		return nil, newVoteError(ErrInvalidRequest, nil, "no valid smart wallet address is registered for this account")
	}

	if req.IdempotencyKey != "" {
		lookupCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		existing, err := e.votes.FindByIdempotencyKey(lookupCtx, req.IdempotencyKey)
		cancel()
		if err != nil {
			return nil, newVoteError(ErrRetryable, err, "could not check for an earlier submission of this vote")
		}
		if existing != nil {
			e.log.Infow("vote already submitted", "vote_id", existing.ID, "message_id", existing.MessageIDValue(),
				"idempotency_key", req.IdempotencyKey)
			return &VoteReceipt{
				VoteID:           existing.ID,
				ProposalTitle:    existing.ProposalTitle,
				Choice:           existing.Choice,
				ChoiceIndex:      existing.ChoiceIndex,
				DestinationChain: existing.DestinationChain,
				MessageID:        existing.MessageIDValue(),
				Duplicate:        true,
			}, nil
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	proposal, err := e.proposals.Get(fetchCtx, req.ProposalID)
	cancel()
	if errors.Is(err, ErrProposalNotFound) {
		return nil, newVoteError(ErrProposalNotFound, nil, "proposal %s was not found", req.ProposalID)
	}
	if err != nil {
		return nil, newVoteError(ErrRetryable, err, "could not load proposal %s", req.ProposalID)
	}

	index, ok := Resolve(proposal.Choices, req.Choice)
	if !ok {
		return nil, newVoteError(ErrInvalidChoice, nil, "%q is not a valid choice for proposal %q; valid choices are %s",
			req.Choice, proposal.Title, joinChoices(proposal.Choices))
	}

	chain, _ := e.router.Route(proposal.Protocol)
	idemKey := req.IdempotencyKey
	if idemKey == "" {
		idemKey = e.newID()
	}
	wallet := common.HexToAddress(req.SmartWalletAddress)

	submitCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	sub, err := e.transport.Submit(submitCtx, crosschain.SubmitRequest{
		SourceChain:         e.cfg.SourceChain,
		DestinationChain:    chain,
		DestinationSelector: e.cfg.Selectors[chain],
		IdempotencyKey:      idemKey,
		Payload: crosschain.VotePayload{
			Voter:               wallet,
			ProposalID:          proposal.ID,
			Choice:              index,
			Protocol:            proposal.Protocol,
			DestinationSelector: e.cfg.Selectors[chain],
		},
	})
	cancel()
	if err != nil {
		e.log.Warnw("vote submission failed", "proposal_id", proposal.ID, "user_id", req.UserID,
			"destination_chain", chain, "idempotency_key", idemKey, "err", err)
		return nil, newVoteError(ErrRetryable, err, "the vote relay is temporarily unavailable")
	}

	messageID := sub.MessageID
	vote := &models.Vote{
		ID:                 e.newID(),
		UserID:             req.UserID,
		ProposalID:         proposal.ID,
		ProposalTitle:      proposal.Title,
		ProposalSummary:    proposal.Summary,
		Choice:             req.Choice,
		ChoiceIndex:        index,
		Protocol:           proposal.Protocol,
		SmartWalletAddress: wallet.Hex(),
		SourceChain:        e.cfg.SourceChain,
		DestinationChain:   chain,
		MessageID:          &messageID,
		IdempotencyKey:     idemKey,
		Status:             models.VoteStatusPending,
		CreatedAt:          e.now().UTC(),
	}

	insertCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	err = e.votes.Insert(insertCtx, vote)
	cancel()
	if err != nil {
		// the message is on its way and nothing local tracks it
		e.log.Errorw("vote relayed but not recorded", "message_id", messageID, "proposal_id", proposal.ID,
			"user_id", req.UserID, "choice_index", index, "idempotency_key", idemKey, "err", err)
		return nil, newVoteError(ErrOrphanedSubmission, err, "your vote on %q was relayed (message %s) but could not be recorded",
			proposal.Title, messageID)
	}

	e.log.Infow("vote submitted", "vote_id", vote.ID, "message_id", messageID, "proposal_id", proposal.ID,
		"choice_index", index, "destination_chain", chain)

	return &VoteReceipt{
		VoteID:           vote.ID,
		ProposalTitle:    proposal.Title,
		Choice:           proposal.Choices[index],
		ChoiceIndex:      index,
		DestinationChain: chain,
		MessageID:        messageID,
		TxHash:           sub.TxHash,
	}, nil
}

func submitResult(err error) string {
	var ve *VoteError
	if errors.As(err, &ve) {
		return strings.ToLower(strings.TrimPrefix(ve.Code(), "ERR_"))
	}
	return metrics.Result(err)
}
