// Package replies turns inbound email replies into votes, answers and
// follow-up digests.
package replies

import (
	"context"
	"errors"
	"strings"

	"governance-agent/internal/email"
	"governance-agent/internal/governance"
	"governance-agent/internal/intent"
	"governance-agent/internal/metrics"
	"governance-agent/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type VoteSubmitter interface {
	SubmitVote(ctx context.Context, req governance.VoteRequest) (*governance.VoteReceipt, error)
}

type History interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Vote, error)
}

// Proposals is the proposal store plus cache invalidation after a vote.
type Proposals interface {
	governance.ProposalStore
	Invalidate(wallet string)
}

// MoreSender sends the batch after the digest.
type MoreSender interface {
	SendMore(ctx context.Context, user models.User) error
}

const answerUnavailable = "Sorry, I could not answer your question right now. Please try again later."

type Orchestrator struct {
	users      UserLookup
	proposals  Proposals
	history    History
	executor   VoteSubmitter
	classifier intent.Classifier
	more       MoreSender
	sender     email.Sender
	log        *zap.SugaredLogger
}

func NewOrchestrator(users UserLookup, proposals Proposals, history History, executor VoteSubmitter,
	classifier intent.Classifier, more MoreSender, sender email.Sender, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		users:      users,
		proposals:  proposals,
		history:    history,
		executor:   executor,
		classifier: classifier,
		more:       more,
		sender:     sender,
		log:        log.Named("replies"),
	}
}

// HandleReply classifies one inbound reply and acts on it. Unknown senders
// get governance.ErrUserNotFound and no email. Every other reply produces
// exactly one outbound email.
func (o *Orchestrator) HandleReply(ctx context.Context, in email.InboundEmail) error {
	addr := in.SenderAddress()
	if addr == "" {
		return xerrors.Errorf("reply without sender: %w", governance.ErrInvalidRequest)
	}
	user, err := o.users.GetByEmail(ctx, addr)
	if errors.Is(err, governance.ErrUserNotFound) {
		o.log.Warnw("reply from unknown sender", "from", addr, "message_id", in.MessageID)
		return xerrors.Errorf("reply from %s: %w", addr, err)
	}
	if err != nil {
		return xerrors.Errorf("look up %s: %w", addr, err)
	}

	body := in.Body()
	proposals, err := o.proposals.ListByWallet(ctx, user.WalletAddress)
	if err != nil {
		o.log.Warnw("proposals unavailable for classification", "user_id", user.ID, "err", err)
		proposals = nil
	}

	res, err := o.classifier.Classify(ctx, body, proposals)
	if err != nil || res == nil {
		o.log.Warnw("classification failed, treating as unknown", "user_id", user.ID, "err", err)
		res = &intent.Result{Intent: intent.KindUnknown}
	}
	metrics.RepliesHandled.WithLabelValues(string(res.Intent)).Inc()
	o.log.Infow("reply classified", "user_id", user.ID, "intent", res.Intent, "proposal_id", res.ProposalID)

	switch res.Intent {
	case intent.KindVote:
		return o.handleVote(ctx, user, res, proposals, in.MessageID)
	case intent.KindQuestion:
		return o.handleQuestion(ctx, user, res, body)
	case intent.KindShowMore:
		return o.more.SendMore(ctx, *user)
	default:
		return o.send(email.Help(user.Email, user.DisplayName()))(ctx)
	}
}

// replyKey derives the vote idempotency key from the inbound message id so
// a redelivered reply maps onto the vote it already produced.
func replyKey(messageID string) string {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return ""
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("reply:"+messageID)).String()
}

// handleVote never fails once the executor has been called: an error here
// makes the inbound provider redeliver the reply.
func (o *Orchestrator) handleVote(ctx context.Context, user *models.User, res *intent.Result, proposals []models.Proposal, messageID string) error {
	var missing []string
	if strings.TrimSpace(res.ProposalID) == "" {
		missing = append(missing, "a proposal id")
	}
	if strings.TrimSpace(res.Choice) == "" {
		missing = append(missing, "a choice")
	}
	if len(missing) > 0 {
		return o.send(email.Clarify(user.Email, user.DisplayName(), strings.Join(missing, " and "), proposals))(ctx)
	}

	wallet := user.SmartWalletAddress
	if wallet == "" {
		wallet = user.WalletAddress
	}
	receipt, err := o.executor.SubmitVote(ctx, governance.VoteRequest{
		UserID:             user.ID,
		SmartWalletAddress: wallet,
		ProposalID:         res.ProposalID,
		Choice:             res.Choice,
		IdempotencyKey:     replyKey(messageID),
	})
	var notifyErr error
	if err != nil {
		o.log.Infow("vote rejected", "user_id", user.ID, "proposal_id", res.ProposalID, "choice", res.Choice, "err", err)
		notifyErr = o.send(email.VoteError(user.Email, res.ProposalID, governance.Describe(err)))(ctx)
	} else {
		if !receipt.Duplicate {
			o.proposals.Invalidate(user.WalletAddress)
		}
		notifyErr = o.send(email.VoteSubmitted(user.Email, email.VoteView{
			ProposalTitle:    receipt.ProposalTitle,
			Choice:           receipt.Choice,
			DestinationChain: receipt.DestinationChain,
			MessageID:        receipt.MessageID,
			TxHash:           receipt.TxHash,
		}))(ctx)
	}
	if notifyErr != nil {
		o.log.Errorw("vote reply notification not sent", "user_id", user.ID, "proposal_id", res.ProposalID,
			"message_id", messageID, "err", notifyErr)
	}
	return nil
}

func (o *Orchestrator) handleQuestion(ctx context.Context, user *models.User, res *intent.Result, body string) error {
	question := strings.TrimSpace(res.Question)
	if question == "" {
		question = strings.TrimSpace(body)
	}

	var proposal *models.Proposal
	if res.ProposalID != "" {
		p, err := o.proposals.Get(ctx, res.ProposalID)
		if err != nil {
			o.log.Debugw("question references unknown proposal", "proposal_id", res.ProposalID, "err", err)
		} else {
			proposal = p
		}
	}

	history, err := o.history.ListByUser(ctx, user.ID, 10)
	if err != nil {
		history = nil
	}
	answer, err := o.classifier.Answer(ctx, question, proposal, history)
	if err != nil || strings.TrimSpace(answer) == "" {
		o.log.Warnw("answer unavailable", "user_id", user.ID, "err", err)
		answer = answerUnavailable
	}
	title := ""
	if proposal != nil {
		title = proposal.Title
	}
	return o.send(email.Answer(user.Email, question, answer, title))(ctx)
}

// send adapts a template builder result to a send call.
func (o *Orchestrator) send(msg email.Message, err error) func(context.Context) error {
	return func(ctx context.Context) error {
		if err != nil {
			return err
		}
		if err := o.sender.Send(ctx, msg); err != nil {
			return xerrors.Errorf("send %s email: %w", msg.Tag, err)
		}
		return nil
	}
}
