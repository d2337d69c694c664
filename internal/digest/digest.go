// Package digest emails each user the proposals awaiting their vote.
package digest

import (
	"context"
	"strings"

	"governance-agent/internal/email"
	"governance-agent/internal/governance"
	"governance-agent/internal/models"

	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

// UserLister returns the users that receive digests.
type UserLister interface {
	ListWithWallet(ctx context.Context) ([]models.User, error)
}

// History returns a user's most recent votes.
type History interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Vote, error)
}

// historyDepth bounds how many past votes feed personalization.
const historyDepth = 20

type Job struct {
	users        UserLister
	proposals    governance.ProposalStore
	history      History
	personalizer governance.Personalizer
	sender       email.Sender
	size         int
	log          *zap.SugaredLogger
}

// New builds a digest job. personalizer may be nil.
func New(users UserLister, proposals governance.ProposalStore, history History, personalizer governance.Personalizer,
	sender email.Sender, size int, log *zap.SugaredLogger) *Job {
	if size <= 0 {
		size = 3
	}
	return &Job{
		users:        users,
		proposals:    proposals,
		history:      history,
		personalizer: personalizer,
		sender:       sender,
		size:         size,
		log:          log.Named("digest"),
	}
}

// RunResult counts the outcome of one digest run.
type RunResult struct {
	Users   int `json:"users"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Run sends a digest to every user with a wallet. Per-user failures are
// logged and counted; only a failure to list users aborts the run.
func (j *Job) Run(ctx context.Context) (RunResult, error) {
	var res RunResult
	users, err := j.users.ListWithWallet(ctx)
	if err != nil {
		return res, xerrors.Errorf("list users: %w", err)
	}
	res.Users = len(users)
	for _, u := range users {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		sent, err := j.SendTo(ctx, u)
		switch {
		case err != nil:
			res.Failed++
			j.log.Warnw("digest failed", "user_id", u.ID, "err", err)
		case sent:
			res.Sent++
		default:
			res.Skipped++
		}
	}
	j.log.Infow("digest run finished", "users", res.Users, "sent", res.Sent, "skipped", res.Skipped, "failed", res.Failed)
	return res, nil
}

// SendTo emails the user's top proposals. It reports false without error
// when nothing is waiting for a vote.
func (j *Job) SendTo(ctx context.Context, user models.User) (bool, error) {
	ranked, err := j.Ranked(ctx, user)
	if err != nil {
		return false, err
	}
	if len(ranked) == 0 {
		return false, nil
	}
	msg, err := email.Digest(user.Email, user.DisplayName(), ranked[:min(j.size, len(ranked))], false)
	if err != nil {
		return false, err
	}
	if err := j.sender.Send(ctx, msg); err != nil {
		return false, err
	}
	return true, nil
}

// SendMore emails the next batch after the proposals already shown in the
// digest, or a "no more proposals" note when there is none.
func (j *Job) SendMore(ctx context.Context, user models.User) error {
	ranked, err := j.Ranked(ctx, user)
	if err != nil {
		return err
	}
	var msg email.Message
	if len(ranked) <= j.size {
		msg, err = email.NoMore(user.Email, user.DisplayName())
	} else {
		rest := ranked[j.size:]
		msg, err = email.Digest(user.Email, user.DisplayName(), rest[:min(j.size, len(rest))], true)
	}
	if err != nil {
		return err
	}
	return j.sender.Send(ctx, msg)
}

// Ranked returns the user's pending proposals in digest order.
func (j *Job) Ranked(ctx context.Context, user models.User) ([]models.Proposal, error) {
	if strings.TrimSpace(user.WalletAddress) == "" {
		return nil, nil
	}
	proposals, err := j.proposals.ListByWallet(ctx, user.WalletAddress)
	if err != nil {
		return nil, xerrors.Errorf("proposals for %s: %w", user.WalletAddress, err)
	}
	var history []models.Vote
	if j.personalizer != nil && len(proposals) > 1 {
		history, err = j.history.ListByUser(ctx, user.ID, historyDepth)
		if err != nil {
			j.log.Debugw("vote history unavailable", "user_id", user.ID, "err", err)
			history = nil
		}
	}
	return governance.Rank(ctx, proposals, history, j.personalizer, j.log), nil
}
