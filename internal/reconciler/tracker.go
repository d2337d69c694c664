// Package reconciler drives pending votes to a terminal state by polling
// the bridge and the destination chain.
package reconciler

import (
	"context"
	"sync"
	"time"

	"governance-agent/internal/crosschain"
	"governance-agent/internal/email"
	"governance-agent/internal/governance"
	"governance-agent/internal/metrics"
	"governance-agent/internal/models"

	"go.uber.org/zap"
	"golang.org/x/xerrors"
)

type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type Config struct {
	Interval time.Duration
	// Timeout bounds each status query and receipt lookup.
	Timeout time.Duration
}

type Tracker struct {
	votes     governance.VoteStore
	transport crosschain.Transport
	users     UserLookup
	sender    email.Sender
	cfg       Config
	log       *zap.SugaredLogger

	mu sync.Mutex // one pass at a time
}

func NewTracker(votes governance.VoteStore, transport crosschain.Transport, users UserLookup, sender email.Sender, cfg Config, log *zap.SugaredLogger) *Tracker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Tracker{
		votes:     votes,
		transport: transport,
		users:     users,
		sender:    sender,
		cfg:       cfg,
		log:       log.Named("reconciler"),
	}
}

// PassResult counts what one pass did.
type PassResult struct {
	Checked  int `json:"checked"`
	Executed int `json:"executed"`
	Failed   int `json:"failed"`
	Pending  int `json:"pending"`
	Errors   int `json:"errors"`
}

// ReconcilePendingVotes runs one pass over a snapshot of pending votes.
// Only a failure to list them is returned; per-vote failures are logged,
// counted and leave the vote pending for the next pass.
func (t *Tracker) ReconcilePendingVotes(ctx context.Context) (PassResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	start := time.Now()
	defer func() { metrics.ReconcilePassSeconds.Observe(time.Since(start).Seconds()) }()

	var res PassResult
	pending, err := t.votes.ListPending(ctx)
	if err != nil {
		return res, xerrors.Errorf("list pending votes: %w", err)
	}
	metrics.VotesPending.Set(float64(len(pending)))

	for _, v := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		status, err := t.reconcileOne(ctx, v)
		if err != nil {
			res.Errors++
			metrics.ReconcileErrors.Inc()
			t.log.Warnw("reconcile vote failed", "vote_id", v.ID, "message_id", v.MessageIDValue(), "err", err)
			continue
		}
		switch status {
		case models.VoteStatusExecuted:
			res.Executed++
		case models.VoteStatusFailed:
			res.Failed++
		default:
			res.Pending++
		}
		if status.Terminal() {
			metrics.VotesReconciled.WithLabelValues(string(status)).Inc()
		}
	}

	if res.Checked > 0 {
		t.log.Infow("reconcile pass finished", "checked", res.Checked, "executed", res.Executed,
			"failed", res.Failed, "pending", res.Pending, "errors", res.Errors, "took", time.Since(start))
	}
	return res, nil
}

func (t *Tracker) reconcileOne(ctx context.Context, v models.Vote) (models.VoteStatus, error) {
	messageID := v.MessageIDValue()
	if messageID == "" {
		return "", xerrors.Errorf("vote has no message id")
	}

	callCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	st, err := t.transport.GetStatus(callCtx, messageID)
	cancel()
	if err != nil {
		return "", xerrors.Errorf("message status: %w", err)
	}

	switch st.Status {
	case crosschain.StatusExecuted:
		return t.confirm(ctx, v, st.DestinationTxHash)
	case crosschain.StatusFailed:
		if err := t.votes.UpdateStatus(ctx, v.ID, models.VoteStatusFailed, ""); err != nil {
			return "", xerrors.Errorf("mark failed: %w", err)
		}
		t.log.Infow("vote failed on bridge", "vote_id", v.ID, "message_id", messageID)
		return models.VoteStatusFailed, nil
	default:
		return models.VoteStatusPending, nil
	}
}

// confirm checks the destination receipt and, when it succeeded, marks the
// vote executed and emails the user once.
func (t *Tracker) confirm(ctx context.Context, v models.Vote, txHash string) (models.VoteStatus, error) {
	if txHash == "" {
		txHash = v.DestinationTxHashValue()
	}
	if txHash == "" {
		t.log.Debugw("executed message without destination tx hash yet", "vote_id", v.ID)
		return models.VoteStatusPending, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	receipt, err := t.transport.GetDestinationReceipt(callCtx, txHash, v.DestinationChain)
	cancel()
	if err != nil {
		return "", xerrors.Errorf("destination receipt on %s: %w", v.DestinationChain, err)
	}
	if receipt == nil {
		t.log.Debugw("destination receipt not available yet", "vote_id", v.ID, "tx_hash", txHash)
		return models.VoteStatusPending, nil
	}
	if !receipt.Success {
		t.log.Warnw("destination transaction unsuccessful, keeping vote pending",
			"vote_id", v.ID, "tx_hash", txHash, "chain", v.DestinationChain)
		return models.VoteStatusPending, nil
	}

	if err := t.votes.UpdateStatus(ctx, v.ID, models.VoteStatusExecuted, txHash); err != nil {
		return "", xerrors.Errorf("mark executed: %w", err)
	}
	t.log.Infow("vote executed", "vote_id", v.ID, "tx_hash", txHash, "chain", v.DestinationChain, "block", receipt.BlockNumber)

	v.Status = models.VoteStatusExecuted
	v.DestinationTxHash = &txHash
	t.notify(ctx, v)
	return models.VoteStatusExecuted, nil
}

// notify failures are logged only; the vote stays executed.
func (t *Tracker) notify(ctx context.Context, v models.Vote) {
	user, err := t.users.GetByID(ctx, v.UserID)
	if err != nil {
		t.log.Warnw("no user for confirmation email", "vote_id", v.ID, "user_id", v.UserID, "err", err)
		return
	}
	msg, err := email.VoteConfirmed(user.Email, v)
	if err != nil {
		t.log.Errorw("render confirmation email", "vote_id", v.ID, "err", err)
		return
	}
	if err := t.sender.Send(ctx, msg); err != nil {
		t.log.Warnw("confirmation email not sent", "vote_id", v.ID, "err", err)
	}
}

// Run reconciles immediately and then every Interval until ctx is done.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := t.ReconcilePendingVotes(ctx); err != nil && ctx.Err() == nil {
			t.log.Errorw("reconcile pass aborted", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
