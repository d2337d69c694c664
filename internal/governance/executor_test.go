package governance

import (
	"context"
	"errors"
	"testing"
	"time"

	"governance-agent/internal/config"
	"governance-agent/internal/logger"
	"governance-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wallet = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type executorFixture struct {
	proposals *fakeProposals
	votes     *fakeVotes
	transport *fakeTransport
	exec      *Executor
}

func newExecutorFixture() *executorFixture {
	f := &executorFixture{
		proposals: &fakeProposals{byID: map[string]models.Proposal{
			"aave-1": {ID: "aave-1", Title: "Raise LTV", Summary: "s", Protocol: "Aave", Choices: models.StringList{"FOR", "AGAINST", "ABSTAIN"}},
			"new-1":  {ID: "new-1", Title: "Fund grants", Protocol: "newdao", Choices: models.StringList{"Yes", "No"}},
			"ab-1":   {ID: "ab-1", Title: "Pick logo", Protocol: "uniswap", Choices: models.StringList{"Option A", "Option B"}},
		}},
		votes:     &fakeVotes{},
		transport: &fakeTransport{},
	}
	cfg := config.DefaultChains()
	selectors := map[string]uint64{}
	for name, c := range cfg {
		selectors[name] = c.Selector
	}
	f.exec = NewExecutor(f.proposals, f.votes, f.transport,
		NewChainRouter(config.DefaultProtocols(), "ethereum", logger.Nop()),
		ExecutorConfig{SourceChain: "base", Selectors: selectors, Timeout: time.Second},
		logger.Nop())
	n := 0
	f.exec.newID = func() string {
		n++
		return []string{"", "idem-1", "vote-1", "idem-2", "vote-2"}[n]
	}
	return f
}

func TestSubmitVoteSuccess(t *testing.T) {
	f := newExecutorFixture()
	rcpt, err := f.exec.SubmitVote(context.Background(), VoteRequest{
		UserID: "user-1", SmartWalletAddress: wallet, ProposalID: "aave-1", Choice: "yes",
	})
	require.NoError(t, err)

	assert.Equal(t, "Raise LTV", rcpt.ProposalTitle)
	assert.Equal(t, "FOR", rcpt.Choice)
	assert.Equal(t, 0, rcpt.ChoiceIndex)
	assert.Equal(t, "0xmessage", rcpt.MessageID)
	assert.Equal(t, "ethereum", rcpt.DestinationChain)

	require.Len(t, f.transport.submitted, 1)
	sub := f.transport.submitted[0]
	assert.Equal(t, "base", sub.SourceChain)
	assert.Equal(t, "ethereum", sub.DestinationChain)
	assert.Equal(t, config.DefaultChains()["ethereum"].Selector, sub.DestinationSelector)
	assert.Equal(t, "idem-1", sub.IdempotencyKey)
	assert.Equal(t, 0, sub.Payload.Choice)

	require.Len(t, f.votes.inserted, 1)
	v := f.votes.inserted[0]
	assert.Equal(t, "vote-1", v.ID)
	assert.Equal(t, models.VoteStatusPending, v.Status)
	assert.Equal(t, "0xmessage", v.MessageIDValue())
	assert.Nil(t, v.DestinationTxHash)
	assert.Equal(t, "yes", v.Choice)
	assert.Equal(t, "idem-1", v.IdempotencyKey)
}

func TestSubmitVoteUnknownProposalHasNoSideEffects(t *testing.T) {
	f := newExecutorFixture()
	_, err := f.exec.SubmitVote(context.Background(), VoteRequest{
		UserID: "user-1", SmartWalletAddress: wallet, ProposalID: "missing", Choice: "yes",
	})
	require.ErrorIs(t, err, ErrProposalNotFound)
	assert.Empty(t, f.transport.submitted)
	assert.Empty(t, f.votes.inserted)
}

func TestSubmitVoteInvalidChoiceHasNoSideEffects(t *testing.T) {
	f := newExecutorFixture()
	_, err := f.exec.SubmitVote(context.Background(), VoteRequest{
		UserID: "user-1", SmartWalletAddress: wallet, ProposalID: "ab-1", Choice: "yes",
	})
	require.ErrorIs(t, err, ErrInvalidChoice)
	assert.Contains(t, Describe(err), `"Option A", "Option B"`)
	assert.Empty(t, f.transport.submitted)
	assert.Empty(t, f.votes.inserted)
}

func TestSubmitVoteTransportFailureIsRetryable(t *testing.T) {
	f := newExecutorFixture()
	f.transport.err = context.DeadlineExceeded
	_, err := f.exec.SubmitVote(context.Background(), VoteRequest{
		UserID: "user-1", SmartWalletAddress: wallet, ProposalID: "aave-1", Choice: "against",
	})
	require.ErrorIs(t, err, ErrRetryable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, f.transport.submitted, 1, "exactly one attempt, no internal retry")
	assert.Empty(t, f.votes.inserted)
}

func TestSubmitVoteUnknownProtocolUsesFallbackChain(t *testing.T) {
	f := newExecutorFixture()
	rcpt, err := f.exec.SubmitVote(context.Background(), VoteRequest{
		UserID: "user-1", SmartWalletAddress: wallet, ProposalID: "new-1", Choice: "No",
	})
	require.NoError(t, err)
	assert.Equal(t, "ethereum", rcpt.DestinationChain)
	assert.Equal(t, 1, rcpt.ChoiceIndex)
}

func TestSubmitVoteInsertFailureReportsOrphan(t *testing.T) {
	f := newExecutorFixture()
	f.votes.err = errors.New("db gone")
	_, err := f.exec.SubmitVote(context.Background(), VoteRequest{
		UserID: "user-1", SmartWalletAddress: wallet, ProposalID: "aave-1", Choice: "for",
	})
	require.ErrorIs(t, err, ErrOrphanedSubmission)
	assert.Contains(t, err.Error(), "0xmessage")
	assert.Len(t, f.transport.submitted, 1)
}

func TestSubmitVoteRejectsBadRequest(t *testing.T) {
	f := newExecutorFixture()
	ctx := context.Background()

	_, err := f.exec.SubmitVote(ctx, VoteRequest{UserID: "u", SmartWalletAddress: "not-an-address", ProposalID: "aave-1", Choice: "yes"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.exec.SubmitVote(ctx, VoteRequest{UserID: "u", SmartWalletAddress: wallet, ProposalID: "aave-1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Empty(t, f.transport.submitted)
}

func TestSubmitVoteProposalLookupFailureIsRetryable(t *testing.T) {
	f := newExecutorFixture()
	f.proposals.err = errors.New("aggregator 502")
	_, err := f.exec.SubmitVote(context.Background(), VoteRequest{
		UserID: "u", SmartWalletAddress: wallet, ProposalID: "aave-1", Choice: "yes",
	})
	assert.ErrorIs(t, err, ErrRetryable)
	assert.Empty(t, f.transport.submitted)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "We could not process your vote because of an internal error.", Describe(errors.New("boom")))
	err := newVoteError(ErrRetryable, errors.New("dial tcp"), "the vote relay is temporarily unavailable")
	assert.Contains(t, Describe(err), "please try again")
	assert.NotContains(t, Describe(err), "dial tcp")
	var ve *VoteError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "ERR_TEMPORARY_FAILURE", ve.Code())
}

func TestSubmitVoteRepeatedKeyReturnsRecordedVote(t *testing.T) {
	f := newExecutorFixture()
	req := VoteRequest{
		UserID: "user-1", SmartWalletAddress: wallet, ProposalID: "aave-1", Choice: "yes", IdempotencyKey: "reply-key",
	}
	first, err := f.exec.SubmitVote(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := f.exec.SubmitVote(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.VoteID, second.VoteID)
	assert.Equal(t, "0xmessage", second.MessageID)

	require.Len(t, f.transport.submitted, 1)
	assert.Equal(t, "reply-key", f.transport.submitted[0].IdempotencyKey)
	require.Len(t, f.votes.inserted, 1)
	assert.Equal(t, "reply-key", f.votes.inserted[0].IdempotencyKey)
}

func TestSubmitVoteKeyLookupFailureDoesNotSubmit(t *testing.T) {
	f := newExecutorFixture()
	f.votes.lookupErr = errors.New("db down")
	_, err := f.exec.SubmitVote(context.Background(), VoteRequest{
		UserID: "user-1", SmartWalletAddress: wallet, ProposalID: "aave-1", Choice: "yes", IdempotencyKey: "reply-key",
	})
	require.ErrorIs(t, err, ErrRetryable)
	assert.Empty(t, f.transport.submitted)
}
