package replies

import (
	"context"
	"errors"
	"sync"
	"testing"

	"governance-agent/internal/email"
	"governance-agent/internal/governance"
	"governance-agent/internal/intent"
	"governance-agent/internal/logger"
	"governance-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smartWallet = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type fakeUsers map[string]models.User

func (f fakeUsers) GetByEmail(_ context.Context, addr string) (*models.User, error) {
	u, ok := f[addr]
	if !ok {
		return nil, governance.ErrUserNotFound
	}
	return &u, nil
}

type fakeProposals map[string]models.Proposal

func (f fakeProposals) Get(_ context.Context, id string) (*models.Proposal, error) {
	p, ok := f[id]
	if !ok {
		return nil, governance.ErrProposalNotFound
	}
	return &p, nil
}

func (f fakeProposals) ListByWallet(context.Context, string) ([]models.Proposal, error) {
	out := make([]models.Proposal, 0, len(f))
	for _, p := range f {
		out = append(out, p)
	}
	return out, nil
}

type catalog struct {
	fakeProposals
	invalidated []string
}

func (c *catalog) Invalidate(wallet string) {
	c.invalidated = append(c.invalidated, wallet)
}

type fakeHistory struct{}

func (fakeHistory) ListByUser(context.Context, string, int) ([]models.Vote, error) { return nil, nil }

type fakeExecutor struct {
	mu    sync.Mutex
	calls []governance.VoteRequest
	err   error
}

func (f *fakeExecutor) SubmitVote(_ context.Context, req governance.VoteRequest) (*governance.VoteReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &governance.VoteReceipt{VoteID: "v1", ProposalTitle: "Fee switch", Choice: "Yes", MessageID: "0xmsg", DestinationChain: "ethereum"}, nil
}

type fixedClassifier struct {
	res    *intent.Result
	err    error
	answer string
	asked  *models.Proposal
}

func (f *fixedClassifier) Classify(context.Context, string, []models.Proposal) (*intent.Result, error) {
	return f.res, f.err
}

func (f *fixedClassifier) Answer(_ context.Context, _ string, p *models.Proposal, _ []models.Vote) (string, error) {
	f.asked = p
	return f.answer, nil
}

type fakeMore struct {
	users []string
}

func (f *fakeMore) SendMore(_ context.Context, u models.User) error {
	f.users = append(f.users, u.ID)
	return nil
}

type recordingSender struct {
	sent []email.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, m email.Message) error {
	r.sent = append(r.sent, m)
	return r.err
}

type fixture struct {
	exec   *fakeExecutor
	cls    *fixedClassifier
	more   *fakeMore
	sender *recordingSender
	props  *catalog
	orch   *Orchestrator
}

func newFixture(res *intent.Result) *fixture {
	f := &fixture{
		exec:   &fakeExecutor{},
		cls:    &fixedClassifier{res: res, answer: "It turns on fees."},
		more:   &fakeMore{},
		sender: &recordingSender{},
		props:  &catalog{fakeProposals: fakeProposals{"uni-7": {ID: "uni-7", Title: "Fee switch", Choices: models.StringList{"Yes", "No"}}}},
	}
	f.orch = NewOrchestrator(
		fakeUsers{"alice@example.org": {ID: "u1", Email: "alice@example.org", Name: "Alice", WalletAddress: "0xeoa", SmartWalletAddress: smartWallet}},
		f.props,
		fakeHistory{}, f.exec, f.cls, f.more, f.sender, logger.Nop())
	return f
}

func reply(body string) email.InboundEmail {
	return email.InboundEmail{From: "Alice <Alice@example.org>", TextBody: body}
}

func TestVoteMissingChoiceSendsOneClarification(t *testing.T) {
	f := newFixture(&intent.Result{Intent: intent.KindVote, ProposalID: "uni-7"})
	require.NoError(t, f.orch.HandleReply(context.Background(), reply("vote on uni-7")))

	assert.Empty(t, f.exec.calls)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, email.TagClarify, f.sender.sent[0].Tag)
	assert.Contains(t, f.sender.sent[0].Text, "did not include a choice")
}

func TestVoteMissingBoth(t *testing.T) {
	f := newFixture(&intent.Result{Intent: intent.KindVote})
	require.NoError(t, f.orch.HandleReply(context.Background(), reply("vote")))
	assert.Empty(t, f.exec.calls)
	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0].Text, "a proposal id and a choice")
}

func TestVoteSubmitted(t *testing.T) {
	f := newFixture(&intent.Result{Intent: intent.KindVote, ProposalID: "uni-7", Choice: "yes"})
	require.NoError(t, f.orch.HandleReply(context.Background(), reply("Vote YES on uni-7")))

	require.Len(t, f.exec.calls, 1)
	assert.Equal(t, governance.VoteRequest{UserID: "u1", SmartWalletAddress: smartWallet, ProposalID: "uni-7", Choice: "yes"}, f.exec.calls[0])
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, email.TagVoteSubmitted, f.sender.sent[0].Tag)
	assert.Equal(t, "alice@example.org", f.sender.sent[0].To)
	assert.Equal(t, []string{"0xeoa"}, f.props.invalidated)
}

func TestVoteKeyFollowsInboundMessageID(t *testing.T) {
	f := newFixture(&intent.Result{Intent: intent.KindVote, ProposalID: "uni-7", Choice: "yes"})
	in := reply("Vote YES on uni-7")
	in.MessageID = "b7bc2f4a-e38e-4336-af7d-e6c392c2f817"
	require.NoError(t, f.orch.HandleReply(context.Background(), in))
	require.NoError(t, f.orch.HandleReply(context.Background(), in))

	require.Len(t, f.exec.calls, 2)
	assert.NotEmpty(t, f.exec.calls[0].IdempotencyKey)
	assert.Equal(t, f.exec.calls[0].IdempotencyKey, f.exec.calls[1].IdempotencyKey)

	in.MessageID = "0d1c7a55-0000-4000-8000-000000000001"
	require.NoError(t, f.orch.HandleReply(context.Background(), in))
	assert.NotEqual(t, f.exec.calls[0].IdempotencyKey, f.exec.calls[2].IdempotencyKey)
}

func TestVoteNotificationFailureIsNotReturned(t *testing.T) {
	f := newFixture(&intent.Result{Intent: intent.KindVote, ProposalID: "uni-7", Choice: "yes"})
	f.sender.err = errors.New("postmark down")
	require.NoError(t, f.orch.HandleReply(context.Background(), reply("Vote YES on uni-7")))
	require.Len(t, f.exec.calls, 1)
	assert.Len(t, f.sender.sent, 1)

	f.exec.err = &governance.VoteError{Kind: governance.ErrRetryable, Message: "relay down"}
	require.NoError(t, f.orch.HandleReply(context.Background(), reply("Vote YES on uni-7")))
}

func TestVoteErrorEmailExplains(t *testing.T) {
	f := newFixture(&intent.Result{Intent: intent.KindVote, ProposalID: "uni-7", Choice: "maybe"})
	f.exec.err = &governance.VoteError{Kind: governance.ErrInvalidChoice, Message: `"maybe" is not a valid choice; valid choices are "Yes", "No"`}
	require.NoError(t, f.orch.HandleReply(context.Background(), reply("Vote maybe on uni-7")))

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, email.TagVoteError, f.sender.sent[0].Tag)
	assert.Contains(t, f.sender.sent[0].Text, `valid choices are "Yes", "No"`)
}

func TestVoteRetryableErrorEmail(t *testing.T) {
	f := newFixture(&intent.Result{Intent: intent.KindVote, ProposalID: "uni-7", Choice: "yes"})
	f.exec.err = &governance.VoteError{Kind: governance.ErrRetryable, Message: "the vote relay is temporarily unavailable", Err: errors.New("503")}
	require.NoError(t, f.orch.HandleReply(context.Background(), reply("Vote YES on uni-7")))
	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0].Text, "please try again")
}

func TestQuestionScopedToProposal(t *testing.T) {
	f := newFixture(&intent.Result{Intent: intent.KindQuestion, ProposalID: "uni-7", Question: "What does it do?"})
	require.NoError(t, f.orch.HandleReply(context.Background(), reply("What does uni-7 do?")))

	require.NotNil(t, f.cls.asked)
	assert.Equal(t, "uni-7", f.cls.asked.ID)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "Re: Fee switch", f.sender.sent[0].Subject)
	assert.Contains(t, f.sender.sent[0].Text, "It turns on fees.")
}

func TestQuestionUnknownProposalIsGeneral(t *testing.T) {
	f := newFixture(&intent.Result{Intent: intent.KindQuestion, ProposalID: "nope"})
	require.NoError(t, f.orch.HandleReply(context.Background(), reply("what is governance?")))
	assert.Nil(t, f.cls.asked)
	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0].Text, "what is governance?")
}

func TestShowMoreDelegates(t *testing.T) {
	f := newFixture(&intent.Result{Intent: intent.KindShowMore})
	require.NoError(t, f.orch.HandleReply(context.Background(), reply("show more proposals")))
	assert.Equal(t, []string{"u1"}, f.more.users)
	assert.Empty(t, f.sender.sent)
}

func TestUnknownAndClassifierFailureSendHelp(t *testing.T) {
	f := newFixture(&intent.Result{Intent: intent.KindUnknown})
	require.NoError(t, f.orch.HandleReply(context.Background(), reply("hi")))
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, email.TagHelp, f.sender.sent[0].Tag)

	f = newFixture(nil)
	f.cls.err = errors.New("llm down")
	require.NoError(t, f.orch.HandleReply(context.Background(), reply("Vote YES on uni-7")))
	assert.Empty(t, f.exec.calls)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, email.TagHelp, f.sender.sent[0].Tag)
}

func TestUnknownSenderGetsNoEmail(t *testing.T) {
	f := newFixture(&intent.Result{Intent: intent.KindUnknown})
	err := f.orch.HandleReply(context.Background(), email.InboundEmail{FromFull: email.InboundAddress{Email: "mallory@example.org"}, TextBody: "Vote YES on uni-7"})
	assert.ErrorIs(t, err, governance.ErrUserNotFound)
	assert.Empty(t, f.sender.sent)
	assert.Empty(t, f.exec.calls)
}

func TestSendFailureIsReturned(t *testing.T) {
	f := newFixture(&intent.Result{Intent: intent.KindUnknown})
	f.sender.err = errors.New("smtp down")
	assert.Error(t, f.orch.HandleReply(context.Background(), reply("hi")))
}
