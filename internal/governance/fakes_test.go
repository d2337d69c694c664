package governance

import (
	"context"
	"errors"
	"sync"

	"governance-agent/internal/crosschain"
	"governance-agent/internal/models"
)

type fakeProposals struct {
	byID map[string]models.Proposal
	err  error
}

func (f *fakeProposals) Get(_ context.Context, id string) (*models.Proposal, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.byID[id]
	if !ok {
		return nil, ErrProposalNotFound
	}
	return &p, nil
}

func (f *fakeProposals) ListByWallet(context.Context, string) ([]models.Proposal, error) {
	out := make([]models.Proposal, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, p)
	}
	return out, nil
}

type fakeVotes struct {
	mu       sync.Mutex
	inserted  []models.Vote
	err       error
	lookupErr error
}

func (f *fakeVotes) Insert(_ context.Context, v *models.Vote) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, *v)
	return nil
}

func (f *fakeVotes) UpdateStatus(context.Context, string, models.VoteStatus, string) error {
	return errors.New("not used")
}

func (f *fakeVotes) ListPending(context.Context) ([]models.Vote, error) {
	return nil, errors.New("not used")
}

func (f *fakeVotes) FindByIdempotencyKey(_ context.Context, key string) (*models.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	for i := range f.inserted {
		if f.inserted[i].IdempotencyKey == key {
			v := f.inserted[i]
			return &v, nil
		}
	}
	return nil, nil
}

type fakeTransport struct {
	mu        sync.Mutex
	submitted []crosschain.SubmitRequest
	err       error
}

func (f *fakeTransport) Submit(_ context.Context, req crosschain.SubmitRequest) (*crosschain.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.err != nil {
		return nil, f.err
	}
	return &crosschain.Submission{MessageID: "0xmessage", TxHash: "0xsource"}, nil
}

func (f *fakeTransport) GetStatus(context.Context, string) (*crosschain.MessageStatus, error) {
	return nil, errors.New("not used")
}

func (f *fakeTransport) GetDestinationReceipt(context.Context, string, string) (*crosschain.Receipt, error) {
	return nil, errors.New("not used")
}
