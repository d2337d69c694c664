package governance

import (
	"context"
	"errors"
	"testing"

	"governance-agent/internal/logger"
	"governance-agent/internal/models"

	"github.com/stretchr/testify/assert"
)

type fakePersonalizer struct {
	ids   []string
	err   error
	calls int
}

func (f *fakePersonalizer) RankProposals(context.Context, []models.Vote, []models.Proposal) ([]string, error) {
	f.calls++
	return f.ids, f.err
}

func ids(props []models.Proposal) []string {
	out := make([]string, len(props))
	for i, p := range props {
		out[i] = p.ID
	}
	return out
}

var rankInput = []models.Proposal{
	{ID: "c", EndTimestamp: 300},
	{ID: "a", EndTimestamp: 100},
	{ID: "d", EndTimestamp: 100},
	{ID: "b", EndTimestamp: 200},
}

func TestSortByDeadline(t *testing.T) {
	assert.Equal(t, []string{"a", "d", "b", "c"}, ids(SortByDeadline(rankInput)))
	assert.Equal(t, "c", rankInput[0].ID, "input is not mutated")
}

func TestRankFallbacks(t *testing.T) {
	ctx := context.Background()
	history := []models.Vote{{ProposalID: "old"}}
	want := []string{"a", "d", "b", "c"}

	assert.Equal(t, want, ids(Rank(ctx, rankInput, history, nil, logger.Nop())))

	p := &fakePersonalizer{ids: []string{"c"}}
	assert.Equal(t, want, ids(Rank(ctx, rankInput, nil, p, logger.Nop())))
	assert.Zero(t, p.calls, "no history means no personalization call")

	failing := &fakePersonalizer{err: errors.New("llm down")}
	assert.Equal(t, want, ids(Rank(ctx, rankInput, history, failing, logger.Nop())))
}

func TestRankPersonalizedTopsUpWithDeadlineOrder(t *testing.T) {
	p := &fakePersonalizer{ids: []string{"c", "unknown", "b", "c"}}
	got := Rank(context.Background(), rankInput, []models.Vote{{ProposalID: "x"}}, p, logger.Nop())
	assert.Equal(t, []string{"c", "b", "a", "d"}, ids(got))
}
