package intent

import (
	"context"
	"testing"

	"governance-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProposals = []models.Proposal{
	{ID: "0x8f2a1c9d", RefID: "AIP-42", Title: "Raise LTV", Protocol: "aave", Choices: models.StringList{"FOR", "AGAINST"}},
	{ID: "uni-7", Title: "Fee switch", Protocol: "uniswap", Choices: models.StringList{"Yes", "No"}},
}

func TestRulesClassify(t *testing.T) {
	cases := []struct {
		name string
		text string
		want Result
	}{
		{"full vote", "Vote YES on Proposal uni-7", Result{Intent: KindVote, Choice: "YES", ProposalID: "uni-7"}},
		{"ref id", "vote against on AIP-42.", Result{Intent: KindVote, Choice: "against", ProposalID: "0x8f2a1c9d"}},
		{"missing choice", "vote on uni-7", Result{Intent: KindVote, ProposalID: "uni-7"}},
		{"missing proposal", "Vote no please", Result{Intent: KindVote, Choice: "no"}},
		{"bare vote", "vote", Result{Intent: KindVote}},
		{"show more", "Show more proposals", Result{Intent: KindShowMore}},
		{"question", "What does uni-7 change?", Result{Intent: KindQuestion, ProposalID: "uni-7", Question: "What does uni-7 change?"}},
		{"unknown", "thanks!", Result{Intent: KindUnknown}},
		{"quoted history ignored", "thanks\n> Vote YES on uni-7", Result{Intent: KindUnknown}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewRules().Classify(context.Background(), tc.text, testProposals)
			require.NoError(t, err)
			assert.Equal(t, tc.want, *got)
		})
	}
}

func TestRulesAnswer(t *testing.T) {
	p := testProposals[1]
	p.Summary = "Turns on protocol fees."
	ans, err := NewRules().Answer(context.Background(), "what?", &p, nil)
	require.NoError(t, err)
	assert.Contains(t, ans, "Fee switch")
	assert.Contains(t, ans, "Turns on protocol fees.")
	assert.Contains(t, ans, "Yes, No")

	ans, err = NewRules().Answer(context.Background(), "what?", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, ans, "Vote YES on")
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindShowMore, ParseKind("show-more"))
	assert.Equal(t, KindVote, ParseKind(" VOTE "))
	assert.Equal(t, KindQuestion, ParseKind("question"))
	assert.Equal(t, KindUnknown, ParseKind("request_info_about_weather"))
}

func TestMatchProposalPrefix(t *testing.T) {
	assert.Equal(t, "0x8f2a1c9d", matchProposal("0x8f2a1c", testProposals))
	assert.Equal(t, "0x8f", matchProposal("0x8f", testProposals))
	assert.Equal(t, "", matchProposal("  ", testProposals))
}
