package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"governance-agent/internal/models"
)

var (
	voteFull     = regexp.MustCompile(`(?i)\bvote\s+([a-z]+)\s+on\s+(?:proposal\s+)?#?([\w\-:.]+)`)
	voteNoChoice = regexp.MustCompile(`(?i)\bvote\s+on\s+(?:proposal\s+)?#?([\w\-:.]+)`)
	voteNoTarget = regexp.MustCompile(`(?i)\bvote\s+(yes|no|abstain|for|against|yay|nay|approve|reject|support|oppose|pass)\b`)
	showMore     = regexp.MustCompile(`(?i)\b(show|send|more)\s+(me\s+)?(more|other|additional)?\s*proposals?\b`)
	voteWord     = regexp.MustCompile(`(?i)^\s*vote\b`)
)

// Rules classifies replies with the command grammar advertised in every
// digest ("Vote YES on <id>", "show more proposals"). It never errors.
type Rules struct{}

func NewRules() *Rules { return &Rules{} }

func (Rules) Classify(_ context.Context, text string, proposals []models.Proposal) (*Result, error) {
	body := firstLines(text, 5)

	if m := voteFull.FindStringSubmatch(body); m != nil {
		return &Result{Intent: KindVote, Choice: m[1], ProposalID: matchProposal(m[2], proposals)}, nil
	}
	if m := voteNoChoice.FindStringSubmatch(body); m != nil {
		return &Result{Intent: KindVote, ProposalID: matchProposal(m[1], proposals)}, nil
	}
	if m := voteNoTarget.FindStringSubmatch(body); m != nil {
		return &Result{Intent: KindVote, Choice: m[1]}, nil
	}
	if voteWord.MatchString(body) {
		return &Result{Intent: KindVote}, nil
	}
	if showMore.MatchString(body) {
		return &Result{Intent: KindShowMore}, nil
	}
	if strings.Contains(body, "?") {
		res := &Result{Intent: KindQuestion, Question: strings.TrimSpace(body)}
		for _, p := range proposals {
			if strings.Contains(strings.ToLower(body), strings.ToLower(p.ID)) {
				res.ProposalID = p.ID
				break
			}
		}
		return res, nil
	}
	return &Result{Intent: KindUnknown}, nil
}

// Answer returns what is known locally about the proposal.
func (Rules) Answer(_ context.Context, _ string, proposal *models.Proposal, _ []models.Vote) (string, error) {
	if proposal == nil {
		return "I can't answer free-form questions right now. Reply with \"Vote YES on <proposal id>\" to vote, " +
			"or \"show more proposals\" to see what else is open.", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", proposal.Title, proposal.Protocol)
	if proposal.Summary != "" {
		fmt.Fprintf(&b, "%s\n", proposal.Summary)
	}
	if len(proposal.Choices) > 0 {
		fmt.Fprintf(&b, "Choices: %s\n", strings.Join(proposal.Choices, ", "))
	}
	if proposal.EndTimestamp > 0 {
		fmt.Fprintf(&b, "Voting closes %s.", proposal.EndTime().Format("Jan 2, 2006 15:04 MST"))
	}
	return strings.TrimSpace(b.String()), nil
}

// firstLines drops quoted history that some clients leave in the body.
func firstLines(text string, n int) string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, ">") {
			continue
		}
		if strings.HasPrefix(t, "On ") && strings.HasSuffix(t, "wrote:") {
			break
		}
		if t == "" {
			continue
		}
		out = append(out, t)
		if len(out) == n {
			break
		}
	}
	return strings.Join(out, "\n")
}
