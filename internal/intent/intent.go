// Package intent classifies free-text email replies and answers questions
// about proposals.
package intent

import (
	"context"
	"strings"

	"governance-agent/internal/models"

	"go.uber.org/zap"
)

// Kind is the classified intent of a reply.
type Kind string

const (
	KindVote     Kind = "vote"
	KindQuestion Kind = "question"
	KindShowMore Kind = "show_more"
	KindUnknown  Kind = "unknown"
)

// ParseKind maps free-form labels onto the closed set of intents.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_"))) {
	case "vote", "voting":
		return KindVote
	case "question", "ask", "info", "information":
		return KindQuestion
	case "show_more", "more", "showmore", "show more":
		return KindShowMore
	default:
		return KindUnknown
	}
}

// Result is a classified reply. ProposalID and Choice are set for votes
// (either may be empty when the reply left it out), Question for questions.
type Result struct {
	Intent     Kind   `json:"intent"`
	ProposalID string `json:"proposalId,omitempty"`
	Choice     string `json:"choice,omitempty"`
	Question   string `json:"question,omitempty"`
}

type Classifier interface {
	Classify(ctx context.Context, text string, proposals []models.Proposal) (*Result, error)
	// Answer replies to a question. proposal is nil for general questions.
	Answer(ctx context.Context, question string, proposal *models.Proposal, history []models.Vote) (string, error)
}

// Fallback tries primary first and uses secondary when primary errors.
type Fallback struct {
	primary   Classifier
	secondary Classifier
	log       *zap.SugaredLogger
}

func NewFallback(primary, secondary Classifier, log *zap.SugaredLogger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, log: log.Named("intent")}
}

func (f *Fallback) Classify(ctx context.Context, text string, proposals []models.Proposal) (*Result, error) {
	res, err := f.primary.Classify(ctx, text, proposals)
	if err == nil {
		return res, nil
	}
	f.log.Warnw("classifier failed, using rules", "err", err)
	return f.secondary.Classify(ctx, text, proposals)
}

func (f *Fallback) Answer(ctx context.Context, question string, proposal *models.Proposal, history []models.Vote) (string, error) {
	ans, err := f.primary.Answer(ctx, question, proposal, history)
	if err == nil {
		return ans, nil
	}
	f.log.Warnw("answer generation failed, using canned answer", "err", err)
	return f.secondary.Answer(ctx, question, proposal, history)
}

// matchProposal maps a user reference (id, ref id or a unique id prefix) to
// a proposal id from proposals. Unmatched references are returned as given.
func matchProposal(ref string, proposals []models.Proposal) string {
	ref = strings.TrimRight(strings.TrimSpace(ref), ".:")
	if ref == "" {
		return ""
	}
	for _, p := range proposals {
		if strings.EqualFold(p.ID, ref) || (p.RefID != "" && strings.EqualFold(p.RefID, ref)) {
			return p.ID
		}
	}
	var hit string
	for _, p := range proposals {
		if len(ref) >= 6 && strings.HasPrefix(strings.ToLower(p.ID), strings.ToLower(ref)) {
			if hit != "" {
				return ref
			}
			hit = p.ID
		}
	}
	if hit != "" {
		return hit
	}
	return ref
}
