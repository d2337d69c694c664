package governance

import (
	"context"
	"sort"

	"governance-agent/internal/models"

	"go.uber.org/zap"
)

// Personalizer orders proposal ids by expected relevance to a user.
type Personalizer interface {
	RankProposals(ctx context.Context, history []models.Vote, proposals []models.Proposal) ([]string, error)
}

// SortByDeadline returns a copy of proposals ordered by closest voting
// deadline first, ties broken by id.
func SortByDeadline(proposals []models.Proposal) []models.Proposal {
	out := make([]models.Proposal, len(proposals))
	copy(out, proposals)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EndTimestamp != out[j].EndTimestamp {
			return out[i].EndTimestamp < out[j].EndTimestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Rank is the single ranking policy for digests, the API and show-more
// replies. Personalized order comes first when available; whatever the
// personalizer leaves out follows in deadline order. Without a personalizer,
// without history, or on any personalizer error the deadline order is used.
func Rank(ctx context.Context, proposals []models.Proposal, history []models.Vote, p Personalizer, log *zap.SugaredLogger) []models.Proposal {
	byDeadline := SortByDeadline(proposals)
	if p == nil || len(history) == 0 || len(proposals) < 2 {
		return byDeadline
	}

	ids, err := p.RankProposals(ctx, history, byDeadline)
	if err != nil {
		log.Warnw("personalized ranking unavailable, using deadline order", "err", err)
		return byDeadline
	}

	index := make(map[string]int, len(byDeadline))
	for i, prop := range byDeadline {
		index[prop.ID] = i
	}
	used := make(map[string]bool, len(byDeadline))
	out := make([]models.Proposal, 0, len(byDeadline))
	for _, id := range ids {
		i, ok := index[id]
		if !ok || used[id] {
			continue
		}
		used[id] = true
		out = append(out, byDeadline[i])
	}
	for _, prop := range byDeadline {
		if !used[prop.ID] {
			out = append(out, prop)
		}
	}
	return out
}
