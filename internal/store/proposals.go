package store

import (
	"context"
	"errors"
	"strings"

	"governance-agent/internal/boardroom"
	"governance-agent/internal/governance"
	"governance-agent/internal/models"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Aggregator is the upstream proposal source.
type Aggregator interface {
	PendingProposals(ctx context.Context, wallet string) ([]models.Proposal, error)
	Proposal(ctx context.Context, id string) (*models.Proposal, error)
	// Invalidate drops any cached pending list for wallet.
	Invalidate(wallet string)
}

// Summarizer produces a short summary of a proposal body.
type Summarizer interface {
	Summarize(ctx context.Context, content string) (string, error)
}

const summaryUnavailable = "Summary not available"

// Proposals is the ProposalStore: an in-memory LRU in front of the proposals
// table in front of the aggregator.
type Proposals struct {
	db         *gorm.DB
	upstream   Aggregator
	summarizer Summarizer
	cache      *lru.Cache
	log        *zap.SugaredLogger
}

var _ governance.ProposalStore = (*Proposals)(nil)

// NewProposals builds the store. summarizer may be nil.
func NewProposals(db *gorm.DB, upstream Aggregator, summarizer Summarizer, cacheSize int, log *zap.SugaredLogger) (*Proposals, error) {
	if cacheSize <= 0 {
		cacheSize = 512
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Proposals{
		db:         db,
		upstream:   upstream,
		summarizer: summarizer,
		cache:      cache,
		log:        log.Named("proposals"),
	}, nil
}

func (s *Proposals) Get(ctx context.Context, id string) (*models.Proposal, error) {
	if v, ok := s.cache.Get(id); ok {
		p := v.(models.Proposal)
		return &p, nil
	}

	var p models.Proposal
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if err == nil {
		s.cache.Add(p.ID, p)
		return &p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	fetched, err := s.upstream.Proposal(ctx, id)
	if errors.Is(err, boardroom.ErrNotFound) {
		return nil, governance.ErrProposalNotFound
	}
	if err != nil {
		return nil, err
	}
	rows := []models.Proposal{*fetched}
	s.summarize(ctx, rows)
	if err := s.save(ctx, rows); err != nil {
		s.log.Warnw("could not cache proposal", "proposal_id", id, "err", err)
	}
	return &rows[0], nil
}

// ListByWallet returns the wallet's pending proposals from the aggregator,
// summarized and cached. When the aggregator is unreachable the last cached
// copy is served instead.
func (s *Proposals) ListByWallet(ctx context.Context, wallet string) ([]models.Proposal, error) {
	fresh, err := s.upstream.PendingProposals(ctx, wallet)
	if err != nil {
		var cached []models.Proposal
		if dbErr := s.db.WithContext(ctx).Where("LOWER(wallet_address) = ?", strings.ToLower(wallet)).Find(&cached).Error; dbErr == nil && len(cached) > 0 {
			s.log.Warnw("aggregator unavailable, serving cached proposals", "wallet", wallet, "count", len(cached), "err", err)
			return cached, nil
		}
		return nil, err
	}
	if len(fresh) == 0 {
		return fresh, nil
	}

	s.reuseSummaries(ctx, fresh)
	s.summarize(ctx, fresh)
	if err := s.save(ctx, fresh); err != nil {
		s.log.Warnw("could not cache proposals", "wallet", wallet, "err", err)
	}
	return fresh, nil
}

func (s *Proposals) reuseSummaries(ctx context.Context, props []models.Proposal) {
	ids := make([]string, len(props))
	for i, p := range props {
		ids[i] = p.ID
	}
	var known []models.Proposal
	if err := s.db.WithContext(ctx).Select("id", "summary").Where("id IN ?", ids).Find(&known).Error; err != nil {
		return
	}
	summaries := make(map[string]string, len(known))
	for _, k := range known {
		if k.Summary != "" && k.Summary != summaryUnavailable {
			summaries[k.ID] = k.Summary
		}
	}
	for i := range props {
		if props[i].Summary == "" {
			props[i].Summary = summaries[props[i].ID]
		}
	}
}

func (s *Proposals) summarize(ctx context.Context, props []models.Proposal) {
	for i := range props {
		p := &props[i]
		if p.Summary != "" {
			continue
		}
		if s.summarizer == nil || strings.TrimSpace(p.Content) == "" {
			p.Summary = summaryUnavailable
			continue
		}
		summary, err := s.summarizer.Summarize(ctx, p.Content)
		if err != nil || strings.TrimSpace(summary) == "" {
			s.log.Debugw("summary failed", "proposal_id", p.ID, "err", err)
			p.Summary = summaryUnavailable
			continue
		}
		p.Summary = strings.TrimSpace(summary)
	}
}

func (s *Proposals) save(ctx context.Context, props []models.Proposal) error {
	for _, p := range props {
		s.cache.Add(p.ID, p)
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"ref_id", "title", "content", "summary", "protocol", "adapter", "proposer",
			"status", "start_timestamp", "end_timestamp", "choices", "wallet_address", "updated_at",
		}),
	}).Create(&props).Error
}

// Invalidate forgets the wallet's cached pending list so a proposal the
// wallet just voted on is not offered again.
func (s *Proposals) Invalidate(wallet string) {
	s.upstream.Invalidate(wallet)
}
