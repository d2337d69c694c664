// Package store implements the persistence collaborators on top of gorm.
package store

import (
	"context"
	"errors"
	"time"

	"governance-agent/internal/governance"
	"governance-agent/internal/models"

	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

var (
	ErrVoteNotFound      = errors.New("vote not found")
	ErrInvalidTransition = errors.New("vote is not pending")
)

// Votes is the gorm VoteStore. It has no delete: vote rows are an audit
// trail.
type Votes struct {
	db *gorm.DB
}

var _ governance.VoteStore = (*Votes)(nil)

func NewVotes(db *gorm.DB) *Votes {
	return &Votes{db: db}
}

func (s *Votes) Insert(ctx context.Context, vote *models.Vote) error {
	if vote.Status == "" {
		vote.Status = models.VoteStatusPending
	}
	return s.db.WithContext(ctx).Create(vote).Error
}

// UpdateStatus moves a pending vote to status. Terminal votes are never
// changed again, not even to the same status, so at most one caller ever
// observes the transition.
func (s *Votes) UpdateStatus(ctx context.Context, voteID string, status models.VoteStatus, destinationTxHash string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if destinationTxHash != "" {
		updates["destination_tx_hash"] = destinationTxHash
	}

	tx := s.db.WithContext(ctx).Model(&models.Vote{}).
		Where("id = ? AND status = ?", voteID, models.VoteStatusPending).
		Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected > 0 {
		return nil
	}

	var existing models.Vote
	if err := s.db.WithContext(ctx).Select("id", "status").First(&existing, "id = ?", voteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVoteNotFound
		}
		return err
	}
	return xerrors.Errorf("vote %s is %s: %w", voteID, existing.Status, ErrInvalidTransition)
}

func (s *Votes) ListPending(ctx context.Context) ([]models.Vote, error) {
	var votes []models.Vote
	err := s.db.WithContext(ctx).
		Where("status = ?", models.VoteStatusPending).
		Order("created_at ASC").
		Find(&votes).Error
	return votes, err
}

func (s *Votes) Get(ctx context.Context, voteID string) (*models.Vote, error) {
	var v models.Vote
	if err := s.db.WithContext(ctx).First(&v, "id = ?", voteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVoteNotFound
		}
		return nil, err
	}
	return &v, nil
}

// FindByIdempotencyKey returns the vote recorded under key, or nil when
// there is none.
func (s *Votes) FindByIdempotencyKey(ctx context.Context, key string) (*models.Vote, error) {
	if key == "" {
		return nil, nil
	}
	var v models.Vote
	err := s.db.WithContext(ctx).First(&v, "idempotency_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListByUser returns the user's most recent votes first.
func (s *Votes) ListByUser(ctx context.Context, userID string, limit int) ([]models.Vote, error) {
	var votes []models.Vote
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&votes).Error
	return votes, err
}

// Recent returns the latest votes across all users.
func (s *Votes) Recent(ctx context.Context, limit int) ([]models.Vote, error) {
	var votes []models.Vote
	err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&votes).Error
	return votes, err
}

// CountByStatus returns the number of votes in each status.
func (s *Votes) CountByStatus(ctx context.Context) (map[models.VoteStatus]int64, error) {
	var rows []struct {
		Status models.VoteStatus
		N      int64
	}
	err := s.db.WithContext(ctx).Model(&models.Vote{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := map[models.VoteStatus]int64{
		models.VoteStatusPending:  0,
		models.VoteStatusExecuted: 0,
		models.VoteStatusFailed:   0,
	}
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
