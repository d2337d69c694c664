package models

import "time"

// VoteStatus is the reconciliation state of a relayed vote.
type VoteStatus string

const (
	VoteStatusPending  VoteStatus = "pending"
	VoteStatusExecuted VoteStatus = "executed"
	VoteStatusFailed   VoteStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s VoteStatus) Terminal() bool {
	return s == VoteStatusExecuted || s == VoteStatusFailed
}

// Vote stores one user's decision on one proposal together with the
// cross-chain message that carries it. Rows are never deleted.
type Vote struct {
	ID                 string     `gorm:"primaryKey;size:36"`
	UserID             string     `gorm:"size:36;index;not null"`
	ProposalID         string     `gorm:"size:128;index;not null"`
	ProposalTitle      string     `gorm:"size:512"`
	ProposalSummary    string     `gorm:"type:text"`
	Choice             string     `gorm:"size:64;not null"` // raw text as the user sent it
	ChoiceIndex        int        `gorm:"not null"`
	Protocol           string     `gorm:"size:128;index"`
	SmartWalletAddress string     `gorm:"size:64;index;not null"`
	SourceChain        string     `gorm:"size:32"`
	DestinationChain   string     `gorm:"size:32;index"`
	MessageID          *string    `gorm:"size:128;uniqueIndex"` // nil until submitted
	DestinationTxHash  *string    `gorm:"size:128"`             // nil until confirmed
	IdempotencyKey     string     `gorm:"size:36;uniqueIndex"`
	Status             VoteStatus `gorm:"size:16;index;not null;default:pending"`
	CreatedAt          time.Time  `gorm:"index"`
	UpdatedAt          time.Time
}

// MessageIDValue returns the message id or "".
func (v Vote) MessageIDValue() string {
	if v.MessageID == nil {
		return ""
	}
	return *v.MessageID
}

// DestinationTxHashValue returns the destination tx hash or "".
func (v Vote) DestinationTxHashValue() string {
	if v.DestinationTxHash == nil {
		return ""
	}
	return *v.DestinationTxHash
}
