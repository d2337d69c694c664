// Package models defines the database models for the governance agent.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"golang.org/x/xerrors"
)

// StringList is stored as a JSON array in a text column.
type StringList []string

func (l *StringList) Scan(v interface{}) error {
	var b []byte
	switch val := v.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		b = val
	case string:
		b = []byte(val)
	default:
		return xerrors.Errorf("StringList must be text, got %T", v)
	}
	if len(b) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(b, (*[]string)(l))
}

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Proposal is a cached governance proposal fetched from the aggregator.
type Proposal struct {
	ID             string     `gorm:"primaryKey;size:128" json:"id"`
	RefID          string     `gorm:"size:128" json:"refId"`
	Title          string     `gorm:"size:512" json:"title"`
	Content        string     `gorm:"type:text" json:"content,omitempty"`
	Summary        string     `gorm:"type:text" json:"summary"`
	Protocol       string     `gorm:"size:128;index" json:"protocol"`
	Adapter        string     `gorm:"size:64" json:"adapter,omitempty"`
	Proposer       string     `gorm:"size:128" json:"proposer,omitempty"`
	Status         string     `gorm:"size:32" json:"status"`
	StartTimestamp int64      `json:"startTimestamp"`
	EndTimestamp   int64      `gorm:"index" json:"endTimestamp"`
	Choices        StringList `gorm:"type:text" json:"choices"`
	WalletAddress  string     `gorm:"size:64;index" json:"walletAddress,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// EndTime returns the voting deadline.
func (p Proposal) EndTime() time.Time {
	return time.Unix(p.EndTimestamp, 0).UTC()
}
