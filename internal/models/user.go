package models

import "time"

// User is a subscriber to governance digests.
type User struct {
	ID                 string    `gorm:"primaryKey;size:36" json:"id"`
	Email              string    `gorm:"size:320;uniqueIndex;not null" json:"email"`
	Name               string    `gorm:"size:128" json:"name,omitempty"`
	WalletAddress      string    `gorm:"size:64;index" json:"walletAddress"`
	SmartWalletAddress string    `gorm:"size:64" json:"smartWalletAddress"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// DisplayName is used to greet the user in emails.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	for i, r := range u.Email {
		if r == '@' {
			return u.Email[:i]
		}
	}
	return u.Email
}
