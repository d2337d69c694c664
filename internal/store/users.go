package store

import (
	"context"
	"errors"
	"strings"

	"governance-agent/internal/governance"
	"governance-agent/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Users is the gorm user store. Emails are stored lowercased.
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetByEmail returns governance.ErrUserNotFound for unknown addresses.
func (s *Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, "email = ?", normalizeEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, governance.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Users) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, governance.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Upsert creates the user or updates the wallets of an existing one. The
// smart wallet defaults to the wallet address.
func (s *Users) Upsert(ctx context.Context, email, wallet, smartWallet, name string) (*models.User, error) {
	email = normalizeEmail(email)
	if smartWallet == "" {
		smartWallet = wallet
	}

	var u models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&u, "email = ?", email).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			u = models.User{
				ID:                 uuid.NewString(),
				Email:              email,
				Name:               name,
				WalletAddress:      wallet,
				SmartWalletAddress: smartWallet,
			}
			return tx.Create(&u).Error
		case err != nil:
			return err
		}
		u.WalletAddress = wallet
		u.SmartWalletAddress = smartWallet
		if name != "" {
			u.Name = name
		}
		return tx.Save(&u).Error
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListWithWallet returns every user that has a wallet address.
func (s *Users) ListWithWallet(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Where("wallet_address <> ''").Order("created_at ASC").Find(&users).Error
	return users, err
}
