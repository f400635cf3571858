package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

var ErrInsufficientCredits = errors.New("storage: insufficient credits")

type CreditType string

const (
	CreditUsage  CreditType = "usage"
	CreditGrant  CreditType = "grant"
	CreditRefund CreditType = "refund"
)

// CreditTransaction is an immutable ledger entry. Rows are only ever
// inserted, never updated or deleted.
type CreditTransaction struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time

	UserID string `gorm:"index;not null"`
	User   *User  `gorm:"foreignKey:UserID"`

	Amount       int        `gorm:"not null"`
	BalanceAfter int        `gorm:"not null"`
	Type         CreditType `gorm:"not null"`
	Description  string     `gorm:"not null;default:''"`
}

// DeductCredits debits the user balance and appends the matching ledger
// entry in one transaction, so the balance can never drift from the
// ledger under a partial failure.
func (s *Store) DeductCredits(ctx context.Context, userID string, amount int, description string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return err
		}
		if user.CreditsBalance < amount {
			return ErrInsufficientCredits
		}
		user.CreditsBalance -= amount
		if err := tx.Save(&user).Error; err != nil {
			return err
		}
		return tx.Create(&CreditTransaction{
			ID:           ulid.Make().String(),
			UserID:       userID,
			Amount:       -amount,
			BalanceAfter: user.CreditsBalance,
			Type:         CreditUsage,
			Description:  description,
		}).Error
	})
	if errors.Is(err, ErrInsufficientCredits) {
		return ErrInsufficientCredits
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: failed to deduct credits for User %s: %w", userID, err)
	}
	return nil
}

// GrantCredits credits the user balance and appends a grant ledger entry.
func (s *Store) GrantCredits(ctx context.Context, userID string, amount int, description string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return err
		}
		user.CreditsBalance += amount
		if err := tx.Save(&user).Error; err != nil {
			return err
		}
		return tx.Create(&CreditTransaction{
			ID:           ulid.Make().String(),
			UserID:       userID,
			Amount:       amount,
			BalanceAfter: user.CreditsBalance,
			Type:         CreditGrant,
			Description:  description,
		}).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: failed to grant credits for User %s: %w", userID, err)
	}
	return nil
}

func (s *Store) ListCreditTransactions(ctx context.Context, userID string, page, size int) ([]*CreditTransaction, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size
	vs := []*CreditTransaction{}
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc")
	q = q.Offset(offset).Limit(size)
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list CreditTransactions: %w", err)
	}
	return vs, nil
}
