package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

type User struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Email          string `gorm:"uniqueIndex;not null"`
	Name           string `gorm:"not null;default:''"`
	CreditsBalance int    `gorm:"not null;default:0"`
}

func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var v User
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get User %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var v User
	if err := s.db.WithContext(ctx).First(&v, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get User %s: %w", email, err)
	}
	return &v, nil
}

// EnsureUser resolves the authenticated identity supplied by the session
// provider into a local user row, provisioning it on first contact.
func (s *Store) EnsureUser(ctx context.Context, email, name string, initialCredits int) (*User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	user = &User{
		ID:             ulid.Make().String(),
		Email:          email,
		Name:           name,
		CreditsBalance: initialCredits,
	}
	if err := s.SetUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) SetUser(ctx context.Context, v *User) error {
	if err := s.db.WithContext(ctx).Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set User %s: %w", v.ID, err)
	}
	return nil
}
