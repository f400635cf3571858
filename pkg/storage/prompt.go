package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SystemPrompt is an admin-managed template with named placeholders
// ({{genre}}, {{mood}}, {{topic}}, ...). At most one prompt per type is
// active at a time.
type SystemPrompt struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Type    string `gorm:"index;not null;default:''"`
	Content string `gorm:"not null;default:''"`
	Active  bool   `gorm:"index;not null;default:false"`
}

func (s *Store) ActivePrompt(ctx context.Context, typ string) (*SystemPrompt, error) {
	var v SystemPrompt
	if err := s.db.WithContext(ctx).First(&v, "type = ? AND active = ?", typ, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get active prompt %s: %w", typ, err)
	}
	return &v, nil
}

func (s *Store) SetSystemPrompt(ctx context.Context, v *SystemPrompt) error {
	if err := s.db.WithContext(ctx).Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set SystemPrompt %s: %w", v.ID, err)
	}
	return nil
}

// ActivatePrompt activates one prompt and deactivates the rest of its
// type.
func (s *Store) ActivatePrompt(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var v SystemPrompt
		if err := tx.First(&v, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Model(&SystemPrompt{}).Where("type = ?", v.Type).Update("active", false).Error; err != nil {
			return err
		}
		return tx.Model(&SystemPrompt{}).Where("id = ?", id).Update("active", true).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: failed to activate prompt %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListSystemPrompts(ctx context.Context, typ string) ([]*SystemPrompt, error) {
	vs := []*SystemPrompt{}
	q := s.db.WithContext(ctx)
	if typ != "" {
		q = q.Where("type = ?", typ)
	}
	if err := q.Order("created_at desc").Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list SystemPrompts: %w", err)
	}
	return vs, nil
}
