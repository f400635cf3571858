package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type VoiceStatus string

const (
	VoicePending    VoiceStatus = "pending"
	VoiceProcessing VoiceStatus = "processing"
	VoiceReady      VoiceStatus = "ready"
	VoiceFailed     VoiceStatus = "failed"
)

type VoiceProfile struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID string `gorm:"index;not null;default:''"`
	User   *User  `gorm:"foreignKey:UserID"`

	Name string `gorm:"not null;default:''"`

	// VendorVoiceID is nil until the vendor accepted the training job.
	VendorVoiceID *string
	SampleURL     string      `gorm:"not null;default:''"`
	Status        VoiceStatus `gorm:"index;not null;default:'pending'"`
	IsDefault     bool        `gorm:"not null;default:false"`
}

func (s *Store) GetVoiceProfile(ctx context.Context, id string) (*VoiceProfile, error) {
	var v VoiceProfile
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get VoiceProfile %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) SetVoiceProfile(ctx context.Context, v *VoiceProfile) error {
	if err := s.db.WithContext(ctx).Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set VoiceProfile %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) DeleteVoiceProfile(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&VoiceProfile{ID: id}, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("storage: failed to delete VoiceProfile %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListVoiceProfiles(ctx context.Context, userID string) ([]*VoiceProfile, error) {
	vs := []*VoiceProfile{}
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc")
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list VoiceProfiles: %w", err)
	}
	return vs, nil
}

// SetDefaultVoiceProfile marks one profile as the user's default and
// clears the flag on the rest in a single transaction.
func (s *Store) SetDefaultVoiceProfile(ctx context.Context, userID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&VoiceProfile{}).Where("user_id = ?", userID).Update("is_default", false).Error; err != nil {
			return err
		}
		res := tx.Model(&VoiceProfile{}).Where("id = ? AND user_id = ?", id, userID).Update("is_default", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("storage: failed to set default VoiceProfile %s: %w", id, err)
	}
	return nil
}
