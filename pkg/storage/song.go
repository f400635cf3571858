package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SongStatus is a strict forward-only state machine. Failed is an
// absorbing state reachable from any non-terminal state.
type SongStatus string

const (
	SongPending         SongStatus = "pending"
	SongGeneratingMusic SongStatus = "generating_music"
	SongConvertingVoice SongStatus = "converting_voice"
	SongMerging         SongStatus = "merging"
	SongCompleted       SongStatus = "completed"
	SongFailed          SongStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s SongStatus) Terminal() bool {
	return s == SongCompleted || s == SongFailed
}

type Song struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	UserID string `gorm:"index;not null;default:''"`
	User   *User  `gorm:"foreignKey:UserID"`

	Title  string `gorm:"not null;default:''"`
	Lyrics *string
	// LyricsMode records how the lyrics were sourced: "custom", "ai"
	// or empty for none. Empty lyrics without "ai" forces an
	// instrumental generation.
	LyricsMode string `gorm:"not null;default:''"`
	Prompt     string `gorm:"not null;default:''"`
	Genre      string `gorm:"not null;default:''"`
	Mood       string `gorm:"not null;default:''"`
	Language   string `gorm:"not null;default:''"`
	Tempo      string `gorm:"not null;default:''"`

	VoiceProfileID *string
	VoiceProfile   *VoiceProfile `gorm:"foreignKey:VoiceProfileID"`

	Status          SongStatus `gorm:"index;not null;default:'pending'"`
	AudioURL        string     `gorm:"not null;default:''"`
	DurationSeconds float64    `gorm:"not null;default:0"`
	ErrorMessage    string     `gorm:"not null;default:''"`
}

func (s *Store) GetSong(ctx context.Context, id string) (*Song, error) {
	q := s.db.WithContext(ctx).Preload("VoiceProfile")

	var v Song
	if err := q.First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get Song %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) SetSong(ctx context.Context, v *Song) error {
	if err := s.db.WithContext(ctx).Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set Song %s: %w", v.ID, err)
	}
	return nil
}

// SetSongStatus advances the song state machine. Transitions out of a
// terminal state are rejected so a stalled retry can never resurrect a
// finished song.
func (s *Store) SetSongStatus(ctx context.Context, id string, status SongStatus) error {
	song, err := s.GetSong(ctx, id)
	if err != nil {
		return err
	}
	if song.Status.Terminal() {
		return fmt.Errorf("storage: song %s already in terminal state %s", id, song.Status)
	}
	song.Status = status
	return s.SetSong(ctx, song)
}

func (s *Store) DeleteSong(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&Song{ID: id}, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("storage: failed to delete Song %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListSongs(ctx context.Context, page, size int, orderBy string, filter ...Filter) ([]*Song, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size
	vs := []*Song{}

	q := s.db.WithContext(ctx).Preload("VoiceProfile")
	q = q.Offset(offset).Limit(size)
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	if orderBy != "" {
		q = q.Order(orderBy)
	}
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list Songs: %w", err)
	}
	return vs, nil
}
