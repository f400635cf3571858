package voice

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/oklog/ulid/v2"
	"github.com/songforge/songforge/pkg/kitsai"
	"github.com/songforge/songforge/pkg/sound"
	"github.com/songforge/songforge/pkg/storage"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string

	KitsKey string

	Action string
	Email  string
	Name   string
	Sample string
	ID     string
}

// Run manages voice profiles from the command line: register a sample,
// poll training status or delete a profile.
func Run(ctx context.Context, cfg *Config) error {
	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("voice: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("voice: couldn't start orm store: %w", err)
	}

	voices, err := kitsai.New(&kitsai.Config{
		APIKey: cfg.KitsKey,
		Debug:  cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("voice: couldn't create voice client: %w", err)
	}

	switch cfg.Action {
	case "register":
		return register(ctx, store, voices, cfg)
	case "status":
		return status(ctx, store, voices, cfg)
	case "delete":
		return remove(ctx, store, voices, cfg)
	default:
		return fmt.Errorf("voice: unknown action %q", cfg.Action)
	}
}

func register(ctx context.Context, store *storage.Store, voices *kitsai.Client, cfg *Config) error {
	if cfg.Email == "" || cfg.Name == "" || cfg.Sample == "" {
		return fmt.Errorf("voice: email, name and sample are required")
	}
	sample, err := os.ReadFile(cfg.Sample)
	if err != nil {
		return fmt.Errorf("voice: couldn't read sample: %w", err)
	}
	if err := sound.ValidateSample(sample, 10, 300); err != nil {
		return fmt.Errorf("voice: invalid sample: %w", err)
	}
	user, err := store.EnsureUser(ctx, cfg.Email, "", 10)
	if err != nil {
		return fmt.Errorf("voice: couldn't ensure user: %w", err)
	}
	voice, err := voices.Register(ctx, sample, cfg.Name)
	if err != nil {
		return fmt.Errorf("voice: couldn't register: %w", err)
	}
	profile := &storage.VoiceProfile{
		ID:            ulid.Make().String(),
		UserID:        user.ID,
		Name:          cfg.Name,
		VendorVoiceID: &voice.ID,
		Status:        toStatus(voice.Status),
	}
	if err := store.SetVoiceProfile(ctx, profile); err != nil {
		return fmt.Errorf("voice: couldn't save profile: %w", err)
	}
	log.Printf("voice: profile %s registered, vendor voice %s, status %s\n", profile.ID, voice.ID, profile.Status)
	return nil
}

func status(ctx context.Context, store *storage.Store, voices *kitsai.Client, cfg *Config) error {
	if cfg.ID == "" {
		return fmt.Errorf("voice: id is required")
	}
	profile, err := store.GetVoiceProfile(ctx, cfg.ID)
	if err != nil {
		return fmt.Errorf("voice: couldn't get profile: %w", err)
	}
	if profile.VendorVoiceID != nil {
		vendorStatus, err := voices.Status(ctx, *profile.VendorVoiceID)
		if err != nil {
			return fmt.Errorf("voice: couldn't get vendor status: %w", err)
		}
		if next := toStatus(vendorStatus); next != profile.Status {
			profile.Status = next
			if err := store.SetVoiceProfile(ctx, profile); err != nil {
				return fmt.Errorf("voice: couldn't save profile: %w", err)
			}
		}
	}
	log.Printf("voice: profile %s (%s) status %s\n", profile.ID, profile.Name, profile.Status)
	return nil
}

func remove(ctx context.Context, store *storage.Store, voices *kitsai.Client, cfg *Config) error {
	if cfg.ID == "" {
		return fmt.Errorf("voice: id is required")
	}
	profile, err := store.GetVoiceProfile(ctx, cfg.ID)
	if err != nil {
		return fmt.Errorf("voice: couldn't get profile: %w", err)
	}
	if profile.VendorVoiceID != nil {
		if err := voices.Delete(ctx, *profile.VendorVoiceID); err != nil {
			log.Printf("voice: couldn't delete vendor voice %s: %v\n", *profile.VendorVoiceID, err)
		}
	}
	if err := store.DeleteVoiceProfile(ctx, profile.ID); err != nil {
		return fmt.Errorf("voice: couldn't delete profile: %w", err)
	}
	log.Printf("voice: profile %s deleted\n", profile.ID)
	return nil
}

func toStatus(s kitsai.VoiceStatus) storage.VoiceStatus {
	switch s {
	case kitsai.VoiceReady:
		return storage.VoiceReady
	case kitsai.VoiceFailed:
		return storage.VoiceFailed
	default:
		return storage.VoiceProcessing
	}
}
