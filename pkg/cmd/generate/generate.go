package generate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/songforge/songforge/pkg/ffmpeg"
	"github.com/songforge/songforge/pkg/filestore"
	"github.com/songforge/songforge/pkg/kitsai"
	"github.com/songforge/songforge/pkg/music"
	"github.com/songforge/songforge/pkg/pipeline"
	"github.com/songforge/songforge/pkg/prompt"
	"github.com/songforge/songforge/pkg/storage"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
	FSType string
	FSConn string

	MusicProvider string
	MusicKey      string
	KitsKey       string

	FFmpegBin  string
	FFprobeBin string

	Email          string
	Title          string
	Prompt         string
	Genre          string
	Mood           string
	Language       string
	Tempo          string
	Lyrics         string
	VoiceProfileID string

	TargetDuration     time.Duration
	VocalsVolume       float64
	InstrumentalVolume float64
	ReverbAmount       float64
	CreditCost         int
}

// Run creates one song row and drives it through the pipeline
// synchronously. Useful for scripting and smoke testing without the
// HTTP surface.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("generate: started")
	defer log.Println("generate: ended")

	if cfg.Prompt == "" {
		return fmt.Errorf("generate: prompt is required")
	}
	if cfg.Email == "" {
		return fmt.Errorf("generate: email is required")
	}

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("generate: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("generate: couldn't start orm store: %w", err)
	}

	fs, err := filestore.New(cfg.FSType, cfg.FSConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("generate: couldn't create file storage: %w", err)
	}

	generator, err := music.New(&music.Config{
		Type:   cfg.MusicProvider,
		APIKey: cfg.MusicKey,
		Debug:  cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("generate: couldn't create music generator: %w", err)
	}

	media, err := ffmpeg.New(cfg.FFmpegBin, cfg.FFprobeBin)
	if err != nil {
		return fmt.Errorf("generate: couldn't create media tool: %w", err)
	}

	var converter pipeline.Converter
	if cfg.KitsKey != "" {
		voices, err := kitsai.New(&kitsai.Config{
			APIKey: cfg.KitsKey,
			Debug:  cfg.Debug,
		})
		if err != nil {
			return fmt.Errorf("generate: couldn't create voice client: %w", err)
		}
		converter = voices
	}

	user, err := store.EnsureUser(ctx, cfg.Email, "", 10)
	if err != nil {
		return fmt.Errorf("generate: couldn't ensure user: %w", err)
	}

	title := cfg.Title
	if title == "" {
		title = "Untitled"
	}
	song := &storage.Song{
		ID:       ulid.Make().String(),
		UserID:   user.ID,
		Title:    title,
		Prompt:   cfg.Prompt,
		Genre:    cfg.Genre,
		Mood:     cfg.Mood,
		Language: cfg.Language,
		Tempo:    cfg.Tempo,
		Status:   storage.SongPending,
	}
	if cfg.Lyrics != "" {
		lyrics := cfg.Lyrics
		song.Lyrics = &lyrics
		song.LyricsMode = "custom"
	}
	if cfg.VoiceProfileID != "" {
		id := cfg.VoiceProfileID
		song.VoiceProfileID = &id
	}
	if err := store.SetSong(ctx, song); err != nil {
		return fmt.Errorf("generate: couldn't create song: %w", err)
	}

	pipe := pipeline.New(store, generator, converter, media, fs, prompt.NewComposer(store), pipeline.Config{
		TargetDuration:     cfg.TargetDuration,
		CreditCost:         cfg.CreditCost,
		VocalsVolume:       cfg.VocalsVolume,
		InstrumentalVolume: cfg.InstrumentalVolume,
		ReverbAmount:       cfg.ReverbAmount,
		Debug:              cfg.Debug,
	})
	if err := pipe.Run(ctx, song.ID); err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	song, err = store.GetSong(ctx, song.ID)
	if err != nil {
		return fmt.Errorf("generate: couldn't reload song: %w", err)
	}
	log.Printf("generate: song %s %s (%.1fs) %s\n", song.ID, song.Status, song.DurationSeconds, song.AudioURL)
	return nil
}
