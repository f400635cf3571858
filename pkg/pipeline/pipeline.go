package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/songforge/songforge/pkg/ffmpeg"
	"github.com/songforge/songforge/pkg/music"
	"github.com/songforge/songforge/pkg/prompt"
	"github.com/songforge/songforge/pkg/provider"
	"github.com/songforge/songforge/pkg/storage"
)

// Store is the slice of the relational store one pipeline run touches:
// exactly one song row, one optional read-only voice profile row, and
// the credit ledger.
type Store interface {
	GetSong(ctx context.Context, id string) (*storage.Song, error)
	SetSong(ctx context.Context, song *storage.Song) error
	GetVoiceProfile(ctx context.Context, id string) (*storage.VoiceProfile, error)
	DeductCredits(ctx context.Context, userID string, amount int, description string) error
}

// Converter turns the vocal timbre of a track into a cloned voice.
type Converter interface {
	Convert(ctx context.Context, audio []byte, voiceID string, pitchShift int) ([]byte, error)
}

// Media is the subprocess-backed post-processing toolbox.
type Media interface {
	Mix(ctx context.Context, trackA, trackB []byte, opts *ffmpeg.MixOptions) ([]byte, error)
	AddReverb(ctx context.Context, audio []byte, amount float64) ([]byte, error)
	Duration(ctx context.Context, audio []byte) (float64, error)
}

// FileStore persists the final artifact and resolves its playable URL.
type FileStore interface {
	SetMP3(ctx context.Context, id string, data []byte) (string, error)
}

// Composer builds the vendor prompt from song parameters.
type Composer interface {
	Compose(ctx context.Context, in *prompt.Input) (string, error)
}

type Config struct {
	// TargetDuration is the fixed generation length per song.
	TargetDuration time.Duration
	// CreditCost is debited per completed song.
	CreditCost int
	// Mix levels when converted vocals are laid over the original
	// track, and the reverb applied to the converted vocals first.
	VocalsVolume       float64
	InstrumentalVolume float64
	ReverbAmount       float64
	Debug              bool
}

// Pipeline advances one song at a time through the generation state
// machine. All collaborators are injected at construction; the pipeline
// itself holds no mutable state, so runs can proceed concurrently.
type Pipeline struct {
	store     Store
	generator music.Generator
	converter Converter
	media     Media
	files     FileStore
	composer  Composer
	cfg       Config
}

func New(store Store, generator music.Generator, converter Converter, media Media, files FileStore, composer Composer, cfg Config) *Pipeline {
	if cfg.TargetDuration == 0 {
		cfg.TargetDuration = 50 * time.Second
	}
	if cfg.CreditCost == 0 {
		cfg.CreditCost = 1
	}
	if cfg.VocalsVolume == 0 {
		cfg.VocalsVolume = 1.0
	}
	if cfg.InstrumentalVolume == 0 {
		cfg.InstrumentalVolume = 0.4
	}
	return &Pipeline{
		store:     store,
		generator: generator,
		converter: converter,
		media:     media,
		files:     files,
		composer:  composer,
		cfg:       cfg,
	}
}

func (p *Pipeline) debug(format string, args ...interface{}) {
	if p.cfg.Debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Run executes one full pipeline pass for the song. Music generation
// failures are fatal to the song and debit nothing; voice conversion
// failures fall back to the unconverted track; the credit is only spent
// once the artifact is durably stored.
func (p *Pipeline) Run(ctx context.Context, songID string) error {
	song, err := p.store.GetSong(ctx, songID)
	if err != nil {
		return fmt.Errorf("pipeline: couldn't load song %s: %w", songID, err)
	}
	if song.Status != storage.SongPending {
		return fmt.Errorf("pipeline: song %s is %s, not pending", songID, song.Status)
	}

	// Pre-flight: re-validate the voice profile before any vendor
	// spend. Client state may be stale.
	var voiceID string
	if song.VoiceProfileID != nil {
		voice, err := p.store.GetVoiceProfile(ctx, *song.VoiceProfileID)
		if errors.Is(err, storage.ErrNotFound) {
			return p.fail(ctx, song, provider.ErrVoiceNotReady)
		}
		if err != nil {
			return p.fail(ctx, song, err)
		}
		if voice.Status != storage.VoiceReady || voice.VendorVoiceID == nil {
			return p.fail(ctx, song, provider.ErrVoiceNotReady)
		}
		voiceID = *voice.VendorVoiceID
	}

	lyrics := ""
	if song.Lyrics != nil {
		lyrics = *song.Lyrics
	}
	// No lyrics and no explicit request for AI-written ones means the
	// song is generated instrumental-forced.
	instrumental := lyrics == "" && song.LyricsMode != "ai"

	composed, err := p.composer.Compose(ctx, &prompt.Input{
		Topic:    song.Prompt,
		Genre:    song.Genre,
		Mood:     song.Mood,
		Language: song.Language,
		Tempo:    song.Tempo,
		Lyrics:   lyrics,
	})
	if err != nil {
		return p.fail(ctx, song, err)
	}

	song.Status = storage.SongGeneratingMusic
	if err := p.store.SetSong(ctx, song); err != nil {
		return fmt.Errorf("pipeline: couldn't update song %s: %w", songID, err)
	}

	p.debug("pipeline: generating music for song %s", songID)
	audio, err := p.generator.Generate(ctx, &music.Request{
		Prompt:       composed,
		Title:        song.Title,
		Style:        song.Genre,
		DurationMs:   int(p.cfg.TargetDuration.Milliseconds()),
		Instrumental: instrumental,
	})
	if err != nil {
		return p.fail(ctx, song, fmt.Errorf("pipeline: music generation failed: %w", err))
	}

	if voiceID != "" && p.converter != nil {
		audio = p.convertVoice(ctx, song, audio, voiceID)
	}

	duration, err := p.media.Duration(ctx, audio)
	if err != nil {
		return p.fail(ctx, song, fmt.Errorf("pipeline: couldn't probe duration: %w", err))
	}

	url, err := p.files.SetMP3(ctx, song.ID, audio)
	if err != nil {
		return p.fail(ctx, song, fmt.Errorf("pipeline: couldn't store artifact: %w", err))
	}

	song.AudioURL = url
	song.DurationSeconds = duration
	song.Status = storage.SongCompleted
	if err := p.store.SetSong(ctx, song); err != nil {
		return fmt.Errorf("pipeline: couldn't complete song %s: %w", songID, err)
	}

	// Debit only after the song is durably completed, so credits are
	// never spent on a song that doesn't exist. A ledger failure past
	// this point is logged, not rolled back.
	description := fmt.Sprintf("Song generation: %s", song.Title)
	if err := p.store.DeductCredits(ctx, song.UserID, p.cfg.CreditCost, description); err != nil {
		log.Printf("pipeline: couldn't record credit usage for song %s: %v\n", songID, err)
	}
	return nil
}

// convertVoice runs the optional voice conversion leg. Any failure here
// falls back to the unconverted track: the user still gets a song, just
// without their voice.
func (p *Pipeline) convertVoice(ctx context.Context, song *storage.Song, audio []byte, voiceID string) []byte {
	song.Status = storage.SongConvertingVoice
	if err := p.store.SetSong(ctx, song); err != nil {
		log.Printf("pipeline: couldn't update song %s: %v\n", song.ID, err)
		return audio
	}

	p.debug("pipeline: converting vocals for song %s with voice %s", song.ID, voiceID)
	converted, err := p.converter.Convert(ctx, audio, voiceID, 0)
	if err != nil {
		log.Printf("pipeline: voice conversion failed for song %s, falling back to original track: %v\n", song.ID, err)
		return audio
	}

	song.Status = storage.SongMerging
	if err := p.store.SetSong(ctx, song); err != nil {
		log.Printf("pipeline: couldn't update song %s: %v\n", song.ID, err)
		return audio
	}

	if p.cfg.ReverbAmount > 0 {
		withReverb, err := p.media.AddReverb(ctx, converted, p.cfg.ReverbAmount)
		if err != nil {
			log.Printf("pipeline: reverb failed for song %s: %v\n", song.ID, err)
		} else {
			converted = withReverb
		}
	}

	mixed, err := p.media.Mix(ctx, converted, audio, &ffmpeg.MixOptions{
		VolumeA:      p.cfg.VocalsVolume,
		VolumeB:      p.cfg.InstrumentalVolume,
		OutputFormat: "mp3",
	})
	if err != nil {
		log.Printf("pipeline: mix failed for song %s, falling back to original track: %v\n", song.ID, err)
		return audio
	}
	return mixed
}

func (p *Pipeline) fail(ctx context.Context, song *storage.Song, cause error) error {
	song.Status = storage.SongFailed
	song.ErrorMessage = cause.Error()
	song.AudioURL = ""
	if err := p.store.SetSong(ctx, song); err != nil {
		log.Printf("pipeline: couldn't mark song %s as failed: %v\n", song.ID, err)
	}
	return cause
}
