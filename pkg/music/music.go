package music

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/songforge/songforge/pkg/elevenlabs"
	"github.com/songforge/songforge/pkg/retry"
	"github.com/songforge/songforge/pkg/sunoapi"
)

// Request carries everything a vendor needs to synthesize one song.
type Request struct {
	Prompt       string
	Lyrics       string
	Style        string
	Title        string
	DurationMs   int
	Instrumental bool
}

// Generator is the single contract both vendor integration shapes hide
// behind: elevenlabs answers with audio bytes in one request, sunoapi
// submits a job and polls it to completion.
type Generator interface {
	Generate(ctx context.Context, req *Request) ([]byte, error)
}

type Config struct {
	Type   string
	APIKey string
	Debug  bool
	Client *http.Client
	Poll   retry.Policy
}

func New(cfg *Config) (Generator, error) {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 2 * time.Minute,
		}
	}
	switch cfg.Type {
	case "elevenlabs":
		c, err := elevenlabs.New(&elevenlabs.Config{
			APIKey: cfg.APIKey,
			Debug:  cfg.Debug,
			Client: client,
		})
		if err != nil {
			return nil, fmt.Errorf("music: %w", err)
		}
		return &elevenLabsAdapter{client: c}, nil
	case "suno":
		c, err := sunoapi.New(&sunoapi.Config{
			APIKey: cfg.APIKey,
			Debug:  cfg.Debug,
			Client: client,
			Poll:   cfg.Poll,
		})
		if err != nil {
			return nil, fmt.Errorf("music: %w", err)
		}
		return &sunoAdapter{client: c}, nil
	default:
		return nil, fmt.Errorf("music: unknown generator type %q", cfg.Type)
	}
}

type elevenLabsAdapter struct {
	client *elevenlabs.Client
}

func (a *elevenLabsAdapter) Generate(ctx context.Context, req *Request) ([]byte, error) {
	prompt := req.Prompt
	if req.Lyrics != "" {
		prompt = fmt.Sprintf("%s\n\nLyrics:\n%s", prompt, req.Lyrics)
	}
	return a.client.Generate(ctx, &elevenlabs.GenerateParams{
		Prompt:            prompt,
		MusicLengthMs:     req.DurationMs,
		ForceInstrumental: req.Instrumental,
	})
}

type sunoAdapter struct {
	client *sunoapi.Client
}

func (a *sunoAdapter) Generate(ctx context.Context, req *Request) ([]byte, error) {
	return a.client.Generate(ctx, &sunoapi.GenerateParams{
		Prompt:       req.Prompt,
		Lyrics:       req.Lyrics,
		Style:        req.Style,
		Title:        req.Title,
		Instrumental: req.Instrumental,
	})
}
