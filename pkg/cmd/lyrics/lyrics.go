package lyrics

import (
	"context"
	"fmt"

	"github.com/songforge/songforge/pkg/lyricsai"
)

type Config struct {
	Debug     bool
	OpenAIKey string

	Topic    string
	Genre    string
	Mood     string
	Language string
	Notes    string
}

// Run generates lyrics for a song idea and prints them.
func Run(ctx context.Context, cfg *Config) error {
	if cfg.Topic == "" {
		return fmt.Errorf("lyrics: topic is required")
	}
	client, err := lyricsai.New(&lyricsai.Config{
		Token: cfg.OpenAIKey,
		Debug: cfg.Debug,
	})
	if err != nil {
		return fmt.Errorf("lyrics: couldn't create client: %w", err)
	}
	result, err := client.Generate(ctx, &lyricsai.Input{
		Topic:    cfg.Topic,
		Genre:    cfg.Genre,
		Mood:     cfg.Mood,
		Language: cfg.Language,
		Notes:    cfg.Notes,
	})
	if err != nil {
		return fmt.Errorf("lyrics: %w", err)
	}
	fmt.Printf("%s\n\n%s\n", result.Title, result.Lyrics)
	return nil
}
