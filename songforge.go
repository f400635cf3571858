package songforge

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/songforge/songforge/pkg/music"
)

type Config struct {
	Provider string
	APIKey   string
	Proxy    string
	Wait     time.Duration
	Debug    bool
}

// GenerateSong generates a song given a prompt and writes the audio to
// the output file. It talks to the vendor directly, without the store
// or the worker queue.
func GenerateSong(ctx context.Context, cfg *Config, prompt, lyrics, title string, instrumental bool, output string) error {
	httpClient := &http.Client{
		Timeout: 2 * time.Minute,
	}
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy URL: %w", err)
		}
		httpClient.Transport = &http.Transport{
			Proxy: http.ProxyURL(u),
		}
	}
	generator, err := music.New(&music.Config{
		Type:   cfg.Provider,
		APIKey: cfg.APIKey,
		Debug:  cfg.Debug,
		Client: httpClient,
	})
	if err != nil {
		return fmt.Errorf("couldn't create generator: %w", err)
	}
	audio, err := generator.Generate(ctx, &music.Request{
		Prompt:       prompt,
		Lyrics:       lyrics,
		Title:        title,
		Instrumental: instrumental,
	})
	if err != nil {
		return fmt.Errorf("couldn't generate song: %w", err)
	}
	if output == "" {
		output = "song.mp3"
	}
	if err := os.WriteFile(output, audio, 0644); err != nil {
		return fmt.Errorf("couldn't write output file: %w", err)
	}
	log.Println("song written to", output)
	return nil
}
