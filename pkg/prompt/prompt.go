package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/songforge/songforge/pkg/storage"
)

// Source supplies the active admin-managed template, if any.
type Source interface {
	ActivePrompt(ctx context.Context, typ string) (*storage.SystemPrompt, error)
}

// Composer builds the full vendor prompt from song parameters, using
// the active template when one exists and a hardcoded format otherwise.
type Composer struct {
	source Source
}

func NewComposer(source Source) *Composer {
	return &Composer{source: source}
}

type Input struct {
	Topic    string
	Genre    string
	Mood     string
	Language string
	Tempo    string
	Notes    string
	Lyrics   string
}

func (c *Composer) Compose(ctx context.Context, in *Input) (string, error) {
	if strings.TrimSpace(in.Topic) == "" {
		return "", errors.New("prompt: topic is empty")
	}

	languageContext := ""
	if in.Language != "" && in.Language != "english" {
		languageContext = fmt.Sprintf("in %s", in.Language)
	}
	tempoContext := ""
	switch in.Tempo {
	case "slow":
		tempoContext = "at a slow tempo"
	case "fast":
		tempoContext = "at a fast tempo"
	}
	notesContext := ""
	if in.Notes != "" {
		notesContext = fmt.Sprintf("incorporating: %s", in.Notes)
	}

	var full string
	tmpl, err := c.template(ctx)
	if err != nil {
		return "", err
	}
	if tmpl != "" {
		r := strings.NewReplacer(
			"{{mood}}", in.Mood,
			"{{genre}}", in.Genre,
			"{{topic}}", in.Topic,
			"{{languageContext}}", languageContext,
			"{{tempoContext}}", tempoContext,
			"{{notesContext}}", notesContext,
		)
		full = r.Replace(tmpl)
	} else {
		parts := []string{
			fmt.Sprintf("A %s %s song", in.Mood, in.Genre),
			fmt.Sprintf("about %s", in.Topic),
			languageContext,
			tempoContext,
			notesContext,
		}
		var kept []string
		for _, p := range parts {
			if p != "" {
				kept = append(kept, p)
			}
		}
		full = strings.Join(kept, ", ")
	}

	if in.Lyrics != "" {
		full = fmt.Sprintf("%s\n\nLyrics:\n%s", full, in.Lyrics)
	}
	return full, nil
}

func (c *Composer) template(ctx context.Context) (string, error) {
	if c.source == nil {
		return "", nil
	}
	tmpl, err := c.source.ActivePrompt(ctx, "song")
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("prompt: couldn't load active template: %w", err)
	}
	return tmpl.Content, nil
}
