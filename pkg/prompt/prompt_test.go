package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/songforge/songforge/pkg/storage"
)

type fakeSource struct {
	content string
}

func (s *fakeSource) ActivePrompt(ctx context.Context, typ string) (*storage.SystemPrompt, error) {
	if s.content == "" {
		return nil, storage.ErrNotFound
	}
	return &storage.SystemPrompt{Type: typ, Content: s.content, Active: true}, nil
}

func TestComposeFallback(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want string
	}{
		{
			name: "basic",
			in:   Input{Topic: "summer nights", Genre: "pop", Mood: "upbeat"},
			want: "A upbeat pop song, about summer nights",
		},
		{
			name: "language and tempo",
			in:   Input{Topic: "la playa", Genre: "reggaeton", Mood: "happy", Language: "spanish", Tempo: "fast"},
			want: "A happy reggaeton song, about la playa, in spanish, at a fast tempo",
		},
		{
			name: "english is implicit",
			in:   Input{Topic: "rain", Genre: "jazz", Mood: "calm", Language: "english", Tempo: "slow"},
			want: "A calm jazz song, about rain, at a slow tempo",
		},
		{
			name: "notes",
			in:   Input{Topic: "rain", Genre: "jazz", Mood: "calm", Notes: "saxophone solo"},
			want: "A calm jazz song, about rain, incorporating: saxophone solo",
		},
	}
	c := NewComposer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Compose(context.Background(), &tt.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestComposeEmptyTopic(t *testing.T) {
	c := NewComposer(nil)
	if _, err := c.Compose(context.Background(), &Input{Topic: "  "}); err == nil {
		t.Fatal("expected error for empty topic")
	}
}

func TestComposeTemplate(t *testing.T) {
	c := NewComposer(&fakeSource{
		content: "Compose a {{mood}} {{genre}} track about {{topic}} {{tempoContext}}",
	})
	got, err := c.Compose(context.Background(), &Input{
		Topic: "the sea", Genre: "folk", Mood: "wistful", Tempo: "slow",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Compose a wistful folk track about the sea at a slow tempo"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestComposeTemplateMissing(t *testing.T) {
	// An empty source falls back to the hardcoded format.
	c := NewComposer(&fakeSource{})
	got, err := c.Compose(context.Background(), &Input{Topic: "home", Genre: "rock", Mood: "angry"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "A angry rock song, about home" {
		t.Errorf("got %q", got)
	}
}

func TestComposeLyrics(t *testing.T) {
	c := NewComposer(nil)
	got, err := c.Compose(context.Background(), &Input{
		Topic: "home", Genre: "rock", Mood: "angry", Lyrics: "verse one\nchorus",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(got, "\n\nLyrics:\nverse one\nchorus") {
		t.Errorf("lyrics not appended: %q", got)
	}
}
