package lyricsai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a professional songwriter. Create song lyrics with proper structure (verses, chorus, bridge). Use [Verse 1], [Chorus], [Verse 2], [Bridge] markers. The lyrics should be creative, emotional, and fitting for the genre and mood."

type Client struct {
	client *openai.Client
	model  string
	debug  bool
}

type Config struct {
	Token string
	Model string
	Debug bool
}

func New(cfg *Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("lyricsai: api token is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		client: openai.NewClient(cfg.Token),
		model:  model,
		debug:  cfg.Debug,
	}, nil
}

type Input struct {
	Topic    string
	Language string
	Purpose  string
	Genre    string
	Mood     string
	Notes    string
}

type Result struct {
	Title  string `json:"title"`
	Lyrics string `json:"lyrics"`
}

// Generate asks the model for structured lyrics plus a suggested title.
func (c *Client) Generate(ctx context.Context, in *Input) (*Result, error) {
	if strings.TrimSpace(in.Topic) == "" {
		return nil, errors.New("lyricsai: topic is empty")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Write song lyrics about: %s\n\n", in.Topic)
	language := in.Language
	if language == "" {
		language = "english"
	}
	fmt.Fprintf(&sb, "Write the lyrics in %s.\n", language)
	if in.Purpose != "" {
		fmt.Fprintf(&sb, "The song is for a %s occasion.\n", in.Purpose)
	}
	if in.Mood != "" {
		fmt.Fprintf(&sb, "The mood should be %s.\n", in.Mood)
	}
	if in.Genre != "" {
		fmt.Fprintf(&sb, "The genre is %s.\n", in.Genre)
	}
	if in.Notes != "" {
		fmt.Fprintf(&sb, "Important details to include: %s\n", in.Notes)
	}
	sb.WriteString("\nFormat the lyrics with section markers like [Verse 1], [Chorus], etc. Also suggest a title for the song.\n")
	sb.WriteString("\nRespond in this exact JSON format:\n{\"title\": \"Song Title Here\", \"lyrics\": \"full lyrics with section markers\"}")

	if c.debug {
		log.Printf("lyricsai: prompt %q\n", sb.String())
	}
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.8,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("lyricsai: couldn't create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("lyricsai: empty completion response")
	}
	content := resp.Choices[0].Message.Content
	var result Result
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("lyricsai: couldn't unmarshal completion %q: %w", content, err)
	}
	if result.Lyrics == "" {
		return nil, errors.New("lyricsai: completion has no lyrics")
	}
	return &result, nil
}
