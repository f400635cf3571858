package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/songforge/songforge/pkg/provider"
	"github.com/songforge/songforge/pkg/ratelimit"
)

const defaultBaseURL = "https://api.elevenlabs.io/v1"

// Vendor supported music length range; out-of-range requests are
// clamped rather than rejected.
const (
	minLengthMs = 10000
	maxLengthMs = 300000
)

type Client struct {
	client    *http.Client
	debug     bool
	ratelimit ratelimit.Lock
	apiKey    string
	baseURL   string
}

type Config struct {
	APIKey  string
	BaseURL string
	Wait    time.Duration
	Debug   bool
	Client  *http.Client
}

func New(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("elevenlabs: api key is required")
	}
	wait := cfg.Wait
	if wait == 0 {
		wait = 1 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 2 * time.Minute,
		}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		client:    client,
		ratelimit: ratelimit.New(wait),
		debug:     cfg.Debug,
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}, nil
}

type GenerateParams struct {
	Prompt            string
	MusicLengthMs     int
	ForceInstrumental bool
	OutputFormat      string
}

type generateRequest struct {
	ModelID           string `json:"model_id"`
	Prompt            string `json:"prompt"`
	MusicLengthMs     int    `json:"music_length_ms"`
	ForceInstrumental bool   `json:"force_instrumental"`
}

// Generate issues one synchronous composition request and returns the
// encoded audio bytes from the response body.
func (c *Client) Generate(ctx context.Context, params *GenerateParams) ([]byte, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return nil, errors.New("elevenlabs: prompt is empty")
	}
	length := params.MusicLengthMs
	if length < minLengthMs {
		length = minLengthMs
	}
	if length > maxLengthMs {
		length = maxLengthMs
	}
	format := params.OutputFormat
	if format == "" {
		format = "mp3_44100_128"
	}
	req := &generateRequest{
		ModelID:           "music_v1",
		Prompt:            params.Prompt,
		MusicLengthMs:     length,
		ForceInstrumental: params.ForceInstrumental,
	}
	b, err := c.do(ctx, "POST", fmt.Sprintf("music?output_format=%s", format), req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: couldn't generate song: %w", err)
	}
	if len(b) == 0 {
		return nil, errors.New("elevenlabs: empty audio response")
	}
	return b, nil
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

var backoff = []time.Duration{
	30 * time.Second,
	1 * time.Minute,
	2 * time.Minute,
}

func (c *Client) do(ctx context.Context, method, path string, in any) ([]byte, error) {
	maxAttempts := 3
	attempts := 0
	var err error
	for {
		if err != nil {
			log.Println("retrying...", err)
		}
		var b []byte
		b, err = c.doAttempt(ctx, method, path, in)
		if err == nil {
			return b, nil
		}
		// Increase attempts and check if we should stop
		attempts++
		if attempts >= maxAttempts {
			return nil, err
		}
		// If the error is temporary retry
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}

		// Retry only on status codes that hint at a transient outage
		var errVendor *provider.Error
		if !errors.As(err, &errVendor) {
			return nil, err
		}
		switch errVendor.StatusCode {
		case http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusTooManyRequests, 520:
		default:
			return nil, err
		}

		idx := attempts - 1
		if idx >= len(backoff) {
			idx = len(backoff) - 1
		}
		waitTime := backoff[idx]
		c.log("elevenlabs: server seems to be down, waiting %s before retrying", waitTime)
		t := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) doAttempt(ctx context.Context, method, path string, in any) ([]byte, error) {
	var reqBody io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: couldn't marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}
	c.log("elevenlabs: do %s %s", method, path)

	u := fmt.Sprintf("%s/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: couldn't create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	unlock := c.ratelimit.Lock(ctx)
	defer unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: couldn't %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: couldn't read response body: %w", err)
	}
	c.log("elevenlabs: response %s %s %d (%d bytes)", method, path, resp.StatusCode, len(respBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errMessage := string(respBody)
		if len(errMessage) > 200 {
			errMessage = errMessage[:200] + "..."
		}
		return nil, &provider.Error{StatusCode: resp.StatusCode, Message: errMessage}
	}
	return respBody, nil
}
