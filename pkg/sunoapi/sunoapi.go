package sunoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/songforge/songforge/pkg/provider"
	"github.com/songforge/songforge/pkg/ratelimit"
	"github.com/songforge/songforge/pkg/retry"
)

const defaultBaseURL = "https://api.sunoapi.org"

type Client struct {
	client    *http.Client
	debug     bool
	ratelimit ratelimit.Lock
	apiKey    string
	baseURL   string
	poll      retry.Policy
}

type Config struct {
	APIKey  string
	BaseURL string
	Wait    time.Duration
	Debug   bool
	Client  *http.Client
	Poll    retry.Policy
}

func New(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("sunoapi: api key is required")
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
	poll := cfg.Poll
	if poll.MaxAttempts == 0 {
		poll = retry.Default
	}
	return &Client{
		client:    client,
		ratelimit: ratelimit.New(wait),
		debug:     cfg.Debug,
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		poll:      poll,
	}, nil
}

type GenerateParams struct {
	Prompt       string
	Lyrics       string
	Style        string
	Title        string
	Instrumental bool
}

type generateRequest struct {
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Prompt       string `json:"prompt"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title"`
	Model        string `json:"model"`
	CallBackURL  string `json:"callBackUrl"`
}

type taskResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string `json:"taskId"`
	} `json:"data"`
}

type clip struct {
	ID             string  `json:"id"`
	AudioURL       string  `json:"audioUrl"`
	StreamAudioURL string  `json:"streamAudioUrl"`
	Title          string  `json:"title"`
	Duration       float64 `json:"duration"`
}

type statusResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"errorMessage"`
		Response     *struct {
			SunoData []clip `json:"sunoData"`
		} `json:"response"`
	} `json:"data"`
}

// Generate submits an asynchronous generation job and polls it until it
// reaches a terminal state, then downloads the resulting asset.
func (c *Client) Generate(ctx context.Context, params *GenerateParams) ([]byte, error) {
	if strings.TrimSpace(params.Prompt) == "" {
		return nil, errors.New("sunoapi: prompt is empty")
	}
	prompt := params.Prompt
	if params.Lyrics != "" {
		prompt = fmt.Sprintf("%s\n\n[Lyrics]\n%s", prompt, params.Lyrics)
	}
	title := params.Title
	if title == "" {
		title = "Untitled Song"
	}
	req := &generateRequest{
		CustomMode:   true,
		Instrumental: params.Instrumental,
		Prompt:       prompt,
		Style:        params.Style,
		Title:        title,
		Model:        "V4_5ALL",
		// The vendor requires a callback URL even when the caller polls.
		CallBackURL: "https://songforge.app/api/callbacks/suno",
	}
	var resp taskResponse
	if _, err := c.do(ctx, "POST", "api/v1/generate", req, &resp); err != nil {
		return nil, fmt.Errorf("sunoapi: couldn't submit generation: %w", err)
	}
	if resp.Code != 200 {
		return nil, &provider.GenerationError{Reason: resp.Msg}
	}
	if resp.Data.TaskID == "" {
		return nil, errors.New("sunoapi: empty task id")
	}

	audioURL, err := c.waitTask(ctx, resp.Data.TaskID)
	if err != nil {
		return nil, err
	}
	return c.download(ctx, audioURL)
}

func (c *Client) waitTask(ctx context.Context, taskID string) (string, error) {
	u := fmt.Sprintf("api/v1/generate/record-info?taskId=%s", taskID)
	var audioURL string
	err := c.poll.Do(ctx, func(ctx context.Context) (bool, error) {
		var resp statusResponse
		if _, err := c.do(ctx, "GET", u, nil, &resp); err != nil {
			return false, fmt.Errorf("sunoapi: couldn't get task status: %w", err)
		}
		if resp.Code != 200 {
			return false, &provider.GenerationError{Reason: resp.Msg}
		}
		switch resp.Data.Status {
		case "SUCCESS", "completed":
			if resp.Data.Response == nil || len(resp.Data.Response.SunoData) == 0 {
				return false, errors.New("sunoapi: no clips in completed response")
			}
			clp := resp.Data.Response.SunoData[0]
			audioURL = clp.AudioURL
			if audioURL == "" {
				audioURL = clp.StreamAudioURL
			}
			if audioURL == "" {
				return false, errors.New("sunoapi: no audio url in completed response")
			}
			return true, nil
		case "FAILED", "CREATE_TASK_FAILED", "GENERATE_AUDIO_FAILED", "SENSITIVE_WORD_ERROR":
			reason := resp.Data.ErrorMessage
			if reason == "" {
				reason = resp.Data.Status
			}
			return false, &provider.GenerationError{Reason: reason}
		default:
			return false, nil
		}
	})
	if err != nil {
		return "", err
	}
	return audioURL, nil
}

func (c *Client) download(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("sunoapi: couldn't create download request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sunoapi: couldn't download audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &provider.Error{StatusCode: resp.StatusCode, Message: "audio download failed"}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sunoapi: couldn't read audio: %w", err)
	}
	return b, nil
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	var reqBody io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("sunoapi: couldn't marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(body)
	}
	c.log("sunoapi: do %s %s", method, path)

	u := fmt.Sprintf("%s/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("sunoapi: couldn't create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	unlock := c.ratelimit.Lock(ctx)
	defer unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sunoapi: couldn't %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sunoapi: couldn't read response body: %w", err)
	}
	c.log("sunoapi: response %s %s %d %s", method, path, resp.StatusCode, string(respBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errMessage := string(respBody)
		if len(errMessage) > 200 {
			errMessage = errMessage[:200] + "..."
		}
		return nil, &provider.Error{StatusCode: resp.StatusCode, Message: errMessage}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("sunoapi: couldn't unmarshal response body (%T): %w", out, err)
		}
	}
	return respBody, nil
}
