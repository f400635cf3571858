package kitsai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/songforge/songforge/pkg/provider"
	"github.com/songforge/songforge/pkg/ratelimit"
	"github.com/songforge/songforge/pkg/retry"
)

const defaultBaseURL = "https://arpeggi.io/api/kits/v1"

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
		return nil, errors.New("kitsai: api key is required")
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

type VoiceStatus string

const (
	VoiceProcessing VoiceStatus = "processing"
	VoiceReady      VoiceStatus = "ready"
	VoiceFailed     VoiceStatus = "failed"
)

type Voice struct {
	ID     string
	Name   string
	Status VoiceStatus
}

type voiceModelResponse struct {
	ID     json.Number `json:"id"`
	Title  string      `json:"title"`
	Status string      `json:"status"`
}

func (r *voiceModelResponse) toVoice() *Voice {
	status := VoiceProcessing
	switch r.Status {
	case "trained":
		status = VoiceReady
	case "failed":
		status = VoiceFailed
	}
	return &Voice{
		ID:     r.ID.String(),
		Name:   r.Title,
		Status: status,
	}
}

// Register submits a voice sample for training. Training is usually
// asynchronous, but the vendor may answer with a trained model right
// away, so the returned status must be checked either way.
func (c *Client) Register(ctx context.Context, sample []byte, name string) (*Voice, error) {
	if len(sample) == 0 {
		return nil, errors.New("kitsai: voice sample is empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("kitsai: voice name is empty")
	}
	form := []formField{
		{name: "soundFile", filename: "voice_sample.mp3", data: sample},
		{name: "title", value: name},
	}
	var resp voiceModelResponse
	if err := c.doForm(ctx, "POST", "voice-models", form, &resp); err != nil {
		return nil, fmt.Errorf("kitsai: couldn't register voice: %w", err)
	}
	return resp.toVoice(), nil
}

// Status is an idempotent status check. It never loops: callers
// re-poll on their own schedule.
func (c *Client) Status(ctx context.Context, voiceID string) (VoiceStatus, error) {
	var resp voiceModelResponse
	if err := c.doJSON(ctx, "GET", fmt.Sprintf("voice-models/%s", voiceID), nil, &resp); err != nil {
		return "", fmt.Errorf("kitsai: couldn't get voice status: %w", err)
	}
	return resp.toVoice().Status, nil
}

// Delete removes the vendor-side voice model. Callers treat failures as
// non-fatal: the local profile record is the source of truth.
func (c *Client) Delete(ctx context.Context, voiceID string) error {
	if err := c.doJSON(ctx, "DELETE", fmt.Sprintf("voice-models/%s", voiceID), nil, nil); err != nil {
		return fmt.Errorf("kitsai: couldn't delete voice: %w", err)
	}
	return nil
}

type conversionResponse struct {
	ID        json.Number `json:"id"`
	Status    string      `json:"status"`
	OutputURL string      `json:"outputUrl"`
	Error     string      `json:"error"`
}

// Convert submits a vocal conversion job against a trained voice and
// polls it until the converted track can be downloaded.
func (c *Client) Convert(ctx context.Context, audio []byte, voiceID string, pitchShift int) ([]byte, error) {
	if voiceID == "" {
		return nil, provider.ErrVoiceNotReady
	}
	if len(audio) == 0 {
		return nil, errors.New("kitsai: conversion input is empty")
	}
	form := []formField{
		{name: "soundFile", filename: "vocals.mp3", data: audio},
		{name: "voiceModelId", value: voiceID},
	}
	if pitchShift != 0 {
		form = append(form, formField{name: "pitchShift", value: strconv.Itoa(pitchShift)})
	}
	var resp conversionResponse
	if err := c.doForm(ctx, "POST", "voice-conversions", form, &resp); err != nil {
		return nil, fmt.Errorf("kitsai: couldn't submit conversion: %w", err)
	}
	if resp.ID.String() == "" {
		return nil, errors.New("kitsai: empty conversion id")
	}
	return c.waitConversion(ctx, resp.ID.String())
}

func (c *Client) waitConversion(ctx context.Context, conversionID string) ([]byte, error) {
	u := fmt.Sprintf("voice-conversions/%s", conversionID)
	var outputURL string
	err := c.poll.Do(ctx, func(ctx context.Context) (bool, error) {
		var resp conversionResponse
		if err := c.doJSON(ctx, "GET", u, nil, &resp); err != nil {
			return false, fmt.Errorf("kitsai: couldn't get conversion status: %w", err)
		}
		switch resp.Status {
		case "completed", "success":
			if resp.OutputURL == "" {
				return false, errors.New("kitsai: no output url in completed conversion")
			}
			outputURL = resp.OutputURL
			return true, nil
		case "failed", "error":
			reason := resp.Error
			if reason == "" {
				reason = "unknown error"
			}
			return false, &provider.ConversionError{Reason: reason}
		default:
			return false, nil
		}
	})
	if err != nil {
		return nil, err
	}
	return c.download(ctx, outputURL)
}

func (c *Client) download(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("kitsai: couldn't create download request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kitsai: couldn't download conversion: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &provider.Error{StatusCode: resp.StatusCode, Message: "conversion download failed"}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kitsai: couldn't read conversion: %w", err)
	}
	return b, nil
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

type formField struct {
	name     string
	value    string
	filename string
	data     []byte
}

func (c *Client) doForm(ctx context.Context, method, path string, fields []formField, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if f.filename != "" {
			fw, err := w.CreateFormFile(f.name, f.filename)
			if err != nil {
				return fmt.Errorf("kitsai: couldn't create form file: %w", err)
			}
			if _, err := fw.Write(f.data); err != nil {
				return fmt.Errorf("kitsai: couldn't write form file: %w", err)
			}
			continue
		}
		if err := w.WriteField(f.name, f.value); err != nil {
			return fmt.Errorf("kitsai: couldn't write form field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("kitsai: couldn't close form: %w", err)
	}
	return c.doRequest(ctx, method, path, &buf, w.FormDataContentType(), out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	contentType := ""
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("kitsai: couldn't marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(body)
		contentType = "application/json"
	}
	return c.doRequest(ctx, method, path, reqBody, contentType, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	c.log("kitsai: do %s %s", method, path)
	u := fmt.Sprintf("%s/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("kitsai: couldn't create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("content-type", contentType)
	}
	req.Header.Set("authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	unlock := c.ratelimit.Lock(ctx)
	defer unlock()

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("kitsai: couldn't %s %s: %w", method, u, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kitsai: couldn't read response body: %w", err)
	}
	c.log("kitsai: response %s %s %d %s", method, path, resp.StatusCode, string(respBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errMessage := string(respBody)
		if len(errMessage) > 200 {
			errMessage = errMessage[:200] + "..."
		}
		return &provider.Error{StatusCode: resp.StatusCode, Message: errMessage}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("kitsai: couldn't unmarshal response body (%T): %w", out, err)
		}
	}
	return nil
}
