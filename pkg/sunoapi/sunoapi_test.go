package sunoapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/songforge/songforge/pkg/provider"
	"github.com/songforge/songforge/pkg/retry"
)

func newTestClient(t *testing.T, mux *http.ServeMux) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := New(&Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Wait:    time.Millisecond,
		Poll:    retry.Policy{MaxAttempts: 10, Interval: time.Millisecond},
	})
	if err != nil {
		t.Fatal(err)
	}
	return c, srv
}

func TestGenerate(t *testing.T) {
	var gotReq map[string]interface{}
	var polls int
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/api/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("got auth %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatal(err)
		}
		fmt.Fprint(w, `{"code": 200, "data": {"taskId": "task-1"}}`)
	})
	mux.HandleFunc("/api/v1/generate/record-info", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("taskId"); got != "task-1" {
			t.Errorf("got taskId %q", got)
		}
		polls++
		if polls < 3 {
			fmt.Fprint(w, `{"code": 200, "data": {"status": "PENDING"}}`)
			return
		}
		fmt.Fprintf(w, `{"code": 200, "data": {"status": "SUCCESS", "response": {"sunoData": [{"id": "c1", "audioUrl": %q}]}}}`, srv.URL+"/audio.mp3")
	})
	mux.HandleFunc("/audio.mp3", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "generated-audio")
	})
	c, s := newTestClient(t, mux)
	srv = s

	audio, err := c.Generate(context.Background(), &GenerateParams{
		Prompt: "an upbeat pop song",
		Lyrics: "la la la",
		Title:  "Sunset Drive",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(audio) != "generated-audio" {
		t.Errorf("got %q", audio)
	}
	if gotReq["customMode"] != true {
		t.Error("customMode not set")
	}
	if gotReq["model"] != "V4_5ALL" {
		t.Errorf("got model %v", gotReq["model"])
	}
	if gotReq["callBackUrl"] == "" {
		t.Error("callBackUrl not set")
	}
	prompt, _ := gotReq["prompt"].(string)
	if prompt == "an upbeat pop song" {
		t.Error("lyrics not merged into prompt")
	}
}

func TestGenerateFailed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 200, "data": {"taskId": "task-1"}}`)
	})
	mux.HandleFunc("/api/v1/generate/record-info", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 200, "data": {"status": "GENERATE_AUDIO_FAILED", "errorMessage": "vendor exploded"}}`)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.Generate(context.Background(), &GenerateParams{Prompt: "a song"})
	var genErr *provider.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("got %v, want GenerationError", err)
	}
	if genErr.Reason != "vendor exploded" {
		t.Errorf("got reason %q", genErr.Reason)
	}
}

func TestGenerateTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 200, "data": {"taskId": "task-1"}}`)
	})
	mux.HandleFunc("/api/v1/generate/record-info", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 200, "data": {"status": "PENDING"}}`)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.Generate(context.Background(), &GenerateParams{Prompt: "a song"})
	if !errors.Is(err, provider.ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
}

func TestGenerateEmptyPrompt(t *testing.T) {
	c, _ := newTestClient(t, http.NewServeMux())
	if _, err := c.Generate(context.Background(), &GenerateParams{Prompt: " "}); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestGenerateRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code": 429, "msg": "insufficient credits"}`)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.Generate(context.Background(), &GenerateParams{Prompt: "a song"})
	var genErr *provider.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("got %v, want GenerationError", err)
	}
}
