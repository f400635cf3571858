package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/songforge/songforge/pkg/kitsai"
	"github.com/songforge/songforge/pkg/lyricsai"
	"github.com/songforge/songforge/pkg/pipeline"
	"github.com/songforge/songforge/pkg/provider"
	"github.com/songforge/songforge/pkg/storage"
)

type Config struct {
	Debug bool
	Addr  string
	// Credentials guard the admin endpoints with basic auth when set.
	Credentials map[string]string
	// InitialCredits are granted to a user on first sight.
	InitialCredits int
	// CreditCost is the pre-check amount per song request.
	CreditCost int
}

// LyricsWriter produces a title and lyrics for a song idea.
type LyricsWriter interface {
	Generate(ctx context.Context, in *lyricsai.Input) (*lyricsai.Result, error)
}

// VoiceRegistrar is the voice clone vendor surface the API needs.
type VoiceRegistrar interface {
	Register(ctx context.Context, sample []byte, name string) (*kitsai.Voice, error)
	Status(ctx context.Context, voiceID string) (kitsai.VoiceStatus, error)
	Delete(ctx context.Context, voiceID string) error
}

// SampleValidator checks an uploaded voice sample before vendor spend.
type SampleValidator func(data []byte) error

type Server struct {
	store     *storage.Store
	worker    *pipeline.Worker
	lyrics    LyricsWriter
	voices    VoiceRegistrar
	validator SampleValidator
	cfg       Config
}

func New(store *storage.Store, worker *pipeline.Worker, lyrics LyricsWriter, voices VoiceRegistrar, validator SampleValidator, cfg Config) *Server {
	if cfg.InitialCredits == 0 {
		cfg.InitialCredits = 10
	}
	if cfg.CreditCost == 0 {
		cfg.CreditCost = 1
	}
	return &Server{
		store:     store,
		worker:    worker,
		lyrics:    lyrics,
		voices:    voices,
		validator: validator,
		cfg:       cfg,
	}
}

// Handler builds the full route tree. Split from Serve so tests can
// exercise it with httptest.
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.Timeout(60 * time.Second))
	if s.cfg.Debug {
		mux.Use(middleware.Logger)
	}

	mux.Route("/api", func(r chi.Router) {
		r.Post("/songs", s.createSong)
		r.Get("/songs", s.listSongs)
		r.Get("/songs/{id}", s.getSong)
		r.Delete("/songs/{id}", s.deleteSong)

		r.Post("/lyrics", s.generateLyrics)

		r.Post("/voices", s.createVoice)
		r.Get("/voices", s.listVoices)
		r.Get("/voices/{id}", s.getVoice)
		r.Get("/voices/{id}/status", s.getVoice)
		r.Put("/voices/{id}/default", s.setDefaultVoice)
		r.Delete("/voices/{id}", s.deleteVoice)

		r.Get("/credits", s.listCredits)

		r.Group(func(r chi.Router) {
			if len(s.cfg.Credentials) > 0 {
				r.Use(middleware.BasicAuth("admin", s.cfg.Credentials))
			}
			r.Post("/admin/credits", s.grantCredits)
			r.Post("/admin/prompts", s.setPrompt)
			r.Get("/admin/prompts", s.listPrompts)
			r.Put("/admin/settings/{id}", s.setSetting)
			r.Get("/admin/settings", s.listSettings)
			r.Delete("/admin/settings/{id}", s.deleteSetting)
		})
	})

	return mux
}

// Serve runs the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	log.Println("api: server started")
	defer log.Println("api: server ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	split := strings.Split(s.cfg.Addr, ":")
	if len(split) != 2 {
		return fmt.Errorf("api: invalid address: %s", s.cfg.Addr)
	}
	host := split[0]
	port, err := strconv.Atoi(split[1])
	if err != nil {
		return fmt.Errorf("api: invalid port: %s", split[1])
	}
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: s.Handler(),
	}
	go func() {
		note := fmt.Sprintf("http://%s:%d", host, port)
		if host == "" {
			note = fmt.Sprintf("all interfaces http://localhost:%d", port)
		}
		log.Printf("Starting server on %s", note)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v\n", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// user resolves the caller from the trusted X-User-Email header,
// provisioning on first sight. Authentication proper is delegated to
// the fronting proxy.
func (s *Server) user(w http.ResponseWriter, r *http.Request) (*storage.User, bool) {
	email := r.Header.Get("X-User-Email")
	if email == "" {
		http.Error(w, "missing X-User-Email header", http.StatusUnauthorized)
		return nil, false
	}
	user, err := s.store.EnsureUser(r.Context(), email, "", s.cfg.InitialCredits)
	if err != nil {
		s.fail(w, err)
		return nil, false
	}
	return user, true
}

func (s *Server) respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("api: couldn't encode response:", err)
	}
}

// fail maps domain errors onto HTTP statuses.
func (s *Server) fail(w http.ResponseWriter, err error) {
	var status int
	var vendorErr *provider.Error
	var genErr *provider.GenerationError
	var convErr *provider.ConversionError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrInsufficientCredits):
		status = http.StatusPaymentRequired
	case errors.Is(err, provider.ErrVoiceNotReady):
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrQueueFull):
		status = http.StatusServiceUnavailable
	case errors.As(err, &vendorErr), errors.As(err, &genErr), errors.As(err, &convErr):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}
	if status >= 500 {
		log.Println("api:", err)
	}
	s.respond(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, format string, args ...interface{}) {
	s.respond(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf(format, args...)})
}
