package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/songforge/songforge/pkg/lyricsai"
	"github.com/songforge/songforge/pkg/provider"
	"github.com/songforge/songforge/pkg/storage"
)

type songRequest struct {
	Title          string `json:"title"`
	Prompt         string `json:"prompt"`
	Genre          string `json:"genre"`
	Mood           string `json:"mood"`
	Language       string `json:"language"`
	Tempo          string `json:"tempo"`
	Lyrics         string `json:"lyrics"`
	LyricsMode     string `json:"lyrics_mode"`
	VoiceProfileID string `json:"voice_profile_id"`
}

type songResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Prompt          string    `json:"prompt"`
	Genre           string    `json:"genre"`
	Mood            string    `json:"mood"`
	Language        string    `json:"language"`
	Tempo           string    `json:"tempo"`
	Lyrics          string    `json:"lyrics,omitempty"`
	VoiceProfileID  string    `json:"voice_profile_id,omitempty"`
	Status          string    `json:"status"`
	AudioURL        string    `json:"audio_url,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func toSongResponse(song *storage.Song) *songResponse {
	resp := &songResponse{
		ID:              song.ID,
		Title:           song.Title,
		Prompt:          song.Prompt,
		Genre:           song.Genre,
		Mood:            song.Mood,
		Language:        song.Language,
		Tempo:           song.Tempo,
		Status:          string(song.Status),
		AudioURL:        song.AudioURL,
		DurationSeconds: song.DurationSeconds,
		ErrorMessage:    song.ErrorMessage,
		CreatedAt:       song.CreatedAt,
	}
	if song.Lyrics != nil {
		resp.Lyrics = *song.Lyrics
	}
	if song.VoiceProfileID != nil {
		resp.VoiceProfileID = *song.VoiceProfileID
	}
	return resp
}

func (s *Server) createSong(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if s.inMaintenance(ctx) {
		s.respond(w, http.StatusServiceUnavailable, map[string]string{"error": "song generation is temporarily disabled"})
		return
	}

	var req songRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}
	if req.Prompt == "" {
		s.badRequest(w, "prompt is required")
		return
	}
	switch req.LyricsMode {
	case "", "custom", "ai":
	default:
		s.badRequest(w, "invalid lyrics_mode: %s", req.LyricsMode)
		return
	}

	// Reject before any queueing if the user can't pay for the song.
	// The actual debit happens after completion.
	if user.CreditsBalance < s.cfg.CreditCost {
		s.fail(w, storage.ErrInsufficientCredits)
		return
	}

	var voiceProfileID *string
	if req.VoiceProfileID != "" {
		voice, err := s.store.GetVoiceProfile(ctx, req.VoiceProfileID)
		if err != nil {
			s.fail(w, err)
			return
		}
		if voice.UserID != user.ID {
			s.fail(w, storage.ErrNotFound)
			return
		}
		if voice.Status != storage.VoiceReady {
			s.fail(w, provider.ErrVoiceNotReady)
			return
		}
		voiceProfileID = &voice.ID
	}

	lyrics := req.Lyrics
	title := req.Title
	if req.LyricsMode == "ai" && lyrics == "" {
		if s.lyrics == nil {
			s.badRequest(w, "lyrics generation is not configured")
			return
		}
		result, err := s.lyrics.Generate(ctx, &lyricsai.Input{
			Topic:    req.Prompt,
			Genre:    req.Genre,
			Mood:     req.Mood,
			Language: req.Language,
		})
		if err != nil {
			s.fail(w, err)
			return
		}
		lyrics = result.Lyrics
		if title == "" {
			title = result.Title
		}
	}
	if title == "" {
		title = "Untitled"
	}

	song := &storage.Song{
		ID:             ulid.Make().String(),
		UserID:         user.ID,
		Title:          title,
		Prompt:         req.Prompt,
		Genre:          req.Genre,
		Mood:           req.Mood,
		Language:       req.Language,
		Tempo:          req.Tempo,
		LyricsMode:     req.LyricsMode,
		VoiceProfileID: voiceProfileID,
		Status:         storage.SongPending,
	}
	if lyrics != "" {
		song.Lyrics = &lyrics
	}
	if err := s.store.SetSong(ctx, song); err != nil {
		s.fail(w, err)
		return
	}

	if err := s.worker.Enqueue(song.ID); err != nil {
		// Roll the row back so a retry doesn't leave orphans behind.
		if derr := s.store.DeleteSong(ctx, song.ID); derr != nil {
			s.fail(w, derr)
			return
		}
		s.fail(w, err)
		return
	}

	s.respond(w, http.StatusAccepted, toSongResponse(song))
}

func (s *Server) listSongs(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		page = 1
	}
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil {
		size = 50
	}
	filters := []storage.Filter{
		storage.Where("user_id = ?", user.ID),
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filters = append(filters, storage.Where("status = ?", v))
	}
	songs, err := s.store.ListSongs(r.Context(), page, size, "created_at desc", filters...)
	if err != nil {
		s.fail(w, err)
		return
	}
	resp := []*songResponse{}
	for _, song := range songs {
		resp = append(resp, toSongResponse(song))
	}
	s.respond(w, http.StatusOK, resp)
}

func (s *Server) getSong(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	song, err := s.store.GetSong(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if song.UserID != user.ID {
		s.fail(w, storage.ErrNotFound)
		return
	}
	s.respond(w, http.StatusOK, toSongResponse(song))
}

func (s *Server) deleteSong(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	song, err := s.store.GetSong(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if song.UserID != user.ID {
		s.fail(w, storage.ErrNotFound)
		return
	}
	if err := s.store.DeleteSong(ctx, song.ID); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type lyricsRequest struct {
	Topic    string `json:"topic"`
	Genre    string `json:"genre"`
	Mood     string `json:"mood"`
	Language string `json:"language"`
	Notes    string `json:"notes"`
}

func (s *Server) generateLyrics(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.user(w, r); !ok {
		return
	}
	if s.lyrics == nil {
		http.Error(w, "lyrics generation is not configured", http.StatusNotImplemented)
		return
	}
	var req lyricsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}
	if req.Topic == "" {
		s.badRequest(w, "topic is required")
		return
	}
	result, err := s.lyrics.Generate(r.Context(), &lyricsai.Input{
		Topic:    req.Topic,
		Genre:    req.Genre,
		Mood:     req.Mood,
		Language: req.Language,
		Notes:    req.Notes,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}
