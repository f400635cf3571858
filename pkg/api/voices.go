package api

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"
	"github.com/songforge/songforge/pkg/kitsai"
	"github.com/songforge/songforge/pkg/storage"
)

// maxSampleBytes bounds the multipart upload, roughly five minutes of
// 320 kbps mp3.
const maxSampleBytes = 12 << 20

type voiceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

func toVoiceResponse(v *storage.VoiceProfile) *voiceResponse {
	return &voiceResponse{
		ID:        v.ID,
		Name:      v.Name,
		Status:    string(v.Status),
		IsDefault: v.IsDefault,
		CreatedAt: v.CreatedAt,
	}
}

func toVoiceStatus(s kitsai.VoiceStatus) storage.VoiceStatus {
	switch s {
	case kitsai.VoiceReady:
		return storage.VoiceReady
	case kitsai.VoiceFailed:
		return storage.VoiceFailed
	default:
		return storage.VoiceProcessing
	}
}

func (s *Server) createVoice(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if s.voices == nil {
		http.Error(w, "voice cloning is not configured", http.StatusNotImplemented)
		return
	}

	if err := r.ParseMultipartForm(maxSampleBytes); err != nil {
		s.badRequest(w, "invalid multipart form: %v", err)
		return
	}
	name := r.FormValue("name")
	if name == "" {
		s.badRequest(w, "name is required")
		return
	}
	file, _, err := r.FormFile("sample")
	if err != nil {
		s.badRequest(w, "sample file is required: %v", err)
		return
	}
	defer func() { _ = file.Close() }()
	sample, err := io.ReadAll(io.LimitReader(file, maxSampleBytes))
	if err != nil {
		s.fail(w, err)
		return
	}

	// Sample problems are caught locally, before the vendor sees the
	// upload.
	if s.validator != nil {
		if err := s.validator(sample); err != nil {
			s.badRequest(w, "invalid voice sample: %v", err)
			return
		}
	}

	voice, err := s.voices.Register(ctx, sample, name)
	if err != nil {
		s.fail(w, err)
		return
	}

	profile := &storage.VoiceProfile{
		ID:            ulid.Make().String(),
		UserID:        user.ID,
		Name:          name,
		VendorVoiceID: &voice.ID,
		Status:        toVoiceStatus(voice.Status),
	}
	if err := s.store.SetVoiceProfile(ctx, profile); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, toVoiceResponse(profile))
}

func (s *Server) listVoices(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	voices, err := s.store.ListVoiceProfiles(r.Context(), user.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	resp := []*voiceResponse{}
	for _, v := range voices {
		resp = append(resp, toVoiceResponse(v))
	}
	s.respond(w, http.StatusOK, resp)
}

// getVoice returns the profile, refreshing a non-terminal status from
// the vendor first so polling clients see training progress.
func (s *Server) getVoice(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	profile, err := s.store.GetVoiceProfile(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if profile.UserID != user.ID {
		s.fail(w, storage.ErrNotFound)
		return
	}

	refreshable := profile.Status == storage.VoicePending || profile.Status == storage.VoiceProcessing
	if refreshable && s.voices != nil && profile.VendorVoiceID != nil {
		status, err := s.voices.Status(ctx, *profile.VendorVoiceID)
		if err != nil {
			log.Printf("api: couldn't refresh voice %s status: %v\n", profile.ID, err)
		} else if next := toVoiceStatus(status); next != profile.Status {
			profile.Status = next
			if err := s.store.SetVoiceProfile(ctx, profile); err != nil {
				s.fail(w, err)
				return
			}
		}
	}
	s.respond(w, http.StatusOK, toVoiceResponse(profile))
}

func (s *Server) setDefaultVoice(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	profile, err := s.store.GetVoiceProfile(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if profile.UserID != user.ID {
		s.fail(w, storage.ErrNotFound)
		return
	}
	if err := s.store.SetDefaultVoiceProfile(ctx, user.ID, profile.ID); err != nil {
		s.fail(w, err)
		return
	}
	profile.IsDefault = true
	s.respond(w, http.StatusOK, toVoiceResponse(profile))
}

func (s *Server) deleteVoice(w http.ResponseWriter, r *http.Request) {
	user, ok := s.user(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	profile, err := s.store.GetVoiceProfile(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if profile.UserID != user.ID {
		s.fail(w, storage.ErrNotFound)
		return
	}
	// The vendor side is best effort, the local row is authoritative.
	if s.voices != nil && profile.VendorVoiceID != nil {
		if err := s.voices.Delete(ctx, *profile.VendorVoiceID); err != nil {
			log.Printf("api: couldn't delete vendor voice %s: %v\n", *profile.VendorVoiceID, err)
		}
	}
	if err := s.store.DeleteVoiceProfile(ctx, profile.ID); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
