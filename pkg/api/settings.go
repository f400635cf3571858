package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/songforge/songforge/pkg/storage"
)

// maintenanceSetting pauses song creation when set to a truthy value.
const maintenanceSetting = "maintenance"

// inMaintenance reads the maintenance flag. Lookup failures count as
// not in maintenance so a broken settings row can't take the API down.
func (s *Server) inMaintenance(ctx context.Context) bool {
	v, err := s.store.GetSetting(ctx, maintenanceSetting)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Println("api: couldn't read maintenance setting:", err)
		}
		return false
	}
	return v.Value == "1" || v.Value == "true"
}

type settingRequest struct {
	Value string `json:"value"`
}

func (s *Server) setSetting(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "invalid request body: %v", err)
		return
	}
	setting := &storage.Setting{
		ID:    id,
		Value: req.Value,
	}
	if err := s.store.SetSetting(r.Context(), setting); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, setting)
}

func (s *Server) listSettings(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		page = 1
	}
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil {
		size = 50
	}
	settings, err := s.store.ListSettings(r.Context(), page, size)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, settings)
}

func (s *Server) deleteSetting(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSetting(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
