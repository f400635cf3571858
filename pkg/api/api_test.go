package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/songforge/songforge/pkg/kitsai"
	"github.com/songforge/songforge/pkg/lyricsai"
	"github.com/songforge/songforge/pkg/pipeline"
	"github.com/songforge/songforge/pkg/storage"
)

type fakeLyrics struct {
	result *lyricsai.Result
	err    error
}

func (f *fakeLyrics) Generate(ctx context.Context, in *lyricsai.Input) (*lyricsai.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeVoices struct {
	status  kitsai.VoiceStatus
	deleted []string
}

func (f *fakeVoices) Register(ctx context.Context, sample []byte, name string) (*kitsai.Voice, error) {
	return &kitsai.Voice{ID: "vendor-1", Name: name, Status: f.status}, nil
}

func (f *fakeVoices) Status(ctx context.Context, voiceID string) (kitsai.VoiceStatus, error) {
	return f.status, nil
}

func (f *fakeVoices) Delete(ctx context.Context, voiceID string) error {
	f.deleted = append(f.deleted, voiceID)
	return nil
}

type testAPI struct {
	store  *storage.Store
	worker *pipeline.Worker
	voices *fakeVoices
	srv    *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	store, err := storage.New("sqlite", filepath.Join(t.TempDir(), "test.db"), false)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	// The worker is never run in these tests, jobs just sit queued.
	worker := pipeline.NewWorker(nil, 1, 4)
	voices := &fakeVoices{status: kitsai.VoiceProcessing}
	lyrics := &fakeLyrics{result: &lyricsai.Result{Title: "Sunset Drive", Lyrics: "la la la"}}
	server := New(store, worker, lyrics, voices, nil, Config{InitialCredits: 10})
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &testAPI{store: store, worker: worker, voices: voices, srv: srv}
}

func (a *testAPI) do(t *testing.T, method, path, email string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reqBody *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, a.srv.URL+path, reqBody)
	if err != nil {
		t.Fatal(err)
	}
	if email != "" {
		req.Header.Set("X-User-Email", email)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	return resp, buf.Bytes()
}

func TestCreateSong(t *testing.T) {
	a := newTestAPI(t)
	resp, body := a.do(t, "POST", "/api/songs", "ada@example.com", map[string]interface{}{
		"title":  "Sunset Drive",
		"prompt": "driving at dusk",
		"genre":  "synthwave",
		"mood":   "nostalgic",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("got %d, want 202: %s", resp.StatusCode, body)
	}
	var song songResponse
	if err := json.Unmarshal(body, &song); err != nil {
		t.Fatal(err)
	}
	if song.Status != "pending" {
		t.Errorf("got status %q, want pending", song.Status)
	}
	if a.worker.Pending() != 1 {
		t.Errorf("got %d queued, want 1", a.worker.Pending())
	}
	stored, err := a.store.GetSong(context.Background(), song.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Title != "Sunset Drive" {
		t.Errorf("got title %q", stored.Title)
	}
}

func TestCreateSongNoAuth(t *testing.T) {
	a := newTestAPI(t)
	resp, _ := a.do(t, "POST", "/api/songs", "", map[string]interface{}{"prompt": "x"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", resp.StatusCode)
	}
}

func TestCreateSongNoPrompt(t *testing.T) {
	a := newTestAPI(t)
	resp, _ := a.do(t, "POST", "/api/songs", "ada@example.com", map[string]interface{}{"title": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", resp.StatusCode)
	}
}

func TestCreateSongOutOfCredits(t *testing.T) {
	a := newTestAPI(t)
	if _, err := a.store.EnsureUser(context.Background(), "broke@example.com", "", 0); err != nil {
		t.Fatal(err)
	}
	resp, _ := a.do(t, "POST", "/api/songs", "broke@example.com", map[string]interface{}{"prompt": "x"})
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("got %d, want 402", resp.StatusCode)
	}
	if a.worker.Pending() != 0 {
		t.Errorf("got %d queued, want 0", a.worker.Pending())
	}
}

func TestCreateSongVoiceNotReady(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()
	user, err := a.store.EnsureUser(ctx, "ada@example.com", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	profile := &storage.VoiceProfile{
		ID:     ulid.Make().String(),
		UserID: user.ID,
		Name:   "My Voice",
		Status: storage.VoiceProcessing,
	}
	if err := a.store.SetVoiceProfile(ctx, profile); err != nil {
		t.Fatal(err)
	}
	resp, body := a.do(t, "POST", "/api/songs", "ada@example.com", map[string]interface{}{
		"prompt":           "x",
		"voice_profile_id": profile.ID,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got %d, want 400: %s", resp.StatusCode, body)
	}
}

func TestCreateSongForeignVoice(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()
	other, err := a.store.EnsureUser(ctx, "other@example.com", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	vendorID := "vendor-9"
	profile := &storage.VoiceProfile{
		ID:            ulid.Make().String(),
		UserID:        other.ID,
		Name:          "Not Yours",
		Status:        storage.VoiceReady,
		VendorVoiceID: &vendorID,
	}
	if err := a.store.SetVoiceProfile(ctx, profile); err != nil {
		t.Fatal(err)
	}
	resp, _ := a.do(t, "POST", "/api/songs", "ada@example.com", map[string]interface{}{
		"prompt":           "x",
		"voice_profile_id": profile.ID,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("got %d, want 404", resp.StatusCode)
	}
}

func TestCreateSongQueueFull(t *testing.T) {
	a := newTestAPI(t)
	for i := 0; i < 4; i++ {
		if err := a.worker.Enqueue(fmt.Sprintf("filler-%d", i)); err != nil {
			t.Fatal(err)
		}
	}
	resp, _ := a.do(t, "POST", "/api/songs", "ada@example.com", map[string]interface{}{"prompt": "x"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503", resp.StatusCode)
	}
	// The rejected song row is rolled back.
	songs, err := a.store.ListSongs(context.Background(), 1, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(songs) != 0 {
		t.Errorf("got %d songs, want 0", len(songs))
	}
}

func TestCreateSongAILyrics(t *testing.T) {
	a := newTestAPI(t)
	resp, body := a.do(t, "POST", "/api/songs", "ada@example.com", map[string]interface{}{
		"prompt":      "driving at dusk",
		"lyrics_mode": "ai",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("got %d, want 202: %s", resp.StatusCode, body)
	}
	var song songResponse
	if err := json.Unmarshal(body, &song); err != nil {
		t.Fatal(err)
	}
	if song.Lyrics != "la la la" {
		t.Errorf("got lyrics %q", song.Lyrics)
	}
	if song.Title != "Sunset Drive" {
		t.Errorf("got title %q, want generated title", song.Title)
	}
}

func TestGetSongIsolation(t *testing.T) {
	a := newTestAPI(t)
	resp, body := a.do(t, "POST", "/api/songs", "ada@example.com", map[string]interface{}{"prompt": "x"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("got %d: %s", resp.StatusCode, body)
	}
	var song songResponse
	if err := json.Unmarshal(body, &song); err != nil {
		t.Fatal(err)
	}

	resp, _ = a.do(t, "GET", "/api/songs/"+song.ID, "ada@example.com", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("owner got %d, want 200", resp.StatusCode)
	}
	resp, _ = a.do(t, "GET", "/api/songs/"+song.ID, "eve@example.com", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("stranger got %d, want 404", resp.StatusCode)
	}
	resp, _ = a.do(t, "GET", "/api/songs/missing", "ada@example.com", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing got %d, want 404", resp.StatusCode)
	}
}

func TestGenerateLyrics(t *testing.T) {
	a := newTestAPI(t)
	resp, body := a.do(t, "POST", "/api/lyrics", "ada@example.com", map[string]interface{}{
		"topic": "driving at dusk",
		"genre": "synthwave",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got %d: %s", resp.StatusCode, body)
	}
	var result lyricsai.Result
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatal(err)
	}
	if result.Lyrics != "la la la" {
		t.Errorf("got lyrics %q", result.Lyrics)
	}
}

func TestCreditsFlow(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()
	if _, err := a.store.EnsureUser(ctx, "ada@example.com", "", 10); err != nil {
		t.Fatal(err)
	}

	resp, body := a.do(t, "POST", "/api/admin/credits", "", map[string]interface{}{
		"email":  "ada@example.com",
		"amount": 5,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got %d: %s", resp.StatusCode, body)
	}

	resp, body = a.do(t, "GET", "/api/credits", "ada@example.com", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got %d: %s", resp.StatusCode, body)
	}
	var credits creditsResponse
	if err := json.Unmarshal(body, &credits); err != nil {
		t.Fatal(err)
	}
	if credits.Balance != 15 {
		t.Errorf("got balance %d, want 15", credits.Balance)
	}
	if len(credits.Transactions) != 1 {
		t.Errorf("got %d transactions, want 1", len(credits.Transactions))
	}
}

func TestMaintenanceMode(t *testing.T) {
	a := newTestAPI(t)
	resp, body := a.do(t, "PUT", "/api/admin/settings/maintenance", "", map[string]interface{}{
		"value": "1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got %d: %s", resp.StatusCode, body)
	}

	resp, _ = a.do(t, "POST", "/api/songs", "ada@example.com", map[string]interface{}{"prompt": "x"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503", resp.StatusCode)
	}

	resp, _ = a.do(t, "DELETE", "/api/admin/settings/maintenance", "", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("got %d, want 204", resp.StatusCode)
	}
	resp, _ = a.do(t, "POST", "/api/songs", "ada@example.com", map[string]interface{}{"prompt": "x"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("got %d, want 202", resp.StatusCode)
	}
}

func TestDeleteVoice(t *testing.T) {
	a := newTestAPI(t)
	ctx := context.Background()
	user, err := a.store.EnsureUser(ctx, "ada@example.com", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	vendorID := "vendor-1"
	profile := &storage.VoiceProfile{
		ID:            ulid.Make().String(),
		UserID:        user.ID,
		Name:          "My Voice",
		Status:        storage.VoiceReady,
		VendorVoiceID: &vendorID,
	}
	if err := a.store.SetVoiceProfile(ctx, profile); err != nil {
		t.Fatal(err)
	}

	resp, _ := a.do(t, "DELETE", "/api/voices/"+profile.ID, "ada@example.com", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("got %d, want 204", resp.StatusCode)
	}
	if len(a.voices.deleted) != 1 || a.voices.deleted[0] != "vendor-1" {
		t.Errorf("vendor delete not called: %v", a.voices.deleted)
	}
	if _, err := a.store.GetVoiceProfile(ctx, profile.ID); err == nil {
		t.Error("profile still exists")
	}
}
