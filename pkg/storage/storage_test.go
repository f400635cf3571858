package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/oklog/ulid/v2"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := New("sqlite", filepath.Join(t.TempDir(), "test.db"), false)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestEnsureUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.EnsureUser(ctx, "ada@example.com", "Ada", 10)
	if err != nil {
		t.Fatal(err)
	}
	if user.CreditsBalance != 10 {
		t.Errorf("got balance %d, want 10", user.CreditsBalance)
	}

	// Second call resolves the same row without re-granting credits.
	again, err := store.EnsureUser(ctx, "ada@example.com", "Ada", 10)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != user.ID {
		t.Errorf("got id %s, want %s", again.ID, user.ID)
	}
	if again.CreditsBalance != 10 {
		t.Errorf("got balance %d, want 10", again.CreditsBalance)
	}
}

func TestDeductCredits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user, err := store.EnsureUser(ctx, "ada@example.com", "", 3)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.DeductCredits(ctx, user.ID, 1, "Song generation: Sunset Drive"); err != nil {
		t.Fatal(err)
	}
	user, err = store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if user.CreditsBalance != 2 {
		t.Errorf("got balance %d, want 2", user.CreditsBalance)
	}

	txs, err := store.ListCreditTransactions(ctx, user.ID, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 1 {
		t.Fatalf("got %d transactions, want 1", len(txs))
	}
	tx := txs[0]
	if tx.Amount != -1 {
		t.Errorf("got amount %d, want -1", tx.Amount)
	}
	if tx.BalanceAfter != 2 {
		t.Errorf("got balance after %d, want 2", tx.BalanceAfter)
	}
	if tx.Type != CreditUsage {
		t.Errorf("got type %s, want usage", tx.Type)
	}
	if tx.Description != "Song generation: Sunset Drive" {
		t.Errorf("got description %q", tx.Description)
	}
}

func TestDeductCreditsInsufficient(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user, err := store.EnsureUser(ctx, "broke@example.com", "", 0)
	if err != nil {
		t.Fatal(err)
	}

	err = store.DeductCredits(ctx, user.ID, 1, "Song generation: Nope")
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("got %v, want ErrInsufficientCredits", err)
	}

	// Nothing is written on a rejected debit.
	txs, err := store.ListCreditTransactions(ctx, user.ID, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(txs) != 0 {
		t.Errorf("got %d transactions, want 0", len(txs))
	}
}

func TestGrantCredits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	user, err := store.EnsureUser(ctx, "ada@example.com", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.GrantCredits(ctx, user.ID, 5, "Promo"); err != nil {
		t.Fatal(err)
	}
	user, err = store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if user.CreditsBalance != 5 {
		t.Errorf("got balance %d, want 5", user.CreditsBalance)
	}
}

func TestSongStatusTerminal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	song := &Song{
		ID:     ulid.Make().String(),
		UserID: "u1",
		Title:  "Done",
		Status: SongCompleted,
	}
	if err := store.SetSong(ctx, song); err != nil {
		t.Fatal(err)
	}
	if err := store.SetSongStatus(ctx, song.ID, SongPending); err == nil {
		t.Fatal("expected transition out of terminal state to fail")
	}
	got, err := store.GetSong(ctx, song.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != SongCompleted {
		t.Errorf("got status %s, want completed", got.Status)
	}
}

func TestGetSongNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.GetSong(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestActivatePromptSingleActive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &SystemPrompt{ID: ulid.Make().String(), Type: "song", Content: "v1"}
	second := &SystemPrompt{ID: ulid.Make().String(), Type: "song", Content: "v2"}
	if err := store.SetSystemPrompt(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := store.SetSystemPrompt(ctx, second); err != nil {
		t.Fatal(err)
	}
	if err := store.ActivatePrompt(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.ActivatePrompt(ctx, second.ID); err != nil {
		t.Fatal(err)
	}

	active, err := store.ActivePrompt(ctx, "song")
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != second.ID {
		t.Errorf("got active %s, want %s", active.ID, second.ID)
	}
	prompts, err := store.ListSystemPrompts(ctx, "song")
	if err != nil {
		t.Fatal(err)
	}
	var count int
	for _, p := range prompts {
		if p.Active {
			count++
		}
	}
	if count != 1 {
		t.Errorf("got %d active prompts, want 1", count)
	}
}

func TestSetDefaultVoiceProfile(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := &VoiceProfile{ID: ulid.Make().String(), UserID: "u1", Name: "A", Status: VoiceReady, IsDefault: true}
	b := &VoiceProfile{ID: ulid.Make().String(), UserID: "u1", Name: "B", Status: VoiceReady}
	if err := store.SetVoiceProfile(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := store.SetVoiceProfile(ctx, b); err != nil {
		t.Fatal(err)
	}

	if err := store.SetDefaultVoiceProfile(ctx, "u1", b.ID); err != nil {
		t.Fatal(err)
	}
	voices, err := store.ListVoiceProfiles(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range voices {
		want := v.ID == b.ID
		if v.IsDefault != want {
			t.Errorf("profile %s default %v, want %v", v.Name, v.IsDefault, want)
		}
	}

	if err := store.SetDefaultVoiceProfile(ctx, "u1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestListSongsFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, status := range []SongStatus{SongPending, SongCompleted, SongPending} {
		song := &Song{
			ID:     ulid.Make().String(),
			UserID: "u1",
			Title:  string(rune('A' + i)),
			Status: status,
		}
		if err := store.SetSong(ctx, song); err != nil {
			t.Fatal(err)
		}
	}

	songs, err := store.ListSongs(ctx, 1, 10, "created_at asc", Where("status = ?", SongPending))
	if err != nil {
		t.Fatal(err)
	}
	if len(songs) != 2 {
		t.Errorf("got %d songs, want 2", len(songs))
	}
}
