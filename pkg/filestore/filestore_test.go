package filestore

import (
	"context"
	"strings"
	"testing"
)

func TestLocalRoundtrip(t *testing.T) {
	ctx := context.Background()
	store, err := New("local", t.TempDir(), false)
	if err != nil {
		t.Fatal(err)
	}
	url, err := store.SetMP3(ctx, "song-1", []byte("audio"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "file://") || !strings.HasSuffix(url, "song-1.mp3") {
		t.Errorf("got url %q", url)
	}
	data, err := store.GetMP3(ctx, "song-1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "audio" {
		t.Errorf("got %q", data)
	}
}

func TestInlineDataURL(t *testing.T) {
	ctx := context.Background()
	store, err := New("inline", "", false)
	if err != nil {
		t.Fatal(err)
	}
	url, err := store.SetMP3(ctx, "song-1", []byte("audio"))
	if err != nil {
		t.Fatal(err)
	}
	// "audio" base64 encoded
	if url != "data:audio/mpeg;base64,YXVkaW8=" {
		t.Errorf("got url %q", url)
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New("ftp", "", false); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := New("s3", "garbage", false); err == nil {
		t.Error("expected error for bad s3 connection string")
	}
}
