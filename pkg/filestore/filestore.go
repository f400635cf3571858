package filestore

import (
	"context"
	"fmt"
	"strings"

	"github.com/songforge/songforge/pkg/filestore/inline"
	"github.com/songforge/songforge/pkg/filestore/local"
	"github.com/songforge/songforge/pkg/filestore/s3"
)

type fs interface {
	Upload(ctx context.Context, name string, data []byte) error
	Download(ctx context.Context, name string) ([]byte, error)
	URL(ctx context.Context, name string) (string, error)
}

// Store persists generated artifacts and resolves a URL clients can
// play them from.
type Store struct {
	fs fs
}

// SetMP3 uploads the final song artifact and returns its playable URL.
func (s *Store) SetMP3(ctx context.Context, id string, data []byte) (string, error) {
	name := MP3(id)
	if err := s.fs.Upload(ctx, name, data); err != nil {
		return "", err
	}
	return s.fs.URL(ctx, name)
}

func (s *Store) GetMP3(ctx context.Context, id string) ([]byte, error) {
	return s.fs.Download(ctx, MP3(id))
}

func New(typ, conn string, debug bool) (*Store, error) {
	var fs fs
	switch typ {
	case "s3":
		split := strings.Split(conn, "@")
		if len(split) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 connection string %q", conn)
		}
		auth := strings.Split(split[0], ":")
		if len(auth) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 auth string %q", conn)
		}
		key := auth[0]
		secret := auth[1]
		loc := strings.SplitN(split[1], ".", 2)
		if len(loc) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 location string %q", conn)
		}
		bucket := loc[0]
		region := loc[1]
		candidate, err := s3.New(key, secret, region, bucket, debug)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	case "local":
		fs = local.New(conn, debug)
	case "inline":
		// Base64 data URLs stored directly in the songs row. Kept for
		// small deployments without object storage.
		fs = inline.New()
	default:
		return nil, fmt.Errorf("filestore: unknown file storage type %q", typ)
	}
	return &Store{fs: fs}, nil
}

func MP3(id string) string {
	return id + ".mp3"
}
