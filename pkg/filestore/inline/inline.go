package inline

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
)

// store encodes artifacts as base64 data URLs. The URL itself carries
// the audio, so nothing outlives the row it is written to; uploads are
// only held until the matching URL call.
type store struct {
	lck     sync.Mutex
	pending map[string][]byte
}

func New() *store {
	return &store{pending: map[string][]byte{}}
}

func (s *store) Upload(ctx context.Context, name string, data []byte) error {
	s.lck.Lock()
	defer s.lck.Unlock()
	s.pending[name] = data
	return nil
}

func (s *store) Download(ctx context.Context, name string) ([]byte, error) {
	s.lck.Lock()
	defer s.lck.Unlock()
	data, ok := s.pending[name]
	if !ok {
		return nil, fmt.Errorf("inline: no data for %q", name)
	}
	return data, nil
}

func (s *store) URL(ctx context.Context, name string) (string, error) {
	s.lck.Lock()
	defer s.lck.Unlock()
	data, ok := s.pending[name]
	if !ok {
		return "", fmt.Errorf("inline: no data for %q", name)
	}
	delete(s.pending, name)
	return fmt.Sprintf("data:audio/mpeg;base64,%s", base64.StdEncoding.EncodeToString(data)), nil
}
