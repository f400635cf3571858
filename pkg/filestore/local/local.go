package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type store struct {
	root  string
	debug bool
}

func New(root string, debug bool) *store {
	return &store{root: root, debug: debug}
}

func (s *store) Upload(ctx context.Context, name string, data []byte) error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("local: couldn't create root %q: %w", s.root, err)
	}
	dst := filepath.Join(s.root, name)
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("local: couldn't write file %q: %w", dst, err)
	}
	return nil
}

func (s *store) Download(ctx context.Context, name string) ([]byte, error) {
	src := filepath.Join(s.root, name)
	b, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("local: couldn't read file %q: %w", src, err)
	}
	return b, nil
}

func (s *store) URL(ctx context.Context, name string) (string, error) {
	abs, err := filepath.Abs(filepath.Join(s.root, name))
	if err != nil {
		return "", fmt.Errorf("local: couldn't resolve path for %q: %w", name, err)
	}
	return fmt.Sprintf("file://%s", abs), nil
}
