// Package media manages the durable store for published audio and image
// assets and maps stored files to their public URLs.
package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Asset is a stored media file: its location on disk and the URL the
// published document references it by.
type Asset struct {
	Name string
	Path string
	URL  string
}

// Store writes assets into a single flat directory served under a
// configurable base URL.
type Store struct {
	dir     string
	baseURL string
}

// NewStore ensures the media directory exists and returns a store
// rooted there.
func NewStore(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory %s: %w", dir, err)
	}

	return &Store{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir returns the store's directory on disk.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the on-disk path an asset with the given name would have.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// URL returns the public URL for an asset name.
func (s *Store) URL(name string) string {
	return s.baseURL + "/" + name
}

// Put writes data into the store under name.
func (s *Store) Put(name string, data []byte) (Asset, error) {
	path := s.Path(name)
	//nolint:gosec // Media files are served publicly
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Asset{}, fmt.Errorf("failed to write media file %s: %w", name, err)
	}

	return Asset{Name: name, Path: path, URL: s.URL(name)}, nil
}

// PutFile copies the file at src into the store under name.
func (s *Store) PutFile(name, src string) (Asset, error) {
	in, err := os.Open(src)
	if err != nil {
		return Asset{}, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	path := s.Path(name)
	out, err := os.Create(path)
	if err != nil {
		return Asset{}, fmt.Errorf("failed to create media file %s: %w", name, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return Asset{}, fmt.Errorf("failed to copy %s into media store: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return Asset{}, fmt.Errorf("failed to finalize media file %s: %w", name, err)
	}

	return Asset{Name: name, Path: path, URL: s.URL(name)}, nil
}
