// Package storage keeps uploaded blobs (avatars) on the local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrInvalidKey = errors.New("invalid blob key")

// LocalStore writes blobs under Root and serves them from BaseURL.
type LocalStore struct {
	Root    string
	BaseURL string
}

func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", root, err)
	}
	return &LocalStore{Root: root, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

// path resolves key inside Root and rejects anything that escapes it.
func (s *LocalStore) path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(key, "..") {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.Root, filepath.FromSlash(clean)), nil
}

// Save writes r to key. The write goes to a temp file first, so a failed
// upload never leaves a partial blob behind.
func (s *LocalStore) Save(ctx context.Context, key string, r io.Reader) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob %s: %w", key, err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("commit blob %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Missing blobs are not an error.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) URL(key string) string {
	return s.BaseURL + "/" + strings.TrimLeft(key, "/")
}

// FileSystem serves stored blobs. Directories are reported as missing so the
// file server never renders a listing of other users' uploads.
func (s *LocalStore) FileSystem() http.FileSystem {
	return blobFS{root: http.Dir(s.Root)}
}

type blobFS struct {
	root http.FileSystem
}

func (fs blobFS) Open(name string) (http.File, error) {
	f, err := fs.root.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
