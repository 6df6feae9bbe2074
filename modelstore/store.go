package modelstore

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
)

// Store saves and loads artifacts at URLs understood by afs. Plain paths and
// file:// URLs address the local disk.
type Store struct {
	fs afs.Service
}

// NewStore returns a store backed by the default afs service.
func NewStore() *Store {
	return &Store{fs: afs.New()}
}

// Save encodes a and writes it to url. Local writes go to a uniquely named
// temporary file in the target directory which is then renamed into place.
func (s *Store) Save(ctx context.Context, url string, a *Artifact) error {
	var buf bytes.Buffer
	if err := Encode(&buf, a); err != nil {
		return err
	}

	path, local := LocalPath(url)
	if !local {
		if err := s.fs.Upload(ctx, url, 0o644, &buf); err != nil {
			return fmt.Errorf("upload %s: %w", url, err)
		}
		return nil
	}

	// write next to the target and rename so readers never see a partial file
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".wine-*.tmp")
	if err != nil {
		return err
	}
	if _, err := buf.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Load reads and decodes the artifact at url.
func (s *Store) Load(ctx context.Context, url string) (*Artifact, error) {
	data, err := s.fs.DownloadWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	a, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return a, nil
}

// Exists reports whether an artifact is stored at url.
func (s *Store) Exists(ctx context.Context, url string) (bool, error) {
	return s.fs.Exists(ctx, url)
}

// Delete removes the artifact at url.
func (s *Store) Delete(ctx context.Context, url string) error {
	return s.fs.Delete(ctx, url)
}

// LocalPath reports whether url addresses the local filesystem and returns
// the path.
func LocalPath(url string) (string, bool) {
	if strings.HasPrefix(url, "file://") {
		return filepath.Clean(strings.TrimPrefix(url, "file://")), true
	}
	if strings.Contains(url, "://") {
		return "", false
	}
	return filepath.Clean(url), true
}
