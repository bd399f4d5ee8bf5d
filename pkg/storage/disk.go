package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"
)

// UploadsRoute is where the HTTP server exposes files written by DiskStore.
const UploadsRoute = "/public/uploads"

type DiskStore struct {
	dir string
	now func() time.Time
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &DiskStore{dir: dir, now: time.Now}, nil
}

func (s *DiskStore) Dir() string {
	return s.dir
}

func (s *DiskStore) Put(ctx context.Context, u Upload) (string, error) {
	name, err := ObjectName(u.Filename, u.ContentType, s.now())
	if err != nil {
		return "", err
	}

	target := filepath.Join(s.dir, name)
	if rel, err := filepath.Rel(s.dir, target); err != nil || rel != name {
		return "", fmt.Errorf("upload name %q escapes the upload dir", u.Filename)
	}

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, u.Body); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path.Join(UploadsRoute, name), nil
}
