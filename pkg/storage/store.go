// Package storage keeps uploaded product images.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

var ErrInvalidImageType = errors.New("invalid image type")

var fileTypes = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
}

// Upload is one file to store.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store saves an upload and returns where it can be fetched. The location is
// either an absolute URL or a path rooted at the HTTP server.
type Store interface {
	Put(ctx context.Context, u Upload) (string, error)
}

// Extension returns the stored extension for an accepted image content type.
func Extension(contentType string) (string, error) {
	ext, ok := fileTypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidImageType, contentType)
	}
	return ext, nil
}

// ObjectName builds the stored name: the base of the uploaded name with spaces
// replaced by dashes, the upload time in milliseconds and the canonical extension.
func ObjectName(filename, contentType string, at time.Time) (string, error) {
	ext, err := Extension(contentType)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d.%s", baseName(filename), at.UnixMilli(), ext), nil
}

// baseName keeps only the last path element of a client-supplied name and
// turns whitespace runs into dashes.
func baseName(filename string) string {
	name := strings.ReplaceAll(filename, "\\", "/")
	name = path.Base(name)
	name = strings.Join(strings.Fields(name), "-")
	if name == "." || name == ".." || name == "/" || name == "" {
		return "upload"
	}
	return name
}
