// Package blob stores uploaded files on local disk. Each file is saved under
// a random name so uploads can never collide or overwrite each other, and is
// served back over HTTP from the uploads directory.
package blob

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// MaxUploadSize caps a single upload at 25 MiB.
const MaxUploadSize = 25 << 20

// ErrTooLarge is returned by Save when the payload exceeds MaxUploadSize.
var ErrTooLarge = errors.New("blob: file exceeds maximum upload size")

// Stored describes a file after it has been written to disk.
type Stored struct {
	// URL is the public path the file is served from, e.g. "/uploads/x.png".
	URL string
	// Name is the original client-supplied filename, sanitized.
	Name string
	// MimeType is derived from the file extension, falling back to
	// application/octet-stream.
	MimeType string
}

// Store writes uploads to a directory on disk.
type Store struct {
	dir       string
	publicURL string
}

// NewStore creates the uploads directory if needed. publicURL is the URL
// prefix files are served under, typically "/uploads".
func NewStore(dir, publicURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create uploads dir: %w", err)
	}
	return &Store{dir: dir, publicURL: strings.TrimSuffix(publicURL, "/")}, nil
}

// Dir returns the directory files are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes the reader's contents to disk under a random name that keeps
// the original extension, and returns where it landed.
func (s *Store) Save(r io.Reader, originalName string) (*Stored, error) {
	name := sanitizeName(originalName)
	ext := strings.ToLower(filepath.Ext(name))
	stored := uuid.New().String() + ext

	f, err := os.Create(filepath.Join(s.dir, stored))
	if err != nil {
		return nil, fmt.Errorf("blob: create file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, MaxUploadSize+1))
	if err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("blob: write file: %w", err)
	}
	if n > MaxUploadSize {
		os.Remove(f.Name())
		return nil, ErrTooLarge
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return &Stored{
		URL:      s.publicURL + "/" + stored,
		Name:     name,
		MimeType: mimeType,
	}, nil
}

// sanitizeName strips any path components from a client-supplied filename.
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "file"
	}
	return name
}
