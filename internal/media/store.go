package media

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"pathpatrol/internal/model"
)

const (
	// UploadPrefix is the first segment of every handle.
	UploadPrefix = "uploads"

	DefaultMaxBytes = 10 << 20
	MaxWidth        = 1920
	MaxHeight       = 1080
	JPEGQuality     = 85
)

var AllowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

var (
	ErrInvalidExtension = fmt.Errorf("%w: unsupported image extension", model.ErrValidation)
	ErrTooLarge         = fmt.Errorf("%w: image exceeds size limit", model.ErrValidation)
	ErrInvalidImage     = fmt.Errorf("%w: image could not be decoded", model.ErrValidation)
	ErrInvalidHandle    = fmt.Errorf("%w: invalid media handle", model.ErrValidation)
)

// Backend persists encoded images under their handle.
type Backend interface {
	Put(ctx context.Context, handle string, data []byte, contentType string) error
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
	// Delete returns false when nothing was stored under handle.
	Delete(ctx context.Context, handle string) (bool, error)
}

// Store validates, optimizes and names uploaded images, then hands them to a Backend.
type Store struct {
	backend  Backend
	baseDir  string
	maxBytes int64
	now      func() time.Time
}

type Option func(*Store)

func WithMaxBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// NewStore builds a store whose handles resolve against baseDir, the parent
// of the uploads directory.
func NewStore(backend Backend, baseDir string, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		baseDir:  baseDir,
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save validates and optimizes raw, stores it, and returns its handle
// ("uploads/<filename>"). Nothing is written when validation fails.
func (s *Store) Save(ctx context.Context, raw []byte, originalName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !AllowedExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrInvalidExtension, ext)
	}
	if int64(len(raw)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(raw))
	}

	encoded, outExt, err := Optimize(bytes.NewReader(raw), ext)
	if err != nil {
		return "", err
	}

	handle := path.Join(UploadPrefix, s.filename(originalName, outExt))
	if err := s.backend.Put(ctx, handle, encoded, contentTypes[outExt]); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrStorageIO, err)
	}
	return handle, nil
}

// Delete removes the image behind handle. A missing image yields false, not an error.
func (s *Store) Delete(ctx context.Context, handle string) (bool, error) {
	if err := ValidateHandle(handle); err != nil {
		return false, err
	}
	ok, err := s.backend.Delete(ctx, handle)
	if err != nil {
		return false, fmt.Errorf("%w: %v", model.ErrStorageIO, err)
	}
	return ok, nil
}

func (s *Store) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	if err := ValidateHandle(handle); err != nil {
		return nil, err
	}
	return s.backend.Open(ctx, handle)
}

// Resolve joins handle onto the base directory. It does no I/O.
func (s *Store) Resolve(handle string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(handle))
}

// ContentType returns the MIME type served for handle.
func ContentType(handle string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(handle))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ValidateHandle accepts only clean paths directly below the uploads prefix.
func ValidateHandle(handle string) error {
	if handle == "" || path.Clean(handle) != handle || strings.Contains(handle, "\\") {
		return ErrInvalidHandle
	}
	dir, file := path.Split(handle)
	if dir != UploadPrefix+"/" || file == "" || file == "." || file == ".." {
		return ErrInvalidHandle
	}
	return nil
}

// filename is pothole_<YYYYmmdd_HHMMSS>_<hash8><ext>, where hash8 is taken
// from the md5 of the original name and a nanosecond timestamp.
func (s *Store) filename(originalName, ext string) string {
	ts := s.now()
	sum := md5.Sum([]byte(originalName + ts.Format(time.RFC3339Nano)))
	return fmt.Sprintf("pothole_%s_%s%s", ts.Format("20060102_150405"), hex.EncodeToString(sum[:])[:8], ext)
}
