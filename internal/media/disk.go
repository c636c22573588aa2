package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"pathpatrol/internal/model"
)

// DiskBackend stores images below a base directory, e.g. data/uploads/<file>.
type DiskBackend struct {
	baseDir string
}

func NewDiskBackend(baseDir string) (*DiskBackend, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, UploadPrefix), 0o755); err != nil {
		return nil, err
	}
	return &DiskBackend{baseDir: baseDir}, nil
}

func (d *DiskBackend) path(handle string) string {
	return filepath.Join(d.baseDir, filepath.FromSlash(handle))
}

func (d *DiskBackend) Put(_ context.Context, handle string, data []byte, _ string) error {
	p := d.path(handle)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

func (d *DiskBackend) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	f, err := os.Open(d.path(handle))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("image %s: %w", handle, model.ErrNotFound)
	}
	return f, err
}

func (d *DiskBackend) Delete(_ context.Context, handle string) (bool, error) {
	err := os.Remove(d.path(handle))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
