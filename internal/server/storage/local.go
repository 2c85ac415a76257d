package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/dmitrijs2005/audiokeeper/internal/filex"
)

// LocalStorage keeps blobs as files in a single directory. Locations are
// the bare file names.
type LocalStorage struct {
	dir string
}

// NewLocalStorage resolves dir against the working directory once; the
// storage root never changes afterwards.
func NewLocalStorage(dir string) *LocalStorage {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &LocalStorage{dir: dir}
}

func (s *LocalStorage) EnsureReady(_ context.Context) error {
	_, err := filex.EnsureDir(s.dir)
	return err
}

func (s *LocalStorage) Save(ctx context.Context, name string, r io.Reader) (string, int64, error) {
	if err := validName(name); err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		_ = tmp.Close()
		return "", 0, fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("close blob: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", 0, fmt.Errorf("rename blob: %w", err)
	}

	return name, n, nil
}

func (s *LocalStorage) Open(_ context.Context, location string) (io.ReadCloser, error) {
	if err := validName(location); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.dir, location))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *LocalStorage) Remove(_ context.Context, location string) error {
	if err := validName(location); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(s.dir, location))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// ctxReader stops a copy once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
