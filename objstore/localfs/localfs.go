// Package localfs implements objstore.Store over the local filesystem, used
// in tests and single-node deployments in place of objstore/s3.
package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/objstore"
)

// Store roots all object paths under Dir.
type Store struct {
	Dir string
}

// New creates a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, base.WithKind(err, base.KindTransientIO)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) abs(path string) string { return filepath.Join(s.Dir, filepath.FromSlash(path)) }

func (s *Store) Put(ctx context.Context, path string, data []byte) error {
	full := s.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return base.WithKind(err, base.KindTransientIO)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return base.WithKind(err, base.KindTransientIO)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(s.abs(path))
	if err != nil {
		return nil, base.WithKind(err, base.KindTransientIO)
	}
	return data, nil
}

func (s *Store) GetRange(ctx context.Context, path string, start, length int64) ([]byte, error) {
	f, err := os.Open(s.abs(path))
	if err != nil {
		return nil, base.WithKind(err, base.KindTransientIO)
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return nil, base.WithKind(err, base.KindTransientIO)
	}
	return buf[:n], nil
}

func (s *Store) Head(ctx context.Context, path string) (objstore.Info, error) {
	fi, err := os.Stat(s.abs(path))
	if err != nil {
		return objstore.Info{}, base.WithKind(err, base.KindTransientIO)
	}
	return objstore.Info{Path: path, Size: fi.Size()}, nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if err := os.Remove(s.abs(path)); err != nil && !os.IsNotExist(err) {
		return base.WithKind(err, base.KindTransientIO)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]objstore.Info, error) {
	root := s.abs(prefix)
	var out []objstore.Info
	err := filepath.Walk(filepath.Dir(root), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.Dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if len(rel) >= len(prefix) && rel[:len(prefix)] == prefix {
			out = append(out, objstore.Info{Path: rel, Size: info.Size()})
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, base.WithKind(err, base.KindTransientIO)
	}
	return out, nil
}

func (s *Store) Copy(ctx context.Context, src, dst string) error {
	data, err := s.Get(ctx, src)
	if err != nil {
		return err
	}
	return s.Put(ctx, dst, data)
}

func (s *Store) CopyIfNotExists(ctx context.Context, src, dst string) error {
	if _, err := os.Stat(s.abs(dst)); err == nil {
		return base.WithKind(errors.New("localfs: destination already exists"), base.KindConcurrencyViolation)
	}
	return s.Copy(ctx, src, dst)
}
