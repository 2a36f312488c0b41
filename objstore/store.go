// Package objstore defines the external object-store capability spec §6
// depends on (SST and manifest persistence), with local filesystem and S3
// implementations.
package objstore

import "context"

// Store is the object-store capability the engine persists SSTs and
// manifest snapshots through (the manifest's edit log lives in the WAL).
type Store interface {
	Put(ctx context.Context, path string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	// GetRange fetches [start, start+length) of the object at path.
	GetRange(ctx context.Context, path string, start, length int64) ([]byte, error)
	Head(ctx context.Context, path string) (Info, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) ([]Info, error)
	Copy(ctx context.Context, src, dst string) error
	// CopyIfNotExists copies src to dst only if dst does not already exist.
	// The manifest publishes snapshots with Put and does not call it.
	CopyIfNotExists(ctx context.Context, src, dst string) error
}

// Info describes one stored object.
type Info struct {
	Path string
	Size int64
}
