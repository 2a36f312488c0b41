package main

import (
	"context"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/manifest"
	"github.com/hestiadb/engine/internal/wal"
	"github.com/hestiadb/engine/objstore"
	"github.com/hestiadb/engine/objstore/localfs"
)

// openManifestReadOnly opens storeDir as a local object store, wm as an
// in-memory WAL manager, and recovers shard 0's manifest from it. The
// manifest's edit log lives in the shard's WAL, which storectl does not
// open: the WAL manager here is seeded empty, so recovery sees only the
// latest snapshot in storeDir, and edits applied after that snapshot are
// not visible.
func openManifestReadOnly(ctx context.Context, flags *rootFlags) (*manifest.Manifest, objstore.Store, error) {
	storeDir, dir := flags.storeDir, flags.manifestDir
	store, err := localfs.New(storeDir)
	if err != nil {
		return nil, nil, err
	}
	wm := wal.NewKVManager(wal.NewMemKV())
	m, err := manifest.Open(ctx, wm, store, base.ShardID(0), dir)
	if err != nil {
		return nil, nil, err
	}
	return m, store, nil
}
