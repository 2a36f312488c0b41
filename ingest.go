// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package engine

import (
	"context"
	"fmt"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/manifest"
	"github.com/hestiadb/engine/internal/sstable"
)

// IngestFiles bulk-loads pre-built SSTs at paths directly into tableID's
// manifest state, without replaying them through the WAL or memtable —
// the bulk-load path the original Ingest supported for externally produced
// files, adapted here to this engine's manifest-driven version model in
// place of pebble's version-edit + sequence-number-bump sequencing.
//
// Every file is opened once to read its footer so its key range and row
// count land in the manifest without a second pass at read time.
func (db *DB) IngestFiles(ctx context.Context, tableID base.TableID, paths []string) error {
	db.mu.RLock()
	_, ok := db.tables[tableID]
	db.mu.RUnlock()
	if !ok {
		return base.WithKind(fmt.Errorf("engine: unknown table %d", tableID), base.KindInputViolation)
	}

	added := make([]manifest.FileMeta, 0, len(paths))
	var maxSeq base.SequenceNumber
	for _, path := range paths {
		reader := sstable.NewReader(db.opts.Store, db.metaC, cacheAdapter(db.cache), path)
		meta, err := ingestLoadMeta(ctx, reader)
		if err != nil {
			return err
		}
		added = append(added, manifest.FileMeta{
			FileID:  newFileID(),
			Path:    path,
			MinPK:   meta.MinPK,
			MaxPK:   meta.MaxPK,
			MinSeq:  meta.MinSeq,
			MaxSeq:  meta.MaxSeq,
			NumRows: meta.NumRows,
		})
		if meta.MaxSeq > maxSeq {
			maxSeq = meta.MaxSeq
		}
	}

	if err := db.m.Apply(ctx, manifest.Edit{Kind: manifest.EditAddFiles, TableID: tableID, AddedFiles: added}); err != nil {
		return err
	}

	// Ingested files may predate the table's current flushed sequence; only
	// advance it, never roll it back. The manifest itself rejects an
	// EditSetFlushedSequence that moves backward with an error, so the edit
	// is applied only when maxSeq is ahead.
	if ts := db.m.TableState(tableID); ts == nil || maxSeq > ts.FlushedSequence {
		if err := db.m.Apply(ctx, manifest.Edit{Kind: manifest.EditSetFlushedSequence, TableID: tableID, FlushedSequence: maxSeq}); err != nil {
			return err
		}
	}
	return nil
}

// ingestLoadMeta forces the reader to resolve its footer and returns the
// parsed MetaData, mirroring ingestLoad's per-file validation pass before
// a file is admitted into the table's version.
func ingestLoadMeta(ctx context.Context, r *sstable.Reader) (*sstable.MetaData, error) {
	// Scan with an empty, unsatisfiable range forces init() to run (which
	// resolves and caches the footer) without materializing any rows.
	rows, err := r.Scan(ctx, []byte{0xFF}, []byte{0x00}, nil)
	if err != nil {
		return nil, err
	}
	_ = rows
	return r.Meta(), nil
}
