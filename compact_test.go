package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hestiadb/engine/internal/compaction"
	"github.com/hestiadb/engine/internal/row"
)

func TestMergeTaskKeepsNewestVersionPerKey(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	db, _, err := Open(ctx, opts, testTableOptions())
	require.NoError(t, err)

	require.NoError(t, db.Write(ctx, WriteBatch{TableID: 1, Rows: [][]row.Datum{idRow(1, "v1")}}))
	require.NoError(t, db.Flush(ctx, 1))
	require.NoError(t, db.Write(ctx, WriteBatch{TableID: 1, Rows: [][]row.Datum{idRow(1, "v2"), idRow(2, "other")}}))
	require.NoError(t, db.Flush(ctx, 1))

	ts := db.m.TableState(1)
	require.Len(t, ts.Files, 2)

	// Use a scheduler with a lower tiering threshold than Open's default so
	// the two flushed files are eligible without needing four flushes.
	scheduler := compaction.NewScheduler(db.m, &compaction.SizeTieredPicker{MinFilesToCompact: 2}, db.mergeTask)
	ok, err := scheduler.MaybeCompact(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)

	merged := db.m.TableState(1)
	require.Len(t, merged.Files, 1)

	results, err := db.Read(ctx, ScanRequest{TableID: 1})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		if r.Row.At(0).U64 == 1 {
			require.Equal(t, "v2", r.Row.At(1).Str)
		}
	}
}
