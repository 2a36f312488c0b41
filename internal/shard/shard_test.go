package shard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/manifest"
)

func TestOpenRunsAllMetaBeforeAnyData(t *testing.T) {
	var mu sync.Mutex
	var order []string

	meta := func(ctx context.Context, id base.TableID) (*manifest.TableState, error) {
		mu.Lock()
		order = append(order, "meta")
		mu.Unlock()
		return &manifest.TableState{TableID: id}, nil
	}
	data := func(ctx context.Context, id base.TableID, ts *manifest.TableState) error {
		mu.Lock()
		order = append(order, "data")
		mu.Unlock()
		return nil
	}

	o := NewOpener(meta, data)
	results := o.Open(context.Background(), []base.TableID{1, 2, 3})

	// Every table's meta recovery completes before any table's data
	// recovery begins (the phase barrier).
	require.Len(t, order, 6)
	require.Equal(t, []string{"meta", "meta", "meta"}, order[:3])
	require.Equal(t, []string{"data", "data", "data"}, order[3:])
	for _, r := range results {
		require.Equal(t, StageSuccess, r.Stage)
		require.NoError(t, r.Err)
	}
}

func TestOpenIsolatesPerTableFailure(t *testing.T) {
	meta := func(ctx context.Context, id base.TableID) (*manifest.TableState, error) {
		if id == 2 {
			return nil, errors.New("boom")
		}
		return &manifest.TableState{TableID: id}, nil
	}
	var dataMu sync.Mutex
	var dataRan []base.TableID
	data := func(ctx context.Context, id base.TableID, ts *manifest.TableState) error {
		dataMu.Lock()
		dataRan = append(dataRan, id)
		dataMu.Unlock()
		return nil
	}

	o := NewOpener(meta, data)
	results := o.Open(context.Background(), []base.TableID{1, 2, 3})

	byID := make(map[base.TableID]TableOpenResult)
	for _, r := range results {
		byID[r.TableID] = r
	}
	require.Equal(t, StageSuccess, byID[1].Stage)
	require.Equal(t, StageFailed, byID[2].Stage)
	require.Error(t, byID[2].Err)
	require.Equal(t, StageSuccess, byID[3].Stage)
	require.ElementsMatch(t, []base.TableID{1, 3}, dataRan)
}

func TestOpenIsolatesDataPhaseFailure(t *testing.T) {
	meta := func(ctx context.Context, id base.TableID) (*manifest.TableState, error) {
		return &manifest.TableState{TableID: id}, nil
	}
	data := func(ctx context.Context, id base.TableID, ts *manifest.TableState) error {
		if id == 1 {
			return errors.New("replay failed")
		}
		return nil
	}

	o := NewOpener(meta, data)
	results := o.Open(context.Background(), []base.TableID{1, 2})

	byID := make(map[base.TableID]TableOpenResult)
	for _, r := range results {
		byID[r.TableID] = r
	}
	require.Equal(t, StageFailed, byID[1].Stage)
	require.Equal(t, StageSuccess, byID[2].Stage)
}

func TestRoleStateChangeRoleNotImplemented(t *testing.T) {
	rs := &RoleState{}
	require.Equal(t, RoleInvalid, rs.Role())

	err := rs.ChangeRole(RoleLeader)
	require.ErrorIs(t, err, base.ErrNotImplemented)
	require.Equal(t, RoleInvalid, rs.Role())
}
