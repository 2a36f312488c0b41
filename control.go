package engine

import (
	"context"

	"github.com/hestiadb/engine/internal/base"
	"github.com/hestiadb/engine/internal/shard"
)

// ChangeRoleRequest asks a table to transition to a new replication role.
type ChangeRoleRequest struct {
	TableID base.TableID
	To      shard.Role
}

// ChangeRoleResponse reports the outcome of a ChangeRoleRequest.
type ChangeRoleResponse struct {
	TableID base.TableID
	Role    shard.Role
}

// ChangeRole always returns base.ErrNotImplemented: spec §9 leaves
// role_table's role-transition semantics undocumented, so this control
// operation refuses rather than guessing one.
func (db *DB) ChangeRole(ctx context.Context, req ChangeRoleRequest) (ChangeRoleResponse, error) {
	db.mu.RLock()
	_, ok := db.tables[req.TableID]
	db.mu.RUnlock()
	if !ok {
		return ChangeRoleResponse{}, base.WithKind(base.ErrRegionNotFound, base.KindInputViolation)
	}

	rs := &shard.RoleState{}
	if err := rs.ChangeRole(req.To); err != nil {
		return ChangeRoleResponse{}, err
	}
	return ChangeRoleResponse{TableID: req.TableID, Role: rs.Role()}, nil
}

// OpenStage reports a table's current shard-open stage: StageSuccess if the
// table is open, StageInit otherwise.
func (db *DB) OpenStage(tableID base.TableID) shard.TableOpenStage {
	db.mu.RLock()
	_, ok := db.tables[tableID]
	db.mu.RUnlock()
	if !ok {
		return shard.StageInit
	}
	return shard.StageSuccess
}
