// Package records holds the vault record stores. Every backend offers the same
// four atomic operations and owns no sync logic of its own.
package records

import (
	"context"

	"github.com/dmitrijs2005/vaultsync/internal/server/models"
)

// Repository is the record store capability used by the sync engine.
//
// Get returns common.ErrorNotFound when the id is absent or owned by someone
// else. InsertIfAbsent returns common.ErrAlreadyExists when the id is taken by
// any owner. CompareAndSwap returns common.ErrVersionConflict when no row
// matched (owner, id, expected) or, with RequireLive, the row is a tombstone.
// RangeScan returns one page of records in (updated_at, id) order together
// with the total number of matching rows, both read from one snapshot.
type Repository interface {
	Get(ctx context.Context, owner, id string) (*models.VaultRecord, error)
	InsertIfAbsent(ctx context.Context, rec *models.VaultRecord) (*models.VaultRecord, error)
	CompareAndSwap(ctx context.Context, owner, id string, expected int64, upd models.RecordUpdate) (*models.VaultRecord, error)
	RangeScan(ctx context.Context, owner string, q models.PullQuery) ([]*models.VaultRecord, int64, error)
}
