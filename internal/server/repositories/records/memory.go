package records

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/timex"
)

// MemoryRepository keeps records in a map guarded by a mutex. It backs the
// "memory" storage backend and the engine tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]*models.VaultRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]*models.VaultRecord)}
}

func (r *MemoryRepository) Get(ctx context.Context, owner, id string) (*models.VaultRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.rows[id]
	if !ok || rec.Owner != owner {
		return nil, common.ErrorNotFound
	}
	return rec.Clone(), nil
}

func (r *MemoryRepository) InsertIfAbsent(ctx context.Context, rec *models.VaultRecord) (*models.VaultRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[rec.ID]; ok {
		return nil, common.ErrAlreadyExists
	}
	stored := rec.Clone()
	stored.CreatedAt = timex.Normalize(stored.CreatedAt)
	stored.UpdatedAt = timex.Normalize(stored.UpdatedAt)
	r.rows[rec.ID] = stored
	return stored.Clone(), nil
}

func (r *MemoryRepository) CompareAndSwap(ctx context.Context, owner, id string, expected int64, upd models.RecordUpdate) (*models.VaultRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.rows[id]
	if !ok || rec.Owner != owner || rec.Version != expected || (upd.RequireLive && rec.IsDeleted) {
		return nil, common.ErrVersionConflict
	}

	next := rec.Clone()
	next.EncryptedData = append([]byte(nil), upd.EncryptedData...)
	next.Nonce = append([]byte(nil), upd.Nonce...)
	next.IsDeleted = upd.IsDeleted
	next.Version++
	next.UpdatedAt = timex.NextAfter(upd.Now, rec.UpdatedAt)
	r.rows[id] = next
	return next.Clone(), nil
}

func (r *MemoryRepository) RangeScan(ctx context.Context, owner string, q models.PullQuery) ([]*models.VaultRecord, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*models.VaultRecord
	for _, rec := range r.rows {
		if rec.Owner != owner || !rec.UpdatedAt.After(q.Since) {
			continue
		}
		if q.After != nil && !q.After.Precedes(rec.UpdatedAt, rec.ID) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.ID < b.ID
		}
		return a.UpdatedAt.Before(b.UpdatedAt)
	})

	total := int64(len(matched))
	page := make([]*models.VaultRecord, 0, q.Limit)
	for i := q.Offset; i < len(matched) && len(page) < q.Limit; i++ {
		page = append(page, matched[i].Clone())
	}
	return page, total, nil
}
