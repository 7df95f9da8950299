package records

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newRecord(owner, id string, at time.Time) *models.VaultRecord {
	return &models.VaultRecord{
		ID:            id,
		Owner:         owner,
		Kind:          models.KindCredential,
		EncryptedData: []byte("data-" + id),
		Nonce:         []byte("nonce-" + id),
		Version:       1,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

func mustInsert(t *testing.T, repo Repository, rec *models.VaultRecord) *models.VaultRecord {
	t.Helper()
	stored, err := repo.InsertIfAbsent(context.Background(), rec)
	require.NoError(t, err)
	return stored
}

func query(since time.Time, limit, offset int) models.PullQuery {
	q := models.PullQuery{Since: since, Limit: limit, Offset: offset}
	if err := q.Normalize(); err != nil {
		panic(err)
	}
	return q
}

func ids(recs []*models.VaultRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}

// runRepositoryContract checks the behaviour every backend must share.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()

	t.Run("get missing and foreign", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(ctx, "alice", "nope")
		assert.ErrorIs(t, err, common.ErrorNotFound)

		mustInsert(t, repo, newRecord("alice", "r1", base))
		_, err = repo.Get(ctx, "bob", "r1")
		assert.ErrorIs(t, err, common.ErrorNotFound)

		got, err := repo.Get(ctx, "alice", "r1")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Owner)
		assert.Equal(t, int64(1), got.Version)
		assert.Equal(t, models.KindCredential, got.Kind)
		assert.Equal(t, []byte("data-r1"), got.EncryptedData)
		assert.True(t, got.UpdatedAt.Equal(base))
		assert.True(t, got.CreatedAt.Equal(base))
	})

	t.Run("insert collision across owners", func(t *testing.T) {
		repo := newRepo(t)
		mustInsert(t, repo, newRecord("alice", "r1", base))

		_, err := repo.InsertIfAbsent(ctx, newRecord("alice", "r1", base))
		assert.ErrorIs(t, err, common.ErrAlreadyExists)
		_, err = repo.InsertIfAbsent(ctx, newRecord("bob", "r1", base))
		assert.ErrorIs(t, err, common.ErrAlreadyExists)
	})

	t.Run("compare and swap", func(t *testing.T) {
		repo := newRepo(t)
		mustInsert(t, repo, newRecord("alice", "r1", base))

		// A clock behind the stored updated_at still moves it forward.
		next, err := repo.CompareAndSwap(ctx, "alice", "r1", 1, models.RecordUpdate{
			EncryptedData: []byte("v2"), Nonce: []byte("n2"), Now: base.Add(-time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), next.Version)
		assert.Equal(t, []byte("v2"), next.EncryptedData)
		assert.True(t, next.UpdatedAt.After(base))
		assert.True(t, next.CreatedAt.Equal(base))

		later := base.Add(time.Minute)
		next, err = repo.CompareAndSwap(ctx, "alice", "r1", 2, models.RecordUpdate{
			EncryptedData: []byte("v3"), Nonce: []byte("n3"), Now: later,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), next.Version)
		assert.True(t, next.UpdatedAt.Equal(later))

		for _, tc := range []struct {
			owner, id string
			expected  int64
		}{{"alice", "r1", 2}, {"alice", "r1", 4}, {"bob", "r1", 3}, {"alice", "missing", 1}} {
			_, err := repo.CompareAndSwap(ctx, tc.owner, tc.id, tc.expected, models.RecordUpdate{
				EncryptedData: []byte("x"), Nonce: []byte("x"), Now: later,
			})
			assert.ErrorIs(t, err, common.ErrVersionConflict, "%+v", tc)
		}

		got, err := repo.Get(ctx, "alice", "r1")
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.Version)
		assert.Equal(t, []byte("v3"), got.EncryptedData)
	})

	t.Run("tombstones", func(t *testing.T) {
		repo := newRepo(t)
		mustInsert(t, repo, newRecord("alice", "r1", base))

		dead, err := repo.CompareAndSwap(ctx, "alice", "r1", 1, models.RecordUpdate{
			IsDeleted: true, Now: base.Add(time.Second), RequireLive: true,
		})
		require.NoError(t, err)
		assert.True(t, dead.IsDeleted)
		assert.Equal(t, int64(2), dead.Version)

		_, err = repo.CompareAndSwap(ctx, "alice", "r1", 2, models.RecordUpdate{
			EncryptedData: []byte("x"), Nonce: []byte("x"), Now: base.Add(2 * time.Second), RequireLive: true,
		})
		assert.ErrorIs(t, err, common.ErrVersionConflict)

		alive, err := repo.CompareAndSwap(ctx, "alice", "r1", 2, models.RecordUpdate{
			EncryptedData: []byte("back"), Nonce: []byte("n"), Now: base.Add(3 * time.Second),
		})
		require.NoError(t, err)
		assert.False(t, alive.IsDeleted)
		assert.Equal(t, int64(3), alive.Version)
	})

	t.Run("range scan", func(t *testing.T) {
		repo := newRepo(t)
		for i := 0; i < 5; i++ {
			mustInsert(t, repo, newRecord("alice", fmt.Sprintf("a%d", i), base.Add(time.Duration(i)*time.Second)))
		}
		// Same timestamp, ordered by id.
		mustInsert(t, repo, newRecord("alice", "b", base.Add(2*time.Second)))
		mustInsert(t, repo, newRecord("bob", "x", base.Add(time.Second)))

		recs, total, err := repo.RangeScan(ctx, "alice", query(time.Time{}, 100, 0))
		require.NoError(t, err)
		assert.Equal(t, int64(6), total)
		assert.Equal(t, []string{"a0", "a1", "a2", "b", "a3", "a4"}, ids(recs))

		recs, total, err = repo.RangeScan(ctx, "alice", query(base.Add(time.Second), 2, 1))
		require.NoError(t, err)
		assert.Equal(t, int64(4), total)
		assert.Equal(t, []string{"b", "a3"}, ids(recs))

		recs, total, err = repo.RangeScan(ctx, "alice", query(time.Time{}, 10, 10))
		require.NoError(t, err)
		assert.Equal(t, int64(6), total)
		assert.Empty(t, recs)

		q := query(time.Time{}, 100, 0)
		q.After = &models.Cursor{UpdatedAt: base.Add(2 * time.Second), ID: "a2"}
		recs, total, err = repo.RangeScan(ctx, "alice", q)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Equal(t, []string{"b", "a3", "a4"}, ids(recs))

		recs, total, err = repo.RangeScan(ctx, "carol", query(time.Time{}, 100, 0))
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, recs)
	})

	t.Run("range scan follows updates and tombstones", func(t *testing.T) {
		repo := newRepo(t)
		mustInsert(t, repo, newRecord("alice", "r1", base))
		mustInsert(t, repo, newRecord("alice", "r2", base.Add(time.Second)))

		_, err := repo.CompareAndSwap(ctx, "alice", "r1", 1, models.RecordUpdate{
			IsDeleted: true, Now: base.Add(time.Minute),
		})
		require.NoError(t, err)

		recs, total, err := repo.RangeScan(ctx, "alice", query(base.Add(2*time.Second), 100, 0))
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, recs, 1)
		assert.Equal(t, "r1", recs[0].ID)
		assert.True(t, recs[0].IsDeleted)
		assert.Equal(t, int64(2), recs[0].Version)

		recs, total, err = repo.RangeScan(ctx, "alice", query(time.Time{}, 100, 0))
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Equal(t, []string{"r2", "r1"}, ids(recs))
	})

	t.Run("concurrent compare and swap has one winner", func(t *testing.T) {
		repo := newRepo(t)
		mustInsert(t, repo, newRecord("alice", "r1", base))

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.CompareAndSwap(ctx, "alice", "r1", 1, models.RecordUpdate{
					EncryptedData: []byte(fmt.Sprintf("w%d", i)), Nonce: []byte("n"), Now: time.Now(),
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, common.ErrVersionConflict):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, writers-1, conflicts)

		got, err := repo.Get(ctx, "alice", "r1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.Version)
	})
}
