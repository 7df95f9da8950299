package records

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func newBoltRepo(t *testing.T) (*BoltRepository, *bolt.DB) {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "vault.db"), 0600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo, err := NewBoltRepository(db)
	require.NoError(t, err)
	return repo, db
}

func TestBoltRepository_Contract(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) Repository {
		repo, _ := newBoltRepo(t)
		return repo
	})
}

func TestBoltRepository_IndexFollowsUpdates(t *testing.T) {
	repo, db := newBoltRepo(t)
	ctx := context.Background()
	mustInsert(t, repo, newRecord("alice", "r1", base))

	for v := int64(1); v <= 3; v++ {
		_, err := repo.CompareAndSwap(ctx, "alice", "r1", v, models.RecordUpdate{
			EncryptedData: []byte("d"), Nonce: []byte("n"), Now: base.Add(time.Duration(v) * time.Second),
		})
		require.NoError(t, err)
	}

	var keys int
	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(OwnersBucket).Bucket([]byte("alice")).ForEach(func(k, v []byte) error {
			keys++
			at, id := parseIndexKey(k)
			assert.Equal(t, "r1", id)
			assert.True(t, at.Equal(base.Add(3*time.Second)))
			return nil
		})
	}))
	assert.Equal(t, 1, keys)
}

func TestBoltRepository_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	db, err := bolt.Open(path, 0600, nil)
	require.NoError(t, err)
	repo, err := NewBoltRepository(db)
	require.NoError(t, err)
	mustInsert(t, repo, newRecord("alice", "r1", base))
	require.NoError(t, db.Close())

	db, err = bolt.Open(path, 0600, nil)
	require.NoError(t, err)
	defer db.Close()
	repo, err = NewBoltRepository(db)
	require.NoError(t, err)

	got, err := repo.Get(context.Background(), "alice", "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
}

func TestIndexKey_Order(t *testing.T) {
	a := indexKey(base, "b")
	b := indexKey(base.Add(time.Microsecond), "a")
	assert.Less(t, string(a), string(b))

	at, id := parseIndexKey(indexKey(base, "r-1"))
	assert.True(t, at.Equal(base))
	assert.Equal(t, "r-1", id)
}
