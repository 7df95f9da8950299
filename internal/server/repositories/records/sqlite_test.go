package records

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/server/migrations"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := sql.Open("sqlite", "file:"+name+"?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(context.Background(), db, migrations.SQLiteDir))
	return db
}

func TestSQLiteRepository_Contract(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) Repository {
		return NewSQLiteRepository(newSQLiteDB(t))
	})
}

func TestSQLiteRepository_TombstoneWithoutPayload(t *testing.T) {
	repo := NewSQLiteRepository(newSQLiteDB(t))
	ctx := context.Background()
	mustInsert(t, repo, newRecord("alice", "r1", base))

	dead, err := repo.CompareAndSwap(ctx, "alice", "r1", 1, models.RecordUpdate{IsDeleted: true, Now: base})
	require.NoError(t, err)
	assert.True(t, dead.IsDeleted)
	assert.Empty(t, dead.EncryptedData)
	assert.True(t, dead.UpdatedAt.Equal(base.Add(time.Microsecond)))
}

func TestSQLiteRepository_ClosedDB(t *testing.T) {
	db := newSQLiteDB(t)
	repo := NewSQLiteRepository(db)
	require.NoError(t, db.Close())

	_, err := repo.Get(context.Background(), "alice", "r1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
	assert.Contains(t, err.Error(), "db error")

	_, _, err = repo.RangeScan(context.Background(), "alice", query(base, 10, 0))
	require.Error(t, err)
}
