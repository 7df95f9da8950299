package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/vaultsync/internal/filex"
	"github.com/dmitrijs2005/vaultsync/internal/server/migrations"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/records"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteRepositoryManager runs the record store on an embedded SQLite file.
type SQLiteRepositoryManager struct {
	db      *sql.DB
	records *records.SQLiteRepository
}

// OpenSQLite opens path with the modernc driver. A single connection keeps
// SQLite writers from tripping over each other's locks.
func OpenSQLite(path string) (*SQLiteRepositoryManager, error) {
	if filex.IsPlainPath(path) {
		if _, err := filex.EnsureParentDir(path); err != nil {
			return nil, fmt.Errorf("failed to prepare data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	db.SetMaxOpenConns(1)
	return NewSQLiteRepositoryManager(db), nil
}

func NewSQLiteRepositoryManager(db *sql.DB) *SQLiteRepositoryManager {
	return &SQLiteRepositoryManager{db: db, records: records.NewSQLiteRepository(db)}
}

func (m *SQLiteRepositoryManager) Records() records.Repository {
	return m.records
}

func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return gooseUpContext(ctx, m.db, migrations.SQLiteDir)
}

func (m *SQLiteRepositoryManager) Close() error {
	return m.db.Close()
}
