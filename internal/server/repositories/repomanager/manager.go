// Package repomanager opens a storage backend, migrates its schema and vends
// the record repository bound to it.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/records"
	"github.com/pressly/goose/v3"
)

// Storage backends accepted by Open.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Records() records.Repository
	Close() error
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Open returns a manager for the named backend. dsn is a connection string
// for postgres and a file path for sqlite and bolt; memory ignores it.
func Open(ctx context.Context, backend, dsn string) (RepositoryManager, error) {
	var (
		m   RepositoryManager
		err error
	)
	switch backend {
	case BackendPostgres:
		m, err = OpenPostgres(ctx, dsn)
	case BackendSQLite:
		m, err = OpenSQLite(dsn)
	case BackendBolt:
		m, err = OpenBolt(dsn)
	case BackendMemory:
		m = NewMemoryRepositoryManager()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
