package repomanager

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/filex"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/records"
	bolt "go.etcd.io/bbolt"
)

// BoltRepositoryManager keeps records in a single bbolt file.
type BoltRepositoryManager struct {
	db      *bolt.DB
	records *records.BoltRepository
}

// OpenBolt opens or creates the database file at path, creating missing
// parent directories.
func OpenBolt(path string) (*BoltRepositoryManager, error) {
	if _, err := filex.EnsureParentDir(path); err != nil {
		return nil, fmt.Errorf("failed to prepare data directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	repo, err := records.NewBoltRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltRepositoryManager{db: db, records: repo}, nil
}

func (m *BoltRepositoryManager) Records() records.Repository {
	return m.records
}

// RunMigrations is a no-op; buckets are created when the file is opened.
func (m *BoltRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *BoltRepositoryManager) Close() error {
	return m.db.Close()
}
