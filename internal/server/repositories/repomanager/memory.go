package repomanager

import (
	"context"

	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/records"
)

// MemoryRepositoryManager serves a process-local store; data is lost on exit.
type MemoryRepositoryManager struct {
	records *records.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{records: records.NewMemoryRepository()}
}

func (m *MemoryRepositoryManager) Records() records.Repository {
	return m.records
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Close() error { return nil }
