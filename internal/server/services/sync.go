// Package services contains the server-side business logic: the delta-sync
// engine and the attachment presigner.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/logging"
	"github.com/dmitrijs2005/vaultsync/internal/server/config"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/records"
	"github.com/dmitrijs2005/vaultsync/internal/timex"
	"github.com/google/uuid"
)

const storageUnavailableMessage = "storage unavailable, retry later"

// SyncService implements Pull and Push over a record store. It holds no locks;
// concurrent writers are arbitrated by the store's atomic insert and CAS.
type SyncService struct {
	repo          records.Repository
	logger        logging.Logger
	allowUndelete bool
	now           func() time.Time
	newID         func() string
}

// NewSyncService constructs the engine. cfg.AllowUndelete decides whether
// tombstones accept further versioned writes.
func NewSyncService(repo records.Repository, logger logging.Logger, cfg *config.Config) *SyncService {
	return &SyncService{
		repo:          repo,
		logger:        logger.With("module", "sync"),
		allowUndelete: cfg.AllowUndelete,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
	}
}

// Pull returns one page of the owner's records changed after q.Since.
// Validation failures wrap common.ErrValidation; storage failures wrap
// common.ErrSyncUnavailable and carry no partial result.
func (s *SyncService) Pull(ctx context.Context, owner string, q models.PullQuery) (*models.PullPage, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	recs, total, err := s.repo.RangeScan(ctx, owner, q)
	if err != nil {
		s.logger.Error(ctx, "pull failed", "owner", owner, "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrSyncUnavailable, err)
	}
	if recs == nil {
		recs = []*models.VaultRecord{}
	}

	page := &models.PullPage{
		Records:    recs,
		TotalCount: total,
		HasMore:    int64(q.Offset+len(recs)) < total,
	}
	if len(recs) > 0 {
		page.NextCursor = recs[len(recs)-1].Position().Encode()
	}

	s.logger.Debug(ctx, "pull served", "owner", owner, "records", len(recs), "total", total, "has_more", page.HasMore)
	return page, nil
}

// Push applies items one by one and returns one result per item, in order.
// An item never fails the batch. Once ctx is done the remaining items are
// reported as retryable errors; items already applied stay applied.
func (s *SyncService) Push(ctx context.Context, owner string, items []models.PushItem) []models.PushResult {
	results := make([]models.PushResult, len(items))
	counts := make(map[models.PushStatus]int, 4)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			results[i] = models.Failed(item.ID, "request cancelled: "+err.Error(), true)
		} else {
			results[i] = s.pushOne(ctx, owner, item)
		}
		counts[results[i].Status]++
	}

	s.logger.Info(ctx, "push applied", "owner", owner, "items", len(items),
		"created", counts[models.StatusCreated], "success", counts[models.StatusSuccess],
		"conflict", counts[models.StatusConflict], "error", counts[models.StatusError])
	return results
}

func (s *SyncService) pushOne(ctx context.Context, owner string, item models.PushItem) models.PushResult {
	if err := item.Validate(); err != nil {
		return models.Failed(item.ID, err.Error(), false)
	}
	if item.ClientKnownVersion == 0 {
		return s.create(ctx, owner, item)
	}
	return s.update(ctx, owner, item)
}

func (s *SyncService) create(ctx context.Context, owner string, item models.PushItem) models.PushResult {
	id := item.ID
	if id == "" {
		id = s.newID()
	}
	now := timex.Normalize(s.now())

	stored, err := s.repo.InsertIfAbsent(ctx, &models.VaultRecord{
		ID:            id,
		Owner:         owner,
		Kind:          item.KindOrDefault(),
		EncryptedData: item.EncryptedData,
		Nonce:         item.Nonce,
		Version:       1,
		IsDeleted:     item.IsDeleted,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	switch {
	case err == nil:
		return models.Created(stored)
	case errors.Is(err, common.ErrAlreadyExists):
		return s.conflict(ctx, owner, id, 0)
	default:
		s.logger.Error(ctx, "insert failed", "owner", owner, "id", id, "error", err)
		return models.Failed(id, storageUnavailableMessage, true)
	}
}

func (s *SyncService) update(ctx context.Context, owner string, item models.PushItem) models.PushResult {
	stored, err := s.repo.CompareAndSwap(ctx, owner, item.ID, item.ClientKnownVersion, models.RecordUpdate{
		EncryptedData: item.EncryptedData,
		Nonce:         item.Nonce,
		IsDeleted:     item.IsDeleted,
		Now:           timex.Normalize(s.now()),
		RequireLive:   !s.allowUndelete,
	})
	switch {
	case err == nil:
		return models.Succeeded(stored)
	case errors.Is(err, common.ErrVersionConflict):
		return s.conflict(ctx, owner, item.ID, item.ClientKnownVersion)
	default:
		s.logger.Error(ctx, "compare and swap failed", "owner", owner, "id", item.ID, "error", err)
		return models.Failed(item.ID, storageUnavailableMessage, true)
	}
}

// conflict reads the current server state once and attaches it. A record
// that is absent or owned by someone else yields a nil server record.
func (s *SyncService) conflict(ctx context.Context, owner, id string, clientKnownVersion int64) models.PushResult {
	server, err := s.repo.Get(ctx, owner, id)
	switch {
	case err == nil:
		s.logger.Debug(ctx, "conflict", "owner", owner, "id", id,
			"client_version", clientKnownVersion, "server_version", server.Version)
		return models.Conflicted(id, clientKnownVersion, server)
	case errors.Is(err, common.ErrorNotFound):
		return models.Conflicted(id, clientKnownVersion, nil)
	default:
		s.logger.Error(ctx, "conflict read failed", "owner", owner, "id", id, "error", err)
		return models.Failed(id, storageUnavailableMessage, true)
	}
}
