package records

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/timex"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	RecordsBucket = []byte("records") // id -> JSON encoded record
	OwnersBucket  = []byte("owners")  // owner -> (updated_at micros || id) -> nil
)

// BoltRepository implements Repository over a bbolt file. Each write is one
// Update transaction; bbolt runs writers one at a time.
type BoltRepository struct {
	db *bolt.DB
}

// NewBoltRepository wraps an open database, creating the buckets if needed.
func NewBoltRepository(db *bolt.DB) (*BoltRepository, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{RecordsBucket, OwnersBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BoltRepository{db: db}, nil
}

func indexKey(updatedAt time.Time, id string) []byte {
	key := make([]byte, 8, 8+len(id))
	micros := updatedAt.UnixMicro()
	if micros < 0 {
		micros = 0
	}
	binary.BigEndian.PutUint64(key, uint64(micros))
	return append(key, id...)
}

func parseIndexKey(key []byte) (time.Time, string) {
	micros := int64(binary.BigEndian.Uint64(key[:8]))
	return time.UnixMicro(micros).UTC(), string(key[8:])
}

func loadRecord(tx *bolt.Tx, id string) (*models.VaultRecord, error) {
	data := tx.Bucket(RecordsBucket).Get([]byte(id))
	if data == nil {
		return nil, nil
	}
	var rec models.VaultRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
	}
	return &rec, nil
}

func storeRecord(tx *bolt.Tx, rec *models.VaultRecord, previous *models.VaultRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := tx.Bucket(RecordsBucket).Put([]byte(rec.ID), data); err != nil {
		return err
	}

	index, err := tx.Bucket(OwnersBucket).CreateBucketIfNotExists([]byte(rec.Owner))
	if err != nil {
		return err
	}
	if previous != nil {
		if err := index.Delete(indexKey(previous.UpdatedAt, previous.ID)); err != nil {
			return err
		}
	}
	return index.Put(indexKey(rec.UpdatedAt, rec.ID), nil)
}

func (r *BoltRepository) Get(ctx context.Context, owner, id string) (*models.VaultRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec *models.VaultRecord
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = loadRecord(tx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if rec == nil || rec.Owner != owner {
		return nil, common.ErrorNotFound
	}
	return rec, nil
}

func (r *BoltRepository) InsertIfAbsent(ctx context.Context, rec *models.VaultRecord) (*models.VaultRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := rec.Clone()
	stored.CreatedAt = timex.Normalize(stored.CreatedAt)
	stored.UpdatedAt = timex.Normalize(stored.UpdatedAt)

	err := r.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(RecordsBucket).Get([]byte(rec.ID)) != nil {
			return common.ErrAlreadyExists
		}
		return storeRecord(tx, stored, nil)
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return stored, nil
}

func (r *BoltRepository) CompareAndSwap(ctx context.Context, owner, id string, expected int64, upd models.RecordUpdate) (*models.VaultRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var next *models.VaultRecord
	err := r.db.Update(func(tx *bolt.Tx) error {
		rec, err := loadRecord(tx, id)
		if err != nil {
			return err
		}
		if rec == nil || rec.Owner != owner || rec.Version != expected || (upd.RequireLive && rec.IsDeleted) {
			return common.ErrVersionConflict
		}

		next = rec.Clone()
		next.EncryptedData = append([]byte(nil), upd.EncryptedData...)
		next.Nonce = append([]byte(nil), upd.Nonce...)
		next.IsDeleted = upd.IsDeleted
		next.Version++
		next.UpdatedAt = timex.NextAfter(upd.Now, rec.UpdatedAt)
		return storeRecord(tx, next, rec)
	})
	if err != nil {
		if errors.Is(err, common.ErrVersionConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return next, nil
}

func (r *BoltRepository) RangeScan(ctx context.Context, owner string, q models.PullQuery) ([]*models.VaultRecord, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	var (
		total  int64
		result []*models.VaultRecord
	)
	err := r.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(OwnersBucket).Bucket([]byte(owner))
		if index == nil {
			return nil
		}

		since := timex.Normalize(q.Since)
		start := indexKey(since.Add(timex.Precision), "")
		if q.After != nil {
			if after := indexKey(q.After.UpdatedAt, q.After.ID); bytes.Compare(after, start) > 0 {
				start = after
			}
		}

		c := index.Cursor()
		for k, _ := c.Seek(start); k != nil; k, _ = c.Next() {
			updatedAt, id := parseIndexKey(k)
			if q.After != nil && !q.After.Precedes(updatedAt, id) {
				continue
			}
			total++
			if total <= int64(q.Offset) || len(result) >= q.Limit {
				continue
			}
			rec, err := loadRecord(tx, id)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("index points at missing record %s", id)
			}
			result = append(result, rec)
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	return result, total, nil
}
