package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/timex"
)

const sqliteColumns = pgColumns

// SQLiteRepository implements Repository over an embedded SQLite database.
// Timestamps are stored as integer unix microseconds.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func scanSQLiteRecord(row interface{ Scan(...any) error }) (*models.VaultRecord, error) {
	var (
		rec                  models.VaultRecord
		kind                 string
		createdAt, updatedAt int64
	)
	if err := row.Scan(
		&rec.ID, &rec.Owner, &kind, &rec.EncryptedData, &rec.Nonce,
		&rec.Version, &rec.IsDeleted, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	rec.Kind = models.RecordKind(kind)
	rec.CreatedAt = time.UnixMicro(createdAt).UTC()
	rec.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return &rec, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, owner, id string) (*models.VaultRecord, error) {
	query := `SELECT ` + sqliteColumns + ` FROM vault_records WHERE owner_id = ? AND id = ?`

	rec, err := scanSQLiteRecord(r.db.QueryRowContext(ctx, query, owner, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) InsertIfAbsent(ctx context.Context, rec *models.VaultRecord) (*models.VaultRecord, error) {
	query := `
		INSERT INTO vault_records (` + sqliteColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
		RETURNING ` + sqliteColumns

	row := r.db.QueryRowContext(ctx, query,
		rec.ID, rec.Owner, string(rec.Kind), nonNil(rec.EncryptedData), nonNil(rec.Nonce),
		rec.Version, rec.IsDeleted, rec.CreatedAt.UnixMicro(), rec.UpdatedAt.UnixMicro())

	stored, err := scanSQLiteRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return stored, nil
}

func (r *SQLiteRepository) CompareAndSwap(ctx context.Context, owner, id string, expected int64, upd models.RecordUpdate) (*models.VaultRecord, error) {
	query := `
		UPDATE vault_records SET
			encrypted_data = ?,
			nonce = ?,
			is_deleted = ?,
			version = version + 1,
			updated_at = MAX(?, updated_at + 1)
		WHERE owner_id = ? AND id = ? AND version = ?`
	if upd.RequireLive {
		query += ` AND is_deleted = 0`
	}
	query += ` RETURNING ` + sqliteColumns

	row := r.db.QueryRowContext(ctx, query,
		nonNil(upd.EncryptedData), nonNil(upd.Nonce), upd.IsDeleted, upd.Now.UnixMicro(),
		owner, id, expected)

	rec, err := scanSQLiteRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrVersionConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) RangeScan(ctx context.Context, owner string, q models.PullQuery) ([]*models.VaultRecord, int64, error) {
	conds := []string{"owner_id = ?", "updated_at > ?"}
	args := []any{owner, timex.Normalize(q.Since).UnixMicro()}
	if q.After != nil {
		conds = append(conds, "(updated_at, id) > (?, ?)")
		args = append(args, q.After.UpdatedAt.UnixMicro(), q.After.ID)
	}
	where := strings.Join(conds, " AND ")

	var (
		total  int64
		result []*models.VaultRecord
	)
	// SQLite transactions are serializable; no options needed for a snapshot.
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM vault_records WHERE `+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("count error: %w", err)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT `+sqliteColumns+` FROM vault_records WHERE `+where+` ORDER BY updated_at, id LIMIT ? OFFSET ?`,
			append(args, q.Limit, q.Offset)...)
		if err != nil {
			return fmt.Errorf("failed to select records: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanSQLiteRecord(rows)
			if err != nil {
				return err
			}
			result = append(result, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	return result, total, nil
}
