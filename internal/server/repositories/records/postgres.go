package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/vaultsync/internal/common"
	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/server/models"
	"github.com/dmitrijs2005/vaultsync/internal/timex"
)

const pgColumns = `id, owner_id, kind, encrypted_data, nonce, version, is_deleted, created_at, updated_at`

// PostgresRepository implements Repository over PostgreSQL. Writes are single
// statements; RangeScan runs its two queries in one read-only snapshot.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanPgRecord(row interface{ Scan(...any) error }) (*models.VaultRecord, error) {
	var rec models.VaultRecord
	var kind string
	if err := row.Scan(
		&rec.ID, &rec.Owner, &kind, &rec.EncryptedData, &rec.Nonce,
		&rec.Version, &rec.IsDeleted, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rec.Kind = models.RecordKind(kind)
	rec.CreatedAt = timex.Normalize(rec.CreatedAt)
	rec.UpdatedAt = timex.Normalize(rec.UpdatedAt)
	return &rec, nil
}

func (r *PostgresRepository) Get(ctx context.Context, owner, id string) (*models.VaultRecord, error) {
	query := `SELECT ` + pgColumns + ` FROM vault_records WHERE owner_id = $1 AND id = $2`

	rec, err := scanPgRecord(r.db.QueryRowContext(ctx, query, owner, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, rec *models.VaultRecord) (*models.VaultRecord, error) {
	query := `
		INSERT INTO vault_records (` + pgColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
		RETURNING ` + pgColumns

	row := r.db.QueryRowContext(ctx, query,
		rec.ID, rec.Owner, string(rec.Kind), nonNil(rec.EncryptedData), nonNil(rec.Nonce),
		rec.Version, rec.IsDeleted, timex.Normalize(rec.CreatedAt), timex.Normalize(rec.UpdatedAt))

	stored, err := scanPgRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return stored, nil
}

func (r *PostgresRepository) CompareAndSwap(ctx context.Context, owner, id string, expected int64, upd models.RecordUpdate) (*models.VaultRecord, error) {
	query := `
		UPDATE vault_records SET
			encrypted_data = $4,
			nonce = $5,
			is_deleted = $6,
			version = version + 1,
			updated_at = GREATEST($7::timestamptz, updated_at + interval '1 microsecond')
		WHERE owner_id = $1 AND id = $2 AND version = $3`
	if upd.RequireLive {
		query += ` AND NOT is_deleted`
	}
	query += ` RETURNING ` + pgColumns

	row := r.db.QueryRowContext(ctx, query,
		owner, id, expected, nonNil(upd.EncryptedData), nonNil(upd.Nonce), upd.IsDeleted, timex.Normalize(upd.Now))

	rec, err := scanPgRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrVersionConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) RangeScan(ctx context.Context, owner string, q models.PullQuery) ([]*models.VaultRecord, int64, error) {
	where, args := pgRangeFilter(owner, q)

	var (
		total  int64
		result []*models.VaultRecord
	)
	err := dbx.WithTx(ctx, r.db, dbx.SnapshotRead, func(ctx context.Context, tx dbx.DBTX) error {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM vault_records WHERE `+where, args...).Scan(&total); err != nil {
			return fmt.Errorf("count error: %w", err)
		}

		n := len(args)
		pageQuery := fmt.Sprintf(`SELECT %s FROM vault_records WHERE %s ORDER BY updated_at, id LIMIT $%d OFFSET $%d`,
			pgColumns, where, n+1, n+2)
		rows, err := tx.QueryContext(ctx, pageQuery, append(args, q.Limit, q.Offset)...)
		if err != nil {
			return fmt.Errorf("failed to select records: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanPgRecord(rows)
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

func pgRangeFilter(owner string, q models.PullQuery) (string, []any) {
	conds := []string{"owner_id = $1", "updated_at > $2"}
	args := []any{owner, timex.Normalize(q.Since)}
	if q.After != nil {
		conds = append(conds, "(updated_at, id) > ($3, $4)")
		args = append(args, timex.Normalize(q.After.UpdatedAt), q.After.ID)
	}
	return strings.Join(conds, " AND "), args
}

// nonNil keeps NOT NULL payload columns happy for tombstones sent without data.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
