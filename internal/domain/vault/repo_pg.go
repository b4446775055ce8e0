package vault

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediledger/nexus/internal/platform/db"
)

// =========== Record Repository ===========

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const recordCols = `id, owner, record_type, content_ref, integrity_digest, is_active, created_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.Owner, &rec.RecordType, &rec.ContentRef, &rec.IntegrityDigest, &rec.IsActive, &rec.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *recordRepoPG) Create(ctx context.Context, rec *Record) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO health_record (id, owner, record_type, content_ref, integrity_digest, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.Owner, rec.RecordType, rec.ContentRef, rec.IntegrityDigest, rec.IsActive, rec.CreatedAt)
	return err
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM health_record WHERE id = $1`, id))
}

func (r *recordRepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE health_record SET is_active = FALSE WHERE id = $1`, id)
	return err
}

func (r *recordRepoPG) ListByOwner(ctx context.Context, owner uuid.UUID, limit, offset int) ([]*Record, int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+recordCols+` FROM health_record
		WHERE owner = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, owner, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Owner, &rec.RecordType, &rec.ContentRef, &rec.IntegrityDigest, &rec.IsActive, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM health_record WHERE owner = $1`, owner).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// =========== Grant Repository ===========

type grantRepoPG struct{ pool *pgxpool.Pool }

func NewGrantRepoPG(pool *pgxpool.Pool) GrantRepository {
	return &grantRepoPG{pool: pool}
}

func (r *grantRepoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *grantRepoPG) Upsert(ctx context.Context, g *Grant) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO access_grant (record_id, grantee, level, granted_at, expires_at, is_emergency, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (record_id, grantee) DO UPDATE SET
			level = EXCLUDED.level,
			granted_at = EXCLUDED.granted_at,
			expires_at = EXCLUDED.expires_at,
			is_emergency = EXCLUDED.is_emergency,
			is_active = EXCLUDED.is_active`,
		g.RecordID, g.Grantee, g.Level, g.GrantedAt, g.ExpiresAt, g.IsEmergency, g.IsActive)
	return err
}

func (r *grantRepoPG) Get(ctx context.Context, recordID, grantee uuid.UUID) (*Grant, error) {
	var g Grant
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT record_id, grantee, level, granted_at, expires_at, is_emergency, is_active
		FROM access_grant WHERE record_id = $1 AND grantee = $2`, recordID, grantee).
		Scan(&g.RecordID, &g.Grantee, &g.Level, &g.GrantedAt, &g.ExpiresAt, &g.IsEmergency, &g.IsActive)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *grantRepoPG) Deactivate(ctx context.Context, recordID, grantee uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE access_grant SET is_active = FALSE
		WHERE record_id = $1 AND grantee = $2 AND is_active`, recordID, grantee)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *grantRepoPG) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Grant, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT record_id, grantee, level, granted_at, expires_at, is_emergency, is_active
		FROM access_grant WHERE record_id = $1 ORDER BY granted_at`, recordID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.RecordID, &g.Grantee, &g.Level, &g.GrantedAt, &g.ExpiresAt, &g.IsEmergency, &g.IsActive); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}
