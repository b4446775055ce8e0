package registry

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediledger/nexus/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *repoPG) SetOwner(ctx context.Context, owner uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO registry_owner (singleton, owner) VALUES (TRUE, $1)
		ON CONFLICT (singleton) DO NOTHING`, owner)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Owner(ctx context.Context) (uuid.UUID, error) {
	var owner uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT owner FROM registry_owner`).Scan(&owner)
	if err == pgx.ErrNoRows {
		return uuid.Nil, nil
	}
	return owner, err
}

func (r *repoPG) AddRole(ctx context.Context, m Membership) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO role_membership (identity, role, added_by, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identity, role) DO NOTHING`,
		m.Identity, m.Role, m.AddedBy, m.AddedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) RemoveRole(ctx context.Context, identity uuid.UUID, role Role) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM role_membership WHERE identity = $1 AND role = $2`, identity, role)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) HasRole(ctx context.Context, identity uuid.UUID, role Role) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM role_membership WHERE identity = $1 AND role = $2)`,
		identity, role).Scan(&exists)
	return exists, err
}

func (r *repoPG) ListByRole(ctx context.Context, role Role) ([]Membership, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT identity, role, added_by, added_at
		FROM role_membership WHERE role = $1 ORDER BY added_at`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.Identity, &m.Role, &m.AddedBy, &m.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
