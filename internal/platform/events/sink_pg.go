package events

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediledger/nexus/internal/platform/db"
)

// PGSink persists the audit trail to the audit_event table. Per-entity
// sequence numbers come from a counter row in audit_seq; the upsert's row
// lock serializes concurrent writers for the same entity.
type PGSink struct {
	pool *pgxpool.Pool
}

func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

func (s *PGSink) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return s.pool
}

func (s *PGSink) Record(ctx context.Context, ev Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	var seq int64
	err := s.conn(ctx).QueryRow(ctx, `
		INSERT INTO audit_seq (entity_type, entity_id, next_seq) VALUES ($1, $2, 1)
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET next_seq = audit_seq.next_seq + 1
		RETURNING next_seq`,
		ev.EntityType, ev.EntityID).Scan(&seq)
	if err != nil {
		return err
	}
	_, err = s.conn(ctx).Exec(ctx, `
		INSERT INTO audit_event (id, entity_type, entity_id, seq, action, actor, ts, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.EntityType, ev.EntityID, seq, ev.Action, ev.Actor, ev.Timestamp, ev.Metadata)
	return err
}

func (s *PGSink) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]Event, int, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT id, entity_type, entity_id, seq, action, actor, ts, metadata
		FROM audit_event
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY seq
		LIMIT $3 OFFSET $4`, entityType, entityID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.EntityType, &ev.EntityID, &ev.Seq, &ev.Action, &ev.Actor, &ev.Timestamp, &ev.Metadata); err != nil {
			return nil, 0, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	err = s.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM audit_event WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID).Scan(&total)
	if err != nil && err != pgx.ErrNoRows {
		return nil, 0, err
	}
	return out, total, nil
}
