package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediledger/nexus/internal/platform/db"
)

// PGLedger persists earnings in the earnings_ledger table. When the context
// carries a transaction the credit joins it, so settlement and the triggering
// state change commit together.
type PGLedger struct {
	pool *pgxpool.Pool
}

func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

func (l *PGLedger) conn(ctx context.Context) db.Queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return l.pool
}

func (l *PGLedger) Credit(ctx context.Context, account uuid.UUID, amount int64) error {
	_, err := l.conn(ctx).Exec(ctx, `
		INSERT INTO earnings_ledger (account, balance, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (account) DO UPDATE
		SET balance = earnings_ledger.balance + EXCLUDED.balance, updated_at = NOW()`,
		account, amount)
	return err
}

func (l *PGLedger) Balance(ctx context.Context, account uuid.UUID) (int64, error) {
	var balance int64
	err := l.conn(ctx).QueryRow(ctx,
		`SELECT balance FROM earnings_ledger WHERE account = $1`, account).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return balance, err
}

func (l *PGLedger) Transfer(ctx context.Context, to uuid.UUID, amount int64) error {
	return l.Credit(ctx, to, amount)
}
