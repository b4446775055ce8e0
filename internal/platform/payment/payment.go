// Package payment holds the transfer primitive the settlement engines consume
// and the earnings ledger that accumulates what each account has been paid.
// Amounts are int64 in the smallest currency unit.
package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Transferor delivers an amount to an account; a delivered amount lands on
// that account's earnings balance exactly once. Implementations are assumed
// atomic with respect to the caller's own state commit; the engines invoke
// Transfer inside the same transaction that records the obligation.
type Transferor interface {
	Transfer(ctx context.Context, to uuid.UUID, amount int64) error
}

// Ledger tracks cumulative earnings per account. Balances are monotonic:
// the core only credits, never debits (withdrawal is external).
type Ledger interface {
	Credit(ctx context.Context, account uuid.UUID, amount int64) error
	Balance(ctx context.Context, account uuid.UUID) (int64, error)
}

// MemoryLedger is an in-memory Ledger and Transferor for tests and
// development. Transfer credits the ledger directly.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[uuid.UUID]int64)}
}

func (l *MemoryLedger) Credit(_ context.Context, account uuid.UUID, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] += amount
	return nil
}

func (l *MemoryLedger) Balance(_ context.Context, account uuid.UUID) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

func (l *MemoryLedger) Transfer(ctx context.Context, to uuid.UUID, amount int64) error {
	return l.Credit(ctx, to, amount)
}
