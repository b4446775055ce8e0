// Package events records the audit trail. Every engine state transition
// appends one event; the trail is append-only and totally ordered per entity.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a single audit record for one entity state transition.
type Event struct {
	ID         uuid.UUID         `db:"id" json:"id"`
	EntityType string            `db:"entity_type" json:"entity_type"`
	EntityID   string            `db:"entity_id" json:"entity_id"`
	Seq        int64             `db:"seq" json:"seq"`
	Action     string            `db:"action" json:"action"`
	Actor      uuid.UUID         `db:"actor" json:"actor"`
	Timestamp  time.Time         `db:"ts" json:"timestamp"`
	Metadata   map[string]string `db:"metadata" json:"metadata,omitempty"`
}

// Sink accepts events for the audit trail. Record assigns the per-entity
// sequence number; events for one entity are never reordered or dropped.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Reader exposes the recorded trail for audit queries.
type Reader interface {
	ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]Event, int, error)
}

// MemorySink is an in-memory Sink and Reader used in tests and development.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	seq    map[string]int64
}

func NewMemorySink() *MemorySink {
	return &MemorySink{seq: make(map[string]int64)}
}

func (s *MemorySink) Record(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ev.EntityType + "/" + ev.EntityID
	s.seq[key]++
	ev.Seq = s.seq[key]
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *MemorySink) ListByEntity(_ context.Context, entityType, entityID string, limit, offset int) ([]Event, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []Event
	for _, ev := range s.events {
		if ev.EntityType == entityType && ev.EntityID == entityID {
			matched = append(matched, ev)
		}
	}
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// All returns a copy of the full trail in record order.
func (s *MemorySink) All() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
