// Package notification delivers emergency-contact alerts. Delivery is
// fire-and-forget from the engines' point of view: a failed send never
// fails the state transition that triggered it.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notification is a single outbound alert.
type Notification struct {
	ID        uuid.UUID         `json:"id"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	SentAt    *time.Time        `json:"sent_at,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Notifier delivers one notification.
type Notifier interface {
	Notify(ctx context.Context, recipient, subject, body string) error
}

// Dispatcher wraps a Notifier with async fire-and-forget dispatch and keeps
// a bounded in-memory log of attempts.
type Dispatcher struct {
	notifier Notifier
	mu       sync.Mutex
	log      []Notification
	maxLog   int
}

func NewDispatcher(n Notifier) *Dispatcher {
	return &Dispatcher{notifier: n, maxLog: 1000}
}

// Dispatch sends asynchronously. The caller's context is not used for the
// send; a revoked request context must not cancel an already-committed
// transition's alert.
func (d *Dispatcher) Dispatch(recipient, subject, body string, metadata map[string]string) {
	n := Notification{
		ID:        uuid.New(),
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := d.notifier.Notify(ctx, recipient, subject, body)
		now := time.Now().UTC()
		d.mu.Lock()
		defer d.mu.Unlock()
		if err != nil {
			n.Error = err.Error()
		} else {
			n.SentAt = &now
		}
		d.log = append(d.log, n)
		if len(d.log) > d.maxLog {
			d.log = d.log[len(d.log)-d.maxLog:]
		}
	}()
}

// Log returns a copy of the attempt log.
func (d *Dispatcher) Log() []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Notification, len(d.log))
	copy(out, d.log)
	return out
}

// LogNotifier writes alerts to the structured log. It stands in for a real
// SMS or email gateway until one is configured.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (l LogNotifier) Notify(_ context.Context, recipient, subject, body string) error {
	l.Logger.Info().
		Str("recipient", recipient).
		Str("subject", subject).
		Str("body", body).
		Msg("notification dispatched")
	return nil
}

// MockNotifier records calls for tests.
type MockNotifier struct {
	mu    sync.Mutex
	calls []Notification
	Err   error
}

func (m *MockNotifier) Notify(_ context.Context, recipient, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Notification{Recipient: recipient, Subject: subject, Body: body})
	return m.Err
}

func (m *MockNotifier) Calls() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.calls))
	copy(out, m.calls)
	return out
}
