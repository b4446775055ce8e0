package notification

import (
	"errors"
	"testing"
	"time"
)

func waitForLog(t *testing.T, d *Dispatcher, want int) []Notification {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if log := d.Log(); len(log) >= want {
			return log
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d logged attempts, got %d", want, len(d.Log()))
	return nil
}

func TestDispatcher_Delivers(t *testing.T) {
	mock := &MockNotifier{}
	d := NewDispatcher(mock)

	d.Dispatch("contact@example.com", "Emergency access granted", "details", nil)

	log := waitForLog(t, d, 1)
	if log[0].SentAt == nil {
		t.Error("expected SentAt to be set on success")
	}
	calls := mock.Calls()
	if len(calls) != 1 || calls[0].Recipient != "contact@example.com" {
		t.Errorf("unexpected calls: %+v", calls)
	}
}

func TestDispatcher_SendFailureIsRecordedNotRaised(t *testing.T) {
	mock := &MockNotifier{Err: errors.New("smtp down")}
	d := NewDispatcher(mock)

	d.Dispatch("contact@example.com", "subject", "body", nil)

	log := waitForLog(t, d, 1)
	if log[0].Error == "" {
		t.Error("expected delivery error to be recorded")
	}
	if log[0].SentAt != nil {
		t.Error("expected SentAt to stay nil on failure")
	}
}
