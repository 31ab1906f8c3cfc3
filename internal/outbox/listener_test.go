package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func testListener(db *MemoryDB, pub EventPublisher, clock clockwork.Clock) *Listener {
	return &Listener{
		repo:      db,
		publisher: pub,
		clock:     clock,
		cfg:       DefaultListenerConfig(),
	}
}

func TestListener_DoesNotOvertakeOlderPending(t *testing.T) {
	clock := clockwork.NewFakeClock()
	db := NewMemoryDB(clock)
	older := pendingRecord(clock, "ProductA", -time.Minute)
	newer := pendingRecord(clock, "ProductA", 0)
	db.Insert(older)
	db.Insert(newer)

	pub := &scriptedPublisher{}
	l := testListener(db, pub, clock)
	ctx := context.Background()

	// The tenant's older record is still pending, so the notified one is
	// left for the poller.
	if err := l.handleNotification(ctx, newer.ID.String()); err != nil {
		t.Fatalf("handleNotification failed: %v", err)
	}
	if pub.calls != 0 {
		t.Fatalf("publisher calls = %d, want 0", pub.calls)
	}
	if got, _ := db.Get(newer.ID); got.Status != StatusPending {
		t.Fatalf("status = %s, want pending", got.Status)
	}

	// The oldest record goes straight through.
	if err := l.handleNotification(ctx, older.ID.String()); err != nil {
		t.Fatalf("handleNotification failed: %v", err)
	}
	if got, _ := db.Get(older.ID); got.Status != StatusDispatched {
		t.Fatalf("status = %s, want dispatched", got.Status)
	}

	// With the queue drained ahead of it, the newer record ships too.
	if err := l.handleNotification(ctx, newer.ID.String()); err != nil {
		t.Fatalf("handleNotification failed: %v", err)
	}
	if got, _ := db.Get(newer.ID); got.Status != StatusDispatched {
		t.Errorf("status = %s, want dispatched", got.Status)
	}
}

func TestListener_RejectsMalformedNotification(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := testListener(NewMemoryDB(clock), &scriptedPublisher{}, clock)

	if err := l.handleNotification(context.Background(), "not-a-uuid"); err == nil {
		t.Error("expected error for malformed notification payload")
	}
}
