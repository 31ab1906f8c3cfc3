package outbox

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// MemoryDB is an in-memory outbox table. It implements Repository for the
// worker and hands out staging stores bound to a memory unit of work.
type MemoryDB struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
	clock   clockwork.Clock
}

func NewMemoryDB(clock clockwork.Clock) *MemoryDB {
	return &MemoryDB{
		records: map[uuid.UUID]Record{},
		clock:   clock,
	}
}

// Begin opens a staging store whose records become visible only on Commit.
func (db *MemoryDB) Begin(guard TxGuard) *MemoryStore {
	return &MemoryStore{db: db, guard: guard}
}

// RunCycle implements CycleRunner. The map is already serialized by the
// mutex, so the cycle runs directly against the table.
func (db *MemoryDB) RunCycle(ctx context.Context, fn func(Repository) error) error {
	return fn(db)
}

// Insert adds a committed record directly. Test helper for worker scenarios
// that need pre-committed rows.
func (db *MemoryDB) Insert(rec Record) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.records[rec.ID] = rec
}

// Get returns a committed record by id. Test helper.
func (db *MemoryDB) Get(id uuid.UUID) (Record, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.records[id]
	return rec, ok
}

// All returns every committed record. Test helper.
func (db *MemoryDB) All() []Record {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]Record, 0, len(db.records))
	for _, rec := range db.records {
		out = append(out, rec)
	}
	return out
}

func (db *MemoryDB) FetchPending(ctx context.Context, limit int32) ([]Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var pending []Record
	for _, rec := range db.records {
		if rec.Status == StatusPending {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].TenantID != pending[j].TenantID {
			return pending[i].TenantID < pending[j].TenantID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if int32(len(pending)) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (db *MemoryDB) FetchByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.records[id]
	if !ok || rec.Status != StatusPending {
		return nil, fmt.Errorf("outbox event not found or already dispatched")
	}
	return &rec, nil
}

func (db *MemoryDB) OlderPendingExists(ctx context.Context, tenantID string, createdBefore time.Time) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, rec := range db.records {
		if rec.TenantID == tenantID && rec.Status == StatusPending && rec.CreatedAt.Before(createdBefore) {
			return true, nil
		}
	}
	return false, nil
}

func (db *MemoryDB) MarkDispatched(ctx context.Context, id uuid.UUID, dispatchedAt time.Time, attempts int) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.records[id]
	if !ok {
		return fmt.Errorf("outbox event %s not found", id)
	}
	rec.Status = StatusDispatched
	rec.DispatchedAt = &dispatchedAt
	rec.LastAttemptAt = &dispatchedAt
	rec.AttemptCount = attempts
	db.records[id] = rec
	return nil
}

func (db *MemoryDB) RecordFailure(ctx context.Context, id uuid.UUID, attempts int, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.records[id]
	if !ok || rec.Status != StatusPending {
		return nil
	}
	rec.LastAttemptAt = &at
	rec.AttemptCount = attempts
	db.records[id] = rec
	return nil
}

func (db *MemoryDB) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	rec, ok := db.records[id]
	if !ok {
		return fmt.Errorf("outbox event %s not found", id)
	}
	rec.Status = StatusFailed
	rec.LastAttemptAt = &at
	rec.AttemptCount = attempts
	db.records[id] = rec
	return nil
}

func (db *MemoryDB) RequeueFailed(ctx context.Context, tenantID string) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var n int64
	for id, rec := range db.records {
		if rec.TenantID == tenantID && rec.Status == StatusFailed {
			rec.Status = StatusPending
			rec.AttemptCount = 0
			rec.LastAttemptAt = nil
			db.records[id] = rec
			n++
		}
	}
	return n, nil
}

func (db *MemoryDB) PendingStats(ctx context.Context) (int64, *time.Time, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var count int64
	var oldest *time.Time
	for _, rec := range db.records {
		if rec.Status != StatusPending {
			continue
		}
		count++
		if oldest == nil || rec.CreatedAt.Before(*oldest) {
			t := rec.CreatedAt
			oldest = &t
		}
	}
	return count, oldest, nil
}

// MemoryStore stages records against a MemoryDB within one unit of work.
type MemoryStore struct {
	db     *MemoryDB
	guard  TxGuard
	mu     sync.Mutex
	staged []Record
}

func (s *MemoryStore) Stage(ctx context.Context, eventType string, payload []byte, headers map[string]string) (uuid.UUID, error) {
	if s.guard != nil && !s.guard.Active() {
		return uuid.Nil, ErrNoActiveTransaction
	}
	rec, err := newRecord(ctx, eventType, payload, headers, s.db.clock)
	if err != nil {
		return uuid.Nil, err
	}
	s.mu.Lock()
	s.staged = append(s.staged, rec)
	s.mu.Unlock()
	return rec.ID, nil
}

// Commit moves staged records into the committed table.
func (s *MemoryStore) Commit() {
	s.mu.Lock()
	staged := s.staged
	s.staged = nil
	s.mu.Unlock()

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, rec := range staged {
		s.db.records[rec.ID] = rec
	}
}

// Discard drops staged records.
func (s *MemoryStore) Discard() {
	s.mu.Lock()
	s.staged = nil
	s.mu.Unlock()
}
