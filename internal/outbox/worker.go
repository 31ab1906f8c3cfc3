package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type Config struct {
	PollInterval      time.Duration
	BatchSize         int32
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	DispatchTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:      5 * time.Second,
		BatchSize:         100,
		MaxAttempts:       5,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		DispatchTimeout:   10 * time.Second,
	}
}

// Worker drains committed pending records to the sink. Ordering is preserved
// per tenant: a failed or not-yet-due record halts that tenant's queue for
// the cycle while other tenants keep flowing.
type Worker struct {
	repo      Repository
	publisher EventPublisher
	config    Config
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   MetricsCollector

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWorker(repo Repository, publisher EventPublisher, cfg Config, clock clockwork.Clock, logger *slog.Logger, metrics MetricsCollector) *Worker {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &Worker{
		repo:      repo,
		publisher: publisher,
		config:    cfg,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		stopChan:  make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.logger.Info("outbox worker started",
		slog.Duration("poll_interval", w.config.PollInterval),
		slog.Int("batch_size", int(w.config.BatchSize)),
		slog.Int("max_attempts", w.config.MaxAttempts))

	return nil
}

func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker not running")
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	w.logger.Info("outbox worker stopped")
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := w.clock.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.processBatch(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.Chan():
			w.processBatch(ctx)
		}
	}
}

// processBatch runs one publisher cycle. When the repository can scope the
// cycle to a transaction, the whole fetch-publish-mark sequence runs inside
// it, so FetchPending's row locks shield the batch from other instances.
// Tests drive cycles directly against a fake clock.
func (w *Worker) processBatch(ctx context.Context) {
	if runner, ok := w.repo.(CycleRunner); ok {
		err := runner.RunCycle(ctx, func(repo Repository) error {
			w.cycle(ctx, repo)
			return nil
		})
		if err != nil {
			w.logger.Error("outbox cycle failed", slog.String("error", err.Error()))
		}
		return
	}
	w.cycle(ctx, w.repo)
}

func (w *Worker) cycle(ctx context.Context, repo Repository) {
	start := w.clock.Now()

	records, err := repo.FetchPending(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to fetch pending events", slog.String("error", err.Error()))
		return
	}

	w.reportLag(ctx, repo)
	if len(records) == 0 {
		return
	}

	w.logger.Debug("processing outbox events", slog.Int("count", len(records)))

	dispatched := 0
	// Tenants halted this cycle so later records don't overtake earlier ones.
	halted := make(map[string]bool)
	for _, rec := range records {
		if halted[rec.TenantID] {
			continue
		}
		if !w.due(rec) {
			halted[rec.TenantID] = true
			continue
		}
		if err := w.dispatch(ctx, repo, rec); err != nil {
			halted[rec.TenantID] = true
			if ctx.Err() != nil {
				// Cancelled mid-flight: the record stays pending and is
				// retried next cycle.
				return
			}
			continue
		}
		dispatched++
	}

	w.metrics.RecordBatchProcessed(dispatched, w.clock.Since(start))
	w.logger.Info("processed outbox events",
		slog.Int("total", len(records)),
		slog.Int("dispatched", dispatched))
}

func (w *Worker) dispatch(ctx context.Context, repo Repository, rec Record) error {
	attempts := rec.AttemptCount + 1

	dispatchCtx, cancel := context.WithTimeout(ctx, w.config.DispatchTimeout)
	defer cancel()

	start := w.clock.Now()
	err := w.publisher.Publish(dispatchCtx, rec)
	duration := w.clock.Since(start)

	w.metrics.RecordPublishAttempt(rec.EventType, attempts, err == nil)
	w.metrics.RecordEventProcessed(rec.EventType, err == nil, duration)

	now := w.clock.Now().UTC()
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown or caller cancellation, not a sink failure. Leave
			// the attempt budget untouched.
			return err
		}
		if attempts >= w.config.MaxAttempts {
			if markErr := repo.MarkFailed(ctx, rec.ID, attempts, now); markErr != nil {
				w.logger.Error("failed to dead-letter event",
					slog.String("event_id", rec.ID.String()),
					slog.String("error", markErr.Error()))
				return err
			}
			w.logger.Error("event dead-lettered, operator attention required",
				slog.String("event_id", rec.ID.String()),
				slog.String("event_type", rec.EventType),
				slog.String("tenant_id", rec.TenantID),
				slog.Int("attempts", attempts),
				slog.String("error", err.Error()))
			return err
		}
		if markErr := repo.RecordFailure(ctx, rec.ID, attempts, now); markErr != nil {
			w.logger.Error("failed to record attempt",
				slog.String("event_id", rec.ID.String()),
				slog.String("error", markErr.Error()))
		}
		w.logger.Warn("failed to publish event, will retry",
			slog.String("event_id", rec.ID.String()),
			slog.Int("attempt", attempts),
			slog.Duration("next_backoff", w.backoff(attempts)),
			slog.String("error", err.Error()))
		return err
	}

	if err := repo.MarkDispatched(ctx, rec.ID, now, attempts); err != nil {
		// The event went out but the mark failed; at-least-once delivery
		// means the next cycle re-sends with the same dedup key.
		w.logger.Error("failed to mark event dispatched",
			slog.String("event_id", rec.ID.String()),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// due reports whether the record's backoff window has elapsed.
func (w *Worker) due(rec Record) bool {
	if rec.LastAttemptAt == nil {
		return true
	}
	return !w.clock.Now().Before(rec.LastAttemptAt.Add(w.backoff(rec.AttemptCount)))
}

// backoff returns the wait after the given number of attempts.
func (w *Worker) backoff(attempts int) time.Duration {
	if attempts <= 0 {
		return 0
	}
	scale := math.Pow(w.config.BackoffMultiplier, float64(attempts-1))
	return time.Duration(float64(w.config.BackoffBase) * scale)
}

func (w *Worker) reportLag(ctx context.Context, repo Repository) {
	pending, oldest, err := repo.PendingStats(ctx)
	if err != nil {
		w.logger.Error("failed to read outbox stats", slog.String("error", err.Error()))
		return
	}
	var age time.Duration
	if oldest != nil {
		age = w.clock.Since(*oldest)
	}
	w.metrics.RecordOutboxLag(pending, age)
}
