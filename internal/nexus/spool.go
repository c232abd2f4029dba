package nexus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nexusai/nexus/internal/circuitbreaker"
)

const (
	defaultSpoolSlots = 16
	defaultJobBudget  = 10 * time.Second
)

// Spool runs fire-and-forget jobs after a response has been returned. Jobs
// get a fresh context with a bounded time budget so they survive request
// cancellation without running forever. A full spool drops the job rather
// than blocking the caller.
type Spool struct {
	sem     *semaphore.Weighted
	budget  time.Duration
	breaker *circuitbreaker.Breaker
	wg      sync.WaitGroup
}

// NewSpool creates a Spool with the given concurrency. slots <= 0 means the
// default of 16.
func NewSpool(slots int) *Spool {
	if slots <= 0 {
		slots = defaultSpoolSlots
	}
	return &Spool{
		sem:     semaphore.NewWeighted(int64(slots)),
		budget:  defaultJobBudget,
		breaker: circuitbreaker.New(),
	}
}

// Submit schedules a job. Failures are logged and dropped; nothing here ever
// reaches the response path.
func (s *Spool) Submit(name string, job func(ctx context.Context) error) {
	if !s.sem.TryAcquire(1) {
		slog.Warn("spool full, dropping job", slog.String("job", name))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), s.budget)
		defer cancel()
		if err := job(ctx); err != nil {
			slog.Error("spool job failed",
				slog.String("job", name),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// SubmitGuarded schedules a job behind the store circuit breaker. When the
// breaker is open the job is shed immediately, so a dead backing store cannot
// pile up goroutines.
func (s *Spool) SubmitGuarded(name string, job func(ctx context.Context) error) {
	if !s.breaker.Allow() {
		slog.Warn("spool breaker open, shedding job", slog.String("job", name))
		return
	}
	s.Submit(name, func(ctx context.Context) error {
		err := job(ctx)
		if err != nil {
			s.breaker.RecordFailure()
			return err
		}
		s.breaker.RecordSuccess()
		return nil
	})
}

// Close waits for in-flight jobs to finish.
func (s *Spool) Close() {
	s.wg.Wait()
}
