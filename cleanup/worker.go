// Package cleanup reconciles the session store after rotations: it drains
// the cleanup queue written by the rotation flow and sweeps sessions whose
// refresh tokens have expired.
package cleanup

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/khentdev/FitThreads-sub000/sessions"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Worker is a periodic background task. Each cycle fetches a bounded batch of
// due queue entries and expired sessions and processes every item
// independently: one item's failure never aborts the batch, and a failed item
// simply stays where it is for the next cycle. All deletes are idempotent, so
// retries are safe.
type Worker struct {
	repo      sessions.Repo
	interval  time.Duration
	batchSize int

	// initialDelay staggers the first cycle so a fleet of restarted
	// instances does not hammer the store in lockstep.
	initialDelay time.Duration

	nowFunc func() time.Time
	logger  zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

type WorkerOption func(*Worker)

func WithInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		w.interval = interval
	}
}

func WithBatchSize(batchSize int) WorkerOption {
	return func(w *Worker) {
		w.batchSize = batchSize
	}
}

// WithInitialDelay overrides the randomized first-cycle delay (primarily for
// testing).
func WithInitialDelay(delay time.Duration) WorkerOption {
	return func(w *Worker) {
		w.initialDelay = delay
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) WorkerOption {
	return func(w *Worker) {
		w.nowFunc = now
	}
}

// WithLogger replaces the global logger (primarily for testing)
func WithLogger(logger zerolog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// NewWorker initialises a Worker. Call Start to begin cycling and Stop to
// shut it down.
func NewWorker(repo sessions.Repo, options ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, pkgerrors.New("[NewWorker] sessions repo is required")
	}

	w := &Worker{
		repo:         repo,
		interval:     5 * time.Minute,
		batchSize:    100,
		initialDelay: -1,
		nowFunc:      time.Now,
		logger:       log.Logger,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}

	for _, opt := range options {
		opt(w)
	}

	if w.initialDelay < 0 {
		w.initialDelay = rand.N(w.interval)
	}

	return w, nil
}

// Start launches the worker goroutine. Safe to call once per Worker.
func (w *Worker) Start() {
	w.startOnce.Do(func() {
		go w.run()
	})
}

// Stop signals the worker to exit and waits for the in-flight cycle, if any,
// to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)

	timer := time.NewTimer(w.initialDelay)
	defer timer.Stop()
	select {
	case <-w.stop:
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.RunCycle(context.Background())
		select {
		case <-w.stop:
			return
		case <-ticker.C:
		}
	}
}

// RunCycle performs one reconciliation pass and reports how many items were
// cleaned up and how many failed. Exported so a deployment can also drive
// cycles from its own scheduler.
func (w *Worker) RunCycle(ctx context.Context) (succeeded, failed int) {
	now := w.nowFunc()

	entries, err := w.repo.ListDueCleanupEntries(ctx, now, w.batchSize)
	if err != nil {
		w.logger.Err(err).Msg("failed to list due cleanup entries")
	}
	expired, err := w.repo.ListExpiredSessions(ctx, now, w.batchSize)
	if err != nil {
		w.logger.Err(err).Msg("failed to list expired sessions")
	}
	if len(entries) == 0 && len(expired) == 0 {
		return 0, 0
	}

	// Fire every item independently and collect the settled results.
	results := make(chan error, len(entries)+len(expired))
	var wg sync.WaitGroup

	for _, entry := range entries {
		wg.Add(1)
		go func(entry sessions.CleanupQueueEntry) {
			defer wg.Done()
			err := w.processEntry(ctx, entry)
			if err != nil {
				w.logger.Err(err).
					Int64("entry_id", entry.ID).
					Str("user_id", entry.UserID).
					Msg("cleanup entry failed, will retry next cycle")
			}
			results <- err
		}(entry)
	}

	for _, session := range expired {
		wg.Add(1)
		go func(session sessions.Session) {
			defer wg.Done()
			err := w.repo.DeleteSessionByID(ctx, session.ID)
			if err != nil {
				w.logger.Err(err).
					Int64("session_id", session.ID).
					Str("user_id", session.UserID).
					Msg("expired session delete failed, will retry next cycle")
			}
			results <- err
		}(session)
	}

	wg.Wait()
	close(results)

	for err := range results {
		if err != nil {
			failed++
		} else {
			succeeded++
		}
	}

	w.logger.Info().
		Int("succeeded", succeeded).
		Int("failed", failed).
		Msg("session cleanup cycle complete")

	return succeeded, failed
}

// processEntry retires one superseded session: the session delete and the
// queue-entry delete commit together, so a crash between them cannot strand a
// half-processed entry.
func (w *Worker) processEntry(ctx context.Context, entry sessions.CleanupQueueEntry) error {
	return w.repo.WithTx(ctx, func(ctx context.Context, tx sessions.Repo) error {
		if _, err := tx.DeleteSessionsByUserAndToken(ctx, entry.UserID, entry.TokenHash); err != nil {
			return err
		}
		return tx.DeleteCleanupEntry(ctx, entry.ID)
	})
}
