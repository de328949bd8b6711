// Package workers holds the background processes of the assistant. The
// sweeper executes deferred actions: queue deliveries give low latency,
// and a periodic database sweep guarantees nothing is lost when the
// queue is down or a publish was missed.
package workers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/database"
	"github.com/trackwise/assistant/internal/models"
	"github.com/trackwise/assistant/internal/queue"
)

const (
	// defaultSweepInterval is how often the database is polled for due
	// actions the queue did not deliver
	defaultSweepInterval = time.Minute
	// sweepBatchSize bounds one sweep pass
	sweepBatchSize = 100
	// executeTimeout bounds one deferred execution against the backend
	executeTimeout = 30 * time.Second
)

// Executor runs one stored deferred action. Implemented by actions.Handler.
type Executor interface {
	ExecuteDeferred(ctx context.Context, action *models.DeferredAction) error
}

// Sweeper consumes deferred-action jobs and sweeps the database for due
// rows. The pending-to-completed transition in the repository is the
// duplicate guard: queue delivery and sweep may race, only one wins.
type Sweeper struct {
	executor Executor
	deferred database.DeferredActionRepositoryInterface
	jobs     queue.JobQueue
	logger   *zap.Logger
	interval time.Duration
	prefetch int
	clock    func() time.Time
}

// NewSweeper creates a sweeper. jobs may be nil; the worker then relies on
// the database poll alone.
func NewSweeper(
	executor Executor,
	deferred database.DeferredActionRepositoryInterface,
	jobs queue.JobQueue,
	interval time.Duration,
	prefetch int,
	logger *zap.Logger,
) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Sweeper{
		executor: executor,
		deferred: deferred,
		jobs:     jobs,
		logger:   logger,
		interval: interval,
		prefetch: prefetch,
		clock:    time.Now,
	}
}

// SetClock overrides the time source for tests
func (s *Sweeper) SetClock(clock func() time.Time) { s.clock = clock }

// Run blocks until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	if s.jobs != nil {
		go s.consume(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Sweep once at startup to drain anything that came due while the
	// worker was down
	s.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// consume processes queue deliveries until the channel closes
func (s *Sweeper) consume(ctx context.Context) {
	for {
		msgs, errs, err := s.jobs.Consume(ctx, s.prefetch)
		if err != nil {
			s.logger.Error("queue_consume_failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		for msgs != nil || errs != nil {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					msgs = nil
					continue
				}
				s.handleMessage(ctx, msg)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				s.logger.Warn("queue_consumer_error", zap.Error(err))
			}
		}
		// Channels closed: reconnect unless we are shutting down
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *Sweeper) handleMessage(ctx context.Context, msg queue.MessageInterface) {
	job := msg.GetJob()
	if job == nil || job.DeferredActionID == "" {
		if err := msg.Ack(); err != nil {
			s.logger.Warn("queue_ack_failed", zap.Error(err))
		}
		return
	}

	if err := s.process(ctx, job.DeferredActionID); err != nil {
		s.logger.Error("deferred_action_failed",
			zap.String("deferred_action_id", job.DeferredActionID),
			zap.Error(err))
	}
	// The database row records the outcome either way; redelivery would
	// just lose against the status transition
	if err := msg.Ack(); err != nil {
		s.logger.Warn("queue_ack_failed", zap.Error(err))
	}
}

// Sweep executes every pending action that has come due
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.clock()
	due, err := s.deferred.ListDue(ctx, now, sweepBatchSize)
	if err != nil {
		s.logger.Error("sweep_list_failed", zap.Error(err))
		return
	}

	for _, action := range due {
		if err := s.execute(ctx, action); err != nil {
			s.logger.Error("deferred_action_failed",
				zap.String("deferred_action_id", action.ID),
				zap.Error(err))
		}
	}
	if len(due) > 0 {
		s.logger.Info("sweep_completed",
			zap.Int("processed", len(due)),
			zap.Time("as_of", now))
	}
}

// process loads a deferred action by id and executes it if still pending
// and due
func (s *Sweeper) process(ctx context.Context, id string) error {
	action, err := s.deferred.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if action == nil || action.Status != models.DeferredPending {
		return nil
	}
	if action.DueAt.After(s.clock()) {
		// Early delivery: the sweep picks it up at the due time
		return nil
	}
	return s.execute(ctx, action)
}

// execute claims one due action and runs it. Claiming via the
// pending-to-completed transition first means queue delivery and sweep can
// race freely; only the winner touches the backend.
func (s *Sweeper) execute(ctx context.Context, action *models.DeferredAction) error {
	claimed, err := s.deferred.MarkCompleted(ctx, action.ID, s.clock())
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	execCtx, cancel := context.WithTimeout(ctx, executeTimeout)
	defer cancel()

	if err := s.executor.ExecuteDeferred(execCtx, action); err != nil {
		if _, markErr := s.deferred.MarkFailed(ctx, action.ID, s.clock()); markErr != nil {
			s.logger.Error("deferred_mark_failed_error",
				zap.String("deferred_action_id", action.ID),
				zap.Error(markErr))
		}
		return err
	}

	s.logger.Info("deferred_action_completed",
		zap.String("deferred_action_id", action.ID),
		zap.String("action_type", string(action.Type)),
		zap.String("user_id", action.UserID))
	return nil
}
