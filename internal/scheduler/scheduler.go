package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/agentboard/pkg/schema"
)

// GraphSource exposes the board state the scheduler snapshots.
// Satisfied by the engine (avoids import cycle).
type GraphSource interface {
	CurrentGraph() schema.GraphState
	Sequence() uint64
}

// Archiver persists and prunes graph snapshots. Satisfied by the event log.
type Archiver interface {
	SaveGraphSnapshot(ctx context.Context, seq uint64, state schema.GraphState) error
	PruneSnapshots(ctx context.Context, keep int) error
}

const defaultKeepSnapshots = 10

// Scheduler periodically materializes the board graph into the snapshot
// table on a cron schedule, so a restart replays only the tail of the
// event log. A tick with no new events since the last snapshot is skipped.
type Scheduler struct {
	source   GraphSource
	archiver Archiver
	schedule cron.Schedule
	keep     int
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	seqMu   sync.Mutex
	lastSeq uint64
}

// NewScheduler creates a snapshot scheduler. cronExpr uses the standard
// five-field format; keep bounds how many snapshots survive pruning.
func NewScheduler(source GraphSource, archiver Archiver, cronExpr string, keep int, logger *slog.Logger) (*Scheduler, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	if keep <= 0 {
		keep = defaultKeepSnapshots
	}
	return &Scheduler{
		source:   source,
		archiver: archiver,
		schedule: schedule,
		keep:     keep,
		logger:   logger,
	}, nil
}

// Start launches the background snapshot loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("snapshot scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	for {
		next := s.schedule.Next(time.Now().UTC())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Snapshot(ctx)
		}
	}
}

// Snapshot takes one snapshot immediately if the board has advanced since
// the last one. It is safe to call concurrently with the loop.
func (s *Scheduler) Snapshot(ctx context.Context) {
	seq := s.source.Sequence()

	s.seqMu.Lock()
	if seq == s.lastSeq {
		s.seqMu.Unlock()
		return
	}
	s.seqMu.Unlock()

	state := s.source.CurrentGraph()
	if err := s.archiver.SaveGraphSnapshot(ctx, seq, state); err != nil {
		s.logger.Error("snapshot failed",
			slog.Uint64("sequence", seq),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.archiver.PruneSnapshots(ctx, s.keep); err != nil {
		s.logger.Warn("snapshot prune failed", slog.String("error", err.Error()))
	}

	s.seqMu.Lock()
	s.lastSeq = seq
	s.seqMu.Unlock()

	s.logger.Info("graph snapshot saved",
		slog.Uint64("sequence", seq),
		slog.Int("nodes", len(state.Nodes)),
	)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("snapshot scheduler stopped")
	return nil
}
