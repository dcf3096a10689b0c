// Package settle runs the background settlement sweeper that closes resolved
// polls once their claim grace period has elapsed.
package settle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stark3693/stakepoll/internal/domain"
)

// DefaultInterval is how often the sweeper scans for polls to close.
const DefaultInterval = 10 * time.Minute

// Config controls the sweeper's schedule and cutoff.
type Config struct {
	// Interval between sweep passes. Zero uses DefaultInterval.
	Interval time.Duration

	// GracePeriod is how long after resolution a poll stays claimable. Zero
	// uses domain.DefaultGracePeriod.
	GracePeriod time.Duration
}

// Deps carries the sweeper's collaborators. Polls is required; Archiver, Bus,
// and Clock are optional.
type Deps struct {
	Polls    domain.PollStore
	Audit    domain.AuditStore
	Archiver domain.Archiver
	Bus      domain.SignalBus
	Clock    domain.Clock
}

// Sweeper periodically closes resolved polls whose grace period has elapsed.
// Before closing a poll it archives the settlement snapshot, so a poll is
// never closed without a cold-storage record when an archiver is configured.
type Sweeper struct {
	polls    domain.PollStore
	audit    domain.AuditStore
	archiver domain.Archiver
	bus      domain.SignalBus
	clock    domain.Clock

	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger
}

// New creates a Sweeper.
func New(deps Deps, cfg Config, logger *slog.Logger) (*Sweeper, error) {
	if deps.Polls == nil {
		return nil, errors.New("settle: poll store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = domain.SystemClock
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = domain.DefaultGracePeriod
	}

	return &Sweeper{
		polls:    deps.Polls,
		audit:    deps.Audit,
		archiver: deps.Archiver,
		bus:      deps.Bus,
		clock:    clock,
		interval: interval,
		grace:    grace,
		logger:   logger.With("component", "sweeper"),
	}, nil
}

// Run executes sweep passes until the context is cancelled. The first pass
// runs immediately.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sweeper started",
		"interval", s.interval.String(),
		"grace_period", s.grace.String(),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.SweepOnce(ctx); err != nil {
		s.logger.Error("sweep pass failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("sweep pass failed", "error", err)
			}
		}
	}
}

// SweepOnce closes every resolved poll whose grace period has elapsed. A
// failure on one poll is logged and does not stop the pass; the error
// returned covers only the initial listing.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.grace)

	polls, err := s.polls.ListResolvedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("settle: list resolved polls: %w", err)
	}
	if len(polls) == 0 {
		return nil
	}

	s.logger.Info("sweep pass", "candidates", len(polls), "cutoff", cutoff)

	for _, poll := range polls {
		if err := s.closePoll(ctx, poll); err != nil {
			s.logger.Error("close poll failed", "poll_id", poll.ID, "error", err)
		}
	}
	return nil
}

// closePoll archives (if configured) then closes one poll.
func (s *Sweeper) closePoll(ctx context.Context, poll domain.Poll) error {
	var archivePath string
	if s.archiver != nil {
		path, err := s.archiver.ArchivePoll(ctx, poll)
		if err != nil {
			// Do not close a poll whose settlement snapshot failed to upload;
			// the next pass retries.
			return fmt.Errorf("archive: %w", err)
		}
		archivePath = path
	}

	if err := s.polls.MarkClosed(ctx, poll.ID); err != nil {
		return fmt.Errorf("mark closed: %w", err)
	}

	s.logger.Info("poll closed", "poll_id", poll.ID, "archive_path", archivePath)

	if s.audit != nil {
		detail := map[string]any{"poll_id": poll.ID.String()}
		if archivePath != "" {
			detail["archive_path"] = archivePath
		}
		if err := s.audit.Log(ctx, "poll.closed", detail); err != nil {
			s.logger.Error("audit log failed", "event", "poll.closed", "error", err)
		}
	}

	s.publish(ctx, poll.ID.String())
	return nil
}

// publish sends the poll_closed event on the poll channel. Best effort.
func (s *Sweeper) publish(ctx context.Context, pollID string) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"type":    "poll_closed",
		"payload": map[string]any{"poll_id": pollID},
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, "ch:poll", payload); err != nil {
		s.logger.Warn("publish failed", "event", "poll_closed", "error", err)
	}
}
