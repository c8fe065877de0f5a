// Package scheduler tops up the configured users on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/hatebu-galaxy/pkg/gather"
	"github.com/Sternrassler/hatebu-galaxy/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxy_scheduler_runs_total",
		Help: "Scheduled top-up runs by result (ok, skipped)",
	}, []string{"result"})

	topUpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "galaxy_scheduler_topups_total",
		Help: "Scheduled per-user top-ups by result (ok, partial)",
	}, []string{"result"})
)

// StopTimeout is the usual grace period given to Stop.
const StopTimeout = 30 * time.Second

// TopUpper re-fetches the leading pages of a user.
type TopUpper interface {
	TopUp(ctx context.Context, username string) gather.Result
}

// Summary describes one run over all users.
type Summary struct {
	Users   int
	Records int
	Partial []string // users whose pass returned no records
}

// Scheduler runs top-up passes for a fixed user list.
type Scheduler struct {
	cron   *cron.Cron
	target TopUpper
	users  []string
	logger zerolog.Logger

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler. The schedule uses the six field cron format with
// a leading seconds field.
func New(target TopUpper, schedule string, users []string) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		target: target,
		users:  append([]string(nil), users...),
		logger: logging.NewLogger("scheduler"),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("invalid top-up schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start starts the cron loop in the background.
func (s *Scheduler) Start() {
	s.logger.Info().
		Int("users", len(s.users)).
		Msg("Scheduler started")
	s.cron.Start()
}

// Stop stops the cron loop, cancels a running job and waits for it to
// return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.logger.Info().Msg("Scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn().Msg("Scheduler stop timed out waiting for running job")
	}
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		runsTotal.WithLabelValues("skipped").Inc()
		s.logger.Warn().Msg("Previous top-up run still active, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.RunOnce(s.ctx)
}

// RunOnce tops up every configured user in order. Users are processed
// serially so scheduled runs never fan out against the upstream.
func (s *Scheduler) RunOnce(ctx context.Context) Summary {
	start := time.Now()
	var sum Summary

	for _, username := range s.users {
		if ctx.Err() != nil {
			break
		}
		sum.Users++

		res := s.target.TopUp(ctx, username)
		sum.Records += len(res.Records)
		if len(res.Records) == 0 {
			sum.Partial = append(sum.Partial, username)
			topUpsTotal.WithLabelValues("partial").Inc()
			continue
		}
		topUpsTotal.WithLabelValues("ok").Inc()
	}

	runsTotal.WithLabelValues("ok").Inc()
	s.logger.Info().
		Int("users", sum.Users).
		Int("records", sum.Records).
		Strs("partial", sum.Partial).
		Dur("duration", time.Since(start)).
		Msg("Top-up run finished")

	return sum
}
