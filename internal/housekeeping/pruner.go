package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidRetention is returned when retention is not positive.
var ErrInvalidRetention = errors.New("housekeeping: retention must be positive")

const pruneTimeout = 30 * time.Second

// Pruner is the history store being trimmed. override.SQLiteHistory
// satisfies it.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Logger is the logging interface used by the scheduler.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Scheduler prunes history on a cron schedule.
type Scheduler struct {
	target    Pruner
	retention time.Duration
	schedule  string
	now       func() time.Time
	logger    Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewScheduler validates the schedule and returns a Scheduler that keeps
// retention worth of history.
//
// Parameters:
//   - target: History store to prune
//   - schedule: Standard five-field cron expression
//   - retention: Age beyond which entries are deleted
//
// Returns:
//   - *Scheduler: Ready to Start
//   - error: If the schedule does not parse or retention is not positive
func NewScheduler(target Pruner, schedule string, retention time.Duration) (*Scheduler, error) {
	if retention <= 0 {
		return nil, ErrInvalidRetention
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parsing prune schedule %q: %w", schedule, err)
	}
	return &Scheduler{
		target:    target,
		retention: retention,
		schedule:  schedule,
		now:       time.Now,
		logger:    noopLogger{},
	}, nil
}

// SetLogger sets the logger. Call before Start.
func (s *Scheduler) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start registers the prune job and starts the cron runner.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("housekeeping scheduler already started")
	}

	c := cron.New(cron.WithLogger(cronLogger{s.logger}), cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})))
	if _, err := c.AddFunc(s.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
		defer cancel()
		s.RunOnce(ctx) //nolint:errcheck // Logged inside
	}); err != nil {
		return fmt.Errorf("scheduling prune job: %w", err)
	}
	c.Start()
	s.cron = c

	s.logger.Info("housekeeping scheduled", "schedule", s.schedule, "retention", s.retention.String())
	return nil
}

// Stop halts the runner and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// RunOnce prunes entries older than the retention window.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.target.Prune(ctx, cutoff)
	if err != nil {
		s.logger.Error("pruning override history", "error", err)
		return 0, fmt.Errorf("pruning history before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if n > 0 {
		s.logger.Info("pruned override history", "deleted", n, "before", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// cronLogger adapts Logger to cron.Logger. cron's info messages fire on
// every wake-up, so only errors are forwarded.
type cronLogger struct {
	l Logger
}

func (cronLogger) Info(string, ...any) {}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
