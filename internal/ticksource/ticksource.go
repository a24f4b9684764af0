// Package ticksource drives a scheduler's tick counter from wall-clock time.
package ticksource

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fentz26/tickos/internal/logging"
)

// ErrRunning is returned by Start when the source is already running.
var ErrRunning = errors.New("tick source already running")

// DefaultMaxCatchUp bounds how many missed ticks are replayed after a stall.
const DefaultMaxCatchUp = 1000

// Ticker receives one call per elapsed tick period.
type Ticker interface {
	Tick()
}

// Source calls Tick on its target once per period. time.Ticker drops ticks
// when the receiver falls behind, so each wakeup replays however many
// periods have elapsed since the last one, up to MaxCatchUp. Ticks beyond
// that are skipped and counted.
type Source struct {
	period     time.Duration
	target     Ticker
	logger     *slog.Logger
	maxCatchUp uint64
	now        func() time.Time

	count   atomic.Uint64
	skipped atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger.With("component", "ticksource")
		}
	}
}

// WithMaxCatchUp sets how many ticks a single wakeup may replay.
func WithMaxCatchUp(n uint64) Option {
	return func(s *Source) {
		if n > 0 {
			s.maxCatchUp = n
		}
	}
}

// New creates a stopped source. period must be positive.
func New(period time.Duration, target Ticker, opts ...Option) *Source {
	if period <= 0 {
		period = time.Millisecond
	}
	s := &Source{
		period:     period,
		target:     target,
		logger:     logging.Discard(),
		maxCatchUp: DefaultMaxCatchUp,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Period returns the tick period.
func (s *Source) Period() time.Duration { return s.period }

// Count returns the number of ticks delivered so far.
func (s *Source) Count() uint64 { return s.count.Load() }

// Skipped returns the number of ticks dropped because a stall exceeded the
// catch-up limit.
func (s *Source) Skipped() uint64 { return s.skipped.Load() }

// Start launches the tick goroutine. It stops when ctx is cancelled or Stop
// is called.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		s.loop(ctx)
	}(s.done)
	return nil
}

// Stop halts the tick goroutine and waits for it to exit. It is safe to call
// on a stopped source.
func (s *Source) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run delivers ticks on the calling goroutine until ctx is cancelled, then
// returns ctx.Err().
func (s *Source) Run(ctx context.Context) error {
	s.loop(ctx)
	return ctx.Err()
}

func (s *Source) loop(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	start := s.now()
	var delivered uint64
	s.logger.Info("tick source started", "period", s.period)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("tick source stopped", "ticks", s.count.Load(), "skipped", s.skipped.Load())
			return
		case <-ticker.C:
			due := uint64(s.now().Sub(start) / s.period)
			if due <= delivered {
				// The ticker fired a little early relative to our clock.
				due = delivered + 1
			}
			n := due - delivered
			if n > s.maxCatchUp {
				s.skipped.Add(n - s.maxCatchUp)
				s.logger.Warn("tick source stalled", "missed", n, "replayed", s.maxCatchUp)
				n = s.maxCatchUp
			}
			for i := uint64(0); i < n; i++ {
				s.target.Tick()
				s.count.Add(1)
			}
			delivered = due
		}
	}
}
