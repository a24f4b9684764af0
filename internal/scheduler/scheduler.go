package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/fentz26/tickos/internal/logging"
	"github.com/fentz26/tickos/internal/pool"
)

// TaskFunc is the callback of a periodic task. userdata is the value given
// to AddTask; the scheduler never copies or inspects it.
type TaskFunc func(userdata any)

// EventFunc is the callback of an event.
type EventFunc func(userdata any)

// TaskRun describes one completed task invocation.
type TaskRun struct {
	Index int
	Name  string
	Tick  uint32
}

// EventFire describes one completed event dispatch.
type EventFire struct {
	ID   uint16
	Name string
	Tick uint32
}

// Observer is notified after every callback the scheduler runs. It is
// called on the scheduler goroutine and must not block.
type Observer interface {
	TaskRan(TaskRun)
	EventFired(EventFire)
}

// Option configures optional Scheduler dependencies.
type Option func(*Scheduler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger.With("component", "scheduler")
		}
	}
}

// WithObserver registers an observer for dispatch notifications.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// Scheduler is one cooperative scheduler instance: a task table, a soft-delay
// pool and an event pool sharing a single tick counter.
//
// Tick may be called from any goroutine. Every other method may be called
// from any goroutine too, including from inside task and event callbacks.
// Callbacks themselves only ever run on the goroutine calling Run or RunOnce,
// one at a time.
type Scheduler struct {
	cfg      Config
	logger   *slog.Logger
	observer Observer

	tick atomic.Uint32
	wake chan struct{}

	mu           sync.Mutex
	tasks        []taskSlot
	taskGen      []uint32
	taskCount    int
	currentTask  int
	currentEvent uint16
	delays       *pool.Arena[delayEntry]
	events       *pool.Arena[eventEntry]
	eventScratch []eventRef
	inPass       bool
}

// New creates an initialized scheduler sized by cfg.
func New(cfg Config, opts ...Option) (*Scheduler, error) {
	if cfg.TaskCapacity < 1 || cfg.DelayCapacity < 1 || cfg.EventCapacity < 1 {
		return nil, fmt.Errorf("capacities must be at least 1 (tasks=%d delays=%d events=%d): %w",
			cfg.TaskCapacity, cfg.DelayCapacity, cfg.EventCapacity, ErrInvalidParameter)
	}

	s := &Scheduler{
		cfg:          cfg,
		logger:       logging.Discard(),
		wake:         make(chan struct{}, 1),
		tasks:        make([]taskSlot, cfg.TaskCapacity),
		taskGen:      make([]uint32, cfg.TaskCapacity),
		delays:       pool.New[delayEntry](cfg.DelayCapacity),
		events:       pool.New[eventEntry](cfg.EventCapacity),
		eventScratch: make([]eventRef, 0, cfg.EventCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Init()
	return s, nil
}

// Init returns every pool to the all-free state and zeroes the tick counter
// and the task table. New already calls it; calling it again while Run is
// active drops all tasks, events and delays.
func (s *Scheduler) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tasks {
		s.tasks[i] = taskSlot{}
	}
	s.taskCount = 0
	s.currentTask = 0
	s.currentEvent = 0
	s.delays.Reset()
	s.events.Reset()
	s.tick.Store(0)
}

// Config returns the table sizes the scheduler was built with.
func (s *Scheduler) Config() Config { return s.cfg }

// Now returns the current tick count.
func (s *Scheduler) Now() uint32 { return s.tick.Load() }

// Tick advances the tick counter by one and ages every active soft delay.
// It is the entry point for the periodic tick source and never blocks
// beyond the short critical section of the delay pool.
func (s *Scheduler) Tick() {
	s.tick.Add(1)

	s.mu.Lock()
	s.ageDelays()
	s.mu.Unlock()

	s.notify()
}

// RunOnce performs one scheduler pass: it dispatches every triggered and
// enabled event, then scans the task table in index order and runs every due
// task. It returns the number of callbacks invoked. A nested call from inside
// a callback is a no-op.
func (s *Scheduler) RunOnce() int {
	s.mu.Lock()
	if s.inPass {
		s.mu.Unlock()
		return 0
	}
	s.inPass = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inPass = false
		s.mu.Unlock()
	}()

	n := s.dispatchEvents()
	n += s.dispatchTasks()
	return n
}

// Run is the scheduler loop. It performs passes until ctx is cancelled and
// then returns ctx.Err(). When a pass runs nothing, Run parks until the next
// tick or API call could have made something due.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler loop started",
		"tasks", s.cfg.TaskCapacity, "delays", s.cfg.DelayCapacity, "events", s.cfg.EventCapacity)
	defer s.logger.Info("scheduler loop stopped", "tick", s.Now())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.RunOnce() > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}
	}
}

// Delay blocks the calling goroutine until ticks ticks have elapsed.
//
// It busy-waits on the tick counter, so it must never be called from the
// goroutine that calls Tick: the counter would never advance. Calling it from
// a task or event callback stalls the whole loop for the duration. ctx
// cancellation ends the wait early with ctx.Err().
func (s *Scheduler) Delay(ctx context.Context, ticks uint32) error {
	if ticks == 0 {
		return fmt.Errorf("delay of zero ticks: %w", ErrInvalidParameter)
	}
	start := s.tick.Load()
	for s.tick.Load()-start < ticks {
		if err := ctx.Err(); err != nil {
			return err
		}
		runtime.Gosched()
	}
	return nil
}

// Stats is a diagnostic snapshot of the shared scheduler state.
type Stats struct {
	Tick          uint32 `json:"tick"`
	CurrentTask   int    `json:"current_task"`
	CurrentEvent  uint16 `json:"current_event"`
	TaskCount     int    `json:"task_count"`
	EventCount    int    `json:"event_count"`
	DelayCount    int    `json:"delay_count"`
	TaskCapacity  int    `json:"task_capacity"`
	EventCapacity int    `json:"event_capacity"`
	DelayCapacity int    `json:"delay_capacity"`
}

// Stats returns the current shared state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Tick:          s.tick.Load(),
		CurrentTask:   s.currentTask,
		CurrentEvent:  s.currentEvent,
		TaskCount:     s.taskCount,
		EventCount:    s.events.Len(),
		DelayCount:    s.delays.Len(),
		TaskCapacity:  len(s.tasks),
		EventCapacity: s.events.Cap(),
		DelayCapacity: s.delays.Cap(),
	}
}

// CheckPools verifies the free/active ownership invariant of both pools.
func (s *Scheduler) CheckPools() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.delays.Check(); err != nil {
		return fmt.Errorf("delay pool: %w", err)
	}
	if err := s.events.Check(); err != nil {
		return fmt.Errorf("event pool: %w", err)
	}
	return nil
}

// notify wakes a parked Run loop. It never blocks.
func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// call runs a callback, turning a panic into a logged error so one faulty
// callback cannot stop the loop.
func (s *Scheduler) call(fn func(any), userdata any, attrs ...any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("callback panicked", append(attrs, "panic", r)...)
		}
	}()
	fn(userdata)
}
