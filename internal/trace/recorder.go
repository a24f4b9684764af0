// Package trace records scheduler dispatches and persists them in batches.
package trace

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fentz26/tickos/internal/logging"
	"github.com/fentz26/tickos/internal/models"
	"github.com/fentz26/tickos/internal/scheduler"
)

// DefaultFlushInterval is how long a partial batch waits before it is
// written.
const DefaultFlushInterval = 250 * time.Millisecond

// Sink persists dispatch batches.
type Sink interface {
	WriteDispatches(ctx context.Context, batch []models.Dispatch) error
}

// Recorder implements scheduler.Observer. Observer calls never block: when
// the buffer is full the record is dropped and counted.
type Recorder struct {
	sessionID string
	sink      Sink
	logger    *slog.Logger
	flush     time.Duration
	batchSize int

	ch      chan models.Dispatch
	dropped atomic.Uint64
	written atomic.Uint64

	mu     sync.Mutex
	recent []models.Dispatch
	next   int
	full   bool
}

var _ scheduler.Observer = (*Recorder)(nil)

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger.With("component", "trace")
		}
	}
}

// WithFlushInterval sets the partial batch flush interval.
func WithFlushInterval(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.flush = d
		}
	}
}

// NewRecorder creates a recorder holding up to buffer pending records. sink
// may be nil, in which case records are only kept in the recent ring.
func NewRecorder(sessionID string, sink Sink, buffer int, opts ...Option) *Recorder {
	if buffer < 1 {
		buffer = 1
	}
	r := &Recorder{
		sessionID: sessionID,
		sink:      sink,
		logger:    logging.Discard(),
		flush:     DefaultFlushInterval,
		batchSize: buffer,
		ch:        make(chan models.Dispatch, buffer),
		recent:    make([]models.Dispatch, buffer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TaskRan records a task run.
func (r *Recorder) TaskRan(run scheduler.TaskRun) {
	r.offer(models.Dispatch{
		SessionID: r.sessionID,
		Kind:      models.DispatchTask,
		Ref:       run.Index,
		Name:      run.Name,
		Tick:      run.Tick,
		At:        time.Now().UTC(),
	})
}

// EventFired records an event dispatch.
func (r *Recorder) EventFired(fire scheduler.EventFire) {
	r.offer(models.Dispatch{
		SessionID: r.sessionID,
		Kind:      models.DispatchEvent,
		Ref:       int(fire.ID),
		Name:      fire.Name,
		Tick:      fire.Tick,
		At:        time.Now().UTC(),
	})
}

func (r *Recorder) offer(d models.Dispatch) {
	r.mu.Lock()
	r.recent[r.next] = d
	r.next = (r.next + 1) % len(r.recent)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()

	select {
	case r.ch <- d:
	default:
		r.dropped.Add(1)
	}
}

// Recent returns up to n of the most recent dispatches, newest first.
func (r *Recorder) Recent(n int) []models.Dispatch {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := r.next
	if r.full {
		size = len(r.recent)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]models.Dispatch, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.recent)) % len(r.recent)
		out = append(out, r.recent[idx])
	}
	return out
}

// Dropped returns the number of records that did not fit in the buffer.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Written returns the number of records persisted to the sink.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Run drains the buffer into the sink until ctx is cancelled, then flushes
// what is left and returns nil. Write failures are logged and the batch is
// discarded.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.flush)
	defer ticker.Stop()

	batch := make([]models.Dispatch, 0, r.batchSize)
	for {
		select {
		case <-ctx.Done():
			batch = r.drain(batch)
			r.write(context.Background(), batch)
			r.logger.Info("trace recorder stopped", "written", r.written.Load(), "dropped", r.dropped.Load())
			return nil
		case d := <-r.ch:
			batch = append(batch, d)
			if len(batch) >= r.batchSize {
				batch = r.write(ctx, batch)
			}
		case <-ticker.C:
			batch = r.write(ctx, batch)
		}
	}
}

func (r *Recorder) drain(batch []models.Dispatch) []models.Dispatch {
	for {
		select {
		case d := <-r.ch:
			batch = append(batch, d)
		default:
			return batch
		}
	}
}

func (r *Recorder) write(ctx context.Context, batch []models.Dispatch) []models.Dispatch {
	if len(batch) == 0 || r.sink == nil {
		return batch[:0]
	}
	if err := r.sink.WriteDispatches(ctx, batch); err != nil {
		r.logger.Error("trace write failed", "records", len(batch), "error", err)
	} else {
		r.written.Add(uint64(len(batch)))
	}
	return batch[:0]
}
