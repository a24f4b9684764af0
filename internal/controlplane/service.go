// Package controlplane provides the HTTP API and service layer for tickos.
package controlplane

import (
	"fmt"
	"time"

	"github.com/fentz26/tickos/internal/actions"
	"github.com/fentz26/tickos/internal/audit"
	"github.com/fentz26/tickos/internal/config"
	"github.com/fentz26/tickos/internal/models"
	"github.com/fentz26/tickos/internal/scheduler"
	"github.com/fentz26/tickos/internal/store"
	"github.com/fentz26/tickos/internal/trace"
)

// TickCounter reports tick source progress.
type TickCounter interface {
	Count() uint64
	Skipped() uint64
}

// Service provides the control plane business logic. Durations cross the
// API in milliseconds and are converted to ticks here.
type Service struct {
	sched   *scheduler.Scheduler
	cfg     *config.Config
	store   *store.Store
	pdr     *audit.PDRWriter
	rec     *trace.Recorder
	actions *actions.Builder
	ticks   TickCounter
	session *models.Session
	started time.Time
}

// ServiceOption configures optional Service dependencies.
type ServiceOption func(*Service)

// WithStore enables persisted trace and audit queries. pdr may be nil.
func WithStore(st *store.Store, pdr *audit.PDRWriter) ServiceOption {
	return func(s *Service) {
		s.store = st
		s.pdr = pdr
	}
}

// WithRecorder exposes the in-memory trace ring.
func WithRecorder(rec *trace.Recorder) ServiceOption {
	return func(s *Service) { s.rec = rec }
}

// WithActions exposes action counters.
func WithActions(b *actions.Builder) ServiceOption {
	return func(s *Service) { s.actions = b }
}

// WithTickCounter exposes tick source progress.
func WithTickCounter(tc TickCounter) ServiceOption {
	return func(s *Service) { s.ticks = tc }
}

// WithSession tags status with the daemon session.
func WithSession(sess *models.Session) ServiceOption {
	return func(s *Service) { s.session = sess }
}

// NewService creates a new control plane service.
func NewService(sched *scheduler.Scheduler, cfg *config.Config, opts ...ServiceOption) *Service {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	s := &Service{
		sched:   sched,
		cfg:     cfg,
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- Status ---

// StatusReport summarizes the running daemon.
type StatusReport struct {
	SessionID      string          `json:"session_id,omitempty"`
	FreqHz         int             `json:"freq_hz"`
	Uptime         string          `json:"uptime"`
	TickMs         uint64          `json:"tick_ms"`
	Scheduler      scheduler.Stats `json:"scheduler"`
	TicksDelivered uint64          `json:"ticks_delivered"`
	TicksSkipped   uint64          `json:"ticks_skipped"`
	TraceWritten   uint64          `json:"trace_written"`
	TraceDropped   uint64          `json:"trace_dropped"`
}

// Status returns the current status report.
func (s *Service) Status() StatusReport {
	stats := s.sched.Stats()
	r := StatusReport{
		FreqHz:    s.cfg.FreqHz,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		TickMs:    s.cfg.TicksToMs(stats.Tick),
		Scheduler: stats,
	}
	if s.session != nil {
		r.SessionID = s.session.ID
	}
	if s.ticks != nil {
		r.TicksDelivered = s.ticks.Count()
		r.TicksSkipped = s.ticks.Skipped()
	}
	if s.rec != nil {
		r.TraceWritten = s.rec.Written()
		r.TraceDropped = s.rec.Dropped()
	}
	return r
}

// --- Task Operations ---

// TaskView is a task with its timing also expressed in milliseconds.
type TaskView struct {
	scheduler.TaskInfo
	PeriodMs uint64 `json:"period_ms"`
	IdleMs   uint64 `json:"idle_ms"`
}

// ListTasks returns every live task.
func (s *Service) ListTasks() []TaskView {
	now := s.sched.Now()
	infos := s.sched.Tasks()
	out := make([]TaskView, 0, len(infos))
	for _, ti := range infos {
		out = append(out, TaskView{
			TaskInfo: ti,
			PeriodMs: s.cfg.TicksToMs(ti.Period),
			IdleMs:   s.cfg.TicksToMs(now - ti.LastRun),
		})
	}
	return out
}

// GetTask returns one task.
func (s *Service) GetTask(index int) (*TaskView, error) {
	ti, err := s.sched.Task(index)
	if err != nil {
		return nil, err
	}
	return &TaskView{
		TaskInfo: ti,
		PeriodMs: s.cfg.TicksToMs(ti.Period),
		IdleMs:   s.cfg.TicksToMs(s.sched.Now() - ti.LastRun),
	}, nil
}

// SuspendTask suspends the task at index.
func (s *Service) SuspendTask(index int) error {
	return s.audited("task.suspend", taskTarget(index), map[string]int{"index": index},
		s.sched.SuspendTask(index))
}

// ResumeTask resumes the task at index.
func (s *Service) ResumeTask(index int) error {
	return s.audited("task.resume", taskTarget(index), map[string]int{"index": index},
		s.sched.ResumeTask(index))
}

// SleepTask puts the task at index to sleep for ms milliseconds.
func (s *Service) SleepTask(index int, ms uint32) error {
	ticks := s.cfg.MsToTicks(ms)
	return s.audited("task.sleep", taskTarget(index), map[string]any{"index": index, "ms": ms, "ticks": ticks},
		s.sched.SleepTask(index, ticks))
}

// WakeTask ends a sleep early.
func (s *Service) WakeTask(index int) error {
	return s.audited("task.wake", taskTarget(index), map[string]int{"index": index},
		s.sched.WakeTask(index))
}

// ResetTask re-anchors the task's period to now.
func (s *Service) ResetTask(index int) error {
	return s.audited("task.reset", taskTarget(index), map[string]int{"index": index},
		s.sched.ResetTask(index))
}

// DeleteTask removes the task at index.
func (s *Service) DeleteTask(index int) error {
	return s.audited("task.delete", taskTarget(index), map[string]int{"index": index},
		s.sched.DeleteTask(index))
}

// --- Event Operations ---

// ListEvents returns every registered event.
func (s *Service) ListEvents() []scheduler.EventInfo {
	return s.sched.Events()
}

// GetEvent returns one event.
func (s *Service) GetEvent(id uint16) (*scheduler.EventInfo, error) {
	ei, err := s.sched.Event(id)
	if err != nil {
		return nil, err
	}
	return &ei, nil
}

// TriggerEvent latches the event for the next pass.
func (s *Service) TriggerEvent(id uint16) error {
	return s.audited("event.trigger", eventTarget(id), map[string]uint16{"id": id},
		s.sched.TriggerEvent(id))
}

// SuspendEvent suspends the event.
func (s *Service) SuspendEvent(id uint16) error {
	return s.audited("event.suspend", eventTarget(id), map[string]uint16{"id": id},
		s.sched.SuspendEvent(id))
}

// ResumeEvent resumes the event.
func (s *Service) ResumeEvent(id uint16) error {
	return s.audited("event.resume", eventTarget(id), map[string]uint16{"id": id},
		s.sched.ResumeEvent(id))
}

// DeleteEvent unregisters the event. Unknown ids are not an error.
func (s *Service) DeleteEvent(id uint16) error {
	return s.audited("event.delete", eventTarget(id), map[string]uint16{"id": id},
		s.sched.DeleteEvent(id))
}

// --- Delay Operations ---

// ListDelays returns every active soft delay.
func (s *Service) ListDelays() []scheduler.DelayInfo {
	return s.sched.Delays()
}

// GetDelay returns the soft delay under key.
func (s *Service) GetDelay(key uint16) (*scheduler.DelayInfo, error) {
	for _, d := range s.sched.Delays() {
		if d.Key == key {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("delay %d: %w", key, ErrNotFound)
}

// ArmDelay arms (or re-arms) the soft delay under key for ms milliseconds.
func (s *Service) ArmDelay(key uint16, ms uint32) error {
	ticks := s.cfg.MsToTicks(ms)
	return s.audited("delay.arm", delayTarget(key), map[string]any{"key": key, "ms": ms, "ticks": ticks},
		s.sched.ArmDelay(key, ticks))
}

// RemoveDelay releases the soft delay under key.
func (s *Service) RemoveDelay(key uint16) error {
	return s.audited("delay.remove", delayTarget(key), map[string]uint16{"key": key},
		s.sched.RemoveDelay(key))
}

// --- Trace and Audit ---

// ListTrace returns recent dispatches, from the store when persistence is
// enabled and from the recorder's ring otherwise.
func (s *Service) ListTrace(f store.DispatchFilter) ([]models.Dispatch, error) {
	if s.store != nil {
		if f.SessionID == "" && s.session != nil {
			f.SessionID = s.session.ID
		}
		return s.store.ListDispatches(f)
	}
	if s.rec == nil {
		return nil, ErrNoStore
	}
	var out []models.Dispatch
	for _, d := range s.rec.Recent(0) {
		if f.Kind != "" && d.Kind != f.Kind {
			continue
		}
		if f.Ref != nil && d.Ref != *f.Ref {
			continue
		}
		out = append(out, d)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// ListAudit returns recent audit entries.
func (s *Service) ListAudit(limit int) ([]models.PDREntry, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.ListPDR(limit)
}

// ListSessions returns recent daemon sessions.
func (s *Service) ListSessions(limit int) ([]models.Session, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.ListSessions(limit)
}

// ListActions returns the counters of configured actions.
func (s *Service) ListActions() []actions.StateInfo {
	if s.actions == nil {
		return []actions.StateInfo{}
	}
	return s.actions.States()
}

// audited records op's outcome and passes err through.
func (s *Service) audited(action, target string, inputs any, err error) error {
	if s.pdr != nil {
		details := ""
		if err != nil {
			details = err.Error()
		}
		s.pdr.RecordBestEffort(action, inputs, scheduler.StatusOf(err).String(), target, details)
	}
	return err
}

func taskTarget(index int) string   { return fmt.Sprintf("task/%d", index) }
func eventTarget(id uint16) string  { return fmt.Sprintf("event/%d", id) }
func delayTarget(key uint16) string { return fmt.Sprintf("delay/%d", key) }
