// Package actions turns declarative task and event definitions into
// scheduler callbacks.
package actions

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/fentz26/tickos/internal/config"
	"github.com/fentz26/tickos/internal/logging"
	"github.com/fentz26/tickos/internal/scheduler"
)

// Action kinds.
const (
	KindLog     = "log"
	KindTrigger = "trigger"
	KindBlink   = "blink"
	KindCounter = "counter"
	KindNap     = "nap"
)

// allowedKinds maps each kind to whether it may back an event. nap sleeps
// its own task slot and has no meaning for an event.
var allowedKinds = map[string]bool{
	KindLog:     true,
	KindTrigger: true,
	KindBlink:   true,
	KindCounter: true,
	KindNap:     false,
}

// Host is the part of the scheduler an action may call back into.
type Host interface {
	Now() uint32
	TriggerEvent(id uint16) error
	ArmDelay(key uint16, ticks uint32) error
	DelayDone(key uint16) bool
	DelayActive(key uint16) bool
	RemoveDelay(key uint16) error
	SleepTask(index int, ticks uint32) error
}

// Installer is the part of the scheduler Install needs.
type Installer interface {
	Host
	AddTask(index int, name string, fn scheduler.TaskFunc, userdata any, period uint32) error
	RegisterEvent(id uint16, name string, fn scheduler.EventFunc, userdata any) error
}

// State is the userdata handed to every callback built here. Counters are
// written on the scheduler goroutine and read from anywhere.
type State struct {
	Owner string
	Name  string
	Kind  string

	spec  config.ActionSpec
	index int

	runs   atomic.Uint64
	errors atomic.Uint64
	on     atomic.Bool
	armed  atomic.Bool
}

// StateInfo is a point-in-time copy of a State.
type StateInfo struct {
	Owner  string `json:"owner"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Runs   uint64 `json:"runs"`
	Errors uint64 `json:"errors"`
	On     bool   `json:"on"`
}

// Snapshot copies the current counters.
func (s *State) Snapshot() StateInfo {
	return StateInfo{
		Owner:  s.Owner,
		Name:   s.Name,
		Kind:   s.Kind,
		Runs:   s.runs.Load(),
		Errors: s.errors.Load(),
		On:     s.on.Load(),
	}
}

// Builder builds callbacks bound to one scheduler.
type Builder struct {
	host    Host
	toTicks func(ms uint32) uint32
	logger  *slog.Logger

	mu     sync.Mutex
	states map[string]*State
}

// NewBuilder creates a builder. toTicks converts action durations from
// milliseconds to scheduler ticks.
func NewBuilder(host Host, toTicks func(ms uint32) uint32, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Builder{
		host:    host,
		toTicks: toTicks,
		logger:  logger.With("component", "actions"),
		states:  make(map[string]*State),
	}
}

// Task builds the callback and userdata for a task definition.
func (b *Builder) Task(spec config.TaskSpec) (scheduler.TaskFunc, *State, error) {
	if _, ok := allowedKinds[spec.Action.Kind]; !ok {
		return nil, nil, fmt.Errorf("task %q: unknown action kind %q", spec.Name, spec.Action.Kind)
	}
	st := &State{
		Owner: fmt.Sprintf("task/%d", spec.Index),
		Name:  spec.Name,
		Kind:  spec.Action.Kind,
		spec:  spec.Action,
		index: spec.Index,
	}
	if err := b.check(st); err != nil {
		return nil, nil, fmt.Errorf("task %q: %w", spec.Name, err)
	}
	b.remember(st)
	return b.run, st, nil
}

// Event builds the callback and userdata for an event definition.
func (b *Builder) Event(spec config.EventSpec) (scheduler.EventFunc, *State, error) {
	eventOK, known := allowedKinds[spec.Action.Kind]
	if !known {
		return nil, nil, fmt.Errorf("event %q: unknown action kind %q", spec.Name, spec.Action.Kind)
	}
	if !eventOK {
		return nil, nil, fmt.Errorf("event %q: action kind %q is only valid for tasks", spec.Name, spec.Action.Kind)
	}
	st := &State{
		Owner: fmt.Sprintf("event/%d", spec.ID),
		Name:  spec.Name,
		Kind:  spec.Action.Kind,
		spec:  spec.Action,
		index: -1,
	}
	if err := b.check(st); err != nil {
		return nil, nil, fmt.Errorf("event %q: %w", spec.Name, err)
	}
	b.remember(st)
	return b.run, st, nil
}

func (b *Builder) check(st *State) error {
	switch st.Kind {
	case KindBlink, KindNap:
		if st.spec.DurationMs == 0 {
			return fmt.Errorf("%s action needs duration_ms", st.Kind)
		}
	}
	return nil
}

func (b *Builder) remember(st *State) {
	b.mu.Lock()
	b.states[st.Owner] = st
	b.mu.Unlock()
}

// Install builds and installs every task and event in cfg. Events are
// registered first so trigger actions find their targets from the first
// pass.
func (b *Builder) Install(sched Installer, cfg *config.Config) error {
	for _, es := range cfg.Events {
		fn, st, err := b.Event(es)
		if err != nil {
			return err
		}
		if err := sched.RegisterEvent(es.ID, es.Name, fn, st); err != nil {
			return fmt.Errorf("register event %q: %w", es.Name, err)
		}
	}
	for _, ts := range cfg.Tasks {
		fn, st, err := b.Task(ts)
		if err != nil {
			return err
		}
		if err := sched.AddTask(ts.Index, ts.Name, fn, st, b.toTicks(ts.PeriodMs)); err != nil {
			return fmt.Errorf("add task %q: %w", ts.Name, err)
		}
	}
	b.logger.Info("actions installed", "tasks", len(cfg.Tasks), "events", len(cfg.Events))
	return nil
}

// States returns snapshots of every action built so far, ordered by owner.
func (b *Builder) States() []StateInfo {
	b.mu.Lock()
	out := make([]StateInfo, 0, len(b.states))
	for _, st := range b.states {
		out = append(out, st.Snapshot())
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out
}

// run is the single callback shared by every action; the State passed as
// userdata selects the behavior.
func (b *Builder) run(userdata any) {
	st, ok := userdata.(*State)
	if !ok {
		b.logger.Error("callback userdata is not an action state", "type", fmt.Sprintf("%T", userdata))
		return
	}
	st.runs.Add(1)

	var err error
	switch st.Kind {
	case KindLog:
		msg := st.spec.Message
		if msg == "" {
			msg = st.Name
		}
		b.logger.Info(msg, "owner", st.Owner, "tick", b.host.Now())
	case KindCounter:
		b.logger.Debug("count", "owner", st.Owner, "runs", st.runs.Load())
	case KindTrigger:
		err = b.host.TriggerEvent(st.spec.Event)
	case KindBlink:
		err = b.blink(st)
	case KindNap:
		err = b.host.SleepTask(st.index, b.napTicks(st))
	}

	if err != nil {
		st.errors.Add(1)
		b.logger.Warn("action failed", "owner", st.Owner, "kind", st.Kind,
			"status", scheduler.StatusOf(err).String(), "error", err)
	}
}

// blink toggles its output each time its soft delay expires. The first run
// arms the delay; the delay entry is re-armed in place so it stays owned by
// this action. A delay removed from outside is armed again from scratch.
func (b *Builder) blink(st *State) error {
	key := st.spec.DelayKey
	if !st.armed.Load() || !b.host.DelayActive(key) {
		if err := b.host.ArmDelay(key, b.napTicks(st)); err != nil {
			return err
		}
		st.armed.Store(true)
		return nil
	}
	if !b.host.DelayDone(key) {
		return nil
	}
	st.on.Store(!st.on.Load())
	return b.host.ArmDelay(key, b.napTicks(st))
}

func (b *Builder) napTicks(st *State) uint32 {
	t := b.toTicks(st.spec.DurationMs)
	if t == 0 {
		t = 1
	}
	return t
}

// Release frees the soft delays owned by blink actions.
func (b *Builder) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, st := range b.states {
		if st.Kind == KindBlink && st.armed.Load() {
			_ = b.host.RemoveDelay(st.spec.DelayKey)
			st.armed.Store(false)
		}
	}
}
