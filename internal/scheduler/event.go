package scheduler

import "fmt"

type eventEntry struct {
	id        uint16
	name      string
	enabled   bool
	inUse     bool
	triggered bool
	fn        EventFunc
	userdata  any
	fires     uint64
}

// EventInfo is a copy of one registered event.
type EventInfo struct {
	ID        uint16 `json:"id"`
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Triggered bool   `json:"triggered"`
	Fires     uint64 `json:"fires"`
}

// RegisterEvent registers fn under id. Registering an id that already exists
// replaces its callback and userdata and re-arms it: enabled, not
// triggered. Fails with ErrBusy when the event pool is exhausted.
func (s *Scheduler) RegisterEvent(id uint16, name string, fn EventFunc, userdata any) error {
	if fn == nil {
		return fmt.Errorf("register event %d: nil callback: %w", id, ErrInvalidParameter)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.findEvent(id); ok {
		e := s.events.Get(idx)
		e.name = name
		e.fn = fn
		e.userdata = userdata
		e.enabled = true
		e.triggered = false
		e.inUse = true
		return nil
	}

	idx, ok := s.events.Acquire()
	if !ok {
		s.logger.Warn("event pool exhausted", "id", id, "capacity", s.events.Cap())
		return fmt.Errorf("register event %d: %w", id, ErrBusy)
	}
	*s.events.Get(idx) = eventEntry{
		id:       id,
		name:     name,
		enabled:  true,
		inUse:    true,
		fn:       fn,
		userdata: userdata,
	}
	s.logger.Debug("event registered", "id", id, "name", name)
	return nil
}

// DeleteEvent unregisters id, discarding any pending trigger. It is a no-op
// for unknown ids.
func (s *Scheduler) DeleteEvent(id uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.findEvent(id); ok {
		s.events.Release(idx)
		s.logger.Debug("event deleted", "id", id)
	}
	return nil
}

// TriggerEvent latches id so its callback runs once on the next pass.
// Triggering an already pending event has no further effect. Fails with
// ErrNotFound for unknown ids.
func (s *Scheduler) TriggerEvent(id uint16) error {
	err := s.withEvent(id, func(e *eventEntry) {
		e.triggered = true
	})
	if err == nil {
		s.notify()
	}
	return err
}

// SuspendEvent stops id from being dispatched. A pending trigger is kept and
// fires after ResumeEvent.
func (s *Scheduler) SuspendEvent(id uint16) error {
	return s.withEvent(id, func(e *eventEntry) {
		e.enabled = false
	})
}

// ResumeEvent re-enables a suspended event.
func (s *Scheduler) ResumeEvent(id uint16) error {
	err := s.withEvent(id, func(e *eventEntry) {
		e.enabled = true
	})
	if err == nil {
		s.notify()
	}
	return err
}

// Event returns a copy of the event registered under id.
func (s *Scheduler) Event(id uint16) (EventInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.findEvent(id)
	if !ok {
		return EventInfo{}, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	return s.events.Get(idx).info(), nil
}

// Events returns copies of every registered event in dispatch order.
func (s *Scheduler) Events() []EventInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []EventInfo
	s.events.Each(func(_ int, e *eventEntry) bool {
		out = append(out, e.info())
		return true
	})
	return out
}

func (e *eventEntry) info() EventInfo {
	return EventInfo{
		ID:        e.id,
		Name:      e.name,
		Enabled:   e.enabled,
		Triggered: e.triggered,
		Fires:     e.fires,
	}
}

func (s *Scheduler) findEvent(id uint16) (int, bool) {
	return s.events.Find(func(e *eventEntry) bool { return e.id == id })
}

func (s *Scheduler) withEvent(id uint16, fn func(*eventEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.findEvent(id)
	if !ok {
		return fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	fn(s.events.Get(idx))
	return nil
}

// eventRef pins an event slot to the generation it had when a pass began.
type eventRef struct {
	idx int
	gen uint32
}

// dispatchEvents runs every enabled, triggered event once and clears its
// latch. The active list is walked from a snapshot taken at the start of the
// pass, so callbacks may register or delete events freely; entries added
// during the pass are first considered on the next one, even when they reuse
// a slot freed earlier in the same pass.
func (s *Scheduler) dispatchEvents() int {
	s.mu.Lock()
	s.eventScratch = s.eventScratch[:0]
	s.events.Each(func(idx int, _ *eventEntry) bool {
		s.eventScratch = append(s.eventScratch, eventRef{idx: idx, gen: s.events.Gen(idx)})
		return true
	})
	s.mu.Unlock()

	ran := 0
	for _, ref := range s.eventScratch {
		idx, gen := ref.idx, ref.gen
		s.mu.Lock()
		e := s.events.Get(idx)
		if e == nil || s.events.Gen(idx) != gen || !e.inUse || !e.enabled || !e.triggered {
			s.mu.Unlock()
			continue
		}
		fn, userdata, id, name := e.fn, e.userdata, e.id, e.name
		s.currentEvent = id
		s.mu.Unlock()

		s.call(fn, userdata, "event", id, "name", name)

		s.mu.Lock()
		// Skip the bookkeeping if the callback deleted its own entry.
		if e := s.events.Get(idx); e != nil && s.events.Gen(idx) == gen {
			e.triggered = false
			e.fires++
		}
		now := s.tick.Load()
		s.mu.Unlock()

		ran++
		if s.observer != nil {
			s.observer.EventFired(EventFire{ID: id, Name: name, Tick: now})
		}
	}
	return ran
}
