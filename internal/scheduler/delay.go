package scheduler

import "fmt"

type delayEntry struct {
	key       uint16
	remaining uint32
	expired   bool
}

// DelayInfo is a copy of one active soft delay.
type DelayInfo struct {
	Key       uint16 `json:"key"`
	Remaining uint32 `json:"remaining"`
	Expired   bool   `json:"expired"`
}

// ArmDelay starts a soft delay of ticks ticks under key. If key is already
// active its countdown is restarted in place. Fails with ErrBusy when every
// delay entry is in use.
//
// A soft delay only counts down; it has no callback. Poll it with DelayDone
// from a periodic task and release it with RemoveDelay once consumed.
func (s *Scheduler) ArmDelay(key uint16, ticks uint32) error {
	if ticks == 0 {
		return fmt.Errorf("arm delay %d for zero ticks: %w", key, ErrInvalidParameter)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.findDelay(key); ok {
		d := s.delays.Get(idx)
		d.remaining = ticks
		d.expired = false
		return nil
	}

	idx, ok := s.delays.Acquire()
	if !ok {
		s.logger.Warn("delay pool exhausted", "key", key, "capacity", s.delays.Cap())
		return fmt.Errorf("arm delay %d: %w", key, ErrBusy)
	}
	d := s.delays.Get(idx)
	d.key = key
	d.remaining = ticks
	return nil
}

// DelayDone reports whether the delay under key has expired. It is false
// for keys that are not active.
func (s *Scheduler) DelayDone(key uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.findDelay(key)
	if !ok {
		return false
	}
	return s.delays.Get(idx).expired
}

// DelayActive reports whether key currently holds a delay entry, expired or
// not.
func (s *Scheduler) DelayActive(key uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.findDelay(key)
	return ok
}

// RemoveDelay returns the delay under key to the free pool. It is a no-op
// for keys that are not active. Expired delays are never reclaimed
// automatically.
func (s *Scheduler) RemoveDelay(key uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.findDelay(key); ok {
		s.delays.Release(idx)
	}
	return nil
}

// Delays returns copies of every active soft delay in list order.
func (s *Scheduler) Delays() []DelayInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []DelayInfo
	s.delays.Each(func(_ int, d *delayEntry) bool {
		out = append(out, DelayInfo{Key: d.key, Remaining: d.remaining, Expired: d.expired})
		return true
	})
	return out
}

func (s *Scheduler) findDelay(key uint16) (int, bool) {
	return s.delays.Find(func(d *delayEntry) bool { return d.key == key })
}

// ageDelays counts every active delay down by one tick, latching expired at
// zero. Caller holds s.mu.
func (s *Scheduler) ageDelays() {
	s.delays.Each(func(_ int, d *delayEntry) bool {
		if d.remaining > 0 {
			d.remaining--
			if d.remaining == 0 {
				d.expired = true
			}
		}
		return true
	})
}
