package scheduler

import "fmt"

// taskSlot is either entirely zero or entirely populated.
type taskSlot struct {
	inUse      bool
	enabled    bool
	sleeping   bool
	sleepTicks uint32
	period     uint32
	lastRun    uint32
	fn         TaskFunc
	userdata   any
	name       string
	runs       uint64
}

// TaskInfo is a copy of one live task slot.
type TaskInfo struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	Sleeping   bool   `json:"sleeping"`
	SleepTicks uint32 `json:"sleep_ticks"`
	Period     uint32 `json:"period"`
	LastRun    uint32 `json:"last_run"`
	Runs       uint64 `json:"runs"`
}

// AddTask installs a periodic task at index. The index is both the task's
// identity and its priority: lower indices are checked, and so run, first
// within a pass. The task first becomes due period ticks after it was added,
// then period ticks after each run.
//
// Adding to an index that already holds a task fails with ErrSlotInUse; the
// live task is left untouched.
func (s *Scheduler) AddTask(index int, name string, fn TaskFunc, userdata any, period uint32) error {
	if fn == nil {
		return fmt.Errorf("add task %d: nil callback: %w", index, ErrInvalidParameter)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	// taskCount can drift above the number of live slots (see DeleteTask),
	// so a full count is reported even while free indices remain.
	if s.taskCount > len(s.tasks) {
		return fmt.Errorf("add task %d: %w", index, ErrTableFull)
	}
	t := &s.tasks[index]
	if t.inUse {
		return fmt.Errorf("add task %d: %w", index, ErrSlotInUse)
	}

	*t = taskSlot{
		inUse:    true,
		enabled:  true,
		period:   period,
		lastRun:  s.tick.Load(),
		fn:       fn,
		userdata: userdata,
		name:     name,
	}
	s.taskGen[index]++
	s.taskCount++
	s.logger.Debug("task added", "index", index, "name", name, "period", period)

	s.notify()
	return nil
}

// SuspendTask stops a task from running until ResumeTask.
func (s *Scheduler) SuspendTask(index int) error {
	return s.withTask(index, func(t *taskSlot) error {
		t.enabled = false
		return nil
	})
}

// ResumeTask makes a suspended task eligible again.
func (s *Scheduler) ResumeTask(index int) error {
	err := s.withTask(index, func(t *taskSlot) error {
		t.enabled = true
		return nil
	})
	if err == nil {
		s.notify()
	}
	return err
}

// SleepTask makes a task ineligible for ticks ticks, measured from now
// rather than from its last run.
func (s *Scheduler) SleepTask(index int, ticks uint32) error {
	if ticks == 0 {
		return fmt.Errorf("sleep task %d for zero ticks: %w", index, ErrInvalidParameter)
	}
	return s.withTask(index, func(t *taskSlot) error {
		t.sleeping = true
		t.sleepTicks = ticks
		t.lastRun = s.tick.Load()
		return nil
	})
}

// WakeTask ends a sleep early. The task is considered on the next pass.
func (s *Scheduler) WakeTask(index int) error {
	err := s.withTask(index, func(t *taskSlot) error {
		t.sleeping = false
		t.sleepTicks = 0
		return nil
	})
	if err == nil {
		s.notify()
	}
	return err
}

// ResetTask re-anchors the task's elapsed-time reference to now, so its next
// run is a full period away.
func (s *Scheduler) ResetTask(index int) error {
	return s.withTask(index, func(t *taskSlot) error {
		t.lastRun = s.tick.Load()
		return nil
	})
}

// DeleteTask zeroes the slot at index. Deleting an empty slot is not an
// error.
//
// The live-task count is decremented only when the task was enabled at the
// time of deletion; deleting a suspended task leaves the count unchanged.
func (s *Scheduler) DeleteTask(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	t := &s.tasks[index]
	if t.enabled {
		s.taskCount--
	}
	if t.inUse {
		s.logger.Debug("task deleted", "index", index, "name", t.name)
	}
	*t = taskSlot{}
	return nil
}

// Task returns a copy of the task at index.
func (s *Scheduler) Task(index int) (TaskInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return TaskInfo{}, err
	}
	t := &s.tasks[index]
	if !t.inUse {
		return TaskInfo{}, fmt.Errorf("task %d: %w", index, ErrNotInitialized)
	}
	return t.info(index), nil
}

// Tasks returns copies of every live task in index order.
func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []TaskInfo
	for i := range s.tasks {
		if s.tasks[i].inUse {
			out = append(out, s.tasks[i].info(i))
		}
	}
	return out
}

func (t *taskSlot) info(index int) TaskInfo {
	return TaskInfo{
		Index:      index,
		Name:       t.name,
		Enabled:    t.enabled,
		Sleeping:   t.sleeping,
		SleepTicks: t.sleepTicks,
		Period:     t.period,
		LastRun:    t.lastRun,
		Runs:       t.runs,
	}
}

func (s *Scheduler) checkIndex(index int) error {
	if index < 0 || index >= len(s.tasks) {
		return fmt.Errorf("task index %d out of range [0,%d): %w", index, len(s.tasks), ErrInvalidParameter)
	}
	return nil
}

// withTask runs fn on a live slot under the lock.
func (s *Scheduler) withTask(index int, fn func(*taskSlot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIndex(index); err != nil {
		return err
	}
	t := &s.tasks[index]
	if !t.inUse {
		return fmt.Errorf("task %d: %w", index, ErrNotInitialized)
	}
	return fn(t)
}

// dispatchTasks scans the table once in index order and runs every due task.
// Elapsed time is computed with uint32 subtraction, which stays correct
// across tick counter wraparound.
func (s *Scheduler) dispatchTasks() int {
	ran := 0
	for i := range s.tasks {
		s.mu.Lock()
		t := &s.tasks[i]
		if !t.inUse || !t.enabled {
			s.mu.Unlock()
			continue
		}

		now := s.tick.Load()
		if t.sleeping && now-t.lastRun >= t.sleepTicks {
			t.sleeping = false
			t.sleepTicks = 0
		}
		if t.sleeping || now-t.lastRun < t.period {
			s.mu.Unlock()
			continue
		}

		fn, userdata, name, gen := t.fn, t.userdata, t.name, s.taskGen[i]
		s.currentTask = i
		s.mu.Unlock()

		s.call(fn, userdata, "task", i, "name", name)

		s.mu.Lock()
		// The callback may have deleted or replaced its own slot.
		if t.inUse && s.taskGen[i] == gen {
			t.lastRun = now
			t.runs++
		}
		s.mu.Unlock()

		ran++
		if s.observer != nil {
			s.observer.TaskRan(TaskRun{Index: i, Name: name, Tick: now})
		}
	}
	return ran
}
