// Package pool provides a fixed-capacity slot arena partitioned into a free
// list and an active list.
//
// Slots are addressed by index and linked through an intrusive "next index"
// field, so no slot is ever referenced by pointer outside the arena. Every
// slot is owned by exactly one of the two lists at all times; Acquire moves a
// slot from free to active and Release moves it back. Nothing allocates after
// New returns.
//
// The arena is not safe for concurrent use; callers serialize access.
package pool

import "fmt"

const nilIndex = -1

type slot[T any] struct {
	value  T
	next   int
	active bool
	gen    uint32
}

// Arena is a fixed-capacity pool of T values.
type Arena[T any] struct {
	slots  []slot[T]
	free   int
	active int
	live   int
}

// New creates an arena with the given capacity. All slots start free.
func New[T any](capacity int) *Arena[T] {
	if capacity < 0 {
		capacity = 0
	}
	a := &Arena[T]{slots: make([]slot[T], capacity)}
	a.Reset()
	return a
}

// Reset returns every slot to the free list, zeroing its value. Generation
// counters survive a reset so stale indices held by callers stay detectable.
func (a *Arena[T]) Reset() {
	var zero T
	for i := range a.slots {
		a.slots[i].value = zero
		a.slots[i].active = false
		a.slots[i].next = i + 1
	}
	if n := len(a.slots); n > 0 {
		a.slots[n-1].next = nilIndex
		a.free = 0
	} else {
		a.free = nilIndex
	}
	a.active = nilIndex
	a.live = 0
}

// Acquire pops a slot from the free list and pushes it onto the front of the
// active list. The slot's value is zero. ok is false when the free list is
// empty.
func (a *Arena[T]) Acquire() (idx int, ok bool) {
	if a.free == nilIndex {
		return nilIndex, false
	}
	idx = a.free
	s := &a.slots[idx]
	a.free = s.next

	var zero T
	s.value = zero
	s.active = true
	s.gen++
	s.next = a.active
	a.active = idx
	a.live++
	return idx, true
}

// Release detaches an active slot, zeroes it and pushes it onto the free
// list. It reports false if idx is not currently active.
func (a *Arena[T]) Release(idx int) bool {
	if idx < 0 || idx >= len(a.slots) || !a.slots[idx].active {
		return false
	}

	link := &a.active
	for *link != nilIndex && *link != idx {
		link = &a.slots[*link].next
	}
	if *link == nilIndex {
		return false
	}

	s := &a.slots[idx]
	*link = s.next

	var zero T
	s.value = zero
	s.active = false
	s.next = a.free
	a.free = idx
	a.live--
	return true
}

// Find walks the active list and returns the first slot whose value matches.
func (a *Arena[T]) Find(match func(*T) bool) (int, bool) {
	for i := a.active; i != nilIndex; i = a.slots[i].next {
		if match(&a.slots[i].value) {
			return i, true
		}
	}
	return nilIndex, false
}

// Get returns the value stored at idx, or nil if idx is not active.
func (a *Arena[T]) Get(idx int) *T {
	if idx < 0 || idx >= len(a.slots) || !a.slots[idx].active {
		return nil
	}
	return &a.slots[idx].value
}

// Gen returns the generation of idx. It changes every time the slot is
// acquired.
func (a *Arena[T]) Gen(idx int) uint32 {
	if idx < 0 || idx >= len(a.slots) {
		return 0
	}
	return a.slots[idx].gen
}

// Each calls fn for every active slot in list order until fn returns false.
// fn must not acquire or release slots.
func (a *Arena[T]) Each(fn func(idx int, v *T) bool) {
	for i := a.active; i != nilIndex; i = a.slots[i].next {
		if !fn(i, &a.slots[i].value) {
			return
		}
	}
}

// Len returns the number of active slots.
func (a *Arena[T]) Len() int { return a.live }

// Cap returns the arena capacity.
func (a *Arena[T]) Cap() int { return len(a.slots) }

// Available returns the number of free slots.
func (a *Arena[T]) Available() int { return len(a.slots) - a.live }

// Check verifies that every slot is owned by exactly one list and that the
// live count matches the active list.
func (a *Arena[T]) Check() error {
	seen := make([]uint8, len(a.slots))

	walk := func(head int, mark uint8, wantActive bool) (int, error) {
		n := 0
		for i := head; i != nilIndex; i = a.slots[i].next {
			if i < 0 || i >= len(a.slots) {
				return n, fmt.Errorf("slot index %d out of range", i)
			}
			if seen[i] != 0 {
				return n, fmt.Errorf("slot %d reachable twice", i)
			}
			if a.slots[i].active != wantActive {
				return n, fmt.Errorf("slot %d active=%v on wrong list", i, a.slots[i].active)
			}
			seen[i] = mark
			n++
		}
		return n, nil
	}

	nActive, err := walk(a.active, 1, true)
	if err != nil {
		return fmt.Errorf("active list: %w", err)
	}
	nFree, err := walk(a.free, 2, false)
	if err != nil {
		return fmt.Errorf("free list: %w", err)
	}
	if nActive != a.live {
		return fmt.Errorf("live count %d, active list holds %d", a.live, nActive)
	}
	if nActive+nFree != len(a.slots) {
		return fmt.Errorf("%d slots lost", len(a.slots)-nActive-nFree)
	}
	return nil
}
