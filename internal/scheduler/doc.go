// Package scheduler implements a cooperative, tick-driven scheduler: a fixed
// table of periodic tasks, a pool of soft delays and a pool of latched
// events, all sharing one monotonically increasing 32-bit tick counter.
//
// A tick source calls Tick at a fixed frequency. Tick only advances the
// counter and counts soft delays down; it never runs user code. All callbacks
// run on the goroutine that calls Run (or RunOnce), in this order within a
// pass: every triggered and enabled event once, then every due task in index
// order. Callbacks run to completion and are never preempted by another
// callback.
//
// Tick arithmetic is modulo 2^32. A task's elapsed time is computed as an
// unsigned difference, so periods and sleeps keep working across counter
// wraparound as long as they are shorter than 2^32 ticks.
//
// Mutating operations return nil on success or an error wrapping one of the
// sentinel errors in this package. StatusOf maps any such error to the
// numeric Status code used on the wire.
package scheduler
