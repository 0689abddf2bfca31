package world

import (
	"cmp"
	"slices"
)

type timer struct {
	due uint64
	seq uint64
	fn  func()
}

// After runs fn on the world lane once delay ticks have passed. A delay of
// zero runs on the next tick. It must only be called from the world lane.
func (w *World) After(delay uint64, fn func()) {
	w.timerSeq++
	w.timers = append(w.timers, timer{
		due: w.tick.Load() + max(delay, 1),
		seq: w.timerSeq,
		fn:  fn,
	})
}

// runTimers fires every due timer in due order. Timers armed while firing
// wait for a later tick.
func (w *World) runTimers() {
	now := w.tick.Load()

	var due []timer
	pending := w.timers[:0]
	for _, t := range w.timers {
		if t.due <= now {
			due = append(due, t)
		} else {
			pending = append(pending, t)
		}
	}
	clear(w.timers[len(pending):])
	w.timers = pending

	slices.SortFunc(due, func(a, b timer) int {
		return cmp.Or(cmp.Compare(a.due, b.due), cmp.Compare(a.seq, b.seq))
	})
	for _, t := range due {
		t.fn()
	}
}
