package watchdog

// Fake is a deterministic watchdog for tests: it never fires on its own.
// The test drives time by calling Fire explicitly after advancing its
// own fake clock, rather than racing a real timer.
type Fake struct {
	armed   bool
	fireAt  Clock
	fn      func()
	history []Clock // every instant ScheduleAt was called with, for assertions
}

// NewFake builds a Fake that will call fn on Fire.
func NewFake(fn func()) *Fake {
	return &Fake{fn: fn}
}

// ScheduleAt records the requested wake-up instant without starting any
// real timer.
func (w *Fake) ScheduleAt(t Clock) {
	w.armed = true
	w.fireAt = t
	w.history = append(w.history, t)
}

// Cancel clears a pending wake-up without firing it.
func (w *Fake) Cancel() {
	w.armed = false
}

// Armed reports whether a wake-up is currently pending.
func (w *Fake) Armed() bool {
	return w.armed
}

// At returns the instant the pending wake-up (if any) was scheduled for.
func (w *Fake) At() (Clock, bool) {
	return w.fireAt, w.armed
}

// Fire invokes the registered callback if a wake-up is pending at or before
// now, disarming it first so a re-entrant ScheduleAt inside fn is not
// immediately clobbered.
func (w *Fake) Fire(now Clock) bool {
	if !w.armed || w.fireAt > now {
		return false
	}
	w.armed = false
	if w.fn != nil {
		w.fn()
	}
	return true
}

// History returns every instant ScheduleAt has been called with, oldest
// first, for tests asserting on watchdog re-arm cadence.
func (w *Fake) History() []Clock {
	return w.history
}
