package services

import (
	"sync"
	"time"
)

// debouncedWriter coalesces a burst of triggers into a single flush call.
// Each Trigger restarts the trailing timer; the maxWait ceiling guarantees a
// flush fires even while triggers keep arriving, so a long drag gesture still
// persists periodically instead of only at gesture end.
type debouncedWriter struct {
	mu       sync.Mutex
	interval time.Duration
	maxWait  time.Duration
	flush    func()

	timer    *time.Timer
	deadline time.Time
	stopped  bool
}

func newDebouncedWriter(interval, maxWait time.Duration, flush func()) *debouncedWriter {
	return &debouncedWriter{
		interval: interval,
		maxWait:  maxWait,
		flush:    flush,
	}
}

// Trigger schedules a flush after the quiet interval, extending any pending
// one up to the maxWait deadline of the burst's first trigger.
func (w *debouncedWriter) Trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}

	now := time.Now()
	if w.timer == nil {
		w.deadline = now.Add(w.maxWait)
		w.timer = time.AfterFunc(w.interval, w.fire)
		return
	}

	delay := w.interval
	if remaining := w.deadline.Sub(now); remaining < delay {
		delay = remaining
		if delay < 0 {
			delay = 0
		}
	}
	w.timer.Reset(delay)
}

func (w *debouncedWriter) fire() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.mu.Unlock()

	w.flush()
}

// Flush cancels any pending timer and runs the flush immediately.
func (w *debouncedWriter) Flush() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	w.flush()
}

// Stop cancels any pending flush without running it.
func (w *debouncedWriter) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
