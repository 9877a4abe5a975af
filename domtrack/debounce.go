package domtrack

import "time"

// scanDebouncer coalesces node-insertion events into scans. A scan runs
// when the window expires after the last event or immediately once
// maxPending events are buffered.
type scanDebouncer struct {
	window     time.Duration
	maxPending int
	pending    int
	timer      *time.Timer
	timerCh    <-chan time.Time
}

func newScanDebouncer(window time.Duration, maxPending int) *scanDebouncer {
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	if maxPending <= 0 {
		maxPending = 256
	}
	return &scanDebouncer{window: window, maxPending: maxPending}
}

// add records one event. It returns true when the buffer is full and the
// caller should scan now.
func (d *scanDebouncer) add() bool {
	d.pending++
	if d.pending >= d.maxPending {
		d.reset()
		return true
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.window)
	d.timerCh = d.timer.C
	return false
}

// timerC fires when the window expires. Nil while nothing is pending.
func (d *scanDebouncer) timerC() <-chan time.Time {
	return d.timerCh
}

// reset clears pending events and stops the timer.
func (d *scanDebouncer) reset() {
	d.pending = 0
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
}
