package watchdog

import (
	"sync/atomic"
	"time"
)

// Tracker records the timestamp of the most recently observed agent
// output. The drain loop is the only writer and the watchdog the only
// reader, so a single atomic scalar is all the synchronization needed.
type Tracker struct {
	lastNano atomic.Int64
}

// NewTracker creates a Tracker with last activity set to now, so a
// child that never produces output still starts its idle clock at spawn.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.Touch()
	return t
}

// Touch records activity. Called once per observed output line, whether
// or not the line decodes to an event.
func (t *Tracker) Touch() {
	t.lastNano.Store(time.Now().UnixNano())
}

// IdleFor returns the elapsed time since the last recorded activity.
func (t *Tracker) IdleFor() time.Duration {
	return time.Since(time.Unix(0, t.lastNano.Load()))
}

// LastActivity returns the last recorded activity timestamp.
func (t *Tracker) LastActivity() time.Time {
	return time.Unix(0, t.lastNano.Load())
}
