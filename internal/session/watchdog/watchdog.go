// Package watchdog enforces the two budgets of a supervised agent run:
// total wall-clock time and time since last output. It polls on a fixed
// interval that is much shorter than either budget, so worst-case
// overshoot is bounded by one poll interval.
package watchdog

import (
	"sync"
	"time"
)

// Cause identifies which budget expired.
type Cause int

const (
	CauseNone Cause = iota
	CauseWallClock
	CauseIdle
)

// String returns the cause name.
func (c Cause) String() string {
	switch c {
	case CauseWallClock:
		return "wall_clock"
	case CauseIdle:
		return "idle"
	default:
		return "none"
	}
}

// State is the watchdog lifecycle state.
type State int

const (
	StateIdle State = iota // created, not started
	StateRunning
	StateExpiredWall
	StateExpiredIdle
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateExpiredWall:
		return "expired_wall"
	case StateExpiredIdle:
		return "expired_idle"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds the watchdog's budgets and collaborators.
type Config struct {
	SessionBudget time.Duration
	IdleBudget    time.Duration
	PollInterval  time.Duration

	Tracker *Tracker

	// Exited reports whether the supervised process has already exited.
	// A poll that observes exit stops the watchdog without terminating.
	Exited func() bool

	// Terminate kills the supervised process tree. Invoked at most once,
	// with the budget that expired.
	Terminate func(Cause)
}

// Watchdog polls the two expiry conditions and triggers termination when
// either fires. It never outlives the owning supervisor: Stop is called
// on every supervisor exit path.
type Watchdog struct {
	cfg   Config
	start time.Time

	mu    sync.Mutex
	state State

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Watchdog. Start must be called to begin polling.
func New(cfg Config) *Watchdog {
	return &Watchdog{
		cfg:    cfg,
		state:  StateIdle,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start records the session start time and begins the poll loop.
func (w *Watchdog) Start() {
	w.mu.Lock()
	w.start = time.Now()
	w.state = StateRunning
	w.mu.Unlock()
	go w.run()
}

// Stop cancels the poll loop and waits for it to finish. Idempotent and
// safe to call whether or not the watchdog expired on its own.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

// State returns the current lifecycle state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Watchdog) run() {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if w.cfg.Exited != nil && w.cfg.Exited() {
				w.transition(StateStopped)
				return
			}
			if time.Since(w.start) > w.cfg.SessionBudget {
				if w.transition(StateExpiredWall) {
					w.cfg.Terminate(CauseWallClock)
				}
				return
			}
			if w.cfg.Tracker.IdleFor() > w.cfg.IdleBudget {
				if w.transition(StateExpiredIdle) {
					w.cfg.Terminate(CauseIdle)
				}
				return
			}
		case <-w.stopCh:
			w.transition(StateStopped)
			return
		}
	}
}

// transition moves to a terminal state. Terminal states are sticky:
// once expired or stopped, later transitions are ignored. Reports
// whether the transition took effect.
func (w *Watchdog) transition(to State) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateRunning {
		return false
	}
	w.state = to
	return true
}
