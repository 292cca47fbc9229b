// Package supervisor owns the full lifecycle of one agent subprocess:
// spawn in an isolated process group, drain and decode its output stream,
// enforce the dual watchdog budgets, and guarantee teardown of the whole
// process tree on every exit path.
package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pilot/internal/session/decoder"
	"pilot/internal/session/eventlog"
	"pilot/internal/session/watchdog"
)

// Status is the terminal status of a supervised run.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusKilled
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// Cause classifies why a run did not succeed.
type Cause int

const (
	CauseNone Cause = iota
	CauseWallClock
	CauseIdle
	CauseCancelled
	CauseExitCode
	CauseResultError
	CauseSignal
	CauseNoResult
)

// String returns the cause name.
func (c Cause) String() string {
	switch c {
	case CauseWallClock:
		return "wall_clock"
	case CauseIdle:
		return "idle"
	case CauseCancelled:
		return "cancelled"
	case CauseExitCode:
		return "exit_code"
	case CauseResultError:
		return "result_error"
	case CauseSignal:
		return "signal"
	case CauseNoResult:
		return "no_result"
	default:
		return "none"
	}
}

// Defaults applied when the corresponding Config field is zero.
const (
	DefaultSessionBudget = 60 * time.Minute
	DefaultIdleBudget    = 30 * time.Minute
	DefaultPollInterval  = 15 * time.Second
	DefaultDrainInterval = 300 * time.Millisecond
	DefaultKillGrace     = time.Second
)

// Config describes one supervised subprocess run.
type Config struct {
	Command string
	Args    []string
	Dir     string
	Env     map[string]string

	// Stdin is piped to the child. Ignored in PTY mode, where input
	// must travel as command arguments instead.
	Stdin io.Reader

	// UsePTY runs the child under a pseudo-terminal so line-buffered
	// CLIs flush promptly. No-op on Windows.
	UsePTY bool

	// RawOutputPath receives the child's combined output verbatim.
	// The drain loop tails this file.
	RawOutputPath string

	// Log receives every decoded event in arrival order.
	Log *eventlog.Log

	// OnEvent, if set, is called for each decoded event after it is
	// appended to the log. Presentation only.
	OnEvent func(decoder.Event)

	SessionBudget time.Duration
	IdleBudget    time.Duration
	PollInterval  time.Duration
	DrainInterval time.Duration
	KillGrace     time.Duration

	Logger zerolog.Logger
}

// Outcome is the classified result of a supervised run.
type Outcome struct {
	Status       Status
	Cause        Cause
	ExitCode     int
	InputTokens  int64
	OutputTokens int64
}

// Run executes one supervised subprocess to completion. It blocks until
// the child has exited, its output is fully drained, and all resources
// are released. Failures of the child are reported in the Outcome; the
// returned error covers only setup problems (spawn, log I/O).
func Run(ctx context.Context, cfg Config) (Outcome, error) {
	cfg = withDefaults(cfg)

	out, err := os.OpenFile(cfg.RawOutputPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return Outcome{}, fmt.Errorf("open raw output file: %w", err)
	}

	handle, err := startProcess(cfg, out)
	if err != nil {
		out.Close()
		return Outcome{}, fmt.Errorf("start agent process: %w", err)
	}

	s := &supervisor{
		cfg:      cfg,
		handle:   handle,
		tracker:  watchdog.NewTracker(),
		exitedCh: make(chan struct{}),
	}
	s.dog = watchdog.New(watchdog.Config{
		SessionBudget: cfg.SessionBudget,
		IdleBudget:    cfg.IdleBudget,
		PollInterval:  cfg.PollInterval,
		Tracker:       s.tracker,
		Exited:        s.hasExited,
		Terminate: func(c watchdog.Cause) {
			if c == watchdog.CauseIdle {
				s.kill(CauseIdle)
			} else {
				s.kill(CauseWallClock)
			}
		},
	})

	// Reap the child as soon as it exits, on any path.
	go func() {
		err := handle.wait()
		s.mu.Lock()
		s.exited = true
		s.waitErr = err
		s.mu.Unlock()
		close(s.exitedCh)
	}()

	s.dog.Start()
	defer s.cleanup()

	s.drain(ctx)
	s.cleanup()

	return s.classify(), nil
}

type supervisor struct {
	cfg     Config
	handle  *procHandle
	tracker *watchdog.Tracker
	dog     *watchdog.Watchdog

	mu       sync.Mutex
	exited   bool
	waitErr  error
	cause    Cause // set by the first kill, never overwritten
	exitedCh chan struct{}

	terminal  *decoder.TerminalResultData
	sumInput  int64
	sumOutput int64

	cleanupOnce sync.Once
}

func (s *supervisor) hasExited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited
}

// kill terminates the process tree once. When the child has already
// exited, the kill is a no-op and the natural exit wins the race.
func (s *supervisor) kill(cause Cause) {
	s.mu.Lock()
	if s.exited || s.cause != CauseNone {
		s.mu.Unlock()
		return
	}
	s.cause = cause
	s.mu.Unlock()

	s.cfg.Logger.Warn().Str("cause", cause.String()).Msg("terminating agent process tree")
	s.handle.terminateTree(s.cfg.KillGrace, s.exitedCh)
}

// drain tails the raw output file until the child has exited and no
// buffered output remains. These are checked as a combined condition:
// output may arrive in a final burst after exit is observed.
func (s *supervisor) drain(ctx context.Context) {
	in, err := os.Open(s.cfg.RawOutputPath)
	if err != nil {
		s.cfg.Logger.Error().Err(err).Msg("open raw output for draining")
		<-s.exitedCh
		return
	}
	defer in.Close()

	reader := bufio.NewReader(in)
	var partial []byte
	cancelled := false

	for {
		if s.drainAvailable(reader, &partial) > 0 {
			continue
		}
		if s.hasExited() {
			// Give a PTY copier a moment to flush the final burst.
			select {
			case <-s.handle.outputDone():
			case <-time.After(s.cfg.KillGrace):
			}
			if s.drainAvailable(reader, &partial) == 0 {
				return
			}
			continue
		}
		if cancelled {
			time.Sleep(s.cfg.DrainInterval)
			continue
		}
		select {
		case <-time.After(s.cfg.DrainInterval):
		case <-ctx.Done():
			cancelled = true
			s.kill(CauseCancelled)
		}
	}
}

// drainAvailable reads all currently buffered complete lines, feeding
// each non-empty one through the tracker and decoder. Returns the number
// of bytes consumed, including any partial line carried over.
func (s *supervisor) drainAvailable(r *bufio.Reader, partial *[]byte) int {
	n := 0
	for {
		line, err := r.ReadBytes('\n')
		n += len(line)
		if err != nil {
			// Partial data (no trailing newline yet) — accumulate.
			*partial = append(*partial, line...)
			return n
		}
		if len(*partial) > 0 {
			line = append(*partial, line...)
			*partial = nil
		}
		s.handleLine(line)
	}
}

func (s *supervisor) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	s.tracker.Touch()

	ev, ok := decoder.Decode(line)
	if !ok {
		return
	}
	if err := s.cfg.Log.Append(ev); err != nil {
		s.cfg.Logger.Warn().Err(err).Msg("append event to log")
	}

	switch data := ev.Data.(type) {
	case decoder.AssistantMessageData:
		s.sumInput += data.InputTokens
		s.sumOutput += data.OutputTokens
	case decoder.TerminalResultData:
		s.terminal = &data
	}

	if s.cfg.OnEvent != nil {
		s.cfg.OnEvent(ev)
	}
}

// cleanup releases everything, on every exit path. Idempotent: the kill
// race between watchdog expiry, caller cancellation, and natural exit
// converges here and whichever came first already won.
func (s *supervisor) cleanup() {
	s.cleanupOnce.Do(func() {
		s.dog.Stop()
		if !s.hasExited() {
			s.handle.terminateTree(s.cfg.KillGrace, s.exitedCh)
		}
		<-s.exitedCh
		s.handle.closeIO()
	})
}

func (s *supervisor) classify() Outcome {
	s.mu.Lock()
	cause, waitErr := s.cause, s.waitErr
	s.mu.Unlock()

	exitCode, signaled := exitInfo(waitErr)
	o := Outcome{ExitCode: exitCode}

	// The terminal result's counts are authoritative; fall back to the
	// per-message sums when the run died before reporting one.
	if s.terminal != nil {
		o.InputTokens = s.terminal.InputTokens
		o.OutputTokens = s.terminal.OutputTokens
	} else {
		o.InputTokens = s.sumInput
		o.OutputTokens = s.sumOutput
	}

	switch {
	case cause != CauseNone:
		o.Status, o.Cause = StatusKilled, cause
	case signaled:
		o.Status, o.Cause = StatusKilled, CauseSignal
	case waitErr != nil:
		o.Status, o.Cause = StatusFailure, CauseExitCode
	case s.terminal != nil && s.terminal.IsError:
		o.Status, o.Cause = StatusFailure, CauseResultError
	case s.terminal != nil:
		o.Status = StatusSuccess
	default:
		// Exit 0 without a terminal result: the agent never finished
		// its protocol, so the run cannot be trusted as complete.
		o.Status, o.Cause = StatusFailure, CauseNoResult
	}
	return o
}

func withDefaults(cfg Config) Config {
	if cfg.SessionBudget <= 0 {
		cfg.SessionBudget = DefaultSessionBudget
	}
	if cfg.IdleBudget <= 0 {
		cfg.IdleBudget = DefaultIdleBudget
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = DefaultDrainInterval
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = DefaultKillGrace
	}
	return cfg
}

// exitInfo extracts the exit code and whether the process died to a
// signal. A nil error means a clean zero exit.
func exitInfo(err error) (code int, signaled bool) {
	if err == nil {
		return 0, false
	}
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return -1, false
	}
	return ee.ExitCode(), exitedOnSignal(ee)
}

// buildEnv merges extra variables over the inherited environment.
func buildEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return nil // inherit as-is
	}
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = setEnv(env, k, extra[k])
	}
	return env
}

// setEnv sets or replaces an environment variable in the env slice.
func setEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, e := range env {
		if strings.HasPrefix(e, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}
