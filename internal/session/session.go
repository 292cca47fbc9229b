// Package session is the caller-facing entry point for one supervised
// agent run: it prepares the session scratch directory and the agent
// command line, then hands lifecycle ownership to the supervisor.
package session

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pilot/internal/config"
	"pilot/internal/metrics"
	"pilot/internal/session/decoder"
	"pilot/internal/session/eventlog"
	"pilot/internal/session/supervisor"
)

// Session scratch files live under <workdir>/.pilot/. The event log is
// truncated at the start of each session; dashboards tolerate that.
const (
	ScratchDirName = ".pilot"
	RawOutputName  = "agent-output.log"
)

// Options configures one session run.
type Options struct {
	// Task is the natural-language prompt for this session.
	Task string

	// WorkDir is the project directory the agent operates in.
	WorkDir string

	Config *config.Config

	// OnEvent, if set, receives each decoded event for live rendering.
	OnEvent func(decoder.Event)

	Logger zerolog.Logger
}

// Result is the terminal outcome of a session.
type Result struct {
	SessionID    string
	Status       supervisor.Status
	Cause        supervisor.Cause
	ExitCode     int
	TokensIn     int64
	TokensOut    int64
	EventLogPath string
	Duration     time.Duration
}

// ScratchDir returns the session scratch directory for a project.
func ScratchDir(workDir string) string {
	return filepath.Join(workDir, ScratchDirName)
}

// Run executes exactly one supervised agent invocation and blocks until
// its lifecycle completes. Not re-entrant: a second concurrent call
// against the same working directory is a caller error and is not
// defended against here.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.WorkDir == "" {
		return Result{}, fmt.Errorf("session: working directory required")
	}

	sessionID := uuid.New().String()
	logger := opts.Logger.With().Str("session_id", sessionID).Logger()

	scratch := ScratchDir(opts.WorkDir)
	log, err := eventlog.Create(scratch)
	if err != nil {
		return Result{}, fmt.Errorf("session: %w", err)
	}
	defer log.Close()

	args, stdin, err := buildCommand(opts.Config.Agent, opts.Task)
	if err != nil {
		return Result{}, fmt.Errorf("session: %w", err)
	}

	logger.Info().
		Str("command", opts.Config.Agent.Command).
		Str("workdir", opts.WorkDir).
		Dur("session_budget", opts.Config.Budgets.SessionTimeout()).
		Dur("idle_budget", opts.Config.Budgets.IdleTimeout()).
		Msg("starting agent session")

	start := time.Now()
	outcome, err := supervisor.Run(ctx, supervisor.Config{
		Command:       opts.Config.Agent.Command,
		Args:          args,
		Dir:           opts.WorkDir,
		Stdin:         stdin,
		UsePTY:        opts.Config.Agent.PTY,
		RawOutputPath: filepath.Join(scratch, RawOutputName),
		Log:           log,
		OnEvent:       opts.OnEvent,
		SessionBudget: opts.Config.Budgets.SessionTimeout(),
		IdleBudget:    opts.Config.Budgets.IdleTimeout(),
		PollInterval:  opts.Config.Budgets.PollInterval(),
		DrainInterval: opts.Config.Budgets.DrainInterval(),
		Logger:        logger,
	})
	if err != nil {
		return Result{}, fmt.Errorf("session: %w", err)
	}

	res := Result{
		SessionID:    sessionID,
		Status:       outcome.Status,
		Cause:        outcome.Cause,
		ExitCode:     outcome.ExitCode,
		TokensIn:     outcome.InputTokens,
		TokensOut:    outcome.OutputTokens,
		EventLogPath: log.Path(),
		Duration:     time.Since(start),
	}
	record(res)

	logger.Info().
		Str("status", res.Status.String()).
		Str("cause", res.Cause.String()).
		Int64("tokens_in", res.TokensIn).
		Int64("tokens_out", res.TokensOut).
		Dur("duration", res.Duration).
		Msg("agent session finished")
	return res, nil
}

// buildCommand assembles the agent argument list and stdin. Plain mode
// invokes the command as configured, with only the task on stdin. The
// default mode adds the headless stream-json flags; under a PTY the task
// travels as an argument because a pty cannot signal stdin EOF.
func buildCommand(agent config.AgentConfig, task string) ([]string, io.Reader, error) {
	extra, err := agent.ParsedExtraArgs()
	if err != nil {
		return nil, nil, err
	}
	if agent.Plain {
		return extra, strings.NewReader(task), nil
	}

	args := []string{
		"--print",
		"--verbose",
		"--output-format", "stream-json",
		"--dangerously-skip-permissions",
	}
	if agent.Model != "" {
		args = append(args, "--model", agent.Model)
	}
	args = append(args, extra...)
	if agent.PTY {
		return append(args, task), nil, nil
	}
	return args, strings.NewReader(task), nil
}

func record(res Result) {
	metrics.SessionsTotal.WithLabelValues(res.Status.String()).Inc()
	if res.Status == supervisor.StatusKilled {
		metrics.KillsTotal.WithLabelValues(res.Cause.String()).Inc()
	}
	metrics.TokensTotal.WithLabelValues("input").Add(float64(res.TokensIn))
	metrics.TokensTotal.WithLabelValues("output").Add(float64(res.TokensOut))
}
