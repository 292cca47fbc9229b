// Package orchestrator drives a project from a natural-language goal to
// a fully passing feature checklist by running supervised agent sessions
// in sequence. It is a plain consumer of session results: all process
// lifecycle concerns live in the supervisor.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"pilot/internal/config"
	"pilot/internal/features"
	"pilot/internal/session"
	"pilot/internal/session/decoder"
)

// Orchestrator runs sessions until the checklist passes or the session
// limit is reached.
type Orchestrator struct {
	Goal        string
	WorkDir     string
	Config      *config.Config
	MaxSessions int
	OnEvent     func(decoder.Event)

	// OnSession, if set, is called after each completed session.
	OnSession func(n int, res session.Result, passing, total int)

	Logger zerolog.Logger

	// runSession is swapped out in tests.
	runSession func(ctx context.Context, opts session.Options) (session.Result, error)
}

// Run executes the session loop. It returns nil when every feature
// passes, and an error when the limit is exhausted first or a session
// cannot be started at all.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.runSession == nil {
		o.runSession = session.Run
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = 1
	}

	for n := 1; n <= o.MaxSessions; n++ {
		list, err := features.Load(o.WorkDir)
		if err != nil {
			return fmt.Errorf("orchestrator: %w", err)
		}
		if list.AllPassing() {
			return nil
		}

		task := o.taskFor(list)
		res, err := o.runSession(ctx, session.Options{
			Task:    task,
			WorkDir: o.WorkDir,
			Config:  o.Config,
			OnEvent: o.OnEvent,
			Logger:  o.Logger,
		})
		if err != nil {
			return fmt.Errorf("orchestrator: session %d: %w", n, err)
		}

		list, err = features.Load(o.WorkDir)
		if err != nil {
			return fmt.Errorf("orchestrator: %w", err)
		}
		passing, total := list.Counts()
		o.Logger.Info().
			Int("session", n).
			Str("status", res.Status.String()).
			Int("passing", passing).
			Int("total", total).
			Msg("session complete")
		if o.OnSession != nil {
			o.OnSession(n, res, passing, total)
		}

		if list.AllPassing() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	list, err := features.Load(o.WorkDir)
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	passing, total := list.Counts()
	return fmt.Errorf("orchestrator: session limit reached with %d/%d features passing", passing, total)
}

// taskFor picks the initializer prompt for a project with no checklist
// yet, and the continuation prompt otherwise.
func (o *Orchestrator) taskFor(list *features.List) string {
	if len(list.Features) == 0 {
		return InitializerPrompt(o.Goal)
	}
	passing, total := list.Counts()
	return ContinuationPrompt(passing, total)
}
