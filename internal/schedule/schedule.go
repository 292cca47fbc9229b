// Package schedule runs orchestrator passes on a recurrence rule, so a
// long-lived project can pick up new work unattended.
package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/teambition/rrule-go"
)

// Parse compiles an RFC 5545 recurrence rule. A bare rule without a
// DTSTART is anchored at now, matching what callers typing
// "FREQ=HOURLY" on a command line expect.
func Parse(rule string, now time.Time) (*rrule.RRule, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return nil, fmt.Errorf("empty recurrence rule")
	}
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("parse recurrence rule: %w", err)
	}
	if !strings.Contains(strings.ToUpper(rule), "DTSTART") {
		r.DTStart(now)
	}
	return r, nil
}

// Next returns up to n occurrences strictly after t.
func Next(r *rrule.RRule, t time.Time, n int) []time.Time {
	var out []time.Time
	for len(out) < n {
		next := r.After(t, false)
		if next.IsZero() {
			break
		}
		out = append(out, next)
		t = next
	}
	return out
}

// Runner invokes a job at each occurrence of a recurrence rule.
type Runner struct {
	Rule   *rrule.RRule
	Job    func(ctx context.Context) error
	Logger zerolog.Logger

	// now is swapped out in tests.
	now func() time.Time
}

// Run blocks, firing the job at each occurrence until the rule is
// exhausted or ctx is cancelled. Job errors are logged, not fatal: one
// failed pass must not stop the schedule.
func (r *Runner) Run(ctx context.Context) error {
	if r.now == nil {
		r.now = time.Now
	}
	// Walk occurrences from a cursor so a fast or failing job never
	// fires the same occurrence twice.
	cursor := r.now()
	for {
		next := r.Rule.After(cursor, false)
		if next.IsZero() {
			return nil
		}
		cursor = next
		r.Logger.Info().Time("next_run", next).Msg("waiting for next scheduled run")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		if err := r.Job(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.Logger.Error().Err(err).Msg("scheduled run failed")
		}
	}
}
