package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pilot/internal/orchestrator"
	"pilot/internal/schedule"
)

func newScheduleCmd(st *rootState) *cobra.Command {
	var (
		rule        string
		maxSessions int
	)

	cmd := &cobra.Command{
		Use:   "schedule [project-dir]",
		Short: "Run orchestrator passes on a recurrence rule",
		Long: `Run an orchestrator pass at each occurrence of an RFC 5545 recurrence
rule, e.g. "FREQ=DAILY;BYHOUR=2" for a nightly run. The rule comes from
--rule or the schedule key in the config file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := workDirArg(args)
			if err != nil {
				return err
			}
			if rule == "" {
				rule = st.cfg.Schedule
			}
			if rule == "" {
				return fmt.Errorf("no recurrence rule; use --rule or set schedule in the config")
			}

			r, err := schedule.Parse(rule, time.Now())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := &schedule.Runner{
				Rule:   r,
				Logger: st.logger,
				Job: func(ctx context.Context) error {
					o := &orchestrator.Orchestrator{
						WorkDir:     workDir,
						Config:      st.cfg,
						MaxSessions: maxSessions,
						Logger:      st.logger,
					}
					return o.Run(ctx)
				},
			}
			return runner.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&rule, "rule", "", "RFC 5545 recurrence rule (default from config)")
	cmd.Flags().IntVar(&maxSessions, "max-sessions", 5, "Session limit per scheduled pass")
	return cmd
}
