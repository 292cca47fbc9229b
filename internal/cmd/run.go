package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pilot/internal/console"
	"pilot/internal/features"
	"pilot/internal/orchestrator"
	"pilot/internal/session"
)

func newRunCmd(st *rootState) *cobra.Command {
	var (
		goal        string
		task        string
		maxSessions int
	)

	cmd := &cobra.Command{
		Use:   "run [project-dir]",
		Short: "Run agent sessions against a project",
		Long: `Run supervised agent sessions in the given project directory (default
the current directory).

With --task, exactly one session runs with that prompt. With --goal,
the orchestrator loops sessions until every feature in features.json
passes or --max-sessions is reached. Without either, the orchestrator
continues an existing project.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := workDirArg(args)
			if err != nil {
				return err
			}
			if task != "" && goal != "" {
				return fmt.Errorf("--task and --goal are mutually exclusive")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			renderer := console.New(os.Stdout)

			if task != "" {
				res, err := session.Run(ctx, session.Options{
					Task:    task,
					WorkDir: workDir,
					Config:  st.cfg,
					OnEvent: renderer.Event,
					Logger:  st.logger,
				})
				if err != nil {
					return err
				}
				renderer.Summary(res)
				return nil
			}

			if goal == "" {
				// Continuing an existing project needs a checklist to
				// continue from.
				list, err := features.Load(workDir)
				if err != nil {
					return err
				}
				if len(list.Features) == 0 {
					return fmt.Errorf("no features.json in %s; use --goal to start a new project", workDir)
				}
			}

			o := &orchestrator.Orchestrator{
				Goal:        goal,
				WorkDir:     workDir,
				Config:      st.cfg,
				MaxSessions: maxSessions,
				OnEvent:     renderer.Event,
				OnSession: func(n int, res session.Result, passing, total int) {
					renderer.Summary(res)
					renderer.Progress(passing, total)
				},
				Logger: st.logger,
			}
			return o.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&goal, "goal", "", "Start a new project with this goal")
	cmd.Flags().StringVar(&task, "task", "", "Run a single session with this prompt")
	cmd.Flags().IntVar(&maxSessions, "max-sessions", 20, "Session limit for the orchestrator loop")
	return cmd
}
