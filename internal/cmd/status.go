package cmd

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pilot/internal/console"
	"pilot/internal/features"
	"pilot/internal/session"
	"pilot/internal/session/eventlog"
)

func newStatusCmd(st *rootState) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "status [project-dir]",
		Short: "Show checklist progress and recent session events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := workDirArg(args)
			if err != nil {
				return err
			}
			renderer := console.New(os.Stdout)

			list, err := features.Load(workDir)
			if err != nil {
				return err
			}
			passing, total := list.Counts()
			renderer.Progress(passing, total)

			logPath := filepath.Join(session.ScratchDir(workDir), eventlog.FileName)
			events, err := eventlog.Read(logPath)
			if err != nil && !os.IsNotExist(err) {
				return err
			}
			for _, ev := range events {
				renderer.Event(ev)
			}

			if !follow {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ch, err := eventlog.Tail(ctx, logPath, 250*time.Millisecond)
			if err != nil {
				return err
			}
			for ev := range ch {
				renderer.Event(ev)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new events as they arrive")
	return cmd
}
