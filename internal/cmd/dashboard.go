package cmd

import (
	"github.com/spf13/cobra"

	"pilot/internal/dashboard"
)

func newDashboardCmd(st *rootState) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "dashboard [project-dir]",
		Short: "Serve the web dashboard for a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workDir, err := workDirArg(args)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = st.cfg.Dashboard.Addr
			}
			srv := dashboard.New(workDir, st.logger)
			return srv.ListenAndServe(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}
