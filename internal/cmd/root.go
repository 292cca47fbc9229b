// Package cmd wires the pilot CLI: run sessions against a project,
// serve its dashboard, follow its event stream, and run on a schedule.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pilot/internal/config"
)

// rootState carries flags and lazily loaded config shared by the
// subcommands.
type rootState struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger zerolog.Logger
}

// NewRootCmd creates the root cobra command with all subcommands.
func NewRootCmd() *cobra.Command {
	st := &rootState{}

	rootCmd := &cobra.Command{
		Use:           "pilot",
		Short:         "Autonomous coding agent supervisor",
		Long:          "pilot runs a coding agent against a project in supervised sessions,\nenforcing wall-clock and idle budgets, and drives the project's feature\nchecklist to completion.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "version", "help", "completion":
				return nil
			}
			return st.setup()
		},
	}

	rootCmd.PersistentFlags().StringVar(&st.configPath, "config", "", "Config file (default ~/.pilot/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&st.verbose, "verbose", "v", false, "Debug logging")

	rootCmd.AddCommand(
		newRunCmd(st),
		newDashboardCmd(st),
		newStatusCmd(st),
		newScheduleCmd(st),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the CLI and returns a process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pilot: %v\n", err)
		return 1
	}
	return 0
}

func (st *rootState) setup() error {
	var err error
	if st.configPath != "" {
		st.cfg, err = config.LoadFrom(st.configPath)
	} else {
		st.cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st.logger = newLogger(st.verbose)
	return nil
}

// newLogger builds the process logger. A TTY gets the human console
// format; pipes and files get JSON lines.
func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	var out zerolog.LevelWriter
	if isatty.IsTerminal(os.Stderr.Fd()) {
		out = zerolog.MultiLevelWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		out = zerolog.MultiLevelWriter(os.Stderr)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// workDirArg resolves the optional project directory argument,
// defaulting to the current directory.
func workDirArg(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("project directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project directory: %s is not a directory", dir)
	}
	return dir, nil
}
