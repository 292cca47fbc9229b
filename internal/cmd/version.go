package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"pilot/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pilot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.DisplayVersion())
		},
	}
}
