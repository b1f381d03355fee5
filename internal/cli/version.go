package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := a.opts.Build
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "loxctl %s (commit %s, built %s)\n", b.Version, b.Commit, b.Date)
			return err
		},
	}
}
