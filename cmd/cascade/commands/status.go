package commands

import (
	"os"

	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [workflow]",
		Short: "Show whether workflows are fresh, stale, or pending",
		Long: `Evaluate workflows without executing anything.

Each workflow is reported as pending (never executed), fresh, stale with the
first reason found, or error when its graph or fingerprint cannot be computed.`,
		Example: `  # Every workflow in the project
  cascade status

  # One workflow
  cascade status summary --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = args[0]
			}

			sess, err := openSession(cmd.Context(), telemetryConfig())
			if err != nil {
				return err
			}
			defer sess.close()

			entries, err := sess.svc.Status(cmd.Context(), id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(entries)
			}
			printStatus(os.Stdout, entries)
			return nil
		},
	}

	return cmd
}
