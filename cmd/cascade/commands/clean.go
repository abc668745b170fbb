package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean [workflow]",
		Short: "Forget execution records and outputs",
		Long: `Remove the execution record and output files of a workflow, or of every
workflow, so the next run executes it again.`,
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

			cleaned, err := sess.svc.Clean(cmd.Context(), id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(map[string][]string{"cleaned": cleaned})
			}
			if len(cleaned) == 0 {
				fmt.Println("Nothing to clean")
				return nil
			}
			for _, wf := range cleaned {
				fmt.Printf("✓ Cleaned %s\n", wf)
			}
			return nil
		},
	}

	return cmd
}
