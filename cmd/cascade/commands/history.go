package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit   int
		details bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs",
		Example: `  cascade history
  cascade history --limit 5 --details`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), telemetryConfig())
			if err != nil {
				return err
			}
			defer sess.close()

			runs, err := sess.svc.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(runs)
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded")
				return nil
			}

			for _, run := range runs {
				fmt.Printf("%s  %-20s %s  %s\n",
					styleMuted.Render(run.StartedAt.Local().Format("2006-01-02 15:04:05")),
					run.Target,
					statusStyle(run.Status).Render(fmt.Sprintf("%-9s", run.Status)),
					styleMuted.Render(fmt.Sprintf("%d executed, %d fresh, %d failed, %s  %s",
						run.Executed, run.Fresh, run.Failed,
						(time.Duration(run.DurationMS) * time.Millisecond).String(), run.ID)))
				if run.Error != nil {
					fmt.Printf("    %s %s\n", styleError.Render("error:"), *run.Error)
				}
				if !details {
					continue
				}
				for _, n := range run.Nodes {
					line := fmt.Sprintf("    %-24s %s", n.Workflow, statusStyle(n.State).Render(n.State))
					if n.Reason != nil {
						line += styleMuted.Render("  " + *n.Reason)
					}
					fmt.Println(line)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().BoolVar(&details, "details", false, "show the workflows of each run")

	return cmd
}
