package commands

import (
	"os"

	"github.com/openfroyo/cascade/pkg/engine"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	var (
		noDeps    bool
		force     bool
		forceDeps bool
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow and its stale dependencies",
		Long: `Run a workflow after bringing its dependencies up to date.

Dependencies are visited in topological order. Fresh workflows are skipped;
stale ones are executed. The run stops at the first failure, and only
successful executions are recorded.`,
		Example: `  # Run summary, executing whatever it depends on that is stale
  cascade run summary

  # Fail instead of executing stale dependencies
  cascade run summary --no-deps

  # Re-run summary even if nothing changed, with a different model
  cascade run summary --force --set model=claude-opus-4

  # Show what would execute
  cascade run summary --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := args[0]
			ctx := cmd.Context()

			log.Debug().
				Str("workflow", target).
				Bool("no_deps", noDeps).
				Bool("force", force).
				Bool("dry_run", dryRun).
				Msg("Running workflow")

			sess, err := openSession(ctx, telemetryConfig())
			if err != nil {
				return err
			}
			defer sess.close()

			result, runErr := sess.svc.Run(ctx, target, engine.RunOptions{
				AutoDeps:  !noDeps,
				Force:     force,
				ForceDeps: forceDeps,
				DryRun:    dryRun,
			})
			if result != nil {
				if jsonOutput {
					if err := printJSON(result); err != nil {
						return err
					}
				} else {
					printRunResult(os.Stdout, result)
				}
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&noDeps, "no-deps", false, "fail if a dependency is stale instead of executing it")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "execute the workflow even if it is fresh")
	cmd.Flags().BoolVar(&forceDeps, "force-deps", false, "execute every workflow in the graph even if fresh")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would execute without executing")

	return cmd
}
