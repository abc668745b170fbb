package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openfroyo/cascade/pkg/telemetry"
	"github.com/openfroyo/cascade/pkg/workspace"
	"github.com/spf13/cobra"
)

func newInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a cascade project",
		Long: `Create .cascade/ with an empty workflows directory, a policies directory,
and a commented project configuration. Existing files are left alone.`,
		Example: `  # Initialize the current directory
  cascade init

  # Initialize another directory
  cascade init --project ~/notes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := commandLogger()
			if err != nil {
				return err
			}

			root := projectRoot
			if root == "" {
				if root, err = os.Getwd(); err != nil {
					return fmt.Errorf("failed to get working directory: %w", err)
				}
			}

			ws, err := workspace.Scaffold(root, workspace.WithLogger(logger))
			if err != nil {
				return err
			}

			fmt.Printf("✓ Initialized cascade project in %s\n\n", ws.Dir())
			fmt.Printf("Next steps:\n")
			fmt.Printf("  1. Set a command in %s\n", filepath.Join(ws.Dir(), workspace.ConfigBase+".yaml"))
			fmt.Printf("  2. Create a workflow:\n")
			fmt.Printf("     cascade new outline\n")
			fmt.Printf("     cascade new summary --depends-on outline\n")
			fmt.Printf("  3. Run it:\n")
			fmt.Printf("     cascade run summary\n")
			return nil
		},
	}

	return cmd
}

func newNewCommand() *cobra.Command {
	var dependsOn []string

	cmd := &cobra.Command{
		Use:   "new <workflow>",
		Short: "Create a workflow",
		Example: `  cascade new outline
  cascade new summary --depends-on outline,research`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			if err := ws.ScaffoldWorkflow(args[0], dependsOn); err != nil {
				return err
			}
			fmt.Printf("✓ Created workflow %s\n", args[0])
			fmt.Printf("  Task: %s\n", ws.TaskPath(args[0]))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "workflows this workflow depends on")

	return cmd
}

// commandLogger is the logger for commands that do not open a full session.
func commandLogger() (*telemetry.Logger, error) {
	cfg := telemetryConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	return telemetry.NewLogger(cfg.Logging)
}

func openWorkspace() (*workspace.Workspace, error) {
	logger, err := commandLogger()
	if err != nil {
		return nil, err
	}
	if projectRoot != "" {
		return workspace.Open(projectRoot, workspace.WithLogger(logger))
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return workspace.Discover(wd, workspace.WithLogger(logger))
}
