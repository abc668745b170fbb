package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/openfroyo/cascade/pkg/config"
	"github.com/spf13/cobra"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [workflow]",
		Short: "Show resolved configuration and where each value comes from",
		Long: `Resolve the configuration of a workflow, or of the project when no
workflow is given, and show the tier that owns every value.`,
		Example: `  cascade config summary
  cascade config summary --set temperature=0.2
  cascade config --json`,
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

			entries, warnings, err := sess.svc.ShowConfig(id)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(struct {
					Workflow string           `json:"workflow,omitempty"`
					Entries  []config.Entry   `json:"entries"`
					Warnings []config.Warning `json:"warnings,omitempty"`
				}{id, entries, warnings})
			}

			for _, w := range warnings {
				fmt.Fprintln(os.Stderr, styleStale.Render("warning:")+" "+w.String())
			}
			width := 0
			for _, e := range entries {
				if len(e.Key) > width {
					width = len(e.Key)
				}
			}
			for _, e := range entries {
				tier := e.Tier.String()
				if e.Tier.Source != "" {
					tier += " (" + e.Tier.Source + ")"
				}
				fmt.Printf("%s  %s  %s\n", pad(e.Key, width), formatValue(e.Value), styleMuted.Render(tier))
			}
			return nil
		},
	}

	return cmd
}

func formatValue(v config.Value) string {
	if v.IsEmpty() {
		return styleMuted.Render("-")
	}
	if v.IsList() {
		return "[" + strings.Join(v.Items(), ", ") + "]"
	}
	return v.String()
}
