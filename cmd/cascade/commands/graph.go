package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newGraphCommand() *cobra.Command {
	var dot bool

	cmd := &cobra.Command{
		Use:   "graph <workflow>",
		Short: "Show the dependency graph of a workflow",
		Example: `  cascade graph summary
  cascade graph summary --dot | dot -Tsvg > summary.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), telemetryConfig())
			if err != nil {
				return err
			}
			defer sess.close()

			graph, err := sess.svc.Graph(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			switch {
			case jsonOutput:
				return printJSON(struct {
					Target string      `json:"target"`
					Order  []string    `json:"order"`
					Levels [][]string  `json:"levels"`
					Edges  interface{} `json:"edges"`
				}{graph.Target, graph.TopologicalOrder(), graph.Levels(), graph.Edges})
			case dot:
				fmt.Print(graph.ToDOT())
			default:
				for i, level := range graph.Levels() {
					fmt.Printf("%s %s\n", styleHeader.Render(fmt.Sprintf("Level %d:", i)), strings.Join(level, ", "))
				}
				fmt.Printf("\nExecution order: %s\n", strings.Join(graph.TopologicalOrder(), " -> "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "output Graphviz DOT")

	return cmd
}
