package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/openfroyo/cascade/pkg/engine"
	"github.com/openfroyo/cascade/pkg/workspace"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newWatchCommand() *cobra.Command {
	var (
		noDeps      bool
		debounce    time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch <workflow>",
		Short: "Re-run a workflow whenever project files change",
		Long: `Run a workflow, then watch the project and run it again after every change.

Only stale workflows execute, so edits re-run exactly what they affect. A
failed run is reported and watching continues. Press Ctrl+C to stop.`,
		Example: `  cascade watch summary
  cascade watch summary --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg := telemetryConfig()
			if metricsAddr != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.ListenAddr = metricsAddr
			}
			sess, err := openSession(ctx, cfg)
			if err != nil {
				return err
			}
			defer sess.close()

			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           sess.tel.Metrics.Handler(),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error().Err(err).Str("addr", metricsAddr).Msg("Metrics server failed")
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				log.Info().Str("addr", metricsAddr).Msg("Serving metrics")
			}

			fmt.Fprintf(os.Stderr, "Watching %s for changes (Ctrl+C to stop)\n", sess.svc.Workspace().Root())
			err = sess.svc.Watch(ctx, args[0], engine.RunOptions{AutoDeps: !noDeps}, debounce,
				func(result *engine.RunResult, err error) {
					if result != nil {
						if jsonOutput {
							_ = printJSON(result)
						} else {
							printRunResult(os.Stdout, result)
						}
					}
					if err != nil {
						fmt.Fprintln(os.Stderr, styleError.Render("error:")+" "+err.Error())
					}
				})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&noDeps, "no-deps", false, "fail if a dependency is stale instead of executing it")
	cmd.Flags().DurationVar(&debounce, "debounce", workspace.DefaultDebounce, "quiet period before re-running")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	return cmd
}
