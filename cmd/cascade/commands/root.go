package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/openfroyo/cascade/pkg/app"
	"github.com/openfroyo/cascade/pkg/telemetry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	projectRoot   string
	setValues     []string
	logLevel      string
	logFormat     string
	jsonOutput    bool
	noHistory     bool
	metricsFile   string
	traceExporter string
	traceEndpoint string

	enablePolicies  []string
	disablePolicies []string

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "cascade",
		Short: "cascade - incremental runner for file-backed LLM workflows",
		Long: `cascade runs named workflows that live under .cascade/workflows/.

Each workflow resolves its configuration from a tier cascade:

  builtin < global < ancestor projects < project < workflow < --set

and declares the workflows it depends on with depends_on. A run executes only
what is stale: a workflow whose configuration, task, inputs, context, or
dependencies changed since its last successful execution.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(telemetry.ParseLevel(logLevel))
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&projectRoot, "project", "C", "", "project root (default: discovered from the working directory)")
	rootCmd.PersistentFlags().StringArrayVar(&setValues, "set", nil, "override a configuration key at the cli tier (key=value, repeatable)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noHistory, "no-history", false, "do not record runs in the history database")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace-exporter", envOr("CASCADE_TRACE_EXPORTER", "none"), "trace exporter (none, stdout, otlp)")
	rootCmd.PersistentFlags().StringVar(&traceEndpoint, "trace-endpoint", os.Getenv("CASCADE_TRACE_ENDPOINT"), "OTLP gRPC endpoint")

	rootCmd.PersistentFlags().StringSliceVar(&enablePolicies, "enable-policy", nil, "enable a policy by name (repeatable)")
	rootCmd.PersistentFlags().StringSliceVar(&disablePolicies, "disable-policy", nil, "disable a policy by name (repeatable)")

	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newNewCommand())
	rootCmd.AddCommand(newCleanCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// telemetryConfig builds the telemetry configuration from the global flags.
func telemetryConfig() *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = buildVersion
	cfg.Logging.Level = logLevel
	cfg.Logging.Format = logFormat
	cfg.Tracing.Exporter = traceExporter
	cfg.Tracing.Endpoint = traceEndpoint
	if metricsFile != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.TextfilePath = metricsFile
	}
	return cfg
}

// session is an opened project together with its telemetry.
type session struct {
	svc *app.Service
	tel *telemetry.Telemetry
}

// openSession creates telemetry from cfg and opens the project. The caller
// must call close.
func openSession(ctx context.Context, cfg *telemetry.Config) (*session, error) {
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	if !jsonOutput {
		tel.Events.Subscribe(printEvent(os.Stderr), nil)
	}

	svc, err := app.New(tel.WithContext(ctx), app.Options{
		Root:            projectRoot,
		Set:             setValues,
		NoHistory:       noHistory,
		EnablePolicies:  enablePolicies,
		DisablePolicies: disablePolicies,
	}, tel)
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, err
	}
	return &session{svc: svc, tel: tel}, nil
}

func (s *session) close() {
	if err := s.svc.Close(); err != nil {
		s.tel.Logger.WithError(err).Warn("Failed to close project")
	}
	if err := s.tel.Shutdown(context.Background()); err != nil {
		s.tel.Logger.WithError(err).Warn("Failed to flush telemetry")
	}
}
