package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/burrowhq/burrow/pkg/config"
	"github.com/burrowhq/burrow/pkg/eventlog"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagVault       string
	flagDryRun      bool
	flagLogJSON     bool
	flagMetricsAddr string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy onto process exit codes: 0 success,
// 1 runtime failure, 2 configuration or policy failure, 3 permanent or
// fatal failure the supervisor should surface.
func exitCode(err error) int {
	switch types.KindOf(err) {
	case types.KindFatal, types.KindPermanent:
		return 3
	case types.KindPolicy:
		return 2
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - vault-based autonomous work orchestrator",
	Long: `Burrow coordinates watchers, an orchestrator and a reasoning layer
around a plain directory tree (the vault). Files are the messages, moves
between directories are the state transitions, and every transition is
audited in a daily JSON-lines log.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&flagVault, "vault", "", "vault root path (env VAULT_PATH)")
	rootCmd.PersistentFlags().BoolVar(&flagDryRun, "dry-run", false, "log side-effects instead of performing them")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "structured JSON log output")
	rootCmd.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Prometheus listener address (env METRICS_ADDR)")

	rootCmd.AddCommand(orchestrateCmd)
	rootCmd.AddCommand(cloudCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(mergeSignalsCmd)
	rootCmd.AddCommand(vaultCmd)
}

// loadConfig folds environment and flags into one Config and initializes
// logging. Flags win over environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, types.Policy(err)
	}
	if flagVault != "" {
		cfg.VaultPath = flagVault
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = flagDryRun
	}
	if flagMetricsAddr != "" {
		cfg.MetricsAddr = flagMetricsAddr
	}
	if cmd.Flags().Lookup("once") != nil {
		cfg.Once, _ = cmd.Flags().GetBool("once")
	}
	if cmd.Flags().Lookup("interval") != nil {
		if d, _ := cmd.Flags().GetDuration("interval"); d > 0 {
			cfg.Interval = d
		}
	}

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: flagLogJSON})

	if err := cfg.Validate(); err != nil {
		return nil, types.Policy(err)
	}
	return cfg, nil
}

// openVault opens the vault and attaches its audit recorder.
func openVault(cfg *config.Config, actor string) (*vault.Vault, *eventlog.Logger, error) {
	v, err := vault.Open(cfg.VaultPath)
	if err != nil {
		return nil, nil, err
	}
	elog := eventlog.New(v.Dir(vault.StageLogs), actor)
	v.SetRecorder(elog)
	return v, elog, nil
}

// serveMetrics starts the Prometheus listener when configured.
func serveMetrics(addr string) {
	if addr == "" {
		return
	}
	go func() {
		if err := metrics.Serve(addr); err != nil {
			logger := log.WithComponent("metrics")
			logger.Error().Err(err).Msg("metrics listener failed")
		}
	}()
}
