package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/burrowhq/burrow/pkg/config"
	"github.com/burrowhq/burrow/pkg/gitsync"
	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/signals"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the git sync bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		v, elog, err := openVault(cfg, "sync-bridge")
		if err != nil {
			return err
		}
		defer elog.Close()
		serveMetrics(cfg.MetricsAddr)

		branch, _ := cmd.Flags().GetString("branch")
		if branch == "" {
			branch = cfg.GitBranch
		}
		syncer := gitsync.New(v, elog, gitsync.Config{
			Branch:   branch,
			Interval: cfg.Interval,
			Once:     cfg.Once,
			DryRun:   cfg.DryRun,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return syncer.Run(ctx)
	},
}

var mergeSignalsCmd = &cobra.Command{
	Use:   "merge-signals",
	Short: "Fold Signals/ into the dashboard's cloud-status region",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Mode != types.PeerLocal {
			return types.Policyf("only the local peer writes the dashboard")
		}
		v, elog, err := openVault(cfg, "signal-merge")
		if err != nil {
			return err
		}
		defer elog.Close()
		return signals.NewMerger(v, elog, nil).Merge()
	},
}

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Vault maintenance",
}

var vaultInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create a fresh vault tree with its singletons",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Init(log.Config{Level: log.InfoLevel, JSONOutput: flagLogJSON})

		path := flagVault
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			cfg, err := config.Load()
			if err != nil {
				return types.Policy(err)
			}
			path = cfg.VaultPath
		}
		if path == "" {
			return types.Policyf("vault path is required (argument, --vault or VAULT_PATH)")
		}

		v, err := vault.Init(path)
		if err != nil {
			return err
		}
		fmt.Printf("Vault initialized at %s\n", v.Root())
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("once", false, "run a single sync cycle and exit")
	syncCmd.Flags().Duration("interval", 0, "sync cadence")
	syncCmd.Flags().String("branch", "", "vault sync branch (env GIT_VAULT_BRANCH)")

	vaultCmd.AddCommand(vaultInitCmd)
}
