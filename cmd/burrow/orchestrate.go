package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/burrowhq/burrow/pkg/adapter"
	"github.com/burrowhq/burrow/pkg/claim"
	"github.com/burrowhq/burrow/pkg/config"
	"github.com/burrowhq/burrow/pkg/events"
	"github.com/burrowhq/burrow/pkg/gitsync"
	"github.com/burrowhq/burrow/pkg/metrics"
	"github.com/burrowhq/burrow/pkg/orchestrator"
	"github.com/burrowhq/burrow/pkg/reasoning"
	"github.com/burrowhq/burrow/pkg/reconciler"
	"github.com/burrowhq/burrow/pkg/retry"
	"github.com/burrowhq/burrow/pkg/scheduler"
	"github.com/burrowhq/burrow/pkg/signals"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
	"github.com/burrowhq/burrow/pkg/watcher"
)

var flagSendNow string

var orchestrateCmd = &cobra.Command{
	Use:   "orchestrate",
	Short: "Run the local orchestrator: router, scheduler, sweeper and inbox watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		v, elog, err := openVault(cfg, "orchestrator")
		if err != nil {
			return err
		}
		defer elog.Close()
		serveMetrics(cfg.MetricsAddr)

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()
		stopObserver := metrics.ObserveBroker(broker)
		defer stopObserver()

		limiters := retry.NewLimiters(retry.SystemClock{}, nil)
		gate := orchestrator.NewGate(v.Dir(vault.StageLogs), cfg.AmountThreshold)
		router := orchestrator.NewRouter(v, buildRegistry(cfg, v), gate, limiters, elog, broker, orchestrator.Config{
			DryRun:         cfg.DryRun,
			Once:           cfg.Once,
			AdapterTimeout: cfg.AdapterTimeout,
			ShutdownGrace:  cfg.ShutdownGrace,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if flagSendNow != "" {
			return router.SendNow(ctx, vault.StemOf(filepath.Base(flagSendNow)))
		}

		claimer := claim.NewClaimer(v, types.PeerLocal, elog)
		sweeper := reconciler.New(v, claimer, elog, reconciler.Config{
			ClaimTTL: cfg.ClaimTTL,
			DryRun:   cfg.DryRun,
		})
		invoker := reasoning.NewInvoker(cfg.ReasoningCmd, v.Root(), 5*time.Minute)
		merger := signals.NewMerger(v, elog, broker)
		inbox := watcher.NewInboxWatcher(v, elog.WithActor("inbox-watcher"), cfg.DryRun, 0)

		sched := scheduler.New(elog)
		sched.Add(scheduler.Job{
			Name:    "process-inbox",
			Cadence: scheduler.MustCadence("@every 30m"),
			Run:     func(ctx context.Context) error { return invoker.Invoke(ctx, "process-inbox") },
		})
		sched.Add(scheduler.Job{
			Name:    "refresh-dashboard",
			Cadence: scheduler.MustCadence("@every 1h"),
			Run:     func(ctx context.Context) error { return invoker.Invoke(ctx, "refresh-dashboard") },
		})
		sched.Add(scheduler.Job{
			Name:    "morning-briefing",
			Cadence: scheduler.MustCadence("@daily 08:00"),
			Run:     func(ctx context.Context) error { return invoker.Invoke(ctx, "morning-briefing") },
		})
		sched.Add(scheduler.Job{
			Name:    "weekly-audit",
			Cadence: scheduler.MustCadence("@weekly Mon 07:00"),
			Run:     func(ctx context.Context) error { return invoker.Invoke(ctx, "weekly-audit") },
		})
		sched.Add(scheduler.Job{
			Name:    "merge-signals",
			Cadence: scheduler.MustCadence("@every 30m"),
			Run:     func(context.Context) error { return merger.Merge() },
		})
		if _, err := os.Stat(filepath.Join(v.Root(), ".git")); err == nil {
			syncer := gitsync.New(v, elog.WithActor("sync-bridge"), gitsync.Config{
				Branch: cfg.GitBranch,
				DryRun: cfg.DryRun,
			})
			sched.Add(scheduler.Job{
				Name:    "vault-sync",
				Cadence: scheduler.MustCadence("@every 5m"),
				Run:     syncer.Cycle,
			})
		}

		if cfg.Once {
			inbox.RunOnce()
			sweeper.Sweep()
			router.Run(ctx)
			return merger.Merge()
		}

		var wg sync.WaitGroup
		for _, run := range []func(context.Context) error{
			router.Run, sweeper.Run, sched.Run, inbox.Run,
		} {
			wg.Add(1)
			go func(run func(context.Context) error) {
				defer wg.Done()
				_ = run(ctx)
			}(run)
		}
		wg.Wait()
		return nil
	},
}

func init() {
	orchestrateCmd.Flags().Bool("once", false, "run a single cycle and exit")
	orchestrateCmd.Flags().Duration("interval", 0, "override the main poll cadence")
	orchestrateCmd.Flags().StringVar(&flagSendNow, "send-now", "", "dispatch one approved file immediately and exit")
}

// buildRegistry wires the adapters the configuration supports. Anything
// without a configured transport routes to the generic manual-action
// fallback instead of failing at dispatch time.
func buildRegistry(cfg *config.Config, v *vault.Vault) *adapter.Registry {
	var adapters []adapter.Adapter
	if cfg.SMTPHost != "" {
		adapters = append(adapters, adapter.NewEmailAdapter(
			adapter.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, "")))
	}
	for platform, command := range cfg.PostCommands {
		adapters = append(adapters, adapter.NewSocialAdapter(platform,
			adapter.NewExecPoster(command, cfg.SessionPaths[platform])))
	}
	if cfg.ERPURL != "" {
		adapters = append(adapters, adapter.NewAccountingAdapter(
			adapter.NewOdooClient(cfg.ERPURL, cfg.ERPDatabase, cfg.ERPUser, cfg.ERPPassword)))
	}
	return adapter.NewRegistry(adapter.NewGenericAdapter(v), adapters...)
}
