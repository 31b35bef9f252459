package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/burrowhq/burrow/pkg/retry"
	"github.com/burrowhq/burrow/pkg/storage"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
	"github.com/burrowhq/burrow/pkg/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a single watcher",
}

var watchInboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Hoist files dropped into Inbox/ up to Needs_Action/",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		v, elog, err := openVault(cfg, "inbox-watcher")
		if err != nil {
			return err
		}
		defer elog.Close()
		serveMetrics(cfg.MetricsAddr)

		w := watcher.NewInboxWatcher(v, elog, cfg.DryRun, 0)
		if cfg.Once {
			w.RunOnce()
			return nil
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return w.Run(ctx)
	},
}

var watchMailboxCmd = &cobra.Command{
	Use:   "mailbox",
	Short: "Emit action notes for new mailbox messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		spool, _ := cmd.Flags().GetString("spool")
		if spool == "" {
			spool = cfg.MailboxSpool
		}
		if spool == "" {
			return types.Policyf("mailbox spool directory is required (--spool or MAILBOX_SPOOL)")
		}

		v, elog, err := openVault(cfg, "mailbox-watcher")
		if err != nil {
			return err
		}
		defer elog.Close()
		serveMetrics(cfg.MetricsAddr)

		seen, err := storage.OpenSeenStore(filepath.Join(v.Root(), vault.SidecarDir), "mailbox")
		if err != nil {
			return err
		}
		defer seen.Close()

		src := watcher.NewMailboxSource("mailbox-watcher", watcher.NewSpoolFetch(spool), nil)
		runner := watcher.NewRunner(v, src, seen, elog, retry.SystemClock{}, nil, watcher.Config{
			Interval: cfg.Interval,
			DryRun:   cfg.DryRun,
			Once:     cfg.Once,
		})

		if setup, _ := cmd.Flags().GetBool("setup"); setup {
			return runner.Setup(cmd.Context())
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runner.Run(ctx)
	},
}

var watchSocialCmd = &cobra.Command{
	Use:   "social <platform>",
	Short: "Emit action notes for new inbound platform messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		platform := strings.ToLower(args[0])
		command := cfg.WatchCommands[platform]
		if command == "" {
			return types.Policyf("no watch command configured for %s (env %s_WATCH_CMD)", platform, strings.ToUpper(platform))
		}

		v, elog, err := openVault(cfg, platform+"-watcher")
		if err != nil {
			return err
		}
		defer elog.Close()
		serveMetrics(cfg.MetricsAddr)

		seen, err := storage.OpenSeenStore(filepath.Join(v.Root(), vault.SidecarDir), platform)
		if err != nil {
			return err
		}
		defer seen.Close()

		src := watcher.NewSocialSource(platform, watcher.NewCommandFetch(command, cfg.SessionPaths[platform]))
		runner := watcher.NewRunner(v, src, seen, elog, retry.SystemClock{}, nil, watcher.Config{
			Interval: cfg.Interval,
			DryRun:   cfg.DryRun,
			Once:     cfg.Once,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runner.Run(ctx)
	},
}

func init() {
	watchInboxCmd.Flags().Bool("once", false, "sweep Inbox/ once and exit")
	watchMailboxCmd.Flags().Bool("once", false, "poll once and exit")
	watchMailboxCmd.Flags().Bool("setup", false, "run the interactive credential bootstrap")
	watchMailboxCmd.Flags().Duration("interval", 0, "poll cadence")
	watchMailboxCmd.Flags().String("spool", "", "message export directory (env MAILBOX_SPOOL)")
	watchSocialCmd.Flags().Bool("once", false, "poll once and exit")
	watchSocialCmd.Flags().Duration("interval", 0, "poll cadence")

	watchCmd.AddCommand(watchInboxCmd)
	watchCmd.AddCommand(watchMailboxCmd)
	watchCmd.AddCommand(watchSocialCmd)
}
