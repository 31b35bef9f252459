package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/burrowhq/burrow/pkg/types"
)

// Config holds the runtime configuration shared by all Burrow commands.
// Precedence: command-line flag > environment variable > default.
type Config struct {
	// VaultPath is the root of the vault directory tree. Required.
	VaultPath string

	// Mode selects the peer identity: local or cloud.
	Mode types.Peer

	// DryRun logs side-effects instead of performing them.
	DryRun bool

	// Once runs a single cycle and exits.
	Once bool

	// Interval overrides the main poll cadence of the running component.
	Interval time.Duration

	// ReasoningCmd is the executable used to invoke the reasoning layer.
	ReasoningCmd string

	// GitBranch is the vault sync branch.
	GitBranch string

	// ClaimTTL is the age after which a peer's In_Progress entry is
	// considered stale and swept back to Needs_Action.
	ClaimTTL time.Duration

	// AdapterTimeout bounds a single adapter dispatch call.
	AdapterTimeout time.Duration

	// ShutdownGrace bounds in-flight dispatches on shutdown.
	ShutdownGrace time.Duration

	// AmountThreshold is the handbook's approval-required amount.
	AmountThreshold float64

	// MetricsAddr enables the Prometheus listener when non-empty.
	MetricsAddr string

	// SMTP credentials for the email adapter (never persisted into the vault).
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string

	// ERP endpoint for the accounting adapter.
	ERPURL      string
	ERPDatabase string
	ERPUser     string
	ERPPassword string

	// Session cache directories for social adapters, keyed by platform.
	SessionPaths map[string]string

	// PostCommands are external automation commands that publish a post,
	// keyed by platform. A platform without one routes to manual action.
	PostCommands map[string]string

	// WatchCommands are external feed commands emitting inbound platform
	// messages as JSON, keyed by platform.
	WatchCommands map[string]string

	// MailboxSpool is the directory the mailbox watcher reads message
	// exports from.
	MailboxSpool string
}

// Defaults mirrors the cadences and limits of the reference deployment.
func Defaults() *Config {
	return &Config{
		Mode:            types.PeerLocal,
		Interval:        30 * time.Second,
		ReasoningCmd:    "claude",
		GitBranch:       "main",
		ClaimTTL:        30 * time.Minute,
		AdapterTimeout:  30 * time.Second,
		ShutdownGrace:   10 * time.Second,
		AmountThreshold: 100,
		SMTPPort:        587,
		SessionPaths:    map[string]string{},
		PostCommands:    map[string]string{},
		WatchCommands:   map[string]string{},
	}
}

// Load builds a Config from the environment. A .env file in the working
// directory is folded in first, best effort (credentials only, never vault
// state).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	cfg.VaultPath = os.Getenv("VAULT_PATH")
	cfg.DryRun = boolEnv("DRY_RUN")

	switch mode := os.Getenv("AGENT_MODE"); mode {
	case "", string(types.PeerLocal):
		cfg.Mode = types.PeerLocal
	case string(types.PeerCloud):
		cfg.Mode = types.PeerCloud
	default:
		return nil, fmt.Errorf("invalid AGENT_MODE %q (want local or cloud)", mode)
	}

	if v := os.Getenv("CLAUDE_CMD"); v != "" {
		cfg.ReasoningCmd = v
	}
	if v := os.Getenv("GIT_VAULT_BRANCH"); v != "" {
		cfg.GitBranch = v
	}
	if v := os.Getenv("VAULT_SYNC_INTERVAL"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid VAULT_SYNC_INTERVAL %q: %w", v, err)
		}
		cfg.Interval = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("CLAIM_TTL_MINUTES"); v != "" {
		mins, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CLAIM_TTL_MINUTES %q: %w", v, err)
		}
		cfg.ClaimTTL = time.Duration(mins) * time.Minute
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT %q: %w", v, err)
		}
		cfg.SMTPPort = port
	}
	cfg.SMTPUser = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPass = os.Getenv("SMTP_PASSWORD")

	cfg.ERPURL = os.Getenv("ODOO_URL")
	cfg.ERPDatabase = os.Getenv("ODOO_DB")
	cfg.ERPUser = os.Getenv("ODOO_USERNAME")
	cfg.ERPPassword = os.Getenv("ODOO_PASSWORD")

	for _, platform := range []string{"linkedin", "twitter", "facebook", "instagram", "whatsapp"} {
		upper := strings.ToUpper(platform)
		if v := os.Getenv(upper + "_SESSION_PATH"); v != "" {
			cfg.SessionPaths[platform] = v
		}
		if v := os.Getenv(upper + "_POST_CMD"); v != "" {
			cfg.PostCommands[platform] = v
		}
		if v := os.Getenv(upper + "_WATCH_CMD"); v != "" {
			cfg.WatchCommands[platform] = v
		}
	}
	cfg.MailboxSpool = os.Getenv("MAILBOX_SPOOL")

	return cfg, nil
}

// Validate checks the fields every command needs.
func (c *Config) Validate() error {
	if c.VaultPath == "" {
		return fmt.Errorf("vault path is required (--vault or VAULT_PATH)")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	return nil
}

func boolEnv(key string) bool {
	return strings.EqualFold(os.Getenv(key), "true")
}
