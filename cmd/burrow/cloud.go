package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/burrowhq/burrow/pkg/claim"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

var cloudCmd = &cobra.Command{
	Use:   "cloud",
	Short: "Run the cloud peer: claim drafting work, never send",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.Mode = types.PeerCloud

		v, elog, err := openVault(cfg, "cloud-agent")
		if err != nil {
			return err
		}
		defer elog.Close()
		serveMetrics(cfg.MetricsAddr)

		claimer := claim.NewClaimer(v, types.PeerCloud, elog)
		worker := claim.NewCloudWorker(v, claimer, templateDrafter, elog, claim.CloudConfig{
			Interval: cfg.Interval,
			ClaimTTL: cfg.ClaimTTL,
			DryRun:   cfg.DryRun,
			Once:     cfg.Once,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return worker.Run(ctx)
	},
}

func init() {
	cloudCmd.Flags().Bool("once", false, "run a single claim cycle and exit")
	cloudCmd.Flags().Duration("interval", 0, "claim cycle cadence")
}

// templateDrafter produces a review-ready draft carrying the source task's
// context. The reasoning layer refines drafts through its own skills; the
// worker only guarantees a reviewable file exists in Pending_Approval/.
func templateDrafter(_ context.Context, stem string, note *vault.Note) (*vault.Note, error) {
	var body strings.Builder
	fmt.Fprintf(&body, "# Draft for %s\n\n", stem)
	if sender := note.Field("sender"); sender != "" {
		fmt.Fprintf(&body, "**Reply to:** %s\n\n", sender)
	}
	if subject := note.Field("subject"); subject != "" {
		fmt.Fprintf(&body, "**Subject:** Re: %s\n\n", subject)
	}
	body.WriteString("## Original\n\n")
	body.WriteString(strings.TrimSpace(note.Body))
	body.WriteString("\n\n## Reply\n\nDraft pending review. Edit this section, then move the file to Approved/.\n")

	action := note.Preamble.Action
	if action == types.ActionDraftReply {
		action = types.ActionSendEmail
	}
	return &vault.Note{
		Preamble: vault.Preamble{
			Type:     note.Preamble.Type,
			Action:   action,
			Priority: note.Preamble.Priority,
			Created:  note.Preamble.Created,
			Extra: map[string]string{
				"sender":  note.Field("sender"),
				"subject": note.Field("subject"),
			},
		},
		Body: body.String(),
	}, nil
}
