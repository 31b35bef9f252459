package adapter

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/burrowhq/burrow/pkg/log"
	"github.com/burrowhq/burrow/pkg/types"
	"github.com/burrowhq/burrow/pkg/vault"
)

// ERPClient is the accounting backend. Implementations classify their own
// failures via pkg/types: connection problems Transient, auth and schema
// problems Permanent.
type ERPClient interface {
	// FindPartner resolves a partner name to its backend id; ok is false
	// when no partner matches.
	FindPartner(ctx context.Context, name string) (id int64, ok bool, err error)
	// CreatePartner registers a new partner and returns its id.
	CreatePartner(ctx context.Context, name string) (int64, error)
	// CreateInvoice raises a draft customer invoice for the partner.
	CreateInvoice(ctx context.Context, partnerID int64, amount float64, description string) error
	// CreateQuotation raises a draft sales quotation for the partner.
	CreateQuotation(ctx context.Context, partnerID int64, amount float64, description string) error
}

// AccountingAdapter executes approved ERP actions: invoices and quotations.
// The partner is found or created by name before the document is raised.
type AccountingAdapter struct {
	erp    ERPClient
	logger zerolog.Logger
}

// NewAccountingAdapter wraps an ERP backend.
func NewAccountingAdapter(erp ERPClient) *AccountingAdapter {
	return &AccountingAdapter{erp: erp, logger: log.WithActor("accounting")}
}

func (a *AccountingAdapter) Name() string { return "accounting" }

func (a *AccountingAdapter) Channel() types.Channel { return types.ChannelPayment }

func (a *AccountingAdapter) Match(filename string, note *vault.Note) bool {
	if hasPrefix(filename, "ODOO_") || hasPrefix(filename, "INVOICE_") {
		return true
	}
	if note == nil {
		return false
	}
	if note.Preamble.Type == types.TypeOdooAction {
		return true
	}
	switch note.Preamble.Action {
	case types.ActionCreateInvoice, types.ActionCreateQuotation:
		return true
	}
	return false
}

func (a *AccountingAdapter) Dispatch(ctx context.Context, req Request) (types.Outcome, error) {
	partner := strings.TrimSpace(req.Note.Field("partner_name"))
	if partner == "" {
		partner = strings.TrimSpace(req.Note.Field("customer"))
	}
	if partner == "" {
		return types.OutcomeRejected, types.Integrityf("accounting note has no partner_name field")
	}
	amount := req.Note.Amount()
	if amount <= 0 {
		return types.OutcomeRejected, types.Integrityf("accounting note has no positive amount")
	}

	action := erpAction(req.Note)
	description := strings.TrimSpace(req.Note.Field("description"))
	if description == "" {
		description = "Services"
	}

	if req.DryRun {
		a.logger.Info().
			Str("stem", req.Stem).
			Str("action", action).
			Str("partner", partner).
			Float64("amount", amount).
			Msg("[dry run] would create ERP document")
		return types.OutcomeSent, nil
	}

	partnerID, found, err := a.erp.FindPartner(ctx, partner)
	if err != nil {
		return a.outcome(err)
	}
	if !found {
		partnerID, err = a.erp.CreatePartner(ctx, partner)
		if err != nil {
			return a.outcome(err)
		}
		a.logger.Info().Str("partner", partner).Int64("id", partnerID).Msg("created new partner")
	}

	switch action {
	case types.ActionCreateQuotation:
		err = a.erp.CreateQuotation(ctx, partnerID, amount, description)
	default:
		err = a.erp.CreateInvoice(ctx, partnerID, amount, description)
	}
	if err != nil {
		return a.outcome(err)
	}
	return types.OutcomeSent, nil
}

func (a *AccountingAdapter) outcome(err error) (types.Outcome, error) {
	if types.Retryable(err) {
		return types.OutcomeDeferred, err
	}
	return types.OutcomeRejected, err
}

// erpAction resolves the document type from action, then odoo_action, and
// defaults to an invoice.
func erpAction(note *vault.Note) string {
	switch note.Preamble.Action {
	case types.ActionCreateInvoice, types.ActionCreateQuotation:
		return note.Preamble.Action
	}
	switch strings.ToLower(note.Field("odoo_action")) {
	case "create_quotation", "quotation":
		return types.ActionCreateQuotation
	}
	return types.ActionCreateInvoice
}
