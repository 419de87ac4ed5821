package claims

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimflow/claimflow/internal/domain/payer"
	"github.com/claimflow/claimflow/internal/platform/blobstore"
	"github.com/claimflow/claimflow/internal/platform/integration"
)

// DispatcherOptions bound the outbound adapter calls.
type DispatcherOptions struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Dispatcher routes a validated claim to one of the submission channels and
// normalizes the result. On success it records submission metadata and moves
// the claim to SUBMITTED in one transaction; on failure the claim is left
// unchanged.
type Dispatcher struct {
	claims        Repository
	lines         LineRepository
	payers        PayerDirectory
	machine       *StateMachine
	uow           UnitOfWork
	clearinghouse integration.ClearinghouseAdapter
	blobs         blobstore.BlobStore
	opts          DispatcherOptions
	now           func() time.Time
	logger        zerolog.Logger
}

func NewDispatcher(
	claims Repository,
	lines LineRepository,
	payers PayerDirectory,
	machine *StateMachine,
	uow UnitOfWork,
	clearinghouse integration.ClearinghouseAdapter,
	blobs blobstore.BlobStore,
	opts DispatcherOptions,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		claims:        claims,
		lines:         lines,
		payers:        payers,
		machine:       machine,
		uow:           uow,
		clearinghouse: clearinghouse,
		blobs:         blobs,
		opts:          opts,
		now:           time.Now,
		logger:        logger,
	}
}

// Submit performs a channel-specific submission for one claim.
func (d *Dispatcher) Submit(ctx context.Context, claimID uuid.UUID, spec SubmissionSpec) (*SubmitOutcome, error) {
	claim, err := d.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if claim.Status != StatusDraft && claim.Status != StatusValidated {
		return nil, businessRule("submittable_status",
			"claim %s cannot be submitted from status %s", claim.ClaimNumber, claim.Status)
	}

	p, err := d.payers.GetByID(ctx, claim.PayerID)
	if err != nil {
		return nil, notFound("payer", claim.PayerID)
	}

	method := spec.Method
	if method == "" {
		method = p.EffectiveMethod(claim.SubmissionMethod, payer.MethodElectronic)
	}

	var outcome *SubmitOutcome
	switch method {
	case payer.MethodElectronic:
		outcome, err = d.submitElectronic(ctx, claim, p)
	case payer.MethodPortal:
		outcome, err = d.submitPortal(claim, p)
	case payer.MethodPaper:
		outcome, err = d.submitPaper(ctx, claim, p)
	default:
		return nil, businessRule("submission_method", "unsupported submission method %q", method)
	}
	if err != nil {
		return nil, err
	}

	if err := d.commitSubmission(ctx, claim, method, spec, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

// recordGroupMember records the outcome for one member of a clearinghouse
// batch call that already went out; no channel dispatch happens here.
func (d *Dispatcher) recordGroupMember(ctx context.Context, claim *Claim, spec SubmissionSpec) (*SubmitOutcome, error) {
	if claim.Status != StatusDraft && claim.Status != StatusValidated {
		return nil, businessRule("submittable_status",
			"claim %s cannot be submitted from status %s", claim.ClaimNumber, claim.Status)
	}
	outcome := &SubmitOutcome{Success: true, TrackingNumber: spec.ExternalClaimID}
	if err := d.commitSubmission(ctx, claim, spec.Method, spec, outcome); err != nil {
		return nil, err
	}
	return outcome, nil
}

// commitSubmission writes submission metadata and the SUBMITTED transition
// in one transaction, then mirrors the changes onto the in-memory claim.
func (d *Dispatcher) commitSubmission(ctx context.Context, claim *Claim, method string, spec SubmissionSpec, outcome *SubmitOutcome) error {
	date := d.now()
	if spec.Date != nil {
		date = *spec.Date
	}
	externalID := spec.ExternalClaimID
	if externalID == nil {
		externalID = outcome.TrackingNumber
	}

	note := fmt.Sprintf("submitted via %s channel", method)
	if outcome.TrackingNumber != nil {
		note = fmt.Sprintf("%s, tracking %s", note, *outcome.TrackingNumber)
	}
	if spec.Notes != nil {
		note = fmt.Sprintf("%s: %s", note, *spec.Notes)
	}

	err := d.uow.Run(ctx, func(ctx context.Context) error {
		if err := d.claims.UpdateSubmissionDetails(ctx, claim.ID, method, date, externalID); err != nil {
			return fmt.Errorf("record submission details: %w", err)
		}
		return d.machine.Transition(ctx, claim, StatusSubmitted, &note, spec.ActorID)
	})
	if err != nil {
		return err
	}

	claim.SubmissionMethod = &method
	claim.SubmissionDate = &date
	if externalID != nil {
		claim.ExternalClaimID = externalID
	}

	d.logger.Info().
		Str("claim_id", claim.ID.String()).
		Str("method", method).
		Msg("claim submitted")
	return nil
}

func (d *Dispatcher) submitElectronic(ctx context.Context, claim *Claim, p *payer.Payer) (*SubmitOutcome, error) {
	if !p.ElectronicCapable {
		return nil, businessRule("electronic_capability",
			"payer %s does not accept electronic claims", p.Name)
	}

	payload, err := d.buildPayload(ctx, claim, p)
	if err != nil {
		return nil, err
	}

	// The claim id doubles as the correlation id so a retried call is
	// deduplicated on the clearinghouse side rather than double-billed.
	result, err := d.clearinghouse.Submit(ctx, electronicPayerCode(p), payload, integration.CallOptions{
		Timeout:       d.opts.Timeout,
		MaxRetries:    d.opts.MaxRetries,
		RetryDelay:    d.opts.RetryDelay,
		CorrelationID: claim.ID.String(),
	})
	if err != nil {
		return nil, &IntegrationError{Service: "clearinghouse", Endpoint: "/claims", Err: err}
	}
	if !result.Success {
		return nil, &IntegrationError{Service: "clearinghouse", Endpoint: "/claims", Err: errors.New(result.Error)}
	}

	outcome := &SubmitOutcome{Success: true, Details: result.Data}
	if result.TrackingNumber != "" {
		tn := result.TrackingNumber
		outcome.TrackingNumber = &tn
	}
	return outcome, nil
}

func (d *Dispatcher) submitPortal(claim *Claim, p *payer.Payer) (*SubmitOutcome, error) {
	cfg, _ := p.SubmissionConfigFor(payer.MethodPortal)
	details := map[string]interface{}{
		"claim_number": claim.ClaimNumber,
		"automated":    cfg.Automated,
	}
	if cfg.PortalURL != "" {
		details["portal_url"] = cfg.PortalURL
	}
	if cfg.Instructions != "" {
		details["instructions"] = cfg.Instructions
	} else {
		details["instructions"] = fmt.Sprintf(
			"Enter claim %s for payer %s in the payer portal and record the confirmation number.",
			claim.ClaimNumber, p.Name)
	}
	return &SubmitOutcome{Success: true, Details: details}, nil
}

func (d *Dispatcher) submitPaper(ctx context.Context, claim *Claim, p *payer.Payer) (*SubmitOutcome, error) {
	lines, err := d.lines.ListByClaim(ctx, claim.ID)
	if err != nil {
		return nil, fmt.Errorf("load claim lines: %w", err)
	}

	form := renderPaperForm(claim, p, lines)
	meta, err := d.blobs.Put(ctx, blobstore.BlobMetadata{
		FileName:    fmt.Sprintf("%s-paper-claim.txt", claim.ClaimNumber),
		ContentType: "text/plain",
		ClaimID:     claim.ID.String(),
		Category:    blobstore.CategoryPaperClaim,
	}, bytes.NewReader(form))
	if err != nil {
		return nil, fmt.Errorf("store paper claim form: %w", err)
	}

	details := map[string]interface{}{
		"claim_number": claim.ClaimNumber,
		"document_id":  meta.ID,
	}
	if cfg, ok := p.SubmissionConfigFor(payer.MethodPaper); ok && cfg.MailingAddress != "" {
		details["mailing_address"] = cfg.MailingAddress
	}
	return &SubmitOutcome{Success: true, Details: details}, nil
}

func (d *Dispatcher) buildPayload(ctx context.Context, claim *Claim, p *payer.Payer) (integration.ClaimPayload, error) {
	lines, err := d.lines.ListByClaim(ctx, claim.ID)
	if err != nil {
		return nil, fmt.Errorf("load claim lines: %w", err)
	}

	payloadLines := make([]map[string]interface{}, 0, len(lines))
	for _, l := range lines {
		payloadLines = append(payloadLines, map[string]interface{}{
			"line_number": l.LineNumber,
			"service_id":  l.ServiceID.String(),
			"units":       l.Units,
			"amount":      l.Amount,
		})
	}

	return integration.ClaimPayload{
		"claim_number":       claim.ClaimNumber,
		"claim_type":         claim.Type,
		"client_id":          claim.ClientID.String(),
		"payer_code":         electronicPayerCode(p),
		"total_amount":       claim.TotalAmount,
		"service_start_date": claim.ServiceStartDate.Format("2006-01-02"),
		"service_end_date":   claim.ServiceEndDate.Format("2006-01-02"),
		"lines":              payloadLines,
	}, nil
}

func electronicPayerCode(p *payer.Payer) string {
	if cfg, ok := p.SubmissionConfigFor(payer.MethodElectronic); ok && cfg.PayerCode != "" {
		return cfg.PayerCode
	}
	if p.PayerNumber != nil {
		return *p.PayerNumber
	}
	return p.ID.String()
}

func renderPaperForm(claim *Claim, p *payer.Payer, lines []*Line) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HEALTH CLAIM FORM\n")
	fmt.Fprintf(&buf, "Claim Number: %s\n", claim.ClaimNumber)
	fmt.Fprintf(&buf, "Claim Type:   %s\n", claim.Type)
	fmt.Fprintf(&buf, "Payer:        %s\n", p.Name)
	fmt.Fprintf(&buf, "Client:       %s\n", claim.ClientID)
	fmt.Fprintf(&buf, "Service Period: %s to %s\n",
		claim.ServiceStartDate.Format("2006-01-02"), claim.ServiceEndDate.Format("2006-01-02"))
	fmt.Fprintf(&buf, "\nLINE ITEMS\n")
	for _, l := range lines {
		fmt.Fprintf(&buf, "%3d  service %s  units %.2f  amount %.2f\n",
			l.LineNumber, l.ServiceID, l.Units, l.Amount)
	}
	fmt.Fprintf(&buf, "\nTOTAL: %.2f\n", claim.TotalAmount)
	return buf.Bytes()
}
