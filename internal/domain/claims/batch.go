package claims

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimflow/claimflow/internal/domain/payer"
	"github.com/claimflow/claimflow/internal/platform/integration"
	"github.com/claimflow/claimflow/internal/platform/jobs"
)

// Job types handled by the claims engine.
const (
	JobBatchSubmit   = "claims.batch_submit"
	JobStatusRefresh = "claims.status_refresh"
)

// StatusRefreshPayload is the typed job payload for scheduled refreshes.
type StatusRefreshPayload struct {
	ClaimIDs []uuid.UUID `json:"claim_ids"`
}

// awaitingAdjudication marks statuses where the payer still owes an answer,
// so a refresh that lands here gets rechecked later.
var awaitingAdjudication = map[Status]bool{
	StatusSubmitted:    true,
	StatusAcknowledged: true,
	StatusPending:      true,
	StatusAppealed:     true,
}

// BatchProcessor fans the single-claim operations out over many claims. One
// claim's failure never aborts the rest; every result funnels into the
// uniform BatchResult shape.
type BatchProcessor struct {
	claims        Repository
	payers        PayerDirectory
	validator     *Validator
	dispatcher    *Dispatcher
	tracker       *Tracker
	clearinghouse integration.ClearinghouseAdapter
	scheduler     jobs.Scheduler
	opts          DispatcherOptions
	defaultMethod string
	refreshDelay  time.Duration
	recheckDelay  time.Duration
	now           func() time.Time
	logger        zerolog.Logger
}

func NewBatchProcessor(
	claims Repository,
	payers PayerDirectory,
	validator *Validator,
	dispatcher *Dispatcher,
	tracker *Tracker,
	clearinghouse integration.ClearinghouseAdapter,
	scheduler jobs.Scheduler,
	opts DispatcherOptions,
	defaultMethod string,
	refreshDelay, recheckDelay time.Duration,
	logger zerolog.Logger,
) *BatchProcessor {
	return &BatchProcessor{
		claims:        claims,
		payers:        payers,
		validator:     validator,
		dispatcher:    dispatcher,
		tracker:       tracker,
		clearinghouse: clearinghouse,
		scheduler:     scheduler,
		opts:          opts,
		defaultMethod: defaultMethod,
		refreshDelay:  refreshDelay,
		recheckDelay:  recheckDelay,
		now:           time.Now,
		logger:        logger,
	}
}

// BatchValidate validates each claim independently.
func (b *BatchProcessor) BatchValidate(ctx context.Context, ids []uuid.UUID) *BatchResult {
	return b.validator.ValidateMany(ctx, ids)
}

// submissionGroup keys batch grouping: claims sharing a payer and an
// effective method travel together.
type submissionGroup struct {
	PayerID uuid.UUID
	Method  string
}

// BatchSubmit validates and submits the named claims, grouping them by
// (payer, effective method) so electronic groups go out as one adapter call.
// After the batch, a status-refresh job is scheduled for every claim that
// made it out.
func (b *BatchProcessor) BatchSubmit(ctx context.Context, spec BatchSubmitSpec) *BatchResult {
	result := &BatchResult{TotalProcessed: len(spec.ClaimIDs)}

	defaultMethod := spec.DefaultMethod
	if defaultMethod == "" {
		defaultMethod = b.defaultMethod
	}

	groups := make(map[submissionGroup][]*Claim)
	order := make([]submissionGroup, 0)
	for _, id := range spec.ClaimIDs {
		claim, err := b.claims.GetByID(ctx, id)
		if err != nil {
			result.recordError(id, err.Error())
			continue
		}
		p, err := b.payers.GetByID(ctx, claim.PayerID)
		if err != nil {
			result.recordError(id, fmt.Sprintf("payer %s could not be loaded", claim.PayerID))
			continue
		}
		key := submissionGroup{
			PayerID: claim.PayerID,
			Method:  p.EffectiveMethod(claim.SubmissionMethod, defaultMethod),
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], claim)
	}

	for _, key := range order {
		b.submitGroup(ctx, key, groups[key], spec.ActorID, result)
	}

	if len(result.ProcessedClaims) > 0 {
		b.scheduleRefresh(ctx, result.ProcessedClaims, b.refreshDelay)
	}
	return result
}

func (b *BatchProcessor) submitGroup(ctx context.Context, key submissionGroup, members []*Claim, actorID *uuid.UUID, result *BatchResult) {
	// Validate every member first; invalid members drop into the error list
	// and the remainder still ships. Only DRAFT and VALIDATED claims may go
	// out, and the check happens here, before any payload is built, so an
	// already-adjudicated claim never reaches the clearinghouse.
	valid := members[:0:0]
	for _, claim := range members {
		if claim.Status != StatusDraft && claim.Status != StatusValidated {
			result.recordError(claim.ID, businessRule("submittable_status",
				"claim %s cannot be submitted from status %s", claim.ClaimNumber, claim.Status).Error())
			continue
		}
		vr, err := b.validator.Validate(ctx, claim.ID)
		if err != nil {
			result.recordError(claim.ID, err.Error())
			continue
		}
		if !vr.Valid {
			result.recordError(claim.ID, summarizeIssues(vr.Errors))
			continue
		}
		// Validation may have promoted the claim; reload so the submit path
		// sees the stored status, not the snapshot taken before validation.
		current, err := b.claims.GetByID(ctx, claim.ID)
		if err != nil {
			result.recordError(claim.ID, err.Error())
			continue
		}
		valid = append(valid, current)
	}
	if len(valid) == 0 {
		return
	}

	if key.Method == payer.MethodElectronic && len(valid) > 1 {
		b.submitElectronicGroup(ctx, key, valid, actorID, result)
		return
	}

	for _, claim := range valid {
		_, err := b.dispatcher.Submit(ctx, claim.ID, SubmissionSpec{Method: key.Method, ActorID: actorID})
		if err != nil {
			result.recordError(claim.ID, err.Error())
			continue
		}
		result.recordSuccess(claim.ID)
	}
}

// submitElectronicGroup sends one clearinghouse batch call for the group.
// Adapter failure marks every member failed; transport trouble is never
// reported as partial success.
func (b *BatchProcessor) submitElectronicGroup(ctx context.Context, key submissionGroup, members []*Claim, actorID *uuid.UUID, result *BatchResult) {
	p, err := b.payers.GetByID(ctx, key.PayerID)
	if err != nil {
		for _, claim := range members {
			result.recordError(claim.ID, fmt.Sprintf("payer %s could not be loaded", key.PayerID))
		}
		return
	}
	if !p.ElectronicCapable {
		for _, claim := range members {
			result.recordError(claim.ID, fmt.Sprintf("payer %s does not accept electronic claims", p.Name))
		}
		return
	}

	payloads := make([]integration.ClaimPayload, 0, len(members))
	for _, claim := range members {
		payload, err := b.dispatcher.buildPayload(ctx, claim, p)
		if err != nil {
			result.recordError(claim.ID, err.Error())
			continue
		}
		payloads = append(payloads, payload)
	}

	batchRes, err := b.clearinghouse.SubmitBatch(ctx, electronicPayerCode(p), payloads, integration.CallOptions{
		Timeout:       b.opts.Timeout,
		MaxRetries:    b.opts.MaxRetries,
		RetryDelay:    b.opts.RetryDelay,
		CorrelationID: uuid.NewString(),
	})
	if err != nil {
		ierr := &IntegrationError{Service: "clearinghouse", Endpoint: "/claims/batch", Err: err}
		for _, claim := range members {
			result.recordError(claim.ID, ierr.Error())
		}
		return
	}
	if !batchRes.Success {
		ierr := &IntegrationError{Service: "clearinghouse", Endpoint: "/claims/batch", Err: errors.New(batchRes.Error)}
		for _, claim := range members {
			result.recordError(claim.ID, ierr.Error())
		}
		return
	}

	for _, claim := range members {
		if msg, rejected := batchRes.Rejected[claim.ClaimNumber]; rejected {
			result.recordError(claim.ID, fmt.Sprintf("rejected by clearinghouse: %s", msg))
			continue
		}
		spec := SubmissionSpec{Method: key.Method, ActorID: actorID}
		if batchRes.BatchReference != "" {
			ref := batchRes.BatchReference
			spec.ExternalClaimID = &ref
			note := fmt.Sprintf("batch reference %s", ref)
			spec.Notes = &note
		}
		if _, err := b.dispatcher.recordGroupMember(ctx, claim, spec); err != nil {
			result.recordError(claim.ID, err.Error())
			continue
		}
		result.recordSuccess(claim.ID)
	}
}

// BatchRefresh refreshes each claim's external status. Claims still pending
// afterwards get another refresh scheduled with the longer recheck delay.
func (b *BatchProcessor) BatchRefresh(ctx context.Context, ids []uuid.UUID) *BatchResult {
	result := &BatchResult{TotalProcessed: len(ids)}
	var stillPending []uuid.UUID
	for _, id := range ids {
		outcome, err := b.tracker.RefreshStatus(ctx, id)
		if err != nil {
			result.recordError(id, err.Error())
			continue
		}
		result.recordSuccess(id)
		if awaitingAdjudication[outcome.CurrentStatus] {
			stillPending = append(stillPending, id)
		}
	}
	if len(stillPending) > 0 {
		b.scheduleRefresh(ctx, stillPending, b.recheckDelay)
	}
	return result
}

// scheduleRefresh is fire-and-forget: a scheduling failure is logged, never
// propagated, because the submission itself already committed.
func (b *BatchProcessor) scheduleRefresh(ctx context.Context, ids []uuid.UUID, delay time.Duration) {
	if b.scheduler == nil {
		return
	}
	payload := StatusRefreshPayload{ClaimIDs: ids}
	jobID, err := b.scheduler.CreateJob(ctx, JobStatusRefresh, payload, b.now().Add(delay))
	if err != nil {
		b.logger.Error().Err(err).Int("claims", len(ids)).Msg("scheduling status refresh failed")
		return
	}
	b.logger.Info().
		Str("job_id", jobID).
		Int("claims", len(ids)).
		Dur("delay", delay).
		Msg("status refresh scheduled")
}
