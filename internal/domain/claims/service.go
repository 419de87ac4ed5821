package claims

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimflow/claimflow/internal/domain/billables"
	"github.com/claimflow/claimflow/internal/platform/jobs"
)

// adjudicationWindowDays is the advisory window payers are expected to
// answer within; progress projections and risk flags derive from it.
const adjudicationWindowDays = 45

// Service is the lifecycle orchestrator. It sequences validation,
// submission, tracking, and the terminal dispositions (void, appeal,
// denial, payment) on top of the engine components.
type Service struct {
	claims       Repository
	lines        LineRepository
	history      HistoryRepository
	payers       PayerDirectory
	catalog      ServiceCatalog
	machine      *StateMachine
	validator    *Validator
	dispatcher   *Dispatcher
	tracker      *Tracker
	batch        *BatchProcessor
	uow          UnitOfWork
	scheduler    jobs.Scheduler
	autoSubmit   bool
	refreshDelay time.Duration
	now          func() time.Time
	logger       zerolog.Logger
}

// ServiceDeps collects the orchestrator's collaborators.
type ServiceDeps struct {
	Claims     Repository
	Lines      LineRepository
	History    HistoryRepository
	Payers     PayerDirectory
	Catalog    ServiceCatalog
	Machine    *StateMachine
	Validator  *Validator
	Dispatcher *Dispatcher
	Tracker    *Tracker
	Batch      *BatchProcessor
	UoW        UnitOfWork
	Scheduler  jobs.Scheduler
}

// ServicePolicy carries the orchestration policy knobs.
type ServicePolicy struct {
	AutoSubmit   bool
	RefreshDelay time.Duration
}

func NewService(deps ServiceDeps, policy ServicePolicy, logger zerolog.Logger) *Service {
	return &Service{
		claims:       deps.Claims,
		lines:        deps.Lines,
		history:      deps.History,
		payers:       deps.Payers,
		catalog:      deps.Catalog,
		machine:      deps.Machine,
		validator:    deps.Validator,
		dispatcher:   deps.Dispatcher,
		tracker:      deps.Tracker,
		batch:        deps.Batch,
		uow:          deps.UoW,
		scheduler:    deps.Scheduler,
		autoSubmit:   policy.AutoSubmit,
		refreshDelay: policy.RefreshDelay,
		now:          time.Now,
		logger:       logger,
	}
}

// -- Creation and line management --

// CreateClaimInput is everything needed to open a new draft claim.
type CreateClaimInput struct {
	ClientID         uuid.UUID   `json:"client_id"`
	PayerID          uuid.UUID   `json:"payer_id"`
	Type             string      `json:"type"`
	ServiceIDs       []uuid.UUID `json:"service_ids"`
	SubmissionMethod *string     `json:"submission_method,omitempty"`
	OriginalClaimID  *uuid.UUID  `json:"original_claim_id,omitempty"`
	Notes            *string     `json:"notes,omitempty"`
	ActorID          *uuid.UUID  `json:"actor_id,omitempty"`
}

// CreateClaim opens a DRAFT claim over the given service records. The claim
// row, its lines, the service-record flips, and the initial history entry
// commit together or not at all.
func (s *Service) CreateClaim(ctx context.Context, input CreateClaimInput) (*Claim, error) {
	if input.ClientID == uuid.Nil {
		return nil, businessRule("missing_client", "client_id is required")
	}
	if input.PayerID == uuid.Nil {
		return nil, businessRule("missing_payer", "payer_id is required")
	}
	claimType := input.Type
	if claimType == "" {
		claimType = TypeOriginal
	}
	if !validClaimTypes[claimType] {
		return nil, businessRule("claim_type", "unknown claim type %q", claimType)
	}
	if (claimType == TypeAdjustment || claimType == TypeReplacement) && input.OriginalClaimID == nil {
		return nil, businessRule("original_reference", "%s claims must reference the original claim", claimType)
	}
	if len(input.ServiceIDs) == 0 {
		return nil, businessRule("no_services", "a claim needs at least one service record")
	}

	records, err := s.catalog.GetByIDs(ctx, input.ServiceIDs)
	if err != nil {
		return nil, fmt.Errorf("load service records: %w", err)
	}
	if len(records) != len(input.ServiceIDs) {
		return nil, businessRule("missing_services", "one or more service records do not exist")
	}

	claim := &Claim{
		ClaimNumber:      s.newClaimNumber(),
		ClientID:         input.ClientID,
		PayerID:          input.PayerID,
		Type:             claimType,
		Status:           StatusDraft,
		SubmissionMethod: input.SubmissionMethod,
		OriginalClaimID:  input.OriginalClaimID,
		Notes:            input.Notes,
		CreatedBy:        input.ActorID,
		UpdatedBy:        input.ActorID,
	}
	applyServicePeriod(claim, records)

	err = s.uow.Run(ctx, func(ctx context.Context) error {
		if err := s.claims.Create(ctx, claim); err != nil {
			return err
		}
		if err := s.attachRecords(ctx, claim, records); err != nil {
			return err
		}
		note := "claim created"
		return s.history.Append(ctx, &StatusHistory{
			ClaimID: claim.ID,
			Status:  StatusDraft,
			Notes:   &note,
			ActorID: input.ActorID,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("claim_id", claim.ID.String()).
		Str("claim_number", claim.ClaimNumber).
		Int("lines", len(records)).
		Msg("claim created")
	return claim, nil
}

func (s *Service) GetClaim(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.claims.GetByID(ctx, id)
}

func (s *Service) GetClaimByNumber(ctx context.Context, number string) (*Claim, error) {
	return s.claims.GetByNumber(ctx, number)
}

func (s *Service) ListClaims(ctx context.Context, filter Filter, limit, offset int) ([]*Claim, int, error) {
	return s.claims.List(ctx, filter, limit, offset)
}

func (s *Service) GetLines(ctx context.Context, claimID uuid.UUID) ([]*Line, error) {
	if _, err := s.claims.GetByID(ctx, claimID); err != nil {
		return nil, err
	}
	return s.lines.ListByClaim(ctx, claimID)
}

// AttachService adds one billable service to a DRAFT claim and recomputes
// the total and service period.
func (s *Service) AttachService(ctx context.Context, claimID, serviceID uuid.UUID) (*Claim, error) {
	claim, err := s.mutableClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	records, err := s.catalog.GetByIDs(ctx, []uuid.UUID{serviceID})
	if err != nil {
		return nil, fmt.Errorf("load service record: %w", err)
	}
	if len(records) == 0 {
		return nil, notFound("service", serviceID)
	}
	rec := records[0]
	if rec.InClaim() && *rec.ClaimID != claimID {
		return nil, businessRule("service_conflict", "service %s is attached to claim %s", serviceID, *rec.ClaimID)
	}

	err = s.uow.Run(ctx, func(ctx context.Context) error {
		existing, err := s.lines.ListByClaim(ctx, claimID)
		if err != nil {
			return err
		}
		for _, l := range existing {
			if l.ServiceID == serviceID {
				return businessRule("duplicate_line", "service %s is already on this claim", serviceID)
			}
		}
		if err := s.lines.Add(ctx, &Line{
			ClaimID:    claimID,
			ServiceID:  serviceID,
			LineNumber: len(existing) + 1,
			Units:      rec.Units,
			Amount:     rec.Amount,
		}); err != nil {
			return err
		}
		if err := s.catalog.MarkInClaim(ctx, serviceID, claimID); err != nil {
			return err
		}
		return s.recomputeTotals(ctx, claim)
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// DetachService removes one service line from a DRAFT claim, releasing the
// service record back to the billing queue.
func (s *Service) DetachService(ctx context.Context, claimID, serviceID uuid.UUID) (*Claim, error) {
	claim, err := s.mutableClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	err = s.uow.Run(ctx, func(ctx context.Context) error {
		existing, err := s.lines.ListByClaim(ctx, claimID)
		if err != nil {
			return err
		}
		var target *Line
		for _, l := range existing {
			if l.ServiceID == serviceID {
				target = l
				break
			}
		}
		if target == nil {
			return notFound("claim line for service", serviceID)
		}
		if len(existing) == 1 {
			return businessRule("last_line", "a claim must keep at least one service line; void the claim instead")
		}
		if err := s.lines.Remove(ctx, target.ID); err != nil {
			return err
		}
		if err := s.catalog.MarkReady(ctx, serviceID); err != nil {
			return err
		}
		return s.recomputeTotals(ctx, claim)
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// ReplaceLines swaps the claim's entire line set for the given services as
// one all-or-nothing unit.
func (s *Service) ReplaceLines(ctx context.Context, claimID uuid.UUID, serviceIDs []uuid.UUID) (*Claim, error) {
	claim, err := s.mutableClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if len(serviceIDs) == 0 {
		return nil, businessRule("no_services", "a claim needs at least one service record")
	}
	records, err := s.catalog.GetByIDs(ctx, serviceIDs)
	if err != nil {
		return nil, fmt.Errorf("load service records: %w", err)
	}
	if len(records) != len(serviceIDs) {
		return nil, businessRule("missing_services", "one or more service records do not exist")
	}
	for _, rec := range records {
		if rec.InClaim() && *rec.ClaimID != claimID {
			return nil, businessRule("service_conflict", "service %s is attached to claim %s", rec.ID, *rec.ClaimID)
		}
	}

	err = s.uow.Run(ctx, func(ctx context.Context) error {
		old, err := s.lines.ListByClaim(ctx, claimID)
		if err != nil {
			return err
		}
		for _, l := range old {
			if err := s.catalog.MarkReady(ctx, l.ServiceID); err != nil {
				return err
			}
		}
		if err := s.lines.RemoveByClaim(ctx, claimID); err != nil {
			return err
		}
		if err := s.attachRecords(ctx, claim, records); err != nil {
			return err
		}
		applyServicePeriod(claim, records)
		return s.claims.Update(ctx, claim)
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// -- Lifecycle sequencing --

// ProcessOutcome is what processing one claim produced.
type ProcessOutcome struct {
	Validation *ValidationResult `json:"validation"`
	Submitted  bool              `json:"submitted"`
	Submission *SubmitOutcome    `json:"submission,omitempty"`
}

// ProcessClaim validates the claim and, when the auto-submit policy is on
// and validation passed, submits it and schedules a follow-up refresh.
func (s *Service) ProcessClaim(ctx context.Context, id uuid.UUID) (*ProcessOutcome, error) {
	vr, err := s.validator.Validate(ctx, id)
	if err != nil {
		return nil, err
	}
	outcome := &ProcessOutcome{Validation: vr}
	if !vr.Valid || !s.autoSubmit {
		return outcome, nil
	}

	sub, err := s.dispatcher.Submit(ctx, id, SubmissionSpec{})
	if err != nil {
		return nil, err
	}
	outcome.Submitted = true
	outcome.Submission = sub
	s.scheduleRefresh(ctx, id)
	return outcome, nil
}

// ValidateAndSubmit fails closed: any validation error stops the submission.
func (s *Service) ValidateAndSubmit(ctx context.Context, id uuid.UUID, spec SubmissionSpec) (*Claim, error) {
	vr, err := s.validator.Validate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !vr.Valid {
		return nil, &ValidationFailedError{ClaimID: id, Errors: vr.Errors, Warnings: vr.Warnings}
	}
	if _, err := s.dispatcher.Submit(ctx, id, spec); err != nil {
		return nil, err
	}
	s.scheduleRefresh(ctx, id)
	return s.claims.GetByID(ctx, id)
}

// TransitionStatus applies a caller-requested transition. Submission-bound
// targets run the full submission path; payment- and denial-bound targets
// record adjudication alongside the status change.
func (s *Service) TransitionStatus(ctx context.Context, id uuid.UUID, target Status, data TransitionData) (*Claim, error) {
	claim, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(claim.Status, target); err != nil {
		return nil, err
	}

	switch target {
	case StatusSubmitted:
		spec := SubmissionSpec{Notes: data.Notes, ActorID: data.ActorID}
		if _, err := s.dispatcher.Submit(ctx, id, spec); err != nil {
			return nil, err
		}
		s.scheduleRefresh(ctx, id)

	case StatusPaid, StatusPartialPaid:
		if data.PaidAmount == nil {
			return nil, businessRule("paid_amount", "transition to %s requires paid_amount", target)
		}
		if err := s.adjudicate(ctx, claim, target, data); err != nil {
			return nil, err
		}

	case StatusDenied, StatusFinalDenied:
		if data.DenialReason == nil || *data.DenialReason == "" {
			return nil, businessRule("denial_reason", "transition to %s requires denial_reason", target)
		}
		if err := s.adjudicate(ctx, claim, target, data); err != nil {
			return nil, err
		}

	default:
		if err := s.machine.Transition(ctx, claim, target, data.Notes, data.ActorID); err != nil {
			return nil, err
		}
	}

	return s.claims.GetByID(ctx, id)
}

// adjudicate records adjudication metadata and the transition atomically.
func (s *Service) adjudicate(ctx context.Context, claim *Claim, target Status, data TransitionData) error {
	note := data.Notes
	if note == nil {
		if data.DenialReason != nil {
			n := fmt.Sprintf("denied: %s", *data.DenialReason)
			note = &n
		} else if data.PaidAmount != nil {
			n := fmt.Sprintf("adjudicated, paid %.2f", *data.PaidAmount)
			note = &n
		}
	}
	return s.uow.Run(ctx, func(ctx context.Context) error {
		if err := s.claims.UpdateAdjudication(ctx, claim.ID, data, s.now()); err != nil {
			return fmt.Errorf("record adjudication: %w", err)
		}
		return s.machine.Transition(ctx, claim, target, note, data.ActorID)
	})
}

// Void retires the claim. A claim already VOID or FINAL_DENIED cannot be
// voided; on success every attached service returns to the billing queue.
func (s *Service) Void(ctx context.Context, id uuid.UUID, notes *string, actorID *uuid.UUID) (*Claim, error) {
	claim, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if claim.Status == StatusVoid || claim.Status == StatusFinalDenied {
		return nil, businessRule("void", "claim %s is %s and cannot be voided", claim.ClaimNumber, claim.Status)
	}

	err = s.uow.Run(ctx, func(ctx context.Context) error {
		if err := s.machine.Transition(ctx, claim, StatusVoid, notes, actorID); err != nil {
			return err
		}
		lines, err := s.lines.ListByClaim(ctx, id)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if err := s.catalog.MarkReady(ctx, l.ServiceID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// Appeal contests a denial. Only legal from DENIED.
func (s *Service) Appeal(ctx context.Context, id uuid.UUID, notes *string, actorID *uuid.UUID) (*Claim, error) {
	claim, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if claim.Status != StatusDenied {
		return nil, businessRule("appeal", "claim %s is %s; only denied claims can be appealed", claim.ClaimNumber, claim.Status)
	}
	if err := s.machine.Transition(ctx, claim, StatusAppealed, notes, actorID); err != nil {
		return nil, err
	}
	return claim, nil
}

// -- Inspection --

// MonitorProgress derives where the claim sits against the advisory
// adjudication window. Projections, not guarantees.
func (s *Service) MonitorProgress(ctx context.Context, id uuid.UUID) (*Progress, error) {
	claim, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	latest, err := s.history.Latest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load status history: %w", err)
	}

	now := s.now()
	statusSince := claim.CreatedAt
	if latest != nil {
		statusSince = latest.CreatedAt
	}

	progress := &Progress{
		ClaimID:       id,
		Status:        claim.Status,
		DaysInStatus:  wholeDays(now.Sub(statusSince)),
		TotalAgeDays:  wholeDays(now.Sub(claim.CreatedAt)),
		NextMilestone: nextMilestone(claim.Status),
	}

	if awaitingAdjudication[claim.Status] && claim.SubmissionDate != nil {
		eta := claim.SubmissionDate.AddDate(0, 0, adjudicationWindowDays)
		progress.EstimatedCompletion = &eta
		progress.AtRisk = now.After(eta)
	}
	if claim.Status == StatusDraft || claim.Status == StatusValidated {
		if p, err := s.payers.GetByID(ctx, claim.PayerID); err == nil && p.TimelyFilingDays > 0 {
			deadline := claim.ServiceEndDate.AddDate(0, 0, p.TimelyFilingDays)
			if deadline.Sub(now) < 30*24*time.Hour {
				progress.AtRisk = true
			}
		}
	}
	return progress, nil
}

func (s *Service) GetStatus(ctx context.Context, id uuid.UUID) (*StatusInfo, error) {
	return s.tracker.GetStatus(ctx, id)
}

func (s *Service) GetTimeline(ctx context.Context, id uuid.UUID) ([]TimelineEntry, error) {
	return s.tracker.GetTimeline(ctx, id)
}

func (s *Service) RefreshStatus(ctx context.Context, id uuid.UUID) (*RefreshOutcome, error) {
	return s.tracker.RefreshStatus(ctx, id)
}

// TransitionOptions lists the legal next states for a claim.
func (s *Service) TransitionOptions(ctx context.Context, id uuid.UUID) ([]TransitionOption, error) {
	claim, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return TransitionOptionsFor(claim.Status), nil
}

func (s *Service) Validate(ctx context.Context, id uuid.UUID) (*ValidationResult, error) {
	return s.validator.Validate(ctx, id)
}

func (s *Service) AgingReport(ctx context.Context) ([]AgingBucket, error) {
	return s.claims.Aging(ctx)
}

// -- Batch passthroughs --

func (s *Service) BatchValidate(ctx context.Context, ids []uuid.UUID) *BatchResult {
	return s.batch.BatchValidate(ctx, ids)
}

func (s *Service) BatchSubmit(ctx context.Context, spec BatchSubmitSpec) *BatchResult {
	return s.batch.BatchSubmit(ctx, spec)
}

func (s *Service) BatchRefresh(ctx context.Context, ids []uuid.UUID) *BatchResult {
	return s.batch.BatchRefresh(ctx, ids)
}

// -- Helpers --

func (s *Service) mutableClaim(ctx context.Context, id uuid.UUID) (*Claim, error) {
	claim, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if claim.Status != StatusDraft {
		return nil, businessRule("draft_only", "claim %s is %s; only draft claims can change their lines", claim.ClaimNumber, claim.Status)
	}
	return claim, nil
}

func (s *Service) attachRecords(ctx context.Context, claim *Claim, records []*billables.ServiceRecord) error {
	for i, rec := range records {
		if err := s.lines.Add(ctx, &Line{
			ClaimID:    claim.ID,
			ServiceID:  rec.ID,
			LineNumber: i + 1,
			Units:      rec.Units,
			Amount:     rec.Amount,
		}); err != nil {
			return err
		}
		if err := s.catalog.MarkInClaim(ctx, rec.ID, claim.ID); err != nil {
			return err
		}
	}
	return nil
}

// recomputeTotals refreshes the claim total from its current lines.
func (s *Service) recomputeTotals(ctx context.Context, claim *Claim) error {
	lines, err := s.lines.ListByClaim(ctx, claim.ID)
	if err != nil {
		return err
	}
	var total float64
	for _, l := range lines {
		total += l.Amount
	}
	claim.TotalAmount = total
	return s.claims.UpdateTotal(ctx, claim.ID, total)
}

func (s *Service) scheduleRefresh(ctx context.Context, id uuid.UUID) {
	if s.scheduler == nil {
		return
	}
	payload := StatusRefreshPayload{ClaimIDs: []uuid.UUID{id}}
	if _, err := s.scheduler.CreateJob(ctx, JobStatusRefresh, payload, s.now().Add(s.refreshDelay)); err != nil {
		s.logger.Error().Err(err).Str("claim_id", id.String()).Msg("scheduling status refresh failed")
	}
}

func (s *Service) newClaimNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("CLM-%s-%s", s.now().Format("20060102"), suffix)
}

func applyServicePeriod(claim *Claim, records []*billables.ServiceRecord) {
	var total float64
	for i, rec := range records {
		total += rec.Amount
		if i == 0 || rec.ServiceDate.Before(claim.ServiceStartDate) {
			claim.ServiceStartDate = rec.ServiceDate
		}
		if i == 0 || rec.ServiceDate.After(claim.ServiceEndDate) {
			claim.ServiceEndDate = rec.ServiceDate
		}
	}
	claim.TotalAmount = total
}

func nextMilestone(s Status) string {
	switch s {
	case StatusDraft:
		return "validation"
	case StatusValidated:
		return "submission"
	case StatusSubmitted:
		return "payer acknowledgment"
	case StatusAcknowledged:
		return "adjudication"
	case StatusPending:
		return "payment decision"
	case StatusDenied, StatusPartialPaid:
		return "appeal decision"
	case StatusAppealed:
		return "appeal outcome"
	default:
		return "none"
	}
}

func wholeDays(d time.Duration) int {
	return int(d.Hours() / 24)
}
