package claims

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimflow/claimflow/internal/domain/payer"
	"github.com/claimflow/claimflow/internal/platform/integration"
	"github.com/claimflow/claimflow/internal/platform/notification"
)

// externalStatusMap folds the status codes clearinghouses and payer systems
// report into internal statuses. Codes absent from this table are NOT
// defaulted to PENDING; the refresh flags them and leaves the claim alone so
// a genuine denial cannot hide behind an unknown code.
var externalStatusMap = map[string]Status{
	"ACCEPTED":          StatusAcknowledged,
	"ACK":               StatusAcknowledged,
	"ACKNOWLEDGED":      StatusAcknowledged,
	"RECEIVED":          StatusAcknowledged,
	"IN_PROCESS":        StatusPending,
	"IN_REVIEW":         StatusPending,
	"PENDING":           StatusPending,
	"ADJUDICATING":      StatusPending,
	"PAID":              StatusPaid,
	"FINALIZED_PAYMENT": StatusPaid,
	"PAYMENT_SENT":      StatusPaid,
	"PARTIAL":           StatusPartialPaid,
	"PARTIAL_PAYMENT":   StatusPartialPaid,
	"DENIED":            StatusDenied,
	"REJECTED":          StatusDenied,
	"FINALIZED_DENIAL":  StatusDenied,
}

// MapExternalStatus resolves an external code to an internal status. The
// second return is false for unknown codes.
func MapExternalStatus(code string) (Status, bool) {
	s, ok := externalStatusMap[strings.ToUpper(strings.TrimSpace(code))]
	return s, ok
}

// forwardStep orders the adjudication pipeline for reconciliation. External
// systems report where the claim IS, not every hop it took, so a payer that
// answers IN_PROCESS for a SUBMITTED claim has implicitly acknowledged it.
var forwardStep = map[Status]Status{
	StatusSubmitted:    StatusAcknowledged,
	StatusAcknowledged: StatusPending,
	StatusAppealed:     StatusPending,
}

// progressionStage ranks the pre-adjudication pipeline. A code mapping to an
// earlier stage than the claim already holds is stale reporting, not a
// regression to apply.
var progressionStage = map[Status]int{
	StatusSubmitted:    0,
	StatusAcknowledged: 1,
	StatusPending:      2,
}

func laggingExternal(current, mapped Status) bool {
	c, okCur := progressionStage[current]
	m, okMapped := progressionStage[mapped]
	return okCur && okMapped && m < c
}

// reconciliationPath expands a mapped external status into the chain of
// transitions that carries the claim there, walking the implied intermediate
// states when the target is not a direct successor.
func reconciliationPath(from, to Status) ([]Status, error) {
	if CanTransition(from, to) {
		return []Status{to}, nil
	}
	path := make([]Status, 0, 3)
	cur := from
	for i := 0; i < len(forwardStep); i++ {
		next, ok := forwardStep[cur]
		if !ok {
			break
		}
		path = append(path, next)
		cur = next
		if cur == to {
			return path, nil
		}
		if CanTransition(cur, to) {
			return append(path, to), nil
		}
	}
	return nil, &InvalidTransitionError{From: from, To: to}
}

// RefreshOutcome reports what one status refresh observed.
type RefreshOutcome struct {
	ClaimID        uuid.UUID `json:"claim_id"`
	PreviousStatus Status    `json:"previous_status"`
	CurrentStatus  Status    `json:"current_status"`
	ExternalCode   string    `json:"external_code"`
	Changed        bool      `json:"changed"`
	Unmapped       bool      `json:"unmapped"`
}

// Tracker reads claim dispositions back from external systems and folds
// changes into the status history.
type Tracker struct {
	claims        Repository
	history       HistoryRepository
	payers        PayerDirectory
	machine       *StateMachine
	clearinghouse integration.ClearinghouseAdapter
	payerDirect   integration.PayerAdapter
	notifier      notification.Notifier
	opts          DispatcherOptions
	now           func() time.Time
	logger        zerolog.Logger
}

func NewTracker(
	claims Repository,
	history HistoryRepository,
	payers PayerDirectory,
	machine *StateMachine,
	clearinghouse integration.ClearinghouseAdapter,
	payerDirect integration.PayerAdapter,
	notifier notification.Notifier,
	opts DispatcherOptions,
	logger zerolog.Logger,
) *Tracker {
	return &Tracker{
		claims:        claims,
		history:       history,
		payers:        payers,
		machine:       machine,
		clearinghouse: clearinghouse,
		payerDirect:   payerDirect,
		notifier:      notifier,
		opts:          opts,
		now:           time.Now,
		logger:        logger,
	}
}

// GetStatus reads the latest status-history entry, falling back to the
// claim's creation time when no history exists yet.
func (t *Tracker) GetStatus(ctx context.Context, claimID uuid.UUID) (*StatusInfo, error) {
	claim, err := t.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	info := &StatusInfo{
		ClaimID:     claimID,
		Status:      claim.Status,
		LastUpdated: claim.CreatedAt,
	}
	latest, err := t.history.Latest(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("load status history: %w", err)
	}
	if latest != nil {
		info.LastUpdated = latest.CreatedAt
		if latest.Notes != nil {
			info.Details = map[string]interface{}{"notes": *latest.Notes}
		}
	}
	return info, nil
}

// RefreshStatus queries the external system the claim was submitted through
// and applies the mapped status when it differs from the current one. An
// unmapped external code leaves the claim untouched, logs a warning, and
// notifies operators.
func (t *Tracker) RefreshStatus(ctx context.Context, claimID uuid.UUID) (*RefreshOutcome, error) {
	claim, err := t.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !claim.Submitted() {
		return nil, businessRule("not_submitted",
			"claim %s has not been submitted; nothing to refresh", claim.ClaimNumber)
	}

	adapter, service := t.selectAdapter(ctx, claim)
	result, err := adapter.CheckStatus(ctx, *claim.ExternalClaimID, claim.ClaimNumber, integration.CallOptions{
		Timeout:       t.opts.Timeout,
		MaxRetries:    t.opts.MaxRetries,
		RetryDelay:    t.opts.RetryDelay,
		CorrelationID: claim.ID.String(),
	})
	if err != nil {
		return nil, &IntegrationError{Service: service, Endpoint: "/claims/status", Err: err}
	}

	outcome := &RefreshOutcome{
		ClaimID:        claimID,
		PreviousStatus: claim.Status,
		CurrentStatus:  claim.Status,
		ExternalCode:   result.Status,
	}

	mapped, ok := MapExternalStatus(result.Status)
	if !ok {
		outcome.Unmapped = true
		t.logger.Warn().
			Str("claim_id", claimID.String()).
			Str("external_code", result.Status).
			Msg("external status code has no mapping; claim left unchanged")
		t.notifier.SendSystemNotification(ctx, "claims.status_refresh", notification.SeverityWarning,
			fmt.Sprintf("unmapped external status %q for claim %s", result.Status, claim.ClaimNumber),
			map[string]string{"claim_id": claimID.String(), "external_code": result.Status})
		return outcome, nil
	}

	if mapped == claim.Status || laggingExternal(claim.Status, mapped) {
		return outcome, nil
	}

	path, err := reconciliationPath(claim.Status, mapped)
	if err != nil {
		return nil, err
	}
	note := fmt.Sprintf("status refresh: external code %s", result.Status)
	if detail := formatDetails(result.Details); detail != "" {
		note = fmt.Sprintf("%s (%s)", note, detail)
	}
	for i, step := range path {
		stepNote := note
		if i < len(path)-1 {
			stepNote = fmt.Sprintf("status refresh: %s implied by external code %s", step.Label(), result.Status)
		}
		if err := t.machine.Transition(ctx, claim, step, &stepNote, nil); err != nil {
			return nil, err
		}
	}
	outcome.CurrentStatus = mapped
	outcome.Changed = true

	t.logger.Info().
		Str("claim_id", claimID.String()).
		Str("from", string(outcome.PreviousStatus)).
		Str("to", string(mapped)).
		Msg("claim status reconciled from external system")
	return outcome, nil
}

// GetTimeline returns the claim's status history ascending, with the most
// recent entry flagged active.
func (t *Tracker) GetTimeline(ctx context.Context, claimID uuid.UUID) ([]TimelineEntry, error) {
	if _, err := t.claims.GetByID(ctx, claimID); err != nil {
		return nil, err
	}
	entries, err := t.history.ListByClaim(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("load status history: %w", err)
	}
	timeline := make([]TimelineEntry, 0, len(entries))
	for i, h := range entries {
		timeline = append(timeline, TimelineEntry{
			Status:    h.Status,
			Label:     h.Status.Label(),
			Timestamp: h.CreatedAt,
			Notes:     h.Notes,
			ActorID:   h.ActorID,
			IsActive:  i == len(entries)-1,
		})
	}
	return timeline, nil
}

// selectAdapter picks the external query path: claims submitted
// electronically are tracked through the clearinghouse, everything else goes
// to the payer directly when a direct adapter is wired.
func (t *Tracker) selectAdapter(ctx context.Context, claim *Claim) (integration.PayerAdapter, string) {
	method := payer.MethodElectronic
	if claim.SubmissionMethod != nil {
		method = *claim.SubmissionMethod
	}
	if method == payer.MethodElectronic || t.payerDirect == nil {
		return t.clearinghouse, "clearinghouse"
	}
	return t.payerDirect, "payer"
}

func formatDetails(details map[string]interface{}) string {
	if len(details) == 0 {
		return ""
	}
	parts := make([]string, 0, len(details))
	for k, v := range details {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ", ")
}
