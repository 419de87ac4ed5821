package claims

import (
	"time"

	"github.com/google/uuid"
)

// Claim types.
const (
	TypeOriginal    = "original"
	TypeAdjustment  = "adjustment"
	TypeReplacement = "replacement"
	TypeVoid        = "void"
)

var validClaimTypes = map[string]bool{
	TypeOriginal:    true,
	TypeAdjustment:  true,
	TypeReplacement: true,
	TypeVoid:        true,
}

// Claim maps to the claims table. A claim is never physically deleted;
// terminal disposition is the VOID status.
type Claim struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	ClaimNumber      string     `db:"claim_number" json:"claim_number"`
	ExternalClaimID  *string    `db:"external_claim_id" json:"external_claim_id,omitempty"`
	ClientID         uuid.UUID  `db:"client_id" json:"client_id"`
	PayerID          uuid.UUID  `db:"payer_id" json:"payer_id"`
	Type             string     `db:"type" json:"type"`
	Status           Status     `db:"status" json:"status"`
	TotalAmount      float64    `db:"total_amount" json:"total_amount"`
	ServiceStartDate time.Time  `db:"service_start_date" json:"service_start_date"`
	ServiceEndDate   time.Time  `db:"service_end_date" json:"service_end_date"`
	SubmissionMethod *string    `db:"submission_method" json:"submission_method,omitempty"`
	SubmissionDate   *time.Time `db:"submission_date" json:"submission_date,omitempty"`
	AdjudicationDate *time.Time `db:"adjudication_date" json:"adjudication_date,omitempty"`
	PaidAmount       *float64   `db:"paid_amount" json:"paid_amount,omitempty"`
	DenialReason     *string    `db:"denial_reason" json:"denial_reason,omitempty"`
	DenialDetails    *string    `db:"denial_details" json:"denial_details,omitempty"`
	AdjustmentCodes  []string   `db:"adjustment_codes" json:"adjustment_codes,omitempty"`
	OriginalClaimID  *uuid.UUID `db:"original_claim_id" json:"original_claim_id,omitempty"`
	Notes            *string    `db:"notes" json:"notes,omitempty"`
	CreatedBy        *uuid.UUID `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy        *uuid.UUID `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// Submitted reports whether the claim has been handed to an external system.
func (c *Claim) Submitted() bool {
	return c.SubmissionDate != nil && c.ExternalClaimID != nil
}

// Line maps to the claim_lines table. One line links one billable service
// record into the claim.
type Line struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ClaimID    uuid.UUID `db:"claim_id" json:"claim_id"`
	ServiceID  uuid.UUID `db:"service_id" json:"service_id"`
	LineNumber int       `db:"line_number" json:"line_number"`
	Units      float64   `db:"units" json:"units"`
	Amount     float64   `db:"amount" json:"amount"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// StatusHistory maps to the claim_status_history table. Entries are
// append-only and never updated.
type StatusHistory struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	ClaimID   uuid.UUID  `db:"claim_id" json:"claim_id"`
	Status    Status     `db:"status" json:"status"`
	Notes     *string    `db:"notes" json:"notes,omitempty"`
	ActorID   *uuid.UUID `db:"actor_id" json:"actor_id,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// ValidationIssue is one error or warning from the validation engine.
type ValidationIssue struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// ValidationResult is ephemeral, never persisted.
type ValidationResult struct {
	ClaimID  uuid.UUID         `json:"claim_id"`
	Valid    bool              `json:"valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

func (r *ValidationResult) addError(code, message, field string, ctx map[string]interface{}) {
	r.Errors = append(r.Errors, ValidationIssue{Code: code, Message: message, Field: field, Context: ctx})
}

func (r *ValidationResult) addWarning(code, message, field string, ctx map[string]interface{}) {
	r.Warnings = append(r.Warnings, ValidationIssue{Code: code, Message: message, Field: field, Context: ctx})
}

// SubmissionSpec carries submission instructions for a single claim.
type SubmissionSpec struct {
	Method          string     `json:"method"`
	Date            *time.Time `json:"date,omitempty"`
	ExternalClaimID *string    `json:"external_claim_id,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	ActorID         *uuid.UUID `json:"actor_id,omitempty"`
}

// SubmitOutcome is the normalized result of one channel submission.
type SubmitOutcome struct {
	Success        bool                   `json:"success"`
	TrackingNumber *string                `json:"tracking_number,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// BatchError is one per-claim failure inside a batch result.
type BatchError struct {
	ClaimID uuid.UUID `json:"claim_id"`
	Message string    `json:"message"`
}

// BatchResult is the uniform shape for batch validate/submit/refresh.
type BatchResult struct {
	TotalProcessed  int          `json:"total_processed"`
	SuccessCount    int          `json:"success_count"`
	ErrorCount      int          `json:"error_count"`
	Errors          []BatchError `json:"errors"`
	ProcessedClaims []uuid.UUID  `json:"processed_claims"`
}

func (b *BatchResult) recordSuccess(id uuid.UUID) {
	b.SuccessCount++
	b.ProcessedClaims = append(b.ProcessedClaims, id)
}

func (b *BatchResult) recordError(id uuid.UUID, message string) {
	b.ErrorCount++
	b.Errors = append(b.Errors, BatchError{ClaimID: id, Message: message})
}

// BatchSubmitSpec names the claims to submit and the fallback method for
// claims and payers that do not choose one.
type BatchSubmitSpec struct {
	ClaimIDs      []uuid.UUID `json:"claim_ids"`
	DefaultMethod string      `json:"default_method"`
	ActorID       *uuid.UUID  `json:"actor_id,omitempty"`
}

// StatusInfo is the read-side view of a claim's current disposition.
type StatusInfo struct {
	ClaimID     uuid.UUID              `json:"claim_id"`
	Status      Status                 `json:"status"`
	LastUpdated time.Time              `json:"last_updated"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// TimelineEntry is one step of a claim's reconstructed history.
type TimelineEntry struct {
	Status    Status     `json:"status"`
	Label     string     `json:"label"`
	Timestamp time.Time  `json:"timestamp"`
	Notes     *string    `json:"notes,omitempty"`
	ActorID   *uuid.UUID `json:"actor_id,omitempty"`
	IsActive  bool       `json:"is_active"`
}

// Progress is an advisory projection of where a claim sits in its lifecycle.
type Progress struct {
	ClaimID             uuid.UUID  `json:"claim_id"`
	Status              Status     `json:"status"`
	DaysInStatus        int        `json:"days_in_status"`
	TotalAgeDays        int        `json:"total_age_days"`
	NextMilestone       string     `json:"next_milestone"`
	EstimatedCompletion *time.Time `json:"estimated_completion,omitempty"`
	AtRisk              bool       `json:"at_risk"`
}

// AgingBucket is one row of the payer-grouped aging report.
type AgingBucket struct {
	PayerID      uuid.UUID `json:"payer_id"`
	PayerName    string    `json:"payer_name"`
	Status       Status    `json:"status"`
	ClaimCount   int       `json:"claim_count"`
	TotalAmount  float64   `json:"total_amount"`
	OldestDays   int       `json:"oldest_days"`
	AverageDays  float64   `json:"average_days"`
}

// TransitionData carries the extra fields some transitions require.
type TransitionData struct {
	Notes           *string    `json:"notes,omitempty"`
	DenialReason    *string    `json:"denial_reason,omitempty"`
	DenialDetails   *string    `json:"denial_details,omitempty"`
	AdjustmentCodes []string   `json:"adjustment_codes,omitempty"`
	PaidAmount      *float64   `json:"paid_amount,omitempty"`
	ActorID         *uuid.UUID `json:"actor_id,omitempty"`
}
