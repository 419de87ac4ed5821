package claims

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimflow/claimflow/internal/domain/billables"
)

// Validation issue codes.
const (
	CodeMissingField    = "missing_field"
	CodeInvalidDates    = "invalid_dates"
	CodeFutureDates     = "future_dates"
	CodeNoServices      = "no_services"
	CodeDocumentation   = "documentation_incomplete"
	CodeServiceConflict = "service_conflict"
	CodePayerInactive   = "payer_inactive"
	CodePayerMissing    = "payer_missing"
	CodeRequirement     = "billing_requirement"
	CodeMethodConfig    = "method_not_configured"
	CodeTimelyFiling    = "timely_filing"
)

// billingRequirementChecks maps payer requirement keys onto claim
// predicates. An unknown key is treated as unsatisfied so a payer cannot
// declare a requirement the engine silently ignores.
var billingRequirementChecks = map[string]func(c *Claim, lines []*Line) bool{
	"client_reference": func(c *Claim, _ []*Line) bool { return c.ClientID != uuid.Nil },
	"service_dates": func(c *Claim, _ []*Line) bool {
		return !c.ServiceStartDate.IsZero() && !c.ServiceEndDate.IsZero()
	},
	"claim_notes": func(c *Claim, _ []*Line) bool { return c.Notes != nil && *c.Notes != "" },
	"external_claim_id": func(c *Claim, _ []*Line) bool {
		return c.ExternalClaimID != nil && *c.ExternalClaimID != ""
	},
	"line_item_detail": func(_ *Claim, lines []*Line) bool {
		if len(lines) == 0 {
			return false
		}
		for _, l := range lines {
			if l.Units <= 0 || l.Amount < 0 {
				return false
			}
		}
		return true
	},
	"original_claim_reference": func(c *Claim, _ []*Line) bool {
		if c.Type == TypeOriginal {
			return true
		}
		return c.OriginalClaimID != nil
	},
}

// Validator is the validation engine. All checks run on every call so the
// caller sees every problem at once; nothing short-circuits.
type Validator struct {
	claims        Repository
	lines         LineRepository
	payers        PayerDirectory
	catalog       ServiceCatalog
	machine       *StateMachine
	defaultMethod string
	now           func() time.Time
	logger        zerolog.Logger
}

func NewValidator(claims Repository, lines LineRepository, payers PayerDirectory, catalog ServiceCatalog, machine *StateMachine, defaultMethod string, logger zerolog.Logger) *Validator {
	return &Validator{
		claims:        claims,
		lines:         lines,
		payers:        payers,
		catalog:       catalog,
		machine:       machine,
		defaultMethod: defaultMethod,
		now:           time.Now,
		logger:        logger,
	}
}

// Validate runs every check against the claim and, on an all-clear result
// for a DRAFT claim, promotes it to VALIDATED. On any error the claim is
// left untouched.
func (v *Validator) Validate(ctx context.Context, claimID uuid.UUID) (*ValidationResult, error) {
	claim, err := v.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{ClaimID: claimID}
	lines, err := v.lines.ListByClaim(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("load claim lines: %w", err)
	}

	v.checkHeader(claim, result)
	v.checkLines(ctx, claim, lines, result)
	v.checkPayer(ctx, claim, lines, result)

	result.Valid = len(result.Errors) == 0
	if result.Valid && claim.Status == StatusDraft {
		note := "validation passed"
		if err := v.machine.Transition(ctx, claim, StatusValidated, &note, nil); err != nil {
			return nil, fmt.Errorf("promote claim %s: %w", claimID, err)
		}
	}
	return result, nil
}

// ValidateMany validates each id independently. A failure validating one
// claim becomes a synthetic error entry and never aborts the rest.
func (v *Validator) ValidateMany(ctx context.Context, ids []uuid.UUID) *BatchResult {
	result := &BatchResult{TotalProcessed: len(ids)}
	for _, id := range ids {
		vr, err := v.Validate(ctx, id)
		if err != nil {
			result.recordError(id, err.Error())
			continue
		}
		if !vr.Valid {
			result.recordError(id, summarizeIssues(vr.Errors))
			continue
		}
		result.recordSuccess(id)
	}
	return result
}

func (v *Validator) checkHeader(claim *Claim, result *ValidationResult) {
	if claim.ClientID == uuid.Nil {
		result.addError(CodeMissingField, "claim has no client reference", "client_id", nil)
	}
	if claim.PayerID == uuid.Nil {
		result.addError(CodeMissingField, "claim has no payer reference", "payer_id", nil)
	}
	if claim.ClaimNumber == "" {
		result.addError(CodeMissingField, "claim number is missing", "claim_number", nil)
	}
	if !validClaimTypes[claim.Type] {
		result.addError(CodeMissingField, fmt.Sprintf("claim type %q is not recognized", claim.Type), "type", nil)
	}
	if (claim.Type == TypeAdjustment || claim.Type == TypeReplacement) && claim.OriginalClaimID == nil {
		result.addError(CodeMissingField,
			fmt.Sprintf("%s claims must reference the original claim", claim.Type), "original_claim_id", nil)
	}
	if claim.ServiceStartDate.After(claim.ServiceEndDate) {
		result.addError(CodeInvalidDates, "service start date is after service end date", "service_start_date", map[string]interface{}{
			"service_start_date": claim.ServiceStartDate,
			"service_end_date":   claim.ServiceEndDate,
		})
	}
	now := v.now()
	if claim.ServiceStartDate.After(now) || claim.ServiceEndDate.After(now) {
		result.addWarning(CodeFutureDates, "service dates are in the future", "service_end_date", nil)
	}
}

func (v *Validator) checkLines(ctx context.Context, claim *Claim, lines []*Line, result *ValidationResult) {
	if len(lines) == 0 {
		result.addError(CodeNoServices, "claim has no service lines", "services", nil)
		return
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ServiceID)
	}
	records, err := v.catalog.GetByIDs(ctx, ids)
	if err != nil {
		result.addError(CodeNoServices, fmt.Sprintf("loading service records: %v", err), "services", nil)
		return
	}
	byID := make(map[uuid.UUID]*billables.ServiceRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	for _, l := range lines {
		rec, ok := byID[l.ServiceID]
		if !ok {
			result.addError(CodeNoServices,
				fmt.Sprintf("service %s on line %d no longer exists", l.ServiceID, l.LineNumber),
				"services", map[string]interface{}{"line_number": l.LineNumber})
			continue
		}
		if !rec.DocumentationComplete {
			result.addError(CodeDocumentation,
				fmt.Sprintf("service %s on line %d has incomplete documentation", rec.ServiceCode, l.LineNumber),
				"services", map[string]interface{}{"service_id": rec.ID, "line_number": l.LineNumber})
		}
		if rec.InClaim() && *rec.ClaimID != claim.ID {
			result.addError(CodeServiceConflict,
				fmt.Sprintf("service %s on line %d is attached to claim %s", rec.ServiceCode, l.LineNumber, *rec.ClaimID),
				"services", map[string]interface{}{"service_id": rec.ID, "claim_id": *rec.ClaimID})
		}
	}
}

func (v *Validator) checkPayer(ctx context.Context, claim *Claim, lines []*Line, result *ValidationResult) {
	if claim.PayerID == uuid.Nil {
		return
	}
	p, err := v.payers.GetByID(ctx, claim.PayerID)
	if err != nil {
		result.addError(CodePayerMissing, fmt.Sprintf("payer %s could not be loaded", claim.PayerID), "payer_id", nil)
		return
	}
	if !p.Active {
		result.addError(CodePayerInactive, fmt.Sprintf("payer %s is inactive", p.Name), "payer_id", nil)
	}

	for _, req := range p.BillingRequirements {
		check, known := billingRequirementChecks[req]
		if !known {
			result.addError(CodeRequirement,
				fmt.Sprintf("payer requirement %q is not supported", req), "billing_requirements",
				map[string]interface{}{"requirement": req})
			continue
		}
		if !check(claim, lines) {
			result.addError(CodeRequirement,
				fmt.Sprintf("payer requirement %q is not satisfied", req), "billing_requirements",
				map[string]interface{}{"requirement": req})
		}
	}

	method := p.EffectiveMethod(claim.SubmissionMethod, v.defaultMethod)
	if _, ok := p.SubmissionConfigFor(method); !ok {
		result.addError(CodeMethodConfig,
			fmt.Sprintf("payer %s has no %s submission configuration", p.Name, method),
			"submission_method", map[string]interface{}{"method": method})
	}

	if p.TimelyFilingDays > 0 && !claim.ServiceEndDate.IsZero() {
		deadline := claim.ServiceEndDate.AddDate(0, 0, p.TimelyFilingDays)
		now := v.now()
		if now.After(deadline) {
			daysOver := int(now.Sub(deadline).Hours() / 24)
			result.addError(CodeTimelyFiling,
				fmt.Sprintf("timely filing deadline passed %d day(s) ago", daysOver),
				"service_end_date", map[string]interface{}{
					"deadline":       deadline,
					"days_over":      daysOver,
					"days_remaining": -daysOver,
				})
		}
	}
}

func summarizeIssues(issues []ValidationIssue) string {
	msgs := make([]string, 0, len(issues))
	for _, issue := range issues {
		msgs = append(msgs, issue.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}
