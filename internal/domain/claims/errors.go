package claims

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// NotFoundError reports a missing claim, payer, or service record. It is
// terminal; callers should not retry.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func notFound(resource string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id.String()}
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// ValidationFailedError carries the full error and warning list from the
// validation engine. Nothing is committed when it is returned.
type ValidationFailedError struct {
	ClaimID  uuid.UUID
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("claim %s failed validation with %d error(s)", e.ClaimID, len(e.Errors))
}

// InvalidTransitionError reports a status change outside the rule set. The
// transition is never partially applied.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// IntegrationError wraps a failed outbound adapter call.
type IntegrationError struct {
	Service  string
	Endpoint string
	Err      error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integration %s %s: %v", e.Service, e.Endpoint, e.Err)
}

func (e *IntegrationError) Unwrap() error {
	return e.Err
}

// BusinessRuleError reports an operation that is well-formed but not allowed
// by billing rules, such as submitting an already adjudicated claim.
type BusinessRuleError struct {
	Rule    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return e.Message
}

func businessRule(rule, format string, args ...interface{}) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}
