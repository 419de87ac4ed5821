package billables

import (
	"time"

	"github.com/google/uuid"
)

// Billing lifecycle of a service record. A record starts ready_for_billing,
// moves to in_claim when attached to a claim, and back when detached.
const (
	BillingReady   = "ready_for_billing"
	BillingInClaim = "in_claim"
	BillingOnHold  = "on_hold"
)

// ServiceRecord maps to the billable_services table. One record is one
// deliverable unit of service that can appear on at most one open claim.
type ServiceRecord struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	ClientID              uuid.UUID  `db:"client_id" json:"client_id"`
	ServiceCode           string     `db:"service_code" json:"service_code"`
	Description           *string    `db:"description" json:"description,omitempty"`
	ServiceDate           time.Time  `db:"service_date" json:"service_date"`
	Units                 float64    `db:"units" json:"units"`
	Rate                  float64    `db:"rate" json:"rate"`
	Amount                float64    `db:"amount" json:"amount"`
	DocumentationComplete bool       `db:"documentation_complete" json:"documentation_complete"`
	BillingStatus         string     `db:"billing_status" json:"billing_status"`
	ClaimID               *uuid.UUID `db:"claim_id" json:"claim_id,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// InClaim reports whether the record is currently attached to a claim.
func (s *ServiceRecord) InClaim() bool {
	return s.BillingStatus == BillingInClaim && s.ClaimID != nil
}
