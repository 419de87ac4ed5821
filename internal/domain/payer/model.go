package payer

import (
	"time"

	"github.com/google/uuid"
)

// Submission methods a payer can accept.
const (
	MethodElectronic = "electronic"
	MethodPortal     = "portal"
	MethodPaper      = "paper"
)

// ValidMethods enumerates accepted submission methods.
var ValidMethods = map[string]bool{
	MethodElectronic: true,
	MethodPortal:     true,
	MethodPaper:      true,
}

// SubmissionConfig holds the per-method submission configuration for a payer.
type SubmissionConfig struct {
	// Endpoint or payer code at the clearinghouse for electronic claims.
	PayerCode string `json:"payer_code,omitempty"`
	// PortalURL for portal submissions.
	PortalURL string `json:"portal_url,omitempty"`
	// Automated is true when the portal exposes an API; false means the
	// dispatcher emits manual instructions.
	Automated bool `json:"automated,omitempty"`
	// MailingAddress for paper claims.
	MailingAddress string `json:"mailing_address,omitempty"`
	// Instructions is free-text guidance shown to billing staff.
	Instructions string `json:"instructions,omitempty"`
}

// Payer maps to the payers table.
type Payer struct {
	ID                  uuid.UUID                   `db:"id" json:"id"`
	Name                string                      `db:"name" json:"name"`
	PayerNumber         *string                     `db:"payer_number" json:"payer_number,omitempty"`
	Type                string                      `db:"type" json:"type"`
	Active              bool                        `db:"active" json:"active"`
	ElectronicCapable   bool                        `db:"electronic_capable" json:"electronic_capable"`
	PreferredMethod     *string                     `db:"preferred_method" json:"preferred_method,omitempty"`
	TimelyFilingDays    int                         `db:"timely_filing_days" json:"timely_filing_days"`
	BillingRequirements []string                    `db:"billing_requirements" json:"billing_requirements,omitempty"`
	SubmissionConfigs   map[string]SubmissionConfig `db:"submission_configs" json:"submission_configs,omitempty"`
	ContactEmail        *string                     `db:"contact_email" json:"contact_email,omitempty"`
	ContactPhone        *string                     `db:"contact_phone" json:"contact_phone,omitempty"`
	Notes               *string                     `db:"notes" json:"notes,omitempty"`
	CreatedAt           time.Time                   `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time                   `db:"updated_at" json:"updated_at"`
}

// SubmissionConfigFor returns the configuration for a method and whether one
// is present.
func (p *Payer) SubmissionConfigFor(method string) (SubmissionConfig, bool) {
	cfg, ok := p.SubmissionConfigs[method]
	return cfg, ok
}

// EffectiveMethod resolves the method a claim should use: its own method if
// set, else the payer's preferred method, else the given default.
func (p *Payer) EffectiveMethod(claimMethod *string, defaultMethod string) string {
	if claimMethod != nil && *claimMethod != "" {
		return *claimMethod
	}
	if p.PreferredMethod != nil && *p.PreferredMethod != "" {
		return *p.PreferredMethod
	}
	return defaultMethod
}

// validPayerTypes enumerates accepted payer classifications.
var validPayerTypes = map[string]bool{
	"medicaid":     true,
	"medicare":     true,
	"commercial":   true,
	"managed_care": true,
	"self_pay":     true,
	"other":        true,
}
