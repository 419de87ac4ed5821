package payer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	payers Repository
}

func NewService(payers Repository) *Service {
	return &Service{payers: payers}
}

func (s *Service) Create(ctx context.Context, p *Payer) error {
	if err := validatePayer(p); err != nil {
		return err
	}
	p.Active = true
	return s.payers.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Payer, error) {
	return s.payers.GetByID(ctx, id)
}

// GetByID satisfies the claims package's payer directory interface.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Payer, error) {
	return s.payers.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, p *Payer) error {
	if err := validatePayer(p); err != nil {
		return err
	}
	return s.payers.Update(ctx, p)
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.payers.SetActive(ctx, id, false)
}

func (s *Service) Activate(ctx context.Context, id uuid.UUID) error {
	return s.payers.SetActive(ctx, id, true)
}

func (s *Service) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Payer, int, error) {
	return s.payers.List(ctx, filter, limit, offset)
}

func validatePayer(p *Payer) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !validPayerTypes[p.Type] {
		return fmt.Errorf("invalid payer type %q", p.Type)
	}
	if p.TimelyFilingDays <= 0 {
		return fmt.Errorf("timely_filing_days must be positive")
	}
	if p.PreferredMethod != nil && !ValidMethods[*p.PreferredMethod] {
		return fmt.Errorf("invalid preferred_method %q", *p.PreferredMethod)
	}
	for method := range p.SubmissionConfigs {
		if !ValidMethods[method] {
			return fmt.Errorf("invalid submission config method %q", method)
		}
	}
	if p.ElectronicCapable && p.PayerNumber == nil {
		if _, ok := p.SubmissionConfigs[MethodElectronic]; !ok {
			return fmt.Errorf("electronic capable payer needs a payer_number or electronic submission config")
		}
	}
	return nil
}
