package billables

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	records Repository
}

func NewService(records Repository) *Service {
	return &Service{records: records}
}

func (s *Service) Create(ctx context.Context, rec *ServiceRecord) error {
	if rec.ClientID == uuid.Nil {
		return fmt.Errorf("client_id is required")
	}
	if rec.ServiceCode == "" {
		return fmt.Errorf("service_code is required")
	}
	if rec.ServiceDate.IsZero() {
		return fmt.Errorf("service_date is required")
	}
	if rec.Units <= 0 {
		return fmt.Errorf("units must be positive")
	}
	if rec.Rate < 0 {
		return fmt.Errorf("rate cannot be negative")
	}
	if rec.Amount == 0 {
		rec.Amount = rec.Units * rec.Rate
	}
	rec.BillingStatus = BillingReady
	return s.records.Create(ctx, rec)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ServiceRecord, error) {
	return s.records.GetByID(ctx, id)
}

// GetByIDs satisfies the claims package's service catalog interface.
func (s *Service) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*ServiceRecord, error) {
	return s.records.GetByIDs(ctx, ids)
}

func (s *Service) Update(ctx context.Context, rec *ServiceRecord) error {
	existing, err := s.records.GetByID(ctx, rec.ID)
	if err != nil {
		return err
	}
	if existing.InClaim() {
		return fmt.Errorf("service %s is attached to claim %s and cannot be edited", rec.ID, *existing.ClaimID)
	}
	if rec.Units <= 0 {
		return fmt.Errorf("units must be positive")
	}
	rec.Amount = rec.Units * rec.Rate
	rec.BillingStatus = existing.BillingStatus
	rec.ClaimID = existing.ClaimID
	return s.records.Update(ctx, rec)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	existing, err := s.records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.InClaim() {
		return fmt.Errorf("service %s is attached to claim %s and cannot be deleted", id, *existing.ClaimID)
	}
	return s.records.Delete(ctx, id)
}

func (s *Service) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*ServiceRecord, int, error) {
	return s.records.ListByClient(ctx, clientID, limit, offset)
}

func (s *Service) ListReady(ctx context.Context, clientID *uuid.UUID, limit, offset int) ([]*ServiceRecord, int, error) {
	return s.records.ListReady(ctx, clientID, limit, offset)
}

// MarkInClaim flips a record to in_claim under the given claim. It refuses
// records already held by another claim so one service cannot be billed twice.
func (s *Service) MarkInClaim(ctx context.Context, id, claimID uuid.UUID) error {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.InClaim() && *rec.ClaimID != claimID {
		return fmt.Errorf("service %s already attached to claim %s", id, *rec.ClaimID)
	}
	return s.records.SetBillingStatus(ctx, id, BillingInClaim, &claimID)
}

// MarkReady releases a record back to the billing queue.
func (s *Service) MarkReady(ctx context.Context, id uuid.UUID) error {
	return s.records.SetBillingStatus(ctx, id, BillingReady, nil)
}
