package billables

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the storage contract for billable service records.
type Repository interface {
	Create(ctx context.Context, s *ServiceRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*ServiceRecord, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*ServiceRecord, error)
	Update(ctx context.Context, s *ServiceRecord) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]*ServiceRecord, int, error)
	ListReady(ctx context.Context, clientID *uuid.UUID, limit, offset int) ([]*ServiceRecord, int, error)
	SetBillingStatus(ctx context.Context, id uuid.UUID, status string, claimID *uuid.UUID) error
}
