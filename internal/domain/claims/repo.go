package claims

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/claimflow/claimflow/internal/domain/billables"
	"github.com/claimflow/claimflow/internal/domain/payer"
)

// Filter narrows claim listings.
type Filter struct {
	ClientID *uuid.UUID
	PayerID  *uuid.UUID
	Status   Status
	Type     string
	Search   string
}

// Repository is the storage contract for claims.
type Repository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Claim, error)
	GetByNumber(ctx context.Context, number string) (*Claim, error)
	Update(ctx context.Context, c *Claim) error
	List(ctx context.Context, filter Filter, limit, offset int) ([]*Claim, int, error)

	// CompareAndSetStatus applies the transition only when the row still
	// carries the expected status. It returns false without error when a
	// concurrent writer got there first.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status) (bool, error)

	UpdateSubmissionDetails(ctx context.Context, id uuid.UUID, method string, date time.Time, externalID *string) error
	UpdateAdjudication(ctx context.Context, id uuid.UUID, data TransitionData, when time.Time) error
	UpdateTotal(ctx context.Context, id uuid.UUID, total float64) error

	Aging(ctx context.Context) ([]AgingBucket, error)
}

// HistoryRepository is the storage contract for the append-only status log.
type HistoryRepository interface {
	Append(ctx context.Context, h *StatusHistory) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*StatusHistory, error)
	Latest(ctx context.Context, claimID uuid.UUID) (*StatusHistory, error)
}

// LineRepository is the storage contract for claim line items.
type LineRepository interface {
	Add(ctx context.Context, l *Line) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Line, error)
	Remove(ctx context.Context, id uuid.UUID) error
	RemoveByClaim(ctx context.Context, claimID uuid.UUID) error
}

// UnitOfWork runs fn inside one atomic storage transaction. Repository calls
// made with the ctx passed to fn join that transaction.
type UnitOfWork interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

// PayerDirectory is the slice of the payer domain the claims engine needs.
type PayerDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*payer.Payer, error)
}

// ServiceCatalog is the slice of the billables domain the claims engine
// needs: reading service records and flipping their billing status flag.
type ServiceCatalog interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*billables.ServiceRecord, error)
	MarkInClaim(ctx context.Context, id, claimID uuid.UUID) error
	MarkReady(ctx context.Context, id uuid.UUID) error
}
