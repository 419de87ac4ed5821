package payer

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows List results.
type ListFilter struct {
	Active *bool
	Type   string
	Search string
}

// Repository is the storage contract for payers.
type Repository interface {
	Create(ctx context.Context, p *Payer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payer, error)
	Update(ctx context.Context, p *Payer) error
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Payer, int, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}
