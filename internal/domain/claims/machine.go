package claims

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// StateMachine applies status transitions. Every successful transition sets
// Claim.status and appends a history entry in one storage transaction, so
// the latest history row always matches the claim row.
type StateMachine struct {
	claims  Repository
	history HistoryRepository
	uow     UnitOfWork
}

func NewStateMachine(claims Repository, history HistoryRepository, uow UnitOfWork) *StateMachine {
	return &StateMachine{claims: claims, history: history, uow: uow}
}

// Transition moves claim to the target status. The claim's in-memory status
// is used as the compare-and-set guard, so a concurrent transition on the
// same claim makes exactly one of the writers fail with
// InvalidTransitionError.
func (m *StateMachine) Transition(ctx context.Context, claim *Claim, to Status, notes *string, actorID *uuid.UUID) error {
	if err := CheckTransition(claim.Status, to); err != nil {
		return err
	}
	err := m.uow.Run(ctx, func(ctx context.Context) error {
		applied, err := m.claims.CompareAndSetStatus(ctx, claim.ID, claim.Status, to)
		if err != nil {
			return fmt.Errorf("set status: %w", err)
		}
		if !applied {
			return &InvalidTransitionError{From: claim.Status, To: to}
		}
		return m.history.Append(ctx, &StatusHistory{
			ClaimID: claim.ID,
			Status:  to,
			Notes:   notes,
			ActorID: actorID,
		})
	})
	if err != nil {
		return err
	}
	claim.Status = to
	return nil
}
