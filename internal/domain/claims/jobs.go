package claims

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/claimflow/claimflow/internal/platform/jobs"
)

// RegisterJobHandlers wires the claims engine into the job runner. Both
// handlers are idempotent: re-running a refresh re-reads external state, and
// re-running a batch submit skips claims that already left DRAFT/VALIDATED.
func (s *Service) RegisterJobHandlers(runner *jobs.Runner) {
	runner.RegisterHandler(JobStatusRefresh, s.handleStatusRefresh)
	runner.RegisterHandler(JobBatchSubmit, s.handleBatchSubmit)
}

func (s *Service) handleStatusRefresh(ctx context.Context, payload json.RawMessage) error {
	var p StatusRefreshPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode status refresh payload: %w", err)
	}
	result := s.batch.BatchRefresh(ctx, p.ClaimIDs)
	s.logger.Info().
		Int("total", result.TotalProcessed).
		Int("refreshed", result.SuccessCount).
		Int("errors", result.ErrorCount).
		Msg("scheduled status refresh finished")
	if result.ErrorCount == result.TotalProcessed && result.TotalProcessed > 0 {
		return fmt.Errorf("status refresh failed for all %d claim(s)", result.TotalProcessed)
	}
	return nil
}

func (s *Service) handleBatchSubmit(ctx context.Context, payload json.RawMessage) error {
	var spec BatchSubmitSpec
	if err := json.Unmarshal(payload, &spec); err != nil {
		return fmt.Errorf("decode batch submit payload: %w", err)
	}
	result := s.batch.BatchSubmit(ctx, spec)
	s.logger.Info().
		Int("total", result.TotalProcessed).
		Int("submitted", result.SuccessCount).
		Int("errors", result.ErrorCount).
		Msg("scheduled batch submit finished")
	return nil
}
