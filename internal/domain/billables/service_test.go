package billables

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Service Record Repository --

type mockRepo struct {
	records map[uuid.UUID]*ServiceRecord
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[uuid.UUID]*ServiceRecord)}
}

func (m *mockRepo) Create(_ context.Context, s *ServiceRecord) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = time.Now()
	m.records[s.ID] = s
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*ServiceRecord, error) {
	s, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return s, nil
}

func (m *mockRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*ServiceRecord, error) {
	var result []*ServiceRecord
	for _, id := range ids {
		if s, ok := m.records[id]; ok {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *mockRepo) Update(_ context.Context, s *ServiceRecord) error {
	if _, ok := m.records[s.ID]; !ok {
		return fmt.Errorf("not found")
	}
	m.records[s.ID] = s
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.records, id)
	return nil
}

func (m *mockRepo) ListByClient(_ context.Context, clientID uuid.UUID, limit, offset int) ([]*ServiceRecord, int, error) {
	var result []*ServiceRecord
	for _, s := range m.records {
		if s.ClientID == clientID {
			result = append(result, s)
		}
	}
	return result, len(result), nil
}

func (m *mockRepo) ListReady(_ context.Context, clientID *uuid.UUID, limit, offset int) ([]*ServiceRecord, int, error) {
	var result []*ServiceRecord
	for _, s := range m.records {
		if s.BillingStatus != BillingReady {
			continue
		}
		if clientID != nil && s.ClientID != *clientID {
			continue
		}
		result = append(result, s)
	}
	return result, len(result), nil
}

func (m *mockRepo) SetBillingStatus(_ context.Context, id uuid.UUID, status string, claimID *uuid.UUID) error {
	s, ok := m.records[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	s.BillingStatus = status
	s.ClaimID = claimID
	return nil
}

func testRecord() *ServiceRecord {
	return &ServiceRecord{
		ClientID:              uuid.New(),
		ServiceCode:           "H2019",
		ServiceDate:           time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Units:                 4,
		Rate:                  31.25,
		DocumentationComplete: true,
	}
}

func TestCreateComputesAmount(t *testing.T) {
	svc := NewService(newMockRepo())
	rec := testRecord()
	if err := svc.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.Amount != 125.0 {
		t.Errorf("expected amount 125.0, got %v", rec.Amount)
	}
	if rec.BillingStatus != BillingReady {
		t.Errorf("expected billing status %s, got %s", BillingReady, rec.BillingStatus)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*ServiceRecord)
	}{
		{"missing client", func(s *ServiceRecord) { s.ClientID = uuid.Nil }},
		{"missing code", func(s *ServiceRecord) { s.ServiceCode = "" }},
		{"zero date", func(s *ServiceRecord) { s.ServiceDate = time.Time{} }},
		{"zero units", func(s *ServiceRecord) { s.Units = 0 }},
		{"negative rate", func(s *ServiceRecord) { s.Rate = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRecord()
			tt.mutate(rec)
			if err := svc.Create(ctx, rec); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestMarkInClaimExclusivity(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	rec := testRecord()
	if err := svc.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	claimA := uuid.New()
	claimB := uuid.New()

	if err := svc.MarkInClaim(ctx, rec.ID, claimA); err != nil {
		t.Fatalf("MarkInClaim: %v", err)
	}
	got, _ := svc.Get(ctx, rec.ID)
	if !got.InClaim() || *got.ClaimID != claimA {
		t.Fatal("expected record attached to claim A")
	}

	// Same claim again is a no-op, a different claim is refused.
	if err := svc.MarkInClaim(ctx, rec.ID, claimA); err != nil {
		t.Errorf("re-attach to same claim should succeed: %v", err)
	}
	if err := svc.MarkInClaim(ctx, rec.ID, claimB); err == nil {
		t.Error("expected error attaching to a second claim")
	}

	if err := svc.MarkReady(ctx, rec.ID); err != nil {
		t.Fatalf("MarkReady: %v", err)
	}
	got, _ = svc.Get(ctx, rec.ID)
	if got.InClaim() {
		t.Error("expected record released")
	}
	if got.BillingStatus != BillingReady {
		t.Errorf("expected status %s, got %s", BillingReady, got.BillingStatus)
	}
}

func TestEditGuards(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	rec := testRecord()
	if err := svc.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	claimID := uuid.New()
	if err := svc.MarkInClaim(ctx, rec.ID, claimID); err != nil {
		t.Fatalf("MarkInClaim: %v", err)
	}

	update := *rec
	update.Units = 8
	if err := svc.Update(ctx, &update); err == nil {
		t.Error("expected update of in-claim record to fail")
	}
	if err := svc.Delete(ctx, rec.ID); err == nil {
		t.Error("expected delete of in-claim record to fail")
	}
}
