package payer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Payer Repository --

type mockRepo struct {
	payers map[uuid.UUID]*Payer
}

func newMockRepo() *mockRepo {
	return &mockRepo{payers: make(map[uuid.UUID]*Payer)}
}

func (m *mockRepo) Create(_ context.Context, p *Payer) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.payers[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Payer, error) {
	p, ok := m.payers[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return p, nil
}

func (m *mockRepo) Update(_ context.Context, p *Payer) error {
	if _, ok := m.payers[p.ID]; !ok {
		return fmt.Errorf("not found")
	}
	m.payers[p.ID] = p
	return nil
}

func (m *mockRepo) List(_ context.Context, filter ListFilter, limit, offset int) ([]*Payer, int, error) {
	var result []*Payer
	for _, p := range m.payers {
		if filter.Active != nil && p.Active != *filter.Active {
			continue
		}
		if filter.Type != "" && p.Type != filter.Type {
			continue
		}
		result = append(result, p)
	}
	return result, len(result), nil
}

func (m *mockRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	p, ok := m.payers[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	p.Active = active
	return nil
}

func validTestPayer() *Payer {
	num := "MCD-001"
	return &Payer{
		Name:              "State Medicaid",
		PayerNumber:       &num,
		Type:              "medicaid",
		ElectronicCapable: true,
		TimelyFilingDays:  365,
		SubmissionConfigs: map[string]SubmissionConfig{
			MethodElectronic: {PayerCode: "MCD-001"},
		},
	}
}

func TestCreatePayer(t *testing.T) {
	svc := NewService(newMockRepo())
	p := validTestPayer()
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Fatal("expected non-nil ID")
	}
	if !p.Active {
		t.Error("expected new payer to be active")
	}
}

func TestCreatePayerValidation(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Payer)
	}{
		{"missing name", func(p *Payer) { p.Name = "" }},
		{"bad type", func(p *Payer) { p.Type = "hmo" }},
		{"zero filing days", func(p *Payer) { p.TimelyFilingDays = 0 }},
		{"bad preferred method", func(p *Payer) {
			m := "fax"
			p.PreferredMethod = &m
		}},
		{"bad config method", func(p *Payer) {
			p.SubmissionConfigs["carrier_pigeon"] = SubmissionConfig{}
		}},
		{"electronic without payer number or config", func(p *Payer) {
			p.PayerNumber = nil
			delete(p.SubmissionConfigs, MethodElectronic)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validTestPayer()
			tt.mutate(p)
			if err := svc.Create(ctx, p); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDeactivateActivate(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p := validTestPayer()
	if err := svc.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Deactivate(ctx, p.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	got, _ := svc.Get(ctx, p.ID)
	if got.Active {
		t.Error("expected payer inactive after deactivate")
	}

	if err := svc.Activate(ctx, p.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	got, _ = svc.Get(ctx, p.ID)
	if !got.Active {
		t.Error("expected payer active after activate")
	}
}

func TestEffectiveMethod(t *testing.T) {
	portal := MethodPortal
	p := &Payer{PreferredMethod: &portal}

	electronic := MethodElectronic
	if got := p.EffectiveMethod(&electronic, MethodPaper); got != MethodElectronic {
		t.Errorf("claim method should win, got %s", got)
	}
	if got := p.EffectiveMethod(nil, MethodPaper); got != MethodPortal {
		t.Errorf("payer preference should win over default, got %s", got)
	}
	p.PreferredMethod = nil
	if got := p.EffectiveMethod(nil, MethodPaper); got != MethodPaper {
		t.Errorf("default should apply, got %s", got)
	}
}

func TestSubmissionConfigFor(t *testing.T) {
	p := validTestPayer()
	if _, ok := p.SubmissionConfigFor(MethodElectronic); !ok {
		t.Error("expected electronic config")
	}
	if _, ok := p.SubmissionConfigFor(MethodPaper); ok {
		t.Error("did not expect paper config")
	}
}
