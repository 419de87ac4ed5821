package claims

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/claimflow/claimflow/internal/domain/billables"
	"github.com/claimflow/claimflow/internal/domain/payer"
	"github.com/claimflow/claimflow/internal/platform/blobstore"
	"github.com/claimflow/claimflow/internal/platform/integration"
	"github.com/claimflow/claimflow/internal/platform/notification"
)

// -- Mock Claim Repository --

type mockClaimRepo struct {
	claims map[uuid.UUID]*Claim
}

func newMockClaimRepo() *mockClaimRepo {
	return &mockClaimRepo{claims: make(map[uuid.UUID]*Claim)}
}

func (m *mockClaimRepo) Create(_ context.Context, c *Claim) error {
	c.ID = uuid.New()
	if c.Status == "" {
		c.Status = StatusDraft
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = time.Now()
	copied := *c
	m.claims[c.ID] = &copied
	return nil
}

func (m *mockClaimRepo) GetByID(_ context.Context, id uuid.UUID) (*Claim, error) {
	c, ok := m.claims[id]
	if !ok {
		return nil, notFound("claim", id)
	}
	copied := *c
	return &copied, nil
}

func (m *mockClaimRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*Claim, error) {
	var result []*Claim
	for _, id := range ids {
		if c, ok := m.claims[id]; ok {
			copied := *c
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *mockClaimRepo) GetByNumber(_ context.Context, number string) (*Claim, error) {
	for _, c := range m.claims {
		if c.ClaimNumber == number {
			copied := *c
			return &copied, nil
		}
	}
	return nil, &NotFoundError{Resource: "claim", ID: number}
}

func (m *mockClaimRepo) Update(_ context.Context, c *Claim) error {
	if _, ok := m.claims[c.ID]; !ok {
		return notFound("claim", c.ID)
	}
	copied := *c
	copied.Status = m.claims[c.ID].Status
	m.claims[c.ID] = &copied
	return nil
}

func (m *mockClaimRepo) List(_ context.Context, filter Filter, limit, offset int) ([]*Claim, int, error) {
	var result []*Claim
	for _, c := range m.claims {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		copied := *c
		result = append(result, &copied)
	}
	return result, len(result), nil
}

func (m *mockClaimRepo) CompareAndSetStatus(_ context.Context, id uuid.UUID, expected, next Status) (bool, error) {
	c, ok := m.claims[id]
	if !ok {
		return false, notFound("claim", id)
	}
	if c.Status != expected {
		return false, nil
	}
	c.Status = next
	c.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockClaimRepo) UpdateSubmissionDetails(_ context.Context, id uuid.UUID, method string, date time.Time, externalID *string) error {
	c, ok := m.claims[id]
	if !ok {
		return notFound("claim", id)
	}
	c.SubmissionMethod = &method
	c.SubmissionDate = &date
	if externalID != nil {
		c.ExternalClaimID = externalID
	}
	return nil
}

func (m *mockClaimRepo) UpdateAdjudication(_ context.Context, id uuid.UUID, data TransitionData, when time.Time) error {
	c, ok := m.claims[id]
	if !ok {
		return notFound("claim", id)
	}
	c.AdjudicationDate = &when
	if data.PaidAmount != nil {
		c.PaidAmount = data.PaidAmount
	}
	if data.DenialReason != nil {
		c.DenialReason = data.DenialReason
	}
	if data.DenialDetails != nil {
		c.DenialDetails = data.DenialDetails
	}
	if data.AdjustmentCodes != nil {
		c.AdjustmentCodes = data.AdjustmentCodes
	}
	return nil
}

func (m *mockClaimRepo) UpdateTotal(_ context.Context, id uuid.UUID, total float64) error {
	c, ok := m.claims[id]
	if !ok {
		return notFound("claim", id)
	}
	c.TotalAmount = total
	return nil
}

func (m *mockClaimRepo) Aging(_ context.Context) ([]AgingBucket, error) {
	return nil, nil
}

// -- Mock History Repository --

type mockHistoryRepo struct {
	entries []*StatusHistory
	seq     int
}

func newMockHistoryRepo() *mockHistoryRepo {
	return &mockHistoryRepo{}
}

func (m *mockHistoryRepo) Append(_ context.Context, h *StatusHistory) error {
	h.ID = uuid.New()
	m.seq++
	h.CreatedAt = time.Now().Add(time.Duration(m.seq) * time.Millisecond)
	copied := *h
	m.entries = append(m.entries, &copied)
	return nil
}

func (m *mockHistoryRepo) ListByClaim(_ context.Context, claimID uuid.UUID) ([]*StatusHistory, error) {
	var result []*StatusHistory
	for _, h := range m.entries {
		if h.ClaimID == claimID {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *mockHistoryRepo) Latest(ctx context.Context, claimID uuid.UUID) (*StatusHistory, error) {
	all, _ := m.ListByClaim(ctx, claimID)
	if len(all) == 0 {
		return nil, nil
	}
	return all[len(all)-1], nil
}

// -- Mock Line Repository --

type mockLineRepo struct {
	lines map[uuid.UUID]*Line
}

func newMockLineRepo() *mockLineRepo {
	return &mockLineRepo{lines: make(map[uuid.UUID]*Line)}
}

func (m *mockLineRepo) Add(_ context.Context, l *Line) error {
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	copied := *l
	m.lines[l.ID] = &copied
	return nil
}

func (m *mockLineRepo) ListByClaim(_ context.Context, claimID uuid.UUID) ([]*Line, error) {
	var result []*Line
	for _, l := range m.lines {
		if l.ClaimID == claimID {
			result = append(result, l)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].LineNumber < result[j].LineNumber })
	return result, nil
}

func (m *mockLineRepo) Remove(_ context.Context, id uuid.UUID) error {
	delete(m.lines, id)
	return nil
}

func (m *mockLineRepo) RemoveByClaim(_ context.Context, claimID uuid.UUID) error {
	for id, l := range m.lines {
		if l.ClaimID == claimID {
			delete(m.lines, id)
		}
	}
	return nil
}

// -- Pass-through Unit of Work --

type passthroughUoW struct{}

func (passthroughUoW) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// -- Mock Payer Directory --

type mockPayerDirectory struct {
	payers map[uuid.UUID]*payer.Payer
}

func newMockPayerDirectory() *mockPayerDirectory {
	return &mockPayerDirectory{payers: make(map[uuid.UUID]*payer.Payer)}
}

func (m *mockPayerDirectory) add(p *payer.Payer) *payer.Payer {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.payers[p.ID] = p
	return p
}

func (m *mockPayerDirectory) GetByID(_ context.Context, id uuid.UUID) (*payer.Payer, error) {
	p, ok := m.payers[id]
	if !ok {
		return nil, fmt.Errorf("payer not found")
	}
	return p, nil
}

// -- Mock Service Catalog --

type mockCatalog struct {
	records map[uuid.UUID]*billables.ServiceRecord
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{records: make(map[uuid.UUID]*billables.ServiceRecord)}
}

func (m *mockCatalog) add(rec *billables.ServiceRecord) *billables.ServiceRecord {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.BillingStatus == "" {
		rec.BillingStatus = billables.BillingReady
	}
	m.records[rec.ID] = rec
	return rec
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*billables.ServiceRecord, error) {
	var result []*billables.ServiceRecord
	for _, id := range ids {
		if rec, ok := m.records[id]; ok {
			result = append(result, rec)
		}
	}
	return result, nil
}

func (m *mockCatalog) MarkInClaim(_ context.Context, id, claimID uuid.UUID) error {
	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("service not found")
	}
	if rec.BillingStatus == billables.BillingInClaim && rec.ClaimID != nil && *rec.ClaimID != claimID {
		return fmt.Errorf("service already attached")
	}
	rec.BillingStatus = billables.BillingInClaim
	rec.ClaimID = &claimID
	return nil
}

func (m *mockCatalog) MarkReady(_ context.Context, id uuid.UUID) error {
	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("service not found")
	}
	rec.BillingStatus = billables.BillingReady
	rec.ClaimID = nil
	return nil
}

// -- Fake Adapters --

type fakeClearinghouse struct {
	submitCalls   int
	batchCalls    int
	statusCalls   int
	batchPayloads [][]integration.ClaimPayload
	submitResult  *integration.SubmitResult
	submitErr     error
	batchResult   *integration.BatchSubmitResult
	batchErr      error
	statusResult  *integration.StatusResult
	statusErr     error
	statusByRef   map[string]*integration.StatusResult
	errByRef      map[string]error
}

func newFakeClearinghouse() *fakeClearinghouse {
	return &fakeClearinghouse{
		submitResult: &integration.SubmitResult{Success: true, TrackingNumber: "TRK-001"},
		batchResult:  &integration.BatchSubmitResult{Success: true, BatchReference: "BATCH-001"},
		statusResult: &integration.StatusResult{Status: "IN_PROCESS"},
	}
}

func (f *fakeClearinghouse) Submit(_ context.Context, payerID string, payload integration.ClaimPayload, opts integration.CallOptions) (*integration.SubmitResult, error) {
	f.submitCalls++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitResult, nil
}

func (f *fakeClearinghouse) SubmitBatch(_ context.Context, payerID string, payloads []integration.ClaimPayload, opts integration.CallOptions) (*integration.BatchSubmitResult, error) {
	f.batchCalls++
	f.batchPayloads = append(f.batchPayloads, payloads)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	return f.batchResult, nil
}

func (f *fakeClearinghouse) CheckStatus(_ context.Context, externalID, claimRef string, opts integration.CallOptions) (*integration.StatusResult, error) {
	f.statusCalls++
	if err, ok := f.errByRef[claimRef]; ok {
		return nil, err
	}
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if res, ok := f.statusByRef[claimRef]; ok {
		return res, nil
	}
	return f.statusResult, nil
}

// -- Fake Scheduler --

type scheduledJob struct {
	Type    string
	Payload interface{}
	RunAt   time.Time
}

type fakeScheduler struct {
	jobs []scheduledJob
	err  error
}

func (f *fakeScheduler) CreateJob(_ context.Context, jobType string, payload interface{}, runAt time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, scheduledJob{Type: jobType, Payload: payload, RunAt: runAt})
	return uuid.NewString(), nil
}

// -- Test Environment --

type testEnv struct {
	claims        *mockClaimRepo
	history       *mockHistoryRepo
	lines         *mockLineRepo
	payers        *mockPayerDirectory
	catalog       *mockCatalog
	machine       *StateMachine
	validator     *Validator
	dispatcher    *Dispatcher
	tracker       *Tracker
	batch         *BatchProcessor
	svc           *Service
	clearinghouse *fakeClearinghouse
	scheduler     *fakeScheduler
	notifier      *notification.Recorder
	blobs         *blobstore.InMemoryBlobStore
}

func newTestEnv() *testEnv {
	logger := zerolog.Nop()
	env := &testEnv{
		claims:        newMockClaimRepo(),
		history:       newMockHistoryRepo(),
		lines:         newMockLineRepo(),
		payers:        newMockPayerDirectory(),
		catalog:       newMockCatalog(),
		clearinghouse: newFakeClearinghouse(),
		scheduler:     &fakeScheduler{},
		notifier:      notification.NewRecorder(),
		blobs:         blobstore.NewInMemoryBlobStore(),
	}
	uow := passthroughUoW{}
	opts := DispatcherOptions{Timeout: time.Second, MaxRetries: 1, RetryDelay: time.Millisecond}

	env.machine = NewStateMachine(env.claims, env.history, uow)
	env.validator = NewValidator(env.claims, env.lines, env.payers, env.catalog, env.machine, payer.MethodElectronic, logger)
	env.dispatcher = NewDispatcher(env.claims, env.lines, env.payers, env.machine, uow, env.clearinghouse, env.blobs, opts, logger)
	env.tracker = NewTracker(env.claims, env.history, env.payers, env.machine, env.clearinghouse, nil, env.notifier, opts, logger)
	env.batch = NewBatchProcessor(env.claims, env.payers, env.validator, env.dispatcher, env.tracker,
		env.clearinghouse, env.scheduler, opts, payer.MethodElectronic, 30*time.Minute, 60*time.Minute, logger)
	env.svc = NewService(ServiceDeps{
		Claims:     env.claims,
		Lines:      env.lines,
		History:    env.history,
		Payers:     env.payers,
		Catalog:    env.catalog,
		Machine:    env.machine,
		Validator:  env.validator,
		Dispatcher: env.dispatcher,
		Tracker:    env.tracker,
		Batch:      env.batch,
		UoW:        uow,
		Scheduler:  env.scheduler,
	}, ServicePolicy{AutoSubmit: true, RefreshDelay: 30 * time.Minute}, logger)
	return env
}

// -- Fixtures --

func (env *testEnv) addPayer(mutate ...func(*payer.Payer)) *payer.Payer {
	num := "PAY-100"
	p := &payer.Payer{
		Name:              "Acme Health",
		PayerNumber:       &num,
		Type:              "commercial",
		Active:            true,
		ElectronicCapable: true,
		TimelyFilingDays:  365,
		SubmissionConfigs: map[string]payer.SubmissionConfig{
			payer.MethodElectronic: {PayerCode: "ACME01"},
			payer.MethodPortal:     {PortalURL: "https://portal.example.com"},
			payer.MethodPaper:      {MailingAddress: "PO Box 1, Springfield"},
		},
	}
	for _, fn := range mutate {
		fn(p)
	}
	return env.payers.add(p)
}

func (env *testEnv) addService(serviceDate time.Time, amount float64) *billables.ServiceRecord {
	return env.catalog.add(&billables.ServiceRecord{
		ClientID:              uuid.New(),
		ServiceCode:           "H2019",
		ServiceDate:           serviceDate,
		Units:                 2,
		Rate:                  amount / 2,
		Amount:                amount,
		DocumentationComplete: true,
	})
}

// addClaim creates a DRAFT claim with one attached service line.
func (env *testEnv) addClaim(p *payer.Payer, mutate ...func(*Claim)) *Claim {
	ctx := context.Background()
	rec := env.addService(time.Now().AddDate(0, 0, -30), 250)
	claim := &Claim{
		ClaimNumber:      fmt.Sprintf("CLM-TEST-%s", uuid.NewString()[:8]),
		ClientID:         uuid.New(),
		PayerID:          p.ID,
		Type:             TypeOriginal,
		Status:           StatusDraft,
		TotalAmount:      rec.Amount,
		ServiceStartDate: rec.ServiceDate,
		ServiceEndDate:   rec.ServiceDate,
	}
	for _, fn := range mutate {
		fn(claim)
	}
	if err := env.claims.Create(ctx, claim); err != nil {
		panic(err)
	}
	_ = env.lines.Add(ctx, &Line{
		ClaimID:    claim.ID,
		ServiceID:  rec.ID,
		LineNumber: 1,
		Units:      rec.Units,
		Amount:     rec.Amount,
	})
	_ = env.catalog.MarkInClaim(ctx, rec.ID, claim.ID)
	note := "claim created"
	_ = env.history.Append(ctx, &StatusHistory{ClaimID: claim.ID, Status: claim.Status, Notes: &note})
	return mustGet(env, claim.ID)
}

func mustGet(env *testEnv, id uuid.UUID) *Claim {
	c, err := env.claims.GetByID(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return c
}

func strPtr(s string) *string { return &s }
