package research

import (
	"context"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/mediledger/nexus/internal/platform/clock"
	"github.com/mediledger/nexus/internal/platform/db"
	"github.com/mediledger/nexus/internal/platform/events"
	"github.com/mediledger/nexus/internal/platform/payment"
)

// ── Mock Repositories ──

type mockStudyRepo struct {
	mu      sync.Mutex
	studies map[uuid.UUID]*Study
}

func newMockStudyRepo() *mockStudyRepo {
	return &mockStudyRepo{studies: make(map[uuid.UUID]*Study)}
}

func (m *mockStudyRepo) Create(_ context.Context, s *Study) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.studies[s.ID] = &cp
	return nil
}

func (m *mockStudyRepo) GetByID(_ context.Context, id uuid.UUID) (*Study, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.studies[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockStudyRepo) Update(_ context.Context, s *Study) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.studies[s.ID]; ok {
		s.ParticipantCount = prev.ParticipantCount
	}
	cp := *s
	m.studies[s.ID] = &cp
	return nil
}

func (m *mockStudyRepo) ReserveSeat(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.studies[id]
	if !ok || s.ParticipantCount >= s.Capacity {
		return false, nil
	}
	s.ParticipantCount++
	return true, nil
}

func (m *mockStudyRepo) ReleaseSeat(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.studies[id]; ok {
		s.ParticipantCount--
	}
	return nil
}

func (m *mockStudyRepo) List(_ context.Context, _, _ int) ([]*Study, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Study
	for _, s := range m.studies {
		cp := *s
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type participantKey struct {
	study    uuid.UUID
	identity uuid.UUID
}

type mockParticipantRepo struct {
	mu           sync.Mutex
	participants map[participantKey]*Participant
}

func newMockParticipantRepo() *mockParticipantRepo {
	return &mockParticipantRepo{participants: make(map[participantKey]*Participant)}
}

func (m *mockParticipantRepo) Upsert(_ context.Context, p *Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := participantKey{p.StudyID, p.Identity}
	if prev, ok := m.participants[k]; ok {
		p.ContributionCount = prev.ContributionCount
		p.CompensationEarned = prev.CompensationEarned
	}
	cp := *p
	m.participants[k] = &cp
	return nil
}

func (m *mockParticipantRepo) Get(_ context.Context, studyID, identity uuid.UUID) (*Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[participantKey{studyID, identity}]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockParticipantRepo) Deactivate(_ context.Context, studyID, identity uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[participantKey{studyID, identity}]
	if !ok || !p.IsActive {
		return false, nil
	}
	p.IsActive = false
	return true, nil
}

func (m *mockParticipantRepo) IncrementContributions(_ context.Context, studyID, identity uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.participants[participantKey{studyID, identity}]; ok {
		p.ContributionCount++
	}
	return nil
}

func (m *mockParticipantRepo) AddCompensation(_ context.Context, studyID, identity uuid.UUID, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.participants[participantKey{studyID, identity}]; ok {
		p.CompensationEarned += amount
	}
	return nil
}

func (m *mockParticipantRepo) ListByStudy(_ context.Context, studyID uuid.UUID) ([]*Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Participant
	for k, p := range m.participants {
		if k.study == studyID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockContributionRepo struct {
	contributions map[uuid.UUID]*Contribution
}

func newMockContributionRepo() *mockContributionRepo {
	return &mockContributionRepo{contributions: make(map[uuid.UUID]*Contribution)}
}

func (m *mockContributionRepo) Create(_ context.Context, c *Contribution) error {
	cp := *c
	m.contributions[c.ID] = &cp
	return nil
}

func (m *mockContributionRepo) GetByID(_ context.Context, id uuid.UUID) (*Contribution, error) {
	c, ok := m.contributions[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *mockContributionRepo) MarkValidated(_ context.Context, id uuid.UUID) (bool, error) {
	c, ok := m.contributions[id]
	if !ok || c.Validated {
		return false, nil
	}
	c.Validated = true
	return true, nil
}

func (m *mockContributionRepo) ListByStudy(_ context.Context, studyID uuid.UUID, _, _ int) ([]*Contribution, int, error) {
	var out []*Contribution
	for _, c := range m.contributions {
		if c.StudyID == studyID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

// ── Helpers ──

type fixture struct {
	svc           *Service
	clk           *clock.Fake
	sink          *events.MemorySink
	ledger        *payment.MemoryLedger
	studies       *mockStudyRepo
	participants  *mockParticipantRepo
	contributions *mockContributionRepo
	investigator  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	sink := events.NewMemorySink()
	ledger := payment.NewMemoryLedger()
	studies := newMockStudyRepo()
	participants := newMockParticipantRepo()
	contributions := newMockContributionRepo()
	svc := NewService(studies, participants, contributions, ledger, sink, clk, db.NopTxRunner{})
	return &fixture{
		svc:           svc,
		clk:           clk,
		sink:          sink,
		ledger:        ledger,
		studies:       studies,
		participants:  participants,
		contributions: contributions,
		investigator:  uuid.New(),
	}
}

// hookTxRunner runs a callback before the transactional function, standing
// in for a competing write that commits just ahead of the transaction.
type hookTxRunner struct {
	before func(ctx context.Context)
}

func (h hookTxRunner) RunTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if h.before != nil {
		h.before(ctx)
	}
	return fn(ctx)
}

func (f *fixture) mustCreateStudy(t *testing.T, capacity int) uuid.UUID {
	t.Helper()
	id, err := f.svc.CreateStudy(context.Background(), f.investigator, []string{"genomic", "vital_signs"}, 50, capacity, 4)
	if err != nil {
		t.Fatalf("create study: %v", err)
	}
	return id
}

func (f *fixture) mustJoin(t *testing.T, studyID uuid.UUID, who uuid.UUID, consents ...string) {
	t.Helper()
	if len(consents) == 0 {
		consents = []string{"genomic"}
	}
	if err := f.svc.JoinStudy(context.Background(), who, studyID, consents); err != nil {
		t.Fatalf("join: %v", err)
	}
}

func assertCategory(t *testing.T, err error, want goerrors.Category) {
	t.Helper()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %v", err)
	}
	if rich.Category != want {
		t.Fatalf("expected category %q, got %q (%v)", want, rich.Category, err)
	}
}

func assertTextCode(t *testing.T, err error, want string) {
	t.Helper()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %v", err)
	}
	if rich.TextCode != want {
		t.Fatalf("expected text code %q, got %q (%v)", want, rich.TextCode, err)
	}
}

// ── Tests ──

func TestCreateStudy_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name      string
		dataTypes []string
		unit      int64
		capacity  int
		weeks     int
	}{
		{"empty data types", nil, 50, 10, 4},
		{"zero compensation", []string{"genomic"}, 0, 10, 4},
		{"zero capacity", []string{"genomic"}, 50, 0, 4},
		{"zero duration", []string{"genomic"}, 50, 10, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateStudy(ctx, f.investigator, tc.dataTypes, tc.unit, tc.capacity, tc.weeks)
			assertCategory(t, err, goerrors.CategoryValidation)
		})
	}
}

func TestCreateStudy_WindowFromWeeks(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)

	study, err := f.svc.GetStudy(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := study.StartAt.Add(4 * 7 * 24 * time.Hour)
	if !study.EndAt.Equal(want) {
		t.Fatalf("end = %v, want %v", study.EndAt, want)
	}
	if study.State != StateActive {
		t.Fatalf("state = %q, want active", study.State)
	}
}

func TestJoinStudy_CapacityOne(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 1)
	f.mustJoin(t, id, uuid.New())

	err := f.svc.JoinStudy(context.Background(), uuid.New(), id, []string{"genomic"})
	assertCategory(t, err, goerrors.CategoryConflict)
	assertTextCode(t, err, "STUDY_FULL")
}

func TestJoinStudy_ConcurrentLastSlot(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 1)

	const joiners = 8
	errs := make([]error, joiners)
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.svc.JoinStudy(context.Background(), uuid.New(), id, []string{"genomic"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assertTextCode(t, err, "STUDY_FULL")
	}
	if succeeded != 1 {
		t.Fatalf("successful joins = %d, want exactly 1", succeeded)
	}

	study, err := f.svc.GetStudy(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if study.ParticipantCount != 1 {
		t.Fatalf("participant count = %d, want 1", study.ParticipantCount)
	}
}

func TestJoinStudy_ConsentOutsideScope(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)

	err := f.svc.JoinStudy(context.Background(), uuid.New(), id, []string{"genomic", "imaging"})
	assertCategory(t, err, goerrors.CategoryValidation)
}

func TestJoinStudy_AlreadyActive(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)
	member := uuid.New()
	f.mustJoin(t, id, member)

	err := f.svc.JoinStudy(context.Background(), member, id, []string{"genomic"})
	assertCategory(t, err, goerrors.CategoryConflict)
}

func TestLeaveStudy_PreservesCounters(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)
	member := uuid.New()
	f.mustJoin(t, id, member)

	if _, err := f.svc.ContributeData(context.Background(), member, id, "genomic", "cid:data", 2); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if err := f.svc.LeaveStudy(context.Background(), member, id); err != nil {
		t.Fatalf("leave: %v", err)
	}

	p, _ := f.participants.Get(context.Background(), id, member)
	if p.IsActive {
		t.Fatal("membership should be inactive")
	}
	if p.ContributionCount != 1 {
		t.Fatalf("contribution count = %d, want preserved 1", p.ContributionCount)
	}

	study, _ := f.svc.GetStudy(context.Background(), id)
	if study.ParticipantCount != 0 {
		t.Fatalf("participant count = %d, want 0", study.ParticipantCount)
	}

	// Re-joining reuses the row; counters survive.
	f.mustJoin(t, id, member, "vital_signs")
	p, _ = f.participants.Get(context.Background(), id, member)
	if p.ContributionCount != 1 {
		t.Fatalf("contribution count after re-join = %d, want 1", p.ContributionCount)
	}
}

func TestLeaveStudy_NotParticipant(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)

	err := f.svc.LeaveStudy(context.Background(), uuid.New(), id)
	assertCategory(t, err, goerrors.CategoryConflict)
}

func TestContributeData_RequiresConsentForType(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)
	member := uuid.New()
	f.mustJoin(t, id, member, "genomic")

	_, err := f.svc.ContributeData(context.Background(), member, id, "vital_signs", "cid:data", 1)
	assertCategory(t, err, goerrors.CategoryAuthz)
}

func TestContributeData_OutOfWindow(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)
	member := uuid.New()
	f.mustJoin(t, id, member)

	f.clk.Advance(5 * 7 * 24 * time.Hour)

	_, err := f.svc.ContributeData(context.Background(), member, id, "genomic", "cid:data", 1)
	assertTextCode(t, err, "OUT_OF_WINDOW")
}

func TestContributeData_NonMember(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)

	_, err := f.svc.ContributeData(context.Background(), uuid.New(), id, "genomic", "cid:data", 1)
	assertCategory(t, err, goerrors.CategoryAuthz)
}

func TestContributeData_LeaveAheadOfTransaction(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)
	member := uuid.New()
	f.mustJoin(t, id, member)

	// The member leaves just before the contribution transaction starts;
	// the membership check must observe the departure.
	svc := NewService(f.studies, f.participants, f.contributions, f.ledger, f.sink, f.clk, hookTxRunner{
		before: func(ctx context.Context) {
			if err := f.svc.LeaveStudy(ctx, member, id); err != nil {
				t.Errorf("leave: %v", err)
			}
		},
	})

	_, err := svc.ContributeData(context.Background(), member, id, "genomic", "cid:data", 1)
	assertCategory(t, err, goerrors.CategoryAuthz)
	assertTextCode(t, err, "NOT_PARTICIPANT")

	_, total, err := f.contributions.ListByStudy(context.Background(), id, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 {
		t.Fatalf("contributions recorded = %d, want 0", total)
	}
}

func TestContributeData_PauseAheadOfTransaction(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)
	member := uuid.New()
	f.mustJoin(t, id, member)

	svc := NewService(f.studies, f.participants, f.contributions, f.ledger, f.sink, f.clk, hookTxRunner{
		before: func(ctx context.Context) {
			if err := f.svc.PauseStudy(ctx, f.investigator, id, "protocol review"); err != nil {
				t.Errorf("pause: %v", err)
			}
		},
	})

	_, err := svc.ContributeData(context.Background(), member, id, "genomic", "cid:data", 1)
	assertCategory(t, err, goerrors.CategoryConflict)

	_, total, err := f.contributions.ListByStudy(context.Background(), id, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 {
		t.Fatalf("contributions recorded = %d, want 0", total)
	}
}

func TestValidateAndPay(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)
	member := uuid.New()
	f.mustJoin(t, id, member)

	// unit 50 x value 3 = 150 required.
	cid, err := f.svc.ContributeData(context.Background(), member, id, "genomic", "cid:data", 3)
	if err != nil {
		t.Fatalf("contribute: %v", err)
	}

	err = f.svc.ValidateAndPayContribution(context.Background(), f.investigator, id, cid, 149)
	assertCategory(t, err, goerrors.CategoryOperation)

	if err := f.svc.ValidateAndPayContribution(context.Background(), f.investigator, id, cid, 200); err != nil {
		t.Fatalf("validate: %v", err)
	}

	balance, _ := f.ledger.Balance(context.Background(), member)
	if balance != 200 {
		t.Fatalf("balance = %d, want the full 200", balance)
	}
	p, _ := f.participants.Get(context.Background(), id, member)
	if p.CompensationEarned != 200 {
		t.Fatalf("earned = %d, want 200", p.CompensationEarned)
	}
}

func TestValidateAndPay_ExactlyOnce(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)
	member := uuid.New()
	f.mustJoin(t, id, member)

	cid, err := f.svc.ContributeData(context.Background(), member, id, "genomic", "cid:data", 1)
	if err != nil {
		t.Fatalf("contribute: %v", err)
	}
	if err := f.svc.ValidateAndPayContribution(context.Background(), f.investigator, id, cid, 50); err != nil {
		t.Fatalf("first validate: %v", err)
	}

	err = f.svc.ValidateAndPayContribution(context.Background(), f.investigator, id, cid, 50)
	assertCategory(t, err, goerrors.CategoryConflict)

	balance, _ := f.ledger.Balance(context.Background(), member)
	if balance != 50 {
		t.Fatalf("balance = %d after double validation attempt, want 50", balance)
	}
}

func TestValidateAndPay_InvestigatorOnly(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)
	member := uuid.New()
	f.mustJoin(t, id, member)

	cid, err := f.svc.ContributeData(context.Background(), member, id, "genomic", "cid:data", 1)
	if err != nil {
		t.Fatalf("contribute: %v", err)
	}
	err = f.svc.ValidateAndPayContribution(context.Background(), member, id, cid, 50)
	assertCategory(t, err, goerrors.CategoryAuthz)
}

func TestCompleteStudy_OnlyAtEnd(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)

	err := f.svc.CompleteStudy(context.Background(), f.investigator, id)
	assertCategory(t, err, goerrors.CategoryConflict)

	f.clk.Advance(4 * 7 * 24 * time.Hour)
	if err := f.svc.CompleteStudy(context.Background(), f.investigator, id); err != nil {
		t.Fatalf("complete: %v", err)
	}

	study, _ := f.svc.GetStudy(context.Background(), id)
	if study.State != StateCompleted {
		t.Fatalf("state = %q, want completed", study.State)
	}

	// Terminal.
	err = f.svc.ResumeStudy(context.Background(), f.investigator, id)
	assertCategory(t, err, goerrors.CategoryConflict)
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)

	err := f.svc.PauseStudy(context.Background(), f.investigator, id, "")
	assertCategory(t, err, goerrors.CategoryValidation)

	if err := f.svc.PauseStudy(context.Background(), f.investigator, id, "protocol review"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	// No joins or contributions while paused.
	err = f.svc.JoinStudy(context.Background(), uuid.New(), id, []string{"genomic"})
	assertCategory(t, err, goerrors.CategoryConflict)

	// Completed is unreachable from Paused.
	f.clk.Advance(4 * 7 * 24 * time.Hour)
	err = f.svc.CompleteStudy(context.Background(), f.investigator, id)
	assertCategory(t, err, goerrors.CategoryConflict)

	if err := f.svc.ResumeStudy(context.Background(), f.investigator, id); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := f.svc.CompleteStudy(context.Background(), f.investigator, id); err != nil {
		t.Fatalf("complete after resume: %v", err)
	}
}

func TestPauseStudy_InvestigatorOnly(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateStudy(t, 10)

	err := f.svc.PauseStudy(context.Background(), uuid.New(), id, "reason")
	assertCategory(t, err, goerrors.CategoryAuthz)
}
