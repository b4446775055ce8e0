package consent

import (
	"context"
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

type mockAgreementRepo struct {
	agreements map[uuid.UUID]*Agreement
}

func newMockAgreementRepo() *mockAgreementRepo {
	return &mockAgreementRepo{agreements: make(map[uuid.UUID]*Agreement)}
}

func (m *mockAgreementRepo) Create(_ context.Context, a *Agreement) error {
	cp := *a
	m.agreements[a.ID] = &cp
	return nil
}

func (m *mockAgreementRepo) GetByID(_ context.Context, id uuid.UUID) (*Agreement, error) {
	a, ok := m.agreements[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *mockAgreementRepo) Update(_ context.Context, a *Agreement) error {
	cp := *a
	m.agreements[a.ID] = &cp
	return nil
}

func (m *mockAgreementRepo) ListByPatient(_ context.Context, patient uuid.UUID, _, _ int) ([]*Agreement, int, error) {
	var out []*Agreement
	for _, a := range m.agreements {
		if a.Patient == patient {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockAgreementRepo) ListByProvider(_ context.Context, provider uuid.UUID, _, _ int) ([]*Agreement, int, error) {
	var out []*Agreement
	for _, a := range m.agreements {
		if a.Provider == provider {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

type subGrantKey struct {
	consent   uuid.UUID
	requester uuid.UUID
	dataType  string
}

type mockSubGrantRepo struct {
	grants map[subGrantKey]*SubGrant
}

func newMockSubGrantRepo() *mockSubGrantRepo {
	return &mockSubGrantRepo{grants: make(map[subGrantKey]*SubGrant)}
}

func (m *mockSubGrantRepo) Upsert(_ context.Context, g *SubGrant) error {
	k := subGrantKey{g.ConsentID, g.Requester, g.DataType}
	if prev, ok := m.grants[k]; ok {
		g.CompensationPaid = prev.CompensationPaid
	}
	cp := *g
	m.grants[k] = &cp
	return nil
}

func (m *mockSubGrantRepo) Get(_ context.Context, consentID, requester uuid.UUID, dataType string) (*SubGrant, error) {
	g, ok := m.grants[subGrantKey{consentID, requester, dataType}]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (m *mockSubGrantRepo) Deactivate(_ context.Context, consentID, requester uuid.UUID, dataType string) (bool, error) {
	g, ok := m.grants[subGrantKey{consentID, requester, dataType}]
	if !ok || !g.IsActive {
		return false, nil
	}
	g.IsActive = false
	return true, nil
}

func (m *mockSubGrantRepo) AddCompensation(_ context.Context, consentID, requester uuid.UUID, dataType string, amount int64) error {
	if g, ok := m.grants[subGrantKey{consentID, requester, dataType}]; ok {
		g.CompensationPaid += amount
	}
	return nil
}

func (m *mockSubGrantRepo) ListByConsent(_ context.Context, consentID uuid.UUID) ([]*SubGrant, error) {
	var out []*SubGrant
	for k, g := range m.grants {
		if k.consent == consentID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ── Helpers ──

type fixture struct {
	svc      *Service
	clk      *clock.Fake
	sink     *events.MemorySink
	ledger   *payment.MemoryLedger
	grants   *mockSubGrantRepo
	patient  uuid.UUID
	provider uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	sink := events.NewMemorySink()
	ledger := payment.NewMemoryLedger()
	grants := newMockSubGrantRepo()
	svc := NewService(newMockAgreementRepo(), grants, ledger, sink, clk, db.NopTxRunner{})
	return &fixture{
		svc:      svc,
		clk:      clk,
		sink:     sink,
		ledger:   ledger,
		grants:   grants,
		patient:  uuid.New(),
		provider: uuid.New(),
	}
}

func (f *fixture) mustCreate(t *testing.T, autoRenew bool) uuid.UUID {
	t.Helper()
	id, err := f.svc.CreateConsent(context.Background(), f.patient, f.provider,
		[]string{"lab_result", "imaging"}, 48, 100, "care coordination", "high", autoRenew)
	if err != nil {
		t.Fatalf("create consent: %v", err)
	}
	return id
}

func (f *fixture) mustActivate(t *testing.T, id uuid.UUID) {
	t.Helper()
	if err := f.svc.ActivateConsent(context.Background(), f.patient, id); err != nil {
		t.Fatalf("activate: %v", err)
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

// ── Tests ──

func TestCreateConsent_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.CreateConsent(ctx, f.patient, f.provider, nil, 48, 100, "p", "high", false); err == nil {
		t.Fatal("expected error for empty data types")
	}
	if _, err := f.svc.CreateConsent(ctx, f.patient, uuid.Nil, []string{"x"}, 48, 100, "p", "high", false); err == nil {
		t.Fatal("expected error for nil provider")
	}
	if _, err := f.svc.CreateConsent(ctx, f.patient, f.patient, []string{"x"}, 48, 100, "p", "high", false); err == nil {
		t.Fatal("expected error for self-consent")
	}
	_, err := f.svc.CreateConsent(ctx, f.patient, f.provider, []string{"x"}, 0, 100, "p", "high", false)
	assertCategory(t, err, goerrors.CategoryValidation)
}

func TestCreateConsent_StartsInactive(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)

	a, err := f.svc.GetConsent(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.State != StateCreated {
		t.Fatalf("state = %q, want created", a.State)
	}
	if a.ExpiresAt != nil {
		t.Fatal("expiry must be unset before activation")
	}
}

func TestActivateConsent(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)
	f.mustActivate(t, id)

	a, _ := f.svc.GetConsent(context.Background(), id)
	if a.State != StateActive {
		t.Fatalf("state = %q, want active", a.State)
	}
	wantExpiry := f.clk.Now().Add(48 * time.Hour)
	if a.ExpiresAt == nil || !a.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry = %v, want %v", a.ExpiresAt, wantExpiry)
	}

	err := f.svc.ActivateConsent(context.Background(), f.patient, id)
	assertCategory(t, err, goerrors.CategoryConflict)
}

func TestActivateConsent_PatientOnly(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)

	err := f.svc.ActivateConsent(context.Background(), f.provider, id)
	assertCategory(t, err, goerrors.CategoryAuthz)
}

func TestLazyExpiry(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)
	f.mustActivate(t, id)

	f.clk.Advance(49 * time.Hour)

	a, _ := f.svc.GetConsent(context.Background(), id)
	if a.State != StateExpired {
		t.Fatalf("state = %q, want expired after window", a.State)
	}
}

func TestAutoRenewConsent(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, true)
	f.mustActivate(t, id)

	// Not yet expired.
	err := f.svc.AutoRenewConsent(context.Background(), f.patient, id)
	assertCategory(t, err, goerrors.CategoryConflict)

	f.clk.Advance(49 * time.Hour)
	if err := f.svc.AutoRenewConsent(context.Background(), f.patient, id); err != nil {
		t.Fatalf("renew: %v", err)
	}

	a, _ := f.svc.GetConsent(context.Background(), id)
	if a.State != StateActive {
		t.Fatalf("state = %q, want active after renewal", a.State)
	}
	wantExpiry := f.clk.Now().Add(48 * time.Hour)
	if a.ExpiresAt == nil || !a.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry = %v, want recomputed %v", a.ExpiresAt, wantExpiry)
	}
}

func TestAutoRenewConsent_RequiresFlag(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)
	f.mustActivate(t, id)
	f.clk.Advance(49 * time.Hour)

	err := f.svc.AutoRenewConsent(context.Background(), f.patient, id)
	assertCategory(t, err, goerrors.CategoryConflict)
}

func TestRevokeConsent(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, true)
	f.mustActivate(t, id)

	if err := f.svc.RevokeConsent(context.Background(), f.patient, id, "moving providers"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// Second revoke is a conflict; renewal can never resurrect it.
	err := f.svc.RevokeConsent(context.Background(), f.patient, id, "again")
	assertCategory(t, err, goerrors.CategoryConflict)

	f.clk.Advance(100 * time.Hour)
	err = f.svc.AutoRenewConsent(context.Background(), f.patient, id)
	assertCategory(t, err, goerrors.CategoryConflict)

	a, _ := f.svc.GetConsent(context.Background(), id)
	if a.State != StateRevoked {
		t.Fatalf("state = %q, want revoked forever", a.State)
	}
}

func TestRevokeConsent_RequiresReasonAndActive(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)

	err := f.svc.RevokeConsent(context.Background(), f.patient, id, "")
	assertCategory(t, err, goerrors.CategoryValidation)

	// Still in Created state.
	err = f.svc.RevokeConsent(context.Background(), f.patient, id, "reason")
	assertCategory(t, err, goerrors.CategoryConflict)
}

func TestGrantDataAccess(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)
	f.mustActivate(t, id)
	requester := uuid.New()

	if err := f.svc.GrantDataAccess(context.Background(), f.provider, id, requester, "lab_result"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	d, err := f.svc.CheckDataAccess(context.Background(), id, requester, "lab_result")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.HasAccess {
		t.Fatal("expected access")
	}
}

func TestGrantDataAccess_ProviderOnly(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)
	f.mustActivate(t, id)

	err := f.svc.GrantDataAccess(context.Background(), f.patient, id, uuid.New(), "lab_result")
	assertCategory(t, err, goerrors.CategoryAuthz)
}

func TestGrantDataAccess_OutsideScope(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)
	f.mustActivate(t, id)

	err := f.svc.GrantDataAccess(context.Background(), f.provider, id, uuid.New(), "genomic")
	assertCategory(t, err, goerrors.CategoryValidation)
}

func TestCheckDataAccess_LapsesWithAgreement(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)
	f.mustActivate(t, id)
	requester := uuid.New()

	if err := f.svc.GrantDataAccess(context.Background(), f.provider, id, requester, "imaging"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	f.clk.Advance(49 * time.Hour)

	d, _ := f.svc.CheckDataAccess(context.Background(), id, requester, "imaging")
	if d.HasAccess {
		t.Fatal("sub-grant must not satisfy access once the agreement expires")
	}
}

func TestCheckDataAccess_Idempotent(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)
	f.mustActivate(t, id)
	requester := uuid.New()

	if err := f.svc.GrantDataAccess(context.Background(), f.provider, id, requester, "imaging"); err != nil {
		t.Fatalf("grant: %v", err)
	}

	first, _ := f.svc.CheckDataAccess(context.Background(), id, requester, "imaging")
	second, _ := f.svc.CheckDataAccess(context.Background(), id, requester, "imaging")
	if first.HasAccess != second.HasAccess || !first.ExpiresAt.Equal(*second.ExpiresAt) {
		t.Fatalf("repeated checks differ: %+v vs %+v", first, second)
	}
}

func TestRevokeDataAccess(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)
	f.mustActivate(t, id)
	requester := uuid.New()

	if err := f.svc.GrantDataAccess(context.Background(), f.provider, id, requester, "imaging"); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.svc.RevokeDataAccess(context.Background(), f.provider, id, requester, "imaging"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	d, _ := f.svc.CheckDataAccess(context.Background(), id, requester, "imaging")
	if d.HasAccess {
		t.Fatal("expected no access after revoke")
	}

	err := f.svc.RevokeDataAccess(context.Background(), f.provider, id, requester, "imaging")
	assertCategory(t, err, goerrors.CategoryNotFound)
}

func TestPayCompensation_InsufficientAmount(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)
	f.mustActivate(t, id)

	// rate 100 x 3h = 300 required.
	err := f.svc.PayCompensation(context.Background(), f.provider, id, "lab_result", 3, 299)
	assertCategory(t, err, goerrors.CategoryOperation)

	balance, _ := f.ledger.Balance(context.Background(), f.patient)
	if balance != 0 {
		t.Fatalf("balance = %d after failed payment, want 0", balance)
	}
}

func TestPayCompensation_ExactMinimum(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)
	f.mustActivate(t, id)

	if err := f.svc.PayCompensation(context.Background(), f.provider, id, "lab_result", 3, 300); err != nil {
		t.Fatalf("pay: %v", err)
	}

	balance, _ := f.ledger.Balance(context.Background(), f.patient)
	if balance != 300 {
		t.Fatalf("balance = %d, want 300", balance)
	}
}

func TestPayCompensation_OverpaymentCreditedInFull(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)
	f.mustActivate(t, id)

	if err := f.svc.PayCompensation(context.Background(), f.provider, id, "lab_result", 1, 500); err != nil {
		t.Fatalf("pay: %v", err)
	}

	balance, _ := f.ledger.Balance(context.Background(), f.patient)
	if balance != 500 {
		t.Fatalf("balance = %d, want the full 500", balance)
	}

	g, _ := f.grants.Get(context.Background(), id, f.provider, "lab_result")
	if g == nil || g.CompensationPaid != 500 {
		t.Fatalf("sub-grant accumulation = %+v, want 500", g)
	}
}

func TestPayCompensation_Accumulates(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)
	f.mustActivate(t, id)

	for i := 0; i < 3; i++ {
		if err := f.svc.PayCompensation(context.Background(), f.provider, id, "imaging", 1, 100); err != nil {
			t.Fatalf("pay %d: %v", i, err)
		}
	}

	g, _ := f.grants.Get(context.Background(), id, f.provider, "imaging")
	if g.CompensationPaid != 300 {
		t.Fatalf("accumulated = %d, want 300", g.CompensationPaid)
	}
	balance, _ := f.ledger.Balance(context.Background(), f.patient)
	if balance != 300 {
		t.Fatalf("balance = %d, want 300", balance)
	}
}

func TestPayCompensation_ProviderOnlyAndActive(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreate(t, false)
	f.mustActivate(t, id)

	err := f.svc.PayCompensation(context.Background(), f.patient, id, "lab_result", 1, 100)
	assertCategory(t, err, goerrors.CategoryAuthz)

	f.clk.Advance(49 * time.Hour)
	err = f.svc.PayCompensation(context.Background(), f.provider, id, "lab_result", 1, 100)
	assertCategory(t, err, goerrors.CategoryConflict)
}

func TestGetConsent_Unknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetConsent(context.Background(), uuid.New())
	assertCategory(t, err, goerrors.CategoryNotFound)
}
