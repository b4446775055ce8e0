package vault

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/mediledger/nexus/internal/platform/clock"
	"github.com/mediledger/nexus/internal/platform/db"
	"github.com/mediledger/nexus/internal/platform/events"
)

// ── Mock Repositories ──

type mockRecordRepo struct {
	records map[uuid.UUID]*Record
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: make(map[uuid.UUID]*Record)}
}

func (m *mockRecordRepo) Create(_ context.Context, r *Record) error {
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockRecordRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	if r, ok := m.records[id]; ok {
		r.IsActive = false
	}
	return nil
}

func (m *mockRecordRepo) ListByOwner(_ context.Context, owner uuid.UUID, _, _ int) ([]*Record, int, error) {
	var out []*Record
	for _, r := range m.records {
		if r.Owner == owner {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

type grantKey struct {
	record  uuid.UUID
	grantee uuid.UUID
}

type mockGrantRepo struct {
	grants map[grantKey]*Grant
}

func newMockGrantRepo() *mockGrantRepo {
	return &mockGrantRepo{grants: make(map[grantKey]*Grant)}
}

func (m *mockGrantRepo) Upsert(_ context.Context, g *Grant) error {
	cp := *g
	m.grants[grantKey{g.RecordID, g.Grantee}] = &cp
	return nil
}

func (m *mockGrantRepo) Get(_ context.Context, recordID, grantee uuid.UUID) (*Grant, error) {
	g, ok := m.grants[grantKey{recordID, grantee}]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (m *mockGrantRepo) Deactivate(_ context.Context, recordID, grantee uuid.UUID) (bool, error) {
	g, ok := m.grants[grantKey{recordID, grantee}]
	if !ok || !g.IsActive {
		return false, nil
	}
	g.IsActive = false
	return true, nil
}

func (m *mockGrantRepo) ListByRecord(_ context.Context, recordID uuid.UUID) ([]*Grant, error) {
	var out []*Grant
	for k, g := range m.grants {
		if k.record == recordID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

// mockAuthz marks a fixed set of identities as privileged.
type mockAuthz struct {
	privileged map[uuid.UUID]bool
}

func (m *mockAuthz) IsOwner(_ context.Context, _ uuid.UUID) (bool, error) { return false, nil }
func (m *mockAuthz) IsAdministrator(_ context.Context, _ uuid.UUID) (bool, error) {
	return false, nil
}
func (m *mockAuthz) IsCertifiedProvider(_ context.Context, _ uuid.UUID) (bool, error) {
	return false, nil
}
func (m *mockAuthz) IsCertifiedInstitution(_ context.Context, _ uuid.UUID) (bool, error) {
	return false, nil
}
func (m *mockAuthz) IsPrivileged(_ context.Context, who uuid.UUID) (bool, error) {
	return m.privileged[who], nil
}

// ── Helpers ──

type fixture struct {
	svc   *Service
	clk   *clock.Fake
	sink  *events.MemorySink
	authz *mockAuthz
	owner uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	sink := events.NewMemorySink()
	authz := &mockAuthz{privileged: make(map[uuid.UUID]bool)}
	svc := NewService(newMockRecordRepo(), newMockGrantRepo(), authz, sink, clk, db.NopTxRunner{})
	return &fixture{svc: svc, clk: clk, sink: sink, authz: authz, owner: uuid.New()}
}

func (f *fixture) mustCreateRecord(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := f.svc.CreateRecord(context.Background(), f.owner, "lab_result", "cid:QmTest", "sha256:abc")
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	return id
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

func TestCreateRecord_RejectsUnregisteredType(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateRecord(context.Background(), f.owner, "horoscope", "cid:x", "sha256:x")
	assertCategory(t, err, goerrors.CategoryValidation)
}

func TestCreateRecord_RejectsEmptyFields(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.CreateRecord(context.Background(), f.owner, "general", "", "sha256:x"); err == nil {
		t.Fatal("expected error for empty content ref")
	}
	if _, err := f.svc.CreateRecord(context.Background(), f.owner, "general", "cid:x", ""); err == nil {
		t.Fatal("expected error for empty digest")
	}
}

func TestCreateRecord_OwnerGetsImplicitAdminGrant(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)

	d, err := f.svc.CheckAccess(context.Background(), id, f.owner)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.HasAccess || d.Level != LevelAdmin {
		t.Fatalf("owner decision = %+v, want admin access", d)
	}
	if d.ExpiresAt != nil {
		t.Fatalf("owner grant must not expire, got %v", d.ExpiresAt)
	}
}

func TestCreateRecord_EmitsEvent(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)

	evs := f.sink.All()
	if len(evs) != 1 {
		t.Fatalf("got %d events, want 1", len(evs))
	}
	if evs[0].Action != "created" || evs[0].EntityID != id.String() {
		t.Fatalf("unexpected event %+v", evs[0])
	}
	if evs[0].Seq != 1 {
		t.Fatalf("seq = %d, want 1", evs[0].Seq)
	}
}

func TestGrantAccess_AndCheckWithinWindow(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)
	grantee := uuid.New()

	if err := f.svc.GrantAccess(context.Background(), f.owner, id, grantee, LevelRead, 24); err != nil {
		t.Fatalf("grant: %v", err)
	}

	d, err := f.svc.CheckAccess(context.Background(), id, grantee)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.HasAccess || d.Level != LevelRead {
		t.Fatalf("decision = %+v, want read access", d)
	}
	wantExpiry := f.clk.Now().Add(24 * time.Hour)
	if d.ExpiresAt == nil || !d.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry = %v, want %v", d.ExpiresAt, wantExpiry)
	}
}

func TestCheckAccess_ExpiredGrantEchoesStoredExpiry(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)
	grantee := uuid.New()

	if err := f.svc.GrantAccess(context.Background(), f.owner, id, grantee, LevelRead, 24); err != nil {
		t.Fatalf("grant: %v", err)
	}
	wantExpiry := f.clk.Now().Add(24 * time.Hour)

	f.clk.Advance(25 * time.Hour)

	d, err := f.svc.CheckAccess(context.Background(), id, grantee)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.HasAccess {
		t.Fatal("expected access to have lapsed")
	}
	if d.Level != LevelRead {
		t.Fatalf("level = %q, want read", d.Level)
	}
	if d.ExpiresAt == nil || !d.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry = %v, want unchanged %v", d.ExpiresAt, wantExpiry)
	}
}

func TestCheckAccess_IsReadOnly(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)
	grantee := uuid.New()

	if err := f.svc.GrantAccess(context.Background(), f.owner, id, grantee, LevelWrite, 1); err != nil {
		t.Fatalf("grant: %v", err)
	}
	f.clk.Advance(2 * time.Hour)

	first, _ := f.svc.CheckAccess(context.Background(), id, grantee)
	second, _ := f.svc.CheckAccess(context.Background(), id, grantee)
	if first != second {
		t.Fatalf("repeated checks differ: %+v vs %+v", first, second)
	}
	events := len(f.sink.All())
	if events != 2 {
		t.Fatalf("checks must not append events, got %d", events)
	}
}

func TestCheckAccess_OwnerNeverLosesAccess(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)

	f.clk.Advance(10000 * time.Hour)

	d, err := f.svc.CheckAccess(context.Background(), id, f.owner)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !d.HasAccess || d.Level != LevelAdmin {
		t.Fatalf("owner decision = %+v after long advance", d)
	}
}

func TestCheckAccess_NoGrantIsQuietDenial(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)

	d, err := f.svc.CheckAccess(context.Background(), id, uuid.New())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if d.HasAccess || d.Level != "" || d.ExpiresAt != nil {
		t.Fatalf("decision = %+v, want empty denial", d)
	}
}

func TestGrantAccess_OnlyOwner(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)

	err := f.svc.GrantAccess(context.Background(), uuid.New(), id, uuid.New(), LevelRead, 1)
	assertCategory(t, err, goerrors.CategoryAuthz)
}

func TestGrantAccess_ToOwnerIsConflict(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)

	err := f.svc.GrantAccess(context.Background(), f.owner, id, f.owner, LevelRead, 1)
	assertCategory(t, err, goerrors.CategoryConflict)
}

func TestGrantAccess_InvalidLevel(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)

	err := f.svc.GrantAccess(context.Background(), f.owner, id, uuid.New(), AccessLevel("root"), 1)
	assertCategory(t, err, goerrors.CategoryValidation)
}

func TestGrantAccess_LastWriteWins(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)
	grantee := uuid.New()

	if err := f.svc.GrantAccess(context.Background(), f.owner, id, grantee, LevelRead, 1); err != nil {
		t.Fatalf("first grant: %v", err)
	}
	if err := f.svc.GrantAccess(context.Background(), f.owner, id, grantee, LevelWrite, 48); err != nil {
		t.Fatalf("second grant: %v", err)
	}

	d, _ := f.svc.CheckAccess(context.Background(), id, grantee)
	if d.Level != LevelWrite {
		t.Fatalf("level = %q, want write after replacement", d.Level)
	}
	wantExpiry := f.clk.Now().Add(48 * time.Hour)
	if d.ExpiresAt == nil || !d.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry = %v, want %v", d.ExpiresAt, wantExpiry)
	}
}

func TestRevokeAccess(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)
	grantee := uuid.New()

	if err := f.svc.GrantAccess(context.Background(), f.owner, id, grantee, LevelRead, 24); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.svc.RevokeAccess(context.Background(), f.owner, id, grantee); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	d, _ := f.svc.CheckAccess(context.Background(), id, grantee)
	if d.HasAccess {
		t.Fatal("expected no access after revoke")
	}
}

func TestRevokeAccess_OwnerGrantProtected(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)

	err := f.svc.RevokeAccess(context.Background(), f.owner, id, f.owner)
	assertCategory(t, err, goerrors.CategoryConflict)
}

func TestRevokeAccess_MissingGrant(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)

	err := f.svc.RevokeAccess(context.Background(), f.owner, id, uuid.New())
	assertCategory(t, err, goerrors.CategoryNotFound)
}

func TestGrantEmergencyAccess_RequiresPrivilege(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)

	err := f.svc.GrantEmergencyAccess(context.Background(), uuid.New(), id, uuid.New(), "cardiac")
	assertCategory(t, err, goerrors.CategoryAuthz)
}

func TestGrantEmergencyAccess_FixedReadWindow(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)
	responder := uuid.New()
	requester := uuid.New()
	f.authz.privileged[responder] = true

	if err := f.svc.GrantEmergencyAccess(context.Background(), responder, id, requester, "trauma"); err != nil {
		t.Fatalf("emergency grant: %v", err)
	}

	d, _ := f.svc.CheckAccess(context.Background(), id, requester)
	if !d.HasAccess || d.Level != LevelRead {
		t.Fatalf("decision = %+v, want read access", d)
	}
	wantExpiry := f.clk.Now().Add(24 * time.Hour)
	if d.ExpiresAt == nil || !d.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("expiry = %v, want fixed 24h window %v", d.ExpiresAt, wantExpiry)
	}

	f.clk.Advance(25 * time.Hour)
	d, _ = f.svc.CheckAccess(context.Background(), id, requester)
	if d.HasAccess {
		t.Fatal("expected emergency access to lapse after 24h")
	}
}

func TestDeactivateRecord_Terminal(t *testing.T) {
	f := newFixture(t)
	id := f.mustCreateRecord(t)

	if err := f.svc.DeactivateRecord(context.Background(), f.owner, id); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	err := f.svc.DeactivateRecord(context.Background(), f.owner, id)
	assertCategory(t, err, goerrors.CategoryConflict)

	err = f.svc.GrantAccess(context.Background(), f.owner, id, uuid.New(), LevelRead, 1)
	assertCategory(t, err, goerrors.CategoryConflict)
}

func TestCheckAccess_UnknownRecord(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CheckAccess(context.Background(), uuid.New(), uuid.New())
	assertCategory(t, err, goerrors.CategoryNotFound)
}
