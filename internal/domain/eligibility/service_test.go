package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/carebenefits/platform/internal/domain/member"
	"github.com/carebenefits/platform/internal/platform/db"
)

// -- Mocks --

type mockClient struct {
	standard    map[string]*Record
	alternate   map[string]*Record
	remote      map[string]*RemoteVerification
	createCalls int
	createErr   error
	testErr     error
}

func newMockClient() *mockClient {
	return &mockClient{
		standard:  make(map[string]*Record),
		alternate: make(map[string]*Record),
		remote:    make(map[string]*RemoteVerification),
	}
}

func (m *mockClient) CheckStandardEligibility(_ context.Context, dob, email string) (*Record, error) {
	if r, ok := m.standard[email+"|"+dob]; ok {
		return r, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (m *mockClient) CheckAlternateEligibility(_ context.Context, first, last, dob, _ string) (*Record, error) {
	if r, ok := m.alternate[first+" "+last+"|"+dob]; ok {
		return r, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (m *mockClient) GetVerificationForUser(_ context.Context, userID string) (*RemoteVerification, error) {
	if v, ok := m.remote[userID]; ok {
		return v, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (m *mockClient) CreateVerificationForUser(_ context.Context, req *CreateVerificationRequest) (*RemoteVerification, error) {
	m.createCalls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &RemoteVerification{ID: int64(100 + m.createCalls), UserID: req.UserID, OrganizationID: req.OrganizationID,
		VerificationType: req.VerificationType, VerifiedAt: time.Now()}, nil
}

func (m *mockClient) CreateTestMembers(_ context.Context, orgID string, specs []TestMemberSpec) ([]Record, error) {
	if m.testErr != nil {
		return nil, m.testErr
	}
	out := make([]Record, len(specs))
	for i, s := range specs {
		out[i] = Record{ID: int64(i + 1), OrganizationID: orgID, FirstName: s.FirstName}
	}
	return out, nil
}

type mockVerificationRepo struct {
	items     []*Verification
	createErr error
}

func (m *mockVerificationRepo) Create(_ context.Context, v *Verification) error {
	if m.createErr != nil {
		return m.createErr
	}
	v.ID = uuid.New()
	m.items = append(m.items, v)
	return nil
}

func (m *mockVerificationRepo) GetByMember(_ context.Context, memberID uuid.UUID) (*Verification, error) {
	for _, v := range m.items {
		if v.MemberID == memberID {
			return v, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockVerificationRepo) GetByMemberAndOrganization(_ context.Context, memberID, orgID uuid.UUID) (*Verification, error) {
	for _, v := range m.items {
		if v.MemberID == memberID && v.OrganizationID == orgID {
			return v, nil
		}
	}
	return nil, ErrNotFound
}

type mockMembers struct {
	orgs     map[uuid.UUID]*member.Organization
	attached map[uuid.UUID]uuid.UUID
}

func (m *mockMembers) GetOrganization(_ context.Context, id uuid.UUID) (*member.Organization, error) {
	o, ok := m.orgs[id]
	if !ok {
		return nil, member.ErrNotFound
	}
	return o, nil
}

func (m *mockMembers) AttachToOrganization(_ context.Context, memberID, orgID uuid.UUID) error {
	m.attached[memberID] = orgID
	return nil
}

type testEnv struct {
	svc     *Service
	client  *mockClient
	repo    *mockVerificationRepo
	members *mockMembers
	orgID   uuid.UUID
}

func newTestService() *testEnv {
	orgID := uuid.New()
	env := &testEnv{
		client: newMockClient(),
		repo:   &mockVerificationRepo{},
		members: &mockMembers{
			orgs:     map[uuid.UUID]*member.Organization{orgID: {ID: orgID, Name: "Acme"}},
			attached: make(map[uuid.UUID]uuid.UUID),
		},
		orgID: orgID,
	}
	env.svc = NewService(env.client, env.repo, env.members, db.NoTx, zerolog.Nop())
	env.svc.now = func() time.Time { return time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC) }
	return env
}

func TestVerifyEnterprise_Standard(t *testing.T) {
	env := newTestService()
	env.client.standard["ada@acme.com|1990-01-02"] = &Record{ID: 9, OrganizationID: env.orgID.String(), EffectiveStart: "2026-01-01"}
	memberID := uuid.New()

	v, err := env.svc.VerifyEnterprise(context.Background(), memberID, &VerifyRequest{DateOfBirth: "1990-01-02", CompanyEmail: " Ada@Acme.com "})
	if err != nil {
		t.Fatalf("VerifyEnterprise: %v", err)
	}
	if v.OrganizationID != env.orgID || v.VerificationType != VerificationTypeStandard {
		t.Errorf("unexpected verification %+v", v)
	}
	if v.EligibilityMemberID == nil || *v.EligibilityMemberID != 9 {
		t.Errorf("expected eligibility member id 9, got %v", v.EligibilityMemberID)
	}
	if env.members.attached[memberID] != env.orgID {
		t.Error("expected member attached to organization")
	}
}

func TestVerifyEnterprise_Alternate(t *testing.T) {
	env := newTestService()
	env.client.alternate["Ada Lovelace|1990-01-02"] = &Record{ID: 3, OrganizationID: env.orgID.String()}

	v, err := env.svc.VerifyEnterprise(context.Background(), uuid.New(), &VerifyRequest{DateOfBirth: "1990-01-02", FirstName: "Ada", LastName: "Lovelace"})
	if err != nil {
		t.Fatalf("VerifyEnterprise: %v", err)
	}
	if v.VerificationType != VerificationTypeAlternate {
		t.Errorf("expected ALTERNATE, got %s", v.VerificationType)
	}
}

func TestVerifyEnterprise_NotFound(t *testing.T) {
	env := newTestService()
	_, err := env.svc.VerifyEnterprise(context.Background(), uuid.New(), &VerifyRequest{DateOfBirth: "1990-01-02", CompanyEmail: "x@y.com"})
	if !errors.Is(err, ErrNotEligible) {
		t.Errorf("expected ErrNotEligible, got %v", err)
	}
}

func TestVerifyEnterprise_InactiveRecord(t *testing.T) {
	env := newTestService()
	env.client.standard["a@b.com|1990-01-02"] = &Record{ID: 1, OrganizationID: env.orgID.String(), EffectiveEnd: "2026-05-31"}

	_, err := env.svc.VerifyEnterprise(context.Background(), uuid.New(), &VerifyRequest{DateOfBirth: "1990-01-02", CompanyEmail: "a@b.com"})
	if !errors.Is(err, ErrNotEligible) {
		t.Errorf("expected ErrNotEligible for expired record, got %v", err)
	}
	if env.client.createCalls != 0 {
		t.Error("expected no verification to be created")
	}
}

func TestVerifyEnterprise_ExistingVerificationReturned(t *testing.T) {
	env := newTestService()
	env.client.standard["a@b.com|1990-01-02"] = &Record{ID: 1, OrganizationID: env.orgID.String()}
	memberID := uuid.New()
	existing := &Verification{MemberID: memberID, OrganizationID: env.orgID, RemoteVerificationID: 5}
	env.repo.Create(context.Background(), existing)

	v, err := env.svc.VerifyEnterprise(context.Background(), memberID, &VerifyRequest{DateOfBirth: "1990-01-02", CompanyEmail: "a@b.com"})
	if err != nil {
		t.Fatalf("VerifyEnterprise: %v", err)
	}
	if v.ID != existing.ID {
		t.Error("expected the existing verification")
	}
	if env.client.createCalls != 0 {
		t.Errorf("expected no e9y create call, got %d", env.client.createCalls)
	}
}

func TestVerifyEnterprise_Validation(t *testing.T) {
	env := newTestService()
	tests := []VerifyRequest{
		{},
		{DateOfBirth: "01/02/1990", CompanyEmail: "a@b.com"},
		{DateOfBirth: "1990-01-02", FirstName: "OnlyFirst"},
	}
	for _, req := range tests {
		_, err := env.svc.VerifyEnterprise(context.Background(), uuid.New(), &req)
		if !isValidation(err) {
			t.Errorf("%+v: expected validation error, got %v", req, err)
		}
	}
}

func TestGetVerification_FallsBackToE9Y(t *testing.T) {
	env := newTestService()
	memberID := uuid.New()
	env.client.remote[memberID.String()] = &RemoteVerification{ID: 12, OrganizationID: env.orgID.String(), VerificationType: VerificationTypeStandard}

	v, err := env.svc.GetVerification(context.Background(), memberID)
	if err != nil {
		t.Fatalf("GetVerification: %v", err)
	}
	if v.RemoteVerificationID != 12 {
		t.Errorf("expected remote verification 12, got %d", v.RemoteVerificationID)
	}

	if _, err := env.svc.GetVerification(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetVerification_StoresRemoteHit(t *testing.T) {
	env := newTestService()
	memberID := uuid.New()
	env.client.remote[memberID.String()] = &RemoteVerification{ID: 12, OrganizationID: env.orgID.String(), VerificationType: VerificationTypeStandard}

	if _, err := env.svc.GetVerification(context.Background(), memberID); err != nil {
		t.Fatalf("GetVerification: %v", err)
	}
	if len(env.repo.items) != 1 || env.repo.items[0].RemoteVerificationID != 12 {
		t.Fatalf("expected remote verification stored, got %+v", env.repo.items)
	}
	if env.members.attached[memberID] != env.orgID {
		t.Errorf("expected member attached to %s", env.orgID)
	}

	delete(env.client.remote, memberID.String())
	v, err := env.svc.GetVerification(context.Background(), memberID)
	if err != nil {
		t.Fatalf("expected stored verification once e9y forgets it, got %v", err)
	}
	if v.RemoteVerificationID != 12 {
		t.Errorf("expected remote verification 12, got %d", v.RemoteVerificationID)
	}
}

func TestGetVerification_StoreFailure(t *testing.T) {
	env := newTestService()
	memberID := uuid.New()
	env.client.remote[memberID.String()] = &RemoteVerification{ID: 12, OrganizationID: env.orgID.String()}
	env.repo.createErr = errors.New("connection reset")

	if _, err := env.svc.GetVerification(context.Background(), memberID); err == nil {
		t.Error("expected store error")
	}
	if _, ok := env.members.attached[memberID]; ok {
		t.Error("expected no attach when the verification was not stored")
	}
}

func TestCreateTestMembers(t *testing.T) {
	env := newTestService()
	specs := []TestMemberSpec{{FirstName: "T", LastName: "M", DateOfBirth: "2000-01-01"}}

	var tmErr *TestMemberCreationError
	if _, err := env.svc.CreateTestMembers(context.Background(), env.orgID, specs); !errors.As(err, &tmErr) {
		t.Fatalf("expected TestMemberCreationError for non-test org, got %v", err)
	}

	env.members.orgs[env.orgID].IsTest = true
	recs, err := env.svc.CreateTestMembers(context.Background(), env.orgID, specs)
	if err != nil {
		t.Fatalf("CreateTestMembers: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("expected 1 record, got %d", len(recs))
	}

	env.client.testErr = status.Error(codes.Internal, "boom")
	_, err = env.svc.CreateTestMembers(context.Background(), env.orgID, specs)
	if !errors.As(err, &tmErr) || tmErr.Err == nil {
		t.Errorf("expected wrapped TestMemberCreationError, got %v", err)
	}
}
