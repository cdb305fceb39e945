package member

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

// -- Mock Repositories --

type mockMemberRepo struct {
	members map[uuid.UUID]*Member
}

func newMockMemberRepo() *mockMemberRepo {
	return &mockMemberRepo{members: make(map[uuid.UUID]*Member)}
}

func (m *mockMemberRepo) add(mem *Member) *Member {
	if mem.ID == uuid.Nil {
		mem.ID = uuid.New()
	}
	m.members[mem.ID] = mem
	return mem
}

func (m *mockMemberRepo) GetByID(_ context.Context, id uuid.UUID) (*Member, error) {
	mem, ok := m.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	return mem, nil
}

func (m *mockMemberRepo) SetOrganization(_ context.Context, memberID, orgID uuid.UUID) error {
	mem, ok := m.members[memberID]
	if !ok {
		return ErrNotFound
	}
	mem.OrganizationID = &orgID
	return nil
}

func (m *mockMemberRepo) SetZendeskUserID(_ context.Context, memberID uuid.UUID, zendeskID int64) error {
	mem, ok := m.members[memberID]
	if !ok {
		return ErrNotFound
	}
	mem.ZendeskUserID = &zendeskID
	return nil
}

type mockOrgRepo struct {
	orgs map[uuid.UUID]*Organization
}

func newMockOrgRepo() *mockOrgRepo {
	return &mockOrgRepo{orgs: make(map[uuid.UUID]*Organization)}
}

func (m *mockOrgRepo) GetByID(_ context.Context, id uuid.UUID) (*Organization, error) {
	o, ok := m.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func newTestService() (*Service, *mockMemberRepo, *mockOrgRepo) {
	members := newMockMemberRepo()
	orgs := newMockOrgRepo()
	return NewService(members, orgs), members, orgs
}

func TestService_Profile(t *testing.T) {
	svc, members, orgs := newTestService()
	org := &Organization{ID: uuid.New(), Name: "Acme"}
	orgs.orgs[org.ID] = org
	m := members.add(&Member{FirstName: "Ada", LastName: "Lovelace", OrganizationID: &org.ID})

	p, err := svc.Profile(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.Organization == nil || p.Organization.Name != "Acme" {
		t.Errorf("expected organization Acme, got %+v", p.Organization)
	}
	if p.FullName() != "Ada Lovelace" {
		t.Errorf("unexpected full name %q", p.FullName())
	}
}

func TestService_Profile_NoOrganization(t *testing.T) {
	svc, members, _ := newTestService()
	m := members.add(&Member{FirstName: "Solo"})

	p, err := svc.Profile(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.Organization != nil {
		t.Error("expected no organization")
	}
}

func TestService_AttachToOrganization(t *testing.T) {
	svc, members, orgs := newTestService()
	org := &Organization{ID: uuid.New()}
	orgs.orgs[org.ID] = org
	m := members.add(&Member{})

	if err := svc.AttachToOrganization(context.Background(), m.ID, org.ID); err != nil {
		t.Fatalf("AttachToOrganization: %v", err)
	}
	if m.OrganizationID == nil || *m.OrganizationID != org.ID {
		t.Errorf("expected member attached to %s", org.ID)
	}
}

func TestService_AttachToOrganization_UnknownOrg(t *testing.T) {
	svc, members, _ := newTestService()
	m := members.add(&Member{})

	err := svc.AttachToOrganization(context.Background(), m.ID, uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := svc.AttachToOrganization(context.Background(), m.ID, uuid.Nil); err == nil {
		t.Error("expected error for nil organization id")
	}
}
