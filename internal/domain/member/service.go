package member

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	members MemberRepository
	orgs    OrganizationRepository
}

func NewService(members MemberRepository, orgs OrganizationRepository) *Service {
	return &Service{members: members, orgs: orgs}
}

func (s *Service) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	return s.members.GetByID(ctx, id)
}

func (s *Service) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return s.orgs.GetByID(ctx, id)
}

// Profile returns the member with their organization, if any.
func (s *Service) Profile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	m, err := s.members.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p := &Profile{Member: m}
	if m.OrganizationID != nil {
		org, err := s.orgs.GetByID(ctx, *m.OrganizationID)
		if err != nil {
			return nil, fmt.Errorf("load organization: %w", err)
		}
		p.Organization = org
	}
	return p, nil
}

// AttachToOrganization links a verified member to their employer.
func (s *Service) AttachToOrganization(ctx context.Context, memberID, orgID uuid.UUID) error {
	if orgID == uuid.Nil {
		return fmt.Errorf("organization_id is required")
	}
	if _, err := s.orgs.GetByID(ctx, orgID); err != nil {
		return err
	}
	return s.members.SetOrganization(ctx, memberID, orgID)
}

func (s *Service) SetZendeskUserID(ctx context.Context, memberID uuid.UUID, zendeskID int64) error {
	return s.members.SetZendeskUserID(ctx, memberID, zendeskID)
}
