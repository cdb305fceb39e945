package member

import (
	"context"

	"github.com/google/uuid"
)

type MemberRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Member, error)
	SetOrganization(ctx context.Context, memberID, orgID uuid.UUID) error
	SetZendeskUserID(ctx context.Context, memberID uuid.UUID, zendeskID int64) error
}

type OrganizationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
}
