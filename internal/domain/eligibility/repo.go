package eligibility

import (
	"context"

	"github.com/google/uuid"
)

type VerificationRepository interface {
	Create(ctx context.Context, v *Verification) error
	GetByMember(ctx context.Context, memberID uuid.UUID) (*Verification, error)
	GetByMemberAndOrganization(ctx context.Context, memberID, orgID uuid.UUID) (*Verification, error)
}
