package eligibility

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebenefits/platform/internal/platform/db"
)

type verificationRepoPG struct{ pool *pgxpool.Pool }

func NewVerificationRepoPG(pool *pgxpool.Pool) VerificationRepository {
	return &verificationRepoPG{pool: pool}
}

const verificationCols = `id, member_id, organization_id, remote_verification_id, eligibility_member_id,
	verification_type, verified_at, effective_start, effective_end`

func scanVerification(row pgx.Row) (*Verification, error) {
	var v Verification
	err := row.Scan(&v.ID, &v.MemberID, &v.OrganizationID, &v.RemoteVerificationID, &v.EligibilityMemberID,
		&v.VerificationType, &v.VerifiedAt, &v.EffectiveStart, &v.EffectiveEnd)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *verificationRepoPG) Create(ctx context.Context, v *Verification) error {
	v.ID = uuid.New()
	_, err := db.Executor(ctx, r.pool).Exec(ctx, `
		INSERT INTO eligibility_verification (id, member_id, organization_id, remote_verification_id,
			eligibility_member_id, verification_type, verified_at, effective_start, effective_end)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		v.ID, v.MemberID, v.OrganizationID, v.RemoteVerificationID,
		v.EligibilityMemberID, v.VerificationType, v.VerifiedAt, v.EffectiveStart, v.EffectiveEnd)
	return err
}

func (r *verificationRepoPG) GetByMember(ctx context.Context, memberID uuid.UUID) (*Verification, error) {
	return scanVerification(db.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+verificationCols+` FROM eligibility_verification WHERE member_id = $1
		ORDER BY verified_at DESC LIMIT 1`, memberID))
}

func (r *verificationRepoPG) GetByMemberAndOrganization(ctx context.Context, memberID, orgID uuid.UUID) (*Verification, error) {
	return scanVerification(db.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+verificationCols+` FROM eligibility_verification WHERE member_id = $1 AND organization_id = $2`,
		memberID, orgID))
}
