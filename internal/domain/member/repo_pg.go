package member

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebenefits/platform/internal/platform/db"
)

// =========== Member Repository ===========

type memberRepoPG struct{ pool *pgxpool.Pool }

func NewMemberRepoPG(pool *pgxpool.Pool) MemberRepository { return &memberRepoPG{pool: pool} }

const memberCols = `id, email, first_name, last_name, date_of_birth, role,
	organization_id, zendesk_user_id, created_at, updated_at`

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.Email, &m.FirstName, &m.LastName, &m.DateOfBirth, &m.Role,
		&m.OrganizationID, &m.ZendeskUserID, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &m, err
}

func (r *memberRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Member, error) {
	return scanMember(db.Executor(ctx, r.pool).QueryRow(ctx, `SELECT `+memberCols+` FROM member WHERE id = $1`, id))
}

func (r *memberRepoPG) SetOrganization(ctx context.Context, memberID, orgID uuid.UUID) error {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx,
		`UPDATE member SET organization_id = $2, updated_at = NOW() WHERE id = $1`, memberID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *memberRepoPG) SetZendeskUserID(ctx context.Context, memberID uuid.UUID, zendeskID int64) error {
	_, err := db.Executor(ctx, r.pool).Exec(ctx,
		`UPDATE member SET zendesk_user_id = $2, updated_at = NOW() WHERE id = $1`, memberID, zendeskID)
	return err
}

// =========== Organization Repository ===========

type orgRepoPG struct{ pool *pgxpool.Pool }

func NewOrganizationRepoPG(pool *pgxpool.Pool) OrganizationRepository { return &orgRepoPG{pool: pool} }

func (r *orgRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	var o Organization
	err := db.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT id, name, is_test, allows_wallet, created_at FROM organization WHERE id = $1`, id).
		Scan(&o.ID, &o.Name, &o.IsTest, &o.AllowsWallet, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}
