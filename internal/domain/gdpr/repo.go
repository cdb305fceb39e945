package gdpr

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebenefits/platform/internal/platform/db"
)

type Repository interface {
	Exec(ctx context.Context, sql string, userID uuid.UUID) (int64, error)
	SourceBlobKeys(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// =========== GDPR Repository ===========

type pgRepo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &pgRepo{pool: pool}
}

func (r *pgRepo) Exec(ctx context.Context, sql string, userID uuid.UUID) (int64, error) {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx, sql, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *pgRepo) SourceBlobKeys(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT s.blob_key FROM reimbursement_request_source s
		JOIN reimbursement_request rr ON rr.id = s.reimbursement_request_id
		JOIN wallet w ON w.id = rr.wallet_id
		WHERE w.member_id = $1 ORDER BY s.blob_key`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
