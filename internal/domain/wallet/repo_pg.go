package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebenefits/platform/internal/platform/db"
)

// =========== Wallet Repository ===========

type walletRepoPG struct{ pool *pgxpool.Pool }

func NewWalletRepoPG(pool *pgxpool.Pool) WalletRepository { return &walletRepoPG{pool: pool} }

func (r *walletRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error) {
	var w Wallet
	err := db.Executor(ctx, r.pool).QueryRow(ctx, `
		SELECT id, member_id, organization_settings_id, state, reimbursement_method,
			alegeus_employee_id, created_at, updated_at
		FROM wallet WHERE id = $1`, id).Scan(
		&w.ID, &w.MemberID, &w.OrganizationSettingsID, &w.State, &w.ReimbursementMethod,
		&w.AlegeusEmployeeID, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *walletRepoPG) Update(ctx context.Context, w *Wallet) error {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx, `
		UPDATE wallet SET state = $2, reimbursement_method = $3, alegeus_employee_id = $4, updated_at = NOW()
		WHERE id = $1`, w.ID, w.State, w.ReimbursementMethod, w.AlegeusEmployeeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *walletRepoPG) ListWithActiveCard(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT DISTINCT w.id FROM wallet w
		JOIN debit_card c ON c.wallet_id = w.id
		WHERE c.status = 'ACTIVE' AND w.alegeus_employee_id IS NOT NULL
		ORDER BY w.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =========== Settings Repository ===========

type settingsRepoPG struct{ pool *pgxpool.Pool }

func NewSettingsRepoPG(pool *pgxpool.Pool) SettingsRepository { return &settingsRepoPG{pool: pool} }

func (r *settingsRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*OrganizationSettings, error) {
	var s OrganizationSettings
	err := db.Executor(ctx, r.pool).QueryRow(ctx, `
		SELECT id, organization_id, direct_payment_enabled, requires_reimbursement_method, started_at, ended_at
		FROM wallet_organization_settings WHERE id = $1`, id).Scan(
		&s.ID, &s.OrganizationID, &s.DirectPaymentEnabled, &s.RequiresReimbursementMethod, &s.StartedAt, &s.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *settingsRepoPG) Categories(ctx context.Context, settingsID uuid.UUID) ([]*Category, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT id, organization_settings_id, label, short_label, alegeus_plan_id, benefit_type, limit_cents, num_cycles
		FROM wallet_category WHERE organization_settings_id = $1 ORDER BY label, id`, settingsID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.OrganizationSettingsID, &c.Label, &c.ShortLabel, &c.AlegeusPlanID,
			&c.BenefitType, &c.LimitCents, &c.NumCycles); err != nil {
			return nil, err
		}
		items = append(items, &c)
	}
	return items, rows.Err()
}

// =========== Request Repository ===========

type requestRepoPG struct{ pool *pgxpool.Pool }

func NewRequestRepoPG(pool *pgxpool.Pool) RequestRepository { return &requestRepoPG{pool: pool} }

const requestCols = `id, wallet_id, category_id, label, service_provider, amount_cents, state,
	reimbursement_type, expense_type, service_start_date, service_end_date, description,
	alegeus_claim_key, alegeus_transaction_key, created_at, updated_at`

func scanRequest(row pgx.Row) (*ReimbursementRequest, error) {
	var r ReimbursementRequest
	err := row.Scan(&r.ID, &r.WalletID, &r.CategoryID, &r.Label, &r.ServiceProvider, &r.AmountCents, &r.State,
		&r.ReimbursementType, &r.ExpenseType, &r.ServiceStartDate, &r.ServiceEndDate, &r.Description,
		&r.AlegeusClaimKey, &r.AlegeusTransactionKey, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.Sources = []Source{}
	return &r, nil
}

func collectRequests(rows pgx.Rows) ([]*ReimbursementRequest, error) {
	defer rows.Close()
	var items []*ReimbursementRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (r *requestRepoPG) Create(ctx context.Context, req *ReimbursementRequest) error {
	req.ID = uuid.New()
	return db.Executor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO reimbursement_request (id, wallet_id, category_id, label, service_provider, amount_cents,
			state, reimbursement_type, expense_type, service_start_date, service_end_date, description,
			alegeus_claim_key, alegeus_transaction_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		req.ID, req.WalletID, req.CategoryID, req.Label, req.ServiceProvider, req.AmountCents,
		req.State, req.ReimbursementType, req.ExpenseType, req.ServiceStartDate, req.ServiceEndDate, req.Description,
		req.AlegeusClaimKey, req.AlegeusTransactionKey).Scan(&req.CreatedAt, &req.UpdatedAt)
}

func (r *requestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ReimbursementRequest, error) {
	q := db.Executor(ctx, r.pool)
	req, err := scanRequest(q.QueryRow(ctx, `SELECT `+requestCols+` FROM reimbursement_request WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadSources(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *requestRepoPG) GetByTransactionKey(ctx context.Context, key string) (*ReimbursementRequest, error) {
	return scanRequest(db.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+requestCols+` FROM reimbursement_request WHERE alegeus_transaction_key = $1`, key))
}

func (r *requestRepoPG) loadSources(ctx context.Context, req *ReimbursementRequest) error {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT id, reimbursement_request_id, blob_key, file_name, content_type, sha256, created_at
		FROM reimbursement_request_source WHERE reimbursement_request_id = $1 ORDER BY created_at, id`, req.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.ReimbursementRequestID, &s.BlobKey, &s.FileName, &s.ContentType,
			&s.SHA256, &s.CreatedAt); err != nil {
			return err
		}
		req.Sources = append(req.Sources, s)
	}
	return rows.Err()
}

func (r *requestRepoPG) Update(ctx context.Context, req *ReimbursementRequest) error {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx, `
		UPDATE reimbursement_request SET label = $2, service_provider = $3, amount_cents = $4, state = $5,
			service_start_date = $6, service_end_date = $7, description = $8, alegeus_claim_key = $9,
			category_id = $10, updated_at = NOW()
		WHERE id = $1`,
		req.ID, req.Label, req.ServiceProvider, req.AmountCents, req.State,
		req.ServiceStartDate, req.ServiceEndDate, req.Description, req.AlegeusClaimKey, req.CategoryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *requestRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx, `DELETE FROM reimbursement_request WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *requestRepoPG) ListByWallet(ctx context.Context, walletID uuid.UUID, state State, limit, offset int) ([]*ReimbursementRequest, int, error) {
	q := db.Executor(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM reimbursement_request
		WHERE wallet_id = $1 AND ($2 = '' OR state = $2)`, walletID, string(state)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `
		SELECT `+requestCols+` FROM reimbursement_request
		WHERE wallet_id = $1 AND ($2 = '' OR state = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`, walletID, string(state), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectRequests(rows)
	return items, total, err
}

func (r *requestRepoPG) ListForBalance(ctx context.Context, walletID uuid.UUID) ([]*ReimbursementRequest, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx,
		`SELECT `+requestCols+` FROM reimbursement_request WHERE wallet_id = $1`, walletID)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (r *requestRepoPG) ListAwaitingClaim(ctx context.Context, walletID uuid.UUID) ([]*ReimbursementRequest, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT `+requestCols+` FROM reimbursement_request
		WHERE wallet_id = $1 AND reimbursement_type = 'MANUAL' AND alegeus_claim_key IS NOT NULL
			AND state IN ('PENDING', 'APPROVED')
		ORDER BY created_at`, walletID)
	if err != nil {
		return nil, err
	}
	return collectRequests(rows)
}

func (r *requestRepoPG) ListUnsubmittedClaims(ctx context.Context, createdBefore time.Time) ([]uuid.UUID, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT r.id FROM reimbursement_request r
		JOIN wallet w ON w.id = r.wallet_id
		WHERE r.reimbursement_type = 'MANUAL' AND r.state = 'NEW' AND r.alegeus_claim_key IS NULL
			AND w.alegeus_employee_id IS NOT NULL AND r.created_at < $1
		ORDER BY r.created_at`, createdBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *requestRepoPG) AddSource(ctx context.Context, s *Source) error {
	s.ID = uuid.New()
	return db.Executor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO reimbursement_request_source (id, reimbursement_request_id, blob_key, file_name, content_type, sha256)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		s.ID, s.ReimbursementRequestID, s.BlobKey, s.FileName, s.ContentType, s.SHA256).Scan(&s.CreatedAt)
}

// =========== Debit Card Repository ===========

type debitCardRepoPG struct{ pool *pgxpool.Pool }

func NewDebitCardRepoPG(pool *pgxpool.Pool) DebitCardRepository { return &debitCardRepoPG{pool: pool} }

const cardCols = `id, wallet_id, card_proxy_number, card_last_4, status, issued_at, created_at, updated_at`

func scanCard(row pgx.Row) (*DebitCard, error) {
	var c DebitCard
	err := row.Scan(&c.ID, &c.WalletID, &c.CardProxyNumber, &c.CardLast4, &c.Status, &c.IssuedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *debitCardRepoPG) Create(ctx context.Context, c *DebitCard) error {
	c.ID = uuid.New()
	err := db.Executor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO debit_card (id, wallet_id, status) VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`, c.ID, c.WalletID, c.Status).Scan(&c.CreatedAt, &c.UpdatedAt)
	if db.IsUniqueViolation(err, "uq_debit_card_wallet_open") {
		return ErrCardExists
	}
	return err
}

func (r *debitCardRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DebitCard, error) {
	return scanCard(db.Executor(ctx, r.pool).QueryRow(ctx, `SELECT `+cardCols+` FROM debit_card WHERE id = $1`, id))
}

func (r *debitCardRepoPG) GetOpen(ctx context.Context, walletID uuid.UUID) (*DebitCard, error) {
	return scanCard(db.Executor(ctx, r.pool).QueryRow(ctx, `
		SELECT `+cardCols+` FROM debit_card
		WHERE wallet_id = $1 AND status <> 'CLOSED'
		ORDER BY created_at DESC LIMIT 1`, walletID))
}

func (r *debitCardRepoPG) Update(ctx context.Context, c *DebitCard) error {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx, `
		UPDATE debit_card SET card_proxy_number = $2, card_last_4 = $3, status = $4, issued_at = $5, updated_at = NOW()
		WHERE id = $1`, c.ID, c.CardProxyNumber, c.CardLast4, c.Status, c.IssuedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
