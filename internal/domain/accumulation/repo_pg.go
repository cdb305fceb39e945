package accumulation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebenefits/platform/internal/platform/db"
)

// =========== Mapping Repository ===========

type mappingRepoPG struct{ pool *pgxpool.Pool }

func NewMappingRepoPG(pool *pgxpool.Pool) MappingRepository { return &mappingRepoPG{pool: pool} }

func (r *mappingRepoPG) Create(ctx context.Context, m *Mapping) error {
	m.ID = uuid.New()
	return db.Executor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO accumulation_mapping (id, treatment_procedure_id, payer_name, status, deductible_cents, oop_applied_cents)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`,
		m.ID, m.TreatmentProcedureID, m.PayerName, m.Status, m.DeductibleCents, m.OOPAppliedCents).
		Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *mappingRepoPG) ListWaiting(ctx context.Context, payer string) ([]*Row, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT m.id, m.treatment_procedure_id, m.payer_name, m.status, m.deductible_cents, m.oop_applied_cents,
			m.report_id, m.row_error, m.created_at, m.updated_at,
			tp.id, tp.member_id, tp.procedure_code, tp.diagnosis_code, tp.provider_npi, tp.provider_name,
			tp.start_date, tp.end_date, tp.cost_cents,
			hp.id, hp.member_id, hp.wallet_id, hp.payer_name, hp.subscriber_id, hp.subscriber_first_name,
			hp.subscriber_last_name, hp.subscriber_dob, hp.patient_first_name, hp.patient_last_name,
			hp.patient_dob, hp.patient_sex, hp.relationship, hp.plan_start, hp.plan_end
		FROM accumulation_mapping m
		JOIN treatment_procedure tp ON tp.id = m.treatment_procedure_id
		LEFT JOIN LATERAL (
			SELECT * FROM member_health_plan p
			WHERE p.member_id = tp.member_id AND p.payer_name = m.payer_name
				AND p.plan_start <= tp.start_date AND (p.plan_end IS NULL OR p.plan_end >= tp.start_date)
			ORDER BY p.plan_start DESC LIMIT 1
		) hp ON TRUE
		WHERE m.payer_name = $1 AND m.status = 'WAITING'
		ORDER BY m.created_at, m.id
		FOR UPDATE OF m`, payer)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Row
	for rows.Next() {
		var (
			row Row
			hp  struct {
				ID, MemberID, WalletID                     *uuid.UUID
				PayerName, SubscriberID, SubFirst, SubLast *string
				PatFirst, PatLast, PatSex, Relationship    *string
				SubDOB, PatDOB, PlanStart, PlanEnd         *time.Time
			}
		)
		m, tp := &row.Mapping, &row.Procedure
		if err := rows.Scan(&m.ID, &m.TreatmentProcedureID, &m.PayerName, &m.Status, &m.DeductibleCents,
			&m.OOPAppliedCents, &m.ReportID, &m.RowError, &m.CreatedAt, &m.UpdatedAt,
			&tp.ID, &tp.MemberID, &tp.ProcedureCode, &tp.DiagnosisCode, &tp.ProviderNPI, &tp.ProviderName,
			&tp.StartDate, &tp.EndDate, &tp.CostCents,
			&hp.ID, &hp.MemberID, &hp.WalletID, &hp.PayerName, &hp.SubscriberID, &hp.SubFirst,
			&hp.SubLast, &hp.SubDOB, &hp.PatFirst, &hp.PatLast,
			&hp.PatDOB, &hp.PatSex, &hp.Relationship, &hp.PlanStart, &hp.PlanEnd); err != nil {
			return nil, err
		}
		if hp.ID != nil {
			row.Plan = &MemberHealthPlan{
				ID:                  *hp.ID,
				MemberID:            *hp.MemberID,
				WalletID:            hp.WalletID,
				PayerName:           *hp.PayerName,
				SubscriberID:        *hp.SubscriberID,
				SubscriberFirstName: *hp.SubFirst,
				SubscriberLastName:  *hp.SubLast,
				SubscriberDOB:       *hp.SubDOB,
				PatientFirstName:    *hp.PatFirst,
				PatientLastName:     *hp.PatLast,
				PatientDOB:          *hp.PatDOB,
				PatientSex:          *hp.PatSex,
				Relationship:        Relationship(*hp.Relationship),
				PlanStart:           *hp.PlanStart,
				PlanEnd:             hp.PlanEnd,
			}
		}
		out = append(out, &row)
	}
	return out, rows.Err()
}

func (r *mappingRepoPG) MarkRowError(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := db.Executor(ctx, r.pool).Exec(ctx, `
		UPDATE accumulation_mapping SET status = 'ROW_ERROR', row_error = $2, updated_at = NOW() WHERE id = $1`, id, reason)
	return err
}

func (r *mappingRepoPG) MarkProcessed(ctx context.Context, ids []uuid.UUID, reportID uuid.UUID) error {
	_, err := db.Executor(ctx, r.pool).Exec(ctx, `
		UPDATE accumulation_mapping SET status = 'PROCESSED', report_id = $2, row_error = NULL, updated_at = NOW()
		WHERE id = ANY($1)`, ids, reportID)
	return err
}

func (r *mappingRepoPG) MarkReportSubmitted(ctx context.Context, reportID uuid.UUID) (int, error) {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx, `
		UPDATE accumulation_mapping SET status = 'SUBMITTED', updated_at = NOW()
		WHERE report_id = $1 AND status = 'PROCESSED'`, reportID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// =========== Procedure Repository ===========

type procedureRepoPG struct{ pool *pgxpool.Pool }

func NewProcedureRepoPG(pool *pgxpool.Pool) ProcedureRepository { return &procedureRepoPG{pool: pool} }

func (r *procedureRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TreatmentProcedure, error) {
	var tp TreatmentProcedure
	err := db.Executor(ctx, r.pool).QueryRow(ctx, `
		SELECT id, member_id, procedure_code, diagnosis_code, provider_npi, provider_name, start_date, end_date, cost_cents
		FROM treatment_procedure WHERE id = $1`, id).Scan(
		&tp.ID, &tp.MemberID, &tp.ProcedureCode, &tp.DiagnosisCode, &tp.ProviderNPI, &tp.ProviderName,
		&tp.StartDate, &tp.EndDate, &tp.CostCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tp, nil
}

// =========== Report Repository ===========

type reportRepoPG struct{ pool *pgxpool.Pool }

func NewReportRepoPG(pool *pgxpool.Pool) ReportRepository { return &reportRepoPG{pool: pool} }

const reportCols = `id, payer_name, file_name, report_date, status, blob_key, row_count, control_number, created_at`

func scanReport(row pgx.Row) (*Report, error) {
	var r Report
	err := row.Scan(&r.ID, &r.PayerName, &r.FileName, &r.ReportDate, &r.Status, &r.BlobKey, &r.RowCount,
		&r.ControlNumber, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *reportRepoPG) NextControlNumber(ctx context.Context) (int, error) {
	var n int64
	if err := db.Executor(ctx, r.pool).QueryRow(ctx, `SELECT nextval('accumulation_control_number')`).Scan(&n); err != nil {
		return 0, err
	}
	// ISA13 is nine digits.
	return int((n-1)%999999999) + 1, nil
}

func (r *reportRepoPG) Create(ctx context.Context, rep *Report) error {
	rep.ID = uuid.New()
	return db.Executor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO accumulation_report (id, payer_name, file_name, report_date, status, blob_key, row_count, control_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`,
		rep.ID, rep.PayerName, rep.FileName, rep.ReportDate, rep.Status, rep.BlobKey, rep.RowCount, rep.ControlNumber).
		Scan(&rep.CreatedAt)
}

func (r *reportRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	return scanReport(db.Executor(ctx, r.pool).QueryRow(ctx, `SELECT `+reportCols+` FROM accumulation_report WHERE id = $1`, id))
}

func (r *reportRepoPG) List(ctx context.Context, payer string, limit, offset int) ([]*Report, int, error) {
	q := db.Executor(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM accumulation_report WHERE ($1 = '' OR payer_name = $1)`, payer).
		Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `
		SELECT `+reportCols+` FROM accumulation_report
		WHERE ($1 = '' OR payer_name = $1)
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, payer, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rep)
	}
	return items, total, rows.Err()
}

func (r *reportRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status ReportStatus) error {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx, `UPDATE accumulation_report SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
