package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebenefits/platform/internal/platform/db"
)

// likeEscape escapes LIKE metacharacters in user input.
func likeEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// =========== Practitioner Repository ===========

type practitionerRepoPG struct{ pool *pgxpool.Pool }

func NewPractitionerRepoPG(pool *pgxpool.Pool) PractitionerRepository {
	return &practitionerRepoPG{pool: pool}
}

const practitionerCols = `id, first_name, last_name, verticals, specialties, states, timezone,
	next_availability, cancellation_policy, active`

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Verticals, &p.Specialties, &p.States,
		&p.Timezone, &p.NextAvailability, &p.CancellationPolicy, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *practitionerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	return scanPractitioner(db.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT `+practitionerCols+` FROM practitioner WHERE id = $1`, id))
}

func (r *practitionerRepoPG) Lock(ctx context.Context, id uuid.UUID) error {
	var got uuid.UUID
	err := db.Executor(ctx, r.pool).QueryRow(ctx, `SELECT id FROM practitioner WHERE id = $1 FOR UPDATE`, id).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *practitionerRepoPG) SearchByName(ctx context.Context, prefix string, limit, offset int) ([]*Practitioner, int, error) {
	q := db.Executor(ctx, r.pool)
	pattern := likeEscape(prefix) + "%"
	where := ` WHERE active AND (first_name ILIKE $1 OR last_name ILIKE $1
		OR (first_name || ' ' || last_name) ILIKE $1)`

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM practitioner`+where, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+practitionerCols+` FROM practitioner`+where+`
		ORDER BY next_availability ASC NULLS LAST, last_name, first_name, id
		LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Practitioner
	for rows.Next() {
		p, err := scanPractitioner(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *practitionerRepoPG) searchNamed(ctx context.Context, table, query string, limit, offset int) ([]NamedEntity, int, error) {
	q := db.Executor(ctx, r.pool)
	pattern := "%" + likeEscape(query) + "%"

	var total int
	if err := q.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE name ILIKE $1`, table), pattern).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT id, name FROM %s WHERE name ILIKE $1 ORDER BY name LIMIT $2 OFFSET $3`, table),
		pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []NamedEntity{}
	for rows.Next() {
		var n NamedEntity
		if err := rows.Scan(&n.ID, &n.Name); err != nil {
			return nil, 0, err
		}
		items = append(items, n)
	}
	return items, total, rows.Err()
}

func (r *practitionerRepoPG) SearchVerticals(ctx context.Context, query string, limit, offset int) ([]NamedEntity, int, error) {
	return r.searchNamed(ctx, "vertical", query, limit, offset)
}

func (r *practitionerRepoPG) SearchSpecialties(ctx context.Context, query string, limit, offset int) ([]NamedEntity, int, error) {
	return r.searchNamed(ctx, "specialty", query, limit, offset)
}

// =========== Product Repository ===========

type productRepoPG struct{ pool *pgxpool.Pool }

func NewProductRepoPG(pool *pgxpool.Pool) ProductRepository { return &productRepoPG{pool: pool} }

func (r *productRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	var p Product
	err := db.Executor(ctx, r.pool).QueryRow(ctx,
		`SELECT id, practitioner_id, vertical, minutes, price_cents, active FROM product WHERE id = $1`, id).
		Scan(&p.ID, &p.PractitionerID, &p.Vertical, &p.Minutes, &p.PriceCents, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// =========== Availability Repository ===========

type availabilityRepoPG struct{ pool *pgxpool.Pool }

func NewAvailabilityRepoPG(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

func (r *availabilityRepoPG) ListForPractitioner(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]*Availability, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `
		SELECT id, practitioner_id, starts_at, ends_at FROM availability
		WHERE practitioner_id = $1 AND starts_at < $3 AND ends_at > $2
		ORDER BY starts_at`, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Availability
	for rows.Next() {
		var a Availability
		if err := rows.Scan(&a.ID, &a.PractitionerID, &a.StartsAt, &a.EndsAt); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `id, member_id, product_id, practitioner_id, scheduled_start, scheduled_end,
	purpose, privacy, cancellation_policy, cancelled_at, cancelled_by_user_id, refund_percent,
	member_started_at, member_ended_at, practitioner_started_at, practitioner_ended_at,
	member_note, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.MemberID, &a.ProductID, &a.PractitionerID, &a.ScheduledStart, &a.ScheduledEnd,
		&a.Purpose, &a.Privacy, &a.CancellationPolicy, &a.CancelledAt, &a.CancelledByUserID, &a.RefundPercent,
		&a.MemberStartedAt, &a.MemberEndedAt, &a.PractitionerStartedAt, &a.PractitionerEndedAt,
		&a.MemberNote, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return db.Executor(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment (id, member_id, product_id, practitioner_id, scheduled_start, scheduled_end,
			purpose, privacy, cancellation_policy, member_note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		a.ID, a.MemberID, a.ProductID, a.PractitionerID, a.ScheduledStart, a.ScheduledEnd,
		a.Purpose, a.Privacy, a.CancellationPolicy, a.MemberNote).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppointment(db.Executor(ctx, r.pool).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	tag, err := db.Executor(ctx, r.pool).Exec(ctx, `
		UPDATE appointment SET scheduled_start=$2, scheduled_end=$3, purpose=$4, privacy=$5,
			cancelled_at=$6, cancelled_by_user_id=$7, refund_percent=$8,
			member_started_at=$9, member_ended_at=$10, practitioner_started_at=$11, practitioner_ended_at=$12,
			member_note=$13, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.ScheduledStart, a.ScheduledEnd, a.Purpose, a.Privacy,
		a.CancelledAt, a.CancelledByUserID, a.RefundPercent,
		a.MemberStartedAt, a.MemberEndedAt, a.PractitionerStartedAt, a.PractitionerEndedAt,
		a.MemberNote)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepoPG) ListOverlapping(ctx context.Context, practitionerID, memberID uuid.UUID, start, end time.Time, excludeID uuid.UUID) ([]*Appointment, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE (practitioner_id = $1 OR member_id = $2)
			AND cancelled_at IS NULL
			AND scheduled_start < $4 AND scheduled_end > $3
			AND id <> $5`,
		practitionerID, memberID, start, end, excludeID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *appointmentRepoPG) ListBooked(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	rows, err := db.Executor(ctx, r.pool).Query(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE practitioner_id = $1 AND cancelled_at IS NULL
			AND scheduled_start < $3 AND scheduled_end > $2
		ORDER BY scheduled_start`, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *appointmentRepoPG) ListForUser(ctx context.Context, f ListFilter) ([]*Appointment, error) {
	query := `SELECT ` + apptCols + ` FROM appointment WHERE (member_id = $1 OR practitioner_id = $1)`
	args := []interface{}{f.UserID}
	idx := 2

	if f.ScheduledStart != nil {
		query += fmt.Sprintf(` AND scheduled_start >= $%d`, idx)
		args = append(args, *f.ScheduledStart)
		idx++
	}
	if f.ScheduledEnd != nil {
		query += fmt.Sprintf(` AND scheduled_end <= $%d`, idx)
		args = append(args, *f.ScheduledEnd)
		idx++
	}
	query += ` ORDER BY scheduled_start DESC`

	rows, err := db.Executor(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}
