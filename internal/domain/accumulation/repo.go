package accumulation

import (
	"context"

	"github.com/google/uuid"
)

type MappingRepository interface {
	Create(ctx context.Context, m *Mapping) error
	// ListWaiting locks and returns WAITING rows for payer, oldest first.
	ListWaiting(ctx context.Context, payer string) ([]*Row, error)
	MarkRowError(ctx context.Context, id uuid.UUID, reason string) error
	MarkProcessed(ctx context.Context, ids []uuid.UUID, reportID uuid.UUID) error
	MarkReportSubmitted(ctx context.Context, reportID uuid.UUID) (int, error)
}

type ProcedureRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*TreatmentProcedure, error)
}

type ReportRepository interface {
	NextControlNumber(ctx context.Context) (int, error)
	Create(ctx context.Context, r *Report) error
	GetByID(ctx context.Context, id uuid.UUID) (*Report, error)
	List(ctx context.Context, payer string, limit, offset int) ([]*Report, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status ReportStatus) error
}
