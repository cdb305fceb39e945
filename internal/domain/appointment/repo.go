package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PractitionerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	// Lock serializes bookings against one practitioner for the current tx.
	Lock(ctx context.Context, id uuid.UUID) error
	SearchByName(ctx context.Context, prefix string, limit, offset int) ([]*Practitioner, int, error)
	SearchVerticals(ctx context.Context, query string, limit, offset int) ([]NamedEntity, int, error)
	SearchSpecialties(ctx context.Context, query string, limit, offset int) ([]NamedEntity, int, error)
}

type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
}

type AvailabilityRepository interface {
	ListForPractitioner(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]*Availability, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	// ListOverlapping returns non-cancelled appointments of the practitioner
	// or the member intersecting [start, end), skipping excludeID.
	ListOverlapping(ctx context.Context, practitionerID, memberID uuid.UUID, start, end time.Time, excludeID uuid.UUID) ([]*Appointment, error)
	ListBooked(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]*Appointment, error)
	ListForUser(ctx context.Context, f ListFilter) ([]*Appointment, error)
}
