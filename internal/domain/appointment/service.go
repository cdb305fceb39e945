package appointment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebenefits/platform/internal/platform/db"
	"github.com/carebenefits/platform/pkg/pagination"
)

const (
	DefaultMinLead  = 10 * time.Minute
	minSearchLength = 2
	maxWindowRange  = 31 * 24 * time.Hour
)

type Service struct {
	practitioners PractitionerRepository
	products      ProductRepository
	availability  AvailabilityRepository
	appointments  AppointmentRepository
	tx            db.TxFunc
	minLead       time.Duration
	logger        zerolog.Logger
	now           func() time.Time
}

func NewService(pr PractitionerRepository, prod ProductRepository, av AvailabilityRepository, appt AppointmentRepository,
	tx db.TxFunc, minLead time.Duration, logger zerolog.Logger) *Service {
	if minLead <= 0 {
		minLead = DefaultMinLead
	}
	return &Service{
		practitioners: pr,
		products:      prod,
		availability:  av,
		appointments:  appt,
		tx:            tx,
		minLead:       minLead,
		logger:        logger,
		now:           time.Now,
	}
}

// validateSlot checks lead time, availability and overlaps for a proposed
// booking of product at start. excludeID skips the appointment being moved.
func (s *Service) validateSlot(ctx context.Context, memberID uuid.UUID, product *Product, start time.Time, excludeID uuid.UUID) (time.Time, error) {
	if start.IsZero() {
		return time.Time{}, invalid("scheduled_start is required")
	}
	if start.Before(s.now().Add(s.minLead)) {
		return time.Time{}, invalid("scheduled_start must be at least %d minutes from now", int(s.minLead.Minutes()))
	}
	end := start.Add(time.Duration(product.Minutes) * time.Minute)
	slot := Window{Start: start, End: end}

	windows, err := s.availability.ListForPractitioner(ctx, product.PractitionerID, start, end)
	if err != nil {
		return time.Time{}, err
	}
	inside := false
	for _, av := range windows {
		if (Window{Start: av.StartsAt, End: av.EndsAt}).contains(slot) {
			inside = true
			break
		}
	}
	if !inside {
		return time.Time{}, ErrOutsideWindow
	}

	overlapping, err := s.appointments.ListOverlapping(ctx, product.PractitionerID, memberID, start, end, excludeID)
	if err != nil {
		return time.Time{}, err
	}
	if len(overlapping) > 0 {
		return time.Time{}, ErrConflict
	}
	return end, nil
}

func (s *Service) Book(ctx context.Context, memberID uuid.UUID, req *BookRequest) (*Appointment, error) {
	if req.ProductID == uuid.Nil {
		return nil, invalid("product_id is required")
	}
	privacy := req.Privacy
	if privacy == "" {
		privacy = PrivacyBasic
	}
	if privacy != PrivacyBasic && privacy != PrivacyAnonymous {
		return nil, invalid("invalid privacy: %s", privacy)
	}

	product, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, invalid("product is not available for booking")
	}
	if product.PractitionerID == memberID {
		return nil, invalid("practitioners cannot book themselves")
	}

	var appt *Appointment
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.practitioners.Lock(ctx, product.PractitionerID); err != nil {
			return err
		}
		prac, err := s.practitioners.GetByID(ctx, product.PractitionerID)
		if err != nil {
			return err
		}
		if !prac.Active {
			return invalid("practitioner is not accepting appointments")
		}
		end, err := s.validateSlot(ctx, memberID, product, req.ScheduledStart, uuid.Nil)
		if err != nil {
			return err
		}
		policy := prac.CancellationPolicy
		if policy == "" {
			policy = PolicyModerate
		}
		appt = &Appointment{
			MemberID:           memberID,
			ProductID:          product.ID,
			PractitionerID:     product.PractitionerID,
			ScheduledStart:     req.ScheduledStart.UTC(),
			ScheduledEnd:       end.UTC(),
			Purpose:            req.Purpose,
			Privacy:            privacy,
			CancellationPolicy: policy,
			MemberNote:         req.MemberNote,
		}
		return s.appointments.Create(ctx, appt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("practitioner_id", appt.PractitionerID.String()).
		Time("scheduled_start", appt.ScheduledStart).
		Msg("appointment booked")
	return appt, nil
}

// Get returns the appointment if userID takes part in it. Ops may read any.
func (s *Service) Get(ctx context.Context, userID uuid.UUID, id uuid.UUID, isOps bool) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isOps && !a.IsParticipant(userID) {
		return nil, ErrForbidden
	}
	return a, nil
}

func (s *Service) Cancel(ctx context.Context, userID, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsParticipant(userID) {
		return nil, ErrForbidden
	}
	now := s.now()
	if st := a.State(now); st != StateScheduled && st != StateOverdue {
		return nil, ErrInvalidState
	}

	refund := 100
	if userID == a.MemberID {
		refund = RefundPercent(a.CancellationPolicy, a.ScheduledStart.Sub(now).Hours())
	}
	cancelledAt := now.UTC()
	a.CancelledAt = &cancelledAt
	a.CancelledByUserID = &userID
	a.RefundPercent = &refund

	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info().Str("appointment_id", a.ID.String()).Int("refund_percent", refund).Msg("appointment cancelled")
	return a, nil
}

func (s *Service) Reschedule(ctx context.Context, userID, id uuid.UUID, start time.Time) (*Appointment, error) {
	var out *Appointment
	err := s.tx(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.MemberID != userID {
			return ErrForbidden
		}
		if a.State(s.now()) != StateScheduled {
			return ErrInvalidState
		}
		product, err := s.products.GetByID(ctx, a.ProductID)
		if err != nil {
			return err
		}
		if err := s.practitioners.Lock(ctx, a.PractitionerID); err != nil {
			return err
		}
		end, err := s.validateSlot(ctx, a.MemberID, product, start, a.ID)
		if err != nil {
			return err
		}
		a.ScheduledStart = start.UTC()
		a.ScheduledEnd = end.UTC()
		if err := s.appointments.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// Start marks the caller's side of the appointment as started.
func (s *Service) Start(ctx context.Context, userID, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsParticipant(userID) {
		return nil, ErrForbidden
	}
	if a.CancelledAt != nil {
		return nil, ErrInvalidState
	}
	now := s.now().UTC()
	switch userID {
	case a.MemberID:
		if a.MemberStartedAt == nil {
			a.MemberStartedAt = &now
		}
	default:
		if a.PractitionerStartedAt == nil {
			a.PractitionerStartedAt = &now
		}
	}
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// End marks the caller's side as ended. The side must have started.
func (s *Service) End(ctx context.Context, userID, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.IsParticipant(userID) {
		return nil, ErrForbidden
	}
	if a.CancelledAt != nil {
		return nil, ErrInvalidState
	}
	now := s.now().UTC()
	switch userID {
	case a.MemberID:
		if a.MemberStartedAt == nil {
			return nil, ErrInvalidState
		}
		if a.MemberEndedAt == nil {
			a.MemberEndedAt = &now
		}
	default:
		if a.PractitionerStartedAt == nil {
			return nil, ErrInvalidState
		}
		if a.PractitionerEndedAt == nil {
			a.PractitionerEndedAt = &now
		}
	}
	if err := s.appointments.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// List returns the user's appointments, newest first, filtered by derived
// state when requested.
func (s *Service) List(ctx context.Context, f ListFilter, pg pagination.Params) ([]View, int, error) {
	if f.State != "" && !validStates[f.State] {
		return nil, 0, invalid("invalid state: %s", f.State)
	}
	items, err := s.appointments.ListForUser(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	views := make([]View, 0, len(items))
	for _, a := range items {
		v := NewView(a, now)
		if f.State != "" && v.State != f.State {
			continue
		}
		views = append(views, v)
	}
	return pagination.Window(views, pg), len(views), nil
}

// Search powers the booking flow typeahead.
func (s *Service) Search(ctx context.Context, query string, pg pagination.Params) (*SearchResults, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < minSearchLength {
		return nil, invalid("query must be at least %d characters", minSearchLength)
	}

	res := &SearchResults{Limit: pg.Limit, Offset: pg.Offset}
	var err error
	if res.Practitioners, res.Totals.Practitioners, err = s.practitioners.SearchByName(ctx, query, pg.Limit, pg.Offset); err != nil {
		return nil, err
	}
	if res.Verticals, res.Totals.Verticals, err = s.practitioners.SearchVerticals(ctx, query, pg.Limit, pg.Offset); err != nil {
		return nil, err
	}
	if res.Specialties, res.Totals.Specialties, err = s.practitioners.SearchSpecialties(ctx, query, pg.Limit, pg.Offset); err != nil {
		return nil, err
	}
	if res.Practitioners == nil {
		res.Practitioners = []*Practitioner{}
	}
	return res, nil
}

// OpenWindows returns the practitioner's bookable time between from and to.
func (s *Service) OpenWindows(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]Window, error) {
	if !to.After(from) {
		return nil, invalid("ends_at must be after starts_at")
	}
	if to.Sub(from) > maxWindowRange {
		return nil, invalid("range may not exceed 31 days")
	}
	if _, err := s.practitioners.GetByID(ctx, practitionerID); err != nil {
		return nil, err
	}
	if earliest := s.now().Add(s.minLead); from.Before(earliest) {
		from = earliest
	}
	if !to.After(from) {
		return []Window{}, nil
	}

	avail, err := s.availability.ListForPractitioner(ctx, practitionerID, from, to)
	if err != nil {
		return nil, err
	}
	booked, err := s.appointments.ListBooked(ctx, practitionerID, from, to)
	if err != nil {
		return nil, err
	}

	windows := make([]Window, 0, len(avail))
	for _, a := range avail {
		w := Window{Start: a.StartsAt, End: a.EndsAt}
		if w.Start.Before(from) {
			w.Start = from
		}
		if w.End.After(to) {
			w.End = to
		}
		if w.End.After(w.Start) {
			windows = append(windows, w)
		}
	}
	busy := make([]Window, len(booked))
	for i, b := range booked {
		busy[i] = Window{Start: b.ScheduledStart, End: b.ScheduledEnd}
	}
	out := OpenWindows(windows, busy)
	if out == nil {
		out = []Window{}
	}
	return out, nil
}
