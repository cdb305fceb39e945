package appointment

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrForbidden     = errors.New("not a participant of this appointment")
	ErrConflict      = errors.New("time slot conflicts with an existing appointment")
	ErrInvalidState  = errors.New("appointment state does not allow this action")
	ErrOutsideWindow = errors.New("requested time is outside practitioner availability")
)

// ValidationError marks bad caller input.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

type State string

const (
	StateScheduled  State = "SCHEDULED"
	StateOverdue    State = "OVERDUE"
	StateOccurring  State = "OCCURRING"
	StateIncomplete State = "INCOMPLETE"
	StateCompleted  State = "COMPLETED"
	StateCancelled  State = "CANCELLED"
)

var validStates = map[State]bool{
	StateScheduled: true, StateOverdue: true, StateOccurring: true,
	StateIncomplete: true, StateCompleted: true, StateCancelled: true,
}

const (
	PrivacyBasic     = "basic"
	PrivacyAnonymous = "anonymous"
)

const (
	PolicyFlexible     = "flexible"
	PolicyModerate     = "moderate"
	PolicyConservative = "conservative"
	PolicyStrict       = "strict"
)

type refundTier struct {
	minHours float64
	percent  int
}

// Tiers are ordered by descending threshold; the first match wins.
var refundPolicies = map[string][]refundTier{
	PolicyFlexible:     {{2, 100}},
	PolicyModerate:     {{24, 100}, {2, 50}},
	PolicyConservative: {{48, 100}, {24, 50}},
	PolicyStrict:       {{48, 50}},
}

// RefundPercent returns the refund owed when a member cancels
// hoursBefore hours ahead of the scheduled start.
func RefundPercent(policy string, hoursBefore float64) int {
	tiers, ok := refundPolicies[policy]
	if !ok {
		tiers = refundPolicies[PolicyModerate]
	}
	for _, t := range tiers {
		if hoursBefore >= t.minHours {
			return t.percent
		}
	}
	return 0
}

type Practitioner struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	FirstName          string     `db:"first_name" json:"first_name"`
	LastName           string     `db:"last_name" json:"last_name"`
	Verticals          []string   `db:"verticals" json:"verticals"`
	Specialties        []string   `db:"specialties" json:"specialties"`
	States             []string   `db:"states" json:"states"`
	Timezone           string     `db:"timezone" json:"timezone"`
	NextAvailability   *time.Time `db:"next_availability" json:"next_availability,omitempty"`
	CancellationPolicy string     `db:"cancellation_policy" json:"cancellation_policy"`
	Active             bool       `db:"active" json:"active"`
}

type Product struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PractitionerID uuid.UUID `db:"practitioner_id" json:"practitioner_id"`
	Vertical       string    `db:"vertical" json:"vertical"`
	Minutes        int       `db:"minutes" json:"minutes"`
	PriceCents     int64     `db:"price_cents" json:"price_cents"`
	Active         bool      `db:"active" json:"active"`
}

type Availability struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PractitionerID uuid.UUID `db:"practitioner_id" json:"practitioner_id"`
	StartsAt       time.Time `db:"starts_at" json:"starts_at"`
	EndsAt         time.Time `db:"ends_at" json:"ends_at"`
}

type Appointment struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	MemberID              uuid.UUID  `db:"member_id" json:"member_id"`
	ProductID             uuid.UUID  `db:"product_id" json:"product_id"`
	PractitionerID        uuid.UUID  `db:"practitioner_id" json:"practitioner_id"`
	ScheduledStart        time.Time  `db:"scheduled_start" json:"scheduled_start"`
	ScheduledEnd          time.Time  `db:"scheduled_end" json:"scheduled_end"`
	Purpose               *string    `db:"purpose" json:"purpose,omitempty"`
	Privacy               string     `db:"privacy" json:"privacy"`
	CancellationPolicy    string     `db:"cancellation_policy" json:"cancellation_policy"`
	CancelledAt           *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancelledByUserID     *uuid.UUID `db:"cancelled_by_user_id" json:"cancelled_by_user_id,omitempty"`
	RefundPercent         *int       `db:"refund_percent" json:"refund_percent,omitempty"`
	MemberStartedAt       *time.Time `db:"member_started_at" json:"member_started_at,omitempty"`
	MemberEndedAt         *time.Time `db:"member_ended_at" json:"member_ended_at,omitempty"`
	PractitionerStartedAt *time.Time `db:"practitioner_started_at" json:"practitioner_started_at,omitempty"`
	PractitionerEndedAt   *time.Time `db:"practitioner_ended_at" json:"practitioner_ended_at,omitempty"`
	MemberNote            *string    `db:"member_note" json:"member_note,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// State derives the lifecycle state at now. Precedence runs from
// cancelled down to scheduled.
func (a *Appointment) State(now time.Time) State {
	started := a.MemberStartedAt != nil || a.PractitionerStartedAt != nil
	bothEnded := a.MemberEndedAt != nil && a.PractitionerEndedAt != nil
	switch {
	case a.CancelledAt != nil:
		return StateCancelled
	case bothEnded:
		return StateCompleted
	case started && now.After(a.ScheduledEnd):
		return StateIncomplete
	case started:
		return StateOccurring
	case now.After(a.ScheduledStart):
		return StateOverdue
	default:
		return StateScheduled
	}
}

// IsParticipant reports whether userID is the member or the practitioner.
func (a *Appointment) IsParticipant(userID uuid.UUID) bool {
	return a.MemberID == userID || a.PractitionerID == userID
}

// View is an appointment with its state resolved for a response.
type View struct {
	*Appointment
	State State `json:"state"`
}

func NewView(a *Appointment, now time.Time) View {
	return View{Appointment: a, State: a.State(now)}
}

// Window is a half-open [Start, End) interval.
type Window struct {
	Start time.Time `json:"starts_at"`
	End   time.Time `json:"ends_at"`
}

func (w Window) overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

func (w Window) contains(o Window) bool {
	return !o.Start.Before(w.Start) && !o.End.After(w.End)
}

// OpenWindows returns availability with booked intervals removed. The result
// is sorted and contains no empty windows.
func OpenWindows(availability []Window, booked []Window) []Window {
	sorted := append([]Window(nil), booked...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var out []Window
	for _, av := range availability {
		cursor := av.Start
		for _, b := range sorted {
			if !b.End.After(cursor) || !b.Start.Before(av.End) {
				continue
			}
			if b.Start.After(cursor) {
				out = append(out, Window{Start: cursor, End: b.Start})
			}
			if b.End.After(cursor) {
				cursor = b.End
			}
		}
		if cursor.Before(av.End) {
			out = append(out, Window{Start: cursor, End: av.End})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// BookRequest is the body of POST /appointments.
type BookRequest struct {
	ProductID      uuid.UUID `json:"product_id"`
	ScheduledStart time.Time `json:"scheduled_start"`
	Purpose        *string   `json:"purpose,omitempty"`
	Privacy        string    `json:"privacy,omitempty"`
	MemberNote     *string   `json:"member_note,omitempty"`
}

// ListFilter narrows GET /appointments.
type ListFilter struct {
	UserID         uuid.UUID
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
	State          State
}

type NamedEntity struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// SearchResults is the booking flow search response.
type SearchResults struct {
	Practitioners []*Practitioner `json:"practitioners"`
	Verticals     []NamedEntity   `json:"verticals"`
	Specialties   []NamedEntity   `json:"specialties"`
	Totals        SearchTotals    `json:"totals"`
	Limit         int             `json:"limit"`
	Offset        int             `json:"offset"`
}

type SearchTotals struct {
	Practitioners int `json:"practitioners"`
	Verticals     int `json:"verticals"`
	Specialties   int `json:"specialties"`
}
