package member

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")
)

type Member struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	DateOfBirth    *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Role           string     `db:"role" json:"role"`
	OrganizationID *uuid.UUID `db:"organization_id" json:"organization_id,omitempty"`
	ZendeskUserID  *int64     `db:"zendesk_user_id" json:"zendesk_user_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

func (m *Member) FullName() string {
	if m.LastName == "" {
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}

type Organization struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	IsTest       bool      `db:"is_test" json:"is_test"`
	AllowsWallet bool      `db:"allows_wallet" json:"allows_wallet"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Profile is the response body for GET /me.
type Profile struct {
	*Member
	Organization *Organization `json:"organization,omitempty"`
}
