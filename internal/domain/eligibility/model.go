package eligibility

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrNotEligible = errors.New("no active eligibility record for member")
)

// TestMemberCreationError is returned when e9y test members cannot be
// created for an organization.
type TestMemberCreationError struct {
	OrganizationID uuid.UUID
	Reason         string
	Err            error
}

func (e *TestMemberCreationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("create test members for organization %s: %s: %v", e.OrganizationID, e.Reason, e.Err)
	}
	return fmt.Sprintf("create test members for organization %s: %s", e.OrganizationID, e.Reason)
}

func (e *TestMemberCreationError) Unwrap() error { return e.Err }

const dateLayout = "2006-01-02"

const (
	VerificationTypeStandard  = "STANDARD"
	VerificationTypeAlternate = "ALTERNATE"
)

// Record is an eligibility file row held by e9y.
type Record struct {
	ID             int64  `json:"id"`
	OrganizationID string `json:"organization_id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	DateOfBirth    string `json:"date_of_birth"`
	WorkEmail      string `json:"work_email,omitempty"`
	UniqueCorpID   string `json:"unique_corp_id,omitempty"`
	EffectiveStart string `json:"effective_start,omitempty"`
	EffectiveEnd   string `json:"effective_end,omitempty"`
}

// Active reports whether on falls inside the record's effective range. An
// empty bound is open.
func (r *Record) Active(on time.Time) bool {
	day := on.UTC().Format(dateLayout)
	if r.EffectiveStart != "" && day < r.EffectiveStart {
		return false
	}
	if r.EffectiveEnd != "" && day > r.EffectiveEnd {
		return false
	}
	return true
}

// RemoteVerification is the e9y representation of a verified user.
type RemoteVerification struct {
	ID                  int64     `json:"id"`
	UserID              string    `json:"user_id"`
	OrganizationID      string    `json:"organization_id"`
	EligibilityMemberID int64     `json:"eligibility_member_id,omitempty"`
	VerificationType    string    `json:"verification_type"`
	VerifiedAt          time.Time `json:"verified_at"`
	FirstName           string    `json:"first_name,omitempty"`
	LastName            string    `json:"last_name,omitempty"`
	DateOfBirth         string    `json:"date_of_birth,omitempty"`
	WorkEmail           string    `json:"work_email,omitempty"`
	EffectiveStart      string    `json:"effective_start,omitempty"`
	EffectiveEnd        string    `json:"effective_end,omitempty"`
}

// Verification is the locally persisted link between a member and the
// organization e9y verified them against.
type Verification struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	MemberID             uuid.UUID  `db:"member_id" json:"member_id"`
	OrganizationID       uuid.UUID  `db:"organization_id" json:"organization_id"`
	RemoteVerificationID int64      `db:"remote_verification_id" json:"remote_verification_id"`
	EligibilityMemberID  *int64     `db:"eligibility_member_id" json:"eligibility_member_id,omitempty"`
	VerificationType     string     `db:"verification_type" json:"verification_type"`
	VerifiedAt           time.Time  `db:"verified_at" json:"verified_at"`
	EffectiveStart       *time.Time `db:"effective_start" json:"effective_start,omitempty"`
	EffectiveEnd         *time.Time `db:"effective_end" json:"effective_end,omitempty"`
}

// VerifyRequest is the body of POST /enterprise/verification.
type VerifyRequest struct {
	DateOfBirth  string `json:"date_of_birth"`
	CompanyEmail string `json:"company_email,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	UniqueCorpID string `json:"unique_corp_id,omitempty"`
}

// TestMemberSpec describes one synthetic eligibility row.
type TestMemberSpec struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	DateOfBirth    string `json:"date_of_birth"`
	WorkEmail      string `json:"work_email,omitempty"`
	EffectiveStart string `json:"effective_start,omitempty"`
	EffectiveEnd   string `json:"effective_end,omitempty"`
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ValidationError marks bad caller input.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func isValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
