package accumulation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const JobGenerateFiles = "accumulation.generate_files"

var (
	ErrNotFound     = errors.New("not found")
	ErrUnknownPayer = errors.New("unknown payer")
	ErrInvalidState = errors.New("report state does not allow this action")
	ErrFileExists   = errors.New("accumulation file already exists")
)

type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

type Relationship string

const (
	RelationshipSelf   Relationship = "self"
	RelationshipSpouse Relationship = "spouse"
	RelationshipChild  Relationship = "child"
	RelationshipOther  Relationship = "other"
)

// X12 individual relationship codes.
var relationshipCodes = map[Relationship]string{
	RelationshipSelf:   "18",
	RelationshipSpouse: "01",
	RelationshipChild:  "19",
	RelationshipOther:  "G8",
}

type MappingStatus string

const (
	MappingWaiting   MappingStatus = "WAITING"
	MappingProcessed MappingStatus = "PROCESSED"
	MappingSubmitted MappingStatus = "SUBMITTED"
	MappingRejected  MappingStatus = "REJECTED"
	MappingRowError  MappingStatus = "ROW_ERROR"
	MappingSkip      MappingStatus = "SKIP"
)

type ReportStatus string

const (
	ReportNew       ReportStatus = "NEW"
	ReportSubmitted ReportStatus = "SUBMITTED"
	ReportFailure   ReportStatus = "FAILURE"
)

type MemberHealthPlan struct {
	ID                  uuid.UUID    `db:"id" json:"id"`
	MemberID            uuid.UUID    `db:"member_id" json:"member_id"`
	WalletID            *uuid.UUID   `db:"wallet_id" json:"wallet_id,omitempty"`
	PayerName           string       `db:"payer_name" json:"payer_name"`
	SubscriberID        string       `db:"subscriber_id" json:"subscriber_id"`
	SubscriberFirstName string       `db:"subscriber_first_name" json:"subscriber_first_name"`
	SubscriberLastName  string       `db:"subscriber_last_name" json:"subscriber_last_name"`
	SubscriberDOB       time.Time    `db:"subscriber_dob" json:"subscriber_dob"`
	PatientFirstName    string       `db:"patient_first_name" json:"patient_first_name"`
	PatientLastName     string       `db:"patient_last_name" json:"patient_last_name"`
	PatientDOB          time.Time    `db:"patient_dob" json:"patient_dob"`
	PatientSex          string       `db:"patient_sex" json:"patient_sex"`
	Relationship        Relationship `db:"relationship" json:"relationship"`
	PlanStart           time.Time    `db:"plan_start" json:"plan_start"`
	PlanEnd             *time.Time   `db:"plan_end" json:"plan_end,omitempty"`
}

type TreatmentProcedure struct {
	ID            uuid.UUID `db:"id" json:"id"`
	MemberID      uuid.UUID `db:"member_id" json:"member_id"`
	ProcedureCode string    `db:"procedure_code" json:"procedure_code"`
	DiagnosisCode string    `db:"diagnosis_code" json:"diagnosis_code"`
	ProviderNPI   string    `db:"provider_npi" json:"provider_npi"`
	ProviderName  string    `db:"provider_name" json:"provider_name"`
	StartDate     time.Time `db:"start_date" json:"start_date"`
	EndDate       time.Time `db:"end_date" json:"end_date"`
	CostCents     int64     `db:"cost_cents" json:"cost_cents"`
}

type Mapping struct {
	ID                   uuid.UUID     `db:"id" json:"id"`
	TreatmentProcedureID uuid.UUID     `db:"treatment_procedure_id" json:"treatment_procedure_id"`
	PayerName            string        `db:"payer_name" json:"payer_name"`
	Status               MappingStatus `db:"status" json:"status"`
	DeductibleCents      int64         `db:"deductible_cents" json:"deductible_cents"`
	OOPAppliedCents      int64         `db:"oop_applied_cents" json:"oop_applied_cents"`
	ReportID             *uuid.UUID    `db:"report_id" json:"report_id,omitempty"`
	RowError             *string       `db:"row_error" json:"row_error,omitempty"`
	CreatedAt            time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updated_at"`
}

type Report struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	PayerName     string       `db:"payer_name" json:"payer_name"`
	FileName      string       `db:"file_name" json:"file_name"`
	ReportDate    time.Time    `db:"report_date" json:"report_date"`
	Status        ReportStatus `db:"status" json:"status"`
	BlobKey       string       `db:"blob_key" json:"blob_key"`
	RowCount      int          `db:"row_count" json:"row_count"`
	ControlNumber int          `db:"control_number" json:"control_number"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

// Row is a waiting mapping joined with its procedure and the member's health
// plan covering the service date. Plan is nil when none matches.
type Row struct {
	Mapping   Mapping
	Procedure TreatmentProcedure
	Plan      *MemberHealthPlan
}

// RowError is a row that could not be sent.
type RowError struct {
	MappingID uuid.UUID `json:"mapping_id"`
	Reason    string    `json:"reason"`
}

// MappingInput registers a procedure for accumulation.
type MappingInput struct {
	TreatmentProcedureID uuid.UUID `json:"treatment_procedure_id"`
	PayerName            string    `json:"payer_name"`
	DeductibleCents      int64     `json:"deductible_cents"`
	OOPAppliedCents      int64     `json:"oop_applied_cents"`
}
