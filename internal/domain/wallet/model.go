package wallet

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job types consumed by the Alegeus worker.
const (
	JobEnrollWallet     = "alegeus.enroll_wallet"
	JobSubmitClaim      = "alegeus.submit_claim"
	JobSyncTransactions = "alegeus.sync_transactions"
	JobIssueCard        = "alegeus.issue_card"
	JobUpdateCardStatus = "alegeus.update_card_status"
)

// Braze events.
const (
	EventRequestStateChange = "wallet_reimbursement_state_change"
	EventWalletStateChange  = "wallet_state_change"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("wallet does not belong to user")
	ErrInvalidState        = errors.New("state does not allow this action")
	ErrInsufficientBalance = errors.New("amount exceeds remaining category balance")
	ErrCardExists          = errors.New("wallet already has an open debit card")
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

// NoReimbursementMethodError is returned when a manual claim is filed on a
// wallet that must have a reimbursement method but has none.
type NoReimbursementMethodError struct {
	WalletID uuid.UUID
}

func (e *NoReimbursementMethodError) Error() string {
	return fmt.Sprintf("wallet %s has no reimbursement method", e.WalletID)
}

type WalletState string

const (
	WalletPending      WalletState = "PENDING"
	WalletQualified    WalletState = "QUALIFIED"
	WalletDisqualified WalletState = "DISQUALIFIED"
	WalletExpired      WalletState = "EXPIRED"
	WalletRunout       WalletState = "RUNOUT"
)

var walletTransitions = map[WalletState][]WalletState{
	WalletPending:   {WalletQualified, WalletDisqualified},
	WalletQualified: {WalletRunout, WalletExpired, WalletDisqualified},
	WalletRunout:    {WalletExpired},
}

type ReimbursementMethod string

const (
	MethodDirectDeposit ReimbursementMethod = "DIRECT_DEPOSIT"
	MethodPayroll       ReimbursementMethod = "PAYROLL"
	MethodDirectPayment ReimbursementMethod = "MMB_DIRECT_PAYMENT"
)

var validMethods = map[ReimbursementMethod]bool{
	MethodDirectDeposit: true, MethodPayroll: true, MethodDirectPayment: true,
}

type State string

const (
	StateNew                 State = "NEW"
	StatePending             State = "PENDING"
	StateApproved            State = "APPROVED"
	StateReimbursed          State = "REIMBURSED"
	StateDenied              State = "DENIED"
	StateFailed              State = "FAILED"
	StateNeedsReceipt        State = "NEEDS_RECEIPT"
	StateReceiptSubmitted    State = "RECEIPT_SUBMITTED"
	StateInsufficientReceipt State = "INSUFFICIENT_RECEIPT"
	StateIneligibleExpense   State = "INELIGIBLE_EXPENSE"
	StatePendingMemberInput  State = "PENDING_MEMBER_INPUT"
	StateResolved            State = "RESOLVED"
	StateRefunded            State = "REFUNDED"
)

var validStates = map[State]bool{
	StateNew: true, StatePending: true, StateApproved: true, StateReimbursed: true,
	StateDenied: true, StateFailed: true, StateNeedsReceipt: true, StateReceiptSubmitted: true,
	StateInsufficientReceipt: true, StateIneligibleExpense: true, StatePendingMemberInput: true,
	StateResolved: true, StateRefunded: true,
}

func ValidState(s State) bool { return validStates[s] }

// Manual (ops) transitions. States without an entry are terminal for edits.
var requestTransitions = map[State][]State{
	StateNew:                {StatePending, StateDenied},
	StatePending:            {StateApproved, StateDenied, StatePendingMemberInput},
	StatePendingMemberInput: {StatePending, StateDenied},
	StateApproved:           {StateReimbursed, StateFailed},
	StateFailed:             {StateApproved},
}

func canTransition[S comparable](table map[S][]S, from, to S) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

type ReimbursementType string

const (
	TypeManual        ReimbursementType = "MANUAL"
	TypeDebitCard     ReimbursementType = "DEBIT_CARD"
	TypeDirectBilling ReimbursementType = "DIRECT_BILLING"
)

type BenefitType string

const (
	BenefitCurrency BenefitType = "CURRENCY"
	BenefitCycle    BenefitType = "CYCLE"
)

type CardStatus string

const (
	CardNew      CardStatus = "NEW"
	CardActive   CardStatus = "ACTIVE"
	CardInactive CardStatus = "INACTIVE"
	CardClosed   CardStatus = "CLOSED"
)

type Wallet struct {
	ID                     uuid.UUID            `db:"id" json:"id"`
	MemberID               uuid.UUID            `db:"member_id" json:"member_id"`
	OrganizationSettingsID uuid.UUID            `db:"organization_settings_id" json:"organization_settings_id"`
	State                  WalletState          `db:"state" json:"state"`
	ReimbursementMethod    *ReimbursementMethod `db:"reimbursement_method" json:"reimbursement_method,omitempty"`
	AlegeusEmployeeID      *string              `db:"alegeus_employee_id" json:"alegeus_employee_id,omitempty"`
	CreatedAt              time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time            `db:"updated_at" json:"updated_at"`
}

type OrganizationSettings struct {
	ID                          uuid.UUID  `db:"id" json:"id"`
	OrganizationID              uuid.UUID  `db:"organization_id" json:"organization_id"`
	DirectPaymentEnabled        bool       `db:"direct_payment_enabled" json:"direct_payment_enabled"`
	RequiresReimbursementMethod bool       `db:"requires_reimbursement_method" json:"requires_reimbursement_method"`
	StartedAt                   time.Time  `db:"started_at" json:"started_at"`
	EndedAt                     *time.Time `db:"ended_at" json:"ended_at,omitempty"`
}

type Category struct {
	ID                     uuid.UUID   `db:"id" json:"id"`
	OrganizationSettingsID uuid.UUID   `db:"organization_settings_id" json:"organization_settings_id"`
	Label                  string      `db:"label" json:"label"`
	ShortLabel             string      `db:"short_label" json:"short_label"`
	AlegeusPlanID          *string     `db:"alegeus_plan_id" json:"alegeus_plan_id,omitempty"`
	BenefitType            BenefitType `db:"benefit_type" json:"benefit_type"`
	LimitCents             *int64      `db:"limit_cents" json:"limit_cents,omitempty"`
	NumCycles              *int        `db:"num_cycles" json:"num_cycles,omitempty"`
}

type ReimbursementRequest struct {
	ID                    uuid.UUID         `db:"id" json:"id"`
	WalletID              uuid.UUID         `db:"wallet_id" json:"wallet_id"`
	CategoryID            uuid.UUID         `db:"category_id" json:"category_id"`
	Label                 string            `db:"label" json:"label"`
	ServiceProvider       string            `db:"service_provider" json:"service_provider"`
	AmountCents           int64             `db:"amount_cents" json:"amount_cents"`
	State                 State             `db:"state" json:"state"`
	ReimbursementType     ReimbursementType `db:"reimbursement_type" json:"reimbursement_type"`
	ExpenseType           *string           `db:"expense_type" json:"expense_type,omitempty"`
	ServiceStartDate      time.Time         `db:"service_start_date" json:"service_start_date"`
	ServiceEndDate        *time.Time        `db:"service_end_date" json:"service_end_date,omitempty"`
	Description           *string           `db:"description" json:"description,omitempty"`
	AlegeusClaimKey       *string           `db:"alegeus_claim_key" json:"alegeus_claim_key,omitempty"`
	AlegeusTransactionKey *string           `db:"alegeus_transaction_key" json:"alegeus_transaction_key,omitempty"`
	Sources               []Source          `json:"sources"`
	CreatedAt             time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time         `db:"updated_at" json:"updated_at"`
}

type Source struct {
	ID                     uuid.UUID `db:"id" json:"id"`
	ReimbursementRequestID uuid.UUID `db:"reimbursement_request_id" json:"reimbursement_request_id"`
	BlobKey                string    `db:"blob_key" json:"blob_key"`
	FileName               string    `db:"file_name" json:"file_name"`
	ContentType            string    `db:"content_type" json:"content_type"`
	SHA256                 string    `db:"sha256" json:"sha256"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
}

type DebitCard struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	WalletID        uuid.UUID  `db:"wallet_id" json:"wallet_id"`
	CardProxyNumber *string    `db:"card_proxy_number" json:"card_proxy_number,omitempty"`
	CardLast4       *string    `db:"card_last_4" json:"card_last_4,omitempty"`
	Status          CardStatus `db:"status" json:"status"`
	IssuedAt        *time.Time `db:"issued_at" json:"issued_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// Balance summarizes one category's usage.
type Balance struct {
	CategoryID     uuid.UUID   `json:"category_id"`
	Label          string      `json:"label"`
	BenefitType    BenefitType `json:"benefit_type"`
	LimitCents     *int64      `json:"limit_cents,omitempty"`
	SpentCents     int64       `json:"spent_cents"`
	PendingCents   int64       `json:"pending_cents"`
	RemainingCents *int64      `json:"remaining_cents,omitempty"`
	NumCycles      *int        `json:"num_cycles,omitempty"`
}

var (
	spentStates = map[State]bool{StateApproved: true, StateReimbursed: true, StateResolved: true}
	// Debit card swipes already left the account even before substantiation.
	cardSpentStates = map[State]bool{StateNeedsReceipt: true, StateReceiptSubmitted: true, StateInsufficientReceipt: true}
	pendingStates   = map[State]bool{StateNew: true, StatePending: true, StatePendingMemberInput: true}
)

func countsAsSpent(r *ReimbursementRequest) bool {
	return spentStates[r.State] || (r.ReimbursementType == TypeDebitCard && cardSpentStates[r.State])
}

// ComputeBalances returns one Balance per category, in category order.
func ComputeBalances(categories []*Category, requests []*ReimbursementRequest) []Balance {
	byCategory := make(map[uuid.UUID]*Balance, len(categories))
	out := make([]Balance, len(categories))
	for i, c := range categories {
		out[i] = Balance{CategoryID: c.ID, Label: c.Label, BenefitType: c.BenefitType, LimitCents: c.LimitCents, NumCycles: c.NumCycles}
		byCategory[c.ID] = &out[i]
	}
	for _, r := range requests {
		b, ok := byCategory[r.CategoryID]
		if !ok || b.BenefitType != BenefitCurrency {
			continue
		}
		switch {
		case countsAsSpent(r):
			b.SpentCents += r.AmountCents
		case pendingStates[r.State]:
			b.PendingCents += r.AmountCents
		}
	}
	for i := range out {
		b := &out[i]
		if b.BenefitType != BenefitCurrency {
			b.SpentCents, b.PendingCents = 0, 0
			continue
		}
		if b.LimitCents != nil {
			rem := *b.LimitCents - b.SpentCents
			if rem < 0 {
				rem = 0
			}
			b.RemainingCents = &rem
		}
	}
	return out
}

// WalletView is the GET response for a wallet.
type WalletView struct {
	*Wallet
	Settings  *OrganizationSettings `json:"organization_settings"`
	Balances  []Balance             `json:"balances"`
	DebitCard *DebitCard            `json:"debit_card,omitempty"`
}

// RequestInput is the body for creating or updating a request. Dates are
// YYYY-MM-DD.
type RequestInput struct {
	CategoryID        uuid.UUID         `json:"category_id"`
	Label             string            `json:"label"`
	ServiceProvider   string            `json:"service_provider"`
	AmountCents       int64             `json:"amount_cents"`
	ReimbursementType ReimbursementType `json:"reimbursement_type,omitempty"`
	ExpenseType       *string           `json:"expense_type,omitempty"`
	ServiceStartDate  string            `json:"service_start_date"`
	ServiceEndDate    string            `json:"service_end_date,omitempty"`
	Description       *string           `json:"description,omitempty"`
}

// RequestPatch carries member-editable fields. Nil leaves a field unchanged.
type RequestPatch struct {
	Label            *string `json:"label,omitempty"`
	ServiceProvider  *string `json:"service_provider,omitempty"`
	AmountCents      *int64  `json:"amount_cents,omitempty"`
	ServiceStartDate *string `json:"service_start_date,omitempty"`
	ServiceEndDate   *string `json:"service_end_date,omitempty"`
	Description      *string `json:"description,omitempty"`
}

const dateLayout = "2006-01-02"

func parseDate(field, v string) (time.Time, error) {
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, invalid("%s must be YYYY-MM-DD", field)
	}
	return t, nil
}

// Job payloads.

type WalletJob struct {
	WalletID uuid.UUID `json:"wallet_id"`
}

type RequestJob struct {
	ReimbursementRequestID uuid.UUID `json:"reimbursement_request_id"`
}

type CardJob struct {
	WalletID uuid.UUID  `json:"wallet_id"`
	CardID   uuid.UUID  `json:"card_id"`
	Status   CardStatus `json:"status"`
}
