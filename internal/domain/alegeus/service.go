package alegeus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebenefits/platform/internal/domain/member"
	"github.com/carebenefits/platform/internal/domain/wallet"
	"github.com/carebenefits/platform/internal/platform/jobs"
	"github.com/carebenefits/platform/internal/platform/metrics"
)

// ErrNotEnrolled is returned for wallets without an Alegeus employee id.
var ErrNotEnrolled = errors.New("wallet is not enrolled with alegeus")

const (
	// EnrollmentWait is how long a job for a wallet that is still enrolling
	// waits before it runs again.
	EnrollmentWait = 30 * time.Second
	// ClaimResubmitAge is how old an unsubmitted MANUAL request must be before
	// the debit sync submits it again.
	ClaimResubmitAge = 15 * time.Minute
)

// awaitEnrollment lets wallet jobs that race the enroll job run again later.
func awaitEnrollment(err error) error {
	if errors.Is(err, ErrNotEnrolled) {
		return jobs.RetryAfter(err, EnrollmentWait)
	}
	return err
}

type Members interface {
	GetMember(ctx context.Context, id uuid.UUID) (*member.Member, error)
}

// Notifier receives request state changes made during reconciliation.
type Notifier interface {
	NotifyRequestState(ctx context.Context, memberID uuid.UUID, r *wallet.ReimbursementRequest, from wallet.State)
}

// SyncResult counts reconciliation outcomes.
type SyncResult struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

func (r SyncResult) record() {
	metrics.RecordReconciliation("created", r.Created)
	metrics.RecordReconciliation("updated", r.Updated)
	metrics.RecordReconciliation("unchanged", r.Unchanged)
	metrics.RecordReconciliation("skipped", r.Skipped)
}

type Service struct {
	api      API
	wallets  wallet.WalletRepository
	settings wallet.SettingsRepository
	requests wallet.RequestRepository
	cards    wallet.DebitCardRepository
	members  Members
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(api API, wallets wallet.WalletRepository, settings wallet.SettingsRepository, requests wallet.RequestRepository,
	cards wallet.DebitCardRepository, members Members, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		api:      api,
		wallets:  wallets,
		settings: settings,
		requests: requests,
		cards:    cards,
		members:  members,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) enrolledWallet(ctx context.Context, walletID uuid.UUID) (*wallet.Wallet, string, error) {
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, "", err
	}
	if w.AlegeusEmployeeID == nil || *w.AlegeusEmployeeID == "" {
		return nil, "", fmt.Errorf("%w: %s", ErrNotEnrolled, walletID)
	}
	return w, *w.AlegeusEmployeeID, nil
}

func parseServiceDate(vals ...string) (time.Time, bool) {
	for _, v := range vals {
		for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05", time.RFC3339} {
			if t, err := time.Parse(layout, v); err == nil {
				y, m, d := t.Date()
				return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
			}
		}
	}
	return time.Time{}, false
}

// SyncTransactions reconciles debit card transactions into DEBIT_CARD
// reimbursement requests, one per TransactionKey.
func (s *Service) SyncTransactions(ctx context.Context, walletID uuid.UUID) (SyncResult, error) {
	var res SyncResult
	w, employeeID, err := s.enrolledWallet(ctx, walletID)
	if err != nil {
		return res, err
	}
	txns, err := s.api.GetEmployeeTransactions(ctx, employeeID)
	if err != nil {
		return res, fmt.Errorf("fetch transactions: %w", err)
	}
	cats, err := s.settings.Categories(ctx, w.OrganizationSettingsID)
	if err != nil {
		return res, err
	}
	byPlan := make(map[string]*wallet.Category, len(cats))
	for _, c := range cats {
		if c.AlegeusPlanID != nil {
			byPlan[*c.AlegeusPlanID] = c
		}
	}
	log := s.logger.With().Str("wallet_id", w.ID.String()).Logger()

	for _, t := range txns {
		if t.TransactionKey == "" {
			res.Skipped++
			continue
		}
		state, mapped := TransactionState(t)
		existing, err := s.requests.GetByTransactionKey(ctx, t.TransactionKey)
		if err != nil && !errors.Is(err, wallet.ErrNotFound) {
			return res, err
		}
		if !mapped {
			log.Warn().Str("transaction_key", t.TransactionKey).Int("status_code", t.StatusCode).
				Msg("unmapped alegeus transaction status")
			res.Skipped++
			continue
		}

		if existing == nil {
			r, ok := s.newCardRequest(w, byPlan, t, state)
			if !ok {
				log.Warn().Str("transaction_key", t.TransactionKey).Str("plan_id", t.PlanID).
					Msg("skipping transaction without category or service date")
				res.Skipped++
				continue
			}
			if err := s.requests.Create(ctx, r); err != nil {
				return res, err
			}
			s.notifier.NotifyRequestState(ctx, w.MemberID, r, "")
			res.Created++
			continue
		}

		next, changed := nextState(existing.State, state)
		if !changed {
			res.Unchanged++
			continue
		}
		from := existing.State
		existing.State = next
		if err := s.requests.Update(ctx, existing); err != nil {
			return res, err
		}
		s.notifier.NotifyRequestState(ctx, w.MemberID, existing, from)
		res.Updated++
	}

	res.record()
	log.Info().Int("created", res.Created).Int("updated", res.Updated).Int("unchanged", res.Unchanged).
		Int("skipped", res.Skipped).Msg("alegeus transactions reconciled")
	return res, nil
}

func (s *Service) newCardRequest(w *wallet.Wallet, byPlan map[string]*wallet.Category, t Transaction, state wallet.State) (*wallet.ReimbursementRequest, bool) {
	cat, ok := byPlan[t.PlanID]
	if !ok {
		return nil, false
	}
	date, ok := parseServiceDate(t.ServiceStartDate, t.SettlementDate)
	if !ok {
		return nil, false
	}
	amount := t.AmountCents
	if amount < 0 {
		amount = -amount
	}
	label := t.Description
	if label == "" {
		label = "Debit card transaction"
	}
	key := t.TransactionKey
	return &wallet.ReimbursementRequest{
		WalletID:              w.ID,
		CategoryID:            cat.ID,
		Label:                 label,
		ServiceProvider:       label,
		AmountCents:           amount,
		State:                 state,
		ReimbursementType:     wallet.TypeDebitCard,
		ServiceStartDate:      date,
		AlegeusTransactionKey: &key,
	}, true
}

// SubmitClaim files a MANUAL request in NEW with Alegeus and moves it to
// PENDING. Other requests are left alone.
func (s *Service) SubmitClaim(ctx context.Context, requestID uuid.UUID) error {
	r, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	log := s.logger.With().Str("reimbursement_request_id", r.ID.String()).Logger()
	if r.ReimbursementType != wallet.TypeManual || r.State != wallet.StateNew {
		log.Info().Str("state", string(r.State)).Str("type", string(r.ReimbursementType)).Msg("claim not submitted")
		return nil
	}
	w, employeeID, err := s.enrolledWallet(ctx, r.WalletID)
	if err != nil {
		return err
	}
	cats, err := s.settings.Categories(ctx, w.OrganizationSettingsID)
	if err != nil {
		return err
	}
	var planID string
	for _, c := range cats {
		if c.ID == r.CategoryID && c.AlegeusPlanID != nil {
			planID = *c.AlegeusPlanID
		}
	}
	if planID == "" {
		return fmt.Errorf("category %s has no alegeus plan", r.CategoryID)
	}
	claim := Claim{
		PlanID:           planID,
		Amount:           CentsToDollars(r.AmountCents),
		ServiceStartDate: r.ServiceStartDate.Format("2006-01-02"),
		ServiceEndDate:   r.ServiceStartDate.Format("2006-01-02"),
		Provider:         r.ServiceProvider,
		Description:      r.Label,
		TrackingNumber:   r.ID.String(),
	}
	if r.ServiceEndDate != nil {
		claim.ServiceEndDate = r.ServiceEndDate.Format("2006-01-02")
	}
	key, err := s.api.PostClaim(ctx, employeeID, claim)
	if err != nil {
		return fmt.Errorf("post claim: %w", err)
	}
	r.AlegeusClaimKey = &key
	r.State = wallet.StatePending
	if err := s.requests.Update(ctx, r); err != nil {
		return err
	}
	s.notifier.NotifyRequestState(ctx, w.MemberID, r, wallet.StateNew)
	log.Info().Str("claim_key", key).Msg("claim submitted")
	return nil
}

// SyncClaimStatus refreshes submitted manual claims of a wallet.
func (s *Service) SyncClaimStatus(ctx context.Context, walletID uuid.UUID) (SyncResult, error) {
	var res SyncResult
	w, employeeID, err := s.enrolledWallet(ctx, walletID)
	if err != nil {
		return res, err
	}
	reqs, err := s.requests.ListAwaitingClaim(ctx, w.ID)
	if err != nil {
		return res, err
	}
	for _, r := range reqs {
		st, err := s.api.GetClaimStatus(ctx, employeeID, *r.AlegeusClaimKey)
		if err != nil {
			return res, fmt.Errorf("claim status %s: %w", *r.AlegeusClaimKey, err)
		}
		next, adjust, ok := ClaimState(st.Status)
		if !ok {
			res.Skipped++
			continue
		}
		from := r.State
		changed := next != r.State
		if adjust && st.ReimbursementAmountCents > 0 && st.ReimbursementAmountCents != r.AmountCents {
			r.AmountCents = st.ReimbursementAmountCents
			changed = true
		}
		if !changed {
			res.Unchanged++
			continue
		}
		r.State = next
		if err := s.requests.Update(ctx, r); err != nil {
			return res, err
		}
		s.notifier.NotifyRequestState(ctx, w.MemberID, r, from)
		res.Updated++
	}
	res.record()
	return res, nil
}

// EnrollWallet registers the member with Alegeus and adds every currency
// plan with its limit.
func (s *Service) EnrollWallet(ctx context.Context, walletID uuid.UUID) error {
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return err
	}
	if w.State != wallet.WalletQualified {
		s.logger.Info().Str("wallet_id", w.ID.String()).Str("state", string(w.State)).Msg("skipping enrollment")
		return nil
	}
	if w.AlegeusEmployeeID == nil {
		m, err := s.members.GetMember(ctx, w.MemberID)
		if err != nil {
			return err
		}
		d := Demographic{EmployeeID: w.ID.String(), FirstName: m.FirstName, LastName: m.LastName, Email: m.Email}
		if m.DateOfBirth != nil {
			d.DateOfBirth = m.DateOfBirth.Format("2006-01-02")
		}
		id, err := s.api.PostEmployeeDemographic(ctx, d)
		if err != nil {
			return fmt.Errorf("post demographic: %w", err)
		}
		w.AlegeusEmployeeID = &id
		if err := s.wallets.Update(ctx, w); err != nil {
			return err
		}
	}
	cats, err := s.settings.Categories(ctx, w.OrganizationSettingsID)
	if err != nil {
		return err
	}
	for _, c := range cats {
		if c.BenefitType != wallet.BenefitCurrency || c.AlegeusPlanID == nil || c.LimitCents == nil {
			continue
		}
		if err := s.api.PostAddPlan(ctx, *w.AlegeusEmployeeID, *c.AlegeusPlanID, *c.LimitCents); err != nil {
			return fmt.Errorf("add plan %s: %w", *c.AlegeusPlanID, err)
		}
	}
	s.logger.Info().Str("wallet_id", w.ID.String()).Str("employee_id", *w.AlegeusEmployeeID).Msg("wallet enrolled")
	return nil
}

func cardStatus(alegeus string) wallet.CardStatus {
	switch alegeus {
	case "Active", "ACTIVE", "1":
		return wallet.CardActive
	case "Inactive", "INACTIVE", "2":
		return wallet.CardInactive
	case "Closed", "CLOSED", "Lost/Stolen", "5":
		return wallet.CardClosed
	}
	return wallet.CardNew
}

var alegeusCardStatus = map[wallet.CardStatus]string{
	wallet.CardActive:   "Active",
	wallet.CardInactive: "Inactive",
	wallet.CardClosed:   "Lost/Stolen",
}

// IssueCard asks Alegeus to issue the card and stores the returned details.
func (s *Service) IssueCard(ctx context.Context, cardID uuid.UUID) error {
	card, err := s.cards.GetByID(ctx, cardID)
	if err != nil {
		return err
	}
	if card.CardProxyNumber != nil {
		return nil
	}
	_, employeeID, err := s.enrolledWallet(ctx, card.WalletID)
	if err != nil {
		return err
	}
	issued, err := s.api.PostIssueCard(ctx, employeeID)
	if err != nil {
		return fmt.Errorf("issue card: %w", err)
	}
	now := s.now().UTC()
	card.CardProxyNumber = &issued.ProxyNumber
	card.CardLast4 = &issued.Last4
	card.Status = cardStatus(issued.Status)
	card.IssuedAt = &now
	return s.cards.Update(ctx, card)
}

// UpdateCardStatus pushes a local card status change to Alegeus.
func (s *Service) UpdateCardStatus(ctx context.Context, cardID uuid.UUID, status wallet.CardStatus) error {
	card, err := s.cards.GetByID(ctx, cardID)
	if err != nil {
		return err
	}
	if card.CardProxyNumber == nil {
		return nil
	}
	code, ok := alegeusCardStatus[status]
	if !ok {
		return fmt.Errorf("no alegeus status for card status %s", status)
	}
	_, employeeID, err := s.enrolledWallet(ctx, card.WalletID)
	if err != nil {
		return err
	}
	return s.api.PutCardStatus(ctx, employeeID, *card.CardProxyNumber, code)
}

// Register binds the Alegeus job handlers.
func (s *Service) Register(d *jobs.Dispatcher) {
	d.Handle(wallet.JobEnrollWallet, func(ctx context.Context, job jobs.Job) error {
		var p wallet.WalletJob
		if err := job.Decode(&p); err != nil {
			return err
		}
		return s.EnrollWallet(ctx, p.WalletID)
	})
	d.Handle(wallet.JobSubmitClaim, func(ctx context.Context, job jobs.Job) error {
		var p wallet.RequestJob
		if err := job.Decode(&p); err != nil {
			return err
		}
		return awaitEnrollment(s.SubmitClaim(ctx, p.ReimbursementRequestID))
	})
	d.Handle(wallet.JobSyncTransactions, func(ctx context.Context, job jobs.Job) error {
		var p wallet.WalletJob
		if err := job.Decode(&p); err != nil {
			return err
		}
		if _, err := s.SyncTransactions(ctx, p.WalletID); err != nil {
			return err
		}
		_, err := s.SyncClaimStatus(ctx, p.WalletID)
		return err
	})
	d.Handle(wallet.JobIssueCard, func(ctx context.Context, job jobs.Job) error {
		var p wallet.CardJob
		if err := job.Decode(&p); err != nil {
			return err
		}
		return awaitEnrollment(s.IssueCard(ctx, p.CardID))
	})
	d.Handle(wallet.JobUpdateCardStatus, func(ctx context.Context, job jobs.Job) error {
		var p wallet.CardJob
		if err := job.Decode(&p); err != nil {
			return err
		}
		return awaitEnrollment(s.UpdateCardStatus(ctx, p.CardID, p.Status))
	})
}

// EnqueueDebitSync enqueues a transaction sync for every wallet with an
// active card, and a claim submission for MANUAL requests whose submit job
// was lost. It runs on DEBIT_SYNC_CRON.
func (s *Service) EnqueueDebitSync(q jobs.Queue) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ids, err := s.wallets.ListWithActiveCard(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := q.Enqueue(ctx, wallet.JobSyncTransactions, wallet.WalletJob{WalletID: id}); err != nil {
				return err
			}
		}
		unsubmitted, err := s.requests.ListUnsubmittedClaims(ctx, s.now().Add(-ClaimResubmitAge))
		if err != nil {
			return err
		}
		for _, id := range unsubmitted {
			if err := q.Enqueue(ctx, wallet.JobSubmitClaim, wallet.RequestJob{ReimbursementRequestID: id}); err != nil {
				return err
			}
		}
		s.logger.Info().Int("wallets", len(ids)).Int("claims", len(unsubmitted)).Msg("debit sync enqueued")
		return nil
	}
}
