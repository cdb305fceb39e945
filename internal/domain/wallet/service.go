package wallet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebenefits/platform/internal/integrations/braze"
	"github.com/carebenefits/platform/internal/platform/blobstore"
	"github.com/carebenefits/platform/internal/platform/db"
	"github.com/carebenefits/platform/internal/platform/jobs"
)

type Service struct {
	wallets  WalletRepository
	settings SettingsRepository
	requests RequestRepository
	cards    DebitCardRepository
	blobs    blobstore.Store
	queue    jobs.Queue
	tx       db.TxFunc
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(wallets WalletRepository, settings SettingsRepository, requests RequestRepository, cards DebitCardRepository,
	blobs blobstore.Store, queue jobs.Queue, tx db.TxFunc, logger zerolog.Logger) *Service {
	return &Service{
		wallets:  wallets,
		settings: settings,
		requests: requests,
		cards:    cards,
		blobs:    blobs,
		queue:    queue,
		tx:       tx,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) today() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ownedWallet loads the wallet and checks the caller may act on it.
func (s *Service) ownedWallet(ctx context.Context, callerID, walletID uuid.UUID, isOps bool) (*Wallet, error) {
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if !isOps && w.MemberID != callerID {
		return nil, ErrForbidden
	}
	return w, nil
}

func (s *Service) ownedRequest(ctx context.Context, callerID, requestID uuid.UUID, isOps bool) (*ReimbursementRequest, *Wallet, error) {
	r, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	w, err := s.ownedWallet(ctx, callerID, r.WalletID, isOps)
	if err != nil {
		return nil, nil, err
	}
	return r, w, nil
}

// Balances computes per-category balances for a wallet.
func (s *Service) Balances(ctx context.Context, w *Wallet) ([]Balance, []*Category, error) {
	cats, err := s.settings.Categories(ctx, w.OrganizationSettingsID)
	if err != nil {
		return nil, nil, err
	}
	reqs, err := s.requests.ListForBalance(ctx, w.ID)
	if err != nil {
		return nil, nil, err
	}
	return ComputeBalances(cats, reqs), cats, nil
}

func (s *Service) GetWallet(ctx context.Context, callerID, walletID uuid.UUID, isOps bool) (*WalletView, error) {
	w, err := s.ownedWallet(ctx, callerID, walletID, isOps)
	if err != nil {
		return nil, err
	}
	settings, err := s.settings.GetByID(ctx, w.OrganizationSettingsID)
	if err != nil {
		return nil, err
	}
	balances, _, err := s.Balances(ctx, w)
	if err != nil {
		return nil, err
	}
	view := &WalletView{Wallet: w, Settings: settings, Balances: balances}
	card, err := s.cards.GetOpen(ctx, w.ID)
	switch {
	case err == nil:
		view.DebitCard = card
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}
	return view, nil
}

func (s *Service) SetReimbursementMethod(ctx context.Context, callerID, walletID uuid.UUID, method ReimbursementMethod) (*Wallet, error) {
	if !validMethods[method] {
		return nil, invalid("unknown reimbursement_method %q", method)
	}
	w, err := s.ownedWallet(ctx, callerID, walletID, false)
	if err != nil {
		return nil, err
	}
	if method == MethodDirectPayment {
		settings, err := s.settings.GetByID(ctx, w.OrganizationSettingsID)
		if err != nil {
			return nil, err
		}
		if !settings.DirectPaymentEnabled {
			return nil, invalid("direct payment is not enabled for this organization")
		}
	}
	w.ReimbursementMethod = &method
	if err := s.wallets.Update(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// SetWalletState is the ops transition. Qualifying a wallet enrolls it with
// Alegeus.
func (s *Service) SetWalletState(ctx context.Context, walletID uuid.UUID, to WalletState) (*Wallet, error) {
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if !canTransition(walletTransitions, w.State, to) {
		return nil, fmt.Errorf("%w: wallet %s -> %s", ErrInvalidState, w.State, to)
	}
	from := w.State
	w.State = to
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.wallets.Update(ctx, w); err != nil {
			return err
		}
		if to == WalletQualified {
			return s.queue.Enqueue(ctx, JobEnrollWallet, WalletJob{WalletID: w.ID})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.track(ctx, w.MemberID, EventWalletStateChange, map[string]any{
		"wallet_id": w.ID.String(), "previous_state": string(from), "state": string(to),
	})
	return w, nil
}

func (s *Service) track(ctx context.Context, memberID uuid.UUID, event string, props map[string]any) {
	if err := braze.Enqueue(ctx, s.queue, memberID.String(), event, props); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("failed to enqueue braze event")
	}
}

// NotifyRequestState emits the member-facing event for a request state change.
func (s *Service) NotifyRequestState(ctx context.Context, memberID uuid.UUID, r *ReimbursementRequest, from State) {
	if from == r.State {
		return
	}
	s.track(ctx, memberID, EventRequestStateChange, map[string]any{
		"wallet_id":                r.WalletID.String(),
		"reimbursement_request_id": r.ID.String(),
		"previous_state":           string(from),
		"state":                    string(r.State),
		"amount_cents":             r.AmountCents,
	})
}

// canFile reports whether the wallet accepts a claim for a service on date.
func canFile(w *Wallet, settings *OrganizationSettings, date time.Time) bool {
	switch w.State {
	case WalletQualified:
		return true
	case WalletRunout:
		return settings.EndedAt != nil && date.Before(*settings.EndedAt)
	}
	return false
}

func findCategory(cats []*Category, id uuid.UUID) *Category {
	for _, c := range cats {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func findBalance(bs []Balance, id uuid.UUID) *Balance {
	for i := range bs {
		if bs[i].CategoryID == id {
			return &bs[i]
		}
	}
	return nil
}

func (s *Service) checkDates(start time.Time, end *time.Time) error {
	if start.After(s.today()) {
		return invalid("service_start_date cannot be in the future")
	}
	if end != nil && end.Before(start) {
		return invalid("service_end_date must not precede service_start_date")
	}
	return nil
}

// checkAmount verifies amount fits the category. exclude is added back to
// the balance when an existing request is being edited.
func checkAmount(b *Balance, amount, exclude int64) error {
	if amount <= 0 {
		return invalid("amount_cents must be positive")
	}
	if b == nil || b.BenefitType != BenefitCurrency || b.RemainingCents == nil {
		return nil
	}
	if amount > *b.RemainingCents+exclude {
		return fmt.Errorf("%w: %d > %d", ErrInsufficientBalance, amount, *b.RemainingCents+exclude)
	}
	return nil
}

func (s *Service) CreateRequest(ctx context.Context, callerID, walletID uuid.UUID, in *RequestInput) (*ReimbursementRequest, error) {
	w, err := s.ownedWallet(ctx, callerID, walletID, false)
	if err != nil {
		return nil, err
	}
	start, err := parseDate("service_start_date", in.ServiceStartDate)
	if err != nil {
		return nil, err
	}
	var end *time.Time
	if in.ServiceEndDate != "" {
		e, err := parseDate("service_end_date", in.ServiceEndDate)
		if err != nil {
			return nil, err
		}
		end = &e
	}
	if strings.TrimSpace(in.Label) == "" {
		return nil, invalid("label is required")
	}
	if strings.TrimSpace(in.ServiceProvider) == "" {
		return nil, invalid("service_provider is required")
	}
	if err := s.checkDates(start, end); err != nil {
		return nil, err
	}
	if in.ReimbursementType == "" {
		in.ReimbursementType = TypeManual
	}

	settings, err := s.settings.GetByID(ctx, w.OrganizationSettingsID)
	if err != nil {
		return nil, err
	}
	switch in.ReimbursementType {
	case TypeManual:
	case TypeDirectBilling:
		if !settings.DirectPaymentEnabled {
			return nil, invalid("direct billing is not enabled for this organization")
		}
	default:
		return nil, invalid("reimbursement_type %q cannot be filed by members", in.ReimbursementType)
	}
	if !canFile(w, settings, start) {
		return nil, fmt.Errorf("%w: wallet is %s", ErrInvalidState, w.State)
	}
	balances, cats, err := s.Balances(ctx, w)
	if err != nil {
		return nil, err
	}
	if findCategory(cats, in.CategoryID) == nil {
		return nil, invalid("category does not belong to this wallet")
	}
	if err := checkAmount(findBalance(balances, in.CategoryID), in.AmountCents, 0); err != nil {
		return nil, err
	}
	if in.ReimbursementType == TypeManual && settings.RequiresReimbursementMethod && w.ReimbursementMethod == nil {
		return nil, &NoReimbursementMethodError{WalletID: w.ID}
	}

	r := &ReimbursementRequest{
		WalletID:          w.ID,
		CategoryID:        in.CategoryID,
		Label:             strings.TrimSpace(in.Label),
		ServiceProvider:   strings.TrimSpace(in.ServiceProvider),
		AmountCents:       in.AmountCents,
		State:             StateNew,
		ReimbursementType: in.ReimbursementType,
		ExpenseType:       in.ExpenseType,
		ServiceStartDate:  start,
		ServiceEndDate:    end,
		Description:       in.Description,
		Sources:           []Source{},
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.requests.Create(ctx, r); err != nil {
			return err
		}
		return s.queue.Enqueue(ctx, JobSubmitClaim, RequestJob{ReimbursementRequestID: r.ID})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("wallet_id", w.ID.String()).Str("reimbursement_request_id", r.ID.String()).
		Int64("amount_cents", r.AmountCents).Msg("reimbursement request created")
	return r, nil
}

func (s *Service) GetRequest(ctx context.Context, callerID, requestID uuid.UUID, isOps bool) (*ReimbursementRequest, error) {
	r, _, err := s.ownedRequest(ctx, callerID, requestID, isOps)
	return r, err
}

func (s *Service) UpdateRequest(ctx context.Context, callerID, requestID uuid.UUID, p *RequestPatch) (*ReimbursementRequest, error) {
	r, w, err := s.ownedRequest(ctx, callerID, requestID, false)
	if err != nil {
		return nil, err
	}
	if r.State != StateNew {
		return nil, fmt.Errorf("%w: request is %s", ErrInvalidState, r.State)
	}
	if p.Label != nil {
		if strings.TrimSpace(*p.Label) == "" {
			return nil, invalid("label cannot be empty")
		}
		r.Label = strings.TrimSpace(*p.Label)
	}
	if p.ServiceProvider != nil {
		if strings.TrimSpace(*p.ServiceProvider) == "" {
			return nil, invalid("service_provider cannot be empty")
		}
		r.ServiceProvider = strings.TrimSpace(*p.ServiceProvider)
	}
	if p.ServiceStartDate != nil {
		if r.ServiceStartDate, err = parseDate("service_start_date", *p.ServiceStartDate); err != nil {
			return nil, err
		}
	}
	if p.ServiceEndDate != nil {
		if *p.ServiceEndDate == "" {
			r.ServiceEndDate = nil
		} else {
			e, err := parseDate("service_end_date", *p.ServiceEndDate)
			if err != nil {
				return nil, err
			}
			r.ServiceEndDate = &e
		}
	}
	if err := s.checkDates(r.ServiceStartDate, r.ServiceEndDate); err != nil {
		return nil, err
	}
	if p.Description != nil {
		r.Description = p.Description
	}
	if p.AmountCents != nil && *p.AmountCents != r.AmountCents {
		balances, _, err := s.Balances(ctx, w)
		if err != nil {
			return nil, err
		}
		// NEW requests are pending, not spent, so nothing to add back.
		if err := checkAmount(findBalance(balances, r.CategoryID), *p.AmountCents, 0); err != nil {
			return nil, err
		}
		r.AmountCents = *p.AmountCents
	}
	if err := s.requests.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) DeleteRequest(ctx context.Context, callerID, requestID uuid.UUID) error {
	r, _, err := s.ownedRequest(ctx, callerID, requestID, false)
	if err != nil {
		return err
	}
	if r.State != StateNew {
		return fmt.Errorf("%w: request is %s", ErrInvalidState, r.State)
	}
	return s.requests.Delete(ctx, r.ID)
}

func (s *Service) ListRequests(ctx context.Context, callerID, walletID uuid.UUID, isOps bool, state State, limit, offset int) ([]*ReimbursementRequest, int, error) {
	if state != "" && !ValidState(state) {
		return nil, 0, invalid("unknown state %q", state)
	}
	if _, err := s.ownedWallet(ctx, callerID, walletID, isOps); err != nil {
		return nil, 0, err
	}
	return s.requests.ListByWallet(ctx, walletID, state, limit, offset)
}

// SetRequestState applies an ops transition from the manual table.
func (s *Service) SetRequestState(ctx context.Context, requestID uuid.UUID, to State) (*ReimbursementRequest, error) {
	if !ValidState(to) {
		return nil, invalid("unknown state %q", to)
	}
	r, w, err := s.ownedRequest(ctx, uuid.Nil, requestID, true)
	if err != nil {
		return nil, err
	}
	if !canTransition(requestTransitions, r.State, to) {
		return nil, fmt.Errorf("%w: request %s -> %s", ErrInvalidState, r.State, to)
	}
	from := r.State
	r.State = to
	if err := s.requests.Update(ctx, r); err != nil {
		return nil, err
	}
	s.NotifyRequestState(ctx, w.MemberID, r, from)
	return r, nil
}

// AddSource stores a receipt and attaches it to the request.
func (s *Service) AddSource(ctx context.Context, callerID, requestID uuid.UUID, fileName, contentType string, body io.Reader) (*ReimbursementRequest, error) {
	r, w, err := s.ownedRequest(ctx, callerID, requestID, false)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(fileName) == "" {
		return nil, invalid("file name is required")
	}
	name := blobstore.SanitizeFileName(fileName)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := fmt.Sprintf("reimbursement/%s/%s/%s-%s", w.ID, r.ID, uuid.New(), name)
	obj, err := s.blobs.Put(ctx, key, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("store receipt: %w", err)
	}
	from := r.State
	src := Source{ReimbursementRequestID: r.ID, BlobKey: obj.Key, FileName: name, ContentType: contentType, SHA256: obj.SHA256}
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.requests.AddSource(ctx, &src); err != nil {
			return err
		}
		if r.State == StateNeedsReceipt || r.State == StateInsufficientReceipt {
			r.State = StateReceiptSubmitted
			return s.requests.Update(ctx, r)
		}
		return nil
	})
	if err != nil {
		if derr := s.blobs.Delete(ctx, obj.Key); derr != nil {
			s.logger.Warn().Err(derr).Str("key", obj.Key).Msg("failed to remove orphaned receipt")
		}
		return nil, err
	}
	r.Sources = append(r.Sources, src)
	s.NotifyRequestState(ctx, w.MemberID, r, from)
	return r, nil
}

// RequestDebitCard opens a card request with Alegeus.
func (s *Service) RequestDebitCard(ctx context.Context, callerID, walletID uuid.UUID) (*DebitCard, error) {
	w, err := s.ownedWallet(ctx, callerID, walletID, false)
	if err != nil {
		return nil, err
	}
	if w.State != WalletQualified {
		return nil, fmt.Errorf("%w: wallet is %s", ErrInvalidState, w.State)
	}
	if _, err := s.cards.GetOpen(ctx, w.ID); err == nil {
		return nil, ErrCardExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	card := &DebitCard{WalletID: w.ID, Status: CardNew}
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.cards.Create(ctx, card); err != nil {
			return err
		}
		return s.queue.Enqueue(ctx, JobIssueCard, CardJob{WalletID: w.ID, CardID: card.ID, Status: CardNew})
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

// ReportLostStolen closes the wallet's open card.
func (s *Service) ReportLostStolen(ctx context.Context, callerID, walletID uuid.UUID) (*DebitCard, error) {
	w, err := s.ownedWallet(ctx, callerID, walletID, false)
	if err != nil {
		return nil, err
	}
	card, err := s.cards.GetOpen(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	card.Status = CardClosed
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.cards.Update(ctx, card); err != nil {
			return err
		}
		return s.queue.Enqueue(ctx, JobUpdateCardStatus, CardJob{WalletID: w.ID, CardID: card.ID, Status: CardClosed})
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}
