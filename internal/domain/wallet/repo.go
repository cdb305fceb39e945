package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type WalletRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	// Update persists state, reimbursement method and Alegeus employee id.
	Update(ctx context.Context, w *Wallet) error
	ListWithActiveCard(ctx context.Context) ([]uuid.UUID, error)
}

type SettingsRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*OrganizationSettings, error)
	Categories(ctx context.Context, settingsID uuid.UUID) ([]*Category, error)
}

type RequestRepository interface {
	Create(ctx context.Context, r *ReimbursementRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*ReimbursementRequest, error)
	GetByTransactionKey(ctx context.Context, key string) (*ReimbursementRequest, error)
	Update(ctx context.Context, r *ReimbursementRequest) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByWallet returns requests newest first. An empty state matches all.
	ListByWallet(ctx context.Context, walletID uuid.UUID, state State, limit, offset int) ([]*ReimbursementRequest, int, error)
	// ListForBalance returns every request of the wallet without sources.
	ListForBalance(ctx context.Context, walletID uuid.UUID) ([]*ReimbursementRequest, error)
	// ListAwaitingClaim returns MANUAL requests with a claim key still in
	// PENDING or APPROVED.
	ListAwaitingClaim(ctx context.Context, walletID uuid.UUID) ([]*ReimbursementRequest, error)
	// ListUnsubmittedClaims returns ids of MANUAL requests still NEW with no
	// claim key on enrolled wallets, created before the cutoff.
	ListUnsubmittedClaims(ctx context.Context, createdBefore time.Time) ([]uuid.UUID, error)
	AddSource(ctx context.Context, s *Source) error
}

type DebitCardRepository interface {
	Create(ctx context.Context, c *DebitCard) error
	GetByID(ctx context.Context, id uuid.UUID) (*DebitCard, error)
	// GetOpen returns the wallet's card that is not CLOSED.
	GetOpen(ctx context.Context, walletID uuid.UUID) (*DebitCard, error)
	Update(ctx context.Context, c *DebitCard) error
}
