// Package store defines the persistence contract the sync orchestrator and
// HTTP layer depend on. Backends: postgres, sqlite, memory.
package store

import (
	"context"
	"errors"
	"time"

	"tradesync/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Store is the record-store edge of the system: accounts, credentials, the
// trade ledger, and in-flight OAuth state. Individual create/update calls
// are atomic in every backend; no cross-call locking is provided.
type Store interface {
	FindAccountByID(ctx context.Context, id string) (domain.Account, error)
	FindAccountsByUserAndPlatform(ctx context.Context, userID, platformID string) ([]domain.Account, error)
	ListAccountsByUser(ctx context.Context, userID string) ([]domain.Account, error)
	ListActiveAccounts(ctx context.Context) ([]domain.Account, error)

	// UpsertAccount creates or updates the account keyed by
	// (userID, platformID), so concurrent OAuth callbacks for the same
	// user and platform cannot produce duplicate accounts. The stored
	// credential is replaced wholesale.
	UpsertAccount(ctx context.Context, account domain.Account, cred domain.Credential) (domain.Account, error)
	SetAccountSyncStatus(ctx context.Context, accountID string, status domain.SyncStatus, lastSyncAt *time.Time) error

	GetCredential(ctx context.Context, accountID string) (domain.Credential, error)
	SaveCredential(ctx context.Context, accountID string, cred domain.Credential) error

	ListTradesByAccount(ctx context.Context, accountID string) ([]domain.Trade, error)
	FindTradeByKey(ctx context.Context, accountID string, key domain.TradeKey) (domain.Trade, error)
	CreateTrade(ctx context.Context, trade domain.Trade) (domain.Trade, error)
	UpdateTrade(ctx context.Context, id string, trade domain.Trade) error

	SaveOAuthState(ctx context.Context, state domain.OAuthState) error
	ConsumeOAuthState(ctx context.Context, state string) (domain.OAuthState, error)

	Close() error
}
