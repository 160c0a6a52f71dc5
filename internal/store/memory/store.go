// Package memory is the in-process Store used by tests and as the fallback
// when no database is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradesync/internal/domain"
	storepkg "tradesync/internal/store"
)

type Store struct {
	mu sync.RWMutex

	accounts    map[string]domain.Account
	credentials map[string]domain.Credential // by account id
	trades      map[string]domain.Trade
	tradeOrder  []string
	oauthStates map[string]domain.OAuthState
}

var _ storepkg.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		accounts:    make(map[string]domain.Account),
		credentials: make(map[string]domain.Credential),
		trades:      make(map[string]domain.Trade),
		oauthStates: make(map[string]domain.OAuthState),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) FindAccountByID(_ context.Context, id string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, storepkg.ErrNotFound
	}
	return account, nil
}

func (s *Store) FindAccountsByUserAndPlatform(_ context.Context, userID, platformID string) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Account{}
	for _, a := range s.accounts {
		if a.UserID == userID && a.PlatformID == platformID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) ListAccountsByUser(_ context.Context, userID string) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Account{}
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) ListActiveAccounts(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Account{}
	for _, a := range s.accounts {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) UpsertAccount(_ context.Context, account domain.Account, cred domain.Credential) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.accounts {
		if existing.UserID == account.UserID && existing.PlatformID == account.PlatformID {
			existing.ExternalAccountID = account.ExternalAccountID
			existing.DisplayName = account.DisplayName
			existing.IsActive = true
			existing.SyncStatus = account.SyncStatus
			s.accounts[id] = existing
			s.credentials[id] = cred
			return existing, nil
		}
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.IsActive = true
	s.accounts[account.ID] = account
	s.credentials[account.ID] = cred
	return account, nil
}

func (s *Store) SetAccountSyncStatus(_ context.Context, accountID string, status domain.SyncStatus, lastSyncAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return storepkg.ErrNotFound
	}
	account.SyncStatus = status
	if lastSyncAt != nil {
		account.LastSyncAt = lastSyncAt
	}
	s.accounts[accountID] = account
	return nil
}

func (s *Store) GetCredential(_ context.Context, accountID string) (domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[accountID]
	if !ok {
		return domain.Credential{}, storepkg.ErrNotFound
	}
	return cred, nil
}

func (s *Store) SaveCredential(_ context.Context, accountID string, cred domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return storepkg.ErrNotFound
	}
	s.credentials[accountID] = cred
	return nil
}

func (s *Store) ListTradesByAccount(_ context.Context, accountID string) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Trade{}
	for _, id := range s.tradeOrder {
		t := s.trades[id]
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) FindTradeByKey(_ context.Context, accountID string, key domain.TradeKey) (domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *domain.Trade
	for _, id := range s.tradeOrder {
		t := s.trades[id]
		if t.AccountID != accountID {
			continue
		}
		if domain.NewTradeKey(t.Symbol, t.PlatformTradeID, t.EntryDate) != key {
			continue
		}
		// most recently created wins on duplicates
		if found == nil || t.CreatedAt.After(found.CreatedAt) {
			cp := t
			found = &cp
		}
	}
	if found == nil {
		return domain.Trade{}, storepkg.ErrNotFound
	}
	return *found, nil
}

func (s *Store) CreateTrade(_ context.Context, trade domain.Trade) (domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = now
	}
	trade.UpdatedAt = now
	s.trades[trade.ID] = trade
	s.tradeOrder = append(s.tradeOrder, trade.ID)
	return trade, nil
}

func (s *Store) UpdateTrade(_ context.Context, id string, trade domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.trades[id]
	if !ok {
		return storepkg.ErrNotFound
	}
	trade.ID = id
	trade.AccountID = existing.AccountID
	trade.CreatedAt = existing.CreatedAt
	trade.UpdatedAt = time.Now().UTC()
	s.trades[id] = trade
	return nil
}

func (s *Store) SaveOAuthState(_ context.Context, state domain.OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oauthStates[state.State] = state
	return nil
}

func (s *Store) ConsumeOAuthState(_ context.Context, state string) (domain.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.oauthStates[state]
	if !ok {
		return domain.OAuthState{}, storepkg.ErrNotFound
	}
	delete(s.oauthStates, state)
	return v, nil
}
