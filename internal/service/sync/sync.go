// Package sync reconciles brokerage trades into the local store. One run
// per account: load credential, fetch from the platform, diff against the
// stored rows, write back. A run never returns an error; everything it hits
// is folded into the SyncResult so one bad account cannot fail a batch.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradesync/internal/config"
	"tradesync/internal/domain"
	"tradesync/internal/platform"
	"tradesync/internal/service/oauth"
	"tradesync/internal/store"
)

// Hook receives every finished run, success or not. Implementations must
// not block for long; they run on the syncing goroutine.
type Hook interface {
	SyncFinished(ctx context.Context, result domain.SyncResult)
}

type Options struct {
	StartDate *time.Time
	EndDate   *time.Time
	// UpdateExisting overwrites trades already present under the same
	// (symbol, platform trade id, entry date) key. When false matched
	// trades are counted as skipped and left untouched.
	UpdateExisting bool
}

func DefaultOptions() Options {
	return Options{UpdateExisting: true}
}

type Service struct {
	store       store.Store
	cfg         config.Config
	log         *zap.Logger
	concurrency int
	hooks       []Hook

	// newAdapter is swapped out in tests.
	newAdapter func(platformID string, cred domain.Credential, pcfg platform.Config) (platform.Adapter, error)
}

func NewService(st store.Store, cfg config.Config, log *zap.Logger, hooks ...Hook) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	concurrency := cfg.SyncConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		store:       st,
		cfg:         cfg,
		log:         log,
		concurrency: concurrency,
		hooks:       hooks,
		newAdapter:  platform.New,
	}
}

func (s *Service) SyncAccount(ctx context.Context, accountID string, opts Options) domain.SyncResult {
	started := time.Now()
	result := s.syncAccount(ctx, accountID, opts)
	result.DurationMs = time.Since(started).Milliseconds()
	for _, hook := range s.hooks {
		hook.SyncFinished(ctx, result)
	}
	return result
}

func (s *Service) syncAccount(ctx context.Context, accountID string, opts Options) (result domain.SyncResult) {
	result = domain.SyncResult{AccountID: accountID}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sync panicked", zap.String("account_id", accountID), zap.Any("panic", r))
			result.Success = false
			result.ErrorCount++
			result.ErrorMessage = fmt.Sprintf("internal error: %v", r)
		}
	}()

	account, err := s.store.FindAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			result.ErrorMessage = "account not found"
		} else {
			result.ErrorMessage = err.Error()
		}
		result.ErrorCount = 1
		return result
	}
	result.PlatformID = account.PlatformID

	cred, err := s.store.GetCredential(ctx, accountID)
	if err != nil {
		result.ErrorMessage = "no credential on file"
		result.ErrorCount = 1
		s.markError(ctx, accountID)
		return result
	}

	adapter, err := s.adapterFor(account.PlatformID, cred)
	if err != nil {
		result.ErrorMessage = err.Error()
		result.ErrorCount = 1
		s.markError(ctx, accountID)
		return result
	}

	// Refresh up front when the stored expiry has passed, instead of
	// spending the first platform call on a guaranteed 401.
	if !cred.TokenExpiry.IsZero() && cred.TokenExpiry.Before(time.Now()) && cred.RefreshToken != "" {
		if _, err := adapter.RefreshToken(ctx); err != nil {
			s.log.Warn("token refresh failed",
				zap.String("account_id", accountID),
				zap.String("platform", account.PlatformID),
				zap.Error(err))
			result.ErrorMessage = "token refresh failed: " + err.Error()
			result.ErrorCount = 1
			s.markError(ctx, accountID)
			return result
		}
	}

	trades, err := adapter.GetTrades(ctx, opts.StartDate, opts.EndDate)
	s.persistRotatedTokens(ctx, accountID, cred, adapter)
	if err != nil {
		s.log.Warn("trade fetch failed",
			zap.String("account_id", accountID),
			zap.String("platform", account.PlatformID),
			zap.Error(err))
		result.ErrorMessage = err.Error()
		result.ErrorCount = 1
		s.markError(ctx, accountID)
		return result
	}
	result.TradesFetched = len(trades)

	// Duplicate persisted keys violate the ledger's identity assumption;
	// reconciliation still proceeds against the most recent row.
	if existing, err := s.store.ListTradesByAccount(ctx, accountID); err == nil {
		s.logDuplicateKeys(accountID, existing)
	}

	for _, pt := range trades {
		result.PlatformTradeIDs = append(result.PlatformTradeIDs, pt.ExternalID)
		if err := s.reconcile(ctx, account, pt, opts, &result); err != nil {
			result.ErrorCount++
			s.log.Warn("trade reconcile failed",
				zap.String("account_id", accountID),
				zap.String("platform_trade_id", pt.ExternalID),
				zap.Error(err))
		}
	}
	if result.ErrorCount > 0 {
		result.ErrorMessage = fmt.Sprintf("%d of %d trades failed to persist", result.ErrorCount, len(trades))
	}

	now := time.Now().UTC()
	if err := s.store.SetAccountSyncStatus(ctx, accountID, domain.SyncStatusConnected, &now); err != nil {
		s.log.Warn("sync status update failed", zap.String("account_id", accountID), zap.Error(err))
	}
	// A run succeeds only when every fetched trade persisted cleanly.
	result.Success = result.ErrorCount == 0
	return result
}

func (s *Service) reconcile(ctx context.Context, account domain.Account, pt domain.PlatformTrade, opts Options, result *domain.SyncResult) error {
	key := domain.NewTradeKey(pt.Symbol, pt.ExternalID, pt.EntryDate)
	existing, err := s.store.FindTradeByKey(ctx, account.ID, key)
	switch {
	case err == nil:
		if !opts.UpdateExisting {
			result.TradesSkipped++
			return nil
		}
		updated := mergeTrade(existing, pt)
		if err := s.store.UpdateTrade(ctx, existing.ID, updated); err != nil {
			return err
		}
		result.TradesUpdated++
		return nil
	case errors.Is(err, store.ErrNotFound):
		if _, err := s.store.CreateTrade(ctx, newTrade(account, pt)); err != nil {
			return err
		}
		result.TradesCreated++
		return nil
	default:
		return err
	}
}

// SyncAllAccounts runs every active account through SyncAccount with a
// bounded number of workers. Result order matches the account listing.
func (s *Service) SyncAllAccounts(ctx context.Context, opts Options) []domain.SyncResult {
	accounts, err := s.store.ListActiveAccounts(ctx)
	if err != nil {
		s.log.Error("active account listing failed", zap.Error(err))
		return nil
	}

	results := make([]domain.SyncResult, len(accounts))
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i, account := range accounts {
		wg.Add(1)
		go func(i int, accountID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = s.SyncAccount(ctx, accountID, opts)
		}(i, account.ID)
	}
	wg.Wait()
	return results
}

func (s *Service) adapterFor(platformID string, cred domain.Credential) (platform.Adapter, error) {
	provider, err := oauth.ForPlatform(platformID, s.cfg.App(platformID), s.cfg.PlatformAPIBaseURL)
	if err != nil {
		return nil, err
	}
	return s.newAdapter(platformID, cred, platform.Config{
		Provider: provider,
		BaseURL:  s.cfg.PlatformAPIBaseURL,
		Timeout:  s.cfg.PlatformTimeout,
		Logger:   s.log,
	})
}

// persistRotatedTokens writes the adapter's credential back when a refresh
// happened mid-run, so the next run does not start from a dead token.
func (s *Service) persistRotatedTokens(ctx context.Context, accountID string, before domain.Credential, adapter platform.Adapter) {
	after := adapter.Credential()
	if after.AccessToken == before.AccessToken && after.RefreshToken == before.RefreshToken {
		return
	}
	if err := s.store.SaveCredential(ctx, accountID, after); err != nil {
		s.log.Error("rotated token persist failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

func (s *Service) logDuplicateKeys(accountID string, trades []domain.Trade) {
	seen := make(map[domain.TradeKey]int, len(trades))
	for _, t := range trades {
		seen[domain.NewTradeKey(t.Symbol, t.PlatformTradeID, t.EntryDate)]++
	}
	for key, n := range seen {
		if n > 1 {
			s.log.Warn("duplicate trade key in store",
				zap.String("account_id", accountID),
				zap.String("trade_key", key.String()),
				zap.Int("rows", n))
		}
	}
}

func (s *Service) markError(ctx context.Context, accountID string) {
	if err := s.store.SetAccountSyncStatus(ctx, accountID, domain.SyncStatusError, nil); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.log.Warn("sync status update failed", zap.String("account_id", accountID), zap.Error(err))
	}
}

func newTrade(account domain.Account, pt domain.PlatformTrade) domain.Trade {
	return domain.Trade{
		AccountID:       account.ID,
		UserID:          account.UserID,
		Symbol:          pt.Symbol,
		PlatformTradeID: pt.ExternalID,
		Side:            pt.Side,
		InstrumentType:  pt.InstrumentType,
		EntryPrice:      pt.EntryPrice,
		ExitPrice:       pt.ExitPrice,
		Quantity:        pt.Quantity,
		ProfitLoss:      pt.ProfitLoss,
		EntryDate:       pt.EntryDate,
		ExitDate:        pt.ExitDate,
	}
}

func mergeTrade(existing domain.Trade, pt domain.PlatformTrade) domain.Trade {
	existing.Side = pt.Side
	existing.InstrumentType = pt.InstrumentType
	existing.EntryPrice = pt.EntryPrice
	existing.ExitPrice = pt.ExitPrice
	existing.Quantity = pt.Quantity
	existing.ProfitLoss = pt.ProfitLoss
	existing.EntryDate = pt.EntryDate
	existing.ExitDate = pt.ExitDate
	return existing
}
