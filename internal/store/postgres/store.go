// Package postgres is the production Store. Token material is encrypted at
// rest with AES-GCM (internal/security/secretbox) when an encryption key is
// configured.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"tradesync/internal/domain"
	"tradesync/internal/security/secretbox"
	storepkg "tradesync/internal/store"
)

type Store struct {
	db  *sql.DB
	box *secretbox.Box

	// OAuth states are short-lived; kept in memory like the rest of the
	// in-flight redirect bookkeeping.
	mu          sync.Mutex
	oauthStates map[string]domain.OAuthState
}

var _ storepkg.Store = (*Store)(nil)

func NewStore(databaseURL, encryptionKey string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	var box *secretbox.Box
	if encryptionKey != "" {
		box, err = secretbox.New(encryptionKey)
		if err != nil {
			return nil, err
		}
	}
	return &Store{
		db:          db,
		box:         box,
		oauthStates: make(map[string]domain.OAuthState),
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const accountColumns = `id, user_id, platform_id, external_account_id, display_name, is_active, last_sync_at, sync_status, created_at`

func (s *Store) FindAccountByID(ctx context.Context, id string) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id = $1`, id)
	return scanAccount(row)
}

func (s *Store) FindAccountsByUserAndPlatform(ctx context.Context, userID, platformID string) ([]domain.Account, error) {
	return s.queryAccounts(ctx,
		`select `+accountColumns+` from accounts where user_id = $1 and platform_id = $2 order by created_at`,
		userID, platformID)
}

func (s *Store) ListAccountsByUser(ctx context.Context, userID string) ([]domain.Account, error) {
	return s.queryAccounts(ctx,
		`select `+accountColumns+` from accounts where user_id = $1 order by created_at`, userID)
}

func (s *Store) ListActiveAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.queryAccounts(ctx,
		`select `+accountColumns+` from accounts where is_active order by created_at`)
}

func (s *Store) UpsertAccount(ctx context.Context, account domain.Account, cred domain.Credential) (domain.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Account{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`insert into accounts(id, user_id, platform_id, external_account_id, display_name, is_active, sync_status, created_at)
		 values ($1, $2, $3, $4, $5, true, $6, now())
		 on conflict (user_id, platform_id) do update
		 set external_account_id = excluded.external_account_id,
		     display_name = excluded.display_name,
		     is_active = true,
		     sync_status = excluded.sync_status
		 returning `+accountColumns,
		account.ID, account.UserID, account.PlatformID,
		account.ExternalAccountID, account.DisplayName, string(account.SyncStatus))
	saved, err := scanAccount(row)
	if err != nil {
		return domain.Account{}, err
	}

	if err := s.saveCredentialTx(ctx, tx, saved.ID, cred); err != nil {
		return domain.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Account{}, err
	}
	return saved, nil
}

func (s *Store) SetAccountSyncStatus(ctx context.Context, accountID string, status domain.SyncStatus, lastSyncAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set sync_status = $2, last_sync_at = coalesce($3, last_sync_at) where id = $1`,
		accountID, string(status), lastSyncAt)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return storepkg.ErrNotFound
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, accountID string) (domain.Credential, error) {
	var (
		cred      domain.Credential
		apiSecret, accessToken, refreshToken string
		expiry    sql.NullTime
		extrasRaw []byte
	)
	err := s.db.QueryRowContext(ctx,
		`select platform_id, api_key, api_secret_enc, access_token_enc, refresh_token_enc, token_expiry, extras
		 from platform_credentials where account_id = $1`,
		accountID,
	).Scan(&cred.PlatformID, &cred.APIKey, &apiSecret, &accessToken, &refreshToken, &expiry, &extrasRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Credential{}, storepkg.ErrNotFound
		}
		return domain.Credential{}, err
	}
	if cred.APISecret, err = s.open(apiSecret); err != nil {
		return domain.Credential{}, err
	}
	if cred.AccessToken, err = s.open(accessToken); err != nil {
		return domain.Credential{}, err
	}
	if cred.RefreshToken, err = s.open(refreshToken); err != nil {
		return domain.Credential{}, err
	}
	if expiry.Valid {
		cred.TokenExpiry = expiry.Time
	}
	if len(extrasRaw) > 0 {
		_ = json.Unmarshal(extrasRaw, &cred.Extras)
	}
	return cred, nil
}

func (s *Store) SaveCredential(ctx context.Context, accountID string, cred domain.Credential) error {
	return s.saveCredentialTx(ctx, nil, accountID, cred)
}

func (s *Store) saveCredentialTx(ctx context.Context, tx *sql.Tx, accountID string, cred domain.Credential) error {
	apiSecret, err := s.seal(cred.APISecret)
	if err != nil {
		return err
	}
	accessToken, err := s.seal(cred.AccessToken)
	if err != nil {
		return err
	}
	refreshToken, err := s.seal(cred.RefreshToken)
	if err != nil {
		return err
	}
	extras, err := json.Marshal(cred.Extras)
	if err != nil {
		return err
	}
	var expiry any
	if !cred.TokenExpiry.IsZero() {
		expiry = cred.TokenExpiry
	}
	query := `insert into platform_credentials(account_id, platform_id, api_key, api_secret_enc, access_token_enc, refresh_token_enc, token_expiry, extras, updated_at)
		 values ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, now())
		 on conflict (account_id) do update
		 set platform_id = excluded.platform_id,
		     api_key = excluded.api_key,
		     api_secret_enc = excluded.api_secret_enc,
		     access_token_enc = excluded.access_token_enc,
		     refresh_token_enc = excluded.refresh_token_enc,
		     token_expiry = excluded.token_expiry,
		     extras = excluded.extras,
		     updated_at = now()`
	args := []any{accountID, cred.PlatformID, cred.APIKey, apiSecret, accessToken, refreshToken, expiry, string(extras)}
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = s.db.ExecContext(ctx, query, args...)
	}
	return err
}

const tradeColumns = `id, account_id, user_id, symbol, platform_trade_id, side, instrument_type, entry_price, exit_price, quantity, profit_loss, entry_date, exit_date, created_at, updated_at`

func (s *Store) ListTradesByAccount(ctx context.Context, accountID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+tradeColumns+` from trades where account_id = $1 order by created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Trade{}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) FindTradeByKey(ctx context.Context, accountID string, key domain.TradeKey) (domain.Trade, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+tradeColumns+` from trades
		 where account_id = $1 and symbol = $2 and platform_trade_id = $3 and entry_date::date = $4::date
		 order by created_at desc limit 1`,
		accountID, key.Symbol, key.PlatformTradeID, key.EntryDate)
	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Trade{}, storepkg.ErrNotFound
		}
		return domain.Trade{}, err
	}
	return t, nil
}

func (s *Store) CreateTrade(ctx context.Context, trade domain.Trade) (domain.Trade, error) {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	trade.CreatedAt = now
	trade.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`insert into trades(`+tradeColumns+`)
		 values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		trade.ID, trade.AccountID, trade.UserID, trade.Symbol, trade.PlatformTradeID,
		string(trade.Side), trade.InstrumentType, trade.EntryPrice, trade.ExitPrice,
		trade.Quantity, trade.ProfitLoss, trade.EntryDate, trade.ExitDate,
		trade.CreatedAt, trade.UpdatedAt)
	if err != nil {
		return domain.Trade{}, err
	}
	return trade, nil
}

func (s *Store) UpdateTrade(ctx context.Context, id string, trade domain.Trade) error {
	res, err := s.db.ExecContext(ctx,
		`update trades
		 set entry_price = $2, exit_price = $3, quantity = $4, profit_loss = $5,
		     entry_date = $6, exit_date = $7, updated_at = now()
		 where id = $1`,
		id, trade.EntryPrice, trade.ExitPrice, trade.Quantity, trade.ProfitLoss,
		trade.EntryDate, trade.ExitDate)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return storepkg.ErrNotFound
	}
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

func (s *Store) seal(plaintext string) (string, error) {
	if s.box == nil || plaintext == "" {
		return plaintext, nil
	}
	return s.box.Encrypt(plaintext)
}

func (s *Store) open(ciphertext string) (string, error) {
	if s.box == nil || ciphertext == "" {
		return ciphertext, nil
	}
	return s.box.Decrypt(ciphertext)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.Account, error) {
	var (
		a          domain.Account
		lastSync   sql.NullTime
		syncStatus string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.PlatformID, &a.ExternalAccountID,
		&a.DisplayName, &a.IsActive, &lastSync, &syncStatus, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, storepkg.ErrNotFound
		}
		return domain.Account{}, err
	}
	if lastSync.Valid {
		a.LastSyncAt = &lastSync.Time
	}
	a.SyncStatus = domain.SyncStatus(syncStatus)
	return a, nil
}

func scanTrade(row rowScanner) (domain.Trade, error) {
	var (
		t          domain.Trade
		side       string
		exitPrice  sql.NullFloat64
		profitLoss sql.NullFloat64
		exitDate   sql.NullTime
	)
	err := row.Scan(&t.ID, &t.AccountID, &t.UserID, &t.Symbol, &t.PlatformTradeID,
		&side, &t.InstrumentType, &t.EntryPrice, &exitPrice, &t.Quantity,
		&profitLoss, &t.EntryDate, &exitDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return domain.Trade{}, err
	}
	t.Side = domain.TradeSide(side)
	if exitPrice.Valid {
		t.ExitPrice = &exitPrice.Float64
	}
	if profitLoss.Valid {
		t.ProfitLoss = &profitLoss.Float64
	}
	if exitDate.Valid {
		t.ExitDate = &exitDate.Time
	}
	return t, nil
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...any) ([]domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
