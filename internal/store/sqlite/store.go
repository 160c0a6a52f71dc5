// Package sqlite is a single-file Store for self-hosted deployments. Unlike
// the postgres backend it owns its schema and creates it on open.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tradesync/internal/domain"
	"tradesync/internal/security/secretbox"
	storepkg "tradesync/internal/store"
)

const schema = `
create table if not exists accounts (
	id text primary key,
	user_id text not null,
	platform_id text not null,
	external_account_id text not null default '',
	display_name text not null default '',
	is_active integer not null default 1,
	last_sync_at timestamp,
	sync_status text not null default 'PENDING',
	created_at timestamp not null,
	unique (user_id, platform_id)
);

create table if not exists platform_credentials (
	account_id text primary key references accounts(id),
	platform_id text not null,
	api_key text not null default '',
	api_secret_enc text not null default '',
	access_token_enc text not null default '',
	refresh_token_enc text not null default '',
	token_expiry timestamp,
	extras text not null default '{}',
	updated_at timestamp not null
);

create table if not exists trades (
	id text primary key,
	account_id text not null,
	user_id text not null,
	symbol text not null,
	platform_trade_id text not null default '',
	side text not null,
	instrument_type text not null default 'EQUITY',
	entry_price real not null,
	exit_price real,
	quantity real not null,
	profit_loss real,
	entry_date timestamp not null,
	exit_date timestamp,
	created_at timestamp not null,
	updated_at timestamp not null
);

create index if not exists idx_trades_account_key
	on trades (account_id, symbol, platform_trade_id, entry_date);
`

type Store struct {
	db  *sql.DB
	box *secretbox.Box

	mu          sync.Mutex
	oauthStates map[string]domain.OAuthState
}

var _ storepkg.Store = (*Store)(nil)

func NewStore(path, encryptionKey string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
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
		`select `+accountColumns+` from accounts where id = ?`, id)
	return scanAccount(row)
}

func (s *Store) FindAccountsByUserAndPlatform(ctx context.Context, userID, platformID string) ([]domain.Account, error) {
	return s.queryAccounts(ctx,
		`select `+accountColumns+` from accounts where user_id = ? and platform_id = ? order by created_at`,
		userID, platformID)
}

func (s *Store) ListAccountsByUser(ctx context.Context, userID string) ([]domain.Account, error) {
	return s.queryAccounts(ctx,
		`select `+accountColumns+` from accounts where user_id = ? order by created_at`, userID)
}

func (s *Store) ListActiveAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.queryAccounts(ctx,
		`select `+accountColumns+` from accounts where is_active = 1 order by created_at`)
}

func (s *Store) UpsertAccount(ctx context.Context, account domain.Account, cred domain.Credential) (domain.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, user_id, platform_id, external_account_id, display_name, is_active, sync_status, created_at)
		 values (?, ?, ?, ?, ?, 1, ?, ?)
		 on conflict (user_id, platform_id) do update
		 set external_account_id = excluded.external_account_id,
		     display_name = excluded.display_name,
		     is_active = 1,
		     sync_status = excluded.sync_status`,
		account.ID, account.UserID, account.PlatformID, account.ExternalAccountID,
		account.DisplayName, string(account.SyncStatus), account.CreatedAt)
	if err != nil {
		return domain.Account{}, err
	}
	// The conflict path keeps the existing row id; read it back.
	saved, err := s.findAccountByUserAndPlatform(ctx, account.UserID, account.PlatformID)
	if err != nil {
		return domain.Account{}, err
	}
	if err := s.SaveCredential(ctx, saved.ID, cred); err != nil {
		return domain.Account{}, err
	}
	return saved, nil
}

func (s *Store) findAccountByUserAndPlatform(ctx context.Context, userID, platformID string) (domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where user_id = ? and platform_id = ? limit 1`,
		userID, platformID)
	return scanAccount(row)
}

func (s *Store) SetAccountSyncStatus(ctx context.Context, accountID string, status domain.SyncStatus, lastSyncAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set sync_status = ?, last_sync_at = coalesce(?, last_sync_at) where id = ?`,
		string(status), lastSyncAt, accountID)
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
		cred                                 domain.Credential
		apiSecret, accessToken, refreshToken string
		expiry                               sql.NullTime
		extrasRaw                            string
	)
	err := s.db.QueryRowContext(ctx,
		`select platform_id, api_key, api_secret_enc, access_token_enc, refresh_token_enc, token_expiry, extras
		 from platform_credentials where account_id = ?`,
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
	if extrasRaw != "" {
		_ = json.Unmarshal([]byte(extrasRaw), &cred.Extras)
	}
	return cred, nil
}

func (s *Store) SaveCredential(ctx context.Context, accountID string, cred domain.Credential) error {
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
	_, err = s.db.ExecContext(ctx,
		`insert into platform_credentials(account_id, platform_id, api_key, api_secret_enc, access_token_enc, refresh_token_enc, token_expiry, extras, updated_at)
		 values (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 on conflict (account_id) do update
		 set platform_id = excluded.platform_id,
		     api_key = excluded.api_key,
		     api_secret_enc = excluded.api_secret_enc,
		     access_token_enc = excluded.access_token_enc,
		     refresh_token_enc = excluded.refresh_token_enc,
		     token_expiry = excluded.token_expiry,
		     extras = excluded.extras,
		     updated_at = excluded.updated_at`,
		accountID, cred.PlatformID, cred.APIKey, apiSecret, accessToken, refreshToken,
		expiry, string(extras), time.Now().UTC())
	return err
}

const tradeColumns = `id, account_id, user_id, symbol, platform_trade_id, side, instrument_type, entry_price, exit_price, quantity, profit_loss, entry_date, exit_date, created_at, updated_at`

func (s *Store) ListTradesByAccount(ctx context.Context, accountID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+tradeColumns+` from trades where account_id = ? order by created_at`, accountID)
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
		 where account_id = ? and symbol = ? and platform_trade_id = ? and date(entry_date) = ?
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
		 values (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
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
		 set entry_price = ?, exit_price = ?, quantity = ?, profit_loss = ?,
		     entry_date = ?, exit_date = ?, updated_at = ?
		 where id = ?`,
		trade.EntryPrice, trade.ExitPrice, trade.Quantity, trade.ProfitLoss,
		trade.EntryDate, trade.ExitDate, time.Now().UTC(), id)
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
