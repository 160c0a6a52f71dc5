package domain

import (
	"fmt"
	"time"
)

type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "PENDING"
	SyncStatusConnected SyncStatus = "CONNECTED"
	SyncStatusError     SyncStatus = "ERROR"
)

type TradeSide string

const (
	SideLong  TradeSide = "LONG"
	SideShort TradeSide = "SHORT"
)

// Credential is the per-platform secret/token bundle for one account. It is
// only ever held in memory for the duration of a sync or auth call; the store
// encrypts token fields at rest.
type Credential struct {
	PlatformID   string            `json:"platform_id"`
	APIKey       string            `json:"-"`
	APISecret    string            `json:"-"`
	AccessToken  string            `json:"-"`
	RefreshToken string            `json:"-"`
	TokenExpiry  time.Time         `json:"token_expiry"`
	Extras       map[string]string `json:"-"`
}

// Extra returns a platform-specific credential field (client code, TOTP seed)
// or "" when absent.
func (c Credential) Extra(key string) string {
	if c.Extras == nil {
		return ""
	}
	return c.Extras[key]
}

// TokenPair is the result of a token refresh. The adapter returns it
// explicitly; persisting it is the caller's job.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

type Account struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	PlatformID        string     `json:"platform_id"`
	ExternalAccountID string     `json:"external_account_id"`
	DisplayName       string     `json:"display_name"`
	IsActive          bool       `json:"is_active"`
	LastSyncAt        *time.Time `json:"last_sync_at,omitempty"`
	SyncStatus        SyncStatus `json:"sync_status"`
	CreatedAt         time.Time  `json:"created_at"`
}

// PlatformTrade is the normalized shape an adapter produces from a platform's
// native trade records. It is transient: reconciliation consumes it, it is
// never persisted directly.
type PlatformTrade struct {
	ExternalID     string     `json:"external_id"`
	Symbol         string     `json:"symbol"`
	Side           TradeSide  `json:"side"`
	InstrumentType string     `json:"instrument_type"`
	EntryPrice     float64    `json:"entry_price"`
	ExitPrice      *float64   `json:"exit_price,omitempty"`
	Quantity       float64    `json:"quantity"`
	StrikePrice    *float64   `json:"strike_price,omitempty"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	OptionType     string     `json:"option_type,omitempty"`
	Premium        *float64   `json:"premium,omitempty"`
	EntryDate      time.Time  `json:"entry_date"`
	ExitDate       *time.Time `json:"exit_date,omitempty"`
	ProfitLoss     *float64   `json:"profit_loss,omitempty"`
	OrderID        string     `json:"order_id"`
	Status         string     `json:"status"`
}

// Trade is the ledger's persisted row for a trade.
type Trade struct {
	ID              string     `json:"id"`
	AccountID       string     `json:"account_id"`
	UserID          string     `json:"user_id"`
	Symbol          string     `json:"symbol"`
	PlatformTradeID string     `json:"platform_trade_id"`
	Side            TradeSide  `json:"side"`
	InstrumentType  string     `json:"instrument_type"`
	EntryPrice      float64    `json:"entry_price"`
	ExitPrice       *float64   `json:"exit_price,omitempty"`
	Quantity        float64    `json:"quantity"`
	ProfitLoss      *float64   `json:"profit_loss,omitempty"`
	EntryDate       time.Time  `json:"entry_date"`
	ExitDate        *time.Time `json:"exit_date,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TradeKey is the stable matching key reconciliation diffs on. When the
// platform does not supply an order/trade id the key degrades to
// (symbol, entryDate) alone.
type TradeKey struct {
	Symbol          string
	PlatformTradeID string
	EntryDate       string // yyyy-mm-dd, trade-date granularity
}

func NewTradeKey(symbol, platformTradeID string, entryDate time.Time) TradeKey {
	return TradeKey{
		Symbol:          symbol,
		PlatformTradeID: platformTradeID,
		EntryDate:       entryDate.UTC().Format("2006-01-02"),
	}
}

func (k TradeKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Symbol, k.PlatformTradeID, k.EntryDate)
}

// SyncResult reports one sync run for one account. It is created fresh per
// run and never mutated after return.
type SyncResult struct {
	Success          bool     `json:"success"`
	AccountID        string   `json:"account_id"`
	PlatformID       string   `json:"platform_id"`
	TradesFetched    int      `json:"trades_fetched"`
	TradesCreated    int      `json:"trades_created"`
	TradesUpdated    int      `json:"trades_updated"`
	TradesSkipped    int      `json:"trades_skipped"`
	ErrorCount       int      `json:"error_count"`
	ErrorMessage     string   `json:"error_message,omitempty"`
	DurationMs       int64    `json:"duration_ms"`
	PlatformTradeIDs []string `json:"platform_trade_ids,omitempty"`
}

// PlatformAccountInfo is a best-effort aggregate of profile and holdings
// data; adapters return nil rather than failing when the underlying calls
// partially fail.
type PlatformAccountInfo struct {
	PlatformID        string  `json:"platform_id"`
	ExternalAccountID string  `json:"external_account_id"`
	Name              string  `json:"name"`
	Email             string  `json:"email,omitempty"`
	Balance           float64 `json:"balance"`
	HoldingsCount     int     `json:"holdings_count"`
}

// PlatformProfile is the identity the OAuth flow fetches after a token
// exchange to name the connected account.
type PlatformProfile struct {
	ExternalAccountID string `json:"external_account_id"`
	Name              string `json:"name"`
	Email             string `json:"email,omitempty"`
}

// OAuthState ties an in-flight authorization redirect back to the user who
// started it. Consumed exactly once by the callback.
type OAuthState struct {
	State      string
	PlatformID string
	UserID     string
	CreatedAt  time.Time
}
