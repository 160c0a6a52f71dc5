package platform

import (
	"context"
	"errors"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"go.uber.org/zap"

	"tradesync/internal/domain"
)

var _ Adapter = (*Zerodha)(nil)

// Zerodha wraps the official Kite Connect client. The SDK owns the HTTP
// transport, so the shared REST client is not used here; the 401 semantics
// are the SDK's TokenException, which surfaces as an error and is handled by
// the orchestrator's refresh-and-mark-error path.
type Zerodha struct {
	kc     *kiteconnect.Client
	secret string
	logger *zap.Logger

	mu   sync.Mutex
	cred domain.Credential
}

func NewZerodha(cred domain.Credential, cfg Config) *Zerodha {
	apiKey := cred.APIKey
	secret := cred.APISecret
	if cfg.Provider != nil {
		if apiKey == "" {
			apiKey = cfg.Provider.ClientID
		}
		if secret == "" {
			secret = cfg.Provider.ClientSecret
		}
	}
	kc := kiteconnect.New(apiKey)
	kc.SetAccessToken(cred.AccessToken)
	kc.SetTimeout(cfg.timeout())
	if cfg.BaseURL != "" {
		kc.SetBaseURI(cfg.BaseURL)
	}
	return &Zerodha{
		kc:     kc,
		secret: secret,
		logger: cfg.logger().With(zap.String("platform", "zerodha")),
		cred:   cred,
	}
}

func (z *Zerodha) Name() string { return "zerodha" }

func (z *Zerodha) Credential() domain.Credential {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.cred
}

func (z *Zerodha) Authenticate(_ context.Context) bool {
	if _, err := z.kc.GetUserProfile(); err != nil {
		z.logger.Warn("authentication check failed", zap.Error(err))
		return false
	}
	return true
}

// GetTrades lists the day's fills. The Kite SDK takes no context, so
// cancellation stops at this boundary; the SDK's own timeout bounds the call.
func (z *Zerodha) GetTrades(_ context.Context, start, end *time.Time) ([]domain.PlatformTrade, error) {
	raw, err := z.kc.GetTrades()
	if err != nil {
		return nil, err
	}
	trades := make([]domain.PlatformTrade, 0, len(raw))
	for _, t := range raw {
		entry := t.FillTimestamp.Time
		if entry.IsZero() {
			entry = t.ExchangeTimestamp.Time
		}
		if !withinRange(entry, start, end) {
			continue
		}
		trades = append(trades, domain.PlatformTrade{
			ExternalID:     t.TradeID,
			Symbol:         t.TradingSymbol,
			Side:           sideFromTransaction(t.TransactionType),
			InstrumentType: zerodhaInstrument(t.Exchange),
			EntryPrice:     t.AveragePrice,
			Quantity:       t.Quantity,
			EntryDate:      entry,
			OrderID:        t.OrderID,
			Status:         "COMPLETE",
		})
	}
	return trades, nil
}

func (z *Zerodha) GetTradeHistory(ctx context.Context, symbol string, start, end *time.Time) ([]domain.PlatformTrade, error) {
	trades, err := z.GetTrades(ctx, start, end)
	if err != nil {
		return nil, err
	}
	out := trades[:0]
	for _, t := range trades {
		if matchesSymbol(t.Symbol, symbol) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (z *Zerodha) GetAccountInfo(_ context.Context) *domain.PlatformAccountInfo {
	profile, err := z.kc.GetUserProfile()
	if err != nil {
		z.logger.Warn("profile fetch failed", zap.Error(err))
		return nil
	}
	info := &domain.PlatformAccountInfo{
		PlatformID:        "zerodha",
		ExternalAccountID: profile.UserID,
		Name:              profile.UserName,
		Email:             profile.Email,
	}
	if margins, err := z.kc.GetUserMargins(); err == nil {
		info.Balance = margins.Equity.Net
	}
	if holdings, err := z.kc.GetHoldings(); err == nil {
		info.HoldingsCount = len(holdings)
	}
	return info
}

func (z *Zerodha) RefreshToken(_ context.Context) (domain.TokenPair, error) {
	z.mu.Lock()
	refreshToken := z.cred.RefreshToken
	z.mu.Unlock()
	if refreshToken == "" {
		return domain.TokenPair{}, errors.New("zerodha: no refresh token")
	}
	tokens, err := z.kc.RenewAccessToken(refreshToken, z.secret)
	if err != nil {
		return domain.TokenPair{}, err
	}
	pair := domain.TokenPair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Expiry:       time.Now().UTC().Add(24 * time.Hour),
	}
	z.mu.Lock()
	z.cred.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		z.cred.RefreshToken = pair.RefreshToken
	}
	z.cred.TokenExpiry = pair.Expiry
	z.mu.Unlock()
	z.kc.SetAccessToken(pair.AccessToken)
	return pair, nil
}

func zerodhaInstrument(exchange string) string {
	switch exchange {
	case "NFO", "BFO", "CDS", "MCX":
		return "DERIVATIVE"
	default:
		return "EQUITY"
	}
}
