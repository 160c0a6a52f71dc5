package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tradesync/internal/domain"
	"tradesync/internal/service/oauth"
)

const upstoxBaseURL = "https://api.upstox.com/v2"

var _ Adapter = (*Upstox)(nil)

// Upstox talks to the Upstox v2 REST API. Responses arrive wrapped in a
// {status, data} envelope.
type Upstox struct {
	rest     *restClient
	provider *oauth.Provider
	logger   *zap.Logger
}

func NewUpstox(cred domain.Credential, cfg Config) *Upstox {
	base := cfg.BaseURL
	if base == "" {
		base = upstoxBaseURL
	}
	logger := cfg.logger().With(zap.String("platform", "upstox"))
	u := &Upstox{
		rest:     newRESTClient(base, cred, cfg.timeout(), logger),
		provider: cfg.Provider,
		logger:   logger,
	}
	u.rest.refresh = u.RefreshToken
	return u
}

func (u *Upstox) Name() string { return "upstox" }

func (u *Upstox) Credential() domain.Credential { return u.rest.credential() }

func (u *Upstox) Authenticate(ctx context.Context) bool {
	var envelope struct {
		Status string `json:"status"`
	}
	if err := u.rest.get(ctx, "/user/profile", &envelope); err != nil {
		u.logger.Warn("authentication check failed", zap.Error(err))
		return false
	}
	return true
}

type upstoxTrade struct {
	TradeID           string  `json:"trade_id"`
	OrderID           string  `json:"order_id"`
	TradingSymbol     string  `json:"trading_symbol"`
	Tradingsymbol     string  `json:"tradingsymbol"`
	TransactionType   string  `json:"transaction_type"`
	Quantity          float64 `json:"quantity"`
	AveragePrice      float64 `json:"average_price"`
	Price             float64 `json:"price"`
	TradeDate         string  `json:"trade_date"`
	OrderTimestamp    string  `json:"order_timestamp"`
	ExchangeTimestamp string  `json:"exchange_timestamp"`
	InstrumentType    string  `json:"instrument_type"`
	Segment           string  `json:"segment"`
	StrikePrice       float64 `json:"strike_price"`
	Expiry            string  `json:"expiry"`
	OptionType        string  `json:"option_type"`
}

func (u *Upstox) GetTrades(ctx context.Context, start, end *time.Time) ([]domain.PlatformTrade, error) {
	endpoint := "/order/trades/get-trades-for-day"
	if start != nil && end != nil {
		endpoint = fmt.Sprintf("/charges/historical-trades?from_date=%s&to_date=%s&page_number=1&page_size=500",
			dateParam(start), dateParam(end))
	}
	var envelope struct {
		Status string        `json:"status"`
		Data   []upstoxTrade `json:"data"`
	}
	if err := u.rest.get(ctx, endpoint, &envelope); err != nil {
		return nil, err
	}
	trades := make([]domain.PlatformTrade, 0, len(envelope.Data))
	for _, t := range envelope.Data {
		trade := u.normalize(t)
		if !withinRange(trade.EntryDate, start, end) {
			continue
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func (u *Upstox) GetTradeHistory(ctx context.Context, symbol string, start, end *time.Time) ([]domain.PlatformTrade, error) {
	trades, err := u.GetTrades(ctx, start, end)
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

func (u *Upstox) GetAccountInfo(ctx context.Context) *domain.PlatformAccountInfo {
	var profile struct {
		Data struct {
			UserID   string `json:"user_id"`
			UserName string `json:"user_name"`
			Email    string `json:"email"`
		} `json:"data"`
	}
	if err := u.rest.get(ctx, "/user/profile", &profile); err != nil {
		u.logger.Warn("profile fetch failed", zap.Error(err))
		return nil
	}
	info := &domain.PlatformAccountInfo{
		PlatformID:        "upstox",
		ExternalAccountID: profile.Data.UserID,
		Name:              profile.Data.UserName,
		Email:             profile.Data.Email,
	}
	var funds struct {
		Data struct {
			Equity struct {
				AvailableMargin float64 `json:"available_margin"`
			} `json:"equity"`
		} `json:"data"`
	}
	if err := u.rest.get(ctx, "/user/get-funds-and-margin", &funds); err == nil {
		info.Balance = funds.Data.Equity.AvailableMargin
	}
	var holdings struct {
		Data []struct {
			TradingSymbol string `json:"trading_symbol"`
		} `json:"data"`
	}
	if err := u.rest.get(ctx, "/portfolio/long-term-holdings", &holdings); err == nil {
		info.HoldingsCount = len(holdings.Data)
	}
	return info
}

func (u *Upstox) RefreshToken(ctx context.Context) (domain.TokenPair, error) {
	cred := u.rest.credential()
	if cred.RefreshToken == "" {
		return domain.TokenPair{}, errors.New("upstox: no refresh token")
	}
	if u.provider == nil {
		return domain.TokenPair{}, errors.New("upstox: refresh not configured")
	}
	resp, err := u.provider.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}
	pair := domain.TokenPair{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Expiry:       time.Now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	u.rest.setTokens(pair)
	return pair, nil
}

func (u *Upstox) normalize(t upstoxTrade) domain.PlatformTrade {
	symbol := firstOf(t.TradingSymbol, t.Tradingsymbol)
	entry := parseTime(t.ExchangeTimestamp, time.RFC3339, "2006-01-02 15:04:05")
	if entry.IsZero() {
		entry = parseTime(t.OrderTimestamp, time.RFC3339, "2006-01-02 15:04:05")
	}
	if entry.IsZero() {
		entry = parseTime(t.TradeDate, "2006-01-02")
	}
	price := t.AveragePrice
	if price == 0 {
		price = t.Price
	}
	trade := domain.PlatformTrade{
		ExternalID:     firstOf(t.TradeID, t.OrderID),
		Symbol:         symbol,
		Side:           sideFromTransaction(t.TransactionType),
		InstrumentType: upstoxInstrument(t),
		EntryPrice:     price,
		Quantity:       t.Quantity,
		EntryDate:      entry,
		OrderID:        t.OrderID,
		Status:         "COMPLETE",
	}
	if t.OptionType != "" {
		trade.OptionType = t.OptionType
		trade.StrikePrice = fptr(t.StrikePrice)
		if expiry := parseTime(t.Expiry, "2006-01-02"); !expiry.IsZero() {
			trade.ExpiryDate = &expiry
		}
		trade.Premium = fptr(price * t.Quantity)
	}
	return trade
}

func upstoxInstrument(t upstoxTrade) string {
	switch {
	case t.OptionType != "":
		return "OPTION"
	case t.InstrumentType != "":
		return t.InstrumentType
	case t.Segment == "FO":
		return "FUTURE"
	default:
		return "EQUITY"
	}
}
