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

const dhanBaseURL = "https://api.dhan.co/v2"

var _ Adapter = (*Dhan)(nil)

// Dhan talks to the Dhan v2 REST API.
type Dhan struct {
	rest     *restClient
	provider *oauth.Provider
	logger   *zap.Logger
}

func NewDhan(cred domain.Credential, cfg Config) *Dhan {
	base := cfg.BaseURL
	if base == "" {
		base = dhanBaseURL
	}
	logger := cfg.logger().With(zap.String("platform", "dhan"))
	d := &Dhan{
		rest:     newRESTClient(base, cred, cfg.timeout(), logger),
		provider: cfg.Provider,
		logger:   logger,
	}
	d.rest.refresh = d.RefreshToken
	return d
}

func (d *Dhan) Name() string { return "dhan" }

func (d *Dhan) Credential() domain.Credential { return d.rest.credential() }

func (d *Dhan) Authenticate(ctx context.Context) bool {
	if err := d.rest.get(ctx, "/profile", nil); err != nil {
		d.logger.Warn("authentication check failed", zap.Error(err))
		return false
	}
	return true
}

// dhanTrade is the platform's native tradebook row.
type dhanTrade struct {
	OrderID         string  `json:"orderId"`
	ExchangeTradeID string  `json:"exchangeTradeId"`
	TransactionType string  `json:"transactionType"`
	ExchangeSegment string  `json:"exchangeSegment"`
	ProductType     string  `json:"productType"`
	TradingSymbol   string  `json:"tradingSymbol"`
	TradedQuantity  float64 `json:"tradedQuantity"`
	TradedPrice     float64 `json:"tradedPrice"`
	CreateTime      string  `json:"createTime"`
	ExchangeTime    string  `json:"exchangeTime"`
	DrvExpiryDate   string  `json:"drvExpiryDate"`
	DrvOptionType   string  `json:"drvOptionType"`
	DrvStrikePrice  float64 `json:"drvStrikePrice"`
}

func (d *Dhan) GetTrades(ctx context.Context, start, end *time.Time) ([]domain.PlatformTrade, error) {
	endpoint := "/trades"
	if start != nil && end != nil {
		// Dhan serves ranged history on a separate, paged endpoint.
		endpoint = fmt.Sprintf("/trades/%s/%s/0", dateParam(start), dateParam(end))
	}
	var raw []dhanTrade
	if err := d.rest.get(ctx, endpoint, &raw); err != nil {
		return nil, err
	}
	trades := make([]domain.PlatformTrade, 0, len(raw))
	for _, t := range raw {
		trade := d.normalize(t)
		if !withinRange(trade.EntryDate, start, end) {
			continue
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func (d *Dhan) GetTradeHistory(ctx context.Context, symbol string, start, end *time.Time) ([]domain.PlatformTrade, error) {
	trades, err := d.GetTrades(ctx, start, end)
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

func (d *Dhan) GetAccountInfo(ctx context.Context) *domain.PlatformAccountInfo {
	var profile struct {
		DhanClientID  string `json:"dhanClientId"`
		ClientName    string `json:"clientName"`
		TokenValidity string `json:"tokenValidity"`
	}
	if err := d.rest.get(ctx, "/profile", &profile); err != nil {
		d.logger.Warn("profile fetch failed", zap.Error(err))
		return nil
	}
	info := &domain.PlatformAccountInfo{
		PlatformID:        "dhan",
		ExternalAccountID: profile.DhanClientID,
		Name:              profile.ClientName,
	}
	var funds struct {
		AvailableBalance float64 `json:"availabelBalance"`
	}
	if err := d.rest.get(ctx, "/fundlimit", &funds); err == nil {
		info.Balance = funds.AvailableBalance
	}
	var holdings []struct {
		TradingSymbol string `json:"tradingSymbol"`
	}
	if err := d.rest.get(ctx, "/holdings", &holdings); err == nil {
		info.HoldingsCount = len(holdings)
	}
	return info
}

func (d *Dhan) RefreshToken(ctx context.Context) (domain.TokenPair, error) {
	cred := d.rest.credential()
	if cred.RefreshToken == "" {
		return domain.TokenPair{}, errors.New("dhan: no refresh token")
	}
	if d.provider == nil {
		return domain.TokenPair{}, errors.New("dhan: refresh not configured")
	}
	resp, err := d.provider.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return domain.TokenPair{}, err
	}
	pair := domain.TokenPair{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Expiry:       time.Now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	d.rest.setTokens(pair)
	return pair, nil
}

func (d *Dhan) normalize(t dhanTrade) domain.PlatformTrade {
	entry := parseTime(t.ExchangeTime, "2006-01-02 15:04:05", time.RFC3339)
	if entry.IsZero() {
		entry = parseTime(t.CreateTime, "2006-01-02 15:04:05", time.RFC3339)
	}
	trade := domain.PlatformTrade{
		ExternalID:     firstOf(t.ExchangeTradeID, t.OrderID),
		Symbol:         t.TradingSymbol,
		Side:           sideFromTransaction(t.TransactionType),
		InstrumentType: dhanInstrument(t),
		EntryPrice:     t.TradedPrice,
		Quantity:       t.TradedQuantity,
		EntryDate:      entry,
		OrderID:        t.OrderID,
		Status:         "TRADED",
	}
	if t.DrvOptionType != "" {
		trade.OptionType = t.DrvOptionType
		trade.StrikePrice = fptr(t.DrvStrikePrice)
		if expiry := parseTime(t.DrvExpiryDate, "2006-01-02"); !expiry.IsZero() {
			trade.ExpiryDate = &expiry
		}
		trade.Premium = fptr(t.TradedPrice * t.TradedQuantity)
	}
	return trade
}

func dhanInstrument(t dhanTrade) string {
	switch {
	case t.DrvOptionType != "":
		return "OPTION"
	case t.ExchangeSegment == "NSE_FNO" || t.ExchangeSegment == "BSE_FNO":
		return "FUTURE"
	default:
		return "EQUITY"
	}
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
