package platform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesync/internal/domain"
)

const dhanTradebook = `[
  {
    "orderId": "112111182045",
    "exchangeTradeId": "15112111",
    "transactionType": "BUY",
    "exchangeSegment": "NSE_EQ",
    "productType": "CNC",
    "tradingSymbol": "RELIANCE",
    "tradedQuantity": 10,
    "tradedPrice": 2450.5,
    "exchangeTime": "2026-08-14 10:15:30"
  },
  {
    "orderId": "112111182046",
    "exchangeTradeId": "15112112",
    "transactionType": "SELL",
    "exchangeSegment": "NSE_FNO",
    "productType": "INTRADAY",
    "tradingSymbol": "NIFTY26AUG24000CE",
    "tradedQuantity": 50,
    "tradedPrice": 125.75,
    "exchangeTime": "2026-08-14 11:02:00",
    "drvExpiryDate": "2026-08-27",
    "drvOptionType": "CALL",
    "drvStrikePrice": 24000
  }
]`

func newDhanTestServer(t *testing.T, tradebook string) (*Dhan, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/trades":
			w.Write([]byte(tradebook))
		case "/profile":
			w.Write([]byte(`{"dhanClientId":"1000000132","clientName":"Test User"}`))
		case "/fundlimit":
			w.Write([]byte(`{"availabelBalance":98000.5}`))
		case "/holdings":
			w.Write([]byte(`[{"tradingSymbol":"RELIANCE"},{"tradingSymbol":"TCS"}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	cred := domain.Credential{PlatformID: "dhan", AccessToken: "tok"}
	return NewDhan(cred, Config{BaseURL: srv.URL}), srv
}

func TestDhanGetTradesNormalizes(t *testing.T) {
	adapter, _ := newDhanTestServer(t, dhanTradebook)

	trades, err := adapter.GetTrades(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	equity := trades[0]
	assert.Equal(t, "15112111", equity.ExternalID)
	assert.Equal(t, "RELIANCE", equity.Symbol)
	assert.Equal(t, domain.SideLong, equity.Side)
	assert.Equal(t, "EQUITY", equity.InstrumentType)
	assert.Equal(t, 2450.5, equity.EntryPrice)
	assert.Equal(t, 10.0, equity.Quantity)
	assert.Equal(t, 2026, equity.EntryDate.Year())
	assert.Nil(t, equity.StrikePrice)

	option := trades[1]
	assert.Equal(t, domain.SideShort, option.Side)
	assert.Equal(t, "OPTION", option.InstrumentType)
	assert.Equal(t, "CALL", option.OptionType)
	require.NotNil(t, option.StrikePrice)
	assert.Equal(t, 24000.0, *option.StrikePrice)
	require.NotNil(t, option.ExpiryDate)
	assert.Equal(t, "2026-08-27", option.ExpiryDate.Format("2006-01-02"))
	require.NotNil(t, option.Premium)
	assert.InDelta(t, 125.75*50, *option.Premium, 0.001)
}

func TestDhanGetTradesFiltersRangeClientSide(t *testing.T) {
	adapter, _ := newDhanTestServer(t, dhanTradebook)

	start := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	trades, err := adapter.GetTrades(context.Background(), &start, nil)
	require.NoError(t, err)
	assert.Empty(t, trades, "all trades predate the window")
}

func TestDhanGetTradeHistoryFiltersSymbol(t *testing.T) {
	adapter, _ := newDhanTestServer(t, dhanTradebook)

	trades, err := adapter.GetTradeHistory(context.Background(), "reliance", nil, nil)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "RELIANCE", trades[0].Symbol)
}

func TestDhanGetAccountInfo(t *testing.T) {
	adapter, _ := newDhanTestServer(t, dhanTradebook)

	info := adapter.GetAccountInfo(context.Background())
	require.NotNil(t, info)
	assert.Equal(t, "dhan", info.PlatformID)
	assert.Equal(t, "1000000132", info.ExternalAccountID)
	assert.Equal(t, "Test User", info.Name)
	assert.Equal(t, 98000.5, info.Balance)
	assert.Equal(t, 2, info.HoldingsCount)
}

func TestDhanRefreshWithoutRefreshToken(t *testing.T) {
	adapter, _ := newDhanTestServer(t, dhanTradebook)

	_, err := adapter.RefreshToken(context.Background())
	require.Error(t, err)
}
