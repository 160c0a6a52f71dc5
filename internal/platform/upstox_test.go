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

func TestUpstoxGetTradesUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/order/trades/get-trades-for-day", r.URL.Path)
		w.Write([]byte(`{
			"status": "success",
			"data": [
				{
					"trade_id": "50011",
					"order_id": "240814000123",
					"tradingsymbol": "INFY",
					"transaction_type": "SELL",
					"quantity": 12,
					"average_price": 1810.25,
					"exchange_timestamp": "2026-08-14T09:45:12+05:30"
				}
			]
		}`))
	}))
	defer srv.Close()

	adapter := NewUpstox(domain.Credential{AccessToken: "tok"}, Config{BaseURL: srv.URL})
	trades, err := adapter.GetTrades(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	trade := trades[0]
	assert.Equal(t, "50011", trade.ExternalID)
	assert.Equal(t, "INFY", trade.Symbol, "legacy tradingsymbol spelling still maps")
	assert.Equal(t, domain.SideShort, trade.Side)
	assert.Equal(t, "EQUITY", trade.InstrumentType)
	assert.Equal(t, 1810.25, trade.EntryPrice)
	assert.Equal(t, "240814000123", trade.OrderID)
}

func TestUpstoxRangedFetchUsesHistoricalEndpoint(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"status":"success","data":[]}`))
	}))
	defer srv.Close()

	adapter := NewUpstox(domain.Credential{AccessToken: "tok"}, Config{BaseURL: srv.URL})
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	trades, err := adapter.GetTrades(context.Background(), &start, &end)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Equal(t, "/charges/historical-trades", gotPath)
	assert.Contains(t, gotQuery, "from_date=2026-08-01")
	assert.Contains(t, gotQuery, "to_date=2026-08-30")
}

func TestUpstoxOptionNormalization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"status": "success",
			"data": [
				{
					"trade_id": "50012",
					"trading_symbol": "BANKNIFTY26SEP52000PE",
					"transaction_type": "BUY",
					"quantity": 15,
					"average_price": 310.4,
					"trade_date": "2026-08-14",
					"strike_price": 52000,
					"expiry": "2026-09-24",
					"option_type": "PE"
				}
			]
		}`))
	}))
	defer srv.Close()

	adapter := NewUpstox(domain.Credential{AccessToken: "tok"}, Config{BaseURL: srv.URL})
	trades, err := adapter.GetTrades(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	trade := trades[0]
	assert.Equal(t, "OPTION", trade.InstrumentType)
	assert.Equal(t, "PE", trade.OptionType)
	require.NotNil(t, trade.StrikePrice)
	assert.Equal(t, 52000.0, *trade.StrikePrice)
	require.NotNil(t, trade.ExpiryDate)
	assert.Equal(t, "2026-09-24", trade.ExpiryDate.Format("2006-01-02"))
	assert.Equal(t, "2026-08-14", trade.EntryDate.Format("2006-01-02"), "falls back to trade_date")
}
