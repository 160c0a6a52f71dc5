package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradesync/internal/domain"
)

func TestSideFromTransaction(t *testing.T) {
	assert.Equal(t, domain.SideShort, sideFromTransaction("SELL"))
	assert.Equal(t, domain.SideShort, sideFromTransaction(" sell "))
	assert.Equal(t, domain.SideLong, sideFromTransaction("BUY"))
	assert.Equal(t, domain.SideLong, sideFromTransaction(""))
}

func TestParseTimeLayoutFallback(t *testing.T) {
	ts := parseTime("2026-08-14 10:15:30", time.RFC3339, "2006-01-02 15:04:05")
	assert.Equal(t, 10, ts.Hour())

	assert.True(t, parseTime("", "2006-01-02").IsZero())
	assert.True(t, parseTime("not-a-date", "2006-01-02").IsZero())
}

func TestWithinRange(t *testing.T) {
	ts := time.Date(2026, 8, 14, 12, 0, 0, 0, time.UTC)
	before := ts.Add(-time.Hour)
	after := ts.Add(time.Hour)

	assert.True(t, withinRange(ts, nil, nil))
	assert.True(t, withinRange(ts, &before, &after))
	assert.False(t, withinRange(ts, &after, nil))
	assert.False(t, withinRange(ts, nil, &before))
}

func TestZerodhaInstrument(t *testing.T) {
	assert.Equal(t, "DERIVATIVE", zerodhaInstrument("NFO"))
	assert.Equal(t, "DERIVATIVE", zerodhaInstrument("MCX"))
	assert.Equal(t, "EQUITY", zerodhaInstrument("NSE"))
	assert.Equal(t, "EQUITY", zerodhaInstrument(""))
}
