package platform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesync/internal/domain"
)

func TestNewSelectsAdapterByPlatformID(t *testing.T) {
	cred := domain.Credential{AccessToken: "tok"}

	for _, id := range []string{"dhan", "Upstox", "ZERODHA", "icici"} {
		adapter, err := New(id, cred, Config{})
		require.NoError(t, err, id)
		require.NotNil(t, adapter, id)
	}

	adapter, err := New("dhan", cred, Config{})
	require.NoError(t, err)
	assert.Equal(t, "dhan", adapter.Name())
}

func TestNewRejectsUnknownPlatform(t *testing.T) {
	_, err := New("robinhood", domain.Credential{}, Config{})
	require.ErrorIs(t, err, ErrUnsupportedPlatform)
	assert.Contains(t, err.Error(), "robinhood")
}

func TestICICIDataOperationsNotImplemented(t *testing.T) {
	adapter, err := New("icici", domain.Credential{AccessToken: "tok"}, Config{})
	require.NoError(t, err)

	_, err = adapter.GetTrades(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrNotImplemented)

	_, err = adapter.GetTradeHistory(context.Background(), "RELIANCE", nil, nil)
	require.ErrorIs(t, err, ErrNotImplemented)

	assert.False(t, adapter.Authenticate(context.Background()))
	assert.Nil(t, adapter.GetAccountInfo(context.Background()))
}

func TestSupportedListsEveryAdapter(t *testing.T) {
	assert.ElementsMatch(t, []string{"dhan", "upstox", "zerodha", "icici"}, Supported())
}
