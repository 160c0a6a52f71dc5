package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesync/internal/domain"
	storepkg "tradesync/internal/store"
)

func TestUpsertAccountKeyedByUserAndPlatform(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	first, err := st.UpsertAccount(ctx, domain.Account{
		UserID:      "u@example.com",
		PlatformID:  "dhan",
		DisplayName: "Dhan Account (1001)",
		SyncStatus:  domain.SyncStatusConnected,
	}, domain.Credential{PlatformID: "dhan", AccessToken: "at-1"})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	// Reconnecting the same platform reuses the row instead of duplicating.
	second, err := st.UpsertAccount(ctx, domain.Account{
		UserID:      "u@example.com",
		PlatformID:  "dhan",
		DisplayName: "Renamed",
		SyncStatus:  domain.SyncStatusConnected,
	}, domain.Credential{PlatformID: "dhan", AccessToken: "at-2"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Renamed", second.DisplayName)

	accounts, err := st.ListAccountsByUser(ctx, "u@example.com")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	cred, err := st.GetCredential(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "at-2", cred.AccessToken)
}

func TestSetAccountSyncStatus(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	account, err := st.UpsertAccount(ctx, domain.Account{
		UserID: "u@example.com", PlatformID: "upstox",
	}, domain.Credential{})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, st.SetAccountSyncStatus(ctx, account.ID, domain.SyncStatusError, &now))

	got, err := st.FindAccountByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusError, got.SyncStatus)
	require.NotNil(t, got.LastSyncAt)

	err = st.SetAccountSyncStatus(ctx, "missing", domain.SyncStatusError, nil)
	assert.ErrorIs(t, err, storepkg.ErrNotFound)
}

func TestFindTradeByKeyMostRecentWins(t *testing.T) {
	st := NewStore()
	ctx := context.Background()
	entry := time.Date(2026, 8, 14, 10, 0, 0, 0, time.UTC)

	older, err := st.CreateTrade(ctx, domain.Trade{
		AccountID:       "acc-1",
		Symbol:          "RELIANCE",
		PlatformTradeID: "T1",
		EntryDate:       entry,
		EntryPrice:      100,
		CreatedAt:       time.Now().UTC().Add(-time.Hour),
	})
	require.NoError(t, err)

	newer, err := st.CreateTrade(ctx, domain.Trade{
		AccountID:       "acc-1",
		Symbol:          "RELIANCE",
		PlatformTradeID: "T1",
		EntryDate:       entry.Add(2 * time.Hour), // same day, same key
		EntryPrice:      101,
	})
	require.NoError(t, err)
	require.NotEqual(t, older.ID, newer.ID)

	key := domain.NewTradeKey("RELIANCE", "T1", entry)
	found, err := st.FindTradeByKey(ctx, "acc-1", key)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, found.ID)

	_, err = st.FindTradeByKey(ctx, "acc-2", key)
	assert.ErrorIs(t, err, storepkg.ErrNotFound)
}

func TestUpdateTradePreservesIdentity(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	created, err := st.CreateTrade(ctx, domain.Trade{
		AccountID: "acc-1", Symbol: "INFY", PlatformTradeID: "T9",
		EntryDate: time.Now().UTC(), EntryPrice: 1800,
	})
	require.NoError(t, err)

	updated := created
	updated.EntryPrice = 1810
	updated.AccountID = "acc-other" // must not move the row
	require.NoError(t, st.UpdateTrade(ctx, created.ID, updated))

	trades, err := st.ListTradesByAccount(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, 1810.0, trades[0].EntryPrice)
	assert.Equal(t, created.CreatedAt, trades[0].CreatedAt)

	err = st.UpdateTrade(ctx, "missing", updated)
	assert.ErrorIs(t, err, storepkg.ErrNotFound)
}

func TestOAuthStateConsumedOnce(t *testing.T) {
	st := NewStore()
	ctx := context.Background()

	state := domain.OAuthState{
		State: "s-1", PlatformID: "zerodha", UserID: "u@example.com",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.SaveOAuthState(ctx, state))

	got, err := st.ConsumeOAuthState(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "zerodha", got.PlatformID)

	_, err = st.ConsumeOAuthState(ctx, "s-1")
	assert.ErrorIs(t, err, storepkg.ErrNotFound)
}
