package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesync/internal/domain"
)

func TestNotifySendsMessage(t *testing.T) {
	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewNotifier("test-token", "chat-42")
	n.apiBase = srv.URL

	require.NoError(t, n.Notify(context.Background(), "hello"))
	assert.Equal(t, "chat-42", got.ChatID)
	assert.Equal(t, "hello", got.Text)
}

func TestNotifyWithoutCredentialsIsNoop(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	n := NewNotifier("", "")
	n.apiBase = srv.URL
	require.NoError(t, n.Notify(context.Background(), "dropped"))
	assert.Zero(t, calls)
}

func TestNotifyReportsAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewNotifier("test-token", "chat-42")
	n.apiBase = srv.URL
	assert.ErrorContains(t, n.Notify(context.Background(), "hello"), "status 403")
}

func TestSyncFinishedQuietOnSuccess(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	n := NewNotifier("test-token", "chat-42")
	n.apiBase = srv.URL

	n.SyncFinished(context.Background(), domain.SyncResult{Success: true})
	assert.Zero(t, calls)

	n.SyncFinished(context.Background(), domain.SyncResult{
		Success:      false,
		AccountID:    "acc-1",
		PlatformID:   "dhan",
		ErrorMessage: "boom",
	})
	assert.Equal(t, 1, calls)
}
