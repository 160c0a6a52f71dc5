package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradesync/internal/config"
	"tradesync/internal/domain"
)

func testApp() config.App {
	return config.App{
		ClientID:     "client-123",
		ClientSecret: "secret-456",
		RedirectURI:  "http://localhost:18080/platforms/dhan/callback",
	}
}

func TestForPlatformUnknown(t *testing.T) {
	_, err := ForPlatform("etrade", config.App{}, "")
	require.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestBuildAuthURLCarriesStandardParams(t *testing.T) {
	p, err := ForPlatform("dhan", testApp(), "")
	require.NoError(t, err)

	raw, err := p.BuildAuthURL("state-abc")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "http://localhost:18080/platforms/dhan/callback", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "state-abc", q.Get("state"))
	assert.Contains(t, q.Get("scope"), "trades")
}

func TestBuildAuthURLZerodhaExtras(t *testing.T) {
	p, err := ForPlatform("zerodha", testApp(), "")
	require.NoError(t, err)

	raw, err := p.BuildAuthURL("state-xyz")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "kite.zerodha.com", u.Host)
	q := u.Query()
	assert.Equal(t, "3", q.Get("v"))
	assert.Equal(t, "client-123", q.Get("api_key"))
}

func TestBuildAuthURLNotConfigured(t *testing.T) {
	p, err := ForPlatform("upstox", config.App{}, "")
	require.NoError(t, err)

	_, err = p.BuildAuthURL("state")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestExchangeCodeRequiresCode(t *testing.T) {
	p, err := ForPlatform("dhan", testApp(), "")
	require.NoError(t, err)

	_, err = p.ExchangeCode(context.Background(), "")
	require.ErrorIs(t, err, ErrMissingAuthorizationCode)
}

func TestExchangeCodeNotConfiguredIssuesNoHTTP(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	p, err := ForPlatform("dhan", config.App{}, srv.URL)
	require.NoError(t, err)

	_, err = p.ExchangeCode(context.Background(), "some-code")
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Zero(t, hits)
}

func TestExchangeCodeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		var form map[string]string
		require.NoError(t, decodeBody(r, &form))
		assert.Equal(t, "authorization_code", form["grant_type"])
		assert.Equal(t, "auth-code-1", form["code"])
		assert.Equal(t, "client-123", form["client_id"])
		w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600}`))
	}))
	defer srv.Close()

	p, err := ForPlatform("dhan", testApp(), srv.URL)
	require.NoError(t, err)

	resp, err := p.ExchangeCode(context.Background(), "auth-code-1")
	require.NoError(t, err)
	assert.Equal(t, "at-1", resp.AccessToken)
	assert.Equal(t, "rt-1", resp.RefreshToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
}

func TestExchangeCodeProviderErrorIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	p, err := ForPlatform("upstox", testApp(), srv.URL)
	require.NoError(t, err)

	_, err = p.ExchangeCode(context.Background(), "expired-code")
	require.Error(t, err)

	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "upstox", oe.Provider)
	assert.Equal(t, "invalid_grant", oe.Code)
}

func TestExchangeCodeDefaultsExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"at-2"}`))
	}))
	defer srv.Close()

	p, err := ForPlatform("dhan", testApp(), srv.URL)
	require.NoError(t, err)

	resp, err := p.ExchangeCode(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, int64(86400), resp.ExpiresIn)
}

func TestRefreshSendsRefreshGrant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var form map[string]string
		require.NoError(t, decodeBody(r, &form))
		assert.Equal(t, "refresh_token", form["grant_type"])
		assert.Equal(t, "rt-old", form["refresh_token"])
		w.Write([]byte(`{"access_token":"at-new","refresh_token":"rt-new","expires_in":7200}`))
	}))
	defer srv.Close()

	p, err := ForPlatform("upstox", testApp(), srv.URL)
	require.NoError(t, err)

	resp, err := p.Refresh(context.Background(), "rt-old")
	require.NoError(t, err)
	assert.Equal(t, "at-new", resp.AccessToken)
	assert.Equal(t, "rt-new", resp.RefreshToken)
}

func TestRefreshWithoutToken(t *testing.T) {
	p, err := ForPlatform("dhan", testApp(), "")
	require.NoError(t, err)

	_, err = p.Refresh(context.Background(), "")
	require.ErrorIs(t, err, ErrTokenExchangeFailed)
}

func TestFetchProfileBestEffort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":{"user_id":"U1001","user_name":"Asha","email":"asha@example.com"}}`))
	}))
	defer srv.Close()

	p, err := ForPlatform("upstox", testApp(), srv.URL)
	require.NoError(t, err)

	prof, ok := p.FetchProfile(context.Background(), "at-1")
	require.True(t, ok)
	assert.Equal(t, "U1001", prof.ExternalAccountID)
	assert.Equal(t, "Asha", prof.Name)
	assert.Equal(t, "asha@example.com", prof.Email)
}

func TestFetchProfileFailureReportsNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := ForPlatform("dhan", testApp(), srv.URL)
	require.NoError(t, err)

	_, ok := p.FetchProfile(context.Background(), "at-1")
	assert.False(t, ok)
}

func TestDisplayNameFallbacks(t *testing.T) {
	assert.Equal(t, "Asha", DisplayName("upstox", domain.PlatformProfile{Name: "Asha"}, true))
	assert.Equal(t, "Upstox Account (U1001)", DisplayName("upstox", domain.PlatformProfile{ExternalAccountID: "U1001"}, true))
	assert.Equal(t, "Dhan Account (Unknown)", DisplayName("dhan", domain.PlatformProfile{}, false))
}

func decodeBody(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
