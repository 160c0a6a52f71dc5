// Package oauth implements the per-platform authorization-code-for-token
// exchange and the best-effort profile fetch that names a connected account.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"tradesync/internal/config"
	"tradesync/internal/domain"
)

var (
	ErrNotConfigured            = errors.New("platform application credentials not configured")
	ErrMissingAuthorizationCode = errors.New("missing authorization code")
	ErrTokenExchangeFailed      = errors.New("token exchange failed")
	ErrUnknownPlatform          = errors.New("unknown oauth platform")
)

// Error is a typed error reported by a platform's authorize redirect
// (the `error` query parameter on the callback).
type Error struct {
	Provider string
	Code     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("oauth error from %s: %s", e.Provider, e.Code)
}

// Provider holds one platform's OAuth endpoints and registered application
// credentials. Zerodha is special-cased: its session exchange goes through
// the Kite Connect checksum flow instead of a standard token POST.
type Provider struct {
	PlatformID   string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	RedirectURI  string
	Scopes       []string
	Extras       map[string]string
	HTTPClient   *http.Client
}

// TokenResponse is the platform's answer to a code exchange or refresh.
// Platforms whose session exchange returns identity inline (Zerodha) also
// fill the user fields.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`

	UserID   string `json:"-"`
	UserName string `json:"-"`
	Email    string `json:"-"`
}

// ForPlatform builds the Provider for a platform id from its registered
// application credentials. baseURL overrides the platform's default API host
// for sandbox environments; "" keeps the defaults.
func ForPlatform(platformID string, app config.App, baseURL string) (*Provider, error) {
	p := &Provider{
		PlatformID:   strings.ToLower(platformID),
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		RedirectURI:  app.RedirectURI,
	}
	switch p.PlatformID {
	case "dhan":
		p.AuthURL = "https://auth.dhan.co/oauth2/authorize"
		p.TokenURL = "https://auth.dhan.co/oauth2/token"
		p.ProfileURL = "https://api.dhan.co/v2/profile"
		p.Scopes = []string{"orders", "trades", "profile"}
	case "upstox":
		p.AuthURL = "https://api.upstox.com/v2/login/authorization/dialog"
		p.TokenURL = "https://api.upstox.com/v2/login/authorization/token"
		p.ProfileURL = "https://api.upstox.com/v2/user/profile"
	case "zerodha":
		p.AuthURL = "https://kite.zerodha.com/connect/login"
		p.Extras = map[string]string{"v": "3", "api_key": app.ClientID}
	case "icici":
		p.AuthURL = "https://api.icicidirect.com/apiuser/login"
		p.TokenURL = "https://api.icicidirect.com/oauth2/token"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platformID)
	}
	if baseURL != "" {
		p.AuthURL = baseURL + "/oauth/authorize"
		p.TokenURL = baseURL + "/oauth/token"
		p.ProfileURL = baseURL + "/profile"
	}
	return p, nil
}

// BuildAuthURL returns the platform's authorization redirect for the given
// opaque state. It never issues an HTTP call; a missing client id fails with
// ErrNotConfigured before anything leaves the process.
func (p *Provider) BuildAuthURL(state string) (string, error) {
	if p.ClientID == "" || p.AuthURL == "" {
		return "", fmt.Errorf("%w: %s", ErrNotConfigured, p.PlatformID)
	}
	u, err := url.Parse(p.AuthURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURI)
	q.Set("response_type", "code")
	if len(p.Scopes) > 0 {
		q.Set("scope", strings.Join(p.Scopes, " "))
	}
	q.Set("state", state)
	for k, v := range p.Extras {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExchangeCode swaps an authorization code for a token pair.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	if !p.configured() {
		return TokenResponse{}, fmt.Errorf("%w: %s", ErrNotConfigured, p.PlatformID)
	}
	if code == "" {
		return TokenResponse{}, ErrMissingAuthorizationCode
	}
	if p.PlatformID == "zerodha" {
		return p.kiteSession(code)
	}
	return p.requestToken(ctx, map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"client_id":     p.ClientID,
		"client_secret": p.ClientSecret,
		"redirect_uri":  p.RedirectURI,
	})
}

// Refresh exchanges a refresh token for a new token pair.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	if !p.configured() {
		return TokenResponse{}, fmt.Errorf("%w: %s", ErrNotConfigured, p.PlatformID)
	}
	if refreshToken == "" {
		return TokenResponse{}, fmt.Errorf("%w: no refresh token", ErrTokenExchangeFailed)
	}
	if p.PlatformID == "zerodha" {
		return p.kiteRenew(refreshToken)
	}
	return p.requestToken(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     p.ClientID,
		"client_secret": p.ClientSecret,
	})
}

// FetchProfile is best-effort: it reports ok=false instead of an error so
// callers can fall back to a generated display name.
func (p *Provider) FetchProfile(ctx context.Context, accessToken string) (domain.PlatformProfile, bool) {
	if p.PlatformID == "zerodha" {
		kc := kiteconnect.New(p.ClientID)
		kc.SetAccessToken(accessToken)
		prof, err := kc.GetUserProfile()
		if err != nil {
			return domain.PlatformProfile{}, false
		}
		return domain.PlatformProfile{
			ExternalAccountID: prof.UserID,
			Name:              prof.UserName,
			Email:             prof.Email,
		}, true
	}
	if p.ProfileURL == "" {
		return domain.PlatformProfile{}, false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.ProfileURL, nil)
	if err != nil {
		return domain.PlatformProfile{}, false
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	resp, err := p.client().Do(req)
	if err != nil {
		return domain.PlatformProfile{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.PlatformProfile{}, false
	}
	var payload struct {
		Data struct {
			UserID   string `json:"user_id"`
			ClientID string `json:"client_id"`
			UserName string `json:"user_name"`
			Name     string `json:"name"`
			Email    string `json:"email"`
		} `json:"data"`
		UserID   string `json:"user_id"`
		ClientID string `json:"client_id"`
		Name     string `json:"name"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.PlatformProfile{}, false
	}
	prof := domain.PlatformProfile{
		ExternalAccountID: firstNonEmpty(payload.Data.UserID, payload.Data.ClientID, payload.UserID, payload.ClientID),
		Name:              firstNonEmpty(payload.Data.UserName, payload.Data.Name, payload.Name),
		Email:             firstNonEmpty(payload.Data.Email, payload.Email),
	}
	if prof.ExternalAccountID == "" && prof.Name == "" {
		return domain.PlatformProfile{}, false
	}
	return prof, true
}

// DisplayName picks the deterministic fallback name for an account when the
// profile fetch failed or came back partial.
func DisplayName(platformID string, prof domain.PlatformProfile, ok bool) string {
	if ok && prof.Name != "" {
		return prof.Name
	}
	id := "Unknown"
	if ok && prof.ExternalAccountID != "" {
		id = prof.ExternalAccountID
	}
	return fmt.Sprintf("%s Account (%s)", title(platformID), id)
}

func (p *Provider) requestToken(ctx context.Context, form map[string]string) (TokenResponse, error) {
	if p.TokenURL == "" {
		return TokenResponse{}, fmt.Errorf("%w: %s token url missing", ErrNotConfigured, p.PlatformID)
	}
	raw, err := json.Marshal(form)
	if err != nil {
		return TokenResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, bytes.NewReader(raw))
	if err != nil {
		return TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client().Do(req)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TokenResponse{}, fmt.Errorf("%w: status %d", ErrTokenExchangeFailed, resp.StatusCode)
	}
	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return TokenResponse{}, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	if tokenResp.Error != "" {
		return TokenResponse{}, &Error{Provider: p.PlatformID, Code: tokenResp.Error}
	}
	if tokenResp.AccessToken == "" {
		return TokenResponse{}, fmt.Errorf("%w: response missing access_token", ErrTokenExchangeFailed)
	}
	if tokenResp.ExpiresIn <= 0 {
		tokenResp.ExpiresIn = int64((24 * time.Hour).Seconds())
	}
	return tokenResp, nil
}

func (p *Provider) kiteSession(requestToken string) (TokenResponse, error) {
	kc := kiteconnect.New(p.ClientID)
	sess, err := kc.GenerateSession(requestToken, p.ClientSecret)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	return TokenResponse{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresIn:    int64((24 * time.Hour).Seconds()),
		UserID:       sess.UserID,
		UserName:     sess.UserName,
		Email:        sess.Email,
	}, nil
}

func (p *Provider) kiteRenew(refreshToken string) (TokenResponse, error) {
	kc := kiteconnect.New(p.ClientID)
	tokens, err := kc.RenewAccessToken(refreshToken, p.ClientSecret)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	return TokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    int64((24 * time.Hour).Seconds()),
	}, nil
}

func (p *Provider) configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

func (p *Provider) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
