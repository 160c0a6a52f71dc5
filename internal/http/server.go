package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tradesync/internal/config"
	"tradesync/internal/domain"
	"tradesync/internal/service/oauth"
	syncsvc "tradesync/internal/service/sync"
	storepkg "tradesync/internal/store"
)

type contextKey string

const contextKeyUserEmail contextKey = "user_email"

type Server struct {
	cfg   config.Config
	store storepkg.Store
	sync  *syncsvc.Service
	log   *zap.Logger
}

func NewServer(cfg config.Config, store storepkg.Store, sync *syncsvc.Service, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, store: store, sync: sync, log: log}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Post("/auth/login", s.handleLogin)

	// Callbacks arrive from the brokerage redirect, not from our client,
	// so they sit outside the bearer group. The state ties them to a user.
	r.Get("/platforms/{platform}/callback", s.handleCallback)

	r.Group(func(protected chi.Router) {
		protected.Use(s.requireUser)
		protected.Get("/platforms/{platform}/connect", s.handleConnect)
		protected.Get("/accounts", s.handleListAccounts)
		protected.Get("/accounts/{accountID}/trades", s.handleListTrades)
		protected.Post("/accounts/{accountID}/sync", s.handleSyncAccount)
		protected.Post("/sync", s.handleSyncAll)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Email != s.cfg.AdminUsername || req.Password != s.cfg.AdminPassword {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := s.signUserToken(req.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
		"type":       "Bearer",
	})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	platformID := strings.ToLower(chi.URLParam(r, "platform"))
	email := userEmail(r.Context())

	provider, err := oauth.ForPlatform(platformID, s.cfg.App(platformID), s.cfg.PlatformAPIBaseURL)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown platform")
		return
	}

	state := uuid.NewString()
	if err := s.store.SaveOAuthState(r.Context(), domain.OAuthState{
		State:      state,
		PlatformID: platformID,
		UserID:     email,
		CreatedAt:  time.Now().UTC(),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save oauth state")
		return
	}

	authURL, err := provider.BuildAuthURL(state)
	if err != nil {
		if errors.Is(err, oauth.ErrNotConfigured) {
			writeError(w, http.StatusInternalServerError, platformID+" oauth is not configured")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to build auth url")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"platform": platformID,
		"state":    state,
		"auth_url": authURL,
	})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	platformID := strings.ToLower(chi.URLParam(r, "platform"))
	query := r.URL.Query()

	// The provider reported a denial or failure. Surface it as-is and
	// never attempt the token exchange.
	if errCode := query.Get("error"); errCode != "" {
		oe := &oauth.Error{Provider: platformID, Code: errCode}
		writeError(w, http.StatusBadRequest, oe.Error())
		return
	}

	// Zerodha sends request_token instead of code.
	code := query.Get("code")
	if code == "" {
		code = query.Get("request_token")
	}
	if code == "" {
		oe := &oauth.Error{Provider: platformID, Code: "missing_authorization_code"}
		writeError(w, http.StatusBadRequest, oe.Error())
		return
	}

	state := query.Get("state")
	saved, err := s.store.ConsumeOAuthState(r.Context(), state)
	if err != nil || saved.PlatformID != platformID {
		writeError(w, http.StatusBadRequest, "invalid oauth state")
		return
	}

	provider, err := oauth.ForPlatform(platformID, s.cfg.App(platformID), s.cfg.PlatformAPIBaseURL)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown platform")
		return
	}

	tokenResp, err := provider.ExchangeCode(r.Context(), code)
	if err != nil {
		s.log.Warn("token exchange failed", zap.String("platform", platformID), zap.Error(err))
		writeError(w, http.StatusBadGateway, platformID+" token exchange failed")
		return
	}

	cred := domain.Credential{
		PlatformID:   platformID,
		APIKey:       provider.ClientID,
		APISecret:    provider.ClientSecret,
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
	}
	if tokenResp.ExpiresIn > 0 {
		cred.TokenExpiry = time.Now().UTC().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	prof, ok := provider.FetchProfile(r.Context(), tokenResp.AccessToken)
	externalID := prof.ExternalAccountID
	if externalID == "" {
		externalID = tokenResp.UserID
	}

	account, err := s.store.UpsertAccount(r.Context(), domain.Account{
		UserID:            saved.UserID,
		PlatformID:        platformID,
		ExternalAccountID: externalID,
		DisplayName:       oauth.DisplayName(platformID, prof, ok),
		SyncStatus:        domain.SyncStatusConnected,
	}, cred)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save account")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected":  true,
		"platform":   platformID,
		"account_id": account.ID,
	})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccountsByUser(r.Context(), userEmail(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	account, err := s.accountForUser(r, accountID)
	if err != nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	trades, err := s.store.ListTradesByAccount(r.Context(), account.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
}

func (s *Server) handleSyncAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if _, err := s.accountForUser(r, accountID); err != nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	opts, err := syncOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// A finished run is 200 even when it reports failure; the result body
	// carries the outcome.
	writeJSON(w, http.StatusOK, s.sync.SyncAccount(r.Context(), accountID, opts))
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	opts, err := syncOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results := s.sync.SyncAllAccounts(r.Context(), opts)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": syncsvc.Summarize(results),
		"results": results,
	})
}

// syncOptions reads the optional window and update flag from the body.
// An empty body means defaults.
func syncOptions(r *http.Request) (syncsvc.Options, error) {
	opts := syncsvc.DefaultOptions()
	if r.Body == nil || r.ContentLength == 0 {
		return opts, nil
	}
	var req struct {
		StartDate      string `json:"start_date"`
		EndDate        string `json:"end_date"`
		UpdateExisting *bool  `json:"update_existing"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return opts, err
	}
	if req.StartDate != "" {
		t, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return opts, errors.New("start_date must be yyyy-mm-dd")
		}
		opts.StartDate = &t
	}
	if req.EndDate != "" {
		t, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			return opts, errors.New("end_date must be yyyy-mm-dd")
		}
		opts.EndDate = &t
	}
	if req.UpdateExisting != nil {
		opts.UpdateExisting = *req.UpdateExisting
	}
	return opts, nil
}

func (s *Server) accountForUser(r *http.Request, accountID string) (domain.Account, error) {
	account, err := s.store.FindAccountByID(r.Context(), accountID)
	if err != nil {
		return domain.Account{}, err
	}
	if account.UserID != userEmail(r.Context()) {
		return domain.Account{}, storepkg.ErrNotFound
	}
	return account, nil
}

func (s *Server) signUserToken(email string) (string, time.Time, error) {
	expiresAt := time.Now().UTC().Add(12 * time.Hour)
	claims := jwt.MapClaims{
		"sub": email,
		"exp": expiresAt.Unix(),
		"iat": time.Now().UTC().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.cfg.JWTSecret), nil
		})
		if err != nil || !parsed.Valid {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid claims")
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			writeError(w, http.StatusUnauthorized, "invalid claims")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyUserEmail, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userEmail(ctx context.Context) string {
	email, _ := ctx.Value(contextKeyUserEmail).(string)
	return email
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
