// Package platform provides a uniform adapter over heterogeneous brokerage
// APIs: authentication, trade retrieval, and token refresh, normalized into
// one contract so the sync orchestrator never sees a platform's own shapes.
package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tradesync/internal/domain"
	"tradesync/internal/service/oauth"
)

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrNotImplemented      = errors.New("platform integration not implemented")
)

// APIError is any non-2xx platform response outside the single 401
// refresh-and-retry path.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform api error: status %d: %s", e.Status, e.Body)
}

// Adapter is the common capability contract every brokerage implements.
//
// GetTrades and GetTradeHistory return the platform's trades normalized into
// domain.PlatformTrade; an empty slice means the platform reported no data,
// not a failure. RefreshToken returns the new pair explicitly; the caller
// persists it. The adapter only updates its in-memory credential, observable
// through Credential().
type Adapter interface {
	Name() string

	// Authenticate verifies the current token set with a lightweight call.
	// It never returns an error; failures are logged and reported as false.
	Authenticate(ctx context.Context) bool

	GetTrades(ctx context.Context, start, end *time.Time) ([]domain.PlatformTrade, error)
	GetTradeHistory(ctx context.Context, symbol string, start, end *time.Time) ([]domain.PlatformTrade, error)

	// GetAccountInfo is best-effort: nil when the underlying calls fail.
	GetAccountInfo(ctx context.Context) *domain.PlatformAccountInfo

	RefreshToken(ctx context.Context) (domain.TokenPair, error)
	Credential() domain.Credential
}

// Config carries everything an adapter needs beyond the user credential:
// the registered application identity (for refresh), an optional base URL
// override for sandbox environments, the request timeout, and the logger.
type Config struct {
	Provider *oauth.Provider
	BaseURL  string
	Timeout  time.Duration
	Logger   *zap.Logger
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// New is the sole polymorphic dispatch point: it maps a platform id to a
// constructed adapter. Pure construction, no I/O.
func New(platformID string, cred domain.Credential, cfg Config) (Adapter, error) {
	switch strings.ToLower(platformID) {
	case "dhan":
		return NewDhan(cred, cfg), nil
	case "upstox":
		return NewUpstox(cred, cfg), nil
	case "zerodha":
		return NewZerodha(cred, cfg), nil
	case "icici":
		return NewICICI(cred, cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, platformID)
	}
}

// Supported lists the platform ids New accepts.
func Supported() []string {
	return []string{"dhan", "upstox", "zerodha", "icici"}
}
