package platform

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tradesync/internal/domain"
)

var _ Adapter = (*ICICI)(nil)

// ICICI is an intentionally incomplete adapter: the ICICI Direct Breeze
// integration is not built yet. Every data operation fails with
// ErrNotImplemented so callers can tell a missing integration apart from a
// transient platform failure.
type ICICI struct {
	cred   domain.Credential
	logger *zap.Logger
}

func NewICICI(cred domain.Credential, cfg Config) *ICICI {
	return &ICICI{
		cred:   cred,
		logger: cfg.logger().With(zap.String("platform", "icici")),
	}
}

func (i *ICICI) Name() string { return "icici" }

func (i *ICICI) Credential() domain.Credential { return i.cred }

func (i *ICICI) Authenticate(_ context.Context) bool {
	i.logger.Warn("authenticate called on unimplemented platform")
	return false
}

func (i *ICICI) GetTrades(_ context.Context, _, _ *time.Time) ([]domain.PlatformTrade, error) {
	return nil, ErrNotImplemented
}

func (i *ICICI) GetTradeHistory(_ context.Context, _ string, _, _ *time.Time) ([]domain.PlatformTrade, error) {
	return nil, ErrNotImplemented
}

func (i *ICICI) GetAccountInfo(_ context.Context) *domain.PlatformAccountInfo {
	return nil
}

func (i *ICICI) RefreshToken(_ context.Context) (domain.TokenPair, error) {
	return domain.TokenPair{}, ErrNotImplemented
}
