package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradesync/internal/domain"
)

// restClient is the only place HTTP I/O happens for REST-backed adapters.
// It attaches the bearer header, applies the request timeout, and on a 401
// invokes the adapter's refresh exactly once before retrying the same call
// once with the new token. Any other non-2xx fails with *APIError.
type restClient struct {
	base   string
	http   *http.Client
	logger *zap.Logger

	mu   sync.Mutex
	cred domain.Credential

	// refresh exchanges the stored refresh token for a new pair. Wired to
	// the owning adapter's RefreshToken.
	refresh func(ctx context.Context) (domain.TokenPair, error)
}

func newRESTClient(base string, cred domain.Credential, timeout time.Duration, logger *zap.Logger) *restClient {
	return &restClient{
		base:   base,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
		cred:   cred,
	}
}

func (c *restClient) credential() domain.Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cred
}

func (c *restClient) setTokens(pair domain.TokenPair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		c.cred.RefreshToken = pair.RefreshToken
	}
	c.cred.TokenExpiry = pair.Expiry
}

// get issues an authenticated GET and decodes the JSON response into out.
func (c *restClient) get(ctx context.Context, endpoint string, out any) error {
	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *restClient) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	body, status, err := c.once(ctx, method, endpoint, payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		if c.refresh == nil {
			return nil, &APIError{Status: status, Body: string(body)}
		}
		c.logger.Info("platform returned 401, refreshing token",
			zap.String("endpoint", endpoint))
		if _, err := c.refresh(ctx); err != nil {
			return nil, err
		}
		body, status, err = c.once(ctx, method, endpoint, payload)
		if err != nil {
			return nil, err
		}
	}
	if status < 200 || status > 299 {
		return nil, &APIError{Status: status, Body: string(body)}
	}
	return body, nil
}

// once performs a single request attempt. Non-2xx statuses are returned to
// the caller, not turned into errors here, so do can apply the 401 policy.
func (c *restClient) once(ctx context.Context, method, endpoint string, payload any) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+endpoint, reqBody)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.credential().AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
