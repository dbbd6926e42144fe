package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"fundscope/internal/config"
	apperrors "fundscope/internal/errors"
)

// RESTClient is the HTTP plumbing shared by the exchange client
// implementations: request timeout, per-exchange rate limiting, and
// mapping of transport failures onto the pipeline error taxonomy.
type RESTClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewRESTClient creates REST plumbing for one exchange
func NewRESTClient(cfg config.ExchangeConfig) *RESTClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &RESTClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// GetJSON performs a rate-limited GET and decodes the JSON response body
func (c *RESTClient) GetJSON(ctx context.Context, path string, params url.Values, dest interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return apperrors.NewAppError(apperrors.ErrCodeTimeout, "rate limiter wait cancelled", err)
		}
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrCodeInvalidInput, "failed to build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return apperrors.NewAppErrorWithDetails(apperrors.ErrCodeTimeout, "request deadline exceeded", endpoint, err)
		}
		return apperrors.NewAppErrorWithDetails(apperrors.ErrCodeTransientNetwork, "exchange unreachable", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperrors.NewAppErrorWithDetails(apperrors.ErrCodeRateLimited, "exchange rate limit hit", endpoint, nil)
	case resp.StatusCode >= 500:
		return apperrors.NewAppErrorWithDetails(apperrors.ErrCodeTransientNetwork,
			fmt.Sprintf("exchange returned %d", resp.StatusCode), endpoint, nil)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperrors.NewAppErrorWithDetails(apperrors.ErrCodeExchangeAPI,
			fmt.Sprintf("exchange returned %d", resp.StatusCode), string(body), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return apperrors.NewAppError(apperrors.ErrCodeExchangeAPI, "failed to decode response", err)
	}
	return nil
}
