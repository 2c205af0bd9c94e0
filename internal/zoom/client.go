// Package zoom is the gateway to the Zoom REST API.
package zoom

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/leozw/zoom-dashboard/internal/config"
	"github.com/leozw/zoom-dashboard/internal/gateway"
	"github.com/leozw/zoom-dashboard/internal/metrics"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	tokenTTL  time.Duration
	pageSize  int
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[[]byte]
	now       func() time.Time
	logger    *zap.Logger
	metrics   *metrics.Collector
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(cfg config.ZoomConfig, logger *zap.Logger, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 300
	}

	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		tokenTTL:  ttl,
		pageSize:  pageSize,
		http:      &http.Client{Timeout: timeout},
		now:       time.Now,
		logger:    logger.With(zap.String("service", "zoom")),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := max(cfg.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "zoom-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && ratio >= 0.6
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// isSuccessful counts only outages against the breaker; client errors such
// as a missing event are answers, not failures.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var terr *gateway.TransportError
	if errors.As(err, &terr) {
		return false
	}
	var herr *gateway.HTTPError
	if errors.As(err, &herr) {
		return herr.Status < 500 && herr.Status != http.StatusTooManyRequests
	}
	return true
}

// token signs a fresh short-lived bearer for one request.
func (c *Client) token() (string, error) {
	claims := jwt.MapClaims{
		"iss": c.apiKey,
		"exp": c.now().Add(c.tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.apiSecret))
}

// do sends one request and decodes a response with the expected status into
// out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, expected int, out any) error {
	op := method + " " + path

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &gateway.TransportError{Op: op, Err: err}
		}
	}

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		token, err := c.token()
		if err != nil {
			return nil, fmt.Errorf("failed to sign token: %w", err)
		}

		endpoint := c.baseURL + path
		if len(query) > 0 {
			endpoint += "?" + query.Encode()
		}
		req, err := gateway.NewRequest(ctx, method, endpoint, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		return gateway.Call(c.http, req, expected)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = &gateway.TransportError{Op: op, Err: err}
	}
	if err != nil {
		c.metrics.RecordRequest("zoom", outcome(err))
		return err
	}
	c.metrics.RecordRequest("zoom", "ok")

	return gateway.Decode(op, raw, out)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, gateway.ErrAuth):
		return "auth"
	case errors.Is(err, gateway.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, gateway.ErrNotFound):
		return "not_found"
	}
	var herr *gateway.HTTPError
	if errors.As(err, &herr) {
		return "http_error"
	}
	return "transport"
}
