// Package paginate walks token-paginated provider listings with burst
// cooldowns and whole-collection backoff.
package paginate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leozw/zoom-dashboard/internal/gateway"
	"github.com/leozw/zoom-dashboard/internal/metrics"
	"go.uber.org/zap"
)

const (
	DefaultBurst        = 9
	DefaultBackoff      = 60 * time.Second
	MeetingCooldown     = 60 * time.Second
	WebinarCooldown     = 120 * time.Second
	ParticipantCooldown = 60 * time.Second
)

// ErrNoData means the collection was abandoned and the caller should treat
// this cycle as empty. It wraps the failure that caused it.
var ErrNoData = errors.New("no data this cycle")

// Page is one response of a paginated listing.
type Page[T any] struct {
	Items     []T
	NextToken string
}

// FetchFunc requests the page identified by token; the empty token is the
// first page.
type FetchFunc[T any] func(ctx context.Context, token string) (Page[T], error)

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Options struct {
	// Resource names the listing in logs and metrics.
	Resource string
	// Burst is the number of calls after which Cooldown is taken.
	Burst    int
	Cooldown time.Duration
	// Backoff is the pause after a recoverable failure; zero means none.
	Backoff time.Duration
	Sleep   SleepFunc
	Logger  *zap.Logger
	Metrics *metrics.Collector
}

func (o Options) withDefaults() Options {
	if o.Burst <= 0 {
		o.Burst = DefaultBurst
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	if o.Sleep == nil {
		o.Sleep = Sleep
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// CollectAll follows next tokens until the provider returns an empty one and
// returns every item in page order. Credential and validation failures are
// returned as they are. Any other failure abandons the collection, waits
// Backoff and returns an error wrapping ErrNoData; partial results are never
// returned.
func CollectAll[T any](ctx context.Context, fetch FetchFunc[T], opts Options) ([]T, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With(zap.String("resource", opts.Resource))

	var (
		items []T
		token string
		calls int
	)
	for {
		if calls > 0 && calls%opts.Burst == 0 && opts.Cooldown > 0 {
			logger.Info("Pausing after request burst",
				zap.Int("calls", calls),
				zap.Duration("cooldown", opts.Cooldown),
			)
			opts.Metrics.RecordCooldown(opts.Resource)
			if err := opts.Sleep(ctx, opts.Cooldown); err != nil {
				return nil, err
			}
		}

		page, err := fetch(ctx, token)
		calls++
		if err != nil {
			return nil, abandon(ctx, err, opts, logger)
		}

		items = append(items, page.Items...)
		if page.NextToken == "" {
			return items, nil
		}
		token = page.NextToken
	}
}

func abandon(ctx context.Context, err error, opts Options, logger *zap.Logger) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if gateway.IsFatal(err) {
		return err
	}

	reason := "transport"
	if errors.Is(err, gateway.ErrRateLimited) {
		reason = "rate_limited"
	}
	opts.Metrics.RecordBackoff(opts.Resource, reason)
	logger.Warn("Abandoning collection",
		zap.String("reason", reason),
		zap.Duration("backoff", opts.Backoff),
		zap.Error(err),
	)

	if err := opts.Sleep(ctx, opts.Backoff); err != nil {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNoData, err)
}

// Sleep blocks for d or until ctx is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
