package licenses

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/leozw/zoom-dashboard/internal/gateway"
	"github.com/leozw/zoom-dashboard/internal/paginate"
	"github.com/leozw/zoom-dashboard/internal/zoom"
	"go.uber.org/zap"
)

const bucket = 30 * 24 * time.Hour

func (j *Job) marked(w zoom.ScheduledWebinar) bool {
	return strings.Contains(w.Agenda, j.cfg.Marker) || strings.Contains(w.Topic, j.cfg.Marker)
}

// HasUpcomingLargeWebinar reports whether account has a future webinar
// marked for the large tier: a single webinar starting later, or a recurring
// one with a future occurrence. When nothing qualifies the first failure met
// while checking is returned alongside false.
func (j *Job) HasUpcomingLargeWebinar(ctx context.Context, account string) (bool, error) {
	webinars, err := paginate.CollectAll(ctx, func(ctx context.Context, token string) (paginate.Page[zoom.ScheduledWebinar], error) {
		return j.zoom.ListUserWebinars(ctx, account, token)
	}, paginate.Options{
		Resource: "user-webinars",
		Cooldown: paginate.ParticipantCooldown,
		Backoff:  j.cfg.Backoff,
		Sleep:    j.sleep,
		Logger:   j.logger,
		Metrics:  j.metrics,
	})
	if err != nil {
		return false, err
	}

	now := j.now()
	var firstErr error
	for _, w := range webinars {
		if !j.marked(w) {
			continue
		}
		switch w.Type {
		case zoom.WebinarScheduled:
			if start, err := zoom.ParseTime(w.StartTime); err == nil && start.After(now) {
				return true, nil
			}
		case zoom.WebinarRecurringFixedTime:
			detail, err := j.zoom.GetWebinar(ctx, w.ID)
			if err != nil {
				if errors.Is(err, gateway.ErrAuth) {
					return false, err
				}
				j.logger.Warn("Could not fetch webinar occurrences",
					zap.String("account", account),
					zap.Int64("webinar_id", w.ID),
					zap.Error(err),
				)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			for _, oc := range detail.Occurrences {
				if start, err := zoom.ParseTime(oc.StartTime); err == nil && start.After(now) {
					return true, nil
				}
			}
		}
	}
	return false, firstErr
}

// LastWebinars returns the end of the most recent completed webinar per host
// email (lower-cased) over the last months, read in 30-day windows.
func (j *Job) LastWebinars(ctx context.Context, months int) (map[string]time.Time, error) {
	last := make(map[string]time.Time)
	today := j.now().UTC().Truncate(24 * time.Hour)

	for interval := months; interval > 0; interval-- {
		mq := zoom.MetricsQuery{
			Mode: zoom.Past,
			From: today.Add(-time.Duration(interval) * bucket).Format(time.DateOnly),
			To:   today.Add(-time.Duration(interval-1) * bucket).Format(time.DateOnly),
		}

		events, err := paginate.CollectAll(ctx, func(ctx context.Context, token string) (paginate.Page[zoom.Event], error) {
			return j.zoom.ListEvents(ctx, zoom.Webinars, mq, token)
		}, paginate.Options{
			Resource: "webinars",
			Cooldown: paginate.WebinarCooldown,
			Backoff:  j.cfg.Backoff,
			Sleep:    j.sleep,
			Logger:   j.logger,
			Metrics:  j.metrics,
		})
		if err != nil {
			return nil, err
		}
		j.logger.Info("Read webinar history",
			zap.String("from", mq.From),
			zap.String("to", mq.To),
			zap.Int("webinars", len(events)),
		)

		for _, e := range events {
			if e.Email == "" || e.EndTime == "" {
				continue
			}
			end, err := zoom.ParseTime(e.EndTime)
			if err != nil {
				continue
			}
			key := strings.ToLower(e.Email)
			if end.After(last[key]) {
				last[key] = end
			}
		}
	}
	return last, nil
}
