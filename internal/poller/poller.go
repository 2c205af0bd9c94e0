// Package poller runs the metrics polling loop for one resource kind and
// mode.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leozw/zoom-dashboard/internal/archive"
	"github.com/leozw/zoom-dashboard/internal/gateway"
	"github.com/leozw/zoom-dashboard/internal/ledger"
	"github.com/leozw/zoom-dashboard/internal/metrics"
	"github.com/leozw/zoom-dashboard/internal/paginate"
	"github.com/leozw/zoom-dashboard/internal/zoom"
	"go.uber.org/zap"
)

type State int

const (
	AwaitingWindow State = iota
	Fetching
	Aggregating
	ClosedEventScan
	Sleeping
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingWindow:
		return "awaiting_window"
	case Fetching:
		return "fetching"
	case Aggregating:
		return "aggregating"
	case ClosedEventScan:
		return "closed_event_scan"
	case Sleeping:
		return "sleeping"
	case Done:
		return "done"
	}
	return "unknown"
}

// Source fetches pages of events and participants for one resource kind.
type Source interface {
	Kind() zoom.Kind
	Events(ctx context.Context, mq zoom.MetricsQuery, token string) (paginate.Page[zoom.Event], error)
	Participants(ctx context.Context, eventUUID, token string) (paginate.Page[zoom.Participant], error)
}

// ZoomSource binds a Zoom client to a resource kind.
type ZoomSource struct {
	Client *zoom.Client
	Of     zoom.Kind
}

func (s ZoomSource) Kind() zoom.Kind { return s.Of }

func (s ZoomSource) Events(ctx context.Context, mq zoom.MetricsQuery, token string) (paginate.Page[zoom.Event], error) {
	return s.Client.ListEvents(ctx, s.Of, mq, token)
}

func (s ZoomSource) Participants(ctx context.Context, eventUUID, token string) (paginate.Page[zoom.Participant], error) {
	return s.Client.ListParticipants(ctx, s.Of, eventUUID, token)
}

type Config struct {
	Mode      zoom.Mode
	Interval  time.Duration
	StartDate string
	// ClosedAfter is how long after its end an event's participants are
	// considered final.
	ClosedAfter   time.Duration
	RetentionDays int
	PageSize      int
	Burst         int
	// EventCooldown of zero selects the default for the kind.
	EventCooldown       time.Duration
	ParticipantCooldown time.Duration
	Backoff             time.Duration
}

// Sinks receive committed records. Participants is only used in past mode.
type Sinks struct {
	Events       archive.Sink
	Participants archive.Sink
}

// Ledgers remember archived ids. Both are only used in past mode.
type Ledgers struct {
	Events       *ledger.Ledger
	Participants *ledger.Ledger
}

type Poller struct {
	cfg     Config
	source  Source
	sinks   Sinks
	ledgers Ledgers
	state   State
	now     func() time.Time
	sleep   paginate.SleepFunc
	newID   func() string
	logger  *zap.Logger
	metrics *metrics.Collector
}

type Option func(*Poller)

func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

func WithSleeper(sleep paginate.SleepFunc) Option {
	return func(p *Poller) { p.sleep = sleep }
}

func WithIDs(newID func() string) Option {
	return func(p *Poller) { p.newID = newID }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(p *Poller) { p.metrics = m }
}

func New(cfg Config, source Source, sinks Sinks, ledgers Ledgers, logger *zap.Logger, opts ...Option) *Poller {
	if cfg.ClosedAfter <= 0 {
		cfg.ClosedAfter = 180 * time.Minute
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 2
	}
	if cfg.EventCooldown <= 0 {
		cfg.EventCooldown = paginate.MeetingCooldown
		if source.Kind() == zoom.Webinars {
			cfg.EventCooldown = paginate.WebinarCooldown
		}
	}
	if cfg.ParticipantCooldown <= 0 {
		cfg.ParticipantCooldown = paginate.ParticipantCooldown
	}
	if ledgers.Events == nil {
		ledgers.Events = ledger.New()
	}
	if ledgers.Participants == nil {
		ledgers.Participants = ledger.New()
	}

	p := &Poller{
		cfg:     cfg,
		source:  source,
		sinks:   sinks,
		ledgers: ledgers,
		state:   AwaitingWindow,
		now:     time.Now,
		sleep:   paginate.Sleep,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.With(
		zap.String("kind", string(source.Kind())),
		zap.String("mode", string(cfg.Mode)),
	)
	return p
}

func (p *Poller) State() State { return p.state }

// Stream is the archive stream the poller writes events to.
func (p *Poller) Stream() string {
	return string(p.source.Kind()) + "-" + string(p.cfg.Mode)
}

// ParticipantStream is the archive stream of participants in past mode.
func (p *Poller) ParticipantStream() string {
	return string(p.source.Kind()) + "-past-participants"
}

// Window returns the from/to dates polled at now. An explicit start date
// pins both ends. Live polling keeps looking at yesterday during the first
// three hours of the UTC day so late-running events are not lost.
func Window(mode zoom.Mode, startDate string, now time.Time) (from, to string) {
	if startDate != "" {
		return startDate, startDate
	}

	now = now.UTC()
	today := now.Format(time.DateOnly)
	yesterday := now.AddDate(0, 0, -1).Format(time.DateOnly)

	if mode == zoom.Past {
		return yesterday, today
	}
	if now.Hour()*60+now.Minute() < 180 {
		return yesterday, today
	}
	return today, today
}

// Run polls until ctx is cancelled, or once when the interval is zero.
// Only credential and validation failures end the loop with an error.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("Starting poller",
		zap.Duration("interval", p.cfg.Interval),
		zap.String("start_date", p.cfg.StartDate),
	)

	for {
		if err := p.RunCycle(ctx); err != nil {
			p.state = Done
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if p.cfg.Interval == 0 {
			p.state = Done
			return nil
		}

		p.state = Sleeping
		if err := p.sleep(ctx, p.cfg.Interval); err != nil {
			p.state = Done
			p.logger.Info("Stopping poller")
			return nil
		}
	}
}

// RunCycle performs one fetch and commit. Recoverable failures degrade the
// cycle to a logged no-op and return nil.
func (p *Poller) RunCycle(ctx context.Context) error {
	started := p.now()
	stream := p.Stream()

	p.state = AwaitingWindow
	from, to := Window(p.cfg.Mode, p.cfg.StartDate, started)

	p.state = Fetching
	mq := zoom.MetricsQuery{Mode: p.cfg.Mode, From: from, To: to, PageSize: p.cfg.PageSize}
	events, err := paginate.CollectAll(ctx, func(ctx context.Context, token string) (paginate.Page[zoom.Event], error) {
		return p.source.Events(ctx, mq, token)
	}, p.pacing(string(p.source.Kind()), p.cfg.EventCooldown))
	if err != nil {
		return p.degrade(stream, started, err, zap.String("from", from), zap.String("to", to))
	}
	p.metrics.RecordFetched(stream, len(events))

	p.state = Aggregating
	if p.cfg.Mode == zoom.Live {
		if err := p.commitLive(ctx, events); err != nil {
			return p.fail(stream, started, err)
		}
		p.finish(stream, started, "committed")
		return nil
	}

	// A pinned start date returns the same events every cycle, so nothing
	// may age out of the ledgers.
	if p.cfg.StartDate == "" {
		p.ledgers.Events.Prune(p.cfg.RetentionDays, started)
		p.ledgers.Participants.Prune(p.cfg.RetentionDays, started)
	}

	if err := p.commitPast(ctx, events); err != nil {
		return p.fail(stream, started, err)
	}

	p.state = ClosedEventScan
	if err := p.scanClosed(ctx, events); err != nil {
		return err
	}

	p.metrics.SetLedgerSize(stream, p.ledgers.Events.Len())
	p.metrics.SetLedgerSize(p.ParticipantStream(), p.ledgers.Participants.Len())
	p.finish(stream, started, "committed")
	return nil
}

func (p *Poller) pacing(resource string, cooldown time.Duration) paginate.Options {
	return paginate.Options{
		Resource: resource,
		Burst:    p.cfg.Burst,
		Cooldown: cooldown,
		Backoff:  p.cfg.Backoff,
		Sleep:    p.sleep,
		Logger:   p.logger,
		Metrics:  p.metrics,
	}
}

// degrade turns a recoverable fetch failure into an empty cycle.
func (p *Poller) degrade(stream string, started time.Time, err error, fields ...zap.Field) error {
	if gateway.IsFatal(err) || ctxErr(err) {
		return err
	}
	p.logger.Warn("No data this cycle", append(fields, zap.Error(err))...)
	p.finish(stream, started, "nodata")
	return nil
}

// fail reports an archive write failure. Nothing of the cycle was recorded
// in the ledger, so the records are retried next cycle.
func (p *Poller) fail(stream string, started time.Time, err error) error {
	if ctxErr(err) {
		return err
	}
	p.logger.Error("Failed to commit cycle", zap.String("stream", stream), zap.Error(err))
	p.finish(stream, started, "failed")
	return nil
}

func (p *Poller) finish(stream string, started time.Time, outcome string) {
	p.metrics.RecordCycle(stream, outcome, p.now().Sub(started).Seconds())
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (p *Poller) commitLive(ctx context.Context, events []zoom.Event) error {
	summary := Summarize(p.source.Kind(), events, p.newID(), p.now())
	if err := p.sinks.Events.Append(ctx, summary); err != nil {
		return fmt.Errorf("append live summary: %w", err)
	}
	p.metrics.SetLive(string(p.source.Kind()), summary.Events, summary.SumParticipants)
	p.logger.Info("Live summary",
		zap.Int("events", summary.Events),
		zap.Int("participants", summary.SumParticipants),
	)
	return nil
}

func (p *Poller) commitPast(ctx context.Context, events []zoom.Event) error {
	var (
		fresh []any
		ids   []zoom.Event
		seen  = make(map[string]bool)
	)
	for _, e := range events {
		if e.UUID == "" || seen[e.UUID] || p.ledgers.Events.Contains(e.UUID) {
			continue
		}
		seen[e.UUID] = true
		fresh = append(fresh, newEventRecord(p.source.Kind(), e))
		ids = append(ids, e)
	}
	p.metrics.RecordDuplicates(p.Stream(), len(events)-len(fresh))

	if len(fresh) == 0 {
		return nil
	}
	if err := p.sinks.Events.Append(ctx, fresh...); err != nil {
		return fmt.Errorf("append events: %w", err)
	}
	seenAt := p.now()
	for _, e := range ids {
		p.ledgers.Events.Add(e.UUID, seenAt)
	}
	p.logger.Info("Archived events", zap.Int("count", len(fresh)))
	return nil
}

// scanClosed archives the participants of events that ended long enough
// ago, once per event.
func (p *Poller) scanClosed(ctx context.Context, events []zoom.Event) error {
	cutoff := p.now().Add(-p.cfg.ClosedAfter)
	stream := p.ParticipantStream()

	for _, e := range events {
		if e.UUID == "" || p.ledgers.Participants.Contains(e.UUID) {
			continue
		}
		end, err := zoom.ParseTime(e.EndTime)
		if err != nil || end.After(cutoff) {
			continue
		}

		participants, err := paginate.CollectAll(ctx, func(ctx context.Context, token string) (paginate.Page[zoom.Participant], error) {
			return p.source.Participants(ctx, e.UUID, token)
		}, p.pacing("participants", p.cfg.ParticipantCooldown))
		if err != nil {
			if gateway.IsFatal(err) || ctxErr(err) {
				return err
			}
			p.logger.Warn("Skipping participants this cycle", zap.String("uuid", e.UUID), zap.Error(err))
			continue
		}
		p.metrics.RecordFetched(stream, len(participants))

		records := make([]any, 0, len(participants))
		for _, part := range participants {
			records = append(records, newParticipantRecord(p.source.Kind(), e, part))
		}
		if err := p.sinks.Participants.Append(ctx, records...); err != nil {
			if ctxErr(err) {
				return err
			}
			p.logger.Error("Failed to archive participants", zap.String("uuid", e.UUID), zap.Error(err))
			continue
		}
		p.ledgers.Participants.Add(e.UUID, p.now())
	}
	return nil
}
