// Package licenses keeps webinar-capacity licences in line with actual use:
// owners of the large tier without an upcoming large webinar are moved to the
// small tier, and small-tier owners who stopped running webinars lose it.
package licenses

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leozw/zoom-dashboard/internal/gateway"
	"github.com/leozw/zoom-dashboard/internal/identity"
	"github.com/leozw/zoom-dashboard/internal/metrics"
	"github.com/leozw/zoom-dashboard/internal/paginate"
	"github.com/leozw/zoom-dashboard/internal/zoom"
	"go.uber.org/zap"
)

// Zoom is the part of the Zoom gateway the job uses.
type Zoom interface {
	ListEvents(ctx context.Context, kind zoom.Kind, mq zoom.MetricsQuery, token string) (paginate.Page[zoom.Event], error)
	ListUserWebinars(ctx context.Context, userID string, token string) (paginate.Page[zoom.ScheduledWebinar], error)
	GetWebinar(ctx context.Context, webinarID int64) (*zoom.WebinarDetail, error)
	SetWebinarCapacity(ctx context.Context, userID string, capacity int) error
}

// Directory is the part of the identity gateway the job uses.
type Directory interface {
	GroupID(ctx context.Context, name string) (string, error)
	IdentityID(ctx context.Context, account string) (string, error)
	Members(ctx context.Context, groupID string, fields ...string) ([]identity.Member, error)
	AddMember(ctx context.Context, groupID, identityID string) error
	RemoveMember(ctx context.Context, groupID, identityID string) error
}

type Config struct {
	LowerGroup      string
	UpperGroup      string
	LowerCapacity   int
	UpperCapacity   int
	InactivityDays  int
	Months          int
	AccountSuffix   string
	UsePrimaryEmail bool
	Marker          string
	DryRun          bool
	// Backoff is the pause after a failed provider listing; zero selects
	// the default minute.
	Backoff time.Duration
}

// Report lists the accounts touched by a run.
type Report struct {
	Kept      []string `json:"kept"`
	Demoted   []string `json:"demoted"`
	Removed   []string `json:"removed"`
	Unchanged []string `json:"unchanged"`
	Skipped   []string `json:"skipped"`
}

type Job struct {
	cfg     Config
	zoom    Zoom
	dir     Directory
	now     func() time.Time
	sleep   paginate.SleepFunc
	logger  *zap.Logger
	metrics *metrics.Collector
}

type Option func(*Job)

func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

func WithSleeper(sleep paginate.SleepFunc) Option {
	return func(j *Job) { j.sleep = sleep }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(j *Job) { j.metrics = m }
}

func NewJob(cfg Config, z Zoom, dir Directory, logger *zap.Logger, opts ...Option) *Job {
	if cfg.LowerCapacity <= 0 {
		cfg.LowerCapacity = 500
	}
	if cfg.UpperCapacity <= 0 {
		cfg.UpperCapacity = 1000
	}
	if cfg.Marker == "" {
		cfg.Marker = "1000attendees"
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = paginate.DefaultBackoff
	}
	j := &Job{
		cfg:    cfg,
		zoom:   z,
		dir:    dir,
		now:    time.Now,
		sleep:  paginate.Sleep,
		logger: logger.With(zap.String("job", "licenses")),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Account is the Zoom account name of a group member.
func (j *Job) Account(m identity.Member) string {
	if j.cfg.UsePrimaryEmail {
		return m.PrimaryAccountEmail
	}
	if m.UPN == "" {
		return ""
	}
	return m.UPN + "@" + j.cfg.AccountSuffix
}

// membership is the job's view of a group: the snapshot read at the start,
// updated with the job's own writes.
type membership struct {
	id      string
	name    string
	order   []identity.Member
	members map[string]bool
}

func (m *membership) has(upn string) bool { return m.members[upn] }

func (m *membership) add(member identity.Member) {
	if !m.members[member.UPN] {
		m.members[member.UPN] = true
		m.order = append(m.order, member)
	}
}

func (m *membership) remove(upn string) { delete(m.members, upn) }

// current returns the members still in the view, in snapshot order.
func (m *membership) current() []identity.Member {
	var out []identity.Member
	for _, member := range m.order {
		if m.members[member.UPN] {
			out = append(out, member)
		}
	}
	return out
}

func (j *Job) load(ctx context.Context, name string) (*membership, error) {
	id, err := j.dir.GroupID(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolve group %s: %w", name, err)
	}
	members, err := j.dir.Members(ctx, id, "upn", "primaryAccountEmail")
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", name, err)
	}

	m := &membership{id: id, name: name, members: make(map[string]bool)}
	for _, member := range members {
		if member.UPN == "" {
			continue
		}
		m.add(member)
	}
	j.metrics.SetGroupMembers(name, len(m.order))
	j.logger.Info("Loaded group", zap.String("group", name), zap.String("group_id", id), zap.Int("members", len(m.order)))
	return m, nil
}

// Run reconciles both tiers once. A second run right after a successful one
// makes no changes.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	upper, err := j.load(ctx, j.cfg.UpperGroup)
	if err != nil {
		return nil, err
	}
	lower, err := j.load(ctx, j.cfg.LowerGroup)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	if err := j.demote(ctx, upper, lower, report); err != nil {
		return report, err
	}
	if err := j.expire(ctx, lower, report); err != nil {
		return report, err
	}

	j.logger.Info("Reconciliation finished",
		zap.Int("kept", len(report.Kept)),
		zap.Int("demoted", len(report.Demoted)),
		zap.Int("removed", len(report.Removed)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Bool("dry_run", j.cfg.DryRun),
	)
	return report, nil
}

func (j *Job) demote(ctx context.Context, upper, lower *membership, report *Report) error {
	for _, member := range upper.current() {
		account := j.Account(member)
		logger := j.logger.With(zap.String("upn", member.UPN), zap.String("account", account))
		if account == "" {
			logger.Warn("Member has no account name, skipping")
			report.Skipped = append(report.Skipped, member.UPN)
			continue
		}

		upcoming, err := j.HasUpcomingLargeWebinar(ctx, account)
		if err != nil {
			if errors.Is(err, gateway.ErrAuth) || ctx.Err() != nil {
				return err
			}
			logger.Warn("Could not check upcoming webinars, treating as none", zap.Error(err))
		}
		if upcoming {
			report.Kept = append(report.Kept, account)
			continue
		}

		identityID, err := j.dir.IdentityID(ctx, member.UPN)
		if err != nil {
			if gateway.IsFatal(err) {
				return err
			}
			logger.Warn("Could not resolve identity, skipping", zap.Error(err))
			report.Skipped = append(report.Skipped, account)
			continue
		}

		if err := j.mutate(ctx, "remove_upper", func() error {
			return j.dir.RemoveMember(ctx, upper.id, identityID)
		}); err != nil {
			if gateway.IsFatal(err) {
				return err
			}
			logger.Warn("Could not remove from upper tier", zap.String("group", upper.name), zap.Error(err))
			report.Skipped = append(report.Skipped, account)
			continue
		}
		upper.remove(member.UPN)

		if lower.has(member.UPN) {
			logger.Debug("Already in lower tier", zap.String("group", lower.name))
		} else if err := j.mutate(ctx, "add_lower", func() error {
			return j.dir.AddMember(ctx, lower.id, identityID)
		}); err != nil {
			if gateway.IsFatal(err) {
				return err
			}
			logger.Warn("Could not add to lower tier", zap.String("group", lower.name), zap.Error(err))
		} else {
			lower.add(member)
		}

		if err := j.setCapacity(ctx, account, j.cfg.LowerCapacity); err != nil {
			if gateway.IsFatal(err) {
				return err
			}
			logger.Warn("Could not lower webinar capacity", zap.Error(err))
		}

		logger.Info("Demoted to lower tier")
		report.Demoted = append(report.Demoted, account)
	}
	return nil
}

func (j *Job) expire(ctx context.Context, lower *membership, report *Report) error {
	last, err := j.LastWebinars(ctx, j.cfg.Months)
	if err != nil {
		if gateway.IsFatal(err) || ctx.Err() != nil {
			return err
		}
		// Incomplete history could make active hosts look idle
		j.logger.Warn("Webinar history incomplete, skipping inactivity check", zap.Error(err))
		return nil
	}

	now := j.now()
	for _, member := range lower.current() {
		account := j.Account(member)
		logger := j.logger.With(zap.String("upn", member.UPN), zap.String("account", account))

		lastEnd, ok := last[strings.ToLower(account)]
		if account == "" || !ok {
			report.Unchanged = append(report.Unchanged, member.UPN)
			continue
		}
		idleDays := int(now.Sub(lastEnd).Hours() / 24)
		if idleDays <= j.cfg.InactivityDays {
			report.Unchanged = append(report.Unchanged, account)
			continue
		}

		identityID, err := j.dir.IdentityID(ctx, member.UPN)
		if err != nil {
			if gateway.IsFatal(err) {
				return err
			}
			logger.Warn("Could not resolve identity, skipping", zap.Error(err))
			report.Skipped = append(report.Skipped, account)
			continue
		}
		if err := j.mutate(ctx, "remove_lower", func() error {
			return j.dir.RemoveMember(ctx, lower.id, identityID)
		}); err != nil {
			if gateway.IsFatal(err) {
				return err
			}
			logger.Warn("Could not remove from lower tier", zap.Error(err))
			report.Skipped = append(report.Skipped, account)
			continue
		}
		lower.remove(member.UPN)

		if err := j.setCapacity(ctx, account, 0); err != nil {
			if gateway.IsFatal(err) {
				return err
			}
			logger.Warn("Could not disable webinar feature", zap.Error(err))
		}

		logger.Info("Removed inactive licence", zap.Int("idle_days", idleDays))
		report.Removed = append(report.Removed, account)
	}
	return nil
}

// mutate runs a membership change unless the job is a dry run.
func (j *Job) mutate(_ context.Context, action string, fn func() error) error {
	if j.cfg.DryRun {
		j.logger.Info("Dry run, not applying", zap.String("action", action))
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	j.metrics.RecordLicenseAction(action)
	return nil
}

func (j *Job) setCapacity(ctx context.Context, account string, capacity int) error {
	return j.mutate(ctx, "set_capacity", func() error {
		return SetCapacity(ctx, j.zoom, account, capacity)
	})
}

// SetCapacity enables webinars with capacity 500 or 1000 and disables the
// feature for any other value.
func SetCapacity(ctx context.Context, z Zoom, account string, capacity int) error {
	if capacity != 500 && capacity != 1000 {
		capacity = 0
	}
	return z.SetWebinarCapacity(ctx, account, capacity)
}
