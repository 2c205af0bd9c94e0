package cli

import (
	"time"

	"github.com/leozw/zoom-dashboard/internal/archive"
	"github.com/leozw/zoom-dashboard/internal/ledger"
	"github.com/leozw/zoom-dashboard/internal/poller"
	"github.com/leozw/zoom-dashboard/internal/zoom"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Archive live summaries or past events and participants",
		Long: "Poll the Zoom dashboard metrics for meetings or webinars. Live mode appends one summary per cycle; " +
			"past mode archives each finished event once and its participants once the event is closed.",
		RunE: runPoll,
	}

	f := cmd.Flags()
	f.String("kind", "meetings", "meetings or webinars")
	f.String("mode", "live", "live or past")
	f.Duration("interval", 0, "repeat every interval; zero runs a single cycle")
	f.String("start-date", "", "first day of the past window (YYYY-MM-DD)")
	return cmd
}

func runPoll(cmd *cobra.Command, _ []string) error {
	if err := bindFlags(cmd, map[string]string{
		"poller.kind":      "kind",
		"poller.mode":      "mode",
		"poller.interval":  "interval",
		"poller.startdate": "start-date",
	}); err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	pc := a.cfg.Poller
	if err := pc.Validate(); err != nil {
		return err
	}
	client, err := a.zoom()
	if err != nil {
		return err
	}

	kind, mode := zoom.Kind(pc.Kind), zoom.Mode(pc.Mode)
	a.openMirrors()

	cfg := poller.Config{
		Mode:                mode,
		Interval:            pc.Interval,
		StartDate:           pc.StartDate,
		ClosedAfter:         pc.ClosedAfter,
		RetentionDays:       a.cfg.Archive.RetentionDays,
		PageSize:            a.cfg.Zoom.PageSize,
		Burst:               pc.Burst,
		ParticipantCooldown: pc.ParticipantCooldown,
		Backoff:             pc.Backoff,
	}
	cfg.EventCooldown = pc.MeetingCooldown
	if kind == zoom.Webinars {
		cfg.EventCooldown = pc.WebinarCooldown
	}

	var (
		sinks   poller.Sinks
		ledgers poller.Ledgers
	)
	eventStream := string(kind) + "-" + string(mode)
	if sinks.Events, err = a.openStream(eventStream); err != nil {
		return err
	}
	if mode == zoom.Past {
		participantStream := string(kind) + "-past-participants"
		if sinks.Participants, err = a.openStream(participantStream); err != nil {
			return err
		}
		now := time.Now()
		if ledgers.Events, err = ledger.Load(a.cfg.Archive.Dir, archive.Prefix(eventStream), cfg.RetentionDays, now); err != nil {
			return err
		}
		if ledgers.Participants, err = ledger.Load(a.cfg.Archive.Dir, archive.Prefix(participantStream), cfg.RetentionDays, now); err != nil {
			return err
		}
		a.logger.Info("Ledgers rebuilt",
			zap.Int("events", ledgers.Events.Len()),
			zap.Int("participants", ledgers.Participants.Len()),
		)
	}

	ctx, cancel := a.signalContext()
	defer cancel()
	stop := a.startMetrics(ctx)
	defer stop()

	p := poller.New(cfg, poller.ZoomSource{Client: client, Of: kind}, sinks, ledgers, a.logger,
		poller.WithMetrics(a.metrics))
	return p.Run(ctx)
}
