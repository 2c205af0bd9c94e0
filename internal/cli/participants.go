package cli

import (
	"context"
	"errors"

	"github.com/leozw/zoom-dashboard/internal/gateway"
	"github.com/leozw/zoom-dashboard/internal/paginate"
	"github.com/leozw/zoom-dashboard/internal/zoom"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newParticipantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "participants",
		Short: "Print the participants of one past event",
		RunE:  runParticipants,
	}

	f := cmd.Flags()
	f.String("kind", "meetings", "meetings or webinars")
	f.String("uuid", "", "event uuid")
	f.Duration("interval", 0, "repeat every interval; zero prints once")
	_ = cmd.MarkFlagRequired("uuid")
	return cmd
}

func runParticipants(cmd *cobra.Command, _ []string) error {
	kind, _ := cmd.Flags().GetString("kind")
	eventUUID, _ := cmd.Flags().GetString("uuid")
	interval, _ := cmd.Flags().GetDuration("interval")

	if kind != string(zoom.Meetings) && kind != string(zoom.Webinars) {
		return &gateway.ValidationError{Field: "kind", Reason: "must be meetings or webinars"}
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	client, err := a.zoom()
	if err != nil {
		return err
	}

	ctx, cancel := a.signalContext()
	defer cancel()

	for {
		participants, err := paginate.CollectAll(ctx, func(ctx context.Context, token string) (paginate.Page[zoom.Participant], error) {
			return client.ListParticipants(ctx, zoom.Kind(kind), eventUUID, token)
		}, paginate.Options{
			Resource: "participants",
			Cooldown: a.cfg.Poller.ParticipantCooldown,
			Backoff:  a.cfg.Poller.Backoff,
			Logger:   a.logger,
			Metrics:  a.metrics,
		})
		switch {
		case errors.Is(err, paginate.ErrNoData):
			a.logger.Warn("No participants this round", zap.String("uuid", eventUUID), zap.Error(err))
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return err
		default:
			if err := printJSON(cmd.OutOrStdout(), participants); err != nil {
				return err
			}
		}

		if interval <= 0 {
			return nil
		}
		if err := paginate.Sleep(ctx, interval); err != nil {
			return nil
		}
	}
}
