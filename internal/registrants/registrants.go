// Package registrants bulk-registers attendees to a meeting and snapshots the
// registrant list.
package registrants

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leozw/zoom-dashboard/internal/archive"
	"github.com/leozw/zoom-dashboard/internal/gateway"
	"github.com/leozw/zoom-dashboard/internal/metrics"
	"github.com/leozw/zoom-dashboard/internal/paginate"
	"github.com/leozw/zoom-dashboard/internal/zoom"
	"go.uber.org/zap"
)

type Zoom interface {
	AddRegistrant(ctx context.Context, meetingID string, r zoom.Registrant) (*zoom.RegistrantResult, error)
	ListRegistrants(ctx context.Context, meetingID string, token string) (paginate.Page[zoom.Registrant], error)
}

// ParseCSV reads rows of the form "<any>,first name,last name,email". Every
// registrant is created without automatic approval.
func ParseCSV(r io.Reader) ([]zoom.Registrant, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var out []zoom.Registrant
	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		if len(row) < 4 {
			return nil, fmt.Errorf("line %d: expected 4 columns, got %d", line, len(row))
		}

		approve := false
		reg := zoom.Registrant{
			FirstName:   strings.TrimSpace(row[1]),
			LastName:    strings.TrimSpace(row[2]),
			Email:       strings.TrimSpace(row[3]),
			AutoApprove: &approve,
		}
		for field, value := range map[string]string{"email": reg.Email, "first_name": reg.FirstName} {
			if err := gateway.Require(field, value); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		out = append(out, reg)
	}
}

// Added is the archived outcome of one registration.
type Added struct {
	UUID         string `json:"uuid"`
	MeetingID    string `json:"meeting_id"`
	Email        string `json:"email"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	RegistrantID string `json:"registrant_id,omitempty"`
	JoinURL      string `json:"join_url,omitempty"`
	StartTime    string `json:"start_time"`
}

// Snapshot is the archived registrant list of a meeting.
type Snapshot struct {
	UUID        string            `json:"uuid"`
	MeetingID   string            `json:"meeting_id"`
	Count       int               `json:"count"`
	Registrants []zoom.Registrant `json:"registrants"`
	StartTime   string            `json:"start_time"`
}

type Service struct {
	zoom    Zoom
	sink    archive.Sink
	now     func() time.Time
	sleep   paginate.SleepFunc
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewService(z Zoom, sink archive.Sink, logger *zap.Logger, m *metrics.Collector) *Service {
	return &Service{
		zoom:    z,
		sink:    sink,
		now:     time.Now,
		sleep:   paginate.Sleep,
		logger:  logger.With(zap.String("service", "registrants")),
		metrics: m,
	}
}

// AddAll registers every attendee in order. Registrations that fail for a
// recoverable reason are logged and skipped; credential failures stop the
// run. In dry mode nothing is sent or archived.
func (s *Service) AddAll(ctx context.Context, meetingID string, regs []zoom.Registrant, dry bool) ([]Added, error) {
	if err := gateway.Require("meeting_id", meetingID); err != nil {
		return nil, err
	}

	var added []Added
	for _, reg := range regs {
		logger := s.logger.With(zap.String("meeting_id", meetingID), zap.String("email", reg.Email))
		if dry {
			logger.Info("Dry run, not registering", zap.String("last_name", reg.LastName))
			continue
		}

		res, err := s.zoom.AddRegistrant(ctx, meetingID, reg)
		if err != nil {
			if gateway.IsFatal(err) || ctx.Err() != nil {
				return added, err
			}
			logger.Warn("Could not register attendee", zap.Error(err))
			continue
		}

		rec := Added{
			UUID:         res.RegistrantID,
			MeetingID:    meetingID,
			Email:        reg.Email,
			FirstName:    reg.FirstName,
			LastName:     reg.LastName,
			RegistrantID: res.RegistrantID,
			JoinURL:      res.JoinURL,
			StartTime:    s.now().UTC().Format(time.RFC3339),
		}
		if rec.UUID == "" {
			rec.UUID = uuid.NewString()
		}
		if err := s.sink.Append(ctx, rec); err != nil {
			return added, fmt.Errorf("archive registrant %s: %w", reg.Email, err)
		}
		logger.Info("Registered attendee", zap.String("registrant_id", res.RegistrantID))
		added = append(added, rec)
	}
	return added, nil
}

// List fetches every registrant of a meeting and archives them as one
// snapshot line.
func (s *Service) List(ctx context.Context, meetingID string) (*Snapshot, error) {
	regs, err := paginate.CollectAll(ctx, func(ctx context.Context, token string) (paginate.Page[zoom.Registrant], error) {
		return s.zoom.ListRegistrants(ctx, meetingID, token)
	}, paginate.Options{
		Resource: "registrants",
		Cooldown: paginate.ParticipantCooldown,
		Backoff:  paginate.DefaultBackoff,
		Sleep:    s.sleep,
		Logger:   s.logger,
		Metrics:  s.metrics,
	})
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		UUID:        uuid.NewString(),
		MeetingID:   meetingID,
		Count:       len(regs),
		Registrants: regs,
		StartTime:   s.now().UTC().Format(time.RFC3339),
	}
	if err := s.sink.Append(ctx, snap); err != nil {
		return nil, fmt.Errorf("archive registrant list: %w", err)
	}
	return snap, nil
}
