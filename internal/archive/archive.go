// Package archive appends JSON-line records to daily-rotated files and fans
// each committed batch out to optional mirrors.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/leozw/zoom-dashboard/internal/metrics"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	MeetingsLive             = "meetings-live"
	MeetingsPast             = "meetings-past"
	MeetingsPastParticipants = "meetings-past-participants"
	WebinarsLive             = "webinars-live"
	WebinarsPast             = "webinars-past"
	WebinarsPastParticipants = "webinars-past-participants"
	MeetingsRegistrants      = "meetings-registrants"
)

// Streams lists every archive stream the tools write.
var Streams = []string{
	MeetingsLive,
	MeetingsPast,
	MeetingsPastParticipants,
	WebinarsLive,
	WebinarsPast,
	WebinarsPastParticipants,
	MeetingsRegistrants,
}

func KnownStream(name string) bool {
	for _, s := range Streams {
		if s == name {
			return true
		}
	}
	return false
}

// Prefix is the file stem of a stream; rotated files append a timestamp.
func Prefix(stream string) string {
	return "zoom-" + stream
}

func FileName(stream string) string {
	return Prefix(stream) + ".log"
}

// Sink receives the records of one committed batch.
type Sink interface {
	Append(ctx context.Context, records ...any) error
}

// Mirror receives a copy of every batch written to a stream. Mirror failures
// never fail the batch.
type Mirror interface {
	Name() string
	Publish(ctx context.Context, stream string, lines [][]byte) error
	Close() error
}

type Options struct {
	Dir        string
	MaxBackups int
	MaxSizeMB  int
	Now        func() time.Time
	Logger     *zap.Logger
	Metrics    *metrics.Collector
}

// Stream is the single writer of one archive file.
type Stream struct {
	mu      sync.Mutex
	name    string
	path    string
	out     *lumberjack.Logger
	day     string
	now     func() time.Time
	mirrors []Mirror
	logger  *zap.Logger
	metrics *metrics.Collector
}

func Open(stream string, opts Options, mirrors ...Mirror) (*Stream, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir: %w", err)
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 20
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 1024
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	path := filepath.Join(opts.Dir, FileName(stream))
	s := &Stream{
		name: stream,
		path: path,
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		},
		now:     opts.Now,
		mirrors: mirrors,
		logger:  opts.Logger.With(zap.String("stream", stream)),
		metrics: opts.Metrics,
	}

	// An existing file belongs to the day it was last written
	if info, err := os.Stat(path); err == nil {
		s.day = dayOf(info.ModTime())
	}
	return s, nil
}

func dayOf(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func (s *Stream) Name() string { return s.name }

func (s *Stream) Path() string { return s.path }

// Append encodes records as one JSON object per line and writes them with a
// single write. The file is rotated first when the UTC day has changed.
func (s *Stream) Append(ctx context.Context, records ...any) error {
	if len(records) == 0 {
		return nil
	}

	lines, err := Encode(records...)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	today := dayOf(s.now())
	if s.day != "" && s.day != today {
		if err := s.out.Rotate(); err != nil {
			return fmt.Errorf("failed to rotate %s: %w", s.path, err)
		}
	}
	s.day = today

	if _, err := s.out.Write(bytes.Join(append(lines, nil), []byte("\n"))); err != nil {
		return fmt.Errorf("failed to append to %s: %w", s.path, err)
	}
	s.metrics.RecordArchived(s.name, len(lines))

	for _, m := range s.mirrors {
		if err := m.Publish(ctx, s.name, lines); err != nil {
			s.metrics.RecordMirrorFailure(m.Name())
			s.logger.Warn("Archive mirror failed",
				zap.String("mirror", m.Name()),
				zap.Int("records", len(lines)),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}

// Encode renders each record as a single JSON line without the newline.
func Encode(records ...any) ([][]byte, error) {
	lines := make([][]byte, 0, len(records))
	for i, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("failed to encode record %d: %w", i, err)
		}
		lines = append(lines, b)
	}
	return lines, nil
}
