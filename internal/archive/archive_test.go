package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/leozw/zoom-dashboard/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMirror struct {
	batches map[string][][]byte
	err     error
}

func (m *fakeMirror) Name() string { return "fake" }

func (m *fakeMirror) Publish(_ context.Context, stream string, lines [][]byte) error {
	if m.err != nil {
		return m.err
	}
	if m.batches == nil {
		m.batches = make(map[string][][]byte)
	}
	m.batches[stream] = append(m.batches[stream], lines...)
	return nil
}

func (m *fakeMirror) Close() error { return nil }

type record struct {
	UUID      string `json:"uuid"`
	StartTime string `json:"start_time"`
}

func TestAppendWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	mirror := &fakeMirror{}
	s, err := Open(MeetingsPast, Options{Dir: dir}, mirror)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Append(ctx,
		record{UUID: "a", StartTime: "2024-03-10T08:00:00Z"},
		record{UUID: "b", StartTime: "2024-03-10T09:00:00Z"},
	))
	require.NoError(t, s.Append(ctx))

	data, err := os.ReadFile(filepath.Join(dir, "zoom-meetings-past.log"))
	require.NoError(t, err)
	assert.Equal(t,
		`{"uuid":"a","start_time":"2024-03-10T08:00:00Z"}`+"\n"+
			`{"uuid":"b","start_time":"2024-03-10T09:00:00Z"}`+"\n",
		string(data))
	assert.Len(t, mirror.batches[MeetingsPast], 2)

	latest, err := Latest(dir, MeetingsPast)
	require.NoError(t, err)
	assert.JSONEq(t, `{"uuid":"b","start_time":"2024-03-10T09:00:00Z"}`, string(latest))
}

func TestAppendRotatesOnDayChange(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2024, 3, 9, 23, 50, 0, 0, time.UTC)
	s, err := Open(MeetingsPast, Options{Dir: dir, Now: func() time.Time { return now }})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Append(ctx, record{UUID: "a", StartTime: "2024-03-09T08:00:00Z"}))
	now = now.Add(20 * time.Minute)
	require.NoError(t, s.Append(ctx, record{UUID: "b", StartTime: "2024-03-10T00:05:00Z"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var rotated int
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "zoom-meetings-past-") {
			rotated++
		}
	}
	assert.Equal(t, 1, rotated)

	current, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(current), `"a"`)

	// the ledger sees both the current file and the rotation
	l, err := ledger.Load(dir, Prefix(MeetingsPast), 2, time.Now())
	require.NoError(t, err)
	assert.True(t, l.Contains("a"))
	assert.True(t, l.Contains("b"))
}

func TestMirrorFailureDoesNotFailAppend(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(WebinarsLive, Options{Dir: dir}, &fakeMirror{err: errors.New("broker down")})
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.Append(context.Background(), map[string]any{"uuid": "x", "events": 1}))
}

func TestLatestEmpty(t *testing.T) {
	_, err := Latest(t.TempDir(), MeetingsLive)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestKnownStream(t *testing.T) {
	assert.True(t, KnownStream("webinars-past-participants"))
	assert.False(t, KnownStream("../etc/passwd"))
}
