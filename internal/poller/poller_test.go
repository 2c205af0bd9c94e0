package poller

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/leozw/zoom-dashboard/internal/gateway"
	"github.com/leozw/zoom-dashboard/internal/ledger"
	"github.com/leozw/zoom-dashboard/internal/paginate"
	"github.com/leozw/zoom-dashboard/internal/zoom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	kind         zoom.Kind
	events       []zoom.Event
	eventsErr    error
	participants map[string][]zoom.Participant
	partErr      error
	queries      []zoom.MetricsQuery
	partCalls    map[string]int
}

func (f *fakeSource) Kind() zoom.Kind { return f.kind }

func (f *fakeSource) Events(_ context.Context, mq zoom.MetricsQuery, _ string) (paginate.Page[zoom.Event], error) {
	f.queries = append(f.queries, mq)
	if f.eventsErr != nil {
		return paginate.Page[zoom.Event]{}, f.eventsErr
	}
	return paginate.Page[zoom.Event]{Items: f.events}, nil
}

func (f *fakeSource) Participants(_ context.Context, eventUUID, _ string) (paginate.Page[zoom.Participant], error) {
	if f.partCalls == nil {
		f.partCalls = make(map[string]int)
	}
	f.partCalls[eventUUID]++
	if f.partErr != nil {
		return paginate.Page[zoom.Participant]{}, f.partErr
	}
	return paginate.Page[zoom.Participant]{Items: f.participants[eventUUID]}, nil
}

type memorySink struct {
	records []any
	err     error
}

func (m *memorySink) Append(_ context.Context, records ...any) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, records...)
	return nil
}

type sleeper struct {
	pauses []time.Duration
	cancel context.CancelFunc
	// cancelOn stops the run when a pause of this length is requested
	cancelOn time.Duration
}

func (s *sleeper) sleep(ctx context.Context, d time.Duration) error {
	s.pauses = append(s.pauses, d)
	if s.cancel != nil && d == s.cancelOn {
		s.cancel()
		return ctx.Err()
	}
	return nil
}

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func TestWindow(t *testing.T) {
	tests := []struct {
		name      string
		mode      zoom.Mode
		startDate string
		at        time.Time
		from, to  string
	}{
		{"live just after midnight", zoom.Live, "", time.Date(2024, 3, 10, 0, 45, 0, 0, time.UTC), "2024-03-09", "2024-03-10"},
		{"live at 02:59", zoom.Live, "", time.Date(2024, 3, 10, 2, 59, 0, 0, time.UTC), "2024-03-09", "2024-03-10"},
		{"live at 04:00", zoom.Live, "", time.Date(2024, 3, 10, 4, 0, 0, 0, time.UTC), "2024-03-10", "2024-03-10"},
		{"past", zoom.Past, "", time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC), "2024-02-29", "2024-03-01"},
		{"explicit date", zoom.Past, "2023-11-24", now, "2023-11-24", "2023-11-24"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := Window(tt.mode, tt.startDate, tt.at)
			assert.Equal(t, tt.from, from)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestLiveCycleSummarizes(t *testing.T) {
	src := &fakeSource{kind: zoom.Meetings, events: []zoom.Event{
		{UUID: "a", Participants: 10, HasVideo: true, HasVoIP: true, InRoomParticipants: 3},
		{UUID: "b", Participants: 5, HasPSTN: true, HasVideo: true, HasRecording: true},
	}}
	sink := &memorySink{}

	p := New(Config{Mode: zoom.Live}, src, Sinks{Events: sink}, Ledgers{}, zap.NewNop(),
		WithClock(clock), WithIDs(func() string { return "id-1" }))

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, Done, p.State())
	assert.Equal(t, "meetings-live", p.Stream())

	require.Len(t, sink.records, 1)
	assert.Equal(t, Summary{
		UUID:            "id-1",
		Type:            "meeting",
		Events:          2,
		SumParticipants: 15,
		SumPSTN:         1,
		SumVoIP:         1,
		SumVideo:        2,
		SumRecording:    1,
		SumInRoom:       3,
		StartTime:       "2024-03-10T12:00:00Z",
	}, sink.records[0])
}

func TestLiveCycleWithNoEventsStillRecords(t *testing.T) {
	sink := &memorySink{}
	p := New(Config{Mode: zoom.Live}, &fakeSource{kind: zoom.Webinars}, Sinks{Events: sink}, Ledgers{}, zap.NewNop(),
		WithClock(clock))

	require.NoError(t, p.RunCycle(context.Background()))
	require.Len(t, sink.records, 1)
	summary := sink.records[0].(Summary)
	assert.Equal(t, "webinar", summary.Type)
	assert.Zero(t, summary.Events)
	assert.NotEmpty(t, summary.UUID)
}

func pastFixture() *fakeSource {
	return &fakeSource{
		kind: zoom.Meetings,
		events: []zoom.Event{
			{UUID: "open", ID: 1, StartTime: "2024-03-10T10:00:00Z", EndTime: "2024-03-10T11:00:00Z", Duration: 3600},
			{UUID: "closed", ID: 2, StartTime: "2024-03-10T06:00:00Z", EndTime: "2024-03-10T08:00:00Z", Duration: 7200},
		},
		participants: map[string][]zoom.Participant{
			"closed": {
				{ID: "p1", UserName: "Ana", JoinTime: "2024-03-10T06:00:00Z", LeaveTime: "2024-03-10T06:30:00Z"},
				{UserName: "Dial-in"},
			},
		},
	}
}

func TestPastCycleArchivesOnceAndScansClosedEvents(t *testing.T) {
	src := pastFixture()
	events, participants := &memorySink{}, &memorySink{}
	p := New(Config{Mode: zoom.Past}, src, Sinks{Events: events, Participants: participants}, Ledgers{}, zap.NewNop(),
		WithClock(clock))

	ctx := context.Background()
	require.NoError(t, p.RunCycle(ctx))
	assert.Equal(t, ClosedEventScan, p.State())

	require.Len(t, events.records, 2)
	first := events.records[0].(EventRecord)
	assert.Equal(t, "open", first.UUID)
	assert.Equal(t, int64(1), first.ZoomID)
	assert.Equal(t, 1, first.Meeting)
	assert.Zero(t, first.Webinar)

	// only the event that ended three hours ago has its participants fetched
	assert.Equal(t, map[string]int{"closed": 1}, src.partCalls)
	require.Len(t, participants.records, 2)
	ana := participants.records[0].(ParticipantRecord)
	assert.Equal(t, "closed", ana.UUID)
	assert.Equal(t, int64(2), ana.ZoomID)
	assert.Equal(t, "p1", ana.ParticipantID)
	require.NotNil(t, ana.Duration)
	assert.Equal(t, 1800, *ana.Duration)
	dialIn := participants.records[1].(ParticipantRecord)
	assert.Equal(t, "none", dialIn.ParticipantID)
	assert.Nil(t, dialIn.Duration)

	// a second cycle over the same window emits nothing new
	require.NoError(t, p.RunCycle(ctx))
	assert.Len(t, events.records, 2)
	assert.Len(t, participants.records, 2)
	assert.Equal(t, 1, src.partCalls["closed"])
}

func TestPastCycleWithOldStartDateArchivesOnce(t *testing.T) {
	src := &fakeSource{
		kind: zoom.Meetings,
		events: []zoom.Event{
			{UUID: "old", ID: 7, StartTime: "2023-11-24T09:00:00Z", EndTime: "2023-11-24T10:00:00Z"},
		},
		participants: map[string][]zoom.Participant{"old": {{ID: "p1", UserName: "Ana"}}},
	}
	events, participants := &memorySink{}, &memorySink{}
	at := now
	p := New(Config{Mode: zoom.Past, StartDate: "2023-11-24", Interval: 36 * time.Hour}, src,
		Sinks{Events: events, Participants: participants}, Ledgers{}, zap.NewNop(),
		WithClock(func() time.Time { return at }))

	ctx := context.Background()
	// cycles span more than the ledger retention
	for i := 0; i < 4; i++ {
		require.NoError(t, p.RunCycle(ctx))
		at = at.Add(36 * time.Hour)
	}

	assert.Len(t, events.records, 1)
	assert.Len(t, participants.records, 1)
	assert.Equal(t, 1, src.partCalls["old"])
}

func TestRollingWindowPrunesFirstSeenEntries(t *testing.T) {
	src := pastFixture()
	seen := ledger.New()
	seen.Add("stale", now.Add(-72*time.Hour))
	p := New(Config{Mode: zoom.Past}, src, Sinks{Events: &memorySink{}, Participants: &memorySink{}},
		Ledgers{Events: seen}, zap.NewNop(), WithClock(clock))

	require.NoError(t, p.RunCycle(context.Background()))
	assert.False(t, seen.Contains("stale"))
	assert.True(t, seen.Contains("open"))
	assert.True(t, seen.Contains("closed"))
}

func TestPastCycleRespectsLoadedLedger(t *testing.T) {
	src := pastFixture()
	events := &memorySink{}
	seen := ledger.New()
	seen.Add("closed", now.Add(-time.Hour))

	p := New(Config{Mode: zoom.Past}, src, Sinks{Events: events, Participants: &memorySink{}},
		Ledgers{Events: seen}, zap.NewNop(), WithClock(clock))

	require.NoError(t, p.RunCycle(context.Background()))
	require.Len(t, events.records, 1)
	assert.Equal(t, "open", events.records[0].(EventRecord).UUID)
}

func TestRateLimitedCycleIsNoop(t *testing.T) {
	src := pastFixture()
	src.eventsErr = &gateway.HTTPError{Status: http.StatusTooManyRequests}
	events := &memorySink{}
	s := &sleeper{}
	ledgers := Ledgers{Events: ledger.New(), Participants: ledger.New()}

	p := New(Config{Mode: zoom.Past, Backoff: time.Minute}, src, Sinks{Events: events, Participants: &memorySink{}},
		ledgers, zap.NewNop(), WithClock(clock), WithSleeper(s.sleep))

	require.NoError(t, p.RunCycle(context.Background()))
	assert.Empty(t, events.records)
	assert.Zero(t, ledgers.Events.Len())
	assert.Equal(t, []time.Duration{time.Minute}, s.pauses)
}

func TestAuthFailureStopsRun(t *testing.T) {
	src := pastFixture()
	src.eventsErr = &gateway.HTTPError{Status: http.StatusUnauthorized}

	p := New(Config{Mode: zoom.Past, Interval: time.Minute}, src, Sinks{Events: &memorySink{}, Participants: &memorySink{}},
		Ledgers{}, zap.NewNop(), WithClock(clock))

	err := p.Run(context.Background())
	assert.ErrorIs(t, err, gateway.ErrAuth)
	assert.Equal(t, Done, p.State())
}

func TestParticipantFailureSkipsEventOnly(t *testing.T) {
	src := pastFixture()
	src.partErr = &gateway.HTTPError{Status: http.StatusNotFound}
	events, participants := &memorySink{}, &memorySink{}
	ledgers := Ledgers{Events: ledger.New(), Participants: ledger.New()}

	p := New(Config{Mode: zoom.Past}, src, Sinks{Events: events, Participants: participants}, ledgers, zap.NewNop(),
		WithClock(clock), WithSleeper((&sleeper{}).sleep))

	require.NoError(t, p.RunCycle(context.Background()))
	assert.Len(t, events.records, 2)
	assert.Empty(t, participants.records)
	assert.False(t, ledgers.Participants.Contains("closed"))
}

func TestFailedArchiveLeavesLedgerUntouched(t *testing.T) {
	src := pastFixture()
	ledgers := Ledgers{Events: ledger.New(), Participants: ledger.New()}
	p := New(Config{Mode: zoom.Past}, src,
		Sinks{Events: &memorySink{err: errors.New("disk full")}, Participants: &memorySink{}},
		ledgers, zap.NewNop(), WithClock(clock))

	require.NoError(t, p.RunCycle(context.Background()))
	assert.Zero(t, ledgers.Events.Len())
	assert.Zero(t, ledgers.Participants.Len())
}

func TestRunRepeatsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{kind: zoom.Meetings}
	sink := &memorySink{}
	s := &sleeper{cancel: cancel, cancelOn: 5 * time.Minute}
	calls := 0

	p := New(Config{Mode: zoom.Live, Interval: 5 * time.Minute}, src, Sinks{Events: sink}, Ledgers{}, zap.NewNop(),
		WithClock(clock), WithSleeper(func(ctx context.Context, d time.Duration) error {
			calls++
			if calls < 3 {
				return nil
			}
			return s.sleep(ctx, d)
		}))

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, Done, p.State())
	assert.Len(t, sink.records, 3)
	assert.Len(t, src.queries, 3)
}

func TestNewDefaultsCooldownPerKind(t *testing.T) {
	meetings := New(Config{Mode: zoom.Past}, &fakeSource{kind: zoom.Meetings}, Sinks{}, Ledgers{}, zap.NewNop())
	webinars := New(Config{Mode: zoom.Past}, &fakeSource{kind: zoom.Webinars}, Sinks{}, Ledgers{}, zap.NewNop())

	assert.Equal(t, paginate.MeetingCooldown, meetings.cfg.EventCooldown)
	assert.Equal(t, paginate.WebinarCooldown, webinars.cfg.EventCooldown)
	assert.Equal(t, 180*time.Minute, meetings.cfg.ClosedAfter)
	assert.Equal(t, "webinars-past-participants", webinars.ParticipantStream())
}
