package zoom

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Kind selects meetings or webinars.
type Kind string

const (
	Meetings Kind = "meetings"
	Webinars Kind = "webinars"
)

// Singular is the marker used on archived records ("meeting" or "webinar").
func (k Kind) Singular() string {
	return strings.TrimSuffix(string(k), "s")
}

// Mode selects in-progress or completed events.
type Mode string

const (
	Live Mode = "live"
	Past Mode = "past"
)

// Duration is a length in seconds. The provider reports it either as a
// number or as "H:M:S", "M:S" or "S".
type Duration int

func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		secs, err := ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(secs)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	secs, err := n.Float64()
	if err != nil {
		return fmt.Errorf("invalid duration %s: %w", b, err)
	}
	*d = Duration(int(secs))
	return nil
}

// ParseDuration converts "H:M:S", "M:S" or "S" to seconds.
func ParseDuration(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", s, err)
		}
		total = total*60 + n
	}
	return total, nil
}

// Event is a meeting or webinar as reported by the metrics endpoints.
type Event struct {
	UUID               string   `json:"uuid"`
	ID                 int64    `json:"id"`
	Topic              string   `json:"topic,omitempty"`
	Host               string   `json:"host,omitempty"`
	Email              string   `json:"email,omitempty"`
	UserType           string   `json:"user_type,omitempty"`
	StartTime          string   `json:"start_time,omitempty"`
	EndTime            string   `json:"end_time,omitempty"`
	Duration           Duration `json:"duration"`
	Participants       int      `json:"participants"`
	HasPSTN            bool     `json:"has_pstn"`
	HasVoIP            bool     `json:"has_voip"`
	Has3rdPartyAudio   bool     `json:"has_3rd_party_audio"`
	HasVideo           bool     `json:"has_video"`
	HasScreenShare     bool     `json:"has_screen_share"`
	HasRecording       bool     `json:"has_recording"`
	HasSIP             bool     `json:"has_sip"`
	HasArchiving       bool     `json:"has_archiving,omitempty"`
	InRoomParticipants int      `json:"in_room_participants,omitempty"`
	Dept               string   `json:"dept,omitempty"`
}

// Participant is one attendee session of a completed event.
type Participant struct {
	ID          string `json:"id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	UserName    string `json:"user_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Device      string `json:"device,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`
	Location    string `json:"location,omitempty"`
	NetworkType string `json:"network_type,omitempty"`
	JoinTime    string `json:"join_time,omitempty"`
	LeaveTime   string `json:"leave_time,omitempty"`
	LeaveReason string `json:"leave_reason,omitempty"`
}

// Registrant of a meeting.
type Registrant struct {
	ID          string `json:"id,omitempty"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name,omitempty"`
	AutoApprove *bool  `json:"auto_approve,omitempty"`
	Status      string `json:"status,omitempty"`
	CreateTime  string `json:"create_time,omitempty"`
	JoinURL     string `json:"join_url,omitempty"`
}

// RegistrantResult is the provider's answer to a registration.
type RegistrantResult struct {
	RegistrantID string `json:"registrant_id"`
	ID           int64  `json:"id"`
	Topic        string `json:"topic"`
	StartTime    string `json:"start_time"`
	JoinURL      string `json:"join_url"`
}

// Webinar types as reported by the scheduling endpoints.
const (
	WebinarScheduled          = 5
	WebinarRecurringNoFixed   = 6
	WebinarRecurringFixedTime = 9
)

// ScheduledWebinar is an entry of a user's webinar list.
type ScheduledWebinar struct {
	ID        int64  `json:"id"`
	UUID      string `json:"uuid"`
	HostID    string `json:"host_id,omitempty"`
	Topic     string `json:"topic"`
	Agenda    string `json:"agenda,omitempty"`
	Type      int    `json:"type"`
	StartTime string `json:"start_time,omitempty"`
	Duration  int    `json:"duration,omitempty"`
}

type Occurrence struct {
	OccurrenceID string `json:"occurrence_id"`
	StartTime    string `json:"start_time"`
	Duration     int    `json:"duration"`
	Status       string `json:"status"`
}

// WebinarDetail is a single webinar including its recurrence occurrences.
type WebinarDetail struct {
	ScheduledWebinar
	Occurrences []Occurrence `json:"occurrences,omitempty"`
}

// MetricsQuery is the time window of a metrics listing.
type MetricsQuery struct {
	Mode     Mode
	From     string
	To       string
	PageSize int
}

// ParseTime parses a provider timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
