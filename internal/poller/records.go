package poller

import (
	"time"

	"github.com/leozw/zoom-dashboard/internal/zoom"
)

// EventRecord is the archived form of a completed meeting or webinar.
type EventRecord struct {
	UUID               string `json:"uuid"`
	ZoomID             int64  `json:"zoomid"`
	Topic              string `json:"topic,omitempty"`
	Host               string `json:"host,omitempty"`
	Email              string `json:"email,omitempty"`
	UserType           string `json:"user_type,omitempty"`
	StartTime          string `json:"start_time,omitempty"`
	EndTime            string `json:"end_time,omitempty"`
	Duration           int    `json:"duration"`
	Participants       int    `json:"participants"`
	HasPSTN            bool   `json:"has_pstn"`
	HasVoIP            bool   `json:"has_voip"`
	Has3rdPartyAudio   bool   `json:"has_3rd_party_audio"`
	HasVideo           bool   `json:"has_video"`
	HasScreenShare     bool   `json:"has_screen_share"`
	HasRecording       bool   `json:"has_recording"`
	HasSIP             bool   `json:"has_sip"`
	HasArchiving       bool   `json:"has_archiving,omitempty"`
	InRoomParticipants int    `json:"in_room_participants,omitempty"`
	Dept               string `json:"dept,omitempty"`
	Meeting            int    `json:"meeting,omitempty"`
	Webinar            int    `json:"webinar,omitempty"`
}

func newEventRecord(kind zoom.Kind, e zoom.Event) EventRecord {
	r := EventRecord{
		UUID:               e.UUID,
		ZoomID:             e.ID,
		Topic:              e.Topic,
		Host:               e.Host,
		Email:              e.Email,
		UserType:           e.UserType,
		StartTime:          e.StartTime,
		EndTime:            e.EndTime,
		Duration:           int(e.Duration),
		Participants:       e.Participants,
		HasPSTN:            e.HasPSTN,
		HasVoIP:            e.HasVoIP,
		Has3rdPartyAudio:   e.Has3rdPartyAudio,
		HasVideo:           e.HasVideo,
		HasScreenShare:     e.HasScreenShare,
		HasRecording:       e.HasRecording,
		HasSIP:             e.HasSIP,
		HasArchiving:       e.HasArchiving,
		InRoomParticipants: e.InRoomParticipants,
		Dept:               e.Dept,
	}
	r.Meeting, r.Webinar = markers(kind)
	return r
}

// ParticipantRecord is the archived form of one participant session. UUID is
// the parent event's uuid.
type ParticipantRecord struct {
	UUID          string `json:"uuid"`
	ZoomID        int64  `json:"zoomid"`
	ParticipantID string `json:"participantid"`
	UserID        string `json:"user_id,omitempty"`
	UserName      string `json:"user_name,omitempty"`
	Email         string `json:"email,omitempty"`
	Device        string `json:"device,omitempty"`
	IPAddress     string `json:"ip_address,omitempty"`
	Location      string `json:"location,omitempty"`
	NetworkType   string `json:"network_type,omitempty"`
	JoinTime      string `json:"join_time,omitempty"`
	LeaveTime     string `json:"leave_time,omitempty"`
	LeaveReason   string `json:"leave_reason,omitempty"`
	Duration      *int   `json:"duration,omitempty"`
	Meeting       int    `json:"meeting,omitempty"`
	Webinar       int    `json:"webinar,omitempty"`
}

func newParticipantRecord(kind zoom.Kind, parent zoom.Event, p zoom.Participant) ParticipantRecord {
	r := ParticipantRecord{
		UUID:          parent.UUID,
		ZoomID:        parent.ID,
		ParticipantID: p.ID,
		UserID:        p.UserID,
		UserName:      p.UserName,
		Email:         p.Email,
		Device:        p.Device,
		IPAddress:     p.IPAddress,
		Location:      p.Location,
		NetworkType:   p.NetworkType,
		JoinTime:      p.JoinTime,
		LeaveTime:     p.LeaveTime,
		LeaveReason:   p.LeaveReason,
	}
	if r.ParticipantID == "" {
		r.ParticipantID = "none"
	}
	if p.JoinTime != "" && p.LeaveTime != "" {
		join, errJoin := zoom.ParseTime(p.JoinTime)
		leave, errLeave := zoom.ParseTime(p.LeaveTime)
		if errJoin == nil && errLeave == nil {
			secs := int(leave.Sub(join) / time.Second)
			r.Duration = &secs
		}
	}
	r.Meeting, r.Webinar = markers(kind)
	return r
}

func markers(kind zoom.Kind) (meeting, webinar int) {
	if kind == zoom.Webinars {
		return 0, 1
	}
	return 1, 0
}

// Summary aggregates the events in progress at one live cycle.
type Summary struct {
	UUID            string `json:"uuid"`
	Type            string `json:"type"`
	Events          int    `json:"events"`
	SumParticipants int    `json:"sumparticipants"`
	SumPSTN         int    `json:"sumpstn"`
	SumVoIP         int    `json:"sumvoip"`
	Sum3PartyAudio  int    `json:"sum3partyaudio"`
	SumVideo        int    `json:"sumvideo"`
	SumScreenShare  int    `json:"sumscreenshare"`
	SumRecording    int    `json:"sumrecording"`
	SumSIP          int    `json:"sumsip"`
	SumInRoom       int    `json:"suminroom"`
	StartTime       string `json:"start_time"`
}

// Summarize counts the events carrying each capability and totals the
// participants.
func Summarize(kind zoom.Kind, events []zoom.Event, id string, at time.Time) Summary {
	s := Summary{
		UUID:      id,
		Type:      kind.Singular(),
		Events:    len(events),
		StartTime: at.UTC().Format(time.RFC3339),
	}
	for _, e := range events {
		s.SumParticipants += e.Participants
		s.SumInRoom += e.InRoomParticipants
		s.SumPSTN += btoi(e.HasPSTN)
		s.SumVoIP += btoi(e.HasVoIP)
		s.Sum3PartyAudio += btoi(e.Has3rdPartyAudio)
		s.SumVideo += btoi(e.HasVideo)
		s.SumScreenShare += btoi(e.HasScreenShare)
		s.SumRecording += btoi(e.HasRecording)
		s.SumSIP += btoi(e.HasSIP)
	}
	return s
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
