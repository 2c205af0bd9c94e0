package zoom

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/leozw/zoom-dashboard/internal/gateway"
	"github.com/leozw/zoom-dashboard/internal/paginate"
)

func (c *Client) pageQuery(size int, token string) url.Values {
	if size <= 0 {
		size = c.pageSize
	}
	q := url.Values{}
	q.Set("page_size", strconv.Itoa(size))
	if token != "" {
		q.Set("next_page_token", token)
	}
	return q
}

// ListEvents returns one page of live or past meetings or webinars.
func (c *Client) ListEvents(ctx context.Context, kind Kind, mq MetricsQuery, token string) (paginate.Page[Event], error) {
	q := c.pageQuery(mq.PageSize, token)
	q.Set("type", string(mq.Mode))
	if mq.From != "" {
		q.Set("from", mq.From)
	}
	if mq.To != "" {
		q.Set("to", mq.To)
	}

	var resp struct {
		NextPageToken string  `json:"next_page_token"`
		Meetings      []Event `json:"meetings"`
		Webinars      []Event `json:"webinars"`
	}
	if err := c.do(ctx, http.MethodGet, "/metrics/"+string(kind), q, nil, http.StatusOK, &resp); err != nil {
		return paginate.Page[Event]{}, err
	}

	items := resp.Meetings
	if kind == Webinars {
		items = resp.Webinars
	}
	return paginate.Page[Event]{Items: items, NextToken: resp.NextPageToken}, nil
}

// ListParticipants returns one page of the participants of a completed event.
func (c *Client) ListParticipants(ctx context.Context, kind Kind, eventUUID string, token string) (paginate.Page[Participant], error) {
	if err := gateway.Require("uuid", eventUUID); err != nil {
		return paginate.Page[Participant]{}, err
	}

	q := c.pageQuery(0, token)
	q.Set("type", string(Past))

	var resp struct {
		NextPageToken string        `json:"next_page_token"`
		Participants  []Participant `json:"participants"`
	}
	path := "/metrics/" + string(kind) + "/" + gateway.EncodeUUID(eventUUID) + "/participants"
	if err := c.do(ctx, http.MethodGet, path, q, nil, http.StatusOK, &resp); err != nil {
		return paginate.Page[Participant]{}, err
	}
	return paginate.Page[Participant]{Items: resp.Participants, NextToken: resp.NextPageToken}, nil
}

// ListRegistrants returns one page of a meeting's registrants.
func (c *Client) ListRegistrants(ctx context.Context, meetingID string, token string) (paginate.Page[Registrant], error) {
	if err := gateway.Require("meeting_id", meetingID); err != nil {
		return paginate.Page[Registrant]{}, err
	}

	var resp struct {
		NextPageToken string       `json:"next_page_token"`
		Registrants   []Registrant `json:"registrants"`
	}
	path := "/meetings/" + gateway.EncodeUUID(meetingID) + "/registrants"
	if err := c.do(ctx, http.MethodGet, path, c.pageQuery(0, token), nil, http.StatusOK, &resp); err != nil {
		return paginate.Page[Registrant]{}, err
	}
	return paginate.Page[Registrant]{Items: resp.Registrants, NextToken: resp.NextPageToken}, nil
}

// AddRegistrant registers one attendee to a meeting.
func (c *Client) AddRegistrant(ctx context.Context, meetingID string, r Registrant) (*RegistrantResult, error) {
	for field, value := range map[string]string{
		"meeting_id": meetingID,
		"email":      r.Email,
		"first_name": r.FirstName,
	} {
		if err := gateway.Require(field, value); err != nil {
			return nil, err
		}
	}

	var res RegistrantResult
	path := "/meetings/" + gateway.EncodeUUID(meetingID) + "/registrants"
	if err := c.do(ctx, http.MethodPost, path, nil, r, http.StatusCreated, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

type webinarFeature struct {
	Feature struct {
		Webinar         bool `json:"webinar"`
		WebinarCapacity int  `json:"webinar_capacity,omitempty"`
	} `json:"feature"`
}

// SetWebinarCapacity enables the webinar feature with the given capacity, or
// disables it when capacity is zero.
func (c *Client) SetWebinarCapacity(ctx context.Context, userID string, capacity int) error {
	if err := gateway.Require("user_id", userID); err != nil {
		return err
	}

	var body webinarFeature
	if capacity > 0 {
		body.Feature.Webinar = true
		body.Feature.WebinarCapacity = capacity
	}
	return c.do(ctx, http.MethodPatch, "/users/"+url.PathEscape(userID)+"/settings", nil, body, http.StatusNoContent, nil)
}

// ListUserWebinars returns one page of the webinars scheduled by a user.
func (c *Client) ListUserWebinars(ctx context.Context, userID string, token string) (paginate.Page[ScheduledWebinar], error) {
	if err := gateway.Require("user_id", userID); err != nil {
		return paginate.Page[ScheduledWebinar]{}, err
	}

	var resp struct {
		NextPageToken string             `json:"next_page_token"`
		Webinars      []ScheduledWebinar `json:"webinars"`
	}
	path := "/users/" + url.PathEscape(userID) + "/webinars"
	if err := c.do(ctx, http.MethodGet, path, c.pageQuery(0, token), nil, http.StatusOK, &resp); err != nil {
		return paginate.Page[ScheduledWebinar]{}, err
	}
	return paginate.Page[ScheduledWebinar]{Items: resp.Webinars, NextToken: resp.NextPageToken}, nil
}

// GetWebinar returns a webinar with its occurrences.
func (c *Client) GetWebinar(ctx context.Context, webinarID int64) (*WebinarDetail, error) {
	var w WebinarDetail
	path := "/webinars/" + strconv.FormatInt(webinarID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, http.StatusOK, &w); err != nil {
		return nil, err
	}
	return &w, nil
}
