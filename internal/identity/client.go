// Package identity talks to the authorization service that owns group
// membership and identities.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leozw/zoom-dashboard/internal/gateway"
	"github.com/leozw/zoom-dashboard/internal/metrics"
	"github.com/leozw/zoom-dashboard/internal/paginate"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Member is one identity of a group.
type Member struct {
	ID                  string `json:"id"`
	UPN                 string `json:"upn"`
	PrimaryAccountEmail string `json:"primaryAccountEmail"`
}

type Client struct {
	baseURL string
	http    gateway.Doer
	cache   *cache.Cache
	backoff time.Duration
	sleep   paginate.SleepFunc
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewClient expects hc to authenticate its requests, see
// keycloak.Client.HTTPClient.
func NewClient(baseURL string, hc gateway.Doer, cacheTTL time.Duration, logger *zap.Logger, m *metrics.Collector) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Minute
	}
	return &Client{
		baseURL: baseURL,
		http:    hc,
		cache:   cache.New(cacheTTL, 2*cacheTTL),
		backoff: paginate.DefaultBackoff,
		sleep:   paginate.Sleep,
		logger:  logger.With(zap.String("service", "identity")),
		metrics: m,
	}
}

type idResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *Client) send(ctx context.Context, method, endpoint string, out any) error {
	req, err := gateway.NewRequest(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	body, err := gateway.Call(c.http, req, http.StatusOK)
	if err != nil {
		c.metrics.RecordRequest("identity", "error")
		return err
	}
	c.metrics.RecordRequest("identity", "ok")
	return gateway.Decode(method+" "+req.URL.Path, body, out)
}

func (c *Client) lookupID(ctx context.Context, kind, name string) (string, error) {
	if err := gateway.Require(strings.ToLower(kind), name); err != nil {
		return "", err
	}

	key := kind + ":" + name
	if id, ok := c.cache.Get(key); ok {
		return id.(string), nil
	}

	var resp idResponse
	if err := c.send(ctx, http.MethodGet, c.baseURL+kind+"/"+url.PathEscape(name), &resp); err != nil {
		return "", fmt.Errorf("lookup %s %s: %w", strings.ToLower(kind), name, err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("lookup %s %s: %w", strings.ToLower(kind), name, gateway.ErrNotFound)
	}

	c.cache.SetDefault(key, resp.Data.ID)
	return resp.Data.ID, nil
}

// GroupID resolves a group name to its id.
func (c *Client) GroupID(ctx context.Context, name string) (string, error) {
	return c.lookupID(ctx, "Group", name)
}

// IdentityID resolves an account (upn or email) to its identity id.
func (c *Client) IdentityID(ctx context.Context, account string) (string, error) {
	return c.lookupID(ctx, "Identity", account)
}

type membersResponse struct {
	Data       []Member `json:"data"`
	Pagination struct {
		Links struct {
			Next string `json:"next"`
		} `json:"links"`
	} `json:"pagination"`
}

// MembersPage fetches one page of group members. The token is the next link
// returned by the previous page.
func (c *Client) MembersPage(ctx context.Context, groupID string, fields []string, token string) (paginate.Page[Member], error) {
	endpoint := token
	if endpoint == "" {
		if err := gateway.Require("group_id", groupID); err != nil {
			return paginate.Page[Member]{}, err
		}
		q := url.Values{}
		for _, f := range fields {
			q.Add("field", f)
		}
		endpoint = c.baseURL + "Group/" + url.PathEscape(groupID) + "/memberidentities"
		if len(q) > 0 {
			endpoint += "?" + q.Encode()
		}
	}

	var resp membersResponse
	if err := c.send(ctx, http.MethodGet, endpoint, &resp); err != nil {
		return paginate.Page[Member]{}, err
	}
	return paginate.Page[Member]{Items: resp.Data, NextToken: c.rebase(resp.Pagination.Links.Next)}, nil
}

// rebase points a next link at the configured endpoint, keeping the part
// from "Group/" on.
func (c *Client) rebase(next string) string {
	if next == "" {
		return ""
	}
	if i := strings.Index(next, "Group/"); i >= 0 {
		return c.baseURL + next[i:]
	}
	return next
}

// Members returns every member of a group.
func (c *Client) Members(ctx context.Context, groupID string, fields ...string) ([]Member, error) {
	return paginate.CollectAll(ctx, func(ctx context.Context, token string) (paginate.Page[Member], error) {
		return c.MembersPage(ctx, groupID, fields, token)
	}, paginate.Options{
		Resource: "group-members",
		Backoff:  c.backoff,
		Sleep:    c.sleep,
		Logger:   c.logger,
		Metrics:  c.metrics,
	})
}

func (c *Client) membership(ctx context.Context, method, groupID, identityID string) error {
	if err := gateway.Require("group_id", groupID); err != nil {
		return err
	}
	if err := gateway.Require("identity_id", identityID); err != nil {
		return err
	}
	endpoint := c.baseURL + "Group/" + url.PathEscape(groupID) + "/memberidentities?ids=" + url.QueryEscape(identityID)
	return c.send(ctx, method, endpoint, nil)
}

// AddMember adds an identity to a group.
func (c *Client) AddMember(ctx context.Context, groupID, identityID string) error {
	return c.membership(ctx, http.MethodPost, groupID, identityID)
}

// RemoveMember removes an identity from a group.
func (c *Client) RemoveMember(ctx context.Context, groupID, identityID string) error {
	return c.membership(ctx, http.MethodDelete, groupID, identityID)
}
