package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/leozw/zoom-dashboard/internal/gateway"
	"github.com/leozw/zoom-dashboard/internal/paginate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAuthz struct {
	mu       sync.Mutex
	lookups  map[string]int
	mutation []string
	fields   []string
}

func (f *fakeAuthz) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups[r.URL.Path]++

	switch {
	case r.URL.Path == "/api/v1.0/Group/zoom-webinar-1000":
		_, _ = w.Write([]byte(`{"data":{"id":"g1000"}}`))
	case r.URL.Path == "/api/v1.0/Identity/jdoe":
		_, _ = w.Write([]byte(`{"data":{"id":"i-jdoe"}}`))
	case r.URL.Path == "/api/v1.0/Group/g1000/memberidentities" && r.Method == http.MethodGet:
		if r.URL.Query().Get("offset") == "" {
			f.fields = r.URL.Query()["field"]
			_, _ = w.Write([]byte(`{"data":[{"id":"i1","upn":"jdoe","primaryAccountEmail":"john.doe@cern.ch"}],
				"pagination":{"links":{"next":"https://authz.internal/api/v1.0/Group/g1000/memberidentities?offset=1&field=upn"}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"i2","upn":"asmith"}],"pagination":{"links":{"next":null}}}`))
	case r.URL.Path == "/api/v1.0/Group/busy/memberidentities":
		w.WriteHeader(http.StatusTooManyRequests)
	case r.URL.Path == "/api/v1.0/Group/g1000/memberidentities":
		f.mutation = append(f.mutation, r.Method+" "+r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeAuthz) {
	t.Helper()
	fake := &fakeAuthz{lookups: make(map[string]int)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/v1.0", srv.Client(), time.Minute, zap.NewNop(), nil), fake
}

func TestLookupsAreCached(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	for range 3 {
		id, err := c.GroupID(ctx, "zoom-webinar-1000")
		require.NoError(t, err)
		assert.Equal(t, "g1000", id)
	}
	id, err := c.IdentityID(ctx, "jdoe")
	require.NoError(t, err)
	assert.Equal(t, "i-jdoe", id)

	assert.Equal(t, 1, fake.lookups["/api/v1.0/Group/zoom-webinar-1000"])

	_, err = c.IdentityID(ctx, "ghost")
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestMembersFollowsNextLinks(t *testing.T) {
	c, fake := newTestClient(t)

	members, err := c.Members(context.Background(), "g1000", "upn", "primaryAccountEmail")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "jdoe", members[0].UPN)
	assert.Equal(t, "john.doe@cern.ch", members[0].PrimaryAccountEmail)
	assert.Equal(t, "asmith", members[1].UPN)
	assert.Equal(t, []string{"upn", "primaryAccountEmail"}, fake.fields)
}

func TestMembersBacksOffWhenThrottled(t *testing.T) {
	c, _ := newTestClient(t)
	var pauses []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	_, err := c.Members(context.Background(), "busy")
	assert.ErrorIs(t, err, paginate.ErrNoData)
	assert.ErrorIs(t, err, gateway.ErrRateLimited)
	assert.Equal(t, []time.Duration{paginate.DefaultBackoff}, pauses)
}

func TestMembershipMutations(t *testing.T) {
	c, fake := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.AddMember(ctx, "g1000", "i1"))
	require.NoError(t, c.RemoveMember(ctx, "g1000", "i2"))
	assert.Equal(t, []string{"POST i1", "DELETE i2"}, fake.mutation)

	err := c.AddMember(ctx, "g1000", "")
	assert.True(t, gateway.IsFatal(err))
}

func TestRebase(t *testing.T) {
	c := NewClient("https://authz.example/api/v1.0/", http.DefaultClient, 0, zap.NewNop(), nil)
	assert.Equal(t, "https://authz.example/api/v1.0/Group/x/memberidentities?offset=2",
		c.rebase("http://10.0.0.1:8080/api/v1.0/Group/x/memberidentities?offset=2"))
	assert.Equal(t, "", c.rebase(""))
}
