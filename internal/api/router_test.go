package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/leozw/zoom-dashboard/internal/api/handlers"
	"github.com/leozw/zoom-dashboard/internal/config"
	"github.com/leozw/zoom-dashboard/internal/gateway"
	"github.com/leozw/zoom-dashboard/internal/metrics"
	"github.com/leozw/zoom-dashboard/internal/paginate"
	"github.com/leozw/zoom-dashboard/internal/zoom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeZoom struct {
	capacities map[string]int
	err        error
}

func (f *fakeZoom) ListEvents(context.Context, zoom.Kind, zoom.MetricsQuery, string) (paginate.Page[zoom.Event], error) {
	return paginate.Page[zoom.Event]{}, nil
}

func (f *fakeZoom) ListUserWebinars(context.Context, string, string) (paginate.Page[zoom.ScheduledWebinar], error) {
	return paginate.Page[zoom.ScheduledWebinar]{}, nil
}

func (f *fakeZoom) GetWebinar(context.Context, int64) (*zoom.WebinarDetail, error) {
	return &zoom.WebinarDetail{}, nil
}

func (f *fakeZoom) SetWebinarCapacity(_ context.Context, userID string, capacity int) error {
	if f.err != nil {
		return f.err
	}
	f.capacities[userID] = capacity
	return nil
}

type fakeValidator struct{}

func (fakeValidator) ValidateToken(_ context.Context, token string) (jwt.MapClaims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return jwt.MapClaims{"sub": "42", "preferred_username": "ops"}, nil
}

func newTestServer(t *testing.T, z *fakeZoom) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	m := metrics.NewCollector(config.MimirConfig{})
	h := handlers.NewHandler(dir, 2, z, nil, m, zap.NewNop())
	return NewServer(gin.TestMode, h, fakeValidator{}, m, zap.NewNop()), dir
}

func serve(s *Server, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

type failingDB struct{}

func (failingDB) Ping() error { return errors.New("connection refused") }

func TestHealthAndReady(t *testing.T) {
	s, dir := newTestServer(t, &fakeZoom{})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zoom-webinars-past.log"), []byte("{}\n"), 0o644))

	w := serve(s, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"streams":["webinars-past"]`)

	w = serve(s, http.MethodGet, "/ready", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mirror":false`)

	w = serve(s, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyFailures(t *testing.T) {
	m := metrics.NewCollector(config.MimirConfig{})
	missing := filepath.Join(t.TempDir(), "gone")
	h := handlers.NewHandler(missing, 2, &fakeZoom{}, nil, m, zap.NewNop())
	s := NewServer(gin.TestMode, h, fakeValidator{}, m, zap.NewNop())
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodGet, "/ready", "", "").Code)

	h = handlers.NewHandler(t.TempDir(), 2, &fakeZoom{}, failingDB{}, m, zap.NewNop())
	s = NewServer(gin.TestMode, h, fakeValidator{}, m, zap.NewNop())
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodGet, "/ready", "", "").Code)
}

func TestLatestRecord(t *testing.T) {
	s, dir := newTestServer(t, &fakeZoom{})

	w := serve(s, http.MethodGet, "/api/v1/streams/nope/latest", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, http.MethodGet, "/api/v1/streams/meetings-live/latest", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	content := `{"uuid":"a","events":1}` + "\n" + `{"uuid":"b","events":2}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zoom-meetings-live.log"), []byte(content), 0o644))

	w = serve(s, http.MethodGet, "/api/v1/streams/meetings-live/latest", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"uuid":"b","events":2}`, w.Body.String())
}

func TestLedgerStats(t *testing.T) {
	s, dir := newTestServer(t, &fakeZoom{})

	now := time.Now().UTC().Format(time.RFC3339)
	content := `{"uuid":"a","start_time":"` + now + `"}` + "\n" +
		`{"uuid":"a","start_time":"` + now + `"}` + "\n" +
		`{"uuid":"b","start_time":"` + now + `"}` + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zoom-meetings-past.log"), []byte(content), 0o644))

	w := serve(s, http.MethodGet, "/api/v1/ledger/meetings-past", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"stream":"meetings-past","entries":2,"retention_days":2}`, w.Body.String())
}

func TestSetWebinarCapacity(t *testing.T) {
	z := &fakeZoom{capacities: map[string]int{}}
	s, _ := newTestServer(t, z)
	path := "/api/v1/users/ana@example.org/webinar-capacity"

	assert.Equal(t, http.StatusUnauthorized, serve(s, http.MethodPut, path, `{"capacity":500}`, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(s, http.MethodPut, path, `{"capacity":500}`, "bad").Code)
	assert.Equal(t, http.StatusBadRequest, serve(s, http.MethodPut, path, `{}`, "good").Code)

	assert.Equal(t, http.StatusNoContent, serve(s, http.MethodPut, path, `{"capacity":500}`, "good").Code)
	assert.Equal(t, 500, z.capacities["ana@example.org"])

	assert.Equal(t, http.StatusNoContent, serve(s, http.MethodPut, path, `{"capacity":750}`, "good").Code)
	assert.Equal(t, 0, z.capacities["ana@example.org"])

	z.err = &gateway.HTTPError{Status: http.StatusNotFound}
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodPut, path, `{"capacity":1000}`, "good").Code)

	z.err = &gateway.TransportError{Op: "set capacity", Err: errors.New("reset")}
	assert.Equal(t, http.StatusBadGateway, serve(s, http.MethodPut, path, `{"capacity":1000}`, "good").Code)
}
