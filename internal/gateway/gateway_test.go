package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeUUID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "4444AAAiAAAAAiAiAiiAii==", "4444AAAiAAAAAiAiAiiAii=="},
		{"leading slash", "/abc==", "%252Fabc%253D%253D"},
		{"double slash", "ab//c+", "ab%252F%252Fc%252B"},
		{"single inner slash", "ab/c", "ab/c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeUUID(tt.in))
		})
	}
}

func TestHTTPErrorMatchesSentinels(t *testing.T) {
	cases := map[int]error{
		http.StatusUnauthorized:    ErrAuth,
		http.StatusForbidden:       ErrAuth,
		http.StatusTooManyRequests: ErrRateLimited,
		http.StatusNotFound:        ErrNotFound,
	}
	for status, sentinel := range cases {
		err := fmt.Errorf("wrapped: %w", &HTTPError{Status: status})
		assert.ErrorIs(t, err, sentinel, "status %d", status)
	}

	err := &HTTPError{Status: http.StatusInternalServerError}
	assert.False(t, errors.Is(err, ErrAuth))
	assert.False(t, errors.Is(err, ErrRateLimited))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(&HTTPError{Status: http.StatusUnauthorized}))
	assert.True(t, IsFatal(Require("email", " ")))
	assert.False(t, IsFatal(&HTTPError{Status: http.StatusTooManyRequests}))
	assert.False(t, IsFatal(&TransportError{Op: "GET /x", Err: context.DeadlineExceeded}))
	assert.False(t, IsFatal(nil))
	assert.NoError(t, Require("email", "a@b.c"))
}

func TestCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id":"42"}`))
		case "/empty":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	req, err := NewRequest(ctx, http.MethodGet, srv.URL+"/ok", nil)
	require.NoError(t, err)
	body, err := Call(srv.Client(), req, http.StatusOK)
	require.NoError(t, err)
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, Decode("GET /ok", body, &out))
	assert.Equal(t, "42", out.ID)

	req, err = NewRequest(ctx, http.MethodPatch, srv.URL+"/empty", map[string]int{"a": 1})
	require.NoError(t, err)
	_, err = Call(srv.Client(), req, http.StatusNoContent)
	require.NoError(t, err)

	req, err = NewRequest(ctx, http.MethodGet, srv.URL+"/busy", nil)
	require.NoError(t, err)
	_, err = Call(srv.Client(), req, http.StatusOK)
	assert.ErrorIs(t, err, ErrRateLimited)

	var terr *TransportError
	assert.ErrorAs(t, Decode("GET /bad", []byte("{not json"), &out), &terr)
}
