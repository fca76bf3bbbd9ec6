package relay

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commands-run/desktop-agent/internal/errs"
)

var errRefreshFailed = errors.New("refresh failed")

type fakeTokens struct {
	token       atomic.Value
	refreshes   atomic.Int32
	refreshFail bool
}

func newFakeTokens(initial string) *fakeTokens {
	f := &fakeTokens{}
	f.token.Store(initial)
	return f
}

func (f *fakeTokens) AccessToken() string { return f.token.Load().(string) }

func (f *fakeTokens) Refresh(ctx context.Context) (string, error) {
	f.refreshes.Add(1)
	if f.refreshFail {
		return "", errRefreshFailed
	}
	f.token.Store("refreshed-token")
	return "refreshed-token", nil
}

func TestOriginAllowedRejectsUnlistedOrigin(t *testing.T) {
	c := NewClient(Config{AllowedOrigins: []string{"https://relay.example.com"}}, newFakeTokens("t"), nil)
	err := c.originAllowed("https://evil.example.com/gateway/v1/devices")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeUntrustedOrigin))
}

func TestOriginAllowedRejectsHTTPForNonLoopback(t *testing.T) {
	c := NewClient(Config{AllowedOrigins: []string{"http://relay.example.com"}}, newFakeTokens("t"), nil)
	err := c.originAllowed("http://relay.example.com/gateway/v1/devices")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeUnsafeScheme))
}

func TestOriginAllowedAllowsLoopbackHTTP(t *testing.T) {
	c := NewClient(Config{AllowedOrigins: []string{"http://127.0.0.1:8080"}}, newFakeTokens("t"), nil)
	err := c.originAllowed("http://127.0.0.1:8080/gateway/v1/devices")
	assert.NoError(t, err)
}

func TestDoJSONRetriesOnceAfter401(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != "Bearer refreshed-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"devices":[]}`))
	}))
	defer srv.Close()

	tokens := newFakeTokens("stale-token")
	c := NewClient(Config{AllowedOrigins: []string{srv.URL}}, tokens, srv.Client())

	_, err := c.ListDevices(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int32(1), tokens.refreshes.Load())
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDoJSONFailsAfterSecond401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := newFakeTokens("stale-token")
	c := NewClient(Config{AllowedOrigins: []string{srv.URL}}, tokens, srv.Client())

	_, err := c.ListDevices(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeRelayUnauthenticated))
	assert.Equal(t, int32(1), tokens.refreshes.Load())
}

func TestDoJSONMaps404ToRelayGone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{AllowedOrigins: []string{srv.URL}}, newFakeTokens("t"), srv.Client())
	_, err := c.ListDevices(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeRelayGone))
}
