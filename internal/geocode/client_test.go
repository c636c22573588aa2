package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search":
			assert.Equal(t, "10", r.URL.Query().Get("limit"))
			if r.URL.Query().Get("q") == "fail" {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`[
				{"display_name":"Main St, Springfield","lat":"39.78","lon":"-89.65"},
				{"display_name":"broken","lat":"x","lon":"1"}
			]`))
		case "/reverse":
			_, _ = w.Write([]byte(`{"display_name":"Main St, Springfield","lat":"39.78","lon":"-89.65"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchParsesAndCaches(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(0))

	first := c.Search(context.Background(), "Main St")
	second := c.Search(context.Background(), "main st")

	require.Len(t, first, 1)
	assert.Equal(t, "Main St, Springfield", first[0].DisplayName)
	assert.InDelta(t, 39.78, first[0].Latitude, 1e-9)
	assert.InDelta(t, -89.65, first[0].Longitude, 1e-9)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestSearchShortQuerySkipsRequest(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(0))

	places := c.Search(context.Background(), " a ")

	assert.NotNil(t, places)
	assert.Empty(t, places)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestSearchFailureDegradesToEmpty(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(0))

	places := c.Search(context.Background(), "fail")

	assert.Empty(t, places)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestReverse(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(0))

	name := c.Reverse(context.Background(), 39.78, -89.65)
	again := c.Reverse(context.Background(), 39.78, -89.65)

	assert.Equal(t, "Main St, Springfield", name)
	assert.Equal(t, name, again)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestUnreachableServiceDegrades(t *testing.T) {
	c := NewClient(WithBaseURL("http://127.0.0.1:1"), WithRateLimit(0))

	assert.Empty(t, c.Search(context.Background(), "Main St"))
	assert.Equal(t, "", c.Reverse(context.Background(), 1, 2))
}

func TestCanceledContextDegrades(t *testing.T) {
	var hits int32
	srv := newServer(t, &hits)
	c := NewClient(WithBaseURL(srv.URL))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, c.Search(ctx, "Main St"))
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache()
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)

	c.Set(context.Background(), "k", []byte("v"))
	v, ok := c.Get(context.Background(), "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}
