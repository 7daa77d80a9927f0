package curation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/mascot/internal/cache"
)

func newChecker(opts LivenessOptions) (*LivenessChecker, *cache.MemoryStore) {
	store := cache.NewMemoryStore(cache.SystemClock{})
	if opts.Timeout == 0 {
		opts.Timeout = time.Second
	}
	return NewLivenessChecker(store, opts, zerolog.Nop()), store
}

func TestLivenessHeadThenGet(t *testing.T) {
	var heads, gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Add(1)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		gets.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := newChecker(LivenessOptions{})
	assert.True(t, c.Alive(context.Background(), srv.URL+"/page"))
	assert.Equal(t, int32(1), heads.Load())
	assert.Equal(t, int32(1), gets.Load())

	assert.True(t, c.Alive(context.Background(), srv.URL+"/page"))
	assert.Equal(t, int32(1), gets.Load(), "cached result")
}

func TestLivenessFallsBackToStrippedURLAndOrigin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/tracked" && r.URL.RawQuery == "":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, _ := newChecker(LivenessOptions{})
	assert.True(t, c.Alive(context.Background(), srv.URL+"/tracked?utm_source=newsletter"))
	assert.True(t, c.Alive(context.Background(), srv.URL+"/gone"), "origin answers")
}

func TestLivenessDeadLink(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, store := newChecker(LivenessOptions{})
	assert.False(t, c.Alive(context.Background(), srv.URL+"/missing?gclid=1"))
	// url, stripped url and origin, each HEAD then GET
	assert.Equal(t, int32(6), hits.Load())
	assert.Equal(t, 1, store.Len())

	assert.False(t, c.Alive(context.Background(), srv.URL+"/missing?gclid=1"))
	assert.Equal(t, int32(6), hits.Load())
}

func TestLivenessTrustedAndBlockedDomains(t *testing.T) {
	c, _ := newChecker(LivenessOptions{
		TrustedDomains: []string{"gov.au"},
		BlockedDomains: []string{"spam.example"},
		Client: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			t.Error("no request expected")
			return nil, context.Canceled
		})},
	})
	assert.True(t, c.Alive(context.Background(), "https://www.health.gov.au/topics"))
	assert.False(t, c.Alive(context.Background(), "https://cdn.spam.example/x"))
	assert.False(t, c.Alive(context.Background(), "not a url"))
}

func TestLivenessValidate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newChecker(LivenessOptions{TrustedDomains: []string{"headspace.org.au"}, Concurrency: 2})
	in := []Source{
		{ID: "headspace", Title: "headspace", URL: "https://headspace.org.au/", Domain: "headspace.org.au"},
		{ID: "dead", Title: "Old guide", URL: srv.URL + "/old", Domain: "127.0.0.1"},
		{Title: "guide.pdf", FileID: "file_1"},
	}
	out := c.Validate(context.Background(), in)
	require.Len(t, out, 3)
	assert.Equal(t, in[0], out[0])
	assert.Equal(t, Source{ID: "dead", Title: "Old guide (link unavailable)"}, out[1])
	assert.Equal(t, in[2], out[2])
	assert.Equal(t, srv.URL+"/old", in[1].URL, "input is not modified")
}

func TestLivenessPerAttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := newChecker(LivenessOptions{Timeout: 30 * time.Millisecond})
	start := time.Now()
	assert.False(t, c.Alive(context.Background(), srv.URL+"/slow"))
	assert.Less(t, time.Since(start), 2*time.Second)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
