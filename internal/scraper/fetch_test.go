package scraper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MGMAppDev/soccerview-pipeline/internal/adapter"
)

type response struct {
	status int
	body   string
	err    error
}

// scriptedFetcher replays canned responses and records every call.
type scriptedFetcher struct {
	script []response
	urls   []string
	agents []string
}

func (f *scriptedFetcher) Do(_ context.Context, url, userAgent string) (int, string, error) {
	i := len(f.urls)
	f.urls = append(f.urls, url)
	f.agents = append(f.agents, userAgent)
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	r := f.script[i]
	return r.status, r.body, r.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func politeTestAdapter() *adapter.Adapter {
	return &adapter.Adapter{
		ID:       "test",
		Platform: "test",
		Limits: adapter.RateLimits{
			RequestDelayMin: time.Millisecond,
			RequestDelayMax: 2 * time.Millisecond,
			CooldownOn429:   40 * time.Millisecond,
			CooldownOn500:   30 * time.Millisecond,
			RetryDelays:     []time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
			MaxRetries:      2,
		},
		UserAgents: []string{"ua-1", "ua-2"},
	}
}

// newScriptedClient wires a fetchClient whose sleeps are recorded instead
// of slept.
func newScriptedClient(f *scriptedFetcher) (*fetchClient, *[]time.Duration) {
	c := newFetchClient(f, politeTestAdapter(), discardLogger())
	slept := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return c, slept
}

// longSleeps filters out jitter so only policy sleeps remain.
func longSleeps(slept []time.Duration) []time.Duration {
	var out []time.Duration
	for _, d := range slept {
		if d >= 10*time.Millisecond {
			out = append(out, d)
		}
	}
	return out
}

func TestGetSuccess(t *testing.T) {
	f := &scriptedFetcher{script: []response{{status: 200, body: "page"}}}
	c, _ := newScriptedClient(f)

	body, err := c.Get(context.Background(), "http://x/1")
	require.NoError(t, err)
	assert.Equal(t, "page", body)
	assert.Len(t, f.urls, 1)
	for _, ua := range f.agents {
		assert.Contains(t, []string{"ua-1", "ua-2"}, ua)
	}
}

func TestGet404IsTerminal(t *testing.T) {
	f := &scriptedFetcher{script: []response{{status: 404}}}
	c, slept := newScriptedClient(f)

	_, err := c.Get(context.Background(), "http://x/gone")
	assert.ErrorIs(t, err, adapter.ErrNotFound)
	assert.Len(t, f.urls, 1, "404 must not retry")
	assert.Empty(t, longSleeps(*slept), "404 must not cool down")
}

func TestGetOther4xxIsTerminal(t *testing.T) {
	f := &scriptedFetcher{script: []response{{status: 403}}}
	c, _ := newScriptedClient(f)

	_, err := c.Get(context.Background(), "http://x/blocked")
	assert.ErrorContains(t, err, "status 403")
	assert.Len(t, f.urls, 1)
}

func TestGet429CoolsDownAndRetries(t *testing.T) {
	f := &scriptedFetcher{script: []response{
		{status: 429},
		{status: 200, body: "page"},
	}}
	c, slept := newScriptedClient(f)

	body, err := c.Get(context.Background(), "http://x/busy")
	require.NoError(t, err)
	assert.Equal(t, "page", body)
	assert.Len(t, f.urls, 2)
	assert.Equal(t, []time.Duration{40 * time.Millisecond}, longSleeps(*slept))
}

func TestGet5xxExhaustsRetries(t *testing.T) {
	f := &scriptedFetcher{script: []response{{status: 503}}}
	c, slept := newScriptedClient(f)

	_, err := c.Get(context.Background(), "http://x/down")
	assert.ErrorContains(t, err, "retries exhausted")
	assert.ErrorContains(t, err, "status 503")
	// MaxRetries=2 means three attempts total, each cooling down.
	assert.Len(t, f.urls, 3)
	assert.Equal(t, []time.Duration{
		30 * time.Millisecond, 30 * time.Millisecond, 30 * time.Millisecond,
	}, longSleeps(*slept))
}

func TestGetTransportErrorBackoffSchedule(t *testing.T) {
	f := &scriptedFetcher{script: []response{{err: errors.New("connection reset")}}}
	c, slept := newScriptedClient(f)

	_, err := c.Get(context.Background(), "http://x/flaky")
	assert.ErrorContains(t, err, "connection reset")
	assert.Len(t, f.urls, 3)
	// The schedule is consumed in order and the last entry repeats.
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond, 20 * time.Millisecond, 20 * time.Millisecond,
	}, longSleeps(*slept))
}

func TestGetRecoversAfterTransportError(t *testing.T) {
	f := &scriptedFetcher{script: []response{
		{err: errors.New("timeout")},
		{status: 200, body: "page"},
	}}
	c, _ := newScriptedClient(f)

	body, err := c.Get(context.Background(), "http://x/2")
	require.NoError(t, err)
	assert.Equal(t, "page", body)
}

func TestJitterBounds(t *testing.T) {
	c, _ := newScriptedClient(&scriptedFetcher{script: []response{{status: 200}}})
	span := c.limits.RequestDelayMax - c.limits.RequestDelayMin
	for i := 0; i < 200; i++ {
		j := c.jitter()
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, span)
	}

	// A degenerate window must not panic Int63n.
	c.limits.RequestDelayMax = c.limits.RequestDelayMin
	assert.Equal(t, time.Duration(0), c.jitter())
}

func TestRetryDelayFallback(t *testing.T) {
	c, _ := newScriptedClient(&scriptedFetcher{script: []response{{status: 200}}})
	c.limits.RetryDelays = nil
	assert.Equal(t, 5*time.Second, c.retryDelay(0))
	assert.Equal(t, 5*time.Second, c.retryDelay(9))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "aaaaaaaaaa...", truncate("aaaaaaaaaabbb", 10))
}
