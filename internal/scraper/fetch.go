package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os/exec"
	"time"

	"golang.org/x/time/rate"

	"github.com/MGMAppDev/soccerview-pipeline/internal/adapter"
)

// Fetcher retrieves one URL and returns the HTTP status and page body.
type Fetcher interface {
	Do(ctx context.Context, url, userAgent string) (status int, body string, err error)
}

// HTTPFetcher is the plain fetcher for server-rendered sources.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds the default fetcher with a hard request timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: 30 * time.Second}}
}

func (f *HTTPFetcher) Do(ctx context.Context, url, userAgent string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, string(body), nil
}

// CommandFetcher shells out to a rendering bridge (a headless-browser
// wrapper) for JavaScript SPA sources. The command gets the URL and user
// agent as arguments and prints rendered HTML to stdout. A page the source
// cannot serve still renders, just without a schedule table, so a
// successful render always reports status 200.
type CommandFetcher struct {
	command string
}

// NewCommandFetcher wraps the configured rendering command.
func NewCommandFetcher(command string) *CommandFetcher {
	return &CommandFetcher{command: command}
}

func (f *CommandFetcher) Do(ctx context.Context, url, userAgent string) (int, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.command, url, userAgent)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, "", fmt.Errorf("render %s: %w: %s", url, err, truncate(stderr.String(), 200))
	}
	return http.StatusOK, stdout.String(), nil
}

// fetchClient enforces one adapter's politeness contract around a Fetcher:
// a token-bucket floor at RequestDelayMin, random jitter on top, user-agent
// rotation per request, and the status-specific retry policy.
type fetchClient struct {
	fetcher Fetcher
	limits  adapter.RateLimits
	agents  []string
	logger  *slog.Logger

	rand    *rand.Rand // local instance, no global state
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

func newFetchClient(fetcher Fetcher, ad *adapter.Adapter, logger *slog.Logger) *fetchClient {
	return &fetchClient{
		fetcher: fetcher,
		limits:  ad.Limits,
		agents:  ad.UserAgents,
		logger:  logger,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		limiter: rate.NewLimiter(rate.Every(ad.Limits.RequestDelayMin), 1),
		sleep:   sleepCtx,
	}
}

// Get fetches one page under the politeness contract. 404 is terminal and
// maps to adapter.ErrNotFound; other 4xx are terminal errors. 429 and 5xx
// cool down and retry; transport errors back off on the adapter's schedule.
// Every attempt counts against MaxRetries.
func (c *fetchClient) Get(ctx context.Context, url string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.limits.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
		if err := c.sleep(ctx, c.jitter()); err != nil {
			return "", err
		}

		status, body, err := c.fetcher.Do(ctx, url, c.userAgent())
		switch {
		case err != nil:
			lastErr = fmt.Errorf("fetch %s: %w", url, err)
			c.logger.Warn("fetch failed, backing off",
				"url", url, "attempt", attempt+1, "error", err)
			if err := c.sleep(ctx, c.retryDelay(attempt)); err != nil {
				return "", err
			}
		case status == http.StatusNotFound:
			return "", adapter.ErrNotFound
		case status == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("fetch %s: status 429", url)
			c.logger.Warn("rate limited, cooling down",
				"url", url, "cooldown", c.limits.CooldownOn429)
			if err := c.sleep(ctx, c.limits.CooldownOn429); err != nil {
				return "", err
			}
		case status >= 500:
			lastErr = fmt.Errorf("fetch %s: status %d", url, status)
			c.logger.Warn("server error, cooling down",
				"url", url, "status", status, "cooldown", c.limits.CooldownOn500)
			if err := c.sleep(ctx, c.limits.CooldownOn500); err != nil {
				return "", err
			}
		case status >= 400:
			return "", fmt.Errorf("fetch %s: status %d", url, status)
		default:
			return body, nil
		}
	}
	return "", fmt.Errorf("retries exhausted: %w", lastErr)
}

// jitter draws from [0, RequestDelayMax-RequestDelayMin) on top of the
// token-bucket floor, so request spacing lands in [min, max).
func (c *fetchClient) jitter() time.Duration {
	span := c.limits.RequestDelayMax - c.limits.RequestDelayMin
	if span <= 0 {
		return 0
	}
	return time.Duration(c.rand.Int63n(int64(span)))
}

func (c *fetchClient) userAgent() string {
	return c.agents[c.rand.Intn(len(c.agents))]
}

func (c *fetchClient) retryDelay(attempt int) time.Duration {
	delays := c.limits.RetryDelays
	if len(delays) == 0 {
		return 5 * time.Second
	}
	if attempt >= len(delays) {
		attempt = len(delays) - 1
	}
	return delays[attempt]
}

// sleepCtx sleeps unless the context is canceled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// truncate caps stderr excerpts embedded in error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
