package floor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultFetchTimeout bounds a single snapshot request
	DefaultFetchTimeout = 10 * time.Second

	// DefaultFetchRetries is the number of attempts before giving up
	DefaultFetchRetries = 3

	defaultFetchBackoff = 250 * time.Millisecond

	// maxSnapshotBytes caps a snapshot body at 16 MB
	maxSnapshotBytes = 16 << 20
)

// FetchOption configures FetchScene
type FetchOption func(*fetchConfig)

type fetchConfig struct {
	timeout time.Duration
	retries int
	backoff time.Duration
	client  *http.Client
}

func defaultFetchConfig() fetchConfig {
	return fetchConfig{
		timeout: DefaultFetchTimeout,
		retries: DefaultFetchRetries,
		backoff: defaultFetchBackoff,
	}
}

// WithFetchTimeout sets the per-request timeout
func WithFetchTimeout(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.timeout = d }
}

// WithFetchRetries sets the number of attempts
func WithFetchRetries(n int) FetchOption {
	return func(c *fetchConfig) { c.retries = n }
}

// WithFetchBackoff sets the base delay, doubled after every failed attempt
func WithFetchBackoff(d time.Duration) FetchOption {
	return func(c *fetchConfig) { c.backoff = d }
}

// WithFetchClient overrides the HTTP client
func WithFetchClient(client *http.Client) FetchOption {
	return func(c *fetchConfig) { c.client = client }
}

// IsRemoteScene reports whether a scene location is an HTTP(S) URL
func IsRemoteScene(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// FetchScene downloads a scene snapshot from a perception endpoint. Transport errors
// and non-200 responses are retried; a payload that does not decode is not.
func FetchScene(ctx context.Context, url string, opts ...FetchOption) (*Scene, error) {
	if url == "" {
		return nil, fmt.Errorf("fetch scene: URL is empty")
	}

	cfg := defaultFetchConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	client := cfg.client
	if client == nil {
		client = &http.Client{Timeout: cfg.timeout}
	}
	if cfg.retries < 1 {
		cfg.retries = 1
	}

	var lastErr error
	backoff := cfg.backoff
	for attempt := 0; attempt < cfg.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch scene: %w", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		body, err := getSnapshot(ctx, client, url)
		if err != nil {
			lastErr = err
			continue
		}

		surfaces, err := DecodeSurfaces(body)
		if err != nil {
			return nil, fmt.Errorf("fetch scene: %w", err)
		}
		scene := NewScene()
		for _, s := range surfaces {
			scene.Upsert(s)
		}
		return scene, nil
	}

	return nil, fmt.Errorf("fetch scene: all %d attempts failed: %w", cfg.retries, lastErr)
}

func getSnapshot(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return body, nil
}
