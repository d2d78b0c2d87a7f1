// Package media retrieves remote media into in-memory buffers for
// embedding and captioning. Fetches are concurrent, bounded by a per-batch
// timeout, and degrade to partial results: a failed or slow URL is logged
// and skipped, never surfaced to the caller.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wayfare-app/wayfare/internal/log"
)

// Media is one fetched object. Never persisted; discarded with the request.
type Media struct {
	Data        []byte
	ContentType string
}

const (
	// DefaultTimeout bounds a whole fetch batch.
	DefaultTimeout = 10 * time.Second

	// maxResponseSize caps a single download (10MB).
	maxResponseSize = 10 * 1024 * 1024
)

// Config configures a Fetcher.
type Config struct {
	// Timeout bounds each FetchAll batch. Zero uses DefaultTimeout.
	Timeout time.Duration

	// Client is the HTTP client to use. Nil uses a client with sane
	// connection defaults.
	Client *http.Client
}

// Fetcher downloads media URLs. Safe for concurrent use.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  log.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg Config, logger log.Logger) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     30 * time.Second,
			},
		}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Fetcher{client: client, timeout: timeout, logger: logger}
}

type fetchResult struct {
	url   string
	media Media
	err   error
}

// FetchAll retrieves all URLs concurrently and returns the subset that
// succeeded within the batch timeout, keyed by source URL. It never returns
// an error: a full timeout yields an empty map. Cancelling ctx stops the
// wait; in-flight fetches drain into a buffered channel and are discarded.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) map[string]Media {
	out := make(map[string]Media, len(urls))
	if len(urls) == 0 {
		return out
	}

	// The fetch context is detached from caller cancellation so in-flight
	// requests run to completion; only the batch timeout bounds them.
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	// Buffered to batch size: every goroutine can always deliver its
	// result and exit, even when the caller stopped waiting.
	results := make(chan fetchResult, len(urls))
	for _, u := range urls {
		go func() {
			m, err := f.fetchOne(fetchCtx, u)
			results <- fetchResult{url: u, media: m, err: err}
		}()
	}

	for range urls {
		select {
		case res := <-results:
			if res.err != nil {
				f.logger.Debug("media fetch failed", "url", res.url, "error", res.err)
				continue
			}
			out[res.url] = res.media
		case <-ctx.Done():
			f.logger.Debug("media fetch wait cancelled", "fetched", len(out), "total", len(urls))
			return out
		}
	}

	return out
}

// fetchOne downloads a single URL into memory.
func (f *Fetcher) fetchOne(ctx context.Context, url string) (Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Media{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Media{}, fmt.Errorf("fetching: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return Media{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return Media{}, fmt.Errorf("reading body: %w", err)
	}
	if len(data) > maxResponseSize {
		return Media{}, fmt.Errorf("response exceeds %d byte limit", maxResponseSize)
	}
	if len(data) == 0 {
		return Media{}, fmt.Errorf("empty response body")
	}

	contentType := resp.Header.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if contentType == "" || contentType == "application/octet-stream" {
		// Header missing or generic: sniff the actual bytes instead.
		contentType = http.DetectContentType(data)
	}

	return Media{Data: data, ContentType: contentType}, nil
}
