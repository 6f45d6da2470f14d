package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	appconfig "okxflow/config"
	"okxflow/logger"
)

// ErrNotFound reports that the remote archive does not exist. It is a
// terminal, expected outcome: callers treat it as "no data for this unit",
// not as a failure.
var ErrNotFound = errors.New("archive not found")

// ErrExhaustedRetries reports that the retry budget was spent without a
// successful response. It wraps the last underlying cause.
var ErrExhaustedRetries = errors.New("retry attempts exhausted")

// outcome classifies one HTTP exchange.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeNotFound
	outcomeRetryable
	outcomeFatal
)

// classifyStatus maps an HTTP status code onto the retry taxonomy: 404 is a
// terminal absence, server-side and throttling statuses are retryable, and
// everything else unexpected is fatal.
func classifyStatus(code int) outcome {
	switch {
	case code >= 200 && code < 300:
		return outcomeSuccess
	case code == http.StatusNotFound:
		return outcomeNotFound
	case code == http.StatusInternalServerError,
		code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable,
		code == http.StatusGatewayTimeout,
		code == http.StatusTooManyRequests,
		code == http.StatusRequestTimeout:
		return outcomeRetryable
	default:
		return outcomeFatal
	}
}

// Fetcher performs HTTP GETs against the archive CDN with bounded retry,
// exponential backoff and a shared outbound rate limit. Each call uses the
// pooled client; no mutable state is shared between concurrent fetches.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	retry     appconfig.RetryConfig
	chunkSize int
	log       *logger.Log
}

// NewFetcher builds a fetcher from the fetch section of the configuration.
// An invalid proxy URL is surfaced immediately rather than on first use.
func NewFetcher(cfg *appconfig.Config) (*Fetcher, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}
	if cfg.Fetch.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Fetch.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := &http.Client{
		Timeout: cfg.Fetch.Timeout,
		Transport: userAgentTransport{
			agent: cfg.Fetch.UserAgent,
			base:  transport,
		},
	}

	return &Fetcher{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(cfg.Fetch.RateLimit.RequestsPerSecond), cfg.Fetch.RateLimit.BurstSize),
		retry:     cfg.Fetch.Retry,
		chunkSize: cfg.Fetch.ChunkSize,
		log:       logger.GetLogger(),
	}, nil
}

// backoffDelay returns the wait before the given retry attempt (1-based),
// growing exponentially from the configured base and capped at the maximum.
func (f *Fetcher) backoffDelay(attempt int) time.Duration {
	delay := f.retry.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(f.retry.BackoffMultiplier)
		if delay >= f.retry.MaxDelay {
			return f.retry.MaxDelay
		}
	}
	if delay > f.retry.MaxDelay {
		return f.retry.MaxDelay
	}
	return delay
}

// withRetry runs one GET per attempt and hands successful responses to
// consume. Transport errors and retryable statuses are retried with backoff;
// not-found and fatal statuses end the loop immediately.
func (f *Fetcher) withRetry(ctx context.Context, rawURL string, consume func(*http.Response) error) error {
	log := f.log.WithComponent("fetcher").WithFields(logger.Fields{"url": rawURL})

	var lastErr error
	for attempt := 1; attempt <= f.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := f.backoffDelay(attempt - 1)
			log.WithFields(logger.Fields{
				"attempt": attempt,
				"delay":   delay.String(),
			}).Warn("retrying fetch")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			// Transport-level failures (timeout, reset, DNS) are retryable.
			lastErr = err
			continue
		}

		switch classifyStatus(resp.StatusCode) {
		case outcomeSuccess:
			err := consume(resp)
			resp.Body.Close()
			if err != nil {
				lastErr = err
				continue
			}
			return nil
		case outcomeNotFound:
			resp.Body.Close()
			return ErrNotFound
		case outcomeRetryable:
			resp.Body.Close()
			lastErr = fmt.Errorf("http status %s", resp.Status)
		default:
			resp.Body.Close()
			return fmt.Errorf("unexpected http status %s", resp.Status)
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhaustedRetries, f.retry.MaxAttempts, lastErr)
}

// Fetch retrieves a small payload fully into memory. Funding archives are a
// few kilobytes; buffering keeps the call path simple.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := f.withRetry(ctx, rawURL, func(resp *http.Response) error {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response body: %w", err)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.IncrementDownload(int64(len(body)))
	return body, nil
}

// Download streams a large payload to dest, creating parent directories as
// needed. The file is truncated at the start of every attempt so a retried
// download never appends to a partial body. On failure any partial file is
// removed.
func (f *Fetcher) Download(ctx context.Context, rawURL, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("create download directory: %w", err)
	}

	var written int64
	err := f.withRetry(ctx, rawURL, func(resp *http.Response) error {
		file, err := os.Create(dest)
		if err != nil {
			return fmt.Errorf("create download file: %w", err)
		}
		buf := make([]byte, f.chunkSize)
		n, err := io.CopyBuffer(file, resp.Body, buf)
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("stream response body: %w", err)
		}
		written = n
		return nil
	})
	if err != nil {
		if rmErr := os.Remove(dest); rmErr != nil && !os.IsNotExist(rmErr) {
			f.log.WithComponent("fetcher").WithError(rmErr).WithFields(logger.Fields{"path": dest}).Warn("failed to remove partial download")
		}
		return 0, err
	}

	logger.IncrementDownload(written)
	return written, nil
}
