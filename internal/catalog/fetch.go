package catalog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/resilience"
)

// ProgressFunc is called once the size of a download is known (-1 when
// unknown) and returns a writer that receives every byte read.
type ProgressFunc func(total int64) io.Writer

// Fetcher retrieves product files from local disk, HTTP(S) or public S3
// buckets, transparently decompressing gzip content.
type Fetcher struct {
	client   *http.Client
	cfg      config.StorageConfig
	breaker  *resilience.CircuitBreaker
	progress ProgressFunc
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher. client may be nil, in which case a client
// with the configured fetch timeout is used.
func NewFetcher(cfg config.StorageConfig, client *http.Client) *Fetcher {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1 << 30
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	f := &Fetcher{
		client: client,
		cfg:    cfg,
		logger: slog.Default().With("component", "catalog-fetcher"),
	}
	f.breaker = resilience.NewCircuitBreaker("catalog-fetch", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerFailures,
		ResetTimeout:     cfg.BreakerCooldown,
		OnStateChange: func(name string, to resilience.State) {
			if f.metrics != nil {
				f.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return f
}

// WithMetrics reports circuit state changes to m and returns the Fetcher.
func (f *Fetcher) WithMetrics(m *metrics.Metrics) *Fetcher {
	f.metrics = m
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(f.breaker.Name()).Set(float64(f.breaker.GetState()))
	}
	return f
}

// WithProgress installs a progress reporter and returns the Fetcher.
func (f *Fetcher) WithProgress(fn ProgressFunc) *Fetcher {
	f.progress = fn
	return f
}

// Breaker exposes the circuit breaker so its state can be reported.
func (f *Fetcher) Breaker() *resilience.CircuitBreaker {
	return f.breaker
}

// Fetch downloads and decodes the product file at src. Opening the source is
// retried with exponential backoff; decoding is not.
func (f *Fetcher) Fetch(ctx context.Context, src string) (*Batch, error) {
	start := time.Now()
	var body io.ReadCloser
	var size int64
	err := resilience.Retry(ctx, "catalog-fetch", resilience.RetryConfig{MaxAttempts: f.cfg.RetryAttempts}, func() error {
		return f.breaker.Execute(func() error {
			var openErr error
			body, size, openErr = f.open(ctx, src)
			return openErr
		})
	})
	if err != nil {
		if !errors.Is(err, apperrors.ErrSourceUnavailable) && !errors.Is(err, apperrors.ErrInvalidInput) {
			err = fmt.Errorf("%w: %w", apperrors.ErrSourceUnavailable, err)
		}
		return nil, err
	}
	defer body.Close()

	var r io.Reader = body
	if f.progress != nil {
		r = io.TeeReader(r, f.progress(size))
	}
	counted := &countingReader{r: r}
	decompressed, err := maybeGunzip(counted)
	if err != nil {
		return nil, err
	}
	limited := &limitReader{r: decompressed, remaining: f.cfg.MaxBytes}

	products, skipped, err := Decode(limited)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", src, err)
	}
	f.logger.Info("product file fetched",
		"source", src,
		"products", len(products),
		"skipped", skipped,
		"bytes", counted.n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &Batch{Source: src, Products: products, Skipped: skipped, Bytes: counted.n}, nil
}

func (f *Fetcher) open(ctx context.Context, src string) (io.ReadCloser, int64, error) {
	location, err := ResolveURL(src, f.cfg.S3Region)
	if err != nil {
		return nil, 0, resilience.Permanent(err)
	}
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		file, err := os.Open(location)
		if err != nil {
			return nil, 0, resilience.Permanent(fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err))
		}
		size := int64(-1)
		if info, err := file.Stat(); err == nil {
			size = info.Size()
		}
		return file, size, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, 0, resilience.Permanent(fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", apperrors.ErrSourceUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		statusErr := fmt.Errorf("%w: GET %s returned %d", apperrors.ErrSourceUnavailable, location, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, 0, resilience.Permanent(statusErr)
		}
		return nil, 0, statusErr
	}
	return resp.Body, resp.ContentLength, nil
}

// ResolveURL maps a source reference onto something Fetch can open:
// s3://bucket/key becomes the bucket's virtual-hosted HTTPS URL, file://
// URLs become paths, and HTTP(S) URLs and bare paths pass through.
func ResolveURL(src, region string) (string, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", fmt.Errorf("%w: empty file url", apperrors.ErrInvalidInput)
	}
	if !strings.Contains(src, "://") {
		return src, nil
	}
	u, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	switch u.Scheme {
	case "http", "https":
		return src, nil
	case "file":
		return u.Path, nil
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return "", fmt.Errorf("%w: s3 url needs bucket and key: %s", apperrors.ErrInvalidInput, src)
		}
		if region == "" {
			region = "us-east-1"
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.Host, region, key), nil
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", apperrors.ErrInvalidInput, u.Scheme)
	}
}

func maybeGunzip(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: reading source: %v", apperrors.ErrSourceUnavailable, err)
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: opening gzip stream: %v", apperrors.ErrInvalidInput, err)
		}
		return gz, nil
	}
	return br, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// limitReader fails once more than remaining bytes have been read.
type limitReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.remaining <= 0 {
		var probe [1]byte
		if n, err := l.r.Read(probe[:]); n == 0 && err == io.EOF {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("%w: product file exceeds size limit", apperrors.ErrInvalidInput)
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
