package payload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"golang.org/x/time/rate"

	"github.com/pflauncher/launcher/internal/logging"
)

const (
	// DefaultManifestTimeout bounds a manifest or signature request.
	DefaultManifestTimeout = 15 * time.Second
	// DefaultPayloadTimeout bounds a full payload download.
	DefaultPayloadTimeout = 30 * time.Minute
	// DefaultRetries is the default number of download retries
	DefaultRetries = 2
	// DefaultChunkSize is the read size between progress and cancellation checks.
	DefaultChunkSize = 32 * 1024
	// DefaultProgressInterval is the minimum spacing of progress callbacks.
	DefaultProgressInterval = 100 * time.Millisecond
	// MaxManifestSize caps manifest and signature bodies.
	MaxManifestSize = 1 << 20
)

// UnknownTotal is reported as the total when the server omits Content-Length.
const UnknownTotal int64 = -1

// ProgressFunc receives the bytes downloaded so far and the total size, or
// UnknownTotal. It is called synchronously from the download loop.
type ProgressFunc func(downloaded, total int64)

// FetcherOptions configures a Fetcher. Zero values select defaults.
type FetcherOptions struct {
	ManifestTimeout time.Duration
	PayloadTimeout  time.Duration
	// Retries is the number of extra attempts after the first. Negative
	// disables retries.
	Retries int
	// UserAgent is sent with every request.
	UserAgent string
	// BandwidthLimit caps payload throughput in bytes per second. 0 is unlimited.
	BandwidthLimit int64
	// ChunkSize is the streaming buffer size.
	ChunkSize int
	// ProgressInterval throttles progress callbacks. Negative reports
	// every chunk.
	ProgressInterval time.Duration
	// Client overrides the HTTP client (tests).
	Client *http.Client
	Logger logging.Logger
}

// Fetcher retrieves manifests and payloads over HTTP.
type Fetcher struct {
	client           *http.Client
	userAgent        string
	manifestTimeout  time.Duration
	payloadTimeout   time.Duration
	retries          int
	backoff          time.Duration
	chunkSize        int
	progressInterval time.Duration
	bandwidth        *rate.Limiter
	freeSpace        func(ctx context.Context, dir string) (uint64, error)
	logger           logging.Logger
}

// NewFetcher creates a fetcher.
func NewFetcher(opts FetcherOptions) *Fetcher {
	f := &Fetcher{
		client:           opts.Client,
		userAgent:        opts.UserAgent,
		manifestTimeout:  opts.ManifestTimeout,
		payloadTimeout:   opts.PayloadTimeout,
		retries:          opts.Retries,
		backoff:          time.Second,
		chunkSize:        opts.ChunkSize,
		progressInterval: opts.ProgressInterval,
		freeSpace:        freeDiskSpace,
		logger:           logging.OrNop(opts.Logger),
	}

	if f.client == nil {
		f.client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Allow up to 10 redirects
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		}
	}
	if f.userAgent == "" {
		f.userAgent = "pflauncher"
	}
	if f.manifestTimeout <= 0 {
		f.manifestTimeout = DefaultManifestTimeout
	}
	if f.payloadTimeout <= 0 {
		f.payloadTimeout = DefaultPayloadTimeout
	}
	if opts.Retries == 0 {
		f.retries = DefaultRetries
	} else if opts.Retries < 0 {
		f.retries = 0
	}
	if f.chunkSize <= 0 {
		f.chunkSize = DefaultChunkSize
	}
	if f.progressInterval == 0 {
		f.progressInterval = DefaultProgressInterval
	}
	if opts.BandwidthLimit > 0 {
		burst := int(opts.BandwidthLimit)
		if burst < f.chunkSize {
			burst = f.chunkSize
		}
		f.bandwidth = rate.NewLimiter(rate.Limit(opts.BandwidthLimit), burst)
	}

	return f
}

// FetchManifest downloads and parses the manifest at url.
func (f *Fetcher) FetchManifest(ctx context.Context, url string) (*Manifest, error) {
	body, err := f.FetchBytes(ctx, url)
	if err != nil {
		return nil, err
	}

	m, err := ParseManifest(body)
	if err != nil {
		return nil, &ManifestFormatError{URL: url, Reason: "malformed body", Err: err}
	}
	return m, nil
}

// FetchBytes downloads a small document (manifest, signature) into memory
// using the manifest timeout.
func (f *Fetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := f.withRetry(ctx, url, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, f.manifestTimeout)
		defer cancel()

		resp, err := f.get(ctx, url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, MaxManifestSize+1))
		if err != nil {
			return &NetworkError{URL: url, Err: fmt.Errorf("read body: %w", err)}
		}
		if len(data) > MaxManifestSize {
			return &ManifestFormatError{URL: url, Reason: fmt.Sprintf("body exceeds %d bytes", MaxManifestSize)}
		}
		body = data
		return nil
	})
	return body, err
}

// FetchStream downloads url to destPath, reporting progress at chunk
// boundaries. The partial file is removed on any failure. It returns the
// number of bytes written.
func (f *Fetcher) FetchStream(ctx context.Context, url, destPath string, onProgress ProgressFunc) (int64, error) {
	var written int64
	progress := monotonic(onProgress)
	err := f.withRetry(ctx, url, func(ctx context.Context) error {
		n, err := f.streamOnce(ctx, url, destPath, progress)
		written = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// monotonic drops callbacks that do not pass the furthest point already
// reported. A retried download restarts from zero bytes; its progress stays
// silent until it catches up with the failed attempt.
func monotonic(onProgress ProgressFunc) ProgressFunc {
	if onProgress == nil {
		return nil
	}
	highWater := int64(-1)
	return func(downloaded, total int64) {
		if downloaded <= highWater {
			return
		}
		highWater = downloaded
		onProgress(downloaded, total)
	}
}

// withRetry runs attempt until it succeeds, fails permanently, or retries are
// exhausted. Backoff: 1s, 2s, 4s.
func (f *Fetcher) withRetry(ctx context.Context, url string, attempt func(context.Context) error) error {
	var lastErr error

	for i := 0; i <= f.retries; i++ {
		// Check context before each attempt
		if err := ctx.Err(); err != nil {
			return err
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * f.backoff
			f.logger.Warn("retrying download", "url", url, "attempt", i+1, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := attempt(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		// Don't retry on cancellation or permanent failures
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var netErr *NetworkError
		if !errors.As(err, &netErr) || !netErr.retryable() {
			return err
		}
	}

	return lastErr
}

func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &NetworkError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// streamOnce performs a single download attempt
func (f *Fetcher) streamOnce(ctx context.Context, url, destPath string, onProgress ProgressFunc) (written int64, err error) {
	ctx, cancel := context.WithTimeout(ctx, f.payloadTimeout)
	defer cancel()

	resp, err := f.get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	if total < 0 {
		total = UnknownTotal
	}

	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return 0, &FilesystemError{Op: "create download directory", Path: destDir, Err: err}
	}
	if total > 0 {
		if err := f.checkFreeSpace(ctx, destDir, total); err != nil {
			return 0, err
		}
	}

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, &FilesystemError{Op: "create download file", Path: destPath, Err: err}
	}

	// Track whether we need to clean up the partial file
	cleanupNeeded := true
	defer func() {
		out.Close()
		if cleanupNeeded {
			os.Remove(destPath)
		}
	}()

	var throttle *rate.Limiter
	if f.progressInterval > 0 {
		throttle = rate.NewLimiter(rate.Every(f.progressInterval), 1)
	}
	reported := int64(-1)
	report := func(force bool) {
		if onProgress == nil || reported == written {
			return
		}
		if force || throttle == nil || throttle.Allow() {
			reported = written
			onProgress(written, total)
		}
	}

	buf := make([]byte, f.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return written, f.contextError(ctx, url, err)
		}

		n, readErr := io.ReadFull(resp.Body, buf)
		if n > 0 {
			if f.bandwidth != nil {
				if err := f.bandwidth.WaitN(ctx, n); err != nil {
					return written, f.contextError(ctx, url, err)
				}
			}
			if _, err := out.Write(buf[:n]); err != nil {
				return written, &FilesystemError{Op: "write download", Path: destPath, Err: err}
			}
			written += int64(n)
			report(false)
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			if ctx.Err() != nil {
				return written, f.contextError(ctx, url, ctx.Err())
			}
			return written, &NetworkError{URL: url, Err: fmt.Errorf("read body: %w", readErr)}
		}
	}

	if total > 0 && written != total {
		return written, &NetworkError{URL: url, Err: fmt.Errorf("short body: got %d of %d bytes", written, total)}
	}

	if err := out.Sync(); err != nil {
		return written, &FilesystemError{Op: "sync download", Path: destPath, Err: err}
	}
	if err := out.Close(); err != nil {
		return written, &FilesystemError{Op: "close download", Path: destPath, Err: err}
	}

	report(true)
	cleanupNeeded = false
	return written, nil
}

// contextError keeps caller cancellation distinct from a timeout, which is a
// network failure.
func (f *Fetcher) contextError(ctx context.Context, url string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return context.Canceled
	}
	return &NetworkError{URL: url, Err: err}
}

func (f *Fetcher) checkFreeSpace(ctx context.Context, dir string, need int64) error {
	if f.freeSpace == nil {
		return nil
	}
	free, err := f.freeSpace(ctx, dir)
	if err != nil {
		f.logger.Debug("disk space check unavailable", "dir", dir, "error", err)
		return nil
	}
	if free < uint64(need) {
		return &FilesystemError{
			Op:   "preflight",
			Path: dir,
			Err:  fmt.Errorf("insufficient disk space: need %d bytes, %d available", need, free),
		}
	}
	return nil
}

func freeDiskSpace(ctx context.Context, dir string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}
