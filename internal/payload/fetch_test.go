package payload

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// newTestFetcher returns a fetcher with fast retries and unthrottled progress.
func newTestFetcher(opts FetcherOptions) *Fetcher {
	if opts.ProgressInterval == 0 {
		opts.ProgressInterval = -1
	}
	f := NewFetcher(opts)
	f.backoff = time.Millisecond
	f.freeSpace = nil
	return f
}

func TestFetchManifest(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantKind   string
	}{
		{
			name:       "valid_manifest",
			statusCode: http.StatusOK,
			body:       `{"game_version": "1.0", "game_url": "http://x/game.zip"}`,
		},
		{
			name:       "404_not_found",
			statusCode: http.StatusNotFound,
			body:       "not found",
			wantKind:   KindNetwork,
		},
		{
			name:       "500_server_error",
			statusCode: http.StatusInternalServerError,
			body:       "server error",
			wantKind:   KindNetwork,
		},
		{
			name:       "html_body",
			statusCode: http.StatusOK,
			body:       "<html></html>",
			wantKind:   KindManifestFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				// Verify User-Agent header
				if r.Header.Get("User-Agent") != "pflauncher/test" {
					t.Errorf("unexpected User-Agent: %s", r.Header.Get("User-Agent"))
				}
				w.WriteHeader(tt.statusCode)
				if _, err := w.Write([]byte(tt.body)); err != nil {
					t.Errorf("failed to write response: %v", err)
				}
			}))
			defer server.Close()

			f := newTestFetcher(FetcherOptions{UserAgent: "pflauncher/test", Retries: -1})
			m, err := f.FetchManifest(context.Background(), server.URL)

			if tt.wantKind != "" {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				if got := ErrorKind(err); got != tt.wantKind {
					t.Errorf("ErrorKind = %q, want %q (err: %v)", got, tt.wantKind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if e, ok := m.Entry("game"); !ok || e.Version != "1.0" {
				t.Errorf("unexpected manifest entry: %+v", e)
			}
		})
	}
}

func TestFetchManifestUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	f := newTestFetcher(FetcherOptions{Retries: -1})
	_, err := f.FetchManifest(context.Background(), url)

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
}

func TestFetchManifestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	f := newTestFetcher(FetcherOptions{ManifestTimeout: 20 * time.Millisecond, Retries: -1})
	_, err := f.FetchManifest(context.Background(), server.URL)
	if ErrorKind(err) != KindNetwork {
		t.Fatalf("expected network error on timeout, got %v", err)
	}
}

func TestFetchManifestTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat(" ", MaxManifestSize+10)))
	}))
	defer server.Close()

	f := newTestFetcher(FetcherOptions{Retries: -1})
	_, err := f.FetchManifest(context.Background(), server.URL)
	if ErrorKind(err) != KindManifestFormat {
		t.Fatalf("expected manifest format error, got %v", err)
	}
}

func TestFetcherRetryLogic(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			// Fail first two attempts
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("success"))
	}))
	defer server.Close()

	f := newTestFetcher(FetcherOptions{Retries: 3})
	dest := filepath.Join(t.TempDir(), "payload")

	n, err := f.FetchStream(context.Background(), server.URL, dest, nil)
	if err != nil {
		t.Fatalf("expected success after retries, got error: %v", err)
	}
	if n != int64(len("success")) {
		t.Errorf("written = %d", n)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestFetcherNoRetryOnClientError(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f := newTestFetcher(FetcherOptions{Retries: 3})
	_, err := f.FetchStream(context.Background(), server.URL, filepath.Join(t.TempDir(), "p"), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("4xx should not be retried, got %d attempts", got)
	}
}

func TestFetchStreamProgressKnownSize(t *testing.T) {
	const (
		size  = 10*1024 + 17
		chunk = 1024
	)
	body := strings.Repeat("x", size)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(size))
		w.Write([]byte(body))
	}))
	defer server.Close()

	f := newTestFetcher(FetcherOptions{ChunkSize: chunk})
	dest := filepath.Join(t.TempDir(), "payload")

	var percents []int
	var lastTotal int64
	_, err := f.FetchStream(context.Background(), server.URL, dest, func(done, total int64) {
		lastTotal = total
		percents = append(percents, int(done*100/total))
	})
	if err != nil {
		t.Fatalf("FetchStream failed: %v", err)
	}

	wantCalls := (size + chunk - 1) / chunk
	if len(percents) != wantCalls {
		t.Fatalf("got %d progress updates, want ceil(N/S) = %d", len(percents), wantCalls)
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Errorf("progress decreased at %d: %v", i, percents)
		}
	}
	if percents[len(percents)-1] != 100 {
		t.Errorf("final progress = %d, want 100", percents[len(percents)-1])
	}
	if lastTotal != size {
		t.Errorf("total = %d, want %d", lastTotal, size)
	}
}

func TestFetchStreamProgressSurvivesRetry(t *testing.T) {
	const size = 100 * 1024
	body := strings.Repeat("x", size)
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			// Drop the connection after 80 KiB
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("hijacking not supported")
				return
			}
			conn, buf, _ := hj.Hijack()
			buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(size) + "\r\n\r\n")
			buf.WriteString(body[:80*1024])
			buf.Flush()
			conn.Close()
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(size))
		w.Write([]byte(body))
	}))
	defer server.Close()

	f := newTestFetcher(FetcherOptions{Retries: 1})
	dest := filepath.Join(t.TempDir(), "payload")

	var seq []int64
	n, err := f.FetchStream(context.Background(), server.URL, dest, func(done, total int64) {
		seq = append(seq, done*100/total)
	})
	if err != nil {
		t.Fatalf("FetchStream failed: %v", err)
	}
	if n != size {
		t.Errorf("written = %d, want %d", n, size)
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
	for i := 1; i < len(seq); i++ {
		if seq[i] < seq[i-1] {
			t.Fatalf("progress went backwards: %v", seq)
		}
	}
	if len(seq) == 0 || seq[len(seq)-1] != 100 {
		t.Errorf("progress should end at 100: %v", seq)
	}
}

func TestFetchStreamUnknownSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 3; i++ {
			w.Write([]byte(strings.Repeat("y", 100)))
			flusher.Flush() // forces chunked encoding, no Content-Length
		}
	}))
	defer server.Close()

	f := newTestFetcher(FetcherOptions{ChunkSize: 64})
	dest := filepath.Join(t.TempDir(), "payload")

	var totals []int64
	var last int64
	_, err := f.FetchStream(context.Background(), server.URL, dest, func(done, total int64) {
		totals = append(totals, total)
		last = done
	})
	if err != nil {
		t.Fatalf("FetchStream failed: %v", err)
	}
	for _, total := range totals {
		if total != UnknownTotal {
			t.Fatalf("expected unknown total, got %d", total)
		}
	}
	if last != 300 {
		t.Errorf("final bytes = %d, want 300", last)
	}
}

func TestFetchStreamThrottlesProgress(t *testing.T) {
	body := strings.Repeat("z", 64*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	f := NewFetcher(FetcherOptions{ChunkSize: 1024, ProgressInterval: time.Hour})
	f.freeSpace = nil

	calls := 0
	var last int64
	_, err := f.FetchStream(context.Background(), server.URL, filepath.Join(t.TempDir(), "p"), func(done, total int64) {
		calls++
		last = done
	})
	if err != nil {
		t.Fatal(err)
	}
	// First chunk passes the limiter, the final report is forced
	if calls != 2 {
		t.Errorf("progress calls = %d, want 2", calls)
	}
	if last != int64(len(body)) {
		t.Errorf("final report = %d", last)
	}
}

func TestFetchStreamShortBodyRemovesPartialFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("hijacking not supported")
			return
		}
		conn, buf, _ := hj.Hijack()
		buf.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 1000\r\n\r\n")
		buf.WriteString(strings.Repeat("a", 100))
		buf.Flush()
		conn.Close()
	}))
	defer server.Close()

	f := newTestFetcher(FetcherOptions{Retries: -1})
	dest := filepath.Join(t.TempDir(), "payload")

	_, err := f.FetchStream(context.Background(), server.URL, dest, nil)
	if ErrorKind(err) != KindNetwork {
		t.Fatalf("expected network error, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("partial file should be removed")
	}
}

func TestFetchStreamContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		flusher := w.(http.Flusher)
		for i := 0; i < 1024; i++ {
			if _, err := w.Write(make([]byte, 1024)); err != nil {
				return
			}
			flusher.Flush()
			time.Sleep(time.Millisecond)
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := newTestFetcher(FetcherOptions{ChunkSize: 1024})
	dest := filepath.Join(t.TempDir(), "payload")

	_, err := f.FetchStream(ctx, server.URL, dest, func(done, total int64) {
		if done >= 4096 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("partial file should be removed after cancellation")
	}
}

func TestFetchStreamInsufficientDiskSpace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2048")
		w.Write(make([]byte, 2048))
	}))
	defer server.Close()

	f := newTestFetcher(FetcherOptions{Retries: -1})
	f.freeSpace = func(ctx context.Context, dir string) (uint64, error) { return 1024, nil }

	dest := filepath.Join(t.TempDir(), "payload")
	_, err := f.FetchStream(context.Background(), server.URL, dest, nil)

	var fsErr *FilesystemError
	if !errors.As(err, &fsErr) {
		t.Fatalf("expected FilesystemError, got %v", err)
	}
	if !strings.Contains(err.Error(), "insufficient disk space") {
		t.Errorf("unexpected message: %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("no file should be created when preflight fails")
	}
}

func TestFetchStreamBandwidthLimit(t *testing.T) {
	body := make([]byte, 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer server.Close()

	// 2 KiB/s with a 2 KiB burst: the second half waits about a second
	f := newTestFetcher(FetcherOptions{ChunkSize: 1024, BandwidthLimit: 2048})
	start := time.Now()
	if _, err := f.FetchStream(context.Background(), server.URL, filepath.Join(t.TempDir(), "p"), nil); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Errorf("bandwidth limit not applied, took %v", elapsed)
	}
}
