package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html><head><title>Hello</title></head><body>Hello, World!</body></html>"))
	}))
	defer ts.Close()

	crawler := New(DefaultConfig())
	result, err := crawler.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result.StatusCode != http.StatusOK {
		t.Errorf("Expected status code %d, got %d", http.StatusOK, result.StatusCode)
	}

	if result.HTML == "" {
		t.Error("Expected HTML body to be captured")
	}

	if result.ContentType != "text/html; charset=utf-8" {
		t.Errorf("Unexpected content type %q", result.ContentType)
	}
}

func TestFetchTimings(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Millisecond) // Small delay to ensure measurable times
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("timing test response"))
	}))
	defer ts.Close()

	crawler := New(DefaultConfig())
	result, err := crawler.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	t.Logf("Timings: dns=%dms tcp=%dms tls=%dms ttfb=%dms transfer=%dms total=%dms",
		result.Timings.DNSLookupTime,
		result.Timings.TCPConnectionTime,
		result.Timings.TLSHandshakeTime,
		result.Timings.TTFB,
		result.Timings.ContentTransferTime,
		result.ResponseTime)

	if result.Timings.TTFB == 0 {
		t.Error("Expected TTFB to be captured with delayed response")
	}
}

func TestFetchErrorStatuses(t *testing.T) {
	statuses := []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusForbidden}

	for _, status := range statuses {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte("error page"))
		}))

		crawler := New(DefaultConfig())
		result, err := crawler.Fetch(context.Background(), ts.URL)
		ts.Close()

		if err != nil {
			t.Errorf("status %d: expected fetch to succeed with status recorded, got error %v", status, err)
			continue
		}
		if result.StatusCode != status {
			t.Errorf("Expected status code %d, got %d", status, result.StatusCode)
		}
	}
}

func TestFetchInvalidURL(t *testing.T) {
	crawler := New(DefaultConfig())

	_, err := crawler.Fetch(context.Background(), "not-a-url")
	if err == nil {
		t.Fatal("Expected error for invalid URL")
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Errorf("Expected FetchError, got %T", err)
	}
}

func TestFetchNetworkFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryAttempts = 0
	crawler := New(cfg)

	_, err := crawler.Fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	if err == nil {
		t.Fatal("Expected error for unreachable host")
	}
}

func TestFetchRetriesTransportErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// Drop the connection before writing a response so the
			// client sees a transport error, not an HTTP status.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("server does not support hijacking")
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Fatalf("hijack failed: %v", err)
			}
			conn.Close()
			return
		}
		fmt.Fprint(w, "<html><head><title>ok</title></head><body>recovered</body></html>")
	}))
	defer ts.Close()

	cfg := DefaultConfig()
	cfg.RetryAttempts = 1
	cfg.RetryDelay = 10 * time.Millisecond
	crawler := New(cfg)

	result, err := crawler.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Expected retry to recover, got %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 after retry, got %d", result.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected 2 requests (initial + retry), got %d", got)
	}
}

func TestFetchDoesNotRetryErrorStatuses(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	cfg := DefaultConfig()
	cfg.RetryAttempts = 2
	cfg.RetryDelay = 10 * time.Millisecond
	crawler := New(cfg)

	result, err := crawler.Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Expected error status to be a completed fetch, got %v", err)
	}
	if result.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", result.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected a single request for an error status, got %d", got)
	}
}

func TestWithCrawlDelaySlowsSameDomain(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><head><title>ok</title></head><body>ok</body></html>")
	}))
	defer ts.Close()

	cfg := DefaultConfig()
	cfg.RetryAttempts = 0
	polite := New(cfg).WithCrawlDelay("127.0.0.1", 1)

	start := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := polite.Fetch(context.Background(), fmt.Sprintf("%s/p/%d", ts.URL, i)); err != nil {
			t.Fatalf("Fetch %d failed: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("Expected crawl delay to slow consecutive fetches, elapsed %v", elapsed)
	}
}

func TestWithCrawlDelayNoop(t *testing.T) {
	crawler := New(DefaultConfig())

	if crawler.WithCrawlDelay("example.com", 0) != crawler {
		t.Error("Expected zero delay to return the same crawler")
	}
	if crawler.WithCrawlDelay("", 5) != crawler {
		t.Error("Expected empty domain to return the same crawler")
	}
	// A hostile Crawl-delay must not install an hour-long wait; the
	// derived crawler caps the delay within the audit's time budget.
	if crawler.WithCrawlDelay("example.com", 3600) == crawler {
		t.Error("Expected a positive delay to derive a new crawler")
	}
}

func TestFetchContextCancellation(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	crawler := New(DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := crawler.Fetch(ctx, ts.URL)
	if err == nil {
		t.Fatal("Expected error from cancelled context")
	}
}

func TestFetchTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	crawler := New(DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := crawler.Fetch(ctx, ts.URL)
	if err == nil {
		t.Fatal("Expected timeout error")
	}

	var timeoutErr *PageTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Errorf("Expected PageTimeoutError, got %T: %v", err, err)
	}
}

func TestProbe(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("Expected HEAD request, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	crawler := New(DefaultConfig())
	status, err := crawler.Probe(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("Expected 200, got %d", status)
	}
}
