package crawler

import (
	"fmt"
	"net/http"
	"time"
)

// PerfTimings holds network-level timing measured via httptrace for a
// single request. All values are milliseconds.
type PerfTimings struct {
	DNSLookupTime       int64 `json:"dns_lookup_time"`
	TCPConnectionTime   int64 `json:"tcp_connection_time"`
	TLSHandshakeTime    int64 `json:"tls_handshake_time"`
	TTFB                int64 `json:"ttfb"`
	ContentTransferTime int64 `json:"content_transfer_time"`
}

// FetchResult represents the outcome of fetching a single URL's raw HTML
type FetchResult struct {
	URL           string      `json:"url"`
	FinalURL      string      `json:"final_url"`
	StatusCode    int         `json:"status_code"`
	HTML          string      `json:"html"`
	Headers       http.Header `json:"headers,omitempty"`
	ContentType   string      `json:"content_type"`
	ContentLength int64       `json:"content_length"`
	ResponseTime  int64       `json:"response_time"`
	Timings       PerfTimings `json:"timings"`
	FetchedAt     time.Time   `json:"fetched_at"`
}

// FetchError indicates a network or DNS level failure for one page. The
// page is skipped and the crawl continues.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PageTimeoutError indicates a single page exceeded its fetch/render
// budget. Recorded as skipped, never fatal to the crawl.
type PageTimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *PageTimeoutError) Error() string {
	return fmt.Sprintf("page %s timed out after %s", e.URL, e.Timeout)
}
