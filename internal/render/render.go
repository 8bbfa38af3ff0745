// Package render provides JavaScript-rendered DOM snapshots through a
// pooled browser resource. The pool hides crashed or disconnected
// sessions behind a health probe; callers only ever see ErrUnavailable,
// which the orchestrator translates into a raw-fetch fallback.
package render

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable indicates the render subsystem could not serve the
// request. The page is still analysed from the raw fetch with a
// reduced signal set.
var ErrUnavailable = errors.New("render unavailable")

// RenderTimeoutError indicates a single page render exceeded its budget.
type RenderTimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *RenderTimeoutError) Error() string {
	return fmt.Sprintf("render of %s timed out after %s", e.URL, e.Timeout)
}

// WebVitals holds Core Web Vitals style metrics captured from the
// browser's performance APIs during a render. All time values are
// milliseconds.
type WebVitals struct {
	TTFB float64 `json:"ttfb"`
	FCP  float64 `json:"fcp"`
	LCP  float64 `json:"lcp"`
	CLS  float64 `json:"cls"`
}

// Result is a rendered DOM snapshot for one page.
type Result struct {
	HTML     string        `json:"html"`
	Title    string        `json:"title"`
	Vitals   *WebVitals    `json:"vitals,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Config controls render behaviour.
type Config struct {
	PoolSize       int           // Concurrent browser sessions (bounds memory/CPU)
	PageTimeout    time.Duration // Per-page render budget
	TitlePolls     int           // Re-checks for client-rendered titles
	TitlePollDelay time.Duration // Delay between title polls
	UserAgent      string
	Headless       bool
}

// DefaultConfig returns render defaults tuned for audit workloads.
func DefaultConfig() *Config {
	return &Config{
		PoolSize:       3,
		PageTimeout:    25 * time.Second,
		TitlePolls:     5,
		TitlePollDelay: 400 * time.Millisecond,
		Headless:       true,
	}
}
