package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// vitalsScript reads navigation and paint entries from the page's
// performance APIs. LCP uses the last observed entry; CLS needs a
// PerformanceObserver registered before load, so the buffered entries
// are used where the browser exposes them.
const vitalsScript = `(() => {
	const nav = performance.getEntriesByType('navigation')[0];
	const paint = performance.getEntriesByType('paint');
	const fcpEntry = paint.find((p) => p.name === 'first-contentful-paint');
	const lcpEntries = performance.getEntriesByType('largest-contentful-paint');
	let cls = 0;
	for (const entry of performance.getEntriesByType('layout-shift')) {
		if (!entry.hadRecentInput) cls += entry.value;
	}
	return {
		ttfb: nav ? nav.responseStart : 0,
		fcp: fcpEntry ? fcpEntry.startTime : 0,
		lcp: lcpEntries.length ? lcpEntries[lcpEntries.length - 1].startTime : 0,
		cls: cls,
	};
})()`

// chromeSession is a Session backed by a headless Chrome instance.
type chromeSession struct {
	cfg         *Config
	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
}

// NewChromeSession starts a headless browser session.
func NewChromeSession(cfg *Config) (Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Start the browser process now so a broken Chrome install fails
	// fast instead of on the first page.
	startCtx, startCancel := context.WithTimeout(browserCtx, 15*time.Second)
	defer startCancel()
	if err := chromedp.Run(startCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &chromeSession{
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
	}, nil
}

// Render navigates to url in a fresh tab and captures the rendered DOM,
// the title (polled for client-rendered pages) and web vitals.
func (s *chromeSession) Render(ctx context.Context, url string) (*Result, error) {
	start := time.Now()

	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	defer tabCancel()

	timeout := s.cfg.PageTimeout
	runCtx, runCancel := context.WithTimeout(tabCtx, timeout)
	defer runCancel()

	// Honour the caller's cancellation as well.
	go func() {
		select {
		case <-ctx.Done():
			runCancel()
		case <-runCtx.Done():
		}
	}()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &RenderTimeoutError{URL: url, Timeout: timeout}
		}
		return nil, fmt.Errorf("%w: navigation failed: %v", ErrUnavailable, err)
	}

	// Client-rendered pages often populate <title> after load; poll a
	// bounded number of times before accepting an empty title.
	var title string
	for poll := 0; poll < s.cfg.TitlePolls; poll++ {
		if err := chromedp.Run(runCtx, chromedp.Title(&title)); err != nil {
			break
		}
		if title != "" {
			break
		}
		select {
		case <-time.After(s.cfg.TitlePollDelay):
		case <-runCtx.Done():
		}
		if runCtx.Err() != nil {
			break
		}
	}

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &RenderTimeoutError{URL: url, Timeout: timeout}
		}
		return nil, fmt.Errorf("%w: snapshot failed: %v", ErrUnavailable, err)
	}

	vitals := &WebVitals{}
	if err := chromedp.Run(runCtx, chromedp.Evaluate(vitalsScript, vitals)); err != nil {
		log.Debug().
			Err(err).
			Str("url", url).
			Msg("Web vitals capture failed, continuing without")
		vitals = nil
	}

	return &Result{
		HTML:     html,
		Title:    title,
		Vitals:   vitals,
		Duration: time.Since(start),
	}, nil
}

// HealthCheck runs a trivial script to confirm the browser still responds.
func (s *chromeSession) HealthCheck(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(s.browserCtx, 3*time.Second)
	defer cancel()

	var result int
	if err := chromedp.Run(probeCtx, chromedp.Evaluate("1+1", &result)); err != nil {
		return fmt.Errorf("browser unresponsive: %w", err)
	}
	return nil
}

// Close shuts down the browser.
func (s *chromeSession) Close() error {
	s.cancel()
	s.allocCancel()
	return nil
}
