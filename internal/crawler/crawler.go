// Package crawler fetches raw page HTML with network timing capture.
// Rendering (JavaScript execution) lives in internal/render; this
// package is the HTTP tier both the orchestrator and the render
// fallback path rely on.
package crawler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"
)

// Crawler fetches raw HTML for individual URLs with per-request
// performance timing.
type Crawler struct {
	config     *Config
	colly      *colly.Collector
	transport  *http.Transport
	probe      *http.Client // Shared client for HEAD probes
	id         string
	metricsMap *sync.Map // Shared timing storage for the transport
}

// tracingRoundTripper captures HTTP trace metrics for each request
type tracingRoundTripper struct {
	transport  http.RoundTripper
	metricsMap *sync.Map // Maps URL -> PerfTimings
}

// RoundTrip implements the http.RoundTripper interface with httptrace instrumentation
func (t *tracingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	timings := &PerfTimings{}

	var dnsStartTime, connectStartTime, tlsStartTime time.Time
	requestStartTime := time.Now()

	trace := &httptrace.ClientTrace{
		DNSStart: func(info httptrace.DNSStartInfo) {
			dnsStartTime = time.Now()
		},
		DNSDone: func(info httptrace.DNSDoneInfo) {
			if !dnsStartTime.IsZero() {
				timings.DNSLookupTime = time.Since(dnsStartTime).Milliseconds()
			}
		},
		ConnectStart: func(network, addr string) {
			connectStartTime = time.Now()
		},
		ConnectDone: func(network, addr string, err error) {
			if err == nil && !connectStartTime.IsZero() {
				timings.TCPConnectionTime = time.Since(connectStartTime).Milliseconds()
			}
		},
		TLSHandshakeStart: func() {
			tlsStartTime = time.Now()
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			if err == nil && !tlsStartTime.IsZero() {
				timings.TLSHandshakeTime = time.Since(tlsStartTime).Milliseconds()
			}
		},
		GotFirstResponseByte: func() {
			timings.TTFB = time.Since(requestStartTime).Milliseconds()
		},
	}

	// Stored for retrieval in OnResponse
	t.metricsMap.Store(req.URL.String(), timings)

	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	return t.transport.RoundTrip(req)
}

// New creates a new Crawler instance with the given configuration and optional ID.
// If config is nil, default configuration is used.
func New(config *Config, id ...string) *Crawler {
	if config == nil {
		config = DefaultConfig()
	}

	crawlerID := ""
	if len(id) > 0 {
		crawlerID = id[0]
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 25,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     120 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true,
		ForceAttemptHTTP2:   true,
	}

	crawler := &Crawler{
		config:    config,
		transport: transport,
		probe: &http.Client{
			Timeout:   config.DefaultTimeout,
			Transport: transport,
		},
		id:         crawlerID,
		metricsMap: &sync.Map{},
	}
	crawler.colly = crawler.newCollector()

	return crawler
}

// newCollector builds the colly collector. Extra limit rules go in
// before the catch-all politeness rule: colly applies the first rule
// whose domain glob matches, so ordering decides precedence.
func (c *Crawler) newCollector(extraRules ...*colly.LimitRule) *colly.Collector {
	userAgent := c.config.UserAgent
	if c.id != "" {
		userAgent = fmt.Sprintf("%s Worker-%s", c.config.UserAgent, c.id)
	}

	col := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.MaxDepth(1),
		colly.Async(true),
		colly.AllowURLRevisit(),
		// Error pages (404/5xx) still need their status recorded, so
		// parse them as normal responses.
		colly.ParseHTTPErrorResponse(),
	)

	for _, rule := range extraRules {
		if err := col.Limit(rule); err != nil {
			log.Warn().Err(err).Str("domain_glob", rule.DomainGlob).Msg("Failed to install limit rule")
		}
	}
	col.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.config.MaxConcurrency,
		RandomDelay: time.Second / time.Duration(c.config.RateLimit),
	})

	col.SetClient(&http.Client{
		Timeout: c.config.DefaultTimeout,
		Transport: &tracingRoundTripper{
			transport:  c.transport,
			metricsMap: c.metricsMap,
		},
	})

	// Browser-like headers to avoid blocking
	col.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")

		log.Debug().
			Str("url", r.URL.String()).
			Msg("Crawler sending request")
	})

	return col
}

// maxCrawlDelay caps robots.txt Crawl-delay directives so a hostile
// value cannot stall the audit's time budget.
const maxCrawlDelay = 10 * time.Second

// WithCrawlDelay returns a Crawler that honours a robots.txt
// Crawl-delay directive for the given domain. The receiver is left
// untouched, so concurrent audits of other sites keep the default
// politeness limits. Connections and timing storage are shared.
func (c *Crawler) WithCrawlDelay(domain string, seconds int) *Crawler {
	if seconds <= 0 || domain == "" {
		return c
	}

	delay := time.Duration(seconds) * time.Second
	if delay > maxCrawlDelay {
		delay = maxCrawlDelay
	}

	derived := &Crawler{
		config:     c.config,
		transport:  c.transport,
		probe:      c.probe,
		id:         c.id,
		metricsMap: c.metricsMap,
	}
	derived.colly = derived.newCollector(&colly.LimitRule{
		DomainGlob:  "*" + domain + "*",
		Parallelism: c.config.MaxConcurrency,
		Delay:       delay,
	})

	log.Debug().
		Str("domain", domain).
		Dur("delay", delay).
		Msg("Applying robots.txt crawl delay")

	return derived
}

// validateFetchRequest validates the fetch request parameters and URL format
func validateFetchRequest(ctx context.Context, targetURL string) (*url.URL, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parsed, err := url.Parse(targetURL)
	if err != nil {
		return nil, &FetchError{URL: targetURL, Err: err}
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, &FetchError{URL: targetURL, Err: fmt.Errorf("invalid URL format: %s", targetURL)}
	}

	return parsed, nil
}

// Fetch retrieves the raw HTML for a URL. It respects context
// cancellation, enforces the per-page timeout, and returns the body even
// for non-2xx statuses so the orchestrator can record error pages.
// Transport-level failures are retried up to Config.RetryAttempts times
// with RetryDelay between attempts; timeouts and error statuses are not.
func (c *Crawler) Fetch(ctx context.Context, targetURL string) (*FetchResult, error) {
	if _, err := validateFetchRequest(ctx, targetURL); err != nil {
		return nil, err
	}

	var res *FetchResult
	var err error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			log.Debug().
				Int("attempt", attempt+1).
				Str("url", targetURL).
				Msg("Retrying fetch after transport failure")
			select {
			case <-time.After(c.config.RetryDelay):
			case <-ctx.Done():
				return res, ctx.Err()
			}
		}

		res, err = c.fetchOnce(ctx, targetURL)
		if err == nil {
			return res, nil
		}
		if !isRetryable(err, res) {
			return res, err
		}
	}
	return res, err
}

// isRetryable limits retries to transport failures: a response with a
// recorded status already reached the server, and timeouts carry the
// caller's deadline.
func isRetryable(err error, res *FetchResult) bool {
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		return false
	}
	return res == nil || res.StatusCode == 0
}

func (c *Crawler) fetchOnce(ctx context.Context, targetURL string) (*FetchResult, error) {
	start := time.Now()
	res := &FetchResult{
		URL:       targetURL,
		FetchedAt: start,
	}

	collyClone := c.colly.Clone()

	collyClone.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start_time", start)
	})

	collyClone.OnResponse(func(r *colly.Response) {
		startTime := r.Ctx.GetAny("start_time").(time.Time)

		if metricsVal, ok := c.metricsMap.LoadAndDelete(r.Request.URL.String()); ok {
			timings := metricsVal.(*PerfTimings)
			// Content transfer time is total response time minus TTFB
			if timings.TTFB > 0 {
				timings.ContentTransferTime = time.Since(startTime).Milliseconds() - timings.TTFB
			}
			res.Timings = *timings
		}

		body := r.Body
		if c.config.MaxBodyBytes > 0 && int64(len(body)) > c.config.MaxBodyBytes {
			body = body[:c.config.MaxBodyBytes]
		}

		res.ResponseTime = time.Since(startTime).Milliseconds()
		res.StatusCode = r.StatusCode
		res.ContentType = r.Headers.Get("Content-Type")
		res.ContentLength = int64(len(r.Body))
		res.HTML = string(body)
		res.Headers = r.Headers.Clone()
		res.FinalURL = r.Request.URL.String()
	})

	var fetchErr error
	collyClone.OnError(func(r *colly.Response, err error) {
		fetchErr = err

		if r != nil {
			res.StatusCode = r.StatusCode
			if startVal := r.Ctx.GetAny("start_time"); startVal != nil {
				res.ResponseTime = time.Since(startVal.(time.Time)).Milliseconds()
			}
		}
	})

	done := make(chan error, 1)
	go func() {
		visitErr := collyClone.Visit(targetURL)
		if visitErr != nil {
			done <- visitErr
			return
		}
		collyClone.Wait()
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Error().
				Err(err).
				Str("url", targetURL).
				Msg("Fetch failed")
			return res, &FetchError{URL: targetURL, Err: err}
		}
	case <-ctx.Done():
		log.Warn().
			Err(ctx.Err()).
			Str("url", targetURL).
			Msg("Fetch cancelled by context")
		if ctx.Err() == context.DeadlineExceeded {
			return res, &PageTimeoutError{URL: targetURL, Timeout: c.config.DefaultTimeout}
		}
		return res, ctx.Err()
	}

	// colly reports HTTP error statuses through OnError but still gives
	// us the response; treat those as a completed fetch.
	if fetchErr != nil && res.StatusCode == 0 {
		return res, &FetchError{URL: targetURL, Err: fetchErr}
	}

	log.Debug().
		Int("status", res.StatusCode).
		Str("url", targetURL).
		Int64("ttfb_ms", res.Timings.TTFB).
		Dur("duration_ms", time.Duration(res.ResponseTime)*time.Millisecond).
		Msg("Fetch completed")

	return res, nil
}

// Probe issues a HEAD request, returning the status code. Used for
// favicon fallback checks and competitor URL validation.
func (c *Crawler) Probe(ctx context.Context, targetURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, targetURL, nil)
	if err != nil {
		return 0, err
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")

	resp, err := c.probe.Do(req)
	if err != nil {
		return 0, &FetchError{URL: targetURL, Err: err}
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

// CreateHTTPClient returns a configured HTTP client
func (c *Crawler) CreateHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = c.config.DefaultTimeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 25,
			MaxConnsPerHost:     50,
			IdleConnTimeout:     120 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			DisableCompression:  true,
			ForceAttemptHTTP2:   true,
		},
	}
}
