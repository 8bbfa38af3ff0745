// Package audit runs the crawl-and-analysis pipeline: it owns the
// frontier, fans page fetches out to a bounded worker set, and folds
// the extracted signals into a scored Result.
package audit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagelens/pagelens/internal/competitor"
	"github.com/pagelens/pagelens/internal/crawler"
	"github.com/pagelens/pagelens/internal/duplicates"
	"github.com/pagelens/pagelens/internal/extract"
	"github.com/pagelens/pagelens/internal/linkgraph"
	"github.com/pagelens/pagelens/internal/observability"
	"github.com/pagelens/pagelens/internal/pagespeed"
	"github.com/pagelens/pagelens/internal/render"
	"github.com/pagelens/pagelens/internal/scoring"
	"github.com/pagelens/pagelens/internal/seo"
	"github.com/pagelens/pagelens/internal/techdetect"
	"github.com/pagelens/pagelens/internal/urlutil"
)

// Config controls orchestrator behaviour shared across audits.
type Config struct {
	// Concurrency bounds simultaneous fetch/render operations per audit.
	Concurrency int
	// PerPageTimeout cancels a single page without failing the crawl.
	PerPageTimeout time.Duration
	// MaxSitemaps bounds how many sitemap files seed the frontier.
	MaxSitemaps int
}

// DefaultConfig returns orchestrator defaults.
func DefaultConfig() *Config {
	return &Config{
		Concurrency:    3,
		PerPageTimeout: 45 * time.Second,
		MaxSitemaps:    3,
	}
}

// Orchestrator coordinates one or more audits. All per-audit state
// lives in local variables inside Run, so a single Orchestrator serves
// concurrent audits safely.
type Orchestrator struct {
	cfg      *Config
	fetcher  *crawler.Crawler
	pool     *render.Pool         // nil disables rendering
	perf     *pagespeed.Client    // nil disables performance metrics
	detector *techdetect.Detector // nil disables platform detection
	chain    *competitor.Chain    // nil disables keyword suggestion fallback
}

// New creates an Orchestrator. pool, perf, detector and chain are all
// optional; a nil dependency disables the corresponding capability.
func New(cfg *Config, fetcher *crawler.Crawler, pool *render.Pool, perf *pagespeed.Client, detector *techdetect.Detector, chain *competitor.Chain) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{
		cfg:      cfg,
		fetcher:  fetcher,
		pool:     pool,
		perf:     perf,
		detector: detector,
		chain:    chain,
	}
}

// pageOutcome is what one worker reports back to the coordinator.
type pageOutcome struct {
	url      string
	signals  *extract.PageSignals
	skip     *SkippedPage
	degraded bool
	headers  http.Header
	rawHTML  string
}

// Run executes a full audit. It always returns a Result; the error is
// non-nil only for audit-level failures (invalid input, root URL
// unreachable), in which case the Result carries the Failed state.
func (o *Orchestrator) Run(ctx context.Context, req seo.AuditRequest) (*Result, error) {
	limits := req.Tier.Limits()
	result := newResult(req.Tier)

	ctx, cancel := context.WithTimeout(ctx, limits.AuditTimeout)
	defer cancel()

	ctx, span := observability.StartAuditSpan(ctx, observability.AuditSpanInfo{
		AuditID: result.ID,
		Domain:  req.URL,
		Tier:    string(req.Tier),
	})
	defer span.End()

	finish := func() {
		result.FinishedAt = time.Now().UTC()
		result.Diag.Duration = result.FinishedAt.Sub(result.StartedAt)
		observability.RecordAudit(ctx, observability.AuditMetrics{
			Tier:     string(result.Tier),
			State:    string(result.State),
			Pages:    result.Diag.PagesCrawled,
			Duration: result.Diag.Duration,
		})
	}

	fail := func(err error) (*Result, error) {
		result.State = StateFailed
		result.Error = err.Error()
		finish()
		return result, err
	}

	target, err := urlutil.ResolveTarget(ctx, o.fetcher.CreateHTTPClient(0), req.URL)
	if err != nil {
		log.Error().Err(err).Str("url", req.URL).Msg("Audit target unreachable")
		return fail(fmt.Errorf("root URL unreachable: %w", err))
	}
	result.Target = target
	canon := target.Canonicaliser()
	extractor := extract.New(canon)

	state := newCrawlState()
	rootURL, err := canon.Normalise(target.RootURL())
	if err != nil {
		return fail(err)
	}
	state.enqueue(rootURL)

	result.State = StateCrawling
	robots := o.seedFromSite(ctx, state, canon, target, result, limits.MaxPages)
	if robots != nil && robots.DisallowAll {
		return fail(fmt.Errorf("crawling disallowed by robots.txt for %s", target.RootDomain))
	}

	fetcher := o.fetcher
	if robots != nil && robots.CrawlDelay > 0 {
		fetcher = fetcher.WithCrawlDelay(target.RootDomain, robots.CrawlDelay)
		result.Diag.CrawlDelay = robots.CrawlDelay
	}

	o.crawl(ctx, fetcher, state, extractor, result, rootURL, limits)
	if len(result.Pages) == 0 {
		return fail(fmt.Errorf("no pages could be analysed for %s", target.RootDomain))
	}
	annotateRobotsBlocked(result, robots)

	result.State = StateAggregating
	o.aggregate(ctx, result, canon, rootURL, analyzersFor(limits, req.AddOns), limits)

	result.State = StateScored
	scored := scoring.Score(result.Issues, result.Pages)
	result.Scores = scored.Scores
	result.Diag.Warnings = scored.Warnings

	if len(req.CompetitorURLs) > 0 {
		o.runCompetitorAnalysis(ctx, result, req)
	}

	result.State = StateDone
	finish()

	log.Info().
		Str("audit_id", result.ID).
		Str("domain", target.RootDomain).
		Int("pages", result.Diag.PagesCrawled).
		Int("skipped", result.Diag.PagesSkipped).
		Float64("overall", result.Scores.Overall).
		Dur("duration", result.Diag.Duration).
		Msg("Audit complete")

	return result, nil
}

// seedFromSite parses robots.txt and sitemaps, recording disallowed
// paths as diagnostics and seeding the frontier with sitemap URLs.
func (o *Orchestrator) seedFromSite(ctx context.Context, state *crawlState, canon *urlutil.Canonicaliser, target *urlutil.CrawlTarget, result *Result, budget int) *crawler.RobotsRules {
	discovery, err := o.fetcher.DiscoverSitemapsAndRobots(ctx, target.RootURL())
	if err != nil {
		log.Debug().Err(err).Msg("Sitemap discovery failed, crawling from root only")
		return nil
	}

	result.Diag.DisallowedPaths = discovery.RobotsRules.DisallowPatterns

	sitemaps := discovery.Sitemaps
	if len(sitemaps) > o.cfg.MaxSitemaps {
		sitemaps = sitemaps[:o.cfg.MaxSitemaps]
	}
	for _, sitemapURL := range sitemaps {
		urls, perr := o.fetcher.ParseSitemap(ctx, sitemapURL)
		if perr != nil {
			log.Debug().Err(perr).Str("sitemap", sitemapURL).Msg("Sitemap parse failed")
			continue
		}
		for _, raw := range urls {
			if state.pending() >= budget {
				break
			}
			if !canon.IsInternal(raw) {
				continue
			}
			canonical, nerr := canon.Normalise(raw)
			if nerr != nil {
				continue
			}
			state.enqueue(canonical)
		}
	}
	return discovery.RobotsRules
}

// crawl runs the coordinating loop. The frontier and visited set are
// only touched here; workers do the fetching and report back through a
// channel.
func (o *Orchestrator) crawl(ctx context.Context, fetcher *crawler.Crawler, state *crawlState, extractor *extract.Extractor, result *Result, rootURL string, limits seo.TierLimits) {
	outcomes := make(chan *pageOutcome)
	inflight := 0
	dispatched := 0

	var homepageOutcome *pageOutcome

	for {
		// Dispatch while there is budget, capacity, and time left.
		if ctx.Err() == nil {
			for inflight < o.cfg.Concurrency && dispatched < limits.MaxPages {
				url, ok := state.dequeue()
				if !ok {
					break
				}
				dispatched++
				inflight++
				go func(u string) {
					outcomes <- o.crawlPage(ctx, fetcher, extractor, u, limits.KeywordDepth)
				}(url)
			}
		}
		if inflight == 0 {
			break
		}

		outcome := <-outcomes
		inflight--

		if outcome.skip != nil {
			result.Diag.PagesSkipped++
			result.Diag.SkippedPages = append(result.Diag.SkippedPages, *outcome.skip)
			continue
		}

		result.Pages = append(result.Pages, outcome.signals)
		result.Diag.PagesCrawled++
		if outcome.degraded {
			result.Diag.RenderingDegraded++
		}
		// Platform detection samples the homepage when it completed,
		// falling back to whichever page finished first.
		if homepageOutcome == nil || outcome.url == rootURL {
			homepageOutcome = outcome
		}

		for _, link := range outcome.signals.Links.Internal {
			state.enqueue(link)
		}
	}

	if o.detector != nil && homepageOutcome != nil {
		detection := o.detector.Detect(homepageOutcome.headers, []byte(homepageOutcome.rawHTML))
		result.Diag.DetectedPlatform = detection.Platform()
	}
}

// crawlPage fetches, optionally renders, and extracts a single page.
// Every failure is local: the outcome records a skip reason and the
// crawl moves on.
func (o *Orchestrator) crawlPage(ctx context.Context, fetcher *crawler.Crawler, extractor *extract.Extractor, canonicalURL string, keywordDepth int) *pageOutcome {
	outcome := &pageOutcome{url: canonicalURL}

	pageCtx, cancel := context.WithTimeout(ctx, o.cfg.PerPageTimeout)
	defer cancel()

	fetched, err := fetcher.Fetch(pageCtx, canonicalURL)
	if err != nil {
		var timeout *crawler.PageTimeoutError
		reason := "fetch failed"
		if errors.As(err, &timeout) {
			reason = "page timeout"
		}
		outcome.skip = &SkippedPage{URL: canonicalURL, Reason: fmt.Sprintf("%s: %v", reason, err)}
		return outcome
	}

	// Client and server error pages are recorded, not analysed.
	if fetched.StatusCode >= 400 {
		outcome.skip = &SkippedPage{
			URL:        canonicalURL,
			StatusCode: fetched.StatusCode,
			Reason:     fmt.Sprintf("error status %d", fetched.StatusCode),
		}
		return outcome
	}
	if ct := fetched.ContentType; ct != "" && !strings.Contains(ct, "html") {
		outcome.skip = &SkippedPage{
			URL:        canonicalURL,
			StatusCode: fetched.StatusCode,
			Reason:     fmt.Sprintf("non-HTML content type %q", ct),
		}
		return outcome
	}

	outcome.headers = fetched.Headers
	outcome.rawHTML = fetched.HTML

	var renderedHTML, renderedTitle string
	var vitals *render.WebVitals
	if o.pool != nil {
		rendered, rerr := o.renderPage(pageCtx, canonicalURL)
		if rerr != nil {
			outcome.degraded = true
			log.Debug().Err(rerr).Str("url", canonicalURL).
				Msg("Render degraded to raw fetch")
		} else {
			renderedHTML = rendered.HTML
			renderedTitle = rendered.Title
			vitals = rendered.Vitals
		}
	}

	signals, err := extractor.Extract(extract.Input{
		URL:               canonicalURL,
		StatusCode:        fetched.StatusCode,
		RawHTML:           fetched.HTML,
		RenderedHTML:      renderedHTML,
		RenderedTitle:     renderedTitle,
		RenderingDegraded: outcome.degraded,
		KeywordDepth:      keywordDepth,
	})
	if err != nil {
		outcome.skip = &SkippedPage{URL: canonicalURL, Reason: fmt.Sprintf("extraction failed: %v", err)}
		return outcome
	}

	signals.Performance = o.performanceFor(pageCtx, canonicalURL, fetched, vitals)
	outcome.signals = signals
	return outcome
}

func (o *Orchestrator) renderPage(ctx context.Context, url string) (*render.Result, error) {
	session, err := o.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer o.pool.Release(session)
	return session.Render(ctx, url)
}

// performanceFor picks the best available metrics source: the external
// metrics API first, then browser-captured vitals, then the fetch's
// network timings for TTFB alone. Nil when nothing usable exists.
func (o *Orchestrator) performanceFor(ctx context.Context, url string, fetched *crawler.FetchResult, vitals *render.WebVitals) *extract.PerformanceMetrics {
	if o.perf != nil && o.perf.Enabled() {
		if metrics := o.perf.Metrics(ctx, url); metrics != nil {
			return metrics
		}
	}
	if vitals != nil && (vitals.LCP > 0 || vitals.FCP > 0) {
		return &extract.PerformanceMetrics{
			LCP:  vitals.LCP,
			FCP:  vitals.FCP,
			CLS:  vitals.CLS,
			TTFB: vitals.TTFB,
		}
	}
	if fetched.Timings.TTFB > 0 {
		return &extract.PerformanceMetrics{TTFB: float64(fetched.Timings.TTFB)}
	}
	return nil
}

// annotateRobotsBlocked records crawled URLs a robots.txt rule
// disallows. Robots rules are informational for the audit, but the
// diagnostics surface pages the site hides from well-behaved crawlers.
func annotateRobotsBlocked(result *Result, robots *crawler.RobotsRules) {
	if robots == nil || (len(robots.DisallowPatterns) == 0 && !robots.DisallowAll) {
		return
	}
	for _, page := range result.Pages {
		parsed, err := url.Parse(page.URL)
		if err != nil {
			continue
		}
		if !crawler.IsPathAllowed(robots, parsed.Path) {
			result.Diag.RobotsBlockedURLs = append(result.Diag.RobotsBlockedURLs, page.URL)
		}
	}
}

// aggregate runs the post-crawl analysers: per-page issue detection,
// favicon fallback probe, duplicate detection, and the link graph.
func (o *Orchestrator) aggregate(ctx context.Context, result *Result, canon *urlutil.Canonicaliser, rootURL string, enabled analyzers, limits seo.TierLimits) {
	result.Issues = append(result.Issues, detectPageIssues(result.Pages, enabled)...)

	if issue := o.faviconIssue(ctx, result); issue != nil {
		result.Issues = append(result.Issues, *issue)
	}

	dupes := duplicates.New(canon, result.Target.PreferredHostname).Detect(result.Pages)
	result.Issues = append(result.Issues, dupes.Issues...)

	if limits.LinkGraph {
		graph := linkgraph.Build(result.Pages, rootURL)
		result.LinkGraph = graph.Nodes
		result.Issues = append(result.Issues, graph.Issues...)
	}
}

// faviconIssue probes /favicon.ico when no crawled page declared a
// favicon link tag.
func (o *Orchestrator) faviconIssue(ctx context.Context, result *Result) *seo.Issue {
	for _, page := range result.Pages {
		if page.Social.Favicon.Present {
			return nil
		}
	}

	// An exhausted audit budget cannot distinguish a missing favicon
	// from an unprobeable one.
	if ctx.Err() != nil {
		return nil
	}

	status, err := o.fetcher.Probe(ctx, result.Target.RootURL()+"favicon.ico")
	if err == nil && status == http.StatusOK {
		return nil
	}
	if err != nil && ctx.Err() != nil {
		return nil
	}

	return &seo.Issue{
		Category:        seo.CategoryTechnical,
		Severity:        seo.SeverityLow,
		Title:           "No favicon found",
		Description:     "No page declares a favicon link tag and /favicon.ico does not resolve. Browsers and search results show a blank icon for the site.",
		AffectedURLs:    []string{result.Pages[0].URL},
		FixInstructions: "Add a favicon and reference it with a <link rel=\"icon\"> tag in the site template.",
	}
}
