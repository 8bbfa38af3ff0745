package audit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/pagelens/pagelens/internal/competitor"
	"github.com/pagelens/pagelens/internal/extract"
	"github.com/pagelens/pagelens/internal/seo"
	"github.com/pagelens/pagelens/internal/urlutil"
)

// AnalyzePages runs a small bounded crawl over an external site,
// reusing the same fetch and extraction pipeline as the main audit but
// without rendering. This satisfies competitor.PageAnalyzer.
func (o *Orchestrator) AnalyzePages(ctx context.Context, rootURL string, maxPages int) ([]*extract.PageSignals, error) {
	target, err := urlutil.ResolveTarget(ctx, o.fetcher.CreateHTTPClient(0), rootURL)
	if err != nil {
		return nil, fmt.Errorf("competitor unreachable: %w", err)
	}

	canon := target.Canonicaliser()
	extractor := extract.New(canon)

	state := newCrawlState()
	root, err := canon.Normalise(target.RootURL())
	if err != nil {
		return nil, err
	}
	state.enqueue(root)

	var pages []*extract.PageSignals
	for len(pages) < maxPages {
		url, ok := state.dequeue()
		if !ok {
			break
		}

		fetched, ferr := o.fetcher.Fetch(ctx, url)
		if ferr != nil || fetched.StatusCode >= 400 {
			continue
		}

		signals, xerr := extractor.Extract(extract.Input{
			URL:        url,
			StatusCode: fetched.StatusCode,
			RawHTML:    fetched.HTML,
			// Competitor crawls skip rendering; keyword comparison only
			// needs server-delivered content.
			KeywordDepth: 10,
		})
		if xerr != nil {
			continue
		}
		pages = append(pages, signals)

		for _, link := range signals.Links.Internal {
			state.enqueue(link)
		}
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages analysed for %s", rootURL)
	}
	return pages, nil
}

// runCompetitorAnalysis attaches a competitor comparison to a finished
// audit when the tier or add-ons allow it. Failures degrade: the audit
// result stays valid without the competitor section.
func (o *Orchestrator) runCompetitorAnalysis(ctx context.Context, result *Result, req seo.AuditRequest) {
	limits := req.Tier.Limits()
	allowed := limits.MaxCompetitors
	if allowed == 0 && !req.AddOns.CompetitorAnalysis {
		return
	}
	if allowed == 0 {
		allowed = 1
	}

	urls := req.CompetitorURLs
	if len(urls) == 0 {
		return
	}
	if len(urls) > allowed {
		urls = urls[:allowed]
	}

	keywords := req.TargetKeywords
	if len(keywords) == 0 {
		keywords = siteKeywords(result.Pages)
	}

	analysis, err := competitor.New(o, o.chain).Analyze(ctx, keywords, urls)
	if err != nil {
		log.Warn().Err(err).Msg("Competitor analysis failed, audit continues without it")
		return
	}
	result.Competitor = analysis
}

// siteKeywords pools the distinct extracted keywords across the crawl.
func siteKeywords(pages []*extract.PageSignals) []string {
	seen := make(map[string]struct{})
	var keywords []string
	for _, page := range pages {
		for _, keyword := range page.Keywords {
			if _, dup := seen[keyword]; dup {
				continue
			}
			seen[keyword] = struct{}{}
			keywords = append(keywords, keyword)
		}
	}
	return keywords
}
