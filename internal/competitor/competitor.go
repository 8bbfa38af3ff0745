// Package competitor crawls a small set of competitor sites through the
// same fetch/extract pipeline as the main audit and compares their
// keyword profiles against the target site's.
package competitor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pagelens/pagelens/internal/extract"
)

// DegradedConfidenceThreshold is the fraction of requested competitor
// crawls below which the analysis must be reported as degraded.
const DegradedConfidenceThreshold = 0.5

// PagesPerCompetitor bounds each competitor crawl to the homepage plus
// a few key pages.
const PagesPerCompetitor = 5

// PageAnalyzer runs a bounded crawl-and-extract over a site. The audit
// orchestrator satisfies this; competitor analysis never grows its own
// parsing logic.
type PageAnalyzer interface {
	AnalyzePages(ctx context.Context, rootURL string, maxPages int) ([]*extract.PageSignals, error)
}

// Crawl is the outcome of one competitor crawl.
type Crawl struct {
	URL          string   `json:"url"`
	PagesCrawled int      `json:"pages_crawled"`
	Keywords     []string `json:"keywords,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Analysis is the competitor comparison result. SuggestedKeywords are
// present only when a fallback provider supplied guesses; they are kept
// apart from crawl-derived keywords.
type Analysis struct {
	Crawls             []Crawl  `json:"crawls"`
	SharedKeywords     []string `json:"shared_keywords"`
	GapKeywords        []string `json:"gap_keywords"`
	Confidence         float64  `json:"confidence"`
	Degraded           bool     `json:"degraded"`
	SuggestedKeywords  []string `json:"suggested_keywords,omitempty"`
	SuggestionsGuessed bool     `json:"suggestions_guessed,omitempty"`
}

// Analyzer compares competitor keyword profiles against the audit
// target's keywords.
type Analyzer struct {
	pages PageAnalyzer
	chain *Chain
}

// New creates an Analyzer. chain may be nil when keyword suggestion is
// not configured.
func New(pages PageAnalyzer, chain *Chain) *Analyzer {
	return &Analyzer{pages: pages, chain: chain}
}

// Analyze crawls each competitor and computes keyword overlap. Failed
// crawls reduce confidence but never abort the analysis.
func (a *Analyzer) Analyze(ctx context.Context, targetKeywords, competitorURLs []string) (*Analysis, error) {
	if len(competitorURLs) == 0 {
		return nil, fmt.Errorf("no competitor URLs supplied")
	}

	analysis := &Analysis{}
	succeeded := 0

	competitorKeywords := make(map[string]struct{})
	for _, rawURL := range competitorURLs {
		crawl := Crawl{URL: rawURL}

		pages, err := a.pages.AnalyzePages(ctx, rawURL, PagesPerCompetitor)
		if err != nil || len(pages) == 0 {
			if err == nil {
				err = fmt.Errorf("no pages analysed")
			}
			crawl.Error = err.Error()
			log.Warn().Err(err).Str("competitor", rawURL).
				Msg("Competitor crawl failed, confidence reduced")
			analysis.Crawls = append(analysis.Crawls, crawl)
			continue
		}

		succeeded++
		crawl.PagesCrawled = len(pages)
		seen := make(map[string]struct{})
		for _, page := range pages {
			for _, keyword := range page.Keywords {
				keyword = strings.ToLower(keyword)
				if _, dup := seen[keyword]; dup {
					continue
				}
				seen[keyword] = struct{}{}
				crawl.Keywords = append(crawl.Keywords, keyword)
				competitorKeywords[keyword] = struct{}{}
			}
		}
		sort.Strings(crawl.Keywords)
		analysis.Crawls = append(analysis.Crawls, crawl)
	}

	analysis.Confidence = float64(succeeded) / float64(len(competitorURLs))
	analysis.Degraded = analysis.Confidence < DegradedConfidenceThreshold

	target := make(map[string]struct{}, len(targetKeywords))
	for _, keyword := range targetKeywords {
		target[strings.ToLower(keyword)] = struct{}{}
	}

	for keyword := range competitorKeywords {
		if _, shared := target[keyword]; shared {
			analysis.SharedKeywords = append(analysis.SharedKeywords, keyword)
		} else {
			analysis.GapKeywords = append(analysis.GapKeywords, keyword)
		}
	}
	sort.Strings(analysis.SharedKeywords)
	sort.Strings(analysis.GapKeywords)

	// When every crawl failed, fall back to suggested keywords so the
	// report still carries something useful, clearly labeled.
	if succeeded == 0 && a.chain != nil {
		suggestion := a.chain.Suggest(ctx, targetKeywords, "")
		if suggestion.OK {
			analysis.SuggestedKeywords = suggestion.Keywords
			analysis.SuggestionsGuessed = suggestion.Fallback
		}
	}

	log.Info().
		Int("requested", len(competitorURLs)).
		Int("succeeded", succeeded).
		Float64("confidence", analysis.Confidence).
		Bool("degraded", analysis.Degraded).
		Msg("Competitor analysis complete")

	return analysis, nil
}
