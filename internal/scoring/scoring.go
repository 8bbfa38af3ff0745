// Package scoring converts the crawl's issues and page signals into
// five category scores and a weighted overall score. Scoring is pure:
// the same input always produces the same output, and nothing here
// mutates the pages or issues it reads.
package scoring

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/pagelens/pagelens/internal/extract"
	"github.com/pagelens/pagelens/internal/seo"
)

// Severity penalties applied per issue before spread scaling.
const (
	PenaltyHigh   = 15.0
	PenaltyMedium = 8.0
	PenaltyLow    = 3.0
)

// Weights is the contribution of each category to the overall score.
type Weights struct {
	Technical     float64
	OnPage        float64
	Content       float64
	Accessibility float64
	Performance   float64
}

// The two declared weight tables. Which one applies depends on whether
// any page produced validated performance metrics.
var (
	WeightsWithoutPerformance = Weights{
		Technical:     0.35,
		OnPage:        0.25,
		Content:       0.25,
		Accessibility: 0.15,
	}
	WeightsWithPerformance = Weights{
		Technical:     0.30,
		OnPage:        0.20,
		Content:       0.20,
		Accessibility: 0.10,
		Performance:   0.20,
	}
)

// Accessibility penalties are capped while the issue count is small so
// one missing attribute cannot collapse the category.
var accessibilityPenaltyCaps = map[int]float64{
	1: 5,
	2: 12,
}

// Scores is the scoring engine's output.
type Scores struct {
	Technical     float64 `json:"technical"`
	OnPage        float64 `json:"on_page"`
	Content       float64 `json:"content"`
	Accessibility float64 `json:"accessibility"`
	// Performance is meaningful only when PerformanceAvailable is true.
	Performance          float64 `json:"performance"`
	PerformanceAvailable bool    `json:"performance_available"`
	Overall              float64 `json:"overall"`
}

// Result carries the scores plus any metric-validation warnings raised
// while preparing performance data.
type Result struct {
	Scores   Scores
	Warnings []ValidationWarning
}

// Score computes all category scores and the overall score from the
// crawl's issues and analysed pages.
func Score(issues []seo.Issue, pages []*extract.PageSignals) *Result {
	result := &Result{}
	totalPages := len(pages)

	penalties := make(map[seo.Category]float64)
	counts := make(map[seo.Category]int)
	for _, issue := range issues {
		if !issue.Category.Valid() {
			log.Warn().Str("category", string(issue.Category)).Str("title", issue.Title).
				Msg("Issue with unknown category excluded from scoring")
			continue
		}
		penalties[issue.Category] += issuePenalty(issue, totalPages)
		counts[issue.Category]++
	}

	accessibilityPenalty := penalties[seo.CategoryAccessibility]
	if limit, ok := accessibilityPenaltyCaps[counts[seo.CategoryAccessibility]]; ok && accessibilityPenalty > limit {
		accessibilityPenalty = limit
	}

	result.Scores.Technical = clamp(100 - penalties[seo.CategoryTechnical])
	result.Scores.OnPage = clamp(100 - penalties[seo.CategoryOnPage])
	result.Scores.Accessibility = clamp(100 - accessibilityPenalty)

	content := 100 - penalties[seo.CategoryContent]
	if ceiling, capped := readabilityCap(pages); capped && content > ceiling {
		content = ceiling
	}
	result.Scores.Content = clamp(content)

	perfScore, perfWarnings, perfAvailable := performanceScore(pages, penalties[seo.CategoryPerformance])
	result.Warnings = perfWarnings
	result.Scores.PerformanceAvailable = perfAvailable
	if perfAvailable {
		result.Scores.Performance = perfScore
	}

	result.Scores.Overall = overall(result.Scores)
	return result
}

// issuePenalty is the severity penalty scaled by how widely the issue
// spreads across the crawl. A single-page issue carries half weight; a
// sitewide issue carries full weight but still only counts once, so a
// systemic template problem cannot zero a category on its own.
func issuePenalty(issue seo.Issue, totalPages int) float64 {
	base := PenaltyLow
	switch issue.Severity {
	case seo.SeverityHigh:
		base = PenaltyHigh
	case seo.SeverityMedium:
		base = PenaltyMedium
	}

	if totalPages == 0 {
		return base
	}
	affected := len(issue.AffectedURLs)
	if affected > totalPages {
		affected = totalPages
	}
	spread := 0.5 + 0.5*(float64(affected)/float64(totalPages))
	return base * spread
}

// readabilityCap derives a ceiling for the Content score from sitewide
// readability. Content quality and issue count are independent signals:
// very hard text caps the score into 40-70 even with zero issues.
func readabilityCap(pages []*extract.PageSignals) (float64, bool) {
	var fleschSum, sentenceSum float64
	counted := 0
	for _, page := range pages {
		if page.WordCount == 0 {
			continue
		}
		fleschSum += page.Readability.FleschScore
		sentenceSum += page.Readability.AvgSentenceLength
		counted++
	}
	if counted == 0 {
		return 0, false
	}
	flesch := fleschSum / float64(counted)
	sentence := sentenceSum / float64(counted)

	switch {
	case flesch >= 60:
		return 0, false
	case flesch >= 30:
		return 70 + (flesch - 30), true
	default:
		// Very hard text: the ceiling lands in [40,70], pushed toward
		// 40 by long sentences but never below it.
		ceiling := 40 + flesch
		if sentence > 25 {
			ceiling -= math.Min(ceiling-40, (sentence-25)*0.25)
		}
		return ceiling, true
	}
}

func overall(s Scores) float64 {
	w := WeightsWithoutPerformance
	if s.PerformanceAvailable {
		w = WeightsWithPerformance
	}
	total := s.Technical*w.Technical +
		s.OnPage*w.OnPage +
		s.Content*w.Content +
		s.Accessibility*w.Accessibility
	if s.PerformanceAvailable {
		total += s.Performance * w.Performance
	}
	return clamp(total)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
