package scoring

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/pagelens/pagelens/internal/extract"
)

// ValidationWarning records a performance metric that violated the
// TTFB <= FCP <= LCP ordering and was corrected before scoring.
type ValidationWarning struct {
	URL       string  `json:"url"`
	Metric    string  `json:"metric"`
	Original  float64 `json:"original"`
	Corrected float64 `json:"corrected"`
	Message   string  `json:"message"`
}

// Core Web Vitals thresholds in milliseconds (CLS is unitless). A
// metric at or under Good scores 100, at Poor scores 30, linear in
// between, and decays toward 0 past Poor.
type vitalThreshold struct {
	good float64
	poor float64
}

var vitalThresholds = map[string]vitalThreshold{
	"lcp":  {good: 2500, poor: 4000},
	"fcp":  {good: 1800, poor: 3000},
	"ttfb": {good: 800, poor: 1800},
	"cls":  {good: 0.1, poor: 0.25},
}

// ValidateMetrics enforces the physical ordering TTFB <= FCP <= LCP.
// Violations are corrected toward the nearest consistent value and
// reported as warnings, never silently passed through. The input is
// not mutated; a corrected copy is returned.
func ValidateMetrics(url string, m *extract.PerformanceMetrics) (*extract.PerformanceMetrics, []ValidationWarning) {
	if m == nil {
		return nil, nil
	}

	corrected := *m
	var warnings []ValidationWarning

	warn := func(metric string, original, value float64) {
		w := ValidationWarning{
			URL:       url,
			Metric:    metric,
			Original:  original,
			Corrected: value,
			Message:   fmt.Sprintf("%s %.0fms violates ttfb<=fcp<=lcp ordering, corrected to %.0fms", metric, original, value),
		}
		warnings = append(warnings, w)
		log.Warn().Str("url", url).Str("metric", metric).
			Float64("original", original).Float64("corrected", value).
			Msg("Corrected inconsistent performance metric")
	}

	if corrected.FCP > 0 && corrected.TTFB > corrected.FCP {
		original := corrected.FCP
		corrected.FCP = corrected.TTFB
		warn("fcp", original, corrected.FCP)
	}
	if corrected.LCP > 0 && corrected.FCP > corrected.LCP {
		original := corrected.LCP
		corrected.LCP = corrected.FCP
		warn("lcp", original, corrected.LCP)
	}

	return &corrected, warnings
}

// performanceScore averages per-page vitals scores across pages with
// usable metrics, then applies performance-category issue penalties.
// Pages without metrics are excluded from the average, not counted as
// zero. available is false when no page had usable metrics.
func performanceScore(pages []*extract.PageSignals, issuePenalty float64) (score float64, warnings []ValidationWarning, available bool) {
	var sum float64
	counted := 0
	for _, page := range pages {
		validated, pageWarnings := ValidateMetrics(page.URL, page.Performance)
		warnings = append(warnings, pageWarnings...)
		if validated == nil {
			continue
		}
		sum += pageVitalsScore(validated)
		counted++
	}
	if counted == 0 {
		return 0, warnings, false
	}
	return clamp(sum/float64(counted) - issuePenalty), warnings, true
}

func pageVitalsScore(m *extract.PerformanceMetrics) float64 {
	var sum float64
	counted := 0
	for metric, value := range map[string]float64{
		"lcp":  m.LCP,
		"fcp":  m.FCP,
		"ttfb": m.TTFB,
		"cls":  m.CLS,
	} {
		if value <= 0 && metric != "cls" {
			continue
		}
		sum += vitalScore(metric, value)
		counted++
	}
	if counted == 0 {
		return 0
	}
	return sum / float64(counted)
}

func vitalScore(metric string, value float64) float64 {
	t := vitalThresholds[metric]
	switch {
	case value <= t.good:
		return 100
	case value <= t.poor:
		// Linear from 100 at Good down to 30 at Poor.
		return 100 - 70*(value-t.good)/(t.poor-t.good)
	default:
		// Decay past Poor, bottoming out at 0 by 2x the Poor mark.
		excess := (value - t.poor) / t.poor
		if excess > 1 {
			excess = 1
		}
		return 30 * (1 - excess)
	}
}
