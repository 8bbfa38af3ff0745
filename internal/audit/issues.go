package audit

import (
	"fmt"

	"github.com/pagelens/pagelens/internal/extract"
	"github.com/pagelens/pagelens/internal/seo"
)

// SERP display limits used by the on-page checks.
const (
	titleMaxPixels     = 580
	titleMinChars      = 10
	metaDescMaxChars   = 160
	thinContentWords   = 300
	suspiciousDeltaMsg = "JavaScript inflates the page to more than ten times its delivered size, which usually means a runaway render loop or an injected third-party payload."
)

// analyzers holds the optional checks enabled for one audit, resolved
// from the tier and any purchased add-ons.
type analyzers struct {
	ImageAlt bool
	Schema   bool
}

// analyzersFor resolves which optional analyzers run: the tier includes
// them outright or an add-on enables them on a lower tier.
func analyzersFor(limits seo.TierLimits, addOns seo.AddOns) analyzers {
	return analyzers{
		ImageAlt: limits.ImageAltAnalysis || addOns.ImageAltTags,
		Schema:   limits.SchemaAnalysis || addOns.SchemaMarkup,
	}
}

// pageCheck inspects one page and reports whether it is affected.
// enabled gates optional checks; nil means the check always runs.
type pageCheck struct {
	category seo.Category
	severity seo.Severity
	title    string
	desc     string
	fix      string
	enabled  func(analyzers) bool
	affected func(*extract.PageSignals) bool
}

var pageChecks = []pageCheck{
	{
		category: seo.CategoryOnPage,
		severity: seo.SeverityHigh,
		title:    "Missing page title",
		desc:     "Pages without a title tag have nothing to show in search results and browser tabs.",
		fix:      "Add a unique, descriptive <title> tag to each affected page.",
		affected: func(p *extract.PageSignals) bool { return p.Title.Text == "" },
	},
	{
		category: seo.CategoryOnPage,
		severity: seo.SeverityLow,
		title:    "Page title too short",
		desc:     "Very short titles waste the search result headline and rarely describe the page.",
		fix:      "Expand each title to a descriptive phrase of roughly 30-60 characters.",
		affected: func(p *extract.PageSignals) bool {
			return p.Title.Text != "" && p.Title.Length < titleMinChars
		},
	},
	{
		category: seo.CategoryOnPage,
		severity: seo.SeverityLow,
		title:    "Page title truncated in search results",
		desc:     "Titles wider than about 580 pixels are cut off with an ellipsis in search results.",
		fix:      "Shorten each title so the important words fit within the display limit.",
		affected: func(p *extract.PageSignals) bool { return p.Title.PixelWidth > titleMaxPixels },
	},
	{
		category: seo.CategoryOnPage,
		severity: seo.SeverityMedium,
		title:    "Missing meta description",
		desc:     "Without a meta description, search engines compose their own snippet, which is rarely persuasive.",
		fix:      "Write a meta description of roughly 50-160 characters summarising each page.",
		affected: func(p *extract.PageSignals) bool { return p.MetaDescription.Text == "" },
	},
	{
		category: seo.CategoryOnPage,
		severity: seo.SeverityLow,
		title:    "Meta description too long",
		desc:     "Descriptions beyond about 160 characters are truncated in search results.",
		fix:      "Trim each description so the call to action survives truncation.",
		affected: func(p *extract.PageSignals) bool {
			return p.MetaDescription.Length > metaDescMaxChars
		},
	},
	{
		category: seo.CategoryOnPage,
		severity: seo.SeverityMedium,
		title:    "Missing H1 heading",
		desc:     "Pages without an H1 give readers and search engines no primary topic statement.",
		fix:      "Add exactly one H1 heading that states the page's topic.",
		affected: func(p *extract.PageSignals) bool { return len(p.Headings.H1) == 0 },
	},
	{
		category: seo.CategoryOnPage,
		severity: seo.SeverityLow,
		title:    "Multiple H1 headings",
		desc:     "Several H1s dilute the page's topical focus.",
		fix:      "Keep one H1 per page and demote the others to H2.",
		affected: func(p *extract.PageSignals) bool { return len(p.Headings.H1) > 1 },
	},
	{
		category: seo.CategoryAccessibility,
		severity: seo.SeverityMedium,
		title:    "Images missing alt text",
		desc:     "Images without alt attributes are invisible to screen readers and image search.",
		fix:      "Add descriptive alt text to every informative image; use empty alt for decorative ones.",
		enabled:  func(a analyzers) bool { return a.ImageAlt },
		affected: func(p *extract.PageSignals) bool { return p.Images.MissingAlt > 0 },
	},
	{
		category: seo.CategoryContent,
		severity: seo.SeverityMedium,
		title:    "Thin content",
		desc:     "Pages under roughly 300 words of body text rarely answer a search query on their own.",
		fix:      "Expand each page's body copy or consolidate thin pages into a stronger one.",
		affected: func(p *extract.PageSignals) bool {
			return p.WordCount > 0 && p.WordCount < thinContentWords
		},
	},
	{
		category: seo.CategoryTechnical,
		severity: seo.SeverityLow,
		title:    "Missing canonical tag",
		desc:     "Without a canonical tag, parameter and session variants of a page compete with each other.",
		fix:      "Add a self-referencing <link rel=\"canonical\"> tag to each page template.",
		affected: func(p *extract.PageSignals) bool { return p.CanonicalTag == "" },
	},
	{
		category: seo.CategoryOnPage,
		severity: seo.SeverityLow,
		title:    "Missing Open Graph tags",
		desc:     "Pages without Open Graph metadata render as bare links when shared on social platforms.",
		fix:      "Add og:title, og:description and og:image tags to the page template.",
		affected: func(p *extract.PageSignals) bool { return len(p.Social.OpenGraph) == 0 },
	},
	{
		category: seo.CategoryTechnical,
		severity: seo.SeverityMedium,
		title:    "Suspicious JavaScript rendering growth",
		desc:     suspiciousDeltaMsg,
		fix:      "Profile the page's JavaScript and remove the runaway DOM growth.",
		affected: func(p *extract.PageSignals) bool {
			return p.RenderingDelta != nil && p.RenderingDelta.Suspicious
		},
	},
}

// detectPageIssues runs every per-page check across the crawled set and
// aggregates matches into one issue per check. Optional checks are
// skipped when the tier and add-ons leave them disabled.
func detectPageIssues(pages []*extract.PageSignals, enabled analyzers) []seo.Issue {
	var issues []seo.Issue
	for _, check := range pageChecks {
		if check.enabled != nil && !check.enabled(enabled) {
			continue
		}
		var affected []string
		for _, page := range pages {
			if check.affected(page) {
				affected = append(affected, page.URL)
			}
		}
		if len(affected) == 0 {
			continue
		}
		issues = append(issues, seo.Issue{
			Category:        check.category,
			Severity:        check.severity,
			Title:           check.title,
			Description:     check.desc,
			AffectedURLs:    affected,
			FixInstructions: check.fix,
		})
	}

	if enabled.Schema {
		if issue := identitySchemaIssue(pages); issue != nil {
			issues = append(issues, *issue)
		}
	}
	return issues
}

// identitySchemaIssue is sitewide: it fires when no crawled page
// carries a complete Organization or Person identity entity.
func identitySchemaIssue(pages []*extract.PageSignals) *seo.Issue {
	var bestMissing []string
	for _, page := range pages {
		if page.Schema.IsIdentitySchema {
			return nil
		}
		if len(page.Schema.MissingFields) > 0 && (bestMissing == nil || len(page.Schema.MissingFields) < len(bestMissing)) {
			bestMissing = page.Schema.MissingFields
		}
	}
	if len(pages) == 0 {
		return nil
	}

	desc := "No page declares Organization or Person structured data, so search engines cannot confirm who operates the site."
	if len(bestMissing) > 0 {
		desc = fmt.Sprintf("The site's identity structured data is incomplete; missing: %v.", bestMissing)
	}

	return &seo.Issue{
		Category:        seo.CategoryTechnical,
		Severity:        seo.SeverityMedium,
		Title:           "Missing identity schema",
		Description:     desc,
		AffectedURLs:    []string{pages[0].URL},
		FixInstructions: "Add an Organization (or Person) JSON-LD block with name, url and a logo or sameAs reference, ideally on the homepage.",
	}
}
