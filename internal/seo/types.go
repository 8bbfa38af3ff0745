package seo

// Category identifies one of the five scoring categories. Every issue
// must belong to exactly one category.
type Category string

const (
	CategoryTechnical     Category = "technical"
	CategoryOnPage        Category = "on_page"
	CategoryContent       Category = "content"
	CategoryAccessibility Category = "accessibility"
	CategoryPerformance   Category = "performance"
)

// Categories lists all scoring categories in report order.
var Categories = []Category{
	CategoryTechnical,
	CategoryOnPage,
	CategoryContent,
	CategoryAccessibility,
	CategoryPerformance,
}

// Valid reports whether c is one of the five scoring categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Severity ranks how urgently an issue should be addressed.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Issue is a single finding produced by any detector in the pipeline.
// AffectedURLs always holds canonical URLs from the crawled set.
type Issue struct {
	Category        Category `json:"category"`
	Severity        Severity `json:"severity"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	AffectedURLs    []string `json:"affected_urls"`
	FixInstructions string   `json:"fix_instructions"`
}

// AddOns enables optional analyzers on tiers that don't include them.
type AddOns struct {
	CompetitorAnalysis bool `json:"competitor_analysis,omitempty"`
	ImageAltTags       bool `json:"image_alt_tags,omitempty"`
	SchemaMarkup       bool `json:"schema_markup,omitempty"`
}

// AuditRequest is the external input that starts an audit.
type AuditRequest struct {
	URL            string   `json:"url"`
	Tier           Tier     `json:"tier"`
	AddOns         AddOns   `json:"add_ons,omitempty"`
	CompetitorURLs []string `json:"competitor_urls,omitempty"`
	TargetKeywords []string `json:"target_keywords,omitempty"`
}
