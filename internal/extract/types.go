package extract

import "time"

// TitleSignal describes the page title. PixelWidth is an estimate of
// rendered width used for SERP truncation checks.
type TitleSignal struct {
	Text       string `json:"text"`
	Length     int    `json:"length"`
	PixelWidth int    `json:"pixel_width"`
}

// MetaDescriptionSignal describes the meta description tag.
type MetaDescriptionSignal struct {
	Text   string `json:"text"`
	Length int    `json:"length"`
}

// HeadingSignal summarises the heading structure. H1 text is kept in
// full because duplicate/missing H1s produce issues; deeper levels only
// need counts.
type HeadingSignal struct {
	H1      []string `json:"h1"`
	H2Count int      `json:"h2_count"`
	H3Count int      `json:"h3_count"`
	H4Count int      `json:"h4_count"`
	H5Count int      `json:"h5_count"`
	H6Count int      `json:"h6_count"`
}

// ReadabilitySignal holds content readability metrics computed from the
// same text extraction as the word count.
type ReadabilitySignal struct {
	FleschScore       float64 `json:"flesch_score"`
	AvgSentenceLength float64 `json:"avg_sentence_length"`
}

// SchemaSignal summarises structured data found on the page.
type SchemaSignal struct {
	Types []string `json:"types"`
	// IsIdentitySchema is true when an Organization or Person entity
	// exists with name, url and either logo or sameAs.
	IsIdentitySchema bool     `json:"is_identity_schema"`
	MissingFields    []string `json:"missing_fields"`
}

// FaviconSignal records favicon presence via link tag or the
// /favicon.ico fallback probe.
type FaviconSignal struct {
	Present bool   `json:"present"`
	Href    string `json:"href,omitempty"`
}

// SocialSignal summarises social metadata and integrations.
type SocialSignal struct {
	OpenGraph    map[string]string `json:"open_graph,omitempty"`
	TwitterCard  map[string]string `json:"twitter_card,omitempty"`
	ProfileLinks []string          `json:"profile_links,omitempty"`
	PixelPresent bool              `json:"pixel_present"`
	Favicon      FaviconSignal     `json:"favicon"`
}

// LinkSignal holds the page's outgoing links after canonicalisation,
// split by root-domain comparison against the audit target.
type LinkSignal struct {
	Internal []string `json:"internal"`
	External []string `json:"external"`
}

// ImageSignal counts images and accessibility gaps.
type ImageSignal struct {
	Count      int `json:"count"`
	MissingAlt int `json:"missing_alt"`
}

// PerformanceMetrics holds validated Core Web Vitals style metrics for
// a page. Nil on PageSignals when no usable data was obtained. All time
// values are milliseconds.
type PerformanceMetrics struct {
	LCP           float64  `json:"lcp"`
	FCP           float64  `json:"fcp"`
	CLS           float64  `json:"cls"`
	FID           float64  `json:"fid"`
	TTFB          float64  `json:"ttfb"`
	Opportunities []string `json:"opportunities,omitempty"`
}

// RenderingDelta quantifies how much JavaScript changed the page.
// Growth cases report rendered/initial as a percentage (uncapped but
// flagged when absurd); shrinkage cases report string similarity so a
// near-identical smaller DOM is not mistaken for massive content loss.
type RenderingDelta struct {
	InitialLength  int     `json:"initial_length"`
	RenderedLength int     `json:"rendered_length"`
	Percentage     float64 `json:"percentage"`
	Suspicious     bool    `json:"suspicious,omitempty"`
}

// PageSignals is the structured signal set for one successfully fetched
// canonical URL. Records are immutable after creation; a re-crawl
// produces a new record rather than editing in place.
type PageSignals struct {
	URL               string                `json:"url"`
	StatusCode        int                   `json:"status_code"`
	Title             TitleSignal           `json:"title"`
	MetaDescription   MetaDescriptionSignal `json:"meta_description"`
	CanonicalTag      string                `json:"canonical_tag,omitempty"`
	Headings          HeadingSignal         `json:"headings"`
	WordCount         int                   `json:"word_count"`
	Readability       ReadabilitySignal     `json:"readability"`
	Schema            SchemaSignal          `json:"schema"`
	Social            SocialSignal          `json:"social"`
	Links             LinkSignal            `json:"links"`
	Images            ImageSignal           `json:"images"`
	Performance       *PerformanceMetrics   `json:"performance"`
	RenderingDelta    *RenderingDelta       `json:"rendering_delta"`
	Keywords          []string              `json:"keywords,omitempty"`
	RenderingDegraded bool                  `json:"rendering_degraded,omitempty"`
	CrawledAt         time.Time             `json:"crawled_at"`
}
