package seo

import "time"

// Tier determines the page budget and which analyzers run for an audit.
type Tier string

const (
	TierStarter  Tier = "starter"
	TierStandard Tier = "standard"
	TierAdvanced Tier = "advanced"
	TierAgency   Tier = "agency"
)

// TierLimits bounds the work a single audit may perform.
type TierLimits struct {
	MaxPages         int           // Crawl page budget
	MaxCompetitors   int           // Competitor sites analysed (0 disables)
	LinkGraph        bool          // Whether the internal link graph runs
	ImageAltAnalysis bool          // Whether the image alt text analyzer runs
	SchemaAnalysis   bool          // Whether the structured data analyzer runs
	KeywordDepth     int           // Keywords extracted per page
	AuditTimeout     time.Duration // Global audit timeout
}

// Limits returns the resource limits for the tier. Unknown tiers get
// starter limits so a malformed request can never exhaust the crawler.
// Analyzers a tier excludes can still be enabled per audit via AddOns.
func (t Tier) Limits() TierLimits {
	switch t {
	case TierStandard:
		return TierLimits{MaxPages: 30, MaxCompetitors: 1, LinkGraph: false, ImageAltAnalysis: true, SchemaAnalysis: false, KeywordDepth: 10, AuditTimeout: 5 * time.Minute}
	case TierAdvanced:
		return TierLimits{MaxPages: 75, MaxCompetitors: 1, LinkGraph: true, ImageAltAnalysis: true, SchemaAnalysis: true, KeywordDepth: 15, AuditTimeout: 10 * time.Minute}
	case TierAgency:
		return TierLimits{MaxPages: 200, MaxCompetitors: 3, LinkGraph: true, ImageAltAnalysis: true, SchemaAnalysis: true, KeywordDepth: 20, AuditTimeout: 20 * time.Minute}
	default:
		return TierLimits{MaxPages: 10, MaxCompetitors: 0, LinkGraph: false, ImageAltAnalysis: false, SchemaAnalysis: false, KeywordDepth: 5, AuditTimeout: 2 * time.Minute}
	}
}
