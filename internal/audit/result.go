package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/pagelens/pagelens/internal/competitor"
	"github.com/pagelens/pagelens/internal/extract"
	"github.com/pagelens/pagelens/internal/linkgraph"
	"github.com/pagelens/pagelens/internal/scoring"
	"github.com/pagelens/pagelens/internal/seo"
	"github.com/pagelens/pagelens/internal/urlutil"
)

// State is the audit lifecycle. Failed is reachable only from Crawling,
// on unrecoverable errors such as the root URL being unreachable.
type State string

const (
	StatePending     State = "pending"
	StateCrawling    State = "crawling"
	StateAggregating State = "aggregating"
	StateScored      State = "scored"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// SkippedPage records why a page was excluded from analysis.
type SkippedPage struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code,omitempty"`
	Reason     string `json:"reason"`
}

// Diagnostics describes how the crawl went, independent of what it
// found. Degradations land here instead of failing the audit.
type Diagnostics struct {
	PagesCrawled      int                         `json:"pages_crawled"`
	PagesSkipped      int                         `json:"pages_skipped"`
	SkippedPages      []SkippedPage               `json:"skipped_pages,omitempty"`
	DisallowedPaths   []string                    `json:"disallowed_paths,omitempty"`
	RobotsBlockedURLs []string                    `json:"robots_blocked_urls,omitempty"`
	CrawlDelay        int                         `json:"crawl_delay,omitempty"`
	DetectedPlatform  string                      `json:"detected_platform,omitempty"`
	RenderingDegraded int                         `json:"rendering_degraded"`
	Warnings          []scoring.ValidationWarning `json:"warnings,omitempty"`
	Duration          time.Duration               `json:"duration"`
}

// Result is the aggregate root of one audit. It is owned by the
// orchestrator while the audit runs and handed off immutably once the
// state reaches Done or Failed.
type Result struct {
	ID         string                 `json:"id"`
	State      State                  `json:"state"`
	Target     *urlutil.CrawlTarget   `json:"target"`
	Tier       seo.Tier               `json:"tier"`
	Pages      []*extract.PageSignals `json:"pages"`
	Issues     []seo.Issue            `json:"issues"`
	LinkGraph  []linkgraph.Node       `json:"link_graph,omitempty"`
	Scores     scoring.Scores         `json:"scores"`
	Competitor *competitor.Analysis   `json:"competitor,omitempty"`
	Diag       Diagnostics            `json:"diagnostics"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
}

func newResult(tier seo.Tier) *Result {
	return &Result{
		ID:        uuid.New().String(),
		State:     StatePending,
		Tier:      tier,
		StartedAt: time.Now().UTC(),
	}
}
