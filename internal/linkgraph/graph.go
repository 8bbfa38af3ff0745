// Package linkgraph builds the site's internal link graph from crawled
// page signals and classifies pages by their link role. The graph is
// rebuilt from scratch after every crawl, never mutated incrementally.
package linkgraph

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/pagelens/pagelens/internal/extract"
	"github.com/pagelens/pagelens/internal/seo"
)

// Role classifies a page's position in the internal link graph.
type Role string

const (
	RoleNormal    Role = "normal"
	RoleOrphan    Role = "orphan"
	RoleHub       Role = "hub"
	RoleAuthority Role = "authority"
	RoleIsolated  Role = "isolated"
)

// Thresholds below which percentile-based hub/authority cutoffs never
// drop, so tiny crawls don't crown every page an authority.
const (
	minAuthorityInbound = 3
	minHubOutbound      = 3
	thresholdPercentile = 0.90
)

// Node is one page's aggregate link counts and role. Counts only cover
// links between successfully analysed pages.
type Node struct {
	URL           string `json:"url"`
	InboundCount  int    `json:"inbound_count"`
	OutboundCount int    `json:"outbound_count"`
	Role          Role   `json:"role"`
}

// Result is the built graph plus the issues it produced.
type Result struct {
	Nodes  []Node
	Issues []seo.Issue
}

// Build aggregates every page's internal links into a directed graph
// and classifies each node. homepage is the canonical root URL; it is
// never classified orphan regardless of inbound count.
func Build(pages []*extract.PageSignals, homepage string) *Result {
	crawled := make(map[string]struct{}, len(pages))
	for _, page := range pages {
		crawled[page.URL] = struct{}{}
	}

	inbound := make(map[string]int, len(pages))
	outbound := make(map[string]int, len(pages))

	for _, page := range pages {
		for _, target := range page.Links.Internal {
			// Self-links and links to pages outside the analysed set
			// (skipped, error or never-crawled pages) don't count.
			if target == page.URL {
				continue
			}
			if _, ok := crawled[target]; !ok {
				continue
			}
			outbound[page.URL]++
			inbound[target]++
		}
	}

	authorityThreshold := percentileThreshold(inbound, pages, minAuthorityInbound)
	hubThreshold := percentileThreshold(outbound, pages, minHubOutbound)

	nodes := make([]Node, 0, len(pages))
	var orphans []string
	for _, page := range pages {
		node := Node{
			URL:           page.URL,
			InboundCount:  inbound[page.URL],
			OutboundCount: outbound[page.URL],
		}
		node.Role = classify(node, page.URL == homepage, authorityThreshold, hubThreshold)
		if node.Role == RoleOrphan || node.Role == RoleIsolated {
			orphans = append(orphans, page.URL)
		}
		nodes = append(nodes, node)
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].URL < nodes[j].URL })

	result := &Result{Nodes: nodes}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		result.Issues = append(result.Issues, seo.Issue{
			Category: seo.CategoryTechnical,
			Severity: seo.SeverityMedium,
			Title:    "Orphan pages with no internal links",
			Description: fmt.Sprintf(
				"%d page(s) receive no internal links from the rest of the site, making them hard for visitors and search engines to discover.",
				len(orphans)),
			AffectedURLs:    orphans,
			FixInstructions: "Add internal links from related pages or the site navigation to each orphan page.",
		})
	}

	log.Debug().
		Int("nodes", len(nodes)).
		Int("orphans", len(orphans)).
		Int("authority_threshold", authorityThreshold).
		Int("hub_threshold", hubThreshold).
		Msg("Built internal link graph")

	return result
}

// classify applies role precedence: isolated beats orphan, and
// hub/authority beat normal. A page can qualify as both hub and
// authority; authority wins since inbound links are the rarer signal.
func classify(node Node, isHomepage bool, authorityThreshold, hubThreshold int) Role {
	if node.InboundCount == 0 && node.OutboundCount == 0 && !isHomepage {
		return RoleIsolated
	}
	if node.InboundCount == 0 && !isHomepage {
		return RoleOrphan
	}
	if node.InboundCount >= authorityThreshold {
		return RoleAuthority
	}
	if node.OutboundCount >= hubThreshold {
		return RoleHub
	}
	return RoleNormal
}

// percentileThreshold returns the 90th-percentile count across all
// crawled pages, floored so small crawls keep a meaningful bar.
func percentileThreshold(counts map[string]int, pages []*extract.PageSignals, floor int) int {
	if len(pages) == 0 {
		return floor
	}
	values := make([]int, 0, len(pages))
	for _, page := range pages {
		values = append(values, counts[page.URL])
	}
	sort.Ints(values)

	idx := int(float64(len(values)) * thresholdPercentile)
	if idx >= len(values) {
		idx = len(values) - 1
	}
	threshold := values[idx]
	if threshold < floor {
		threshold = floor
	}
	return threshold
}
