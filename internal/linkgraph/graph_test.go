package linkgraph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/extract"
	"github.com/pagelens/pagelens/internal/seo"
)

func page(url string, internalLinks ...string) *extract.PageSignals {
	return &extract.PageSignals{
		URL:   url,
		Links: extract.LinkSignal{Internal: internalLinks},
	}
}

func nodeByURL(t *testing.T, result *Result, url string) Node {
	t.Helper()
	for _, node := range result.Nodes {
		if node.URL == url {
			return node
		}
	}
	t.Fatalf("node %s not found", url)
	return Node{}
}

func TestBuildRolesScenario(t *testing.T) {
	const (
		home = "https://example.com/"
		b    = "https://example.com/b"
		c    = "https://example.com/c"
	)

	// Homepage links to every page; ten supporting pages also link to C.
	homeLinks := []string{b, c}
	var pages []*extract.PageSignals
	for i := 0; i < 10; i++ {
		u := fmt.Sprintf("https://example.com/p%d", i)
		homeLinks = append(homeLinks, u)
		pages = append(pages, page(u, c))
	}
	pages = append(pages, page(home, homeLinks...), page(b), page(c))

	result := Build(pages, home)

	require.Len(t, result.Nodes, len(pages),
		"one node per analysed page")

	nodeC := nodeByURL(t, result, c)
	assert.Equal(t, 11, nodeC.InboundCount)
	assert.Equal(t, RoleAuthority, nodeC.Role)

	// B is only linked from the homepage: one inbound link, so neither
	// orphan nor authority.
	nodeB := nodeByURL(t, result, b)
	assert.Equal(t, 1, nodeB.InboundCount)
	assert.Equal(t, RoleNormal, nodeB.Role)

	nodeHome := nodeByURL(t, result, home)
	assert.Equal(t, RoleHub, nodeHome.Role)
	assert.Equal(t, 12, nodeHome.OutboundCount)
}

func TestBuildHomepageNeverOrphan(t *testing.T) {
	const home = "https://example.com/"
	pages := []*extract.PageSignals{
		page(home, "https://example.com/a"),
		page("https://example.com/a"),
	}

	result := Build(pages, home)

	assert.NotEqual(t, RoleOrphan, nodeByURL(t, result, home).Role)
	assert.NotEqual(t, RoleIsolated, nodeByURL(t, result, home).Role)
}

func TestBuildOrphanAndIsolated(t *testing.T) {
	const home = "https://example.com/"
	pages := []*extract.PageSignals{
		page(home, "https://example.com/a"),
		page("https://example.com/a", home),
		// Crawled via sitemap, linked from nowhere, but links out.
		page("https://example.com/orphan", home),
		// Linked from nowhere and links nowhere.
		page("https://example.com/island"),
	}

	result := Build(pages, home)

	assert.Equal(t, RoleOrphan, nodeByURL(t, result, "https://example.com/orphan").Role)
	assert.Equal(t, RoleIsolated, nodeByURL(t, result, "https://example.com/island").Role)

	require.Len(t, result.Issues, 1)
	issue := result.Issues[0]
	assert.Equal(t, seo.CategoryTechnical, issue.Category)
	assert.Equal(t, seo.SeverityMedium, issue.Severity)
	assert.ElementsMatch(t, []string{
		"https://example.com/orphan",
		"https://example.com/island",
	}, issue.AffectedURLs)
}

func TestBuildIgnoresLinksOutsideCrawledSet(t *testing.T) {
	const home = "https://example.com/"
	pages := []*extract.PageSignals{
		page(home, "https://example.com/a", "https://example.com/never-crawled"),
		page("https://example.com/a", home, "https://example.com/a"),
	}

	result := Build(pages, home)

	// The never-crawled target contributes no node and no outbound
	// count; the self-link on /a is ignored.
	require.Len(t, result.Nodes, 2)
	assert.Equal(t, 1, nodeByURL(t, result, home).OutboundCount)
	assert.Equal(t, 1, nodeByURL(t, result, "https://example.com/a").OutboundCount)
}

func TestBuildEmpty(t *testing.T) {
	result := Build(nil, "https://example.com/")
	assert.Empty(t, result.Nodes)
	assert.Empty(t, result.Issues)
}
