package duplicates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/extract"
	"github.com/pagelens/pagelens/internal/seo"
	"github.com/pagelens/pagelens/internal/urlutil"
)

func testDetector() *Detector {
	canon := urlutil.New(urlutil.Config{
		PreferredScheme: "https",
		PreferredHost:   "example.com",
		RootDomain:      "example.com",
	})
	return New(canon, "example.com")
}

func signals(url, canonicalTag string) *extract.PageSignals {
	return &extract.PageSignals{URL: url, CanonicalTag: canonicalTag}
}

func TestDetectGroupsCaseVariants(t *testing.T) {
	// Path case is preserved by canonicalisation, so case variants can
	// be crawled separately; the detector still groups them.
	pages := []*extract.PageSignals{
		signals("https://example.com/About", ""),
		signals("https://example.com/about", ""),
		signals("https://example.com/contact", ""),
	}

	result := testDetector().Detect(pages)

	require.Len(t, result.Groups, 1)
	assert.ElementsMatch(t, []string{
		"https://example.com/About",
		"https://example.com/about",
	}, result.Groups[0].URLs)

	require.Len(t, result.Issues, 1)
	assert.Equal(t, seo.CategoryTechnical, result.Issues[0].Category)
	assert.Equal(t, seo.SeverityMedium, result.Issues[0].Severity)
}

func TestRecommendCanonicalPrefersHTTPSAndFewerParams(t *testing.T) {
	pages := []*extract.PageSignals{
		signals("http://example.com/page", ""),
		signals("https://example.com/page?sort=asc", ""),
		signals("https://example.com/page", ""),
	}

	result := testDetector().Detect(pages)

	require.Len(t, result.Groups, 1)
	assert.Equal(t, "https://example.com/page", result.Groups[0].RecommendedCanonical)
}

func TestRecommendCanonicalRespectsWWWPreference(t *testing.T) {
	canon := urlutil.New(urlutil.Config{
		PreferredScheme: "https",
		PreferredHost:   "www.example.com",
		RootDomain:      "example.com",
	})
	detector := New(canon, "www.example.com")

	pages := []*extract.PageSignals{
		signals("https://example.com/page", ""),
		signals("https://www.example.com/page", ""),
	}

	result := detector.Detect(pages)

	require.Len(t, result.Groups, 1)
	assert.Equal(t, "https://www.example.com/page", result.Groups[0].RecommendedCanonical)
}

func TestDetectCanonicalConflict(t *testing.T) {
	pages := []*extract.PageSignals{
		signals("https://example.com/blog/post", "https://example.com/articles/post"),
		signals("https://example.com/ok", "https://example.com/ok"),
	}

	result := testDetector().Detect(pages)

	require.Len(t, result.Conflicts, 1)
	conflict := result.Conflicts[0]
	assert.Equal(t, "https://example.com/blog/post", conflict.PageURL)
	assert.Equal(t, "https://example.com/articles/post", conflict.CanonicalTarget)

	require.Len(t, result.Issues, 1)
	assert.Equal(t, []string{"https://example.com/blog/post"}, result.Issues[0].AffectedURLs)
}

func TestDetectCanonicalTargetCrawledIsNotConflict(t *testing.T) {
	pages := []*extract.PageSignals{
		signals("https://example.com/blog/post", "https://example.com/articles/post"),
		signals("https://example.com/articles/post", ""),
	}

	result := testDetector().Detect(pages)
	assert.Empty(t, result.Conflicts)
}

func TestDetectRelativeCanonicalResolved(t *testing.T) {
	pages := []*extract.PageSignals{
		signals("https://example.com/blog/post", "/blog/post"),
	}

	// A relative canonical resolving to the page itself is fine.
	result := testDetector().Detect(pages)
	assert.Empty(t, result.Conflicts)
	assert.Empty(t, result.Issues)
}

func TestDetectNoDuplicates(t *testing.T) {
	pages := []*extract.PageSignals{
		signals("https://example.com/", ""),
		signals("https://example.com/about", ""),
	}

	result := testDetector().Detect(pages)
	assert.Empty(t, result.Groups)
	assert.Empty(t, result.Issues)
}
