package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/urlutil"
)

func testExtractor(t *testing.T) *Extractor {
	t.Helper()
	return New(urlutil.New(urlutil.Config{
		PreferredScheme: "https",
		PreferredHost:   "example.com",
		RootDomain:      "example.com",
	}))
}

const samplePage = `<!DOCTYPE html>
<html>
<head>
<title>Wedding Photography in Brisbane | Example Studio</title>
<meta name="description" content="Award-winning wedding photography across Brisbane and the Gold Coast.">
<link rel="canonical" href="https://example.com/photography">
<link rel="icon" href="/favicon-32.png">
<meta property="og:title" content="Wedding Photography in Brisbane">
<meta property="og:image" content="https://example.com/og.jpg">
<meta name="twitter:card" content="summary_large_image">
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@graph": [
    {
      "@type": "Organization",
      "name": "Example Studio",
      "url": "https://example.com",
      "logo": "https://example.com/logo.png"
    },
    {"@type": "WebSite", "name": "Example Studio", "url": "https://example.com"}
  ]
}
</script>
</head>
<body>
<nav><a href="/hidden-in-nav">Nav link</a> navigation chrome words</nav>
<h1>Brisbane Wedding Photography</h1>
<h2>Packages</h2>
<h2>Galleries</h2>
<p>We photograph weddings across Brisbane. Our photography team covers the
ceremony and the reception. Brisbane couples choose our photography for
candid moments.</p>
<img src="/a.jpg" alt="Bride at sunset">
<img src="/b.jpg">
<a href="/pricing?utm_source=footer">Pricing</a>
<a href="/pricing">Pricing again</a>
<a href="HTTPS://EXAMPLE.COM/About/">About</a>
<a href="https://partner.example.org/venues">Venue partner</a>
<a href="https://www.instagram.com/examplestudio">Instagram</a>
<a href="https://www.facebook.com/sharer/sharer.php?u=x">Share</a>
<a href="mailto:hello@example.com">Email us</a>
<a href="#top">Back to top</a>
<div style="display:none"><a href="/secret">Hidden</a></div>
</body>
</html>`

func TestExtractBasicSignals(t *testing.T) {
	signals, err := testExtractor(t).Extract(Input{
		URL:        "https://example.com/photography",
		StatusCode: 200,
		RawHTML:    samplePage,
	})
	require.NoError(t, err)

	assert.Equal(t, "Wedding Photography in Brisbane | Example Studio", signals.Title.Text)
	assert.Equal(t, len([]rune(signals.Title.Text)), signals.Title.Length)
	assert.Greater(t, signals.Title.PixelWidth, 0)

	assert.Contains(t, signals.MetaDescription.Text, "Award-winning")
	assert.Equal(t, "https://example.com/photography", signals.CanonicalTag)

	require.Len(t, signals.Headings.H1, 1)
	assert.Equal(t, "Brisbane Wedding Photography", signals.Headings.H1[0])
	assert.Equal(t, 2, signals.Headings.H2Count)

	assert.Equal(t, 2, signals.Images.Count)
	assert.Equal(t, 1, signals.Images.MissingAlt)
}

func TestExtractLinksClassification(t *testing.T) {
	signals, err := testExtractor(t).Extract(Input{
		URL:        "https://example.com/photography",
		StatusCode: 200,
		RawHTML:    samplePage,
	})
	require.NoError(t, err)

	// The two pricing variants and the uppercase-host About link all
	// canonicalise; hidden, nav-chrome-excluded-from-text, fragment and
	// mailto links never enter the sets.
	assert.Contains(t, signals.Links.Internal, "https://example.com/pricing")
	assert.Contains(t, signals.Links.Internal, "https://example.com/About")
	assert.NotContains(t, signals.Links.Internal, "https://example.com/secret")

	pricingCount := 0
	for _, link := range signals.Links.Internal {
		if link == "https://example.com/pricing" {
			pricingCount++
		}
	}
	assert.Equal(t, 1, pricingCount, "duplicate links collapse to one canonical entry")

	require.Len(t, signals.Links.External, 1)
	assert.Equal(t, "https://partner.example.org/venues", signals.Links.External[0])
}

func TestExtractTextExcludesBoilerplate(t *testing.T) {
	signals, err := testExtractor(t).Extract(Input{
		URL:        "https://example.com/photography",
		StatusCode: 200,
		RawHTML:    samplePage,
	})
	require.NoError(t, err)

	assert.Greater(t, signals.WordCount, 0)
	assert.Contains(t, signals.Keywords, "photography")
	assert.NotContains(t, signals.Keywords, "navigation")
	assert.Greater(t, signals.Readability.FleschScore, 0.0)
	assert.Greater(t, signals.Readability.AvgSentenceLength, 0.0)
}

func TestExtractSchemaIdentity(t *testing.T) {
	signals, err := testExtractor(t).Extract(Input{
		URL:        "https://example.com/photography",
		StatusCode: 200,
		RawHTML:    samplePage,
	})
	require.NoError(t, err)

	assert.Contains(t, signals.Schema.Types, "Organization")
	assert.Contains(t, signals.Schema.Types, "WebSite")
	assert.True(t, signals.Schema.IsIdentitySchema)
	assert.Empty(t, signals.Schema.MissingFields)
}

func TestExtractSchemaIncompleteIdentity(t *testing.T) {
	html := `<html><head><script type="application/ld+json">
	{"@type": "Organization", "name": "Example Studio"}
	</script></head><body></body></html>`

	signals, err := testExtractor(t).Extract(Input{
		URL:     "https://example.com/",
		RawHTML: html,
	})
	require.NoError(t, err)

	assert.False(t, signals.Schema.IsIdentitySchema)
	assert.Contains(t, signals.Schema.MissingFields, "url")
	assert.Contains(t, signals.Schema.MissingFields, "logo or sameAs")
}

func TestExtractSocialSignals(t *testing.T) {
	signals, err := testExtractor(t).Extract(Input{
		URL:        "https://example.com/photography",
		StatusCode: 200,
		RawHTML:    samplePage,
	})
	require.NoError(t, err)

	assert.Equal(t, "Wedding Photography in Brisbane", signals.Social.OpenGraph["title"])
	assert.Equal(t, "summary_large_image", signals.Social.TwitterCard["card"])

	require.Len(t, signals.Social.ProfileLinks, 1)
	assert.Contains(t, signals.Social.ProfileLinks[0], "instagram.com/examplestudio")

	assert.True(t, signals.Social.Favicon.Present)
	assert.Equal(t, "https://example.com/favicon-32.png", signals.Social.Favicon.Href)
	assert.False(t, signals.Social.PixelPresent)
}

func TestExtractTrackingPixel(t *testing.T) {
	html := `<html><head><script>
	!function(f,b,e,v,n,t,s){/* ... */}(window,document,'script','https://connect.facebook.net/en_US/fbevents.js');
	fbq('init', '1234567890');
	</script></head><body></body></html>`

	signals, err := testExtractor(t).Extract(Input{URL: "https://example.com/", RawHTML: html})
	require.NoError(t, err)
	assert.True(t, signals.Social.PixelPresent)
}

func TestExtractPrefersRenderedTitle(t *testing.T) {
	raw := `<html><head><title></title></head><body><div id="app"></div></body></html>`
	rendered := `<html><head><title>Hydrated Title</title></head><body><div id="app"><p>content</p></div></body></html>`

	signals, err := testExtractor(t).Extract(Input{
		URL:           "https://example.com/",
		RawHTML:       raw,
		RenderedHTML:  rendered,
		RenderedTitle: "Hydrated Title",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hydrated Title", signals.Title.Text)
	require.NotNil(t, signals.RenderingDelta)
	assert.Greater(t, signals.RenderingDelta.Percentage, 100.0)
}

func TestExtractRawFallbackTitle(t *testing.T) {
	rendered := `<html><head><title></title></head><body></body></html>`
	raw := `<html><head><title>Server Title</title></head><body></body></html>`

	signals, err := testExtractor(t).Extract(Input{
		URL:          "https://example.com/",
		RawHTML:      raw,
		RenderedHTML: rendered,
	})
	require.NoError(t, err)
	assert.Equal(t, "Server Title", signals.Title.Text)
}

func TestReadabilityLongSentences(t *testing.T) {
	// One long unpunctuated run of simple words: low score comes from
	// sentence length, not vocabulary.
	text := strings.Repeat("the cat sat on the mat and then ", 30) + "stopped."
	sig := readability(text)
	assert.Less(t, sig.FleschScore, 50.0)
	assert.Greater(t, sig.AvgSentenceLength, 100.0)
}

func TestCountSyllables(t *testing.T) {
	cases := map[string]int{
		"cat":        1,
		"table":      2,
		"photograph": 3,
		"the":        1,
		"move":       1,
	}
	for word, want := range cases {
		assert.Equal(t, want, countSyllables(word), "word %q", word)
	}
}

func TestTopKeywordsWeighting(t *testing.T) {
	text := "widgets gadgets gadgets gadgets widgets tools"
	keywords := topKeywords(text, "Widgets Store", nil, 2)
	require.Len(t, keywords, 2)
	// "widgets" appears in the title so it outranks the more frequent
	// "gadgets".
	assert.Equal(t, "widgets", keywords[0])
	assert.Equal(t, "gadgets", keywords[1])
}

func TestEstimatePixelWidthMonotonic(t *testing.T) {
	short := estimatePixelWidth("Home")
	long := estimatePixelWidth("A Considerably Longer Page Title For Width Checks")
	assert.Greater(t, long, short)
	assert.Equal(t, 0, estimatePixelWidth(""))
}
