// Package extract parses fetched pages into structured signal sets.
// The extractor prefers the rendered DOM where one exists, since modern
// sites inject titles, schema and content client-side, and falls back
// to the raw HTML otherwise.
package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pagelens/pagelens/internal/urlutil"
	"github.com/rs/zerolog/log"
)

// Input carries everything the extractor needs for one page.
type Input struct {
	URL        string
	StatusCode int
	RawHTML    string
	// RenderedHTML is empty when rendering was degraded for this page.
	RenderedHTML string
	// RenderedTitle is the browser-reported title, already polled for
	// client-rendered pages.
	RenderedTitle     string
	RenderingDegraded bool
	// KeywordDepth bounds keyword extraction (tier dependent).
	KeywordDepth int
}

// Extractor converts fetch results into PageSignals.
type Extractor struct {
	canon *urlutil.Canonicaliser
}

// New creates an Extractor bound to the audit's canonicaliser so link
// classification matches the crawl frontier exactly.
func New(canon *urlutil.Canonicaliser) *Extractor {
	return &Extractor{canon: canon}
}

// Extract parses a fetched page into its signal set.
func (e *Extractor) Extract(in Input) (*PageSignals, error) {
	analysisHTML := in.RenderedHTML
	if analysisHTML == "" {
		analysisHTML = in.RawHTML
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(analysisHTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML for %s: %w", in.URL, err)
	}

	var rawDoc *goquery.Document
	if in.RenderedHTML != "" && in.RawHTML != "" {
		rawDoc, err = goquery.NewDocumentFromReader(strings.NewReader(in.RawHTML))
		if err != nil {
			rawDoc = nil
		}
	}

	signals := &PageSignals{
		URL:               in.URL,
		StatusCode:        in.StatusCode,
		RenderingDegraded: in.RenderingDegraded,
		CrawledAt:         time.Now().UTC(),
	}

	signals.Title = e.extractTitle(in, doc, rawDoc)
	signals.MetaDescription = extractMetaDescription(doc)
	signals.CanonicalTag = extractCanonicalTag(doc)
	signals.Headings = extractHeadings(doc)

	text := visibleText(doc)
	signals.WordCount = countWords(text)
	signals.Readability = readability(text)

	keywordDepth := in.KeywordDepth
	if keywordDepth <= 0 {
		keywordDepth = 10
	}
	signals.Keywords = topKeywords(text, signals.Title.Text, signals.Headings.H1, keywordDepth)

	signals.Schema = extractSchema(doc)
	signals.Social = e.extractSocial(in.URL, doc)
	signals.Links = e.extractLinks(in.URL, doc)
	signals.Images = extractImages(doc)

	if in.RenderedHTML != "" && in.RawHTML != "" {
		signals.RenderingDelta = ComputeRenderingDelta(in.RawHTML, in.RenderedHTML)
	}

	log.Debug().
		Str("url", in.URL).
		Int("word_count", signals.WordCount).
		Int("internal_links", len(signals.Links.Internal)).
		Int("external_links", len(signals.Links.External)).
		Bool("rendering_degraded", signals.RenderingDegraded).
		Msg("Extracted page signals")

	return signals, nil
}

// extractTitle prefers the rendered title, falls back to the rendered
// DOM's title tag, then the first title in the raw HTML.
func (e *Extractor) extractTitle(in Input, doc, rawDoc *goquery.Document) TitleSignal {
	title := strings.TrimSpace(in.RenderedTitle)
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" && rawDoc != nil {
		title = strings.TrimSpace(rawDoc.Find("title").First().Text())
	}

	return TitleSignal{
		Text:       title,
		Length:     len([]rune(title)),
		PixelWidth: estimatePixelWidth(title),
	}
}

func extractMetaDescription(doc *goquery.Document) MetaDescriptionSignal {
	text, _ := doc.Find(`meta[name="description"]`).First().Attr("content")
	text = strings.TrimSpace(text)
	return MetaDescriptionSignal{
		Text:   text,
		Length: len([]rune(text)),
	}
}

func extractCanonicalTag(doc *goquery.Document) string {
	href, _ := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	return strings.TrimSpace(href)
}

func extractHeadings(doc *goquery.Document) HeadingSignal {
	h := HeadingSignal{}
	doc.Find("h1").Each(func(_ int, s *goquery.Selection) {
		h.H1 = append(h.H1, strings.TrimSpace(s.Text()))
	})
	h.H2Count = doc.Find("h2").Length()
	h.H3Count = doc.Find("h3").Length()
	h.H4Count = doc.Find("h4").Length()
	h.H5Count = doc.Find("h5").Length()
	h.H6Count = doc.Find("h6").Length()
	return h
}

func extractImages(doc *goquery.Document) ImageSignal {
	img := ImageSignal{}
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		img.Count++
		if alt, exists := s.Attr("alt"); !exists || strings.TrimSpace(alt) == "" {
			img.MissingAlt++
		}
	})
	return img
}

// charWidths approximates rendered glyph widths at 20px system font,
// the size search results render titles at.
var charWidths = map[rune]int{
	'i': 5, 'l': 5, 'j': 5, 'f': 6, 't': 6, 'r': 7, '.': 5, ',': 5,
	' ': 6, '-': 7, '\'': 4, '"': 7, ':': 5, ';': 5, '!': 5, '(': 6, ')': 6,
	'm': 16, 'w': 15, 'M': 17, 'W': 19,
}

// estimatePixelWidth approximates the rendered width of a title for
// SERP truncation checks (Google truncates around 580px).
func estimatePixelWidth(text string) int {
	width := 0
	for _, r := range text {
		if w, ok := charWidths[r]; ok {
			width += w
			continue
		}
		if r >= 'A' && r <= 'Z' {
			width += 13
		} else {
			width += 10
		}
	}
	return width
}
