package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractLinks collects the page's outgoing anchors, resolves them
// against the page URL, canonicalises, and splits internal from
// external by registered root domain. Duplicates collapse to one entry
// per canonical identity.
func (e *Extractor) extractLinks(pageURL string, doc *goquery.Document) LinkSignal {
	links := LinkSignal{}

	base, err := url.Parse(pageURL)
	if err != nil {
		return links
	}
	// A <base href> changes how relative links resolve.
	if href, exists := doc.Find("base[href]").First().Attr("href"); exists {
		if baseHref, berr := url.Parse(strings.TrimSpace(href)); berr == nil {
			base = base.ResolveReference(baseHref)
		}
	}

	seenInternal := make(map[string]struct{})
	seenExternal := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") ||
			strings.HasPrefix(lower, "mailto:") ||
			strings.HasPrefix(lower, "tel:") ||
			strings.HasPrefix(lower, "data:") {
			return
		}
		if isElementHidden(s) {
			return
		}

		ref, perr := url.Parse(href)
		if perr != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}

		if e.canon.IsInternal(abs.String()) {
			canonical, nerr := e.canon.Normalise(abs.String())
			if nerr != nil {
				return
			}
			if _, dup := seenInternal[canonical]; dup {
				return
			}
			seenInternal[canonical] = struct{}{}
			links.Internal = append(links.Internal, canonical)
			return
		}

		abs.Fragment = ""
		external := abs.String()
		if _, dup := seenExternal[external]; dup {
			return
		}
		seenExternal[external] = struct{}{}
		links.External = append(links.External, external)
	})

	return links
}

// isElementHidden checks inline styling and hidden attributes on the
// element and its ancestors. Stylesheet-hidden elements are not caught;
// that needs the rendered DOM, which already reflects them.
func isElementHidden(s *goquery.Selection) bool {
	for current := s; current.Length() > 0; current = current.Parent() {
		if goquery.NodeName(current) == "body" || goquery.NodeName(current) == "html" {
			break
		}
		if _, hidden := current.Attr("hidden"); hidden {
			return true
		}
		if ariaHidden, _ := current.Attr("aria-hidden"); ariaHidden == "true" {
			return true
		}
		style, _ := current.Attr("style")
		style = strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}
