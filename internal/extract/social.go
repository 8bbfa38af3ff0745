package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// socialProfileHosts maps social platforms to the path prefixes that
// indicate an actual profile rather than a share widget or CDN asset.
var socialProfileHosts = map[string][]string{
	"facebook.com":  {"/"},
	"instagram.com": {"/"},
	"linkedin.com":  {"/company/", "/in/", "/school/"},
	"twitter.com":   {"/"},
	"x.com":         {"/"},
	"youtube.com":   {"/channel/", "/c/", "/user/", "/@"},
	"tiktok.com":    {"/@"},
	"pinterest.com": {"/"},
	"threads.net":   {"/@"},
}

// sharePathMarkers identify share/intent widgets that look like profile
// links but are not.
var sharePathMarkers = []string{
	"/sharer", "/share", "/intent/", "/dialog/", "plugins/",
}

// extractSocial collects Open Graph and Twitter Card metadata, genuine
// social profile links, tracking pixel presence and favicon state.
func (e *Extractor) extractSocial(pageURL string, doc *goquery.Document) SocialSignal {
	signal := SocialSignal{}

	doc.Find(`meta[property^="og:"]`).Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if content = strings.TrimSpace(content); content != "" {
			if signal.OpenGraph == nil {
				signal.OpenGraph = make(map[string]string)
			}
			signal.OpenGraph[strings.TrimPrefix(prop, "og:")] = content
		}
	})

	doc.Find(`meta[name^="twitter:"]`).Each(func(_ int, s *goquery.Selection) {
		name, _ := s.Attr("name")
		content, _ := s.Attr("content")
		if content = strings.TrimSpace(content); content != "" {
			if signal.TwitterCard == nil {
				signal.TwitterCard = make(map[string]string)
			}
			signal.TwitterCard[strings.TrimPrefix(name, "twitter:")] = content
		}
	})

	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !isSocialProfileLink(href) {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		signal.ProfileLinks = append(signal.ProfileLinks, href)
	})

	signal.PixelPresent = detectTrackingPixel(doc)
	signal.Favicon = extractFavicon(pageURL, doc)
	return signal
}

// isSocialProfileLink reports whether href points at a genuine social
// profile. Share widgets, intents and CDN subdomains do not count.
func isSocialProfileLink(href string) bool {
	u, err := url.Parse(href)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))

	prefixes, ok := socialProfileHosts[host]
	if !ok {
		return false
	}

	path := u.Path
	if path == "" || path == "/" {
		// Bare platform homepage, not a profile.
		return false
	}
	lower := strings.ToLower(path)
	for _, marker := range sharePathMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// detectTrackingPixel looks for the Meta pixel (fbq init or the
// fbevents.js loader) in inline and external scripts.
func detectTrackingPixel(doc *goquery.Document) bool {
	found := false
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if src, ok := s.Attr("src"); ok && strings.Contains(src, "fbevents.js") {
			found = true
			return false
		}
		text := s.Text()
		if strings.Contains(text, "fbq(") || strings.Contains(text, "fbevents.js") {
			found = true
			return false
		}
		return true
	})
	if found {
		return true
	}
	// noscript img fallback pixel.
	doc.Find("noscript img[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if strings.Contains(src, "facebook.com/tr") {
			found = true
			return false
		}
		return true
	})
	return found
}

// extractFavicon checks for an explicit favicon link tag. Absence here
// does not mean the site has no favicon; the orchestrator probes
// /favicon.ico as a fallback before raising an issue.
func extractFavicon(pageURL string, doc *goquery.Document) FaviconSignal {
	var href string
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel, _ := s.Attr("rel")
		rel = strings.ToLower(rel)
		if rel != "icon" && rel != "shortcut icon" && rel != "apple-touch-icon" {
			return true
		}
		if h, ok := s.Attr("href"); ok && strings.TrimSpace(h) != "" {
			href = strings.TrimSpace(h)
			return false
		}
		return true
	})

	if href == "" {
		return FaviconSignal{}
	}
	if base, err := url.Parse(pageURL); err == nil {
		if ref, rerr := url.Parse(href); rerr == nil {
			href = base.ResolveReference(ref).String()
		}
	}
	return FaviconSignal{Present: true, Href: href}
}
