package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pagelens/pagelens/internal/urlutil"
	"github.com/rs/zerolog/log"
)

// SitemapDiscoveryResult contains both sitemaps and robots.txt rules
type SitemapDiscoveryResult struct {
	Sitemaps    []string
	RobotsRules *RobotsRules
}

// DiscoverSitemapsAndRobots attempts to find sitemaps and parse robots.txt rules for a site.
// baseURL may be a domain or a full URL.
func (c *Crawler) DiscoverSitemapsAndRobots(ctx context.Context, baseURL string) (*SitemapDiscoveryResult, error) {
	normalised := urlutil.NormaliseURL(baseURL)
	if normalised == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}
	normalised = strings.TrimSuffix(normalised, "/")

	result := &SitemapDiscoveryResult{
		Sitemaps:    []string{},
		RobotsRules: &RobotsRules{},
	}

	// robots.txt gets us both sitemaps and crawl rules
	robotRules, err := ParseRobotsTxt(ctx, normalised, c.config.UserAgent)
	if err != nil {
		log.Debug().
			Err(err).
			Str("base_url", normalised).
			Msg("Failed to parse robots.txt, proceeding with no restrictions")
	} else {
		result.RobotsRules = robotRules
		result.Sitemaps = robotRules.Sitemaps
	}

	// If no sitemaps found in robots.txt, check common locations
	if len(result.Sitemaps) == 0 {
		commonPaths := []string{
			normalised + "/sitemap.xml",
			normalised + "/sitemap_index.xml",
		}

		client := &http.Client{
			Timeout: 5 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		}

		for _, sitemapURL := range commonPaths {
			req, err := http.NewRequestWithContext(ctx, "HEAD", sitemapURL, nil)
			if err != nil {
				continue
			}
			req.Header.Set("User-Agent", c.config.UserAgent)

			resp, err := client.Do(req)
			if err != nil {
				continue
			}

			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				result.Sitemaps = append(result.Sitemaps, sitemapURL)
				log.Debug().Str("url", sitemapURL).Msg("Found sitemap at common location")
			}
		}
	}

	// Deduplicate sitemaps
	seen := make(map[string]bool)
	var uniqueSitemaps []string
	for _, sitemap := range result.Sitemaps {
		if !seen[sitemap] {
			seen[sitemap] = true
			uniqueSitemaps = append(uniqueSitemaps, sitemap)
		}
	}
	result.Sitemaps = uniqueSitemaps

	log.Debug().
		Int("sitemap_count", len(result.Sitemaps)).
		Int("crawl_delay", result.RobotsRules.CrawlDelay).
		Int("disallow_patterns", len(result.RobotsRules.DisallowPatterns)).
		Msg("Sitemap and robots discovery complete")

	return result, nil
}

// ParseSitemap extracts URLs from a sitemap, recursing into sitemap
// indexes. Tag extraction is string-based because real-world sitemaps
// frequently carry invalid XML that strict decoding rejects.
func (c *Crawler) ParseSitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	var urls []string

	req, err := http.NewRequestWithContext(ctx, "GET", sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch sitemap: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, err
	}

	content := string(body)

	if strings.Contains(content, "<sitemapindex") {
		sitemapURLs := extractURLsFromXML(content, "<sitemap>", "</sitemap>", "<loc>", "</loc>")

		for _, childSitemapURL := range sitemapURLs {
			childSitemapURL = urlutil.NormaliseURL(childSitemapURL)
			if childSitemapURL == "" {
				continue
			}

			childURLs, err := c.ParseSitemap(ctx, childSitemapURL)
			if err != nil {
				log.Warn().Err(err).Str("url", childSitemapURL).Msg("Failed to parse child sitemap")
				continue
			}
			urls = append(urls, childURLs...)
		}
	} else {
		extractedURLs := extractURLsFromXML(content, "<url>", "</url>", "<loc>", "</loc>")

		for _, extractedURL := range extractedURLs {
			validURL := urlutil.NormaliseURL(extractedURL)
			if validURL != "" {
				urls = append(urls, validURL)
			}
		}
	}

	log.Debug().
		Str("sitemap_url", sitemapURL).
		Int("total_url_count", len(urls)).
		Msg("Finished parsing sitemap")

	return urls, nil
}

// extractURLsFromXML extracts <loc> values from sitemap XML content
func extractURLsFromXML(content, startTag, endTag, locStartTag, locEndTag string) []string {
	var urls []string

	startIdx := 0
	for {
		startTagIdx := strings.Index(content[startIdx:], startTag)
		if startTagIdx == -1 {
			break
		}

		startTagIdx += startIdx
		endTagIdx := strings.Index(content[startTagIdx:], endTag)
		if endTagIdx == -1 {
			break
		}

		endTagIdx += startTagIdx

		section := content[startTagIdx : endTagIdx+len(endTag)]

		locStartIdx := strings.Index(section, locStartTag)
		if locStartIdx != -1 {
			locEndIdx := strings.Index(section[locStartIdx:], locEndTag)
			if locEndIdx != -1 {
				locEndIdx += locStartIdx

				url := strings.TrimSpace(section[locStartIdx+len(locStartTag) : locEndIdx])
				if url != "" {
					urls = append(urls, url)
				}
			}
		}

		startIdx = endTagIdx + len(endTag)
	}

	return urls
}
