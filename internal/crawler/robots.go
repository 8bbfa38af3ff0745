package crawler

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// RobotsRules contains parsed robots.txt rules for a domain. Rules are
// informational for the audit (disallowed paths become diagnostics);
// only an explicit wildcard "Disallow: /" stops a crawl.
type RobotsRules struct {
	// CrawlDelay in seconds (0 means no delay specified)
	CrawlDelay int
	// Sitemaps found in robots.txt
	Sitemaps []string
	// DisallowPatterns are URL patterns that should not be crawled
	DisallowPatterns []string
	// AllowPatterns override DisallowPatterns (more specific)
	AllowPatterns []string
	// DisallowAll is set when the applicable section blocks the whole site
	DisallowAll bool
}

// ParseRobotsTxt fetches and parses robots.txt for a domain
//
// The parser follows these rules in order of precedence:
// 1. If there are specific rules for "PageLensBot", use those
// 2. If there are rules for similar SEO crawlers (AhrefsBot, MJ12bot, etc.), use those
// 3. Otherwise, fall back to wildcard (*) rules
func ParseRobotsTxt(ctx context.Context, domain string, userAgent string) (*RobotsRules, error) {
	// Support both domain-only and full URL formats
	var robotsURL string
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		robotsURL = strings.TrimSuffix(domain, "/") + "/robots.txt"
	} else {
		robotsURL = fmt.Sprintf("https://%s/robots.txt", domain)
	}

	log.Debug().
		Str("domain", domain).
		Str("robots_url", robotsURL).
		Msg("Fetching robots.txt")

	client := &http.Client{
		Timeout: 10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, "GET", robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// No robots.txt means no restrictions
		if resp.StatusCode == http.StatusNotFound {
			log.Debug().Msg("No robots.txt found, no restrictions apply")
			return &RobotsRules{}, nil
		}
		return nil, fmt.Errorf("robots.txt returned status %d", resp.StatusCode)
	}

	// Limit robots.txt size to 1MB to prevent memory exhaustion
	limitedReader := io.LimitReader(resp.Body, 1*1024*1024)
	return parseRobotsTxtContent(limitedReader, userAgent)
}

// parseRobotsTxtContent parses the robots.txt content
func parseRobotsTxtContent(r io.Reader, userAgent string) (*RobotsRules, error) {
	rules := &RobotsRules{
		Sitemaps:         []string{},
		DisallowPatterns: []string{},
		AllowPatterns:    []string{},
	}

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read robots.txt: %w", err)
	}

	if len(content) == 1*1024*1024 {
		log.Warn().
			Int("size_bytes", len(content)).
			Msg("Robots.txt file truncated at 1MB limit")
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))

	var inOurSection bool
	var inWildcardSection bool
	var foundSpecificSection bool

	// Extract bot name from user agent (e.g., "PageLensBot/1.0" -> "pagelensbot")
	botName := strings.ToLower(strings.Split(userAgent, "/")[0])

	// Rules aimed at comparable SEO audit crawlers apply to us as well;
	// site owners rarely list every audit bot by name.
	similarBots := []string{
		"ahrefsbot",
		"ahrefssiteaudit",
		"mj12bot",
		"semrushbot",
		"dotbot",
		"rogerbot",
		"screaming frog",
		"sitebot",
		"webcrawler",
	}

	wildcardRules := &RobotsRules{
		Sitemaps:         []string{},
		DisallowPatterns: []string{},
		AllowPatterns:    []string{},
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		lowerLine := strings.ToLower(line)

		if strings.HasPrefix(lowerLine, "user-agent:") {
			agent := strings.TrimSpace(line[11:])
			agentLower := strings.ToLower(agent)

			inOurSection = false
			inWildcardSection = false

			if agent == "*" {
				inWildcardSection = true
			} else if agentLower == botName || strings.Contains(agentLower, botName) {
				inOurSection = true
				foundSpecificSection = true
				rules = &RobotsRules{
					Sitemaps:         rules.Sitemaps,
					DisallowPatterns: []string{},
					AllowPatterns:    []string{},
				}
				log.Debug().
					Str("user_agent_section", agent).
					Msg("Found rules section for our bot")
			} else if !foundSpecificSection {
				for _, similarBot := range similarBots {
					if strings.Contains(agentLower, similarBot) {
						inOurSection = true
						foundSpecificSection = true
						rules = &RobotsRules{
							Sitemaps:         rules.Sitemaps,
							DisallowPatterns: []string{},
							AllowPatterns:    []string{},
						}
						log.Debug().
							Str("user_agent_section", agent).
							Str("matched_similar_bot", similarBot).
							Msg("Found rules section for similar bot - adopting these rules")
						break
					}
				}
			}
			continue
		}

		// Sitemap directives apply globally
		if strings.HasPrefix(lowerLine, "sitemap:") {
			sitemapURL := strings.TrimSpace(line[8:])
			if sitemapURL != "" {
				rules.Sitemaps = append(rules.Sitemaps, sitemapURL)
			}
			continue
		}

		if !inOurSection && !inWildcardSection {
			continue
		}

		currentRules := rules
		if inWildcardSection && !foundSpecificSection {
			currentRules = wildcardRules
		}

		if strings.HasPrefix(lowerLine, "crawl-delay:") {
			delayStr := strings.TrimSpace(line[12:])
			if delay, err := strconv.Atoi(delayStr); err == nil && delay > 0 {
				currentRules.CrawlDelay = delay
			}
			continue
		}

		if strings.HasPrefix(lowerLine, "disallow:") {
			path := strings.TrimSpace(line[9:])
			if path == "/" {
				// Explicit site-wide block. The only robots rule that
				// hard-stops a crawl.
				currentRules.DisallowAll = true
				continue
			}
			if path != "" {
				currentRules.DisallowPatterns = append(currentRules.DisallowPatterns, path)
			}
			continue
		}

		if strings.HasPrefix(lowerLine, "allow:") {
			path := strings.TrimSpace(line[6:])
			if path != "" {
				currentRules.AllowPatterns = append(currentRules.AllowPatterns, path)
			}
			continue
		}
	}

	// If we didn't find a specific section, use wildcard rules
	if !foundSpecificSection {
		wildcardRules.Sitemaps = rules.Sitemaps
		rules = wildcardRules
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading robots.txt: %w", err)
	}

	log.Debug().
		Int("crawl_delay", rules.CrawlDelay).
		Int("sitemaps", len(rules.Sitemaps)).
		Int("disallow_patterns", len(rules.DisallowPatterns)).
		Int("allow_patterns", len(rules.AllowPatterns)).
		Bool("disallow_all", rules.DisallowAll).
		Msg("Parsed robots.txt rules")

	return rules, nil
}

// IsPathAllowed checks if a path is allowed by robots.txt rules
func IsPathAllowed(rules *RobotsRules, path string) bool {
	if rules == nil {
		return true
	}
	if rules.DisallowAll {
		// Allow patterns still override a site-wide block
		for _, pattern := range rules.AllowPatterns {
			if matchesRobotsPattern(path, pattern) {
				return true
			}
		}
		return false
	}
	if len(rules.DisallowPatterns) == 0 {
		return true
	}

	// Allow patterns override Disallow
	for _, pattern := range rules.AllowPatterns {
		if matchesRobotsPattern(path, pattern) {
			return true
		}
	}

	for _, pattern := range rules.DisallowPatterns {
		if matchesRobotsPattern(path, pattern) {
			return false
		}
	}

	return true
}

// matchesRobotsPattern checks if a path matches a robots.txt pattern
// Supports * wildcard and $ end-of-URL marker
func matchesRobotsPattern(path, pattern string) bool {
	if strings.HasSuffix(pattern, "$") {
		pattern = strings.TrimSuffix(pattern, "$")
		return path == pattern
	}

	if strings.Contains(pattern, "*") {
		parts := strings.Split(pattern, "*")
		if len(parts) == 2 && parts[1] == "" {
			return strings.HasPrefix(path, parts[0])
		}
		currentPos := 0
		for _, part := range parts {
			if part == "" {
				continue
			}
			idx := strings.Index(path[currentPos:], part)
			if idx == -1 {
				return false
			}
			currentPos += idx + len(part)
		}
		return true
	}

	return strings.HasPrefix(path, pattern)
}
