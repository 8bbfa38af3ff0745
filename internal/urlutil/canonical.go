// Package urlutil provides URL canonicalisation for the audit pipeline.
// Every URL entering the crawl frontier passes through a Canonicaliser so
// that two raw URLs differing only in protocol, www prefix, trailing
// slash, query order or host case share a single canonical identity.
package urlutil

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// defaultTrackingParams are stripped from every URL before the canonical
// key is built. Prefix entries (ending in *) match any parameter with
// that prefix.
var defaultTrackingParams = []string{
	"utm_*",
	"fbclid",
	"gclid",
	"msclkid",
	"mc_cid",
	"mc_eid",
	"ref",
}

// Config controls canonicalisation behaviour.
type Config struct {
	// PreferredScheme replaces the scheme of internal URLs (https unless
	// redirect resolution lands on http).
	PreferredScheme string
	// PreferredHost is the hostname the site resolved to after redirects.
	// Controls whether the www prefix is kept or stripped.
	PreferredHost string
	// RootDomain is the registered domain (eTLD+1) used for the
	// internal/external split.
	RootDomain string
	// CaseFoldPath lowercases the path component. Off by default because
	// many servers serve different content for different path casing.
	CaseFoldPath bool
	// TrackingParams overrides the default tracking parameter denylist.
	TrackingParams []string
}

// Canonicaliser normalises and classifies URLs relative to a resolved
// crawl target.
type Canonicaliser struct {
	cfg Config
}

// New creates a Canonicaliser for the given target configuration.
func New(cfg Config) *Canonicaliser {
	if cfg.PreferredScheme == "" {
		cfg.PreferredScheme = "https"
	}
	if cfg.TrackingParams == nil {
		cfg.TrackingParams = defaultTrackingParams
	}
	return &Canonicaliser{cfg: cfg}
}

// RootDomain extracts the registered domain (eTLD+1) from a hostname.
// IP addresses and single-label hosts (localhost, staging boxes) have
// no registered domain; the host itself is the root for those.
func RootDomain(host string) (string, error) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		if host == "" {
			return "", fmt.Errorf("empty host")
		}
		return host, nil
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("failed to extract root domain from %q: %w", host, err)
	}
	return domain, nil
}

// Normalise converts a raw URL into its canonical string form.
//
// Rules, applied in order: lowercase host, strip default ports, strip
// the www prefix when it does not change the registered domain, collapse
// trailing slashes (root keeps "/", other paths drop it), sort query
// parameters by key, and strip tracking parameters. The scheme of
// internal URLs is replaced with the preferred scheme so http/https
// variants collapse to one identity.
func (c *Canonicaliser) Normalise(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("empty URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("URL missing scheme or host: %q", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = normaliseHostPort(strings.ToLower(u.Host), u.Scheme)
	u.Fragment = ""

	internal := c.isInternalHost(u.Hostname())
	if internal {
		u.Scheme = c.cfg.PreferredScheme
		u.Host = c.stripWWW(u.Host)
	}

	u.Path = c.normalisePath(u.Path)
	u.RawQuery = c.normaliseQuery(u.Query())

	return u.String(), nil
}

// IsInternal reports whether rawURL belongs to the audited site. The
// comparison uses the registered root domain, not the full hostname, so
// subdomains count as internal.
func (c *Canonicaliser) IsInternal(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	return c.isInternalHost(strings.ToLower(u.Hostname()))
}

func (c *Canonicaliser) isInternalHost(host string) bool {
	root, err := RootDomain(host)
	if err != nil {
		return false
	}
	return root == c.cfg.RootDomain
}

// stripWWW removes a leading www. unless the preferred hostname itself
// carries it (some sites canonically serve on www).
func (c *Canonicaliser) stripWWW(host string) string {
	if strings.HasPrefix(c.cfg.PreferredHost, "www.") {
		if !strings.HasPrefix(host, "www.") && host == strings.TrimPrefix(c.cfg.PreferredHost, "www.") {
			return c.cfg.PreferredHost
		}
		return host
	}
	trimmed := strings.TrimPrefix(host, "www.")
	if trimmed == host {
		return host
	}
	// Only strip when the registered domain is unchanged, e.g. not for
	// a host that is literally "www.<tld>".
	origRoot, err1 := RootDomain(host)
	newRoot, err2 := RootDomain(trimmed)
	if err1 != nil || err2 != nil || origRoot != newRoot {
		return host
	}
	return trimmed
}

func (c *Canonicaliser) normalisePath(path string) string {
	if path == "" {
		return "/"
	}
	for strings.HasSuffix(path, "//") {
		path = strings.TrimSuffix(path, "/")
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if c.cfg.CaseFoldPath {
		path = strings.ToLower(path)
	}
	return path
}

func (c *Canonicaliser) normaliseQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		if c.isTrackingParam(key) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		vals := values[key]
		sort.Strings(vals)
		for _, val := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			if val != "" {
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(val))
			}
		}
	}
	return b.String()
}

func (c *Canonicaliser) isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	for _, pattern := range c.cfg.TrackingParams {
		if strings.HasSuffix(pattern, "*") {
			if strings.HasPrefix(key, strings.TrimSuffix(pattern, "*")) {
				return true
			}
		} else if key == pattern {
			return true
		}
	}
	return false
}

// normaliseHostPort removes default ports (80 for HTTP, 443 for HTTPS) from host.
func normaliseHostPort(host, scheme string) string {
	if scheme == "http" && strings.HasSuffix(host, ":80") {
		return strings.TrimSuffix(host, ":80")
	}
	if scheme == "https" && strings.HasSuffix(host, ":443") {
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

// NormaliseURL ensures a URL has a scheme, defaulting to https, and
// validates basic format. Returns "" when the input cannot be repaired.
func NormaliseURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		rawURL = "https://" + rawURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return rawURL
}
