package urlutil

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// maxRedirects bounds redirect resolution for the root URL.
const maxRedirects = 5

// RedirectLoopError indicates a URL redirected more than maxRedirects
// times. Fatal for the root URL; discovered links are simply dropped.
type RedirectLoopError struct {
	URL string
}

func (e *RedirectLoopError) Error() string {
	return fmt.Sprintf("redirect loop: %s exceeded %d redirects", e.URL, maxRedirects)
}

// CrawlTarget is the resolved identity of the site under audit, created
// once per audit and shared read-only by all components.
type CrawlTarget struct {
	RawURL            string `json:"raw_url"`
	RootDomain        string `json:"root_domain"`
	PreferredHostname string `json:"preferred_hostname"`
	PreferredProtocol string `json:"preferred_protocol"`
}

// Canonicaliser builds a canonicaliser bound to this target.
func (t *CrawlTarget) Canonicaliser() *Canonicaliser {
	return New(Config{
		PreferredScheme: t.PreferredProtocol,
		PreferredHost:   t.PreferredHostname,
		RootDomain:      t.RootDomain,
	})
}

// RootURL returns the canonical entry point for the crawl.
func (t *CrawlTarget) RootURL() string {
	return t.PreferredProtocol + "://" + t.PreferredHostname + "/"
}

// ResolveTarget follows redirects from rawURL and builds the audit's
// CrawlTarget from the final destination. The final scheme and host
// become the preferred protocol and hostname for canonicalisation.
func ResolveTarget(ctx context.Context, client *http.Client, rawURL string) (*CrawlTarget, error) {
	normalised := NormaliseURL(rawURL)
	if normalised == "" {
		return nil, fmt.Errorf("invalid URL format: %q", rawURL)
	}

	finalURL, err := FollowRedirects(ctx, client, normalised)
	if err != nil {
		return nil, err
	}

	parsed, err := url.Parse(finalURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse resolved URL %q: %w", finalURL, err)
	}

	rootDomain, err := RootDomain(parsed.Hostname())
	if err != nil {
		return nil, err
	}

	target := &CrawlTarget{
		RawURL:            rawURL,
		RootDomain:        rootDomain,
		PreferredHostname: strings.ToLower(parsed.Hostname()),
		PreferredProtocol: strings.ToLower(parsed.Scheme),
	}

	log.Debug().
		Str("raw_url", rawURL).
		Str("final_url", finalURL).
		Str("root_domain", target.RootDomain).
		Msg("Resolved crawl target")

	return target, nil
}

// FollowRedirects issues lightweight HEAD requests following up to
// maxRedirects redirects and returns the final URL. Exceeding the limit
// returns a RedirectLoopError.
func FollowRedirects(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	// The loop manages redirects itself so the hop count is exact.
	noRedirect := *client
	noRedirect.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	current := rawURL
	for hop := 0; hop <= maxRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, current, nil)
		if err != nil {
			return "", fmt.Errorf("failed to create request for %q: %w", current, err)
		}

		resp, err := noRedirect.Do(req)
		if err != nil {
			return "", fmt.Errorf("failed to reach %q: %w", current, err)
		}
		resp.Body.Close()

		if resp.StatusCode < 300 || resp.StatusCode >= 400 {
			return current, nil
		}

		location := resp.Header.Get("Location")
		if location == "" {
			return current, nil
		}

		base, err := url.Parse(current)
		if err != nil {
			return "", err
		}
		next, err := base.Parse(location)
		if err != nil {
			return "", fmt.Errorf("invalid redirect location %q: %w", location, err)
		}
		current = next.String()
	}

	return "", &RedirectLoopError{URL: rawURL}
}
