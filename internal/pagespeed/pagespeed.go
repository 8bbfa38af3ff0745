// Package pagespeed fetches lab performance metrics from the Google
// PageSpeed Insights API. Failures never abort an audit: every error
// path degrades to "no performance data" and the caller records the
// page as lacking metrics.
package pagespeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pagelens/pagelens/internal/cache"
	"github.com/pagelens/pagelens/internal/extract"
)

const defaultEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

// Config controls the PageSpeed client.
type Config struct {
	// APIKey authenticates against the PageSpeed API. Empty disables the
	// client entirely; Metrics then always returns nil.
	APIKey   string
	Endpoint string
	Strategy string
	Timeout  time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		Endpoint: defaultEndpoint,
		Strategy: "mobile",
		Timeout:  30 * time.Second,
	}
}

// Client queries the PageSpeed API with a per-audit result cache so the
// same URL is never fetched twice within one audit run.
type Client struct {
	cfg    *Config
	client *http.Client
	cache  *cache.InMemoryCache[*extract.PerformanceMetrics]
}

// New creates a Client. A nil config uses defaults.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "mobile"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  cache.NewInMemoryCache[*extract.PerformanceMetrics](),
	}
}

// Enabled reports whether the client has credentials to call the API.
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != ""
}

// Metrics returns validated-shape performance metrics for pageURL, or
// nil when the API is disabled, unreachable, or returns an unusable
// payload.
func (c *Client) Metrics(ctx context.Context, pageURL string) *extract.PerformanceMetrics {
	if !c.Enabled() {
		return nil
	}

	cacheKey := c.cfg.Strategy + ":" + pageURL
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached
	}

	metrics, err := c.fetch(ctx, pageURL)
	if err != nil {
		log.Warn().Err(err).Str("url", pageURL).
			Msg("PageSpeed lookup failed, continuing without performance data")
		// Cache the failure too; retrying a broken URL within the same
		// audit just burns quota.
		c.cache.Set(cacheKey, nil)
		return nil
	}

	c.cache.Set(cacheKey, metrics)
	return metrics
}

func (c *Client) fetch(ctx context.Context, pageURL string) (*extract.PerformanceMetrics, error) {
	query := url.Values{}
	query.Set("url", pageURL)
	query.Set("key", c.cfg.APIKey)
	query.Set("strategy", c.cfg.Strategy)
	query.Add("category", "performance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build PageSpeed request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("PageSpeed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("PageSpeed API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read PageSpeed response: %w", err)
	}

	return parseResponse(body)
}

// Response shapes for the slice of the Lighthouse result we consume.
type apiResponse struct {
	LighthouseResult struct {
		Audits map[string]struct {
			ID           string  `json:"id"`
			Score        float64 `json:"score"`
			NumericValue float64 `json:"numericValue"`
			Title        string  `json:"title"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
}

func parseResponse(body []byte) (*extract.PerformanceMetrics, error) {
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode PageSpeed response: %w", err)
	}

	audits := parsed.LighthouseResult.Audits
	if len(audits) == 0 {
		return nil, fmt.Errorf("PageSpeed response carried no audits")
	}

	metrics := &extract.PerformanceMetrics{}
	if a, ok := audits["largest-contentful-paint"]; ok {
		metrics.LCP = a.NumericValue
	}
	if a, ok := audits["first-contentful-paint"]; ok {
		metrics.FCP = a.NumericValue
	}
	if a, ok := audits["cumulative-layout-shift"]; ok {
		metrics.CLS = a.NumericValue
	}
	if a, ok := audits["max-potential-fid"]; ok {
		metrics.FID = a.NumericValue
	}
	if a, ok := audits["server-response-time"]; ok {
		metrics.TTFB = a.NumericValue
	}

	if metrics.LCP == 0 && metrics.FCP == 0 && metrics.TTFB == 0 {
		return nil, fmt.Errorf("PageSpeed response carried no usable metrics")
	}

	// Failed opportunity audits become human-readable suggestions.
	for id, audit := range audits {
		switch id {
		case "render-blocking-resources", "unused-css-rules", "unused-javascript",
			"uses-optimized-images", "uses-text-compression", "uses-responsive-images",
			"offscreen-images", "server-response-time":
			if audit.Score < 0.9 && audit.Title != "" {
				metrics.Opportunities = append(metrics.Opportunities, audit.Title)
			}
		}
	}
	sort.Strings(metrics.Opportunities)

	return metrics, nil
}
