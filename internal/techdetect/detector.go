// Package techdetect fingerprints the technology stack of an audited
// site with wappalyzergo. The crawl samples the homepage response and
// records the detected platform in the audit diagnostics, which lets
// fix instructions reference the right CMS or site builder.
package techdetect

import (
	"net/http"
	"sort"
	"sync"

	wappalyzer "github.com/projectdiscovery/wappalyzergo"
	"github.com/rs/zerolog/log"
)

// Result maps each detected technology to its wappalyzer categories
// (e.g. {"WordPress": ["CMS", "Blogs"], "Cloudflare": ["CDN"]}).
type Result struct {
	Technologies map[string][]string `json:"technologies"`
}

// Detector wraps a shared wappalyzer instance. Detection is read-only
// and safe for concurrent use across audits.
type Detector struct {
	client *wappalyzer.Wappalyze
	mu     sync.RWMutex
}

// categoryNames maps wappalyzer category IDs to human-readable names
var categoryNames map[int]string
var categoryNamesOnce sync.Once

// New creates a new technology detector
func New() (*Detector, error) {
	client, err := wappalyzer.New()
	if err != nil {
		return nil, err
	}

	// Initialise category names mapping once
	categoryNamesOnce.Do(func() {
		categoryNames = make(map[int]string)
		cats := wappalyzer.GetCategoriesMapping()
		for id, cat := range cats {
			categoryNames[id] = cat.Name
		}
	})

	return &Detector{
		client: client,
	}, nil
}

// Detect identifies technologies from HTTP headers and body
func (d *Detector) Detect(headers http.Header, body []byte) *Result {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := &Result{
		Technologies: make(map[string][]string),
	}

	fingerprints := d.client.FingerprintWithCats(headers, body)

	for tech, catInfo := range fingerprints {
		categories := make([]string, 0, len(catInfo.Cats))
		for _, catID := range catInfo.Cats {
			if name, ok := categoryNames[catID]; ok {
				categories = append(categories, name)
			}
		}
		result.Technologies[tech] = categories
	}

	log.Debug().
		Int("tech_count", len(result.Technologies)).
		Interface("technologies", result.Technologies).
		Msg("Technology detection completed")

	return result
}

// platformCategories are the wappalyzer categories that identify the
// platform a site is built on, in preference order.
var platformCategories = []string{"CMS", "Ecommerce", "Page builders", "Web frameworks"}

// Platform returns the detected site platform (e.g. "WordPress",
// "Shopify"), or "" when no platform-level technology was identified.
func (r *Result) Platform() string {
	for _, wanted := range platformCategories {
		var matches []string
		for tech, categories := range r.Technologies {
			for _, category := range categories {
				if category == wanted {
					matches = append(matches, tech)
					break
				}
			}
		}
		if len(matches) > 0 {
			sort.Strings(matches)
			return matches[0]
		}
	}
	return ""
}
