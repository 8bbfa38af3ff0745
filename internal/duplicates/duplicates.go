// Package duplicates detects pages that were crawled as distinct
// entries despite belonging to the same normalisation family, and
// canonical tags that point at URLs the crawl never reached.
package duplicates

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pagelens/pagelens/internal/extract"
	"github.com/pagelens/pagelens/internal/seo"
	"github.com/pagelens/pagelens/internal/urlutil"
)

// Group is a set of crawled URLs that collapse to one identity under
// aggressive normalisation, with the target the group should converge on.
type Group struct {
	URLs                 []string `json:"urls"`
	RecommendedCanonical string   `json:"recommended_canonical"`
}

// Conflict records a page whose declared canonical tag points at a URL
// that resolves to a different identity and was never crawled.
type Conflict struct {
	PageURL         string `json:"page_url"`
	DeclaredTarget  string `json:"declared_target"`
	CanonicalTarget string `json:"canonical_target"`
}

// Result is everything the detector found across one crawl.
type Result struct {
	Groups    []Group
	Conflicts []Conflict
	Issues    []seo.Issue
}

// Detector groups crawled pages by normalisation family.
type Detector struct {
	canon         *urlutil.Canonicaliser
	preferredHost string
}

// New creates a Detector. preferredHost decides whether the recommended
// canonical keeps the www prefix.
func New(canon *urlutil.Canonicaliser, preferredHost string) *Detector {
	return &Detector{canon: canon, preferredHost: preferredHost}
}

// Detect runs duplicate grouping and canonical-conflict checks over the
// analysed page set.
func (d *Detector) Detect(pages []*extract.PageSignals) *Result {
	result := &Result{}

	crawled := make(map[string]*extract.PageSignals, len(pages))
	families := make(map[string][]string)
	for _, page := range pages {
		crawled[page.URL] = page
		key := familyKey(page.URL)
		families[key] = append(families[key], page.URL)
	}

	keys := make([]string, 0, len(families))
	for key := range families {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		members := families[key]
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		group := Group{
			URLs:                 members,
			RecommendedCanonical: d.recommendCanonical(members),
		}
		result.Groups = append(result.Groups, group)
		result.Issues = append(result.Issues, seo.Issue{
			Category: seo.CategoryTechnical,
			Severity: seo.SeverityMedium,
			Title:    "Duplicate page variants crawled separately",
			Description: fmt.Sprintf(
				"%d URL variants of the same page were crawled as distinct entries, splitting link equity and crawl budget.",
				len(members)),
			AffectedURLs: members,
			FixInstructions: fmt.Sprintf(
				"Point the canonical tag on every variant to %s and redirect the others to it.",
				group.RecommendedCanonical),
		})
	}

	result.Conflicts = d.detectConflicts(pages, crawled)
	for _, conflict := range result.Conflicts {
		result.Issues = append(result.Issues, seo.Issue{
			Category: seo.CategoryTechnical,
			Severity: seo.SeverityMedium,
			Title:    "Canonical tag points at an uncrawled URL",
			Description: fmt.Sprintf(
				"The canonical tag on %s declares %s as the preferred version, but that URL was never successfully crawled.",
				conflict.PageURL, conflict.DeclaredTarget),
			AffectedURLs:    []string{conflict.PageURL},
			FixInstructions: "Verify the canonical target resolves with a 200 status, or correct the canonical tag to reference the page itself.",
		})
	}

	log.Debug().
		Int("duplicate_groups", len(result.Groups)).
		Int("canonical_conflicts", len(result.Conflicts)).
		Msg("Duplicate detection complete")

	return result
}

func (d *Detector) detectConflicts(pages []*extract.PageSignals, crawled map[string]*extract.PageSignals) []Conflict {
	var conflicts []Conflict
	for _, page := range pages {
		declared := strings.TrimSpace(page.CanonicalTag)
		if declared == "" {
			continue
		}
		resolved := declared
		if base, err := url.Parse(page.URL); err == nil {
			if ref, rerr := url.Parse(declared); rerr == nil {
				resolved = base.ResolveReference(ref).String()
			}
		}
		target, err := d.canon.Normalise(resolved)
		if err != nil {
			continue
		}
		if target == page.URL {
			continue
		}
		if _, ok := crawled[target]; ok {
			continue
		}
		conflicts = append(conflicts, Conflict{
			PageURL:         page.URL,
			DeclaredTarget:  declared,
			CanonicalTarget: target,
		})
	}
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].PageURL < conflicts[j].PageURL })
	return conflicts
}

// recommendCanonical picks the variant a group should converge on:
// https over http, the preferred www form, then the fewest query
// parameters, with lexicographic order as the tiebreak.
func (d *Detector) recommendCanonical(members []string) string {
	best := members[0]
	bestScore := d.variantScore(best)
	for _, member := range members[1:] {
		score := d.variantScore(member)
		if score < bestScore {
			best = member
			bestScore = score
		}
	}
	return best
}

// variantScore ranks a URL variant; lower is better.
func (d *Detector) variantScore(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 1 << 20
	}
	score := 0
	if u.Scheme != "https" {
		score += 100
	}
	hasWWW := strings.HasPrefix(u.Hostname(), "www.")
	preferWWW := strings.HasPrefix(d.preferredHost, "www.")
	if hasWWW != preferWWW {
		score += 10
	}
	score += len(u.Query())
	return score
}

// familyKey reduces a URL to its normalisation family: scheme, www and
// case differences collapse, and the query is dropped entirely so
// parameter variants of one path group together.
func familyKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.ToLower(u.Path)
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		path = "/"
	}
	return host + path
}
