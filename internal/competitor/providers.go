package competitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// SuggestResult is the uniform outcome of one suggestion provider.
// Fallback marks keywords that were guessed rather than derived from a
// live service; callers must surface that label, never merge fallback
// keywords indistinguishably with extracted ones.
type SuggestResult struct {
	OK       bool
	Keywords []string
	Fallback bool
	Err      error
}

// Provider suggests competitor keywords for a site. Providers are tried
// in chain order; the first OK result wins.
type Provider interface {
	Name() string
	Suggest(ctx context.Context, siteKeywords []string, industry string) SuggestResult
}

// Chain runs providers in order and returns the first OK result. When
// every provider fails, the last error is carried in the result.
type Chain struct {
	providers []Provider
}

// NewChain builds the documented fallback order: primary AI service,
// secondary AI service, static industry taxonomy, pattern-based guess.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// DefaultChain wires the standard four-step chain. AI endpoints with an
// empty URL are skipped at call time rather than at construction, so a
// partially configured deployment still degrades cleanly.
func DefaultChain(primaryURL, secondaryURL, apiKey string) *Chain {
	return NewChain(
		&aiProvider{name: "ai-primary", endpoint: primaryURL, apiKey: apiKey},
		&aiProvider{name: "ai-secondary", endpoint: secondaryURL, apiKey: apiKey},
		&taxonomyProvider{},
		&patternProvider{},
	)
}

// Suggest walks the chain.
func (c *Chain) Suggest(ctx context.Context, siteKeywords []string, industry string) SuggestResult {
	var lastErr error
	for _, provider := range c.providers {
		result := provider.Suggest(ctx, siteKeywords, industry)
		if result.OK {
			log.Debug().Str("provider", provider.Name()).
				Int("keywords", len(result.Keywords)).
				Bool("fallback", result.Fallback).
				Msg("Keyword suggestion provider succeeded")
			return result
		}
		if result.Err != nil {
			lastErr = result.Err
			log.Warn().Err(result.Err).Str("provider", provider.Name()).
				Msg("Keyword suggestion provider failed, trying next")
		}
	}
	return SuggestResult{Err: lastErr}
}

// aiProvider calls an external classification service that returns
// suggested keywords as JSON.
type aiProvider struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
}

func (p *aiProvider) Name() string { return p.name }

func (p *aiProvider) Suggest(ctx context.Context, siteKeywords []string, industry string) SuggestResult {
	if p.endpoint == "" {
		return SuggestResult{}
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 15 * time.Second}
	}

	payload, err := json.Marshal(map[string]any{
		"keywords": siteKeywords,
		"industry": industry,
	})
	if err != nil {
		return SuggestResult{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return SuggestResult{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return SuggestResult{Err: fmt.Errorf("%s request failed: %w", p.name, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SuggestResult{Err: fmt.Errorf("%s returned status %d", p.name, resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return SuggestResult{Err: fmt.Errorf("%s response unreadable: %w", p.name, err)}
	}

	var parsed struct {
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return SuggestResult{Err: fmt.Errorf("%s response undecodable: %w", p.name, err)}
	}
	if len(parsed.Keywords) == 0 {
		return SuggestResult{Err: fmt.Errorf("%s returned no keywords", p.name)}
	}

	return SuggestResult{OK: true, Keywords: parsed.Keywords}
}

// industryTaxonomy maps industries to stock keyword sets. Used when
// both AI services are unavailable.
var industryTaxonomy = map[string][]string{
	"photography":  {"wedding photographer", "portrait photography", "photography packages", "engagement photos"},
	"plumbing":     {"emergency plumber", "blocked drains", "hot water repairs", "plumbing services"},
	"legal":        {"family lawyer", "conveyancing", "legal advice", "estate planning"},
	"dental":       {"dentist near me", "teeth whitening", "dental implants", "emergency dentist"},
	"real estate":  {"homes for sale", "property management", "real estate agent", "property appraisal"},
	"accounting":   {"tax accountant", "bookkeeping services", "bas lodgement", "small business accounting"},
	"hospitality":  {"restaurant bookings", "function venue", "catering services", "private dining"},
	"construction": {"home builders", "renovations", "building quotes", "licensed builder"},
}

type taxonomyProvider struct{}

func (p *taxonomyProvider) Name() string { return "industry-taxonomy" }

func (p *taxonomyProvider) Suggest(_ context.Context, _ []string, industry string) SuggestResult {
	keywords, ok := industryTaxonomy[strings.ToLower(strings.TrimSpace(industry))]
	if !ok {
		return SuggestResult{}
	}
	return SuggestResult{OK: true, Keywords: keywords, Fallback: true}
}

// patternProvider is the last resort: it expands the site's own
// keywords with common commercial modifiers.
type patternProvider struct{}

var patternModifiers = []string{"best", "near me", "services", "cost"}

func (p *patternProvider) Name() string { return "pattern" }

func (p *patternProvider) Suggest(_ context.Context, siteKeywords []string, _ string) SuggestResult {
	if len(siteKeywords) == 0 {
		return SuggestResult{Err: fmt.Errorf("pattern provider needs at least one site keyword")}
	}

	seed := siteKeywords
	if len(seed) > 3 {
		seed = seed[:3]
	}

	var keywords []string
	for _, keyword := range seed {
		for _, modifier := range patternModifiers {
			if modifier == "best" {
				keywords = append(keywords, modifier+" "+keyword)
			} else {
				keywords = append(keywords, keyword+" "+modifier)
			}
		}
	}
	sort.Strings(keywords)
	return SuggestResult{OK: true, Keywords: keywords, Fallback: true}
}
