package render

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// httpSession is a Session that performs a plain HTTP fetch. Used when
// no browser is available (render mode disabled or Chrome missing);
// pages served through it carry no web vitals and no JavaScript-injected
// content, so the orchestrator marks them renderingDegraded.
type httpSession struct {
	cfg    *Config
	client *http.Client
}

// NewHTTPSession creates the HTTP-only fallback session.
func NewHTTPSession(cfg *Config) (Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &httpSession{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.PageTimeout,
		},
	}, nil
}

func (s *httpSession) Render(ctx context.Context, url string) (*Result, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &RenderTimeoutError{URL: url, Timeout: s.cfg.PageTimeout}
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	html := string(body)
	title := ""
	if doc, derr := goquery.NewDocumentFromReader(strings.NewReader(html)); derr == nil {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	return &Result{
		HTML:     html,
		Title:    title,
		Vitals:   nil,
		Duration: time.Since(start),
	}, nil
}

func (s *httpSession) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *httpSession) Close() error {
	return nil
}
