package render

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Session is the capability a pooled render resource must provide.
// Implementations: chromedp-backed browser sessions and the HTTP-only
// fallback used when no browser is available.
type Session interface {
	// Render navigates to url and returns the post-JavaScript DOM.
	Render(ctx context.Context, url string) (*Result, error)
	// HealthCheck verifies the session is still responsive.
	HealthCheck(ctx context.Context) error
	// Close releases the session's resources.
	Close() error
}

// Factory creates new sessions for the pool.
type Factory func() (Session, error)

// Pool manages a fixed number of render sessions. Acquire health-checks
// the session before handing it out and recreates a broken one once
// before reporting ErrUnavailable.
type Pool struct {
	factory  Factory
	sessions chan Session
	size     int
	mu       sync.Mutex
	closed   bool
}

// NewPool creates a pool of size sessions. Sessions are created lazily:
// the pool starts with placeholders and the factory runs on first use.
func NewPool(size int, factory Factory) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		factory:  factory,
		sessions: make(chan Session, size),
		size:     size,
	}
	for i := 0; i < size; i++ {
		p.sessions <- nil
	}
	return p
}

// Acquire returns a healthy session or ErrUnavailable. A session that
// fails its health probe is closed and recreated once; callers never
// observe a use-after-crash error.
func (p *Pool) Acquire(ctx context.Context) (Session, error) {
	var s Session
	select {
	case s = <-p.sessions:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if s == nil {
		created, err := p.factory()
		if err != nil {
			p.sessions <- nil
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return created, nil
	}

	if err := s.HealthCheck(ctx); err != nil {
		log.Warn().
			Err(err).
			Msg("Render session failed health check, recreating")
		_ = s.Close()

		created, ferr := p.factory()
		if ferr != nil {
			p.sessions <- nil
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ferr)
		}
		return created, nil
	}

	return s, nil
}

// Release returns a session to the pool. Pass nil to return the slot
// after a failed Acquire-recreate.
func (p *Pool) Release(s Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		if s != nil {
			_ = s.Close()
		}
		return
	}
	select {
	case p.sessions <- s:
	default:
		// Slot accounting broke somewhere; don't leak the session.
		if s != nil {
			_ = s.Close()
		}
	}
}

// Close shuts down all pooled sessions.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for i := 0; i < p.size; i++ {
		select {
		case s := <-p.sessions:
			if s != nil {
				_ = s.Close()
			}
		default:
			return
		}
	}
}
