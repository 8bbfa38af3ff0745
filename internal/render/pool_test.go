package render

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	healthy  atomic.Bool
	closed   atomic.Bool
	rendered atomic.Int64
}

func newFakeSession(healthy bool) *fakeSession {
	s := &fakeSession{}
	s.healthy.Store(healthy)
	return s
}

func (s *fakeSession) Render(ctx context.Context, url string) (*Result, error) {
	s.rendered.Add(1)
	return &Result{HTML: "<html></html>", Title: "fake"}, nil
}

func (s *fakeSession) HealthCheck(ctx context.Context) error {
	if !s.healthy.Load() {
		return errors.New("session crashed")
	}
	return nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

func TestPoolAcquireCreatesLazily(t *testing.T) {
	var created atomic.Int64
	pool := NewPool(2, func() (Session, error) {
		created.Add(1)
		return newFakeSession(true), nil
	})
	defer pool.Close()

	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, int64(1), created.Load())

	pool.Release(s)

	// A released healthy session is reused, not recreated.
	s2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Load())
	pool.Release(s2)
}

func TestPoolRecreatesCrashedSession(t *testing.T) {
	crashed := newFakeSession(false)
	replacement := newFakeSession(true)

	queue := []Session{crashed, replacement}
	pool := NewPool(1, func() (Session, error) {
		s := queue[0]
		queue = queue[1:]
		return s, nil
	})
	defer pool.Close()

	// First acquire hands out the session that will crash.
	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, crashed, s)
	pool.Release(s)

	// Second acquire detects the crash via the health probe and
	// recreates the session once, transparently.
	s, err = pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, replacement, s)
	assert.True(t, crashed.closed.Load(), "crashed session should be closed")
	pool.Release(s)
}

func TestPoolUnavailableWhenFactoryFails(t *testing.T) {
	pool := NewPool(1, func() (Session, error) {
		return nil, errors.New("chrome not installed")
	})
	defer pool.Close()

	_, err := pool.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	// The slot is returned, so a later acquire can retry.
	_, err = pool.Acquire(context.Background())
	assert.Error(t, err)
}

func TestPoolAcquireRespectsContext(t *testing.T) {
	pool := NewPool(1, func() (Session, error) {
		return newFakeSession(true), nil
	})
	defer pool.Close()

	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(s)

	// No free slot; a cancelled context must not block.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPSessionRender(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><head><title>Fallback Page</title></head><body>content</body></html>"))
	}))
	defer ts.Close()

	s, err := NewHTTPSession(DefaultConfig())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.HealthCheck(context.Background()))

	res, err := s.Render(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "Fallback Page", res.Title)
	assert.Contains(t, res.HTML, "content")
	assert.Nil(t, res.Vitals, "HTTP fallback carries no web vitals")
}
