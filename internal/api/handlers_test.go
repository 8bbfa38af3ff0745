package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelens/pagelens/internal/audit"
	"github.com/pagelens/pagelens/internal/seo"
	"github.com/pagelens/pagelens/internal/store"
)

type fakeRunner struct {
	result *audit.Result
	err    error
	delay  time.Duration
}

func (f *fakeRunner) Run(ctx context.Context, req seo.AuditRequest) (*audit.Result, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

type memStore struct {
	mu     sync.Mutex
	audits map[string]*audit.Result
}

func newMemStore() *memStore {
	return &memStore{audits: make(map[string]*audit.Result)}
}

func (m *memStore) SaveAudit(ctx context.Context, result *audit.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits[result.ID] = result
	return nil
}

func (m *memStore) GetAudit(ctx context.Context, id string) (*audit.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if result, ok := m.audits[id]; ok {
		return result, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListAudits(ctx context.Context, domain string, limit int) ([]store.AuditSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var summaries []store.AuditSummary
	for _, result := range m.audits {
		if result.Target != nil && result.Target.RootDomain == domain {
			summaries = append(summaries, store.AuditSummary{ID: result.ID, Domain: domain, State: string(result.State)})
		}
	}
	return summaries, nil
}

func (m *memStore) Health(ctx context.Context) error { return nil }

func (m *memStore) state(id string) audit.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if result, ok := m.audits[id]; ok {
		return result.State
	}
	return ""
}

func doneResult() *audit.Result {
	return &audit.Result{
		ID:    "replaced-by-handler",
		State: audit.StateDone,
	}
}

func postAudit(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/audits", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.AuditsHandler(rec, req)
	return rec
}

func TestCreateAuditQueuesInBackground(t *testing.T) {
	audits := newMemStore()
	h := NewHandler(&fakeRunner{result: doneResult()}, audits, 0)

	rec := postAudit(t, h, `{"url": "https://example.com", "tier": "starter"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp SuccessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	id := data["audit_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "pending", data["state"].(string))

	// The background run overwrites the pending stub under the same id.
	assert.Eventually(t, func() bool {
		return audits.state(id) == audit.StateDone
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCreateAuditRequiresURL(t *testing.T) {
	h := NewHandler(&fakeRunner{result: doneResult()}, newMemStore(), 0)

	rec := postAudit(t, h, `{"tier": "starter"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "url is required")
}

func TestCreateAuditRejectsGarbage(t *testing.T) {
	h := NewHandler(&fakeRunner{result: doneResult()}, newMemStore(), 0)

	rec := postAudit(t, h, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAuditSynchronousWithoutStore(t *testing.T) {
	h := NewHandler(&fakeRunner{result: doneResult()}, nil, 0)

	rec := postAudit(t, h, `{"url": "https://example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"done"`)
}

func TestCreateAuditBackgroundFailureRecorded(t *testing.T) {
	audits := newMemStore()
	h := NewHandler(&fakeRunner{err: fmt.Errorf("site unreachable")}, audits, 0)

	rec := postAudit(t, h, `{"url": "https://example.com"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp SuccessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	id := resp.Data.(map[string]interface{})["audit_id"].(string)

	assert.Eventually(t, func() bool {
		return audits.state(id) == audit.StateFailed
	}, 2*time.Second, 10*time.Millisecond)

	saved, err := audits.GetAudit(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "site unreachable", saved.Error)
}

func TestGetAudit(t *testing.T) {
	audits := newMemStore()
	require.NoError(t, audits.SaveAudit(context.Background(), &audit.Result{ID: "aud-1", State: audit.StateDone}))
	h := NewHandler(&fakeRunner{result: doneResult()}, audits, 0)

	req := httptest.NewRequest(http.MethodGet, "/v1/audits/aud-1", nil)
	rec := httptest.NewRecorder()
	h.AuditHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"aud-1"`)
}

func TestGetAuditNotFound(t *testing.T) {
	h := NewHandler(&fakeRunner{result: doneResult()}, newMemStore(), 0)

	req := httptest.NewRequest(http.MethodGet, "/v1/audits/missing", nil)
	rec := httptest.NewRecorder()
	h.AuditHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAuditsRequiresDomain(t *testing.T) {
	h := NewHandler(&fakeRunner{result: doneResult()}, newMemStore(), 0)

	req := httptest.NewRequest(http.MethodGet, "/v1/audits", nil)
	rec := httptest.NewRecorder()
	h.AuditsHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "domain")
}

func TestHealthCheck(t *testing.T) {
	h := NewHandler(&fakeRunner{result: doneResult()}, nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestMethodNotAllowedOnAudits(t *testing.T) {
	h := NewHandler(&fakeRunner{result: doneResult()}, newMemStore(), 0)

	req := httptest.NewRequest(http.MethodDelete, "/v1/audits", nil)
	rec := httptest.NewRecorder()
	h.AuditsHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
