package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/pagelens/pagelens/internal/audit"
	"github.com/pagelens/pagelens/internal/seo"
	"github.com/pagelens/pagelens/internal/store"
	"github.com/pagelens/pagelens/internal/urlutil"
)

// Version is the current API version (can be set via ldflags at build time)
var Version = "0.3.0"

// DefaultMaxRunningAudits bounds how many audits run at once. Each
// audit already fans out its own crawl workers, so this stays small.
const DefaultMaxRunningAudits = 2

// AuditRunner executes a full audit and returns its result.
type AuditRunner interface {
	Run(ctx context.Context, req seo.AuditRequest) (*audit.Result, error)
}

// AuditStore persists audit results. Satisfied by *store.Store.
type AuditStore interface {
	SaveAudit(ctx context.Context, result *audit.Result) error
	GetAudit(ctx context.Context, id string) (*audit.Result, error)
	ListAudits(ctx context.Context, domain string, limit int) ([]store.AuditSummary, error)
	Health(ctx context.Context) error
}

// Handler holds dependencies for API handlers
type Handler struct {
	Runner  AuditRunner
	Store   AuditStore // nil runs audits synchronously without persistence
	running *semaphore.Weighted
}

// NewHandler creates a new API handler with dependencies
func NewHandler(runner AuditRunner, auditStore AuditStore, maxRunning int64) *Handler {
	if maxRunning <= 0 {
		maxRunning = DefaultMaxRunningAudits
	}
	return &Handler{
		Runner:  runner,
		Store:   auditStore,
		running: semaphore.NewWeighted(maxRunning),
	}
}

// SetupRoutes configures all API routes with proper middleware
func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/health/db", h.DatabaseHealthCheck)

	mux.HandleFunc("/v1/audits", h.AuditsHandler)
	mux.HandleFunc("/v1/audits/", h.AuditHandler) // For /v1/audits/:id
}

// HealthCheck handles basic health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}
	WriteHealthy(w, r, "pagelens", Version)
}

// DatabaseHealthCheck verifies the audit store is reachable
func (h *Handler) DatabaseHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}
	if h.Store == nil {
		ServiceUnavailable(w, r, "No audit store configured")
		return
	}
	if err := h.Store.Health(r.Context()); err != nil {
		WriteUnhealthy(w, r, "pagelens-db", err)
		return
	}
	WriteHealthy(w, r, "pagelens-db", Version)
}

// AuditsHandler routes /v1/audits by method
func (h *Handler) AuditsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.CreateAudit(w, r)
	case http.MethodGet:
		h.ListAudits(w, r)
	default:
		MethodNotAllowed(w, r)
	}
}

// CreateAudit starts a new audit. With a store configured the audit
// runs in the background and the client polls /v1/audits/:id; without
// one the request blocks until the audit completes.
func (h *Handler) CreateAudit(w http.ResponseWriter, r *http.Request) {
	var req seo.AuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "Invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.URL) == "" {
		WriteErrorMessage(w, r, "url is required", http.StatusBadRequest, ErrCodeValidation)
		return
	}
	if req.Tier == "" {
		req.Tier = seo.TierStarter
	}

	if h.Store == nil {
		h.runSyncAudit(w, r, req)
		return
	}

	pending := pendingResult(req)
	if err := h.Store.SaveAudit(r.Context(), pending); err != nil {
		DatabaseError(w, r, err)
		return
	}

	go h.runBackgroundAudit(pending.ID, req)

	WriteAccepted(w, r, map[string]string{
		"audit_id": pending.ID,
		"state":    string(pending.State),
	}, "Audit queued")
}

// runSyncAudit blocks the request until the audit finishes.
func (h *Handler) runSyncAudit(w http.ResponseWriter, r *http.Request, req seo.AuditRequest) {
	if err := h.running.Acquire(r.Context(), 1); err != nil {
		ServiceUnavailable(w, r, "Server is shutting down")
		return
	}
	defer h.running.Release(1)

	result, err := h.Runner.Run(r.Context(), req)
	if err != nil {
		if result != nil {
			WriteJSON(w, r, result, http.StatusUnprocessableEntity)
			return
		}
		InternalError(w, r, err)
		return
	}
	WriteSuccess(w, r, result, "Audit complete")
}

// runBackgroundAudit executes a queued audit and persists the outcome
// under the id the client was given.
func (h *Handler) runBackgroundAudit(id string, req seo.AuditRequest) {
	ctx := context.Background()
	if err := h.running.Acquire(ctx, 1); err != nil {
		return
	}
	defer h.running.Release(1)

	result, err := h.Runner.Run(ctx, req)
	if result == nil {
		result = pendingResult(req)
		result.State = audit.StateFailed
		if err != nil {
			result.Error = err.Error()
		}
	}
	result.ID = id

	if err := h.Store.SaveAudit(ctx, result); err != nil {
		log.Error().Err(err).Str("audit_id", id).Msg("Failed to persist audit result")
	}
}

// pendingResult builds the stub the client polls while the audit runs.
// The target is a best-effort parse; the orchestrator resolves the
// real one once the crawl starts.
func pendingResult(req seo.AuditRequest) *audit.Result {
	result := &audit.Result{
		ID:        uuid.New().String(),
		State:     audit.StatePending,
		Tier:      req.Tier,
		StartedAt: time.Now(),
	}

	if parsed, err := url.Parse(urlutil.NormaliseURL(req.URL)); err == nil && parsed.Host != "" {
		domain, derr := urlutil.RootDomain(parsed.Host)
		if derr != nil {
			domain = strings.ToLower(parsed.Hostname())
		}
		result.Target = &urlutil.CrawlTarget{
			RawURL:            req.URL,
			RootDomain:        domain,
			PreferredHostname: strings.ToLower(parsed.Hostname()),
			PreferredProtocol: parsed.Scheme,
		}
	}

	return result
}

// AuditHandler serves /v1/audits/:id
func (h *Handler) AuditHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}
	if h.Store == nil {
		ServiceUnavailable(w, r, "No audit store configured")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/audits/")
	if id == "" || strings.Contains(id, "/") {
		BadRequest(w, r, "Invalid audit ID")
		return
	}

	result, err := h.Store.GetAudit(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(w, r, "Audit not found")
			return
		}
		DatabaseError(w, r, err)
		return
	}

	WriteSuccess(w, r, result, "")
}

// ListAudits serves /v1/audits?domain=example.com&limit=20
func (h *Handler) ListAudits(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		ServiceUnavailable(w, r, "No audit store configured")
		return
	}

	domain := strings.TrimSpace(r.URL.Query().Get("domain"))
	if domain == "" {
		WriteErrorMessage(w, r, "domain query parameter is required", http.StatusBadRequest, ErrCodeValidation)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			BadRequest(w, r, "limit must be an integer")
			return
		}
		limit = parsed
	}

	summaries, err := h.Store.ListAudits(r.Context(), domain, limit)
	if err != nil {
		DatabaseError(w, r, err)
		return
	}

	WriteSuccess(w, r, map[string]interface{}{
		"audits": summaries,
		"count":  len(summaries),
	}, "")
}
