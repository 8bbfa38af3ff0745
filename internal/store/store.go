// Package store persists audit results in PostgreSQL. The full Result
// is stored as JSONB keyed by audit id; consumers (UI, PDF, email)
// read it back whole rather than through per-field columns.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"github.com/pagelens/pagelens/internal/audit"
	"github.com/pagelens/pagelens/internal/cache"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxIdleConns int
	MaxOpenConns int
	MaxLifetime  time.Duration
	DatabaseURL  string // Original DATABASE_URL if used
}

// ConnectionString returns the PostgreSQL connection string.
func (c *Config) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Store wraps the database connection and a read-through cache for
// recently fetched audits.
type Store struct {
	client *sql.DB
	config *Config
	cache  *cache.InMemoryCache[*audit.Result]
}

// New opens a PostgreSQL connection and ensures the schema exists.
func New(config *Config) (*Store, error) {
	if config.DatabaseURL == "" {
		if config.Host == "" || config.Port == "" || config.User == "" || config.Database == "" {
			return nil, fmt.Errorf("database connection details are incomplete")
		}
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 10
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 25
	}
	if config.MaxLifetime == 0 {
		config.MaxLifetime = 20 * time.Minute
	}

	client, err := sql.Open("pgx", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	client.SetMaxOpenConns(config.MaxOpenConns)
	client.SetMaxIdleConns(config.MaxIdleConns)
	client.SetConnMaxLifetime(config.MaxLifetime)

	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if err := setupSchema(client); err != nil {
		return nil, fmt.Errorf("failed to setup schema: %w", err)
	}

	return &Store{client: client, config: config, cache: cache.NewInMemoryCache[*audit.Result]()}, nil
}

// NewWithClient wraps an existing connection without pinging or
// creating schema. Used by tests with a mocked database.
func NewWithClient(client *sql.DB) *Store {
	return &Store{client: client, config: &Config{}, cache: cache.NewInMemoryCache[*audit.Result]()}
}

// InitFromEnv creates a Store from DATABASE_URL or the individual
// POSTGRES_* environment variables.
func InitFromEnv() (*Store, error) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return New(&Config{DatabaseURL: url})
	}
	return New(&Config{
		Host:     os.Getenv("POSTGRES_HOST"),
		Port:     os.Getenv("POSTGRES_PORT"),
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Database: os.Getenv("POSTGRES_DB"),
		SSLMode:  os.Getenv("POSTGRES_SSL_MODE"),
	})
}

func setupSchema(client *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audits (
			id TEXT PRIMARY KEY,
			domain TEXT NOT NULL,
			state TEXT NOT NULL,
			result JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_audits_domain ON audits(domain, created_at DESC);
	`
	_, err := client.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Health verifies the database connection is alive.
func (s *Store) Health(ctx context.Context) error {
	return s.client.PingContext(ctx)
}

// SaveAudit persists a completed audit result.
func (s *Store) SaveAudit(ctx context.Context, result *audit.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialise audit %s: %w", result.ID, err)
	}

	domain := ""
	if result.Target != nil {
		domain = result.Target.RootDomain
	}

	_, err = s.client.ExecContext(ctx,
		`INSERT INTO audits (id, domain, state, result, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET state = $3, result = $4`,
		result.ID, domain, string(result.State), payload, result.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to save audit %s: %w", result.ID, err)
	}

	s.cache.Set(result.ID, result)
	log.Debug().Str("audit_id", result.ID).Str("domain", domain).Msg("Audit saved")
	return nil
}

// ErrNotFound indicates no audit exists for the requested id.
var ErrNotFound = sql.ErrNoRows

// GetAudit loads an audit by id, serving repeat reads from the cache.
func (s *Store) GetAudit(ctx context.Context, id string) (*audit.Result, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached, nil
	}

	var payload []byte
	err := s.client.QueryRowContext(ctx,
		`SELECT result FROM audits WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load audit %s: %w", id, err)
	}

	var result audit.Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode audit %s: %w", id, err)
	}

	s.cache.Set(id, &result)
	return &result, nil
}

// AuditSummary is one row of a domain's audit history.
type AuditSummary struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// ListAudits returns recent audits for a domain, newest first.
func (s *Store) ListAudits(ctx context.Context, domain string, limit int) ([]AuditSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := s.client.QueryContext(ctx,
		`SELECT id, domain, state, created_at FROM audits
		 WHERE domain = $1 ORDER BY created_at DESC LIMIT $2`,
		strings.ToLower(domain), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audits for %s: %w", domain, err)
	}
	defer rows.Close()

	var summaries []AuditSummary
	for rows.Next() {
		var summary AuditSummary
		if err := rows.Scan(&summary.ID, &summary.Domain, &summary.State, &summary.CreatedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}
