// Package postgres provides the Postgres-backed result store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
	"github.com/JakeFAU/jobscout-crawler/internal/storage"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable holds accepted results.
const DefaultTable = "results"

// Config controls the Postgres connection pool used for results.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store needs; pgxmock implements it in tests.
type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// ResultStore upserts records keyed by canonical URL.
type ResultStore struct {
	pool  pool
	table string
	clock crawler.Clock
}

var _ crawler.ResultStore = (*ResultStore)(nil)

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config, clock crawler.Clock) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(p, cfg.Table, clock)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string, clock crawler.Clock) (*ResultStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ResultStore{pool: p, table: table, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the results table when it does not exist.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	url           TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	organization  TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	date_posted   TEXT NOT NULL DEFAULT '',
	valid_through TEXT NOT NULL DEFAULT '',
	apply_url     TEXT NOT NULL DEFAULT '',
	extra         JSONB NOT NULL DEFAULT '{}'::jsonb,
	score         INTEGER NOT NULL DEFAULT 0,
	reasons       TEXT[] NOT NULL DEFAULT '{}',
	source        TEXT NOT NULL DEFAULT '',
	extracted_at  TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

const columns = `url, title, organization, location, description, email, date_posted,
	valid_through, apply_url, extra, score, reasons, source, extracted_at, updated_at`

// Upsert inserts the record or merges it into the existing row: non-empty values win,
// extracted_at is never changed after the first insert.
func (s *ResultStore) Upsert(ctx context.Context, record crawler.ResultRecord) (crawler.ResultRecord, error) {
	rec := storage.Sanitize(record)
	if rec.URL == "" {
		return crawler.ResultRecord{}, errors.New("record url is required")
	}
	now := s.clock.Now().UTC()
	extra, err := json.Marshal(nonNilExtra(rec.Extra))
	if err != nil {
		return crawler.ResultRecord{}, fmt.Errorf("marshal extra: %w", err)
	}
	reasons := rec.Reasons
	if reasons == nil {
		reasons = []string{}
	}

	query := fmt.Sprintf(`
INSERT INTO %[1]s (%[2]s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)
ON CONFLICT (url) DO UPDATE SET
	title         = COALESCE(NULLIF(EXCLUDED.title, ''), %[1]s.title),
	organization  = COALESCE(NULLIF(EXCLUDED.organization, ''), %[1]s.organization),
	location      = COALESCE(NULLIF(EXCLUDED.location, ''), %[1]s.location),
	description   = COALESCE(NULLIF(EXCLUDED.description, ''), %[1]s.description),
	email         = COALESCE(NULLIF(EXCLUDED.email, ''), %[1]s.email),
	date_posted   = COALESCE(NULLIF(EXCLUDED.date_posted, ''), %[1]s.date_posted),
	valid_through = COALESCE(NULLIF(EXCLUDED.valid_through, ''), %[1]s.valid_through),
	apply_url     = COALESCE(NULLIF(EXCLUDED.apply_url, ''), %[1]s.apply_url),
	source        = COALESCE(NULLIF(EXCLUDED.source, ''), %[1]s.source),
	extra         = %[1]s.extra || EXCLUDED.extra,
	score         = EXCLUDED.score,
	reasons       = CASE WHEN cardinality(EXCLUDED.reasons) > 0 THEN EXCLUDED.reasons ELSE %[1]s.reasons END,
	updated_at    = EXCLUDED.updated_at
RETURNING %[2]s`, s.table, columns)

	row := s.pool.QueryRow(ctx, query,
		rec.URL,
		rec.Title,
		rec.Organization,
		rec.Location,
		rec.Description,
		rec.Email,
		rec.DatePosted,
		rec.ValidThrough,
		rec.ApplyURL,
		extra,
		rec.Score,
		reasons,
		rec.Source,
		now,
	)
	saved, err := scanRecord(row)
	if err != nil {
		return crawler.ResultRecord{}, fmt.Errorf("upsert result: %w", err)
	}
	return saved, nil
}

// List returns all records, oldest extraction first.
func (s *ResultStore) List(ctx context.Context) ([]crawler.ResultRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY extracted_at, url`, columns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	records := []crawler.ResultRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (crawler.ResultRecord, error) {
	var (
		rec   crawler.ResultRecord
		extra []byte
	)
	if err := row.Scan(
		&rec.URL,
		&rec.Title,
		&rec.Organization,
		&rec.Location,
		&rec.Description,
		&rec.Email,
		&rec.DatePosted,
		&rec.ValidThrough,
		&rec.ApplyURL,
		&extra,
		&rec.Score,
		&rec.Reasons,
		&rec.Source,
		&rec.ExtractedAt,
		&rec.UpdatedAt,
	); err != nil {
		return crawler.ResultRecord{}, err
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &rec.Extra); err != nil {
			return crawler.ResultRecord{}, fmt.Errorf("decode extra: %w", err)
		}
		if len(rec.Extra) == 0 {
			rec.Extra = nil
		}
	}
	return rec, nil
}

func nonNilExtra(extra map[string]string) map[string]string {
	if extra == nil {
		return map[string]string{}
	}
	return extra
}
