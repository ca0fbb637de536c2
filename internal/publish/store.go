// Package publish archives finished builds in PostgreSQL so game servers can
// fetch the latest binary artifact without access to the build machine.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/tablegen/internal/core"
)

// ErrNoBuild is returned when no build has been published for an audience.
var ErrNoBuild = errors.New("no published build")

// DBTX is the subset of pgx shared by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tablegen_builds (
	build_id     uuid PRIMARY KEY,
	commit_id    text,
	audience     text        NOT NULL,
	created_at   timestamptz NOT NULL,
	table_count  integer     NOT NULL,
	row_count    integer     NOT NULL,
	blob         bytea       NOT NULL,
	published_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS tablegen_builds_audience_created_idx
	ON tablegen_builds (audience, created_at DESC);
`

const insertBuildSQL = `
INSERT INTO tablegen_builds (build_id, commit_id, audience, created_at, table_count, row_count, blob)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (build_id) DO NOTHING`

const latestBuildSQL = `
SELECT build_id, commit_id, audience, created_at, table_count, row_count, blob
FROM tablegen_builds
WHERE audience = $1
ORDER BY created_at DESC, published_at DESC
LIMIT 1`

const listBuildsSQL = `
SELECT build_id, commit_id, audience, created_at, table_count, row_count
FROM tablegen_builds
ORDER BY created_at DESC, published_at DESC
LIMIT $1`

// Build is one archived build. Blob is only filled by Latest.
type Build struct {
	BuildID   uuid.UUID
	CommitID  string
	Audience  core.Audience
	CreatedAt time.Time
	Tables    int
	Rows      int
	Blob      []byte
}

// Store reads and writes archived builds.
type Store struct {
	db DBTX
}

// NewStore creates a Store on db.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// Connect opens a pool for url with the given limits and checks that the
// server answers.
func Connect(ctx context.Context, url string, maxConns, minConns int, lifetime time.Duration) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(maxConns)
	poolConfig.MinConns = int32(minConns)
	poolConfig.MaxConnLifetime = lifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the builds table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create builds table: %w", err)
	}
	return nil
}

// Publish stores ds with its packed blob. Publishing the same build twice
// is a no-op.
func (s *Store) Publish(ctx context.Context, ds *core.Dataset, blob []byte) error {
	if ds.Audience != core.AudienceServer && ds.Audience != core.AudienceClient {
		return fmt.Errorf("publish build %s: audience %s is not exported to games", ds.BuildID, ds.Audience)
	}

	rows := 0
	for _, t := range ds.Tables {
		rows += len(t.Rows)
	}

	_, err := s.db.Exec(ctx, insertBuildSQL,
		pgtype.UUID{Bytes: ds.BuildID, Valid: true},
		toPgText(ds.CommitID),
		ds.Audience.String(),
		pgtype.Timestamptz{Time: ds.CreatedAt, Valid: true},
		int32(len(ds.Tables)),
		int32(rows),
		blob,
	)
	if err != nil {
		return fmt.Errorf("publish build %s: %w", ds.BuildID, err)
	}
	return nil
}

// Latest returns the newest build for audience, blob included.
func (s *Store) Latest(ctx context.Context, audience core.Audience) (*Build, error) {
	var (
		b    Build
		blob []byte
	)
	row := s.db.QueryRow(ctx, latestBuildSQL, audience.String())
	if err := scanBuild(row, &b, &blob); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w for audience %s", ErrNoBuild, audience)
		}
		return nil, fmt.Errorf("fetch latest build: %w", err)
	}
	b.Blob = blob
	return &b, nil
}

// List returns up to limit builds, newest first, without their blobs.
func (s *Store) List(ctx context.Context, limit int) ([]Build, error) {
	rows, err := s.db.Query(ctx, listBuildsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close()

	var out []Build
	for rows.Next() {
		var b Build
		if err := scanBuild(rows, &b); err != nil {
			return nil, fmt.Errorf("list builds: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	return out, nil
}

// scanBuild reads the common build columns, followed by extra destinations.
func scanBuild(row pgx.Row, b *Build, extra ...any) error {
	var (
		id       pgtype.UUID
		commit   pgtype.Text
		audience string
		created  pgtype.Timestamptz
		tables   int32
		rows     int32
	)
	dest := append([]any{&id, &commit, &audience, &created, &tables, &rows}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}

	a, err := core.ParseAudience(audience)
	if err != nil {
		return err
	}
	b.BuildID = uuid.UUID(id.Bytes)
	b.CommitID = commit.String
	b.Audience = a
	b.CreatedAt = created.Time
	b.Tables = int(tables)
	b.Rows = int(rows)
	return nil
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}
