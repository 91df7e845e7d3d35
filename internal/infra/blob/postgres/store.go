// Package postgres implements a blob Store backed by a PostgreSQL table for
// deployments that already operate Postgres and want transactional durability
// without an object store.
package postgres

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"tenantcore/internal/blob/core"
)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/tenantcore?sslmode=disable"
)

// Store keeps each blob as one row in a `blobs` table (BYTEA payload).
type Store struct {
	db *sql.DB
}

// New opens a Postgres-backed blob store using the provided DSN
// (falls back to defaultDSN) and ensures the blobs table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		payload BYTEA NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		metadata JSONB NOT NULL DEFAULT '{}',
		etag TEXT NOT NULL,
		size BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("ensure blobs table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Driver() core.Driver { return core.DriverPostgres }

// Put stores or overwrites the blob at key.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	sum := sha256.Sum256(payload)
	etag := hex.EncodeToString(sum[:])
	md, err := json.Marshal(opts.Metadata)
	if err != nil {
		return core.Info{}, fmt.Errorf("encode metadata: %w", err)
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `INSERT INTO blobs (key, payload, content_type, metadata, etag, size, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET payload=EXCLUDED.payload, content_type=EXCLUDED.content_type,
			metadata=EXCLUDED.metadata, etag=EXCLUDED.etag, size=EXCLUDED.size, updated_at=EXCLUDED.updated_at`,
		key, payload, opts.ContentType, md, etag, len(payload), now); err != nil {
		return core.Info{}, fmt.Errorf("upsert blob: %w", err)
	}
	return core.Info{Key: key, Size: int64(len(payload)), ContentType: opts.ContentType, ETag: etag, Metadata: opts.Metadata, LastModified: now}, nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload, content_type, metadata, etag, size, updated_at FROM blobs WHERE key = $1`, key)
	var payload []byte
	info, err := scanInfo(row, key, &payload)
	if err != nil {
		return core.Info{}, nil, err
	}
	return info, io.NopCloser(bytes.NewReader(payload)), nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	row := s.db.QueryRowContext(ctx, `SELECT NULL::BYTEA, content_type, metadata, etag, size, updated_at FROM blobs WHERE key = $1`, key)
	var payload []byte
	return scanInfo(row, key, &payload)
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = $1`, key)
	if err != nil {
		return false, fmt.Errorf("delete blob: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]core.Info, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, etag, size, updated_at FROM blobs WHERE key LIKE $1 ESCAPE '\' ORDER BY key`, likePattern(prefix))
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var infos []core.Info
	for rows.Next() {
		var (
			k, etag string
			size    int64
			ts      time.Time
		)
		if err := rows.Scan(&k, &etag, &size, &ts); err != nil {
			return nil, fmt.Errorf("scan blob row: %w", err)
		}
		infos = append(infos, core.Info{Key: k, ETag: etag, Size: size, LastModified: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *Store) PresignURL(_ context.Context, _ string, _ core.SignedURLOptions) (string, error) {
	return "", core.ErrUnsupported
}

type rowScanner interface{ Scan(dest ...any) error }

func scanInfo(row rowScanner, key string, payload *[]byte) (core.Info, error) {
	var (
		contentType, etag string
		md                []byte
		size              int64
		ts                time.Time
	)
	err := row.Scan(payload, &contentType, &md, &etag, &size, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, fmt.Errorf("scan blob: %w", err)
	}
	var metadata map[string]string
	if len(md) > 0 && !bytes.Equal(md, []byte("null")) {
		if err := json.Unmarshal(md, &metadata); err != nil {
			return core.Info{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return core.Info{Key: key, Size: size, ContentType: contentType, ETag: etag, Metadata: metadata, LastModified: ts}, nil
}

func likePattern(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}
