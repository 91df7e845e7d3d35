// Package sqlite implements a blob Store persisted to a single SQLite file,
// suitable for embedded single-node deployments.
package sqlite

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
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"tenantcore/internal/blob/core"
)

// Store keeps each blob as one row in a single `blobs` table. Metadata is a
// JSON column; payloads are small JSON documents so full-row reads are fine.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (creating if needed) a SQLite-backed blob store at path.
func New(path string) (*Store, error) {
	if path == "" {
		path = "tenantcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS blobs (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		etag TEXT NOT NULL,
		size INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create blobs table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Driver() core.Driver { return core.DriverSQLite }

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
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload=excluded.payload, content_type=excluded.content_type,
			metadata=excluded.metadata, etag=excluded.etag, size=excluded.size, updated_at=excluded.updated_at`,
		key, payload, opts.ContentType, string(md), etag, len(payload), now.Format(time.RFC3339Nano)); err != nil {
		return core.Info{}, fmt.Errorf("upsert blob: %w", err)
	}
	return core.Info{Key: key, Size: int64(len(payload)), ContentType: opts.ContentType, ETag: etag, Metadata: opts.Metadata, LastModified: now}, nil
}

func (s *Store) Get(ctx context.Context, key string) (core.Info, io.ReadCloser, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload, content_type, metadata, etag, size, updated_at FROM blobs WHERE key = ?`, key)
	var payload []byte
	info, err := scanInfo(row, key, &payload)
	if err != nil {
		return core.Info{}, nil, err
	}
	return info, io.NopCloser(bytes.NewReader(payload)), nil
}

func (s *Store) Head(ctx context.Context, key string) (core.Info, error) {
	row := s.db.QueryRowContext(ctx, `SELECT NULL, content_type, metadata, etag, size, updated_at FROM blobs WHERE key = ?`, key)
	var payload []byte
	return scanInfo(row, key, &payload)
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key)
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
	rows, err := s.db.QueryContext(ctx, `SELECT key, etag, size, updated_at FROM blobs WHERE key LIKE ? ESCAPE '\' ORDER BY key`, likePattern(prefix))
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var infos []core.Info
	for rows.Next() {
		var (
			k, etag, updated string
			size             int64
		)
		if err := rows.Scan(&k, &etag, &size, &updated); err != nil {
			return nil, fmt.Errorf("scan blob row: %w", err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, updated)
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
		contentType, md, etag, updated string
		size                           int64
	)
	err := row.Scan(payload, &contentType, &md, &etag, &size, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, fmt.Errorf("scan blob: %w", err)
	}
	var metadata map[string]string
	if md != "" && md != "null" {
		if err := json.Unmarshal([]byte(md), &metadata); err != nil {
			return core.Info{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	ts, _ := time.Parse(time.RFC3339Nano, updated)
	return core.Info{Key: key, Size: size, ContentType: contentType, ETag: etag, Metadata: metadata, LastModified: ts}, nil
}

func likePattern(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}
