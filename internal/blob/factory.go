package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	fsstore "tenantcore/internal/infra/blob/fs"
	memorystore "tenantcore/internal/infra/blob/memory"
	pgstore "tenantcore/internal/infra/blob/postgres"
	s3store "tenantcore/internal/infra/blob/s3"
	sqlitestore "tenantcore/internal/infra/blob/sqlite"
)

// Config selects and parameterizes a blob backend.
type Config struct {
	Driver      Driver
	FSRoot      string
	SQLitePath  string
	PostgresDSN string
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3PathStyle bool
}

// NewMemory returns an in-memory blob.Store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem returns a filesystem-backed blob.Store rooted at root.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }

// NewSQLite returns a SQLite-backed blob.Store at path.
func NewSQLite(path string) (Store, error) { return sqlitestore.New(path) }

// NewPostgres returns a Postgres-backed blob.Store for the DSN.
func NewPostgres(ctx context.Context, dsn string) (Store, error) { return pgstore.New(ctx, dsn) }

// Open constructs a blob.Store from Config.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return s3store.New(ctx, s3store.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	case DriverSQLite:
		return NewSQLite(cfg.SQLitePath)
	case DriverPostgres:
		return NewPostgres(ctx, cfg.PostgresDSN)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// OpenFromEnv selects a blob.Store implementation using environment variables.
//
//	TENANTCORE_BLOB_DRIVER: fs|s3|sqlite|postgres|memory (default fs)
//	TENANTCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	TENANTCORE_BLOB_SQLITE_PATH: file path when driver=sqlite
//	TENANTCORE_BLOB_POSTGRES_DSN: DSN when driver=postgres
//	(S3 specific variables documented in the s3 package)
func OpenFromEnv(ctx context.Context) (Store, error) {
	driver := os.Getenv("TENANTCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("TENANTCORE_BLOB_FS_ROOT"))
	case DriverS3:
		return s3store.OpenFromEnv(ctx)
	case DriverSQLite:
		return NewSQLite(os.Getenv("TENANTCORE_BLOB_SQLITE_PATH"))
	case DriverPostgres:
		return NewPostgres(ctx, os.Getenv("TENANTCORE_BLOB_POSTGRES_DSN"))
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// ParseDriver normalizes a driver name.
func ParseDriver(name string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(name))) {
	case DriverFilesystem:
		return DriverFilesystem, nil
	case DriverS3:
		return DriverS3, nil
	case DriverSQLite:
		return DriverSQLite, nil
	case DriverPostgres:
		return DriverPostgres, nil
	case DriverMemory:
		return DriverMemory, nil
	case "":
		return DriverFilesystem, nil
	default:
		return "", fmt.Errorf("unknown blob driver %q", name)
	}
}
