package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

type Options struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
	RedisURL    string
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the configured backend, applying schema migrations where the
// backend has a schema. The returned closer releases the connection.
func Open(ctx context.Context, opts Options) (Store, io.Closer, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		path := opts.SQLitePath
		if path == "" {
			p, err := DefaultSQLitePath()
			if err != nil {
				return nil, nil, err
			}
			path = p
		}
		if err := EnsureDir(path); err != nil {
			return nil, nil, err
		}
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		s := NewSQLStore(db, DialectSQLite)
		if err := MigrateSQLite(s); err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, s, nil

	case DriverPostgres:
		if opts.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("postgres store requires DATABASE_URL")
		}
		db, err := OpenPostgres(ctx, opts.DatabaseURL, 10, 2*time.Second)
		if err != nil {
			return nil, nil, err
		}
		if err := MigratePostgres(opts.DatabaseURL); err != nil {
			db.Close()
			return nil, nil, err
		}
		s := NewSQLStore(db, DialectPostgres)
		return s, s, nil

	case DriverRedis:
		if opts.RedisURL == "" {
			return nil, nil, fmt.Errorf("redis store requires REDIS_URL")
		}
		s, err := OpenRedis(ctx, opts.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case DriverMemory:
		return NewMemoryStore(), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", opts.Driver)
}

const (
	appDirName = "nutri"
	dbFileName = "nutri.db"
)

func DefaultSQLitePath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, appDirName, dbFileName), nil
}

func EnsureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}
	return nil
}
