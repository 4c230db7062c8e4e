package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Supported backend names for Options.Driver
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendSQLite = DriverSQLite
	BackendLibSQL = DriverLibSQL
	BackendRedis  = "redis"
)

// Options selects and configures a Persister backend
type Options struct {
	Driver string
	// Path is a directory for the file backend and a database file for the
	// SQL backends. Empty means the default under ~/.bookchat.
	Path string
	// DSN is a libsql URL or a redis URL. It takes precedence over Path.
	DSN string
	// Paths resolves default locations; nil uses ~/.bookchat
	Paths *PathManager
}

// Open creates the Persister described by opts
func Open(ctx context.Context, opts Options) (Persister, error) {
	paths := opts.Paths
	if paths == nil {
		paths = NewPathManager()
	}

	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", BackendFile:
		dir := opts.Path
		if dir == "" {
			var err error
			if dir, err = paths.SessionDir(); err != nil {
				return nil, fmt.Errorf("failed to resolve session directory: %w", err)
			}
		}
		return NewFileStore(dir)

	case BackendMemory:
		return NewMemoryStore(), nil

	case BackendSQLite, BackendLibSQL:
		driver := strings.ToLower(strings.TrimSpace(opts.Driver))
		dsn := opts.DSN
		if dsn == "" {
			dsn = opts.Path
		}
		if dsn == "" {
			var err error
			if dsn, err = paths.DatabasePath(); err != nil {
				return nil, fmt.Errorf("failed to resolve database path: %w", err)
			}
		}
		return NewSQLStore(ctx, driver, dsn)

	case BackendRedis:
		if opts.DSN == "" {
			return nil, errors.New("storage: redis backend requires storage.dsn")
		}
		return NewRedisStore(ctx, opts.DSN)

	default:
		return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
	}
}
