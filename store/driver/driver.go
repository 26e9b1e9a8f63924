// Package driver opens a store.Store backend by name.
package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/grove"

	"github.com/xraph/policymaker"
	"github.com/xraph/policymaker/store"
	"github.com/xraph/policymaker/store/memory"
	"github.com/xraph/policymaker/store/mongo"
	"github.com/xraph/policymaker/store/postgres"
	"github.com/xraph/policymaker/store/redis"
	"github.com/xraph/policymaker/store/sqlite"
)

// Backend names.
const (
	Memory   = "memory"
	SQLite   = "sqlite"
	Postgres = "postgres"
	Mongo    = "mongo"
	Redis    = "redis"
)

// Options selects and locates a backend.
type Options struct {
	// Driver is one of the backend names. Empty means Memory.
	Driver string

	// DSN is a file path for SQLite, a connection string for Postgres,
	// and a URI or URL for Mongo and Redis. Memory ignores it.
	DSN string

	// Database names the Mongo database.
	Database string

	// Prefix namespaces Redis keys. Empty means redis.DefaultPrefix.
	Prefix string
}

// Open connects the backend named by opts.Driver. It does not migrate.
func Open(ctx context.Context, opts Options) (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", Memory:
		return memory.New(), nil
	case SQLite:
		return wrap(sqlite.Open(ctx, opts.DSN))
	case Postgres:
		return wrap(postgres.Open(ctx, opts.DSN))
	case Mongo:
		db := opts.Database
		if db == "" {
			db = "policymaker"
		}
		return wrap(mongo.Open(ctx, opts.DSN, db))
	case Redis:
		var ropts []redis.Option
		if opts.Prefix != "" {
			ropts = append(ropts, redis.WithPrefix(opts.Prefix))
		}
		return wrap(redis.Open(ctx, opts.DSN, ropts...))
	default:
		return nil, fmt.Errorf("policymaker/driver: %w: unknown driver %q", policymaker.ErrInvalidInput, opts.Driver)
	}
}

// FromGrove builds the backend matching an already-open grove database.
// It does not migrate.
func FromGrove(db *grove.DB) (store.Store, error) {
	if db == nil {
		return nil, fmt.Errorf("policymaker/driver: %w: nil grove database", policymaker.ErrInvalidInput)
	}
	switch name := db.Driver().Name(); name {
	case "sqlite":
		return sqlite.New(db), nil
	case "pg":
		return postgres.New(db), nil
	case "mongo":
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("policymaker/driver: %w: unsupported grove driver %q", policymaker.ErrInvalidInput, name)
	}
}

// wrap keeps a nil backend pointer from becoming a non-nil store.Store.
func wrap[S store.Store](s S, err error) (store.Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
