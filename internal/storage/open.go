package storage

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	logx "dealwatch/pkg/logx"
)

// Drivers lists the accepted Config.Driver values.
var Drivers = []string{"memory", "file", "sqlite", "postgres"}

// KnownDriver reports whether d selects a backend.
func KnownDriver(d string) bool {
	switch normDriver(d) {
	case "memory", "file", "sqlite", "postgres":
		return true
	}
	return false
}

func normDriver(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	switch d {
	case "":
		return "memory"
	case "sqlite3":
		return "sqlite"
	case "postgresql", "pg":
		return "postgres"
	}
	return d
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := normDriver(cfg.Driver)
	log = log.With(logx.String("driver", driver))

	switch driver {
	case "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite":
		return openSQLite(ctx, cfg, log)
	case "postgres":
		return openPostgres(ctx, cfg, log)
	default:
		return nil, errors.Newf("unknown storage driver: %s", cfg.Driver)
	}
}
