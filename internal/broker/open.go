package broker

import (
	"context"
	"fmt"
	"log/slog"
)

// Directory backends accepted by OpenDirectory.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// DirectoryConfig selects and configures a Directory backend.
type DirectoryConfig struct {
	Backend    string
	SQLitePath string
	Redis      RedisConfig
}

// OpenDirectory opens the configured backend. The caller must Close it.
func OpenDirectory(ctx context.Context, cfg DirectoryConfig, log *slog.Logger) (Directory, error) {
	switch cfg.Backend {
	case BackendMemory:
		log.Warn("using in-memory room directory; rooms will not survive a restart")
		return NewInMemoryDirectory(), nil
	case BackendSQLite, "":
		dir, err := OpenSQLiteDirectory(cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		log.Info("room directory ready", slog.String("backend", BackendSQLite), slog.String("path", cfg.SQLitePath))
		return dir, nil
	case BackendRedis:
		dir, err := OpenRedisDirectory(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		log.Info("room directory ready", slog.String("backend", BackendRedis), slog.String("addr", cfg.Redis.Addr))
		return dir, nil
	default:
		return nil, fmt.Errorf("unknown directory backend %q", cfg.Backend)
	}
}
