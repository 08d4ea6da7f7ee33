package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/collagist/collagist/backend-go/internal/config"
)

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Store, logger *slog.Logger) (KV, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		kv  KV
		err error
	)
	switch cfg.Driver {
	case DriverMemory:
		kv = NewMemory()
	case DriverFile, "":
		kv, err = NewFile(cfg.Dir)
	case DriverSQLite:
		kv, err = NewSQLite(ctx, cfg.SQLitePath)
	case DriverPostgres:
		kv, err = NewPostgres(ctx, cfg.DatabaseURL)
	case DriverRedis:
		kv, err = NewRedis(ctx, RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	case DriverMongo:
		kv, err = NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	logger.Info("workshop store ready", "driver", cfg.Driver)
	return kv, nil
}
