// Package app assembles the resilience layer and the content pipeline from
// the environment. Both the worker and the admin CLI build their object
// graph here so that they always agree on store layout and stage names.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"content-pipeline/internal/infra/adapter/persistence/memory"
	"content-pipeline/internal/infra/adapter/persistence/postgres"
	"content-pipeline/internal/infra/adapter/persistence/redis"
	"content-pipeline/internal/infra/db"
	"content-pipeline/internal/infra/worker"
	"content-pipeline/internal/repository"
)

// OpenStore opens the ResilienceStore selected by backend (STORE_BACKEND).
//
//   - memory: process-local, lost on exit
//   - postgres: DATABASE_URL, migrated on open, guarded by a gobreaker breaker
//   - redis: REDIS_ADDR, REDIS_PASSWORD, REDIS_DB, keys prefixed by REDIS_PREFIX
func OpenStore(ctx context.Context, logger *slog.Logger, backend string) (repository.ResilienceStore, error) {
	switch backend {
	case "", worker.StoreMemory:
		logger.Warn("using in-memory resilience store, state is lost on restart")
		return memory.NewStore(), nil

	case worker.StorePostgres:
		database, err := db.Open(ctx, os.Getenv("DATABASE_URL"))
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := db.MigrateUp(ctx, database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("migrate postgres store: %w", err)
		}
		logger.Info("resilience store ready", slog.String("backend", backend))
		return postgres.NewResilienceStore(database), nil

	case worker.StoreRedis:
		client, err := redis.NewClientFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("open redis store: %w", err)
		}
		var opts []redis.Option
		if prefix := os.Getenv("REDIS_PREFIX"); prefix != "" {
			opts = append(opts, redis.WithPrefix(prefix))
		}
		logger.Info("resilience store ready", slog.String("backend", backend))
		return redis.NewStore(client, opts...), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}
