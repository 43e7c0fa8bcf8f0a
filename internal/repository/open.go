package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"quizpicks/internal/config"
)

// Open connects the backend named by cfg.Backend
func Open(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		log.Info("using in-memory store", zap.Duration("retention", cfg.MemoryRetention))
		return NewMemoryStore(cfg.MemoryRetention), nil

	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		store, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info("using sqlite store", zap.String("path", cfg.SQLitePath))
		return store, nil

	case config.BackendMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			client.Disconnect(ctx)
			return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
		}
		store := NewMongoStore(client, cfg.MongoDatabase)
		if err := store.EnsureIndexes(ctx); err != nil {
			client.Disconnect(ctx)
			return nil, err
		}
		log.Info("using mongo store", zap.String("database", cfg.MongoDatabase))
		return store, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
