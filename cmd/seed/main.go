// Command seed loads the stock quiz into the configured store.
package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quizpicks/internal/config"
	"quizpicks/internal/logger"
	"quizpicks/internal/model"
	"quizpicks/internal/repository"
)

func main() {
	cfg := config.Load()
	log := logger.NewConsole(true)
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := repository.Open(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close(ctx)

	n, err := store.SeedQuestions(ctx, model.DefaultQuestions())
	if err != nil {
		log.Fatal("failed to seed questions", zap.Error(err))
	}
	if n == 0 {
		log.Info("quiz already present, nothing seeded", zap.String("store", cfg.Storage.Backend))
		return
	}
	log.Info("seeded quiz", zap.Int("questions", n), zap.String("store", cfg.Storage.Backend))
}
