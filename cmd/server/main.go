package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quizpicks/internal/cache"
	"quizpicks/internal/config"
	"quizpicks/internal/logger"
	"quizpicks/internal/model"
	"quizpicks/internal/repository"
	"quizpicks/internal/service"
	"quizpicks/internal/transport/rest"
	"quizpicks/internal/transport/ws"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.App.LogFilePath, cfg.App.IsProduction())
	defer log.Sync()
	ctx := context.Background()

	aiConfig := cfg.AI
	log.Info("AI config",
		zap.String("queries_model", aiConfig.Models.Queries),
		zap.String("ranking_model", aiConfig.Models.Ranking),
		zap.String("vision_model", aiConfig.Models.Vision),
		zap.Bool("api_key_configured", aiConfig.IsEnabled()))
	if !aiConfig.IsEnabled() {
		log.Warn("GEMINI_API_KEY not set, using mock model responses")
	}

	store, err := repository.Open(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	seeded, err := store.SeedQuestions(ctx, model.DefaultQuestions())
	if err != nil {
		log.Fatal("failed to seed questions", zap.Error(err))
	}
	if seeded > 0 {
		log.Info("seeded default quiz", zap.Int("questions", seeded))
	}

	// Redis is optional: without it rankings are read straight from the store
	// and vision runs are serialized in process
	rankingCache := cache.NewNoopRankingCache()
	runLock := cache.NewLocalRunLock()
	if cfg.Storage.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatal("failed to ping Redis", zap.Error(err))
		}
		cancel()
		rankingCache = cache.NewRankingCache(rdb)
		runLock = cache.NewRunLock(rdb, 0)
		log.Info("connected to Redis")
	}

	wsHub := ws.NewHub(log)

	llm := service.NewLLMClient(aiConfig, log)
	authSvc := service.NewAuthService(cfg.App.JWTSecret)
	visionSvc := service.NewVisionService(store, llm, runLock, cfg.Vision, wsHub, log)

	container := &rest.Container{
		Config:          cfg.App,
		AuthService:     authSvc,
		QuestionService: service.NewQuestionService(store),
		ResponseService: service.NewResponseService(store),
		QueryService:    service.NewQueryService(store, llm, aiConfig.MaxQueries, log),
		ProductService:  service.NewProductService(store, log),
		RankingService:  service.NewRankingService(store, llm, rankingCache, cfg.Ranking, wsHub, log),
		VisionService:   visionSvc,
		WSHub:           wsHub,
		Logger:          log,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           rest.NewRouter(container),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting",
			zap.String("port", cfg.App.Port),
			zap.String("env", cfg.App.Environment),
			zap.String("store", cfg.Storage.Backend),
			zap.String("ranking_policy", cfg.Ranking.Policy),
			zap.Bool("auth", cfg.App.AuthEnabled))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("ListenAndServe", zap.Error(err))
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	visionSvc.Wait()
	wsHub.Close()
	if err := store.Close(shutdownCtx); err != nil {
		log.Error("failed to close store", zap.Error(err))
	}

	log.Info("server exited")
}
