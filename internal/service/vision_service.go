package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quizpicks/internal/cache"
	"quizpicks/internal/config"
	"quizpicks/internal/model"
	"quizpicks/internal/repository"
)

const (
	minVisionConcurrency = 8
	maxVisionConcurrency = 24
)

// VisionService captions product images in bounded-concurrency batches
type VisionService struct {
	repo        repository.ProductRepo
	llm         *LLMClient
	lock        cache.RunLock
	cfg         config.VisionConfig
	broadcaster Broadcaster
	log         *zap.Logger

	runs sync.WaitGroup
}

// NewVisionService creates a new vision service
func NewVisionService(repo repository.ProductRepo, llm *LLMClient, lock cache.RunLock, cfg config.VisionConfig, b Broadcaster, log *zap.Logger) *VisionService {
	if lock == nil {
		lock = cache.NewLocalRunLock()
	}
	return &VisionService{
		repo:        repo,
		llm:         llm,
		lock:        lock,
		cfg:         cfg,
		broadcaster: orNoop(b),
		log:         log.Named("vision"),
	}
}

// concurrency clamps a requested limit to [8, 24]; zero uses the configured default
func (s *VisionService) concurrency(requested int) int {
	n := requested
	if n <= 0 {
		n = s.cfg.MaxConcurrency
	}
	return max(minVisionConcurrency, min(maxVisionConcurrency, n))
}

// Process captions refs and stores the results. Images that fail are logged
// and skipped; the count of stored captions is returned.
func (s *VisionService) Process(ctx context.Context, userID, date string, refs []model.ImageRef, limit int) (int, error) {
	if !s.cfg.Enabled || len(refs) == 0 {
		return 0, nil
	}

	var processed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency(limit))
	for _, ref := range refs {
		g.Go(func() error {
			data, err := s.llm.DescribeImage(gctx, ref)
			if err != nil {
				s.log.Warn("caption failed",
					zap.String("product_id", ref.ProductID),
					zap.String("image_url", ref.ImageURL),
					zap.Error(err))
				return nil
			}
			if data.ProcessedAt.IsZero() {
				data.ProcessedAt = time.Now().UTC()
			}
			if err := s.repo.SaveVision(gctx, userID, date, data); err != nil {
				return fmt.Errorf("save vision %s: %w", ref.ProductID, err)
			}
			processed.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(processed.Load()), err
}

// Run queues every unprocessed image of the session for background captioning
// and returns the queue size. A run already in progress for the session makes
// this a no-op reporting zero.
func (s *VisionService) Run(ctx context.Context, userID, date string, limit int) (int, error) {
	if !s.cfg.Enabled {
		return 0, nil
	}
	refs, err := s.repo.UnprocessedImages(ctx, userID, date)
	if err != nil {
		return 0, err
	}
	if len(refs) == 0 {
		return 0, nil
	}

	ok, err := s.lock.Acquire(ctx, userID, date)
	if err != nil {
		return 0, fmt.Errorf("acquire vision lock: %w", err)
	}
	if !ok {
		s.log.Info("vision run already in progress", zap.String("user_id", userID))
		return 0, nil
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		// detached from the request so the batch outlives the 202 response
		bg := context.WithoutCancel(ctx)
		defer func() {
			if err := s.lock.Release(bg, userID, date); err != nil {
				s.log.Warn("release vision lock", zap.Error(err))
			}
		}()

		started := time.Now()
		n, err := s.Process(bg, userID, date, refs, limit)
		if err != nil {
			s.log.Error("vision run failed", zap.String("user_id", userID), zap.Error(err))
		}
		s.log.Info("vision run finished",
			zap.String("user_id", userID),
			zap.Int("queued", len(refs)),
			zap.Int("processed", n),
			zap.Duration("took", time.Since(started)))
		s.broadcaster.BroadcastToUser(userID, MsgVisionProcessed, map[string]any{
			"response_date": date,
			"processed":     n,
		})
	}()
	return len(refs), nil
}

// Wait blocks until every background run has finished
func (s *VisionService) Wait() {
	s.runs.Wait()
}
