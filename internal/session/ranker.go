package session

import (
	"context"
	"fmt"

	"quizpicks/internal/model"
	"quizpicks/internal/ranking"
)

// RankRequest is everything a ranking policy may use
type RankRequest struct {
	UserID      string
	SessionDate string
	Pool        []model.Product
	Answers     []model.QuizAnswer
	Exclude     []string
}

// RankResult is an ordered first page plus whether more rows exist
type RankResult struct {
	Products []model.RankedProduct
	HasMore  bool
	// Offset is how many server rows the page consumed; zero means
	// len(Products)
	Offset int
}

// Ranker orders an accumulated pool
type Ranker interface {
	Rank(ctx context.Context, req RankRequest) (RankResult, error)
}

// PassThroughRanker keeps discovery order with a uniform score
type PassThroughRanker struct {
	Reason string
}

func (r PassThroughRanker) Rank(_ context.Context, req RankRequest) (RankResult, error) {
	reason := r.Reason
	if reason == "" {
		reason = ranking.PassThroughReason
	}
	return RankResult{Products: ranking.PassThrough(req.Pool, req.Exclude, reason)}, nil
}

// RemoteRanker asks the API server to build the ranking, then reads its first
// page and fills product details from the local pool.
type RemoteRanker struct {
	Backend  RankingBackend
	PageSize int
}

func (r RemoteRanker) Rank(ctx context.Context, req RankRequest) (RankResult, error) {
	limit := r.PageSize
	if limit <= 0 {
		limit = ranking.TopN
	}

	if _, err := r.Backend.BuildRanking(ctx, req.UserID, req.SessionDate); err != nil {
		return RankResult{}, fmt.Errorf("build ranking: %w", err)
	}

	page, err := r.Backend.GetRanking(ctx, req.UserID, req.SessionDate, limit, 0)
	if err != nil {
		return RankResult{}, fmt.Errorf("fetch ranking: %w", err)
	}

	return RankResult{
		Products: ranking.Hydrate(page.Products, req.Pool, req.Exclude, 1),
		HasMore:  page.HasMore(),
		Offset:   len(page.Products),
	}, nil
}
