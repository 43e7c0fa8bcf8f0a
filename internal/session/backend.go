package session

import (
	"context"

	"quizpicks/internal/model"
)

// QuizBackend serves the quiz and turns answers into search queries
type QuizBackend interface {
	GetQuestions(ctx context.Context) ([]model.Question, error)
	SubmitResponses(ctx context.Context, userID, date string, answers []model.QuizAnswer) error
	GenerateQueries(ctx context.Context, req model.GenerateQueriesRequest) ([]string, error)
}

// ProductBackend persists discovered products and enriches their images
type ProductBackend interface {
	StoreProducts(ctx context.Context, userID, date string, source model.ProductSource, products []model.Product) (int, error)
	ProcessVision(ctx context.Context, userID, date string, refs []model.ImageRef) (int, error)
}

// RankingBackend builds, pages and extends a user's ranked list
type RankingBackend interface {
	BuildRanking(ctx context.Context, userID, date string) ([]model.RankEntry, error)
	GetRanking(ctx context.Context, userID, date string, limit, offset int) (model.RankingPage, error)
	Replenish(ctx context.Context, userID, date string, exclude []string) (int, error)
}

// Backend is everything a session needs from the API server
type Backend interface {
	QuizBackend
	ProductBackend
	RankingBackend
}

// Sources opens paged catalogue queries
type Sources interface {
	Search(ctx context.Context, query string) PagedSource
	Recommended(ctx context.Context) PagedSource
}
