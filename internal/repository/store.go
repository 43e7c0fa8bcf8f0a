package repository

import (
	"context"
	"sort"
	"strconv"

	"quizpicks/internal/model"
)

// QuestionRepo stores the quiz
type QuestionRepo interface {
	ListQuestions(ctx context.Context) ([]model.Question, error)
	// AddQuestion assigns the next numeric id and returns it
	AddQuestion(ctx context.Context, q model.Question) (string, error)
	// SeedQuestions inserts the questions only when the quiz is empty
	SeedQuestions(ctx context.Context, qs []model.Question) (int, error)
}

// ResponseRepo stores answers and the search queries derived from them
type ResponseRepo interface {
	// SaveResponse upserts one answer per (user, date, question)
	SaveResponse(ctx context.Context, userID, date string, answer model.QuizAnswer) error
	// ListResponses returns answers joined with their question prompt
	ListResponses(ctx context.Context, userID, date string) ([]model.StoredResponse, error)
	SaveQueries(ctx context.Context, userID, date string, queries []string) error
	ListQueries(ctx context.Context, userID, date string) ([]string, error)
}

// ProductRepo stores discovered products, their images and captions
type ProductRepo interface {
	// SaveProducts upserts per (user, date, product, source) and records
	// every product image for captioning
	SaveProducts(ctx context.Context, userID, date string, source model.ProductSource, products []model.Product) (int, error)
	// ListProducts returns one record per product id in first-stored order,
	// skipping ids in exclude
	ListProducts(ctx context.Context, userID, date string, exclude []string) ([]model.Product, error)
	SaveVision(ctx context.Context, userID, date string, data model.VisionData) error
	ListVision(ctx context.Context, userID, date string) ([]model.VisionData, error)
	UnprocessedImages(ctx context.Context, userID, date string) ([]model.ImageRef, error)
}

// RankingRepo stores ranked rows across context versions
type RankingRepo interface {
	ClearRanking(ctx context.Context, userID, date string) error
	// SaveRanking writes entries under version, replacing rows of the same rank
	SaveRanking(ctx context.Context, userID, date string, version int, entries []model.RankEntry) error
	// ListRanking returns every row for (user, date) ordered by rank
	ListRanking(ctx context.Context, userID, date string) ([]model.RankingRow, error)
	MaxContextVersion(ctx context.Context, userID, date string) (int, error)
	// MaxRank returns the highest rank across all versions, 0 when empty
	MaxRank(ctx context.Context, userID, date string) (int, error)
}

// Store is the full persistence surface used by the services
type Store interface {
	QuestionRepo
	ResponseRepo
	ProductRepo
	RankingRepo
	Close(ctx context.Context) error
}

func nextQuestionID(existing []model.Question) string {
	max := 0
	for _, q := range existing {
		if n, err := strconv.Atoi(q.ID); err == nil && n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1)
}

func sortQuestions(qs []model.Question) {
	sort.SliceStable(qs, func(i, j int) bool {
		a, errA := strconv.Atoi(qs[i].ID)
		b, errB := strconv.Atoi(qs[j].ID)
		if errA == nil && errB == nil {
			return a < b
		}
		return qs[i].ID < qs[j].ID
	})
}

func sortRows(rows []model.RankingRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Rank != rows[j].Rank {
			return rows[i].Rank < rows[j].Rank
		}
		return rows[i].ContextVersion < rows[j].ContextVersion
	})
}

func promptIndex(qs []model.Question) map[string]string {
	out := make(map[string]string, len(qs))
	for _, q := range qs {
		out[q.ID] = q.Prompt
	}
	return out
}

// productImages lists the distinct images of p, thumbnail first
func productImages(p model.Product) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, u := range append([]string{p.ThumbnailURL}, p.Images...) {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
