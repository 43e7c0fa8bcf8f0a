package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"quizpicks/internal/model"
	"quizpicks/internal/repository"
	"quizpicks/internal/session"
)

var ErrInvalidSource = errors.New("invalid source. Use /api/products/recommended/store for recommended products")

// ProductService persists discovered catalogue products
type ProductService struct {
	repo repository.ProductRepo
	log  *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(repo repository.ProductRepo, log *zap.Logger) *ProductService {
	return &ProductService{repo: repo, log: log.Named("products")}
}

// Store normalizes and upserts products under source
func (s *ProductService) Store(ctx context.Context, userID, date string, source model.ProductSource, results []model.Product) (int, error) {
	if source != model.SourceSearch && source != model.SourceRecommended {
		return 0, ErrInvalidSource
	}
	products := make([]model.Product, 0, len(results))
	for _, p := range results {
		p = session.Normalize(p)
		if p.ProductID == "" {
			continue
		}
		products = append(products, p)
	}

	stored, err := s.repo.SaveProducts(ctx, userID, date, source, products)
	if err != nil {
		return 0, err
	}
	s.log.Info("stored products",
		zap.String("user_id", userID),
		zap.String("source", string(source)),
		zap.Int("stored", stored))
	return stored, nil
}
