package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quizpicks/internal/cache"
	"quizpicks/internal/config"
	"quizpicks/internal/model"
	"quizpicks/internal/ranking"
	"quizpicks/internal/repository"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200

	dateLayout = "2006-01-02"
)

// RankingService builds, pages and replenishes a user's ranked list
type RankingService struct {
	store       repository.Store
	llm         *LLMClient
	cache       cache.RankingCache
	cfg         config.RankingConfig
	broadcaster Broadcaster
	log         *zap.Logger
}

// NewRankingService creates a new ranking service
func NewRankingService(store repository.Store, llm *LLMClient, rc cache.RankingCache, cfg config.RankingConfig, b Broadcaster, log *zap.Logger) *RankingService {
	if rc == nil {
		rc = cache.NewNoopRankingCache()
	}
	if cfg.TopN <= 0 {
		cfg.TopN = ranking.TopN
	}
	return &RankingService{
		store:       store,
		llm:         llm,
		cache:       rc,
		cfg:         cfg,
		broadcaster: orNoop(b),
		log:         log.Named("ranking"),
	}
}

// Build replaces the session's ranking with a fresh context version 1
func (s *RankingService) Build(ctx context.Context, req model.BuildRankingRequest) ([]model.RankEntry, error) {
	products, err := s.store.ListProducts(ctx, req.UserID, req.ResponseDate, nil)
	if err != nil {
		return nil, err
	}

	entries, err := s.rank(ctx, req.UserID, req.ResponseDate, products, nil, s.pastDays(req.PastDays))
	if err != nil {
		return nil, err
	}
	entries = ranking.Renumber(entries, 1)

	if err := s.store.ClearRanking(ctx, req.UserID, req.ResponseDate); err != nil {
		return nil, fmt.Errorf("clear ranking: %w", err)
	}
	if err := s.store.SaveRanking(ctx, req.UserID, req.ResponseDate, 1, entries); err != nil {
		return nil, fmt.Errorf("save ranking: %w", err)
	}
	s.invalidate(ctx, req.UserID, req.ResponseDate)

	s.log.Info("ranking built",
		zap.String("user_id", req.UserID),
		zap.String("response_date", req.ResponseDate),
		zap.Int("candidates", len(products)),
		zap.Int("ranked", len(entries)))
	s.broadcaster.BroadcastToUser(req.UserID, MsgRankingBuilt, map[string]any{
		"response_date":   req.ResponseDate,
		"count":           len(entries),
		"context_version": 1,
	})
	return entries, nil
}

// Get returns one page of the ranked list across all context versions,
// ordered by rank
func (s *RankingService) Get(ctx context.Context, userID, date string, limit, offset int) (model.RankingPage, error) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	limit = min(limit, MaxPageLimit)
	offset = max(offset, 0)

	page, found, err := s.cache.Range(ctx, userID, date, limit, offset)
	if err != nil {
		s.log.Warn("ranking cache read failed", zap.Error(err))
	} else if found {
		return page, nil
	}

	rows, version, err := s.load(ctx, userID, date)
	if err != nil {
		return model.RankingPage{}, err
	}
	if err := s.cache.Store(ctx, userID, date, rows, version); err != nil {
		s.log.Warn("ranking cache write failed", zap.Error(err))
	}

	page = model.RankingPage{
		Products:       []model.RankedProduct{},
		Total:          len(rows),
		Limit:          limit,
		Offset:         offset,
		ContextVersion: version,
	}
	if offset < len(rows) {
		page.Products = rows[offset:min(offset+limit, len(rows))]
	}
	return page, nil
}

// Replenish ranks the products not yet shown into a new context version whose
// ranks continue after the highest rank already assigned. It returns how many
// rows were added and the new version; zero rows leaves the ranking untouched.
func (s *RankingService) Replenish(ctx context.Context, req model.ReplenishRequest) (int, int, error) {
	products, err := s.store.ListProducts(ctx, req.UserID, req.ResponseDate, req.ExcludeProductIDs)
	if err != nil {
		return 0, 0, err
	}
	if len(products) == 0 {
		return 0, 0, nil
	}

	current, err := s.store.MaxContextVersion(ctx, req.UserID, req.ResponseDate)
	if err != nil {
		return 0, 0, err
	}
	maxRank, err := s.store.MaxRank(ctx, req.UserID, req.ResponseDate)
	if err != nil {
		return 0, 0, err
	}
	next := current + 1

	entries, err := s.rank(ctx, req.UserID, req.ResponseDate, products, req.ExcludeProductIDs, s.pastDays(req.PastDays))
	if err != nil {
		return 0, 0, err
	}
	if len(entries) == 0 {
		return 0, 0, nil
	}
	entries = ranking.Renumber(entries, maxRank+1)

	if err := s.store.SaveRanking(ctx, req.UserID, req.ResponseDate, next, entries); err != nil {
		return 0, 0, fmt.Errorf("save ranking: %w", err)
	}
	s.invalidate(ctx, req.UserID, req.ResponseDate)

	s.log.Info("ranking replenished",
		zap.String("user_id", req.UserID),
		zap.Int("context_version", next),
		zap.Int("added", len(entries)),
		zap.Int("excluded", len(req.ExcludeProductIDs)))
	s.broadcaster.BroadcastToUser(req.UserID, MsgRankingReplenished, map[string]any{
		"response_date":   req.ResponseDate,
		"added":           len(entries),
		"context_version": next,
	})
	return len(entries), next, nil
}

// rank orders products with the configured policy
func (s *RankingService) rank(ctx context.Context, userID, date string, products []model.Product, exclude []string, pastDays int) ([]model.RankEntry, error) {
	if len(products) == 0 {
		return []model.RankEntry{}, nil
	}
	if s.cfg.Policy == config.PolicyPassThrough {
		ranked := ranking.PassThrough(products, exclude, ranking.PassThroughReason)
		entries := make([]model.RankEntry, 0, min(len(ranked), s.cfg.TopN))
		for _, p := range ranked[:min(len(ranked), s.cfg.TopN)] {
			entries = append(entries, model.RankEntry{Rank: p.Rank, ProductID: p.ProductID, Score: p.Score, Reason: p.Reason})
		}
		return entries, nil
	}

	prompt, err := s.prompt(ctx, userID, date, products, exclude, pastDays)
	if err != nil {
		return nil, err
	}
	entries, err := s.llm.RankProducts(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("rank products: %w", err)
	}
	return entries, nil
}

func (s *RankingService) prompt(ctx context.Context, userID, date string, products []model.Product, exclude []string, pastDays int) (RankPrompt, error) {
	responses, err := s.store.ListResponses(ctx, userID, date)
	if err != nil {
		return RankPrompt{}, err
	}
	queries, err := s.store.ListQueries(ctx, userID, date)
	if err != nil {
		return RankPrompt{}, err
	}
	var past []string
	for _, day := range PreviousDates(date, pastDays) {
		q, err := s.store.ListQueries(ctx, userID, day)
		if err != nil {
			return RankPrompt{}, err
		}
		past = append(past, q...)
	}
	vision, err := s.store.ListVision(ctx, userID, date)
	if err != nil {
		return RankPrompt{}, err
	}
	captions := make(map[string]model.VisionData, len(vision))
	for _, v := range vision {
		if _, ok := captions[v.ProductID]; !ok {
			captions[v.ProductID] = v
		}
	}

	candidates := make([]RankCandidate, 0, len(products))
	for _, p := range products {
		c := RankCandidate{
			ProductID: p.ProductID,
			Title:     p.Title,
			Vendor:    p.Vendor,
			Price:     p.Price,
			Currency:  p.Currency,
			URL:       p.URL,
		}
		if v, ok := captions[p.ProductID]; ok {
			c.Caption = v.Caption
			c.Tags = v.Tags
		}
		candidates = append(candidates, c)
	}

	return RankPrompt{
		Responses:   FormatResponses(responses),
		Queries:     queries,
		PastQueries: past,
		Products:    candidates,
		ExcludeIDs:  exclude,
		Limit:       s.cfg.TopN,
	}, nil
}

// load joins stored ranking rows with their products, keeping stored ranks.
// Rows whose product is gone are skipped.
func (s *RankingService) load(ctx context.Context, userID, date string) ([]model.RankedProduct, int, error) {
	rows, err := s.store.ListRanking(ctx, userID, date)
	if err != nil {
		return nil, 0, err
	}
	products, err := s.store.ListProducts(ctx, userID, date, nil)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[string]model.Product, len(products))
	for _, p := range products {
		byID[p.ProductID] = p
	}

	version := 1
	out := make([]model.RankedProduct, 0, len(rows))
	for _, r := range rows {
		version = max(version, r.ContextVersion)
		p, ok := byID[r.ProductID]
		if !ok {
			continue
		}
		out = append(out, model.RankedProduct{
			Product:        p,
			Rank:           r.Rank,
			Score:          ranking.ClampScore(r.Score),
			Reason:         r.Reason,
			ContextVersion: r.ContextVersion,
		})
	}
	return out, version, nil
}

func (s *RankingService) invalidate(ctx context.Context, userID, date string) {
	if err := s.cache.Invalidate(ctx, userID, date); err != nil {
		s.log.Warn("ranking cache invalidate failed", zap.Error(err))
	}
}

func (s *RankingService) pastDays(requested int) int {
	if requested > 0 {
		return requested
	}
	return s.cfg.PastDays
}

// PreviousDates lists the n calendar days before date, most recent first.
// An unparsable date yields none.
func PreviousDates(date string, n int) []string {
	day, err := time.Parse(dateLayout, date)
	if err != nil || n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, day.AddDate(0, 0, -i).Format(dateLayout))
	}
	return out
}
