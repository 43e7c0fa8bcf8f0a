package repository

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"quizpicks/internal/model"
	"quizpicks/internal/ranking"
)

const questionsKey = "questions"

// partition holds everything stored for one (user, date)
type partition struct {
	responses map[string]model.QuizAnswer
	respOrder []string
	queries   []string

	products   []productRecord
	productIdx map[string]int

	images   []model.ImageRef
	imageIdx map[string]struct{}
	vision   map[string]model.VisionData

	ranking map[string]model.RankingRow
}

type productRecord struct {
	source  model.ProductSource
	product model.Product
}

func newPartition() *partition {
	return &partition{
		responses:  map[string]model.QuizAnswer{},
		productIdx: map[string]int{},
		imageIdx:   map[string]struct{}{},
		vision:     map[string]model.VisionData{},
		ranking:    map[string]model.RankingRow{},
	}
}

// MemoryStore keeps every session in process memory. Sessions idle for
// longer than the retention window are evicted.
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewMemoryStore creates a store; retention <= 0 keeps data forever
func NewMemoryStore(retention time.Duration) *MemoryStore {
	if retention <= 0 {
		retention = cache.NoExpiration
	}
	c := cache.New(retention, 10*time.Minute)
	c.Set(questionsKey, []model.Question{}, cache.NoExpiration)
	return &MemoryStore{cache: c}
}

func partitionKey(userID, date string) string {
	return fmt.Sprintf("session:%s|%s", userID, date)
}

// part returns the partition for (user, date), creating it on first use.
// Callers must hold mu.
func (s *MemoryStore) part(userID, date string) *partition {
	key := partitionKey(userID, date)
	if x, found := s.cache.Get(key); found {
		p := x.(*partition)
		s.cache.Set(key, p, cache.DefaultExpiration)
		return p
	}
	p := newPartition()
	s.cache.Set(key, p, cache.DefaultExpiration)
	return p
}

func (s *MemoryStore) questions() []model.Question {
	x, _ := s.cache.Get(questionsKey)
	qs, _ := x.([]model.Question)
	return qs
}

func (s *MemoryStore) ListQuestions(context.Context) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Question(nil), s.questions()...), nil
}

func (s *MemoryStore) AddQuestion(_ context.Context, q model.Question) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qs := s.questions()
	q.ID = nextQuestionID(qs)
	s.cache.Set(questionsKey, append(append([]model.Question(nil), qs...), q), cache.NoExpiration)
	return q.ID, nil
}

func (s *MemoryStore) SeedQuestions(ctx context.Context, qs []model.Question) (int, error) {
	s.mu.Lock()
	if len(s.questions()) > 0 {
		s.mu.Unlock()
		return 0, nil
	}
	s.mu.Unlock()
	for _, q := range qs {
		if _, err := s.AddQuestion(ctx, q); err != nil {
			return 0, err
		}
	}
	return len(qs), nil
}

func (s *MemoryStore) SaveResponse(_ context.Context, userID, date string, answer model.QuizAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.part(userID, date)
	if _, ok := p.responses[answer.QuestionID]; !ok {
		p.respOrder = append(p.respOrder, answer.QuestionID)
	}
	p.responses[answer.QuestionID] = answer
	return nil
}

func (s *MemoryStore) ListResponses(_ context.Context, userID, date string) ([]model.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.part(userID, date)
	prompts := promptIndex(s.questions())
	out := make([]model.StoredResponse, 0, len(p.respOrder))
	for _, qid := range p.respOrder {
		out = append(out, model.StoredResponse{
			UserID:       userID,
			ResponseDate: date,
			QuestionID:   qid,
			Prompt:       prompts[qid],
			Value:        p.responses[qid].Value,
		})
	}
	return out, nil
}

func (s *MemoryStore) SaveQueries(_ context.Context, userID, date string, queries []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.part(userID, date)
	p.queries = append(p.queries, queries...)
	return nil
}

func (s *MemoryStore) ListQueries(_ context.Context, userID, date string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.part(userID, date).queries...), nil
}

func (s *MemoryStore) SaveProducts(_ context.Context, userID, date string, source model.ProductSource, products []model.Product) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.part(userID, date)
	stored := 0
	for _, prod := range products {
		if prod.ProductID == "" {
			continue
		}
		key := prod.ProductID + "|" + string(source)
		rec := productRecord{source: source, product: prod}
		if i, ok := p.productIdx[key]; ok {
			p.products[i] = rec
		} else {
			p.productIdx[key] = len(p.products)
			p.products = append(p.products, rec)
		}
		for _, url := range productImages(prod) {
			imgKey := prod.ProductID + "|" + url
			if _, ok := p.imageIdx[imgKey]; ok {
				continue
			}
			p.imageIdx[imgKey] = struct{}{}
			p.images = append(p.images, model.ImageRef{ProductID: prod.ProductID, ImageURL: url})
		}
		stored++
	}
	return stored, nil
}

func (s *MemoryStore) ListProducts(_ context.Context, userID, date string, exclude []string) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.part(userID, date)
	skip := ranking.IDSet(exclude)
	out := make([]model.Product, 0, len(p.products))
	for _, rec := range p.products {
		if _, ok := skip[rec.product.ProductID]; ok {
			continue
		}
		skip[rec.product.ProductID] = struct{}{}
		out = append(out, rec.product)
	}
	return out, nil
}

func (s *MemoryStore) SaveVision(_ context.Context, userID, date string, data model.VisionData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data.ProcessedAt.IsZero() {
		data.ProcessedAt = time.Now().UTC()
	}
	p := s.part(userID, date)
	p.vision[data.ProductID+"|"+data.ImageURL] = data
	return nil
}

func (s *MemoryStore) ListVision(_ context.Context, userID, date string) ([]model.VisionData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.part(userID, date)
	out := make([]model.VisionData, 0, len(p.vision))
	for _, img := range p.images {
		if v, ok := p.vision[img.ProductID+"|"+img.ImageURL]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *MemoryStore) UnprocessedImages(_ context.Context, userID, date string) ([]model.ImageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.part(userID, date)
	var out []model.ImageRef
	for _, img := range p.images {
		if _, ok := p.vision[img.ProductID+"|"+img.ImageURL]; !ok {
			out = append(out, img)
		}
	}
	return out, nil
}

func (s *MemoryStore) ClearRanking(_ context.Context, userID, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.part(userID, date).ranking = map[string]model.RankingRow{}
	return nil
}

func (s *MemoryStore) SaveRanking(_ context.Context, userID, date string, version int, entries []model.RankEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.part(userID, date)
	for _, e := range entries {
		p.ranking[strconv.Itoa(e.Rank)+"|"+strconv.Itoa(version)] = model.RankingRow{
			UserID:         userID,
			ResponseDate:   date,
			Rank:           e.Rank,
			ProductID:      e.ProductID,
			Score:          e.Score,
			Reason:         e.Reason,
			ContextVersion: version,
		}
	}
	return nil
}

func (s *MemoryStore) ListRanking(_ context.Context, userID, date string) ([]model.RankingRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.part(userID, date)
	rows := make([]model.RankingRow, 0, len(p.ranking))
	for _, r := range p.ranking {
		rows = append(rows, r)
	}
	sortRows(rows)
	return rows, nil
}

func (s *MemoryStore) MaxContextVersion(_ context.Context, userID, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, r := range s.part(userID, date).ranking {
		if r.ContextVersion > max {
			max = r.ContextVersion
		}
	}
	return max, nil
}

func (s *MemoryStore) MaxRank(_ context.Context, userID, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, r := range s.part(userID, date).ranking {
		if r.Rank > max {
			max = r.Rank
		}
	}
	return max, nil
}

func (s *MemoryStore) Close(context.Context) error {
	s.cache.Flush()
	return nil
}
