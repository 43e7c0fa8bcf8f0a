package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"quizpicks/internal/cache"
	"quizpicks/internal/config"
	"quizpicks/internal/model"
	"quizpicks/internal/ranking"
	"quizpicks/internal/repository"
)

type RankingServiceSuite struct {
	suite.Suite
	ctx         context.Context
	store       *repository.MemoryStore
	broadcaster *recordingBroadcaster
	svc         *RankingService
}

func (s *RankingServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = repository.NewMemoryStore(0)
	s.broadcaster = &recordingBroadcaster{}
	s.svc = NewRankingService(s.store, mockLLM(), cache.NewNoopRankingCache(),
		config.RankingConfig{Policy: config.PolicyLLM, TopN: 3, PastDays: 2},
		s.broadcaster, zap.NewNop())
}

func (s *RankingServiceSuite) build() []model.RankEntry {
	top, err := s.svc.Build(s.ctx, model.BuildRankingRequest{UserID: testUser, ResponseDate: testDate})
	s.Require().NoError(err)
	return top
}

func (s *RankingServiceSuite) TestBuildRanksTopNAsVersionOne() {
	seedProducts(s.T(), s.store, "a", "b", "c", "d", "e")

	top := s.build()

	s.Equal([]string{"a", "b", "c"}, entryIDs(top))
	for i, e := range top {
		s.Equal(i+1, e.Rank)
		s.Equal(ranking.FallbackReason, e.Reason)
	}
	version, err := s.store.MaxContextVersion(s.ctx, testUser, testDate)
	s.Require().NoError(err)
	s.Equal(1, version)
	s.Equal([]string{MsgRankingBuilt}, s.broadcaster.types())
}

func (s *RankingServiceSuite) TestBuildReplacesPreviousRanking() {
	seedProducts(s.T(), s.store, "a", "b", "c", "d", "e")
	s.build()
	_, _, err := s.svc.Replenish(s.ctx, model.ReplenishRequest{UserID: testUser, ResponseDate: testDate, ExcludeProductIDs: []string{"a", "b", "c"}})
	s.Require().NoError(err)

	s.build()

	page, err := s.svc.Get(s.ctx, testUser, testDate, 0, 0)
	s.Require().NoError(err)
	s.Equal(3, page.Total)
	s.Equal(1, page.ContextVersion)
}

func (s *RankingServiceSuite) TestBuildWithoutProductsIsEmpty() {
	top := s.build()

	s.Empty(top)
	page, err := s.svc.Get(s.ctx, testUser, testDate, 10, 0)
	s.Require().NoError(err)
	s.Zero(page.Total)
	s.NotNil(page.Products)
	s.Equal(1, page.ContextVersion)
}

func (s *RankingServiceSuite) TestGetPagesWithDefaults() {
	seedProducts(s.T(), s.store, "a", "b", "c")
	s.build()

	page, err := s.svc.Get(s.ctx, testUser, testDate, 0, -4)
	s.Require().NoError(err)
	s.Equal(DefaultPageLimit, page.Limit)
	s.Equal(0, page.Offset)
	s.Equal([]string{"a", "b", "c"}, ids(page.Products))
	s.Equal("Product a", page.Products[0].Title)
	s.False(page.HasMore())

	page, err = s.svc.Get(s.ctx, testUser, testDate, 2, 1)
	s.Require().NoError(err)
	s.Equal([]string{"b", "c"}, ids(page.Products))
	s.Equal(3, page.Total)

	page, err = s.svc.Get(s.ctx, testUser, testDate, 2, 10)
	s.Require().NoError(err)
	s.Empty(page.Products)
}

func (s *RankingServiceSuite) TestReplenishContinuesRanks() {
	seedProducts(s.T(), s.store, "a", "b", "c", "d", "e")
	s.build()

	added, version, err := s.svc.Replenish(s.ctx, model.ReplenishRequest{
		UserID:            testUser,
		ResponseDate:      testDate,
		ExcludeProductIDs: []string{"a", "b", "c"},
	})

	s.Require().NoError(err)
	s.Equal(2, added)
	s.Equal(2, version)

	page, err := s.svc.Get(s.ctx, testUser, testDate, 10, 3)
	s.Require().NoError(err)
	s.Equal(5, page.Total)
	s.Equal(2, page.ContextVersion)
	s.Equal([]string{"d", "e"}, ids(page.Products))
	s.Equal(4, page.Products[0].Rank)
	s.Equal(5, page.Products[1].Rank)
	s.Equal(2, page.Products[0].ContextVersion)
	s.Equal([]string{MsgRankingBuilt, MsgRankingReplenished}, s.broadcaster.types())
}

func (s *RankingServiceSuite) TestReplenishExhaustedPool() {
	seedProducts(s.T(), s.store, "a", "b")
	s.build()

	added, version, err := s.svc.Replenish(s.ctx, model.ReplenishRequest{
		UserID:            testUser,
		ResponseDate:      testDate,
		ExcludeProductIDs: []string{"a", "b"},
	})

	s.Require().NoError(err)
	s.Zero(added)
	s.Zero(version)
	current, err := s.store.MaxContextVersion(s.ctx, testUser, testDate)
	s.Require().NoError(err)
	s.Equal(1, current)
}

func (s *RankingServiceSuite) TestPassThroughPolicy() {
	s.svc = NewRankingService(s.store, mockLLM(), nil,
		config.RankingConfig{Policy: config.PolicyPassThrough, TopN: 10}, nil, zap.NewNop())
	seedProducts(s.T(), s.store, "b", "a", "c")

	top := s.build()

	s.Equal([]string{"b", "a", "c"}, entryIDs(top))
	for _, e := range top {
		s.Equal(1.0, e.Score)
		s.Equal(ranking.PassThroughReason, e.Reason)
	}
}

func TestRankingServiceSuite(t *testing.T) {
	suite.Run(t, new(RankingServiceSuite))
}

func TestRankingServiceSendsHistoryToModel(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(0)
	seedProducts(t, store, "a", "b")
	require.NoError(t, store.SaveQueries(ctx, testUser, "2025-03-13", []string{"yesterday query"}))
	require.NoError(t, store.SaveQueries(ctx, testUser, "2025-03-10", []string{"too old"}))
	require.NoError(t, store.SaveQueries(ctx, testUser, testDate, []string{"today query"}))
	svc := NewRankingService(store, mockLLM(), nil, config.RankingConfig{Policy: config.PolicyLLM, PastDays: 2}, nil, zap.NewNop())

	prompt, err := svc.prompt(ctx, testUser, testDate, []model.Product{product("a")}, nil, 2)

	require.NoError(t, err)
	assert.Equal(t, []string{"today query"}, prompt.Queries)
	assert.Equal(t, []string{"yesterday query"}, prompt.PastQueries)
	require.Len(t, prompt.Products, 1)
	assert.Equal(t, "a", prompt.Products[0].ProductID)
}

func TestRankingServiceUsesCache(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore(0)
	seedProducts(t, store, "a", "b")
	rc := &memoryRankingCache{}
	svc := NewRankingService(store, mockLLM(), rc, config.RankingConfig{Policy: config.PolicyLLM}, nil, zap.NewNop())
	_, err := svc.Build(ctx, model.BuildRankingRequest{UserID: testUser, ResponseDate: testDate})
	require.NoError(t, err)

	_, err = svc.Get(ctx, testUser, testDate, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, rc.stores)

	page, err := svc.Get(ctx, testUser, testDate, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rc.stores)
	assert.Equal(t, []string{"b"}, ids(page.Products))

	seedProducts(t, store, "c")
	_, _, err = svc.Replenish(ctx, model.ReplenishRequest{UserID: testUser, ResponseDate: testDate, ExcludeProductIDs: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, rc.invalidations)

	page, err = svc.Get(ctx, testUser, testDate, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, rc.stores)
	assert.Equal(t, []string{"a", "b", "c"}, ids(page.Products))
}

func TestPreviousDates(t *testing.T) {
	assert.Equal(t, []string{"2025-03-01", "2025-02-28"}, PreviousDates("2025-03-02", 2))
	assert.Nil(t, PreviousDates("yesterday", 3))
	assert.Nil(t, PreviousDates("2025-03-02", 0))
}

// memoryRankingCache is a single-entry in-process RankingCache
type memoryRankingCache struct {
	rows          []model.RankedProduct
	version       int
	present       bool
	stores        int
	invalidations int
}

func (c *memoryRankingCache) Store(_ context.Context, _, _ string, rows []model.RankedProduct, version int) error {
	c.rows, c.version, c.present = rows, version, true
	c.stores++
	return nil
}

func (c *memoryRankingCache) Range(_ context.Context, _, _ string, limit, offset int) (model.RankingPage, bool, error) {
	page := model.RankingPage{Limit: limit, Offset: offset, Products: []model.RankedProduct{}}
	if !c.present {
		return page, false, nil
	}
	page.Total = len(c.rows)
	page.ContextVersion = c.version
	if offset < len(c.rows) {
		page.Products = c.rows[offset:min(offset+limit, len(c.rows))]
	}
	return page, true, nil
}

func (c *memoryRankingCache) Invalidate(context.Context, string, string) error {
	c.rows, c.present = nil, false
	c.invalidations++
	return nil
}
