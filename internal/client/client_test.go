package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quizpicks/internal/cache"
	"quizpicks/internal/config"
	"quizpicks/internal/model"
	"quizpicks/internal/repository"
	"quizpicks/internal/service"
	"quizpicks/internal/session"
	"quizpicks/internal/transport/rest"
	"quizpicks/internal/transport/ws"
)

var _ session.Backend = (*Client)(nil)

func TestRetriesRateLimitedRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"questions":[{"id":"1","prompt":"Mood?","type":"single_choice","options":["Calm"]}]}`))
	}))
	defer srv.Close()
	c := New(srv.URL, "", zap.NewNop(), WithRetries(5, time.Millisecond))

	qs, err := c.GetQuestions(context.Background())

	require.NoError(t, err)
	require.Len(t, qs, 1)
	assert.Equal(t, "Mood?", qs[0].Prompt)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := New(srv.URL, "", zap.NewNop(), WithRetries(3, time.Millisecond))

	_, err := c.GetQuestions(context.Background())

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.EqualValues(t, 3, calls.Load())
}

func TestErrorStatusIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"error":"no responses found for this date"}`))
	}))
	defer srv.Close()
	c := New(srv.URL, "", zap.NewNop(), WithRetries(3, time.Millisecond))

	_, err := c.GenerateQueries(context.Background(), model.GenerateQueriesRequest{UserID: "u", ResponseDate: "d"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "no responses found for this date", apiErr.Message)
	assert.EqualValues(t, 1, calls.Load())
}

func TestBackoffHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := New(srv.URL, "", zap.NewNop(), WithRetries(5, time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GetQuestions(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// newServer runs the real API on a memory store with auth enabled
func newServer(t *testing.T) string {
	t.Helper()
	log := zap.NewNop()
	store := repository.NewMemoryStore(0)
	_, err := store.SeedQuestions(context.Background(), model.DefaultQuestions())
	require.NoError(t, err)
	llm := service.NewLLMClient(&config.AIConfig{MaxQueries: 6, TimeoutMS: 1000}, log)
	hub := ws.NewHub(log)
	vision := service.NewVisionService(store, llm, nil, config.VisionConfig{Enabled: true}, hub, log)

	srv := httptest.NewServer(rest.NewRouter(&rest.Container{
		Config:          config.AppConfig{AuthEnabled: true},
		AuthService:     service.NewAuthService("secret"),
		QuestionService: service.NewQuestionService(store),
		ResponseService: service.NewResponseService(store),
		QueryService:    service.NewQueryService(store, llm, 6, log),
		ProductService:  service.NewProductService(store, log),
		RankingService:  service.NewRankingService(store, llm, cache.NewNoopRankingCache(), config.RankingConfig{Policy: config.PolicyLLM}, hub, log),
		VisionService:   vision,
		WSHub:           hub,
	}))
	t.Cleanup(func() {
		srv.Close()
		vision.Wait()
		hub.Close()
	})
	return srv.URL + "/api"
}

func TestAgainstServer(t *testing.T) {
	ctx := context.Background()
	c := New(newServer(t), "", zap.NewNop(), WithRetries(2, time.Millisecond))

	_, err := c.BuildRanking(ctx, "shop_user_x", "2025-03-14")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	sess, err := c.Session(ctx, "")
	require.NoError(t, err)
	user, date := sess.UserID, "2025-03-14"

	qs, err := c.GetQuestions(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, qs)

	require.NoError(t, c.SubmitResponses(ctx, user, date, []model.QuizAnswer{
		{QuestionID: qs[1].ID, Value: model.TextAnswer("Minimal")},
		{QuestionID: qs[3].ID, Value: model.NumberAnswer(80)},
	}))
	queries, err := c.GenerateQueries(ctx, model.GenerateQueriesRequest{UserID: user, ResponseDate: date})
	require.NoError(t, err)
	assert.NotEmpty(t, queries)

	stored, err := c.StoreProducts(ctx, user, date, model.SourceSearch, []model.Product{
		{ProductID: "p1", Title: "Tee", ThumbnailURL: "https://img.test/p1.jpg"},
		{ProductID: "p2", Title: "Cap"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	stored, err = c.StoreProducts(ctx, user, date, model.SourceRecommended, []model.Product{{ProductID: "p3", Title: "Bag"}})
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	processed, err := c.ProcessVision(ctx, user, date, []model.ImageRef{{ProductID: "p1", ImageURL: "https://img.test/p1.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, 1, processed)

	top, err := c.BuildRanking(ctx, user, date)
	require.NoError(t, err)
	assert.Len(t, top, 3)

	page, err := c.GetRanking(ctx, user, date, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasMore())

	added, err := c.Replenish(ctx, user, date, []string{"p1", "p2", "p3"})
	require.NoError(t, err)
	assert.Zero(t, added)

	_, err = c.GetRanking(ctx, "shop_user_someone_else", date, 2, 0)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}
