package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"quizpicks/internal/config"
	"quizpicks/internal/model"
	"quizpicks/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		// memory store eviction janitor
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

const (
	testUser = "shop_user_test"
	testDate = "2025-03-14"
)

type sentMessage struct {
	userID  string
	msgType string
	payload interface{}
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (b *recordingBroadcaster) BroadcastToUser(userID, msgType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sentMessage{userID, msgType, payload})
}

func (b *recordingBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.sent))
	for i, m := range b.sent {
		out[i] = m.msgType
	}
	return out
}

func mockLLM() *LLMClient {
	return NewLLMClient(&config.AIConfig{MaxQueries: 6, TimeoutMS: 1000}, zap.NewNop())
}

// geminiLLM points an enabled client at a fake Gemini endpoint that answers
// every call with reply
func geminiLLM(t *testing.T, status int, reply string) *LLMClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		resp := map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": reply}}}},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)

	cfg := &config.AIConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		Models:     config.GeminiModels{Queries: "q", Ranking: "r", Vision: "v"},
		TimeoutMS:  2000,
		MaxQueries: 6,
	}
	return NewLLMClient(cfg, zap.NewNop())
}

func product(id string) model.Product {
	return model.Product{
		ProductID:    id,
		Title:        "Product " + id,
		Vendor:       "Acme",
		Price:        "10.00",
		Currency:     "USD",
		ThumbnailURL: "https://img.test/" + id + ".jpg",
		Images:       []string{"https://img.test/" + id + ".jpg"},
	}
}

func seedProducts(t *testing.T, store repository.Store, ids ...string) {
	t.Helper()
	products := make([]model.Product, len(ids))
	for i, id := range ids {
		products[i] = product(id)
	}
	_, err := store.SaveProducts(context.Background(), testUser, testDate, model.SourceSearch, products)
	require.NoError(t, err)
}

func ids(list []model.RankedProduct) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.ProductID
	}
	return out
}

func entryIDs(list []model.RankEntry) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.ProductID
	}
	return out
}
