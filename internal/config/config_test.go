package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg := Load()

	assert.Equal(t, "3001", cfg.App.Port)
	assert.False(t, cfg.App.AuthEnabled)
	assert.Equal(t, 100, cfg.App.RateLimitBurst)
	assert.Equal(t, PolicyLLM, cfg.Ranking.Policy)
	assert.Equal(t, 20, cfg.Ranking.TopN)
	assert.Equal(t, 5, cfg.Ranking.PastDays)
	assert.Equal(t, 8, cfg.Vision.MaxConcurrency)
	assert.Equal(t, 6*time.Second, cfg.Flow.StallTimeout)
	assert.Equal(t, 1, cfg.Flow.SearchPageCap)
	assert.False(t, cfg.AI.IsEnabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("AUTH_ENABLED", "true")
	t.Setenv("RANKING_POLICY", "PassThrough")
	t.Setenv("STALL_TIMEOUT", "250ms")
	t.Setenv("SEARCH_PAGE_CAP", "3")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("GEMINI_MODEL_RANKING", "gemini-pro")

	cfg := Load()

	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.True(t, cfg.App.AuthEnabled)
	assert.Equal(t, PolicyPassThrough, cfg.Ranking.Policy)
	assert.Equal(t, 250*time.Millisecond, cfg.Flow.StallTimeout)
	assert.Equal(t, 3, cfg.Flow.SearchPageCap)
	assert.InDelta(t, 2.5, cfg.App.RateLimitPerSecond, 1e-9)
	assert.True(t, cfg.AI.IsEnabled())
	assert.Equal(t, "gemini-pro", cfg.AI.Models.Ranking)
	assert.Equal(t, cfg.AI.BaseURL+"/gemini-pro:generateContent", cfg.AI.ModelEndpoint("gemini-pro"))
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("RANKING_TOP_N", "many")
	t.Setenv("VISION_ENABLED", "sometimes")

	cfg := Load()

	assert.Equal(t, 20, cfg.Ranking.TopN)
	assert.True(t, cfg.Vision.Enabled)
}
