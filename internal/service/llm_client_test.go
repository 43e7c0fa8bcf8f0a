package service

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizpicks/internal/model"
	"quizpicks/internal/ranking"
)

func TestParseModelJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want any
		err  error
	}{
		{"plain array", `["a","b"]`, []any{"a", "b"}, nil},
		{"fenced", "Here you go:\n```json\n{\"queries\":[\"x\"]}\n```", map[string]any{"queries": []any{"x"}}, nil},
		{"array in prose", `Sure! ["red dress"] hope that helps`, []any{"red dress"}, nil},
		{"object in prose", `result: {"caption":"shoe"} done`, map[string]any{"caption": "shoe"}, nil},
		{"empty", "   ", nil, ErrEmptyModelOutput},
		{"no json", "nothing useful here", nil, ErrNoJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseModelJSON(tt.text)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeQueries(t *testing.T) {
	in := []string{"  red   summer dress ", "", "red summer dress", "linen shirt", "a", "b", "c", "d", "e"}

	got := SanitizeQueries(in, 6)

	assert.Equal(t, []string{"red summer dress", "linen shirt", "a", "b", "c", "d"}, got)
}

func TestGenerateQueriesMockWhenDisabled(t *testing.T) {
	llm := mockLLM()
	require.False(t, llm.Enabled())

	got, err := llm.GenerateQueries(context.Background(), QueryPrompt{
		Responses: map[string]any{"style": "Casual", "colors": []string{"Blue", "Green"}},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 6)
	for _, q := range got {
		assert.Contains(t, q, "clothing")
	}
}

func TestGenerateQueriesFromModel(t *testing.T) {
	llm := geminiLLM(t, http.StatusOK, "```json\n[\"linen  shirt men\", \"linen shirt men\", \"canvas sneakers\"]\n```")

	got, err := llm.GenerateQueries(context.Background(), QueryPrompt{MaxQueries: 6})

	require.NoError(t, err)
	assert.Equal(t, []string{"linen shirt men", "canvas sneakers"}, got)
}

func TestGenerateQueriesFromNumberedList(t *testing.T) {
	llm := geminiLLM(t, http.StatusOK, "Queries:\n1. wool coat\n2) leather boots\n- silk scarf")

	got, err := llm.GenerateQueries(context.Background(), QueryPrompt{MaxQueries: 6})

	require.NoError(t, err)
	assert.Equal(t, []string{"wool coat", "leather boots", "silk scarf"}, got)
}

func TestRankProductsSanitizesModelOutput(t *testing.T) {
	llm := geminiLLM(t, http.StatusOK, `[
		{"product_id":"b","score":1.7,"reason":"great"},
		{"product_id":"b","score":0.5,"reason":"dupe"},
		{"product_id":"ghost","score":0.9,"reason":"unknown"},
		{"product_id":"x","score":0.8,"reason":"excluded"},
		{"product_id":"a","score":-2,"reason":"meh"}
	]`)

	got, err := llm.RankProducts(context.Background(), RankPrompt{
		Products:   []RankCandidate{{ProductID: "a"}, {ProductID: "b"}, {ProductID: "x"}},
		ExcludeIDs: []string{"x"},
	})

	require.NoError(t, err)
	assert.Equal(t, []model.RankEntry{
		{Rank: 1, ProductID: "b", Score: 1, Reason: "great"},
		{Rank: 2, ProductID: "a", Score: 0, Reason: "meh"},
	}, got)
}

func TestRankProductsMalformedFallsBack(t *testing.T) {
	llm := geminiLLM(t, http.StatusOK, "I cannot rank these products.")

	got, err := llm.RankProducts(context.Background(), RankPrompt{
		Products: []RankCandidate{{ProductID: "a"}, {ProductID: "b"}},
	})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ProductID)
	assert.Equal(t, 1.0, got[0].Score)
	assert.InDelta(t, 1-1.0/20, got[1].Score, 1e-9)
	assert.Equal(t, ranking.FallbackReason, got[1].Reason)
}

func TestRankProductsUpstreamError(t *testing.T) {
	llm := geminiLLM(t, http.StatusInternalServerError, "")

	_, err := llm.RankProducts(context.Background(), RankPrompt{
		Products: []RankCandidate{{ProductID: "a"}},
	})

	assert.Error(t, err)
}

func TestDescribeImage(t *testing.T) {
	llm := geminiLLM(t, http.StatusOK, `{"caption":"blue denim jacket","tags":["denim","blue"],"attributes":{"color":"blue","sleeves":2}}`)
	ref := model.ImageRef{ProductID: "p1", ImageURL: "https://img.test/p1.jpg"}

	got, err := llm.DescribeImage(context.Background(), ref)

	require.NoError(t, err)
	assert.Equal(t, "p1", got.ProductID)
	assert.Equal(t, "blue denim jacket", got.Caption)
	assert.Equal(t, []string{"denim", "blue"}, got.Tags)
	assert.Equal(t, map[string]string{"color": "blue", "sleeves": "2"}, got.Attributes)
	assert.False(t, got.ProcessedAt.IsZero())
}
