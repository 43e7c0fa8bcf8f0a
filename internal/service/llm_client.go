package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"quizpicks/internal/config"
	"quizpicks/internal/model"
	"quizpicks/internal/ranking"
)

var (
	ErrEmptyModelOutput = errors.New("empty response from Gemini")
	ErrNoJSON           = errors.New("no valid JSON found in model output")
)

// QueryPrompt is the context sent to the query generator
type QueryPrompt struct {
	Responses       map[string]any `json:"today_responses"`
	BuyerAttributes map[string]any `json:"buyer_attributes"`
	GenderAffinity  string         `json:"gender_affinity,omitempty"`
	MaxQueries      int            `json:"-"`
}

// RankCandidate is a product as shown to the ranking model
type RankCandidate struct {
	ProductID string   `json:"product_id"`
	Title     string   `json:"title"`
	Vendor    string   `json:"vendor"`
	Price     string   `json:"price"`
	Currency  string   `json:"currency"`
	URL       string   `json:"url,omitempty"`
	Caption   string   `json:"caption,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// RankPrompt is the context sent to the ranking model
type RankPrompt struct {
	Responses   map[string]any  `json:"today_responses"`
	Queries     []string        `json:"today_queries"`
	PastQueries []string        `json:"past_queries,omitempty"`
	Products    []RankCandidate `json:"products"`
	ExcludeIDs  []string        `json:"exclude_product_ids"`
	Limit       int             `json:"-"`
}

// LLMClient talks to Gemini for query generation, ranking and image captions.
// With no API key configured every call returns a deterministic mock.
type LLMClient struct {
	config *config.AIConfig
	client *http.Client
	log    *zap.Logger
}

// NewLLMClient creates a new client
func NewLLMClient(cfg *config.AIConfig, log *zap.Logger) *LLMClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &LLMClient{
		config: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
		},
		log: log.Named("llm"),
	}
}

// Enabled reports whether real model calls are made
func (s *LLMClient) Enabled() bool {
	return s.config.IsEnabled()
}

// GenerateQueries turns quiz answers into catalogue search queries
func (s *LLMClient) GenerateQueries(ctx context.Context, in QueryPrompt) ([]string, error) {
	limit := in.MaxQueries
	if limit <= 0 {
		limit = s.config.MaxQueries
	}
	if !s.config.IsEnabled() {
		return SanitizeQueries(mockQueries(in), limit), nil
	}

	payload, err := json.Marshal(map[string]any{
		"today_responses":  in.Responses,
		"buyer_attributes": orEmpty(in.BuyerAttributes),
		"gender_affinity":  nullable(in.GenderAffinity),
		"constraints":      map[string]int{"max_queries": limit, "max_words_per_query": 10},
	})
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(`You are an e-commerce search query generator.

Output policy:
- Return JSON ONLY.
- The top-level value MUST be a JSON array of %d strings.
- Each query should be 8-10 words, broad, and searchable.
- Each query should be unique.
- Consider the user's responses, mood, and buyer preferences.
- Only search for clothes in the right gender based on gender affinity.
- Use buyer attributes to personalize queries (age, location, style preferences, etc.).

Input:
%s`, limit, payload)

	text, err := s.callGemini(ctx, s.config.Models.Queries, prompt)
	if err != nil {
		return nil, err
	}

	var queries []string
	parsed, err := ParseModelJSON(text)
	if err != nil {
		s.log.Info("query output is not JSON, extracting lines", zap.Error(err))
		queries = extractListLines(text)
	} else {
		queries = stringList(parsed, "queries")
	}
	return SanitizeQueries(queries, limit), nil
}

// RankProducts orders candidates for the user. Unusable model output falls
// back to the first products in order with descending synthetic scores.
func (s *LLMClient) RankProducts(ctx context.Context, in RankPrompt) ([]model.RankEntry, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = ranking.TopN
	}
	known := make(map[string]struct{}, len(in.Products))
	pool := make([]model.Product, len(in.Products))
	for i, c := range in.Products {
		known[c.ProductID] = struct{}{}
		pool[i] = model.Product{ProductID: c.ProductID}
	}
	if !s.config.IsEnabled() {
		return ranking.Fallback(pool, in.ExcludeIDs, limit), nil
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(`You are a personalized ecommerce ranking model.

Return EXACTLY %d items as a JSON array of:
[
  { "product_id": "string", "score": number (0..1), "reason": "string" }
]

Output policy:
- JSON ONLY. No prose, no code fences.
- Only use product ids from "products".
- Exclude any products whose IDs are provided in "exclude_product_ids".

Input:
%s`, limit, payload)

	text, err := s.callGemini(ctx, s.config.Models.Ranking, prompt)
	if err != nil {
		return nil, err
	}

	parsed, err := ParseModelJSON(text)
	if err != nil {
		s.log.Warn("ranking output unusable, using fallback", zap.Error(err))
		return ranking.Fallback(pool, in.ExcludeIDs, limit), nil
	}
	entries := ranking.Sanitize(rankEntries(parsed), known, in.ExcludeIDs, limit)
	if len(entries) == 0 {
		s.log.Warn("ranking output had no usable rows, using fallback")
		return ranking.Fallback(pool, in.ExcludeIDs, limit), nil
	}
	return entries, nil
}

// DescribeImage extracts a caption, tags and attributes from a product image
func (s *LLMClient) DescribeImage(ctx context.Context, ref model.ImageRef) (model.VisionData, error) {
	if !s.config.IsEnabled() {
		return mockVision(ref), nil
	}

	prompt := fmt.Sprintf(`Extract ecommerce-relevant attributes from this product image.

Return JSON ONLY with this shape:
{
  "caption": "string",
  "tags": ["string", "..."],
  "attributes": { "key": "value" }
}

Image: %s`, ref.ImageURL)

	text, err := s.callGemini(ctx, s.config.Models.Vision, prompt)
	if err != nil {
		return model.VisionData{}, err
	}

	data := model.VisionData{ProductID: ref.ProductID, ImageURL: ref.ImageURL, ProcessedAt: time.Now().UTC()}
	parsed, err := ParseModelJSON(text)
	obj, ok := parsed.(map[string]any)
	if err != nil || !ok {
		lines := strings.SplitN(strings.TrimSpace(text), "\n", 2)
		data.Caption = strings.TrimSpace(lines[0])
		data.Tags = wordPattern.FindAllString(text, 10)
		return data, nil
	}
	data.Caption = asText(obj["caption"])
	data.Tags = stringList(obj["tags"], "")
	if attrs, ok := obj["attributes"].(map[string]any); ok {
		data.Attributes = make(map[string]string, len(attrs))
		for k, v := range attrs {
			data.Attributes[k] = asText(v)
		}
	}
	return data, nil
}

// callGemini makes a request to the Gemini API
func (s *LLMClient) callGemini(ctx context.Context, modelName, prompt string) (string, error) {
	reqBody := map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"parts": []map[string]string{
					{"text": prompt},
				},
			},
		},
		"generationConfig": map[string]interface{}{
			"responseMimeType": "application/json",
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s?key=%s", s.config.ModelEndpoint(modelName), s.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("gemini %s returned status %d", modelName, resp.StatusCode)
	}

	// Parse Gemini response structure
	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", err
	}

	if len(geminiResp.Candidates) > 0 && len(geminiResp.Candidates[0].Content.Parts) > 0 {
		return geminiResp.Candidates[0].Content.Parts[0].Text, nil
	}

	return "", ErrEmptyModelOutput
}

var (
	fencePattern  = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")
	arrayPattern  = regexp.MustCompile(`(?s)\[.*\]`)
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)
	listPattern   = regexp.MustCompile(`^(\d+[).]\s*|-\s*)`)
	wordPattern   = regexp.MustCompile(`(?i)\b[a-z0-9-]+\b`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// ParseModelJSON extracts a JSON value from model text that may be wrapped
// in code fences or surrounded by prose
func ParseModelJSON(text string) (any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyModelOutput
	}
	candidate := text
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	}
	var out any
	if err := json.Unmarshal([]byte(strings.TrimSpace(candidate)), &out); err == nil {
		return out, nil
	}
	for _, p := range []*regexp.Regexp{arrayPattern, objectPattern} {
		if m := p.FindString(text); m != "" {
			if err := json.Unmarshal([]byte(m), &out); err == nil {
				return out, nil
			}
		}
	}
	return nil, ErrNoJSON
}

// SanitizeQueries collapses whitespace, drops empties and duplicates and keeps
// at most limit queries
func SanitizeQueries(queries []string, limit int) []string {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(spacePattern.ReplaceAllString(q, " "))
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func extractListLines(text string) []string {
	text = strings.NewReplacer("```json", "", "```", "").Replace(text)
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case listPattern.MatchString(line):
			line = listPattern.ReplaceAllString(line, "")
		case len(line) > 1 && (line[0] == '"' || line[0] == '\'') && line[len(line)-1] == line[0]:
		default:
			continue
		}
		out = append(out, strings.Trim(strings.TrimSpace(line), `"'`))
	}
	return out
}

// stringList reads a list of strings from v, or from v[key] when v is an object
func stringList(v any, key string) []string {
	if obj, ok := v.(map[string]any); ok && key != "" {
		v = obj[key]
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func rankEntries(v any) []model.RankEntry {
	if obj, ok := v.(map[string]any); ok {
		v = obj["items"]
	}
	items, _ := v.([]any)
	out := make([]model.RankEntry, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, model.RankEntry{
			ProductID: asText(obj["product_id"]),
			Score:     asFloat(obj["score"]),
			Reason:    reasonText(obj["reason"]),
		})
	}
	return out
}

func asText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func reasonText(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// mockQueries builds queries from the answer terms in prompt order
func mockQueries(in QueryPrompt) []string {
	keys := make([]string, 0, len(in.Responses))
	for k := range in.Responses {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var terms []string
	for _, k := range keys {
		switch v := in.Responses[k].(type) {
		case string:
			terms = append(terms, v)
		case []string:
			terms = append(terms, v...)
		case []any:
			for _, item := range v {
				terms = append(terms, asText(item))
			}
		}
	}
	prefix := strings.TrimSpace(in.GenderAffinity)
	if len(terms) == 0 {
		return []string{strings.TrimSpace(prefix + " everyday clothing essentials")}
	}
	var out []string
	for i, term := range terms {
		next := terms[(i+1)%len(terms)]
		out = append(out, strings.TrimSpace(fmt.Sprintf("%s %s %s clothing", prefix, strings.ToLower(term), strings.ToLower(next))))
	}
	return out
}

func mockVision(ref model.ImageRef) model.VisionData {
	name := ref.ImageURL
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.IndexAny(name, ".?"); i >= 0 {
		name = name[:i]
	}
	return model.VisionData{
		ProductID:   ref.ProductID,
		ImageURL:    ref.ImageURL,
		Caption:     "Product image " + name,
		Tags:        wordPattern.FindAllString(strings.ReplaceAll(name, "_", " "), 10),
		ProcessedAt: time.Now().UTC(),
	}
}
