// Package client is a typed HTTP client for the quizpicks API. It implements
// session.Backend so a session can run against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"quizpicks/internal/model"
)

// ErrRateLimited is returned once every retry was answered with 429
var ErrRateLimited = errors.New("rate limited")

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client wraps quizpicks API calls
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
	log        *zap.Logger
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetries sets the attempt count and the base of the 2^attempt backoff
func WithRetries(maxRetries int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.backoff = backoff
	}
}

// New creates a client for the API rooted at baseURL (".../api")
func New(baseURL, token string, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 5,
		backoff:    time.Second,
		log:        log.Named("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxRetries < 1 {
		c.maxRetries = 1
	}
	return c
}

// SetToken sets the bearer token sent with every request
func (c *Client) SetToken(token string) {
	c.token = token
}

// doRequest performs an HTTP request with retry logic. Rate-limited and
// transport failures are retried; other error statuses are returned at once.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Debug("retrying", zap.String("method", method), zap.String("path", path), zap.Int("attempt", attempt))
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("request failed", zap.String("path", path), zap.Int("attempt", attempt+1), zap.Error(err))
			lastErr = err
			if err := c.wait(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		// Handle rate limiting (429)
		if resp.StatusCode == http.StatusTooManyRequests {
			c.log.Warn("rate limited", zap.String("path", path), zap.Int("attempt", attempt+1))
			lastErr = ErrRateLimited
			if err := c.wait(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Message: errorMessage(body)}
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse %s response: %w", path, err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) wait(ctx context.Context, attempt int) error {
	backoff := time.Duration(math.Pow(2, float64(attempt))) * c.backoff
	t := time.NewTimer(backoff)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errorMessage(body []byte) string {
	var env model.ErrorResponse
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		return env.Error
	}
	return strings.TrimSpace(string(body))
}

// Session requests a token, minting a new shopper id when userID is empty.
// The token is used for every later call.
func (c *Client) Session(ctx context.Context, userID string) (*model.SessionResponse, error) {
	var resp model.SessionResponse
	if err := c.doRequest(ctx, http.MethodPost, "/auth/session", model.SessionRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	c.token = resp.Token
	return &resp, nil
}

func (c *Client) GetQuestions(ctx context.Context) ([]model.Question, error) {
	var resp struct {
		Questions []model.Question `json:"questions"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/questions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Questions, nil
}

func (c *Client) SubmitResponses(ctx context.Context, userID, date string, answers []model.QuizAnswer) error {
	return c.doRequest(ctx, http.MethodPost, "/responses", model.SubmitResponsesRequest{
		UserID:       userID,
		ResponseDate: date,
		Answers:      answers,
	}, nil)
}

func (c *Client) GenerateQueries(ctx context.Context, req model.GenerateQueriesRequest) ([]string, error) {
	var resp model.GenerateQueriesResponse
	if err := c.doRequest(ctx, http.MethodPost, "/queries/generate", req, &resp); err != nil {
		return nil, err
	}
	return resp.Queries, nil
}

// StoreProducts posts products to the endpoint matching source
func (c *Client) StoreProducts(ctx context.Context, userID, date string, source model.ProductSource, products []model.Product) (int, error) {
	path := "/products/store"
	if source == model.SourceRecommended {
		path = "/products/recommended/store"
	}
	var resp model.StoreProductsResponse
	err := c.doRequest(ctx, http.MethodPost, path, model.StoreProductsRequest{
		UserID:       userID,
		ResponseDate: date,
		Source:       source,
		Results:      products,
	}, &resp)
	return resp.Stored, err
}

func (c *Client) ProcessVision(ctx context.Context, userID, date string, refs []model.ImageRef) (int, error) {
	var resp model.VisionProcessResponse
	err := c.doRequest(ctx, http.MethodPost, "/vision/process", model.VisionProcessRequest{
		UserID:       userID,
		ResponseDate: date,
		Products:     refs,
	}, &resp)
	return resp.Processed, err
}

// RunVision starts background captioning of every unprocessed image
func (c *Client) RunVision(ctx context.Context, userID, date string) (int, error) {
	var resp model.VisionRunResponse
	err := c.doRequest(ctx, http.MethodPost, "/vision/run", model.VisionRunRequest{
		UserID:       userID,
		ResponseDate: date,
	}, &resp)
	return resp.Queued, err
}

func (c *Client) BuildRanking(ctx context.Context, userID, date string) ([]model.RankEntry, error) {
	var resp model.BuildRankingResponse
	err := c.doRequest(ctx, http.MethodPost, "/ranking/build", model.BuildRankingRequest{
		UserID:       userID,
		ResponseDate: date,
	}, &resp)
	return resp.Top, err
}

func (c *Client) GetRanking(ctx context.Context, userID, date string, limit, offset int) (model.RankingPage, error) {
	q := url.Values{}
	q.Set("user_id", userID)
	q.Set("response_date", date)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var page model.RankingPage
	err := c.doRequest(ctx, http.MethodGet, "/ranking?"+q.Encode(), nil, &page)
	if page.Products == nil {
		page.Products = []model.RankedProduct{}
	}
	return page, err
}

func (c *Client) Replenish(ctx context.Context, userID, date string, exclude []string) (int, error) {
	if exclude == nil {
		exclude = []string{}
	}
	var resp model.ReplenishResponse
	err := c.doRequest(ctx, http.MethodPost, "/ranking/replenish", model.ReplenishRequest{
		UserID:            userID,
		ResponseDate:      date,
		ExcludeProductIDs: exclude,
	}, &resp)
	return resp.Added, err
}
