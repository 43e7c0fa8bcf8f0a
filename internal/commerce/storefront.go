// Package commerce reads products from a GraphQL storefront. Search and
// recommendation queries are exposed as paged sources for a session.
package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"quizpicks/internal/session"
)

var ErrGraphQL = errors.New("storefront query failed")

const searchQuery = `query Search($query: String!, $first: Int!, $after: String) {
  search(query: $query, first: $first, after: $after, types: PRODUCT) {
    edges { node { ... on Product { ...ProductFields } } }
    pageInfo { hasNextPage endCursor }
  }
}
` + productFields

const recommendedQuery = `query Recommended($first: Int!, $after: String) {
  recommendedProducts(first: $first, after: $after) {
    edges { node { ...ProductFields } }
    pageInfo { hasNextPage endCursor }
  }
}
` + productFields

const productFields = `fragment ProductFields on Product {
  id title vendor handle onlineStoreUrl
  featuredImage { url }
  images(first: 5) { edges { node { url } } }
  priceRange { minVariantPrice { amount currencyCode } }
}`

// Config points the client at a storefront
type Config struct {
	URL      string
	Token    string
	RPS      float64
	PageSize int
	Timeout  time.Duration
}

// Client calls the storefront GraphQL endpoint, spacing calls with a
// token bucket
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewClient creates a storefront client; RPS <= 0 disables throttling
func NewClient(cfg Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		log:        log.Named("storefront"),
	}
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type connection struct {
	Edges    []json.RawMessage `json:"edges"`
	PageInfo pageInfo          `json:"pageInfo"`
}

// query runs one GraphQL request and returns the connection found under field
func (c *Client) query(ctx context.Context, query, field string, vars map[string]any) (session.Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return session.Page{}, err
	}

	payload, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return session.Page{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return session.Page{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("X-Storefront-Access-Token", c.cfg.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return session.Page{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return session.Page{}, err
	}
	if resp.StatusCode >= 400 {
		return session.Page{}, fmt.Errorf("%w: status %d", ErrGraphQL, resp.StatusCode)
	}

	var out struct {
		Data   map[string]json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return session.Page{}, fmt.Errorf("decode storefront response: %w", err)
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = e.Message
		}
		return session.Page{}, fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(msgs, "; "))
	}

	raw, ok := out.Data[field]
	if !ok {
		return session.Page{}, fmt.Errorf("%w: response has no %s", ErrGraphQL, field)
	}
	var conn connection
	if err := json.Unmarshal(raw, &conn); err != nil {
		return session.Page{}, fmt.Errorf("decode %s: %w", field, err)
	}
	// keep the untyped connection so the session normalizer sees raw nodes
	var items any
	if err := json.Unmarshal(raw, &items); err != nil {
		return session.Page{}, err
	}

	c.log.Debug("page loaded",
		zap.String("field", field),
		zap.Int("edges", len(conn.Edges)),
		zap.Bool("has_next", conn.PageInfo.HasNextPage))
	return session.Page{
		Items:       items,
		HasNextPage: conn.PageInfo.HasNextPage,
		Cursor:      conn.PageInfo.EndCursor,
	}, nil
}

func (c *Client) vars(cursor string) map[string]any {
	vars := map[string]any{"first": c.cfg.PageSize}
	if cursor != "" {
		vars["after"] = cursor
	}
	return vars
}

// SearchPage fetches one page of search results after cursor
func (c *Client) SearchPage(ctx context.Context, query, cursor string) (session.Page, error) {
	vars := c.vars(cursor)
	vars["query"] = query
	return c.query(ctx, searchQuery, "search", vars)
}

// RecommendedPage fetches one page of recommendations after cursor
func (c *Client) RecommendedPage(ctx context.Context, cursor string) (session.Page, error) {
	return c.query(ctx, recommendedQuery, "recommendedProducts", c.vars(cursor))
}

// Search opens a paged search source
func (c *Client) Search(ctx context.Context, query string) session.PagedSource {
	return session.NewHookSource(ctx, func(ctx context.Context, cursor string) (session.Page, error) {
		return c.SearchPage(ctx, query, cursor)
	})
}

// Recommended opens a paged recommendation source
func (c *Client) Recommended(ctx context.Context) session.PagedSource {
	return session.NewHookSource(ctx, c.RecommendedPage)
}
