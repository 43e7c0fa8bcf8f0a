package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quizpicks/internal/model"
)

// RankingCache keeps a hydrated ranked list per (user, date) in a Redis ZSET
// scored by rank, so GET /ranking pages are served with ZRANGE.
type RankingCache interface {
	Store(ctx context.Context, userID, date string, rows []model.RankedProduct, version int) error
	// Range returns a page of the cached list. found is false on a miss.
	Range(ctx context.Context, userID, date string, limit, offset int) (page model.RankingPage, found bool, err error)
	Invalidate(ctx context.Context, userID, date string) error
}

type rankingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRankingCache creates a Redis-backed ranking cache
func NewRankingCache(client *redis.Client) RankingCache {
	return &rankingCache{
		client: client,
		ttl:    30 * time.Minute,
	}
}

func (c *rankingCache) key(userID, date string) string {
	return fmt.Sprintf("ranking:%s:%s", userID, date)
}

func (c *rankingCache) versionKey(userID, date string) string {
	return fmt.Sprintf("ranking:%s:%s:version", userID, date)
}

func (c *rankingCache) Store(ctx context.Context, userID, date string, rows []model.RankedProduct, version int) error {
	key := c.key(userID, date)
	members := make([]redis.Z, 0, len(rows))
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		members = append(members, redis.Z{Score: float64(row.Rank), Member: data})
	}

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(members) > 0 {
		pipe.ZAdd(ctx, key, members...)
		pipe.Expire(ctx, key, c.ttl)
	}
	// the version key doubles as the presence marker for empty lists
	pipe.Set(ctx, c.versionKey(userID, date), version, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *rankingCache) Range(ctx context.Context, userID, date string, limit, offset int) (model.RankingPage, bool, error) {
	page := model.RankingPage{Limit: limit, Offset: offset, Products: []model.RankedProduct{}}

	version, err := c.client.Get(ctx, c.versionKey(userID, date)).Result()
	if err == redis.Nil {
		return page, false, nil
	}
	if err != nil {
		return page, false, err
	}
	page.ContextVersion, _ = strconv.Atoi(version)

	key := c.key(userID, date)
	pipe := c.client.Pipeline()
	rangeCmd := pipe.ZRange(ctx, key, int64(offset), int64(offset+limit-1))
	cardCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return page, false, err
	}

	total, err := cardCmd.Result()
	if err != nil {
		return page, false, err
	}
	page.Total = int(total)
	if limit <= 0 {
		return page, true, nil
	}
	for _, member := range rangeCmd.Val() {
		var row model.RankedProduct
		if err := json.Unmarshal([]byte(member), &row); err != nil {
			return page, false, err
		}
		page.Products = append(page.Products, row)
	}
	return page, true, nil
}

func (c *rankingCache) Invalidate(ctx context.Context, userID, date string) error {
	return c.client.Del(ctx, c.key(userID, date), c.versionKey(userID, date)).Err()
}

type noopRankingCache struct{}

// NewNoopRankingCache is used when Redis is not configured; every read misses
func NewNoopRankingCache() RankingCache {
	return noopRankingCache{}
}

func (noopRankingCache) Store(context.Context, string, string, []model.RankedProduct, int) error {
	return nil
}

func (noopRankingCache) Range(_ context.Context, _, _ string, limit, offset int) (model.RankingPage, bool, error) {
	return model.RankingPage{Limit: limit, Offset: offset}, false, nil
}

func (noopRankingCache) Invalidate(context.Context, string, string) error {
	return nil
}
