package redis

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// ScoreCache mirrors per-campaign scores into a Redis sorted set
// (ZADD scoreboard:{campaignID}) for cheap rank and top-N reads. Best-effort:
// the datastore remains the source of truth and the set is rebuilt on every
// score change.
type ScoreCache struct {
	client *redis.Client
}

func NewScoreCache(client *redis.Client) *ScoreCache {
	return &ScoreCache{client: client}
}

func (c *ScoreCache) UpdateScore(ctx context.Context, campaignID, playerID int64, score int) error {
	return c.client.ZAdd(ctx, c.key(campaignID), redis.Z{
		Score:  float64(score),
		Member: member(playerID),
	}).Err()
}

// Remove drops a player from the campaign ranking, e.g. after deletion.
func (c *ScoreCache) Remove(ctx context.Context, campaignID, playerID int64) error {
	return c.client.ZRem(ctx, c.key(campaignID), member(playerID)).Err()
}

// Rank returns the player's 0-based position, best score first.
func (c *ScoreCache) Rank(ctx context.Context, campaignID, playerID int64) (int64, error) {
	return c.client.ZRevRank(ctx, c.key(campaignID), member(playerID)).Result()
}

// TopN returns the best-ranked player IDs.
func (c *ScoreCache) TopN(ctx context.Context, campaignID int64, n int64) ([]int64, error) {
	members, err := c.client.ZRevRange(ctx, c.key(campaignID), 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *ScoreCache) key(campaignID int64) string {
	return "scoreboard:" + strconv.FormatInt(campaignID, 10)
}

func member(playerID int64) string {
	return strconv.FormatInt(playerID, 10)
}
