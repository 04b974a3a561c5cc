package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"gameday-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a campaign's question set from a backing store.
type QuestionLoader interface {
	CampaignQuestions(ctx context.Context, campaignID int64) ([]domain.Question, error)
}

// QuestionCache caches campaign question sets in Redis as JSON
// (SET campaign:{id}:questions) and falls back to a loader on cache miss, so
// multiple service instances share one warm copy.
type QuestionCache struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) CampaignQuestions(ctx context.Context, campaignID int64) ([]domain.Question, error) {
	cacheKey := c.key(campaignID)

	raw, err := c.client.Get(ctx, cacheKey).Bytes()
	if err == nil {
		if questions, ok := decodeQuestions(raw); ok {
			return questions, nil
		}
	}

	result, err, _ := c.sf.Do(cacheKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		raw, err := c.client.Get(ctx, cacheKey).Bytes()
		if err == nil {
			if questions, ok := decodeQuestions(raw); ok {
				return questions, nil
			}
		}

		questions, err := c.loader.CampaignQuestions(ctx, campaignID)
		if err != nil {
			return nil, err
		}

		if encoded, err := json.Marshal(questions); err == nil {
			_ = c.client.Set(ctx, cacheKey, encoded, c.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached set after question edits.
func (c *QuestionCache) Invalidate(ctx context.Context, campaignID int64) error {
	return c.client.Del(ctx, c.key(campaignID)).Err()
}

func (c *QuestionCache) key(campaignID int64) string {
	return "campaign:" + strconv.FormatInt(campaignID, 10) + ":questions"
}

func decodeQuestions(raw []byte) ([]domain.Question, bool) {
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
