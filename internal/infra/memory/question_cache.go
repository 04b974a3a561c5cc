package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"gameday-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a campaign's question set from a backing store.
type QuestionLoader interface {
	CampaignQuestions(ctx context.Context, campaignID int64) ([]domain.Question, error)
}

// QuestionCache caches campaign question sets with a TTL so the visibility
// resolver can be polled without hammering the datastore.
type QuestionCache struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(loader QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedQuestions),
	}
}

func (c *QuestionCache) CampaignQuestions(ctx context.Context, campaignID int64) ([]domain.Question, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[campaignID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.questions, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(key(campaignID), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[campaignID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.questions, nil
		}
		c.mu.RUnlock()

		questions, err := c.loader.CampaignQuestions(ctx, campaignID)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.cache[campaignID] = cachedQuestions{
			questions: questions,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached set after question edits.
func (c *QuestionCache) Invalidate(_ context.Context, campaignID int64) error {
	c.mu.Lock()
	delete(c.cache, campaignID)
	c.mu.Unlock()
	return nil
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func key(campaignID int64) string {
	return "campaign:" + strconv.FormatInt(campaignID, 10)
}
