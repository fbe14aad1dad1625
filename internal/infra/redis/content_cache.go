package redis

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"study-room-service/internal/domain"
	"study-room-service/internal/infra/memory"
)

// ContentCache caches question content in Redis and falls back to a loader on a miss.
// Questions are stored as:  SET content:question:{questionID} {json}
// Module question ids as:   SET content:module:{moduleID}     {json array of ids}
// Cache failures are not fatal; the loader answers instead.
type ContentCache struct {
	client *redis.Client
	loader memory.ContentLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewContentCache(client *redis.Client, loader memory.ContentLoader, ttl time.Duration) *ContentCache {
	return &ContentCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ContentCache) QuestionsByModule(ctx context.Context, moduleID string) ([]domain.Question, error) {
	if ids, ok := c.moduleIDs(ctx, moduleID); ok {
		if questions, missing := c.lookup(ctx, ids); len(missing) == 0 {
			return questions, nil
		}
	}

	result, err, _ := c.sf.Do("module:"+moduleID, func() (interface{}, error) {
		questions, err := c.loader.QuestionsByModule(ctx, moduleID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(questions))
		for i, q := range questions {
			ids[i] = q.ID
		}
		c.store(ctx, questions, map[string][]string{moduleID: ids})
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *ContentCache) QuestionsByIDs(ctx context.Context, ids []string) ([]domain.Question, error) {
	found, missing := c.lookup(ctx, ids)
	if len(missing) == 0 {
		return found, nil
	}

	key := append([]string(nil), missing...)
	sort.Strings(key)
	result, err, _ := c.sf.Do("ids:"+strings.Join(key, ","), func() (interface{}, error) {
		questions, err := c.loader.QuestionsByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		c.store(ctx, questions, nil)
		return questions, nil
	})
	if err != nil {
		return nil, err
	}

	loaded := make(map[string]domain.Question)
	for _, q := range found {
		loaded[q.ID] = q
	}
	for _, q := range result.([]domain.Question) {
		loaded[q.ID] = q
	}
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := loaded[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (c *ContentCache) moduleIDs(ctx context.Context, moduleID string) ([]string, bool) {
	raw, err := c.client.Get(ctx, moduleKey(moduleID)).Bytes()
	if err != nil {
		return nil, false
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false
	}
	return ids, true
}

// lookup returns cached questions in request order plus the ids that need loading.
func (c *ContentCache) lookup(ctx context.Context, ids []string) ([]domain.Question, []string) {
	if len(ids) == 0 {
		return []domain.Question{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = questionKey(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return []domain.Question{}, ids
	}

	found := make([]domain.Question, 0, len(ids))
	var missing []string
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		found = append(found, q)
	}
	return found, missing
}

func (c *ContentCache) store(ctx context.Context, questions []domain.Question, modules map[string][]string) {
	pipe := c.client.Pipeline()
	for _, q := range questions {
		data, err := json.Marshal(q)
		if err != nil {
			continue
		}
		pipe.Set(ctx, questionKey(q.ID), data, c.ttlWithJitter())
	}
	for moduleID, ids := range modules {
		data, err := json.Marshal(ids)
		if err != nil {
			continue
		}
		pipe.Set(ctx, moduleKey(moduleID), data, c.ttlWithJitter())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("content cache: write failed: %v", err)
	}
}

func (c *ContentCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func questionKey(questionID string) string {
	return "content:question:" + questionID
}

func moduleKey(moduleID string) string {
	return "content:module:" + moduleID
}
