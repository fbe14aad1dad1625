package memory

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"study-room-service/internal/domain"
)

// ContentLoader fetches question content from a backing store (e.g., Postgres).
type ContentLoader interface {
	QuestionsByModule(ctx context.Context, moduleID string) ([]domain.Question, error)
	QuestionsByIDs(ctx context.Context, ids []string) ([]domain.Question, error)
}

// ContentCache caches questions with a TTL to avoid repeated backing-store hits.
// Upstream edits show up once an entry expires.
type ContentCache struct {
	loader ContentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu        sync.Mutex
	rnd       *rand.Rand
	questions map[string]cachedQuestion
	modules   map[string]cachedModule
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

type cachedModule struct {
	ids       []string
	expiresAt time.Time
}

func NewContentCache(loader ContentLoader, ttl time.Duration) *ContentCache {
	return &ContentCache{
		loader:    loader,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		questions: make(map[string]cachedQuestion),
		modules:   make(map[string]cachedModule),
	}
}

func (c *ContentCache) QuestionsByModule(ctx context.Context, moduleID string) ([]domain.Question, error) {
	if ids, ok := c.moduleIDs(moduleID); ok {
		if questions, missing := c.lookup(ids); len(missing) == 0 {
			return questions, nil
		}
	}

	result, err, _ := c.sf.Do("module:"+moduleID, func() (interface{}, error) {
		questions, err := c.loader.QuestionsByModule(ctx, moduleID)
		if err != nil {
			return nil, err
		}
		c.store(questions)

		ids := make([]string, len(questions))
		for i, q := range questions {
			ids[i] = q.ID
		}
		c.mu.Lock()
		c.modules[moduleID] = cachedModule{ids: ids, expiresAt: c.clock().Add(c.ttlWithJitterLocked())}
		c.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *ContentCache) QuestionsByIDs(ctx context.Context, ids []string) ([]domain.Question, error) {
	found, missing := c.lookup(ids)
	if len(missing) == 0 {
		return found, nil
	}

	key := append([]string(nil), missing...)
	sort.Strings(key)
	_, err, _ := c.sf.Do("ids:"+strings.Join(key, ","), func() (interface{}, error) {
		questions, err := c.loader.QuestionsByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		c.store(questions)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	found, _ = c.lookup(ids)
	return found, nil
}

func (c *ContentCache) moduleIDs(moduleID string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.modules[moduleID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}
	return entry.ids, true
}

// lookup returns cached questions in request order plus the ids that need loading.
func (c *ContentCache) lookup(ids []string) ([]domain.Question, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	found := make([]domain.Question, 0, len(ids))
	var missing []string
	for _, id := range ids {
		if entry, ok := c.questions[id]; ok && entry.expiresAt.After(now) {
			found = append(found, entry.question)
			continue
		}
		missing = append(missing, id)
	}
	return found, missing
}

func (c *ContentCache) store(questions []domain.Question) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	for _, q := range questions {
		c.questions[q.ID] = cachedQuestion{question: q, expiresAt: now.Add(c.ttlWithJitterLocked())}
	}
}

func (c *ContentCache) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// StaticContentStore is a simple content store backed by an in-memory slice (useful for tests/demos).
type StaticContentStore struct {
	byModule map[string][]domain.Question
	byID     map[string]domain.Question
}

func NewStaticContentStore(questions []domain.Question) *StaticContentStore {
	s := &StaticContentStore{
		byModule: make(map[string][]domain.Question),
		byID:     make(map[string]domain.Question, len(questions)),
	}
	for _, q := range questions {
		s.byModule[q.ModuleID] = append(s.byModule[q.ModuleID], q)
		s.byID[q.ID] = q
	}
	return s
}

func (s *StaticContentStore) QuestionsByModule(_ context.Context, moduleID string) ([]domain.Question, error) {
	return append([]domain.Question(nil), s.byModule[moduleID]...), nil
}

func (s *StaticContentStore) QuestionsByIDs(_ context.Context, ids []string) ([]domain.Question, error) {
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := s.byID[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}
