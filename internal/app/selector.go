package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"study-room-service/internal/domain"
)

// QuestionSetSelector samples the ordered question list a room is created with.
type QuestionSetSelector struct {
	content ContentStore

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewQuestionSetSelector uses rnd for shuffling; nil seeds from the clock.
func NewQuestionSetSelector(content ContentStore, rnd *rand.Rand) *QuestionSetSelector {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &QuestionSetSelector{content: content, rnd: rnd}
}

// BuildQuestionSet returns count eligible question ids from the module in random order.
func (s *QuestionSetSelector) BuildQuestionSet(ctx context.Context, moduleID string, count int) ([]string, error) {
	if count <= 0 {
		return nil, domain.ErrInvalidQuestionCount
	}

	questions, err := s.content.QuestionsByModule(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("load module %s: %w", moduleID, err)
	}

	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		if q.Graded() {
			ids = append(ids, q.ID)
		}
	}
	if len(ids) < count {
		return nil, fmt.Errorf("module %s has %d eligible questions, need %d: %w", moduleID, len(ids), count, domain.ErrInsufficientQuestions)
	}

	s.mu.Lock()
	s.rnd.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	s.mu.Unlock()

	return ids[:count:count], nil
}
