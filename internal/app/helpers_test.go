package app_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"study-room-service/internal/app"
	"study-room-service/internal/domain"
	"study-room-service/internal/infra/memory"
)

var testRetry = app.RetryPolicy{
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
	MaxElapsed:      time.Second,
}

// testClock is a manually advanced clock shared by every component of an env.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	store        *memory.RoomStore
	content      *memory.StaticContentStore
	coordinator  *app.Coordinator
	participants *app.Participants
	clock        *testClock
}

func newEnv(t *testing.T, codes ...string) *env {
	t.Helper()
	// Sessions read the wall clock for timers, so the test clock starts at now.
	clock := &testClock{now: time.Now().UTC()}
	store := memory.NewRoomStore()
	content := memory.NewStaticContentStore(moduleQuestions("m1", 4))

	var gen app.JoinCodeGenerator = app.NewRandomJoinCodes()
	if len(codes) > 0 {
		gen = app.NewSequenceJoinCodes(codes...)
	}
	selector := app.NewQuestionSetSelector(content, rand.New(rand.NewSource(1)))
	return &env{
		store:        store,
		content:      content,
		coordinator:  app.NewCoordinator(store, selector, gen, app.WithClock(clock.Now)),
		participants: app.NewParticipantsWithClock(store, content, testRetry, clock.Now),
		clock:        clock,
	}
}

// createRoom makes a room for host over count questions of module m1.
func (e *env) createRoom(t *testing.T, host string, count int) domain.Room {
	t.Helper()
	room, err := e.coordinator.CreateRoom(context.Background(), app.CreateRoomRequest{
		Name:            "Biology 101",
		HostID:          host,
		ModuleID:        "m1",
		QuestionCount:   count,
		QuestionSeconds: 30,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

func (e *env) join(t *testing.T, roomID, userID, name string) domain.Participant {
	t.Helper()
	p, err := e.participants.Join(context.Background(), roomID, userID, name)
	if err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
	return p
}

// moduleQuestions builds n graded questions whose correct choice is always "a".
func moduleQuestions(moduleID string, n int) []domain.Question {
	out := make([]domain.Question, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.Question{
			ID:       fmt.Sprintf("%s-q%d", moduleID, i),
			ModuleID: moduleID,
			Type:     domain.QuestionTypeMultipleChoice,
			Text:     fmt.Sprintf("Question %d", i),
			Choices: []domain.Choice{
				{ID: "a", Text: "right", IsCorrect: true},
				{ID: "b", Text: "wrong"},
			},
		})
	}
	return out
}

// flakyStore fails reads with ErrStoreUnavailable a set number of times.
type flakyStore struct {
	*memory.RoomStore

	mu       sync.Mutex
	failures int
	reads    int
}

func (s *flakyStore) fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("connection reset: %w", domain.ErrStoreUnavailable)
	}
	return nil
}

func (s *flakyStore) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	if err := s.fail(); err != nil {
		return domain.Room{}, err
	}
	return s.RoomStore.GetRoom(ctx, roomID)
}

func (s *flakyStore) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return s.RoomStore.ListParticipants(ctx, roomID)
}

func newParticipantsFor(store app.RoomStore, e *env) *app.Participants {
	return app.NewParticipantsWithClock(store, e.content, testRetry, e.clock.Now)
}
