package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"study-room-service/internal/domain"
)

// RoomView is everything one client needs to render a room. It is always rebuilt from a
// fresh read of the room and its participants, never patched incrementally.
type RoomView struct {
	RoomID               string                    `json:"roomId"`
	JoinCode             string                    `json:"joinCode"`
	Name                 string                    `json:"name"`
	Status               domain.RoomStatus         `json:"status"`
	HostID               string                    `json:"hostId"`
	IsHost               bool                      `json:"isHost"`
	Member               bool                      `json:"member"`
	TotalQuestions       int                       `json:"totalQuestions"`
	CurrentQuestionIndex int                       `json:"currentQuestionIndex"`
	CurrentQuestionID    string                    `json:"currentQuestionId,omitempty"`
	QuestionStartedAt    time.Time                 `json:"questionStartedAt"`
	QuestionSeconds      int                       `json:"questionSeconds"`
	RemainingSeconds     int                       `json:"remainingSeconds"`
	InputEnabled         bool                      `json:"inputEnabled"`
	Answers              map[int]string            `json:"answers"`
	Score                int                       `json:"score"`
	AnsweredCurrent      bool                      `json:"answeredCurrent"`
	AnsweredCount        int                       `json:"answeredCount"`
	ParticipantCount     int                       `json:"participantCount"`
	Leaderboard          []domain.LeaderboardEntry `json:"leaderboard,omitempty"`
}

// BuildView derives the client view for userID from a room and its participants.
func BuildView(room domain.Room, participants []domain.Participant, userID string, now time.Time) RoomView {
	view := RoomView{
		RoomID:           room.ID,
		JoinCode:         room.JoinCode,
		Name:             room.Name,
		Status:           room.Status,
		HostID:           room.HostID,
		IsHost:           room.HostID == userID,
		TotalQuestions:   len(room.QuestionIDs),
		QuestionSeconds:  room.QuestionSeconds,
		Answers:          map[int]string{},
		ParticipantCount: len(participants),
	}

	var self *domain.Participant
	for i := range participants {
		if participants[i].UserID == userID {
			self = &participants[i]
			break
		}
	}
	if self != nil {
		view.Member = true
		view.Answers = self.Clone().Answers
		view.Score = self.Score
	}

	switch room.Status {
	case domain.RoomStatusActive:
		index := room.CurrentQuestionIndex
		view.CurrentQuestionIndex = index
		view.CurrentQuestionID = room.CurrentQuestionID()
		view.QuestionStartedAt = room.QuestionStartedAt
		view.AnsweredCount, view.ParticipantCount = Progress(participants, index)
		view.AnsweredCurrent = self != nil && self.HasAnswered(index)

		timer := TimerFor(room)
		view.RemainingSeconds = int(math.Ceil(timer.Remaining(room.QuestionStartedAt, now).Seconds()))
		view.InputEnabled = self != nil && !view.AnsweredCurrent && !timer.Expired(room.QuestionStartedAt, now)
	case domain.RoomStatusFinished:
		view.CurrentQuestionIndex = room.CurrentQuestionIndex
		view.Leaderboard = Rank(participants, len(room.QuestionIDs))
	}
	return view
}

// RoomSession is the per-client side of a room: it follows the change feed and keeps a view
// reconciled from fresh reads. After any feed loss it starts over from a new snapshot and
// never replays local state.
type RoomSession struct {
	store        RoomStore
	participants *Participants
	retry        RetryPolicy
	now          func() time.Time
	roomID       string
	userID       string

	mu       sync.RWMutex
	view     RoomView
	lastRoom domain.Room
}

func NewRoomSession(store RoomStore, participants *Participants, retry RetryPolicy, roomID, userID string) *RoomSession {
	return &RoomSession{
		store:        store,
		participants: participants,
		retry:        retry,
		now:          time.Now,
		roomID:       roomID,
		userID:       userID,
	}
}

// View returns the last reconciled view.
func (s *RoomSession) View() RoomView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Snapshot reads the room and its participants afresh and rebuilds the view.
func (s *RoomSession) Snapshot(ctx context.Context) (RoomView, error) {
	var (
		room         domain.Room
		participants []domain.Participant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := retryRead(gctx, s.retry, func() (domain.Room, error) {
			return s.store.GetRoom(gctx, s.roomID)
		})
		room = r
		return err
	})
	g.Go(func() error {
		list, err := retryRead(gctx, s.retry, func() ([]domain.Participant, error) {
			return s.store.ListParticipants(gctx, s.roomID)
		})
		participants = list
		return err
	})
	if err := g.Wait(); err != nil {
		return RoomView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Room versions only grow; an older read must not roll the view back.
	if room.Version < s.lastRoom.Version {
		room = s.lastRoom
	}
	s.lastRoom = room
	s.view = BuildView(room, participants, s.userID, s.now())
	return s.view, nil
}

type feed struct {
	events <-chan domain.ChangeEvent
	cancel func()
}

// Run follows the room until ctx is cancelled, calling emit with every reconciled view.
// It returns ctx.Err() on cancellation, or the error that made reconnecting impossible.
func (s *RoomSession) Run(ctx context.Context, emit func(RoomView)) error {
	reconnect := s.retry.backOff(ctx)
	for {
		f, err := retryRead(ctx, s.retry, func() (feed, error) {
			events, cancel, err := s.store.Subscribe(ctx, s.roomID)
			return feed{events: events, cancel: cancel}, err
		})
		if err != nil {
			return err
		}
		err = s.follow(ctx, f.events, emit, reconnect)
		f.cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}

		wait := reconnect.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("room %s change feed lost: %w", s.roomID, domain.ErrStoreUnavailable)
		}
		log.Printf("room %s: change feed lost for %s, reconnecting in %s", s.roomID, s.userID, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// follow emits a fresh snapshot, then one per change event. It returns nil when the feed
// closes underneath it. The snapshot is taken after subscribing so nothing in between is lost.
func (s *RoomSession) follow(ctx context.Context, events <-chan domain.ChangeEvent, emit func(RoomView), reconnect backoff.BackOff) error {
	view, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	reconnect.Reset()
	emit(view)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			// Events only say that something changed; arrival order across keys means nothing.
			view, err := s.Snapshot(ctx)
			if err != nil {
				return err
			}
			emit(view)
		}
	}
}

// Submit records an answer. The view is only refreshed after the store confirmed the write;
// on failure it stays exactly as it was.
func (s *RoomSession) Submit(ctx context.Context, questionIndex int, choiceID string) (SubmitResult, error) {
	res, err := s.participants.SubmitAnswer(ctx, s.roomID, s.userID, questionIndex, choiceID)
	if err != nil {
		return SubmitResult{}, err
	}
	if _, err := s.Snapshot(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("room %s: refresh after answer failed: %v", s.roomID, err)
	}
	return res, nil
}

// Leave deletes the caller's participant record.
func (s *RoomSession) Leave(ctx context.Context) error {
	return s.participants.Leave(ctx, s.roomID, s.userID)
}
