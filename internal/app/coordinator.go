package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"study-room-service/internal/domain"
)

// maxConflictRetries bounds how often a conditional write re-reads after a version conflict.
const maxConflictRetries = 5

// CreateRoomRequest describes a new room.
type CreateRoomRequest struct {
	Name            string
	HostID          string
	ModuleID        string
	QuestionCount   int
	QuestionSeconds int
}

// Coordinator owns the room state machine. It is the only writer of room records.
type Coordinator struct {
	store        RoomStore
	selector     *QuestionSetSelector
	codes        JoinCodeGenerator
	now          func() time.Time
	newID        func() string
	codeAttempts int
}

type CoordinatorOption func(*Coordinator)

// WithClock overrides the clock used to stamp question start times.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithJoinCodeAttempts sets how many join codes are tried before giving up.
func WithJoinCodeAttempts(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.codeAttempts = n
		}
	}
}

// WithIDGenerator overrides room id generation.
func WithIDGenerator(newID func() string) CoordinatorOption {
	return func(c *Coordinator) { c.newID = newID }
}

func NewCoordinator(store RoomStore, selector *QuestionSetSelector, codes JoinCodeGenerator, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:        store,
		selector:     selector,
		codes:        codes,
		now:          time.Now,
		newID:        uuid.NewString,
		codeAttempts: 5,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateRoom samples the question set and stores a waiting room under a fresh join code.
func (c *Coordinator) CreateRoom(ctx context.Context, req CreateRoomRequest) (domain.Room, error) {
	if req.HostID == "" {
		return domain.Room{}, fmt.Errorf("host id required: %w", domain.ErrUnauthorized)
	}
	if req.QuestionSeconds < 0 {
		req.QuestionSeconds = 0
	}

	ids, err := c.selector.BuildQuestionSet(ctx, req.ModuleID, req.QuestionCount)
	if err != nil {
		return domain.Room{}, err
	}

	room := domain.Room{
		ID:              c.newID(),
		Name:            req.Name,
		ModuleID:        req.ModuleID,
		QuestionIDs:     ids,
		HostID:          req.HostID,
		Status:          domain.RoomStatusWaiting,
		QuestionSeconds: req.QuestionSeconds,
		CreatedAt:       c.now(),
	}

	for attempt := 0; attempt < c.codeAttempts; attempt++ {
		code, err := c.codes.NewCode()
		if err != nil {
			return domain.Room{}, fmt.Errorf("generate join code: %w", err)
		}
		room.JoinCode = code

		created, err := c.store.CreateRoom(ctx, room)
		if errors.Is(err, domain.ErrJoinCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Room{}, err
		}
		return created, nil
	}
	return domain.Room{}, fmt.Errorf("no free join code after %d attempts: %w", c.codeAttempts, domain.ErrJoinCodeTaken)
}

// Start moves a waiting room to its first question.
func (c *Coordinator) Start(ctx context.Context, roomID, callerID string) (domain.Room, error) {
	return c.transition(ctx, roomID, callerID, func(room domain.Room) (domain.Room, bool, error) {
		if !room.CanStart() {
			return room, false, fmt.Errorf("start room in status %s: %w", room.Status, domain.ErrInvalidState)
		}
		if len(room.QuestionIDs) == 0 {
			return room, false, fmt.Errorf("start room without questions: %w", domain.ErrInvalidState)
		}
		room.Status = domain.RoomStatusActive
		room.CurrentQuestionIndex = 0
		room.QuestionStartedAt = c.now()
		return room, true, nil
	})
}

// Advance moves the room past fromIndex, the question the host was looking at.
// If the room already left fromIndex (a duplicate click or retry) or is finished, Advance
// returns the current room without writing.
func (c *Coordinator) Advance(ctx context.Context, roomID, callerID string, fromIndex int) (domain.Room, error) {
	return c.transition(ctx, roomID, callerID, func(room domain.Room) (domain.Room, bool, error) {
		switch room.Status {
		case domain.RoomStatusFinished:
			return room, false, nil
		case domain.RoomStatusActive:
		default:
			return room, false, fmt.Errorf("advance room in status %s: %w", room.Status, domain.ErrInvalidState)
		}
		if room.CurrentQuestionIndex != fromIndex {
			return room, false, nil
		}
		if room.IsLastQuestion() {
			room.Status = domain.RoomStatusFinished
			return room, true, nil
		}
		room.CurrentQuestionIndex++
		room.QuestionStartedAt = c.now()
		return room, true, nil
	})
}

// transition applies fn to the latest room and writes the result conditionally on the version
// that was read. On a conflict the room is re-read and fn re-evaluated, so guards always see
// the state they are about to overwrite.
func (c *Coordinator) transition(ctx context.Context, roomID, callerID string, fn func(domain.Room) (domain.Room, bool, error)) (domain.Room, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		room, err := c.store.GetRoom(ctx, roomID)
		if err != nil {
			return domain.Room{}, err
		}
		if room.HostID != callerID {
			return domain.Room{}, domain.ErrUnauthorized
		}

		next, changed, err := fn(room.Clone())
		if err != nil {
			return domain.Room{}, err
		}
		if !changed {
			return room, nil
		}

		updated, err := c.store.UpdateRoom(ctx, next, room.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return domain.Room{}, err
		}
		return updated, nil
	}
	return domain.Room{}, fmt.Errorf("room %s kept changing: %w", roomID, domain.ErrVersionConflict)
}
