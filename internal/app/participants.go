package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"study-room-service/internal/domain"
)

// SubmitResult summarizes the outcome of a submission for a single user.
type SubmitResult struct {
	Participant   domain.Participant
	QuestionIndex int
	Correct       bool
	// Late is set when the host had already moved past the question.
	Late bool
	// Duplicate is set when the same choice had already been recorded.
	Duplicate bool
}

// Participants contains the join/answer/leave use cases. Each participant record is only
// ever written on behalf of its own user.
type Participants struct {
	store   RoomStore
	content ContentStore
	retry   RetryPolicy
	now     func() time.Time
}

func NewParticipants(store RoomStore, content ContentStore, retry RetryPolicy) *Participants {
	return &Participants{store: store, content: content, retry: retry, now: time.Now}
}

// NewParticipantsWithClock is test-only for deterministic timestamps.
func NewParticipantsWithClock(store RoomStore, content ContentStore, retry RetryPolicy, now func() time.Time) *Participants {
	return &Participants{store: store, content: content, retry: retry, now: now}
}

// Join registers a user in a room, or returns their existing record untouched.
func (s *Participants) Join(ctx context.Context, roomID, userID, displayName string) (domain.Participant, error) {
	if userID == "" {
		return domain.Participant{}, fmt.Errorf("user id required: %w", domain.ErrUnauthorized)
	}
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Participant{}, err
	}
	return s.join(ctx, room, userID, displayName)
}

// JoinByCode resolves a join code and joins the room behind it.
func (s *Participants) JoinByCode(ctx context.Context, joinCode, userID, displayName string) (domain.Room, domain.Participant, error) {
	if userID == "" {
		return domain.Room{}, domain.Participant{}, fmt.Errorf("user id required: %w", domain.ErrUnauthorized)
	}
	code := NormalizeJoinCode(joinCode)
	if !ValidJoinCode(code) {
		return domain.Room{}, domain.Participant{}, fmt.Errorf("join code %q: %w", code, domain.ErrRoomNotFound)
	}
	room, err := s.store.GetRoomByCode(ctx, code)
	if err != nil {
		return domain.Room{}, domain.Participant{}, err
	}
	p, err := s.join(ctx, room, userID, displayName)
	if err != nil {
		return domain.Room{}, domain.Participant{}, err
	}
	return room, p, nil
}

func (s *Participants) join(ctx context.Context, room domain.Room, userID, displayName string) (domain.Participant, error) {
	existing, err := s.store.GetParticipant(ctx, room.ID, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrParticipantNotFound) {
		return domain.Participant{}, err
	}
	if room.Status == domain.RoomStatusFinished {
		return domain.Participant{}, domain.ErrRoomClosed
	}

	created, err := s.store.UpsertParticipant(ctx, domain.Participant{
		RoomID:      room.ID,
		UserID:      userID,
		DisplayName: displayName,
		Answers:     map[int]string{},
		JoinedAt:    s.now(),
	}, 0)
	if errors.Is(err, domain.ErrVersionConflict) {
		// A concurrent join for the same user won; hand back its record.
		return s.store.GetParticipant(ctx, room.ID, userID)
	}
	return created, err
}

// SubmitAnswer records choiceID for the question at questionIndex and recomputes the score.
// Answers for a question the host already moved past are still recorded and scored, and
// flagged Late. Answers for questions not yet shown are rejected.
func (s *Participants) SubmitAnswer(ctx context.Context, roomID, userID string, questionIndex int, choiceID string) (SubmitResult, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return SubmitResult{}, err
	}
	if !room.CanAcceptAnswers() {
		return SubmitResult{}, fmt.Errorf("answer in room status %s: %w", room.Status, domain.ErrInvalidState)
	}
	if questionIndex < 0 || questionIndex > room.CurrentQuestionIndex {
		return SubmitResult{}, fmt.Errorf("answer for question %d while on %d: %w", questionIndex, room.CurrentQuestionIndex, domain.ErrInvalidState)
	}

	questions, err := s.content.QuestionsByIDs(ctx, room.QuestionIDs)
	if err != nil {
		return SubmitResult{}, err
	}
	byID := indexQuestions(questions)
	question, ok := byID[room.QuestionIDs[questionIndex]]
	if !ok {
		return SubmitResult{}, domain.ErrQuestionNotFound
	}
	choice, ok := question.Choice(choiceID)
	if !ok {
		return SubmitResult{}, domain.ErrChoiceNotFound
	}

	result := SubmitResult{
		QuestionIndex: questionIndex,
		Correct:       choice.IsCorrect,
		Late:          questionIndex < room.CurrentQuestionIndex,
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		current, err := s.store.GetParticipant(ctx, roomID, userID)
		if err != nil {
			return SubmitResult{}, err
		}
		if prev, ok := current.Answers[questionIndex]; ok {
			if prev != choiceID {
				return SubmitResult{}, domain.ErrAlreadyAnswered
			}
			result.Participant = current
			result.Duplicate = true
			return result, nil
		}

		// The host may have finished the room since the first read.
		fresh, err := s.store.GetRoom(ctx, roomID)
		if err != nil {
			return SubmitResult{}, err
		}
		if !fresh.CanAcceptAnswers() {
			return SubmitResult{}, fmt.Errorf("answer in room status %s: %w", fresh.Status, domain.ErrInvalidState)
		}
		result.Late = questionIndex < fresh.CurrentQuestionIndex

		next := current.Clone()
		next.Answers[questionIndex] = choiceID
		next.Score = ScoreAnswers(next.Answers, room.QuestionIDs, byID)

		saved, err := s.store.UpsertParticipant(ctx, next, current.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return SubmitResult{}, err
		}
		result.Participant = saved
		return result, nil
	}
	return SubmitResult{}, fmt.Errorf("participant %s kept changing: %w", userID, domain.ErrVersionConflict)
}

// Leave removes the participant record. Rejoining later starts a fresh answer map.
func (s *Participants) Leave(ctx context.Context, roomID, userID string) error {
	return s.store.DeleteParticipant(ctx, roomID, userID)
}

// RoomByCode looks up a room by join code without joining it.
func (s *Participants) RoomByCode(ctx context.Context, joinCode string) (domain.Room, error) {
	code := NormalizeJoinCode(joinCode)
	if !ValidJoinCode(code) {
		return domain.Room{}, fmt.Errorf("join code %q: %w", code, domain.ErrRoomNotFound)
	}
	return retryRead(ctx, s.retry, func() (domain.Room, error) {
		return s.store.GetRoomByCode(ctx, code)
	})
}

// Results ranks everyone in the room. It is available in any status, including to
// non-members of a finished room.
func (s *Participants) Results(ctx context.Context, roomID string) (domain.Leaderboard, error) {
	room, err := retryRead(ctx, s.retry, func() (domain.Room, error) {
		return s.store.GetRoom(ctx, roomID)
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	participants, err := retryRead(ctx, s.retry, func() ([]domain.Participant, error) {
		return s.store.ListParticipants(ctx, roomID)
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return domain.Leaderboard{
		RoomID:    room.ID,
		Total:     len(room.QuestionIDs),
		Entries:   Rank(participants, len(room.QuestionIDs)),
		UpdatedAt: s.now(),
	}, nil
}
