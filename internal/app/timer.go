package app

import (
	"time"

	"study-room-service/internal/domain"
)

// QuestionTimer is the advisory per-question countdown. It gates input on the client only;
// nothing on the server rejects an answer because the timer ran out.
type QuestionTimer struct {
	Duration time.Duration
}

func TimerFor(room domain.Room) QuestionTimer {
	return QuestionTimer{Duration: room.QuestionDuration()}
}

// Remaining returns duration - (now - startedAt), clamped to [0, duration].
// An untimed question (zero duration) always reports 0.
func (t QuestionTimer) Remaining(startedAt, now time.Time) time.Duration {
	if t.Duration <= 0 {
		return 0
	}
	left := t.Duration - now.Sub(startedAt)
	if left < 0 {
		return 0
	}
	if left > t.Duration {
		return t.Duration
	}
	return left
}

// Expired reports whether a timed question has run out.
func (t QuestionTimer) Expired(startedAt, now time.Time) bool {
	return t.Duration > 0 && t.Remaining(startedAt, now) == 0
}
