package app_test

import (
	"testing"
	"time"

	"study-room-service/internal/app"
	"study-room-service/internal/domain"
)

func TestQuestionTimer(t *testing.T) {
	start := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	timer := app.TimerFor(domain.Room{QuestionSeconds: 20})

	cases := []struct {
		at      time.Duration
		left    time.Duration
		expired bool
	}{
		{-5 * time.Second, 20 * time.Second, false},
		{0, 20 * time.Second, false},
		{15 * time.Second, 5 * time.Second, false},
		{20 * time.Second, 0, true},
		{time.Minute, 0, true},
	}
	for _, c := range cases {
		now := start.Add(c.at)
		if got := timer.Remaining(start, now); got != c.left {
			t.Fatalf("at %s: remaining %s, want %s", c.at, got, c.left)
		}
		if got := timer.Expired(start, now); got != c.expired {
			t.Fatalf("at %s: expired %v, want %v", c.at, got, c.expired)
		}
	}

	untimed := app.QuestionTimer{}
	if untimed.Expired(start, start.Add(time.Hour)) || untimed.Remaining(start, start) != 0 {
		t.Fatalf("untimed question never expires")
	}
}
