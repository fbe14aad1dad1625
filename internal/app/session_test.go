package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"study-room-service/internal/app"
	"study-room-service/internal/domain"
)

func TestBuildViewTimerGatesInput(t *testing.T) {
	start := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	room := domain.Room{
		ID:                "r1",
		HostID:            "host",
		QuestionIDs:       []string{"q1", "q2"},
		Status:            domain.RoomStatusActive,
		QuestionStartedAt: start,
		QuestionSeconds:   30,
	}
	members := []domain.Participant{
		{UserID: "u1", DisplayName: "Alice", Answers: map[int]string{}},
		{UserID: "u2", DisplayName: "Bob", Answers: map[int]string{0: "a"}},
	}

	view := app.BuildView(room, members, "u1", start.Add(10500*time.Millisecond))
	if !view.Member || view.IsHost || view.CurrentQuestionID != "q1" {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.RemainingSeconds != 20 || !view.InputEnabled {
		t.Fatalf("expected 20s left and input enabled, got %d %v", view.RemainingSeconds, view.InputEnabled)
	}
	if view.AnsweredCount != 1 || view.ParticipantCount != 2 {
		t.Fatalf("expected 1 of 2 answered, got %d of %d", view.AnsweredCount, view.ParticipantCount)
	}

	expired := app.BuildView(room, members, "u1", start.Add(31*time.Second))
	if expired.InputEnabled || expired.RemainingSeconds != 0 {
		t.Fatalf("expected expired timer to disable input, got %+v", expired)
	}

	answered := app.BuildView(room, members, "u2", start)
	if !answered.AnsweredCurrent || answered.InputEnabled {
		t.Fatalf("answered participant must not get input, got %+v", answered)
	}

	outsider := app.BuildView(room, members, "host", start)
	if !outsider.IsHost || outsider.Member || outsider.InputEnabled {
		t.Fatalf("host without a record cannot answer, got %+v", outsider)
	}

	room.QuestionSeconds = 0
	untimed := app.BuildView(room, members, "u1", start.Add(time.Hour))
	if !untimed.InputEnabled {
		t.Fatalf("untimed question keeps input enabled")
	}
}

func TestBuildViewFinishedHasLeaderboard(t *testing.T) {
	room := domain.Room{ID: "r1", QuestionIDs: []string{"q1", "q2"}, Status: domain.RoomStatusFinished, CurrentQuestionIndex: 1}
	members := []domain.Participant{
		{UserID: "u1", DisplayName: "Alice", Score: 1},
		{UserID: "u2", DisplayName: "Bob", Score: 2},
	}

	view := app.BuildView(room, members, "stranger", time.Now())
	if view.Member || view.InputEnabled {
		t.Fatalf("non-member gets a read-only view, got %+v", view)
	}
	if len(view.Leaderboard) != 2 || view.Leaderboard[0].UserID != "u2" || view.Leaderboard[0].Percentage != 100 {
		t.Fatalf("unexpected leaderboard %+v", view.Leaderboard)
	}
}

func TestSessionSnapshotRetriesUnavailableStore(t *testing.T) {
	e := newEnv(t)
	room := e.createRoom(t, "host", 2)
	e.join(t, room.ID, "u1", "Alice")

	store := &flakyStore{RoomStore: e.store, failures: 3}
	session := app.NewRoomSession(store, newParticipantsFor(store, e), testRetry, room.ID, "u1")

	view, err := session.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !view.Member || view.Status != domain.RoomStatusWaiting {
		t.Fatalf("unexpected view %+v", view)
	}
	if session.View().RoomID != room.ID {
		t.Fatalf("snapshot must update the session view")
	}
}

func TestSessionRunFollowsChanges(t *testing.T) {
	e := newEnv(t)
	room := e.createRoom(t, "host", 3)
	e.join(t, room.ID, "u1", "Alice")
	session := app.NewRoomSession(e.store, e.participants, testRetry, room.ID, "u1")

	views := runSession(t, session)
	waitForView(t, views, func(v app.RoomView) bool { return v.Status == domain.RoomStatusWaiting })

	ctx := context.Background()
	_, _ = e.coordinator.Start(ctx, room.ID, "host")
	waitForView(t, views, func(v app.RoomView) bool {
		return v.Status == domain.RoomStatusActive && v.InputEnabled
	})

	if _, err := session.Submit(ctx, 0, "a"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if v := session.View(); !v.AnsweredCurrent || v.Score != 1 {
		t.Fatalf("view must reflect a confirmed answer, got %+v", v)
	}

	_, _ = e.coordinator.Advance(ctx, room.ID, "host", 0)
	waitForView(t, views, func(v app.RoomView) bool {
		return v.CurrentQuestionIndex == 1 && !v.AnsweredCurrent && v.InputEnabled
	})
}

func TestSessionRecoversAfterFeedLoss(t *testing.T) {
	e := newEnv(t)
	room := e.createRoom(t, "host", 3)
	e.join(t, room.ID, "u1", "Alice")
	session := app.NewRoomSession(e.store, e.participants, testRetry, room.ID, "u1")

	views := runSession(t, session)
	waitForView(t, views, func(v app.RoomView) bool { return v.Status == domain.RoomStatusWaiting })

	// The host moves on while this client's feed is down.
	ctx := context.Background()
	e.store.DropFeeds(room.ID)
	_, _ = e.coordinator.Start(ctx, room.ID, "host")
	_, _ = e.coordinator.Advance(ctx, room.ID, "host", 0)

	resumed := waitForView(t, views, func(v app.RoomView) bool {
		return v.Status == domain.RoomStatusActive && v.CurrentQuestionIndex == 1
	})
	if len(resumed.Answers) != 0 || resumed.AnsweredCurrent || !resumed.InputEnabled {
		t.Fatalf("resumed view must start question 1 unanswered, got %+v", resumed)
	}

	_, _ = e.coordinator.Advance(ctx, room.ID, "host", 1)
	waitForView(t, views, func(v app.RoomView) bool { return v.CurrentQuestionIndex == 2 })
}

func TestSessionReconnectSeesCurrentState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	room := e.createRoom(t, "host", 3)
	e.join(t, room.ID, "u1", "Alice")
	_, _ = e.coordinator.Start(ctx, room.ID, "host")
	_, _ = e.participants.SubmitAnswer(ctx, room.ID, "u1", 0, "a")

	// The client was away for two questions.
	_, _ = e.coordinator.Advance(ctx, room.ID, "host", 0)
	_, _ = e.coordinator.Advance(ctx, room.ID, "host", 1)

	session := app.NewRoomSession(e.store, e.participants, testRetry, room.ID, "u1")
	views := runSession(t, session)
	view := waitForView(t, views, func(v app.RoomView) bool { return true })
	if view.CurrentQuestionIndex != 2 || view.Answers[0] != "a" || view.AnsweredCurrent {
		t.Fatalf("reconnected view must show the current question and stored answers, got %+v", view)
	}
}

func TestSessionFailedSubmitKeepsView(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	room := e.createRoom(t, "host", 3)
	e.join(t, room.ID, "u1", "Alice")
	_, _ = e.coordinator.Start(ctx, room.ID, "host")

	session := app.NewRoomSession(e.store, e.participants, testRetry, room.ID, "u1")
	before, err := session.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if _, err := session.Submit(ctx, 0, "missing-choice"); !errors.Is(err, domain.ErrChoiceNotFound) {
		t.Fatalf("expected choice not found, got %v", err)
	}
	after := session.View()
	if after.AnsweredCurrent || len(after.Answers) != 0 || !after.InputEnabled {
		t.Fatalf("failed submit must leave the view untouched, got %+v", after)
	}
	if after.CurrentQuestionIndex != before.CurrentQuestionIndex {
		t.Fatalf("view changed on failed submit")
	}
}

func TestSessionLeave(t *testing.T) {
	e := newEnv(t)
	room := e.createRoom(t, "host", 1)
	e.join(t, room.ID, "u1", "Alice")
	session := app.NewRoomSession(e.store, e.participants, testRetry, room.ID, "u1")

	if err := session.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	view, _ := session.Snapshot(context.Background())
	if view.Member {
		t.Fatalf("expected non-member after leave")
	}
}

// runSession starts Run in the background and stops it when the test ends.
func runSession(t *testing.T, session *app.RoomSession) <-chan app.RoomView {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	views := make(chan app.RoomView, 64)
	done := make(chan error, 1)
	go func() {
		done <- session.Run(ctx, func(v app.RoomView) {
			select {
			case views <- v:
			case <-ctx.Done():
			}
		})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("run returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("run did not stop")
		}
	})
	return views
}

func waitForView(t *testing.T, views <-chan app.RoomView, match func(app.RoomView) bool) app.RoomView {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-views:
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("no matching view before deadline")
		}
	}
}
