package domain

import "time"

// RoomStatus is the lifecycle stage of a room. It only ever moves forward.
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"
	RoomStatusActive   RoomStatus = "active"
	RoomStatusFinished RoomStatus = "finished"
)

// Rank orders statuses as waiting < active < finished. Unknown statuses rank below waiting.
func (s RoomStatus) Rank() int {
	switch s {
	case RoomStatusWaiting:
		return 1
	case RoomStatusActive:
		return 2
	case RoomStatusFinished:
		return 3
	}
	return 0
}

// Room is one multiplayer quiz session. Only the coordinator writes it.
type Room struct {
	ID                   string     `json:"id"`
	JoinCode             string     `json:"joinCode"`
	Name                 string     `json:"name"`
	ModuleID             string     `json:"moduleId"`
	QuestionIDs          []string   `json:"questionIds"`
	HostID               string     `json:"hostId"`
	Status               RoomStatus `json:"status"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	QuestionStartedAt    time.Time  `json:"questionStartedAt"`
	QuestionSeconds      int        `json:"questionSeconds"` // 0 means untimed
	Version              int64      `json:"version"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// QuestionDuration is the per-question countdown length.
func (r Room) QuestionDuration() time.Duration {
	return time.Duration(r.QuestionSeconds) * time.Second
}

// CurrentQuestionID returns the id of the live question, or "" when the room is not active.
func (r Room) CurrentQuestionID() string {
	if r.Status != RoomStatusActive {
		return ""
	}
	if r.CurrentQuestionIndex < 0 || r.CurrentQuestionIndex >= len(r.QuestionIDs) {
		return ""
	}
	return r.QuestionIDs[r.CurrentQuestionIndex]
}

// IsLastQuestion reports whether the active index points at the final question.
func (r Room) IsLastQuestion() bool {
	return r.CurrentQuestionIndex+1 >= len(r.QuestionIDs)
}

func (r Room) CanStart() bool {
	return r.Status == RoomStatusWaiting
}

func (r Room) CanAdvance() bool {
	return r.Status == RoomStatusActive
}

func (r Room) CanAcceptAnswers() bool {
	return r.Status == RoomStatusActive
}

// Clone returns a copy that shares no slices with r.
func (r Room) Clone() Room {
	out := r
	out.QuestionIDs = append([]string(nil), r.QuestionIDs...)
	return out
}

// Participant is a user's membership and answer record within one room.
type Participant struct {
	RoomID      string         `json:"roomId"`
	UserID      string         `json:"userId"`
	DisplayName string         `json:"displayName"`
	Score       int            `json:"score"`
	Answers     map[int]string `json:"answers"` // question index -> choice id, write-once per key
	JoinedAt    time.Time      `json:"joinedAt"`
	Version     int64          `json:"version"`
}

// HasAnswered reports whether an answer is recorded for the question index.
func (p Participant) HasAnswered(index int) bool {
	_, ok := p.Answers[index]
	return ok
}

// Clone returns a copy that shares no map with p.
func (p Participant) Clone() Participant {
	out := p
	out.Answers = make(map[int]string, len(p.Answers))
	for k, v := range p.Answers {
		out.Answers[k] = v
	}
	return out
}

// QuestionType classifies content. Open-ended questions carry no gradable choice.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeOpenEnded      QuestionType = "open_ended"
)

// Choice represents a possible answer for a question.
type Choice struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	IsCorrect   bool   `json:"isCorrect"`
	Explanation string `json:"explanation,omitempty"`
}

// Question is read-only content owned by the content store.
type Question struct {
	ID       string       `json:"id"`
	ModuleID string       `json:"moduleId"`
	Type     QuestionType `json:"type"`
	Text     string       `json:"text"`
	Choices  []Choice     `json:"choices"`
}

// Graded reports whether the question can be scored in a room.
func (q Question) Graded() bool {
	if q.Type == QuestionTypeOpenEnded {
		return false
	}
	for _, c := range q.Choices {
		if c.IsCorrect {
			return true
		}
	}
	return false
}

// Choice looks up a choice by id.
func (q Question) Choice(id string) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// LeaderboardEntry is a ranked, snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Percentage  int    `json:"percentage"`
}

// Leaderboard captures the ordered scoreboard for a room.
type Leaderboard struct {
	RoomID    string             `json:"roomId"`
	Total     int                `json:"total"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// ChangeKind says which record a change event is about.
type ChangeKind string

const (
	ChangeRoom        ChangeKind = "room"
	ChangeParticipant ChangeKind = "participant"
)

// ChangeEvent is one entry of the room change feed. A nil New* means the record was deleted.
type ChangeEvent struct {
	Kind           ChangeKind   `json:"kind"`
	RoomID         string       `json:"roomId"`
	UserID         string       `json:"userId,omitempty"`
	OldRoom        *Room        `json:"oldRoom,omitempty"`
	NewRoom        *Room        `json:"newRoom,omitempty"`
	OldParticipant *Participant `json:"oldParticipant,omitempty"`
	NewParticipant *Participant `json:"newParticipant,omitempty"`
}
