package app

import (
	"context"

	"study-room-service/internal/domain"
)

// RoomStore abstracts durable storage of rooms and participants (in-memory, Redis, etc).
// Writes to one key are linearizable; there is no ordering across keys.
type RoomStore interface {
	CreateRoom(ctx context.Context, room domain.Room) (domain.Room, error)
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)
	GetRoomByCode(ctx context.Context, joinCode string) (domain.Room, error)
	// UpdateRoom writes room only if the stored version equals expectedVersion.
	UpdateRoom(ctx context.Context, room domain.Room, expectedVersion int64) (domain.Room, error)

	GetParticipant(ctx context.Context, roomID, userID string) (domain.Participant, error)
	ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error)
	// UpsertParticipant writes p only if the stored version equals expectedVersion.
	// An expectedVersion of 0 means the record must not exist yet.
	UpsertParticipant(ctx context.Context, p domain.Participant, expectedVersion int64) (domain.Participant, error)
	DeleteParticipant(ctx context.Context, roomID, userID string) error

	// Subscribe returns a channel of change events for a room.
	// The caller must invoke the returned cancel function to avoid leaks.
	// The channel is closed when the feed is lost or cancelled.
	Subscribe(ctx context.Context, roomID string) (<-chan domain.ChangeEvent, func(), error)
}

// ContentStore loads read-only question content.
type ContentStore interface {
	QuestionsByModule(ctx context.Context, moduleID string) ([]domain.Question, error)
	// QuestionsByIDs returns the questions that exist; unknown ids are skipped.
	QuestionsByIDs(ctx context.Context, ids []string) ([]domain.Question, error)
}
