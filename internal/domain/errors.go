package domain

import "errors"

var (
	// ErrUnauthorized is returned when someone other than the host tries a host-only action.
	ErrUnauthorized = errors.New("caller is not the room host")
	// ErrInvalidState is returned when an action does not fit the room's current status.
	ErrInvalidState = errors.New("invalid room state for this action")
	// ErrRoomClosed is returned when a non-member tries to join a finished room.
	ErrRoomClosed = errors.New("room is closed")
	// ErrInsufficientQuestions means the module cannot supply the requested number of questions.
	ErrInsufficientQuestions = errors.New("not enough eligible questions")
	// ErrStoreUnavailable wraps transient I/O failures of the room or content store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrRoomNotFound indicates no room exists for the given id or join code.
	ErrRoomNotFound = errors.New("room not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrAlreadyAnswered is returned when a different choice is submitted for an answered question.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrVersionConflict is returned by conditional writes when the stored version moved on.
	ErrVersionConflict = errors.New("record version conflict")
	// ErrJoinCodeTaken is returned when a new room collides with an existing join code.
	ErrJoinCodeTaken = errors.New("join code already in use")
	// ErrQuestionNotFound indicates a question id could not be resolved in the content store.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrChoiceNotFound indicates a submitted choice id is not part of the question.
	ErrChoiceNotFound = errors.New("choice not found")
	// ErrInvalidQuestionCount is returned when a room asks for zero or fewer questions.
	ErrInvalidQuestionCount = errors.New("question count must be positive")
)
