package http

import (
	"errors"
	"net/http"

	"study-room-service/internal/domain"
)

var errorCodes = []struct {
	err    error
	code   string
	status int
}{
	{domain.ErrUnauthorized, "unauthorized", http.StatusUnauthorized},
	{domain.ErrInvalidState, "invalid_state", http.StatusConflict},
	{domain.ErrRoomClosed, "room_closed", http.StatusGone},
	{domain.ErrInsufficientQuestions, "insufficient_questions", http.StatusUnprocessableEntity},
	{domain.ErrInvalidQuestionCount, "invalid_question_count", http.StatusBadRequest},
	{domain.ErrStoreUnavailable, "store_unavailable", http.StatusServiceUnavailable},
	{domain.ErrRoomNotFound, "room_not_found", http.StatusNotFound},
	{domain.ErrParticipantNotFound, "participant_not_found", http.StatusNotFound},
	{domain.ErrAlreadyAnswered, "already_answered", http.StatusConflict},
	{domain.ErrVersionConflict, "version_conflict", http.StatusConflict},
	{domain.ErrJoinCodeTaken, "join_code_taken", http.StatusServiceUnavailable},
	{domain.ErrQuestionNotFound, "question_not_found", http.StatusNotFound},
	{domain.ErrChoiceNotFound, "choice_not_found", http.StatusBadRequest},
}

// errorCode maps a domain error to the stable code sent to clients.
func errorCode(err error) string {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return "internal"
}

func errorStatus(err error) int {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}
