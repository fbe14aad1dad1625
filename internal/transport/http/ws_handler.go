package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"study-room-service/internal/app"
	"study-room-service/internal/domain"
)

type WSHandler struct {
	coordinator  *app.Coordinator
	participants *app.Participants
	store        app.RoomStore
	retry        app.RetryPolicy
	upgrader     websocket.Upgrader
}

func NewWSHandler(coordinator *app.Coordinator, participants *app.Participants, store app.RoomStore, retry app.RetryPolicy) *WSHandler {
	return &WSHandler{
		coordinator:  coordinator,
		participants: participants,
		store:        store,
		retry:        retry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type advancePayload struct {
	FromIndex int `json:"fromIndex"`
}

type answerPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	ChoiceID      string `json:"choiceId"`
}

type answerResult struct {
	QuestionIndex int  `json:"questionIndex"`
	Correct       bool `json:"correct"`
	Late          bool `json:"late"`
	Duplicate     bool `json:"duplicate"`
	TotalScore    int  `json:"totalScore"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: errorCode(err), Message: err.Error()}}
}

// ServeWS upgrades HTTP requests to websockets, joins the caller to the room behind the join
// code and streams a fresh room view on every change.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if code == "" || userID == "" || displayName == "" {
		http.Error(w, "missing code, userId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	room, _, err := h.participants.JoinByCode(ctx, code, userID, displayName)
	var joinErr error
	if errors.Is(err, domain.ErrRoomClosed) {
		// Finished rooms stay viewable; the caller only gets the read-only results.
		room, err = h.participants.RoomByCode(ctx, code)
		joinErr = domain.ErrRoomClosed
	}
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	session := app.NewRoomSession(h.store, h.participants, h.retry, room.ID, userID)

	send := make(chan outboundMessage[any], 16)
	writerDone := make(chan struct{})
	runDone := make(chan struct{})

	// Only this goroutine writes to conn.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				cancel()
				return
			}
		}
	}()

	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-ctx.Done():
		}
	}

	if joinErr != nil {
		push(errorMessage(joinErr))
	}

	go func() {
		defer close(runDone)
		err := session.Run(ctx, func(view app.RoomView) {
			push(outboundMessage[any]{Type: "view", Payload: view})
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("room %s: session for %s stopped: %v", room.ID, userID, err)
			push(errorMessage(err))
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if done := h.handle(ctx, session, room.ID, userID, inbound, push); done {
			break
		}
	}

	cancel()
	<-runDone
	close(send)
	<-writerDone
}

// handle runs one inbound command. It reports whether the connection should close.
func (h *WSHandler) handle(ctx context.Context, session *app.RoomSession, roomID, userID string, inbound inboundMessage, push func(outboundMessage[any])) bool {
	switch inbound.Type {
	case "start":
		if _, err := h.coordinator.Start(ctx, roomID, userID); err != nil {
			push(errorMessage(err))
		}
	case "advance":
		var payload advancePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid advance payload"}})
			return false
		}
		if _, err := h.coordinator.Advance(ctx, roomID, userID, payload.FromIndex); err != nil {
			push(errorMessage(err))
		}
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "invalid answer payload"}})
			return false
		}
		res, err := session.Submit(ctx, payload.QuestionIndex, payload.ChoiceID)
		if err != nil {
			push(errorMessage(err))
			return false
		}
		push(outboundMessage[any]{Type: "answerResult", Payload: answerResult{
			QuestionIndex: res.QuestionIndex,
			Correct:       res.Correct,
			Late:          res.Late,
			Duplicate:     res.Duplicate,
			TotalScore:    res.Participant.Score,
		}})
		push(outboundMessage[any]{Type: "view", Payload: session.View()})
	case "leave":
		if err := session.Leave(ctx); err != nil {
			push(errorMessage(err))
			return false
		}
		return true
	default:
		push(outboundMessage[any]{Type: "error", Payload: errorPayload{Code: "bad_request", Message: "unsupported message type"}})
	}
	return false
}
