package http

import (
	"encoding/json"
	"log"
	"net/http"

	"study-room-service/internal/app"
)

// RoomDefaults fill in fields a create request leaves out.
type RoomDefaults struct {
	QuestionCount   int
	QuestionSeconds int
}

type RoomsHandler struct {
	coordinator  *app.Coordinator
	participants *app.Participants
	defaults     RoomDefaults
}

func NewRoomsHandler(coordinator *app.Coordinator, participants *app.Participants, defaults RoomDefaults) *RoomsHandler {
	return &RoomsHandler{coordinator: coordinator, participants: participants, defaults: defaults}
}

// Register mounts the room endpoints on mux.
func (h *RoomsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /rooms", h.CreateRoom)
	mux.HandleFunc("GET /rooms/{code}", h.GetRoom)
	mux.HandleFunc("GET /rooms/{code}/results", h.Results)
}

type createRoomRequest struct {
	Name            string `json:"name"`
	HostID          string `json:"hostId"`
	ModuleID        string `json:"moduleId"`
	QuestionCount   *int   `json:"questionCount"`
	QuestionSeconds *int   `json:"questionSeconds"`
}

func (h *RoomsHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: "invalid JSON body"})
		return
	}
	if req.ModuleID == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "bad_request", Message: "moduleId is required"})
		return
	}

	create := app.CreateRoomRequest{
		Name:            req.Name,
		HostID:          req.HostID,
		ModuleID:        req.ModuleID,
		QuestionCount:   h.defaults.QuestionCount,
		QuestionSeconds: h.defaults.QuestionSeconds,
	}
	if req.QuestionCount != nil {
		create.QuestionCount = *req.QuestionCount
	}
	if req.QuestionSeconds != nil {
		create.QuestionSeconds = *req.QuestionSeconds
	}

	room, err := h.coordinator.CreateRoom(r.Context(), create)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (h *RoomsHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.participants.RoomByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *RoomsHandler) Results(w http.ResponseWriter, r *http.Request) {
	room, err := h.participants.RoomByCode(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	board, err := h.participants.Results(r.Context(), room.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, errorPayload{Code: errorCode(err), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
