package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"study-room-service/internal/domain"
)

func TestRoomsEndpoints(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"name": "Chemistry", "hostId": "host", "moduleId": "m1"})
	resp, err := http.Post(srv.URL+"/rooms", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	var room domain.Room
	_ = json.NewDecoder(resp.Body).Decode(&room)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if room.JoinCode != "ABCDEF" || len(room.QuestionIDs) != 2 || room.QuestionSeconds != 30 {
		t.Fatalf("defaults not applied: %+v", room)
	}

	resp, err = http.Get(srv.URL + "/rooms/abcdef")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var fetched domain.Room
	_ = json.NewDecoder(resp.Body).Decode(&fetched)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || fetched.ID != room.ID {
		t.Fatalf("expected room %s, got %d %+v", room.ID, resp.StatusCode, fetched)
	}

	resp, err = http.Get(srv.URL + "/rooms/ABCDEF/results")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	var board domain.Leaderboard
	_ = json.NewDecoder(resp.Body).Decode(&board)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || board.RoomID != room.ID || board.Total != 2 {
		t.Fatalf("unexpected results %d %+v", resp.StatusCode, board)
	}
}

func TestRoomsEndpointErrors(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"bad json", "{", http.StatusBadRequest, "bad_request"},
		{"no module", `{"hostId":"host"}`, http.StatusBadRequest, "bad_request"},
		{"no host", `{"moduleId":"m1"}`, http.StatusUnauthorized, "unauthorized"},
		{"too many", `{"hostId":"host","moduleId":"m1","questionCount":3}`, http.StatusUnprocessableEntity, "insufficient_questions"},
	}
	for _, c := range cases {
		resp, err := http.Post(srv.URL+"/rooms", "application/json", bytes.NewReader([]byte(c.body)))
		if err != nil {
			t.Fatalf("%s: post: %v", c.name, err)
		}
		var payload errorPayload
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if resp.StatusCode != c.status || payload.Code != c.code {
			t.Fatalf("%s: expected %d %s, got %d %s", c.name, c.status, c.code, resp.StatusCode, payload.Code)
		}
	}

	resp, err := http.Get(srv.URL + "/rooms/ZZZZZZ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
