package memory

import (
	"context"
	"sort"
	"sync"

	"study-room-service/internal/domain"
)

// RoomStore is an in-memory implementation of app.RoomStore with a per-room change feed.
type RoomStore struct {
	mu           sync.RWMutex
	rooms        map[string]domain.Room
	codes        map[string]string
	participants map[string]map[string]domain.Participant
	subscribers  map[string]map[chan domain.ChangeEvent]struct{}
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms:        make(map[string]domain.Room),
		codes:        make(map[string]string),
		participants: make(map[string]map[string]domain.Participant),
		subscribers:  make(map[string]map[chan domain.ChangeEvent]struct{}),
	}
}

func (s *RoomStore) CreateRoom(_ context.Context, room domain.Room) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[room.JoinCode]; taken {
		return domain.Room{}, domain.ErrJoinCodeTaken
	}
	if _, exists := s.rooms[room.ID]; exists {
		return domain.Room{}, domain.ErrVersionConflict
	}

	room = room.Clone()
	room.Version = 1
	s.rooms[room.ID] = room
	s.codes[room.JoinCode] = room.ID
	s.participants[room.ID] = make(map[string]domain.Participant)
	return room.Clone(), nil
}

func (s *RoomStore) GetRoom(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (s *RoomStore) GetRoomByCode(ctx context.Context, joinCode string) (domain.Room, error) {
	s.mu.RLock()
	roomID, ok := s.codes[joinCode]
	s.mu.RUnlock()
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return s.GetRoom(ctx, roomID)
}

func (s *RoomStore) UpdateRoom(_ context.Context, room domain.Room, expectedVersion int64) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rooms[room.ID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if current.Version != expectedVersion {
		return domain.Room{}, domain.ErrVersionConflict
	}

	room = room.Clone()
	room.JoinCode = current.JoinCode
	room.Version = expectedVersion + 1
	s.rooms[room.ID] = room

	old, updated := current.Clone(), room.Clone()
	s.broadcastLocked(domain.ChangeEvent{Kind: domain.ChangeRoom, RoomID: room.ID, OldRoom: &old, NewRoom: &updated})
	return room.Clone(), nil
}

func (s *RoomStore) GetParticipant(_ context.Context, roomID, userID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[roomID][userID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p.Clone(), nil
}

func (s *RoomStore) ListParticipants(_ context.Context, roomID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rooms[roomID]; !ok {
		return nil, domain.ErrRoomNotFound
	}
	out := make([]domain.Participant, 0, len(s.participants[roomID]))
	for _, p := range s.participants[roomID] {
		out = append(out, p.Clone())
	}
	sortParticipants(out)
	return out, nil
}

func (s *RoomStore) UpsertParticipant(_ context.Context, p domain.Participant, expectedVersion int64) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.participants[p.RoomID]
	if !ok {
		return domain.Participant{}, domain.ErrRoomNotFound
	}
	current, exists := members[p.UserID]
	switch {
	case expectedVersion == 0 && exists:
		return domain.Participant{}, domain.ErrVersionConflict
	case expectedVersion != 0 && (!exists || current.Version != expectedVersion):
		return domain.Participant{}, domain.ErrVersionConflict
	}

	p = p.Clone()
	p.Version = expectedVersion + 1
	members[p.UserID] = p

	updated := p.Clone()
	ev := domain.ChangeEvent{Kind: domain.ChangeParticipant, RoomID: p.RoomID, UserID: p.UserID, NewParticipant: &updated}
	if exists {
		old := current.Clone()
		ev.OldParticipant = &old
	}
	s.broadcastLocked(ev)
	return p.Clone(), nil
}

func (s *RoomStore) DeleteParticipant(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.participants[roomID][userID]
	if !ok {
		return nil
	}
	delete(s.participants[roomID], userID)
	old := current.Clone()
	s.broadcastLocked(domain.ChangeEvent{Kind: domain.ChangeParticipant, RoomID: roomID, UserID: userID, OldParticipant: &old})
	return nil
}

// Subscribe registers a buffered feed for the room. The feed is also cancelled with ctx.
func (s *RoomStore) Subscribe(ctx context.Context, roomID string) (<-chan domain.ChangeEvent, func(), error) {
	ch := make(chan domain.ChangeEvent, 16)

	s.mu.Lock()
	if _, ok := s.rooms[roomID]; !ok {
		s.mu.Unlock()
		return nil, nil, domain.ErrRoomNotFound
	}
	if s.subscribers[roomID] == nil {
		s.subscribers[roomID] = make(map[chan domain.ChangeEvent]struct{})
	}
	s.subscribers[roomID][ch] = struct{}{}
	s.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			s.mu.Lock()
			if _, ok := s.subscribers[roomID][ch]; ok {
				delete(s.subscribers[roomID], ch)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}

// DropFeeds closes every open feed of a room, as if the connection to the store was lost.
func (s *RoomStore) DropFeeds(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subscribers[roomID] {
		delete(s.subscribers[roomID], ch)
		close(ch)
	}
}

func (s *RoomStore) broadcastLocked(ev domain.ChangeEvent) {
	for ch := range s.subscribers[ev.RoomID] {
		select {
		case ch <- ev:
		default:
			// Readers reconcile from a fresh read, so dropping the oldest hint loses nothing.
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func sortParticipants(list []domain.Participant) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].JoinedAt.Equal(list[j].JoinedAt) {
			return list[i].JoinedAt.Before(list[j].JoinedAt)
		}
		return list[i].UserID < list[j].UserID
	})
}
