package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"study-room-service/internal/domain"
)

// RoomStore keeps rooms and participants in Redis so every instance sees the same rooms.
// Layout:
//
//	room:{id}                          JSON room
//	room:code:{code}                   room id, claimed with SETNX
//	room:{id}:participant:{userId}     JSON participant
//	room:{id}:participants             set of user ids
//	room:{id}:changes                  pub/sub channel of JSON change events
//
// Conditional writes use WATCH/MULTI so a stale version never overwrites a newer one.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{client: client, ttl: ttl}
}

func (s *RoomStore) CreateRoom(ctx context.Context, room domain.Room) (domain.Room, error) {
	ok, err := s.client.SetNX(ctx, codeKey(room.JoinCode), room.ID, s.ttl).Result()
	if err != nil {
		return domain.Room{}, unavailable(err)
	}
	if !ok {
		return domain.Room{}, domain.ErrJoinCodeTaken
	}

	room = room.Clone()
	room.Version = 1
	data, err := json.Marshal(room)
	if err != nil {
		return domain.Room{}, err
	}
	created, err := s.client.SetNX(ctx, roomKey(room.ID), data, s.ttl).Result()
	if err != nil || !created {
		_ = s.client.Del(ctx, codeKey(room.JoinCode)).Err()
		if err != nil {
			return domain.Room{}, unavailable(err)
		}
		return domain.Room{}, domain.ErrVersionConflict
	}
	return room, nil
}

func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	return getRoom(ctx, s.client, roomID)
}

func (s *RoomStore) GetRoomByCode(ctx context.Context, joinCode string) (domain.Room, error) {
	roomID, err := s.client.Get(ctx, codeKey(joinCode)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, unavailable(err)
	}
	return s.GetRoom(ctx, roomID)
}

func (s *RoomStore) UpdateRoom(ctx context.Context, room domain.Room, expectedVersion int64) (domain.Room, error) {
	key := roomKey(room.ID)
	var updated domain.Room
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := getRoom(ctx, tx, room.ID)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return domain.ErrVersionConflict
		}

		updated = room.Clone()
		updated.JoinCode = current.JoinCode
		updated.Version = expectedVersion + 1
		data, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		event, err := json.Marshal(domain.ChangeEvent{Kind: domain.ChangeRoom, RoomID: room.ID, OldRoom: &current, NewRoom: &updated})
		if err != nil {
			return err
		}
		members, err := tx.SMembers(ctx, membersKey(room.ID)).Result()
		if err != nil {
			return unavailable(err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			s.touch(ctx, pipe, current, members)
			pipe.Publish(ctx, changesChannel(room.ID), event)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return domain.Room{}, translate(err)
	}
	return updated, nil
}

func (s *RoomStore) GetParticipant(ctx context.Context, roomID, userID string) (domain.Participant, error) {
	return getParticipant(ctx, s.client, roomID, userID)
}

func (s *RoomStore) ListParticipants(ctx context.Context, roomID string) ([]domain.Participant, error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	userIDs, err := s.client.SMembers(ctx, membersKey(roomID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(userIDs) == 0 {
		return []domain.Participant{}, nil
	}

	keys := make([]string, len(userIDs))
	for i, userID := range userIDs {
		keys[i] = participantKey(roomID, userID)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	out := make([]domain.Participant, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// left between SMEMBERS and MGET
			continue
		}
		var p domain.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("decode participant: %w", err)
		}
		out = append(out, normalizeParticipant(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *RoomStore) UpsertParticipant(ctx context.Context, p domain.Participant, expectedVersion int64) (domain.Participant, error) {
	key := participantKey(p.RoomID, p.UserID)
	var saved domain.Participant
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		room, err := getRoom(ctx, tx, p.RoomID)
		if err != nil {
			return err
		}

		current, err := getParticipant(ctx, tx, p.RoomID, p.UserID)
		found := err == nil
		if err != nil && !errors.Is(err, domain.ErrParticipantNotFound) {
			return err
		}
		switch {
		case expectedVersion == 0 && found:
			return domain.ErrVersionConflict
		case expectedVersion != 0 && (!found || current.Version != expectedVersion):
			return domain.ErrVersionConflict
		}

		saved = p.Clone()
		saved.Version = expectedVersion + 1
		data, err := json.Marshal(saved)
		if err != nil {
			return err
		}
		ev := domain.ChangeEvent{Kind: domain.ChangeParticipant, RoomID: p.RoomID, UserID: p.UserID, NewParticipant: &saved}
		if found {
			ev.OldParticipant = &current
		}
		event, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		members, err := tx.SMembers(ctx, membersKey(p.RoomID)).Result()
		if err != nil {
			return unavailable(err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			pipe.SAdd(ctx, membersKey(p.RoomID), p.UserID)
			s.touch(ctx, pipe, room, members)
			pipe.Publish(ctx, changesChannel(p.RoomID), event)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return domain.Participant{}, translate(err)
	}
	return saved, nil
}

func (s *RoomStore) DeleteParticipant(ctx context.Context, roomID, userID string) error {
	key := participantKey(roomID, userID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := getParticipant(ctx, tx, roomID, userID)
		if errors.Is(err, domain.ErrParticipantNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		event, err := json.Marshal(domain.ChangeEvent{Kind: domain.ChangeParticipant, RoomID: roomID, UserID: userID, OldParticipant: &current})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, membersKey(roomID), userID)
			pipe.Publish(ctx, changesChannel(roomID), event)
			return nil
		})
		return err
	}, key)
	return translate(err)
}

// Subscribe listens on the room's change channel. The returned channel is closed when the
// subscription breaks, so callers resubscribe and re-read instead of trusting a silent gap.
func (s *RoomStore) Subscribe(ctx context.Context, roomID string) (<-chan domain.ChangeEvent, func(), error) {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return nil, nil, err
	}
	pubsub := s.client.Subscribe(ctx, changesChannel(roomID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, unavailable(err)
	}

	out := make(chan domain.ChangeEvent, 16)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		defer cancel()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				select {
				case <-done:
				default:
					if ctx.Err() == nil {
						log.Printf("room %s: change subscription ended: %v", roomID, err)
					}
				}
				return
			}
			var ev domain.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("room %s: skip malformed change event: %v", roomID, err)
				continue
			}
			select {
			case out <- ev:
			case <-done:
				return
			}
		}
	}()
	return out, cancel, nil
}

// touch resets the TTL of every key that belongs to room. A room's records, its join code
// included, expire together.
func (s *RoomStore) touch(ctx context.Context, pipe redis.Pipeliner, room domain.Room, members []string) {
	if s.ttl <= 0 {
		return
	}
	pipe.Expire(ctx, roomKey(room.ID), s.ttl)
	pipe.Expire(ctx, codeKey(room.JoinCode), s.ttl)
	pipe.Expire(ctx, membersKey(room.ID), s.ttl)
	for _, userID := range members {
		pipe.Expire(ctx, participantKey(room.ID, userID), s.ttl)
	}
}

// getter is the subset shared by *redis.Client and *redis.Tx that reads need.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getRoom(ctx context.Context, c getter, roomID string) (domain.Room, error) {
	raw, err := c.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, unavailable(err)
	}
	var room domain.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return domain.Room{}, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return room, nil
}

func getParticipant(ctx context.Context, c getter, roomID, userID string) (domain.Participant, error) {
	raw, err := c.Get(ctx, participantKey(roomID, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, unavailable(err)
	}
	var p domain.Participant
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Participant{}, fmt.Errorf("decode participant %s: %w", userID, err)
	}
	return normalizeParticipant(p), nil
}

func normalizeParticipant(p domain.Participant) domain.Participant {
	if p.Answers == nil {
		p.Answers = map[int]string{}
	}
	return p
}

// translate maps transaction outcomes to domain errors. Domain sentinels pass through.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return domain.ErrVersionConflict
	case errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrParticipantNotFound),
		errors.Is(err, domain.ErrStoreUnavailable):
		return err
	default:
		return unavailable(err)
	}
}

func unavailable(err error) error {
	return fmt.Errorf("redis: %v: %w", err, domain.ErrStoreUnavailable)
}

func roomKey(roomID string) string {
	return "room:" + roomID
}

func codeKey(code string) string {
	return "room:code:" + code
}

func participantKey(roomID, userID string) string {
	return "room:" + roomID + ":participant:" + userID
}

func membersKey(roomID string) string {
	return "room:" + roomID + ":participants"
}

func changesChannel(roomID string) string {
	return "room:" + roomID + ":changes"
}
