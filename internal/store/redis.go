package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akkhan00/m5Chat/internal/domain"
)

const roomsKey = "rooms"

// Redis keeps each room's messages in a sorted set scored by expiry time.
// The TTL is fixed, so expiry order equals creation order and score ranges
// double as liveness filters.
type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Redis{client: client}, nil
}

func roomMessagesKey(room string) string {
	return fmt.Sprintf("room:%s:messages", room)
}

// redisMessage is the JSON shape stored as a sorted-set member.
type redisMessage struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type redisRoom struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Redis) InsertMessage(ctx context.Context, m *domain.Message) error {
	data, err := json.Marshal(redisMessage{
		ID:        m.ID,
		Room:      m.Room,
		Username:  m.Author,
		Content:   m.Content,
		Kind:      string(m.Kind),
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
	})
	if err != nil {
		return err
	}

	key := roomMessagesKey(m.Room)
	if err := s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(m.ExpiresAt.UnixMilli()),
		Member: string(data),
	}).Err(); err != nil {
		return err
	}

	// The newest message bounds the key's lifetime.
	s.client.Expire(ctx, key, domain.MessageTTL+time.Minute)
	return nil
}

func (s *Redis) ListLive(ctx context.Context, room string, now time.Time) ([]domain.Message, error) {
	results, err := s.client.ZRangeByScore(ctx, roomMessagesKey(room), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(now.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(results))
	for _, data := range results {
		var rm redisMessage
		if err := json.Unmarshal([]byte(data), &rm); err != nil {
			continue
		}
		out = append(out, domain.Message{
			ID:        rm.ID,
			Room:      rm.Room,
			Author:    rm.Username,
			Content:   rm.Content,
			Kind:      domain.MessageKind(rm.Kind),
			CreatedAt: rm.CreatedAt,
			ExpiresAt: rm.ExpiresAt,
		})
	}
	return out, nil
}

func (s *Redis) ReapExpired(ctx context.Context, now time.Time) ([]Reaped, error) {
	rooms, err := s.client.HKeys(ctx, roomsKey).Result()
	if err != nil {
		return nil, err
	}

	cutoff := strconv.FormatInt(now.UnixMilli(), 10)
	var reaped []Reaped
	for _, room := range rooms {
		key := roomMessagesKey(room)

		var rangeCmd *redis.StringSliceCmd
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			rangeCmd = pipe.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: cutoff})
			pipe.ZRemRangeByScore(ctx, key, "-inf", cutoff)
			return nil
		})
		if err != nil {
			return nil, err
		}

		for _, data := range rangeCmd.Val() {
			var rm redisMessage
			if err := json.Unmarshal([]byte(data), &rm); err != nil {
				continue
			}
			reaped = append(reaped, Reaped{ID: rm.ID, Room: room})
		}
	}
	return reaped, nil
}

func (s *Redis) ListActiveRooms(ctx context.Context, now time.Time) ([]domain.Room, error) {
	entries, err := s.client.HGetAll(ctx, roomsKey).Result()
	if err != nil {
		return nil, err
	}

	liveMin := "(" + strconv.FormatInt(now.UnixMilli(), 10)
	var out []domain.Room
	for name, raw := range entries {
		n, err := s.client.ZCount(ctx, roomMessagesKey(name), liveMin, "+inf").Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}
		var rr redisRoom
		if err := json.Unmarshal([]byte(raw), &rr); err != nil {
			continue
		}
		out = append(out, domain.Room{Name: rr.Name, CreatedAt: rr.CreatedAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Redis) EnsureRoom(ctx context.Context, name string, createdAt time.Time) (domain.Room, error) {
	data, err := json.Marshal(redisRoom{Name: name, CreatedAt: createdAt})
	if err != nil {
		return domain.Room{}, err
	}
	if err := s.client.HSetNX(ctx, roomsKey, name, string(data)).Err(); err != nil {
		return domain.Room{}, err
	}

	raw, err := s.client.HGet(ctx, roomsKey, name).Result()
	if err != nil {
		return domain.Room{}, err
	}
	var rr redisRoom
	if err := json.Unmarshal([]byte(raw), &rr); err != nil {
		return domain.Room{}, err
	}
	return domain.Room{Name: rr.Name, CreatedAt: rr.CreatedAt}, nil
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Close() {
	_ = s.client.Close()
}
