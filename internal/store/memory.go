package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/akkhan00/m5Chat/internal/domain"
)

// Memory keeps everything in process. Used by tests and throwaway dev runs;
// nothing survives a restart.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]domain.Room
	msgs  map[string][]domain.Message // room -> messages in insertion order
}

func NewMemory() *Memory {
	return &Memory{
		rooms: make(map[string]domain.Room),
		msgs:  make(map[string][]domain.Message),
	}
}

func (s *Memory) InsertMessage(ctx context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgs[m.Room] = append(s.msgs[m.Room], *m)
	return nil
}

func (s *Memory) ListLive(ctx context.Context, room string, now time.Time) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, 0)
	for _, m := range s.msgs[room] {
		if m.Live(now) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Memory) ReapExpired(ctx context.Context, now time.Time) ([]Reaped, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reaped []Reaped
	for room, msgs := range s.msgs {
		kept := msgs[:0]
		for _, m := range msgs {
			if m.Live(now) {
				kept = append(kept, m)
			} else {
				reaped = append(reaped, Reaped{ID: m.ID, Room: room})
			}
		}
		s.msgs[room] = kept
	}
	return reaped, nil
}

func (s *Memory) ListActiveRooms(ctx context.Context, now time.Time) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Room
	for name, msgs := range s.msgs {
		live := false
		for _, m := range msgs {
			if m.Live(now) {
				live = true
				break
			}
		}
		if !live {
			continue
		}
		if r, ok := s.rooms[name]; ok {
			out = append(out, r)
		} else {
			out = append(out, domain.Room{Name: name})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Memory) EnsureRoom(ctx context.Context, name string, createdAt time.Time) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rooms[name]; ok {
		return r, nil
	}
	r := domain.Room{Name: name, CreatedAt: createdAt}
	s.rooms[name] = r
	return r, nil
}

func (s *Memory) Ping(ctx context.Context) error { return nil }

func (s *Memory) Close() {}
