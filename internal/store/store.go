package store

import (
	"context"
	"fmt"
	"time"

	"github.com/akkhan00/m5Chat/internal/domain"
)

// Store is the durable record of messages and rooms. Every read path filters
// by expiry itself; callers never rely on the reaper having run.
type Store interface {
	// InsertMessage persists m durably before returning. The row is visible
	// to subsequent reads immediately.
	InsertMessage(ctx context.Context, m *domain.Message) error

	// ListLive returns the room's messages with expires_at > now, ordered by
	// creation time ascending. A room with no live messages yields an empty
	// slice, not an error.
	ListLive(ctx context.Context, room string, now time.Time) ([]domain.Message, error)

	// ReapExpired deletes every row across all rooms with expires_at <= now
	// and reports what was deleted. Safe to call concurrently with inserts
	// and reads; calling it again with no intervening inserts deletes nothing.
	ReapExpired(ctx context.Context, now time.Time) ([]Reaped, error)

	// ListActiveRooms returns rooms holding at least one live message,
	// newest room first.
	ListActiveRooms(ctx context.Context, now time.Time) ([]domain.Room, error)

	// EnsureRoom records the room if it is new and returns it. An existing
	// room keeps its original created_at.
	EnsureRoom(ctx context.Context, name string, createdAt time.Time) (domain.Room, error)

	Ping(ctx context.Context) error
	Close()
}

// Reaped identifies one deleted message and the room it belonged to, so the
// caller can notify that room's live connections.
type Reaped struct {
	ID   string
	Room string
}

type Config struct {
	Driver string // postgres | sqlite | redis | memory
	DSN    string
}

// Open selects a backend by driver name.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DSN)
	case "sqlite":
		return NewSQLite(ctx, cfg.DSN)
	case "redis":
		return NewRedis(ctx, cfg.DSN)
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
