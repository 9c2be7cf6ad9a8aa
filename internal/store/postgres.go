package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akkhan00/m5Chat/internal/domain"
)

type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres builds a pgx pool from dsn, pings it, and ensures the schema.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Postgres{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		name TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		room TEXT NOT NULL,
		username TEXT NOT NULL,
		content TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_expires ON messages (expires_at);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Postgres) InsertMessage(ctx context.Context, m *domain.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, room, username, content, kind, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.Room, m.Author, m.Content, string(m.Kind), m.CreatedAt, m.ExpiresAt)
	return err
}

func (s *Postgres) ListLive(ctx context.Context, room string, now time.Time) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, room, username, content, kind, created_at, expires_at
		FROM messages
		WHERE room = $1 AND expires_at > $2
		ORDER BY created_at ASC
	`, room, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		var m domain.Message
		var kind string
		if err := rows.Scan(&m.ID, &m.Room, &m.Author, &m.Content, &kind, &m.CreatedAt, &m.ExpiresAt); err != nil {
			return nil, err
		}
		m.Kind = domain.MessageKind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Postgres) ReapExpired(ctx context.Context, now time.Time) ([]Reaped, error) {
	rows, err := s.pool.Query(ctx, `
		DELETE FROM messages WHERE expires_at <= $1 RETURNING id, room
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reaped []Reaped
	for rows.Next() {
		var r Reaped
		if err := rows.Scan(&r.ID, &r.Room); err != nil {
			return nil, err
		}
		reaped = append(reaped, r)
	}
	return reaped, rows.Err()
}

func (s *Postgres) ListActiveRooms(ctx context.Context, now time.Time) ([]domain.Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.name, r.created_at
		FROM rooms r
		WHERE EXISTS (
			SELECT 1 FROM messages m
			WHERE m.room = r.name AND m.expires_at > $1
		)
		ORDER BY r.created_at DESC, r.name ASC
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		var r domain.Room
		if err := rows.Scan(&r.Name, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) EnsureRoom(ctx context.Context, name string, createdAt time.Time) (domain.Room, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (name, created_at) VALUES ($1, $2)
		ON CONFLICT (name) DO NOTHING
	`, name, createdAt)
	if err != nil {
		return domain.Room{}, err
	}

	var r domain.Room
	err = s.pool.QueryRow(ctx, `
		SELECT name, created_at FROM rooms WHERE name = $1
	`, name).Scan(&r.Name, &r.CreatedAt)
	return r, err
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Close() {
	s.pool.Close()
}
