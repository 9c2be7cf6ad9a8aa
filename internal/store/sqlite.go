package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/akkhan00/m5Chat/internal/domain"
)

// SQLite stores rows in a single local file. All timestamps are normalized
// to UTC before binding so SQLite's text comparison stays chronological.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and creates, if needed) the database at path.
// If path is empty, defaults to "./data/m5chat.db".
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = "./data/m5chat.db"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	s := &SQLite{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		name TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		room TEXT NOT NULL,
		username TEXT NOT NULL,
		content TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'text',
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room, created_at);
	CREATE INDEX IF NOT EXISTS idx_messages_expires ON messages(expires_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLite) InsertMessage(ctx context.Context, m *domain.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, room, username, content, kind, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Room, m.Author, m.Content, string(m.Kind), m.CreatedAt.UTC(), m.ExpiresAt.UTC())
	return err
}

func (s *SQLite) ListLive(ctx context.Context, room string, now time.Time) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room, username, content, kind, created_at, expires_at
		FROM messages
		WHERE room = ? AND expires_at > ?
		ORDER BY created_at ASC
	`, room, now.UTC())
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

func (s *SQLite) ReapExpired(ctx context.Context, now time.Time) ([]Reaped, error) {
	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM messages WHERE expires_at <= ? RETURNING id, room
	`, now.UTC())
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

func (s *SQLite) ListActiveRooms(ctx context.Context, now time.Time) ([]domain.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.name, r.created_at
		FROM rooms r
		WHERE EXISTS (
			SELECT 1 FROM messages m
			WHERE m.room = r.name AND m.expires_at > ?
		)
		ORDER BY r.created_at DESC, r.name ASC
	`, now.UTC())
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

func (s *SQLite) EnsureRoom(ctx context.Context, name string, createdAt time.Time) (domain.Room, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO rooms (name, created_at) VALUES (?, ?)
	`, name, createdAt.UTC())
	if err != nil {
		return domain.Room{}, err
	}

	var r domain.Room
	err = s.db.QueryRowContext(ctx, `
		SELECT name, created_at FROM rooms WHERE name = ?
	`, name).Scan(&r.Name, &r.CreatedAt)
	return r, err
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() {
	_ = s.db.Close()
}
