package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	sqlite3 "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// Sentinel errors returned by store operations. Callers match these with
// errors.Is to distinguish failure classes.
var (
	// ErrConstraint reports that a write violated a database constraint,
	// e.g. a message referencing a deleted room or user, or a duplicate
	// username/email.
	ErrConstraint = errors.New("store: constraint violation")

	// ErrNotFound reports that the requested record does not exist.
	ErrNotFound = errors.New("store: not found")
)

// DB wraps the SQLite database holding users, rooms, and messages.
type DB struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if necessary) the SQLite database at path and applies
// the schema. The returned DB is safe for concurrent use.
func Open(path string, logger zerolog.Logger) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite prefers a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &DB{db: db, log: logger}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("sqlite store opened")
	return s, nil
}

func (s *DB) migrate(ctx context.Context) error {
	b, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *DB) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// classify maps SQLite driver errors onto the store sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var serr *sqlite3.Error
	if errors.As(err, &serr) && serr.Code()&0xff == 19 { // SQLITE_CONSTRAINT
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	}
	return err
}

// SaveMessage appends one message row for a room and user and returns the new
// message id. Payload is the serialized event exactly as broadcast. A missing
// room or user surfaces as ErrConstraint.
func (s *DB) SaveMessage(ctx context.Context, roomID, userID int64, payload string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(content, user_id, room_id, created_at) VALUES(?,?,?,?)`,
		payload, userID, roomID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, classify(err)
	}
	return res.LastInsertId()
}

// RecentMessages returns up to limit of the newest messages for a room in
// chronological order. A non-positive limit falls back to 100.
func (s *DB) RecentMessages(ctx context.Context, roomID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, user_id, room_id, created_at FROM messages
		 WHERE room_id = ? ORDER BY id DESC LIMIT ?`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var created string
		if err := rows.Scan(&m.ID, &m.Content, &m.UserID, &m.RoomID, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTime(created)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Newest-first from the query; flip to chronological for clients.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CreateUser inserts a new user with an already-hashed password.
func (s *DB) CreateUser(ctx context.Context, username, email, passwordHash string) (User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(username, email, hashed_password, created_at, updated_at) VALUES(?,?,?,?,?)`,
		username, email, passwordHash, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return User{}, classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, err
	}
	return User{ID: id, Username: username, Email: email, PasswordHash: passwordHash, CreatedAt: now, UpdatedAt: now}, nil
}

// UserByID fetches a single user record.
func (s *DB) UserByID(ctx context.Context, id int64) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, hashed_password, created_at, updated_at FROM users WHERE id = ?`, id))
}

// UserByUsername fetches a user by exact username.
func (s *DB) UserByUsername(ctx context.Context, username string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, hashed_password, created_at, updated_at FROM users WHERE username = ?`, username))
}

// UserByEmail fetches a user by exact email.
func (s *DB) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, username, email, hashed_password, created_at, updated_at FROM users WHERE email = ?`, email))
}

func (s *DB) scanUser(row *sql.Row) (User, error) {
	var u User
	var created, updated string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &created, &updated)
	if err != nil {
		return User{}, classify(err)
	}
	u.CreatedAt = parseTime(created)
	u.UpdatedAt = parseTime(updated)
	return u, nil
}

// DeleteUser removes a user and, via cascade, their rooms and messages.
func (s *DB) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateRoom inserts a new room owned by creatorID.
func (s *DB) CreateRoom(ctx context.Context, name, description string, creatorID int64) (Room, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms(name, description, creator_id, created_at, updated_at) VALUES(?,?,?,?,?)`,
		name, description, creatorID, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Room{}, classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Room{}, err
	}
	return Room{ID: id, Name: name, Description: description, CreatorID: creatorID, CreatedAt: now, UpdatedAt: now}, nil
}

// Rooms lists every room, oldest first.
func (s *DB) Rooms(ctx context.Context) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, creator_id, created_at, updated_at FROM rooms ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var r Room
		var created, updated string
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatorID, &created, &updated); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(created)
		r.UpdatedAt = parseTime(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRoom removes a room and, via cascade, its messages.
func (s *DB) DeleteRoom(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RenameRoom updates only the room name.
func (s *DB) RenameRoom(ctx context.Context, id int64, name string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
