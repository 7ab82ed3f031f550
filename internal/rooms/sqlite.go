package rooms

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS rooms (
		id            TEXT PRIMARY KEY,
		code          TEXT NOT NULL UNIQUE,
		name          TEXT NOT NULL DEFAULT '',
		visibility    TEXT NOT NULL DEFAULT 'private',
		password_hash TEXT NOT NULL DEFAULT '',
		owner_id      TEXT NOT NULL,
		is_active     INTEGER NOT NULL DEFAULT 1,
		drawing_data  TEXT NOT NULL DEFAULT '[]',
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS room_participants (
		room_id   TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		user_id   TEXT NOT NULL,
		role      TEXT NOT NULL DEFAULT 'participant',
		banned    INTEGER NOT NULL DEFAULT 0,
		joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (room_id, user_id)
	)`,
}

// SQLiteStore reads rooms from a SQLite file.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; an in-memory database also lives on a single connection.
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) migrate() error {
	for _, m := range sqliteMigrations {
		if _, err := s.conn.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) PutRoom(ctx context.Context, room Room, drawing json.RawMessage) error {
	normalizeRoom(&room)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rooms (id, code, name, visibility, password_hash, owner_id, is_active, drawing_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			code = excluded.code, name = excluded.name, visibility = excluded.visibility,
			password_hash = excluded.password_hash, owner_id = excluded.owner_id,
			is_active = excluded.is_active, drawing_data = excluded.drawing_data`,
		room.ID, room.Code, room.Name, string(room.Visibility), room.PasswordHash,
		room.OwnerID, room.IsActive, string(drawingOrEmpty(drawing)))
	if err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM room_participants WHERE room_id = ?`, room.ID); err != nil {
		return fmt.Errorf("clear participants: %w", err)
	}
	for _, p := range room.Participants {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO room_participants (room_id, user_id, role, banned) VALUES (?, ?, ?, ?)`,
			room.ID, p.UserID, string(p.Role), p.Banned)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ValidateMembership(ctx context.Context, userID, roomID string) (Membership, error) {
	var (
		ownerID string
		active  bool
		role    sql.NullString
		banned  sql.NullBool
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT r.owner_id, r.is_active, p.role, p.banned
		FROM rooms r
		LEFT JOIN room_participants p ON p.room_id = r.id AND p.user_id = ?
		WHERE r.id = ?`, userID, roomID).Scan(&ownerID, &active, &role, &banned)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Membership{}, ErrRoomNotFound
		}
		return Membership{}, fmt.Errorf("validate membership: %w", err)
	}

	var p *Participant
	if role.Valid {
		p = &Participant{UserID: userID, Role: Role(role.String), Banned: banned.Valid && banned.Bool}
	}
	return membership(ownerID, active, userID, p), nil
}

func (s *SQLiteStore) RoomSnapshot(ctx context.Context, roomID string) (*Snapshot, error) {
	var (
		room       Room
		visibility string
		drawing    string
	)
	err := s.conn.QueryRowContext(ctx, `
		SELECT id, code, name, visibility, password_hash, owner_id, is_active, drawing_data
		FROM rooms WHERE id = ?`, roomID).
		Scan(&room.ID, &room.Code, &room.Name, &visibility, &room.PasswordHash, &room.OwnerID, &room.IsActive, &drawing)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("get room: %w", err)
	}
	room.Visibility = Visibility(visibility)

	rows, err := s.conn.QueryContext(ctx, `
		SELECT user_id, role, banned FROM room_participants
		WHERE room_id = ? ORDER BY joined_at, user_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Participant
		var role string
		if err := rows.Scan(&p.UserID, &role, &p.Banned); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		p.Role = Role(role)
		room.Participants = append(room.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	return &Snapshot{Room: room, DrawingData: drawingOrEmpty([]byte(drawing))}, nil
}

func (s *SQLiteStore) SetBanned(ctx context.Context, userID, roomID string, banned bool) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE room_participants SET banned = ? WHERE room_id = ? AND user_id = ?`,
		banned, roomID, userID)
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	if n == 0 {
		return ErrParticipantNotFound
	}
	return nil
}
