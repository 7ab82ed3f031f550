package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	id            TEXT PRIMARY KEY,
	code          TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL DEFAULT '',
	visibility    TEXT NOT NULL DEFAULT 'private',
	password_hash TEXT NOT NULL DEFAULT '',
	owner_id      TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	drawing_data  JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS room_participants (
	room_id   TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	user_id   TEXT NOT NULL,
	role      TEXT NOT NULL DEFAULT 'participant',
	banned    BOOLEAN NOT NULL DEFAULT FALSE,
	joined_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (room_id, user_id)
);
`

// PostgresStore reads rooms from PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate rooms schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) PutRoom(ctx context.Context, room Room, drawing json.RawMessage) error {
	normalizeRoom(&room)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO rooms (id, code, name, visibility, password_hash, owner_id, is_active, drawing_data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				code = EXCLUDED.code, name = EXCLUDED.name, visibility = EXCLUDED.visibility,
				password_hash = EXCLUDED.password_hash, owner_id = EXCLUDED.owner_id,
				is_active = EXCLUDED.is_active, drawing_data = EXCLUDED.drawing_data`,
			room.ID, room.Code, room.Name, string(room.Visibility), room.PasswordHash,
			room.OwnerID, room.IsActive, string(drawingOrEmpty(drawing)))
		if err != nil {
			return fmt.Errorf("upsert room: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM room_participants WHERE room_id = $1`, room.ID); err != nil {
			return fmt.Errorf("clear participants: %w", err)
		}
		for _, p := range room.Participants {
			_, err := tx.Exec(ctx,
				`INSERT INTO room_participants (room_id, user_id, role, banned) VALUES ($1, $2, $3, $4)`,
				room.ID, p.UserID, string(p.Role), p.Banned)
			if err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ValidateMembership(ctx context.Context, userID, roomID string) (Membership, error) {
	var (
		ownerID string
		active  bool
		role    *string
		banned  *bool
	)
	err := s.pool.QueryRow(ctx, `
		SELECT r.owner_id, r.is_active, p.role, p.banned
		FROM rooms r
		LEFT JOIN room_participants p ON p.room_id = r.id AND p.user_id = $2
		WHERE r.id = $1`, roomID, userID).Scan(&ownerID, &active, &role, &banned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Membership{}, ErrRoomNotFound
		}
		return Membership{}, fmt.Errorf("validate membership: %w", err)
	}

	var p *Participant
	if role != nil {
		p = &Participant{UserID: userID, Role: Role(*role), Banned: banned != nil && *banned}
	}
	return membership(ownerID, active, userID, p), nil
}

func (s *PostgresStore) RoomSnapshot(ctx context.Context, roomID string) (*Snapshot, error) {
	var (
		room       Room
		visibility string
		drawing    []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, name, visibility, password_hash, owner_id, is_active, drawing_data
		FROM rooms WHERE id = $1`, roomID).
		Scan(&room.ID, &room.Code, &room.Name, &visibility, &room.PasswordHash, &room.OwnerID, &room.IsActive, &drawing)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("get room: %w", err)
	}
	room.Visibility = Visibility(visibility)

	rows, err := s.pool.Query(ctx, `
		SELECT user_id, role, banned FROM room_participants
		WHERE room_id = $1 ORDER BY joined_at, user_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	room.Participants, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Participant, error) {
		var p Participant
		var role string
		err := row.Scan(&p.UserID, &role, &p.Banned)
		p.Role = Role(role)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan participants: %w", err)
	}

	return &Snapshot{Room: room, DrawingData: drawingOrEmpty(drawing)}, nil
}

func (s *PostgresStore) SetBanned(ctx context.Context, userID, roomID string, banned bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE room_participants SET banned = $3 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID, banned)
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrParticipantNotFound
	}
	return nil
}
