package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.jetify.com/typeid/v2"
)

type seededStore interface {
	Store
	Seeder
}

func sampleRoom(id string) Room {
	return Room{
		ID:         id,
		Code:       "code-" + id,
		Name:       "Design review",
		Visibility: VisibilityPrivate,
		OwnerID:    "alice",
		IsActive:   true,
		Participants: []Participant{
			{UserID: "alice", Role: RoleOwner},
			{UserID: "bob", Role: RoleModerator},
			{UserID: "carol", Role: RoleParticipant},
			{UserID: "mallory", Role: RoleParticipant, Banned: true},
		},
	}
}

// runStoreContract exercises the behavior every backend must share.
func runStoreContract(t *testing.T, s seededStore) {
	ctx := context.Background()
	roomID := typeid.MustGenerate("room").String()
	drawing := json.RawMessage(`[{"id":"el_1","type":"rectangle","x":0,"y":0,"width":10,"height":10}]`)

	if err := s.PutRoom(ctx, sampleRoom(roomID), drawing); err != nil {
		t.Fatalf("PutRoom: %v", err)
	}

	t.Run("membership", func(t *testing.T) {
		cases := []struct {
			user string
			want Membership
		}{
			{"alice", Membership{IsMember: true, Role: RoleOwner}},
			{"bob", Membership{IsMember: true, Role: RoleModerator}},
			{"carol", Membership{IsMember: true, Role: RoleParticipant}},
			{"mallory", Membership{IsMember: true, IsBanned: true, Role: RoleParticipant}},
			{"eve", Membership{}},
		}
		for _, tc := range cases {
			got, err := s.ValidateMembership(ctx, tc.user, roomID)
			if err != nil {
				t.Fatalf("ValidateMembership(%s): %v", tc.user, err)
			}
			if got != tc.want {
				t.Fatalf("ValidateMembership(%s): expected %+v, got %+v", tc.user, tc.want, got)
			}
		}
		if m, _ := s.ValidateMembership(ctx, "mallory", roomID); m.Allowed() {
			t.Fatal("banned participant must not be allowed")
		}
	})

	t.Run("unknown room", func(t *testing.T) {
		if _, err := s.ValidateMembership(ctx, "alice", "room_missing"); !errors.Is(err, ErrRoomNotFound) {
			t.Fatalf("expected ErrRoomNotFound, got %v", err)
		}
		if _, err := s.RoomSnapshot(ctx, "room_missing"); !errors.Is(err, ErrRoomNotFound) {
			t.Fatalf("expected ErrRoomNotFound, got %v", err)
		}
	})

	t.Run("snapshot", func(t *testing.T) {
		snap, err := s.RoomSnapshot(ctx, roomID)
		if err != nil {
			t.Fatalf("RoomSnapshot: %v", err)
		}
		if snap.Room.OwnerID != "alice" || snap.Room.Code != "code-"+roomID || !snap.Room.IsActive {
			t.Fatalf("unexpected room %+v", snap.Room)
		}
		if len(snap.Room.Participants) != 4 {
			t.Fatalf("expected 4 participants, got %d", len(snap.Room.Participants))
		}
		var elements []map[string]any
		if err := json.Unmarshal(snap.DrawingData, &elements); err != nil {
			t.Fatalf("drawing data is not JSON: %v", err)
		}
		if len(elements) != 1 || elements[0]["id"] != "el_1" {
			t.Fatalf("unexpected drawing data %s", snap.DrawingData)
		}
	})

	t.Run("ban and unban", func(t *testing.T) {
		if err := s.SetBanned(ctx, "carol", roomID, true); err != nil {
			t.Fatalf("SetBanned: %v", err)
		}
		if m, _ := s.ValidateMembership(ctx, "carol", roomID); m.Allowed() {
			t.Fatal("expected carol to be banned")
		}
		if err := s.SetBanned(ctx, "carol", roomID, false); err != nil {
			t.Fatalf("SetBanned: %v", err)
		}
		if m, _ := s.ValidateMembership(ctx, "carol", roomID); !m.Allowed() {
			t.Fatal("expected carol to be allowed again")
		}
		if err := s.SetBanned(ctx, "eve", roomID, true); !errors.Is(err, ErrParticipantNotFound) {
			t.Fatalf("expected ErrParticipantNotFound, got %v", err)
		}
	})

	t.Run("inactive room", func(t *testing.T) {
		inactive := sampleRoom(roomID + "_closed")
		inactive.Code = "closed-" + roomID
		inactive.IsActive = false
		if err := s.PutRoom(ctx, inactive, nil); err != nil {
			t.Fatalf("PutRoom: %v", err)
		}
		if m, _ := s.ValidateMembership(ctx, "alice", inactive.ID); m.Allowed() {
			t.Fatal("expected inactive room to deny membership")
		}
		snap, err := s.RoomSnapshot(ctx, inactive.ID)
		if err != nil {
			t.Fatalf("RoomSnapshot: %v", err)
		}
		if string(snap.DrawingData) != "[]" {
			t.Fatalf("expected empty drawing data, got %s", snap.DrawingData)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()
	runStoreContract(t, s)
}

func TestSQLiteStore_File(t *testing.T) {
	path := t.TempDir() + "/nested/rooms.db"
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.PutRoom(context.Background(), sampleRoom("room_a"), nil); err != nil {
		t.Fatalf("PutRoom: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if m, err := s.ValidateMembership(context.Background(), "bob", "room_a"); err != nil || !m.Allowed() {
		t.Fatalf("expected data to survive reopen, got %+v, %v", m, err)
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	runStoreContract(t, s)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := ConnectMongo(ctx, uri, "sketchroom_test")
	if err != nil {
		t.Fatalf("ConnectMongo: %v", err)
	}
	defer s.Close(context.Background())
	runStoreContract(t, s)
}

func TestMembership_OwnerWithoutParticipantRow(t *testing.T) {
	got := membership("alice", true, "alice", nil)
	if !got.Allowed() || got.Role != RoleOwner {
		t.Fatalf("expected owner membership, got %+v", got)
	}
}

func TestRoleCanModerate(t *testing.T) {
	for role, want := range map[Role]bool{RoleOwner: true, RoleModerator: true, RoleParticipant: false, "": false} {
		if got := role.CanModerate(); got != want {
			t.Fatalf("%q.CanModerate() = %v, want %v", role, got, want)
		}
	}
}

func TestSeed(t *testing.T) {
	data := []byte(`{"rooms":[
		{"id":"room_a","code":"AAA","ownerId":"alice","participants":[{"userId":"bob"}],"drawingData":[]},
		{"id":"room_b","code":"BBB","ownerId":"carol","isActive":false}
	]}`)
	s := NewMemoryStore()

	n, err := Seed(context.Background(), s, data)
	if err != nil || n != 2 {
		t.Fatalf("Seed: n=%d err=%v", n, err)
	}

	m, _ := s.ValidateMembership(context.Background(), "bob", "room_a")
	if !m.Allowed() || m.Role != RoleParticipant {
		t.Fatalf("expected bob to be a default participant, got %+v", m)
	}
	if m, _ := s.ValidateMembership(context.Background(), "carol", "room_b"); m.Allowed() {
		t.Fatal("expected explicit isActive=false to be kept")
	}

	snap, _ := s.RoomSnapshot(context.Background(), "room_a")
	if snap.Room.Visibility != VisibilityPrivate {
		t.Fatalf("expected default visibility private, got %q", snap.Room.Visibility)
	}
	ids := make([]string, 0, len(snap.Room.Participants))
	for _, p := range snap.Room.Participants {
		ids = append(ids, p.UserID)
	}
	if !slices.Equal(ids, []string{"bob"}) {
		t.Fatalf("unexpected participants %v", ids)
	}

	if _, err := Seed(context.Background(), s, []byte(`{"rooms":[{"id":`)); err == nil || !strings.Contains(err.Error(), "parse seed file") {
		t.Fatalf("expected parse error, got %v", err)
	}
}
