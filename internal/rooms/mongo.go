package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoRoom struct {
	ID           string `bson:"_id"`
	Code         string `bson:"code"`
	Name         string `bson:"name"`
	Visibility   string `bson:"visibility"`
	PasswordHash string `bson:"passwordHash"`
	OwnerID      string `bson:"ownerId"`
	IsActive     bool   `bson:"isActive"`
	DrawingData  string `bson:"drawingData"`
}

type mongoParticipant struct {
	RoomID string `bson:"roomId"`
	UserID string `bson:"userId"`
	Role   string `bson:"role"`
	Banned bool   `bson:"banned"`
}

// MongoStore reads rooms from the "rooms" and "participants" collections.
type MongoStore struct {
	client       *mongo.Client
	rooms        *mongo.Collection
	participants *mongo.Collection
}

// ConnectMongo connects to uri and uses database dbName.
func ConnectMongo(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client:       client,
		rooms:        db.Collection("rooms"),
		participants: db.Collection("participants"),
	}

	_, err = s.participants.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "roomId", Value: 1}, {Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create participant index: %w", err)
	}
	return s, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) PutRoom(ctx context.Context, room Room, drawing json.RawMessage) error {
	normalizeRoom(&room)

	doc := mongoRoom{
		ID:           room.ID,
		Code:         room.Code,
		Name:         room.Name,
		Visibility:   string(room.Visibility),
		PasswordHash: room.PasswordHash,
		OwnerID:      room.OwnerID,
		IsActive:     room.IsActive,
		DrawingData:  string(drawingOrEmpty(drawing)),
	}
	_, err := s.rooms.ReplaceOne(ctx, bson.M{"_id": room.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert room: %w", err)
	}

	if _, err := s.participants.DeleteMany(ctx, bson.M{"roomId": room.ID}); err != nil {
		return fmt.Errorf("clear participants: %w", err)
	}
	if len(room.Participants) == 0 {
		return nil
	}
	docs := make([]any, len(room.Participants))
	for i, p := range room.Participants {
		docs[i] = mongoParticipant{RoomID: room.ID, UserID: p.UserID, Role: string(p.Role), Banned: p.Banned}
	}
	if _, err := s.participants.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("insert participants: %w", err)
	}
	return nil
}

func (s *MongoStore) ValidateMembership(ctx context.Context, userID, roomID string) (Membership, error) {
	r, err := s.findRoom(ctx, roomID)
	if err != nil {
		return Membership{}, err
	}

	var mp mongoParticipant
	err = s.participants.FindOne(ctx, bson.M{"roomId": roomID, "userId": userID}).Decode(&mp)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return membership(r.OwnerID, r.IsActive, userID, nil), nil
	case err != nil:
		return Membership{}, fmt.Errorf("find participant: %w", err)
	}
	p := Participant{UserID: mp.UserID, Role: Role(mp.Role), Banned: mp.Banned}
	return membership(r.OwnerID, r.IsActive, userID, &p), nil
}

func (s *MongoStore) RoomSnapshot(ctx context.Context, roomID string) (*Snapshot, error) {
	r, err := s.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	cursor, err := s.participants.Find(ctx, bson.M{"roomId": roomID},
		options.Find().SetSort(bson.D{{Key: "userId", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	var docs []mongoParticipant
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}

	room := Room{
		ID:           r.ID,
		Code:         r.Code,
		Name:         r.Name,
		Visibility:   Visibility(r.Visibility),
		PasswordHash: r.PasswordHash,
		OwnerID:      r.OwnerID,
		IsActive:     r.IsActive,
	}
	for _, d := range docs {
		room.Participants = append(room.Participants, Participant{UserID: d.UserID, Role: Role(d.Role), Banned: d.Banned})
	}
	return &Snapshot{Room: room, DrawingData: drawingOrEmpty([]byte(r.DrawingData))}, nil
}

func (s *MongoStore) SetBanned(ctx context.Context, userID, roomID string, banned bool) error {
	res, err := s.participants.UpdateOne(ctx,
		bson.M{"roomId": roomID, "userId": userID},
		bson.M{"$set": bson.M{"banned": banned}})
	if err != nil {
		return fmt.Errorf("set banned: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrParticipantNotFound
	}
	return nil
}

func (s *MongoStore) findRoom(ctx context.Context, roomID string) (*mongoRoom, error) {
	var r mongoRoom
	err := s.rooms.FindOne(ctx, bson.M{"_id": roomID}).Decode(&r)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("find room: %w", err)
	}
	return &r, nil
}
