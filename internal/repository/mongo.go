package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/models"
)

// NewMongoClient connects and pings with exponential backoff until maxElapsed.
func NewMongoClient(ctx context.Context, uri string, maxElapsed time.Duration) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	op := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx, nil); err != nil {
			log.Warn().Err(err).Msg("mongo ping failed, retrying")
			return err
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	return client, nil
}

// NewMongoStore wires the collections of db and ensures their indexes.
func NewMongoStore(ctx context.Context, client *mongo.Client, db *mongo.Database) (*Store, error) {
	users := &mongoUsers{coll: db.Collection("users")}
	friends := &mongoFriends{coll: db.Collection("friends")}
	convs := &mongoConversations{
		convs: db.Collection("conversations"),
		msgs:  db.Collection("messages"),
	}

	indexes := map[*mongo.Collection][]mongo.IndexModel{
		users.coll: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetName("email_unique").SetUnique(true).
				SetPartialFilterExpression(bson.M{"email": bson.M{"$gt": ""}})},
			{Keys: bson.D{{Key: "display_name", Value: 1}, {Key: "created_at", Value: 1}}, Options: options.Index().SetName("display_name_idx")},
			{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "provider_subject", Value: 1}}, Options: options.Index().SetName("provider_subject_idx")},
		},
		friends.coll: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "friend_id", Value: 1}}, Options: options.Index().SetName("owner_friend_unique").SetUnique(true)},
		},
		convs.convs: {
			{Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}}, Options: options.Index().SetName("participants_updated_idx")},
		},
		convs.msgs: {
			{Keys: bson.D{{Key: "conversation_key", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}, Options: options.Index().SetName("conversation_created_idx")},
		},
	}
	for coll, ix := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, ix); err != nil {
			return nil, fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}

	return &Store{
		Users:         users,
		Friends:       friends,
		Conversations: convs,
		ping:          func(ctx context.Context) error { return client.Ping(ctx, nil) },
		close:         client.Disconnect,
	}, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s: %w", what, apperrors.ErrNotFound)
	}
	return err
}

type mongoUsers struct {
	coll *mongo.Collection
}

func (r *mongoUsers) Create(ctx context.Context, u *models.User) error {
	u.Email = normalizeEmail(u.Email)
	ts := now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = ts
	}
	u.UpdatedAt = ts
	if _, err := r.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("email %s: %w", u.Email, apperrors.ErrDuplicate)
		}
		return err
	}
	return nil
}

func (r *mongoUsers) findOne(ctx context.Context, filter bson.M, what string) (*models.User, error) {
	var u models.User
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if err := r.coll.FindOne(ctx, filter, opts).Decode(&u); err != nil {
		return nil, notFound(err, what)
	}
	return &u, nil
}

func (r *mongoUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id}, "user "+id)
}

func (r *mongoUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	return r.findOne(ctx, bson.M{"email": email}, "email "+email)
}

func (r *mongoUsers) GetByProviderSubject(ctx context.Context, provider, subject string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"provider": provider, "provider_subject": subject}, "subject "+subject)
}

func (r *mongoUsers) FindByDisplayName(ctx context.Context, name string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"display_name": name}, fmt.Sprintf("display name %q", name))
}

func (r *mongoUsers) update(ctx context.Context, id string, set bson.M) (*models.User, error) {
	set["updated_at"] = now()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var u models.User
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&u); err != nil {
		return nil, notFound(err, "user "+id)
	}
	return &u, nil
}

func (r *mongoUsers) UpdateDisplayName(ctx context.Context, id, name string) (*models.User, error) {
	return r.update(ctx, id, bson.M{"display_name": name})
}

func (r *mongoUsers) UpdateAvatar(ctx context.Context, id, url string) (*models.User, error) {
	return r.update(ctx, id, bson.M{"avatar_url": url})
}

type mongoFriends struct {
	coll *mongo.Collection
}

func (r *mongoFriends) Add(ctx context.Context, ref *models.FriendRef) error {
	ref.CreatedAt = now()
	if _, err := r.coll.InsertOne(ctx, ref); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("friend %s: %w", ref.FriendID, apperrors.ErrDuplicate)
		}
		return err
	}
	return nil
}

func (r *mongoFriends) Remove(ctx context.Context, ownerID, friendID string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"owner_id": ownerID, "friend_id": friendID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("friend %s: %w", friendID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *mongoFriends) Get(ctx context.Context, ownerID, friendID string) (*models.FriendRef, error) {
	var ref models.FriendRef
	if err := r.coll.FindOne(ctx, bson.M{"owner_id": ownerID, "friend_id": friendID}).Decode(&ref); err != nil {
		return nil, notFound(err, "friend "+friendID)
	}
	return &ref, nil
}

func (r *mongoFriends) List(ctx context.Context, ownerID string) ([]models.FriendRef, error) {
	cur, err := r.coll.Find(ctx, bson.M{"owner_id": ownerID}, options.Find().SetSort(bson.D{{Key: "friend_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	out := []models.FriendRef{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type mongoConversations struct {
	convs *mongo.Collection
	msgs  *mongo.Collection
}

func (r *mongoConversations) Upsert(ctx context.Context, c *models.Conversation) error {
	c.UpdatedAt = now()
	set := bson.M{
		"kind":           c.Kind,
		"last_message":   c.LastMessage,
		"last_sender_id": c.LastSenderID,
		"updated_at":     c.UpdatedAt,
	}
	if c.Name != "" {
		set["name"] = c.Name
	}
	update := bson.M{
		"$set":      set,
		"$addToSet": bson.M{"participants": bson.M{"$each": c.Participants}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var out models.Conversation
	if err := r.convs.FindOneAndUpdate(ctx, bson.M{"_id": c.Key}, update, opts).Decode(&out); err != nil {
		return err
	}
	c.Participants = out.Participants
	return nil
}

func (r *mongoConversations) Get(ctx context.Context, key string) (*models.Conversation, error) {
	var c models.Conversation
	if err := r.convs.FindOne(ctx, bson.M{"_id": key}).Decode(&c); err != nil {
		return nil, notFound(err, "conversation "+key)
	}
	return &c, nil
}

func (r *mongoConversations) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := r.convs.Find(ctx, bson.M{"participants": userID}, opts)
	if err != nil {
		return nil, err
	}
	out := []models.Conversation{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mongoConversations) AppendMessage(ctx context.Context, m *models.Message) error {
	m.ID = newMessageID()
	m.CreatedAt = now()
	_, err := r.msgs.InsertOne(ctx, m)
	return err
}

func (r *mongoConversations) page(ctx context.Context, filter bson.M, limit int) ([]models.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(clampLimit(limit)))
	cur, err := r.msgs.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := []models.Message{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	reverseMessages(out)
	return out, nil
}

func (r *mongoConversations) Recent(ctx context.Context, key string, limit int) ([]models.Message, error) {
	return r.page(ctx, bson.M{"conversation_key": key}, limit)
}

func (r *mongoConversations) Before(ctx context.Context, key string, before Cursor, limit int) ([]models.Message, error) {
	filter := bson.M{"conversation_key": key}
	switch {
	case before.IsZero():
	case before.ID == "":
		filter["created_at"] = bson.M{"$lt": before.At}
	default:
		filter["$or"] = bson.A{
			bson.M{"created_at": bson.M{"$lt": before.At}},
			bson.M{"created_at": before.At, "_id": bson.M{"$lt": before.ID}},
		}
	}
	return r.page(ctx, filter, limit)
}
