// notes/store/mongodb/mongodb.go

// Package mongodb is the MongoDB store backend. Every node is one document
// whose _id is its key. Subscriptions ride on change streams, so the server
// must run as a replica set.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/pathcodec"
	"github.com/ViniZap4/lumi-notes/store"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger zerolog.Logger
}

type nodeDoc struct {
	Key       string      `bson:"_id"`
	Kind      domain.Kind `bson:"kind,omitempty"`
	Content   string      `bson:"content,omitempty"`
	Seq       int64       `bson:"seq"`
	UpdatedAt time.Time   `bson:"updated_at,omitempty"`
}

// Open connects to uri, checks the server answers and ensures indexes.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: failed to ping MongoDB: %v", domain.ErrRemoteUnavailable, err)
	}

	s := &Store{client: client, db: client.Database(database), logger: zerolog.Nop()}
	if err := s.migrate(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	collections := map[string][]mongo.IndexModel{
		"nodes": {
			{Keys: bson.D{{Key: "seq", Value: 1}}},
		},
		"users": {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}

	for name, indexes := range collections {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("mongo migration: failed to create indexes for %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) SetLogger(logger zerolog.Logger) {
	s.logger = logger.With().Str("component", "mongostore").Logger()
}

func (s *Store) nodes() *mongo.Collection { return s.db.Collection("nodes") }
func (s *Store) users() *mongo.Collection { return s.db.Collection("users") }

// below matches every key strictly under key.
func below(key string) bson.Regex {
	if key == "" {
		return bson.Regex{Pattern: "^"}
	}
	return bson.Regex{Pattern: "^" + regexp.QuoteMeta(key+pathcodec.Separator)}
}

// subtree matches key and everything under it.
func subtree(key string) bson.M {
	if key == "" {
		return bson.M{}
	}
	return bson.M{"_id": bson.Regex{Pattern: "^" + regexp.QuoteMeta(key) + "(/|$)"}}
}

func (s *Store) Read(ctx context.Context, key string) (*store.Value, error) {
	var doc nodeDoc
	err := s.nodes().FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	found := err == nil
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	n, err := s.nodes().CountDocuments(ctx, bson.M{"_id": below(key)}, options.Count().SetLimit(1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	switch {
	case n > 0:
		v := store.FolderValue()
		return &v, nil
	case !found:
		return nil, nil
	}
	v := store.Value{Kind: doc.Kind, Content: doc.Content}
	if v.Kind == "" {
		v.Kind = domain.KindNote
	}
	return &v, nil
}

func (s *Store) Write(ctx context.Context, key string, v store.Value) error {
	segs := pathcodec.Decode(key)
	for i := 1; i < len(segs); i++ {
		ancestor, _ := pathcodec.Encode(segs[:i])
		_, err := s.nodes().UpdateOne(ctx,
			bson.M{"_id": ancestor},
			bson.M{"$setOnInsert": bson.M{"kind": domain.KindFolder, "seq": time.Now().UnixNano()}},
			options.UpdateOne().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("write %s: ancestor %s: %w", key, ancestor, err)
		}
	}

	if v.Kind == domain.KindNote {
		if _, err := s.nodes().DeleteMany(ctx, bson.M{"_id": below(key)}); err != nil {
			return fmt.Errorf("write %s: drop subtree: %w", key, err)
		}
	}

	_, err := s.nodes().UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{
			"$set":         bson.M{"kind": v.Kind, "content": v.Content, "updated_at": time.Now().UTC()},
			"$setOnInsert": bson.M{"seq": time.Now().UnixNano()},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Str("kind", string(v.Kind)).Msg("write")
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.nodes().DeleteMany(ctx, subtree(key)); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Msg("delete")
	return nil
}

func (s *Store) entries(ctx context.Context, rootKey string) ([]store.Entry, error) {
	cursor, err := s.nodes().Find(ctx, subtree(rootKey), options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []nodeDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]store.Entry, 0, len(docs))
	for _, d := range docs {
		out = append(out, store.Entry{Key: d.Key, Value: store.Value{Kind: d.Kind, Content: d.Content}, Seq: d.Seq})
	}
	return out, nil
}

func (s *Store) Subscribe(ctx context.Context, rootKey string, h store.Handler) (*store.Subscription, error) {
	return store.Follow(ctx, rootKey, h, &source{s: s, rootKey: rootKey}, nil), nil
}

type source struct {
	s       *Store
	rootKey string
}

func (src *source) Load(ctx context.Context) (*store.Snapshot, error) {
	entries, err := src.s.entries(ctx, src.rootKey)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", domain.ErrRemoteUnavailable, src.rootKey, err)
	}
	return store.BuildSnapshot(src.rootKey, entries), nil
}

// Listen follows a change stream filtered to the subscribed subtree.
// Deleting an ancestor removes the documents inside the subtree too, so
// matching on the changed document's own key is enough.
func (src *source) Listen(ctx context.Context, changed func()) error {
	pipeline := mongo.Pipeline{}
	if src.rootKey != "" {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: bson.M{
			"documentKey._id": bson.Regex{Pattern: "^" + regexp.QuoteMeta(src.rootKey) + "(/|$)"},
		}}})
	}

	stream, err := src.s.nodes().Watch(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("%w: watch: %v", domain.ErrRemoteUnavailable, err)
	}
	defer stream.Close(context.Background())

	src.s.logger.Debug().Str("root", src.rootKey).Msg("watching")
	changed()

	for stream.Next(ctx) {
		changed()
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("%w: change stream: %v", domain.ErrRemoteUnavailable, err)
	}
	return nil
}

func (s *Store) FindUsersByEmail(ctx context.Context, email string) ([]domain.User, error) {
	cursor, err := s.users().Find(ctx, bson.M{"email": email})
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	var out []domain.User
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return out, nil
}

func (s *Store) InsertUser(ctx context.Context, u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := s.users().InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
