package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/BaSui01/roundtable/types"
)

const (
	mongoConversationCollection = "conversation"
	mongoArchiveCollection      = "archives"
	mongoStatsCollection        = "persona_stats"
	mongoContextCollection      = "context_entries"
)

type mongoConversationDoc struct {
	ID      string                  `bson:"_id"`
	State   types.ConversationState `bson:"state"`
	Version int64                   `bson:"version"`
}

type mongoStatsDoc struct {
	Key          string `bson:"_id"`
	MessageCount int64  `bson:"messageCount"`
	LastActive   int64  `bson:"lastActive"`
}

// MongoStore is a MongoDB implementation of Store.
// The conversation document carries a version field; commits use a
// conditional ReplaceOne. Archives are inserted before the replace and
// removed again when the replace loses the race.
type MongoStore struct {
	client      *mongo.Client
	db          *mongo.Database
	maxAttempts int
}

// NewMongoStore connects to MongoDB and prepares indexes
func NewMongoStore(ctx context.Context, uri, database string, connectTimeout time.Duration, maxAttempts int) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: mongo uri is required", ErrInvalidInput)
	}
	if database == "" {
		database = "roundtable"
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	opts := options.Client().ApplyURI(uri)
	if connectTimeout > 0 {
		opts.SetConnectTimeout(connectTimeout)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	s := &MongoStore{
		client:      client,
		db:          client.Database(database),
		maxAttempts: maxAttempts,
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.db.Collection(mongoArchiveCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "archivedAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("failed to create archive index: %w", err)
	}
	if _, err := s.db.Collection(mongoContextCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("failed to create context index: %w", err)
	}
	return nil
}

func (s *MongoStore) conversations() *mongo.Collection {
	return s.db.Collection(mongoConversationCollection)
}

// Conversation returns the current state, creating it if absent
func (s *MongoStore) Conversation(ctx context.Context, now int64) (*types.ConversationState, error) {
	_, err := s.conversations().UpdateOne(ctx,
		bson.M{"_id": conversationRowID},
		bson.M{"$setOnInsert": bson.M{"state": types.NewConversationState(now), "version": 1}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("failed to initialise conversation: %w", err)
	}

	var doc mongoConversationDoc
	if err := s.conversations().FindOne(ctx, bson.M{"_id": conversationRowID}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if doc.State.Messages == nil {
		doc.State.Messages = []types.Message{}
	}
	return &doc.State, nil
}

// Update applies fn and commits with a version-conditional replace
func (s *MongoStore) Update(ctx context.Context, now int64, fn func(txn *Txn) error) (*Commit, error) {
	var commit *Commit

	err := retryOptimistic(ctx, s.maxAttempts, func() error {
		var doc mongoConversationDoc
		var txn *Txn

		err := s.conversations().FindOne(ctx, bson.M{"_id": conversationRowID}).Decode(&doc)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			txn = newTxn(types.NewConversationState(now), true)
		case err != nil:
			return fmt.Errorf("failed to load conversation: %w", err)
		default:
			if doc.State.Messages == nil {
				doc.State.Messages = []types.Message{}
			}
			txn = newTxn(&doc.State, false)
		}

		if err := runCallback(fn, txn); err != nil {
			return err
		}
		if !txn.dirty {
			commit = txn.commit()
			return nil
		}

		inserted, err := s.insertArchives(ctx, txn.archives)
		if err != nil {
			return err
		}

		next := mongoConversationDoc{ID: conversationRowID, State: *txn.State, Version: doc.Version + 1}
		won := true
		if txn.created {
			next.Version = 1
			if _, err := s.conversations().InsertOne(ctx, next); err != nil {
				if !mongo.IsDuplicateKeyError(err) {
					s.removeArchives(ctx, inserted)
					return fmt.Errorf("failed to create conversation: %w", err)
				}
				won = false
			}
		} else {
			res, err := s.conversations().ReplaceOne(ctx,
				bson.M{"_id": conversationRowID, "version": doc.Version},
				next,
			)
			if err != nil {
				s.removeArchives(ctx, inserted)
				return fmt.Errorf("failed to update conversation: %w", err)
			}
			won = res.MatchedCount == 1
		}

		if !won {
			s.removeArchives(ctx, inserted)
			return errRetry
		}
		commit = txn.commit()
		return nil
	})
	if err != nil {
		return nil, unwrapCallback(err)
	}
	return commit, nil
}

func (s *MongoStore) insertArchives(ctx context.Context, recs []types.ArchiveRecord) ([]string, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	docs := make([]any, 0, len(recs))
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, rec)
		ids = append(ids, rec.ID)
	}
	if _, err := s.db.Collection(mongoArchiveCollection).InsertMany(ctx, docs); err != nil {
		return nil, fmt.Errorf("failed to insert archives: %w", err)
	}
	return ids, nil
}

// removeArchives undoes insertArchives. A failed delete leaves an orphan
// archive record behind.
func (s *MongoStore) removeArchives(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	_, _ = s.db.Collection(mongoArchiveCollection).DeleteMany(context.WithoutCancel(ctx), bson.M{"_id": bson.M{"$in": ids}})
}

// Archive returns an archive record by id
func (s *MongoStore) Archive(ctx context.Context, id string) (*types.ArchiveRecord, error) {
	var rec types.ArchiveRecord
	err := s.db.Collection(mongoArchiveCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archive: %w", err)
	}
	return &rec, nil
}

// ListArchives returns the newest records first
func (s *MongoStore) ListArchives(ctx context.Context, limit int) ([]types.ArchiveRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "archivedAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.db.Collection(mongoArchiveCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	out := make([]types.ArchiveRecord, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode archives: %w", err)
	}
	return out, nil
}

// IncrementPersonaStats bumps the persona counter with $inc
func (s *MongoStore) IncrementPersonaStats(ctx context.Context, key string, at int64) error {
	if key == "" {
		return ErrInvalidInput
	}
	_, err := s.db.Collection(mongoStatsCollection).UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$inc": bson.M{"messageCount": 1}, "$set": bson.M{"lastActive": at}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to increment stats: %w", err)
	}
	return nil
}

// PersonaStats returns all persona counters
func (s *MongoStore) PersonaStats(ctx context.Context) (map[string]types.PersonaStats, error) {
	cur, err := s.db.Collection(mongoStatsCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	var docs []mongoStatsDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}
	out := make(map[string]types.PersonaStats, len(docs))
	for _, d := range docs {
		out[d.Key] = types.PersonaStats{MessageCount: d.MessageCount, LastActive: d.LastActive}
	}
	return out, nil
}

// SaveContextEntry upserts a context entry
func (s *MongoStore) SaveContextEntry(ctx context.Context, entry *types.ContextEntry) error {
	if err := validateContextEntry(entry); err != nil {
		return err
	}
	_, err := s.db.Collection(mongoContextCollection).ReplaceOne(ctx,
		bson.M{"_id": entry.ID},
		entry,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save context entry: %w", err)
	}
	return nil
}

// ListContextEntries returns the newest entries first
func (s *MongoStore) ListContextEntries(ctx context.Context, limit int) ([]types.ContextEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.db.Collection(mongoContextCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list context entries: %w", err)
	}
	out := make([]types.ContextEntry, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode context entries: %w", err)
	}
	return out, nil
}

// Wipe resets the conversation and deletes archives and stats.
// The conversation is replaced first so a concurrent Update loses its race.
func (s *MongoStore) Wipe(ctx context.Context, fresh *types.ConversationState) error {
	if fresh == nil {
		return ErrInvalidInput
	}
	_, err := s.conversations().UpdateOne(ctx,
		bson.M{"_id": conversationRowID},
		bson.M{"$set": bson.M{"state": fresh}, "$inc": bson.M{"version": 1}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to reset conversation: %w", err)
	}
	if _, err := s.db.Collection(mongoArchiveCollection).DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to delete archives: %w", err)
	}
	if _, err := s.db.Collection(mongoStatsCollection).DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("failed to delete stats: %w", err)
	}
	return nil
}

// Ping checks if the store is healthy
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close closes the store
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
