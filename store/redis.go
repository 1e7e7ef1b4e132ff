package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/roundtable/types"
)

// RedisStore is a Redis-based implementation of Store.
// Suitable for distributed deployments.
// The conversation is one JSON string guarded by WATCH; archives and
// context entries are hashes indexed by sorted sets.
type RedisStore struct {
	client      redis.UniversalClient
	keyPrefix   string
	maxAttempts int
}

// NewRedisStore wraps an existing client
func NewRedisStore(client redis.UniversalClient, keyPrefix string, maxAttempts int) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "roundtable:"
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RedisStore{
		client:      client,
		keyPrefix:   keyPrefix,
		maxAttempts: maxAttempts,
	}
}

// conversationKey returns the Redis key for the conversation document
func (s *RedisStore) conversationKey() string { return s.keyPrefix + "conversation" }

// archiveDataKey returns the Redis key for the archive payload hash
func (s *RedisStore) archiveDataKey() string { return s.keyPrefix + "archive:data" }

// archiveIndexKey returns the Redis key for the archivedAt index
func (s *RedisStore) archiveIndexKey() string { return s.keyPrefix + "archive:index" }

// statsCountKey returns the Redis key for persona message counters
func (s *RedisStore) statsCountKey() string { return s.keyPrefix + "stats:count" }

// statsLastKey returns the Redis key for persona lastActive stamps
func (s *RedisStore) statsLastKey() string { return s.keyPrefix + "stats:last" }

// contextDataKey returns the Redis key for context entry payloads
func (s *RedisStore) contextDataKey() string { return s.keyPrefix + "context:data" }

// contextIndexKey returns the Redis key for the context entry index
func (s *RedisStore) contextIndexKey() string { return s.keyPrefix + "context:index" }

// Conversation returns the current state, creating it if absent
func (s *RedisStore) Conversation(ctx context.Context, now int64) (*types.ConversationState, error) {
	data, err := json.Marshal(types.NewConversationState(now))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if err := s.client.SetNX(ctx, s.conversationKey(), data, 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to initialise conversation: %w", err)
	}

	raw, err := s.client.Get(ctx, s.conversationKey()).Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	var state types.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return &state, nil
}

// Update runs fn inside a WATCH/MULTI/EXEC transaction
func (s *RedisStore) Update(ctx context.Context, now int64, fn func(txn *Txn) error) (*Commit, error) {
	var commit *Commit
	key := s.conversationKey()

	err := retryOptimistic(ctx, s.maxAttempts, func() error {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			txn, err := s.loadTxn(ctx, tx, now)
			if err != nil {
				return err
			}
			if err := runCallback(fn, txn); err != nil {
				return err
			}
			if !txn.dirty {
				commit = txn.commit()
				return nil
			}

			doc, err := json.Marshal(txn.State)
			if err != nil {
				return fmt.Errorf("failed to marshal conversation: %w", err)
			}
			archives := make([]archivePayload, 0, len(txn.archives))
			for _, rec := range txn.archives {
				data, err := json.Marshal(rec)
				if err != nil {
					return fmt.Errorf("failed to marshal archive: %w", err)
				}
				archives = append(archives, archivePayload{rec: rec, data: data})
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, doc, 0)
				for _, a := range archives {
					pipe.HSet(ctx, s.archiveDataKey(), a.rec.ID, a.data)
					pipe.ZAdd(ctx, s.archiveIndexKey(), redis.Z{
						Score:  float64(a.rec.ArchivedAt),
						Member: a.rec.ID,
					})
				}
				return nil
			})
			if err != nil {
				return err
			}
			commit = txn.commit()
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			return errRetry
		}
		return err
	})
	if err != nil {
		return nil, unwrapCallback(err)
	}
	return commit, nil
}

type archivePayload struct {
	rec  types.ArchiveRecord
	data []byte
}

func (s *RedisStore) loadTxn(ctx context.Context, tx *redis.Tx, now int64) (*Txn, error) {
	raw, err := tx.Get(ctx, s.conversationKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return newTxn(types.NewConversationState(now), true), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	var state types.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	if state.Messages == nil {
		state.Messages = []types.Message{}
	}
	return newTxn(&state, false), nil
}

// Archive returns an archive record by id
func (s *RedisStore) Archive(ctx context.Context, id string) (*types.ArchiveRecord, error) {
	data, err := s.client.HGet(ctx, s.archiveDataKey(), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archive: %w", err)
	}
	var rec types.ArchiveRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal archive: %w", err)
	}
	return &rec, nil
}

// ListArchives returns the newest records first
func (s *RedisStore) ListArchives(ctx context.Context, limit int) ([]types.ArchiveRecord, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, s.archiveIndexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list archive index: %w", err)
	}
	if len(ids) == 0 {
		return []types.ArchiveRecord{}, nil
	}

	values, err := s.client.HMGet(ctx, s.archiveDataKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load archives: %w", err)
	}

	out := make([]types.ArchiveRecord, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec types.ArchiveRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal archive: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// IncrementPersonaStats bumps the persona counter with HINCRBY
func (s *RedisStore) IncrementPersonaStats(ctx context.Context, key string, at int64) error {
	if key == "" {
		return ErrInvalidInput
	}
	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, s.statsCountKey(), key, 1)
	pipe.HSet(ctx, s.statsLastKey(), key, at)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment stats: %w", err)
	}
	return nil
}

// PersonaStats returns all persona counters
func (s *RedisStore) PersonaStats(ctx context.Context) (map[string]types.PersonaStats, error) {
	pipe := s.client.Pipeline()
	countsCmd := pipe.HGetAll(ctx, s.statsCountKey())
	lastCmd := pipe.HGetAll(ctx, s.statsLastKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	out := make(map[string]types.PersonaStats)
	for key, raw := range countsCmd.Val() {
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid counter for %s: %w", key, err)
		}
		st := out[key]
		st.MessageCount = count
		out[key] = st
	}
	for key, raw := range lastCmd.Val() {
		last, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid lastActive for %s: %w", key, err)
		}
		st := out[key]
		st.LastActive = last
		out[key] = st
	}
	return out, nil
}

// SaveContextEntry stores a context entry
func (s *RedisStore) SaveContextEntry(ctx context.Context, entry *types.ContextEntry) error {
	if err := validateContextEntry(entry); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal context entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.contextDataKey(), entry.ID, data)
	pipe.ZAdd(ctx, s.contextIndexKey(), redis.Z{Score: float64(entry.CreatedAt), Member: entry.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save context entry: %w", err)
	}
	return nil
}

// ListContextEntries returns the newest entries first
func (s *RedisStore) ListContextEntries(ctx context.Context, limit int) ([]types.ContextEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, s.contextIndexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list context index: %w", err)
	}
	if len(ids) == 0 {
		return []types.ContextEntry{}, nil
	}

	values, err := s.client.HMGet(ctx, s.contextDataKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load context entries: %w", err)
	}
	out := make([]types.ContextEntry, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var entry types.ContextEntry
		if err := json.Unmarshal([]byte(str), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal context entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// Wipe resets the conversation and drops archives and stats in one MULTI
func (s *RedisStore) Wipe(ctx context.Context, fresh *types.ConversationState) error {
	if fresh == nil {
		return ErrInvalidInput
	}
	doc, err := json.Marshal(fresh)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.conversationKey(), doc, 0)
		pipe.Del(ctx, s.archiveDataKey(), s.archiveIndexKey(), s.statsCountKey(), s.statsLastKey())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to wipe: %w", err)
	}
	return nil
}

// Ping checks if the store is healthy
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the store
func (s *RedisStore) Close() error {
	return s.client.Close()
}
