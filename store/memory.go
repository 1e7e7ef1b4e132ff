package store

import (
	"context"
	"sort"
	"sync"

	"github.com/BaSui01/roundtable/types"
)

// MemoryStore is an in-memory implementation of Store.
// Suitable for development and testing; state is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	state    *types.ConversationState
	archives []types.ArchiveRecord
	stats    map[string]types.PersonaStats
	entries  []types.ContextEntry
	closed   bool
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		stats: make(map[string]types.PersonaStats),
	}
}

// Conversation returns the current state, creating it if absent.
func (s *MemoryStore) Conversation(ctx context.Context, now int64) (*types.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if s.state == nil {
		s.state = types.NewConversationState(now)
	}
	return s.state.Clone(), nil
}

// Update runs fn under the store mutex.
func (s *MemoryStore) Update(ctx context.Context, now int64, fn func(txn *Txn) error) (*Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var txn *Txn
	if s.state == nil {
		txn = newTxn(types.NewConversationState(now), true)
	} else {
		txn = newTxn(s.state.Clone(), false)
	}

	if err := fn(txn); err != nil {
		return nil, err
	}

	if txn.dirty {
		s.state = txn.State.Clone()
		s.archives = append(s.archives, txn.archives...)
	}
	return txn.commit(), nil
}

// Archive returns an archive record by id
func (s *MemoryStore) Archive(ctx context.Context, id string) (*types.ArchiveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	for i := range s.archives {
		if s.archives[i].ID == id {
			rec := s.archives[i]
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

// ListArchives returns the newest records first
func (s *MemoryStore) ListArchives(ctx context.Context, limit int) ([]types.ArchiveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	// Reverse insertion order first so equal archivedAt values list the
	// later append first.
	out := make([]types.ArchiveRecord, 0, len(s.archives))
	for i := len(s.archives) - 1; i >= 0; i-- {
		out = append(out, s.archives[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ArchivedAt > out[j].ArchivedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// IncrementPersonaStats bumps the persona counter
func (s *MemoryStore) IncrementPersonaStats(ctx context.Context, key string, at int64) error {
	if key == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	st := s.stats[key]
	st.MessageCount++
	st.LastActive = at
	s.stats[key] = st
	return nil
}

// PersonaStats returns a copy of all counters
func (s *MemoryStore) PersonaStats(ctx context.Context) (map[string]types.PersonaStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make(map[string]types.PersonaStats, len(s.stats))
	for k, v := range s.stats {
		out[k] = v
	}
	return out, nil
}

// SaveContextEntry stores a context entry, replacing one with the same id
func (s *MemoryStore) SaveContextEntry(ctx context.Context, entry *types.ContextEntry) error {
	if err := validateContextEntry(entry); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	for i := range s.entries {
		if s.entries[i].ID == entry.ID {
			s.entries[i] = *entry
			return nil
		}
	}
	s.entries = append(s.entries, *entry)
	return nil
}

// ListContextEntries returns the newest entries first
func (s *MemoryStore) ListContextEntries(ctx context.Context, limit int) ([]types.ContextEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make([]types.ContextEntry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		out = append(out, s.entries[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Wipe resets the conversation and drops archives and stats
func (s *MemoryStore) Wipe(ctx context.Context, fresh *types.ConversationState) error {
	if fresh == nil {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.state = fresh.Clone()
	s.archives = nil
	s.stats = make(map[string]types.PersonaStats)
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close closes the store
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
