// Package store provides the transactional conversation document store.
//
// One deployment owns exactly one conversation document plus three append or
// counter style collections: the archive log, per-persona statistics and the
// externally supplied context entries. Every read-modify-write of the
// conversation goes through Store.Update, which each backend makes atomic:
//
//   - memory: process-local mutex (development and tests)
//   - redis:  WATCH/MULTI/EXEC optimistic transactions
//   - gorm:   version column with a conditional UPDATE (sqlite/postgres/mysql)
//   - mongo:  version field with a conditional ReplaceOne
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/BaSui01/roundtable/types"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("concurrent update conflict")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeGorm   StoreType = "database"
	StoreTypeMongo  StoreType = "mongo"
)

// DefaultMaxAttempts bounds optimistic re-runs of an Update callback.
const DefaultMaxAttempts = 5

// Store is the conversation document store.
type Store interface {
	// Conversation returns the current state, creating the default document
	// stamped with now when none exists.
	Conversation(ctx context.Context, now int64) (*types.ConversationState, error)

	// Update runs fn against a private copy of the state and commits the
	// result atomically. fn may run more than once and must not have side
	// effects outside the Txn.
	Update(ctx context.Context, now int64, fn func(txn *Txn) error) (*Commit, error)

	// Archive returns one archive record by id.
	Archive(ctx context.Context, id string) (*types.ArchiveRecord, error)

	// ListArchives returns at most limit records, newest archivedAt first.
	ListArchives(ctx context.Context, limit int) ([]types.ArchiveRecord, error)

	// IncrementPersonaStats bumps a persona counter and stamps lastActive.
	IncrementPersonaStats(ctx context.Context, key string, at int64) error

	// PersonaStats returns all persona counters keyed by persona key.
	PersonaStats(ctx context.Context) (map[string]types.PersonaStats, error)

	// SaveContextEntry stores an externally supplied context entry.
	SaveContextEntry(ctx context.Context, entry *types.ContextEntry) error

	// ListContextEntries returns at most limit entries, newest first.
	ListContextEntries(ctx context.Context, limit int) ([]types.ContextEntry, error)

	// Wipe replaces the conversation with fresh and deletes archives and stats.
	Wipe(ctx context.Context, fresh *types.ConversationState) error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error

	// Close closes the store and releases resources
	Close() error
}

// =============================================================================
// 🔒 事务单元
// =============================================================================

// Txn is the unit of work handed to an Update callback.
type Txn struct {
	// State is a private copy of the conversation; mutate it and call Save.
	State *types.ConversationState

	created  bool
	dirty    bool
	archives []types.ArchiveRecord
}

func newTxn(state *types.ConversationState, created bool) *Txn {
	return &Txn{State: state, created: created, dirty: created}
}

// Save marks the state for writing.
func (t *Txn) Save() {
	t.dirty = true
}

// Replace swaps the whole state and marks it for writing.
func (t *Txn) Replace(state *types.ConversationState) {
	t.State = state
	t.dirty = true
}

// AppendArchive queues rec to be written in the same commit as the state.
// An empty ID is filled with a fresh uuid; the stored copy is returned.
func (t *Txn) AppendArchive(rec types.ArchiveRecord) types.ArchiveRecord {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	msgs := make([]types.Message, len(rec.Messages))
	copy(msgs, rec.Messages)
	rec.Messages = msgs
	t.archives = append(t.archives, rec)
	t.dirty = true
	return rec
}

// Created reports whether the document did not exist before this Txn.
func (t *Txn) Created() bool {
	return t.created
}

func (t *Txn) commit() *Commit {
	return &Commit{
		State:    t.State.Clone(),
		Archives: t.archives,
		Written:  t.dirty,
	}
}

// Commit is the outcome of an Update.
type Commit struct {
	State    *types.ConversationState
	Archives []types.ArchiveRecord
	Written  bool
}

// errRetry signals an optimistic conflict inside a backend.
var errRetry = errors.New("retry")

// retryOptimistic re-runs attempt while it reports errRetry.
func retryOptimistic(ctx context.Context, maxAttempts int, attempt func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := attempt()
		if !errors.Is(err, errRetry) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrConflict, maxAttempts)
}

// callbackError marks errors returned by the Update callback so backends
// can pass them through untouched.
type callbackError struct{ err error }

func (e *callbackError) Error() string { return e.err.Error() }
func (e *callbackError) Unwrap() error { return e.err }

func runCallback(fn func(txn *Txn) error, txn *Txn) error {
	if err := fn(txn); err != nil {
		return &callbackError{err: err}
	}
	return nil
}

// unwrapCallback strips the callbackError marker.
func unwrapCallback(err error) error {
	var cbErr *callbackError
	if errors.As(err, &cbErr) {
		return cbErr.err
	}
	return err
}

func validateContextEntry(entry *types.ContextEntry) error {
	if entry == nil || entry.Content == "" {
		return ErrInvalidInput
	}
	switch entry.Kind {
	case types.ContextKindNote, types.ContextKindTask:
	default:
		return fmt.Errorf("%w: unknown context kind %q", ErrInvalidInput, entry.Kind)
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	return nil
}
