package store

import (
	"context"
	"time"

	"github.com/BaSui01/roundtable/types"
)

// OperationRecorder receives per-operation timings from an instrumented store.
type OperationRecorder interface {
	RecordStoreOperation(backend, operation string, duration time.Duration, err error)
}

// Instrument wraps s so every operation reports its duration and outcome.
// A nil recorder returns s unchanged.
func Instrument(s Store, backend string, rec OperationRecorder) Store {
	if rec == nil {
		return s
	}
	return &instrumentedStore{next: s, backend: backend, rec: rec}
}

type instrumentedStore struct {
	next    Store
	backend string
	rec     OperationRecorder
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	s.rec.RecordStoreOperation(s.backend, op, time.Since(start), err)
}

func (s *instrumentedStore) Conversation(ctx context.Context, now int64) (*types.ConversationState, error) {
	start := time.Now()
	st, err := s.next.Conversation(ctx, now)
	s.observe("conversation", start, err)
	return st, err
}

func (s *instrumentedStore) Update(ctx context.Context, now int64, fn func(txn *Txn) error) (*Commit, error) {
	start := time.Now()
	c, err := s.next.Update(ctx, now, fn)
	s.observe("update", start, err)
	return c, err
}

func (s *instrumentedStore) Archive(ctx context.Context, id string) (*types.ArchiveRecord, error) {
	start := time.Now()
	rec, err := s.next.Archive(ctx, id)
	s.observe("archive", start, err)
	return rec, err
}

func (s *instrumentedStore) ListArchives(ctx context.Context, limit int) ([]types.ArchiveRecord, error) {
	start := time.Now()
	recs, err := s.next.ListArchives(ctx, limit)
	s.observe("list_archives", start, err)
	return recs, err
}

func (s *instrumentedStore) IncrementPersonaStats(ctx context.Context, key string, at int64) error {
	start := time.Now()
	err := s.next.IncrementPersonaStats(ctx, key, at)
	s.observe("increment_stats", start, err)
	return err
}

func (s *instrumentedStore) PersonaStats(ctx context.Context) (map[string]types.PersonaStats, error) {
	start := time.Now()
	stats, err := s.next.PersonaStats(ctx)
	s.observe("persona_stats", start, err)
	return stats, err
}

func (s *instrumentedStore) SaveContextEntry(ctx context.Context, entry *types.ContextEntry) error {
	start := time.Now()
	err := s.next.SaveContextEntry(ctx, entry)
	s.observe("save_context", start, err)
	return err
}

func (s *instrumentedStore) ListContextEntries(ctx context.Context, limit int) ([]types.ContextEntry, error) {
	start := time.Now()
	entries, err := s.next.ListContextEntries(ctx, limit)
	s.observe("list_context", start, err)
	return entries, err
}

func (s *instrumentedStore) Wipe(ctx context.Context, fresh *types.ConversationState) error {
	start := time.Now()
	err := s.next.Wipe(ctx, fresh)
	s.observe("wipe", start, err)
	return err
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}
