// Package storetest holds the behaviour suite every store.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/types"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the full suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("ConversationLazyCreate", func(t *testing.T) { testConversationLazyCreate(t, newStore(t)) })
	t.Run("UpdateCommits", func(t *testing.T) { testUpdateCommits(t, newStore(t)) })
	t.Run("UpdateWithoutSave", func(t *testing.T) { testUpdateWithoutSave(t, newStore(t)) })
	t.Run("UpdateCallbackError", func(t *testing.T) { testUpdateCallbackError(t, newStore(t)) })
	t.Run("ArchiveWithState", func(t *testing.T) { testArchiveWithState(t, newStore(t)) })
	t.Run("ListArchivesOrder", func(t *testing.T) { testListArchivesOrder(t, newStore(t)) })
	t.Run("PersonaStats", func(t *testing.T) { testPersonaStats(t, newStore(t)) })
	t.Run("ContextEntries", func(t *testing.T) { testContextEntries(t, newStore(t)) })
	t.Run("Wipe", func(t *testing.T) { testWipe(t, newStore(t)) })
	t.Run("ConcurrentAcquire", func(t *testing.T) { testConcurrentAcquire(t, newStore(t)) })
}

func testConversationLazyCreate(t *testing.T, s store.Store) {
	ctx := context.Background()

	first, err := s.Conversation(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), first.CreatedAt)
	assert.Empty(t, first.Messages)
	assert.Zero(t, first.LastMessageTime)

	second, err := s.Conversation(ctx, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), second.CreatedAt, "existing document must not be recreated")
}

func testUpdateCommits(t *testing.T, s store.Store) {
	ctx := context.Background()

	commit, err := s.Update(ctx, 100, func(txn *store.Txn) error {
		txn.State.Messages = append(txn.State.Messages, types.Message{ID: "m1", SpeakerKey: "a", Content: "hi"})
		txn.State.MessageCount++
		txn.State.LastMessageTime = 150
		txn.Save()
		return nil
	})
	require.NoError(t, err)
	assert.True(t, commit.Written)
	assert.Len(t, commit.State.Messages, 1)

	got, err := s.Conversation(ctx, 999)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hi", got.Messages[0].Content)
	assert.Equal(t, int64(1), got.MessageCount)
	assert.Equal(t, int64(150), got.LastMessageTime)
	assert.Equal(t, int64(100), got.CreatedAt)
}

func testUpdateWithoutSave(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.Conversation(ctx, 10)
	require.NoError(t, err)

	commit, err := s.Update(ctx, 20, func(txn *store.Txn) error {
		assert.False(t, txn.Created())
		txn.State.MessageCount = 42
		return nil
	})
	require.NoError(t, err)
	assert.False(t, commit.Written)

	got, err := s.Conversation(ctx, 30)
	require.NoError(t, err)
	assert.Zero(t, got.MessageCount)
}

func testUpdateCallbackError(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.Conversation(ctx, 10)
	require.NoError(t, err)

	sentinel := errors.New("refused")
	_, err = s.Update(ctx, 20, func(txn *store.Txn) error {
		txn.State.IsGenerating = true
		txn.Save()
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	got, err := s.Conversation(ctx, 30)
	require.NoError(t, err)
	assert.False(t, got.IsGenerating)
}

func testArchiveWithState(t *testing.T, s store.Store) {
	ctx := context.Background()

	var archived types.ArchiveRecord
	commit, err := s.Update(ctx, 100, func(txn *store.Txn) error {
		archived = txn.AppendArchive(types.ArchiveRecord{
			Messages:     []types.Message{{ID: "m1", Content: "first"}},
			MessageCount: 1,
			ArchivedAt:   200,
			Trigger:      types.ArchiveTriggerManual,
		})
		txn.State.LastArchiveTime = 200
		return nil
	})
	require.NoError(t, err)
	require.Len(t, commit.Archives, 1)
	assert.NotEmpty(t, archived.ID)
	assert.Equal(t, archived.ID, commit.Archives[0].ID)

	got, err := s.Archive(ctx, archived.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.ArchivedAt)
	assert.Equal(t, types.ArchiveTriggerManual, got.Trigger)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "first", got.Messages[0].Content)

	state, err := s.Conversation(ctx, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(200), state.LastArchiveTime)

	_, err = s.Archive(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testListArchivesOrder(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		at := int64(i * 1000)
		_, err := s.Update(ctx, 1, func(txn *store.Txn) error {
			txn.AppendArchive(types.ArchiveRecord{
				Messages:     []types.Message{{ID: fmt.Sprintf("m%d", i)}},
				MessageCount: int64(i),
				ArchivedAt:   at,
			})
			return nil
		})
		require.NoError(t, err)
	}

	all, err := s.ListArchives(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 7)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].ArchivedAt, all[i].ArchivedAt)
	}

	limited, err := s.ListArchives(ctx, 3)
	require.NoError(t, err)
	require.Len(t, limited, 3)
	assert.Equal(t, int64(7000), limited[0].ArchivedAt)
	assert.Equal(t, int64(5000), limited[2].ArchivedAt)
}

func testPersonaStats(t *testing.T, s store.Store) {
	ctx := context.Background()

	empty, err := s.PersonaStats(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.IncrementPersonaStats(ctx, "ada", 100))
	require.NoError(t, s.IncrementPersonaStats(ctx, "ada", 200))
	require.NoError(t, s.IncrementPersonaStats(ctx, "bo", 150))
	assert.ErrorIs(t, s.IncrementPersonaStats(ctx, "", 1), store.ErrInvalidInput)

	stats, err := s.PersonaStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.PersonaStats{MessageCount: 2, LastActive: 200}, stats["ada"])
	assert.Equal(t, types.PersonaStats{MessageCount: 1, LastActive: 150}, stats["bo"])
}

func testContextEntries(t *testing.T, s store.Store) {
	ctx := context.Background()

	note := &types.ContextEntry{Kind: types.ContextKindNote, Content: "the lights flicker", CreatedAt: 10}
	require.NoError(t, s.SaveContextEntry(ctx, note))
	assert.NotEmpty(t, note.ID)

	task := &types.ContextEntry{Kind: types.ContextKindTask, Title: "fix door", Content: "door jammed", Status: types.TaskStatusOpen, CreatedAt: 20}
	require.NoError(t, s.SaveContextEntry(ctx, task))

	assert.ErrorIs(t, s.SaveContextEntry(ctx, &types.ContextEntry{Kind: types.ContextKindNote}), store.ErrInvalidInput)
	assert.ErrorIs(t, s.SaveContextEntry(ctx, &types.ContextEntry{Kind: "poem", Content: "x"}), store.ErrInvalidInput)

	entries, err := s.ListContextEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, task.ID, entries[0].ID)
	assert.Equal(t, types.TaskStatusOpen, entries[0].Status)
	assert.Equal(t, note.ID, entries[1].ID)

	task.Status = types.TaskStatusDone
	require.NoError(t, s.SaveContextEntry(ctx, task))
	entries, err = s.ListContextEntries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.TaskStatusDone, entries[0].Status)
}

func testWipe(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Update(ctx, 1, func(txn *store.Txn) error {
		txn.State.Messages = append(txn.State.Messages, types.Message{ID: "m1"})
		txn.State.MessageCount = 1
		txn.AppendArchive(types.ArchiveRecord{MessageCount: 1, ArchivedAt: 5})
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, s.IncrementPersonaStats(ctx, "ada", 5))

	require.NoError(t, s.Wipe(ctx, types.NewConversationState(777)))

	state, err := s.Conversation(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, state.Messages)
	assert.Zero(t, state.MessageCount)
	assert.Equal(t, int64(777), state.CreatedAt)

	archives, err := s.ListArchives(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, archives)

	stats, err := s.PersonaStats(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats)

	// the store keeps working after a wipe
	_, err = s.Update(ctx, 1000, func(txn *store.Txn) error {
		txn.State.MessageCount = 3
		txn.Save()
		return nil
	})
	require.NoError(t, err)
}

func testConcurrentAcquire(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.Conversation(ctx, 1)
	require.NoError(t, err)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			won := false
			_, err := s.Update(ctx, 2, func(txn *store.Txn) error {
				won = false
				if txn.State.IsGenerating {
					return nil
				}
				txn.State.IsGenerating = true
				txn.State.GenerationOwner = owner
				txn.Save()
				won = true
				return nil
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if won {
				winners++
			}
		}(fmt.Sprintf("owner-%d", i))
	}
	wg.Wait()

	for _, err := range errs {
		// exhausting optimistic attempts is allowed, a double grant is not
		assert.ErrorIs(t, err, store.ErrConflict)
	}
	assert.Equal(t, 1, winners)

	state, err := s.Conversation(ctx, 3)
	require.NoError(t, err)
	assert.True(t, state.IsGenerating)
	assert.NotEmpty(t, state.GenerationOwner)
}
