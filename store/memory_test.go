package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/store/storetest"
	"github.com/BaSui01/roundtable/types"
)

func TestMemoryStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return store.NewMemoryStore()
	})
}

func TestMemoryStore_Closed(t *testing.T) {
	s := store.NewMemoryStore()
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())

	ctx := context.Background()
	_, err := s.Conversation(ctx, 1)
	assert.ErrorIs(t, err, store.ErrStoreClosed)
	_, err = s.Update(ctx, 1, func(*store.Txn) error { return nil })
	assert.ErrorIs(t, err, store.ErrStoreClosed)
	assert.ErrorIs(t, s.Ping(ctx), store.ErrStoreClosed)
	assert.ErrorIs(t, s.Wipe(ctx, types.NewConversationState(1)), store.ErrStoreClosed)
}

func TestMemoryStore_UpdateHonoursCancelledContext(t *testing.T) {
	s := store.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := s.Update(ctx, 1, func(*store.Txn) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryStore_CommitIsIsolated(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	commit, err := s.Update(ctx, 1, func(txn *store.Txn) error {
		txn.State.Messages = append(txn.State.Messages, types.Message{ID: "a", Content: "x"})
		txn.Save()
		return nil
	})
	assert.NoError(t, err)

	commit.State.Messages[0].Content = "mutated"
	got, err := s.Conversation(ctx, 1)
	assert.NoError(t, err)
	assert.Equal(t, "x", got.Messages[0].Content)
}
