package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/persona"
	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/testutil/mocks"
	"github.com/BaSui01/roundtable/types"
)

func TestNewService_Validation(t *testing.T) {
	conv := config.DefaultConversationConfig()
	gen := config.DefaultLLMConfig()
	roster := persona.MustDefault()

	_, err := NewService(nil, roster, mocks.NewMockProvider(), conv, gen)
	assert.Error(t, err)
	_, err = NewService(store.NewMemoryStore(), roster, nil, conv, gen)
	assert.Error(t, err)
	_, err = NewService(store.NewMemoryStore(), nil, mocks.NewMockProvider(), conv, gen)
	assert.Error(t, err)
	_, err = NewService(store.NewMemoryStore(), &persona.Roster{}, mocks.NewMockProvider(), conv, gen)
	assert.Error(t, err)

	svc, err := NewService(store.NewMemoryStore(), roster, mocks.NewMockProvider(), conv, gen)
	require.NoError(t, err)
	svc.Close()
	svc.Close()
}

func TestState_LazyCreateAndNormalize(t *testing.T) {
	h := newHarness(t)

	st, err := h.svc.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, epoch.UnixMilli(), st.CreatedAt)
	assert.Equal(t, epoch.UnixMilli(), st.LastArchiveTime)
	assert.Empty(t, st.Messages)

	seed(t, h.store, epoch.UnixMilli(), func(s *types.ConversationState) { s.CurrentSpeakerIndex = 12 })
	st, err = h.svc.State(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.CurrentSpeakerIndex)
}

func TestWipe_ClearsEverythingButContext(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.advance(t)
	_, err := h.svc.Reset(ctx)
	require.NoError(t, err)
	h.advance(t)
	_, err = h.svc.AddContextEntry(ctx, types.ContextEntry{Kind: types.ContextKindNote, Content: "keep me"})
	require.NoError(t, err)

	at, err := h.svc.Wipe(ctx)
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().UnixMilli(), at)

	st := h.state(t)
	assert.Empty(t, st.Messages)
	assert.Zero(t, st.MessageCount)
	assert.Equal(t, at, st.CreatedAt)
	assert.Empty(t, h.archives(t))

	raw, err := h.store.PersonaStats(ctx)
	require.NoError(t, err)
	assert.Empty(t, raw)

	entries, err := h.svc.ContextEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep me", entries[0].Content)
}

func TestAddContextEntry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	task, err := h.svc.AddContextEntry(ctx, types.ContextEntry{ID: "ignored", Kind: types.ContextKindTask, Title: " t ", Content: " c "})
	require.NoError(t, err)
	assert.NotEqual(t, "ignored", task.ID)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "t", task.Title)
	assert.Equal(t, "c", task.Content)
	assert.Equal(t, types.TaskStatusOpen, task.Status)
	assert.Equal(t, epoch.UnixMilli(), task.CreatedAt)

	note, err := h.svc.AddContextEntry(ctx, types.ContextEntry{Kind: types.ContextKindNote, Content: "n", Status: types.TaskStatusDone})
	require.NoError(t, err)
	assert.Empty(t, note.Status)

	invalid := []types.ContextEntry{
		{Kind: types.ContextKindNote, Content: "   "},
		{Kind: "memo", Content: "x"},
		{Kind: types.ContextKindTask, Content: "x", Status: "blocked"},
	}
	for _, e := range invalid {
		_, err := h.svc.AddContextEntry(ctx, e)
		assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err), "%+v", e)
	}

	entries, err := h.svc.ContextEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPing(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.Ping(context.Background()))

	require.NoError(t, h.store.Close())
	err := h.svc.Ping(context.Background())
	assert.Equal(t, types.ErrStoreUnavailable, types.GetErrorCode(err))
}

func TestFeedStats(t *testing.T) {
	h := newHarness(t)

	ch, cancel := h.svc.Subscribe(4)
	defer cancel()
	assert.Equal(t, 1, h.svc.FeedStats().Subscribers)

	h.advance(t)
	<-ch

	stats := h.svc.FeedStats()
	assert.Equal(t, int64(1), stats.Published)
	assert.Zero(t, stats.Dropped)
}
