package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/persona"
	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/testutil"
	"github.com/BaSui01/roundtable/testutil/mocks"
	"github.com/BaSui01/roundtable/types"
)

// epoch 是测试时钟的起点
var epoch = time.UnixMilli(1_700_000_000_000)

type recordingMetrics struct {
	mu       sync.Mutex
	turns    map[string]int
	archives map[string]int
	reclaims int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{turns: map[string]int{}, archives: map[string]int{}}
}

func (m *recordingMetrics) RecordTurn(status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[status]++
}

func (m *recordingMetrics) RecordArchive(trigger string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archives[trigger]++
}

func (m *recordingMetrics) RecordLockReclaim() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclaims++
}

func (m *recordingMetrics) turnCount(status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turns[status]
}

func (m *recordingMetrics) reclaimCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reclaims
}

// zeroRand 总是选择池中的第一项
type zeroRand struct{}

func (zeroRand) Intn(int) int { return 0 }

type harness struct {
	svc      *Service
	store    *store.MemoryStore
	clock    *testutil.FakeClock
	provider *mocks.MockProvider
	metrics  *recordingMetrics
	roster   *persona.Roster
	conv     config.ConversationConfig
}

func newHarness(t *testing.T, tweak ...func(*config.ConversationConfig)) *harness {
	t.Helper()

	conv := config.DefaultConversationConfig()
	for _, fn := range tweak {
		fn(&conv)
	}

	h := &harness{
		store:    store.NewMemoryStore(),
		clock:    testutil.NewFakeClock(epoch),
		provider: mocks.NewMockProvider(),
		metrics:  newRecordingMetrics(),
		roster:   persona.MustDefault(),
		conv:     conv,
	}

	svc, err := NewService(h.store, h.roster, h.provider, conv, config.DefaultLLMConfig(),
		WithClock(h.clock.Now),
		WithRand(zeroRand{}),
		WithMetrics(h.metrics),
		WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)
	h.svc = svc
	t.Cleanup(svc.Close)
	return h
}

// advance 推进一个成功回合，然后把时钟拨过冷却期
func (h *harness) advance(t *testing.T) *AdvanceResult {
	t.Helper()
	res, err := h.svc.Advance(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, res.Status)
	h.svc.Wait()
	h.clock.Advance(h.conv.Cooldown + time.Second)
	return res
}

func (h *harness) state(t *testing.T) *types.ConversationState {
	t.Helper()
	st, err := h.store.Conversation(context.Background(), h.clock.Now().UnixMilli())
	require.NoError(t, err)
	return st
}

func (h *harness) archives(t *testing.T) []types.ArchiveRecord {
	t.Helper()
	recs, err := h.store.ListArchives(context.Background(), 1000)
	require.NoError(t, err)
	return recs
}

// seed 直接写入对话状态
func seed(t *testing.T, s store.Store, now int64, fn func(st *types.ConversationState)) {
	t.Helper()
	_, err := s.Update(context.Background(), now, func(txn *store.Txn) error {
		fn(txn.State)
		txn.Save()
		return nil
	})
	require.NoError(t, err)
}
