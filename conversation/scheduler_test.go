package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/roundtable/persona"
	"github.com/BaSui01/roundtable/store"
	"github.com/BaSui01/roundtable/types"
)

const (
	testCooldown = 15 * time.Second
	testLease    = 2 * time.Minute
)

func newTestScheduler(s store.Store, m Metrics) *Scheduler {
	return NewScheduler(s, persona.MustDefault(), testCooldown, testLease, m, zap.NewNop())
}

func TestTryBeginTurn_FreshConversationIsEligible(t *testing.T) {
	s := store.NewMemoryStore()
	sched := newTestScheduler(s, nil)

	adm, err := sched.TryBeginTurn(context.Background(), epoch)
	require.NoError(t, err)
	require.Equal(t, AdmissionEligible, adm.Kind)
	require.NotNil(t, adm.Grant)
	assert.Equal(t, 0, adm.Grant.SpeakerIndex)
	assert.Equal(t, "maren", adm.Grant.SpeakerKey)
	assert.NotEmpty(t, adm.Grant.Token)

	st, err := s.Conversation(context.Background(), epoch.UnixMilli())
	require.NoError(t, err)
	assert.True(t, st.IsGenerating)
	assert.Equal(t, adm.Grant.Token, st.GenerationOwner)
	assert.Equal(t, epoch.UnixMilli(), st.GenerationStartedAt)
	assert.Equal(t, epoch.UnixMilli(), st.CreatedAt)
	assert.Equal(t, epoch.UnixMilli(), st.LastArchiveTime)
}

func TestTryBeginTurn_CooldownRemainingAndNoMutation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := store.NewMemoryStore()
		base := epoch.UnixMilli()
		_, err := s.Update(context.Background(), base, func(txn *store.Txn) error {
			txn.State.LastMessageTime = base
			txn.State.CurrentSpeakerIndex = 3
			txn.Save()
			return nil
		})
		require.NoError(rt, err)
		before, err := s.Conversation(context.Background(), base)
		require.NoError(rt, err)

		elapsed := rapid.Int64Range(0, testCooldown.Milliseconds()-1).Draw(rt, "elapsed")
		adm, err := newTestScheduler(s, nil).TryBeginTurn(context.Background(), time.UnixMilli(base+elapsed))
		require.NoError(rt, err)

		require.Equal(rt, AdmissionCooldown, adm.Kind)
		assert.Equal(rt, time.Duration(testCooldown.Milliseconds()-elapsed)*time.Millisecond, adm.Remaining)
		assert.Nil(rt, adm.Grant)

		after, err := s.Conversation(context.Background(), base)
		require.NoError(rt, err)
		assert.Equal(rt, before, after)
	})
}

func TestTryBeginTurn_CooldownElapsed(t *testing.T) {
	s := store.NewMemoryStore()
	base := epoch.UnixMilli()
	seed(t, s, base, func(st *types.ConversationState) { st.LastMessageTime = base })

	adm, err := newTestScheduler(s, nil).TryBeginTurn(context.Background(), epoch.Add(testCooldown))
	require.NoError(t, err)
	assert.Equal(t, AdmissionEligible, adm.Kind)
}

func TestTryBeginTurn_BusyWhileLeaseHeld(t *testing.T) {
	s := store.NewMemoryStore()
	sched := newTestScheduler(s, nil)

	first, err := sched.TryBeginTurn(context.Background(), epoch)
	require.NoError(t, err)
	require.Equal(t, AdmissionEligible, first.Kind)

	second, err := sched.TryBeginTurn(context.Background(), epoch.Add(testLease-time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, AdmissionBusy, second.Kind)

	st, err := s.Conversation(context.Background(), epoch.UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, first.Grant.Token, st.GenerationOwner)
}

func TestTryBeginTurn_ReclaimsExpiredLease(t *testing.T) {
	s := store.NewMemoryStore()
	m := newRecordingMetrics()
	sched := newTestScheduler(s, m)

	first, err := sched.TryBeginTurn(context.Background(), epoch)
	require.NoError(t, err)
	require.Equal(t, AdmissionEligible, first.Kind)

	later := epoch.Add(testLease)
	second, err := sched.TryBeginTurn(context.Background(), later)
	require.NoError(t, err)
	require.Equal(t, AdmissionEligible, second.Kind)
	assert.NotEqual(t, first.Grant.Token, second.Grant.Token)
	assert.Equal(t, first.Grant.SpeakerIndex, second.Grant.SpeakerIndex)
	assert.Equal(t, 1, m.reclaimCount())

	st, err := s.Conversation(context.Background(), later.UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, second.Grant.Token, st.GenerationOwner)
	assert.Equal(t, later.UnixMilli(), st.GenerationStartedAt)
}

func TestTryBeginTurn_LegacyLockWithoutLeaseIsReclaimed(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, epoch.UnixMilli(), func(st *types.ConversationState) { st.IsGenerating = true })

	adm, err := newTestScheduler(s, nil).TryBeginTurn(context.Background(), epoch)
	require.NoError(t, err)
	assert.Equal(t, AdmissionEligible, adm.Kind)
}

func TestTryBeginTurn_NormalizesOutOfRangeIndex(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, epoch.UnixMilli(), func(st *types.ConversationState) { st.CurrentSpeakerIndex = 7 })

	adm, err := newTestScheduler(s, nil).TryBeginTurn(context.Background(), epoch)
	require.NoError(t, err)
	require.Equal(t, AdmissionEligible, adm.Kind)
	assert.Equal(t, 2, adm.Grant.SpeakerIndex)
	assert.Equal(t, "priya", adm.Grant.SpeakerKey)
}

func TestTryBeginTurn_StoreClosed(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := newTestScheduler(s, nil).TryBeginTurn(context.Background(), epoch)
	require.Error(t, err)
	assert.Equal(t, types.ErrStoreUnavailable, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestTryBeginTurn_ConcurrentCallersSingleWinner(t *testing.T) {
	backends := map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store { return store.NewMemoryStore() },
		"redis": func(t *testing.T) store.Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return store.NewRedisStore(client, "rt:test:", 64)
		},
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			_, err := s.Conversation(context.Background(), epoch.UnixMilli())
			require.NoError(t, err)
			sched := newTestScheduler(s, nil)

			const callers = 12
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				eligible int
				busy     int
			)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					adm, err := sched.TryBeginTurn(context.Background(), epoch)
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						assert.Equal(t, types.ErrStoreConflict, types.GetErrorCode(err))
						return
					}
					switch adm.Kind {
					case AdmissionEligible:
						eligible++
					case AdmissionBusy:
						busy++
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, eligible)
			assert.LessOrEqual(t, busy, callers-1)
		})
	}
}
