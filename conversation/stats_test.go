package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_CountsAndDerivedValues(t *testing.T) {
	h := newHarness(t)
	first := h.advance(t)
	h.advance(t)

	stats, err := h.svc.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, h.roster.Len())

	maren := stats["maren"]
	assert.Equal(t, int64(1), maren.MessageCount)
	require.NotNil(t, maren.LastActive)
	assert.Equal(t, first.Message.Timestamp, *maren.LastActive)
	assert.Equal(t, "56.4%", maren.Derived["broadcastComposure"])
	assert.Equal(t, int64(1), maren.Derived["seguesLanded"])
	assert.Equal(t, "rising voice", maren.Derived["onAirStatus"])

	assert.Equal(t, "98.5%", stats["tobias"].Derived["signalConfidence"])
	assert.Equal(t, "multimeter", stats["tobias"].Derived["toolkit"])

	priya := stats["priya"]
	assert.Zero(t, priya.MessageCount)
	assert.Nil(t, priya.LastActive)
	assert.Equal(t, "70.0%", priya.Derived["scheduleIntegrity"])
}

func TestStats_UnknownPersonaKept(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.stats.Increment(context.Background(), "retired", h.clock.Now()))

	stats, err := h.svc.Stats(context.Background())
	require.NoError(t, err)
	require.Contains(t, stats, "retired")
	assert.Equal(t, int64(1), stats["retired"].MessageCount)
	assert.Empty(t, stats["retired"].Derived)
}

func TestStats_SurviveReset(t *testing.T) {
	h := newHarness(t)
	h.advance(t)

	_, err := h.svc.Reset(context.Background())
	require.NoError(t, err)

	stats, err := h.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["maren"].MessageCount)
}
