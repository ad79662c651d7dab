package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureDefaults(t *testing.T) {
	ff := NewFeatureFlags()

	assert.True(t, ff.On(FeatureSessionHistory))
	assert.True(t, ff.On(FeaturePositionBroadcast))
	assert.False(t, ff.On(FeatureDistributedEvents))
	assert.False(t, ff.On("no.such.feature"))
	all := ff.All()
	require.Len(t, all, 7)
	assert.Equal(t, FeatureDistributedEvents, all[0].Name)
	assert.Equal(t, FeatureTracing, all[6].Name)
}

func TestFeatureEnvironmentOverrides(t *testing.T) {
	ff := LoadFeatureFlags(map[string]string{
		"FEATURE_EVENTS_DISTRIBUTED":       "true",
		"FEATURE_REALTIME_STATS_BROADCAST": "false",
		"FEATURE_MATCHING_SESSION_HISTORY": "30",
		"FEATURE_QUEUE_AUTO_REBALANCE":     "sometimes",
	})

	assert.True(t, ff.On(FeatureDistributedEvents))
	assert.False(t, ff.On(FeatureStatsBroadcast))
	assert.True(t, ff.On(FeatureAutoRebalance))

	// Partial rollout: some users in, some out, and stable per user.
	in, out := 0, 0
	for i := 0; i < 200; i++ {
		ctx := &FeatureContext{UserID: fmt.Sprintf("user-%d", i)}
		first := ff.IsEnabled(FeatureSessionHistory, ctx)
		assert.Equal(t, first, ff.IsEnabled(FeatureSessionHistory, ctx))
		if first {
			in++
		} else {
			out++
		}
	}
	assert.Positive(t, in)
	assert.Positive(t, out)
}

func TestFeatureOffIgnoresRollout(t *testing.T) {
	ff := LoadFeatureFlags(map[string]string{
		"FEATURE_REALTIME_EVENT_STREAM": "0",
		"FEATURE_OBSERVABILITY_TRACING": "100",
	})

	assert.False(t, ff.IsEnabled(FeatureEventStream, &FeatureContext{UserID: "alice"}))
	assert.False(t, ff.On(FeatureEventStream))
	assert.True(t, ff.IsEnabled(FeatureTracing, &FeatureContext{UserID: "alice"}))

	for _, f := range ff.All() {
		if f.Name == FeatureEventStream {
			assert.False(t, f.Enabled)
			assert.Zero(t, f.RolloutPercent)
		}
	}
}
