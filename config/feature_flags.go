package config

import (
	"hash/fnv"
	"os"
	"sort"
	"strconv"
	"strings"
)

// FeatureFlags holds the toggles read at startup. Partial rollouts bucket
// users by a hash of their ID. The set is immutable after loading.
type FeatureFlags struct {
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`

	// RolloutPercent is 0-100.
	RolloutPercent int `json:"rollout_percent"`
}

// FeatureContext carries the subject of a per-user flag check.
type FeatureContext struct {
	UserID string
}

// Predefined feature flag names.
const (
	// === Matching ===
	FeatureSessionHistory = "matching.session_history" // history component reads past sessions
	FeatureAutoRebalance  = "queue.auto_rebalance"     // periodic priority recompute

	// === Realtime ===
	FeatureEventStream       = "realtime.event_stream"       // GET /v1/stream
	FeaturePositionBroadcast = "realtime.position_broadcast" // periodic queue_position_update
	FeatureStatsBroadcast    = "realtime.stats_broadcast"    // periodic queue_stats_update

	// === Infrastructure ===
	FeatureDistributedEvents = "events.distributed" // relay events over Redis pub/sub
	FeatureTracing           = "observability.tracing"
)

// LoadFeatureFlags builds the flag set and applies FEATURE_<NAME> overrides
// from environ, or from the process environment when environ is nil.
func LoadFeatureFlags(environ map[string]string) *FeatureFlags {
	ff := NewFeatureFlags()
	lookup := os.Getenv
	if environ != nil {
		lookup = func(k string) string { return environ[k] }
	}
	ff.loadFromEnvironment(lookup)
	return ff
}

// NewFeatureFlags returns the defaults without environment overrides.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	for _, f := range []*Feature{
		{Name: FeatureSessionHistory, Description: "Score session history from stored sessions", Enabled: true, RolloutPercent: 100},
		{Name: FeatureAutoRebalance, Description: "Recompute queue priorities on a schedule", Enabled: true, RolloutPercent: 100},
		{Name: FeatureEventStream, Description: "Server-sent event stream for queue updates", Enabled: true, RolloutPercent: 100},
		{Name: FeaturePositionBroadcast, Description: "Push position updates to waiting users", Enabled: true, RolloutPercent: 100},
		{Name: FeatureStatsBroadcast, Description: "Push queue statistics to connected clients", Enabled: true, RolloutPercent: 100},
		// Single-instance deployments don't need the relay.
		{Name: FeatureDistributedEvents, Description: "Relay domain events across instances", Enabled: false, RolloutPercent: 0},
		{Name: FeatureTracing, Description: "Export OpenTelemetry traces", Enabled: false, RolloutPercent: 0},
	} {
		ff.features[f.Name] = f
	}
}

// loadFromEnvironment applies overrides.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_REALTIME_EVENT_STREAM=false
// Example: FEATURE_MATCHING_SESSION_HISTORY=25
func (ff *FeatureFlags) loadFromEnvironment(lookup func(string) string) {
	for name, feature := range ff.features {
		val := strings.TrimSpace(lookup(featureNameToEnvKey(name)))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "realtime.event_stream" -> "FEATURE_REALTIME_EVENT_STREAM"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context. A nil
// context asks whether the feature is on at all.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}
	if feature.RolloutPercent < 100 && ctx != nil && ctx.UserID != "" {
		return isInRollout(ctx.UserID, featureName, feature.RolloutPercent)
	}
	return feature.RolloutPercent > 0
}

// On is IsEnabled without a user.
func (ff *FeatureFlags) On(featureName string) bool {
	return ff.IsEnabled(featureName, nil)
}

// isInRollout buckets users consistently so they keep their variant.
func isInRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	return int(h.Sum32()%100) < percent
}

// All returns a copy of every flag, sorted by name.
func (ff *FeatureFlags) All() []Feature {
	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
