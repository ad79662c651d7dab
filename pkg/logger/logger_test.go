package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo}).With(Component("matching_engine"))

	log.Debug("dropped")
	log.Info("match found", UserID("alice"), PeerID("bob"), Score(0.82), Err(nil))
	log.Warn("claim lost", Attempt(2), Err(errors.New("conflict")))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "match found", first["message"])
	assert.Equal(t, "matching_engine", first["component"])
	assert.Equal(t, "alice", first["user_id"])
	assert.Equal(t, 0.82, first["score"])
	assert.NotContains(t, first, "error")
	assert.Contains(t, first, "timestamp")

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal(lines[1], &second))
	assert.Equal(t, "conflict", second["error"])
	assert.Equal(t, float64(2), second["attempt"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("chatty"))
}

func TestContext(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo})
	ctx := WithContext(context.Background(), log.WithRequestID("req-1"))

	FromContext(ctx).Info("handled")
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
	assert.NotNil(t, FromContext(context.Background()))
}
