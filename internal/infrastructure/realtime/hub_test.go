package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ronak-kumar-sing/skillsync-platform-sub002/internal/application/notifier"
)

func msg(typ string) notifier.Message {
	return notifier.Message{Type: typ, Data: map[string]interface{}{"user_id": "alice"}, Timestamp: time.Now()}
}

func drain(c *Client) []string {
	var types []string
	for {
		select {
		case m := <-c.outbound:
			types = append(types, m.Type)
		default:
			return types
		}
	}
}

func TestTopicsAndChannels(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(HubConfig{})

	alice := hub.Connect("alice")
	bob := hub.Connect("bob")
	hub.Join(alice, notifier.TopicStats)
	hub.Join(bob, notifier.TopicStats)
	hub.Join(bob, notifier.TopicQueue)
	assert.Equal(t, 2, hub.ClientCount())

	require.NoError(t, hub.Publish(ctx, notifier.TopicStats, msg("queue_stats_update")))
	require.NoError(t, hub.Publish(ctx, notifier.TopicQueue, msg("queue_rebalanced")))
	require.NoError(t, hub.SendToChannel(ctx, alice.ID, msg("match_found")))

	assert.Equal(t, []string{"queue_stats_update", "match_found"}, drain(alice))
	assert.Equal(t, []string{"queue_stats_update", "queue_rebalanced"}, drain(bob))

	hub.Leave(bob, notifier.TopicQueue)
	require.NoError(t, hub.Publish(ctx, notifier.TopicQueue, msg("queue_rebalanced")))
	assert.Empty(t, drain(bob))
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(HubConfig{})

	c := hub.Connect("alice")
	hub.Join(c, notifier.TopicQueue)
	hub.Disconnect(c)
	hub.Disconnect(c)

	assert.Zero(t, hub.ClientCount())
	assert.ErrorIs(t, hub.SendToChannel(ctx, c.ID, msg("queue_left")), ErrChannelNotFound)
	require.NoError(t, hub.Publish(ctx, notifier.TopicQueue, msg("queue_rebalanced")))
	assert.Empty(t, drain(c))

	select {
	case <-c.Done():
	default:
		t.Fatal("client not closed")
	}
}

func TestCloseDropsEveryClient(t *testing.T) {
	hub := NewHub(HubConfig{})
	a := hub.Connect("alice")
	b := hub.Connect("bob")

	hub.Close()
	assert.Zero(t, hub.ClientCount())
	for _, c := range []*Client{a, b} {
		select {
		case <-c.Done():
		default:
			t.Fatalf("client %s not closed", c.UserID)
		}
	}
}

func TestSlowClientIsNotBlocking(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(HubConfig{BufferSize: 1})
	c := hub.Connect("alice")

	require.NoError(t, hub.SendToChannel(ctx, c.ID, msg("queue_joined")))
	assert.ErrorIs(t, hub.SendToChannel(ctx, c.ID, msg("queue_position_update")), ErrBufferFull)
	assert.Equal(t, []string{"queue_joined"}, drain(c))
}

func TestInProcessSubscribers(t *testing.T) {
	ctx := context.Background()
	hub := NewHub(HubConfig{})

	var got []string
	unsubscribe := hub.Subscribe(notifier.TopicStats, func(m notifier.Message) { got = append(got, m.Type) })

	require.NoError(t, hub.Publish(ctx, notifier.TopicStats, msg("queue_stats_update")))
	unsubscribe()
	require.NoError(t, hub.Publish(ctx, notifier.TopicStats, msg("queue_stats_update")))

	assert.Equal(t, []string{"queue_stats_update"}, got)
}

func TestServeStreamsEvents(t *testing.T) {
	hub := NewHub(HubConfig{Heartbeat: time.Hour})
	ready := make(chan *Client, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := hub.Connect(r.URL.Query().Get("user_id"))
		defer hub.Disconnect(c)
		_ = hub.Serve(w, r, c, func() { ready <- c })
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?user_id=alice")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var c *Client
	select {
	case c = <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never became ready")
	}
	require.NoError(t, hub.SendToChannel(context.Background(), c.ID, msg("match_found")))

	lines := make(chan string, 64)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	var seen []string
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case l, ok := <-lines:
			require.True(t, ok)
			if strings.HasPrefix(l, "event: ") {
				seen = append(seen, strings.TrimPrefix(l, "event: "))
			}
		case <-deadline:
			t.Fatalf("timed out, saw %v", seen)
		}
	}
	assert.Equal(t, []string{"connected", "match_found"}, seen)
}
