package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/txbuddy/internal/events"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func testClient(h *Hub, sub Subscription) *Client {
	return &Client{hub: h, send: make(chan []byte, 256), sub: sub}
}

func TestShouldSend(t *testing.T) {
	analyzedDanger := &events.Event{Type: events.TypeTransactionAnalyzed, Address: "0xaaa", RiskLevel: "danger"}
	analyzedSafe := &events.Event{Type: events.TypeTransactionAnalyzed, Address: "0xaaa", RiskLevel: "safe"}
	levelUp := &events.Event{Type: events.TypeLevelUp, Address: "0xbbb"}

	tests := []struct {
		name  string
		sub   Subscription
		event *events.Event
		want  bool
	}{
		{"all events", Subscription{AllEvents: true}, levelUp, true},
		{"empty subscription", Subscription{}, levelUp, true},
		{"type match", Subscription{EventTypes: []events.Type{events.TypeLevelUp}}, levelUp, true},
		{"type miss", Subscription{EventTypes: []events.Type{events.TypeLevelUp}}, analyzedSafe, false},
		{"address match ignores case", Subscription{Addresses: []string{"0xAAA"}}, analyzedSafe, true},
		{"address miss", Subscription{Addresses: []string{"0xaaa"}}, levelUp, false},
		{"risk match", Subscription{RiskLevels: []string{"danger"}}, analyzedDanger, true},
		{"risk miss", Subscription{RiskLevels: []string{"danger"}}, analyzedSafe, false},
		{"risk filter skips other types", Subscription{RiskLevels: []string{"danger"}}, levelUp, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldSend(&Client{sub: tt.sub}, tt.event))
		})
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := runHub(t)
	client := testClient(h, Subscription{AllEvents: true})

	h.register <- client
	require.Eventually(t, func() bool { return h.Stats()["connectedClients"].(int) == 1 }, time.Second, 10*time.Millisecond)

	h.unregister <- client
	require.Eventually(t, func() bool { return h.Stats()["connectedClients"].(int) == 0 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), h.Stats()["peakClients"].(int64))
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := runHub(t)
	client := testClient(h, Subscription{EventTypes: []events.Type{events.TypeAchievementUnlocked}})
	h.register <- client

	require.NoError(t, h.Send(context.Background(), events.New(events.TypeLevelUp, "0xaaa", nil)))
	require.NoError(t, h.Send(context.Background(), events.New(events.TypeAchievementUnlocked, "0xaaa", map[string]string{"id": "FIRST_ANALYSIS"})))

	select {
	case msg := <-client.send:
		var got events.Event
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, events.TypeAchievementUnlocked, got.Type)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast")
	}

	select {
	case <-client.send:
		t.Fatal("level_up should have been filtered")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, int64(2), h.Stats()["totalEvents"].(int64))
}

func TestHub_ContextCancellation(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop after context cancellation")
	}

	w := httptest.NewRecorder()
	h.HandleWebSocket(w, httptest.NewRequest("GET", "/ws", nil))
	assert.Equal(t, 503, w.Code)
}

func TestHub_WebSocketRoundTrip(t *testing.T) {
	h := runHub(t)
	srv := httptest.NewServer(wsHandler(h))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(Subscription{Addresses: []string{"0xaaa"}}))
	require.Eventually(t, func() bool { return h.Stats()["connectedClients"].(int) == 1 }, time.Second, 10*time.Millisecond)

	// let the subscription update land before broadcasting
	time.Sleep(50 * time.Millisecond)
	h.Broadcast(events.New(events.TypeMonitoringStarted, "0xbbb", nil))
	h.Broadcast(events.New(events.TypeMonitoringStarted, "0xaaa", nil))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "0xaaa", got.Address)
}

func wsHandler(h *Hub) http.Handler {
	return http.HandlerFunc(h.HandleWebSocket)
}
