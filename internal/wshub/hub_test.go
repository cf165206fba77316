package wshub

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adarena/backend/internal/events"
)

func TestHub_BroadcastToConnectedClient(t *testing.T) {
	hub := New("test")
	done := make(chan struct{})
	go hub.Run(done)
	defer close(done)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	defer server.Close()

	wsURL := "ws" + server.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.Stats()["connected_clients"] == 1
	}, time.Second, 5*time.Millisecond)

	hub.broadcast <- events.NewCloudEvent(events.TypeRoundAdvanced, "test", "", map[string]interface{}{"round": 3})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got events.CloudEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, events.TypeRoundAdvanced, got.Type)
	assert.Equal(t, float64(3), got.Data["round"])
}

func TestHub_PumpForwardsSubscribedEvents(t *testing.T) {
	// Run is not started, so the forwarded event stays in hub.broadcast.
	hub := New("test")
	done := make(chan struct{})
	defer close(done)

	bus := events.NewBus()
	hub.Pump(bus, done, events.TypeFlagStolen)

	bus.Emit(events.TypeFlagStolen, "test", "task", map[string]interface{}{"points": 1.5})

	require.Eventually(t, func() bool { return len(hub.broadcast) == 1 }, time.Second, 5*time.Millisecond)
}
