package wsbridge

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/orchestrator/internal/app/eventbus"
)

func TestServeTopicStreamsPublishedEvents(t *testing.T) {
	bus := eventbus.New(nil)
	bridge := New(bus, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bridge.ServeTopic(w, r, "job:test")
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server goroutine time to register its subscription before
	// publishing, since Publish drops to unsubscribed topics.
	time.Sleep(20 * time.Millisecond)
	bus.Publish("job:test", eventbus.JobStatusEvent{Status: "completed"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var got eventbus.JobStatusEvent
	require.NoError(t, json.Unmarshal(payload, &got))
	require.Equal(t, "completed", got.Status)
}
