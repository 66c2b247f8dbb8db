// Package wsbridge exposes Event Bus topics to external session layers over
// websocket connections: one connection subscribes to one topic and
// receives each published event as a JSON frame.
package wsbridge

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/R3E-Network/orchestrator/internal/app/eventbus"
	"github.com/R3E-Network/orchestrator/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
	subscribeQueue = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Bridge upgrades incoming HTTP requests to websocket connections and
// streams one Event Bus topic per connection.
type Bridge struct {
	bus *eventbus.Bus
	log *logger.Logger
}

// New returns a Bridge fed by bus.
func New(bus *eventbus.Bus, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.NewDefault("wsbridge")
	}
	return &Bridge{bus: bus, log: log}
}

// ServeTopic upgrades the connection and streams bus events published on
// topic until the client disconnects or the request context is cancelled.
func (b *Bridge) ServeTopic(w http.ResponseWriter, r *http.Request, topic string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.WithField("topic", topic).WithField("error", err).Warn("wsbridge: upgrade failed")
		return
	}
	defer conn.Close()

	sub := b.bus.Subscribe(topic, subscribeQueue)
	defer sub.Unsubscribe()

	go b.drainClientReads(conn)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.C():
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				b.log.WithField("error", err).Warn("wsbridge: marshal event failed")
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// drainClientReads discards inbound frames so the connection's read
// deadline machinery and pong handling stay serviced; this bridge is
// one-directional (bus -> client).
func (b *Bridge) drainClientReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
