package apiserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// AdmittedEvent is published to every connected subscriber when the
// transaction processor admits a new relay transaction.
type AdmittedEvent struct {
	TxID          string `json:"tx_id"`
	SenderPub     string `json:"sender_pub"`
	FeePerHop     uint32 `json:"fee_per_hop"`
	TipCountAfter int    `json:"tip_count_after"`
}

// eventHub fans AdmittedEvent broadcasts out to every connected websocket
// subscriber, dropping slow subscribers rather than blocking the publisher.
type eventHub struct {
	mu          sync.Mutex
	subscribers map[chan []byte]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subscribers: make(map[chan []byte]struct{})}
}

func (h *eventHub) subscribe() chan []byte {
	ch := make(chan []byte, wsSendBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *eventHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
}

func (h *eventHub) broadcast(ev AdmittedEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logrus.WithError(err).Warn("apiserver: failed to marshal admitted event")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- payload:
		default:
			// Subscriber too slow; drop the event for them rather than
			// block the admission path.
		}
	}
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("apiserver: websocket upgrade failed")
		return
	}
	ch := s.events.subscribe()
	go s.writeEventsPump(conn, ch)
	go s.readEventsPump(conn, ch)
}

func (s *Server) writeEventsPump(conn *websocket.Conn, ch chan []byte) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case msg, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readEventsPump drains and discards client frames purely to detect
// disconnects (this feed is server-to-client only) and unsubscribes once the
// connection closes.
func (s *Server) readEventsPump(conn *websocket.Conn, ch chan []byte) {
	defer s.events.unsubscribe(ch)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
