package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/milkbook/ledger/internal/domain"
	"github.com/milkbook/ledger/internal/optimistic"
	"github.com/milkbook/ledger/internal/queue"
	"github.com/milkbook/ledger/internal/repository"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// CollectionListener is the live-snapshot primitive of the datastore.
type CollectionListener interface {
	Listen(ctx context.Context, collection string, fn func([]repository.Document)) (func(), error)
}

// StreamHandler pushes queue, tracker and collection changes to UI
// clients over websockets.
type StreamHandler struct {
	q        *queue.Queue
	tracker  *optimistic.Tracker
	listener CollectionListener
	logger   *zap.Logger
}

func NewStreamHandler(q *queue.Queue, tracker *optimistic.Tracker, listener CollectionListener, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{q: q, tracker: tracker, listener: listener, logger: logger}
}

type streamMessage struct {
	Type       string                `json:"type"`
	Items      []domain.QueueItem    `json:"items,omitempty"`
	Summary    *domain.Summary       `json:"summary,omitempty"`
	Event      *optimistic.Event     `json:"event,omitempty"`
	Collection string                `json:"collection,omitempty"`
	Documents  []repository.Document `json:"documents,omitempty"`
}

// Stream handles GET /api/v1/stream
//
// Sends {"type":"queue"} on every queue change and {"type":"tracker"} on
// every optimistic event.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	// Load before subscribing so the first message is the current queue.
	if _, err := h.q.GetAll(r.Context()); err != nil {
		mapError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newStreamClient(conn, h.logger)
	unsubQueue := h.q.Subscribe(func(items []domain.QueueItem) {
		s := summarize(items)
		c.push(streamMessage{Type: "queue", Items: items, Summary: &s})
	})
	unsubTracker := h.tracker.Subscribe(func(ev optimistic.Event) {
		c.push(streamMessage{Type: "tracker", Event: &ev})
	})
	defer unsubQueue()
	defer unsubTracker()

	c.run()
}

// CollectionLive handles GET /api/v1/collections/{name}/live
func (h *StreamHandler) CollectionLive(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !slices.Contains(domain.Collections, name) {
		mapError(w, domain.ErrUnknownCollection)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newStreamClient(conn, h.logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, err := h.listener.Listen(ctx, name, func(docs []repository.Document) {
		c.push(streamMessage{Type: "snapshot", Collection: name, Documents: docs})
	})
	if err != nil {
		h.logger.Error("listen failed", zap.String("collection", name), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "listen failed"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	defer stop()

	c.run()
}

func summarize(items []domain.QueueItem) domain.Summary {
	var s domain.Summary
	for _, it := range items {
		switch it.Status {
		case domain.StatusPending:
			s.Pending++
		case domain.StatusFailed:
			s.Failed++
		}
	}
	return s
}

// streamClient owns one websocket connection: a buffered outbox drained by
// the write pump and a read pump that only watches for close and pongs.
type streamClient struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger *zap.Logger
}

func newStreamClient(conn *websocket.Conn, logger *zap.Logger) *streamClient {
	return &streamClient{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// push never blocks the publisher; a client that falls behind loses messages.
func (c *streamClient) push(msg streamMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("encode stream message", zap.Error(err))
		return
	}
	select {
	case <-c.done:
	case c.send <- b:
	default:
		c.logger.Debug("stream client is slow; dropping message", zap.String("type", msg.Type))
	}
}

// run blocks until the peer goes away.
func (c *streamClient) run() {
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		c.writePump()
	}()
	c.readPump()
	close(c.done)
	<-pumpDone
}

func (c *streamClient) readPump() {
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}
	}
}

// writePump closes the connection on exit, which also ends readPump.
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
