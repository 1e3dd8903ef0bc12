// internal/socket/hub.go
package socket

import (
	"errors"
	"sync"
	"time"

	"parknet-api-server/internal/metrics"
	"parknet-api-server/internal/models"
	"parknet-api-server/internal/parking"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Message types pushed to browsers.
const (
	TypeSnapshot = "snapshot"
	TypeResync   = "resync"
	TypeEvent    = "event"
	TypeClosed   = "closed"
)

var ErrHubClosed = errors.New("websocket hub is shut down")

// Message is the JSON frame sent to websocket clients. A client renders the
// first snapshot, then applies events in order. A resync replaces its state.
type Message struct {
	Type       string              `json:"type"`
	FacilityID string              `json:"facilityID"`
	Snapshot   *models.Snapshot    `json:"snapshot,omitempty"`
	Event      *models.ChangeEvent `json:"event,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// Watcher is the part of the registry a websocket session needs.
type Watcher interface {
	Watch(facilityID string) (models.Snapshot, *parking.Subscription, error)
	Snapshot(facilityID string) (models.Snapshot, error)
}

// Hub tracks every live websocket session, grouped by facility.
type Hub struct {
	watcher Watcher
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	clients  map[string]map[string]*Client
	closed   bool
	shutdown chan struct{}
}

func NewHub(w Watcher, logger *zap.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		watcher:  w,
		logger:   logger.Named("socket"),
		metrics:  m,
		clients:  make(map[string]map[string]*Client),
		shutdown: make(chan struct{}),
	}
}

// Serve streams facilityID's slot changes to conn and blocks until the session
// ends. It owns conn and closes it on return.
func (h *Hub) Serve(conn *websocket.Conn, facilityID, userID string) error {
	snap, sub, err := h.watcher.Watch(facilityID)
	if err != nil {
		conn.Close()
		return err
	}
	c := &Client{
		ID:         uuid.NewString(),
		UserID:     userID,
		FacilityID: facilityID,
		hub:        h,
		conn:       conn,
		sub:        sub,
	}
	if !h.register(c) {
		sub.Close()
		conn.Close()
		return ErrHubClosed
	}
	defer h.unregister(c)

	c.run(snap)
	return nil
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.clients[c.FacilityID] == nil {
		h.clients[c.FacilityID] = make(map[string]*Client)
	}
	h.clients[c.FacilityID][c.ID] = c
	h.metrics.WebsocketConnected()
	h.logger.Info("websocket client registered",
		zap.String("client", c.ID),
		zap.String("user", c.UserID),
		zap.String("facility", c.FacilityID),
	)
	return true
}

func (h *Hub) unregister(c *Client) {
	c.sub.Close()
	c.conn.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.FacilityID]
	if !ok {
		return
	}
	if _, ok := set[c.ID]; !ok {
		return
	}
	delete(set, c.ID)
	if len(set) == 0 {
		delete(h.clients, c.FacilityID)
	}
	h.metrics.WebsocketDisconnected()
	h.logger.Info("websocket client unregistered",
		zap.String("client", c.ID),
		zap.String("facility", c.FacilityID),
	)
}

// Count returns the live sessions watching facilityID.
func (h *Hub) Count(facilityID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[facilityID])
}

// Shutdown asks every session to close and refuses new ones.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.shutdown)
}
