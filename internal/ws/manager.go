// Package ws fans auction updates out to WebSocket subscribers. Clients
// subscribe to a single auction's channel; the broadcast service feeds
// the hub from Redis pub/sub.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Manager tracks which clients watch which auction.
type Manager struct {
	// auctionID -> *sync.Map of *Client
	subscribers sync.Map

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	log *zap.Logger
}

// Client is one WebSocket subscriber.
type Client struct {
	ID        string
	AuctionID string
	Conn      *websocket.Conn
	Send      chan []byte

	closeOnce sync.Once
}

type broadcastMessage struct {
	AuctionID string
	Payload   []byte
}

// NewManager creates a hub.
func NewManager(log *zap.Logger) *Manager {
	return &Manager{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		log:        log,
	}
}

// Run drives the hub's main loop. Run in a goroutine.
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case message := <-m.broadcast:
			m.broadcastToAuction(message.AuctionID, message.Payload)
		}
	}
}

// RegisterClient adds a client to the hub.
func (m *Manager) RegisterClient(client *Client) {
	m.register <- client
}

// UnregisterClient removes a client from the hub.
func (m *Manager) UnregisterClient(client *Client) {
	m.unregister <- client
}

// Broadcast queues a payload for every client watching the auction.
func (m *Manager) Broadcast(auctionID string, payload []byte) {
	m.broadcast <- &broadcastMessage{AuctionID: auctionID, Payload: payload}
}

// SubscriberCount returns how many clients watch an auction.
func (m *Manager) SubscriberCount(auctionID string) int {
	subscribers, ok := m.subscribers.Load(auctionID)
	if !ok {
		return 0
	}
	count := 0
	subscribers.(*sync.Map).Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (m *Manager) registerClient(client *Client) {
	subscribers, _ := m.subscribers.LoadOrStore(client.AuctionID, &sync.Map{})
	subscribers.(*sync.Map).Store(client, true)

	m.log.Info("client subscribed",
		zap.String("client_id", client.ID),
		zap.String("auction_id", client.AuctionID))

	go client.writePump()
}

func (m *Manager) unregisterClient(client *Client) {
	if subscribers, ok := m.subscribers.Load(client.AuctionID); ok {
		subscribers.(*sync.Map).Delete(client)
	}

	// The slow-client eviction path and the read pump can both report the
	// same client; only the first close counts.
	client.closeOnce.Do(func() {
		close(client.Send)
		client.Conn.Close()
	})

	m.log.Info("client unsubscribed",
		zap.String("client_id", client.ID),
		zap.String("auction_id", client.AuctionID))
}

func (m *Manager) broadcastToAuction(auctionID string, payload []byte) {
	subscribers, ok := m.subscribers.Load(auctionID)
	if !ok {
		return
	}

	count := 0
	subscribers.(*sync.Map).Range(func(key, _ interface{}) bool {
		client := key.(*Client)
		select {
		case client.Send <- payload:
			count++
		default:
			// Full send buffer means a stalled client; drop it so one
			// slow reader cannot hold up the rest.
			m.unregisterClient(client)
		}
		return true
	})

	m.log.Debug("broadcasted auction update",
		zap.String("auction_id", auctionID),
		zap.Int("clients", count))
}

// writePump pumps queued payloads to the connection and keeps it alive
// with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so close frames and pongs are seen, and
// reports the client to the hub when it goes away.
func (c *Client) readPump(unregister chan<- *Client) {
	defer func() {
		unregister <- c
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

// StartReadPump starts the read pump for this client.
func (c *Client) StartReadPump(m *Manager) {
	go c.readPump(m.unregister)
}
