// Package activity streams committed holding status changes to reading-room
// screens over websockets.
package activity

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client represents a connected WebSocket client.
type Client struct {
	id     uuid.UUID
	conn   *websocket.Conn
	send   chan models.HoldingStatusChange
	feed   *Feed
	filter *ClientFilter
	mu     sync.Mutex
}

// ClientFilter holds the filter preferences for a connected client.
type ClientFilter struct {
	Floors   []int                  `json:"floors,omitempty"`
	Statuses []models.HoldingStatus `json:"statuses,omitempty"`
}

// Matches reports whether a change passes the filter. A change for a
// holding without a floor only passes a filter without floors.
func (f *ClientFilter) Matches(change models.HoldingStatusChange) bool {
	if f == nil {
		return true
	}

	if len(f.Floors) > 0 {
		if change.Floor == nil {
			return false
		}
		found := false
		for _, floor := range f.Floors {
			if floor == *change.Floor {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if s == change.To {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// Config holds configuration for the Feed.
type Config struct {
	// PingInterval is how often to send ping messages to clients.
	PingInterval time.Duration
	// WriteTimeout is the timeout for writing to a client.
	WriteTimeout time.Duration
	// ReadTimeout is the timeout for reading from a client.
	ReadTimeout time.Duration
	// MaxMessageSize is the maximum size of a message from a client.
	MaxMessageSize int64
	// SendBufferSize is the size of the send buffer per client.
	SendBufferSize int
	// AllowedOrigins lists the origins allowed to connect. Empty allows all.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		MaxMessageSize: 512,
		SendBufferSize: 256,
	}
}

// Feed fans holding changes out to connected clients. It implements
// delivery.Publisher.
type Feed struct {
	config   Config
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	clients   map[uuid.UUID]*Client
	clientsMu sync.RWMutex

	broadcast  chan models.HoldingStatusChange
	register   chan *Client
	unregister chan *Client

	done chan struct{}
	wg   sync.WaitGroup
}

// NewFeed creates a new Feed with the given configuration.
func NewFeed(cfg Config, logger zerolog.Logger) *Feed {
	f := &Feed{
		config:     cfg,
		logger:     logger.With().Str("component", "activity_feed").Logger(),
		clients:    make(map[uuid.UUID]*Client),
		broadcast:  make(chan models.HoldingStatusChange, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	f.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     f.checkOrigin,
	}
	return f
}

func (f *Feed) checkOrigin(r *http.Request) bool {
	if len(f.config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range f.config.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// Start begins processing events and client management.
func (f *Feed) Start() {
	f.wg.Add(1)
	go f.run()
	f.logger.Info().Msg("activity feed started")
}

// Stop stops the feed and closes all client connections.
func (f *Feed) Stop() {
	close(f.done)
	f.wg.Wait()
	f.logger.Info().Msg("activity feed stopped")
}

func (f *Feed) run() {
	defer f.wg.Done()

	for {
		select {
		case <-f.done:
			f.closeAllClients()
			return

		case client := <-f.register:
			f.addClient(client)

		case client := <-f.unregister:
			f.removeClient(client)

		case change := <-f.broadcast:
			f.broadcastChange(change)
		}
	}
}

func (f *Feed) addClient(client *Client) {
	f.clientsMu.Lock()
	defer f.clientsMu.Unlock()

	f.clients[client.id] = client

	f.logger.Debug().
		Str("client_id", client.id.String()).
		Msg("client connected")
}

func (f *Feed) removeClient(client *Client) {
	f.clientsMu.Lock()
	defer f.clientsMu.Unlock()

	if _, ok := f.clients[client.id]; !ok {
		return
	}
	delete(f.clients, client.id)
	close(client.send)

	f.logger.Debug().
		Str("client_id", client.id.String()).
		Msg("client disconnected")
}

func (f *Feed) closeAllClients() {
	f.clientsMu.Lock()
	defer f.clientsMu.Unlock()

	for _, client := range f.clients {
		close(client.send)
	}
	f.clients = make(map[uuid.UUID]*Client)
}

func (f *Feed) broadcastChange(change models.HoldingStatusChange) {
	f.clientsMu.RLock()
	defer f.clientsMu.RUnlock()

	for _, client := range f.clients {
		client.mu.Lock()
		filter := client.filter
		client.mu.Unlock()
		if !filter.Matches(change) {
			continue
		}
		select {
		case client.send <- change:
		default:
			f.logger.Warn().
				Str("client_id", client.id.String()).
				Msg("client send buffer full, dropping change")
		}
	}
}

// PublishHoldingChange queues a committed change for every matching client.
// It never blocks the caller.
func (f *Feed) PublishHoldingChange(change models.HoldingStatusChange) {
	select {
	case f.broadcast <- change:
	default:
		f.logger.Warn().
			Str("holding_id", change.HoldingID.String()).
			Msg("broadcast buffer full, dropping change")
	}
}

// HandleWebSocket upgrades the connection and registers the client. The
// initial filter may be narrowed later by a {"type":"filter"} message.
func (f *Feed) HandleWebSocket(w http.ResponseWriter, r *http.Request, filter *ClientFilter) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}
	if filter == nil {
		filter = &ClientFilter{}
	}

	client := &Client{
		id:     uuid.New(),
		conn:   conn,
		send:   make(chan models.HoldingStatusChange, f.config.SendBufferSize),
		feed:   f,
		filter: filter,
	}

	select {
	case f.register <- client:
	case <-f.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// ClientCount returns the number of connected clients.
func (f *Feed) ClientCount() int {
	f.clientsMu.RLock()
	defer f.clientsMu.RUnlock()
	return len(f.clients)
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.feed.unregister <- c:
		case <-c.feed.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.feed.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.feed.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.feed.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.feed.logger.Debug().Err(err).Msg("websocket read error")
			}
			break
		}

		var update struct {
			Type   string       `json:"type"`
			Filter ClientFilter `json:"filter"`
		}
		if err := json.Unmarshal(message, &update); err == nil && update.Type == "filter" {
			c.mu.Lock()
			c.filter = &update.Filter
			c.mu.Unlock()
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.feed.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case change, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.feed.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(change)
			if err != nil {
				c.feed.logger.Error().Err(err).Msg("failed to encode holding change")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.feed.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
