package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Subscriber delivers events published for a tenant, from any instance.
type Subscriber interface {
	SubscribeTenant(schema string, handler func(Event)) (cancel func(), err error)
}

// Hub maintains schema -> user -> connections. Events arrive only through the
// Redis subscription, so the web process and the workers share one delivery path.
type Hub struct {
	tenants map[string]map[uuid.UUID]map[string]*Client
	subs    map[string]func() // cancel Redis subscription per tenant
	mu      sync.RWMutex
	logger  *zap.Logger
	sub     Subscriber
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		tenants: make(map[string]map[uuid.UUID]map[string]*Client),
		subs:    make(map[string]func()),
		logger:  logger,
		sub:     sub,
	}
}

// Register adds a client. Starts the tenant's Redis subscription if it is the tenant's first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	users := h.tenants[c.Schema]
	if users == nil {
		users = make(map[uuid.UUID]map[string]*Client)
		h.tenants[c.Schema] = users
		if h.sub != nil {
			schema := c.Schema
			cancel, err := h.sub.SubscribeTenant(schema, func(e Event) { h.Deliver(schema, e) })
			if err != nil {
				h.logger.Warn("tenant subscription failed", zap.String("tenant", schema), zap.Error(err))
			} else {
				h.subs[schema] = cancel
			}
		}
	}
	if users[c.UserID] == nil {
		users[c.UserID] = make(map[string]*Client)
	}
	users[c.UserID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("client_id", c.ID), zap.String("tenant", c.Schema))
}

// Unregister removes a client and cancels the tenant subscription when its last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if users, ok := h.tenants[c.Schema]; ok {
		if conns, ok := users[c.UserID]; ok {
			if _, ok := conns[c.ID]; ok {
				delete(conns, c.ID)
				close(c.send)
			}
			if len(conns) == 0 {
				delete(users, c.UserID)
			}
		}
		if len(users) == 0 {
			delete(h.tenants, c.Schema)
			if cancel, ok := h.subs[c.Schema]; ok {
				cancel()
				delete(h.subs, c.Schema)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID), zap.String("tenant", c.Schema))
}

// Deliver sends an event to the local connections of its user in schema.
func (h *Hub) Deliver(schema string, e Event) {
	msg := WSMessage{Event: e.Event, Data: e.Data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.tenants[schema][e.UserID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Connections returns the number of local connections for a user.
func (h *Hub) Connections(schema string, userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.tenants[schema][userID])
}

// Close cancels every tenant subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for schema, cancel := range h.subs {
		cancel()
		delete(h.subs, schema)
	}
}

func encode(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}
