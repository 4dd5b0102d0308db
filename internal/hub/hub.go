// Package hub owns the live WebSocket connections and delivers events to
// them. Which connections receive a broadcast is decided by the session
// registry; the hub itself tracks every connected client, joined or not,
// so unicast replies reach connections that have not joined yet.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/dllu1/go-chatroom/internal/domain"
	"github.com/dllu1/go-chatroom/internal/registry"
	"github.com/dllu1/go-chatroom/pkg/log"
)

type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	registry *registry.Registry
}

func NewHub(reg *registry.Registry) *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		registry: reg,
	}
}

// Add tracks a newly connected client.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()

	log.L().Debug().Str(log.FieldConnID, c.ID).Msg("client connected")
}

// Remove stops tracking a client and closes its send channel, terminating
// the write pump.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.Send)
	}
	h.mu.Unlock()

	log.L().Debug().Str(log.FieldConnID, c.ID).Msg("client disconnected")
}

// Broadcast delivers ev to every connection registered in the session
// registry at the moment of the call. Delivery is best effort: a recipient
// that is gone or has a full send buffer is logged and skipped, never
// aborting the fan-out.
func (h *Hub) Broadcast(ev *domain.OutEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldEvent, ev.Event).Msg("failed to marshal broadcast event")
		return
	}

	recipients := h.registry.ConnIDs()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, id := range recipients {
		c, ok := h.clients[id]
		if !ok {
			// Registered but transport already gone; pruning happens on
			// the transport's disconnect notification.
			log.L().Debug().Str(log.FieldConnID, id).Str(log.FieldEvent, ev.Event).Msg("broadcast recipient gone")
			continue
		}
		select {
		case c.Send <- data:
		default:
			log.L().Warn().Str(log.FieldConnID, id).Str(log.FieldEvent, ev.Event).Msg("send buffer full, dropping broadcast")
		}
	}
}

// SendTo delivers ev to a single connection, joined or not. A missing
// connection is logged and ignored.
func (h *Hub) SendTo(connID string, ev *domain.OutEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.L().Error().Err(err).Str(log.FieldEvent, ev.Event).Msg("failed to marshal unicast event")
		return
	}

	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()

	if !ok {
		log.L().Debug().Str(log.FieldConnID, connID).Str(log.FieldEvent, ev.Event).Msg("unicast target gone")
		return
	}

	select {
	case c.Send <- data:
	default:
		log.L().Warn().Str(log.FieldConnID, connID).Str(log.FieldEvent, ev.Event).Msg("send buffer full, dropping unicast")
	}
}
