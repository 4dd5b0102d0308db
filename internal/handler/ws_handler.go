package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dllu1/go-chatroom/internal/config"
	"github.com/dllu1/go-chatroom/internal/domain"
	"github.com/dllu1/go-chatroom/internal/hub"
	"github.com/dllu1/go-chatroom/internal/service"
	"github.com/dllu1/go-chatroom/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades connections and dispatches live-channel events.
type WSHandler struct {
	hub     *hub.Hub
	service service.ChatService
	wsCfg   config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		wsCfg:   wsCfg,
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the connection and starts its pumps. The new
// connection is Anonymous until it sends a join event.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.L().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn, h.wsCfg)
	h.hub.Add(client)

	go client.WritePump()
	go client.ReadPump(h.handleEvent, h.handleClose)
}

func (h *WSHandler) handleEvent(client *hub.Client, raw []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.hub.SendTo(client.ID, domain.NewErrorEvent("Invalid message format"))
		return
	}

	ctx := context.Background()

	switch env.Event {
	case domain.EventJoin:
		var p domain.JoinPayload
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &p); err != nil {
				h.hub.SendTo(client.ID, domain.NewErrorEvent("Invalid join payload"))
				return
			}
		}
		if err := h.service.HandleJoin(ctx, client, p.Username); err != nil {
			log.L().Error().Err(err).Str(log.FieldConnID, client.ID).Msg("join failed")
		}

	case domain.EventSendMessage:
		var p domain.SendMessagePayload
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &p); err != nil {
				h.hub.SendTo(client.ID, domain.NewErrorEvent("Invalid send_message payload"))
				return
			}
		}
		if err := h.service.HandleSendMessage(ctx, client, p.Content); err != nil {
			log.L().Error().Err(err).Str(log.FieldConnID, client.ID).Msg("send_message failed")
		}

	case domain.EventGetOnlineUsers:
		if err := h.service.HandleOnlineUsers(ctx, client); err != nil {
			log.L().Error().Err(err).Str(log.FieldConnID, client.ID).Msg("get_online_users failed")
		}

	default:
		h.hub.SendTo(client.ID, domain.NewErrorEvent("Unknown event"))
	}
}

func (h *WSHandler) handleClose(client *hub.Client) {
	if err := h.service.HandleDisconnect(context.Background(), client); err != nil {
		log.L().Error().Err(err).Str(log.FieldConnID, client.ID).Msg("disconnect handling failed")
	}
}
