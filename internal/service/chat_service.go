package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dllu1/go-chatroom/internal/audit"
	"github.com/dllu1/go-chatroom/internal/cache"
	"github.com/dllu1/go-chatroom/internal/domain"
	"github.com/dllu1/go-chatroom/internal/hub"
	"github.com/dllu1/go-chatroom/internal/registry"
	"github.com/dllu1/go-chatroom/internal/repository"
	"github.com/dllu1/go-chatroom/pkg/log"
)

type chatService struct {
	hub          *hub.Hub
	registry     *registry.Registry
	messages     repository.MessageRepository
	historyCache cache.HistoryCache // nil when caching is disabled
	cacheTTL     time.Duration
	historyLimit int
	sf           singleflight.Group
}

// NewChatService wires the chat core. historyCache may be nil, in which
// case every history read goes straight to the store.
func NewChatService(
	h *hub.Hub,
	reg *registry.Registry,
	messages repository.MessageRepository,
	historyCache cache.HistoryCache,
	cacheTTL time.Duration,
	historyLimit int,
) ChatService {
	return &chatService{
		hub:          h,
		registry:     reg,
		messages:     messages,
		historyCache: historyCache,
		cacheTTL:     cacheTTL,
		historyLimit: historyLimit,
	}
}

// HandleJoin promotes an anonymous connection to active: it binds the
// connection to the username, replays recent history to the joiner only,
// and announces the join to everyone registered.
func (s *chatService) HandleJoin(ctx context.Context, c *hub.Client, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		s.hub.SendTo(c.ID, domain.NewErrorEvent("Missing username"))
		return nil
	}

	if err := s.registry.Register(c.ID, username); err != nil {
		if errors.Is(err, registry.ErrAlreadyJoined) {
			s.hub.SendTo(c.ID, domain.NewErrorEvent("Already joined"))
			return nil
		}
		return err
	}

	history, err := s.recentHistory(ctx)
	if err != nil {
		// The join stands; the joiner just gets an empty history page.
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldConnID, c.ID).Msg("failed to load message history")
		history = nil
	}

	payloads := make([]domain.MessagePayload, len(history))
	for i := range history {
		payloads[i] = history[i].ToPayload()
	}
	s.hub.SendTo(c.ID, &domain.OutEvent{
		Event: domain.EventMessageHistory,
		Data:  domain.MessageHistoryPayload{Messages: payloads},
	})

	s.hub.Broadcast(&domain.OutEvent{
		Event: domain.EventUserJoined,
		Data: domain.PresencePayload{
			Username: username,
			Message:  fmt.Sprintf("%s has joined the chatroom.", username),
		},
	})

	audit.Log(ctx, audit.ActionJoin, username, "user joined")
	return nil
}

// HandleSendMessage validates and persists an inbound message, then fans
// it out. Persistence completes before any broadcast is attempted, so the
// durable log and the broadcast stream never diverge.
func (s *chatService) HandleSendMessage(ctx context.Context, c *hub.Client, content string) error {
	username, ok := s.registry.Lookup(c.ID)
	if !ok {
		s.hub.SendTo(c.ID, domain.NewErrorEvent("You must join the chat first"))
		return nil
	}

	content = strings.TrimSpace(content)
	if content == "" {
		s.hub.SendTo(c.ID, domain.NewErrorEvent("Message cannot be empty"))
		return nil
	}

	msg, err := s.messages.Create(ctx, username, content)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldUsername, username).Msg("failed to persist message")
		s.hub.SendTo(c.ID, domain.NewErrorEvent("Failed to send message"))
		return nil
	}

	s.invalidateHistory(ctx)

	// Everyone currently registered receives the message, sender included.
	s.hub.Broadcast(&domain.OutEvent{
		Event: domain.EventNewMessage,
		Data:  msg.ToPayload(),
	})

	audit.Log(ctx, audit.ActionSendMessage, username, "message sent")
	return nil
}

// HandleOnlineUsers replies with the deduplicated roster. Connections that
// have not joined may still ask.
func (s *chatService) HandleOnlineUsers(ctx context.Context, c *hub.Client) error {
	s.hub.SendTo(c.ID, &domain.OutEvent{
		Event: domain.EventOnlineUsers,
		Data:  domain.OnlineUsersPayload{Users: s.registry.OnlineUsers()},
	})
	return nil
}

// HandleDisconnect tears down the session binding. A connection that never
// joined disconnects silently.
func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	username, ok := s.registry.Unregister(c.ID)
	if !ok {
		return nil
	}

	s.hub.Broadcast(&domain.OutEvent{
		Event: domain.EventUserLeft,
		Data: domain.PresencePayload{
			Username: username,
			Message:  fmt.Sprintf("User %s has left the chatroom.", username),
		},
	})

	audit.Log(ctx, audit.ActionLeave, username, "user left")
	return nil
}

// recentHistory serves the join-time history page, through the cache when
// one is configured. Concurrent joins share a single store read.
func (s *chatService) recentHistory(ctx context.Context) ([]domain.Message, error) {
	if s.historyCache == nil {
		return s.messages.Recent(ctx, s.historyLimit)
	}

	key := fmt.Sprintf("recent:%d", s.historyLimit)
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		cached, err := s.historyCache.GetRecent(ctx, s.historyLimit)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("history cache get error")
		}

		messages, err := s.messages.Recent(ctx, s.historyLimit)
		if err != nil {
			return nil, err
		}

		// Fill asynchronously so a slow cache never delays the join.
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.historyCache.SetRecent(cacheCtx, s.historyLimit, messages, s.cacheTTL); err != nil {
				log.L().Warn().Err(err).Msg("history cache set error")
			}
		}()

		return messages, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Message), nil
}

func (s *chatService) invalidateHistory(ctx context.Context) {
	if s.historyCache == nil {
		return
	}
	if err := s.historyCache.Invalidate(ctx); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("history cache invalidate error")
	}
}
