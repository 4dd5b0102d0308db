package service

import (
	"context"

	"github.com/dllu1/go-chatroom/internal/domain"
	"github.com/dllu1/go-chatroom/internal/hub"
)

// ChatService drives the connection lifecycle and message ingest:
// Anonymous on connect, Active after a successful join, Closed on
// disconnect.
type ChatService interface {
	HandleJoin(ctx context.Context, c *hub.Client, username string) error
	HandleSendMessage(ctx context.Context, c *hub.Client, content string) error
	HandleOnlineUsers(ctx context.Context, c *hub.Client) error
	HandleDisconnect(ctx context.Context, c *hub.Client) error
}

// UserService handles credential registration and verification. The chat
// core only consumes the authenticated username string it produces.
type UserService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.UserResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.UserResponse, error)
}
