package repository

import (
	"context"
	"errors"

	"github.com/dllu1/go-chatroom/internal/domain"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
)

// UserRepository stores user credentials.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
}

// MessageRepository stores chat messages. Create is durable on return;
// the store assigns the monotonic id and the timestamp.
type MessageRepository interface {
	Create(ctx context.Context, username, content string) (*domain.Message, error)
	Recent(ctx context.Context, limit int) ([]domain.Message, error)
}
