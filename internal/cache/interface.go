package cache

import (
	"context"
	"errors"
	"time"

	"github.com/dllu1/go-chatroom/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// HistoryCache caches the recent-history page served on join. The store
// stays authoritative: cache errors degrade to a database read.
type HistoryCache interface {
	GetRecent(ctx context.Context, limit int) ([]domain.Message, error)
	SetRecent(ctx context.Context, limit int, messages []domain.Message, ttl time.Duration) error
	// Invalidate drops all cached history pages; called after every
	// persisted message.
	Invalidate(ctx context.Context) error
}
