package cache

import (
	"context"
	"errors"
	"time"

	"github.com/renloop/chat-service/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// HistoryCache caches pages of a room's message history.
type HistoryCache interface {
	Get(ctx context.Context, key string) ([]domain.Message, error)
	Set(ctx context.Context, key string, messages []domain.Message, ttl time.Duration) error
	Invalidate(ctx context.Context, roomID string) error
	BuildKey(roomID string, offset, limit int) string
	Close() error
}
