package repository

import (
	"context"

	"github.com/renloop/chat-service/internal/domain"
)

// RoomRepository defines the interface for room data persistence.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	GetByUser(ctx context.Context, userID string) ([]domain.Room, error)
}

// MessageRepository defines the interface for message data persistence.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	List(ctx context.Context, roomID string, offset, limit int) ([]domain.Message, error)
	UpdateStatus(ctx context.Context, msg *domain.Message) error
}
