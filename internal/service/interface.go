package service

import (
	"context"
	"io"

	"github.com/renloop/chat-service/internal/domain"
)

// ChatService is the application core: authorization, message operations
// and live-channel dispatch.
type ChatService interface {
	// Authorize resolves the room and checks the user is a participant.
	// No side effects.
	Authorize(ctx context.Context, roomID, userID string) (*domain.Room, error)

	// SendText persists a text message and broadcasts it to the room.
	SendText(ctx context.Context, roomID, senderID, content string) (*domain.Message, error)

	// SendAttachment stores the file, persists a file message with its
	// attachment and broadcasts it to the room.
	SendAttachment(ctx context.Context, roomID, senderID string, file io.Reader, size int64, filename, fileType string) (*domain.Attachment, error)

	// ListRooms returns every room the user participates in.
	ListRooms(ctx context.Context, userID string) ([]domain.Room, error)

	// FetchHistory authorizes the user and returns a page of the room's
	// messages, oldest first, attachments included.
	FetchHistory(ctx context.Context, userID, roomID string, offset, limit int) ([]domain.Message, error)

	// UpdateStatus sets delivery timestamps on a message and broadcasts
	// the new status to the message's room. Timestamps only ever move
	// forward; re-applying a status is a no-op, not an error.
	UpdateStatus(ctx context.Context, messageID string, delivered, read bool) (*domain.Message, error)

	// HandleIncoming is the single dispatch point for inbound live-channel
	// frames.
	HandleIncoming(ctx context.Context, roomID, userID string, raw []byte) error
}
